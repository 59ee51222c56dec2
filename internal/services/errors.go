// Package services defines the business logic for rule management,
// pending email ingestion and evaluation.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer through CodeOf.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input: a bad address, an unknown
	// operation/dimension/action or a missing required field. It is always
	// returned before any write.
	ErrValidation = errors.New("validation error")

	// ErrRuleNotFound is returned by UPDATE and GET when the addressed rule
	// does not exist.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrPersistence wraps failures of the underlying store.
	ErrPersistence = errors.New("persistence error")
)

// Code is the programmatic outcome class carried by every result.
type Code string

const (
	CodeOK          Code = "ok"
	CodeValidation  Code = "validation_error"
	CodeNotFound    Code = "not_found"
	CodePersistence Code = "persistence_error"
)

// CodeOf classifies err. Unknown errors count as persistence failures.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrRuleNotFound):
		return CodeNotFound
	default:
		return CodePersistence
	}
}

// messageOf renders err the way callers show it to users.
func messageOf(err error) string {
	if errors.Is(err, ErrRuleNotFound) {
		return "Rule not found"
	}
	return err.Error()
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// persistence wraps a store error unless it is already classified.
func persistence(err error) error {
	if err == nil || errors.Is(err, ErrValidation) || errors.Is(err, ErrRuleNotFound) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
