package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownValue is wrapped by every Parse* function when the input is not
// part of the closed vocabulary.
var ErrUnknownValue = errors.New("unknown value")

// Action is the outcome assigned to a pending email.
type Action string

const (
	ActionKeep      Action = "keep"
	ActionDelete    Action = "delete"
	ActionDelete1d  Action = "delete_1d"
	ActionDelete10d Action = "delete_10d"
	ActionUndecided Action = "undecided"
)

// Actions lists the vocabulary in evaluator tier order.
var Actions = []Action{ActionKeep, ActionDelete, ActionDelete1d, ActionDelete10d, ActionUndecided}

// ParseAction accepts the action vocabulary case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionKeep, ActionDelete, ActionDelete1d, ActionDelete10d, ActionUndecided:
		return a, nil
	}
	return "", fmt.Errorf("%w: action %q", ErrUnknownValue, s)
}

// Storable reports whether a can be stored as a criteria default or subject
// pattern action. "undecided" is an evaluation outcome only.
func (a Action) Storable() bool {
	switch a {
	case ActionKeep, ActionDelete, ActionDelete1d, ActionDelete10d:
		return true
	}
	return false
}

// AddressRule reports whether a is allowed on an EmailPattern.
func (a Action) AddressRule() bool { return a == ActionKeep || a == ActionDelete }

// Ptr returns a pointer to a copy of a.
func (a Action) Ptr() *Action { return &a }

// KeyType classifies a criteria entry.
type KeyType string

const (
	KeyDomain    KeyType = "domain"
	KeySubdomain KeyType = "subdomain"
	KeyEmail     KeyType = "email"
)

// Dimension selects which rule family a mutation targets.
type Dimension string

const (
	DimDomain    Dimension = "domain"
	DimSubdomain Dimension = "subdomain"
	DimEmail     Dimension = "email"
	DimSubject   Dimension = "subject"
	DimFromEmail Dimension = "from_email"
	DimToEmail   Dimension = "to_email"
)

// ParseDimension accepts the dimension vocabulary case-insensitively.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DimDomain, DimSubdomain, DimEmail, DimSubject, DimFromEmail, DimToEmail:
		return d, nil
	}
	return "", fmt.Errorf("%w: dimension %q", ErrUnknownValue, s)
}

// KeyType returns the criteria key type a criteria-level dimension maps to.
// The second value is false for subject and address-pattern dimensions.
func (d Dimension) KeyType() (KeyType, bool) {
	switch d {
	case DimDomain:
		return KeyDomain, true
	case DimSubdomain:
		return KeySubdomain, true
	case DimEmail:
		return KeyEmail, true
	}
	return "", false
}

// Direction reports the EmailPattern direction of an address dimension.
func (d Dimension) Direction() (Direction, bool) {
	switch d {
	case DimFromEmail:
		return DirectionFrom, true
	case DimToEmail:
		return DirectionTo, true
	}
	return "", false
}

// Operation is a rule mutation verb.
type Operation string

const (
	OpAdd    Operation = "ADD"
	OpRemove Operation = "REMOVE"
	OpUpdate Operation = "UPDATE"
	OpClear  Operation = "CLEAR"
	OpGet    Operation = "GET"
)

// ParseOperation accepts the operation vocabulary case-insensitively.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	switch op {
	case OpAdd, OpRemove, OpUpdate, OpClear, OpGet:
		return op, nil
	}
	return "", fmt.Errorf("%w: operation %q", ErrUnknownValue, s)
}

// Mutates reports whether op can change stored rules.
func (op Operation) Mutates() bool { return op != OpGet }

// Direction is the header an EmailPattern matches against.
type Direction string

const (
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
)

// AuditAction is the kind of change an audit row records.
type AuditAction string

const (
	AuditInsert AuditAction = "INSERT"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)
