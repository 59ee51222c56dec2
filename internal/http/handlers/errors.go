package handlers

import "github.com/tbourn/go-mail-triage/internal/services"

// Error codes carried in ErrorResponse.Code. Transport failures use the
// generic codes; rule engine outcomes reuse services.Code so a failed
// ModifyResult and its HTTP envelope always agree.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized" // written by middleware.Identity
	ErrCodeNotFound         = string(services.CodeNotFound)
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited" // written by middleware.RateLimiter
	ErrCodeIdempotencyKey   = "bad_idempotency_key"

	ErrCodeValidation  = string(services.CodeValidation)
	ErrCodePersistence = string(services.CodePersistence)
)
