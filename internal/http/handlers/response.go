// Package handlers implements the triage API: rule mutations and lookups,
// pending email ingestion, evaluation and the audit trail.
//
// Every failure is written as an ErrorResponse; rule endpoints add the
// success flag of ModifyResult (see RuleErrorResponse).
//
//	HTTP/1.1 404 Not Found
//	{"request_id":"123e4567-...","code":"not_found","message":"Rule not found"}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mail-triage/internal/http/middleware"
	"github.com/tbourn/go-mail-triage/internal/services"
)

// storageFailureMessage replaces persistence error text in responses.
const storageFailureMessage = "storage failure"

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

func requestID(c *gin.Context) string {
	return c.Writer.Header().Get("X-Request-ID")
}

// fail aborts with an ErrorResponse. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: requestID(c), Code: code, Message: msg})
}

// Fail lets the router write the same envelope for NoRoute and NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// statusOf maps a service result code to an HTTP status.
func statusOf(code services.Code) int {
	switch code {
	case services.CodeOK:
		return http.StatusOK
	case services.CodeValidation:
		return http.StatusBadRequest
	case services.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text clients see for err. Persistence failures are
// logged with their cause and reported as storageFailureMessage.
func publicMessage(c *gin.Context, err error, status int) string {
	if status < http.StatusInternalServerError {
		return err.Error()
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("service error")
	return storageFailureMessage
}

// failService aborts with the status and envelope matching a service error.
func failService(c *gin.Context, err error) {
	code := services.CodeOf(err)
	status := statusOf(code)
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: requestID(c),
		Code:      string(code),
		Message:   publicMessage(c, err, status),
	})
}
