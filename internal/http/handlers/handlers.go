// Package handlers exposes the triage API over HTTP.
//
// Handlers are transport-thin: they bind and shape input, resolve the caller
// from the identity middleware, call application services and translate
// results into HTTP responses (including conditional and replayed responses).
// Rule classification and persistence stay in the services package.
package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/http/middleware"
	"github.com/tbourn/go-mail-triage/internal/ingest"
	"github.com/tbourn/go-mail-triage/internal/services"
	"github.com/tbourn/go-mail-triage/internal/utils"
)

//
// Service contracts (context-aware)
//

// RuleService mutates and reads a user's rules.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RuleService interface {
	// Modify applies a low-level rule operation.
	Modify(ctx context.Context, req services.ModifyRequest) (*services.ModifyResult, error)
	// ModifyCriteria applies an operation described by an observed message.
	ModifyCriteria(ctx context.Context, req services.CriteriaRequest) (*services.ModifyResult, error)
}

// PendingService stores and lists messages awaiting classification.
type PendingService interface {
	Ingest(ctx context.Context, userEmail string, batch []ingest.Fields) (*services.IngestResult, error)
	IngestRaw(ctx context.Context, userEmail string, r io.Reader) (*services.IngestResult, error)
	List(ctx context.Context, userEmail, action string, offset, limit int) ([]domain.PendingEmail, int64, error)
}

// EvaluationService classifies a user's pending messages.
type EvaluationService interface {
	EvaluatePendingEmails(ctx context.Context, userEmail string) (*services.EvaluationSummary, error)
}

// AuditService pages through a user's rule history.
type AuditService interface {
	List(ctx context.Context, userEmail string, offset, limit int) ([]domain.AuditLog, int64, error)
}

//
// Handler wiring
//

// Handlers groups the rule, email and audit endpoints.
//
// db backs conditional responses (ETags) and Idempotency-Key replay; both
// are skipped when it is nil.
type Handlers struct {
	rules   RuleService
	pending PendingService
	eval    EvaluationService
	audit   AuditService

	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(rules RuleService, pending PendingService, eval EvaluationService, audit AuditService, db *gorm.DB, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{rules: rules, pending: pending, eval: eval, audit: audit, db: db, idemTTL: idemTTL}
}

// currentUser returns the mailbox owner resolved by middleware.Identity.
func currentUser(c *gin.Context) string {
	return middleware.UserEmail(c)
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// newPagination derives page metadata from the total row count.
func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads the page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}
