// Audit HTTP handlers.
//
// GET /audit pages through the caller's rule history, newest entry first.
// Entries are written by the rule service in the same transaction as the
// change they describe and are never modified.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/utils"
)

// ListAuditResponse contains a page of audit entries and pagination metadata.
type ListAuditResponse struct {
	Entries    []domain.AuditLog `json:"entries"`
	Pagination Pagination        `json:"pagination"`
}

// ListAudit godoc
// @ID          listAudit
// @Summary     List rule changes (paginated)
// @Description Returns the caller's audit trail, newest first. Details hold the operation, dimension, key,
// @Description before/after state and, for cascades, the removed row counts.
// @Tags        Audit
// @Produce     json
//
// @Param       X-User-Email  header  string  true  "Mailbox owner"   example(me@inbox.com)
// @Param       page          query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size     query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListAuditResponse
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /audit [get]
func (h *Handlers) ListAudit(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.audit.List(c.Request.Context(), currentUser(c), utils.Offset(page, pageSize), pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListAuditResponse{
		Entries:    items,
		Pagination: newPagination(page, pageSize, total),
	})
}
