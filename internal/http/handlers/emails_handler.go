// Pending email HTTP handlers.
//
// This file exposes REST endpoints for messages awaiting classification:
//   - POST /emails           (ingest a JSON batch)
//   - POST /emails/raw       (ingest one RFC 5322 message)
//   - GET  /emails           (list, paginated, ETag support)
//   - POST /emails/evaluate  (classify every pending message of the caller)
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/ingest"
	"github.com/tbourn/go-mail-triage/internal/repo"
	"github.com/tbourn/go-mail-triage/internal/utils"
)

//
// DTOs
//

// EmailInput is one observed message in an ingestion batch.
type EmailInput struct {
	// MessageID deduplicates re-ingestion; a digest is used when empty.
	MessageID string `json:"message_id" example:"<w1@icicibank.com>"`
	// From is the sender address. It must be valid.
	From string `json:"from" binding:"required" example:"noreply@custcomm.icicibank.com"`
	// To defaults to the mailbox owner.
	To      string    `json:"to" example:"me@inbox.com"`
	Subject string    `json:"subject" example:"Join our Webinar"`
	Date    time.Time `json:"date" example:"2025-06-01T10:00:00Z"`
}

// IngestEmailsRequest is the JSON payload of POST /emails.
type IngestEmailsRequest struct {
	Emails []EmailInput `json:"emails" binding:"required,dive"`
}

// ListEmailsResponse contains a page of pending emails and pagination metadata.
type ListEmailsResponse struct {
	Emails     []domain.PendingEmail `json:"emails"`
	Pagination Pagination            `json:"pagination"`
}

//
// Handlers
//

// IngestEmails godoc
// @ID          ingestEmails
// @Summary     Ingest pending emails
// @Description Stores a batch of observed messages for later evaluation. Invalid messages are reported per index
// @Description and do not fail the batch; messages already stored under the same message id are skipped.
// @Tags        Emails
// @Accept      json
// @Produce     json
//
// @Param       X-User-Email  header  string  true  "Mailbox owner"  example(me@inbox.com)
// @Param       body          body    handlers.IngestEmailsRequest  true  "Messages"
//
// @Success     200  {object}  services.IngestResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /emails [post]
func (h *Handlers) IngestEmails(c *gin.Context) {
	var req IngestEmailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	batch := make([]ingest.Fields, len(req.Emails))
	for i, e := range req.Emails {
		batch[i] = ingest.Fields{
			MessageID: e.MessageID,
			From:      e.From,
			To:        e.To,
			Subject:   e.Subject,
			Date:      e.Date,
		}
	}

	res, err := h.pending.Ingest(c.Request.Context(), currentUser(c), batch)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// IngestRawEmail godoc
// @ID          ingestRawEmail
// @Summary     Ingest one raw message
// @Description Parses the headers of an RFC 5322 message (From, To, Subject, Date, Message-ID) and stores it
// @Description as a pending email. The body is not retained.
// @Tags        Emails
// @Accept      plain
// @Produce     json
//
// @Param       X-User-Email  header  string  true  "Mailbox owner"  example(me@inbox.com)
// @Param       body          body    string  true  "message/rfc822 content"
//
// @Success     200  {object}  services.IngestResult
// @Failure     400  {object}  handlers.ErrorResponse  "Unparseable message or missing sender"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /emails/raw [post]
func (h *Handlers) IngestRawEmail(c *gin.Context) {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message body required")
		return
	}
	res, err := h.pending.IngestRaw(c.Request.Context(), currentUser(c), c.Request.Body)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListEmails godoc
// @ID          listEmails
// @Summary     List pending emails (paginated)
// @Description Returns a page of the caller's pending emails with their latest decision, newest first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Emails
// @Produce     json
//
// @Param       X-User-Email   header  string  true  "Mailbox owner"               example(me@inbox.com)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"emails:3:1717236000\")
// @Param       action         query   string  false "Only emails with this decision"  Enums(keep,delete,delete_1d,delete_10d,undecided)
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListEmailsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /emails [get]
func (h *Handlers) ListEmails(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)
	action := c.Query("action")
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if h.db != nil {
		count, maxTS, err := repo.PendingStats(ctx, h.db, user)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"emails:%s:%d:%d:%d:%d"`, action, page, pageSize, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.pending.List(ctx, user, action, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListEmailsResponse{
		Emails:     items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// EvaluateEmails godoc
// @ID          evaluateEmails
// @Summary     Evaluate pending emails
// @Description Resets and re-decides every pending email of the caller against the current rules and
// @Description returns the count per action. Running it twice without rule changes yields the same result.
// @Tags        Emails
// @Produce     json
//
// @Param       X-User-Email  header  string  true  "Mailbox owner"  example(me@inbox.com)
//
// @Success     200  {object}  services.EvaluationSummary
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /emails/evaluate [post]
func (h *Handlers) EvaluateEmails(c *gin.Context) {
	sum, err := h.eval.EvaluatePendingEmails(c.Request.Context(), currentUser(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}
