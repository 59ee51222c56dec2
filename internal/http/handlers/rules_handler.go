// Rule HTTP handlers.
//
// This file exposes REST endpoints for the rule store:
//   - POST /criteria/modify            (rule change described by an observed message)
//   - POST /rules                      (low-level rule change)
//   - GET  /rules/{dimension}[/{key}]  (rule lookup, ETag support)
//
// Idempotency:
// If the client supplies an Idempotency-Key header on POST /criteria/modify
// and a previous successful result exists for (user, route, key), the handler
// returns the recorded body unchanged and sets `Idempotency-Replayed: true`.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-mail-triage/internal/http/middleware"
	"github.com/tbourn/go-mail-triage/internal/repo"
	"github.com/tbourn/go-mail-triage/internal/services"
)

// HeaderIdempotencyReplayed marks a response served from the idempotency store.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// RuleErrorResponse is the envelope of a failed rule operation. It carries
// the service outcome verbatim next to the request correlation id.
type RuleErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Success   bool   `json:"success" example:"false"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"Rule not found"`
}

// writeModify renders a ModifyResult, mapping failures to 400/404/500.
func writeModify(c *gin.Context, res *services.ModifyResult, err error) {
	if err == nil && res != nil {
		ok(c, http.StatusOK, res)
		return
	}
	code, msg := services.CodeOf(err), ""
	if res != nil {
		code, msg = res.Code, res.Message
	} else if err != nil {
		msg = err.Error()
	}
	status := statusOf(code)
	if status >= http.StatusInternalServerError {
		msg = publicMessage(c, err, status)
	}
	c.AbortWithStatusJSON(status, RuleErrorResponse{
		RequestID: requestID(c),
		Code:      string(code),
		Message:   msg,
	})
}

// replay serves a stored response for the validated Idempotency-Key, if any.
func (h *Handlers) replay(c *gin.Context, user, key string) bool {
	if h.db == nil || key == "" {
		return false
	}
	rec, err := repo.FindReplay(c.Request.Context(), h.db, repo.ReplayKey{User: user, Route: c.FullPath(), Key: key}, time.Now().UTC())
	if err != nil {
		return false
	}
	c.Header(HeaderIdempotencyReplayed, "true")
	c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
	return true
}

// remember stores a successful response under the Idempotency-Key (best effort).
func (h *Handlers) remember(c *gin.Context, user, key string, status int, body any) {
	if h.db == nil || key == "" {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	k := repo.ReplayKey{User: user, Route: c.FullPath(), Key: key}
	_, err = repo.SaveReplay(c.Request.Context(), h.db, k, status, raw, time.Now().UTC(), h.idemTTL)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Msg("idempotency record not stored")
	}
}

// ModifyCriteria godoc
// @ID          modifyCriteria
// @Summary     Change a rule from an observed message
// @Description Classifies the sender (and recipient) of a message and applies ADD, REMOVE, UPDATE, CLEAR or GET
// @Description at the requested level (domain, subdomain, from_email, to_email). A subdomain rule creates the
// @Description parent domain first. Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Rules
// @Accept      json
// @Produce     json
//
// @Param       X-User-Email     header  string  true  "Mailbox owner"  example(me@inbox.com)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    services.CriteriaRequest  true  "Observed message and intent"
//
// @Success     200  {object}  services.ModifyResult        "Operation result"
// @Header      200  {string}  Idempotency-Replayed         "true when served from the idempotency store"
// @Failure     400  {object}  handlers.RuleErrorResponse   "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse       "Missing identity"
// @Failure     404  {object}  handlers.RuleErrorResponse   "Rule not found"
// @Failure     500  {object}  handlers.RuleErrorResponse   "Storage failure"
// @Router      /criteria/modify [post]
func (h *Handlers) ModifyCriteria(c *gin.Context) {
	user := currentUser(c)
	key, _ := middleware.GetIdempotencyKey(c)
	if h.replay(c, user, key) {
		return
	}

	var req services.CriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	req.UserEmail = user

	res, err := h.rules.ModifyCriteria(c.Request.Context(), req)
	if err != nil {
		writeModify(c, res, err)
		return
	}
	h.remember(c, user, key, http.StatusOK, res)
	ok(c, http.StatusOK, res)
}

// ModifyRule godoc
// @ID          modifyRule
// @Summary     Apply a low-level rule operation
// @Description Applies ADD, REMOVE, UPDATE, CLEAR or GET on one dimension (domain, subdomain, email,
// @Description from_email, to_email, subject). The key type is always derived from the key itself.
// @Tags        Rules
// @Accept      json
// @Produce     json
//
// @Param       X-User-Email  header  string  true  "Mailbox owner"  example(me@inbox.com)
// @Param       body          body    services.ModifyRequest  true  "Rule operation"
//
// @Success     200  {object}  services.ModifyResult       "Operation result"
// @Failure     400  {object}  handlers.RuleErrorResponse  "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse      "Missing identity"
// @Failure     404  {object}  handlers.RuleErrorResponse  "Rule not found"
// @Failure     500  {object}  handlers.RuleErrorResponse  "Storage failure"
// @Router      /rules [post]
func (h *Handlers) ModifyRule(c *gin.Context) {
	var req services.ModifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	req.UserEmail = currentUser(c)

	res, err := h.rules.Modify(c.Request.Context(), req)
	writeModify(c, res, err)
}

// GetRule godoc
// @ID          getRule
// @Summary     Look up a rule
// @Description Returns the rule entry for a key with its patterns. A domain also lists its subdomains and
// @Description address rules. Subject lookups name their owner with parent_domain / parent_subdomain; without
// @Description a key every pattern of the owner is returned. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Rules
// @Produce     json
//
// @Param       X-User-Email      header  string  true  "Mailbox owner"               example(me@inbox.com)
// @Param       If-None-Match     header  string  false "Return 304 if ETag matches"  example(W/\"rules-abc-12\")
// @Param       dimension         path    string  true  "Rule dimension"              Enums(domain,subdomain,email,from_email,to_email,subject)
// @Param       key               path    string  false "Rule key"                    example(example.com)
// @Param       parent_domain     query   string  false "Owner domain for subject lookups"
// @Param       parent_subdomain  query   string  false "Owner subdomain for subject lookups"
//
// @Success     200  {object}  services.ModifyResult
// @Header      200  {string}  ETag  "Weak ETag for the user's current rule version"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.RuleErrorResponse  "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse      "Missing identity"
// @Failure     404  {object}  handlers.RuleErrorResponse  "Rule not found"
// @Failure     500  {object}  handlers.RuleErrorResponse  "Storage failure"
// @Router      /rules/{dimension}/{key} [get]
func (h *Handlers) GetRule(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)
	req := services.ModifyRequest{
		Operation:       "GET",
		Dimension:       c.Param("dimension"),
		KeyValue:        strings.TrimSpace(c.Param("key")),
		UserEmail:       user,
		ParentDomain:    c.Query("parent_domain"),
		ParentSubdomain: c.Query("parent_subdomain"),
	}

	// The version is read before the lookup, so a concurrent mutation can
	// only make the ETag older than the body. Any committed mutation bumps it.
	var etag string
	if h.db != nil {
		if version, err := repo.RulesVersion(ctx, h.db, user); err == nil {
			etag = fmt.Sprintf(`W/"rules-%s-%d"`, lookupID(user, req), version)
		}
	}

	res, err := h.rules.Modify(ctx, req)
	if err != nil || res == nil || !res.Success {
		writeModify(c, res, err)
		return
	}
	if etag != "" {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}
	writeModify(c, res, nil)
}

// lookupID names one lookup without exposing its addresses in headers.
func lookupID(user string, req services.ModifyRequest) string {
	name := strings.ToLower(strings.Join([]string{user, req.Dimension, req.KeyValue, req.ParentDomain, req.ParentSubdomain}, "\x00"))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()[:8]
}
