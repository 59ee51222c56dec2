package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/http/middleware"
	"github.com/tbourn/go-mail-triage/internal/repo"
	"github.com/tbourn/go-mail-triage/internal/services"
)

// stubRules lets a test force any RuleService outcome.
type stubRules struct {
	res *services.ModifyResult
	err error
}

func (s stubRules) Modify(context.Context, services.ModifyRequest) (*services.ModifyResult, error) {
	return s.res, s.err
}

func (s stubRules) ModifyCriteria(context.Context, services.CriteriaRequest) (*services.ModifyResult, error) {
	return s.res, s.err
}

func TestModifyCriteria_SuccessAndIdempotentReplay(t *testing.T) {
	db := newHandlersDB(t)
	r := newTestRouter(newRealHandlers(db))
	body := map[string]any{
		"operation":  "ADD",
		"action":     "delete",
		"from_email": "noreply@custcomm.icicibank.com",
		"level":      "subdomain",
	}

	first := request(r, http.MethodPost, "/criteria/modify", body, middleware.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	res := decode[services.ModifyResult](t, first)
	assert.True(t, res.Success)
	assert.Equal(t, services.CodeOK, res.Code)
	require.NotNil(t, res.AuditID)
	assert.Empty(t, first.Header().Get(HeaderIdempotencyReplayed))

	// Same key: stored body comes back verbatim and nothing is re-applied.
	second := request(r, http.MethodPost, "/criteria/modify", body, middleware.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderIdempotencyReplayed))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	var n int64
	require.NoError(t, db.Model(&domain.AuditLog{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// Without a key the same request is a no-op ADD: success, no audit.
	third := request(r, http.MethodPost, "/criteria/modify", body)
	require.Equal(t, http.StatusOK, third.Code)
	res = decode[services.ModifyResult](t, third)
	assert.True(t, res.Success)
	assert.Nil(t, res.AuditID)
}

func TestModifyCriteria_BadInput(t *testing.T) {
	db := newHandlersDB(t)
	r := newTestRouter(newRealHandlers(db))

	w := request(r, http.MethodPost, "/criteria/modify", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeBadRequest, decode[ErrorResponse](t, w).Code)

	// A subdomain rule for a sender without a subdomain is a validation error,
	// and failures are never remembered under the key.
	body := map[string]any{"operation": "ADD", "action": "delete", "from_email": "a@example.com", "level": "subdomain"}
	w = request(r, http.MethodPost, "/criteria/modify", body, middleware.HeaderIdempotencyKey, "k-bad")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	e := decode[RuleErrorResponse](t, w)
	assert.False(t, e.Success)
	assert.Equal(t, string(services.CodeValidation), e.Code)
	assert.NotEmpty(t, e.RequestID)

	var n int64
	require.NoError(t, db.Model(&domain.Idempotency{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestModifyRule_ValidationAndNotFound(t *testing.T) {
	r := newTestRouter(newRealHandlers(newHandlersDB(t)))

	w := request(r, http.MethodPost, "/rules", map[string]any{
		"operation": "ADD", "dimension": "planet", "action": "keep", "key_value": "example.com",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(services.CodeValidation), decode[RuleErrorResponse](t, w).Code)

	w = request(r, http.MethodPost, "/rules", map[string]any{
		"operation": "UPDATE", "dimension": "domain", "action": "keep", "key_value": "missing.com",
	})
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	e := decode[RuleErrorResponse](t, w)
	assert.Equal(t, string(services.CodeNotFound), e.Code)
	assert.Equal(t, "Rule not found", e.Message)
}

func TestModifyRule_StorageFailureHidesDetails(t *testing.T) {
	boom := fmt.Errorf("%w: disk on fire", services.ErrPersistence)
	h := New(stubRules{
		res: &services.ModifyResult{Success: false, Code: services.CodePersistence, Message: boom.Error()},
		err: boom,
	}, nil, nil, nil, nil, 0)
	r := newTestRouter(h)

	w := request(r, http.MethodPost, "/rules", map[string]any{"operation": "CLEAR", "dimension": "domain", "key_value": "x.com"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	e := decode[RuleErrorResponse](t, w)
	assert.Equal(t, string(services.CodePersistence), e.Code)
	assert.Equal(t, "storage failure", e.Message)
}

func TestGetRule_ETagAndNotModified(t *testing.T) {
	db := newHandlersDB(t)
	r := newTestRouter(newRealHandlers(db))

	w := request(r, http.MethodGet, "/rules/domain/example.com", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("ETag"), "a missing rule has no representation to tag")

	w = request(r, http.MethodPost, "/rules", map[string]any{
		"operation": "ADD", "dimension": "domain", "action": "delete", "key_value": "Example.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(r, http.MethodGet, "/rules/domain/example.com", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[services.ModifyResult](t, w)
	require.NotNil(t, res.Data)
	require.NotNil(t, res.Data.Entry)
	assert.Equal(t, "example.com", res.Data.Entry.KeyValue)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.NotContains(t, etag, "example.com")
	assert.NotContains(t, etag, me)

	w = request(r, http.MethodGet, "/rules/domain/example.com", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	// A subject pattern under the domain bumps the version.
	w = request(r, http.MethodPost, "/rules", map[string]any{
		"operation": "ADD", "dimension": "subject", "action": "keep",
		"key_value": "Invoice", "parent_domain": "example.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(r, http.MethodGet, "/rules/domain/example.com", nil, "If-None-Match", etag)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))
	res = decode[services.ModifyResult](t, w)
	require.Len(t, res.Data.Patterns, 1)
	assert.Equal(t, "invoice", res.Data.Patterns[0].Pattern)

	// A validator naming the current version never turns a missing rule
	// into 304.
	version, err := repo.RulesVersion(context.Background(), db, me)
	require.NoError(t, err)
	missing := fmt.Sprintf(`W/"rules-%s-%d"`, lookupID(me, services.ModifyRequest{Dimension: "domain", KeyValue: "missing.com"}), version)
	w = request(r, http.MethodGet, "/rules/domain/missing.com", nil, "If-None-Match", missing)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("ETag"))

	// Subject listing by owner, without a key.
	w = request(r, http.MethodGet, "/rules/subject?parent_domain=example.com", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func Test_lookupID_StableAndDistinct(t *testing.T) {
	a := lookupID(me, services.ModifyRequest{Dimension: "domain", KeyValue: "example.com"})
	b := lookupID(me, services.ModifyRequest{Dimension: "domain", KeyValue: "EXAMPLE.com"})
	c := lookupID(me, services.ModifyRequest{Dimension: "subdomain", KeyValue: "example.com"})
	d := lookupID("other@inbox.com", services.ModifyRequest{Dimension: "domain", KeyValue: "example.com"})

	assert.Len(t, a, 8)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}
