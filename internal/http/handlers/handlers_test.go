package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-mail-triage/internal/http/middleware"
	"github.com/tbourn/go-mail-triage/internal/repo"
	"github.com/tbourn/go-mail-triage/internal/services"
)

const me = "me@inbox.com"

// ---------- test DB + wiring ----------

func newHandlersDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newRealHandlers wires Handlers to real services over db.
func newRealHandlers(db *gorm.DB) *Handlers {
	return New(
		services.NewRuleService(db, nil),
		&services.PendingService{DB: db},
		&services.EvaluationService{DB: db},
		&services.AuditService{DB: db},
		db,
		time.Hour,
	)
}

// newTestRouter mounts h behind the same per-request middleware the API uses.
func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identity(), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.POST("/criteria/modify", h.ModifyCriteria)
	r.POST("/rules", h.ModifyRule)
	r.GET("/rules/:dimension", h.GetRule)
	r.GET("/rules/:dimension/:key", h.GetRule)
	r.POST("/emails", h.IngestEmails)
	r.POST("/emails/raw", h.IngestRawEmail)
	r.GET("/emails", h.ListEmails)
	r.POST("/emails/evaluate", h.EvaluateEmails)
	r.GET("/audit", h.ListAudit)
	return r
}

// request performs method path as me with an optional JSON or raw string body.
func request(r *gin.Engine, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if _, raw := body.(string); body != nil && !raw {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.HeaderUserEmail, me)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v; body=%s", err, w.Body.String())
	}
	return v
}

// ---------- pagination helpers ----------

func Test_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query      string
		page, size int
	}{
		{"", 1, 20},
		{"page=3&page_size=10", 3, 10},
		{"page=0&page_size=0", 1, 1},
		{"page=-4&page_size=500", 1, 100},
		{"page=x&page_size=y", 1, 20},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
		page, size := clampPagination(c)
		if page != tc.page || size != tc.size {
			t.Fatalf("%q: got (%d,%d) want (%d,%d)", tc.query, page, size, tc.page, tc.size)
		}
	}
}

func Test_newPagination(t *testing.T) {
	p := newPagination(2, 10, 25)
	if p.TotalPages != 3 || !p.HasNext || p.Total != 25 {
		t.Fatalf("unexpected: %+v", p)
	}
	p = newPagination(3, 10, 25)
	if p.HasNext {
		t.Fatalf("last page must not have next: %+v", p)
	}
	p = newPagination(1, 20, 0)
	if p.TotalPages != 0 || p.HasNext {
		t.Fatalf("empty: %+v", p)
	}
}

func Test_New_DefaultsIdempotencyTTL(t *testing.T) {
	h := New(nil, nil, nil, nil, nil, 0)
	if h.idemTTL != 24*time.Hour {
		t.Fatalf("idemTTL=%v", h.idemTTL)
	}
}
