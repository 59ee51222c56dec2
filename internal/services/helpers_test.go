package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/repo"
)

const me = "me@inbox.com"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func countRows(t *testing.T, db *gorm.DB, model any, user string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where("user_email = ?", user).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

func auditRows(t *testing.T, db *gorm.DB, user string) []domain.AuditLog {
	t.Helper()
	var out []domain.AuditLog
	if err := db.Where("user_email = ?", user).Order("id ASC").Find(&out).Error; err != nil {
		t.Fatalf("list audit: %v", err)
	}
	return out
}

func detailsOf(t *testing.T, e domain.AuditLog) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(e.Details, &m); err != nil {
		t.Fatalf("audit details: %v", err)
	}
	return m
}

func mustModify(t *testing.T, svc *RuleService, req ModifyRequest) *ModifyResult {
	t.Helper()
	if req.UserEmail == "" {
		req.UserEmail = me
	}
	res, err := svc.Modify(context.Background(), req)
	if err != nil || !res.Success {
		t.Fatalf("Modify(%+v) = %+v, %v", req, res, err)
	}
	return res
}

// memCache is an in-process RuleSetCache that records its calls.
type memCache struct {
	mu          sync.Mutex
	sets        map[string]domain.RuleSet
	gets        int
	invalidated []string
}

func newMemCache() *memCache { return &memCache{sets: map[string]domain.RuleSet{}} }

func (c *memCache) Get(_ context.Context, user string) (*domain.RuleSet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	rs, ok := c.sets[user]
	if !ok {
		return nil, false, nil
	}
	return &rs, true, nil
}

func (c *memCache) Set(_ context.Context, rs domain.RuleSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[rs.UserEmail] = rs
	return nil
}

func (c *memCache) Invalidate(_ context.Context, user string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, user)
	c.invalidated = append(c.invalidated, user)
	return nil
}
