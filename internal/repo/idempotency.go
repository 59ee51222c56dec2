package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/domain"
)

// ErrDuplicate is returned by SaveReplay when a live response is already
// stored under the same ReplayKey.
var ErrDuplicate = errors.New("duplicate")

// ReplayKey identifies a stored response: the mailbox, the route template
// and the client's Idempotency-Key.
type ReplayKey struct {
	User  string
	Route string
	Key   string
}

func (k ReplayKey) blank() bool {
	return strings.TrimSpace(k.Route) == "" || strings.TrimSpace(k.Key) == ""
}

func (k ReplayKey) scope(db *gorm.DB) *gorm.DB {
	return db.Where("user_email = ? AND route = ? AND idem_key = ?", k.User, k.Route, k.Key)
}

// FindReplay returns the response stored under k that is still live at now,
// or ErrNotFound.
func FindReplay(ctx context.Context, db *gorm.DB, k ReplayKey, now time.Time) (*domain.Idempotency, error) {
	if k.blank() {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := k.scope(db.WithContext(ctx)).Where("expires_at > ?", now).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

// SaveReplay stores status and body under k until now+ttl. An expired row
// for k that the purge has not reached yet is replaced.
func SaveReplay(ctx context.Context, db *gorm.DB, k ReplayKey, status int, body []byte, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	if k.blank() {
		return nil, errors.New("idempotency: route and key are required")
	}
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserEmail: k.User,
		Route:     k.Route,
		Key:       k.Key,
		Status:    status,
		Body:      datatypes.JSON(body),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := k.scope(tx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if IsDuplicate(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredReplays deletes every response that expired at or before now.
func PurgeExpiredReplays(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
