// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Criteria
// model (domain, subdomain and exact-address rule nodes).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
// Every query is scoped by user_email; a row owned by someone else is
// indistinguishable from a missing row.
//
// Error semantics:
//   - When a row is not found, functions return ErrNotFound.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mail-triage/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindCriteria fetches the entry identified by its unique key.
func FindCriteria(ctx context.Context, db *gorm.DB, userEmail, key string, kt domain.KeyType) (*domain.Criteria, error) {
	var c domain.Criteria
	err := db.WithContext(ctx).
		Where("user_email = ? AND key_value = ? AND key_type = ?", userEmail, key, kt).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// EnsureCriteria inserts c unless a row with the same (key_value, key_type,
// user_email) exists, then returns the stored row. created reports whether
// this call inserted it. Concurrent callers converge on the same row.
func EnsureCriteria(ctx context.Context, db *gorm.DB, c domain.Criteria) (row *domain.Criteria, created bool, err error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&c)
	if res.Error != nil {
		return nil, false, res.Error
	}
	row, err = FindCriteria(ctx, db, c.UserEmail, c.KeyValue, c.KeyType)
	if err != nil {
		return nil, false, err
	}
	return row, res.RowsAffected == 1, nil
}

// SetDefaultAction replaces the default action of an entry; nil clears it.
// Returns ErrNotFound when no owned row matches.
func SetDefaultAction(ctx context.Context, db *gorm.DB, userEmail string, id uint64, action *domain.Action) error {
	res := db.WithContext(ctx).
		Model(&domain.Criteria{}).
		Where("id = ? AND user_email = ?", id, userEmail).
		Update("default_action", action)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSubdomains returns the subdomain entries whose parent is parentID,
// ordered by key.
func ListSubdomains(ctx context.Context, db *gorm.DB, userEmail string, parentID uint64) ([]domain.Criteria, error) {
	var out []domain.Criteria
	err := db.WithContext(ctx).
		Where("user_email = ? AND parent_id = ? AND key_type = ?", userEmail, parentID, domain.KeySubdomain).
		Order("key_value ASC").
		Find(&out).Error
	return out, err
}

// ListCriteria returns every entry owned by userEmail in id order.
func ListCriteria(ctx context.Context, db *gorm.DB, userEmail string) ([]domain.Criteria, error) {
	var out []domain.Criteria
	err := db.WithContext(ctx).
		Where("user_email = ?", userEmail).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// DeleteCriteria removes the given owned entries and returns the number of
// rows deleted. Child rows are not touched.
func DeleteCriteria(ctx context.Context, db *gorm.DB, userEmail string, ids ...uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("user_email = ? AND id IN ?", userEmail, ids).
		Delete(&domain.Criteria{})
	return res.RowsAffected, res.Error
}

// IsNotFound reports whether err means "no such row".
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// SetCriteriaParent re-links a subdomain entry to parentID.
func SetCriteriaParent(ctx context.Context, db *gorm.DB, userEmail string, id, parentID uint64) error {
	res := db.WithContext(ctx).
		Model(&domain.Criteria{}).
		Where("id = ? AND user_email = ?", id, userEmail).
		Update("parent_id", parentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
