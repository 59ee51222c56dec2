// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/domain"
)

// tableStats returns the row count and latest updated_at of the rows
// selected by scope. scope is called once per query so statements are never
// shared between Count and Scan.
func tableStats(scope func() *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = scope().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = scope().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// PendingStats returns the number of pending emails of userEmail and the
// greatest UpdatedAt among them. maxUpdatedAt is nil when there are none.
func PendingStats(ctx context.Context, db *gorm.DB, userEmail string) (count int64, maxUpdatedAt *time.Time, err error) {
	return tableStats(func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.PendingEmail{}).Where("user_email = ?", userEmail)
	})
}

// RulesVersion returns the id of the newest audit row of userEmail, or 0
// when the user never changed a rule. Every committed rule mutation writes
// an audit row, so the value changes whenever the rule set does.
func RulesVersion(ctx context.Context, db *gorm.DB, userEmail string) (uint64, error) {
	var ids []uint64
	err := db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Where("user_email = ?", userEmail).
		Order("id DESC").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return ids[0], nil
}
