// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only AuditLog store. There
// is deliberately no update or delete function for audit rows.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/domain"
)

// RecordAudit appends entry. Pass the transaction handle of the mutation it
// describes so both commit or roll back together.
func RecordAudit(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(entry).Error
}

// CountAudit returns the number of audit rows of userEmail.
func CountAudit(ctx context.Context, db *gorm.DB, userEmail string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Where("user_email = ?", userEmail).
		Count(&total).Error
	return total, err
}

// ListAuditPage returns audit rows of userEmail, newest first.
func ListAuditPage(ctx context.Context, db *gorm.DB, userEmail string, offset, limit int) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := db.WithContext(ctx).
		Where("user_email = ?", userEmail).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
