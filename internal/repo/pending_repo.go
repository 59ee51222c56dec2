// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PendingEmail model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mail-triage/internal/domain"
)

// InsertPendingEmails stores a batch, skipping messages already known for
// the same (user_email, message_id). It returns the number of new rows.
func InsertPendingEmails(ctx context.Context, db *gorm.DB, batch []domain.PendingEmail) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
		if batch[i].CreatedAt.IsZero() {
			batch[i].CreatedAt = now
		}
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&batch, 200)
	return res.RowsAffected, res.Error
}

// ListPendingEmails returns the full batch of userEmail ordered by email
// date, then id.
func ListPendingEmails(ctx context.Context, db *gorm.DB, userEmail string) ([]domain.PendingEmail, error) {
	var out []domain.PendingEmail
	err := db.WithContext(ctx).
		Where("user_email = ?", userEmail).
		Order("email_date ASC, id ASC").
		Find(&out).Error
	return out, err
}

func pendingScope(ctx context.Context, db *gorm.DB, userEmail string, action *domain.Action) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.PendingEmail{}).Where("user_email = ?", userEmail)
	if action != nil {
		q = q.Where("action = ?", *action)
	}
	return q
}

// CountPendingEmails returns how many pending emails userEmail has,
// optionally restricted to one decided action.
func CountPendingEmails(ctx context.Context, db *gorm.DB, userEmail string, action *domain.Action) (int64, error) {
	var total int64
	err := pendingScope(ctx, db, userEmail, action).Count(&total).Error
	return total, err
}

// ListPendingPage returns a page of pending emails, newest first.
func ListPendingPage(ctx context.Context, db *gorm.DB, userEmail string, action *domain.Action, offset, limit int) ([]domain.PendingEmail, error) {
	var out []domain.PendingEmail
	err := pendingScope(ctx, db, userEmail, action).
		Order("email_date DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ResetPendingActions clears every decision of userEmail.
func ResetPendingActions(ctx context.Context, db *gorm.DB, userEmail string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.PendingEmail{}).
		Where("user_email = ?", userEmail).
		Updates(map[string]any{
			"action":        nil,
			"matched_level": nil,
			"matched_rule":  nil,
		})
	return res.RowsAffected, res.Error
}

// SaveDecisions writes action and matched-rule fields back for each email.
// Rows owned by another user are silently skipped.
func SaveDecisions(ctx context.Context, db *gorm.DB, emails []domain.PendingEmail) error {
	for _, e := range emails {
		err := db.WithContext(ctx).
			Model(&domain.PendingEmail{}).
			Where("id = ? AND user_email = ?", e.ID, e.UserEmail).
			Updates(map[string]any{
				"action":        e.Action,
				"matched_level": e.MatchedLevel,
				"matched_rule":  e.MatchedRule,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// ListPendingUsers returns the distinct owners of pending emails.
func ListPendingUsers(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.PendingEmail{}).
		Distinct("user_email").
		Order("user_email ASC").
		Pluck("user_email", &out).Error
	return out, err
}
