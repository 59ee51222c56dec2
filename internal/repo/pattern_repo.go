// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for subject
// patterns and from/to email patterns.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mail-triage/internal/domain"
)

// FindPattern fetches the pattern on criteriaID with the given text.
func FindPattern(ctx context.Context, db *gorm.DB, userEmail string, criteriaID uint64, text string) (*domain.Pattern, error) {
	var p domain.Pattern
	err := db.WithContext(ctx).
		Where("user_email = ? AND criteria_id = ? AND pattern = ?", userEmail, criteriaID, text).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsurePattern inserts p unless (criteria_id, pattern) exists and returns
// the stored row. The stored action is left as is on conflict.
func EnsurePattern(ctx context.Context, db *gorm.DB, p domain.Pattern) (row *domain.Pattern, created bool, err error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&p)
	if res.Error != nil {
		return nil, false, res.Error
	}
	row, err = FindPattern(ctx, db, p.UserEmail, p.CriteriaID, p.Pattern)
	if err != nil {
		return nil, false, err
	}
	return row, res.RowsAffected == 1, nil
}

// UpdatePatternAction sets the action of an owned pattern.
func UpdatePatternAction(ctx context.Context, db *gorm.DB, userEmail string, id uint64, action domain.Action) error {
	res := db.WithContext(ctx).
		Model(&domain.Pattern{}).
		Where("id = ? AND user_email = ?", id, userEmail).
		Update("action", action)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPatterns returns the owned patterns attached to any of criteriaIDs, or
// all of the user's patterns when criteriaIDs is empty. Ordered by id.
func ListPatterns(ctx context.Context, db *gorm.DB, userEmail string, criteriaIDs ...uint64) ([]domain.Pattern, error) {
	var out []domain.Pattern
	q := db.WithContext(ctx).Where("user_email = ?", userEmail)
	if len(criteriaIDs) > 0 {
		q = q.Where("criteria_id IN ?", criteriaIDs)
	}
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

// CountPatternsByCriteria returns pattern counts keyed by criteria id.
func CountPatternsByCriteria(ctx context.Context, db *gorm.DB, userEmail string, criteriaIDs ...uint64) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(criteriaIDs))
	if len(criteriaIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		CriteriaID uint64
		N          int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Pattern{}).
		Select("criteria_id, COUNT(*) AS n").
		Where("user_email = ? AND criteria_id IN ?", userEmail, criteriaIDs).
		Group("criteria_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.CriteriaID] = r.N
	}
	return out, nil
}

// DeletePatterns removes owned patterns by id.
func DeletePatterns(ctx context.Context, db *gorm.DB, userEmail string, ids ...uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("user_email = ? AND id IN ?", userEmail, ids).
		Delete(&domain.Pattern{})
	return res.RowsAffected, res.Error
}

// FindEmailPattern fetches an address rule by its unique key.
func FindEmailPattern(ctx context.Context, db *gorm.DB, userEmail string, criteriaID uint64, dir domain.Direction, email string) (*domain.EmailPattern, error) {
	var ep domain.EmailPattern
	err := db.WithContext(ctx).
		Where("user_email = ? AND criteria_id = ? AND direction = ? AND email = ?", userEmail, criteriaID, dir, email).
		First(&ep).Error
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// EnsureEmailPattern inserts ep unless (criteria_id, direction, email)
// exists and returns the stored row.
func EnsureEmailPattern(ctx context.Context, db *gorm.DB, ep domain.EmailPattern) (row *domain.EmailPattern, created bool, err error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ep)
	if res.Error != nil {
		return nil, false, res.Error
	}
	row, err = FindEmailPattern(ctx, db, ep.UserEmail, ep.CriteriaID, ep.Direction, ep.Email)
	if err != nil {
		return nil, false, err
	}
	return row, res.RowsAffected == 1, nil
}

// UpdateEmailPatternAction sets the action of an owned address rule.
func UpdateEmailPatternAction(ctx context.Context, db *gorm.DB, userEmail string, id uint64, action domain.Action) error {
	res := db.WithContext(ctx).
		Model(&domain.EmailPattern{}).
		Where("id = ? AND user_email = ?", id, userEmail).
		Update("action", action)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEmailPatterns returns owned address rules anchored on any of
// criteriaIDs (all of them when empty), optionally filtered by direction.
func ListEmailPatterns(ctx context.Context, db *gorm.DB, userEmail string, dir domain.Direction, criteriaIDs ...uint64) ([]domain.EmailPattern, error) {
	var out []domain.EmailPattern
	q := db.WithContext(ctx).Where("user_email = ?", userEmail)
	if dir != "" {
		q = q.Where("direction = ?", dir)
	}
	if len(criteriaIDs) > 0 {
		q = q.Where("criteria_id IN ?", criteriaIDs)
	}
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

// DeleteEmailPatterns removes owned address rules by id.
func DeleteEmailPatterns(ctx context.Context, db *gorm.DB, userEmail string, ids ...uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("user_email = ? AND id IN ?", userEmail, ids).
		Delete(&domain.EmailPattern{})
	return res.RowsAffected, res.Error
}

// LoadRuleSet reads the complete rule state of userEmail. The version is
// read first, so a mutation committing mid-read leaves the snapshot stamped
// older than its content and never the reverse.
func LoadRuleSet(ctx context.Context, db *gorm.DB, userEmail string) (domain.RuleSet, error) {
	rs := domain.RuleSet{UserEmail: userEmail}
	var err error
	if rs.Version, err = RulesVersion(ctx, db, userEmail); err != nil {
		return rs, err
	}
	if rs.Criteria, err = ListCriteria(ctx, db, userEmail); err != nil {
		return rs, err
	}
	if rs.Patterns, err = ListPatterns(ctx, db, userEmail); err != nil {
		return rs, err
	}
	if rs.EmailPatterns, err = ListEmailPatterns(ctx, db, userEmail, ""); err != nil {
		return rs, err
	}
	return rs, nil
}
