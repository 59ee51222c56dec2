// Package domain defines the persistence models for triage rules, pending
// emails and the audit trail. These types are mapped with GORM and shared by
// the repository, evaluator and service layers.
//
// Every row carries the owning user's address; no query may cross users.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Criteria is a node of the two-level rule hierarchy: a primary domain, one
// of its subdomains, or an exact sender address.
//
// Fields:
//   - KeyValue: the domain, subdomain or address, lower-cased.
//   - KeyType: domain, subdomain or email.
//   - ParentID: set only for subdomain rows; references the domain row whose
//     KeyValue equals the subdomain's primary domain.
//   - DefaultAction: optional action applied when no finer rule fires.
//   - UserEmail: owner.
type Criteria struct {
	ID            uint64    `json:"id"                       gorm:"primaryKey;autoIncrement"`
	KeyValue      string    `json:"key_value"                gorm:"type:varchar(320);not null;uniqueIndex:ux_criteria_key,priority:1"`
	KeyType       KeyType   `json:"key_type"                 gorm:"type:varchar(16);not null;uniqueIndex:ux_criteria_key,priority:2;check:key_type IN ('domain','subdomain','email')"`
	ParentID      *uint64   `json:"parent_id,omitempty"      gorm:"index"`
	DefaultAction *Action   `json:"default_action,omitempty" gorm:"type:varchar(16)"`
	UserEmail     string    `json:"user_email"               gorm:"type:varchar(320);not null;uniqueIndex:ux_criteria_key,priority:3;index:idx_criteria_user"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Criteria.
func (Criteria) TableName() string { return "criteria" }

// Pattern is a case-insensitive subject substring rule owned by a domain or
// subdomain entry. Pattern text is stored case-folded.
type Pattern struct {
	ID         uint64    `json:"id"          gorm:"primaryKey;autoIncrement"`
	CriteriaID uint64    `json:"criteria_id" gorm:"not null;uniqueIndex:ux_pattern_criteria,priority:1"`
	Pattern    string    `json:"pattern"     gorm:"type:varchar(255);not null;uniqueIndex:ux_pattern_criteria,priority:2"`
	Action     Action    `json:"action"      gorm:"type:varchar(16);not null;check:action IN ('keep','delete','delete_1d','delete_10d')"`
	UserEmail  string    `json:"user_email"  gorm:"type:varchar(320);not null;index:idx_patterns_user"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Pattern.
func (Pattern) TableName() string { return "patterns" }

// EmailPattern is an exact from/to address rule. CriteriaID always points at
// a domain-level entry, which only serves as an organizational anchor.
type EmailPattern struct {
	ID         uint64    `json:"id"          gorm:"primaryKey;autoIncrement"`
	CriteriaID uint64    `json:"criteria_id" gorm:"not null;uniqueIndex:ux_email_pattern,priority:1"`
	Direction  Direction `json:"direction"   gorm:"type:varchar(8);not null;uniqueIndex:ux_email_pattern,priority:2;check:direction IN ('from','to')"`
	Email      string    `json:"email"       gorm:"type:varchar(320);not null;uniqueIndex:ux_email_pattern,priority:3"`
	Action     Action    `json:"action"      gorm:"type:varchar(16);not null;check:action IN ('keep','delete')"`
	UserEmail  string    `json:"user_email"  gorm:"type:varchar(320);not null;index:idx_email_patterns_user"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for EmailPattern.
func (EmailPattern) TableName() string { return "email_patterns" }

// PendingEmail is one inbound message awaiting classification. Action,
// MatchedLevel and MatchedRule are written only by evaluation.
type PendingEmail struct {
	ID            string    `json:"id"                      gorm:"type:char(36);primaryKey"`
	UserEmail     string    `json:"user_email"              gorm:"type:varchar(320);not null;uniqueIndex:ux_pending_user_msg,priority:1"`
	MessageID     string    `json:"message_id"              gorm:"type:varchar(512);not null;uniqueIndex:ux_pending_user_msg,priority:2"`
	FromEmail     string    `json:"from_email"              gorm:"type:varchar(320);not null"`
	ToEmail       string    `json:"to_email"                gorm:"type:varchar(320);not null"`
	Subject       string    `json:"subject"                 gorm:"type:text;not null"`
	PrimaryDomain string    `json:"primary_domain"          gorm:"type:varchar(255);not null;index"`
	Subdomain     *string   `json:"subdomain,omitempty"     gorm:"type:varchar(255)"`
	EmailDate     time.Time `json:"email_date"              gorm:"index"`
	Action        *Action   `json:"action,omitempty"        gorm:"type:varchar(16);index"`
	MatchedLevel  *int      `json:"matched_level,omitempty"`
	MatchedRule   *string   `json:"matched_rule,omitempty"  gorm:"type:varchar(512)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for PendingEmail.
func (PendingEmail) TableName() string { return "pending_emails" }

// AuditLog is an immutable record of one committed rule mutation.
//
// TargetTable maps to the table_name column; a field called TableName would
// shadow GORM's tabler method.
type AuditLog struct {
	ID          uint64         `json:"id"          gorm:"primaryKey;autoIncrement"`
	UserEmail   string         `json:"user_email"  gorm:"type:varchar(320);not null;index:idx_audit_user_created,priority:1"`
	ActionType  AuditAction    `json:"action_type" gorm:"type:varchar(8);not null;check:action_type IN ('INSERT','UPDATE','DELETE')"`
	TargetTable string         `json:"table_name"  gorm:"column:table_name;type:varchar(32);not null"`
	RecordID    uint64         `json:"record_id"`
	Domain      string         `json:"domain"      gorm:"type:varchar(320)"`
	Details     datatypes.JSON `json:"details"`
	CreatedAt   time.Time      `json:"created_at"  gorm:"index:idx_audit_user_created,priority:2"`
}

// TableName returns the database table name for AuditLog.
func (AuditLog) TableName() string { return "audit_log" }

// RuleSet is the complete rule state of one user, as loaded for evaluation
// and cached between mutations. Version is the newest audit id seen when the
// state was read; a cached snapshot is only valid while it still matches.
type RuleSet struct {
	UserEmail     string         `json:"user_email"`
	Version       uint64         `json:"version"`
	Criteria      []Criteria     `json:"criteria"`
	Patterns      []Pattern      `json:"patterns"`
	EmailPatterns []EmailPattern `json:"email_patterns"`
}
