package services

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/repo"
)

// auditDetails is the JSON payload stored in audit_log.details.
type auditDetails struct {
	Operation   domain.Operation `json:"operation"`
	Dimension   domain.Dimension `json:"dimension"`
	Key         string           `json:"key,omitempty"`
	Before      any              `json:"before,omitempty"`
	After       any              `json:"after,omitempty"`
	OldAction   *domain.Action   `json:"old_action,omitempty"`
	ExpectedOld *domain.Action   `json:"expected_old_action,omitempty"`
	Removed     map[string]int64 `json:"removed,omitempty"`
	Related     map[string]any   `json:"related,omitempty"`
}

// writeAudit appends the audit row for ch using tx, so it commits or rolls
// back together with the data rows.
func writeAudit(ctx context.Context, tx *gorm.DB, m *mutator, ch *change) (*domain.AuditLog, error) {
	cmd := m.cmd
	d := auditDetails{
		Operation:   cmd.op,
		Dimension:   cmd.dim,
		Key:         cmd.key,
		Before:      ch.before,
		After:       ch.after,
		ExpectedOld: cmd.oldAction,
		Removed:     ch.removed,
		Related:     m.related,
	}
	if cmd.op == domain.OpUpdate || ch.action == domain.AuditUpdate {
		d.OldAction = oldActionOf(ch.before)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	entry := &domain.AuditLog{
		UserEmail:   cmd.user,
		ActionType:  ch.action,
		TargetTable: ch.table,
		RecordID:    ch.recordID,
		Domain:      cmd.primary,
		Details:     datatypes.JSON(raw),
	}
	if err := repo.RecordAudit(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func oldActionOf(before any) *domain.Action {
	switch v := before.(type) {
	case domain.Criteria:
		return v.DefaultAction
	case domain.Pattern:
		return &v.Action
	case domain.EmailPattern:
		return &v.Action
	}
	return nil
}
