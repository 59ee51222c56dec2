package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/mailaddr"
	"github.com/tbourn/go-mail-triage/internal/repo"
)

const (
	tableCriteria      = "criteria"
	tablePatterns      = "patterns"
	tableEmailPatterns = "email_patterns"
)

// change describes what one mutation did. An empty action means no-op.
type change struct {
	action   domain.AuditAction
	table    string
	recordID uint64
	before   any
	after    any
	removed  map[string]int64
	message  string
}

// mutator applies one validated command inside a transaction.
type mutator struct {
	ctx context.Context
	tx  *gorm.DB
	cmd *command

	// related collects side effects worth auditing, e.g. an implicitly
	// created parent domain.
	related  map[string]any
	relinked uint64
}

func (m *mutator) apply() (*change, error) {
	var (
		ch  *change
		err error
	)
	switch m.cmd.op {
	case domain.OpAdd:
		ch, err = m.add()
	case domain.OpRemove:
		ch, err = m.remove(false)
	case domain.OpClear:
		ch, err = m.remove(true)
	case domain.OpUpdate:
		ch, err = m.update()
	default:
		return nil, invalidf("operation %s does not mutate", m.cmd.op)
	}
	if err != nil {
		return nil, err
	}
	if ch.action == "" && m.relinked != 0 {
		ch = &change{
			action:   domain.AuditUpdate,
			table:    tableCriteria,
			recordID: m.relinked,
			message:  "Subdomain re-linked to its parent domain",
		}
	}
	return ch, nil
}

func (m *mutator) note(k string, v any) {
	if m.related == nil {
		m.related = map[string]any{}
	}
	m.related[k] = v
}

// ensureEntry finds or creates the criteria entry (key, kt). A subdomain's
// parent domain is found or created first and the subdomain is linked to
// it, repairing a missing or wrong link on an existing row.
func (m *mutator) ensureEntry(kt domain.KeyType, key string, def *domain.Action) (*domain.Criteria, bool, error) {
	c := domain.Criteria{KeyValue: key, KeyType: kt, DefaultAction: def, UserEmail: m.cmd.user}

	var parent *domain.Criteria
	if kt == domain.KeySubdomain {
		p, created, err := repo.EnsureCriteria(m.ctx, m.tx, domain.Criteria{
			KeyValue:  mailaddr.PrimaryOf(key),
			KeyType:   domain.KeyDomain,
			UserEmail: m.cmd.user,
		})
		if err != nil {
			return nil, false, err
		}
		if created {
			m.note("parent_created", p.KeyValue)
		}
		m.note("parent_id", p.ID)
		parent = p
		c.ParentID = &p.ID
	}

	row, created, err := repo.EnsureCriteria(m.ctx, m.tx, c)
	if err != nil {
		return nil, false, err
	}
	if parent != nil && (row.ParentID == nil || *row.ParentID != parent.ID) {
		if err := repo.SetCriteriaParent(m.ctx, m.tx, m.cmd.user, row.ID, parent.ID); err != nil {
			return nil, false, err
		}
		row.ParentID = &parent.ID
		m.relinked = row.ID
	}
	return row, created, nil
}

func sameAction(a, b *domain.Action) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func noop(msg string, id uint64) *change { return &change{message: msg, recordID: id} }

func (m *mutator) add() (*change, error) {
	cmd := m.cmd
	want := *cmd.action

	switch cmd.dim {
	case domain.DimSubject:
		scope, _, err := m.ensureEntry(cmd.scopeType, cmd.scopeKey, nil)
		if err != nil {
			return nil, err
		}
		p, created, err := repo.EnsurePattern(m.ctx, m.tx, domain.Pattern{
			CriteriaID: scope.ID,
			Pattern:    cmd.key,
			Action:     want,
			UserEmail:  cmd.user,
		})
		if err != nil {
			return nil, err
		}
		if created {
			return &change{action: domain.AuditInsert, table: tablePatterns, recordID: p.ID, after: p, message: "Rule added"}, nil
		}
		if p.Action == want {
			return noop("Rule already exists", p.ID), nil
		}
		before := *p
		if err := repo.UpdatePatternAction(m.ctx, m.tx, cmd.user, p.ID, want); err != nil {
			return nil, err
		}
		p.Action = want
		return &change{action: domain.AuditUpdate, table: tablePatterns, recordID: p.ID, before: before, after: p, message: "Rule updated"}, nil

	case domain.DimFromEmail, domain.DimToEmail:
		anchor, _, err := m.ensureEntry(domain.KeyDomain, cmd.primary, nil)
		if err != nil {
			return nil, err
		}
		ep, created, err := repo.EnsureEmailPattern(m.ctx, m.tx, domain.EmailPattern{
			CriteriaID: anchor.ID,
			Direction:  cmd.dir,
			Email:      cmd.key,
			Action:     want,
			UserEmail:  cmd.user,
		})
		if err != nil {
			return nil, err
		}
		if created {
			return &change{action: domain.AuditInsert, table: tableEmailPatterns, recordID: ep.ID, after: ep, message: "Rule added"}, nil
		}
		if ep.Action == want {
			return noop("Rule already exists", ep.ID), nil
		}
		before := *ep
		if err := repo.UpdateEmailPatternAction(m.ctx, m.tx, cmd.user, ep.ID, want); err != nil {
			return nil, err
		}
		ep.Action = want
		return &change{action: domain.AuditUpdate, table: tableEmailPatterns, recordID: ep.ID, before: before, after: ep, message: "Rule updated"}, nil
	}

	kt, _ := cmd.dim.KeyType()
	entry, created, err := m.ensureEntry(kt, cmd.key, cmd.action)
	if err != nil {
		return nil, err
	}
	if created {
		return &change{action: domain.AuditInsert, table: tableCriteria, recordID: entry.ID, after: entry, message: "Rule added"}, nil
	}
	return m.setDefault(entry, "Rule already exists")
}

func (m *mutator) setDefault(entry *domain.Criteria, sameMsg string) (*change, error) {
	if sameAction(entry.DefaultAction, m.cmd.action) {
		return noop(sameMsg, entry.ID), nil
	}
	before := *entry
	if err := repo.SetDefaultAction(m.ctx, m.tx, m.cmd.user, entry.ID, m.cmd.action); err != nil {
		return nil, err
	}
	entry.DefaultAction = m.cmd.action
	return &change{action: domain.AuditUpdate, table: tableCriteria, recordID: entry.ID, before: before, after: entry, message: "Rule updated"}, nil
}

func (m *mutator) update() (*change, error) {
	cmd := m.cmd
	want := *cmd.action

	switch cmd.dim {
	case domain.DimSubject:
		scope, err := findEntry(m.ctx, m.tx, cmd.user, cmd.scopeKey, cmd.scopeType)
		if err != nil {
			return nil, err
		}
		p, err := repo.FindPattern(m.ctx, m.tx, cmd.user, scope.ID, cmd.key)
		if err != nil {
			return nil, notFoundOr(err)
		}
		if p.Action == want {
			return noop("Rule unchanged", p.ID), nil
		}
		before := *p
		if err := repo.UpdatePatternAction(m.ctx, m.tx, cmd.user, p.ID, want); err != nil {
			return nil, err
		}
		p.Action = want
		return &change{action: domain.AuditUpdate, table: tablePatterns, recordID: p.ID, before: before, after: p, message: "Rule updated"}, nil

	case domain.DimFromEmail, domain.DimToEmail:
		anchor, err := findEntry(m.ctx, m.tx, cmd.user, cmd.primary, domain.KeyDomain)
		if err != nil {
			return nil, err
		}
		ep, err := repo.FindEmailPattern(m.ctx, m.tx, cmd.user, anchor.ID, cmd.dir, cmd.key)
		if err != nil {
			return nil, notFoundOr(err)
		}
		if ep.Action == want {
			return noop("Rule unchanged", ep.ID), nil
		}
		before := *ep
		if err := repo.UpdateEmailPatternAction(m.ctx, m.tx, cmd.user, ep.ID, want); err != nil {
			return nil, err
		}
		ep.Action = want
		return &change{action: domain.AuditUpdate, table: tableEmailPatterns, recordID: ep.ID, before: before, after: ep, message: "Rule updated"}, nil
	}

	kt, _ := cmd.dim.KeyType()
	entry, err := findEntry(m.ctx, m.tx, cmd.user, cmd.key, kt)
	if err != nil {
		return nil, err
	}
	if entry.DefaultAction == nil {
		return nil, ErrRuleNotFound
	}
	return m.setDefault(entry, "Rule unchanged")
}

// remove handles REMOVE and CLEAR. A missing target is a successful no-op.
func (m *mutator) remove(clear bool) (*change, error) {
	cmd := m.cmd
	missing := noop("Rule not found; nothing to remove", 0)
	done := "Rule removed"
	if clear {
		missing = noop("Nothing to clear", 0)
		done = "Rules cleared"
	}

	switch cmd.dim {
	case domain.DimSubject:
		scope, err := findEntry(m.ctx, m.tx, cmd.user, cmd.scopeKey, cmd.scopeType)
		if err != nil {
			return skipMissing(missing, err)
		}
		if clear {
			ps, err := repo.ListPatterns(m.ctx, m.tx, cmd.user, scope.ID)
			if err != nil || len(ps) == 0 {
				return missing, err
			}
			n, err := repo.DeletePatterns(m.ctx, m.tx, cmd.user, patternIDs(ps)...)
			if err != nil {
				return nil, err
			}
			m.note("criteria_id", scope.ID)
			return &change{action: domain.AuditDelete, table: tablePatterns, recordID: ps[0].ID, before: ps,
				removed: map[string]int64{tablePatterns: n}, message: done}, nil
		}
		p, err := repo.FindPattern(m.ctx, m.tx, cmd.user, scope.ID, cmd.key)
		if err != nil {
			return skipMissing(missing, err)
		}
		if _, err := repo.DeletePatterns(m.ctx, m.tx, cmd.user, p.ID); err != nil {
			return nil, err
		}
		return &change{action: domain.AuditDelete, table: tablePatterns, recordID: p.ID, before: p, message: done}, nil

	case domain.DimFromEmail, domain.DimToEmail:
		anchor, err := findEntry(m.ctx, m.tx, cmd.user, cmd.primary, domain.KeyDomain)
		if err != nil {
			return skipMissing(missing, err)
		}
		if clear || cmd.key == "" {
			eps, err := repo.ListEmailPatterns(m.ctx, m.tx, cmd.user, cmd.dir, anchor.ID)
			if err != nil || len(eps) == 0 {
				return missing, err
			}
			n, err := repo.DeleteEmailPatterns(m.ctx, m.tx, cmd.user, emailPatternIDs(eps)...)
			if err != nil {
				return nil, err
			}
			m.note("criteria_id", anchor.ID)
			return &change{action: domain.AuditDelete, table: tableEmailPatterns, recordID: eps[0].ID, before: eps,
				removed: map[string]int64{tableEmailPatterns: n}, message: done}, nil
		}
		ep, err := repo.FindEmailPattern(m.ctx, m.tx, cmd.user, anchor.ID, cmd.dir, cmd.key)
		if err != nil {
			return skipMissing(missing, err)
		}
		if _, err := repo.DeleteEmailPatterns(m.ctx, m.tx, cmd.user, ep.ID); err != nil {
			return nil, err
		}
		return &change{action: domain.AuditDelete, table: tableEmailPatterns, recordID: ep.ID, before: ep, message: done}, nil
	}

	kt, _ := cmd.dim.KeyType()
	entry, err := findEntry(m.ctx, m.tx, cmd.user, cmd.key, kt)
	if err != nil {
		return skipMissing(missing, err)
	}
	removed, err := m.deleteSubtree(entry)
	if err != nil {
		return nil, err
	}
	return &change{action: domain.AuditDelete, table: tableCriteria, recordID: entry.ID, before: entry, removed: removed, message: done}, nil
}

func skipMissing(missing *change, err error) (*change, error) {
	if errors.Is(err, ErrRuleNotFound) {
		return missing, nil
	}
	return nil, err
}

// deleteSubtree removes entry with every row hanging off it: subdomains
// (for a domain), their subject patterns and the email patterns anchored
// on the domain.
func (m *mutator) deleteSubtree(entry *domain.Criteria) (map[string]int64, error) {
	ctx, tx, user := m.ctx, m.tx, m.cmd.user
	ids := []uint64{entry.ID}
	removed := map[string]int64{}

	if entry.KeyType == domain.KeyDomain {
		subs, err := repo.ListSubdomains(ctx, tx, user, entry.ID)
		if err != nil {
			return nil, err
		}
		for _, sd := range subs {
			ids = append(ids, sd.ID)
		}
		eps, err := repo.ListEmailPatterns(ctx, tx, user, "", entry.ID)
		if err != nil {
			return nil, err
		}
		if removed[tableEmailPatterns], err = repo.DeleteEmailPatterns(ctx, tx, user, emailPatternIDs(eps)...); err != nil {
			return nil, err
		}
	}

	ps, err := repo.ListPatterns(ctx, tx, user, ids...)
	if err != nil {
		return nil, err
	}
	if removed[tablePatterns], err = repo.DeletePatterns(ctx, tx, user, patternIDs(ps)...); err != nil {
		return nil, err
	}
	if removed[tableCriteria], err = repo.DeleteCriteria(ctx, tx, user, ids...); err != nil {
		return nil, err
	}
	return removed, nil
}

func patternIDs(ps []domain.Pattern) []uint64 {
	out := make([]uint64, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func emailPatternIDs(eps []domain.EmailPattern) []uint64 {
	out := make([]uint64, len(eps))
	for i, ep := range eps {
		out[i] = ep.ID
	}
	return out
}
