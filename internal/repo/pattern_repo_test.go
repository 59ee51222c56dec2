package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-mail-triage/internal/domain"
)

func TestEnsurePattern_AndUpdate(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := "a@x.com"
	dom, _, _ := EnsureCriteria(ctx, db, domain.Criteria{KeyValue: "spam.com", KeyType: domain.KeyDomain, UserEmail: u})

	p := domain.Pattern{CriteriaID: dom.ID, Pattern: "important", Action: domain.ActionKeep, UserEmail: u}
	first, created, err := EnsurePattern(ctx, db, p)
	if err != nil || !created {
		t.Fatalf("ensure: created=%v err=%v", created, err)
	}

	p.Action = domain.ActionDelete
	again, created, err := EnsurePattern(ctx, db, p)
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("re-ensure: row=%+v created=%v err=%v", again, created, err)
	}
	if again.Action != domain.ActionKeep {
		t.Fatalf("conflicting insert must not change action, got %q", again.Action)
	}

	if err := UpdatePatternAction(ctx, db, u, first.ID, domain.ActionDelete1d); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := FindPattern(ctx, db, u, dom.ID, "important")
	if got.Action != domain.ActionDelete1d {
		t.Fatalf("action = %q; want delete_1d", got.Action)
	}
	if err := UpdatePatternAction(ctx, db, "b@x.com", first.ID, domain.ActionKeep); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user update should be not found, got %v", err)
	}

	counts, err := CountPatternsByCriteria(ctx, db, u, dom.ID, dom.ID+100)
	if err != nil || counts[dom.ID] != 1 || counts[dom.ID+100] != 0 {
		t.Fatalf("counts = %v, err=%v", counts, err)
	}

	if n, err := DeletePatterns(ctx, db, u, first.ID); err != nil || n != 1 {
		t.Fatalf("DeletePatterns = %d, %v", n, err)
	}
	if _, err := FindPattern(ctx, db, u, dom.ID, "important"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestEmailPatterns_DirectionAndLoadRuleSet(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := "a@x.com"
	dom, _, _ := EnsureCriteria(ctx, db, domain.Criteria{KeyValue: "company.com", KeyType: domain.KeyDomain, UserEmail: u, DefaultAction: domain.ActionDelete.Ptr()})

	from := domain.EmailPattern{CriteriaID: dom.ID, Direction: domain.DirectionFrom, Email: "ceo@company.com", Action: domain.ActionKeep, UserEmail: u}
	to := from
	to.Direction = domain.DirectionTo

	for _, ep := range []domain.EmailPattern{from, to, from} {
		if _, _, err := EnsureEmailPattern(ctx, db, ep); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	got, err := ListEmailPatterns(ctx, db, u, domain.DirectionFrom)
	if err != nil || len(got) != 1 {
		t.Fatalf("from patterns = %d, err=%v", len(got), err)
	}
	if err := UpdateEmailPatternAction(ctx, db, u, got[0].ID, domain.ActionDelete); err != nil {
		t.Fatalf("update: %v", err)
	}

	rs, err := LoadRuleSet(ctx, db, u)
	if err != nil {
		t.Fatalf("LoadRuleSet: %v", err)
	}
	if len(rs.Criteria) != 1 || len(rs.EmailPatterns) != 2 || len(rs.Patterns) != 0 {
		t.Fatalf("unexpected rule set: %+v", rs)
	}
	if rs.Version != 0 {
		t.Fatalf("version without audit rows = %d", rs.Version)
	}

	other, err := LoadRuleSet(ctx, db, "b@x.com")
	if err != nil || len(other.Criteria)+len(other.EmailPatterns) != 0 {
		t.Fatalf("other user must see nothing: %+v err=%v", other, err)
	}

	ids := []uint64{rs.EmailPatterns[0].ID, rs.EmailPatterns[1].ID}
	if n, err := DeleteEmailPatterns(ctx, db, u, ids...); err != nil || n != 2 {
		t.Fatalf("DeleteEmailPatterns = %d, %v", n, err)
	}
}
