package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/repo"
)

func TestModify_AddDomain_IdempotentAndAudited(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)
	req := ModifyRequest{Operation: "ADD", Dimension: "domain", Action: "delete", KeyValue: "Spam.COM"}

	first := mustModify(t, svc, req)
	if first.AuditID == nil || first.RecordID == nil {
		t.Fatalf("first ADD should be audited: %+v", first)
	}
	second := mustModify(t, svc, req)
	if second.AuditID != nil {
		t.Fatalf("repeated ADD must not write audit: %+v", second)
	}
	if *second.RecordID != *first.RecordID {
		t.Fatalf("repeated ADD found a different row: %d vs %d", *second.RecordID, *first.RecordID)
	}

	if n := countRows(t, db, &domain.Criteria{}, me); n != 1 {
		t.Fatalf("criteria rows = %d, want 1", n)
	}
	audit := auditRows(t, db, me)
	if len(audit) != 1 || audit[0].ActionType != domain.AuditInsert || audit[0].TargetTable != "criteria" {
		t.Fatalf("audit = %+v", audit)
	}
	if audit[0].Domain != "spam.com" {
		t.Fatalf("audit domain = %q", audit[0].Domain)
	}
	c, _ := repo.FindCriteria(context.Background(), db, me, "spam.com", domain.KeyDomain)
	if c == nil || c.DefaultAction == nil || *c.DefaultAction != domain.ActionDelete || c.ParentID != nil {
		t.Fatalf("stored entry = %+v", c)
	}
}

func TestModify_AddSubdomain_CreatesParentFirst(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)

	mustModify(t, svc, ModifyRequest{Operation: "ADD", Dimension: "subdomain", Action: "delete", KeyValue: "custcomm.icicibank.com"})

	ctx := context.Background()
	parent, err := repo.FindCriteria(ctx, db, me, "icicibank.com", domain.KeyDomain)
	if err != nil {
		t.Fatalf("parent domain missing: %v", err)
	}
	if parent.ParentID != nil || parent.DefaultAction != nil {
		t.Fatalf("implicit parent should be bare: %+v", parent)
	}
	sub, err := repo.FindCriteria(ctx, db, me, "custcomm.icicibank.com", domain.KeySubdomain)
	if err != nil {
		t.Fatalf("subdomain missing: %v", err)
	}
	if sub.ParentID == nil || *sub.ParentID != parent.ID {
		t.Fatalf("subdomain parent = %v, want %d", sub.ParentID, parent.ID)
	}

	audit := auditRows(t, db, me)
	if len(audit) != 1 {
		t.Fatalf("one mutation must write one audit row, got %d", len(audit))
	}
	related, _ := detailsOf(t, audit[0])["related"].(map[string]any)
	if related["parent_created"] != "icicibank.com" {
		t.Fatalf("audit details should note the implicit parent: %v", related)
	}
}

func TestModify_RejectsWrongKeyShape(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)

	cases := []ModifyRequest{
		{Operation: "ADD", Dimension: "domain", Action: "delete", KeyValue: "custcomm.icicibank.com"},
		{Operation: "ADD", Dimension: "subdomain", Action: "delete", KeyValue: "icicibank.com"},
		{Operation: "ADD", Dimension: "subdomain", Action: "delete", KeyValue: "a.example.co.uk", ParentDomain: "co.uk"},
		{Operation: "ADD", Dimension: "email", Action: "keep", KeyValue: "no-at-sign"},
		{Operation: "ADD", Dimension: "from_email", Action: "keep", KeyValue: "ceo@company.com", ParentDomain: "other.com"},
	}
	for _, req := range cases {
		req.UserEmail = me
		res, err := svc.Modify(context.Background(), req)
		if !errors.Is(err, ErrValidation) || res.Success || res.Code != CodeValidation {
			t.Fatalf("Modify(%+v) = %+v, %v; want validation error", req, res, err)
		}
	}
	if n := countRows(t, db, &domain.Criteria{}, me); n != 0 {
		t.Fatalf("validation failures must not write, got %d criteria", n)
	}
	if len(auditRows(t, db, me)) != 0 {
		t.Fatal("validation failures must not audit")
	}
}

func TestModify_UnknownVocabulary(t *testing.T) {
	svc := NewRuleService(newTestDB(t), nil)
	cases := []ModifyRequest{
		{Operation: "MERGE", Dimension: "domain", KeyValue: "spam.com"},
		{Operation: "ADD", Dimension: "header", Action: "keep", KeyValue: "spam.com"},
		{Operation: "ADD", Dimension: "domain", Action: "archive", KeyValue: "spam.com"},
		{Operation: "ADD", Dimension: "domain", Action: "undecided", KeyValue: "spam.com"},
		{Operation: "ADD", Dimension: "domain", KeyValue: "spam.com"},
		{Operation: "ADD", Dimension: "from_email", Action: "delete_1d", KeyValue: "x@spam.com"},
		{Operation: "ADD", Dimension: "subject", Action: "keep", KeyValue: "hi"},
		{Operation: "ADD", Dimension: "subject", Action: "keep", KeyValue: "   ", ParentDomain: "spam.com"},
		{Operation: "UPDATE", Dimension: "domain", Action: "keep", KeyValue: "spam.com", OldAction: "maybe"},
	}
	for _, req := range cases {
		req.UserEmail = me
		res, err := svc.Modify(context.Background(), req)
		if CodeOf(err) != CodeValidation || res.Code != CodeValidation {
			t.Fatalf("Modify(%+v) = %+v, %v; want validation error", req, res, err)
		}
	}
}

func TestModify_RequiresUser(t *testing.T) {
	svc := NewRuleService(newTestDB(t), nil)
	res, err := svc.Modify(context.Background(), ModifyRequest{Operation: "GET", Dimension: "domain", KeyValue: "spam.com"})
	if !errors.Is(err, ErrValidation) || res.Success {
		t.Fatalf("missing user should be rejected, got %+v, %v", res, err)
	}
}

func TestModify_RemoveMissingIsSuccess(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)

	for _, dim := range []string{"domain", "subdomain", "email", "subject", "from_email"} {
		req := ModifyRequest{Operation: "REMOVE", Dimension: dim, UserEmail: me}
		switch dim {
		case "domain":
			req.KeyValue = "spam.com"
		case "subdomain":
			req.KeyValue = "a.spam.com"
		case "subject":
			req.KeyValue, req.ParentDomain = "webinar", "spam.com"
		default:
			req.KeyValue = "x@spam.com"
		}
		res, err := svc.Modify(context.Background(), req)
		if err != nil || !res.Success || res.AuditID != nil {
			t.Fatalf("REMOVE %s on missing rule = %+v, %v", dim, res, err)
		}
	}
	if len(auditRows(t, db, me)) != 0 {
		t.Fatal("no-op removals must not audit")
	}
}

func TestModify_UpdateMissingIsNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)

	res, err := svc.Modify(context.Background(), ModifyRequest{Operation: "UPDATE", Dimension: "domain", Action: "keep", KeyValue: "spam.com", UserEmail: me})
	if !errors.Is(err, ErrRuleNotFound) || res.Code != CodeNotFound || res.Message != "Rule not found" {
		t.Fatalf("UPDATE missing = %+v, %v", res, err)
	}

	// an entry without a default action has no rule to update
	mustModify(t, svc, ModifyRequest{Operation: "ADD", Dimension: "subject", Action: "keep", KeyValue: "invoice", ParentDomain: "spam.com"})
	res, err = svc.Modify(context.Background(), ModifyRequest{Operation: "UPDATE", Dimension: "domain", Action: "keep", KeyValue: "spam.com", UserEmail: me})
	if !errors.Is(err, ErrRuleNotFound) || res.Success {
		t.Fatalf("UPDATE on entry without default = %+v, %v", res, err)
	}

	res, err = svc.Modify(context.Background(), ModifyRequest{Operation: "UPDATE", Dimension: "subject", Action: "delete", KeyValue: "receipt", ParentDomain: "spam.com", UserEmail: me})
	if !errors.Is(err, ErrRuleNotFound) || res.Success {
		t.Fatalf("UPDATE missing pattern = %+v, %v", res, err)
	}
}

func TestModify_UpdateRecordsOldAction(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)

	mustModify(t, svc, ModifyRequest{Operation: "ADD", Dimension: "domain", Action: "keep", KeyValue: "news.com"})
	res := mustModify(t, svc, ModifyRequest{Operation: "UPDATE", Dimension: "domain", Action: "delete_10d", KeyValue: "news.com", OldAction: "keep"})
	if res.AuditID == nil {
		t.Fatal("UPDATE should be audited")
	}
	same := mustModify(t, svc, ModifyRequest{Operation: "UPDATE", Dimension: "domain", Action: "delete_10d", KeyValue: "news.com"})
	if same.AuditID != nil {
		t.Fatal("UPDATE to the same value is a no-op")
	}

	audit := auditRows(t, db, me)
	if len(audit) != 2 || audit[1].ActionType != domain.AuditUpdate {
		t.Fatalf("audit = %+v", audit)
	}
	d := detailsOf(t, audit[1])
	if d["old_action"] != "keep" || d["operation"] != "UPDATE" {
		t.Fatalf("details = %v", d)
	}
	after, _ := d["after"].(map[string]any)
	if after["default_action"] != "delete_10d" {
		t.Fatalf("after = %v", after)
	}
}

func TestModify_AddExistingPatternChangesAction(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)

	mustModify(t, svc, ModifyRequest{Operation: "ADD", Dimension: "subject", Action: "delete", KeyValue: "Webinar", ParentDomain: "spam.com"})
	res := mustModify(t, svc, ModifyRequest{Operation: "ADD", Dimension: "subject", Action: "keep", KeyValue: "WEBINAR", ParentDomain: "spam.com"})
	if res.AuditID == nil {
		t.Fatal("changing the action of an existing pattern should be audited")
	}

	ps, _ := repo.ListPatterns(context.Background(), db, me)
	if len(ps) != 1 || ps[0].Pattern != "webinar" || ps[0].Action != domain.ActionKeep {
		t.Fatalf("patterns = %+v", ps)
	}
	audit := auditRows(t, db, me)
	if audit[len(audit)-1].ActionType != domain.AuditUpdate {
		t.Fatalf("last audit = %+v", audit[len(audit)-1])
	}
}

func seedDomainTree(t *testing.T, svc *RuleService, user string) {
	t.Helper()
	for _, req := range []ModifyRequest{
		{Operation: "ADD", Dimension: "domain", Action: "delete", KeyValue: "icicibank.com"},
		{Operation: "ADD", Dimension: "subject", Action: "keep", KeyValue: "statement", ParentDomain: "icicibank.com"},
		{Operation: "ADD", Dimension: "subdomain", Action: "delete_1d", KeyValue: "custcomm.icicibank.com"},
		{Operation: "ADD", Dimension: "subject", Action: "delete", KeyValue: "webinar", ParentSubdomain: "custcomm.icicibank.com"},
		{Operation: "ADD", Dimension: "subject", Action: "keep", KeyValue: "otp", ParentSubdomain: "custcomm.icicibank.com"},
		{Operation: "ADD", Dimension: "from_email", Action: "keep", KeyValue: "alerts@icicibank.com"},
		{Operation: "ADD", Dimension: "to_email", Action: "delete", KeyValue: "promo@icicibank.com"},
	} {
		req.UserEmail = user
		mustModify(t, svc, req)
	}
}

func TestModify_RemoveDomainCascades(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)
	seedDomainTree(t, svc, me)
	seedDomainTree(t, svc, "other@inbox.com")
	before := len(auditRows(t, db, me))

	res := mustModify(t, svc, ModifyRequest{Operation: "REMOVE", Dimension: "domain", KeyValue: "icicibank.com"})
	if res.AuditID == nil {
		t.Fatal("REMOVE should be audited")
	}

	for _, model := range []any{&domain.Criteria{}, &domain.Pattern{}, &domain.EmailPattern{}} {
		if n := countRows(t, db, model, me); n != 0 {
			t.Fatalf("%T rows left after cascade: %d", model, n)
		}
		if n := countRows(t, db, model, "other@inbox.com"); n == 0 {
			t.Fatalf("%T rows of another user were removed", model)
		}
	}

	audit := auditRows(t, db, me)
	if len(audit) != before+1 {
		t.Fatalf("cascade must write exactly one audit row, got %d new", len(audit)-before)
	}
	removed, _ := detailsOf(t, audit[len(audit)-1])["removed"].(map[string]any)
	if removed["criteria"] != float64(2) || removed["patterns"] != float64(3) || removed["email_patterns"] != float64(2) {
		t.Fatalf("removed = %v", removed)
	}
}

func TestModify_RemoveSubdomainKeepsParent(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)
	seedDomainTree(t, svc, me)

	mustModify(t, svc, ModifyRequest{Operation: "REMOVE", Dimension: "subdomain", KeyValue: "custcomm.icicibank.com"})

	ctx := context.Background()
	if _, err := repo.FindCriteria(ctx, db, me, "icicibank.com", domain.KeyDomain); err != nil {
		t.Fatalf("parent domain removed: %v", err)
	}
	ps, _ := repo.ListPatterns(ctx, db, me)
	if len(ps) != 1 || ps[0].Pattern != "statement" {
		t.Fatalf("patterns left = %+v", ps)
	}
}

func TestModify_ClearScopes(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)
	seedDomainTree(t, svc, me)
	ctx := context.Background()

	sub, err := repo.FindCriteria(ctx, db, me, "custcomm.icicibank.com", domain.KeySubdomain)
	if err != nil {
		t.Fatalf("find subdomain: %v", err)
	}
	subPatterns, _ := repo.ListPatterns(ctx, db, me, sub.ID)

	res := mustModify(t, svc, ModifyRequest{Operation: "CLEAR", Dimension: "subject", ParentSubdomain: "custcomm.icicibank.com"})
	ps, _ := repo.ListPatterns(ctx, db, me)
	if len(ps) != 1 {
		t.Fatalf("CLEAR subject should only empty the subdomain's patterns, left %+v", ps)
	}
	assertClearAudit(t, db, *res.AuditID, tablePatterns, subPatterns[0].ID, sub.ID)

	anchor, err := repo.FindCriteria(ctx, db, me, "icicibank.com", domain.KeyDomain)
	if err != nil {
		t.Fatalf("find domain: %v", err)
	}
	toRules, _ := repo.ListEmailPatterns(ctx, db, me, domain.DirectionTo, anchor.ID)

	res = mustModify(t, svc, ModifyRequest{Operation: "CLEAR", Dimension: "to_email", KeyValue: "icicibank.com"})
	eps, _ := repo.ListEmailPatterns(ctx, db, me, "")
	if len(eps) != 1 || eps[0].Direction != domain.DirectionFrom {
		t.Fatalf("CLEAR to_email should keep from rules, left %+v", eps)
	}
	assertClearAudit(t, db, *res.AuditID, tableEmailPatterns, toRules[0].ID, anchor.ID)

	again := mustModify(t, svc, ModifyRequest{Operation: "CLEAR", Dimension: "to_email", KeyValue: "icicibank.com"})
	if again.AuditID != nil {
		t.Fatal("clearing an empty scope is a no-op")
	}

	mustModify(t, svc, ModifyRequest{Operation: "CLEAR", Dimension: "domain", KeyValue: "icicibank.com"})
	if n := countRows(t, db, &domain.Criteria{}, me); n != 0 {
		t.Fatalf("CLEAR domain left %d criteria", n)
	}
}

// assertClearAudit checks that a CLEAR audit row names the pattern table it
// emptied and keeps the surviving criteria entry as related context.
func assertClearAudit(t *testing.T, db *gorm.DB, auditID uint64, table string, firstID, criteriaID uint64) {
	t.Helper()
	var e domain.AuditLog
	if err := db.First(&e, auditID).Error; err != nil {
		t.Fatalf("load audit %d: %v", auditID, err)
	}
	if e.ActionType != domain.AuditDelete || e.TargetTable != table || e.RecordID != firstID {
		t.Fatalf("audit = %s %s %d, want DELETE %s %d", e.ActionType, e.TargetTable, e.RecordID, table, firstID)
	}
	related, _ := detailsOf(t, e)["related"].(map[string]any)
	if related["criteria_id"] != float64(criteriaID) {
		t.Fatalf("related = %v, want criteria_id %d", related, criteriaID)
	}
}

func TestModify_Get(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)
	seedDomainTree(t, svc, me)

	res := mustModify(t, svc, ModifyRequest{Operation: "GET", Dimension: "domain", KeyValue: "icicibank.com"})
	v := res.Data
	if v == nil || v.Entry.KeyValue != "icicibank.com" {
		t.Fatalf("view = %+v", v)
	}
	if len(v.Subdomains) != 1 || v.Subdomains[0].KeyValue != "custcomm.icicibank.com" || v.Subdomains[0].PatternCount != 2 {
		t.Fatalf("subdomains = %+v", v.Subdomains)
	}
	if len(v.Patterns) != 1 || len(v.EmailPatterns) != 2 {
		t.Fatalf("patterns=%d email_patterns=%d", len(v.Patterns), len(v.EmailPatterns))
	}

	from := mustModify(t, svc, ModifyRequest{Operation: "GET", Dimension: "from_email", KeyValue: "ALERTS@icicibank.com"})
	if len(from.Data.EmailPatterns) != 1 || from.Data.EmailPatterns[0].Action != domain.ActionKeep {
		t.Fatalf("from view = %+v", from.Data)
	}

	n := len(auditRows(t, db, me))
	res, err := svc.Modify(context.Background(), ModifyRequest{Operation: "GET", Dimension: "domain", KeyValue: "nothing.com", UserEmail: me})
	if !errors.Is(err, ErrRuleNotFound) || res.Code != CodeNotFound {
		t.Fatalf("GET missing = %+v, %v", res, err)
	}
	if len(auditRows(t, db, me)) != n {
		t.Fatal("GET must not audit")
	}
}

func TestModify_UserIsolation(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)
	mustModify(t, svc, ModifyRequest{Operation: "ADD", Dimension: "domain", Action: "delete", KeyValue: "spam.com"})

	ctx := context.Background()
	other := "other@inbox.com"
	if _, err := svc.Modify(ctx, ModifyRequest{Operation: "GET", Dimension: "domain", KeyValue: "spam.com", UserEmail: other}); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("other user GET = %v", err)
	}
	if _, err := svc.Modify(ctx, ModifyRequest{Operation: "UPDATE", Dimension: "domain", Action: "keep", KeyValue: "spam.com", UserEmail: other}); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("other user UPDATE = %v", err)
	}
	res, err := svc.Modify(ctx, ModifyRequest{Operation: "REMOVE", Dimension: "domain", KeyValue: "spam.com", UserEmail: other})
	if err != nil || res.AuditID != nil {
		t.Fatalf("other user REMOVE = %+v, %v", res, err)
	}
	if n := countRows(t, db, &domain.Criteria{}, me); n != 1 {
		t.Fatalf("owner lost rows: %d", n)
	}
}

func TestModify_RelinksOrphanSubdomain(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)

	orphan := domain.Criteria{KeyValue: "custcomm.icicibank.com", KeyType: domain.KeySubdomain, DefaultAction: domain.ActionDelete.Ptr(), UserEmail: me}
	if err := db.Create(&orphan).Error; err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	res := mustModify(t, svc, ModifyRequest{Operation: "ADD", Dimension: "subdomain", Action: "delete", KeyValue: "custcomm.icicibank.com"})
	if res.AuditID == nil {
		t.Fatal("re-linking should be audited")
	}
	ctx := context.Background()
	parent, _ := repo.FindCriteria(ctx, db, me, "icicibank.com", domain.KeyDomain)
	sub, _ := repo.FindCriteria(ctx, db, me, "custcomm.icicibank.com", domain.KeySubdomain)
	if parent == nil || sub == nil || sub.ID != orphan.ID || sub.ParentID == nil || *sub.ParentID != parent.ID {
		t.Fatalf("orphan not linked: parent=%+v sub=%+v", parent, sub)
	}
}

func TestModify_InvalidatesCacheOnCommit(t *testing.T) {
	c := newMemCache()
	svc := NewRuleService(newTestDB(t), c)
	req := ModifyRequest{Operation: "ADD", Dimension: "domain", Action: "delete", KeyValue: "spam.com"}

	mustModify(t, svc, req)
	mustModify(t, svc, req) // no-op
	mustModify(t, svc, ModifyRequest{Operation: "GET", Dimension: "domain", KeyValue: "spam.com"})

	if len(c.invalidated) != 1 || c.invalidated[0] != me {
		t.Fatalf("invalidations = %v, want exactly one for %s", c.invalidated, me)
	}
}

func TestModify_ConcurrentAddsConverge(t *testing.T) {
	db := newTestDB(t)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	svc := NewRuleService(db, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Modify(context.Background(), ModifyRequest{
				Operation: "ADD", Dimension: "subdomain", Action: "delete",
				KeyValue: "custcomm.icicibank.com", UserEmail: me,
			})
			if err == nil && !res.Success {
				err = errors.New(res.Message)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent ADD failed: %v", err)
		}
	}

	if n := countRows(t, db, &domain.Criteria{}, me); n != 2 {
		t.Fatalf("criteria rows = %d, want 2", n)
	}
	if n := len(auditRows(t, db, me)); n != 1 {
		t.Fatalf("audit rows = %d, want 1", n)
	}
}
