package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/repo"
)

func TestModifyCriteria_SubdomainRoundTrip(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)

	res, err := svc.ModifyCriteria(context.Background(), CriteriaRequest{
		Operation:      "ADD",
		Action:         "delete",
		FromEmail:      "noreply@custcomm.icicibank.com",
		ToEmail:        me,
		Subject:        "Join our Webinar",
		Level:          "subdomain",
		SubjectPattern: "Webinar",
		UserEmail:      me,
	})
	if err != nil || !res.Success {
		t.Fatalf("ModifyCriteria = %+v, %v", res, err)
	}

	ctx := context.Background()
	all, _ := repo.ListCriteria(ctx, db, me)
	if len(all) != 2 {
		t.Fatalf("criteria = %+v, want exactly two rows", all)
	}
	parent, sub := all[0], all[1]
	if parent.KeyValue != "icicibank.com" || parent.KeyType != domain.KeyDomain || parent.ParentID != nil {
		t.Fatalf("parent = %+v", parent)
	}
	if sub.KeyValue != "custcomm.icicibank.com" || sub.KeyType != domain.KeySubdomain || sub.ParentID == nil || *sub.ParentID != parent.ID {
		t.Fatalf("subdomain = %+v", sub)
	}
	ps, _ := repo.ListPatterns(ctx, db, me)
	if len(ps) != 1 || ps[0].CriteriaID != sub.ID || ps[0].Action != domain.ActionDelete {
		t.Fatalf("patterns = %+v", ps)
	}
}

func TestModifyCriteria_Levels(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)
	ctx := context.Background()

	run := func(req CriteriaRequest) {
		t.Helper()
		req.UserEmail = me
		if res, err := svc.ModifyCriteria(ctx, req); err != nil || !res.Success {
			t.Fatalf("ModifyCriteria(%+v) = %+v, %v", req, res, err)
		}
	}

	// domain level keys on the primary domain even for a subdomain sender
	run(CriteriaRequest{Operation: "ADD", Action: "delete", FromEmail: "x@mail.spam.co.uk", Level: "domain"})
	if _, err := repo.FindCriteria(ctx, db, me, "spam.co.uk", domain.KeyDomain); err != nil {
		t.Fatalf("domain entry: %v", err)
	}
	run(CriteriaRequest{Operation: "ADD", Action: "keep", FromEmail: "x@mail.spam.co.uk", Level: "domain", SubjectPattern: "Invoice"})
	d, _ := repo.FindCriteria(ctx, db, me, "spam.co.uk", domain.KeyDomain)
	if p, err := repo.FindPattern(ctx, db, me, d.ID, "invoice"); err != nil || p.Action != domain.ActionKeep {
		t.Fatalf("domain pattern = %+v, %v", p, err)
	}

	// from_email and its alias store the full address as an email entry
	run(CriteriaRequest{Operation: "ADD", Action: "keep", FromEmail: "CEO@Company.com", Level: "email"})
	e, err := repo.FindCriteria(ctx, db, me, "ceo@company.com", domain.KeyEmail)
	if err != nil || e.ParentID != nil || *e.DefaultAction != domain.ActionKeep {
		t.Fatalf("email entry = %+v, %v", e, err)
	}

	// to_email anchors on the recipient's domain
	run(CriteriaRequest{Operation: "ADD", Action: "delete", FromEmail: "x@spam.com", ToEmail: "list@groups.example.org", Level: "to_email"})
	anchor, err := repo.FindCriteria(ctx, db, me, "example.org", domain.KeyDomain)
	if err != nil {
		t.Fatalf("to anchor: %v", err)
	}
	ep, err := repo.FindEmailPattern(ctx, db, me, anchor.ID, domain.DirectionTo, "list@groups.example.org")
	if err != nil || ep.Action != domain.ActionDelete {
		t.Fatalf("to rule = %+v, %v", ep, err)
	}
}

func TestModifyCriteria_Rejects(t *testing.T) {
	db := newTestDB(t)
	svc := NewRuleService(db, nil)

	cases := []CriteriaRequest{
		{Operation: "ADD", Action: "delete", FromEmail: "x@spam.com", Level: "subdomain"},
		{Operation: "ADD", Action: "delete", FromEmail: "not-an-email", Level: "domain"},
		{Operation: "ADD", Action: "delete", FromEmail: "x@spam.com", Level: "folder"},
		{Operation: "ADD", Action: "delete", FromEmail: "x@spam.com", Level: "domain", Dimension: "subdomain"},
		{Operation: "ADD", Action: "delete", FromEmail: "x@spam.com", Level: "to_email", ToEmail: ""},
		{Operation: "ADD", Action: "delete", FromEmail: "x@spam.com", Level: "from_email", SubjectPattern: "hi"},
	}
	for _, req := range cases {
		req.UserEmail = me
		res, err := svc.ModifyCriteria(context.Background(), req)
		if !errors.Is(err, ErrValidation) || res.Success || res.Code != CodeValidation {
			t.Fatalf("ModifyCriteria(%+v) = %+v, %v; want validation error", req, res, err)
		}
	}
	if n := countRows(t, db, &domain.Criteria{}, me); n != 0 {
		t.Fatalf("rejected requests wrote %d rows", n)
	}
}

func TestDeriveRequest_DimensionAgreement(t *testing.T) {
	low, err := deriveRequest(CriteriaRequest{Operation: "ADD", Action: "keep", FromEmail: "ceo@company.com", Level: "from_email", Dimension: "from_email"})
	if err != nil || low.Dimension != "email" || low.KeyValue != "ceo@company.com" {
		t.Fatalf("from_email alias = %+v, %v", low, err)
	}
	low, err = deriveRequest(CriteriaRequest{Operation: "ADD", Action: "keep", FromEmail: "a@news.site.com", Level: "subdomain", SubjectPattern: "sale", Dimension: "subject"})
	if err != nil || low.ParentSubdomain != "news.site.com" || low.ParentDomain != "site.com" || low.KeyValue != "sale" {
		t.Fatalf("subdomain pattern = %+v, %v", low, err)
	}
}
