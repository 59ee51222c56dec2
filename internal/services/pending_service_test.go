package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/ingest"
)

func TestPendingIngest_RejectsAndDedupes(t *testing.T) {
	db := newTestDB(t)
	svc := &PendingService{DB: db}
	ctx := context.Background()

	batch := []ingest.Fields{
		{MessageID: "m1", From: "a@shop.example.com", Subject: "Sale"},
		{MessageID: "m2", From: "not-an-address"},
		{MessageID: "m3", From: "b@example.com"},
	}
	res, err := svc.Ingest(ctx, "Me@Inbox.com", batch)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Received != 3 || res.Inserted != 2 || len(res.Rejected) != 1 || res.Rejected[0].Index != 1 {
		t.Fatalf("result = %+v", res)
	}

	again, err := svc.Ingest(ctx, me, batch[:1])
	if err != nil || again.Inserted != 0 {
		t.Fatalf("re-ingest = %+v, %v", again, err)
	}

	items, total, err := svc.List(ctx, me, "", 0, 10)
	if err != nil || total != 2 || len(items) != 2 {
		t.Fatalf("List = %d items, total %d, %v", len(items), total, err)
	}
	for _, e := range items {
		if e.MessageID == "m1" && (e.Subdomain == nil || *e.Subdomain != "shop.example.com" || e.PrimaryDomain != "example.com") {
			t.Fatalf("hierarchy not derived: %+v", e)
		}
	}
}

func TestPendingIngest_Validation(t *testing.T) {
	svc := &PendingService{DB: newTestDB(t)}
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing user: %v", err)
	}
	big := make([]ingest.Fields, MaxIngestBatch+1)
	if _, err := svc.Ingest(ctx, me, big); !errors.Is(err, ErrValidation) {
		t.Fatalf("oversized batch: %v", err)
	}
	if _, _, err := svc.List(ctx, me, "archive", 0, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad filter: %v", err)
	}
}

func TestPendingIngestRaw(t *testing.T) {
	db := newTestDB(t)
	svc := &PendingService{DB: db}
	ctx := context.Background()

	raw := "From: Bank <noreply@custcomm.icicibank.com>\r\n" +
		"To: me@inbox.com\r\n" +
		"Subject: Webinar\r\n" +
		"Message-ID: <w1@icicibank.com>\r\n" +
		"\r\nbody\r\n"
	res, err := svc.IngestRaw(ctx, me, strings.NewReader(raw))
	if err != nil || res.Inserted != 1 {
		t.Fatalf("IngestRaw = %+v, %v", res, err)
	}

	if _, err := svc.IngestRaw(ctx, me, strings.NewReader("Subject: no sender\r\n\r\n")); !errors.Is(err, ErrValidation) {
		t.Fatalf("no sender: %v", err)
	}
}

func TestPendingList_FiltersByAction(t *testing.T) {
	db := newTestDB(t)
	pending := &PendingService{DB: db}
	rules := NewRuleService(db, nil)
	eval := &EvaluationService{DB: db}
	ctx := context.Background()

	mustModify(t, rules, ModifyRequest{Operation: "ADD", Dimension: "domain", Action: "delete", KeyValue: "spam.com"})
	ingestFields(t, pending, me,
		ingest.Fields{MessageID: "1", From: "x@spam.com"},
		ingest.Fields{MessageID: "2", From: "x@ham.com"},
	)
	if _, err := eval.EvaluatePendingEmails(ctx, me); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	items, total, err := pending.List(ctx, me, "delete", 0, 10)
	if err != nil || total != 1 || len(items) != 1 || *items[0].Action != domain.ActionDelete {
		t.Fatalf("filtered list = %+v, %d, %v", items, total, err)
	}
}

func TestAuditList(t *testing.T) {
	db := newTestDB(t)
	rules := NewRuleService(db, nil)
	audit := &AuditService{DB: db}

	mustModify(t, rules, ModifyRequest{Operation: "ADD", Dimension: "domain", Action: "delete", KeyValue: "spam.com"})
	mustModify(t, rules, ModifyRequest{Operation: "UPDATE", Dimension: "domain", Action: "keep", KeyValue: "spam.com"})

	items, total, err := audit.List(context.Background(), me, 0, 1)
	if err != nil || total != 2 || len(items) != 1 {
		t.Fatalf("audit page = %+v, %d, %v", items, total, err)
	}
	if items[0].ActionType != domain.AuditUpdate {
		t.Fatalf("newest entry first, got %s", items[0].ActionType)
	}
}
