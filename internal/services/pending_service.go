// Package services – PendingService
//
// This file implements PendingService, the ingestion side of the pending
// email batch. Messages arrive either as already-extracted fields (JSON) or
// as raw RFC 5322 text; both are normalized by the ingest package, which
// derives each sender's primary domain and subdomain.
package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/ingest"
	"github.com/tbourn/go-mail-triage/internal/mailaddr"
	"github.com/tbourn/go-mail-triage/internal/observability"
	"github.com/tbourn/go-mail-triage/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MaxIngestBatch bounds the number of messages accepted per call.
const MaxIngestBatch = 1000

// Rejection explains why one message of a batch was skipped.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// IngestResult reports what an ingestion call stored.
type IngestResult struct {
	Received int         `json:"received"`
	Inserted int64       `json:"inserted"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// PendingService stores and lists pending emails.
type PendingService struct {
	DB *gorm.DB
}

// Ingest validates and stores a batch for userEmail. Invalid messages are
// reported in Rejected and do not fail the batch; messages already known by
// message id are skipped.
func (s *PendingService) Ingest(ctx context.Context, userEmail string, batch []ingest.Fields) (*IngestResult, error) {
	tr := observability.Tracer("services/PendingService")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(
			attribute.String("user.email", userEmail),
			attribute.Int("batch.size", len(batch)),
		),
	)
	defer span.End()

	user, err := ownerOf(userEmail)
	if err != nil {
		return nil, err
	}
	if len(batch) > MaxIngestBatch {
		return nil, invalidf("batch of %d exceeds %d messages", len(batch), MaxIngestBatch)
	}

	res := &IngestResult{Received: len(batch)}
	rows := make([]domain.PendingEmail, 0, len(batch))
	for i, f := range batch {
		e, err := ingest.NewPendingEmail(user, f)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Reason: err.Error()})
			continue
		}
		rows = append(rows, e)
	}
	if res.Inserted, err = repo.InsertPendingEmails(ctx, s.DB, rows); err != nil {
		return nil, persistence(err)
	}
	return res, nil
}

// IngestRaw parses one RFC 5322 message and stores it for userEmail.
func (s *PendingService) IngestRaw(ctx context.Context, userEmail string, r io.Reader) (*IngestResult, error) {
	user, err := ownerOf(userEmail)
	if err != nil {
		return nil, err
	}
	f, err := ingest.ParseMessage(r)
	if err != nil {
		if errors.Is(err, ingest.ErrNoSender) || errors.Is(err, ingest.ErrMalformed) {
			return nil, invalidf("%v", err)
		}
		return nil, persistence(err)
	}
	return s.Ingest(ctx, user, []ingest.Fields{f})
}

// List returns one page of userEmail's pending emails, optionally filtered
// by decided action, plus the total matching count.
func (s *PendingService) List(ctx context.Context, userEmail, action string, offset, limit int) ([]domain.PendingEmail, int64, error) {
	user, err := ownerOf(userEmail)
	if err != nil {
		return nil, 0, err
	}
	filter, err := parseOptionalAction(action)
	if err != nil {
		return nil, 0, invalidf("action: %v", err)
	}
	total, err := repo.CountPendingEmails(ctx, s.DB, user, filter)
	if err != nil {
		return nil, 0, persistence(err)
	}
	items, err := repo.ListPendingPage(ctx, s.DB, user, filter, offset, limit)
	if err != nil {
		return nil, 0, persistence(err)
	}
	return items, total, nil
}

// AuditService exposes the append-only audit trail for reporting.
type AuditService struct {
	DB *gorm.DB
}

// List returns one page of userEmail's audit entries, newest first.
func (s *AuditService) List(ctx context.Context, userEmail string, offset, limit int) ([]domain.AuditLog, int64, error) {
	user, err := ownerOf(userEmail)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.CountAudit(ctx, s.DB, user)
	if err != nil {
		return nil, 0, persistence(err)
	}
	items, err := repo.ListAuditPage(ctx, s.DB, user, offset, limit)
	if err != nil {
		return nil, 0, persistence(err)
	}
	return items, total, nil
}

func ownerOf(userEmail string) (string, error) {
	user := mailaddr.Normalize(userEmail)
	if !mailaddr.Valid(user) || strings.ContainsAny(user, ",;") {
		return "", invalidf("invalid user email %q", userEmail)
	}
	return user, nil
}
