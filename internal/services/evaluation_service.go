// Package services – EvaluationService
//
// This file implements EvaluationService, which re-classifies a user's whole
// pending batch: decisions are reset, the rule set is loaded (from the
// snapshot cache when possible) and every email is decided by the evaluator.
// The batch is read, decided and written back in one transaction, so a
// concurrent rule change is either fully seen or not seen at all.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/cache"
	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/evaluator"
	"github.com/tbourn/go-mail-triage/internal/mailaddr"
	"github.com/tbourn/go-mail-triage/internal/observability"
	"github.com/tbourn/go-mail-triage/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultConcurrency bounds EvaluateAllUsers when Concurrency is unset.
const DefaultConcurrency = 4

// EvaluationSummary reports the outcome of one batch evaluation.
type EvaluationSummary struct {
	UserEmail string                `json:"user_email"`
	Summary   map[domain.Action]int `json:"summary"`
	Total     int                   `json:"total"`
}

// EvaluationService classifies pending emails.
type EvaluationService struct {
	DB    *gorm.DB
	Cache cache.RuleSetCache
	// Concurrency bounds how many users EvaluateAllUsers processes at once.
	Concurrency int
}

// EvaluatePendingEmails resets and re-decides every pending email of
// userEmail. Running it twice without rule changes yields the same result.
func (s *EvaluationService) EvaluatePendingEmails(ctx context.Context, userEmail string) (*EvaluationSummary, error) {
	tr := observability.Tracer("services/EvaluationService")
	ctx, span := tr.Start(ctx, "EvaluatePendingEmails",
		trace.WithAttributes(attribute.String("user.email", userEmail)),
	)
	defer span.End()

	user := mailaddr.Normalize(userEmail)
	if !mailaddr.Valid(user) {
		return nil, invalidf("invalid user email %q", userEmail)
	}

	start := time.Now()
	var decided []domain.PendingEmail
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.ResetPendingActions(ctx, tx, user); err != nil {
			return err
		}
		batch, err := repo.ListPendingEmails(ctx, tx, user)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		rs, err := s.ruleSet(ctx, tx, user)
		if err != nil {
			return err
		}
		decided = evaluator.Evaluate(rs, batch)
		return repo.SaveDecisions(ctx, tx, decided)
	})
	if err != nil {
		err = persistence(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	evalDuration.Observe(time.Since(start).Seconds())

	sum := evaluator.Summarize(decided)
	for _, a := range domain.Actions {
		if n := sum[a]; n > 0 {
			evaluatedEmails.WithLabelValues(string(a)).Add(float64(n))
		}
	}
	span.SetAttributes(attribute.Int("emails.total", len(decided)))
	return &EvaluationSummary{UserEmail: user, Summary: sum, Total: len(decided)}, nil
}

// ruleSet returns the user's rules, preferring the snapshot cache. A
// snapshot whose version lags the audit log is a miss, so a late Set from an
// evaluation that overlapped a mutation cannot outlive that mutation. Cache
// errors are logged and fall back to tx.
func (s *EvaluationService) ruleSet(ctx context.Context, tx *gorm.DB, user string) (domain.RuleSet, error) {
	if s.Cache != nil {
		version, err := repo.RulesVersion(ctx, tx, user)
		if err != nil {
			return domain.RuleSet{}, err
		}
		rs, ok, err := s.Cache.Get(ctx, user)
		if err != nil {
			log.Warn().Err(err).Msg("rule cache read failed")
		}
		if ok && rs.Version == version {
			return *rs, nil
		}
	}
	rs, err := repo.LoadRuleSet(ctx, tx, user)
	if err != nil {
		return rs, err
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, rs); err != nil {
			log.Warn().Err(err).Msg("rule cache write failed")
		}
	}
	return rs, nil
}

// EvaluateAllUsers evaluates every user that has pending emails. Users are
// independent, so batches run in parallel up to Concurrency. The first
// failure cancels the remaining work.
func (s *EvaluationService) EvaluateAllUsers(ctx context.Context) ([]EvaluationSummary, error) {
	users, err := repo.ListPendingUsers(ctx, s.DB)
	if err != nil {
		return nil, persistence(err)
	}
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	out := make([]EvaluationSummary, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range users {
		g.Go(func() error {
			sum, err := s.EvaluatePendingEmails(gctx, u)
			if err != nil {
				return err
			}
			out[i] = *sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
