package services

import (
	"context"
	"strings"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/mailaddr"
	"github.com/tbourn/go-mail-triage/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Criteria levels accepted by ModifyCriteria.
const (
	LevelDomain    = "domain"
	LevelSubdomain = "subdomain"
	LevelFromEmail = "from_email"
	LevelToEmail   = "to_email"
)

// CriteriaRequest carries raw observed message fields plus user intent.
// Callers never supply a key type or parent id; those are derived here.
type CriteriaRequest struct {
	Operation      string `json:"operation"`
	Dimension      string `json:"dimension,omitempty"`
	Action         string `json:"action,omitempty"`
	FromEmail      string `json:"from_email"`
	ToEmail        string `json:"to_email,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Level          string `json:"level"`
	SubjectPattern string `json:"subject_pattern,omitempty"`
	UserEmail      string `json:"-"`
}

// ModifyCriteria classifies req with mailaddr and applies the resulting
// low-level rule operation through the same path as Modify.
//
//   - level=domain: a subject pattern on the sender's primary domain, or the
//     domain's default action.
//   - level=subdomain: the sender must use a subdomain; its parent domain is
//     created first, then the subdomain entry linked to it.
//   - level=from_email (alias email): an email entry for the full sender.
//   - level=to_email: a "to" address rule anchored on the recipient's domain.
func (s *RuleService) ModifyCriteria(ctx context.Context, req CriteriaRequest) (*ModifyResult, error) {
	tr := observability.Tracer("services/RuleService")
	ctx, span := tr.Start(ctx, "ModifyCriteria",
		trace.WithAttributes(
			attribute.String("rule.operation", req.Operation),
			attribute.String("rule.level", req.Level),
		),
	)
	defer span.End()

	low, err := deriveRequest(req)
	if err != nil {
		return s.failed(span, nil, err)
	}
	span.SetAttributes(attribute.String("rule.dimension", low.Dimension))

	cmd, err := parseRequest(low)
	if err != nil {
		return s.failed(span, cmd, err)
	}
	return s.run(ctx, span, cmd)
}

// deriveRequest maps raw fields and intent onto a ModifyRequest.
func deriveRequest(req CriteriaRequest) (ModifyRequest, error) {
	out := ModifyRequest{
		Operation: req.Operation,
		Action:    req.Action,
		UserEmail: req.UserEmail,
	}
	level := strings.ToLower(strings.TrimSpace(req.Level))
	if level == "email" {
		level = LevelFromEmail
	}
	pattern := strings.TrimSpace(req.SubjectPattern)
	from := strings.TrimSpace(req.FromEmail)

	var derived domain.Dimension
	switch level {
	case LevelDomain, LevelSubdomain, LevelFromEmail:
		if !mailaddr.Valid(from) {
			return out, invalidf("invalid from email %q", req.FromEmail)
		}
	}

	parts := mailaddr.Parse(from)
	switch level {
	case LevelDomain:
		if pattern != "" {
			derived, out.KeyValue, out.ParentDomain = domain.DimSubject, pattern, parts.PrimaryDomain
		} else {
			derived, out.KeyValue = domain.DimDomain, parts.PrimaryDomain
		}
	case LevelSubdomain:
		if !parts.HasSubdomain {
			return out, invalidf("%q has no subdomain; use level domain", parts.FullDomain)
		}
		if pattern != "" {
			derived, out.KeyValue = domain.DimSubject, pattern
			out.ParentDomain, out.ParentSubdomain = parts.PrimaryDomain, parts.FullDomain
		} else {
			derived, out.KeyValue = domain.DimSubdomain, parts.FullDomain
		}
	case LevelFromEmail:
		if pattern != "" {
			return out, invalidf("subject patterns are not supported at level %s", level)
		}
		derived, out.KeyValue = domain.DimEmail, mailaddr.Normalize(from)
	case LevelToEmail:
		to := strings.TrimSpace(req.ToEmail)
		if !mailaddr.Valid(to) {
			return out, invalidf("invalid to email %q", req.ToEmail)
		}
		if pattern != "" {
			return out, invalidf("subject patterns are not supported at level %s", level)
		}
		derived, out.KeyValue = domain.DimToEmail, mailaddr.Normalize(to)
	default:
		return out, invalidf("unknown level %q", req.Level)
	}
	out.Dimension = string(derived)

	if strings.TrimSpace(req.Dimension) == "" {
		return out, nil
	}
	given, err := domain.ParseDimension(req.Dimension)
	if err != nil {
		return out, invalidf("dimension: %v", err)
	}
	if given != derived && !(derived == domain.DimEmail && given == domain.DimFromEmail) {
		return out, invalidf("dimension %s does not match level %s (derived %s)", given, level, derived)
	}
	return out, nil
}
