// Package services – RuleService
//
// This file implements RuleService, the only component allowed to write the
// rule tables (criteria, patterns, email_patterns). Callers pass raw keys and
// intent; the service decides what kind of rule node a key is with mailaddr,
// so a subdomain can never be stored as a domain or without its parent link.
//
// Every state-changing call runs in one transaction and writes exactly one
// audit row alongside the data rows. No-ops write nothing. After commit the
// user's cached rule set snapshot is dropped.
//
// Observability: Modify is OpenTelemetry-instrumented and counted in
// triage_rule_mutations_total.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/cache"
	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/mailaddr"
	"github.com/tbourn/go-mail-triage/internal/observability"
	"github.com/tbourn/go-mail-triage/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
)

// MaxPatternRunes bounds subject pattern length (matches the column size).
const MaxPatternRunes = 255

// ModifyRequest is the low-level rule mutation. Operation, Dimension, Action
// and OldAction are raw strings and are validated by Modify.
//
// KeyValue is interpreted per dimension:
//   - domain, subdomain: the domain name
//   - email, from_email, to_email: the address (CLEAR and GET on from/to
//     also accept a bare domain naming the anchor)
//   - subject: the pattern text; its owner is ParentSubdomain when set,
//     else ParentDomain
//
// For the other dimensions ParentDomain and ParentSubdomain are optional
// consistency checks against what mailaddr derives from KeyValue.
type ModifyRequest struct {
	Operation       string `json:"operation"`
	Dimension       string `json:"dimension"`
	Action          string `json:"action,omitempty"`
	KeyValue        string `json:"key_value"`
	UserEmail       string `json:"-"`
	ParentDomain    string `json:"parent_domain,omitempty"`
	ParentSubdomain string `json:"parent_subdomain,omitempty"`
	OldAction       string `json:"old_action,omitempty"`
}

// ModifyResult is the explicit outcome of every Modify/ModifyCriteria call.
type ModifyResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Code     Code      `json:"code"`
	RecordID *uint64   `json:"record_id,omitempty"`
	AuditID  *uint64   `json:"audit_id,omitempty"`
	Data     *RuleView `json:"data,omitempty"`
}

// RuleView is the read model returned by GET.
type RuleView struct {
	Entry         *domain.Criteria      `json:"entry"`
	Subdomains    []SubdomainView       `json:"subdomains,omitempty"`
	Patterns      []domain.Pattern      `json:"patterns"`
	EmailPatterns []domain.EmailPattern `json:"email_patterns"`
}

// SubdomainView is a subdomain entry listed under its domain.
type SubdomainView struct {
	domain.Criteria
	PatternCount int64 `json:"pattern_count"`
}

// RuleService owns rule classification and mutation.
type RuleService struct {
	// DB is the database handle used for all rule operations.
	DB *gorm.DB
	// Cache holds rule set snapshots; nil disables caching.
	Cache cache.RuleSetCache
}

// NewRuleService wires a RuleService. c may be nil.
func NewRuleService(db *gorm.DB, c cache.RuleSetCache) *RuleService {
	return &RuleService{DB: db, Cache: c}
}

// command is a validated ModifyRequest.
type command struct {
	op        domain.Operation
	dim       domain.Dimension
	action    *domain.Action
	oldAction *domain.Action
	user      string

	// key is the normalized KeyValue: domain name, address or folded
	// pattern. Empty for whole-scope CLEAR/GET on subject and from/to.
	key string
	// primary is the primary domain the rule belongs to.
	primary string
	// scopeKey/scopeType name the criteria entry owning a subject pattern.
	scopeKey  string
	scopeType domain.KeyType
	dir       domain.Direction
}

// Modify applies one rule operation for req.UserEmail.
//
// Semantics:
//   - ADD is find-or-create by unique key; repeating it converges.
//   - REMOVE of a missing rule succeeds with an explanatory message.
//   - UPDATE and GET of a missing rule fail with ErrRuleNotFound.
//   - CLEAR removes a whole subtree (criteria dimensions) or every pattern
//     of the addressed scope (subject, from_email, to_email).
//
// The returned result is never nil. On failure err is also returned and the
// result carries Success=false with the classified Code.
func (s *RuleService) Modify(ctx context.Context, req ModifyRequest) (*ModifyResult, error) {
	tr := observability.Tracer("services/RuleService")
	ctx, span := tr.Start(ctx, "Modify",
		trace.WithAttributes(
			attribute.String("rule.operation", req.Operation),
			attribute.String("rule.dimension", req.Dimension),
		),
	)
	defer span.End()

	cmd, err := parseRequest(req)
	if err != nil {
		return s.failed(span, cmd, err)
	}
	return s.run(ctx, span, cmd)
}

func (s *RuleService) run(ctx context.Context, span trace.Span, cmd *command) (*ModifyResult, error) {
	if !cmd.op.Mutates() {
		view, err := s.get(ctx, cmd)
		if err != nil {
			return s.failed(span, cmd, err)
		}
		observeMutation(cmd, CodeOK)
		return &ModifyResult{Success: true, Code: CodeOK, Message: "ok", RecordID: &view.Entry.ID, Data: view}, nil
	}

	var res *ModifyResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := &mutator{ctx: ctx, tx: tx, cmd: cmd}
		ch, err := m.apply()
		if err != nil {
			return persistence(err)
		}
		res = &ModifyResult{Success: true, Code: CodeOK, Message: ch.message}
		if ch.recordID != 0 {
			id := ch.recordID
			res.RecordID = &id
		}
		if ch.action == "" {
			return nil
		}
		entry, err := writeAudit(ctx, tx, m, ch)
		if err != nil {
			return persistence(err)
		}
		res.AuditID = &entry.ID
		return nil
	})
	if err != nil {
		return s.failed(span, cmd, persistence(err))
	}

	if res.AuditID != nil {
		s.invalidate(ctx, cmd.user)
		span.SetAttributes(attribute.Int64("audit.id", int64(*res.AuditID)))
	}
	observeMutation(cmd, CodeOK)
	return res, nil
}

func (s *RuleService) failed(span trace.Span, cmd *command, err error) (*ModifyResult, error) {
	code := CodeOf(err)
	if code == CodePersistence {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observeMutation(cmd, code)
	return &ModifyResult{Success: false, Code: code, Message: messageOf(err)}, err
}

func (s *RuleService) invalidate(ctx context.Context, user string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, user); err != nil {
		log.Warn().Err(err).Msg("rule cache invalidate failed")
	}
}

// parseRequest validates req. The returned command is non-nil once the
// operation and dimension are known, even when err is set.
func parseRequest(req ModifyRequest) (*command, error) {
	op, err := domain.ParseOperation(req.Operation)
	if err != nil {
		return nil, invalidf("operation: %v", err)
	}
	dim, err := domain.ParseDimension(req.Dimension)
	if err != nil {
		return nil, invalidf("dimension: %v", err)
	}
	cmd := &command{op: op, dim: dim, user: mailaddr.Normalize(req.UserEmail)}
	if !mailaddr.Valid(cmd.user) {
		return cmd, invalidf("invalid user email %q", req.UserEmail)
	}

	if cmd.action, err = parseOptionalAction(req.Action); err != nil {
		return cmd, invalidf("action: %v", err)
	}
	if cmd.oldAction, err = parseOptionalAction(req.OldAction); err != nil {
		return cmd, invalidf("old_action: %v", err)
	}
	if op == domain.OpAdd || op == domain.OpUpdate {
		if cmd.action == nil {
			return cmd, invalidf("action is required for %s", op)
		}
		if err := checkActionFits(dim, *cmd.action); err != nil {
			return cmd, err
		}
	}

	parentDomain := strings.ToLower(strings.TrimSpace(req.ParentDomain))
	parentSub := strings.ToLower(strings.TrimSpace(req.ParentSubdomain))
	raw := strings.TrimSpace(req.KeyValue)

	switch dim {
	case domain.DimDomain, domain.DimSubdomain:
		p, err := parseDomainKey(raw, dim == domain.DimSubdomain)
		if err != nil {
			return cmd, err
		}
		cmd.key, cmd.primary = p.FullDomain, p.PrimaryDomain
		if dim == domain.DimSubdomain && parentSub != "" && parentSub != cmd.key {
			return cmd, invalidf("parent subdomain %q does not match %q", parentSub, cmd.key)
		}
	case domain.DimEmail:
		if !mailaddr.Valid(raw) {
			return cmd, invalidf("invalid email address %q", raw)
		}
		cmd.key = mailaddr.Normalize(raw)
		cmd.primary = mailaddr.Parse(cmd.key).PrimaryDomain
	case domain.DimFromEmail, domain.DimToEmail:
		cmd.dir, _ = dim.Direction()
		wholeScope := op == domain.OpClear || op == domain.OpGet
		switch {
		case mailaddr.Valid(raw):
			cmd.key = mailaddr.Normalize(raw)
			cmd.primary = mailaddr.Parse(cmd.key).PrimaryDomain
		case wholeScope && mailaddr.ValidDomain(raw):
			cmd.primary = mailaddr.ParseDomain(raw).PrimaryDomain
		case wholeScope && raw == "" && parentDomain != "":
			cmd.primary = mailaddr.ParseDomain(parentDomain).PrimaryDomain
		default:
			return cmd, invalidf("invalid email address %q", raw)
		}
	case domain.DimSubject:
		if err := cmd.parseSubject(raw, parentDomain, parentSub); err != nil {
			return cmd, err
		}
		return cmd, nil
	}

	if parentDomain != "" && parentDomain != cmd.primary {
		return cmd, invalidf("parent domain %q does not match %q", parentDomain, cmd.primary)
	}
	return cmd, nil
}

func (cmd *command) parseSubject(raw, parentDomain, parentSub string) error {
	switch {
	case parentSub != "":
		p, err := parseDomainKey(parentSub, true)
		if err != nil {
			return err
		}
		if parentDomain != "" && parentDomain != p.PrimaryDomain {
			return invalidf("parent domain %q does not match %q", parentDomain, p.PrimaryDomain)
		}
		cmd.scopeKey, cmd.scopeType, cmd.primary = p.FullDomain, domain.KeySubdomain, p.PrimaryDomain
	case parentDomain != "":
		p, err := parseDomainKey(parentDomain, false)
		if err != nil {
			return err
		}
		cmd.scopeKey, cmd.scopeType, cmd.primary = p.FullDomain, domain.KeyDomain, p.PrimaryDomain
	default:
		return invalidf("subject rules need a parent domain or subdomain")
	}

	if raw == "" {
		if cmd.op == domain.OpClear || cmd.op == domain.OpGet {
			return nil
		}
		return invalidf("subject pattern is empty")
	}
	if utf8.RuneCountInString(raw) > MaxPatternRunes {
		return invalidf("subject pattern longer than %d characters", MaxPatternRunes)
	}
	cmd.key = foldPattern(raw)
	return nil
}

// parseDomainKey validates a bare domain and checks that it is (or is not)
// a subdomain as the dimension requires.
func parseDomainKey(raw string, wantSub bool) (mailaddr.Parts, error) {
	if !mailaddr.ValidDomain(raw) {
		return mailaddr.Parts{}, invalidf("invalid domain %q", raw)
	}
	p := mailaddr.ParseDomain(raw)
	switch {
	case wantSub && !p.HasSubdomain:
		return p, invalidf("%q has no subdomain; use dimension domain", p.FullDomain)
	case !wantSub && p.HasSubdomain:
		return p, invalidf("%q is a subdomain of %q; use dimension subdomain", p.FullDomain, p.PrimaryDomain)
	}
	return p, nil
}

func parseOptionalAction(s string) (*domain.Action, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	a, err := domain.ParseAction(s)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func checkActionFits(dim domain.Dimension, a domain.Action) error {
	if _, isAddr := dim.Direction(); isAddr {
		if !a.AddressRule() {
			return invalidf("action %q is not allowed for %s rules (keep or delete)", a, dim)
		}
		return nil
	}
	if !a.Storable() {
		return invalidf("action %q cannot be stored on a rule", a)
	}
	return nil
}

func foldPattern(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// get builds the read view addressed by cmd.
func (s *RuleService) get(ctx context.Context, cmd *command) (*RuleView, error) {
	db := s.DB.WithContext(ctx)
	switch cmd.dim {
	case domain.DimSubject:
		entry, err := findEntry(ctx, db, cmd.user, cmd.scopeKey, cmd.scopeType)
		if err != nil {
			return nil, err
		}
		view := &RuleView{Entry: entry, EmailPatterns: []domain.EmailPattern{}}
		if cmd.key == "" {
			view.Patterns, err = repo.ListPatterns(ctx, db, cmd.user, entry.ID)
			return view, persistence(err)
		}
		p, err := repo.FindPattern(ctx, db, cmd.user, entry.ID, cmd.key)
		if err != nil {
			return nil, notFoundOr(err)
		}
		view.Patterns = []domain.Pattern{*p}
		return view, nil

	case domain.DimFromEmail, domain.DimToEmail:
		anchor, err := findEntry(ctx, db, cmd.user, cmd.primary, domain.KeyDomain)
		if err != nil {
			return nil, err
		}
		view := &RuleView{Entry: anchor, Patterns: []domain.Pattern{}}
		if cmd.key == "" {
			view.EmailPatterns, err = repo.ListEmailPatterns(ctx, db, cmd.user, cmd.dir, anchor.ID)
			return view, persistence(err)
		}
		ep, err := repo.FindEmailPattern(ctx, db, cmd.user, anchor.ID, cmd.dir, cmd.key)
		if err != nil {
			return nil, notFoundOr(err)
		}
		view.EmailPatterns = []domain.EmailPattern{*ep}
		return view, nil
	}

	kt, _ := cmd.dim.KeyType()
	entry, err := findEntry(ctx, db, cmd.user, cmd.key, kt)
	if err != nil {
		return nil, err
	}
	view := &RuleView{Entry: entry, Patterns: []domain.Pattern{}, EmailPatterns: []domain.EmailPattern{}}
	if kt == domain.KeyEmail {
		return view, nil
	}
	if view.Patterns, err = repo.ListPatterns(ctx, db, cmd.user, entry.ID); err != nil {
		return nil, persistence(err)
	}
	if kt == domain.KeySubdomain {
		return view, nil
	}
	if view.EmailPatterns, err = repo.ListEmailPatterns(ctx, db, cmd.user, "", entry.ID); err != nil {
		return nil, persistence(err)
	}
	subs, err := repo.ListSubdomains(ctx, db, cmd.user, entry.ID)
	if err != nil {
		return nil, persistence(err)
	}
	ids := make([]uint64, 0, len(subs))
	for _, sd := range subs {
		ids = append(ids, sd.ID)
	}
	counts, err := repo.CountPatternsByCriteria(ctx, db, cmd.user, ids...)
	if err != nil {
		return nil, persistence(err)
	}
	for _, sd := range subs {
		view.Subdomains = append(view.Subdomains, SubdomainView{Criteria: sd, PatternCount: counts[sd.ID]})
	}
	return view, nil
}

func findEntry(ctx context.Context, db *gorm.DB, user, key string, kt domain.KeyType) (*domain.Criteria, error) {
	c, err := repo.FindCriteria(ctx, db, user, key, kt)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return c, nil
}

func notFoundOr(err error) error {
	if repo.IsNotFound(err) {
		return ErrRuleNotFound
	}
	return persistence(err)
}
