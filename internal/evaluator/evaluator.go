// Package evaluator assigns a triage action to pending emails from a user's
// rule set using a fixed priority ladder.
//
// Evaluation is a pure function of (RuleSet, emails): it performs no I/O and
// resets any previous decision before deciding, so running it twice on the
// same input yields the same result. A compiled Matcher is immutable and safe
// for concurrent use.
package evaluator

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-mail-triage/internal/domain"
	"github.com/tbourn/go-mail-triage/internal/mailaddr"
)

// Ladder levels, highest priority first. The first level that matches
// decides the action.
const (
	LevelEmailCriteria    = 1
	LevelFromKeep         = 2
	LevelFromDelete       = 3
	LevelToKeep           = 4
	LevelToDelete         = 5
	LevelSubjectKeep      = 6
	LevelSubjectDelete    = 7
	LevelSubjectDelete1d  = 8
	LevelSubjectDelete10d = 9
	LevelSubdomainDefault = 10
	LevelDomainDefault    = 11
	LevelUndecided        = 12
)

// subjectTiers maps subject pattern actions to their ladder level.
var subjectTiers = []struct {
	action domain.Action
	level  int
}{
	{domain.ActionKeep, LevelSubjectKeep},
	{domain.ActionDelete, LevelSubjectDelete},
	{domain.ActionDelete1d, LevelSubjectDelete1d},
	{domain.ActionDelete10d, LevelSubjectDelete10d},
}

// Decision is the outcome for one email.
type Decision struct {
	Action domain.Action
	Level  int
	// Rule names the rule that fired as "<kind>:<literal>", e.g.
	// "domain:spam.com" or "subject_keep:important". Empty for undecided.
	Rule string
}

type subjectRule struct {
	folded string
	raw    string
}

// Matcher is a compiled, read-only view of one user's rule set.
type Matcher struct {
	emailDefaults map[string]domain.Action
	fromKeep      map[string]struct{}
	fromDelete    map[string]struct{}
	toKeep        map[string]struct{}
	toDelete      map[string]struct{}

	domains    map[string]domain.Criteria
	subdomains map[string]domain.Criteria

	// subjects[criteriaID][action] holds patterns in ascending id order.
	subjects map[uint64]map[domain.Action][]subjectRule
}

// Compile builds lookup tables from rs. Rows with an unexpected shape
// (e.g. a pattern carrying "undecided") are ignored.
func Compile(rs domain.RuleSet) *Matcher {
	m := &Matcher{
		emailDefaults: make(map[string]domain.Action),
		fromKeep:      make(map[string]struct{}),
		fromDelete:    make(map[string]struct{}),
		toKeep:        make(map[string]struct{}),
		toDelete:      make(map[string]struct{}),
		domains:       make(map[string]domain.Criteria),
		subdomains:    make(map[string]domain.Criteria),
		subjects:      make(map[uint64]map[domain.Action][]subjectRule),
	}

	for _, c := range rs.Criteria {
		key := mailaddr.Normalize(c.KeyValue)
		switch c.KeyType {
		case domain.KeyEmail:
			if c.DefaultAction != nil && c.DefaultAction.Storable() {
				m.emailDefaults[key] = *c.DefaultAction
			}
		case domain.KeyDomain:
			m.domains[key] = c
		case domain.KeySubdomain:
			m.subdomains[key] = c
		}
	}

	for _, ep := range rs.EmailPatterns {
		addr := mailaddr.Normalize(ep.Email)
		switch {
		case ep.Direction == domain.DirectionFrom && ep.Action == domain.ActionKeep:
			m.fromKeep[addr] = struct{}{}
		case ep.Direction == domain.DirectionFrom && ep.Action == domain.ActionDelete:
			m.fromDelete[addr] = struct{}{}
		case ep.Direction == domain.DirectionTo && ep.Action == domain.ActionKeep:
			m.toKeep[addr] = struct{}{}
		case ep.Direction == domain.DirectionTo && ep.Action == domain.ActionDelete:
			m.toDelete[addr] = struct{}{}
		}
	}

	fold := cases.Fold()
	pats := append([]domain.Pattern(nil), rs.Patterns...)
	sort.Slice(pats, func(i, j int) bool { return pats[i].ID < pats[j].ID })
	for _, p := range pats {
		if !p.Action.Storable() || strings.TrimSpace(p.Pattern) == "" {
			continue
		}
		byAction := m.subjects[p.CriteriaID]
		if byAction == nil {
			byAction = make(map[domain.Action][]subjectRule)
			m.subjects[p.CriteriaID] = byAction
		}
		byAction[p.Action] = append(byAction[p.Action], subjectRule{
			folded: fold.String(p.Pattern),
			raw:    p.Pattern,
		})
	}
	return m
}

// Decide runs the ladder for a single email. Domain and subdomain come from
// the email's stored fields, falling back to parsing FromEmail.
func (m *Matcher) Decide(e domain.PendingEmail) Decision {
	return m.decide(e, cases.Fold())
}

func (m *Matcher) decide(e domain.PendingEmail, fold cases.Caser) Decision {
	from := mailaddr.Normalize(e.FromEmail)
	to := mailaddr.Normalize(e.ToEmail)

	if a, ok := m.emailDefaults[from]; ok {
		return Decision{Action: a, Level: LevelEmailCriteria, Rule: "email:" + from}
	}
	if _, ok := m.fromKeep[from]; ok {
		return Decision{Action: domain.ActionKeep, Level: LevelFromKeep, Rule: "from_email_keep:" + from}
	}
	if _, ok := m.fromDelete[from]; ok {
		return Decision{Action: domain.ActionDelete, Level: LevelFromDelete, Rule: "from_email_delete:" + from}
	}
	if _, ok := m.toKeep[to]; ok {
		return Decision{Action: domain.ActionKeep, Level: LevelToKeep, Rule: "to_email_keep:" + to}
	}
	if _, ok := m.toDelete[to]; ok {
		return Decision{Action: domain.ActionDelete, Level: LevelToDelete, Rule: "to_email_delete:" + to}
	}

	primary, sub := hierarchyOf(e)
	dom, hasDom := m.domains[primary]
	var subEntry domain.Criteria
	hasSub := false
	if sub != "" {
		subEntry, hasSub = m.subdomains[sub]
	}

	// Subject patterns come from the subdomain entry when one exists,
	// otherwise from the domain entry.
	var scope map[domain.Action][]subjectRule
	switch {
	case hasSub:
		scope = m.subjects[subEntry.ID]
	case hasDom:
		scope = m.subjects[dom.ID]
	}
	if len(scope) > 0 && e.Subject != "" {
		subject := fold.String(e.Subject)
		for _, tier := range subjectTiers {
			for _, r := range scope[tier.action] {
				if strings.Contains(subject, r.folded) {
					return Decision{Action: tier.action, Level: tier.level, Rule: "subject_" + string(tier.action) + ":" + r.raw}
				}
			}
		}
	}

	if hasSub && subEntry.DefaultAction != nil && subEntry.DefaultAction.Storable() {
		return Decision{Action: *subEntry.DefaultAction, Level: LevelSubdomainDefault, Rule: "subdomain:" + sub}
	}
	if hasDom && dom.DefaultAction != nil && dom.DefaultAction.Storable() {
		return Decision{Action: *dom.DefaultAction, Level: LevelDomainDefault, Rule: "domain:" + primary}
	}
	return Decision{Action: domain.ActionUndecided, Level: LevelUndecided}
}

// hierarchyOf returns the primary domain and, when the sender uses one, the
// full subdomain of e.
func hierarchyOf(e domain.PendingEmail) (primary, sub string) {
	primary = mailaddr.Normalize(e.PrimaryDomain)
	if e.Subdomain != nil {
		sub = mailaddr.Normalize(*e.Subdomain)
	}
	if primary == "" {
		p := mailaddr.Parse(e.FromEmail)
		primary = p.PrimaryDomain
		if p.HasSubdomain && sub == "" {
			sub = p.FullDomain
		}
	}
	if sub == primary {
		sub = ""
	}
	return primary, sub
}

// Apply resets and then writes the decision fields on every email of batch,
// returning a new slice. The input slice is not modified.
func (m *Matcher) Apply(batch []domain.PendingEmail) []domain.PendingEmail {
	fold := cases.Fold()
	out := make([]domain.PendingEmail, len(batch))
	for i, e := range batch {
		e.Action, e.MatchedLevel, e.MatchedRule = nil, nil, nil

		d := m.decide(e, fold)
		action, level := d.Action, d.Level
		e.Action = &action
		e.MatchedLevel = &level
		if d.Rule != "" {
			rule := d.Rule
			e.MatchedRule = &rule
		}
		out[i] = e
	}
	return out
}

// Evaluate compiles rs and applies it to emails.
func Evaluate(rs domain.RuleSet, emails []domain.PendingEmail) []domain.PendingEmail {
	return Compile(rs).Apply(emails)
}

// Summarize counts decided actions, keyed by action name.
func Summarize(emails []domain.PendingEmail) map[domain.Action]int {
	out := make(map[domain.Action]int, len(domain.Actions))
	for _, e := range emails {
		if e.Action == nil {
			continue
		}
		out[*e.Action]++
	}
	return out
}
