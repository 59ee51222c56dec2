package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-mail-triage/internal/services"
)

// rulesFile is the YAML document read by "rulesctl import".
//
//	user: me@inbox.com
//	rules:
//	  - level: domain
//	    from: noreply@custcomm.icicibank.com
//	    action: delete
//	  - level: subdomain
//	    from: alerts@custcomm.icicibank.com
//	    subject_pattern: statement
//	    action: keep
//	  - dimension: email
//	    key: boss@work.com
//	    action: keep
type rulesFile struct {
	User  string      `yaml:"user"`
	Rules []ruleEntry `yaml:"rules"`
}

// ruleEntry is either an observed-message rule (level set) applied through
// ModifyCriteria, or a low-level rule (dimension set) applied through Modify.
type ruleEntry struct {
	Operation string `yaml:"operation"`
	User      string `yaml:"user"`
	Action    string `yaml:"action"`

	Level          string `yaml:"level"`
	From           string `yaml:"from"`
	To             string `yaml:"to"`
	Subject        string `yaml:"subject"`
	SubjectPattern string `yaml:"subject_pattern"`

	Dimension       string `yaml:"dimension"`
	Key             string `yaml:"key"`
	ParentDomain    string `yaml:"parent_domain"`
	ParentSubdomain string `yaml:"parent_subdomain"`
	OldAction       string `yaml:"old_action"`
}

// ruleApplier is the slice of services.RuleService used by import.
type ruleApplier interface {
	Modify(ctx context.Context, req services.ModifyRequest) (*services.ModifyResult, error)
	ModifyCriteria(ctx context.Context, req services.CriteriaRequest) (*services.ModifyResult, error)
}

// importReport summarizes one import run.
type importReport struct {
	Applied  int // committed with an audit entry
	Noop     int // accepted but nothing changed
	Failures []string
}

func loadRulesFile(r io.Reader) (*rulesFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var rf rulesFile
	if err := dec.Decode(&rf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("rules file is empty")
		}
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for i, e := range rf.Rules {
		hasLevel, hasDim := e.Level != "", e.Dimension != ""
		switch {
		case hasLevel == hasDim:
			return nil, fmt.Errorf("rule %d: set exactly one of level or dimension", i+1)
		case e.User == "" && rf.User == "":
			return nil, fmt.Errorf("rule %d: no user", i+1)
		}
	}
	return &rf, nil
}

// owner picks the mailbox for entry: the override flag, then the entry, then
// the file default.
func (rf *rulesFile) owner(e ruleEntry, override string) string {
	if override != "" {
		return override
	}
	if e.User != "" {
		return e.User
	}
	return rf.User
}

// applyRules runs every entry in file order. Validation and not-found
// failures are collected and the import continues; a storage failure stops it.
func applyRules(ctx context.Context, svc ruleApplier, rf *rulesFile, userOverride string) (*importReport, error) {
	rep := &importReport{}
	for i, e := range rf.Rules {
		op := e.Operation
		if strings.TrimSpace(op) == "" {
			op = "ADD"
		}
		user := rf.owner(e, userOverride)

		var (
			res *services.ModifyResult
			err error
		)
		if e.Level != "" {
			res, err = svc.ModifyCriteria(ctx, services.CriteriaRequest{
				Operation:      op,
				Action:         e.Action,
				Level:          e.Level,
				FromEmail:      e.From,
				ToEmail:        e.To,
				Subject:        e.Subject,
				SubjectPattern: e.SubjectPattern,
				UserEmail:      user,
			})
		} else {
			res, err = svc.Modify(ctx, services.ModifyRequest{
				Operation:       op,
				Dimension:       e.Dimension,
				Action:          e.Action,
				KeyValue:        e.Key,
				ParentDomain:    e.ParentDomain,
				ParentSubdomain: e.ParentSubdomain,
				OldAction:       e.OldAction,
				UserEmail:       user,
			})
		}

		switch {
		case services.CodeOf(err) == services.CodePersistence:
			return rep, fmt.Errorf("rule %d: %w", i+1, err)
		case err != nil:
			rep.Failures = append(rep.Failures, fmt.Sprintf("rule %d: %s", i+1, res.Message))
		case res.AuditID != nil:
			rep.Applied++
		default:
			rep.Noop++
		}
	}
	return rep, nil
}
