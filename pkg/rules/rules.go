package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/record"
)

var (
	// ErrUndeclaredVariable marks a rule that reads a variable its domain does not declare.
	ErrUndeclaredVariable = errors.New("rule references undeclared variable")
	ErrUnknownRule        = errors.New("unknown rule type")
)

// Violation is one record failing one rule.
type Violation struct {
	Rule     string
	Severity string
	Variable string
	Message  string
}

// Rule checks a single record. A nil violation means the record passes; the error is reserved for
// broken rules such as a failing script or a cancelled context.
type Rule interface {
	ID() string
	Check(ctx context.Context, rec *record.Record) (*Violation, error)
}

// Factory builds a rule from its declaration.
type Factory func(spec mapping.RuleSpec, domain *mapping.DomainSpec) (Rule, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register makes a rule type available to Build.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// Types lists the registered rule types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build instantiates every rule declared by a domain spec.
func Build(spec *mapping.DomainSpec) ([]Rule, error) {
	out := make([]Rule, 0, len(spec.Rules))
	for _, rs := range spec.Rules {
		for _, v := range rs.Referenced() {
			if !spec.Declares(v) {
				return nil, fmt.Errorf("domain %s rule %s: %w %s", spec.Domain, rs.ID, ErrUndeclaredVariable, v)
			}
		}
		mu.RLock()
		f, ok := registry[rs.Type]
		mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("domain %s rule %s: %w %q", spec.Domain, rs.ID, ErrUnknownRule, rs.Type)
		}
		r, err := f(rs, spec)
		if err != nil {
			return nil, fmt.Errorf("domain %s rule %s: %w", spec.Domain, rs.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// base carries the declaration shared by every built-in rule.
type base struct {
	spec mapping.RuleSpec
}

func (b base) ID() string { return b.spec.ID }

func (b base) violation(variable, fallback string) *Violation {
	msg := b.spec.Message
	if msg == "" {
		msg = fallback
	}
	sev := b.spec.Severity
	if sev == "" {
		sev = "error"
	}
	return &Violation{Rule: b.spec.ID, Severity: sev, Variable: variable, Message: msg}
}

// holds evaluates the rule's trigger: when equals one of the listed values, or is merely
// present when no values are listed. A rule without a trigger always applies.
func (b base) holds(rec *record.Record) bool {
	if b.spec.When == "" {
		return true
	}
	return matches(rec.Get(b.spec.When), b.spec.Equals)
}

func matches(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return value != ""
	}
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}
