package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Set is a compiled, priority-ordered rule list bound to one environment
// type. Rules fire in priority order; an exclusive rule blocks
// lower-priority rules in the same category.
type Set struct {
	name  string
	rules []*Rule
}

// Compile compiles every condition against env's type and sorts the rules
// by descending priority. The input rules are copied, so the same templates
// can be compiled into several sets.
func Compile(name string, rules []Rule, env any) (*Set, error) {
	compiled := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		prog, err := expr.Compile(r.ConditionSrc, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		rc := r
		rc.program = prog
		compiled = append(compiled, &rc)
	}
	slices.SortStableFunc(compiled, func(a, b *Rule) int {
		return b.Priority - a.Priority
	})
	return &Set{name: name, rules: compiled}, nil
}

// MustCompile is Compile for static rule tables; it panics on error.
func MustCompile(name string, rules []Rule, env any) *Set {
	s, err := Compile(name, rules, env)
	if err != nil {
		panic(err)
	}
	return s
}

// First returns the highest-priority rule whose condition holds, or nil.
func (s *Set) First(env any) (*Rule, error) {
	var errs []error
	for _, r := range s.rules {
		ok, err := run(r, env)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return r, errors.Join(errs...)
		}
	}
	return nil, errors.Join(errs...)
}

// Evaluate returns every rule that fires, honoring exclusive categories.
// A rule whose condition errors is skipped and logged; the errors are
// returned joined alongside the matches.
func (s *Set) Evaluate(env any) ([]*Rule, error) {
	fired := make(map[string]bool) // category → exclusive rule already fired
	var matches []*Rule
	var errs []error
	for _, r := range s.rules {
		if r.Category != "" && fired[r.Category] {
			continue
		}
		ok, err := run(r, env)
		if err != nil {
			slog.Warn("rule condition error", "set", s.name, "rule", r.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		matches = append(matches, r)
		if r.Exclusive && r.Category != "" {
			fired[r.Category] = true
		}
	}
	return matches, errors.Join(errs...)
}

// Names lists rule names in evaluation order.
func (s *Set) Names() []string {
	names := make([]string, len(s.rules))
	for i, r := range s.rules {
		names[i] = r.Name
	}
	return names
}

// Len returns the number of rules in the set.
func (s *Set) Len() int { return len(s.rules) }

func run(r *Rule, env any) (bool, error) {
	result, err := vm.Run(r.program, env)
	if err != nil {
		return false, fmt.Errorf("rule %q: %w", r.Name, err)
	}
	match, ok := result.(bool)
	return ok && match, nil
}
