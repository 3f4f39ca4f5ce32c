// Package strategy holds the tactical modules. Each module is a pure
// function of a colony snapshot and a world snapshot; none of them mutate
// the colony.
package strategy

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Option is one ranked candidate action.
type Option struct {
	Action   string  `json:"action"`
	Priority float64 `json:"priority"`
	Reason   string  `json:"reason"`
}

// Assessment is the common shape every module returns.
type Assessment struct {
	Module    string   `json:"module"`
	Options   []Option `json:"options"`
	Reasoning []string `json:"reasoning"`
}

// Primary returns the top-ranked option. ok is false when the module had
// nothing to offer.
func (a Assessment) Primary() (Option, bool) {
	if len(a.Options) == 0 {
		return Option{}, false
	}
	return a.Options[0], true
}

// Priority returns the priority of action, 0 when absent.
func (a Assessment) Priority(action string) float64 {
	for _, o := range a.Options {
		if o.Action == action {
			return o.Priority
		}
	}
	return 0
}

func (a *Assessment) add(action string, priority float64, format string, args ...any) {
	a.Options = append(a.Options, Option{Action: action, Priority: model.Clamp01(priority), Reason: fmt.Sprintf(format, args...)})
}

// rank orders options by priority, highest first, keeping insertion order
// for ties.
func (a *Assessment) rank() {
	slices.SortStableFunc(a.Options, func(x, y Option) int {
		return cmp.Compare(y.Priority, x.Priority)
	})
	for _, o := range a.Options {
		if o.Priority > 0 {
			a.Reasoning = append(a.Reasoning, fmt.Sprintf("%s (%.2f): %s", o.Action, o.Priority, o.Reason))
		}
	}
}

// Config bundles the tuning of every module.
type Config struct {
	Resource ResourceConfig `mapstructure:"resource"`
	Defense  DefenseConfig  `mapstructure:"defense"`
	Attack   AttackConfig   `mapstructure:"attack"`
	Growth   GrowthConfig   `mapstructure:"growth"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Resource: DefaultResourceConfig(),
		Defense:  DefaultDefenseConfig(),
		Attack:   DefaultAttackConfig(),
		Growth:   DefaultGrowthConfig(),
	}
}

func (c Config) Validate() error {
	if err := c.Resource.Validate(); err != nil {
		return err
	}
	if err := c.Defense.Validate(); err != nil {
		return err
	}
	if err := c.Attack.Validate(); err != nil {
		return err
	}
	return c.Growth.Validate()
}

// Report is the output of all four modules for one tick.
type Report struct {
	Resource ResourceAssessment `json:"resource"`
	Defense  DefenseAssessment  `json:"defense"`
	Attack   AttackAssessment   `json:"attack"`
	Growth   GrowthAssessment   `json:"growth"`
}

// EvaluateAll runs every module against the same snapshots.
func EvaluateAll(cfg Config, c model.Colony, w model.WorldSnapshot) Report {
	return Report{
		Resource: EvaluateResources(cfg.Resource, c),
		Defense:  EvaluateDefense(cfg.Defense, c, w),
		Attack:   EvaluateAttack(cfg.Attack, c, w),
		Growth:   EvaluateGrowth(cfg.Growth, c),
	}
}
