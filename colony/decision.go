package colony

import (
	"fmt"
	"slices"

	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/strategy"
)

// Source names the rule that produced a decision.
type Source string

const (
	SourceDefense  Source = "defense"
	SourceAttack   Source = "attack"
	SourceResource Source = "resource"
	SourceGrowth   Source = "growth"
	SourceFallback Source = "fallback"
)

// Secondary actions appended to a decision.
const (
	ActionExplore = "explore"
)

// Decision is the single ranked outcome of a tick.
type Decision struct {
	Action     string        `json:"action"`
	To         model.AIState `json:"to"`
	Source     Source        `json:"source"`
	Priority   float64       `json:"priority"`
	Confidence float64       `json:"confidence"`
	Secondary  []string      `json:"secondary"`
	Reasoning  []string      `json:"reasoning"`
}

var growthStates = map[string]model.AIState{
	strategy.ActionExpandTerritory:  model.StateGrowing,
	strategy.ActionGrowPopulation:   model.StateGrowing,
	strategy.ActionDevelopEconomy:   model.StateGathering,
	strategy.ActionStrengthenForces: model.StateDefending,
}

// currentViable returns the current attack target's score when it is
// still a candidate above the viability floor.
func currentViable(cfg Config, c model.Colony, r strategy.Report) *strategy.TargetScore {
	if c.CurrentTargetID == "" {
		return nil
	}
	for i := range r.Attack.Candidates {
		ts := &r.Attack.Candidates[i]
		if ts.Target.ID == c.CurrentTargetID && ts.Viability >= cfg.Strategy.Attack.MinViability {
			return ts
		}
	}
	return nil
}

// Synthesize combines the module assessments into one decision. Rules in
// order: high threat means defense, an attack in progress against a
// target that is still viable continues, a food shortfall means
// gathering, and otherwise the growth module's top focus wins.
func Synthesize(cfg Config, c model.Colony, r strategy.Report) Decision {
	var d Decision
	viable := currentViable(cfg, c, r)
	switch {
	case c.ThreatLevel > cfg.DefenseThreat:
		opt, _ := r.Defense.Primary()
		if opt.Action == "" {
			opt = strategy.Option{Action: strategy.ActionBuildDefenses, Priority: c.ThreatLevel}
		}
		d = Decision{Action: opt.Action, To: model.StateDefending, Source: SourceDefense, Priority: opt.Priority}
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("threat %.2f above %.2f", c.ThreatLevel, cfg.DefenseThreat))

	case c.State == model.StateAttacking && viable != nil:
		d = Decision{
			Action:   strategy.AttackAction(c.CurrentTargetID),
			To:       model.StateAttacking,
			Source:   SourceAttack,
			Priority: viable.Viability,
		}
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("attack on %s still viable (%.2f)", c.CurrentTargetID, viable.Viability))

	case c.Resource(model.Food) < cfg.FoodFloor:
		d = Decision{
			Action:   strategy.GatherAction(model.Food),
			To:       model.StateGathering,
			Source:   SourceResource,
			Priority: r.Resource.Priority(strategy.GatherAction(model.Food)),
		}
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("food %.0f below floor %.0f", c.Resource(model.Food), cfg.FoodFloor))

	default:
		opt, ok := r.Growth.Primary()
		if !ok {
			opt = strategy.Option{Action: strategy.ActionDevelopEconomy, Priority: 0.3}
		}
		to, ok := growthStates[opt.Action]
		if !ok {
			to = model.StateGrowing
		}
		d = Decision{Action: opt.Action, To: to, Source: SourceGrowth, Priority: opt.Priority}
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("growth focus %s (%.2f)", opt.Action, opt.Priority))
	}

	d.Confidence = confidence(c, r, d)
	d.Secondary = secondary(cfg, c, r, d)
	return d
}

// confidence blends how strongly the winning module backed the action,
// how well stocked the colony is and whether the target state suits the
// personality.
func confidence(c model.Colony, r strategy.Report, d Decision) float64 {
	need := 0.0
	for _, k := range model.ResourceKinds {
		need += r.Resource.Needs[k]
	}
	sufficiency := 1 - need/float64(len(model.ResourceKinds))
	match := 0.5
	if strategy.TraitsFor(c.Personality).Prefers(d.To) {
		match = 1
	}
	return model.Clamp01(0.4*d.Priority + 0.3*sufficiency + 0.3*match)
}

func secondary(cfg Config, c model.Colony, r strategy.Report, d Decision) []string {
	var out []string
	if c.ThreatLevel > cfg.ModerateThreat && c.ThreatLevel <= cfg.DefenseThreat && d.Source != SourceDefense {
		out = append(out, strategy.ActionBuildDefenses)
	}
	if c.TerritorySize < cfg.SmallTerritory {
		out = append(out, ActionExplore)
	}
	if gather := strategy.GatherAction(r.Resource.Top); gather != d.Action && r.Resource.Needs[r.Resource.Top] > 0 {
		out = append(out, gather)
	}
	if len(out) > cfg.MaxSecondary {
		out = out[:cfg.MaxSecondary]
	}
	return slices.Clip(out)
}

// Fallback is the minimal decision used when a tick fails: shore up
// defenses under threat, otherwise gather food.
func Fallback(c model.Colony, cause string) Decision {
	d := Decision{
		Action:     strategy.GatherAction(model.Food),
		To:         model.StateGathering,
		Source:     SourceFallback,
		Confidence: 0.1,
		Reasoning:  []string{"fallback: " + cause},
	}
	if c.ThreatLevel > 0.5 {
		d.Action = strategy.ActionBuildDefenses
		d.To = model.StateDefending
	}
	return d
}
