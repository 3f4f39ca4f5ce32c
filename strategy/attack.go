package strategy

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/rules"
)

// AttackType is the shape of an attack.
type AttackType string

const (
	AttackBlitz      AttackType = "blitz"
	AttackSiege      AttackType = "siege"
	AttackRaid       AttackType = "raid"
	AttackHarassment AttackType = "harassment"
	AttackConquest   AttackType = "conquest"
)

// ActionHold is the attack option when no target is worth it.
const ActionHold = "hold"

// AttackAction is the option name for attacking target id.
func AttackAction(targetID string) string { return "attack_" + targetID }

type AttackConfig struct {
	MaxRange     float64 `mapstructure:"max_range"`
	MinViability float64 `mapstructure:"min_viability"`

	// Component weights of viability. They must sum to 1.
	DistanceWeight float64 `mapstructure:"distance_weight"`
	StrengthWeight float64 `mapstructure:"strength_weight"`
	ResourceWeight float64 `mapstructure:"resource_weight"`
	WeaknessWeight float64 `mapstructure:"weakness_weight"`
}

func DefaultAttackConfig() AttackConfig {
	return AttackConfig{
		MaxRange:       200,
		MinViability:   0.5,
		DistanceWeight: 0.2,
		StrengthWeight: 0.35,
		ResourceWeight: 0.25,
		WeaknessWeight: 0.2,
	}
}

func (c AttackConfig) Validate() error {
	if c.MaxRange <= 0 {
		return fmt.Errorf("attack max_range must be > 0")
	}
	if c.MinViability < 0 || c.MinViability > 1 {
		return fmt.Errorf("attack min_viability must be in [0, 1]")
	}
	sum := c.DistanceWeight + c.StrengthWeight + c.ResourceWeight + c.WeaknessWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("attack weights must sum to 1, got %.3f", sum)
	}
	return nil
}

// TargetScore is the viability breakdown of one candidate.
type TargetScore struct {
	Target        model.Target `json:"target"`
	Distance      float64      `json:"distance"`
	StrengthRatio float64      `json:"strengthRatio"`
	Proximity     float64      `json:"proximity"`
	Strength      float64      `json:"strength"`
	Resource      float64      `json:"resource"`
	Weakness      float64      `json:"weakness"`
	Viability     float64      `json:"viability"`
	Type          AttackType   `json:"type"`
}

// Phase is one stage of an attack plan.
type Phase struct {
	Name  string `json:"name"`
	Ticks int    `json:"ticks"`
}

// Plan is a phased attack order.
type Plan struct {
	TargetID string                         `json:"targetId"`
	Type     AttackType                     `json:"type"`
	Forces   int                            `json:"forces"`
	Phases   []Phase                        `json:"phases"`
	Supply   map[model.ResourceKind]float64 `json:"supply"`
	Abort    []string                       `json:"abort"`
}

// Duration is the total ticks across all phases.
func (p Plan) Duration() int {
	n := 0
	for _, ph := range p.Phases {
		n += ph.Ticks
	}
	return n
}

// AbortEnv is the battlefield state abort conditions are checked against.
type AbortEnv struct {
	ForceRatio    float64 // our forces over theirs, now
	Losses        float64 // share of committed forces lost
	Food          float64 // food in stock
	FoodRequired  float64 // food the plan needs
	HomeThreat    float64 // threat level at the home colony
	TicksElapsed  int
	ExpectedTicks int
}

var abortRules = rules.MustCompile("attack-abort", []rules.Rule{
	{Name: "heavy-losses", Priority: 100, ConditionSrc: `Losses > 0.5`, Outcome: "heavy losses"},
	{Name: "home-threatened", Priority: 90, ConditionSrc: `HomeThreat > 0.7`, Outcome: "home colony threatened"},
	{Name: "outmatched", Priority: 80, ConditionSrc: `ForceRatio < 0.5`, Outcome: "outmatched"},
	{Name: "supply-exhausted", Priority: 70, ConditionSrc: `FoodRequired > 0 && Food < FoodRequired * 0.25`, Outcome: "supplies exhausted"},
	{Name: "overrun", Priority: 60, ConditionSrc: `ExpectedTicks > 0 && TicksElapsed > ExpectedTicks * 2`, Outcome: "attack overran its schedule"},
}, AbortEnv{})

// ShouldAbort checks the plan's abort conditions. It returns the reason
// of the highest-priority condition that holds.
func (p Plan) ShouldAbort(env AbortEnv) (string, bool) {
	matches, _ := abortRules.Evaluate(env)
	for _, r := range matches {
		if slices.Contains(p.Abort, r.Name) {
			return r.Outcome, true
		}
	}
	return "", false
}

type AttackAssessment struct {
	Assessment
	Candidates []TargetScore `json:"candidates"`
	Best       *TargetScore  `json:"best,omitempty"`
	Plan       *Plan         `json:"plan,omitempty"`
}

// ScoreTarget computes the viability of attacking t.
func ScoreTarget(cfg AttackConfig, c model.Colony, t model.Target) TargetScore {
	traits := TraitsFor(c.Personality)
	ts := TargetScore{Target: t, Distance: c.Position.Distance(t.Position)}

	ours := float64(c.Military.Used) * (0.5 + c.Behavior.Aggression)
	ts.StrengthRatio = ours / max(t.Strength, 1)
	ts.Proximity = model.Clamp01(1 - ts.Distance/cfg.MaxRange)
	ts.Strength = model.Clamp01(ts.StrengthRatio / 2)
	ts.Resource = model.Clamp01(t.ResourceValue)
	ts.Weakness = model.Clamp01(1 - t.DefenseLevel + 0.5*t.RecentLosses)

	v := cfg.DistanceWeight*ts.Proximity + cfg.StrengthWeight*ts.Strength +
		cfg.ResourceWeight*ts.Resource + cfg.WeaknessWeight*ts.Weakness
	if c.Personality == model.Opportunist {
		v += 0.1 * ts.Weakness * t.RecentLosses
	}
	ts.Viability = model.Clamp01(v * traits.Attack)
	ts.Type = ChooseAttackType(ts.StrengthRatio, t.DefenseLevel)
	return ts
}

// ChooseAttackType derives the attack shape from relative strength and the
// target's defenses.
func ChooseAttackType(ratio, defense float64) AttackType {
	switch {
	case ratio >= 3 && defense < 0.3:
		return AttackBlitz
	case defense >= 0.7 && ratio >= 1.5:
		return AttackSiege
	case ratio >= 2:
		return AttackConquest
	case ratio < 1:
		return AttackHarassment
	}
	return AttackRaid
}

var planPhases = map[AttackType][]Phase{
	AttackBlitz:      {{"mobilize", 1}, {"strike", 2}},
	AttackSiege:      {{"mobilize", 2}, {"encircle", 3}, {"bombard", 4}, {"assault", 2}},
	AttackRaid:       {{"mobilize", 1}, {"infiltrate", 1}, {"raid", 1}, {"withdraw", 1}},
	AttackHarassment: {{"probe", 1}, {"harass", 2}, {"withdraw", 1}},
	AttackConquest:   {{"mobilize", 2}, {"advance", 3}, {"assault", 3}, {"occupy", 2}},
}

var forceShare = map[AttackType]float64{
	AttackBlitz:      0.7,
	AttackSiege:      0.8,
	AttackRaid:       0.4,
	AttackHarassment: 0.25,
	AttackConquest:   0.8,
}

var planAbort = map[AttackType][]string{
	AttackBlitz:      {"heavy-losses", "home-threatened", "outmatched"},
	AttackSiege:      {"heavy-losses", "home-threatened", "supply-exhausted", "overrun"},
	AttackRaid:       {"heavy-losses", "home-threatened", "outmatched"},
	AttackHarassment: {"heavy-losses", "outmatched"},
	AttackConquest:   {"heavy-losses", "home-threatened", "outmatched", "supply-exhausted", "overrun"},
}

// BuildPlan turns a scored target into a phased plan with supply needs.
func BuildPlan(c model.Colony, ts TargetScore) Plan {
	forces := int(float64(c.Military.Used) * forceShare[ts.Type])
	forces = max(forces, 1)
	p := Plan{
		TargetID: ts.Target.ID,
		Type:     ts.Type,
		Forces:   forces,
		Phases:   slices.Clone(planPhases[ts.Type]),
		Abort:    slices.Clone(planAbort[ts.Type]),
	}
	d := float64(p.Duration())
	p.Supply = map[model.ResourceKind]float64{
		model.Food:     float64(forces) * d * 0.5,
		model.Water:    float64(forces) * d * 0.3,
		model.Minerals: float64(forces),
	}
	if ts.Type == AttackSiege {
		p.Supply[model.Wood] = 50
		p.Supply[model.Minerals] *= 2
	}
	return p
}

// EvaluateAttack scores every non-allied target in range and, when the
// best clears the viability floor, plans the attack.
func EvaluateAttack(cfg AttackConfig, c model.Colony, w model.WorldSnapshot) AttackAssessment {
	aa := AttackAssessment{Assessment: Assessment{Module: "attack"}}
	for _, t := range w.Targets {
		if t.Diplomacy == model.DiplomacyAllied {
			continue
		}
		ts := ScoreTarget(cfg, c, t)
		if ts.Distance > cfg.MaxRange {
			continue
		}
		aa.Candidates = append(aa.Candidates, ts)
	}
	slices.SortStableFunc(aa.Candidates, func(a, b TargetScore) int {
		return cmp.Compare(b.Viability, a.Viability)
	})

	for _, ts := range aa.Candidates {
		aa.add(AttackAction(ts.Target.ID), ts.Viability, "%s %s at %.0f, strength ratio %.2f",
			ts.Type, ts.Target.ID, ts.Distance, ts.StrengthRatio)
	}
	if len(aa.Candidates) > 0 && aa.Candidates[0].Viability >= cfg.MinViability && c.Military.Used > 0 {
		best := aa.Candidates[0]
		plan := BuildPlan(c, best)
		aa.Best = &best
		aa.Plan = &plan
	} else {
		aa.add(ActionHold, 0.3, "no target clears viability %.2f", cfg.MinViability)
	}
	aa.rank()
	return aa
}
