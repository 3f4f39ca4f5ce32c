package trigger

import (
	"fmt"
	"time"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Result is the outcome of one trigger.
type Result struct {
	Kind      Kind     `json:"kind"`
	Triggered bool     `json:"triggered"`
	Intensity float64  `json:"intensity"`
	Reasons   []string `json:"reasons"`
}

// input is what every trigger sees.
type input struct {
	cfg        Config
	colony     model.Colony
	target     model.Target
	now        time.Time
	lastAttack time.Time // zero when the colony never attacked
}

type evaluator func(in input) Result

var evaluators = map[Kind]evaluator{
	ResourceThreshold:    resourceThreshold,
	TerritoryProximity:   territoryProximity,
	TimeBased:            timeBased,
	PlayerWeakness:       playerWeakness,
	StrategicOpportunity: strategicOpportunity,
	DefensiveNecessity:   defensiveNecessity,
	EconomicPressure:     economicPressure,
	DiplomaticSituation:  diplomaticSituation,
}

func (in input) result(k Kind, intensity float64, reasons ...string) Result {
	intensity = model.Clamp01(intensity)
	return Result{Kind: k, Triggered: intensity >= in.cfg.FireThreshold, Intensity: intensity, Reasons: reasons}
}

// scarcity is how far food, water and minerals sit below comfortable
// stock, averaged.
func scarcity(c model.Colony) float64 {
	comfortable := map[model.ResourceKind]float64{model.Food: 300, model.Water: 250, model.Minerals: 150}
	sum := 0.0
	for k, v := range comfortable {
		sum += 1 - model.Clamp01(c.Resource(k)/v)
	}
	return sum / float64(len(comfortable))
}

func ourStrength(c model.Colony) float64 {
	return float64(c.Military.Used) * (0.5 + c.Behavior.Aggression)
}

func resourceThreshold(in input) Result {
	s := scarcity(in.colony)
	v := in.target.ResourceValue
	return in.result(ResourceThreshold, 0.5*v+0.5*s,
		fmt.Sprintf("target resource value %.2f", v),
		fmt.Sprintf("own scarcity %.2f", s))
}

func territoryProximity(in input) Result {
	d := in.colony.Position.Distance(in.target.Position)
	return in.result(TerritoryProximity, 1-d/in.cfg.ProximityRange,
		fmt.Sprintf("target %.0f away (range %.0f)", d, in.cfg.ProximityRange))
}

func timeBased(in input) Result {
	if in.lastAttack.IsZero() {
		return in.result(TimeBased, 0.5, "no previous attack")
	}
	elapsed := in.now.Sub(in.lastAttack)
	return in.result(TimeBased, float64(elapsed)/float64(in.cfg.PeaceInterval),
		fmt.Sprintf("%s since last attack", elapsed.Round(time.Second)))
}

func playerWeakness(in input) Result {
	ours := ourStrength(in.colony)
	advantage := 0.0
	if total := ours + in.target.Strength; total > 0 {
		advantage = ours / total
	}
	t := in.target
	return in.result(PlayerWeakness, 0.4*(1-t.DefenseLevel)+0.3*t.RecentLosses+0.3*advantage,
		fmt.Sprintf("defense %.2f, recent losses %.2f", t.DefenseLevel, t.RecentLosses),
		fmt.Sprintf("strength share %.2f", advantage))
}

func strategicOpportunity(in input) Result {
	t := in.target
	return in.result(StrategicOpportunity, t.StrategicValue*(0.7+0.3*(1-t.DefenseLevel)),
		fmt.Sprintf("strategic value %.2f", t.StrategicValue))
}

func defensiveNecessity(in input) Result {
	t := in.target
	return in.result(DefensiveNecessity, 0.5*t.ThreatLevel+0.4*t.MilitaryBuildup+0.1*in.colony.ThreatLevel,
		fmt.Sprintf("target threat %.2f, military buildup %.2f", t.ThreatLevel, t.MilitaryBuildup))
}

func economicPressure(in input) Result {
	c := in.colony
	crowding := 1.0
	if housing := c.TerritorySize * in.cfg.HousingPerTerritory; housing > 0 {
		crowding = model.Clamp01(float64(c.Population) / housing)
	}
	s := scarcity(c)
	return in.result(EconomicPressure, 0.6*s+0.4*crowding,
		fmt.Sprintf("scarcity %.2f, crowding %.2f", s, crowding))
}

var diplomacyIntensity = map[model.Diplomacy]float64{
	model.DiplomacyAtWar:   1.0,
	model.DiplomacyHostile: 0.7,
	model.DiplomacyNeutral: 0.3,
	model.DiplomacyAllied:  0,
}

func diplomaticSituation(in input) Result {
	d := in.target.Diplomacy
	if d == "" {
		d = model.DiplomacyNeutral
	}
	return in.result(DiplomaticSituation, diplomacyIntensity[d], fmt.Sprintf("relation %s", d))
}
