package counter

import (
	"github.com/nstehr/vimy/vimy-colony/adaptive"
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/monitor"
)

// Template is a packaged counter-strategy before it is scored.
type Template struct {
	Type          string                         `json:"type"`
	Approach      model.MacroStrategy            `json:"approach"`
	TacticalFocus []string                       `json:"tacticalFocus"`
	Effectiveness float64                        `json:"effectiveness"`
	Risk          float64                        `json:"risk"`
	Reward        float64                        `json:"reward"`
	Offensive     bool                           `json:"offensive"`
	Cost          map[model.ResourceKind]float64 `json:"cost"`
}

var catalog = map[string]Template{
	"fortified_defense": {
		Approach: model.StrategyDefensiveTurtle, TacticalFocus: []string{"build_defenses", "train_defenders", "fortify_perimeter"},
		Effectiveness: 0.7, Risk: 0.2, Reward: 0.4,
		Cost: map[model.ResourceKind]float64{model.Stone: 80, model.Wood: 60},
	},
	"counter_attack": {
		Approach: model.StrategyCounterOffensive, TacticalFocus: []string{"train_military", "ambush_attackers", "strike_staging_areas"},
		Effectiveness: 0.65, Risk: 0.45, Reward: 0.7, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 40, model.Food: 80},
	},
	"early_walls": {
		Approach: model.StrategyDefensiveTurtle, TacticalFocus: []string{"build_defenses", "fortify_perimeter"},
		Effectiveness: 0.75, Risk: 0.15, Reward: 0.35,
		Cost: map[model.ResourceKind]float64{model.Stone: 60, model.Wood: 40},
	},
	"punish_overextension": {
		Approach: model.StrategyCounterOffensive, TacticalFocus: []string{"strike_exposed_units", "raid_supply_lines"},
		Effectiveness: 0.65, Risk: 0.4, Reward: 0.75, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 30, model.Food: 60},
	},
	"border_raids": {
		Approach: model.StrategyRaiding, TacticalFocus: []string{"raid_outposts", "harass_settlers"},
		Effectiveness: 0.6, Risk: 0.35, Reward: 0.6, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 20, model.Food: 50},
	},
	"contain_expansion": {
		Approach: model.StrategyTerritorialDenial, TacticalFocus: []string{"claim_contested_land", "build_watchtowers"},
		Effectiveness: 0.6, Risk: 0.25, Reward: 0.5,
		Cost: map[model.ResourceKind]float64{model.Wood: 80, model.Stone: 40},
	},
	"early_aggression": {
		Approach: model.StrategyMilitaryRush, TacticalFocus: []string{"train_military", "attack_economy"},
		Effectiveness: 0.7, Risk: 0.5, Reward: 0.8, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 50, model.Food: 100},
	},
	"economic_disruption": {
		Approach: model.StrategyRaiding, TacticalFocus: []string{"raid_gatherers", "burn_stockpiles"},
		Effectiveness: 0.6, Risk: 0.35, Reward: 0.65, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 25, model.Food: 50},
	},
	"siege_preparation": {
		Approach: model.StrategySiegeWarfare, TacticalFocus: []string{"build_siege_engines", "stockpile_supplies", "encircle_target"},
		Effectiveness: 0.65, Risk: 0.4, Reward: 0.7, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Wood: 120, model.Minerals: 60, model.Food: 120},
	},
	"outscale_economy": {
		Approach: model.StrategyEconomicBoom, TacticalFocus: []string{"develop_economy", "expand_gathering"},
		Effectiveness: 0.55, Risk: 0.15, Reward: 0.5,
		Cost: map[model.ResourceKind]float64{model.Wood: 50},
	},
	"unpredictable_tactics": {
		Approach: model.StrategyAdaptiveChaos, TacticalFocus: []string{"vary_attack_timing", "feint_attacks"},
		Effectiveness: 0.5, Risk: 0.35, Reward: 0.55, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 20, model.Food: 40},
	},
	"solid_fundamentals": {
		Approach: model.StrategyBalanced, TacticalFocus: []string{"develop_economy", "train_defenders"},
		Effectiveness: 0.5, Risk: 0.1, Reward: 0.4,
		Cost: map[model.ResourceKind]float64{},
	},
	"preemptive_defense": {
		Approach: model.StrategyDefensiveTurtle, TacticalFocus: []string{"emergency_defense", "fortify_perimeter", "scout_staging_areas"},
		Effectiveness: 0.7, Risk: 0.2, Reward: 0.45,
		Cost: map[model.ResourceKind]float64{model.Stone: 50, model.Wood: 50},
	},
	"rapid_response": {
		Approach: model.StrategyCounterOffensive, TacticalFocus: []string{"station_reserves", "pursue_raiders"},
		Effectiveness: 0.65, Risk: 0.3, Reward: 0.55, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 30, model.Food: 60},
	},
	"trade_interdiction": {
		Approach: model.StrategyRaiding, TacticalFocus: []string{"raid_caravans", "blockade_routes"},
		Effectiveness: 0.6, Risk: 0.3, Reward: 0.65, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 20, model.Food: 40},
	},
	"bait_and_ambush": {
		Approach: model.StrategyGuerrillaWarfare, TacticalFocus: []string{"feint_retreat", "ambush_attackers"},
		Effectiveness: 0.65, Risk: 0.35, Reward: 0.7, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 25, model.Food: 50},
	},
	"territorial_grab": {
		Approach: model.StrategyTerritorialExpansion, TacticalFocus: []string{"expand_territory", "build_outposts"},
		Effectiveness: 0.55, Risk: 0.2, Reward: 0.6,
		Cost: map[model.ResourceKind]float64{model.Wood: 70, model.Food: 60},
	},
	"anticipatory_strikes": {
		Approach: model.StrategyGuerrillaWarfare, TacticalFocus: []string{"predict_movements", "strike_first"},
		Effectiveness: 0.6, Risk: 0.4, Reward: 0.65, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Minerals: 30, model.Food: 50},
	},
	"adaptive_chaos": {
		Approach: model.StrategyAdaptiveChaos, TacticalFocus: []string{"randomize_behavior", "probe_responses"},
		Effectiveness: 0.45, Risk: 0.4, Reward: 0.5, Offensive: true,
		Cost: map[model.ResourceKind]float64{model.Food: 30},
	},
}

func init() {
	for name, t := range catalog {
		t.Type = name
		catalog[name] = t
	}
}

// Lookup returns the catalog template for a counter type.
func Lookup(counterType string) (Template, bool) {
	t, ok := catalog[counterType]
	return t, ok
}

var primaryCounters = map[monitor.Playstyle][]string{
	monitor.PlaystyleAggressiveMilitary: {"fortified_defense", "counter_attack"},
	monitor.PlaystyleRusher:             {"early_walls", "punish_overextension"},
	monitor.PlaystyleExpansionist:       {"border_raids", "contain_expansion"},
	monitor.PlaystyleEconomicBuilder:    {"early_aggression", "economic_disruption"},
	monitor.PlaystyleDefensiveTurtle:    {"siege_preparation", "outscale_economy"},
	monitor.PlaystyleOpportunist:        {"unpredictable_tactics", "solid_fundamentals"},
	monitor.PlaystyleBalanced:           {"solid_fundamentals", "outscale_economy"},
}

var patternCounters = map[monitor.PatternType]string{
	monitor.PatternMilitaryPreparation: "preemptive_defense",
	monitor.PatternHitAndRun:           "rapid_response",
	monitor.PatternExpansionBurst:      "contain_expansion",
	monitor.PatternResourceHoarding:    "economic_disruption",
	monitor.PatternDefensivePosturing:  "siege_preparation",
	monitor.PatternTradeFocus:          "trade_interdiction",
}

var weaknessCounters = map[string]string{
	adaptive.WeaknessOverextension: "punish_overextension",
	adaptive.WeaknessWeakDefense:   "early_aggression",
	adaptive.WeaknessThinBorders:   "border_raids",
	adaptive.WeaknessReckless:      "bait_and_ambush",
	adaptive.WeaknessPassive:       "territorial_grab",
	adaptive.WeaknessSlowGrowth:    "territorial_grab",
	adaptive.WeaknessPredictable:   "anticipatory_strikes",
	adaptive.WeaknessWeakEconomy:   "economic_disruption",
}
