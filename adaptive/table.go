package adaptive

import (
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/monitor"
)

// Counter is one weighted countermeasure.
type Counter struct {
	Strategy model.MacroStrategy `json:"strategy"`
	Weight   float64             `json:"weight"`
}

// counterTable maps a playstyle onto the macro strategies that beat it.
var counterTable = map[monitor.Playstyle][]Counter{
	monitor.PlaystyleAggressiveMilitary: {
		{model.StrategyDefensiveTurtle, 0.35}, {model.StrategyCounterOffensive, 0.3},
		{model.StrategyGuerrillaWarfare, 0.2}, {model.StrategyTerritorialDenial, 0.15},
	},
	monitor.PlaystyleRusher: {
		{model.StrategyDefensiveTurtle, 0.4}, {model.StrategyCounterOffensive, 0.35}, {model.StrategyRaiding, 0.25},
	},
	monitor.PlaystyleExpansionist: {
		{model.StrategyRaiding, 0.35}, {model.StrategyTerritorialDenial, 0.3},
		{model.StrategyMilitaryRush, 0.2}, {model.StrategyGuerrillaWarfare, 0.15},
	},
	monitor.PlaystyleEconomicBuilder: {
		{model.StrategyMilitaryRush, 0.4}, {model.StrategyRaiding, 0.35}, {model.StrategySiegeWarfare, 0.25},
	},
	monitor.PlaystyleDefensiveTurtle: {
		{model.StrategySiegeWarfare, 0.4}, {model.StrategyEconomicBoom, 0.35}, {model.StrategyTerritorialExpansion, 0.25},
	},
	monitor.PlaystyleOpportunist: {
		{model.StrategyAdaptiveChaos, 0.35}, {model.StrategyBalanced, 0.3},
		{model.StrategyDefensiveTurtle, 0.2}, {model.StrategyGuerrillaWarfare, 0.15},
	},
	monitor.PlaystyleBalanced: {
		{model.StrategyBalanced, 0.3}, {model.StrategyEconomicBoom, 0.25},
		{model.StrategyTerritorialExpansion, 0.25}, {model.StrategyMilitaryRush, 0.2},
	},
}

// Counters returns the countermeasures for playstyle p, falling back to a
// balanced posture for unclassified players.
func Counters(p monitor.Playstyle) []Counter {
	if cs, ok := counterTable[p]; ok {
		return append([]Counter(nil), cs...)
	}
	return []Counter{{model.StrategyBalanced, 1}}
}

// reinforcement lists the strategies a detected pattern makes more
// attractive.
var reinforcement = map[monitor.PatternType][]model.MacroStrategy{
	monitor.PatternMilitaryPreparation: {model.StrategyDefensiveTurtle, model.StrategyCounterOffensive},
	monitor.PatternHitAndRun:           {model.StrategyTerritorialDenial, model.StrategyDefensiveTurtle},
	monitor.PatternExpansionBurst:      {model.StrategyTerritorialDenial, model.StrategyRaiding},
	monitor.PatternResourceHoarding:    {model.StrategyRaiding, model.StrategySiegeWarfare},
	monitor.PatternDefensivePosturing:  {model.StrategySiegeWarfare, model.StrategyEconomicBoom},
	monitor.PatternTradeFocus:          {model.StrategyRaiding},
}

// Modifiers is a behavior and allocation shift.
type Modifiers struct {
	Behavior   model.Behavior          `json:"behavior"`
	Allocation map[model.Focus]float64 `json:"allocation"`
}

var strategyModifiers = map[model.MacroStrategy]Modifiers{
	model.StrategyMilitaryRush: {
		Behavior:   model.Behavior{Aggression: 0.2, Risk: 0.15, Defense: -0.1},
		Allocation: map[model.Focus]float64{model.FocusMilitary: 0.15, model.FocusEconomy: -0.1},
	},
	model.StrategyDefensiveTurtle: {
		Behavior:   model.Behavior{Aggression: -0.15, Risk: -0.1, Defense: 0.25},
		Allocation: map[model.Focus]float64{model.FocusDefense: 0.2, model.FocusExpansion: -0.1},
	},
	model.StrategyEconomicBoom: {
		Behavior:   model.Behavior{Aggression: -0.1, Expansion: 0.05},
		Allocation: map[model.Focus]float64{model.FocusEconomy: 0.2, model.FocusMilitary: -0.1},
	},
	model.StrategyTerritorialExpansion: {
		Behavior:   model.Behavior{Expansion: 0.25},
		Allocation: map[model.Focus]float64{model.FocusExpansion: 0.2},
	},
	model.StrategyGuerrillaWarfare: {
		Behavior:   model.Behavior{Aggression: 0.1, Risk: 0.1},
		Allocation: map[model.Focus]float64{model.FocusMilitary: 0.1},
	},
	model.StrategySiegeWarfare: {
		Behavior:   model.Behavior{Aggression: 0.15, Risk: -0.05},
		Allocation: map[model.Focus]float64{model.FocusMilitary: 0.15, model.FocusEconomy: 0.05},
	},
	model.StrategyRaiding: {
		Behavior:   model.Behavior{Aggression: 0.15, Risk: 0.2},
		Allocation: map[model.Focus]float64{model.FocusMilitary: 0.1},
	},
	model.StrategyCounterOffensive: {
		Behavior:   model.Behavior{Aggression: 0.1, Defense: 0.1},
		Allocation: map[model.Focus]float64{model.FocusMilitary: 0.1, model.FocusDefense: 0.1},
	},
	model.StrategyTerritorialDenial: {
		Behavior:   model.Behavior{Expansion: 0.1, Defense: 0.1},
		Allocation: map[model.Focus]float64{model.FocusExpansion: 0.1, model.FocusDefense: 0.1},
	},
}

// ModifiersFor returns the behavior and allocation shift a strategy
// implies at full intensity. Balanced and adaptive chaos have none.
func ModifiersFor(s model.MacroStrategy) Modifiers {
	m := strategyModifiers[s]
	out := Modifiers{Behavior: m.Behavior, Allocation: make(map[model.Focus]float64, len(m.Allocation))}
	for f, v := range m.Allocation {
		out.Allocation[f] = v
	}
	return out
}
