package adaptive

import (
	"github.com/nstehr/vimy/vimy-colony/monitor"
)

// PlayerAnalysis is the strategic read on one player, shared with the
// counter-strategy selector.
type PlayerAnalysis struct {
	PlayerID    string            `json:"playerId"`
	Playstyle   monitor.Playstyle `json:"playstyle"`
	Threat      float64           `json:"threat"`
	Stability   float64           `json:"stability"`
	Resistance  float64           `json:"resistance"`
	Strengths   []string          `json:"strengths"`
	Weaknesses  []string          `json:"weaknesses"`
	Recommended []Counter         `json:"recommended"`
}

// HasWeakness reports whether w was identified.
func (a PlayerAnalysis) HasWeakness(w string) bool {
	for _, x := range a.Weaknesses {
		if x == w {
			return true
		}
	}
	return false
}

// Weaknesses and strengths the analysis can name.
const (
	WeaknessOverextension = "overextension"
	WeaknessWeakDefense   = "weak_defense"
	WeaknessThinBorders   = "thin_borders"
	WeaknessReckless      = "reckless"
	WeaknessPassive       = "passive"
	WeaknessSlowGrowth    = "slow_growth"
	WeaknessPredictable   = "predictable"
	WeaknessWeakEconomy   = "weak_economy"

	StrengthMilitaryPressure = "military_pressure"
	StrengthStrongArmy       = "strong_army"
	StrengthEconomy          = "economy"
	StrengthMapControl       = "map_control"
	StrengthFortified        = "fortified"
	StrengthUnpredictable    = "unpredictable"
)

// AnalyzePlayer derives strengths, weaknesses and recommended counters
// from a player summary.
func AnalyzePlayer(s monitor.Summary, boost float64) PlayerAnalysis {
	m := s.Metrics
	a := PlayerAnalysis{
		PlayerID:    s.PlayerID,
		Playstyle:   s.Playstyle,
		Threat:      s.Threat,
		Stability:   s.PatternStability(),
		Resistance:  m.AdaptationResistance,
		Recommended: WeightedCounters(s, boost),
	}
	if m.Aggressiveness > 0.6 {
		a.Strengths = append(a.Strengths, StrengthMilitaryPressure)
		a.Weaknesses = append(a.Weaknesses, WeaknessOverextension)
	}
	if m.MilitaryFocus > 0.6 {
		a.Strengths = append(a.Strengths, StrengthStrongArmy)
		if m.EconomicFocus < 0.3 {
			a.Weaknesses = append(a.Weaknesses, WeaknessWeakEconomy)
		}
	}
	if m.EconomicFocus > 0.6 {
		a.Strengths = append(a.Strengths, StrengthEconomy)
		if m.MilitaryFocus < 0.4 {
			a.Weaknesses = append(a.Weaknesses, WeaknessWeakDefense)
		}
	}
	if m.ExpansionTendency > 0.6 {
		a.Strengths = append(a.Strengths, StrengthMapControl)
		a.Weaknesses = append(a.Weaknesses, WeaknessThinBorders)
	}
	switch {
	case m.RiskTolerance > 0.7:
		a.Weaknesses = append(a.Weaknesses, WeaknessReckless)
	case m.RiskTolerance < 0.3:
		a.Weaknesses = append(a.Weaknesses, WeaknessPassive)
	}
	if _, ok := hasPattern(s, monitor.PatternDefensivePosturing); ok {
		a.Strengths = append(a.Strengths, StrengthFortified)
		a.Weaknesses = append(a.Weaknesses, WeaknessSlowGrowth)
	}
	switch {
	case m.AdaptationResistance > 0.7:
		a.Strengths = append(a.Strengths, StrengthUnpredictable)
	case m.AdaptationResistance < 0.3:
		a.Weaknesses = append(a.Weaknesses, WeaknessPredictable)
	}
	return a
}

func hasPattern(s monitor.Summary, t monitor.PatternType) (monitor.Pattern, bool) {
	for _, p := range s.Patterns {
		if p.Type == t {
			return p, true
		}
	}
	return monitor.Pattern{}, false
}
