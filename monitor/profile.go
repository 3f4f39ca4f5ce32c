package monitor

import (
	"maps"
	"slices"
	"time"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Playstyle labels a player's dominant tendency.
type Playstyle string

const (
	PlaystyleUnknown            Playstyle = "unknown"
	PlaystyleAggressiveMilitary Playstyle = "aggressive_military"
	PlaystyleRusher             Playstyle = "rusher"
	PlaystyleExpansionist       Playstyle = "expansionist"
	PlaystyleEconomicBuilder    Playstyle = "economic_builder"
	PlaystyleDefensiveTurtle    Playstyle = "defensive_turtle"
	PlaystyleOpportunist        Playstyle = "opportunist"
	PlaystyleBalanced           Playstyle = "balanced"
)

// PatternType tags a detected regularity.
type PatternType string

const (
	PatternResourceHoarding    PatternType = "resource_hoarding"
	PatternMilitaryPreparation PatternType = "military_preparation"
	PatternExpansionBurst      PatternType = "expansion_burst"
	PatternDefensivePosturing  PatternType = "defensive_posturing"
	PatternTradeFocus          PatternType = "trade_focus"
	PatternHitAndRun           PatternType = "hit_and_run"
)

// Metrics are the behavioral measurements of one player, each in [0, 1].
type Metrics struct {
	Aggressiveness       float64 `json:"aggressiveness"`
	ExpansionTendency    float64 `json:"expansionTendency"`
	EconomicFocus        float64 `json:"economicFocus"`
	MilitaryFocus        float64 `json:"militaryFocus"`
	RiskTolerance        float64 `json:"riskTolerance"`
	AdaptationResistance float64 `json:"adaptationResistance"`
}

// Pattern is recomputed on every analysis and never mutated afterwards.
type Pattern struct {
	Type        PatternType `json:"type"`
	Confidence  float64     `json:"confidence"`
	Description string      `json:"description"`
	Predicted   string      `json:"predicted"`
}

// Observed is one action in the recent window with its category.
type Observed struct {
	Type      string    `json:"type"`
	Category  Category  `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Profile is everything the monitor knows about one player.
type Profile struct {
	PlayerID     string           `json:"playerId"`
	Counts       map[Category]int `json:"counts"`
	Total        int              `json:"total"`
	Metrics      Metrics          `json:"metrics"`
	Playstyle    Playstyle        `json:"playstyle"`
	Patterns     []Pattern        `json:"patterns"`
	Recent       []Observed       `json:"recent"`
	FirstSeen    time.Time        `json:"firstSeen"`
	LastSeen     time.Time        `json:"lastSeen"`
	LastAnalysis time.Time        `json:"lastAnalysis"`
	Analyses     int              `json:"analyses"`
}

func newProfile(id string) Profile {
	return Profile{
		PlayerID:  id,
		Counts:    make(map[Category]int, len(Categories)),
		Playstyle: PlaystyleUnknown,
	}
}

func (p Profile) clone() Profile {
	out := p
	out.Counts = maps.Clone(p.Counts)
	out.Patterns = slices.Clone(p.Patterns)
	out.Recent = slices.Clone(p.Recent)
	return out
}

// HasPattern returns the pattern of type t when it is active.
func (p Profile) HasPattern(t PatternType) (Pattern, bool) {
	for _, pat := range p.Patterns {
		if pat.Type == t {
			return pat, true
		}
	}
	return Pattern{}, false
}

// Summary is the condensed view consumed by the adaptation and counter
// engines.
type Summary struct {
	PlayerID  string    `json:"playerId"`
	Playstyle Playstyle `json:"playstyle"`
	Metrics   Metrics   `json:"metrics"`
	Patterns  []Pattern `json:"patterns"`
	Actions   int       `json:"actions"`
	Dominant  Category  `json:"dominant"`
	Threat    float64   `json:"threat"`
	LastSeen  time.Time `json:"lastSeen"`
}

// PatternStability is the mean confidence of the active patterns, 0 when
// none are active.
func (s Summary) PatternStability() float64 {
	if len(s.Patterns) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range s.Patterns {
		sum += p.Confidence
	}
	return model.Clamp01(sum / float64(len(s.Patterns)))
}

// ThreatLevel is the coarse band of a threat score.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Threat is the monitor's read of how dangerous a player is.
type Threat struct {
	PlayerID        string      `json:"playerId"`
	Score           float64     `json:"score"`
	Level           ThreatLevel `json:"level"`
	Reasons         []string    `json:"reasons"`
	Recommendations []string    `json:"recommendations"`
}

func threatLevel(score float64) ThreatLevel {
	switch {
	case score >= 0.8:
		return ThreatCritical
	case score >= 0.6:
		return ThreatHigh
	case score >= 0.3:
		return ThreatMedium
	}
	return ThreatLow
}
