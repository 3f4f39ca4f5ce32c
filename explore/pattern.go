package explore

import (
	"cmp"
	"slices"

	"github.com/nstehr/vimy/vimy-colony/memory"
	"github.com/nstehr/vimy/vimy-colony/model"
)

// Mode is the broad exploration style of a personality.
type Mode string

const (
	ModeAggressive    Mode = "aggressive"
	ModeCautious      Mode = "cautious"
	ModeExpansive     Mode = "expansive"
	ModeOpportunistic Mode = "opportunistic"
	ModeSystematic    Mode = "systematic"
	ModeMethodical    Mode = "methodical"
)

// Pattern is how a personality explores.
type Pattern struct {
	Mode          Mode            `json:"mode"`
	Radius        float64         `json:"radius"`
	ScoutRatio    float64         `json:"scoutRatio"`
	RiskTolerance float64         `json:"riskTolerance"`
	Preferred     []ObjectiveType `json:"preferred"`
}

var patterns = map[model.Personality]Pattern{
	model.Aggressive: {
		Mode: ModeAggressive, Radius: 250, ScoutRatio: 0.15, RiskTolerance: 0.8,
		Preferred: []ObjectiveType{ThreatAssessment, StrategicPositioning},
	},
	model.Defensive: {
		Mode: ModeCautious, Radius: 120, ScoutRatio: 0.08, RiskTolerance: 0.3,
		Preferred: []ObjectiveType{ThreatAssessment, ResourceDiscovery},
	},
	model.Expansionist: {
		Mode: ModeExpansive, Radius: 300, ScoutRatio: 0.2, RiskTolerance: 0.6,
		Preferred: []ObjectiveType{TerritoryExpansion, ResourceDiscovery},
	},
	model.Opportunist: {
		Mode: ModeOpportunistic, Radius: 220, ScoutRatio: 0.12, RiskTolerance: 0.6,
		Preferred: []ObjectiveType{TradeRouteDiscovery, ResourceDiscovery},
	},
	model.Militant: {
		Mode: ModeSystematic, Radius: 200, ScoutRatio: 0.12, RiskTolerance: 0.7,
		Preferred: []ObjectiveType{ThreatAssessment, StrategicPositioning},
	},
	model.Builder: {
		Mode: ModeMethodical, Radius: 150, ScoutRatio: 0.1, RiskTolerance: 0.4,
		Preferred: []ObjectiveType{ResourceDiscovery, TradeRouteDiscovery},
	},
}

// PatternFor returns the exploration pattern of p. Unknown personalities
// explore methodically.
func PatternFor(p model.Personality) Pattern {
	if pat, ok := patterns[p]; ok {
		return pat
	}
	return patterns[model.Builder]
}

// ObjectiveType is what a mission is sent to find out.
type ObjectiveType string

const (
	ResourceDiscovery    ObjectiveType = "resource_discovery"
	TerritoryExpansion   ObjectiveType = "territory_expansion"
	ThreatAssessment     ObjectiveType = "threat_assessment"
	StrategicPositioning ObjectiveType = "strategic_positioning"
	TradeRouteDiscovery  ObjectiveType = "trade_route_discovery"
)

// Objective is a prioritized reason to send scouts out.
type Objective struct {
	Type     ObjectiveType `json:"type"`
	Priority float64       `json:"priority"`
	Scouts   int           `json:"scouts"`
	Reason   string        `json:"reason"`
}

// Knowledge is what the colony already remembers. *memory.Store
// satisfies it.
type Knowledge interface {
	Count(cat memory.Category) int
}

// Needs are the colony conditions objectives are derived from.
type Needs struct {
	Colony model.Colony
	// ResourceNeed is the highest per-resource need in [0, 1].
	ResourceNeed float64
	Knowledge    Knowledge
}

func (n Needs) known(cat memory.Category) int {
	if n.Knowledge == nil {
		return 0
	}
	return n.Knowledge.Count(cat)
}

var baseScouts = map[ObjectiveType]int{
	ResourceDiscovery:    2,
	TerritoryExpansion:   2,
	ThreatAssessment:     3,
	StrategicPositioning: 2,
	TradeRouteDiscovery:  1,
}

// Objectives derives up to limit objectives at or above minPriority,
// highest priority first.
func Objectives(pat Pattern, n Needs, limit int, minPriority float64) []Objective {
	c := n.Colony
	var out []Objective
	add := func(t ObjectiveType, p float64, reason string) {
		if slices.Contains(pat.Preferred, t) {
			p += 0.15
		}
		p = model.Clamp01(p)
		if p < minPriority {
			return
		}
		scouts := baseScouts[t]
		if p > 0.8 {
			scouts++
		}
		if t == ThreatAssessment && pat.RiskTolerance < 0.4 {
			scouts++
		}
		out = append(out, Objective{Type: t, Priority: p, Scouts: scouts, Reason: reason})
	}

	p := 0.3 + 0.4*n.ResourceNeed
	if n.known(memory.DiscoveredResources) < 3 {
		p += 0.2
	}
	add(ResourceDiscovery, p, "resource need")

	p = 0.2 + 0.4*c.Behavior.Expansion
	if c.TerritorySize < 50 {
		p += 0.2
	}
	add(TerritoryExpansion, p, "room to grow")

	p = 0.2 + 0.6*c.ThreatLevel
	if c.ThreatLevel > 0.3 && n.known(memory.ThreatAssessments) == 0 {
		p += 0.2
	}
	add(ThreatAssessment, p, "threat picture")

	p = 0.15 + 0.3*c.Behavior.Aggression
	if c.DevelopmentPhase != model.PhaseEarly && c.DevelopmentPhase != "" {
		p += 0.1
	}
	add(StrategicPositioning, p, "strategic ground")

	p = 0.15
	if c.DevelopmentPhase != model.PhaseEarly && c.DevelopmentPhase != "" {
		p += 0.15
	}
	if n.known(memory.TradeOpportunities) == 0 {
		p += 0.15
	}
	add(TradeRouteDiscovery, p, "trade routes")

	slices.SortStableFunc(out, func(a, b Objective) int { return cmp.Compare(b.Priority, a.Priority) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Assignment pairs an objective with the scouts allocated to it.
type Assignment struct {
	Objective Objective `json:"objective"`
	Scouts    int       `json:"scouts"`
}

// AvailableScouts is population times the pattern's scout ratio, less
// scouts already out on missions.
func AvailableScouts(pat Pattern, c model.Colony) int {
	return max(0, int(float64(c.Population)*pat.ScoutRatio)-c.CommittedScouts())
}

// Allocate hands out available scouts greedily by priority. An objective
// that cannot be fully staffed gets what is left.
func Allocate(objectives []Objective, available int) []Assignment {
	var out []Assignment
	for _, o := range objectives {
		if available <= 0 {
			break
		}
		n := min(o.Scouts, available)
		out = append(out, Assignment{Objective: o, Scouts: n})
		available -= n
	}
	return out
}
