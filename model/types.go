package model

import "math"

// Personality is the fixed temperament a colony is created with. It never
// changes; adaptation moves the behavior modifiers instead.
type Personality string

const (
	Aggressive   Personality = "aggressive"
	Defensive    Personality = "defensive"
	Expansionist Personality = "expansionist"
	Opportunist  Personality = "opportunist"
	Militant     Personality = "militant"
	Builder      Personality = "builder"
)

// Personalities lists every valid personality in a stable order.
var Personalities = []Personality{Aggressive, Defensive, Expansionist, Opportunist, Militant, Builder}

func (p Personality) Valid() bool {
	for _, v := range Personalities {
		if p == v {
			return true
		}
	}
	return false
}

// AIState is the high-level behavior mode a colony occupies.
type AIState string

const (
	StateIdle      AIState = "idle"
	StateGathering AIState = "gathering"
	StateDefending AIState = "defending"
	StateAttacking AIState = "attacking"
	StateGrowing   AIState = "growing"
	StateExploring AIState = "exploring"
)

func (s AIState) Valid() bool {
	switch s {
	case StateIdle, StateGathering, StateDefending, StateAttacking, StateGrowing, StateExploring:
		return true
	}
	return false
}

// ResourceKind names a stockpiled resource.
type ResourceKind string

const (
	Food     ResourceKind = "food"
	Wood     ResourceKind = "wood"
	Stone    ResourceKind = "stone"
	Minerals ResourceKind = "minerals"
	Water    ResourceKind = "water"
)

// ResourceKinds lists every resource kind in priority-tiebreak order.
var ResourceKinds = []ResourceKind{Food, Water, Wood, Stone, Minerals}

// MacroStrategy tags the colony's current high-level plan.
type MacroStrategy string

const (
	StrategyBalanced             MacroStrategy = "balanced"
	StrategyEconomicBoom         MacroStrategy = "economic_boom"
	StrategyMilitaryRush         MacroStrategy = "military_rush"
	StrategyDefensiveTurtle      MacroStrategy = "defensive_turtle"
	StrategyTerritorialExpansion MacroStrategy = "territorial_expansion"
	StrategyGuerrillaWarfare     MacroStrategy = "guerrilla_warfare"
	StrategySiegeWarfare         MacroStrategy = "siege_warfare"
	StrategyRaiding              MacroStrategy = "raiding"
	StrategyCounterOffensive     MacroStrategy = "counter_offensive"
	StrategyTerritorialDenial    MacroStrategy = "territorial_denial"
	StrategyAdaptiveChaos        MacroStrategy = "adaptive_chaos"
)

// DevelopmentPhase is the coarse maturity of a colony.
type DevelopmentPhase string

const (
	PhaseEarly       DevelopmentPhase = "early"
	PhaseDeveloping  DevelopmentPhase = "developing"
	PhaseEstablished DevelopmentPhase = "established"
	PhaseAdvanced    DevelopmentPhase = "advanced"
)

// Position is an abstract map coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the euclidean distance between two positions.
func (p Position) Distance(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Offset returns p moved by (dx, dy).
func (p Position) Offset(dx, dy float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Clamp01 restricts v to [0, 1]. NaN collapses to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp restricts v to [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
