package model

import (
	"maps"
	"slices"
	"time"
)

// Military tracks the colony's fighting force against its capacity.
type Military struct {
	Used  int `json:"used"`
	Total int `json:"total"`
}

// Available returns capacity that is not yet committed.
func (m Military) Available() int {
	if m.Total <= m.Used {
		return 0
	}
	return m.Total - m.Used
}

// Ratio returns Used/Total, or 0 when the colony has no capacity.
func (m Military) Ratio() float64 {
	if m.Total <= 0 {
		return 0
	}
	return Clamp01(float64(m.Used) / float64(m.Total))
}

// Behavior holds the tunable modifiers that adaptation and counter
// strategies push around. Each value is in [0, 1], 0.5 is neutral.
type Behavior struct {
	Aggression float64 `json:"aggression"`
	Expansion  float64 `json:"expansion"`
	Risk       float64 `json:"risk"`
	Defense    float64 `json:"defense"`
}

// Apply adds delta to b and clamps every field.
func (b Behavior) Apply(delta Behavior) Behavior {
	return Behavior{
		Aggression: Clamp01(b.Aggression + delta.Aggression),
		Expansion:  Clamp01(b.Expansion + delta.Expansion),
		Risk:       Clamp01(b.Risk + delta.Risk),
		Defense:    Clamp01(b.Defense + delta.Defense),
	}
}

// NeutralBehavior is the starting modifier set for a new colony.
func NeutralBehavior() Behavior {
	return Behavior{Aggression: 0.5, Expansion: 0.5, Risk: 0.5, Defense: 0.5}
}

// Focus names a share of the colony's effort.
type Focus string

const (
	FocusEconomy   Focus = "economy"
	FocusMilitary  Focus = "military"
	FocusExpansion Focus = "expansion"
	FocusDefense   Focus = "defense"
)

// Foci lists every focus in a stable order.
var Foci = []Focus{FocusEconomy, FocusMilitary, FocusExpansion, FocusDefense}

// Allocation splits effort across foci. Shares sum to 1 after Normalize.
type Allocation map[Focus]float64

// DefaultAllocation is an even split.
func DefaultAllocation() Allocation {
	return Allocation{FocusEconomy: 0.25, FocusMilitary: 0.25, FocusExpansion: 0.25, FocusDefense: 0.25}
}

// Shift adds delta to a copy of a and renormalizes. Shares never drop
// below 0.05 so no focus is abandoned outright.
func (a Allocation) Shift(delta map[Focus]float64) Allocation {
	out := make(Allocation, len(Foci))
	for _, f := range Foci {
		v := a[f] + delta[f]
		if v < 0.05 {
			v = 0.05
		}
		out[f] = v
	}
	return out.Normalize()
}

// Normalize scales shares to sum to 1.
func (a Allocation) Normalize() Allocation {
	total := 0.0
	for _, f := range Foci {
		total += a[f]
	}
	out := make(Allocation, len(Foci))
	if total <= 0 {
		return DefaultAllocation()
	}
	for _, f := range Foci {
		out[f] = a[f] / total
	}
	return out
}

// GrowthRecord is one entry in the colony's growth history.
type GrowthRecord struct {
	Tick           int              `json:"tick"`
	Time           time.Time        `json:"time"`
	Population     int              `json:"population"`
	TerritorySize  float64          `json:"territorySize"`
	Phase          DevelopmentPhase `json:"phase"`
	PopulationGain int              `json:"populationGain"`
}

// Engagement is the attack a colony is committed to, as it stood at
// launch. The zero value means no attack is running.
type Engagement struct {
	OwnerID       string `json:"ownerId,omitempty"`
	Type          string `json:"type,omitempty"`
	LaunchTick    int    `json:"launchTick"`
	ExpectedTicks int    `json:"expectedTicks"`
	// Forces is the force committed by the plan; MilitaryAtLaunch is the
	// colony's military in use when it left.
	Forces           int `json:"forces"`
	MilitaryAtLaunch int `json:"militaryAtLaunch"`
}

// Losses is the share of committed forces lost given the military now in
// use.
func (e Engagement) Losses(used int) float64 {
	if e.Forces <= 0 || used >= e.MilitaryAtLaunch {
		return 0
	}
	return Clamp01(float64(e.MilitaryAtLaunch-used) / float64(e.Forces))
}

// Colony is the AI-owned state of one colony. The Controller owns the only
// mutable copy; everything else receives a Clone.
type Colony struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	Personality      Personality              `json:"personality"`
	State            AIState                  `json:"aiState"`
	Position         Position                 `json:"position"`
	Resources        map[ResourceKind]float64 `json:"resources"`
	StorageCapacity  float64                  `json:"storageCapacity"`
	Population       int                      `json:"population"`
	TerritorySize    float64                  `json:"territorySize"`
	Military         Military                 `json:"military"`
	ThreatLevel      float64                  `json:"threatLevel"`
	CurrentStrategy  MacroStrategy            `json:"currentStrategy"`
	AdaptationLevel  float64                  `json:"adaptationLevel"`
	Behavior         Behavior                 `json:"behavior"`
	Allocation       Allocation               `json:"allocation"`
	DevelopmentPhase DevelopmentPhase         `json:"developmentPhase"`
	ScoutMissions    []ScoutMission           `json:"activeScoutMissions"`
	GrowthHistory    []GrowthRecord           `json:"growthHistory"`
	CurrentTargetID  string                   `json:"currentTargetId,omitempty"`
	Engagement       Engagement               `json:"engagement,omitzero"`
	Tick             int                      `json:"tick"`
}

// NewColony returns a colony with neutral modifiers and an early-game stockpile.
func NewColony(id string, p Personality) Colony {
	return Colony{
		ID:          id,
		Name:        id,
		Personality: p,
		State:       StateIdle,
		Resources: map[ResourceKind]float64{
			Food: 200, Water: 150, Wood: 150, Stone: 100, Minerals: 50,
		},
		StorageCapacity:  1000,
		Population:       20,
		TerritorySize:    25,
		Military:         Military{Used: 5, Total: 10},
		CurrentStrategy:  StrategyBalanced,
		Behavior:         NeutralBehavior(),
		Allocation:       DefaultAllocation(),
		DevelopmentPhase: PhaseEarly,
	}
}

// Resource returns the stockpile of kind, 0 when absent.
func (c Colony) Resource(kind ResourceKind) float64 {
	return c.Resources[kind]
}

// ClearTarget drops the current attack target and its engagement.
func (c *Colony) ClearTarget() {
	c.CurrentTargetID = ""
	c.Engagement = Engagement{}
}

// CommittedScouts counts scouts out on active missions.
func (c Colony) CommittedScouts() int {
	n := 0
	for _, m := range c.ScoutMissions {
		n += m.Scouts
	}
	return n
}

// Clone deep-copies the colony so a tick can work on it and commit or drop it.
func (c Colony) Clone() Colony {
	out := c
	out.Resources = maps.Clone(c.Resources)
	if c.Allocation != nil {
		out.Allocation = maps.Clone(c.Allocation)
	}
	out.GrowthHistory = slices.Clone(c.GrowthHistory)
	out.ScoutMissions = make([]ScoutMission, len(c.ScoutMissions))
	for i, m := range c.ScoutMissions {
		out.ScoutMissions[i] = m.Clone()
	}
	return out
}
