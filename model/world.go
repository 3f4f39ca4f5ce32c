package model

import "time"

// PlayerAction is one observed action by a human player.
type PlayerAction struct {
	PlayerID  string         `json:"playerId"`
	Type      string         `json:"type"`
	TargetID  string         `json:"targetId,omitempty"`
	Position  *Position      `json:"position,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// PlayerObservation groups a player's actions since the previous tick.
type PlayerObservation struct {
	ID      string         `json:"id"`
	Actions []PlayerAction `json:"actions"`
}

// Diplomacy is the colony's stance toward a target's owner.
type Diplomacy string

const (
	DiplomacyAtWar   Diplomacy = "at_war"
	DiplomacyHostile Diplomacy = "hostile"
	DiplomacyNeutral Diplomacy = "neutral"
	DiplomacyAllied  Diplomacy = "allied"
)

// Target is an attackable candidate supplied by the world.
type Target struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Kind            string    `json:"kind"` // colony, outpost, resource_node
	Position        Position  `json:"position"`
	Strength        float64   `json:"strength"`        // comparable to our Military.Used
	DefenseLevel    float64   `json:"defenseLevel"`    // 0..1
	ResourceValue   float64   `json:"resourceValue"`   // 0..1
	StrategicValue  float64   `json:"strategicValue"`  // 0..1
	ThreatLevel     float64   `json:"threatLevel"`     // 0..1
	MilitaryBuildup float64   `json:"militaryBuildup"` // 0..1
	RecentLosses    float64   `json:"recentLosses"`    // 0..1
	Diplomacy       Diplomacy `json:"diplomacy"`
}

// Sighting acknowledges something visible near the colony, fed back
// from the external visibility layer.
type Sighting struct {
	Kind     string       `json:"kind"`
	Resource ResourceKind `json:"resource,omitempty"`
	OwnerID  string       `json:"ownerId,omitempty"`
	Position Position     `json:"position"`
	Value    float64      `json:"value"`
}

// ColonyFields are the persisted colony fields the world layer owns.
// When present they overwrite the controller's copy at the start of a tick.
type ColonyFields struct {
	Resources     map[ResourceKind]float64 `json:"resources,omitempty"`
	Population    *int                     `json:"population,omitempty"`
	TerritorySize *float64                 `json:"territorySize,omitempty"`
	Military      *Military                `json:"military,omitempty"`
}

// WorldSnapshot is the read-only world view handed to one colony tick.
type WorldSnapshot struct {
	Tick        int                 `json:"tick"`
	Time        time.Time           `json:"time"`
	Colony      *ColonyFields       `json:"colony,omitempty"`
	Players     []PlayerObservation `json:"players"`
	Targets     []Target            `json:"targets"`
	Sightings   []Sighting          `json:"sightings"`
	MajorEvents []string            `json:"majorEvents,omitempty"`
	Terrain     *TerrainGrid        `json:"terrain,omitempty"`
}

// Now returns the snapshot time, or wall-clock time when unset.
func (w WorldSnapshot) Now() time.Time {
	if w.Time.IsZero() {
		return time.Now()
	}
	return w.Time
}
