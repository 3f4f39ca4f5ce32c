package events

import (
	"time"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Type identifies the kind of an event. The set is closed: every Type has
// exactly one payload struct below.
type Type string

const (
	TypeStrategyChanged        Type = "strategy_changed"
	TypeStateChanged           Type = "state_changed"
	TypeThreatChanged          Type = "threat_changed"
	TypeAttackLaunched         Type = "attack_launched"
	TypeCounterStrategyApplied Type = "counter_strategy_applied"
	TypePatternDetected        Type = "pattern_detected"
	TypeScoutLaunched          Type = "scout_launched"
	TypeScoutCompleted         Type = "scout_completed"
	TypeResourceDiscovered     Type = "resource_discovered"
	TypeDecisionFallback       Type = "decision_fallback"
)

// Types lists every event type.
var Types = []Type{
	TypeStrategyChanged, TypeStateChanged, TypeThreatChanged, TypeAttackLaunched,
	TypeCounterStrategyApplied, TypePatternDetected, TypeScoutLaunched, TypeScoutCompleted,
	TypeResourceDiscovered, TypeDecisionFallback,
}

// Level is the named urgency of an event.
type Level int

const (
	LevelLow Level = iota + 1
	LevelMedium
	LevelHigh
	LevelCritical
	LevelEmergency
)

// Priority converts a level into the numeric queue priority.
func (l Level) Priority() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 3
	case LevelHigh:
		return 5
	case LevelCritical:
		return 8
	case LevelEmergency:
		return 10
	}
	return 0
}

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	}
	return "unknown"
}

// Payload is the typed body of an event.
type Payload interface {
	EventType() Type
}

type StrategyChanged struct {
	Old        model.MacroStrategy `json:"old"`
	New        model.MacroStrategy `json:"new"`
	PlayerID   string              `json:"playerId,omitempty"`
	Reasoning  string              `json:"reasoning"`
	Confidence float64             `json:"confidence"`
}

type StateChanged struct {
	From model.AIState `json:"from"`
	To   model.AIState `json:"to"`
}

type ThreatChanged struct {
	Old     float64  `json:"old"`
	New     float64  `json:"new"`
	Reasons []string `json:"reasons,omitempty"`
}

type AttackLaunched struct {
	TargetID   string  `json:"targetId"`
	OwnerID    string  `json:"ownerId"`
	AttackType string  `json:"attackType"`
	Score      float64 `json:"score"`
	Urgency    float64 `json:"urgency"`
	Forces     int     `json:"forces"`
}

type CounterStrategyApplied struct {
	PlayerID      string  `json:"playerId"`
	ApplicationID string  `json:"applicationId"`
	CounterType   string  `json:"counterType"`
	Effectiveness float64 `json:"effectiveness"`
}

type PatternDetected struct {
	PlayerID   string  `json:"playerId"`
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
	Predicted  string  `json:"predicted"`
}

type ScoutLaunched struct {
	MissionID string `json:"missionId"`
	Objective string `json:"objective"`
	Scouts    int    `json:"scouts"`
}

type ScoutCompleted struct {
	MissionID   string `json:"missionId"`
	Objective   string `json:"objective"`
	Discoveries int    `json:"discoveries"`
	Intel       int    `json:"intel"`
}

type ResourceDiscovered struct {
	Resource model.ResourceKind `json:"resource"`
	Position model.Position     `json:"position"`
	Value    float64            `json:"value"`
}

type DecisionFallback struct {
	Action string `json:"action"`
	Cause  string `json:"cause"`
}

func (StrategyChanged) EventType() Type        { return TypeStrategyChanged }
func (StateChanged) EventType() Type           { return TypeStateChanged }
func (ThreatChanged) EventType() Type          { return TypeThreatChanged }
func (AttackLaunched) EventType() Type         { return TypeAttackLaunched }
func (CounterStrategyApplied) EventType() Type { return TypeCounterStrategyApplied }
func (PatternDetected) EventType() Type        { return TypePatternDetected }
func (ScoutLaunched) EventType() Type          { return TypeScoutLaunched }
func (ScoutCompleted) EventType() Type         { return TypeScoutCompleted }
func (ResourceDiscovered) EventType() Type     { return TypeResourceDiscovered }
func (DecisionFallback) EventType() Type       { return TypeDecisionFallback }

// Event is a queued notification.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Payload   Payload   `json:"payload"`
	Level     Level     `json:"level"`
	Priority  int       `json:"priority"`
	ColonyID  string    `json:"colonyId"`
	Timestamp time.Time `json:"timestamp"`
	Attempts  int       `json:"attempts"`
	Processed bool      `json:"processed"`
	Failed    bool      `json:"failed"`
	LastError string    `json:"lastError,omitempty"`

	notBefore time.Time
	seq       uint64
	handled   bool
	delivered map[int]bool
}

// Draft is an event not yet published: a colony-scoped payload and level.
// Components return drafts so the controller can publish them only once a
// tick commits.
type Draft struct {
	ColonyID string
	Level    Level
	Payload  Payload
}
