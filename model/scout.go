package model

import "slices"

// MissionState is the lifecycle stage of a scout mission.
type MissionState string

const (
	MissionIdle          MissionState = "idle"
	MissionMoving        MissionState = "moving"
	MissionExploring     MissionState = "exploring"
	MissionReturning     MissionState = "returning"
	MissionInvestigating MissionState = "investigating"
)

// WaypointAction is what a scout does on reaching a waypoint.
type WaypointAction string

const (
	ActionInvestigate        WaypointAction = "investigate"
	ActionStealthInvestigate WaypointAction = "stealth_investigate"
	ActionRapidSurvey        WaypointAction = "rapid_survey"
	ActionSafetyCheck        WaypointAction = "safety_check"
)

// Waypoint is one stop on a scout route.
type Waypoint struct {
	Position Position       `json:"position"`
	Action   WaypointAction `json:"action"`
	Visited  bool           `json:"visited"`
}

// Discovery is something a scout found.
type Discovery struct {
	Kind     string       `json:"kind"` // resource kind, "site", "trade_route", "hazard"
	Resource ResourceKind `json:"resource,omitempty"`
	Position Position     `json:"position"`
	Value    float64      `json:"value"`
	Tick     int          `json:"tick"`
}

// Intel is threat information gathered by a scout.
type Intel struct {
	OwnerID  string   `json:"ownerId,omitempty"`
	Position Position `json:"position"`
	Threat   float64  `json:"threat"`
	Strength float64  `json:"strength"`
	Tick     int      `json:"tick"`
}

// ScoutMission is an in-flight exploration assignment.
type ScoutMission struct {
	ID                string       `json:"id"`
	Objective         string       `json:"objective"`
	Scouts            int          `json:"scouts"`
	Route             []Waypoint   `json:"route"`
	NextWaypoint      int          `json:"nextWaypoint"`
	Progress          float64      `json:"progress"`
	State             MissionState `json:"state"`
	Duration          int          `json:"duration"`
	EstimatedDuration int          `json:"estimatedDuration"`
	RiskTolerance     float64      `json:"riskTolerance"`
	Discoveries       []Discovery  `json:"discoveries"`
	Intelligence      []Intel      `json:"intelligence"`
	LaunchedTick      int          `json:"launchedTick"`
}

// Done reports whether the mission can be drained from the active list.
func (m ScoutMission) Done() bool {
	return m.Progress >= 1 || m.State == MissionReturning
}

// Clone deep-copies the mission.
func (m ScoutMission) Clone() ScoutMission {
	out := m
	out.Route = slices.Clone(m.Route)
	out.Discoveries = slices.Clone(m.Discoveries)
	out.Intelligence = slices.Clone(m.Intelligence)
	return out
}
