package ipc

import (
	"time"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Command types pushed to the host after a tick commits. The host is
// expected to carry them out; the engine never resolves combat or moves
// units itself.
const (
	TypeSetState       = "set_state"
	TypeExecute        = "execute"
	TypeAssignWorkers  = "assign_workers"
	TypeLaunchAttack   = "launch_attack"
	TypeDispatchScouts = "dispatch_scouts"
)

type SetStateCommand struct {
	State      model.AIState `json:"state"`
	Action     string        `json:"action"`
	Confidence float64       `json:"confidence"`
}

type ExecuteCommand struct {
	Action  string `json:"action"`
	Primary bool   `json:"primary,omitempty"`
}

type AssignWorkersCommand struct {
	Workers map[model.ResourceKind]int `json:"workers"`
}

type LaunchAttackCommand struct {
	TargetID    string        `json:"target_id"`
	OwnerID     string        `json:"owner_id,omitempty"`
	AttackType  string        `json:"attack_type"`
	Forces      int           `json:"forces"`
	Preparation time.Duration `json:"preparation"`
}

type DispatchScoutsCommand struct {
	MissionID string           `json:"mission_id"`
	Objective string           `json:"objective"`
	Scouts    int              `json:"scouts"`
	Route     []model.Waypoint `json:"route"`
}
