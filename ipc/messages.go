package ipc

import (
	"time"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Message types understood by the engine. The host sends hello,
// world_snapshot and combat_outcome; the engine answers with ack, error
// and tick_result and pushes order commands.
const (
	TypeHello         = "hello"
	TypeAck           = "ack"
	TypeError         = "error"
	TypeWorldSnapshot = "world_snapshot"
	TypeTickResult    = "tick_result"
	TypeCombatOutcome = "combat_outcome"
)

// HelloMessage binds the connection to a colony. A colony already stored
// is restored and keeps its original personality.
type HelloMessage struct {
	ColonyID    string            `json:"colonyId"`
	Name        string            `json:"name,omitempty"`
	Personality model.Personality `json:"personality"`
	Position    *model.Position   `json:"position,omitempty"`
	Terrain     *TerrainData      `json:"terrain,omitempty"`
}

// TerrainData carries the coarse terrain grid from the host.
// Optional; without it every zone counts as land.
type TerrainData struct {
	Cols  int   `json:"cols"`
	Rows  int   `json:"rows"`
	CellW int   `json:"cellW"`
	CellH int   `json:"cellH"`
	Grid  []int `json:"grid"`
}

// TerrainGrid converts the wire form into a terrain grid. Unknown codes count
// as land.
func (t *TerrainData) TerrainGrid() *model.TerrainGrid {
	if t == nil || t.Cols <= 0 || t.Rows <= 0 {
		return nil
	}
	g := &model.TerrainGrid{Cols: t.Cols, Rows: t.Rows, CellW: t.CellW, CellH: t.CellH, Grid: make([]model.TerrainType, len(t.Grid))}
	for i, v := range t.Grid {
		if v >= int(model.TerrainLand) && v <= int(model.TerrainBridge) {
			g.Grid[i] = model.TerrainType(v)
		}
	}
	return g
}

type AckMessage struct {
	Status   string `json:"status"`
	ColonyID string `json:"colonyId,omitempty"`
	Restored bool   `json:"restored,omitempty"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}

// CombatOutcomeMessage reports how an attack or counter-strategy went.
type CombatOutcomeMessage struct {
	TargetID string    `json:"targetId,omitempty"`
	OwnerID  string    `json:"ownerId,omitempty"`
	Success  bool      `json:"success"`
	Time     time.Time `json:"time,omitzero"`
}

// Batch messages let one connection drive many colonies per round.
const (
	TypeWorldBatch = "world_batch"
	TypeTickBatch  = "tick_batch"
)

// BatchEntry is one colony's world view. The colony is registered on
// first sight from the embedded hello.
type BatchEntry struct {
	Colony HelloMessage        `json:"colony"`
	World  model.WorldSnapshot `json:"world"`
}

type WorldBatchMessage struct {
	Entries []BatchEntry `json:"entries"`
}
