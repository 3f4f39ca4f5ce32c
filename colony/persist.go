package colony

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/nstehr/vimy/vimy-colony/adaptive"
	"github.com/nstehr/vimy/vimy-colony/counter"
	"github.com/nstehr/vimy/vimy-colony/memory"
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/monitor"
)

// ErrNotFound is returned by a Repository for an unknown colony id.
var ErrNotFound = errors.New("colony not found")

// Snapshot is the persisted surface of a colony: its state, memory and
// the engine histories that outlive a restart.
type Snapshot struct {
	Colony      model.Colony                       `json:"colony"`
	Memory      map[memory.Category][]memory.Entry `json:"memory"`
	Adaptations []adaptive.Record                  `json:"adaptations,omitempty"`
	Counters    []counter.Application              `json:"counters,omitempty"`
	Patterns    map[string][]monitor.PatternType   `json:"patterns,omitempty"`
	Cursors     map[string]time.Time               `json:"cursors,omitempty"`
	SavedAt     time.Time                          `json:"savedAt"`
}

// Repository stores snapshots. Implementations must be safe for
// concurrent use.
type Repository interface {
	Load(ctx context.Context, id string) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// Export captures the colony's persisted surface.
func (ctl *Controller) Export() Snapshot {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	s := Snapshot{
		Colony:      ctl.colony.Clone(),
		Memory:      ctl.mem.Export(),
		Adaptations: ctl.deps.Adaptive.History(ctl.id),
		Counters:    ctl.deps.Counter.Ledger(ctl.id),
		Patterns:    make(map[string][]monitor.PatternType, len(ctl.patterns)),
		Cursors:     maps.Clone(ctl.cursors),
		SavedAt:     ctl.now(),
	}
	for player, seen := range ctl.patterns {
		s.Patterns[player] = slices.Sorted(maps.Keys(seen))
	}
	return s
}

// Restore replaces the colony with a persisted snapshot. The snapshot must
// belong to this colony and carry a valid state and personality.
func (ctl *Controller) Restore(s Snapshot) error {
	if s.Colony.ID != ctl.id {
		return fmt.Errorf("restore colony %s from snapshot of %s", ctl.id, s.Colony.ID)
	}
	if !s.Colony.State.Valid() {
		return fmt.Errorf("restore colony %s: unknown state %q", ctl.id, s.Colony.State)
	}
	if !s.Colony.Personality.Valid() {
		return fmt.Errorf("restore colony %s: unknown personality %q", ctl.id, s.Colony.Personality)
	}

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	c := s.Colony.Clone()
	c.ThreatLevel = model.Clamp01(c.ThreatLevel)
	c.AdaptationLevel = model.Clamp01(c.AdaptationLevel)
	ctl.colony = c
	ctl.mem.Import(s.Memory)
	ctl.deps.Adaptive.Restore(ctl.id, s.Adaptations)
	ctl.deps.Counter.Restore(ctl.id, s.Counters)
	ctl.patterns = make(map[string]map[monitor.PatternType]bool, len(s.Patterns))
	for player, ps := range s.Patterns {
		seen := make(map[monitor.PatternType]bool, len(ps))
		for _, p := range ps {
			seen[p] = true
		}
		ctl.patterns[player] = seen
	}
	ctl.cursors = make(map[string]time.Time, len(s.Cursors))
	maps.Copy(ctl.cursors, s.Cursors)
	if !s.SavedAt.IsZero() {
		ctl.clock.Store(s.SavedAt.UnixNano())
	}
	return nil
}
