package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nstehr/vimy/vimy-colony/colony"
	"github.com/nstehr/vimy/vimy-colony/ipc"
	"github.com/nstehr/vimy/vimy-colony/keyed"
	"github.com/nstehr/vimy/vimy-colony/model"
)

// tracker holds the per-colony diff state between ticks.
type tracker struct {
	mu               sync.Mutex
	prev             *stateSnapshot
	pending          []Event
	lastRepelledTick int
}

// Outcome is one committed tick plus the major events that fed it.
type Outcome struct {
	Result colony.TickResult `json:"result"`
	Events []Event           `json:"events,omitempty"`
}

// Host owns every colony controller in the process. Connections and the
// batch runner share it.
type Host struct {
	cfg      colony.Config
	deps     colony.Deps
	repo     colony.Repository
	regMu    sync.Mutex
	colonies *keyed.Map[*colony.Controller]
	trackers *keyed.Map[*tracker]
	logger   *slog.Logger
}

// NewHost builds a host. repo may be nil, in which case nothing is
// persisted.
func NewHost(cfg colony.Config, deps colony.Deps, repo colony.Repository, logger *slog.Logger) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		cfg:      cfg,
		deps:     deps,
		repo:     repo,
		colonies: keyed.New[*colony.Controller](),
		trackers: keyed.New[*tracker](),
		logger:   logger,
	}, nil
}

// Register returns the controller for hello.ColonyID, creating it on first
// sight. A colony found in the repository is restored; restored reports
// whether that happened.
func (h *Host) Register(ctx context.Context, hello ipc.HelloMessage) (ctl *colony.Controller, restored bool, err error) {
	if hello.ColonyID == "" {
		return nil, false, fmt.Errorf("register: empty colony id")
	}
	h.regMu.Lock()
	defer h.regMu.Unlock()

	if ctl, ok := h.colonies.Get(hello.ColonyID); ok {
		return ctl, false, nil
	}

	if h.repo != nil {
		snap, err := h.repo.Load(ctx, hello.ColonyID)
		switch {
		case err == nil:
			ctl, err := colony.New(h.cfg, snap.Colony, h.deps, h.logger)
			if err != nil {
				return nil, false, fmt.Errorf("restore colony %s: %w", hello.ColonyID, err)
			}
			if err := ctl.Restore(snap); err != nil {
				return nil, false, err
			}
			if hello.Personality != "" && hello.Personality != snap.Colony.Personality {
				h.logger.Warn("personality is fixed at creation, ignoring hello",
					"colony", hello.ColonyID, "stored", snap.Colony.Personality, "requested", hello.Personality)
			}
			h.colonies.Set(hello.ColonyID, ctl)
			h.logger.Info("colony restored", "colony", hello.ColonyID, "tick", snap.Colony.Tick, "state", snap.Colony.State)
			return ctl, true, nil
		case !errors.Is(err, colony.ErrNotFound):
			return nil, false, fmt.Errorf("load colony %s: %w", hello.ColonyID, err)
		}
	}

	c := model.NewColony(hello.ColonyID, hello.Personality)
	if hello.Name != "" {
		c.Name = hello.Name
	}
	if hello.Position != nil {
		c.Position = *hello.Position
	}
	ctl, err = colony.New(h.cfg, c, h.deps, h.logger)
	if err != nil {
		return nil, false, err
	}
	h.colonies.Set(hello.ColonyID, ctl)
	h.logger.Info("colony registered", "colony", hello.ColonyID, "personality", hello.Personality)
	if h.repo != nil {
		if err := h.repo.Save(ctx, ctl.Export()); err != nil {
			h.logger.Warn("initial save failed", "colony", hello.ColonyID, "error", err)
		}
	}
	return ctl, false, nil
}

// Controller returns a registered colony.
func (h *Host) Controller(id string) (*colony.Controller, bool) {
	return h.colonies.Get(id)
}

// IDs lists the registered colonies in order.
func (h *Host) IDs() []string {
	var ids []string
	h.colonies.Range(func(id string, _ *colony.Controller) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	return ids
}

func (h *Host) tracker(id string) *tracker {
	return h.trackers.GetOrCreate(id, func() *tracker { return &tracker{} })
}

// Tick diffs w against the colony's previous view, runs the colony tick
// with the detected major events and persists the result. A save failure
// is returned alongside the committed outcome.
func (h *Host) Tick(ctx context.Context, id string, w model.WorldSnapshot) (Outcome, error) {
	ctl, ok := h.colonies.Get(id)
	if !ok {
		return Outcome{}, fmt.Errorf("tick colony %s: %w", id, colony.ErrNotFound)
	}
	tr := h.tracker(id)
	tr.mu.Lock()
	defer tr.mu.Unlock()

	c := ctl.Colony()
	evs := append(tr.pending, detectEvents(w, c, tr.prev)...)
	tr.pending = nil
	snap := takeSnapshot(w, c, tr.prev)
	tr.prev = &snap
	if len(evs) > 0 {
		w.MajorEvents = append(slices.Clone(w.MajorEvents), eventKinds(evs)...)
		h.logger.Info("major events", "colony", id, "tick", w.Tick, "events", w.MajorEvents)
	}

	out := Outcome{Result: ctl.Tick(w), Events: evs}
	if h.repo != nil {
		if err := h.repo.Save(ctx, ctl.Export()); err != nil {
			return out, fmt.Errorf("save colony %s: %w", id, err)
		}
	}
	return out, nil
}

// RecordCombatOutcome forwards an outcome to the colony. A failed attack
// becomes a major event for the next tick unless one fired recently.
func (h *Host) RecordCombatOutcome(id string, msg ipc.CombatOutcomeMessage) error {
	ctl, ok := h.colonies.Get(id)
	if !ok {
		return fmt.Errorf("combat outcome for colony %s: %w", id, colony.ErrNotFound)
	}
	at := msg.Time
	if at.IsZero() {
		at = time.Now()
	}
	err := ctl.RecordCombatOutcome(msg.TargetID, msg.OwnerID, msg.Success, at)
	if !msg.Success {
		tick := ctl.Colony().Tick
		tr := h.tracker(id)
		tr.mu.Lock()
		if tr.lastRepelledTick == 0 || tick-tr.lastRepelledTick >= repelledCooldownTicks {
			tr.pending = append(tr.pending, Event{
				Kind:   EventAttackRepelled,
				Tick:   tick,
				Detail: fmt.Sprintf("attack on %s failed", msg.TargetID),
			})
			tr.lastRepelledTick = max(tick, 1)
		}
		tr.mu.Unlock()
	}
	return err
}

// SaveAll persists every registered colony.
func (h *Host) SaveAll(ctx context.Context) error {
	if h.repo == nil {
		return nil
	}
	var errs []error
	h.colonies.Range(func(id string, ctl *colony.Controller) bool {
		if err := h.repo.Save(ctx, ctl.Export()); err != nil {
			errs = append(errs, fmt.Errorf("save colony %s: %w", id, err))
		}
		return true
	})
	return errors.Join(errs...)
}
