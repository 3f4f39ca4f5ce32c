package agent

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// EventKind identifies a significant world change. Kinds are handed to the
// colony tick as major events, which raise the adaptation need.
type EventKind string

const (
	EventTargetLost      EventKind = "target_lost"
	EventArmyDevastated  EventKind = "army_devastated"
	EventFirstContact    EventKind = "first_contact"
	EventNewPlayer       EventKind = "new_player"
	EventPhaseTransition EventKind = "phase_transition"
	EventEconomyCrisis   EventKind = "economy_crisis"
	EventTerritoryLost   EventKind = "territory_lost"
	EventHostileBuildup  EventKind = "hostile_buildup"
	EventWarDeclared     EventKind = "war_declared"
	EventAttackRepelled  EventKind = "attack_repelled"
)

// Event is a significant change detected by diffing consecutive world
// snapshots.
type Event struct {
	Kind   EventKind `json:"kind"`
	Tick   int       `json:"tick"`
	Detail string    `json:"detail"`
}

// stateSnapshot captures the diffable fields of one tick's view.
type stateSnapshot struct {
	targets   map[string]model.Target
	military  int
	food      float64
	territory float64
	phase     model.DevelopmentPhase
	contact   bool
	players   map[string]bool // every player seen so far
	buildup   float64         // highest hostile military buildup
}

// buildupAlarm is the hostile buildup level that counts as a major event.
const buildupAlarm = 0.7

// repelledCooldownTicks is the minimum gap between attack_repelled events.
const repelledCooldownTicks = 20

func hostile(t model.Target) bool {
	return t.Diplomacy == model.DiplomacyAtWar || t.Diplomacy == model.DiplomacyHostile
}

// takeSnapshot captures the current diffable state for the next tick's
// comparison. World-owned colony fields win over the colony copy.
func takeSnapshot(w model.WorldSnapshot, c model.Colony, prev *stateSnapshot) stateSnapshot {
	snap := stateSnapshot{
		targets:   make(map[string]model.Target, len(w.Targets)),
		military:  c.Military.Used,
		food:      c.Resource(model.Food),
		territory: c.TerritorySize,
		phase:     c.DevelopmentPhase,
		players:   make(map[string]bool),
	}
	if f := w.Colony; f != nil {
		if v, ok := f.Resources[model.Food]; ok {
			snap.food = v
		}
		if f.Military != nil {
			snap.military = f.Military.Used
		}
		if f.TerritorySize != nil {
			snap.territory = *f.TerritorySize
		}
	}
	if prev != nil {
		maps.Copy(snap.players, prev.players)
		snap.contact = prev.contact
	}
	for _, t := range w.Targets {
		snap.targets[t.ID] = t
		if hostile(t) {
			snap.contact = true
			snap.buildup = max(snap.buildup, t.MilitaryBuildup)
		}
	}
	for _, p := range w.Players {
		snap.players[p.ID] = true
		if len(p.Actions) > 0 {
			snap.contact = true
		}
	}
	return snap
}

// detectEvents compares the world against the previous snapshot and
// returns any triggered events. Returns nil if prev is nil (first tick).
func detectEvents(w model.WorldSnapshot, c model.Colony, prev *stateSnapshot) []Event {
	if prev == nil {
		return nil
	}

	var events []Event
	cur := takeSnapshot(w, c, prev)

	// 1. target_lost: a hostile target visible last tick is gone
	for _, id := range slices.Sorted(maps.Keys(prev.targets)) {
		t := prev.targets[id]
		if _, ok := cur.targets[id]; !ok && hostile(t) {
			events = append(events, Event{
				Kind:   EventTargetLost,
				Tick:   w.Tick,
				Detail: fmt.Sprintf("hostile target %s (%s) no longer visible", id, t.OwnerID),
			})
			break // one is enough to signal the change
		}
	}

	// 2. army_devastated: more than half the deployed forces lost (floor of 6)
	if prev.military >= 6 {
		lost := prev.military - cur.military
		if lost > 0 && float64(lost)/float64(prev.military) > 0.5 {
			events = append(events, Event{
				Kind:   EventArmyDevastated,
				Tick:   w.Tick,
				Detail: fmt.Sprintf("forces %d -> %d (lost %d%%)", prev.military, cur.military, 100*lost/prev.military),
			})
		}
	}

	// 3. first_contact: hostiles or player activity seen for the first time
	if !prev.contact && cur.contact {
		events = append(events, Event{Kind: EventFirstContact, Tick: w.Tick, Detail: "first hostile contact"})
	}

	// 4. new_player: a player never seen before
	var fresh []string
	for id := range cur.players {
		if !prev.players[id] {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) > 0 {
		slices.Sort(fresh)
		events = append(events, Event{
			Kind:   EventNewPlayer,
			Tick:   w.Tick,
			Detail: "new players: " + strings.Join(fresh, ", "),
		})
	}

	// 5. phase_transition
	if prev.phase != "" && prev.phase != cur.phase {
		events = append(events, Event{
			Kind:   EventPhaseTransition,
			Tick:   w.Tick,
			Detail: fmt.Sprintf("phase %s -> %s", prev.phase, cur.phase),
		})
	}

	// 6. economy_crisis: food collapses from plenty to below the floor
	if prev.food > 200 && cur.food < 50 {
		events = append(events, Event{
			Kind:   EventEconomyCrisis,
			Tick:   w.Tick,
			Detail: fmt.Sprintf("food collapsed %.0f -> %.0f", prev.food, cur.food),
		})
	}

	// 7. territory_lost: more than a fifth of the territory gone
	if prev.territory > 0 && cur.territory < 0.8*prev.territory {
		events = append(events, Event{
			Kind:   EventTerritoryLost,
			Tick:   w.Tick,
			Detail: fmt.Sprintf("territory %.0f -> %.0f", prev.territory, cur.territory),
		})
	}

	// 8. hostile_buildup: a hostile military crosses the alarm level
	if prev.buildup < buildupAlarm && cur.buildup >= buildupAlarm {
		events = append(events, Event{
			Kind:   EventHostileBuildup,
			Tick:   w.Tick,
			Detail: fmt.Sprintf("hostile buildup %.2f", cur.buildup),
		})
	}

	// 9. war_declared: a known target's owner is now at war with us
	for _, id := range slices.Sorted(maps.Keys(cur.targets)) {
		t := cur.targets[id]
		if old, ok := prev.targets[id]; ok && old.Diplomacy != model.DiplomacyAtWar && t.Diplomacy == model.DiplomacyAtWar {
			events = append(events, Event{
				Kind:   EventWarDeclared,
				Tick:   w.Tick,
				Detail: fmt.Sprintf("%s is now at war", t.OwnerID),
			})
			break
		}
	}

	return events
}

// eventKinds renders events as the major-event flags a tick consumes.
func eventKinds(events []Event) []string {
	if len(events) == 0 {
		return nil
	}
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e.Kind)
	}
	return out
}
