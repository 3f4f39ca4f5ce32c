package agent

import (
	"testing"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// baseWorld returns a minimal world with one hostile and one neutral target.
func baseWorld(tick int) model.WorldSnapshot {
	return model.WorldSnapshot{
		Tick: tick,
		Targets: []model.Target{
			{ID: "t1", OwnerID: "p1", Diplomacy: model.DiplomacyHostile, MilitaryBuildup: 0.2},
			{ID: "t2", OwnerID: "p2", Diplomacy: model.DiplomacyNeutral},
		},
		Players: []model.PlayerObservation{{ID: "p1"}},
	}
}

func baseColony() model.Colony {
	c := model.NewColony("c1", model.Builder)
	c.Military = model.Military{Used: 10, Total: 12}
	c.TerritorySize = 100
	c.Resources[model.Food] = 400
	return c
}

func hasKind(events []Event, k EventKind) bool {
	for _, e := range events {
		if e.Kind == k {
			return true
		}
	}
	return false
}

func TestDetectEvents_NoEvents(t *testing.T) {
	w, c := baseWorld(100), baseColony()
	prev := takeSnapshot(w, c, nil)

	w.Tick = 101
	events := detectEvents(w, c, &prev)
	if len(events) != 0 {
		t.Errorf("expected 0 events, got %d: %+v", len(events), events)
	}
}

func TestDetectEvents_NilPrev(t *testing.T) {
	events := detectEvents(baseWorld(100), baseColony(), nil)
	if events != nil {
		t.Errorf("expected nil events for nil prev, got %+v", events)
	}
}

func TestDetectEvents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *model.WorldSnapshot, c *model.Colony)
		want   EventKind
	}{
		{"hostile target lost", func(w *model.WorldSnapshot, _ *model.Colony) {
			w.Targets = w.Targets[1:]
		}, EventTargetLost},
		{"army devastated", func(_ *model.WorldSnapshot, c *model.Colony) {
			c.Military.Used = 4
		}, EventArmyDevastated},
		{"army devastated via world fields", func(w *model.WorldSnapshot, _ *model.Colony) {
			w.Colony = &model.ColonyFields{Military: &model.Military{Used: 3, Total: 12}}
		}, EventArmyDevastated},
		{"new player", func(w *model.WorldSnapshot, _ *model.Colony) {
			w.Players = append(w.Players, model.PlayerObservation{ID: "p9"})
		}, EventNewPlayer},
		{"phase transition", func(_ *model.WorldSnapshot, c *model.Colony) {
			c.DevelopmentPhase = model.PhaseDeveloping
		}, EventPhaseTransition},
		{"economy crisis", func(w *model.WorldSnapshot, _ *model.Colony) {
			w.Colony = &model.ColonyFields{Resources: map[model.ResourceKind]float64{model.Food: 20}}
		}, EventEconomyCrisis},
		{"territory lost", func(_ *model.WorldSnapshot, c *model.Colony) {
			c.TerritorySize = 70
		}, EventTerritoryLost},
		{"hostile buildup", func(w *model.WorldSnapshot, _ *model.Colony) {
			w.Targets[0].MilitaryBuildup = 0.75
		}, EventHostileBuildup},
		{"war declared", func(w *model.WorldSnapshot, _ *model.Colony) {
			w.Targets[1].Diplomacy = model.DiplomacyAtWar
		}, EventWarDeclared},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, c := baseWorld(100), baseColony()
			prev := takeSnapshot(w, c, nil)

			w = baseWorld(101)
			tt.mutate(&w, &c)
			events := detectEvents(w, c, &prev)
			if !hasKind(events, tt.want) {
				t.Errorf("expected %s event, got %+v", tt.want, events)
			}
		})
	}
}

func TestDetectEvents_NeutralTargetLostIsQuiet(t *testing.T) {
	w, c := baseWorld(100), baseColony()
	prev := takeSnapshot(w, c, nil)

	w.Tick = 101
	w.Targets = w.Targets[:1]
	if events := detectEvents(w, c, &prev); len(events) != 0 {
		t.Errorf("expected no events for a neutral target leaving view, got %+v", events)
	}
}

func TestDetectEvents_SmallArmyNoise(t *testing.T) {
	w, c := baseWorld(100), baseColony()
	c.Military.Used = 4
	prev := takeSnapshot(w, c, nil)

	c.Military.Used = 1
	if hasKind(detectEvents(w, c, &prev), EventArmyDevastated) {
		t.Error("armies below the floor should not raise army_devastated")
	}
}

func TestDetectEvents_FirstContactOnce(t *testing.T) {
	c := baseColony()
	quiet := model.WorldSnapshot{Tick: 1}
	prev := takeSnapshot(quiet, c, nil)

	w := baseWorld(2)
	events := detectEvents(w, c, &prev)
	if !hasKind(events, EventFirstContact) {
		t.Fatalf("expected first_contact, got %+v", events)
	}

	// Contact is sticky: losing sight and regaining it is not first contact.
	prev = takeSnapshot(w, c, &prev)
	gone := takeSnapshot(quiet, c, &prev)
	if hasKind(detectEvents(baseWorld(4), c, &gone), EventFirstContact) {
		t.Error("first_contact fired twice")
	}
}

func TestDetectEvents_KnownPlayerNotNew(t *testing.T) {
	w, c := baseWorld(100), baseColony()
	prev := takeSnapshot(w, c, nil)

	w.Players = nil
	prev = takeSnapshot(w, c, &prev)
	w.Players = []model.PlayerObservation{{ID: "p1"}}
	if hasKind(detectEvents(w, c, &prev), EventNewPlayer) {
		t.Error("a returning player is not new")
	}
}

func TestEventKinds(t *testing.T) {
	if eventKinds(nil) != nil {
		t.Error("expected nil kinds for no events")
	}
	got := eventKinds([]Event{{Kind: EventFirstContact}, {Kind: EventWarDeclared}})
	if len(got) != 2 || got[0] != "first_contact" || got[1] != "war_declared" {
		t.Errorf("unexpected kinds %v", got)
	}
}
