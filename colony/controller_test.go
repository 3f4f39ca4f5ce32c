package colony

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstehr/vimy/vimy-colony/adaptive"
	"github.com/nstehr/vimy/vimy-colony/counter"
	"github.com/nstehr/vimy/vimy-colony/events"
	"github.com/nstehr/vimy/vimy-colony/explore"
	"github.com/nstehr/vimy/vimy-colony/memory"
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/monitor"
	"github.com/nstehr/vimy/vimy-colony/trigger"
)

var start = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	drafts []events.Draft
}

func (r *recorder) PublishDrafts(drafts []events.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts = append(r.drafts, drafts...)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.drafts))
	for i, d := range r.drafts {
		out[i] = d.Payload.EventType()
	}
	return out
}

func newDeps(t *testing.T) (Deps, *recorder) {
	t.Helper()
	log := quietLogger()
	mon, err := monitor.New(monitor.DefaultConfig(), log)
	require.NoError(t, err)
	ad, err := adaptive.New(adaptive.DefaultConfig(), 7, log)
	require.NoError(t, err)
	trg, err := trigger.New(trigger.DefaultConfig(), log)
	require.NoError(t, err)
	ctr, err := counter.New(counter.DefaultConfig(), 7, trg, log)
	require.NoError(t, err)
	exp, err := explore.New(explore.DefaultConfig(), log)
	require.NoError(t, err)
	rec := &recorder{}
	return Deps{
		Monitor:  mon,
		Adaptive: ad,
		Counter:  ctr,
		Trigger:  trg,
		Explore:  exp,
		Events:   rec,
		Memory:   memory.DefaultConfig(),
		Seed:     7,
	}, rec
}

func newController(t *testing.T, c model.Colony) (*Controller, Deps, *recorder) {
	t.Helper()
	deps, rec := newDeps(t)
	ctl, err := New(DefaultConfig(), c, deps, quietLogger())
	require.NoError(t, err)
	return ctl, deps, rec
}

func world(tick int) model.WorldSnapshot {
	return model.WorldSnapshot{Tick: tick, Time: start.Add(time.Duration(tick) * time.Second)}
}

func raider(id string, n int) model.PlayerObservation {
	obs := model.PlayerObservation{ID: id}
	for i := range n {
		obs.Actions = append(obs.Actions, model.PlayerAction{
			PlayerID:  id,
			Type:      "attack_outpost",
			Timestamp: start.Add(time.Duration(i) * time.Millisecond),
		})
	}
	return obs
}

func juicyTarget() model.Target {
	return model.Target{
		ID:              "t1",
		OwnerID:         "p1",
		Position:        model.Position{X: 10},
		Strength:        5,
		DefenseLevel:    0.1,
		RecentLosses:    0.5,
		ResourceValue:   0.9,
		StrategicValue:  0.9,
		ThreatLevel:     0.9,
		MilitaryBuildup: 0.8,
		Diplomacy:       model.DiplomacyAtWar,
	}
}

func TestNewValidates(t *testing.T) {
	deps, _ := newDeps(t)

	_, err := New(DefaultConfig(), model.NewColony("c1", model.Personality("lazy")), deps, nil)
	assert.Error(t, err)

	_, err = New(DefaultConfig(), model.NewColony("", model.Builder), deps, nil)
	assert.Error(t, err)

	bad := deps
	bad.Counter = nil
	_, err = New(DefaultConfig(), model.NewColony("c1", model.Builder), bad, nil)
	assert.ErrorContains(t, err, "counter selector")

	c := model.NewColony("c1", model.Builder)
	c.State = ""
	ctl, err := New(DefaultConfig(), c, deps, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, ctl.State())
}

func TestTickLowFoodGathers(t *testing.T) {
	c := model.NewColony("c1", model.Expansionist)
	c.Resources[model.Food] = 20
	c.ThreatLevel = 0.1
	ctl, _, rec := newController(t, c)

	res := ctl.Tick(world(1))
	require.False(t, res.Fallback, res.Error)
	assert.Equal(t, "gather_food", res.Decision.Action)
	assert.Equal(t, model.StateIdle, res.From)
	assert.Equal(t, model.StateGathering, res.To)
	assert.Equal(t, "gather_food", res.Orders[0])
	assert.Equal(t, model.StateGathering, ctl.State())
	assert.Equal(t, 1, ctl.Colony().Tick)
	assert.Contains(t, rec.types(), events.TypeStateChanged)
}

func TestTickHighThreatDefendsForEveryPersonality(t *testing.T) {
	for _, p := range model.Personalities {
		t.Run(string(p), func(t *testing.T) {
			c := model.NewColony("c1", p)
			c.ThreatLevel = 0.85
			ctl, _, _ := newController(t, c)

			res := ctl.Tick(world(1))
			require.False(t, res.Fallback, res.Error)
			assert.Equal(t, SourceDefense, res.Decision.Source)
			assert.Equal(t, model.StateDefending, res.To)
			assert.Nil(t, res.Attack)
			assert.Equal(t, model.StateDefending, ctl.State())
		})
	}
}

func TestTickObservesPlayers(t *testing.T) {
	ctl, deps, rec := newController(t, model.NewColony("c1", model.Builder))

	w := world(1)
	w.Players = []model.PlayerObservation{raider("p1", 10)}
	res := ctl.Tick(w)
	require.False(t, res.Fallback, res.Error)

	require.NotNil(t, res.Adaptation)
	assert.Equal(t, model.StrategyBalanced, res.Adaptation.Old)
	assert.Equal(t, res.Adaptation.New, ctl.Colony().CurrentStrategy)
	assert.Len(t, deps.Adaptive.History("c1"), 1)

	require.NotNil(t, res.Counter)
	assert.Len(t, deps.Counter.Ledger("c1"), 1)
	assert.Equal(t, "p1", res.Counter.PlayerID)
	assert.Subset(t, res.Orders, res.Counter.Plan.ImmediateActions)

	assert.Greater(t, res.ThreatLevel, 0.0)
	assert.Equal(t, 1, ctl.Memory().Count(memory.PlayerInteractions))
	assert.GreaterOrEqual(t, ctl.Memory().Count(memory.StrategicInsights), 1)
	assert.Equal(t, 1, ctl.Memory().Count(memory.ThreatAssessments))

	types := rec.types()
	assert.Contains(t, types, events.TypeStrategyChanged)
	assert.Contains(t, types, events.TypeCounterStrategyApplied)
	assert.Contains(t, types, events.TypePatternDetected)
	assert.Contains(t, types, events.TypeThreatChanged)

	// The same actions seen again are not recounted and known patterns
	// are not announced twice.
	before := len(rec.types())
	w2 := world(2)
	w2.Players = w.Players
	res = ctl.Tick(w2)
	require.False(t, res.Fallback, res.Error)
	assert.Nil(t, res.Adaptation, "adaptation cooldown")
	assert.Equal(t, 1, ctl.Memory().Count(memory.PlayerInteractions))
	assert.NotContains(t, rec.types()[before:], events.TypePatternDetected)
}

func TestTickAdaptsEveryColonySharingPlayers(t *testing.T) {
	deps, _ := newDeps(t)
	w := world(1)
	w.Players = []model.PlayerObservation{raider("p1", 10)}

	for _, id := range []string{"a", "b"} {
		ctl, err := New(DefaultConfig(), model.NewColony(id, model.Builder), deps, quietLogger())
		require.NoError(t, err)

		res := ctl.Tick(w)
		require.False(t, res.Fallback, res.Error)
		assert.NotNil(t, res.Adaptation, id)
		assert.Equal(t, 1, ctl.Memory().Count(memory.PlayerInteractions), id)
		assert.Len(t, deps.Adaptive.History(id), 1, id)
	}
}

func TestTickPanicFallsBackAtomically(t *testing.T) {
	ctl, deps, rec := newController(t, model.NewColony("c1", model.Builder))
	ctl.onStep = func(step string) {
		if step == "explore" {
			panic("boom")
		}
	}
	before := ctl.Colony()

	w := world(1)
	w.Players = []model.PlayerObservation{raider("p1", 10)}
	res := ctl.Tick(w)

	assert.True(t, res.Fallback)
	assert.Contains(t, res.Error, "boom")
	assert.Equal(t, SourceFallback, res.Decision.Source)
	assert.Equal(t, before.State, res.To)
	assert.Empty(t, cmp.Diff(before, ctl.Colony(), cmpopts.EquateEmpty()))
	for _, cat := range memory.Categories {
		assert.Zero(t, ctl.Memory().Count(cat), cat)
	}
	assert.Empty(t, deps.Adaptive.History("c1"))
	assert.Empty(t, deps.Counter.Ledger("c1"))
	assert.Equal(t, []events.Type{events.TypeDecisionFallback}, rec.types())

	ctl.onStep = nil
	res = ctl.Tick(world(2))
	assert.False(t, res.Fallback)
}

func TestTickLaunchesAndAbortsAttack(t *testing.T) {
	c := model.NewColony("c1", model.Militant)
	c.Military = model.Military{Used: 30, Total: 40}
	c.State = model.StateGathering
	ctl, deps, rec := newController(t, c)

	w := world(1)
	w.Targets = []model.Target{juicyTarget()}
	res := ctl.Tick(w)
	require.False(t, res.Fallback, res.Error)
	require.NotNil(t, res.Attack)
	assert.Equal(t, "t1", res.Attack.TargetID)
	assert.Equal(t, "attack_t1", res.Decision.Action)
	assert.Equal(t, SourceAttack, res.Decision.Source)
	assert.Equal(t, model.StateAttacking, ctl.State())
	assert.Equal(t, "t1", ctl.Colony().CurrentTargetID)
	assert.Contains(t, rec.types(), events.TypeAttackLaunched)
	assert.Equal(t, 1, deps.Trigger.Patterns("c1").Attacks)
	assert.False(t, deps.Trigger.AttackReady("c1", res.Attack.Type, w.Time))

	e := ctl.Colony().Engagement
	assert.Equal(t, "p1", e.OwnerID)
	assert.Equal(t, string(res.Attack.Plan.Type), e.Type)
	assert.Equal(t, 1, e.LaunchTick)
	assert.Equal(t, 30, e.MilitaryAtLaunch)
	assert.Equal(t, res.Attack.Plan.Forces, e.Forces)
	assert.Positive(t, e.ExpectedTicks)

	// Target gone: the attack is called off.
	res = ctl.Tick(world(2))
	require.False(t, res.Fallback, res.Error)
	assert.Nil(t, res.Attack)
	assert.NotEqual(t, model.StateAttacking, ctl.State())
	assert.Empty(t, ctl.Colony().CurrentTargetID)
	assert.Equal(t, 2, ctl.Memory().Count(memory.CombatOutcomes))
	assert.Contains(t, res.Decision.Reasoning, "attack aborted: target no longer visible")
	assert.Zero(t, ctl.Colony().Engagement)
}

func attackingColony(e model.Engagement) model.Colony {
	c := model.NewColony("c1", model.Militant)
	c.Military = model.Military{Used: 30, Total: 40}
	c.State = model.StateAttacking
	c.CurrentTargetID = "t1"
	c.Tick = e.LaunchTick
	c.Engagement = e
	return c
}

func TestTickAbortsRunningAttack(t *testing.T) {
	tests := []struct {
		name   string
		e      model.Engagement
		world  func() model.WorldSnapshot
		reason string
	}{
		{
			name: "heavy losses",
			e: model.Engagement{
				OwnerID: "p1", Type: "blitz", LaunchTick: 1, ExpectedTicks: 3,
				Forces: 21, MilitaryAtLaunch: 30,
			},
			world: func() model.WorldSnapshot {
				w := world(2)
				w.Colony = &model.ColonyFields{Military: &model.Military{Used: 10, Total: 40}}
				return w
			},
			reason: "attack aborted: heavy losses",
		},
		{
			name: "overrun",
			e: model.Engagement{
				OwnerID: "p1", Type: "conquest", LaunchTick: 1, ExpectedTicks: 10,
				Forces: 24, MilitaryAtLaunch: 30,
			},
			world: func() model.WorldSnapshot {
				return world(30)
			},
			reason: "attack aborted: attack overran its schedule",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl, _, _ := newController(t, attackingColony(tt.e))

			w := tt.world()
			w.Targets = []model.Target{juicyTarget()}
			res := ctl.Tick(w)
			require.False(t, res.Fallback, res.Error)
			assert.Contains(t, res.Decision.Reasoning, tt.reason)
			assert.Nil(t, res.Attack, "no relaunch in the tick that aborted")
			assert.Empty(t, ctl.Colony().CurrentTargetID)
			assert.Zero(t, ctl.Colony().Engagement)
		})
	}
}

func TestTickKeepsAttackWithinLimits(t *testing.T) {
	ctl, _, _ := newController(t, attackingColony(model.Engagement{
		OwnerID: "p1", Type: "conquest", LaunchTick: 1, ExpectedTicks: 10,
		Forces: 24, MilitaryAtLaunch: 30,
	}))

	w := world(5)
	w.Targets = []model.Target{juicyTarget()}
	res := ctl.Tick(w)
	require.False(t, res.Fallback, res.Error)
	assert.NotContains(t, strings.Join(res.Decision.Reasoning, "\n"), "attack aborted")
	assert.Equal(t, "t1", ctl.Colony().CurrentTargetID)
	assert.Equal(t, 1, ctl.Colony().Engagement.LaunchTick)
}

func TestTransition(t *testing.T) {
	ctl, _, rec := newController(t, model.NewColony("c1", model.Builder))

	err := ctl.Transition(model.StateAttacking)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, model.StateIdle, ctl.State())
	assert.Empty(t, rec.types())

	require.NoError(t, ctl.Transition(model.StateGathering))
	assert.Equal(t, model.StateGathering, ctl.State())
	assert.Equal(t, []events.Type{events.TypeStateChanged}, rec.types())

	require.NoError(t, ctl.Transition(model.StateGathering))
	assert.Len(t, rec.types(), 1, "staying put is silent")
}

func TestRecordCombatOutcome(t *testing.T) {
	ctl, deps, _ := newController(t, model.NewColony("c1", model.Builder))
	w := world(1)
	w.Players = []model.PlayerObservation{raider("p1", 10)}
	res := ctl.Tick(w)
	require.NotNil(t, res.Counter)
	require.Len(t, deps.Counter.Pending("c1"), 1)

	require.NoError(t, ctl.RecordCombatOutcome("", "p1", true, start.Add(time.Minute)))
	assert.Empty(t, deps.Counter.Pending("c1"))
	assert.Equal(t, counter.OutcomeSuccess, deps.Counter.Ledger("c1")[0].Outcome)
	assert.Equal(t, 1, ctl.Memory().Count(memory.CombatOutcomes))

	rate, n := deps.Counter.SuccessRate("c1", res.Counter.Playstyle, res.Counter.Option.Type)
	assert.Equal(t, 1, n)
	assert.InDelta(t, 1.0, rate, 1e-9)
}

func pendingFor(id, player string) counter.Application {
	return counter.Application{
		ID:        id,
		Time:      start,
		PlayerID:  player,
		Playstyle: monitor.PlaystyleRusher,
		Option:    counter.Option{Template: counter.Template{Type: "early_walls"}},
		Outcome:   counter.OutcomePending,
	}
}

func TestRecordCombatOutcomeResolvesOnlyTheOwner(t *testing.T) {
	c := attackingColony(model.Engagement{OwnerID: "p1", Type: "blitz", LaunchTick: 1})
	ctl, deps, _ := newController(t, c)
	deps.Counter.Commit("c1", pendingFor("a1", "p1"))
	deps.Counter.Commit("c1", pendingFor("a2", "p2"))

	// Neither an owner nor a known target: nothing to credit.
	require.NoError(t, ctl.RecordCombatOutcome("", "", true, start))
	assert.Len(t, deps.Counter.Pending("c1"), 2)

	require.NoError(t, ctl.RecordCombatOutcome("t9", "p2", false, start))
	pending := deps.Counter.Pending("c1")
	require.Len(t, pending, 1)
	assert.Equal(t, "a1", pending[0].ID)
	assert.Equal(t, counter.OutcomeFailure, deps.Counter.Ledger("c1")[1].Outcome)
	assert.Equal(t, "t1", ctl.Colony().CurrentTargetID, "another target's outcome")

	// The owner of the running attack is taken from the engagement.
	require.NoError(t, ctl.RecordCombatOutcome("t1", "", true, start.Add(time.Second)))
	assert.Empty(t, deps.Counter.Pending("c1"))
	assert.Equal(t, counter.OutcomeSuccess, deps.Counter.Ledger("c1")[0].Outcome)
	assert.Empty(t, ctl.Colony().CurrentTargetID)
	assert.Zero(t, ctl.Colony().Engagement)
	assert.Equal(t, 3, ctl.Memory().Count(memory.CombatOutcomes))
}

func TestExportRestoreRoundTrip(t *testing.T) {
	ctl, _, _ := newController(t, model.NewColony("c1", model.Builder))
	w := world(1)
	w.Players = []model.PlayerObservation{raider("p1", 10)}
	require.False(t, ctl.Tick(w).Fallback)
	require.False(t, ctl.Tick(world(2)).Fallback)

	snap := ctl.Export()
	assert.Equal(t, "c1", snap.Colony.ID)
	assert.NotEmpty(t, snap.Adaptations)
	assert.NotEmpty(t, snap.Counters)
	assert.NotEmpty(t, snap.Patterns["p1"])

	fresh, deps, _ := newController(t, model.NewColony("c1", model.Builder))
	require.NoError(t, fresh.Restore(snap))
	assert.Empty(t, cmp.Diff(snap, fresh.Export(), cmpopts.EquateEmpty()))
	assert.Len(t, deps.Adaptive.History("c1"), len(snap.Adaptations))

	other, _, _ := newController(t, model.NewColony("c2", model.Builder))
	assert.Error(t, other.Restore(snap))

	bad := snap
	bad.Colony.State = "sleeping"
	assert.Error(t, fresh.Restore(bad))
}
