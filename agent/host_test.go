package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstehr/vimy/vimy-colony/adaptive"
	"github.com/nstehr/vimy/vimy-colony/colony"
	"github.com/nstehr/vimy/vimy-colony/counter"
	"github.com/nstehr/vimy/vimy-colony/explore"
	"github.com/nstehr/vimy/vimy-colony/ipc"
	"github.com/nstehr/vimy/vimy-colony/memory"
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/monitor"
	"github.com/nstehr/vimy/vimy-colony/trigger"
)

var start = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memRepo struct {
	mu    sync.Mutex
	snaps map[string]colony.Snapshot
	saves int
	fail  error
}

func newMemRepo() *memRepo { return &memRepo{snaps: make(map[string]colony.Snapshot)} }

func (r *memRepo) Load(_ context.Context, id string) (colony.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snaps[id]
	if !ok {
		return colony.Snapshot{}, colony.ErrNotFound
	}
	return s, nil
}

func (r *memRepo) Save(_ context.Context, s colony.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.snaps[s.Colony.ID] = s
	r.saves++
	return nil
}

func (r *memRepo) List(context.Context) ([]string, error) { return nil, nil }

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snaps, id)
	return nil
}

func newTestDeps(t *testing.T) colony.Deps {
	t.Helper()
	log := quietLogger()
	mon, err := monitor.New(monitor.DefaultConfig(), log)
	require.NoError(t, err)
	ad, err := adaptive.New(adaptive.DefaultConfig(), 3, log)
	require.NoError(t, err)
	trg, err := trigger.New(trigger.DefaultConfig(), log)
	require.NoError(t, err)
	ctr, err := counter.New(counter.DefaultConfig(), 3, trg, log)
	require.NoError(t, err)
	exp, err := explore.New(explore.DefaultConfig(), log)
	require.NoError(t, err)
	return colony.Deps{
		Monitor: mon, Adaptive: ad, Counter: ctr, Trigger: trg, Explore: exp,
		Memory: memory.DefaultConfig(), Seed: 3,
	}
}

func newTestHost(t *testing.T, repo colony.Repository) *Host {
	t.Helper()
	h, err := NewHost(colony.DefaultConfig(), newTestDeps(t), repo, quietLogger())
	require.NoError(t, err)
	return h
}

func hello(id string) ipc.HelloMessage {
	return ipc.HelloMessage{ColonyID: id, Name: "Colony " + id, Personality: model.Defensive, Position: &model.Position{X: 50, Y: 60}}
}

func TestRegisterCreatesOnce(t *testing.T) {
	repo := newMemRepo()
	h := newTestHost(t, repo)
	ctx := context.Background()

	ctl, restored, err := h.Register(ctx, hello("c1"))
	require.NoError(t, err)
	assert.False(t, restored)
	c := ctl.Colony()
	assert.Equal(t, "Colony c1", c.Name)
	assert.Equal(t, model.Position{X: 50, Y: 60}, c.Position)
	assert.Equal(t, 1, repo.saves)

	again, _, err := h.Register(ctx, hello("c1"))
	require.NoError(t, err)
	assert.Same(t, ctl, again)
	assert.Equal(t, []string{"c1"}, h.IDs())

	_, _, err = h.Register(ctx, ipc.HelloMessage{})
	assert.Error(t, err)
	_, _, err = h.Register(ctx, ipc.HelloMessage{ColonyID: "c2", Personality: "sleepy"})
	assert.Error(t, err)
}

func TestRegisterRestoresFromRepository(t *testing.T) {
	repo := newMemRepo()
	stored := model.NewColony("c1", model.Militant)
	stored.State = model.StateDefending
	stored.Tick = 40
	repo.snaps["c1"] = colony.Snapshot{Colony: stored, SavedAt: start}

	h := newTestHost(t, repo)
	ctl, restored, err := h.Register(context.Background(), hello("c1"))
	require.NoError(t, err)
	assert.True(t, restored)
	c := ctl.Colony()
	assert.Equal(t, model.Militant, c.Personality, "personality is fixed at creation")
	assert.Equal(t, model.StateDefending, c.State)
	assert.Equal(t, 40, c.Tick)
}

func TestTickFeedsMajorEventsAndSaves(t *testing.T) {
	repo := newMemRepo()
	h := newTestHost(t, repo)
	ctx := context.Background()
	_, _, err := h.Register(ctx, hello("c1"))
	require.NoError(t, err)

	quiet := model.WorldSnapshot{Tick: 1, Time: start}
	out, err := h.Tick(ctx, "c1", quiet)
	require.NoError(t, err)
	assert.Empty(t, out.Events)
	assert.Equal(t, 1, out.Result.Tick)

	w := model.WorldSnapshot{
		Tick: 2, Time: start.Add(time.Second),
		Targets: []model.Target{{ID: "t1", OwnerID: "p1", Position: model.Position{X: 900, Y: 900}, Diplomacy: model.DiplomacyHostile}},
	}
	out, err = h.Tick(ctx, "c1", w)
	require.NoError(t, err)
	assert.True(t, hasKind(out.Events, EventFirstContact))
	assert.Equal(t, 2, repo.snaps["c1"].Colony.Tick)
	assert.Equal(t, 3, repo.saves)

	_, err = h.Tick(ctx, "nope", quiet)
	assert.True(t, errors.Is(err, colony.ErrNotFound))
}

func TestTickReportsSaveFailure(t *testing.T) {
	repo := newMemRepo()
	h := newTestHost(t, repo)
	ctx := context.Background()
	_, _, err := h.Register(ctx, hello("c1"))
	require.NoError(t, err)

	repo.fail = errors.New("disk full")
	out, err := h.Tick(ctx, "c1", model.WorldSnapshot{Tick: 1, Time: start})
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, "c1", out.Result.ColonyID, "the tick still commits")
	assert.Equal(t, 1, out.Result.Tick)
}

func TestFailedAttackBecomesMajorEvent(t *testing.T) {
	h := newTestHost(t, nil)
	ctx := context.Background()
	_, _, err := h.Register(ctx, hello("c1"))
	require.NoError(t, err)

	require.NoError(t, h.RecordCombatOutcome("c1", ipc.CombatOutcomeMessage{TargetID: "t1", Success: false, Time: start}))
	// Within the cooldown a second failure is not repeated.
	require.NoError(t, h.RecordCombatOutcome("c1", ipc.CombatOutcomeMessage{TargetID: "t1", Success: false, Time: start}))

	out, err := h.Tick(ctx, "c1", model.WorldSnapshot{Tick: 1, Time: start})
	require.NoError(t, err)
	require.Len(t, out.Events, 1)
	assert.Equal(t, EventAttackRepelled, out.Events[0].Kind)

	out, err = h.Tick(ctx, "c1", model.WorldSnapshot{Tick: 2, Time: start.Add(time.Second)})
	require.NoError(t, err)
	assert.Empty(t, out.Events, "pending events are consumed once")

	ctl, _ := h.Controller("c1")
	assert.Equal(t, 2, ctl.Memory().Count(memory.CombatOutcomes))

	assert.Error(t, h.RecordCombatOutcome("nope", ipc.CombatOutcomeMessage{}))
}

func TestSaveAll(t *testing.T) {
	repo := newMemRepo()
	h := newTestHost(t, repo)
	ctx := context.Background()
	for _, id := range []string{"c1", "c2"} {
		_, _, err := h.Register(ctx, hello(id))
		require.NoError(t, err)
	}
	require.NoError(t, h.SaveAll(ctx))
	assert.Equal(t, 4, repo.saves)

	assert.NoError(t, newTestHost(t, nil).SaveAll(ctx))
}
