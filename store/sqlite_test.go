package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstehr/vimy/vimy-colony/colony"
	"github.com/nstehr/vimy/vimy-colony/memory"
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/monitor"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "nested", "colonies.db")
	s, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(id string, state model.AIState) colony.Snapshot {
	c := model.NewColony(id, model.Militant)
	c.State = state
	c.Tick = 12
	c.ThreatLevel = 0.4
	return colony.Snapshot{
		Colony: c,
		Memory: map[memory.Category][]memory.Entry{
			memory.CombatOutcomes: {{
				ID:        "m1",
				Category:  memory.CombatOutcomes,
				Payload:   memory.Payload{"target": "t1", "outcome": "launched"},
				Tags:      []string{"combat"},
				Relevance: 1,
				CreatedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
			}},
		},
		Patterns: map[string][]monitor.PatternType{"p1": {monitor.PatternMilitaryPreparation}},
		SavedAt:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	want := snapshot("c1", model.StateDefending)
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want.Colony, got.Colony, cmpopts.EquateEmpty()))
	assert.True(t, want.SavedAt.Equal(got.SavedAt))
	assert.Equal(t, want.Patterns, got.Patterns)
	require.Len(t, got.Memory[memory.CombatOutcomes], 1)
	assert.Equal(t, "t1", got.Memory[memory.CombatOutcomes][0].Payload["target"])
}

func TestSaveOverwrites(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, snapshot("c1", model.StateIdle)))
	require.NoError(t, s.Save(ctx, snapshot("c1", model.StateAttacking)))

	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StateAttacking, got.Colony.State)

	sums, err := s.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "attacking", sums[0].State)
	assert.Equal(t, 12, sums[0].Tick)
}

func TestListAndDelete(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for _, id := range []string{"c2", "c1", "c3"} {
		require.NoError(t, s.Save(ctx, snapshot(id, model.StateIdle)))
	}
	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids)

	require.NoError(t, s.Delete(ctx, "c2"))
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3"}, ids)

	err = s.Delete(ctx, "c2")
	assert.True(t, errors.Is(err, colony.ErrNotFound))
}

func TestLoadMissing(t *testing.T) {
	s := openTest(t)
	_, err := s.Load(context.Background(), "nope")
	assert.True(t, errors.Is(err, colony.ErrNotFound))
}

func TestSaveRejectsEmptyID(t *testing.T) {
	s := openTest(t)
	assert.Error(t, s.Save(context.Background(), colony.Snapshot{}))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{}.Validate())
}
