package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nstehr/vimy/vimy-colony/ipc"
	"github.com/nstehr/vimy/vimy-colony/model"
)

func TestRunnerTicksBatchInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := newMemRepo()
	h := newTestHost(t, repo)
	r, err := NewRunner(RunnerConfig{Workers: 4, TicksPerSecond: 1000, Burst: 10}, h, quietLogger())
	require.NoError(t, err)

	var jobs []Job
	for i := range 12 {
		id := fmt.Sprintf("c%02d", i)
		jobs = append(jobs, Job{
			Colony: ipc.HelloMessage{ColonyID: id, Personality: model.Personalities[i%len(model.Personalities)]},
			World:  model.WorldSnapshot{Tick: 1, Time: start},
		})
	}
	outs, err := r.TickAll(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, outs, len(jobs))
	for i, out := range outs {
		assert.Equal(t, jobs[i].Colony.ColonyID, out.Result.ColonyID)
		assert.Equal(t, 1, out.Result.Tick)
		assert.False(t, out.Result.Fallback)
	}
	assert.Len(t, h.IDs(), 12)
	assert.Len(t, repo.snaps, 12)
}

func TestRunnerStopsOnRegistrationError(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestHost(t, nil)
	r, err := NewRunner(DefaultRunnerConfig(), h, quietLogger())
	require.NoError(t, err)

	_, err = r.TickAll(context.Background(), []Job{
		{Colony: ipc.HelloMessage{ColonyID: "c1", Personality: model.Builder}, World: model.WorldSnapshot{Tick: 1, Time: start}},
		{Colony: ipc.HelloMessage{ColonyID: "c2", Personality: "sleepy"}, World: model.WorldSnapshot{Tick: 1, Time: start}},
	})
	assert.ErrorContains(t, err, "job 1")
}

func TestRunnerHonorsCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestHost(t, nil)
	r, err := NewRunner(RunnerConfig{Workers: 1, TicksPerSecond: 0.001, Burst: 1}, h, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	jobs := []Job{
		{Colony: ipc.HelloMessage{ColonyID: "c1", Personality: model.Builder}},
		{Colony: ipc.HelloMessage{ColonyID: "c2", Personality: model.Builder}},
	}
	_, err = r.TickAll(ctx, jobs)
	assert.Error(t, err)
}

func TestRunnerConfigValidate(t *testing.T) {
	require.NoError(t, DefaultRunnerConfig().Validate())
	assert.Error(t, RunnerConfig{}.Validate())
	assert.Error(t, RunnerConfig{Workers: 1, TicksPerSecond: 5}.Validate())
	assert.NoError(t, RunnerConfig{Workers: 1}.Validate())
}
