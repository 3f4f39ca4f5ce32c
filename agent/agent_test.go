package agent

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstehr/vimy/vimy-colony/ipc"
	"github.com/nstehr/vimy/vimy-colony/model"
)

type client struct {
	t    *testing.T
	conn net.Conn
}

func (c client) send(msgType string, data any) {
	c.t.Helper()
	env, err := ipc.NewEnvelope(msgType, data)
	require.NoError(c.t, err)
	require.NoError(c.t, ipc.WriteEnvelope(c.conn, env))
}

// until reads envelopes until one of type want arrives, returning the
// types seen before it.
func (c client) until(want string) (ipc.Envelope, []string) {
	c.t.Helper()
	var seen []string
	for {
		env, err := ipc.ReadEnvelope(c.conn)
		require.NoError(c.t, err)
		if env.Type == want {
			return env, seen
		}
		seen = append(seen, env.Type)
	}
}

func serve(t *testing.T, h *Host) client {
	t.Helper()
	server, conn := net.Pipe()
	r, err := NewRunner(DefaultRunnerConfig(), h, quietLogger())
	require.NoError(t, err)
	c := ipc.NewConnection(server, nil, quietLogger())
	a := New(context.Background(), c, h, r, time.Second, quietLogger())
	a.Register()
	done := make(chan struct{})
	go func() {
		c.ReadLoop()
		close(done)
	}()
	t.Cleanup(func() {
		conn.Close()
		<-done
	})
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	return client{t: t, conn: conn}
}

func TestAgentSession(t *testing.T) {
	repo := newMemRepo()
	h := newTestHost(t, repo)
	c := serve(t, h)

	c.send(ipc.TypeHello, ipc.HelloMessage{
		ColonyID:    "c1",
		Personality: model.Builder,
		Terrain:     &ipc.TerrainData{Cols: 2, Rows: 2, CellW: 100, CellH: 100, Grid: []int{0, 0, 0, 1}},
	})
	env, _ := c.until(ipc.TypeAck)
	var ack ipc.AckMessage
	require.NoError(t, env.Decode(&ack))
	assert.Equal(t, ipc.AckMessage{Status: "ok", ColonyID: "c1"}, ack)

	food := map[model.ResourceKind]float64{model.Food: 20}
	c.send(ipc.TypeWorldSnapshot, model.WorldSnapshot{Tick: 1, Time: start, Colony: &model.ColonyFields{Resources: food}})
	env, seen := c.until(ipc.TypeTickResult)
	require.NotEmpty(t, seen)
	assert.Equal(t, ipc.TypeSetState, seen[0])
	assert.Contains(t, seen, ipc.TypeExecute)

	var out Outcome
	require.NoError(t, env.Decode(&out))
	assert.Equal(t, "c1", out.Result.ColonyID)
	assert.Equal(t, "gather_food", out.Result.Decision.Action)
	assert.Equal(t, model.StateGathering, out.Result.To)
	assert.Equal(t, 1, repo.snaps["c1"].Colony.Tick)

	c.send(ipc.TypeCombatOutcome, ipc.CombatOutcomeMessage{TargetID: "t1", Success: true, Time: start})
	env, _ = c.until(ipc.TypeAck)
	require.NoError(t, env.Decode(&ack))
	assert.Equal(t, "c1", ack.ColonyID)
}

func TestAgentRejectsSnapshotBeforeHello(t *testing.T) {
	c := serve(t, newTestHost(t, nil))
	c.send(ipc.TypeWorldSnapshot, model.WorldSnapshot{Tick: 1, Time: start})
	env, _ := c.until(ipc.TypeError)
	var msg ipc.ErrorMessage
	require.NoError(t, env.Decode(&msg))
	assert.Contains(t, msg.Error, "before hello")
}

func TestAgentRejectsBadHello(t *testing.T) {
	c := serve(t, newTestHost(t, nil))
	c.send(ipc.TypeHello, ipc.HelloMessage{ColonyID: "c1", Personality: "sleepy"})
	env, _ := c.until(ipc.TypeError)
	var msg ipc.ErrorMessage
	require.NoError(t, env.Decode(&msg))
	assert.Contains(t, msg.Error, "personality")
}

func TestAgentBatch(t *testing.T) {
	h := newTestHost(t, nil)
	c := serve(t, h)
	c.send(ipc.TypeWorldBatch, ipc.WorldBatchMessage{Entries: []ipc.BatchEntry{
		{Colony: ipc.HelloMessage{ColonyID: "a", Personality: model.Aggressive}, World: model.WorldSnapshot{Tick: 1, Time: start}},
		{Colony: ipc.HelloMessage{ColonyID: "b", Personality: model.Opportunist}, World: model.WorldSnapshot{Tick: 1, Time: start}},
	}})
	env, _ := c.until(ipc.TypeTickBatch)
	var outs []Outcome
	require.NoError(t, env.Decode(&outs))
	require.Len(t, outs, 2)
	assert.Equal(t, "a", outs[0].Result.ColonyID)
	assert.Equal(t, "b", outs[1].Result.ColonyID)
	assert.Equal(t, []string{"a", "b"}, h.IDs())
}
