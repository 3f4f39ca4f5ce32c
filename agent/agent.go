// Package agent bridges a game host to the colony engine: it registers
// colonies on hello, turns each world snapshot into a committed tick and
// pushes the resulting orders back over the connection.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nstehr/vimy/vimy-colony/colony"
	"github.com/nstehr/vimy/vimy-colony/ipc"
	"github.com/nstehr/vimy/vimy-colony/model"
)

// Agent serves one connection. The connection drives a single colony,
// bound by the hello handshake; batches may address any colony.
type Agent struct {
	Conn     *ipc.Connection
	Host     *Host
	Runner   *Runner
	ColonyID string

	ctx     context.Context
	timeout time.Duration
	terrain *model.TerrainGrid
	logger  *slog.Logger
}

// New builds an agent. runner may be nil when batches are not served.
func New(ctx context.Context, conn *ipc.Connection, host *Host, runner *Runner, timeout time.Duration, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{Conn: conn, Host: host, Runner: runner, ctx: ctx, timeout: timeout, logger: logger}
}

// Register wires the agent's handlers onto its connection.
func (a *Agent) Register() {
	a.Conn.RegisterHandler(ipc.TypeHello, a.HandleHello)
	a.Conn.RegisterHandler(ipc.TypeWorldSnapshot, a.HandleWorldSnapshot)
	a.Conn.RegisterHandler(ipc.TypeCombatOutcome, a.HandleCombatOutcome)
	if a.Runner != nil {
		a.Conn.RegisterHandler(ipc.TypeWorldBatch, a.HandleWorldBatch)
	}
}

func (a *Agent) opContext() (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(a.ctx, a.timeout)
	}
	return context.WithCancel(a.ctx)
}

func errorReply(err error) (*ipc.Envelope, error) {
	env, encErr := ipc.NewEnvelope(ipc.TypeError, ipc.ErrorMessage{Error: err.Error()})
	if encErr != nil {
		return nil, encErr
	}
	return &env, err
}

// HandleHello binds the connection to a colony, restoring it from storage
// when it was seen before.
func (a *Agent) HandleHello(env ipc.Envelope) (*ipc.Envelope, error) {
	var hello ipc.HelloMessage
	if err := env.Decode(&hello); err != nil {
		return errorReply(err)
	}
	ctx, cancel := a.opContext()
	defer cancel()

	ctl, restored, err := a.Host.Register(ctx, hello)
	if err != nil {
		return errorReply(err)
	}
	a.ColonyID = ctl.ID()
	a.Conn.Colony = a.ColonyID
	a.terrain = hello.Terrain.TerrainGrid()
	a.logger.Info("colony identified", "colony", a.ColonyID, "personality", ctl.Colony().Personality, "restored", restored)

	ack, err := ipc.NewEnvelope(ipc.TypeAck, ipc.AckMessage{Status: "ok", ColonyID: a.ColonyID, Restored: restored})
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

// HandleWorldSnapshot runs one tick for the bound colony, sends the
// resulting orders and replies with the tick result.
func (a *Agent) HandleWorldSnapshot(env ipc.Envelope) (*ipc.Envelope, error) {
	if a.ColonyID == "" {
		return errorReply(fmt.Errorf("world snapshot before hello"))
	}
	var w model.WorldSnapshot
	if err := env.Decode(&w); err != nil {
		return errorReply(err)
	}
	if w.Terrain == nil {
		w.Terrain = a.terrain
	}
	ctx, cancel := a.opContext()
	defer cancel()

	out, err := a.Host.Tick(ctx, a.ColonyID, w)
	if err != nil && out.Result.ColonyID == "" {
		return errorReply(err)
	}
	if err != nil {
		a.logger.Error("tick committed but not saved", "colony", a.ColonyID, "error", err)
	}
	a.logger.Info("tick",
		"colony", a.ColonyID,
		"tick", out.Result.Tick,
		"action", out.Result.Decision.Action,
		"state", fmt.Sprintf("%s -> %s", out.Result.From, out.Result.To),
		"threat", out.Result.ThreatLevel,
		"events", len(out.Events),
		"fallback", out.Result.Fallback,
	)

	if err := a.sendOrders(out.Result); err != nil {
		return nil, fmt.Errorf("send orders: %w", err)
	}
	reply, err := ipc.NewEnvelope(ipc.TypeTickResult, out)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// HandleCombatOutcome records how an attack went.
func (a *Agent) HandleCombatOutcome(env ipc.Envelope) (*ipc.Envelope, error) {
	if a.ColonyID == "" {
		return errorReply(fmt.Errorf("combat outcome before hello"))
	}
	var msg ipc.CombatOutcomeMessage
	if err := env.Decode(&msg); err != nil {
		return errorReply(err)
	}
	if err := a.Host.RecordCombatOutcome(a.ColonyID, msg); err != nil {
		return errorReply(err)
	}
	ack, err := ipc.NewEnvelope(ipc.TypeAck, ipc.AckMessage{Status: "ok", ColonyID: a.ColonyID})
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

// HandleWorldBatch ticks many colonies at once through the runner.
func (a *Agent) HandleWorldBatch(env ipc.Envelope) (*ipc.Envelope, error) {
	var batch ipc.WorldBatchMessage
	if err := env.Decode(&batch); err != nil {
		return errorReply(err)
	}
	jobs := make([]Job, len(batch.Entries))
	for i, e := range batch.Entries {
		jobs[i] = Job{Colony: e.Colony, World: e.World}
	}
	ctx, cancel := a.opContext()
	defer cancel()

	outs, err := a.Runner.TickAll(ctx, jobs)
	if err != nil {
		return errorReply(err)
	}
	reply, err := ipc.NewEnvelope(ipc.TypeTickBatch, outs)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// sendOrders translates a tick result into host commands.
func (a *Agent) sendOrders(res colony.TickResult) error {
	if err := a.Conn.Send(ipc.TypeSetState, ipc.SetStateCommand{
		State: res.To, Action: res.Decision.Action, Confidence: res.Decision.Confidence,
	}); err != nil {
		return err
	}
	for i, o := range res.Orders {
		if err := a.Conn.Send(ipc.TypeExecute, ipc.ExecuteCommand{Action: o, Primary: i == 0}); err != nil {
			return err
		}
	}
	if len(res.Workers) > 0 {
		if err := a.Conn.Send(ipc.TypeAssignWorkers, ipc.AssignWorkersCommand{Workers: res.Workers}); err != nil {
			return err
		}
	}
	if at := res.Attack; at != nil {
		if err := a.Conn.Send(ipc.TypeLaunchAttack, ipc.LaunchAttackCommand{
			TargetID: at.TargetID, OwnerID: at.OwnerID, AttackType: string(at.Type),
			Forces: at.Plan.Forces, Preparation: at.Preparation,
		}); err != nil {
			return err
		}
	}
	for _, m := range res.Launched {
		if err := a.Conn.Send(ipc.TypeDispatchScouts, ipc.DispatchScoutsCommand{
			MissionID: m.ID, Objective: m.Objective, Scouts: m.Scouts, Route: m.Route,
		}); err != nil {
			return err
		}
	}
	return nil
}
