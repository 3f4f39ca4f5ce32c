// Package colony runs one AI colony: it owns the colony state, keeps the
// state machine honest and orchestrates a tick across the strategy
// modules, the player monitor, the adaptive and counter engines, the
// trigger evaluator and the exploration planner.
package colony

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nstehr/vimy/vimy-colony/adaptive"
	"github.com/nstehr/vimy/vimy-colony/counter"
	"github.com/nstehr/vimy/vimy-colony/events"
	"github.com/nstehr/vimy/vimy-colony/explore"
	"github.com/nstehr/vimy/vimy-colony/memory"
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/monitor"
	"github.com/nstehr/vimy/vimy-colony/strategy"
	"github.com/nstehr/vimy/vimy-colony/trigger"
)

type Config struct {
	Strategy strategy.Config `mapstructure:"strategy"`

	// DefenseThreat is the threat level above which defense dominates.
	DefenseThreat float64 `mapstructure:"defense_threat"`
	// ModerateThreat is the threat level above which defenses are added
	// as a secondary action.
	ModerateThreat float64 `mapstructure:"moderate_threat"`
	// FoodFloor is the food stock below which gathering dominates.
	FoodFloor      float64 `mapstructure:"food_floor"`
	SmallTerritory float64 `mapstructure:"small_territory"`
	MaxSecondary   int     `mapstructure:"max_secondary"`

	// CounterCooldown spaces counter-strategy applications.
	CounterCooldown time.Duration `mapstructure:"counter_cooldown"`
	// PlayerThreatWeight is how much the most dangerous observed player
	// moves the colony threat level each tick.
	PlayerThreatWeight float64 `mapstructure:"player_threat_weight"`
	// ThreatEventDelta is the smallest threat change worth an event.
	ThreatEventDelta float64 `mapstructure:"threat_event_delta"`
}

func DefaultConfig() Config {
	return Config{
		Strategy:           strategy.DefaultConfig(),
		DefenseThreat:      0.7,
		ModerateThreat:     0.3,
		FoodFloor:          50,
		SmallTerritory:     50,
		MaxSecondary:       2,
		CounterCooldown:    2 * time.Minute,
		PlayerThreatWeight: 0.4,
		ThreatEventDelta:   0.1,
	}
}

func (c Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.DefenseThreat <= 0 || c.DefenseThreat > 1 {
		return fmt.Errorf("colony defense_threat must be in (0, 1]")
	}
	if c.ModerateThreat < 0 || c.ModerateThreat >= c.DefenseThreat {
		return fmt.Errorf("colony moderate_threat must be in [0, defense_threat)")
	}
	if c.FoodFloor < 0 {
		return fmt.Errorf("colony food_floor must be >= 0")
	}
	if c.MaxSecondary < 0 || c.MaxSecondary > 2 {
		return fmt.Errorf("colony max_secondary must be in [0, 2]")
	}
	if c.PlayerThreatWeight < 0 || c.PlayerThreatWeight > 1 {
		return fmt.Errorf("colony player_threat_weight must be in [0, 1]")
	}
	return nil
}

// Publisher accepts event drafts once a tick commits. *events.Service
// satisfies it.
type Publisher interface {
	PublishDrafts(drafts []events.Draft) error
}

// Deps are the process-wide services a controller works with. They are
// shared by every colony and keyed by colony id internally.
type Deps struct {
	Monitor  *monitor.Monitor
	Adaptive *adaptive.Engine
	Counter  *counter.Selector
	Trigger  *trigger.Evaluator
	Explore  *explore.Planner
	Events   Publisher
	Memory   memory.Config
	Seed     int64
}

func (d Deps) validate() error {
	var errs []error
	if d.Monitor == nil {
		errs = append(errs, errors.New("monitor"))
	}
	if d.Adaptive == nil {
		errs = append(errs, errors.New("adaptive engine"))
	}
	if d.Counter == nil {
		errs = append(errs, errors.New("counter selector"))
	}
	if d.Trigger == nil {
		errs = append(errs, errors.New("trigger evaluator"))
	}
	if d.Explore == nil {
		errs = append(errs, errors.New("exploration planner"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("missing dependencies: %w", err)
	}
	return nil
}

// AttackOrder is the single attack a tick may launch.
type AttackOrder struct {
	TargetID    string             `json:"targetId"`
	OwnerID     string             `json:"ownerId"`
	Type        trigger.AttackType `json:"type"`
	Score       float64            `json:"score"`
	Urgency     float64            `json:"urgency"`
	Preparation time.Duration      `json:"preparation"`
	Plan        strategy.Plan      `json:"plan"`
}

// TickResult is everything one tick produced.
type TickResult struct {
	ColonyID    string                     `json:"colonyId"`
	Tick        int                        `json:"tick"`
	Decision    Decision                   `json:"decision"`
	From        model.AIState              `json:"from"`
	To          model.AIState              `json:"to"`
	Attack      *AttackOrder               `json:"attack,omitempty"`
	Orders      []string                   `json:"orders"`
	Workers     map[model.ResourceKind]int `json:"workers,omitempty"`
	Growth      strategy.GrowthChanges     `json:"growth"`
	Launched    []model.ScoutMission       `json:"launched,omitempty"`
	Reports     []explore.Report           `json:"reports,omitempty"`
	Adaptation  *adaptive.Record           `json:"adaptation,omitempty"`
	Counter     *counter.Application       `json:"counter,omitempty"`
	ThreatLevel float64                    `json:"threatLevel"`
	Events      []events.Draft             `json:"-"`
	Fallback    bool                       `json:"fallback"`
	Error       string                     `json:"error,omitempty"`
}

// Controller owns the only mutable copy of a colony. All methods are safe
// for concurrent use; ticks for one colony run one at a time.
type Controller struct {
	mu       sync.Mutex
	id       string
	cfg      Config
	deps     Deps
	colony   model.Colony
	mem      *memory.Store
	rng      *rand.Rand
	patterns map[string]map[monitor.PatternType]bool
	// cursors holds the newest action time this colony has acted on per
	// player.
	cursors map[string]time.Time
	clock   atomic.Int64
	logger  *slog.Logger

	// onStep is called before each tick step; tests use it to inject
	// failures.
	onStep func(step string)
}

// New builds a controller for c. Memory timestamps follow world time once
// the first tick has run.
func New(cfg Config, c model.Colony, deps Deps, logger *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, fmt.Errorf("colony id must not be empty")
	}
	if !c.Personality.Valid() {
		return nil, fmt.Errorf("colony %s: unknown personality %q", c.ID, c.Personality)
	}
	if c.State == "" {
		c.State = model.StateIdle
	}
	if !c.State.Valid() {
		return nil, fmt.Errorf("colony %s: unknown state %q", c.ID, c.State)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("colony", c.ID)
	ctl := &Controller{
		id:       c.ID,
		cfg:      cfg,
		deps:     deps,
		colony:   c.Clone(),
		rng:      rand.New(rand.NewSource(adaptive.ColonySeed(deps.Seed+2, c.ID))),
		patterns: make(map[string]map[monitor.PatternType]bool),
		cursors:  make(map[string]time.Time),
		logger:   logger,
	}
	mem, err := memory.New(deps.Memory, memory.WithClock(ctl.now), memory.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("colony %s memory: %w", c.ID, err)
	}
	ctl.mem = mem
	return ctl, nil
}

func (ctl *Controller) now() time.Time {
	if ns := ctl.clock.Load(); ns != 0 {
		return time.Unix(0, ns).UTC()
	}
	return time.Now()
}

func (ctl *Controller) ID() string { return ctl.id }

// Colony returns a copy of the current colony state.
func (ctl *Controller) Colony() model.Colony {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.colony.Clone()
}

func (ctl *Controller) State() model.AIState {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.colony.State
}

// Memory returns the colony's memory store.
func (ctl *Controller) Memory() *memory.Store { return ctl.mem }

// Transition moves the colony to state to. A transition outside the table
// is logged and rejected with ErrInvalidTransition, leaving the state
// unchanged.
func (ctl *Controller) Transition(to model.AIState) error {
	ctl.mu.Lock()
	from := ctl.colony.State
	err := transition(&ctl.colony, to)
	ctl.mu.Unlock()
	if err != nil {
		ctl.logger.Warn("state transition rejected", "from", from, "to", to)
		return err
	}
	if from != to {
		ctl.publish([]events.Draft{{ColonyID: ctl.id, Level: events.LevelLow, Payload: events.StateChanged{From: from, To: to}}})
	}
	return nil
}

// RecordCombatOutcome reports how a fight against ownerID's target went.
// It resolves the pending counter-strategy applications aimed at that
// player, remembers the outcome and clears the attack target when it
// matches. An empty ownerID is taken from the running engagement on
// targetID; when neither names a player no application is resolved.
func (ctl *Controller) RecordCombatOutcome(targetID, ownerID string, success bool, now time.Time) error {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	current := targetID != "" && ctl.colony.CurrentTargetID == targetID
	if ownerID == "" && current {
		ownerID = ctl.colony.Engagement.OwnerID
	}
	var errs []error
	if ownerID != "" {
		for _, app := range ctl.deps.Counter.Pending(ctl.id) {
			if app.PlayerID != ownerID {
				continue
			}
			if err := ctl.deps.Counter.RecordOutcome(ctl.id, app.ID, success, now); err != nil {
				errs = append(errs, err)
			}
		}
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	_, err := ctl.mem.Store(memory.CombatOutcomes,
		memory.Payload{"target": targetID, "owner": ownerID, "outcome": outcome, "strategy": string(ctl.colony.CurrentStrategy)},
		memory.Tagged("combat", outcome), memory.Importance(0.7))
	errs = append(errs, err)
	if current {
		ctl.colony.ClearTarget()
	}
	return errors.Join(errs...)
}

// tick is the working set of one Tick. Nothing in it is visible outside
// the controller until commit.
type tick struct {
	world    model.WorldSnapshot
	now      time.Time
	prev     model.Colony
	next     model.Colony
	report   strategy.Report
	decision Decision
	result   TickResult

	writes     []memory.Write
	drafts     []events.Draft
	adaptation *adaptive.Record
	counterApp *counter.Application
	attackType trigger.AttackType
	patterns   map[string]map[monitor.PatternType]bool
	cursors    map[string]time.Time
	observed   []string
}

func (t *tick) emit(level events.Level, p events.Payload) {
	t.drafts = append(t.drafts, events.Draft{ColonyID: t.next.ID, Level: level, Payload: p})
}

// Tick runs one decision cycle against the world snapshot. The steps work
// on a copy of the colony; memory writes, events and engine bookkeeping
// are applied together at the end. Any failure inside a tick, including a
// panic, leaves the colony as it was and returns the fallback decision.
func (ctl *Controller) Tick(w model.WorldSnapshot) TickResult {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	now := w.Now()
	ctl.clock.Store(now.UnixNano())
	t := &tick{
		world:    w,
		now:      now,
		prev:     ctl.colony,
		next:     ctl.colony.Clone(),
		patterns: make(map[string]map[monitor.PatternType]bool),
		cursors:  make(map[string]time.Time),
	}
	if err := ctl.run(t); err != nil {
		return ctl.fallback(t, err)
	}
	ctl.commit(t)
	return t.result
}

func (ctl *Controller) run(t *tick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ctl.logger.Error("tick panic", "tick", t.world.Tick, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	steps := []struct {
		name string
		fn   func(*tick)
	}{
		{"refresh", ctl.refresh},
		{"evaluate", ctl.evaluate},
		{"players", ctl.observePlayers},
		{"attack", ctl.evaluateAttack},
		{"growth", ctl.advanceGrowth},
		{"explore", ctl.explore},
		{"threat", ctl.refreshThreat},
		{"decide", ctl.applyDecision},
	}
	for _, s := range steps {
		if ctl.onStep != nil {
			ctl.onStep(s.name)
		}
		s.fn(t)
	}
	return nil
}

func (ctl *Controller) evaluate(t *tick) {
	t.report = strategy.EvaluateAll(ctl.cfg.Strategy, t.next, t.world)
	t.decision = Synthesize(ctl.cfg, t.next, t.report)
}

// refresh overwrites the fields the world layer owns.
func (ctl *Controller) refresh(t *tick) {
	if t.world.Tick > 0 {
		t.next.Tick = t.world.Tick
	} else {
		t.next.Tick++
	}
	f := t.world.Colony
	if f == nil {
		return
	}
	for k, v := range f.Resources {
		if t.next.Resources == nil {
			t.next.Resources = make(map[model.ResourceKind]float64)
		}
		t.next.Resources[k] = v
	}
	if f.Population != nil {
		t.next.Population = *f.Population
	}
	if f.TerritorySize != nil {
		t.next.TerritorySize = *f.TerritorySize
	}
	if f.Military != nil {
		t.next.Military = *f.Military
	}
}

func (ctl *Controller) observePlayers(t *tick) {
	var worst *monitor.Summary
	for _, obs := range t.world.Players {
		actions := stampActions(obs.Actions, t.now)
		ctl.deps.Monitor.RecordActions(obs.ID, actions)
		sum, ok := ctl.deps.Monitor.Summary(obs.ID)
		if !ok {
			continue
		}
		n := ctl.freshActions(t, obs.ID, actions)
		t.observed = append(t.observed, obs.ID)
		if n > 0 {
			t.writes = append(t.writes, memory.Write{
				Category: memory.PlayerInteractions,
				Payload: memory.Payload{
					"player": obs.ID, "actions": n, "playstyle": string(sum.Playstyle), "threat": sum.Threat,
				},
				Options: []memory.EntryOption{memory.Tagged("player", obs.ID, string(sum.Playstyle)), memory.Importance(sum.Threat)},
			})
		}

		seen := make(map[monitor.PatternType]bool, len(sum.Patterns))
		for _, p := range sum.Patterns {
			seen[p.Type] = true
			if !ctl.patterns[obs.ID][p.Type] {
				t.emit(events.LevelMedium, events.PatternDetected{
					PlayerID: obs.ID, Pattern: string(p.Type), Confidence: p.Confidence, Predicted: p.Predicted,
				})
			}
		}
		t.patterns[obs.ID] = seen

		if t.adaptation == nil && n > 0 {
			r := ctl.deps.Adaptive.Propose(t.next, sum, t.world.MajorEvents, t.now)
			if r.Adapted {
				t.next = r.Changes.Apply(t.next)
				t.adaptation = r.Record
				t.emit(events.LevelHigh, events.StrategyChanged{
					Old: r.Record.Old, New: r.Record.New, PlayerID: obs.ID,
					Reasoning: r.Record.Reasoning, Confidence: r.Record.Confidence,
				})
				t.writes = append(t.writes, memory.Write{
					Category: memory.StrategicInsights,
					Payload: memory.Payload{
						"player": obs.ID, "playstyle": string(sum.Playstyle),
						"from": string(r.Record.Old), "to": string(r.Record.New), "reasoning": r.Record.Reasoning,
					},
					Options: []memory.EntryOption{memory.Tagged("adaptation", obs.ID), memory.Importance(r.Record.Confidence)},
				})
			} else {
				ctl.logger.Debug("no adaptation", "player", obs.ID, "reason", r.Reason)
			}
		}
		if worst == nil || sum.Threat > worst.Threat {
			s := sum
			worst = &s
		}
	}
	if worst != nil && ctl.counterDue(t) {
		sel, ok := ctl.deps.Counter.Select(t.next, *worst, t.now)
		if !ok {
			ctl.logger.Debug("no counter-strategy", "player", worst.PlayerID, "reason", sel.Reason)
			return
		}
		app := sel.Application
		t.next = app.Plan.Apply(t.next)
		t.counterApp = &app
		t.result.Orders = append(t.result.Orders, app.Plan.ImmediateActions...)
		t.emit(events.LevelMedium, events.CounterStrategyApplied{
			PlayerID: app.PlayerID, ApplicationID: app.ID, CounterType: app.Option.Type, Effectiveness: app.Option.Effectiveness,
		})
	}
}

// stampActions gives unstamped actions the snapshot time, so colonies
// sharing a snapshot agree on when they happened.
func stampActions(actions []model.PlayerAction, now time.Time) []model.PlayerAction {
	out := slices.Clone(actions)
	for i := range out {
		if out[i].Timestamp.IsZero() {
			out[i].Timestamp = now
		}
	}
	return out
}

// freshActions counts the actions newer than this colony's cursor for the
// player. The monitor dedupes across colonies for its metrics; the cursor
// decides whether this colony reacts.
func (ctl *Controller) freshActions(t *tick, playerID string, actions []model.PlayerAction) int {
	cursor := ctl.cursors[playerID]
	latest := cursor
	n := 0
	for _, a := range actions {
		if !a.Timestamp.After(cursor) {
			continue
		}
		n++
		if a.Timestamp.After(latest) {
			latest = a.Timestamp
		}
	}
	if n > 0 {
		t.cursors[playerID] = latest
	}
	return n
}

func (ctl *Controller) counterDue(t *tick) bool {
	ledger := ctl.deps.Counter.Ledger(t.next.ID)
	if len(ledger) == 0 {
		return true
	}
	return t.now.Sub(ledger[len(ledger)-1].Time) >= ctl.cfg.CounterCooldown
}

func findTarget(targets []model.Target, id string) (model.Target, bool) {
	for _, tg := range targets {
		if tg.ID == id {
			return tg, true
		}
	}
	return model.Target{}, false
}

// evaluateAttack checks a running attack against its abort conditions and
// otherwise asks the trigger evaluator for at most one new attack.
func (ctl *Controller) evaluateAttack(t *tick) {
	c := &t.next
	if c.State == model.StateAttacking && c.CurrentTargetID != "" {
		target, ok := findTarget(t.world.Targets, c.CurrentTargetID)
		reason := "target no longer visible"
		abort := !ok
		if ok {
			reason, abort = ctl.checkAbort(*c, target)
		}
		if !abort {
			return
		}
		ctl.logger.Info("attack called off", "target", c.CurrentTargetID, "reason", reason)
		t.writes = append(t.writes, memory.Write{
			Category: memory.CombatOutcomes,
			Payload:  memory.Payload{"target": c.CurrentTargetID, "outcome": "aborted", "reason": reason},
			Options:  []memory.EntryOption{memory.Tagged("combat", "aborted")},
		})
		c.ClearTarget()
		t.decision = Synthesize(ctl.cfg, *c, t.report)
		t.decision.Reasoning = append(t.decision.Reasoning, "attack aborted: "+reason)
		return
	}

	if t.decision.Source == SourceDefense || !CanTransition(c.State, model.StateAttacking) {
		return
	}
	best, _ := ctl.deps.Trigger.EvaluateTargets(*c, t.world.Targets, t.now)
	if best == nil {
		return
	}
	target, _ := findTarget(t.world.Targets, best.TargetID)
	plan := strategy.BuildPlan(*c, strategy.ScoreTarget(ctl.cfg.Strategy.Attack, *c, target))
	order := &AttackOrder{
		TargetID:    best.TargetID,
		OwnerID:     best.OwnerID,
		Type:        best.AttackType,
		Score:       best.Score,
		Urgency:     best.Urgency,
		Preparation: best.Preparation,
		Plan:        plan,
	}
	t.result.Attack = order
	t.attackType = best.AttackType
	c.CurrentTargetID = best.TargetID
	c.Engagement = model.Engagement{
		OwnerID:          best.OwnerID,
		Type:             string(plan.Type),
		LaunchTick:       c.Tick,
		ExpectedTicks:    plan.Duration(),
		Forces:           plan.Forces,
		MilitaryAtLaunch: c.Military.Used,
	}

	prev := t.decision
	t.decision = Decision{
		Action:     strategy.AttackAction(best.TargetID),
		To:         model.StateAttacking,
		Source:     SourceAttack,
		Priority:   best.Score,
		Confidence: best.Confidence,
		Secondary:  prev.Secondary,
		Reasoning:  slices.Concat(best.Reasons, prev.Reasoning),
	}
	t.emit(events.LevelHigh, events.AttackLaunched{
		TargetID: best.TargetID, OwnerID: best.OwnerID, AttackType: string(best.AttackType),
		Score: best.Score, Urgency: best.Urgency, Forces: plan.Forces,
	})
	t.writes = append(t.writes, memory.Write{
		Category: memory.CombatOutcomes,
		Payload: memory.Payload{
			"target": best.TargetID, "owner": best.OwnerID, "outcome": "launched",
			"type": string(best.AttackType), "score": best.Score,
		},
		Options: []memory.EntryOption{memory.At(target.Position), memory.Tagged("combat", "launched"), memory.Importance(best.Score)},
	})
}

// checkAbort rebuilds the running attack's plan against the current
// battlefield and checks its abort conditions.
func (ctl *Controller) checkAbort(c model.Colony, target model.Target) (string, bool) {
	e := c.Engagement
	ts := strategy.ScoreTarget(ctl.cfg.Strategy.Attack, c, target)
	if e.Type != "" {
		ts.Type = strategy.AttackType(e.Type)
	}
	plan := strategy.BuildPlan(c, ts)
	expected := e.ExpectedTicks
	if expected <= 0 {
		expected = plan.Duration()
	}
	env := strategy.AbortEnv{
		ForceRatio:    ts.StrengthRatio,
		Losses:        e.Losses(c.Military.Used),
		Food:          c.Resource(model.Food),
		FoodRequired:  plan.Supply[model.Food],
		HomeThreat:    c.ThreatLevel,
		ExpectedTicks: expected,
	}
	if e.LaunchTick > 0 && c.Tick > e.LaunchTick {
		env.TicksElapsed = c.Tick - e.LaunchTick
	}
	return plan.ShouldAbort(env)
}

func (ctl *Controller) advanceGrowth(t *tick) {
	elapsed := 1
	if t.world.Tick > 0 && t.prev.Tick > 0 && t.world.Tick > t.prev.Tick {
		elapsed = t.world.Tick - t.prev.Tick
	}
	gc := strategy.AdvanceGrowth(ctl.cfg.Strategy.Growth, t.next, elapsed, t.now)
	c := &t.next
	c.Population += gc.PopulationDelta
	c.TerritorySize += gc.TerritoryDelta
	if c.Resources == nil {
		c.Resources = make(map[model.ResourceKind]float64)
	}
	for k, d := range gc.ResourceDelta {
		c.Resources[k] += d
	}
	c.DevelopmentPhase = gc.Phase
	if gc.Record != nil {
		c.GrowthHistory = append(c.GrowthHistory, *gc.Record)
		if over := len(c.GrowthHistory) - ctl.cfg.Strategy.Growth.HistoryLimit; over > 0 {
			c.GrowthHistory = c.GrowthHistory[over:]
		}
	}
	if gc.PhaseChanged {
		t.writes = append(t.writes, memory.Write{
			Category: memory.StrategicInsights,
			Payload:  memory.Payload{"phase": string(gc.Phase), "population": c.Population},
			Options:  []memory.EntryOption{memory.Tagged("growth", string(gc.Phase)), memory.Importance(0.6)},
		})
	}
	t.result.Growth = gc
	t.result.Workers = t.report.Resource.Workers
}

func (ctl *Controller) explore(t *tick) {
	active, reports := ctl.deps.Explore.Step(t.next.ScoutMissions, t.world.Sightings, t.next.Tick)
	for _, r := range reports {
		t.writes = append(t.writes, r.Writes()...)
		t.emit(events.LevelMedium, events.ScoutCompleted{
			MissionID: r.MissionID, Objective: r.Objective, Discoveries: len(r.Discoveries), Intel: len(r.Intelligence),
		})
		for _, d := range r.Discoveries {
			if d.Resource != "" {
				t.emit(events.LevelMedium, events.ResourceDiscovered{Resource: d.Resource, Position: d.Position, Value: d.Value})
			}
		}
	}
	t.next.ScoutMissions = active
	t.next.ThreatLevel = explore.ThreatUpdate(t.next.ThreatLevel, reports)

	need := 0.0
	for _, v := range t.report.Resource.Needs {
		need = max(need, v)
	}
	plan := ctl.deps.Explore.Plan(ctl.rng, explore.Needs{Colony: t.next, ResourceNeed: need, Knowledge: ctl.mem}, t.world.Terrain, t.world.Targets)
	for _, m := range plan.Launched {
		t.emit(events.LevelLow, events.ScoutLaunched{MissionID: m.ID, Objective: m.Objective, Scouts: m.Scouts})
	}
	t.next.ScoutMissions = append(t.next.ScoutMissions, plan.Launched...)
	t.result.Launched = plan.Launched
	t.result.Reports = reports
}

// refreshThreat pulls the colony threat level toward the most dangerous
// observed player.
func (ctl *Controller) refreshThreat(t *tick) {
	old := t.prev.ThreatLevel
	var reasons []string
	if len(t.observed) > 0 {
		worst := monitor.Threat{}
		for _, id := range t.observed {
			if th := ctl.deps.Monitor.ThreatAssessment(id); th.Score >= worst.Score {
				worst = th
			}
		}
		w := ctl.cfg.PlayerThreatWeight
		t.next.ThreatLevel = model.Clamp01((1-w)*t.next.ThreatLevel + w*worst.Score)
		reasons = worst.Reasons
	}
	t.next.ThreatLevel = model.Clamp01(t.next.ThreatLevel)
	t.result.ThreatLevel = t.next.ThreatLevel

	delta := t.next.ThreatLevel - old
	if delta < 0 {
		delta = -delta
	}
	if delta < ctl.cfg.ThreatEventDelta {
		return
	}
	level := events.LevelMedium
	switch {
	case t.next.ThreatLevel > 0.9:
		level = events.LevelCritical
	case t.next.ThreatLevel > ctl.cfg.DefenseThreat:
		level = events.LevelHigh
	}
	t.emit(level, events.ThreatChanged{Old: old, New: t.next.ThreatLevel, Reasons: reasons})
	t.writes = append(t.writes, memory.Write{
		Category: memory.ThreatAssessments,
		Payload:  memory.Payload{"old": old, "new": t.next.ThreatLevel, "source": "colony"},
		Options:  []memory.EntryOption{memory.At(t.next.Position), memory.Importance(t.next.ThreatLevel)},
	})
}

// applyDecision moves the colony toward the decision's state and fills in
// the result.
func (ctl *Controller) applyDecision(t *tick) {
	from := t.next.State
	if err := transition(&t.next, t.decision.To); err != nil {
		ctl.logger.Warn("state transition rejected", "from", from, "to", t.decision.To, "action", t.decision.Action)
		t.decision.Reasoning = append(t.decision.Reasoning, err.Error())
	} else if from != t.next.State {
		t.emit(events.LevelLow, events.StateChanged{From: from, To: t.next.State})
	}
	if t.next.State != model.StateAttacking && t.result.Attack == nil {
		t.next.ClearTarget()
	}

	t.result.ColonyID = t.next.ID
	t.result.Tick = t.next.Tick
	t.result.Decision = t.decision
	t.result.From = from
	t.result.To = t.next.State
	t.result.Orders = slices.Concat([]string{t.decision.Action}, t.decision.Secondary, t.result.Orders)
	t.result.Adaptation = t.adaptation
	t.result.Counter = t.counterApp
	t.result.Events = t.drafts
}

func (ctl *Controller) commit(t *tick) {
	ctl.colony = t.next
	if err := ctl.mem.Apply(t.writes); err != nil {
		ctl.logger.Warn("memory write failed", "error", err)
	}
	if n := ctl.mem.Cleanup(); n > 0 {
		ctl.logger.Debug("memory cleaned", "removed", n)
	}
	if t.adaptation != nil {
		ctl.deps.Adaptive.Commit(t.next.ID, *t.adaptation)
	}
	if t.counterApp != nil {
		ctl.deps.Counter.Commit(t.next.ID, *t.counterApp)
	}
	if t.attackType != "" {
		ctl.deps.Trigger.RecordAttack(t.next.ID, t.attackType, t.now)
	}
	for id, seen := range t.patterns {
		ctl.patterns[id] = seen
	}
	maps.Copy(ctl.cursors, t.cursors)
	ctl.publish(t.drafts)
	ctl.logger.Debug("tick committed", "tick", t.next.Tick, "action", t.decision.Action,
		"state", t.next.State, "threat", t.next.ThreatLevel, "confidence", t.decision.Confidence)
}

func (ctl *Controller) fallback(t *tick, cause error) TickResult {
	d := Fallback(ctl.colony, cause.Error())
	ctl.logger.Error("tick failed, using fallback", "tick", t.world.Tick, "action", d.Action, "error", cause)
	drafts := []events.Draft{{
		ColonyID: ctl.id,
		Level:    events.LevelHigh,
		Payload:  events.DecisionFallback{Action: d.Action, Cause: cause.Error()},
	}}
	ctl.publish(drafts)
	return TickResult{
		ColonyID:    ctl.id,
		Tick:        ctl.colony.Tick,
		Decision:    d,
		From:        ctl.colony.State,
		To:          ctl.colony.State,
		Orders:      []string{d.Action},
		ThreatLevel: ctl.colony.ThreatLevel,
		Events:      drafts,
		Fallback:    true,
		Error:       cause.Error(),
	}
}

func (ctl *Controller) publish(drafts []events.Draft) {
	if ctl.deps.Events == nil || len(drafts) == 0 {
		return
	}
	if err := ctl.deps.Events.PublishDrafts(drafts); err != nil {
		ctl.logger.Warn("publish events", "error", err)
	}
}
