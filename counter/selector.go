// Package counter builds counter-strategies against a classified player:
// it gathers candidates from several sources, scores them, samples one of
// the best few and keeps a per-colony ledger of applications whose
// outcomes feed back into later choices.
package counter

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nstehr/vimy/vimy-colony/adaptive"
	"github.com/nstehr/vimy/vimy-colony/keyed"
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/monitor"
)

// ErrUnknownApplication is returned when an outcome names no ledger entry.
var ErrUnknownApplication = errors.New("unknown counter-strategy application")

// CooldownView exposes attack readiness from the trigger evaluator.
type CooldownView interface {
	AnyAttackReady(colonyID string, now time.Time) bool
}

// Source is where a candidate came from.
type Source string

const (
	SourcePrimary    Source = "primary"
	SourcePattern    Source = "pattern"
	SourceWeakness   Source = "weakness"
	SourceHistorical Source = "historical"
	SourceChaos      Source = "adaptive_chaos"
)

// Outcome of an application.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type Config struct {
	// SampleWeights are the selection weights of the top candidates,
	// best first.
	SampleWeights []float64 `mapstructure:"sample_weights"`

	LedgerLimit       int     `mapstructure:"ledger_limit"`
	MinActions        int     `mapstructure:"min_actions"`
	ChaosResistance   float64 `mapstructure:"chaos_resistance"`
	HistoricalMinRate float64 `mapstructure:"historical_min_rate"`
	HistoricalMinRuns int     `mapstructure:"historical_min_runs"`
	PatternBoost      float64 `mapstructure:"pattern_boost"`
}

func DefaultConfig() Config {
	return Config{
		SampleWeights:     []float64{1, 0.5, 0.25},
		LedgerLimit:       20,
		MinActions:        5,
		ChaosResistance:   0.7,
		HistoricalMinRate: 0.6,
		HistoricalMinRuns: 2,
		PatternBoost:      0.5,
	}
}

func (c Config) Validate() error {
	if len(c.SampleWeights) == 0 {
		return fmt.Errorf("counter sample_weights must not be empty")
	}
	for _, w := range c.SampleWeights {
		if w <= 0 {
			return fmt.Errorf("counter sample_weights must be > 0")
		}
	}
	if c.LedgerLimit < 1 {
		return fmt.Errorf("counter ledger_limit must be >= 1")
	}
	if c.HistoricalMinRuns < 1 {
		return fmt.Errorf("counter historical_min_runs must be >= 1")
	}
	return nil
}

// Option is a scored candidate.
type Option struct {
	Template
	Source        Source  `json:"source"`
	Effectiveness float64 `json:"effectiveness"`
	Risk          float64 `json:"risk"`
	Reward        float64 `json:"reward"`
	Feasibility   float64 `json:"feasibility"`
	Score         float64 `json:"score"`
}

// PlanPhase is one step of the implementation timeline.
type PlanPhase struct {
	Name    string   `json:"name"`
	Ticks   int      `json:"ticks"`
	Actions []string `json:"actions"`
}

// Plan turns a chosen option into concrete changes.
type Plan struct {
	ImmediateActions []string                `json:"immediateActions"`
	Timeline         []PlanPhase             `json:"timeline"`
	Allocation       map[model.Focus]float64 `json:"allocation"`
	Behavior         model.Behavior          `json:"behavior"`
}

// Apply returns a copy of c with the plan's modifier shifts applied.
func (p Plan) Apply(c model.Colony) model.Colony {
	out := c.Clone()
	out.Behavior = out.Behavior.Apply(p.Behavior)
	if out.Allocation == nil {
		out.Allocation = model.DefaultAllocation()
	}
	out.Allocation = out.Allocation.Shift(p.Allocation)
	return out
}

// Application is a ledger entry.
type Application struct {
	ID         string            `json:"id"`
	Time       time.Time         `json:"time"`
	PlayerID   string            `json:"playerId"`
	Playstyle  monitor.Playstyle `json:"playstyle"`
	Option     Option            `json:"option"`
	Plan       Plan              `json:"plan"`
	Outcome    Outcome           `json:"outcome"`
	ResolvedAt time.Time         `json:"resolvedAt,omitzero"`
}

// Selection is the result of Select. When ok is false Reason says why.
type Selection struct {
	Analysis    adaptive.PlayerAnalysis `json:"analysis"`
	Candidates  []Option                `json:"candidates"`
	Application Application             `json:"application"`
	Reason      string                  `json:"reason"`
}

type tally struct{ success, failure int }

func (t tally) rate() float64 {
	if n := t.success + t.failure; n > 0 {
		return float64(t.success) / float64(n)
	}
	return 0
}

type ledger struct {
	mu      sync.Mutex
	rng     *rand.Rand
	apps    []Application
	history map[monitor.Playstyle]map[string]tally
}

// Selector is safe for concurrent use across colonies.
type Selector struct {
	cfg       Config
	seed      int64
	cooldowns CooldownView
	ledgers   *keyed.Map[*ledger]
	logger    *slog.Logger
}

// New builds a selector. cooldowns may be nil, in which case attacks are
// always considered ready.
func New(cfg Config, seed int64, cooldowns CooldownView, logger *slog.Logger) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{cfg: cfg, seed: seed, cooldowns: cooldowns, ledgers: keyed.New[*ledger](), logger: logger}, nil
}

func (s *Selector) ledger(colonyID string) *ledger {
	return s.ledgers.GetOrCreate(colonyID, func() *ledger {
		return &ledger{
			rng:     rand.New(rand.NewSource(adaptive.ColonySeed(s.seed+1, colonyID))),
			history: make(map[monitor.Playstyle]map[string]tally),
		}
	})
}

// Select chooses a counter-strategy for colony c against the summarized
// player. Nothing is recorded; pass the application to Commit once the
// plan has been applied.
func (s *Selector) Select(c model.Colony, sum monitor.Summary, now time.Time) (Selection, bool) {
	if sum.Actions < s.cfg.MinActions || sum.Playstyle == monitor.PlaystyleUnknown {
		return Selection{Reason: "insufficient data"}, false
	}
	l := s.ledger(c.ID)
	l.mu.Lock()
	defer l.mu.Unlock()

	analysis := adaptive.AnalyzePlayer(sum, s.cfg.PatternBoost)
	sel := Selection{Analysis: analysis}
	attackReady := s.cooldowns == nil || s.cooldowns.AnyAttackReady(c.ID, now)

	for _, cand := range s.candidates(l, analysis, sum) {
		sel.Candidates = append(sel.Candidates, s.score(c, cand, analysis, sum, l, attackReady))
	}
	if len(sel.Candidates) == 0 {
		sel.Reason = "no counter-strategy candidates"
		return sel, false
	}
	slices.SortStableFunc(sel.Candidates, func(a, b Option) int { return cmp.Compare(b.Score, a.Score) })

	top := min(len(sel.Candidates), len(s.cfg.SampleWeights))
	chosen := sel.Candidates[adaptive.WeightedIndex(l.rng, s.cfg.SampleWeights[:top])]
	sel.Application = Application{
		ID:        uuid.New().String(),
		Time:      now,
		PlayerID:  sum.PlayerID,
		Playstyle: sum.Playstyle,
		Option:    chosen,
		Plan:      buildPlan(chosen),
		Outcome:   OutcomePending,
	}
	sel.Reason = fmt.Sprintf("%s (%s) against %s, score %.2f", chosen.Type, chosen.Source, sum.Playstyle, chosen.Score)
	return sel, true
}

type candidate struct {
	template Template
	source   Source
}

func (s *Selector) candidates(l *ledger, a adaptive.PlayerAnalysis, sum monitor.Summary) []candidate {
	seen := make(map[string]bool)
	var out []candidate
	add := func(name string, src Source) {
		if seen[name] {
			return
		}
		t, ok := catalog[name]
		if !ok {
			return
		}
		seen[name] = true
		out = append(out, candidate{template: t, source: src})
	}

	for _, name := range primaryCounters[sum.Playstyle] {
		add(name, SourcePrimary)
	}
	for _, p := range sum.Patterns {
		add(patternCounters[p.Type], SourcePattern)
	}
	for _, w := range a.Weaknesses {
		add(weaknessCounters[w], SourceWeakness)
	}
	hist := l.history[sum.Playstyle]
	names := make([]string, 0, len(hist))
	for name := range hist {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		t := hist[name]
		if t.success+t.failure >= s.cfg.HistoricalMinRuns && t.rate() >= s.cfg.HistoricalMinRate {
			add(name, SourceHistorical)
		}
	}
	if a.Resistance > s.cfg.ChaosResistance {
		add("adaptive_chaos", SourceChaos)
	}
	return out
}

func (s *Selector) score(c model.Colony, cand candidate, a adaptive.PlayerAnalysis, sum monitor.Summary, l *ledger, attackReady bool) Option {
	t := cand.template
	o := Option{Template: t, Source: cand.source}

	eff := t.Effectiveness + 0.1*c.AdaptationLevel
	if h, ok := l.history[sum.Playstyle][t.Type]; ok && h.success+h.failure >= s.cfg.HistoricalMinRuns {
		eff += 0.4 * (h.rate() - 0.5)
	}
	for _, p := range sum.Patterns {
		if patternCounters[p.Type] == t.Type {
			eff += 0.15 * p.Confidence
		}
	}
	if cand.source == SourceWeakness {
		eff += 0.1
	}
	o.Effectiveness = model.Clamp01(eff)

	risk := t.Risk - 0.2*(c.Behavior.Risk-0.5)
	reward := t.Reward
	if t.Offensive {
		risk += 0.2 * a.Threat
		reward += 0.1 * (1 - a.Threat)
	}
	o.Risk = model.Clamp01(risk)
	o.Reward = model.Clamp01(reward)

	feas := 1.0
	for k, need := range t.Cost {
		if need > 0 {
			feas = math.Min(feas, c.Resource(k)/need)
		}
	}
	if t.Offensive {
		if c.Military.Used == 0 {
			feas = 0
		} else if !attackReady {
			feas *= 0.5
		}
	}
	o.Feasibility = model.Clamp01(feas)
	o.Score = 0.4*o.Effectiveness + 0.25*o.Reward + 0.2*o.Feasibility - 0.15*o.Risk
	return o
}

func buildPlan(o Option) Plan {
	mods := adaptive.ModifiersFor(o.Approach)
	scale := 0.5 * o.Effectiveness
	p := Plan{
		Allocation: make(map[model.Focus]float64, len(mods.Allocation)),
		Behavior: model.Behavior{
			Aggression: mods.Behavior.Aggression * scale,
			Expansion:  mods.Behavior.Expansion * scale,
			Risk:       mods.Behavior.Risk * scale,
			Defense:    mods.Behavior.Defense * scale,
		},
	}
	for f, v := range mods.Allocation {
		p.Allocation[f] = v * scale
	}
	n := min(2, len(o.TacticalFocus))
	p.ImmediateActions = slices.Clone(o.TacticalFocus[:n])
	p.Timeline = []PlanPhase{
		{Name: "prepare", Ticks: 2, Actions: slices.Clone(o.TacticalFocus[:n])},
		{Name: "execute", Ticks: 5, Actions: slices.Clone(o.TacticalFocus)},
		{Name: "consolidate", Ticks: 3, Actions: []string{"assess_outcome"}},
	}
	return p
}

// Commit records an applied selection in the colony's ledger with a
// pending outcome. The ledger keeps the newest LedgerLimit entries.
func (s *Selector) Commit(colonyID string, app Application) {
	l := s.ledger(colonyID)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.apps = append(l.apps, app)
	if over := len(l.apps) - s.cfg.LedgerLimit; over > 0 {
		l.apps = append(l.apps[:0], l.apps[over:]...)
	}
	s.logger.Info("counter-strategy applied", "colony", colonyID, "player", app.PlayerID,
		"type", app.Option.Type, "source", app.Option.Source, "score", app.Option.Score)
}

// RecordOutcome scores a pending application. Outcomes feed the
// per-playstyle success history used for later historical candidates.
func (s *Selector) RecordOutcome(colonyID, appID string, success bool, now time.Time) error {
	l := s.ledger(colonyID)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.apps {
		app := &l.apps[i]
		if app.ID != appID {
			continue
		}
		if app.Outcome != OutcomePending {
			return fmt.Errorf("application %s already resolved as %s", appID, app.Outcome)
		}
		app.Outcome = OutcomeFailure
		if success {
			app.Outcome = OutcomeSuccess
		}
		app.ResolvedAt = now
		byType := l.history[app.Playstyle]
		if byType == nil {
			byType = make(map[string]tally)
			l.history[app.Playstyle] = byType
		}
		t := byType[app.Option.Type]
		if success {
			t.success++
		} else {
			t.failure++
		}
		byType[app.Option.Type] = t
		return nil
	}
	return fmt.Errorf("colony %s application %s: %w", colonyID, appID, ErrUnknownApplication)
}

// Ledger returns the colony's applications, oldest first.
func (s *Selector) Ledger(colonyID string) []Application {
	l := s.ledger(colonyID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.apps)
}

// Pending returns the applications still awaiting an outcome.
func (s *Selector) Pending(colonyID string) []Application {
	var out []Application
	for _, app := range s.Ledger(colonyID) {
		if app.Outcome == OutcomePending {
			out = append(out, app)
		}
	}
	return out
}

// SuccessRate returns the recorded success rate of a counter type against
// a playstyle and how many outcomes it is based on.
func (s *Selector) SuccessRate(colonyID string, p monitor.Playstyle, counterType string) (float64, int) {
	l := s.ledger(colonyID)
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.history[p][counterType]
	return t.rate(), t.success + t.failure
}

// Forget drops a colony's ledger.
func (s *Selector) Forget(colonyID string) {
	s.ledgers.Delete(colonyID)
}

// Restore replaces a colony's ledger with persisted applications and
// rebuilds the success history from their resolved outcomes.
func (s *Selector) Restore(colonyID string, apps []Application) {
	l := s.ledger(colonyID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if over := len(apps) - s.cfg.LedgerLimit; over > 0 {
		apps = apps[over:]
	}
	l.apps = slices.Clone(apps)
	l.history = make(map[monitor.Playstyle]map[string]tally)
	for _, app := range l.apps {
		if app.Outcome == OutcomePending {
			continue
		}
		byType := l.history[app.Playstyle]
		if byType == nil {
			byType = make(map[string]tally)
			l.history[app.Playstyle] = byType
		}
		t := byType[app.Option.Type]
		if app.Outcome == OutcomeSuccess {
			t.success++
		} else {
			t.failure++
		}
		byType[app.Option.Type] = t
	}
}
