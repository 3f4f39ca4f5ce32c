// Package adaptive changes a colony's macro strategy in response to a
// classified player. Adaptations are rate-limited per colony by a
// wall-clock cooldown and only happen when the need score clears a
// threshold.
package adaptive

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/nstehr/vimy/vimy-colony/keyed"
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/monitor"
)

// NeedWeights weigh the components of the adaptation-need score.
type NeedWeights struct {
	Threat          float64 `mapstructure:"threat"`
	Ineffectiveness float64 `mapstructure:"ineffectiveness"`
	Stability       float64 `mapstructure:"stability"`
	Elapsed         float64 `mapstructure:"elapsed"`
	MajorEvents     float64 `mapstructure:"major_events"`
}

type Config struct {
	Cooldown  time.Duration `mapstructure:"cooldown"`
	Threshold float64       `mapstructure:"threshold"`
	Weights   NeedWeights   `mapstructure:"weights"`

	// ElapsedSaturation is the time since the last adaptation at which the
	// elapsed component reaches 1.
	ElapsedSaturation time.Duration `mapstructure:"elapsed_saturation"`

	// PatternBoost scales how much a reinforcing pattern raises a
	// countermeasure's weight: w * (1 + PatternBoost*confidence).
	PatternBoost float64 `mapstructure:"pattern_boost"`

	HistoryLimit int `mapstructure:"history_limit"`
	MinActions   int `mapstructure:"min_actions"`
}

func DefaultConfig() Config {
	return Config{
		Cooldown:  5 * time.Minute,
		Threshold: 0.3,
		Weights: NeedWeights{
			Threat:          0.3,
			Ineffectiveness: 0.25,
			Stability:       0.2,
			Elapsed:         0.15,
			MajorEvents:     0.1,
		},
		ElapsedSaturation: 15 * time.Minute,
		PatternBoost:      0.5,
		HistoryLimit:      10,
		MinActions:        5,
	}
}

func (c Config) Validate() error {
	if c.Cooldown <= 0 {
		return fmt.Errorf("adaptive cooldown must be > 0")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("adaptive threshold must be in [0, 1]")
	}
	w := c.Weights
	if sum := w.Threat + w.Ineffectiveness + w.Stability + w.Elapsed + w.MajorEvents; math.Abs(sum-1) > 1e-3 {
		return fmt.Errorf("adaptive need weights must sum to 1, got %.3f", sum)
	}
	if c.ElapsedSaturation <= 0 {
		return fmt.Errorf("adaptive elapsed_saturation must be > 0")
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("adaptive history_limit must be >= 1")
	}
	return nil
}

// Record is one committed adaptation.
type Record struct {
	Time       time.Time           `json:"time"`
	PlayerID   string              `json:"playerId"`
	Playstyle  monitor.Playstyle   `json:"playstyle"`
	Old        model.MacroStrategy `json:"old"`
	New        model.MacroStrategy `json:"new"`
	Reasoning  string              `json:"reasoning"`
	Confidence float64             `json:"confidence"`
	Intensity  float64             `json:"intensity"`
}

// Need is the breakdown of the adaptation-need score.
type Need struct {
	Threat          float64 `json:"threat"`
	Ineffectiveness float64 `json:"ineffectiveness"`
	Stability       float64 `json:"stability"`
	Elapsed         float64 `json:"elapsed"`
	MajorEvents     float64 `json:"majorEvents"`
	Score           float64 `json:"score"`
}

// Changes are the state edits an adaptation asks the colony to make.
type Changes struct {
	Strategy        model.MacroStrategy     `json:"strategy"`
	Behavior        model.Behavior          `json:"behavior"`
	Allocation      map[model.Focus]float64 `json:"allocation"`
	AdaptationLevel float64                 `json:"adaptationLevel"`
}

// Apply returns a copy of c with the changes applied.
func (ch Changes) Apply(c model.Colony) model.Colony {
	out := c.Clone()
	out.CurrentStrategy = ch.Strategy
	out.Behavior = out.Behavior.Apply(ch.Behavior)
	if out.Allocation == nil {
		out.Allocation = model.DefaultAllocation()
	}
	out.Allocation = out.Allocation.Shift(ch.Allocation)
	out.AdaptationLevel = model.Clamp01(out.AdaptationLevel + ch.AdaptationLevel)
	return out
}

// Result is the outcome of one adaptation attempt. When Adapted is false
// Reason says why and Changes is empty.
type Result struct {
	Adapted bool    `json:"adapted"`
	Reason  string  `json:"reason"`
	Need    Need    `json:"need"`
	Changes Changes `json:"changes"`
	Record  *Record `json:"record,omitempty"`
}

type colonyState struct {
	mu             sync.Mutex
	rng            *rand.Rand
	lastAdaptation time.Time
	history        []Record
}

// Engine is safe for concurrent use across colonies.
type Engine struct {
	cfg      Config
	seed     int64
	colonies *keyed.Map[*colonyState]
	logger   *slog.Logger
}

// New builds an engine. Each colony draws from its own random source
// derived from seed and the colony id, so runs are reproducible.
func New(cfg Config, seed int64, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, seed: seed, colonies: keyed.New[*colonyState](), logger: logger}, nil
}

func (e *Engine) state(colonyID string) *colonyState {
	return e.colonies.GetOrCreate(colonyID, func() *colonyState {
		return &colonyState{rng: rand.New(rand.NewSource(ColonySeed(e.seed, colonyID)))}
	})
}

// ColonySeed derives a per-colony seed.
func ColonySeed(seed int64, colonyID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(colonyID))
	return seed ^ int64(h.Sum64())
}

// Propose decides whether colony c should adapt to the player summarized
// by s, without recording anything. Commit the returned record once the
// changes have actually been applied.
func (e *Engine) Propose(c model.Colony, s monitor.Summary, majorEvents []string, now time.Time) Result {
	st := e.state(c.ID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.lastAdaptation.IsZero() && now.Sub(st.lastAdaptation) < e.cfg.Cooldown {
		return Result{Reason: fmt.Sprintf("cooldown: %s remaining", (e.cfg.Cooldown - now.Sub(st.lastAdaptation)).Round(time.Second))}
	}
	if s.Actions < e.cfg.MinActions || s.Playstyle == monitor.PlaystyleUnknown {
		return Result{Reason: "insufficient data"}
	}

	need := e.need(c, s, majorEvents, st.lastAdaptation, now)
	if need.Score < e.cfg.Threshold {
		return Result{Need: need, Reason: fmt.Sprintf("need %.2f below threshold %.2f", need.Score, e.cfg.Threshold)}
	}

	candidates := WeightedCounters(s, e.cfg.PatternBoost)
	if len(candidates) > 1 {
		candidates = slices.DeleteFunc(candidates, func(cn Counter) bool { return cn.Strategy == c.CurrentStrategy })
	}
	weights := make([]float64, len(candidates))
	maxW := 0.0
	for i, cn := range candidates {
		weights[i] = cn.Weight
		maxW = max(maxW, cn.Weight)
	}
	pick := candidates[WeightedIndex(st.rng, weights)]
	if pick.Strategy == c.CurrentStrategy {
		return Result{Need: need, Reason: fmt.Sprintf("%s already counters %s", pick.Strategy, s.Playstyle)}
	}

	intensity := model.Clamp01(0.5 + 0.5*need.Score)
	changes := e.changesFor(st.rng, c, pick.Strategy, intensity)
	confidence := model.Clamp01(0.4*need.Score + 0.3*need.Stability + 0.3*pick.Weight/maxW)
	rec := Record{
		Time:       now,
		PlayerID:   s.PlayerID,
		Playstyle:  s.Playstyle,
		Old:        c.CurrentStrategy,
		New:        pick.Strategy,
		Reasoning:  fmt.Sprintf("%s player (threat %.2f) countered with %s; need %.2f", s.Playstyle, s.Threat, pick.Strategy, need.Score),
		Confidence: confidence,
		Intensity:  intensity,
	}
	return Result{Adapted: true, Reason: rec.Reasoning, Need: need, Changes: changes, Record: &rec}
}

// Commit records an applied adaptation: it starts the colony's cooldown and
// appends to its bounded history.
func (e *Engine) Commit(colonyID string, rec Record) {
	st := e.state(colonyID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastAdaptation = rec.Time
	st.history = append(st.history, rec)
	if over := len(st.history) - e.cfg.HistoryLimit; over > 0 {
		st.history = append(st.history[:0], st.history[over:]...)
	}
	e.logger.Info("strategy adapted", "colony", colonyID, "player", rec.PlayerID,
		"from", rec.Old, "to", rec.New, "confidence", rec.Confidence)
}

// AdaptToPlayer proposes and, when adapted, commits in one step.
func (e *Engine) AdaptToPlayer(c model.Colony, s monitor.Summary, majorEvents []string, now time.Time) Result {
	r := e.Propose(c, s, majorEvents, now)
	if r.Adapted {
		e.Commit(c.ID, *r.Record)
	}
	return r
}

func (e *Engine) need(c model.Colony, s monitor.Summary, major []string, last, now time.Time) Need {
	n := Need{
		Threat:          model.Clamp01(s.Threat),
		Ineffectiveness: 1 - Effectiveness(c.CurrentStrategy, s.Playstyle),
		Stability:       s.PatternStability(),
		Elapsed:         1,
	}
	if !last.IsZero() {
		n.Elapsed = model.Clamp01(float64(now.Sub(last)) / float64(e.cfg.ElapsedSaturation))
	}
	if len(major) > 0 {
		n.MajorEvents = 1
	}
	w := e.cfg.Weights
	n.Score = model.Clamp01(w.Threat*n.Threat + w.Ineffectiveness*n.Ineffectiveness +
		w.Stability*n.Stability + w.Elapsed*n.Elapsed + w.MajorEvents*n.MajorEvents)
	return n
}

// Effectiveness rates how well strategy counters playstyle p, relative to
// the best countermeasure for it. Strategies outside the table rate 0.3.
func Effectiveness(strategy model.MacroStrategy, p monitor.Playstyle) float64 {
	cs := Counters(p)
	best := 0.0
	for _, c := range cs {
		best = max(best, c.Weight)
	}
	for _, c := range cs {
		if c.Strategy == strategy && best > 0 {
			return c.Weight / best
		}
	}
	return 0.3
}

// WeightedCounters returns the countermeasures for the summarized player
// with weights raised by reinforcing patterns.
func WeightedCounters(s monitor.Summary, boost float64) []Counter {
	cs := Counters(s.Playstyle)
	for i := range cs {
		for _, p := range s.Patterns {
			if slices.Contains(reinforcement[p.Type], cs[i].Strategy) {
				cs[i].Weight *= 1 + boost*p.Confidence
			}
		}
	}
	return cs
}

// WeightedIndex samples an index with probability proportional to its
// weight. Non-positive totals fall back to index 0.
func WeightedIndex(rng *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0
	}
	r := rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cum += w
		if r < cum {
			return i
		}
	}
	return len(weights) - 1
}

func (e *Engine) changesFor(rng *rand.Rand, c model.Colony, s model.MacroStrategy, intensity float64) Changes {
	ch := Changes{Strategy: s, Allocation: make(map[model.Focus]float64), AdaptationLevel: 0.1 * intensity}
	switch s {
	case model.StrategyBalanced:
		// Pull every modifier halfway back to neutral.
		b := c.Behavior
		ch.Behavior = model.Behavior{
			Aggression: (0.5 - b.Aggression) * 0.5,
			Expansion:  (0.5 - b.Expansion) * 0.5,
			Risk:       (0.5 - b.Risk) * 0.5,
			Defense:    (0.5 - b.Defense) * 0.5,
		}
		for _, f := range model.Foci {
			ch.Allocation[f] = (0.25 - c.Allocation[f]) * 0.5
		}
	case model.StrategyAdaptiveChaos:
		jitter := func() float64 { return (rng.Float64()*2 - 1) * 0.1 * intensity }
		ch.Behavior = model.Behavior{Aggression: jitter(), Expansion: jitter(), Risk: jitter(), Defense: jitter()}
		for _, f := range model.Foci {
			ch.Allocation[f] = jitter()
		}
	default:
		m := strategyModifiers[s]
		ch.Behavior = model.Behavior{
			Aggression: m.Behavior.Aggression * intensity,
			Expansion:  m.Behavior.Expansion * intensity,
			Risk:       m.Behavior.Risk * intensity,
			Defense:    m.Behavior.Defense * intensity,
		}
		for f, v := range m.Allocation {
			ch.Allocation[f] = v * intensity
		}
	}
	return ch
}

// History returns the colony's committed adaptations, oldest first.
func (e *Engine) History(colonyID string) []Record {
	st := e.state(colonyID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return slices.Clone(st.history)
}

// LastAdaptation returns when the colony last adapted, zero if never.
func (e *Engine) LastAdaptation(colonyID string) time.Time {
	st := e.state(colonyID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastAdaptation
}

// Restore seeds a colony's cooldown and history, e.g. after loading it
// from storage.
func (e *Engine) Restore(colonyID string, history []Record) {
	st := e.state(colonyID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.history = slices.Clone(history)
	if over := len(st.history) - e.cfg.HistoryLimit; over > 0 {
		st.history = st.history[over:]
	}
	if n := len(st.history); n > 0 {
		st.lastAdaptation = st.history[n-1].Time
	}
}

// Forget drops a colony.
func (e *Engine) Forget(colonyID string) {
	e.colonies.Delete(colonyID)
}
