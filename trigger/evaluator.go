// Package trigger decides whether and how a colony attacks a target. Eight
// independent triggers are weighted into one score, scaled by personality
// and by how far each attack type is through its cooldown.
package trigger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nstehr/vimy/vimy-colony/keyed"
	"github.com/nstehr/vimy/vimy-colony/model"
)

// CooldownStatus reports where one attack type stands.
type CooldownStatus struct {
	Ready     bool          `json:"ready"`
	Remaining time.Duration `json:"remaining"`
	// Ratio is elapsed over required cooldown, capped at 1.
	Ratio float64 `json:"ratio"`
}

// Evaluation is the transient result of evaluating one target.
type Evaluation struct {
	TargetID     string                        `json:"targetId"`
	OwnerID      string                        `json:"ownerId"`
	Triggers     map[Kind]Result               `json:"triggers"`
	BaseScore    float64                       `json:"baseScore"`
	Score        float64                       `json:"score"`
	ShouldAttack bool                          `json:"shouldAttack"`
	AttackType   AttackType                    `json:"attackType"`
	Preparation  time.Duration                 `json:"preparation"`
	Urgency      float64                       `json:"urgency"`
	Confidence   float64                       `json:"confidence"`
	Cooldowns    map[AttackType]CooldownStatus `json:"cooldowns"`
	Reasons      []string                      `json:"reasons"`
}

// Fired lists the triggers that fired, in evaluation order.
func (e Evaluation) Fired() []Kind {
	var out []Kind
	for _, k := range Kinds {
		if e.Triggers[k].Triggered {
			out = append(out, k)
		}
	}
	return out
}

// HistoryEntry records one evaluation for pattern analysis.
type HistoryEntry struct {
	TargetID     string     `json:"targetId"`
	Score        float64    `json:"score"`
	ShouldAttack bool       `json:"shouldAttack"`
	AttackType   AttackType `json:"attackType"`
	Time         time.Time  `json:"time"`
}

// Patterns summarizes a colony's trigger history.
type Patterns struct {
	Evaluations  int     `json:"evaluations"`
	AverageScore float64 `json:"averageScore"`
	// Trend is the mean score of the newer half minus the older half.
	Trend      float64 `json:"trend"`
	AttackRate float64 `json:"attackRate"`
	Attacks    int     `json:"attacks"`
}

type ledger struct {
	mu         sync.Mutex
	lastAttack map[AttackType]time.Time
	history    []HistoryEntry
	attacks    int
}

// Evaluator is safe for concurrent use across colonies.
type Evaluator struct {
	cfg     Config
	ledgers *keyed.Map[*ledger]
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{cfg: cfg, ledgers: keyed.New[*ledger](), logger: logger}, nil
}

func (e *Evaluator) ledger(colonyID string) *ledger {
	return e.ledgers.GetOrCreate(colonyID, func() *ledger {
		return &ledger{lastAttack: make(map[AttackType]time.Time)}
	})
}

// Evaluate scores target for colony c at now and records the result in the
// colony's trigger history. Allied targets are never attacked.
func (e *Evaluator) Evaluate(c model.Colony, target model.Target, now time.Time) Evaluation {
	l := e.ledger(c.ID)
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := e.evaluate(l, c, target, now)
	l.history = append(l.history, HistoryEntry{
		TargetID: target.ID, Score: ev.Score, ShouldAttack: ev.ShouldAttack, AttackType: ev.AttackType, Time: now,
	})
	if over := len(l.history) - e.cfg.HistoryLimit; over > 0 {
		l.history = append(l.history[:0], l.history[over:]...)
	}
	return ev
}

func (e *Evaluator) evaluate(l *ledger, c model.Colony, target model.Target, now time.Time) Evaluation {
	in := input{cfg: e.cfg, colony: c, target: target, now: now, lastAttack: latest(l.lastAttack)}
	ev := Evaluation{
		TargetID:  target.ID,
		OwnerID:   target.OwnerID,
		Triggers:  make(map[Kind]Result, len(Kinds)),
		Cooldowns: e.cooldowns(l, now),
	}

	base, fired, firedIntensity := 0.0, 0, 0.0
	for _, k := range Kinds {
		r := evaluators[k](in)
		ev.Triggers[k] = r
		if r.Triggered {
			base += e.cfg.Weights[k] * r.Intensity
			fired++
			firedIntensity += r.Intensity
			ev.Reasons = append(ev.Reasons, fmt.Sprintf("%s (%.2f)", k, r.Intensity))
		}
	}

	raw := model.Clamp01(base * e.cfg.modifier(c.Personality))
	band := e.cfg.band(raw)
	ev.BaseScore = raw
	ev.Score = model.Clamp01(raw * ev.Cooldowns[band.Type].Ratio)
	ev.AttackType = band.Type
	ev.Preparation = band.Preparation

	if target.Diplomacy == model.DiplomacyAllied {
		ev.Score = 0
		ev.Reasons = append(ev.Reasons, "target is allied")
	}
	ev.ShouldAttack = ev.Score >= e.cfg.AttackThreshold

	ev.Urgency = model.Clamp01(0.4*ev.Triggers[DefensiveNecessity].Intensity +
		0.3*ev.Triggers[StrategicOpportunity].Intensity +
		0.3*ev.Triggers[PlayerWeakness].Intensity)
	if fired > 0 {
		ev.Confidence = model.Clamp01(0.5*float64(fired)/float64(len(Kinds)) + 0.5*firedIntensity/float64(fired))
	}
	if !ev.Cooldowns[band.Type].Ready {
		ev.Reasons = append(ev.Reasons, fmt.Sprintf("%s cooling down for %s", band.Type, ev.Cooldowns[band.Type].Remaining.Round(time.Second)))
	}
	return ev
}

// EvaluateTargets evaluates every target and returns the best one that
// should be attacked, if any. At most one attack is proposed per call.
func (e *Evaluator) EvaluateTargets(c model.Colony, targets []model.Target, now time.Time) (*Evaluation, []Evaluation) {
	all := make([]Evaluation, 0, len(targets))
	var best *Evaluation
	for _, t := range targets {
		ev := e.Evaluate(c, t, now)
		all = append(all, ev)
	}
	for i := range all {
		if !all[i].ShouldAttack {
			continue
		}
		if best == nil || all[i].Score > best.Score ||
			(all[i].Score == best.Score && all[i].Urgency > best.Urgency) {
			best = &all[i]
		}
	}
	return best, all
}

// RecordAttack starts the cooldown of attack type t for the colony.
func (e *Evaluator) RecordAttack(colonyID string, t AttackType, now time.Time) {
	l := e.ledger(colonyID)
	l.mu.Lock()
	l.lastAttack[t] = now
	l.attacks++
	l.mu.Unlock()
	e.logger.Info("attack recorded", "colony", colonyID, "type", t)
}

// Cooldowns returns the status of every attack type for the colony.
func (e *Evaluator) Cooldowns(colonyID string, now time.Time) map[AttackType]CooldownStatus {
	l := e.ledger(colonyID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return e.cooldowns(l, now)
}

func (e *Evaluator) cooldowns(l *ledger, now time.Time) map[AttackType]CooldownStatus {
	out := make(map[AttackType]CooldownStatus, len(AttackTypes))
	for _, t := range AttackTypes {
		last, ok := l.lastAttack[t]
		if !ok {
			out[t] = CooldownStatus{Ready: true, Ratio: 1}
			continue
		}
		need := e.cfg.Cooldowns[t]
		elapsed := now.Sub(last)
		st := CooldownStatus{Ratio: model.Clamp01(float64(elapsed) / float64(need))}
		if elapsed >= need {
			st.Ready = true
		} else {
			st.Remaining = need - elapsed
		}
		out[t] = st
	}
	return out
}

// AttackReady reports whether attack type t is off cooldown.
func (e *Evaluator) AttackReady(colonyID string, t AttackType, now time.Time) bool {
	return e.Cooldowns(colonyID, now)[t].Ready
}

// AnyAttackReady reports whether at least one attack type is off cooldown.
func (e *Evaluator) AnyAttackReady(colonyID string, now time.Time) bool {
	for _, st := range e.Cooldowns(colonyID, now) {
		if st.Ready {
			return true
		}
	}
	return false
}

// Patterns analyzes the colony's trigger history.
func (e *Evaluator) Patterns(colonyID string) Patterns {
	l := e.ledger(colonyID)
	l.mu.Lock()
	defer l.mu.Unlock()

	p := Patterns{Evaluations: len(l.history), Attacks: l.attacks}
	if len(l.history) == 0 {
		return p
	}
	sum, attacks := 0.0, 0
	for _, h := range l.history {
		sum += h.Score
		if h.ShouldAttack {
			attacks++
		}
	}
	p.AverageScore = sum / float64(len(l.history))
	p.AttackRate = float64(attacks) / float64(len(l.history))
	if half := len(l.history) / 2; half > 0 {
		p.Trend = mean(l.history[len(l.history)-half:]) - mean(l.history[:half])
	}
	return p
}

// History returns a copy of the colony's trigger history, oldest first.
func (e *Evaluator) History(colonyID string) []HistoryEntry {
	l := e.ledger(colonyID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]HistoryEntry(nil), l.history...)
}

// Forget drops a colony's ledger.
func (e *Evaluator) Forget(colonyID string) {
	e.ledgers.Delete(colonyID)
}

func mean(hs []HistoryEntry) float64 {
	sum := 0.0
	for _, h := range hs {
		sum += h.Score
	}
	return sum / float64(len(hs))
}

func latest(m map[AttackType]time.Time) time.Time {
	var t time.Time
	for _, v := range m {
		if v.After(t) {
			t = v
		}
	}
	return t
}
