// Package monitor tracks human players: it classifies their actions,
// derives behavioral metrics, labels a playstyle and detects short-lived
// patterns in the recent window.
package monitor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nstehr/vimy/vimy-colony/keyed"
	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/rules"
)

// Config tunes the monitor.
type Config struct {
	WindowSize       int `mapstructure:"window_size"`
	AnalysisInterval int `mapstructure:"analysis_interval"`
	MinActions       int `mapstructure:"min_actions"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{WindowSize: 50, AnalysisInterval: 5, MinActions: 5}
}

func (c Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("monitor window_size must be >= 1")
	}
	if c.AnalysisInterval < 1 {
		return fmt.Errorf("monitor analysis_interval must be >= 1")
	}
	if c.MinActions < 1 {
		return fmt.Errorf("monitor min_actions must be >= 1")
	}
	return nil
}

type player struct {
	mu            sync.Mutex
	profile       Profile
	sinceAnalysis int
}

// Monitor is safe for concurrent use; each player has its own lock.
type Monitor struct {
	cfg     Config
	players *keyed.Map[*player]
	styles  *rules.Set
	logger  *slog.Logger
}

// New builds a monitor with the default playstyle rules.
func New(cfg Config, logger *slog.Logger) (*Monitor, error) {
	return NewWithRules(cfg, DefaultPlaystyleRules(), logger)
}

// NewWithRules builds a monitor with a custom playstyle rule table.
func NewWithRules(cfg Config, styleRules []rules.Rule, logger *slog.Logger) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	set, err := rules.Compile("playstyle", styleRules, StyleEnv{})
	if err != nil {
		return nil, fmt.Errorf("playstyle rules: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{cfg: cfg, players: keyed.New[*player](), styles: set, logger: logger}, nil
}

func (m *Monitor) player(id string) *player {
	return m.players.GetOrCreate(id, func() *player {
		return &player{profile: newProfile(id)}
	})
}

// RecordAction classifies a and appends it to the player's window.
// Every AnalysisInterval actions the profile is re-analyzed. The returned
// bool reports whether an analysis ran.
func (m *Monitor) RecordAction(playerID string, a model.PlayerAction) (Category, bool) {
	p := m.player(playerID)
	p.mu.Lock()
	defer p.mu.Unlock()
	cat := m.record(p, a)
	if p.sinceAnalysis >= m.cfg.AnalysisInterval {
		m.analyze(p, a.Timestamp)
		return cat, true
	}
	return cat, false
}

// RecordActions records a batch observed in one snapshot. Once the player
// has a recorded action time, actions stamped no later than it (unstamped
// ones included) are skipped, so several colonies seeing the same snapshot
// do not double count. Callers stamp actions with the snapshot time. It
// returns how many actions were recorded.
func (m *Monitor) RecordActions(playerID string, actions []model.PlayerAction) int {
	if len(actions) == 0 {
		return 0
	}
	p := m.player(playerID)
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.profile.LastSeen
	n := 0
	var last time.Time
	for _, a := range actions {
		if !cutoff.IsZero() && !a.Timestamp.After(cutoff) {
			continue
		}
		m.record(p, a)
		last = a.Timestamp
		n++
		if p.sinceAnalysis >= m.cfg.AnalysisInterval {
			m.analyze(p, last)
		}
	}
	return n
}

func (m *Monitor) record(p *player, a model.PlayerAction) Category {
	cat := Classify(a.Type)
	prof := &p.profile
	prof.Counts[cat]++
	prof.Total++
	if prof.FirstSeen.IsZero() {
		prof.FirstSeen = a.Timestamp
	}
	if a.Timestamp.After(prof.LastSeen) {
		prof.LastSeen = a.Timestamp
	}
	prof.Recent = append(prof.Recent, Observed{Type: a.Type, Category: cat, Timestamp: a.Timestamp})
	if over := len(prof.Recent) - m.cfg.WindowSize; over > 0 {
		prof.Recent = append(prof.Recent[:0], prof.Recent[over:]...)
	}
	p.sinceAnalysis++
	return cat
}

// Analyze forces a re-analysis and returns the updated profile. ok is
// false for a player never seen.
func (m *Monitor) Analyze(playerID string) (Profile, bool) {
	p, ok := m.players.Get(playerID)
	if !ok {
		return Profile{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m.analyze(p, p.profile.LastSeen)
	return p.profile.clone(), true
}

func (m *Monitor) analyze(p *player, at time.Time) {
	p.sinceAnalysis = 0
	prof := &p.profile
	prof.LastAnalysis = at
	prof.Analyses++

	if prof.Total < m.cfg.MinActions {
		prof.Metrics = Metrics{}
		prof.Playstyle = PlaystyleUnknown
		prof.Patterns = nil
		return
	}

	prof.Metrics = computeMetrics(*prof)
	prof.Patterns = sortedPatterns(detectPatterns(prof.Recent))

	env := StyleEnv{
		Aggressiveness: prof.Metrics.Aggressiveness,
		Expansion:      prof.Metrics.ExpansionTendency,
		Economic:       prof.Metrics.EconomicFocus,
		MilitaryFocus:  prof.Metrics.MilitaryFocus,
		Risk:           prof.Metrics.RiskTolerance,
		Resistance:     prof.Metrics.AdaptationResistance,
		Actions:        prof.Total,
	}
	old := prof.Playstyle
	rule, err := m.styles.First(env)
	if err != nil {
		m.logger.Warn("playstyle rule error", "player", prof.PlayerID, "error", err)
	}
	if rule != nil {
		prof.Playstyle = Playstyle(rule.Outcome)
	} else {
		prof.Playstyle = PlaystyleBalanced
	}
	if old != prof.Playstyle {
		m.logger.Info("playstyle changed", "player", prof.PlayerID, "from", old, "to", prof.Playstyle)
	}
}

// Profile returns a copy of the player's profile.
func (m *Monitor) Profile(playerID string) (Profile, bool) {
	p, ok := m.players.Get(playerID)
	if !ok {
		return Profile{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile.clone(), true
}

// Summary condenses the player's profile for the strategy engines.
func (m *Monitor) Summary(playerID string) (Summary, bool) {
	prof, ok := m.Profile(playerID)
	if !ok {
		return Summary{}, false
	}
	return Summary{
		PlayerID:  prof.PlayerID,
		Playstyle: prof.Playstyle,
		Metrics:   prof.Metrics,
		Patterns:  prof.Patterns,
		Actions:   prof.Total,
		Dominant:  dominant(prof.Counts),
		Threat:    assessThreat(prof).Score,
		LastSeen:  prof.LastSeen,
	}, true
}

// ThreatAssessment scores how dangerous a player is. An unknown player is
// a zero-score low threat.
func (m *Monitor) ThreatAssessment(playerID string) Threat {
	prof, ok := m.Profile(playerID)
	if !ok {
		return Threat{
			PlayerID:        playerID,
			Level:           ThreatLow,
			Reasons:         []string{"player not observed"},
			Recommendations: []string{"continue monitoring"},
		}
	}
	return assessThreat(prof)
}

// Profiles returns copies of every profile.
func (m *Monitor) Profiles() []Profile {
	var out []Profile
	m.players.Range(func(_ string, p *player) bool {
		p.mu.Lock()
		out = append(out, p.profile.clone())
		p.mu.Unlock()
		return true
	})
	return out
}

// Forget drops a player.
func (m *Monitor) Forget(playerID string) {
	m.players.Delete(playerID)
}
