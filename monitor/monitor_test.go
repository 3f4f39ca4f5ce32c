package monitor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/rules"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newMonitor(t *testing.T) *Monitor {
	t.Helper()
	m, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	return m
}

func feed(m *Monitor, player string, types ...string) {
	for i, typ := range types {
		m.RecordAction(player, model.PlayerAction{PlayerID: player, Type: typ, Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}
}

func repeat(typ string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = typ
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"military_buildup", Military},
		{"attack_colony", Military},
		{"defensive_actions", Defensive},
		{"build_defenses", Defensive},
		{"retreat", Defensive},
		{"claim_territory", Expansion},
		{"trade_route", Trade},
		{"scout_area", Exploration},
		{"form_alliance", Diplomatic},
		{"research_upgrade", Technology},
		{"gather_wood", Economic},
		{"something_odd", Economic},
	}
	for _, tc := range tests {
		if got := Classify(tc.in); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestUnknownUnderMinActions(t *testing.T) {
	m := newMonitor(t)
	feed(m, "p1", repeat("attack_colony", 4)...)

	prof, ok := m.Analyze("p1")
	require.True(t, ok)
	assert.Equal(t, PlaystyleUnknown, prof.Playstyle)
	assert.Empty(t, prof.Patterns)
}

func TestAnalysisRunsEveryInterval(t *testing.T) {
	m := newMonitor(t)
	var ran []int
	for i := 1; i <= 12; i++ {
		_, analyzed := m.RecordAction("p1", model.PlayerAction{Type: "gather_food"})
		if analyzed {
			ran = append(ran, i)
		}
	}
	assert.Equal(t, []int{5, 10}, ran)
}

func TestMilitaryPreparationScenario(t *testing.T) {
	m := newMonitor(t)
	var types []string
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			types = append(types, "military_buildup")
		} else {
			types = append(types, "defensive_actions")
		}
	}
	feed(m, "p1", types...)

	prof, ok := m.Profile("p1")
	require.True(t, ok)
	pat, found := prof.HasPattern(PatternMilitaryPreparation)
	require.True(t, found, "patterns: %+v", prof.Patterns)
	assert.GreaterOrEqual(t, pat.Confidence, 0.8)
	assert.Equal(t, "imminent_attack", pat.Predicted)
}

func TestPlaystyles(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  Playstyle
	}{
		{"all attacks", repeat("attack_colony", 10), PlaystyleAggressiveMilitary},
		{"all gathering", repeat("gather_wood", 10), PlaystyleEconomicBuilder},
		{"all defense", repeat("build_defenses", 10), PlaystyleDefensiveTurtle},
		{"all expansion", repeat("claim_territory", 10), PlaystyleExpansionist},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMonitor(t)
			feed(m, "p", tc.types...)
			prof, _ := m.Profile("p")
			assert.Equal(t, tc.want, prof.Playstyle)
		})
	}
}

func TestMetricsClamped(t *testing.T) {
	m := newMonitor(t)
	feed(m, "p", "attack_colony", "raid_outpost", "siege_city", "claim_territory", "trade_goods",
		"research_upgrade", "build_defenses", "scout_area", "form_alliance", "gather_food")
	prof, _ := m.Profile("p")
	for name, v := range map[string]float64{
		"aggressiveness": prof.Metrics.Aggressiveness,
		"expansion":      prof.Metrics.ExpansionTendency,
		"economic":       prof.Metrics.EconomicFocus,
		"military":       prof.Metrics.MilitaryFocus,
		"risk":           prof.Metrics.RiskTolerance,
		"resistance":     prof.Metrics.AdaptationResistance,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
	assert.Greater(t, prof.Metrics.AdaptationResistance, 0.5, "varied play is hard to pin down")
}

func TestAdaptationResistanceOfRepetitivePlay(t *testing.T) {
	m := newMonitor(t)
	feed(m, "p", repeat("gather_food", 10)...)
	prof, _ := m.Profile("p")
	assert.Equal(t, 0.0, prof.Metrics.AdaptationResistance)
}

func TestHitAndRun(t *testing.T) {
	m := newMonitor(t)
	feed(m, "p", "attack_outpost", "retreat", "attack_outpost", "retreat", "gather_food")
	prof, _ := m.Profile("p")
	pat, ok := prof.HasPattern(PatternHitAndRun)
	require.True(t, ok)
	assert.Equal(t, 1.0, pat.Confidence)
}

func TestHitAndRunNeedsTwoAttacks(t *testing.T) {
	m := newMonitor(t)
	feed(m, "p", "attack_outpost", "retreat", "gather_food", "gather_food", "gather_food")
	prof, _ := m.Profile("p")
	_, ok := prof.HasPattern(PatternHitAndRun)
	assert.False(t, ok)
}

func TestOtherPatterns(t *testing.T) {
	m := newMonitor(t)
	feed(m, "p", "trade_goods", "claim_territory", "trade_goods", "claim_territory", "claim_territory",
		"trade_goods", "gather_food", "trade_goods", "settle_land", "gather_food")
	prof, _ := m.Profile("p")

	_, burst := prof.HasPattern(PatternExpansionBurst)
	_, trade := prof.HasPattern(PatternTradeFocus)
	_, hoard := prof.HasPattern(PatternResourceHoarding)
	assert.True(t, burst)
	assert.True(t, trade)
	assert.False(t, hoard)
}

func TestWindowIsBoundedFIFO(t *testing.T) {
	m, err := New(Config{WindowSize: 3, AnalysisInterval: 5, MinActions: 5}, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		m.RecordAction("p", model.PlayerAction{Type: fmt.Sprintf("gather_%d", i)})
	}
	prof, _ := m.Profile("p")
	require.Len(t, prof.Recent, 3)
	assert.Equal(t, "gather_7", prof.Recent[0].Type)
	assert.Equal(t, "gather_9", prof.Recent[2].Type)
	assert.Equal(t, 10, prof.Total)
}

func TestRecordActionsSkipsSeenActions(t *testing.T) {
	m := newMonitor(t)
	batch := []model.PlayerAction{
		{Type: "attack_colony", Timestamp: t0},
		{Type: "attack_colony", Timestamp: t0.Add(time.Second)},
		{Type: "retreat", Timestamp: t0.Add(2 * time.Second)},
	}
	assert.Equal(t, 3, m.RecordActions("p", batch))
	assert.Equal(t, 0, m.RecordActions("p", batch), "second colony seeing the same snapshot")

	more := append(batch, model.PlayerAction{Type: "gather_food", Timestamp: t0.Add(3 * time.Second)})
	assert.Equal(t, 1, m.RecordActions("p", more))
}

func TestRecordActionsSkipsUnstampedAfterFirstSeen(t *testing.T) {
	m := newMonitor(t)
	require.Equal(t, 1, m.RecordActions("p", []model.PlayerAction{{Type: "attack_colony", Timestamp: t0}}))

	unstamped := []model.PlayerAction{{Type: "attack_colony"}, {Type: "retreat"}}
	assert.Equal(t, 0, m.RecordActions("p", unstamped))
	assert.Equal(t, 0, m.RecordActions("p", unstamped))

	prof, ok := m.Profile("p")
	require.True(t, ok)
	assert.Equal(t, 1, prof.Total)
}

func TestThreatAssessment(t *testing.T) {
	m := newMonitor(t)

	unknown := m.ThreatAssessment("ghost")
	assert.Equal(t, 0.0, unknown.Score)
	assert.Equal(t, ThreatLow, unknown.Level)

	feed(m, "warlord", repeat("military_buildup", 10)...)
	threat := m.ThreatAssessment("warlord")
	assert.Equal(t, ThreatCritical, threat.Level)
	assert.InDelta(t, 1.0, threat.Score, 1e-9)
	assert.Contains(t, threat.Reasons, "military preparation detected")

	feed(m, "farmer", repeat("gather_food", 10)...)
	assert.Less(t, m.ThreatAssessment("farmer").Score, 0.3)
}

func TestSummary(t *testing.T) {
	m := newMonitor(t)
	_, ok := m.Summary("nobody")
	assert.False(t, ok)

	feed(m, "p", repeat("attack_colony", 10)...)
	s, ok := m.Summary("p")
	require.True(t, ok)
	assert.Equal(t, PlaystyleAggressiveMilitary, s.Playstyle)
	assert.Equal(t, Military, s.Dominant)
	assert.Equal(t, 10, s.Actions)
	assert.Greater(t, s.PatternStability(), 0.0)
}

func TestForgetAndProfiles(t *testing.T) {
	m := newMonitor(t)
	feed(m, "a", "gather_food")
	feed(m, "b", "gather_food")
	assert.Len(t, m.Profiles(), 2)
	m.Forget("a")
	assert.Len(t, m.Profiles(), 1)
	_, ok := m.Profile("a")
	assert.False(t, ok)
}

func TestConcurrentPlayers(t *testing.T) {
	m := newMonitor(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.RecordAction(id, model.PlayerAction{Type: "attack_colony"})
			}
		}(fmt.Sprintf("p%d", i))
	}
	wg.Wait()
	for _, p := range m.Profiles() {
		assert.Equal(t, 50, p.Total)
	}
}

func TestBadRulesRejected(t *testing.T) {
	_, err := NewWithRules(DefaultConfig(), []rules.Rule{{Name: "broken", ConditionSrc: `Aggressiveness >`}}, nil)
	assert.Error(t, err)

	_, err = New(Config{}, nil)
	assert.Error(t, err)
}
