package monitor

import (
	"fmt"
	"math"
	"slices"

	"github.com/nstehr/vimy/vimy-colony/model"
	"github.com/nstehr/vimy/vimy-colony/rules"
)

// StyleEnv is the environment playstyle rules are evaluated against.
type StyleEnv struct {
	Aggressiveness float64
	Expansion      float64
	Economic       float64
	MilitaryFocus  float64
	Risk           float64
	Resistance     float64
	Actions        int
}

// DefaultPlaystyleRules classify a metric vector. The first matching rule
// names the playstyle.
func DefaultPlaystyleRules() []rules.Rule {
	return []rules.Rule{
		{Name: "aggressive-military", Priority: 100, ConditionSrc: `Aggressiveness > 0.7 && MilitaryFocus > 0.6`, Outcome: string(PlaystyleAggressiveMilitary)},
		{Name: "rusher", Priority: 90, ConditionSrc: `Aggressiveness > 0.6 && Risk > 0.7`, Outcome: string(PlaystyleRusher)},
		{Name: "expansionist", Priority: 80, ConditionSrc: `Expansion > 0.6`, Outcome: string(PlaystyleExpansionist)},
		{Name: "economic-builder", Priority: 70, ConditionSrc: `Economic > 0.6 && Aggressiveness < 0.4`, Outcome: string(PlaystyleEconomicBuilder)},
		{Name: "defensive-turtle", Priority: 60, ConditionSrc: `MilitaryFocus > 0.5 && Aggressiveness < 0.3`, Outcome: string(PlaystyleDefensiveTurtle)},
		{Name: "opportunist", Priority: 50, ConditionSrc: `Resistance > 0.7`, Outcome: string(PlaystyleOpportunist)},
		{Name: "balanced", Priority: 0, ConditionSrc: `true`, Outcome: string(PlaystyleBalanced)},
	}
}

// frequencies returns the cumulative and recent-window share of each
// category.
func frequencies(p Profile) (total, recent map[Category]float64) {
	total = make(map[Category]float64, len(Categories))
	recent = make(map[Category]float64, len(Categories))
	if p.Total > 0 {
		for c, n := range p.Counts {
			total[c] = float64(n) / float64(p.Total)
		}
	}
	if len(p.Recent) > 0 {
		for _, o := range p.Recent {
			recent[o.Category]++
		}
		for c := range recent {
			recent[c] /= float64(len(p.Recent))
		}
	}
	return total, recent
}

func computeMetrics(p Profile) Metrics {
	freq, recent := frequencies(p)
	blend := func(c Category) float64 { return 0.4*freq[c] + 0.6*recent[c] }

	attackShare := 0.0
	if len(p.Recent) > 0 {
		n := 0
		for _, o := range p.Recent {
			if isAttack(o.Type) {
				n++
			}
		}
		attackShare = float64(n) / float64(len(p.Recent))
	}

	aggr := model.Clamp01(2*blend(Military) + 0.5*attackShare)
	exp := model.Clamp01(2*blend(Expansion) + 0.5*blend(Exploration))
	return Metrics{
		Aggressiveness:       aggr,
		ExpansionTendency:    exp,
		EconomicFocus:        model.Clamp01(2*blend(Economic) + 0.5*blend(Trade) + 0.3*blend(Technology)),
		MilitaryFocus:        model.Clamp01(1.5 * (blend(Military) + 0.5*blend(Defensive))),
		RiskTolerance:        model.Clamp01(0.5 + 0.4*aggr + 0.2*exp - blend(Defensive)),
		AdaptationResistance: adaptationResistance(p.Recent),
	}
}

// adaptationResistance measures how hard a player is to pin down: the
// normalized entropy of recent categories averaged with how often
// consecutive actions switch category.
func adaptationResistance(window []Observed) float64 {
	if len(window) < 2 {
		return 0
	}
	counts := make(map[Category]int)
	switches := 0
	for i, o := range window {
		counts[o.Category]++
		if i > 0 && window[i-1].Category != o.Category {
			switches++
		}
	}
	entropy := 0.0
	n := float64(len(window))
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log(p)
	}
	diversity := entropy / math.Log(float64(len(Categories)))
	switchRate := float64(switches) / float64(len(window)-1)
	return model.Clamp01(0.5*diversity + 0.5*switchRate)
}

func detectPatterns(window []Observed) []Pattern {
	if len(window) == 0 {
		return nil
	}
	var out []Pattern
	n := float64(len(window))
	counts := make(map[Category]int)
	for _, o := range window {
		counts[o.Category]++
	}
	share := func(c Category) float64 { return float64(counts[c]) / n }

	// Dominant category; ties go to the earlier category in Categories.
	dom, domShare := Category(""), 0.0
	for _, c := range Categories {
		if s := share(c); s > domShare {
			dom, domShare = c, s
		}
	}
	if domShare > 0.6 {
		out = append(out, Pattern{
			Type:        PatternResourceHoarding,
			Confidence:  model.Clamp01(domShare),
			Description: fmt.Sprintf("%.0f%% of recent actions are %s", domShare*100, dom),
			Predicted:   "continued_" + string(dom) + "_focus",
		})
	}

	longest, run := 0, 0
	for _, o := range window {
		if o.Category == Military || o.Category == Defensive {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	if longest >= 3 {
		out = append(out, Pattern{
			Type:        PatternMilitaryPreparation,
			Confidence:  math.Min(1, 0.4+0.1*float64(longest)),
			Description: fmt.Sprintf("%d consecutive military or defensive actions", longest),
			Predicted:   "imminent_attack",
		})
	}

	if c := counts[Expansion]; c >= 3 {
		out = append(out, Pattern{
			Type:        PatternExpansionBurst,
			Confidence:  math.Min(1, float64(c)/5),
			Description: fmt.Sprintf("%d expansion actions in the recent window", c),
			Predicted:   "territorial_claims",
		})
	}

	if s := share(Defensive); s > 0.4 {
		out = append(out, Pattern{
			Type:        PatternDefensivePosturing,
			Confidence:  model.Clamp01(s),
			Description: fmt.Sprintf("%.0f%% of recent actions are defensive", s*100),
			Predicted:   "turtling",
		})
	}

	if s := share(Trade); s > 0.3 {
		out = append(out, Pattern{
			Type:        PatternTradeFocus,
			Confidence:  model.Clamp01(s * 1.5),
			Description: fmt.Sprintf("%.0f%% of recent actions are trade", s*100),
			Predicted:   "trade_network",
		})
	}

	attacks, withdrawals := 0, 0
	for i, o := range window {
		if !isAttack(o.Type) {
			continue
		}
		attacks++
		if i+1 < len(window) && isWithdrawal(window[i+1].Type, window[i+1].Category) {
			withdrawals++
		}
	}
	if attacks >= 2 {
		if ratio := float64(withdrawals) / float64(attacks); ratio > 0.6 {
			out = append(out, Pattern{
				Type:        PatternHitAndRun,
				Confidence:  model.Clamp01(ratio),
				Description: fmt.Sprintf("%d of %d attacks followed by a withdrawal", withdrawals, attacks),
				Predicted:   "harassment_raids",
			})
		}
	}
	return out
}

var patternThreatWeight = map[PatternType]float64{
	PatternMilitaryPreparation: 1.0,
	PatternHitAndRun:           0.8,
	PatternExpansionBurst:      0.5,
	PatternResourceHoarding:    0.3,
	PatternDefensivePosturing:  0.1,
	PatternTradeFocus:          0.1,
}

func assessThreat(p Profile) Threat {
	patternThreat := 0.0
	for _, pat := range p.Patterns {
		patternThreat = math.Max(patternThreat, patternThreatWeight[pat.Type]*pat.Confidence)
	}
	m := p.Metrics
	score := model.Clamp01(0.4*m.Aggressiveness + 0.3*m.MilitaryFocus + 0.3*patternThreat)

	t := Threat{PlayerID: p.PlayerID, Score: score, Level: threatLevel(score)}
	if m.Aggressiveness > 0.6 {
		t.Reasons = append(t.Reasons, fmt.Sprintf("high aggressiveness (%.2f)", m.Aggressiveness))
		t.Recommendations = append(t.Recommendations, "strengthen defenses")
	}
	if m.MilitaryFocus > 0.6 {
		t.Reasons = append(t.Reasons, fmt.Sprintf("strong military focus (%.2f)", m.MilitaryFocus))
		t.Recommendations = append(t.Recommendations, "increase military production")
	}
	for _, pat := range p.Patterns {
		switch pat.Type {
		case PatternMilitaryPreparation:
			t.Reasons = append(t.Reasons, "military preparation detected")
			t.Recommendations = append(t.Recommendations, "prepare for incoming attack")
		case PatternHitAndRun:
			t.Reasons = append(t.Reasons, "hit-and-run raids detected")
			t.Recommendations = append(t.Recommendations, "fortify outlying positions")
		case PatternExpansionBurst:
			t.Reasons = append(t.Reasons, "rapid expansion")
			t.Recommendations = append(t.Recommendations, "contest nearby territory")
		}
	}
	if len(t.Reasons) == 0 {
		t.Reasons = []string{"no significant threat indicators"}
	}
	if len(t.Recommendations) == 0 {
		t.Recommendations = []string{"continue monitoring"}
	}
	return t
}

func dominant(counts map[Category]int) Category {
	best, bestN := Category(""), 0
	for _, c := range Categories {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return best
}

func sortedPatterns(ps []Pattern) []Pattern {
	slices.SortStableFunc(ps, func(a, b Pattern) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})
	return ps
}
