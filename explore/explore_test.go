package explore

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstehr/vimy/vimy-colony/memory"
	"github.com/nstehr/vimy/vimy-colony/model"
)

type knowledge map[memory.Category]int

func (k knowledge) Count(cat memory.Category) int { return k[cat] }

func newPlanner(t *testing.T) *Planner {
	t.Helper()
	p, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	return p
}

func builder() model.Colony {
	c := model.NewColony("c1", model.Builder)
	c.Position = model.Position{X: 500, Y: 500}
	c.Population = 100
	c.Behavior.Aggression = 0.2
	return c
}

func types(objs []Objective) []ObjectiveType {
	var out []ObjectiveType
	for _, o := range objs {
		out = append(out, o.Type)
	}
	return out
}

func TestPatternFor(t *testing.T) {
	assert.Equal(t, ModeCautious, PatternFor(model.Defensive).Mode)
	assert.Equal(t, ModeExpansive, PatternFor(model.Expansionist).Mode)
	assert.Equal(t, PatternFor(model.Builder), PatternFor("nobody"))
	for _, p := range []model.Personality{model.Aggressive, model.Defensive, model.Expansionist, model.Opportunist, model.Militant, model.Builder} {
		pat := PatternFor(p)
		assert.Greater(t, pat.Radius, 0.0, p)
		assert.Greater(t, pat.ScoutRatio, 0.0, p)
	}
}

func TestObjectivesFromNeeds(t *testing.T) {
	objs := Objectives(PatternFor(model.Builder), Needs{Colony: builder(), ResourceNeed: 0.5}, 5, 0.35)
	assert.Equal(t, []ObjectiveType{ResourceDiscovery, TerritoryExpansion, TradeRouteDiscovery}, types(objs))
	assert.InDelta(t, 0.85, objs[0].Priority, 1e-9)
	assert.Equal(t, 3, objs[0].Scouts)
	assert.Equal(t, 2, objs[1].Scouts)
	assert.Equal(t, 1, objs[2].Scouts)

	limited := Objectives(PatternFor(model.Builder), Needs{Colony: builder(), ResourceNeed: 0.5}, 2, 0.35)
	assert.Equal(t, []ObjectiveType{ResourceDiscovery, TerritoryExpansion}, types(limited))
}

func TestObjectivesUseKnowledge(t *testing.T) {
	known := knowledge{memory.DiscoveredResources: 5, memory.TradeOpportunities: 2}
	objs := Objectives(PatternFor(model.Builder), Needs{Colony: builder(), ResourceNeed: 0.5, Knowledge: known}, 5, 0.35)
	for _, o := range objs {
		if o.Type == ResourceDiscovery {
			assert.InDelta(t, 0.65, o.Priority, 1e-9)
		}
		assert.NotEqual(t, TradeRouteDiscovery, o.Type)
	}
}

func TestThreatObjectiveForCautiousColony(t *testing.T) {
	c := model.NewColony("c1", model.Defensive)
	c.ThreatLevel = 0.8
	objs := Objectives(PatternFor(model.Defensive), Needs{Colony: c}, 5, 0.3)
	require.NotEmpty(t, objs)
	assert.Equal(t, ThreatAssessment, objs[0].Type)
	assert.Equal(t, 1.0, objs[0].Priority)
	assert.Equal(t, 5, objs[0].Scouts)
}

func TestAvailableScoutsAndAllocate(t *testing.T) {
	c := builder()
	assert.Equal(t, 10, AvailableScouts(PatternFor(model.Builder), c))
	c.ScoutMissions = []model.ScoutMission{{Scouts: 4}, {Scouts: 8}}
	assert.Equal(t, 0, AvailableScouts(PatternFor(model.Builder), c))

	objs := []Objective{{Type: ResourceDiscovery, Scouts: 3}, {Type: TerritoryExpansion, Scouts: 2}, {Type: TradeRouteDiscovery, Scouts: 1}}
	got := Allocate(objs, 4)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Scouts)
	assert.Equal(t, 1, got[1].Scouts)
	assert.Empty(t, Allocate(objs, 0))
}

func TestPlanLaunchesMissions(t *testing.T) {
	p := newPlanner(t)
	plan := p.Plan(rand.New(rand.NewSource(1)), Needs{Colony: builder(), ResourceNeed: 0.5}, nil, nil)
	require.Len(t, plan.Launched, 3)
	assert.Equal(t, 10, plan.Available)
	ids := map[string]bool{}
	for i, m := range plan.Launched {
		assert.Equal(t, string(plan.Assignments[i].Objective.Type), m.Objective)
		assert.Equal(t, plan.Assignments[i].Scouts, m.Scouts)
		assert.Equal(t, model.MissionMoving, m.State)
		assert.Len(t, m.Route, 3)
		assert.GreaterOrEqual(t, m.EstimatedDuration, 3)
		assert.NotEmpty(t, m.ID)
		ids[m.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestPlanSkipsActiveObjectivesAndRespectsSlots(t *testing.T) {
	p := newPlanner(t)
	c := builder()
	c.ScoutMissions = []model.ScoutMission{{ID: "m0", Objective: string(ResourceDiscovery), Scouts: 2}}
	plan := p.Plan(rand.New(rand.NewSource(1)), Needs{Colony: c, ResourceNeed: 0.5}, nil, nil)
	for _, m := range plan.Launched {
		assert.NotEqual(t, string(ResourceDiscovery), m.Objective)
	}
	assert.Equal(t, 8, plan.Available)

	c.ScoutMissions = make([]model.ScoutMission, 5)
	plan = p.Plan(rand.New(rand.NewSource(1)), Needs{Colony: c, ResourceNeed: 0.5}, nil, nil)
	assert.Empty(t, plan.Launched)
}

func TestTargetGeometry(t *testing.T) {
	p := newPlanner(t)
	rng := rand.New(rand.NewSource(7))
	c := model.NewColony("c1", model.Aggressive)
	c.Position = model.Position{X: 500, Y: 500}
	pat := PatternFor(model.Aggressive)
	cfg := DefaultConfig()

	for i := 0; i < 20; i++ {
		d := c.Position.Distance(p.Target(rng, ResourceDiscovery, pat, c, nil))
		assert.LessOrEqual(t, d, cfg.SpiralStep*math.Sqrt(float64(cfg.SpiralTurns))+1e-9)

		d = c.Position.Distance(p.Target(rng, TradeRouteDiscovery, pat, c, nil))
		assert.GreaterOrEqual(t, d, pat.Radius-1e-9)
		assert.LessOrEqual(t, d, pat.Radius*cfg.LongRangeFactor+1e-9)

		d = c.Position.Distance(p.Target(rng, TerritoryExpansion, pat, c, nil))
		assert.InDelta(t, 10*math.Sqrt(c.TerritorySize)*cfg.AdjacentFactor, d, 1e-6)
	}

	hostile := []model.Target{
		{ID: "far", Position: model.Position{X: 500, Y: 1400}, Diplomacy: model.DiplomacyHostile},
		{ID: "near", Position: model.Position{X: 700, Y: 500}, Diplomacy: model.DiplomacyHostile, StrategicValue: 0.9},
		{ID: "friend", Position: model.Position{X: 510, Y: 500}, Diplomacy: model.DiplomacyAllied},
	}
	dest := p.Target(rng, ThreatAssessment, pat, c, hostile)
	assert.InDelta(t, 700, dest.X, 1e-6)
	assert.InDelta(t, 500, dest.Y, 1e-6)

	dest = p.Target(rng, StrategicPositioning, pat, c, hostile)
	assert.InDelta(t, 600, dest.X, 1e-6)
	assert.InDelta(t, 40, math.Abs(dest.Y-500), 1e-6)
}

func TestTargetsStayOnMap(t *testing.T) {
	p := newPlanner(t)
	rng := rand.New(rand.NewSource(3))
	c := model.NewColony("c1", model.Expansionist)
	for i := 0; i < 50; i++ {
		dest := p.Target(rng, TradeRouteDiscovery, PatternFor(model.Expansionist), c, nil)
		assert.GreaterOrEqual(t, dest.X, 0.0)
		assert.GreaterOrEqual(t, dest.Y, 0.0)
	}
}

func waterGrid(cols, rows int, land func(col, row int) bool) *model.TerrainGrid {
	g := &model.TerrainGrid{Cols: cols, Rows: rows, CellW: 100, CellH: 100, Grid: make([]model.TerrainType, cols*rows)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !land(c, r) {
				g.Grid[r*cols+c] = model.TerrainWater
			}
		}
	}
	return g
}

func TestRouteAvoidsImpassableTerrain(t *testing.T) {
	p := newPlanner(t)
	g := waterGrid(10, 10, func(col, _ int) bool { return col != 5 && col != 6 })
	route := p.Route(model.Position{X: 50, Y: 50}, model.Position{X: 950, Y: 50}, ResourceDiscovery, 0.5, g)
	require.NotEmpty(t, route)
	for _, wp := range route {
		assert.True(t, g.Passable(wp.Position), wp.Position)
	}
	assert.Equal(t, model.ActionInvestigate, route[len(route)-1].Action)

	flooded := waterGrid(10, 10, func(int, int) bool { return false })
	assert.Empty(t, p.Route(model.Position{X: 50, Y: 50}, model.Position{X: 950, Y: 50}, ResourceDiscovery, 0.5, flooded))

	plan := p.Plan(rand.New(rand.NewSource(1)), Needs{Colony: builder(), ResourceNeed: 0.5}, flooded, nil)
	assert.Empty(t, plan.Launched)
	assert.NotEmpty(t, plan.Assignments)
}

func TestRouteActions(t *testing.T) {
	p := newPlanner(t)
	route := p.Route(model.Position{}, model.Position{X: 300, Y: 0}, ThreatAssessment, 0.3, nil)
	require.Len(t, route, 3)
	assert.Equal(t, model.ActionSafetyCheck, route[0].Action)
	assert.Equal(t, model.ActionSafetyCheck, route[1].Action)
	assert.Equal(t, model.ActionStealthInvestigate, route[2].Action)

	route = p.Route(model.Position{}, model.Position{X: 300, Y: 0}, ThreatAssessment, 0.8, nil)
	assert.Equal(t, model.ActionRapidSurvey, route[0].Action)
	assert.Equal(t, model.ActionInvestigate, route[2].Action)
}

func mission(actions ...model.WaypointAction) model.ScoutMission {
	m := model.ScoutMission{ID: "m1", Objective: string(ResourceDiscovery), Scouts: 2, State: model.MissionMoving, EstimatedDuration: len(actions), RiskTolerance: 0.5}
	for i, a := range actions {
		m.Route = append(m.Route, model.Waypoint{Position: model.Position{X: float64(100 * (i + 1)), Y: 0}, Action: a})
	}
	return m
}

func TestAdvanceVisitsWaypointsAndDiscovers(t *testing.T) {
	p := newPlanner(t)
	m := mission(model.ActionRapidSurvey, model.ActionRapidSurvey, model.ActionInvestigate)
	sightings := []model.Sighting{
		{Kind: "resource", Resource: model.Stone, Position: model.Position{X: 110, Y: 0}, Value: 0.5},
		{Kind: "trade_route", Position: model.Position{X: 310, Y: 0}, Value: 0.8},
	}

	m = p.Advance(m, sightings, 1)
	assert.Equal(t, 1, m.Duration)
	assert.InDelta(t, 1.0/3, m.Progress, 1e-9)
	assert.Equal(t, 1, m.NextWaypoint)
	assert.True(t, m.Route[0].Visited)
	assert.Equal(t, model.MissionExploring, m.State)
	require.Len(t, m.Discoveries, 1)
	assert.InDelta(t, 0.3, m.Discoveries[0].Value, 1e-9)

	m = p.Advance(m, sightings, 2)
	assert.Len(t, m.Discoveries, 1)

	m = p.Advance(m, sightings, 3)
	assert.Equal(t, model.MissionReturning, m.State)
	assert.True(t, m.Done())
	require.Len(t, m.Discoveries, 2)
	assert.InDelta(t, 0.8, m.Discoveries[1].Value, 1e-9)

	again := p.Advance(m, sightings, 4)
	assert.Equal(t, m.Duration, again.Duration)
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	p := newPlanner(t)
	m := mission(model.ActionInvestigate)
	_ = p.Advance(m, []model.Sighting{{Kind: "site", Position: model.Position{X: 100}}}, 1)
	assert.False(t, m.Route[0].Visited)
	assert.Empty(t, m.Discoveries)
	assert.Zero(t, m.Duration)
}

func TestSafetyCheckAbortsOnThreat(t *testing.T) {
	p := newPlanner(t)
	m := mission(model.ActionSafetyCheck, model.ActionInvestigate)
	m.RiskTolerance = 0.3
	m.EstimatedDuration = 2
	sightings := []model.Sighting{{Kind: "army", OwnerID: "p1", Position: model.Position{X: 120, Y: 0}, Value: 0.9}}

	active, reports := p.Step([]model.ScoutMission{m}, sightings, 5)
	assert.Empty(t, active)
	require.Len(t, reports, 1)
	r := reports[0]
	assert.True(t, r.Aborted)
	assert.InDelta(t, 0.9, r.ThreatEstimate, 1e-9)
	require.Len(t, r.Intelligence, 1)
	assert.Equal(t, "p1", r.Intelligence[0].OwnerID)
	assert.Equal(t, 5, r.Intelligence[0].Tick)
}

func TestStepKeepsUnfinishedMissions(t *testing.T) {
	p := newPlanner(t)
	long := mission(model.ActionRapidSurvey, model.ActionInvestigate)
	long.EstimatedDuration = 10
	short := mission(model.ActionInvestigate)
	short.ID = "m2"

	active, reports := p.Step([]model.ScoutMission{long, short}, nil, 1)
	require.Len(t, active, 1)
	assert.Equal(t, "m1", active[0].ID)
	require.Len(t, reports, 1)
	assert.Equal(t, "m2", reports[0].MissionID)
	assert.False(t, reports[0].Aborted)
}

func TestReportWrites(t *testing.T) {
	r := Report{
		MissionID: "m1",
		Objective: string(ResourceDiscovery),
		Discoveries: []model.Discovery{
			{Kind: "resource", Resource: model.Stone, Value: 0.5},
			{Kind: "trade_route", Value: 0.4},
			{Kind: "hazard", Value: 0.2},
		},
		Intelligence: []model.Intel{{OwnerID: "p1", Threat: 0.6}},
	}
	var cats []memory.Category
	for _, w := range r.Writes() {
		cats = append(cats, w.Category)
	}
	assert.Equal(t, []memory.Category{
		memory.DiscoveredResources, memory.TradeOpportunities, memory.TerritoryKnowledge,
		memory.ThreatAssessments, memory.ScoutReports,
	}, cats)

	store, err := memory.New(memory.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, store.Apply(r.Writes()))
	assert.Equal(t, 1, store.Count(memory.DiscoveredResources))
	assert.Equal(t, 1, store.Count(memory.ScoutReports))
}

func TestThreatUpdate(t *testing.T) {
	assert.Equal(t, 0.4, ThreatUpdate(0.4, nil))
	assert.Equal(t, 0.4, ThreatUpdate(0.4, []Report{{}}))
	got := ThreatUpdate(0.2, []Report{{Intelligence: []model.Intel{{Threat: 0.9}}, ThreatEstimate: 0.9}})
	assert.InDelta(t, 0.7*0.2+0.3*0.9, got, 1e-9)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxObjectives = 6
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
