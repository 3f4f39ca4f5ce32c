// Package explore plans scouting: it turns colony needs into prioritized
// objectives, allocates scouts, routes missions around impassable terrain
// and advances them tick by tick into discoveries and intelligence.
package explore

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/nstehr/vimy/vimy-colony/model"
)

const goldenAngle = 2.399963229728653

type Config struct {
	MaxObjectives int     `mapstructure:"max_objectives"`
	MinPriority   float64 `mapstructure:"min_priority"`
	MaxActive     int     `mapstructure:"max_active"`

	Waypoints   int     `mapstructure:"waypoints"`
	ScoutSpeed  float64 `mapstructure:"scout_speed"`  // map units per tick
	ActionTicks int     `mapstructure:"action_ticks"` // ticks spent at each waypoint
	MinDuration int     `mapstructure:"min_duration"`

	SpiralStep      float64 `mapstructure:"spiral_step"`
	SpiralTurns     int     `mapstructure:"spiral_turns"`
	AdjacentFactor  float64 `mapstructure:"adjacent_factor"`
	LongRangeFactor float64 `mapstructure:"long_range_factor"`
	MaxRing         int     `mapstructure:"max_ring"`
	SightRadius     float64 `mapstructure:"sight_radius"`
}

func DefaultConfig() Config {
	return Config{
		MaxObjectives:   5,
		MinPriority:     0.3,
		MaxActive:       5,
		Waypoints:       3,
		ScoutSpeed:      25,
		ActionTicks:     1,
		MinDuration:     3,
		SpiralStep:      30,
		SpiralTurns:     12,
		AdjacentFactor:  1.3,
		LongRangeFactor: 2,
		MaxRing:         3,
		SightRadius:     50,
	}
}

func (c Config) Validate() error {
	if c.MaxObjectives < 1 || c.MaxObjectives > 5 {
		return fmt.Errorf("explore max_objectives must be in [1, 5]")
	}
	if c.MaxActive < 1 {
		return fmt.Errorf("explore max_active must be >= 1")
	}
	if c.Waypoints < 1 {
		return fmt.Errorf("explore waypoints must be >= 1")
	}
	if c.ScoutSpeed <= 0 {
		return fmt.Errorf("explore scout_speed must be > 0")
	}
	if c.MinDuration < 1 {
		return fmt.Errorf("explore min_duration must be >= 1")
	}
	if c.SpiralTurns < 1 {
		return fmt.Errorf("explore spiral_turns must be >= 1")
	}
	if c.LongRangeFactor < 1 {
		return fmt.Errorf("explore long_range_factor must be >= 1")
	}
	if c.SightRadius <= 0 {
		return fmt.Errorf("explore sight_radius must be > 0")
	}
	return nil
}

// Planner is stateless apart from its config; randomness comes from the
// caller's per-colony source.
type Planner struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{cfg: cfg, logger: logger}, nil
}

// Plan is the outcome of one planning pass.
type Plan struct {
	Pattern     Pattern              `json:"pattern"`
	Objectives  []Objective          `json:"objectives"`
	Assignments []Assignment         `json:"assignments"`
	Available   int                  `json:"available"`
	Launched    []model.ScoutMission `json:"launched"`
}

// Plan derives objectives for the colony and launches missions for the
// ones it can staff. Objectives that already have an active mission are
// skipped. The colony is not modified; callers append Launched to its
// active missions.
func (p *Planner) Plan(rng *rand.Rand, n Needs, terrain *model.TerrainGrid, targets []model.Target) Plan {
	c := n.Colony
	pat := PatternFor(c.Personality)
	out := Plan{Pattern: pat}

	active := make(map[string]bool, len(c.ScoutMissions))
	for _, m := range c.ScoutMissions {
		active[m.Objective] = true
	}
	slots := p.cfg.MaxActive - len(c.ScoutMissions)
	if slots <= 0 {
		return out
	}

	for _, o := range Objectives(pat, n, p.cfg.MaxObjectives, p.cfg.MinPriority) {
		if !active[string(o.Type)] {
			out.Objectives = append(out.Objectives, o)
		}
	}
	out.Available = AvailableScouts(pat, c)
	out.Assignments = Allocate(out.Objectives, out.Available)

	for _, a := range out.Assignments {
		if len(out.Launched) >= slots {
			break
		}
		target := p.Target(rng, a.Objective.Type, pat, c, targets)
		route := p.Route(c.Position, target, a.Objective.Type, pat.RiskTolerance, terrain)
		if len(route) == 0 {
			p.logger.Debug("no passable route", "colony", c.ID, "objective", a.Objective.Type, "target", target)
			continue
		}
		m := model.ScoutMission{
			ID:                uuid.New().String(),
			Objective:         string(a.Objective.Type),
			Scouts:            a.Scouts,
			Route:             route,
			State:             model.MissionMoving,
			EstimatedDuration: p.estimate(c.Position, route),
			RiskTolerance:     pat.RiskTolerance,
			LaunchedTick:      c.Tick,
		}
		out.Launched = append(out.Launched, m)
	}
	return out
}

// Target picks a destination for an objective. Each objective type has
// its own geometry: resource discovery walks a spiral, territory
// expansion probes just past the border, threat assessment covers the
// perimeter, strategic positioning offsets toward valuable targets and
// trade-route discovery goes long range.
func (p *Planner) Target(rng *rand.Rand, t ObjectiveType, pat Pattern, c model.Colony, targets []model.Target) model.Position {
	origin := c.Position
	angle := rng.Float64() * 2 * math.Pi
	var dest model.Position
	switch t {
	case ResourceDiscovery:
		k := rng.Intn(p.cfg.SpiralTurns)
		r := math.Min(pat.Radius, p.cfg.SpiralStep*math.Sqrt(float64(k+1)))
		a := float64(k) * goldenAngle
		dest = origin.Offset(r*math.Cos(a), r*math.Sin(a))
	case TerritoryExpansion:
		r := 10 * math.Sqrt(math.Max(c.TerritorySize, 1)) * p.cfg.AdjacentFactor
		dest = origin.Offset(r*math.Cos(angle), r*math.Sin(angle))
	case ThreatAssessment:
		r := 0.8 * pat.Radius
		if tgt, ok := nearestHostile(origin, targets, 2*pat.Radius); ok {
			angle = math.Atan2(tgt.Position.Y-origin.Y, tgt.Position.X-origin.X)
		}
		dest = origin.Offset(r*math.Cos(angle), r*math.Sin(angle))
	case StrategicPositioning:
		if tgt, ok := mostStrategic(targets); ok {
			dx, dy := tgt.Position.X-origin.X, tgt.Position.Y-origin.Y
			side := 1.0
			if rng.Intn(2) == 0 {
				side = -1
			}
			dest = origin.Offset(dx/2-side*0.2*dy, dy/2+side*0.2*dx)
		} else {
			r := 0.6 * pat.Radius
			dest = origin.Offset(r*math.Cos(angle), r*math.Sin(angle))
		}
	default:
		r := pat.Radius * (1 + rng.Float64()*(p.cfg.LongRangeFactor-1))
		dest = origin.Offset(r*math.Cos(angle), r*math.Sin(angle))
	}
	return clampToMap(dest, nil)
}

// Route interpolates waypoints from origin to dest, moving each onto the
// nearest passable zone and dropping those with none in range.
func (p *Planner) Route(origin, dest model.Position, t ObjectiveType, risk float64, terrain *model.TerrainGrid) []model.Waypoint {
	n := p.cfg.Waypoints
	var route []model.Waypoint
	for i := 1; i <= n; i++ {
		f := float64(i) / float64(n)
		pos := clampToMap(origin.Offset((dest.X-origin.X)*f, (dest.Y-origin.Y)*f), terrain)
		pos, ok := terrain.NearestPassable(pos, p.cfg.MaxRing)
		if !ok {
			continue
		}
		if len(route) > 0 && route[len(route)-1].Position == pos {
			continue
		}
		action := model.ActionRapidSurvey
		if risk < 0.4 {
			action = model.ActionSafetyCheck
		}
		route = append(route, model.Waypoint{Position: pos, Action: action})
	}
	if len(route) > 0 {
		route[len(route)-1].Action = finalAction(t, risk)
	}
	return route
}

func finalAction(t ObjectiveType, risk float64) model.WaypointAction {
	switch t {
	case ThreatAssessment:
		if risk < 0.6 {
			return model.ActionStealthInvestigate
		}
		return model.ActionInvestigate
	case TerritoryExpansion, TradeRouteDiscovery:
		return model.ActionRapidSurvey
	default:
		return model.ActionInvestigate
	}
}

func (p *Planner) estimate(origin model.Position, route []model.Waypoint) int {
	dist := 0.0
	prev := origin
	for _, wp := range route {
		dist += prev.Distance(wp.Position)
		prev = wp.Position
	}
	ticks := int(math.Ceil(dist/p.cfg.ScoutSpeed)) + p.cfg.ActionTicks*len(route)
	return max(p.cfg.MinDuration, ticks)
}

func nearestHostile(origin model.Position, targets []model.Target, within float64) (model.Target, bool) {
	var best model.Target
	bestDist := math.Inf(1)
	for _, t := range targets {
		if t.Diplomacy == model.DiplomacyAllied {
			continue
		}
		if d := origin.Distance(t.Position); d <= within && d < bestDist {
			best, bestDist = t, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

func mostStrategic(targets []model.Target) (model.Target, bool) {
	var best model.Target
	found := false
	for _, t := range targets {
		if !found || t.StrategicValue > best.StrategicValue {
			best, found = t, true
		}
	}
	return best, found
}

// clampToMap keeps p at non-negative coordinates and, with a grid,
// inside its bounds.
func clampToMap(p model.Position, g *model.TerrainGrid) model.Position {
	p.X = math.Max(0, p.X)
	p.Y = math.Max(0, p.Y)
	if g != nil && g.Cols > 0 && g.Rows > 0 {
		p.X = math.Min(p.X, float64(g.Cols*g.CellW)-1)
		p.Y = math.Min(p.Y, float64(g.Rows*g.CellH)-1)
	}
	return p
}
