package explore

import (
	"fmt"

	"github.com/nstehr/vimy/vimy-colony/memory"
	"github.com/nstehr/vimy/vimy-colony/model"
)

// actionProfile scales sight radius and the value read off a sighting.
type actionProfile struct {
	reach    float64
	accuracy float64
	state    model.MissionState
}

var actions = map[model.WaypointAction]actionProfile{
	model.ActionInvestigate:        {reach: 1, accuracy: 1, state: model.MissionInvestigating},
	model.ActionStealthInvestigate: {reach: 0.8, accuracy: 0.9, state: model.MissionInvestigating},
	model.ActionRapidSurvey:        {reach: 1.2, accuracy: 0.6, state: model.MissionExploring},
	model.ActionSafetyCheck:        {reach: 0.6, accuracy: 0.5, state: model.MissionExploring},
}

func hostile(s model.Sighting) bool {
	return s.OwnerID != "" || s.Kind == "hostile" || s.Kind == "army"
}

// Advance moves a mission one tick: its duration grows, progress becomes
// elapsed over estimated, and every waypoint the progress has passed runs
// its action against the visible sightings. A safety check that spots a
// threat above the mission's risk tolerance sends the scouts home.
func (p *Planner) Advance(m model.ScoutMission, sightings []model.Sighting, tick int) model.ScoutMission {
	m = m.Clone()
	if m.Done() {
		return m
	}
	m.Duration++
	m.Progress = model.Clamp01(float64(m.Duration) / float64(max(1, m.EstimatedDuration)))
	m.State = model.MissionMoving

	n := len(m.Route)
	for m.NextWaypoint < n && m.Progress >= float64(m.NextWaypoint+1)/float64(n) {
		wp := &m.Route[m.NextWaypoint]
		wp.Visited = true
		m.NextWaypoint++
		if p.execute(&m, *wp, sightings, tick) {
			m.State = model.MissionReturning
			return m
		}
	}
	if m.Progress >= 1 {
		m.State = model.MissionReturning
	}
	return m
}

// execute runs a waypoint action and reports whether the mission aborts.
func (p *Planner) execute(m *model.ScoutMission, wp model.Waypoint, sightings []model.Sighting, tick int) bool {
	prof, ok := actions[wp.Action]
	if !ok {
		prof = actions[model.ActionRapidSurvey]
	}
	m.State = prof.state
	reach := p.cfg.SightRadius * prof.reach
	abort := false
	for _, s := range sightings {
		if wp.Position.Distance(s.Position) > reach {
			continue
		}
		if hostile(s) {
			if hasIntel(m, s) {
				continue
			}
			threat := model.Clamp01(s.Value)
			m.Intelligence = append(m.Intelligence, model.Intel{
				OwnerID:  s.OwnerID,
				Position: s.Position,
				Threat:   threat,
				Strength: s.Value,
				Tick:     tick,
			})
			if wp.Action == model.ActionSafetyCheck && threat > m.RiskTolerance {
				abort = true
			}
			continue
		}
		if hasDiscovery(m, s) {
			continue
		}
		m.Discoveries = append(m.Discoveries, model.Discovery{
			Kind:     s.Kind,
			Resource: s.Resource,
			Position: s.Position,
			Value:    s.Value * prof.accuracy,
			Tick:     tick,
		})
	}
	return abort
}

func hasIntel(m *model.ScoutMission, s model.Sighting) bool {
	for _, in := range m.Intelligence {
		if in.Position == s.Position && in.OwnerID == s.OwnerID {
			return true
		}
	}
	return false
}

func hasDiscovery(m *model.ScoutMission, s model.Sighting) bool {
	for _, d := range m.Discoveries {
		if d.Position == s.Position && d.Kind == s.Kind && d.Resource == s.Resource {
			return true
		}
	}
	return false
}

// Report is what a finished mission brings home.
type Report struct {
	MissionID      string            `json:"missionId"`
	Objective      string            `json:"objective"`
	Scouts         int               `json:"scouts"`
	Duration       int               `json:"duration"`
	Aborted        bool              `json:"aborted"`
	Discoveries    []model.Discovery `json:"discoveries"`
	Intelligence   []model.Intel     `json:"intelligence"`
	ThreatEstimate float64           `json:"threatEstimate"`
}

func reportFor(m model.ScoutMission) Report {
	r := Report{
		MissionID:    m.ID,
		Objective:    m.Objective,
		Scouts:       m.Scouts,
		Duration:     m.Duration,
		Aborted:      m.Progress < 1,
		Discoveries:  m.Discoveries,
		Intelligence: m.Intelligence,
	}
	for _, in := range m.Intelligence {
		r.ThreatEstimate = max(r.ThreatEstimate, in.Threat)
	}
	return r
}

// Step advances every active mission and drains the finished ones into
// reports. The returned slice replaces the colony's active missions.
func (p *Planner) Step(missions []model.ScoutMission, sightings []model.Sighting, tick int) ([]model.ScoutMission, []Report) {
	var (
		active  []model.ScoutMission
		reports []Report
	)
	for _, m := range missions {
		m = p.Advance(m, sightings, tick)
		if m.Done() {
			reports = append(reports, reportFor(m))
			continue
		}
		active = append(active, m)
	}
	return active, reports
}

// Writes turns the report into memory entries: resources, trade routes
// and other sites as discoveries, intel as threat assessments, and one
// scout report summarizing the mission.
func (r Report) Writes() []memory.Write {
	var ws []memory.Write
	for _, d := range r.Discoveries {
		w := memory.Write{
			Payload: memory.Payload{"kind": d.Kind, "value": d.Value, "mission": r.MissionID},
			Options: []memory.EntryOption{memory.At(d.Position), memory.Importance(d.Value)},
		}
		switch {
		case d.Resource != "":
			w.Category = memory.DiscoveredResources
			w.Payload["resource"] = string(d.Resource)
			w.Options = append(w.Options, memory.Tagged("resource", string(d.Resource)))
		case d.Kind == "trade_route":
			w.Category = memory.TradeOpportunities
			w.Options = append(w.Options, memory.Tagged("trade"))
		default:
			w.Category = memory.TerritoryKnowledge
			w.Options = append(w.Options, memory.Tagged(d.Kind))
		}
		ws = append(ws, w)
	}
	for _, in := range r.Intelligence {
		tags := []string{"scout"}
		if in.OwnerID != "" {
			tags = append(tags, in.OwnerID)
		}
		ws = append(ws, memory.Write{
			Category: memory.ThreatAssessments,
			Payload: memory.Payload{
				"owner": in.OwnerID, "threat": in.Threat, "strength": in.Strength, "source": "scout",
			},
			Options: []memory.EntryOption{memory.At(in.Position), memory.Importance(in.Threat), memory.Tagged(tags...)},
		})
	}
	ws = append(ws, memory.Write{
		Category: memory.ScoutReports,
		Payload: memory.Payload{
			"mission":      r.MissionID,
			"objective":    r.Objective,
			"scouts":       r.Scouts,
			"duration":     r.Duration,
			"aborted":      r.Aborted,
			"discoveries":  len(r.Discoveries),
			"intelligence": len(r.Intelligence),
			"summary":      fmt.Sprintf("%s: %d discoveries, %d contacts", r.Objective, len(r.Discoveries), len(r.Intelligence)),
		},
		Options: []memory.EntryOption{memory.Tagged("scout", r.Objective)},
	})
	return ws
}

// ThreatUpdate blends the colony's threat level with the highest threat
// its returning scouts reported. Without intelligence it is unchanged.
func ThreatUpdate(current float64, reports []Report) float64 {
	seen := false
	estimate := 0.0
	for _, r := range reports {
		if len(r.Intelligence) > 0 {
			seen = true
			estimate = max(estimate, r.ThreatEstimate)
		}
	}
	if !seen {
		return current
	}
	return model.Clamp01(0.7*current + 0.3*estimate)
}
