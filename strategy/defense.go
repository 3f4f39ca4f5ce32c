package strategy

import (
	"fmt"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Defensive responses.
const (
	ActionBuildDefenses    = "build_defenses"
	ActionTrainDefenders   = "train_defenders"
	ActionFortifyPerimeter = "fortify_perimeter"
	ActionEmergencyDefense = "emergency_defense"
	ActionPatrol           = "patrol"
)

type DefenseConfig struct {
	// DangerRadius is the distance within which a hostile target counts
	// as nearby.
	DangerRadius float64 `mapstructure:"danger_radius"`

	// EmergencyThreat is the threat level above which emergency measures
	// are considered.
	EmergencyThreat float64 `mapstructure:"emergency_threat"`
}

func DefaultDefenseConfig() DefenseConfig {
	return DefenseConfig{DangerRadius: 60, EmergencyThreat: 0.8}
}

func (c DefenseConfig) Validate() error {
	if c.DangerRadius <= 0 {
		return fmt.Errorf("defense danger_radius must be > 0")
	}
	if c.EmergencyThreat <= 0 || c.EmergencyThreat > 1 {
		return fmt.Errorf("defense emergency_threat must be in (0, 1]")
	}
	return nil
}

type DefenseAssessment struct {
	Assessment
	Threat         float64 `json:"threat"`
	NearbyHostiles int     `json:"nearbyHostiles"`
	// Pressure blends own threat level with hostiles in range.
	Pressure float64 `json:"pressure"`
}

// EvaluateDefense scores the defensive responses for the colony's current
// threat and nearby hostile forces.
func EvaluateDefense(cfg DefenseConfig, c model.Colony, w model.WorldSnapshot) DefenseAssessment {
	traits := TraitsFor(c.Personality)
	da := DefenseAssessment{Assessment: Assessment{Module: "defense"}, Threat: c.ThreatLevel}

	nearby := 0.0
	for _, t := range w.Targets {
		if t.Diplomacy == model.DiplomacyAllied {
			continue
		}
		if t.Position.Distance(c.Position) > cfg.DangerRadius {
			continue
		}
		if t.ThreatLevel > 0.5 || t.MilitaryBuildup > 0.5 {
			da.NearbyHostiles++
			nearby = max(nearby, t.ThreatLevel)
		}
	}
	threat := c.ThreatLevel
	da.Pressure = model.Clamp01(0.7*threat + 0.3*nearby)
	unmanned := 1 - c.Military.Ratio()
	lean := c.Behavior.Defense

	if threat > cfg.EmergencyThreat {
		da.add(ActionEmergencyDefense, threat*traits.Defense, "threat %.2f above emergency level", threat)
	}
	da.add(ActionBuildDefenses, (0.6*threat+0.2*unmanned+0.2*lean)*traits.Defense,
		"threat %.2f, defense lean %.2f", threat, lean)
	da.add(ActionTrainDefenders, (0.5*da.Pressure+0.4*unmanned)*traits.Defense,
		"%d of %d military capacity in use", c.Military.Used, c.Military.Total)
	da.add(ActionFortifyPerimeter, (0.5*threat+0.5*nearby)*traits.Defense,
		"%d hostile forces within %.0f", da.NearbyHostiles, cfg.DangerRadius)
	da.add(ActionPatrol, 0.2+0.2*(1-threat), "routine perimeter coverage")
	da.rank()
	return da
}
