package trigger

import (
	"fmt"
	"time"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Kind names one of the independent attack triggers.
type Kind string

const (
	ResourceThreshold    Kind = "resource_threshold"
	TerritoryProximity   Kind = "territory_proximity"
	TimeBased            Kind = "time_based"
	PlayerWeakness       Kind = "player_weakness"
	StrategicOpportunity Kind = "strategic_opportunity"
	DefensiveNecessity   Kind = "defensive_necessity"
	EconomicPressure     Kind = "economic_pressure"
	DiplomaticSituation  Kind = "diplomatic_situation"
)

// Kinds lists every trigger in evaluation order.
var Kinds = []Kind{
	ResourceThreshold, TerritoryProximity, TimeBased, PlayerWeakness,
	StrategicOpportunity, DefensiveNecessity, EconomicPressure, DiplomaticSituation,
}

// AttackType is the scale of attack a combined score calls for.
type AttackType string

const (
	Raid     AttackType = "raid"
	Skirmish AttackType = "skirmish"
	Assault  AttackType = "assault"
	Siege    AttackType = "siege"
	Campaign AttackType = "campaign"
)

// AttackTypes lists attack types from smallest to largest.
var AttackTypes = []AttackType{Raid, Skirmish, Assault, Siege, Campaign}

// Band maps a score range onto an attack type. A score below Below falls
// in this band.
type Band struct {
	Type        AttackType    `mapstructure:"type"`
	Below       float64       `mapstructure:"below"`
	Preparation time.Duration `mapstructure:"preparation"`
}

type Config struct {
	Weights   map[Kind]float64              `mapstructure:"weights"`
	Cooldowns map[AttackType]time.Duration  `mapstructure:"cooldowns"`
	Bands     []Band                        `mapstructure:"bands"`
	Modifiers map[model.Personality]float64 `mapstructure:"modifiers"`

	AttackThreshold     float64       `mapstructure:"attack_threshold"`
	FireThreshold       float64       `mapstructure:"fire_threshold"`
	ProximityRange      float64       `mapstructure:"proximity_range"`
	PeaceInterval       time.Duration `mapstructure:"peace_interval"`
	HistoryLimit        int           `mapstructure:"history_limit"`
	HousingPerTerritory float64       `mapstructure:"housing_per_territory"`
}

// DefaultConfig returns the stock tuning. Weights sum to 1.
func DefaultConfig() Config {
	return Config{
		Weights: map[Kind]float64{
			ResourceThreshold:    0.15,
			TerritoryProximity:   0.12,
			TimeBased:            0.08,
			PlayerWeakness:       0.18,
			StrategicOpportunity: 0.15,
			DefensiveNecessity:   0.17,
			EconomicPressure:     0.10,
			DiplomaticSituation:  0.05,
		},
		Cooldowns: map[AttackType]time.Duration{
			Raid:     2 * time.Minute,
			Skirmish: 3 * time.Minute,
			Assault:  5 * time.Minute,
			Siege:    8 * time.Minute,
			Campaign: 15 * time.Minute,
		},
		Bands: []Band{
			{Type: Raid, Below: 0.45},
			{Type: Skirmish, Below: 0.6, Preparation: 30 * time.Second},
			{Type: Assault, Below: 0.75, Preparation: time.Minute},
			{Type: Siege, Below: 0.9, Preparation: 2 * time.Minute},
			{Type: Campaign, Below: 1.01, Preparation: 5 * time.Minute},
		},
		Modifiers: map[model.Personality]float64{
			model.Aggressive:   1.2,
			model.Militant:     1.25,
			model.Opportunist:  1.1,
			model.Expansionist: 1.0,
			model.Defensive:    0.8,
			model.Builder:      0.75,
		},
		AttackThreshold:     0.6,
		FireThreshold:       0.5,
		ProximityRange:      150,
		PeaceInterval:       10 * time.Minute,
		HistoryLimit:        100,
		HousingPerTerritory: 2,
	}
}

func (c Config) Validate() error {
	sum := 0.0
	for _, k := range Kinds {
		w, ok := c.Weights[k]
		if !ok || w < 0 {
			return fmt.Errorf("trigger weight for %q missing or negative", k)
		}
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("trigger weights must sum to 1, got %.3f", sum)
	}
	for _, t := range AttackTypes {
		if c.Cooldowns[t] <= 0 {
			return fmt.Errorf("trigger cooldown for %q must be > 0", t)
		}
	}
	if len(c.Bands) == 0 {
		return fmt.Errorf("trigger bands must not be empty")
	}
	for i := 1; i < len(c.Bands); i++ {
		if c.Bands[i].Below <= c.Bands[i-1].Below {
			return fmt.Errorf("trigger bands must be increasing")
		}
	}
	if c.Bands[len(c.Bands)-1].Below <= 1 {
		return fmt.Errorf("last trigger band must cover a score of 1")
	}
	if c.AttackThreshold <= 0 || c.AttackThreshold > 1 {
		return fmt.Errorf("trigger attack_threshold must be in (0, 1]")
	}
	if c.ProximityRange <= 0 || c.PeaceInterval <= 0 || c.HousingPerTerritory <= 0 {
		return fmt.Errorf("trigger proximity_range, peace_interval and housing_per_territory must be > 0")
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("trigger history_limit must be >= 1")
	}
	return nil
}

func (c Config) band(score float64) Band {
	for _, b := range c.Bands {
		if score < b.Below {
			return b
		}
	}
	return c.Bands[len(c.Bands)-1]
}

func (c Config) modifier(p model.Personality) float64 {
	if m, ok := c.Modifiers[p]; ok {
		return m
	}
	return 1
}
