package memory

import (
	"errors"
	"fmt"
	"time"
)

// Category partitions a colony's memory. Each category has its own
// capacity, salience and retention window.
type Category string

const (
	DiscoveredResources Category = "discovered_resources"
	ThreatAssessments   Category = "threat_assessments"
	PlayerInteractions  Category = "player_interactions"
	CombatOutcomes      Category = "combat_outcomes"
	TerritoryKnowledge  Category = "territory_knowledge"
	StrategicInsights   Category = "strategic_insights"
	TradeOpportunities  Category = "trade_opportunities"
	ScoutReports        Category = "scout_reports"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	DiscoveredResources, ThreatAssessments, PlayerInteractions, CombatOutcomes,
	TerritoryKnowledge, StrategicInsights, TradeOpportunities, ScoutReports,
}

// ErrUnknownCategory is returned for a category that has no configuration.
var ErrUnknownCategory = errors.New("unknown memory category")

// CategoryConfig tunes one category.
type CategoryConfig struct {
	Capacity  int           `mapstructure:"capacity"`
	Salience  float64       `mapstructure:"salience"`
	Retention time.Duration `mapstructure:"retention"`
}

// Config tunes a Store.
type Config struct {
	Categories map[Category]CategoryConfig `mapstructure:"categories"`

	// RelevanceFloor keeps old entries alive through Cleanup when their
	// relevance stays at or above it.
	RelevanceFloor float64 `mapstructure:"relevance_floor"`

	// RecencyHalfLife is the age at which the recency component halves.
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life"`

	// RelatedRadius is the distance at which spatial proximity stops
	// contributing to relatedness.
	RelatedRadius float64 `mapstructure:"related_radius"`
}

// DefaultConfig returns the stock category table.
func DefaultConfig() Config {
	return Config{
		Categories: map[Category]CategoryConfig{
			DiscoveredResources: {Capacity: 50, Salience: 0.7, Retention: 2 * time.Hour},
			ThreatAssessments:   {Capacity: 30, Salience: 0.9, Retention: 30 * time.Minute},
			PlayerInteractions:  {Capacity: 100, Salience: 0.6, Retention: 4 * time.Hour},
			CombatOutcomes:      {Capacity: 40, Salience: 0.8, Retention: 6 * time.Hour},
			TerritoryKnowledge:  {Capacity: 60, Salience: 0.5, Retention: 8 * time.Hour},
			StrategicInsights:   {Capacity: 20, Salience: 0.85, Retention: 12 * time.Hour},
			TradeOpportunities:  {Capacity: 25, Salience: 0.55, Retention: 3 * time.Hour},
			ScoutReports:        {Capacity: 40, Salience: 0.6, Retention: time.Hour},
		},
		RelevanceFloor:  0.7,
		RecencyHalfLife: 30 * time.Minute,
		RelatedRadius:   50,
	}
}

// Validate checks every category is configured with sane values.
func (c Config) Validate() error {
	for _, cat := range Categories {
		cc, ok := c.Categories[cat]
		if !ok {
			return fmt.Errorf("memory category %q: %w", cat, ErrUnknownCategory)
		}
		if cc.Capacity <= 0 {
			return fmt.Errorf("memory category %q: capacity must be > 0", cat)
		}
		if cc.Salience < 0 || cc.Salience > 1 {
			return fmt.Errorf("memory category %q: salience must be between 0 and 1", cat)
		}
		if cc.Retention <= 0 {
			return fmt.Errorf("memory category %q: retention must be > 0", cat)
		}
	}
	if c.RelevanceFloor < 0 || c.RelevanceFloor > 1 {
		return fmt.Errorf("memory relevance_floor must be between 0 and 1")
	}
	if c.RecencyHalfLife <= 0 {
		return fmt.Errorf("memory recency_half_life must be > 0")
	}
	if c.RelatedRadius <= 0 {
		return fmt.Errorf("memory related_radius must be > 0")
	}
	return nil
}
