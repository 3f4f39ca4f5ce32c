package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Growth foci.
const (
	ActionExpandTerritory  = "expand_territory"
	ActionGrowPopulation   = "grow_population"
	ActionDevelopEconomy   = "develop_economy"
	ActionStrengthenForces = "strengthen_military"
)

type GrowthConfig struct {
	// BaseRate is the per-tick population growth rate with ample food
	// and housing.
	BaseRate float64 `mapstructure:"base_rate"`

	// HousingPerTerritory is how many colonists one unit of territory holds.
	HousingPerTerritory float64 `mapstructure:"housing_per_territory"`

	// Consumption and production are per colonist per tick.
	FoodUpkeep  float64 `mapstructure:"food_upkeep"`
	WaterUpkeep float64 `mapstructure:"water_upkeep"`
	Production  float64 `mapstructure:"production"`

	// TerritoryRate is territory gained per tick while growing, scaled by
	// the expansion share.
	TerritoryRate float64 `mapstructure:"territory_rate"`

	HistoryLimit int `mapstructure:"history_limit"`

	// Population thresholds for developing, established and advanced.
	PhaseThresholds [3]int `mapstructure:"phase_thresholds"`
}

func DefaultGrowthConfig() GrowthConfig {
	return GrowthConfig{
		BaseRate:            0.02,
		HousingPerTerritory: 2,
		FoodUpkeep:          0.05,
		WaterUpkeep:         0.03,
		Production:          0.3,
		TerritoryRate:       2,
		HistoryLimit:        50,
		PhaseThresholds:     [3]int{40, 100, 250},
	}
}

func (c GrowthConfig) Validate() error {
	if c.BaseRate <= 0 || c.BaseRate > 1 {
		return fmt.Errorf("growth base_rate must be in (0, 1]")
	}
	if c.HousingPerTerritory <= 0 {
		return fmt.Errorf("growth housing_per_territory must be > 0")
	}
	if c.FoodUpkeep < 0 || c.WaterUpkeep < 0 || c.Production < 0 || c.TerritoryRate < 0 {
		return fmt.Errorf("growth rates must be >= 0")
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("growth history_limit must be >= 1")
	}
	t := c.PhaseThresholds
	if t[0] <= 0 || t[1] <= t[0] || t[2] <= t[1] {
		return fmt.Errorf("growth phase_thresholds must be increasing")
	}
	return nil
}

type GrowthAssessment struct {
	Assessment
	Crowding        float64 `json:"crowding"`
	FoodSufficiency float64 `json:"foodSufficiency"`
}

// EvaluateGrowth picks the colony's dominant growth focus.
func EvaluateGrowth(cfg GrowthConfig, c model.Colony) GrowthAssessment {
	traits := TraitsFor(c.Personality)
	ga := GrowthAssessment{Assessment: Assessment{Module: "growth"}}

	ga.Crowding = crowding(cfg, c)
	ga.FoodSufficiency = model.Clamp01(c.Resource(model.Food) / math.Max(float64(c.Population)*cfg.FoodUpkeep*20, 1))
	sufficiency := stockSufficiency(c)

	ga.add(ActionExpandTerritory, 0.5*ga.Crowding+0.3*c.Behavior.Expansion+traits.Expansion,
		"crowding %.2f", ga.Crowding)
	ga.add(ActionGrowPopulation, 0.6*ga.FoodSufficiency*(1-ga.Crowding)+0.2,
		"food covers %.0f%% of upkeep, crowding %.2f", ga.FoodSufficiency*100, ga.Crowding)
	ga.add(ActionDevelopEconomy, 0.5*(1-sufficiency)+0.3+traits.Economy,
		"stockpiles at %.0f%% of target", sufficiency*100)
	ga.add(ActionStrengthenForces, 0.5*c.ThreatLevel+0.3*c.Behavior.Aggression+0.2*(1-c.Military.Ratio())*0.5+traits.Military,
		"threat %.2f, aggression %.2f", c.ThreatLevel, c.Behavior.Aggression)
	ga.rank()
	return ga
}

func crowding(cfg GrowthConfig, c model.Colony) float64 {
	housing := c.TerritorySize * cfg.HousingPerTerritory
	if housing <= 0 {
		return 1
	}
	return model.Clamp01(float64(c.Population) / housing)
}

// stockSufficiency is the mean fill level of every stockpile against its
// default target.
func stockSufficiency(c model.Colony) float64 {
	th := DefaultResourceConfig().Thresholds
	sum := 0.0
	for _, k := range model.ResourceKinds {
		sum += model.Clamp01(c.Resource(k) / th[k].Target)
	}
	return sum / float64(len(model.ResourceKinds))
}

// GrowthChanges are the effects of elapsed ticks on a colony.
type GrowthChanges struct {
	PopulationDelta int                            `json:"populationDelta"`
	TerritoryDelta  float64                        `json:"territoryDelta"`
	ResourceDelta   map[model.ResourceKind]float64 `json:"resourceDelta"`
	Phase           model.DevelopmentPhase         `json:"phase"`
	PhaseChanged    bool                           `json:"phaseChanged"`
	Record          *model.GrowthRecord            `json:"record,omitempty"`
}

// PhaseFor maps population onto a development phase.
func (c GrowthConfig) PhaseFor(population int) model.DevelopmentPhase {
	t := c.PhaseThresholds
	switch {
	case population >= t[2]:
		return model.PhaseAdvanced
	case population >= t[1]:
		return model.PhaseEstablished
	case population >= t[0]:
		return model.PhaseDeveloping
	}
	return model.PhaseEarly
}

var phaseRank = map[model.DevelopmentPhase]int{
	model.PhaseEarly: 0, model.PhaseDeveloping: 1, model.PhaseEstablished: 2, model.PhaseAdvanced: 3,
}

var productionSplit = map[model.ResourceKind]float64{
	model.Food: 0.4, model.Water: 0.2, model.Wood: 0.2, model.Stone: 0.1, model.Minerals: 0.1,
}

// AdvanceGrowth computes population, territory, stockpile and phase
// changes for elapsed ticks. Stockpiles never go negative or above storage
// capacity and the phase never regresses.
func AdvanceGrowth(cfg GrowthConfig, c model.Colony, elapsed int, now time.Time) GrowthChanges {
	gc := GrowthChanges{Phase: c.DevelopmentPhase, ResourceDelta: make(map[model.ResourceKind]float64)}
	if elapsed <= 0 {
		return gc
	}
	pop := float64(c.Population)
	ticks := float64(elapsed)
	economy := c.Allocation[model.FocusEconomy]
	if economy == 0 {
		economy = 0.25
	}

	produced := pop * cfg.Production * economy * ticks
	for _, k := range model.ResourceKinds {
		gc.ResourceDelta[k] = produced * productionSplit[k]
	}
	gc.ResourceDelta[model.Food] -= pop * cfg.FoodUpkeep * ticks
	gc.ResourceDelta[model.Water] -= pop * cfg.WaterUpkeep * ticks
	for _, k := range model.ResourceKinds {
		cur := c.Resource(k)
		next := cur + gc.ResourceDelta[k]
		if c.StorageCapacity > 0 {
			next = math.Min(next, c.StorageCapacity)
		}
		next = math.Max(next, 0)
		gc.ResourceDelta[k] = next - cur
	}

	foodFactor := 1.0
	if need := pop * cfg.FoodUpkeep * ticks; need > 0 {
		foodFactor = model.Clamp01(c.Resource(model.Food) / (need * 2))
	}
	room := 1 - crowding(cfg, c)
	gain := int(pop * cfg.BaseRate * foodFactor * room * ticks)
	housing := int(c.TerritorySize * cfg.HousingPerTerritory)
	if c.Population+gain > housing {
		gain = max(housing-c.Population, 0)
	}
	if c.Resource(model.Food) == 0 && c.Population > 1 {
		// Starvation.
		gain = -max(c.Population/20, 1)
	}
	gc.PopulationDelta = gain

	if c.State == model.StateGrowing {
		gc.TerritoryDelta = cfg.TerritoryRate * c.Allocation[model.FocusExpansion] * ticks
	}

	newPop := c.Population + gain
	if phase := cfg.PhaseFor(newPop); phaseRank[phase] > phaseRank[c.DevelopmentPhase] {
		gc.Phase = phase
		gc.PhaseChanged = true
	}
	if gain != 0 || gc.PhaseChanged || gc.TerritoryDelta > 0 {
		gc.Record = &model.GrowthRecord{
			Tick:           c.Tick,
			Time:           now,
			Population:     newPop,
			TerritorySize:  c.TerritorySize + gc.TerritoryDelta,
			Phase:          gc.Phase,
			PopulationGain: gain,
		}
	}
	return gc
}
