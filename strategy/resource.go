package strategy

import (
	"fmt"
	"math"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// Thresholds are the stock levels need is measured against.
type Thresholds struct {
	Critical float64 `mapstructure:"critical"`
	Low      float64 `mapstructure:"low"`
	Target   float64 `mapstructure:"target"`
}

type ResourceConfig struct {
	Thresholds map[model.ResourceKind]Thresholds `mapstructure:"thresholds"`

	// WorkerShare is the fraction of the population available for
	// gathering.
	WorkerShare float64 `mapstructure:"worker_share"`

	// FullStorage is the share of storage capacity above which a resource
	// needs no more gathering.
	FullStorage float64 `mapstructure:"full_storage"`
}

func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		Thresholds: map[model.ResourceKind]Thresholds{
			model.Food:     {Critical: 50, Low: 100, Target: 300},
			model.Water:    {Critical: 40, Low: 80, Target: 250},
			model.Wood:     {Critical: 30, Low: 80, Target: 250},
			model.Stone:    {Critical: 20, Low: 60, Target: 200},
			model.Minerals: {Critical: 10, Low: 40, Target: 150},
		},
		WorkerShare: 0.6,
		FullStorage: 0.9,
	}
}

func (c ResourceConfig) Validate() error {
	for _, k := range model.ResourceKinds {
		t, ok := c.Thresholds[k]
		if !ok {
			return fmt.Errorf("resource thresholds missing %q", k)
		}
		if t.Critical < 0 || t.Low < t.Critical || t.Target <= t.Low {
			return fmt.Errorf("resource thresholds for %q must satisfy 0 <= critical <= low < target", k)
		}
	}
	if c.WorkerShare <= 0 || c.WorkerShare > 1 {
		return fmt.Errorf("resource worker_share must be in (0, 1]")
	}
	if c.FullStorage <= 0 || c.FullStorage > 1 {
		return fmt.Errorf("resource full_storage must be in (0, 1]")
	}
	return nil
}

// ResourceAssessment ranks gather actions and splits the worker budget.
type ResourceAssessment struct {
	Assessment
	Needs    map[model.ResourceKind]float64 `json:"needs"`
	Weighted map[model.ResourceKind]float64 `json:"weighted"`
	Workers  map[model.ResourceKind]int     `json:"workers"`
	Critical []model.ResourceKind           `json:"critical"`
	Top      model.ResourceKind             `json:"top"`
}

// GatherAction is the option name for gathering kind.
func GatherAction(kind model.ResourceKind) string {
	return "gather_" + string(kind)
}

// Need scores how badly a colony needs more of kind: 1 below the critical
// floor, falling linearly to 0 at the target, 0 when storage is full.
func (c ResourceConfig) Need(kind model.ResourceKind, amount, capacity float64) float64 {
	t := c.Thresholds[kind]
	if capacity > 0 && amount >= capacity*c.FullStorage {
		return 0
	}
	switch {
	case amount < t.Critical:
		return 1
	case amount < t.Low:
		// 0.6 at the low mark, rising to 1 at the critical floor.
		return 0.6 + 0.4*(t.Low-amount)/math.Max(t.Low-t.Critical, 1)
	case amount < t.Target:
		return 0.6 * (t.Target - amount) / (t.Target - t.Low)
	}
	return 0
}

// EvaluateResources computes per-kind need, weights it by personality and
// allocates the worker budget proportionally. Rounding remainder goes to
// the highest-priority kind.
func EvaluateResources(cfg ResourceConfig, c model.Colony) ResourceAssessment {
	traits := TraitsFor(c.Personality)
	ra := ResourceAssessment{
		Assessment: Assessment{Module: "resource"},
		Needs:      make(map[model.ResourceKind]float64, len(model.ResourceKinds)),
		Weighted:   make(map[model.ResourceKind]float64, len(model.ResourceKinds)),
		Workers:    make(map[model.ResourceKind]int, len(model.ResourceKinds)),
	}

	total := 0.0
	for _, k := range model.ResourceKinds {
		amount := c.Resource(k)
		need := cfg.Need(k, amount, c.StorageCapacity)
		weighted := model.Clamp01(need * traits.Resources[k])
		ra.Needs[k] = need
		ra.Weighted[k] = weighted
		total += weighted
		if amount < cfg.Thresholds[k].Critical {
			ra.Critical = append(ra.Critical, k)
		}
		ra.add(GatherAction(k), weighted, "%s at %.0f (need %.2f)", k, amount, need)
	}
	ra.rank()
	ra.Top = model.Food
	if p, ok := ra.Primary(); ok && p.Priority > 0 {
		ra.Top = model.ResourceKind(p.Action[len("gather_"):])
	}

	budget := int(float64(c.Population) * cfg.WorkerShare)
	if budget <= 0 {
		return ra
	}
	if total <= 0 {
		ra.Workers[ra.Top] = budget
		return ra
	}
	assigned := 0
	for _, k := range model.ResourceKinds {
		n := int(float64(budget) * ra.Weighted[k] / total)
		ra.Workers[k] = n
		assigned += n
	}
	ra.Workers[ra.Top] += budget - assigned
	return ra
}
