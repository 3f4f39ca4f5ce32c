package strategy

import "github.com/nstehr/vimy/vimy-colony/model"

// Traits are the fixed leanings a personality brings to every module.
type Traits struct {
	Attack    float64 // multiplier on attack viability
	Defense   float64 // multiplier on defensive responses
	Expansion float64 // additive bias toward territorial growth
	Economy   float64 // additive bias toward economic growth
	Military  float64 // additive bias toward military growth

	// Preferred lists the AI states this personality is most at home in.
	Preferred []model.AIState

	Resources map[model.ResourceKind]float64
}

var traitTable = map[model.Personality]Traits{
	model.Aggressive: {
		Attack: 1.15, Defense: 0.9, Military: 0.15,
		Preferred: []model.AIState{model.StateAttacking, model.StateGathering},
		Resources: map[model.ResourceKind]float64{model.Food: 1.0, model.Water: 0.9, model.Wood: 0.9, model.Stone: 0.8, model.Minerals: 1.3},
	},
	model.Defensive: {
		Attack: 0.8, Defense: 1.2, Military: 0.1,
		Preferred: []model.AIState{model.StateDefending, model.StateGathering},
		Resources: map[model.ResourceKind]float64{model.Food: 1.0, model.Water: 1.0, model.Wood: 1.1, model.Stone: 1.4, model.Minerals: 0.9},
	},
	model.Expansionist: {
		Attack: 0.95, Defense: 1.0, Expansion: 0.2,
		Preferred: []model.AIState{model.StateGrowing, model.StateExploring},
		Resources: map[model.ResourceKind]float64{model.Food: 1.2, model.Water: 1.0, model.Wood: 1.3, model.Stone: 0.9, model.Minerals: 0.8},
	},
	model.Opportunist: {
		Attack: 1.05, Defense: 1.0, Economy: 0.1,
		Preferred: []model.AIState{model.StateExploring, model.StateAttacking},
		Resources: map[model.ResourceKind]float64{model.Food: 1.0, model.Water: 1.0, model.Wood: 1.0, model.Stone: 1.0, model.Minerals: 1.1},
	},
	model.Militant: {
		Attack: 1.2, Defense: 1.05, Military: 0.2,
		Preferred: []model.AIState{model.StateAttacking, model.StateDefending},
		Resources: map[model.ResourceKind]float64{model.Food: 1.1, model.Water: 0.9, model.Wood: 0.8, model.Stone: 1.0, model.Minerals: 1.4},
	},
	model.Builder: {
		Attack: 0.75, Defense: 1.1, Economy: 0.2,
		Preferred: []model.AIState{model.StateGrowing, model.StateGathering},
		Resources: map[model.ResourceKind]float64{model.Food: 1.0, model.Water: 1.0, model.Wood: 1.3, model.Stone: 1.3, model.Minerals: 1.0},
	},
}

// TraitsFor returns the traits of p. Unknown personalities get neutral
// traits.
func TraitsFor(p model.Personality) Traits {
	if t, ok := traitTable[p]; ok {
		return t
	}
	return Traits{
		Attack: 1, Defense: 1,
		Preferred: []model.AIState{model.StateGathering},
		Resources: map[model.ResourceKind]float64{model.Food: 1, model.Water: 1, model.Wood: 1, model.Stone: 1, model.Minerals: 1},
	}
}

// Prefers reports whether s is one of the personality's preferred states.
func (t Traits) Prefers(s model.AIState) bool {
	for _, p := range t.Preferred {
		if p == s {
			return true
		}
	}
	return false
}
