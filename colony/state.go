package colony

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nstehr/vimy/vimy-colony/model"
)

// ErrInvalidTransition is returned for a state change outside the
// transition table. The colony keeps its state.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[model.AIState][]model.AIState{
	model.StateIdle:      {model.StateGathering, model.StateGrowing, model.StateExploring, model.StateDefending},
	model.StateGathering: {model.StateGrowing, model.StateDefending, model.StateExploring, model.StateAttacking, model.StateIdle},
	model.StateDefending: {model.StateGathering, model.StateGrowing, model.StateAttacking, model.StateIdle},
	model.StateAttacking: {model.StateDefending, model.StateGathering, model.StateGrowing},
	model.StateGrowing:   {model.StateGathering, model.StateDefending, model.StateExploring, model.StateAttacking, model.StateIdle},
	model.StateExploring: {model.StateGathering, model.StateGrowing, model.StateDefending, model.StateIdle},
}

// CanTransition reports whether from -> to is in the table. Staying in the
// same state is always allowed.
func CanTransition(from, to model.AIState) bool {
	if from == to {
		return to.Valid()
	}
	return slices.Contains(transitions[from], to)
}

// NextStates lists the states reachable from s.
func NextStates(s model.AIState) []model.AIState {
	return slices.Clone(transitions[s])
}

func transition(c *model.Colony, to model.AIState) error {
	if !CanTransition(c.State, to) {
		return fmt.Errorf("%s -> %s: %w", c.State, to, ErrInvalidTransition)
	}
	c.State = to
	return nil
}
