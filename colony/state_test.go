package colony

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nstehr/vimy/vimy-colony/model"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.AIState
		want     bool
	}{
		{model.StateIdle, model.StateGathering, true},
		{model.StateIdle, model.StateAttacking, false},
		{model.StateGathering, model.StateAttacking, true},
		{model.StateAttacking, model.StateIdle, false},
		{model.StateAttacking, model.StateDefending, true},
		{model.StateExploring, model.StateAttacking, false},
		{model.StateDefending, model.StateExploring, false},
		{model.StateGrowing, model.StateExploring, true},
		{model.StateDefending, model.StateDefending, true},
		{model.AIState("sleeping"), model.AIState("sleeping"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestEveryStateHasSuccessors(t *testing.T) {
	for _, s := range []model.AIState{
		model.StateIdle, model.StateGathering, model.StateDefending,
		model.StateAttacking, model.StateGrowing, model.StateExploring,
	} {
		next := NextStates(s)
		assert.NotEmpty(t, next, s)
		assert.NotContains(t, next, s)
	}
}

func TestTransitionRejectsAndKeepsState(t *testing.T) {
	c := model.NewColony("c1", model.Builder)
	err := transition(&c, model.StateAttacking)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, model.StateIdle, c.State)

	assert.NoError(t, transition(&c, model.StateGathering))
	assert.Equal(t, model.StateGathering, c.State)
}
