package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecipeState_String(t *testing.T) {
	tests := []struct {
		state RecipeState
		want  string
	}{
		{StateUnset, "unset"},
		{StateDiscovered, "discovered"},
		{StateRejected, "rejected"},
		{StateSearchIndexed, "search_indexed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestRecipeState_IsValid(t *testing.T) {
	tests := []struct {
		state RecipeState
		want  bool
	}{
		{StateDiscovered, true},
		{StateFetched, true},
		{StateParsed, true},
		{StateRejected, true},
		{StatePersisted, true},
		{StateCategoriesAttached, true},
		{StateImageResolved, true},
		{StateSearchIndexed, true},
		{StateUnset, false},
		{RecipeState("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.IsValid(), "RecipeState(%q).IsValid()", string(tt.state))
	}
}

func TestRecipeState_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from RecipeState
		to   RecipeState
		want bool
	}{
		{"discover", StateUnset, StateDiscovered, true},
		{"fetch", StateDiscovered, StateFetched, true},
		{"parse", StateFetched, StateParsed, true},
		{"reject", StateParsed, StateRejected, true},
		{"persist", StateParsed, StatePersisted, true},
		{"rejected can be refetched", StateRejected, StateFetched, true},
		{"persisted never rejected", StatePersisted, StateRejected, false},
		{"persisted never back to discovered", StateSearchIndexed, StateDiscovered, false},
		{"persisted never back to fetched", StateImageResolved, StateFetched, false},
		{"re-persist keeps persisted", StateSearchIndexed, StatePersisted, true},
		{"image after index", StateSearchIndexed, StateImageResolved, true},
		{"invalid target", StateParsed, RecipeState("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestRecipeState_Advance(t *testing.T) {
	assert.Equal(t, StateFetched, StateDiscovered.Advance(StateFetched))
	assert.Equal(t, StateFetched, StateRejected.Advance(StateFetched))
	// Once indexed, re-ingesting does not lose ground.
	assert.Equal(t, StateSearchIndexed, StateSearchIndexed.Advance(StatePersisted))
	assert.Equal(t, StateSearchIndexed, StateSearchIndexed.Advance(StateDiscovered))
	assert.Equal(t, StateImageResolved, StatePersisted.Advance(StateImageResolved))
}

func TestImageStatus_String(t *testing.T) {
	assert.Equal(t, "unset", ImageStatusUnset.String())
	assert.Equal(t, "placeholder", ImageStatusPlaceholder.String())
	assert.Equal(t, "success", ImageStatusSuccess.String())
}
