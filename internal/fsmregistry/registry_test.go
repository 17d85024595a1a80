package fsmregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apexfsm/internal/fsmdef"
	"apexfsm/internal/fsmerrors"
)

func sampleDef() fsmdef.FsmRuntimeDefinition {
	return fsmdef.FsmRuntimeDefinition{
		ModelClass: "Order",
		ColumnName: "status",
		States: map[string]fsmdef.StateDefinition{
			"pending":    {Name: "pending"},
			"processing": {Name: "processing"},
		},
		Transitions: []fsmdef.TransitionDefinition{
			{FromState: strPtr("pending"), ToState: "processing", Event: "start"},
		},
	}
}

func strPtr(s string) *string { return &s }

func TestRegisterAndGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(sampleDef()))

	got, err := r.Get("Order", "status")
	require.NoError(t, err)
	assert.Len(t, got.States, 2)
	assert.Nil(t, got.InitialState)
}

func TestGetNotRegistered(t *testing.T) {
	r := New()
	_, err := r.Get("Order", "status")
	require.Error(t, err)
	assert.ErrorIs(t, err, fsmerrors.ErrNotRegistered)
}

func TestRegisterIdempotent(t *testing.T) {
	r := New()
	def := sampleDef()
	require.NoError(t, r.Register(def))
	require.NoError(t, r.Register(def)) // identical re-registration is a no-op
}

func TestRegisterConflict(t *testing.T) {
	r := New()
	def := sampleDef()
	require.NoError(t, r.Register(def))

	other := sampleDef()
	other.Description = "changed"
	err := r.Register(other)
	require.Error(t, err)
	assert.ErrorIs(t, err, fsmerrors.ErrInvalidArgument)
}

func TestRegisterRejectsUnknownStateReference(t *testing.T) {
	r := New()
	def := sampleDef()
	def.Transitions = append(def.Transitions, fsmdef.TransitionDefinition{
		FromState: strPtr("processing"), ToState: "nonexistent", Event: "finish",
	})
	err := r.Register(def)
	require.Error(t, err)
}
