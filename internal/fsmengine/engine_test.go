package fsmengine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apexfsm/internal/fsmdef"
	"apexfsm/internal/fsmerrors"
	"apexfsm/internal/fsmhost"
	"apexfsm/internal/fsmregistry"
)

// fakeEntity is an in-memory fsmhost.Entity used to exercise the engine
// without a database, including simulated CAS races for the concurrent
// modification scenario.
type fakeEntity struct {
	mu    sync.Mutex
	key   string
	class string
	attrs map[string]any
}

func newFakeEntity(class, key, column, initial string) *fakeEntity {
	return &fakeEntity{key: key, class: class, attrs: map[string]any{column: initial}}
}

func (f *fakeEntity) GetKey() any             { return f.key }
func (f *fakeEntity) GetMorphClass() string   { return f.class }
func (f *fakeEntity) Exists() bool            { return true }
func (f *fakeEntity) Save() error             { return nil }

func (f *fakeEntity) GetAttribute(name string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attrs[name]
}

func (f *fakeEntity) SetAttribute(name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrs[name] = value
}

func (f *fakeEntity) UpdateWhere(key any, column string, expected, newValue string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, _ := f.attrs[column].(string)
	if current != expected {
		return 0, nil
	}
	f.attrs[column] = newValue
	return 1, nil
}

func orderDef() fsmdef.FsmRuntimeDefinition {
	return fsmdef.FsmRuntimeDefinition{
		ModelClass: "Order",
		ColumnName: "status",
		States: map[string]fsmdef.StateDefinition{
			"pending": {Name: "pending"},
			"paid":    {Name: "paid"},
			"shipped": {Name: "shipped"},
		},
		Transitions: []fsmdef.TransitionDefinition{
			{
				FromState: strPtr("pending"), ToState: "paid", Event: "pay",
				Guards: []fsmdef.TransitionGuard{
					{CallableRef: fsmdef.CallableRef{Name: "hasFunds"}},
				},
			},
			{FromState: strPtr("paid"), ToState: "shipped", Event: "ship"},
		},
	}
}

// eventlessDef declares transitions with no Event at all, matching §8
// scenario S1's pending -> processing -> completed FSM literally: callers
// drive it with Perform(entity, column, target) and no event.
func eventlessDef() fsmdef.FsmRuntimeDefinition {
	return fsmdef.FsmRuntimeDefinition{
		ModelClass: "Order",
		ColumnName: "status",
		States: map[string]fsmdef.StateDefinition{
			"pending":    {Name: "pending"},
			"processing": {Name: "processing"},
			"completed":  {Name: "completed"},
		},
		Transitions: []fsmdef.TransitionDefinition{
			{FromState: strPtr("pending"), ToState: "processing"},
			{FromState: strPtr("processing"), ToState: "completed"},
		},
	}
}

func strPtr(s string) *string { return &s }

func newEngine(t *testing.T, def fsmdef.FsmRuntimeDefinition, container Container) (*Engine, *fsmregistry.Registry) {
	t.Helper()
	reg := fsmregistry.New()
	require.NoError(t, reg.Register(def))
	return New(Options{Registry: reg, Container: container}), reg
}

// S1: happy path pending -> paid with a passing guard.
func TestPerformHappyPath(t *testing.T) {
	container := NewMapContainer()
	container.RegisterGuard("hasFunds", func(ctx context.Context, input *fsmdef.TransitionInput, params map[string]any) (bool, error) {
		return true, nil
	})
	engine, _ := newEngine(t, orderDef(), container)

	entity := newFakeEntity("Order", "1", "status", "pending")
	_, err := engine.Perform(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "paid", Event: "pay",
	})
	require.NoError(t, err)
	assert.Equal(t, "paid", entity.GetAttribute("status"))
}

// S2: a denying guard blocks the transition and the state is unchanged.
func TestPerformGuardDenies(t *testing.T) {
	container := NewMapContainer()
	container.RegisterGuard("hasFunds", func(ctx context.Context, input *fsmdef.TransitionInput, params map[string]any) (bool, error) {
		return false, nil
	})
	engine, _ := newEngine(t, orderDef(), container)

	entity := newFakeEntity("Order", "1", "status", "pending")
	_, err := engine.Perform(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "paid", Event: "pay",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fsmerrors.ErrGuardFailed)
	assert.Equal(t, "pending", entity.GetAttribute("status"))
}

// S3: no transition matches the requested (from, to, event) triple.
func TestPerformInvalidTransition(t *testing.T) {
	engine, _ := newEngine(t, orderDef(), NewMapContainer())

	entity := newFakeEntity("Order", "1", "status", "pending")
	_, err := engine.Perform(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "shipped", Event: "ship",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fsmerrors.ErrInvalidTransition)
}

// racingEntity selects a transition normally but always loses its CAS
// update, simulating a concurrent writer that changed the row between the
// engine's state read and its persist step.
type racingEntity struct {
	*fakeEntity
}

func (r *racingEntity) UpdateWhere(key any, column string, expected, newValue string) (int64, error) {
	return 0, nil
}

// S4: a concurrent writer changes the row between state-read and CAS-update,
// so the update affects zero rows and Perform reports ConcurrentModification.
func TestPerformConcurrentModification(t *testing.T) {
	engine, _ := newEngine(t, orderDef(), NewMapContainer())

	entity := &racingEntity{newFakeEntity("Order", "1", "status", "paid")}
	_, err := engine.Perform(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "shipped", Event: "ship",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fsmerrors.ErrConcurrentModification)
	assert.Equal(t, "paid", entity.GetAttribute("status"))
}

func TestDryRunDoesNotMutate(t *testing.T) {
	container := NewMapContainer()
	container.RegisterGuard("hasFunds", func(ctx context.Context, input *fsmdef.TransitionInput, params map[string]any) (bool, error) {
		return true, nil
	})
	engine, _ := newEngine(t, orderDef(), container)

	entity := newFakeEntity("Order", "1", "status", "pending")
	outcome, err := engine.DryRun(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "paid", Event: "pay",
	})
	require.NoError(t, err)
	assert.True(t, outcome.CanTransition)
	assert.Equal(t, "pending", entity.GetAttribute("status"))
}

// S1 (literal): an FSM whose transitions carry no event must still be
// drivable by Perform/CanTransition/DryRun called with no event.
func TestPerformEventlessTransition(t *testing.T) {
	engine, _ := newEngine(t, eventlessDef(), NewMapContainer())

	entity := newFakeEntity("Order", "1", "status", "pending")
	_, err := engine.Perform(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "processing",
	})
	require.NoError(t, err)
	assert.Equal(t, "processing", entity.GetAttribute("status"))

	can, err := engine.CanTransition(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "completed",
	})
	require.NoError(t, err)
	assert.True(t, can)

	_, err = engine.Perform(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", entity.GetAttribute("status"))
}

// A caller that explicitly passes the wildcard event only matches
// transitions explicitly declared with EventWildcard, not event-less ones.
func TestExplicitWildcardEventDoesNotMatchEventlessTransition(t *testing.T) {
	engine, _ := newEngine(t, eventlessDef(), NewMapContainer())

	entity := newFakeEntity("Order", "1", "status", "pending")
	_, err := engine.Perform(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "processing", Event: fsmdef.EventWildcard,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fsmerrors.ErrInvalidTransition)
}

func TestIdempotentSelfTransition(t *testing.T) {
	engine, _ := newEngine(t, orderDef(), NewMapContainer())

	entity := newFakeEntity("Order", "1", "status", "paid")
	_, err := engine.Perform(context.Background(), PerformRequest{
		Entity: entity, ColumnName: "status", TargetState: "paid", Event: "*",
	})
	require.NoError(t, err)
	assert.Equal(t, "paid", entity.GetAttribute("status"))
}
