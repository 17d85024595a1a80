// Package fsmdef holds the immutable runtime-definition model consulted by
// the transition engine: states, transitions, guards, actions, callbacks and
// the composite FsmRuntimeDefinition keyed by (entity type, state column).
//
// Everything in this package is built once at startup and never mutated
// afterward; a definition value is safe to share across goroutines without
// locking.
package fsmdef

import (
	"context"
	"fmt"
)

// StateWildcard matches any prior state when no exact-from transition matches.
const StateWildcard = "*"

// EventWildcard matches any requested event at definition time. At request
// time it has a narrower meaning: a caller that passes EventWildcard matches
// only transitions explicitly declared with EventWildcard (see fsmengine).
const EventWildcard = "*"

// StateType classifies a StateDefinition's role in the machine.
type StateType string

const (
	StateTypeInitial      StateType = "initial"
	StateTypeIntermediate StateType = "intermediate"
	StateTypeFinal        StateType = "final"
	StateTypeError        StateType = "error"
)

// StateBehavior classifies how long a state is expected to be occupied.
type StateBehavior string

const (
	StateBehaviorTransient  StateBehavior = "transient"
	StateBehaviorPersistent StateBehavior = "persistent"
	StateBehaviorTerminal   StateBehavior = "terminal"
)

// TransitionType classifies how a transition is normally triggered.
type TransitionType string

const (
	TransitionTypeAutomatic  TransitionType = "automatic"
	TransitionTypeManual     TransitionType = "manual"
	TransitionTypeTriggered  TransitionType = "triggered"
	TransitionTypeConditional TransitionType = "conditional"
)

// TransitionBehavior classifies when the transition's side effects run.
type TransitionBehavior string

const (
	TransitionBehaviorImmediate TransitionBehavior = "immediate"
	TransitionBehaviorDeferred  TransitionBehavior = "deferred"
	TransitionBehaviorQueued    TransitionBehavior = "queued"
)

// GuardEvaluation selects the strategy used to combine multiple guards.
type GuardEvaluation string

const (
	GuardEvaluationAll   GuardEvaluation = "all"
	GuardEvaluationAny   GuardEvaluation = "any"
	GuardEvaluationFirst GuardEvaluation = "first"
)

// ActionTiming and CallbackTiming classify when a side effect runs relative
// to the persisted state change.
type ActionTiming string

const (
	ActionTimingBefore    ActionTiming = "before"
	ActionTimingAfter     ActionTiming = "after"
	ActionTimingOnSuccess ActionTiming = "on_success"
	ActionTimingOnFailure ActionTiming = "on_failure"
)

type CallbackTiming string

const (
	CallbackTimingOnEntry      CallbackTiming = "on_entry"
	CallbackTimingOnExit       CallbackTiming = "on_exit"
	CallbackTimingOnTransition CallbackTiming = "on_transition"
	CallbackTimingBeforeSave   CallbackTiming = "before_save"
	CallbackTimingAfterSave    CallbackTiming = "after_save"
)

// InputMode controls how a Perform call is allowed to affect persisted state.
type InputMode string

const (
	ModeNormal  InputMode = "normal"
	ModeDryRun  InputMode = "dry_run"
	ModeForce   InputMode = "force"
	ModeSilent  InputMode = "silent"
)

// InputSource records who initiated a transition attempt.
type InputSource string

const (
	SourceUser      InputSource = "user"
	SourceSystem    InputSource = "system"
	SourceAPI       InputSource = "api"
	SourceScheduler InputSource = "scheduler"
	SourceMigration InputSource = "migration"
)

// GuardFunc evaluates whether a transition may proceed. Parameters merges
// the guard's declared Parameters with the ambient TransitionInput, exactly
// as described for callable invocation: the callable reads its own keys out
// of params rather than the engine reflecting over its signature. Must
// return exactly true to count as a pass — any other value, including a
// non-boolean truthy one, is a deny.
type GuardFunc func(ctx context.Context, input *TransitionInput, params map[string]any) (bool, error)

// ActionFunc and CallbackFunc run a side effect and report failure by error.
type ActionFunc func(ctx context.Context, input *TransitionInput, params map[string]any) error
type CallbackFunc func(ctx context.Context, input *TransitionInput, params map[string]any) error

// CallableRef wraps one callable reference. Exactly one of Func or Name is
// set: Func covers the closure and bound-object+method cases (a Go function
// value already closes over its receiver, so those two source-language
// variants collapse into one here); Name covers the class-string and
// "Type@Method" service-spec cases, resolved from a Container by the engine
// at dispatch time. Queued callables must use Name — a Func cannot be
// serialized onto a queue, so the engine rejects Queued+Func at dispatch
// time with a LogicError, not at job-execution time.
type CallableRef struct {
	Name       string
	Func       any // GuardFunc, ActionFunc, or CallbackFunc depending on context
	Parameters map[string]any
	Priority   int
	Description string
}

// IsResolved reports whether this reference names a container-resolvable
// callable rather than holding a direct function value.
func (c CallableRef) IsResolved() bool { return c.Name != "" }

func (c CallableRef) label() string {
	if c.Description != "" {
		return c.Description
	}
	if c.Name != "" {
		return c.Name
	}
	return "<closure>"
}

// TransitionGuard wraps a guard callable with evaluation metadata.
type TransitionGuard struct {
	CallableRef
	StopOnFailure bool
}

// TransitionAction wraps an action callable with timing metadata.
type TransitionAction struct {
	CallableRef
	RunAfterTransition bool
	Timing             ActionTiming
	Queued             bool
}

// TransitionCallback wraps a state/transition-scoped side effect.
type TransitionCallback struct {
	CallableRef
	RunAfterTransition bool
	Timing             CallbackTiming
	ContinueOnFailure  bool
	Queued             bool
}

// TransitionInput is the request-scoped, immutable snapshot passed to every
// guard, action and callback for one transition attempt.
type TransitionInput struct {
	Model     any
	FromState *string
	ToState   string
	Context   map[string]any
	Event     string
	IsDryRun  bool
	Mode      InputMode
	Source    InputSource
	Metadata  map[string]any
	Timestamp int64 // unix nanos, stamped by the caller (see fsmengine.buildInput)
}

// Validate enforces the one cross-field invariant §3.6 names: ToState must
// be non-empty when Mode is normal.
func (t TransitionInput) Validate() error {
	if t.Mode == ModeNormal && t.ToState == "" {
		return fmt.Errorf("transition input: toState required in mode %q", ModeNormal)
	}
	return nil
}

// StateDefinition describes one state value of an FSM.
type StateDefinition struct {
	Name              string
	Description       string
	Type              StateType
	Category          string
	Behavior          StateBehavior
	Metadata          map[string]any
	IsTerminal        bool
	Priority          int
	OnEntryCallbacks  []TransitionCallback
	OnExitCallbacks   []TransitionCallback
}

// Terminal reports whether this state may not be a non-wildcard fromState.
func (s StateDefinition) Terminal() bool {
	return s.IsTerminal || s.Behavior == StateBehaviorTerminal
}

// TransitionDefinition describes one directed edge between states.
type TransitionDefinition struct {
	FromState             *string // nil means "no prior state"; StateWildcard means any state
	ToState               string
	Event                 string
	Guards                []TransitionGuard
	Actions               []TransitionAction
	OnTransitionCallbacks []TransitionCallback
	Type                  TransitionType
	Priority              int
	Behavior              TransitionBehavior
	GuardEvaluation       GuardEvaluation
	Metadata              map[string]any
	IsReversible          bool
	Timeout               int // seconds, advisory only (see §5)
	Description           string
}

// IsWildcardFrom reports whether this transition's fromState is the sentinel.
func (t TransitionDefinition) IsWildcardFrom() bool {
	return t.FromState != nil && *t.FromState == StateWildcard
}

// MatchesFrom reports whether this transition accepts the given canonical
// current-state string (nil means "no prior state").
func (t TransitionDefinition) MatchesFrom(current *string) bool {
	if t.IsWildcardFrom() {
		return true
	}
	if t.FromState == nil {
		return current == nil
	}
	return current != nil && *current == *t.FromState
}

// MatchesEvent implements the restricted wildcard-event matching rule: a
// caller-supplied EventWildcard matches only transitions declared with
// EventWildcard; a concrete caller event matches an exact or wildcard-declared
// transition event.
func (t TransitionDefinition) MatchesEvent(requested string) bool {
	if requested == EventWildcard {
		return t.Event == EventWildcard
	}
	return t.Event == requested || t.Event == EventWildcard
}

// FsmRuntimeDefinition is the composite, immutable definition for one
// (entity type, state column) pair.
type FsmRuntimeDefinition struct {
	ModelClass      string
	ColumnName      string
	States          map[string]StateDefinition
	Transitions     []TransitionDefinition // definition order preserved
	InitialState    *string
	ContextDTOClass string
	Description     string
}

// Validate enforces the invariants of §3.2: every fromState/toState either
// names a known state, is the wildcard sentinel (fromState only), or is nil
// (fromState only); InitialState, if set, names a known state.
func (d FsmRuntimeDefinition) Validate() error {
	for i, tr := range d.Transitions {
		if tr.FromState != nil && *tr.FromState != StateWildcard {
			if _, ok := d.States[*tr.FromState]; !ok {
				return fmt.Errorf("transition %d: unknown fromState %q", i, *tr.FromState)
			}
		}
		if tr.ToState != "" {
			if _, ok := d.States[tr.ToState]; !ok {
				return fmt.Errorf("transition %d: unknown toState %q", i, tr.ToState)
			}
		}
	}
	if d.InitialState != nil {
		if _, ok := d.States[*d.InitialState]; !ok {
			return fmt.Errorf("initialState %q is not a known state", *d.InitialState)
		}
	}
	return nil
}

// Key identifies a runtime definition within the Registry.
type Key struct {
	ModelClass string
	ColumnName string
}

func (k Key) String() string {
	return fmt.Sprintf("%s#%s", k.ModelClass, k.ColumnName)
}
