package fsmengine

import (
	"context"
	"fmt"

	"apexfsm/internal/fsmdef"
	"apexfsm/internal/fsmerrors"
	"apexfsm/internal/fsmqueue"
)

// runActions executes the given actions in definition order, filtering to
// those whose RunAfterTransition matches the requested phase. Queued
// actions are dispatched to the queue adapter instead of invoked inline.
func (e *Engine) runActions(ctx context.Context, actions []fsmdef.TransitionAction, input *fsmdef.TransitionInput, after bool, modelClass, column string) error {
	for _, a := range actions {
		if a.RunAfterTransition != after {
			continue
		}
		if a.Queued {
			if err := e.dispatchQueued(ctx, a.CallableRef, input); err != nil {
				return fsmerrors.New(fsmerrors.KindLogicError, modelClass, column, err.Error()).WithPhase("actions")
			}
			continue
		}
		fn, err := e.resolveActionFunc(a.CallableRef)
		if err != nil {
			return fsmerrors.New(fsmerrors.KindMissingParameter, modelClass, column, err.Error()).WithPhase("actions")
		}
		if err := e.invokeAction(ctx, fn, a.CallableRef, input); err != nil {
			return fsmerrors.New(fsmerrors.KindCallbackException, modelClass, column, err.Error()).WithPhase("actions").WithCause(err)
		}
	}
	return nil
}

// runCallbacks executes callbacks of one timing, in definition order.
// continueOnFailure governs whether a failing callback aborts the phase.
func (e *Engine) runCallbacks(ctx context.Context, callbacks []fsmdef.TransitionCallback, input *fsmdef.TransitionInput, timing fsmdef.CallbackTiming, modelClass, column string) error {
	for _, cb := range callbacks {
		if cb.Timing != timing {
			continue
		}
		if cb.Queued {
			if err := e.dispatchQueued(ctx, cb.CallableRef, input); err != nil {
				return fsmerrors.New(fsmerrors.KindLogicError, modelClass, column, err.Error()).WithPhase(string(timing))
			}
			continue
		}
		fn, err := e.resolveCallbackFunc(cb.CallableRef)
		if err != nil {
			return fsmerrors.New(fsmerrors.KindMissingParameter, modelClass, column, err.Error()).WithPhase(string(timing))
		}
		if err := e.invokeCallback(ctx, fn, cb.CallableRef, input); err != nil {
			if cb.ContinueOnFailure {
				continue
			}
			return fsmerrors.New(fsmerrors.KindCallbackException, modelClass, column, err.Error()).WithPhase(string(timing)).WithCause(err)
		}
	}
	return nil
}

func (e *Engine) invokeAction(ctx context.Context, fn fsmdef.ActionFunc, ref fsmdef.CallableRef, input *fsmdef.TransitionInput) (err error) {
	params := mergeParams(ref.Parameters, input)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", ref.label(), r)
		}
	}()
	return fn(ctx, input, params)
}

func (e *Engine) invokeCallback(ctx context.Context, fn fsmdef.CallbackFunc, ref fsmdef.CallableRef, input *fsmdef.TransitionInput) (err error) {
	params := mergeParams(ref.Parameters, input)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback %s panicked: %v", ref.label(), r)
		}
	}()
	return fn(ctx, input, params)
}

func (e *Engine) resolveActionFunc(ref fsmdef.CallableRef) (fsmdef.ActionFunc, error) {
	if ref.Func != nil {
		fn, ok := ref.Func.(fsmdef.ActionFunc)
		if !ok {
			return nil, fmt.Errorf("callable %s: Func is not an ActionFunc", ref.label())
		}
		return fn, nil
	}
	if ref.Name != "" {
		if e.container == nil {
			return nil, fmt.Errorf("callable %s: no container configured", ref.Name)
		}
		return e.container.ResolveAction(ref.Name)
	}
	return nil, fmt.Errorf("action has neither Func nor Name set")
}

func (e *Engine) resolveCallbackFunc(ref fsmdef.CallableRef) (fsmdef.CallbackFunc, error) {
	if ref.Func != nil {
		fn, ok := ref.Func.(fsmdef.CallbackFunc)
		if !ok {
			return nil, fmt.Errorf("callable %s: Func is not a CallbackFunc", ref.label())
		}
		return fn, nil
	}
	if ref.Name != "" {
		if e.container == nil {
			return nil, fmt.Errorf("callable %s: no container configured", ref.Name)
		}
		return e.container.ResolveCallback(ref.Name)
	}
	return nil, fmt.Errorf("callback has neither Func nor Name set")
}

// dispatchQueued enqueues a queued callable. Per §4.5/§8, a queued callable
// with a direct Func (closure or bound instance) is rejected fast with
// LogicError rather than being serialized.
func (e *Engine) dispatchQueued(ctx context.Context, ref fsmdef.CallableRef, input *fsmdef.TransitionInput) error {
	if e.queue == nil {
		return fmt.Errorf("queued callable %s: no queue adapter configured", ref.label())
	}
	snapshot := map[string]any{
		"fromState": input.FromState,
		"toState":   input.ToState,
		"event":     input.Event,
		"mode":      input.Mode,
		"source":    input.Source,
		"context":   input.Context,
	}
	return fsmqueue.Enqueue(ctx, e.queue, ref.Name, ref.Func != nil, ref.Parameters, snapshot)
}
