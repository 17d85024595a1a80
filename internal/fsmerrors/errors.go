// Package fsmerrors defines the error taxonomy shared by every FSM package:
// a fixed set of sentinel kinds plus a TransitionError wrapper that carries
// the phase/entity/column context needed to act on a failure, mirroring the
// errors.Is/errors.As pattern the host application uses for its own
// sentinel errors.
package fsmerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure without pinning it to a concrete error type.
type Kind string

const (
	KindNotRegistered         Kind = "NotRegistered"
	KindInvalidTransition     Kind = "InvalidTransition"
	KindGuardFailed           Kind = "GuardFailed"
	KindCallbackException     Kind = "CallbackException"
	KindConcurrentModification Kind = "ConcurrentModification"
	KindMissingParameter      Kind = "MissingParameter"
	KindInvalidArgument       Kind = "InvalidArgument"
	KindContextHydrationError Kind = "ContextHydrationError"
	KindLogicError            Kind = "LogicError"
)

// Sentinel errors for errors.Is checks against a bare Kind, independent of
// the wrapping TransitionError.
var (
	ErrNotRegistered          = errors.New(string(KindNotRegistered))
	ErrInvalidTransition      = errors.New(string(KindInvalidTransition))
	ErrGuardFailed            = errors.New(string(KindGuardFailed))
	ErrCallbackException      = errors.New(string(KindCallbackException))
	ErrConcurrentModification = errors.New(string(KindConcurrentModification))
	ErrMissingParameter       = errors.New(string(KindMissingParameter))
	ErrInvalidArgument        = errors.New(string(KindInvalidArgument))
	ErrContextHydrationError  = errors.New(string(KindContextHydrationError))
	ErrLogicError             = errors.New(string(KindLogicError))
)

func sentinelFor(k Kind) error {
	switch k {
	case KindNotRegistered:
		return ErrNotRegistered
	case KindInvalidTransition:
		return ErrInvalidTransition
	case KindGuardFailed:
		return ErrGuardFailed
	case KindCallbackException:
		return ErrCallbackException
	case KindConcurrentModification:
		return ErrConcurrentModification
	case KindMissingParameter:
		return ErrMissingParameter
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindContextHydrationError:
		return ErrContextHydrationError
	case KindLogicError:
		return ErrLogicError
	default:
		return errors.New(string(k))
	}
}

// TransitionError carries the context needed to act on a transition failure:
// which entity type and column, what states were involved, and which phase
// of §4.6 raised it.
type TransitionError struct {
	Kind       Kind
	ModelClass string
	ColumnName string
	FromState  *string
	ToState    string
	Phase      string
	Detail     string
	Err        error // underlying cause, e.g. a guard/action/callback panic recovery
}

func New(kind Kind, modelClass, columnName string, detail string) *TransitionError {
	return &TransitionError{Kind: kind, ModelClass: modelClass, ColumnName: columnName, Detail: detail}
}

func (e *TransitionError) Error() string {
	from := "<none>"
	if e.FromState != nil {
		from = *e.FromState
	}
	base := fmt.Sprintf("fsm %s: %s.%s %s->%s", e.Kind, e.ModelClass, e.ColumnName, from, e.ToState)
	if e.Phase != "" {
		base += fmt.Sprintf(" (phase=%s)", e.Phase)
	}
	if e.Detail != "" {
		base += ": " + e.Detail
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *TransitionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinelFor(e.Kind)
}

// Is lets errors.Is(err, fsmerrors.ErrGuardFailed) succeed against a
// *TransitionError of the matching Kind, without requiring the wrapped
// Err chain to also carry the sentinel.
func (e *TransitionError) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

func (e *TransitionError) WithPhase(phase string) *TransitionError {
	e.Phase = phase
	return e
}

func (e *TransitionError) WithStates(from *string, to string) *TransitionError {
	e.FromState = from
	e.ToState = to
	return e
}

func (e *TransitionError) WithCause(err error) *TransitionError {
	e.Err = err
	return e
}
