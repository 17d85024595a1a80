package fsmengine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"apexfsm/internal/fsmdef"
	"apexfsm/internal/fsmerrors"
)

// resolvedGuard pairs a guard definition with its invocable function,
// resolved once before evaluation so a resolution failure is distinguished
// from a runtime guard failure.
type resolvedGuard struct {
	def fsmdef.TransitionGuard
	fn  fsmdef.GuardFunc
}

// evaluateGuards implements §4.4 in full: priority sort (descending,
// stable), and the three evaluation strategies, each with stopOnFailure /
// short-circuit semantics. Returns nil on pass, a *fsmerrors.TransitionError
// of kind GuardFailed or CallbackException on fail, or of kind
// MissingParameter when a guard cannot be resolved to a function.
func (e *Engine) evaluateGuards(ctx context.Context, guards []fsmdef.TransitionGuard, input *fsmdef.TransitionInput, strategy fsmdef.GuardEvaluation, modelClass, column string) error {
	if len(guards) == 0 {
		return nil
	}

	resolved := make([]resolvedGuard, 0, len(guards))
	for _, g := range guards {
		fn, err := e.resolveGuardFunc(g)
		if err != nil {
			return fsmerrors.New(fsmerrors.KindMissingParameter, modelClass, column, err.Error()).WithPhase("guards")
		}
		resolved = append(resolved, resolvedGuard{def: g, fn: fn})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].def.Priority > resolved[j].def.Priority
	})

	switch strategy {
	case fsmdef.GuardEvaluationAny:
		return e.evaluateAny(ctx, resolved, input, modelClass, column)
	case fsmdef.GuardEvaluationFirst:
		return e.evaluateFirst(ctx, resolved, input, modelClass, column)
	default:
		return e.evaluateAll(ctx, resolved, input, modelClass, column)
	}
}

func (e *Engine) runGuard(ctx context.Context, rg resolvedGuard, input *fsmdef.TransitionInput) (pass bool, err error) {
	params := mergeParams(rg.def.Parameters, input)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("guard %s panicked: %v", rg.def.label(), r)
		}
	}()
	return rg.fn(ctx, input, params)
}

func (e *Engine) evaluateAll(ctx context.Context, guards []resolvedGuard, input *fsmdef.TransitionInput, modelClass, column string) error {
	var failures []string
	for _, rg := range guards {
		pass, err := e.runGuard(ctx, rg, input)
		if err != nil {
			if rg.def.StopOnFailure {
				return fsmerrors.New(fsmerrors.KindCallbackException, modelClass, column, err.Error()).WithPhase("guards").WithCause(err)
			}
			failures = append(failures, rg.def.label()+": "+err.Error())
			continue
		}
		if pass != true {
			if rg.def.StopOnFailure {
				return fsmerrors.New(fsmerrors.KindGuardFailed, modelClass, column, rg.def.label()).WithPhase("guards")
			}
			failures = append(failures, rg.def.label())
		}
	}
	if len(failures) > 0 {
		return fsmerrors.New(fsmerrors.KindGuardFailed, modelClass, column, strings.Join(failures, "; ")).WithPhase("guards")
	}
	return nil
}

func (e *Engine) evaluateAny(ctx context.Context, guards []resolvedGuard, input *fsmdef.TransitionInput, modelClass, column string) error {
	var failures []string
	for _, rg := range guards {
		pass, err := e.runGuard(ctx, rg, input)
		if err != nil {
			if rg.def.StopOnFailure {
				return fsmerrors.New(fsmerrors.KindCallbackException, modelClass, column, err.Error()).WithPhase("guards").WithCause(err)
			}
			failures = append(failures, rg.def.label()+": "+err.Error())
			continue
		}
		if pass == true {
			return nil
		}
		failures = append(failures, rg.def.label())
	}
	return fsmerrors.New(fsmerrors.KindGuardFailed, modelClass, column, "all guards failed: "+strings.Join(failures, "; ")).WithPhase("guards")
}

func (e *Engine) evaluateFirst(ctx context.Context, guards []resolvedGuard, input *fsmdef.TransitionInput, modelClass, column string) error {
	for _, rg := range guards {
		pass, err := e.runGuard(ctx, rg, input)
		if err != nil {
			if rg.def.StopOnFailure {
				return fsmerrors.New(fsmerrors.KindCallbackException, modelClass, column, err.Error()).WithPhase("guards").WithCause(err)
			}
			// logged and skipped; continue to the next guard
			if e.zapLogger != nil {
				e.zapLogger.Warn("fsm guard failed, skipping", zap.String("guard", rg.def.label()), zap.Error(err))
			}
			continue
		}
		if pass == true {
			return nil
		}
		return fsmerrors.New(fsmerrors.KindGuardFailed, modelClass, column, rg.def.label()).WithPhase("guards")
	}
	return fsmerrors.New(fsmerrors.KindGuardFailed, modelClass, column, "no guard produced a decision").WithPhase("guards")
}

func (e *Engine) resolveGuardFunc(g fsmdef.TransitionGuard) (fsmdef.GuardFunc, error) {
	if g.Func != nil {
		fn, ok := g.Func.(fsmdef.GuardFunc)
		if !ok {
			return nil, fmt.Errorf("callable %s: Func is not a GuardFunc", g.label())
		}
		return fn, nil
	}
	if g.Name != "" {
		if e.container == nil {
			return nil, fmt.Errorf("callable %s: no container configured to resolve named guards", g.Name)
		}
		return e.container.ResolveGuard(g.Name)
	}
	return nil, fmt.Errorf("guard has neither Func nor Name set")
}

// mergeParams implements the parameter-assembly rule of §4.5: the
// callable's declared parameters merged with the ambient TransitionInput
// under the "input" key. Unused keys are simply ignored by callables that
// don't read them; null values are passed through unchanged.
func mergeParams(declared map[string]any, input *fsmdef.TransitionInput) map[string]any {
	merged := make(map[string]any, len(declared)+1)
	for k, v := range declared {
		merged[k] = v
	}
	merged["input"] = input
	return merged
}
