package fsmengine

import "apexfsm/internal/fsmdef"

// currentState implements §4.2: read the raw attribute, fall back to the
// definition's initial state when null.
func currentState(entity interface{ GetAttribute(string) any }, column string, def fsmdef.FsmRuntimeDefinition) *string {
	raw := entity.GetAttribute(column)
	if raw == nil {
		return def.InitialState
	}
	s, ok := raw.(string)
	if !ok {
		return def.InitialState
	}
	if s == "" {
		return def.InitialState
	}
	return &s
}

// matchRank classifies how specifically a transition matched, for the
// tie-break rule of §4.3: exact-from beats wildcard-from; within the same
// class, earlier definition order wins (callers iterate in order and keep
// the first best-ranked match, so ties never need a second pass).
type matchRank int

const (
	rankNone matchRank = iota
	rankWildcardFrom
	rankExactFrom
)

// findTransition selects the transition to run for Perform(entity, column,
// target[, event]), implementing §4.3 step 2-3 with the additional
// toState filter step 3 describes for Perform specifically.
func findTransition(def fsmdef.FsmRuntimeDefinition, from *string, target, event string) (fsmdef.TransitionDefinition, bool) {
	var (
		best     fsmdef.TransitionDefinition
		bestRank matchRank
		found    bool
	)

	for _, tr := range def.Transitions {
		if tr.ToState != target {
			continue
		}
		if !tr.MatchesFrom(from) {
			continue
		}
		if !tr.MatchesEvent(event) {
			continue
		}

		rank := rankExactFrom
		if tr.IsWildcardFrom() {
			rank = rankWildcardFrom
		}
		if !found || rank > bestRank {
			best = tr
			bestRank = rank
			found = true
		}
	}
	return best, found
}

// findAnyTransition backs Engine.EligibleTransitions: the broader form of
// §4.3 steps 1-2, without the Perform-specific toState filter.
func findAnyTransition(def fsmdef.FsmRuntimeDefinition, from *string, event string) []fsmdef.TransitionDefinition {
	var out []fsmdef.TransitionDefinition
	for _, tr := range def.Transitions {
		if tr.MatchesFrom(from) && tr.MatchesEvent(event) {
			out = append(out, tr)
		}
	}
	return out
}
