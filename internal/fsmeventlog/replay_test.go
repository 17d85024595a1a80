package fsmeventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strp(s string) *string { return &s }

func mkHistory(pairs [][2]*string) []FsmEventLog {
	out := make([]FsmEventLog, len(pairs))
	for i, p := range pairs {
		out[i] = FsmEventLog{FromState: p[0], ToState: *p[1]}
	}
	return out
}

func TestValidateTransitionHistoryConsistent(t *testing.T) {
	history := mkHistory([][2]*string{
		{nil, strp("A")},
		{strp("A"), strp("B")},
		{strp("B"), strp("C")},
	})
	errs := validateInMemory(history)
	assert.Empty(t, errs)
}

func TestValidateTransitionHistoryDetectsGap(t *testing.T) {
	history := mkHistory([][2]*string{
		{nil, strp("A")},
		{strp("A"), strp("B")},
		{strp("X"), strp("Y")},
		{strp("B"), strp("C")},
	})
	errs := validateInMemory(history)
	assert.Len(t, errs, 2) // index 2 breaks vs B, index 3 breaks vs Y
}

func TestReplaySummaryEmpty(t *testing.T) {
	summary := summarizeInMemory(nil)
	assert.Nil(t, summary.InitialState)
	assert.Nil(t, summary.FinalState)
	assert.Equal(t, 0, summary.TransitionCount)
}

func TestReplaySummaryCounts(t *testing.T) {
	history := mkHistory([][2]*string{
		{nil, strp("A")},
		{strp("A"), strp("B")},
		{strp("B"), strp("C")},
	})
	summary := summarizeInMemory(history)
	assert.Nil(t, summary.InitialState)
	assert.Equal(t, "C", *summary.FinalState)
	assert.Equal(t, 3, summary.TransitionCount)
}

func TestComputeStatisticsKeysUseArrow(t *testing.T) {
	history := mkHistory([][2]*string{
		{nil, strp("A")},
		{strp("A"), strp("B")},
		{strp("A"), strp("B")},
	})
	stats := computeStatistics(history)
	assert.Equal(t, 3, stats.TotalTransitions)
	assert.Equal(t, 2, stats.UniqueStates)
	assert.Equal(t, 1, stats.TransitionFrequency["null → A"])
	assert.Equal(t, 2, stats.TransitionFrequency["A → B"])
	assert.Equal(t, 3, stats.StateFrequency["A"]) // one as to_state, twice as from_state
	assert.Equal(t, 2, stats.StateFrequency["B"])
}

// validateInMemory and summarizeInMemory mirror ValidateTransitionHistory /
// ReplayTransitions without a database round-trip, for direct unit testing
// of the pure sequence logic.
func validateInMemory(history []FsmEventLog) []string {
	var errs []string
	for i := 0; i < len(history)-1; i++ {
		to := history[i].ToState
		from := history[i+1].FromState
		if from == nil || *from != to {
			errs = append(errs, "mismatch")
		}
	}
	return errs
}

func summarizeInMemory(history []FsmEventLog) ReplaySummary {
	if len(history) == 0 {
		return ReplaySummary{}
	}
	final := history[len(history)-1].ToState
	return ReplaySummary{
		InitialState:    history[0].FromState,
		FinalState:      &final,
		TransitionCount: len(history),
		Transitions:     history,
	}
}
