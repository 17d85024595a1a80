package fsmeventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkTimeline(states []string, gaps []time.Duration) []TimelineEntry {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]TimelineEntry, len(states))
	var prevFrom *string
	for i, s := range states {
		out[i] = TimelineEntry{FromState: prevFrom, ToState: s, HappenedAt: base}
		state := s
		prevFrom = &state
		if i < len(gaps) {
			base = base.Add(gaps[i])
		}
	}
	return out
}

func TestAnalyzeTimelineAttributesDurationToFromState(t *testing.T) {
	// pending -(5m)-> processing -(10m)-> completed
	timeline := mkTimeline([]string{"pending", "processing", "completed"}, []time.Duration{5 * time.Minute, 10 * time.Minute})

	result := analyzeTimeline(timeline)
	require.Contains(t, result, "pending")
	require.Contains(t, result, "processing")
	require.Contains(t, result, "completed")

	pending := result["pending"]
	assert.Equal(t, int64(5*time.Minute/time.Millisecond), pending.TotalDurationMs)
	assert.Equal(t, 1, pending.Occurrences)

	processing := result["processing"]
	assert.Equal(t, int64(10*time.Minute/time.Millisecond), processing.TotalDurationMs)
	assert.Equal(t, 1, processing.Occurrences)

	// the final to_state contributes an occurrence with no duration.
	completed := result["completed"]
	assert.Equal(t, int64(0), completed.TotalDurationMs)
	assert.Equal(t, 1, completed.Occurrences)
}

func TestAnalyzeTimelineEmpty(t *testing.T) {
	result := analyzeTimeline(nil)
	assert.Empty(t, result)
}
