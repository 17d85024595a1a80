package fsmeventlog

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// TimelineService reuses FsmLog rows (which carry happened_at and duration
// independent of event-log filtering) for per-entity state timelines and
// duration analysis, per §4.11.
type TimelineService struct {
	db *gorm.DB
}

func NewTimelineService(db *gorm.DB) *TimelineService {
	return &TimelineService{db: db}
}

// TimelineEntry is one FsmLog-derived timeline point.
type TimelineEntry struct {
	FromState  *string
	ToState    string
	HappenedAt time.Time
}

// GetStateTimeline returns every successful transition for (modelType,
// modelId, column) ordered by happened_at ascending, optionally bounded by
// [from, to] (either may be zero to mean unbounded).
func (s *TimelineService) GetStateTimeline(ctx context.Context, modelType, modelID, column string, from, to time.Time) ([]TimelineEntry, error) {
	q := s.db.WithContext(ctx).Table("fsm_logs").
		Select("from_state, to_state, happened_at").
		Where("model_type = ? AND model_id = ? AND fsm_column = ? AND exception_details IS NULL", modelType, modelID, column)
	if !from.IsZero() {
		q = q.Where("happened_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("happened_at <= ?", to)
	}

	var rows []struct {
		FromState  *string
		ToState    string
		HappenedAt time.Time
	}
	if err := q.Order("happened_at ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]TimelineEntry, len(rows))
	for i, r := range rows {
		out[i] = TimelineEntry{FromState: r.FromState, ToState: r.ToState, HappenedAt: r.HappenedAt}
	}
	return out, nil
}

// StateDuration holds the aggregated timing for one state value.
type StateDuration struct {
	State             string
	TotalDurationMs   int64
	AverageDurationMs float64
	MinDurationMs     *int64
	MaxDurationMs     *int64
	Occurrences       int
}

// GetStateTimeAnalysis computes per-state duration aggregates per §4.11:
// each interval [i-1, i] is attributed to from_state[i]; the final entry's
// to_state contributes an occurrence with no duration.
func (s *TimelineService) GetStateTimeAnalysis(ctx context.Context, modelType, modelID, column string) (map[string]StateDuration, error) {
	timeline, err := s.GetStateTimeline(ctx, modelType, modelID, column, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	return analyzeTimeline(timeline), nil
}

func analyzeTimeline(timeline []TimelineEntry) map[string]StateDuration {
	type accum struct {
		total  int64
		count  int
		min    *int64
		max    *int64
		occurs int
	}
	acc := map[string]*accum{}

	ensure := func(state string) *accum {
		a, ok := acc[state]
		if !ok {
			a = &accum{}
			acc[state] = a
		}
		return a
	}

	for i, entry := range timeline {
		if i == 0 {
			continue
		}
		prev := timeline[i-1]
		durationMs := entry.HappenedAt.Sub(prev.HappenedAt).Milliseconds()
		from := prev.ToState
		if entry.FromState != nil {
			from = *entry.FromState
		}
		a := ensure(from)
		a.total += durationMs
		a.count++
		a.occurs++
		if a.min == nil || durationMs < *a.min {
			v := durationMs
			a.min = &v
		}
		if a.max == nil || durationMs > *a.max {
			v := durationMs
			a.max = &v
		}
	}

	if len(timeline) > 0 {
		last := timeline[len(timeline)-1].ToState
		ensure(last).occurs++
	}

	result := make(map[string]StateDuration, len(acc))
	for state, a := range acc {
		avg := 0.0
		if a.count > 0 {
			avg = float64(a.total) / float64(a.count)
		}
		result[state] = StateDuration{
			State:             state,
			TotalDurationMs:   a.total,
			AverageDurationMs: avg,
			MinDurationMs:     a.min,
			MaxDurationMs:     a.max,
			Occurrences:       a.occurs,
		}
	}
	return result
}
