package fsmeventlog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"apexfsm/internal/fsmerrors"
)

// ReplayService implements the pure-read queries of §4.10: history
// retrieval, replay summarization, consistency validation, and descriptive
// statistics, all scoped to one (modelClass, modelId, columnName).
type ReplayService struct {
	db *gorm.DB
}

func NewReplayService(db *gorm.DB) *ReplayService {
	return &ReplayService{db: db}
}

func requireNonEmpty(modelID, columnName string) error {
	if modelID == "" || columnName == "" {
		return fsmerrors.New(fsmerrors.KindInvalidArgument, "", columnName, "modelId and columnName must be non-empty")
	}
	return nil
}

// GetTransitionHistory returns every event for (modelType, modelId, column)
// ordered by occurred_at ascending.
func (s *ReplayService) GetTransitionHistory(ctx context.Context, modelType, modelID, columnName string) ([]FsmEventLog, error) {
	if err := requireNonEmpty(modelID, columnName); err != nil {
		return nil, err
	}
	var rows []FsmEventLog
	err := s.db.WithContext(ctx).
		Where("model_type = ? AND model_id = ? AND column_name = ?", modelType, modelID, columnName).
		Order("occurred_at ASC").
		Find(&rows).Error
	return rows, err
}

// ReplaySummary is the result of ReplayTransitions.
type ReplaySummary struct {
	InitialState     *string
	FinalState       *string
	TransitionCount  int
	Transitions      []FsmEventLog
}

func (s *ReplayService) ReplayTransitions(ctx context.Context, modelType, modelID, columnName string) (ReplaySummary, error) {
	history, err := s.GetTransitionHistory(ctx, modelType, modelID, columnName)
	if err != nil {
		return ReplaySummary{}, err
	}
	if len(history) == 0 {
		return ReplaySummary{Transitions: history}, nil
	}
	final := history[len(history)-1].ToState
	return ReplaySummary{
		InitialState:    history[0].FromState,
		FinalState:      &final,
		TransitionCount: len(history),
		Transitions:     history,
	}, nil
}

// ValidationResult is the result of ValidateTransitionHistory.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateTransitionHistory checks invariant (3): consecutive entries must
// chain to_state[i] == from_state[i+1]. The first entry's from_state is
// unconstrained (may be null).
func (s *ReplayService) ValidateTransitionHistory(ctx context.Context, modelType, modelID, columnName string) (ValidationResult, error) {
	history, err := s.GetTransitionHistory(ctx, modelType, modelID, columnName)
	if err != nil {
		return ValidationResult{}, err
	}
	var errs []string
	for i := 0; i < len(history)-1; i++ {
		to := history[i].ToState
		from := history[i+1].FromState
		if from == nil || *from != to {
			gotFrom := "null"
			if from != nil {
				gotFrom = *from
			}
			errs = append(errs, fmt.Sprintf("Transition %d: from_state '%s' doesn't match previous to_state '%s'", i+1, gotFrom, to))
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}, nil
}

// Statistics is the result of GetTransitionStatistics.
type Statistics struct {
	TotalTransitions     int
	UniqueStates         int
	StateFrequency       map[string]int
	TransitionFrequency  map[string]int
}

// GetTransitionStatistics computes descriptive statistics per §4.10: every
// non-null from_state and every to_state contributes an independent
// increment to StateFrequency (a self-transition counts twice, per the
// resolved open question), and TransitionFrequency is keyed by
// "{from ?? "null"} → {to}".
func (s *ReplayService) GetTransitionStatistics(ctx context.Context, modelType, modelID, columnName string) (Statistics, error) {
	history, err := s.GetTransitionHistory(ctx, modelType, modelID, columnName)
	if err != nil {
		return Statistics{}, err
	}
	return computeStatistics(history), nil
}

func computeStatistics(history []FsmEventLog) Statistics {
	stateFreq := map[string]int{}
	transFreq := map[string]int{}
	for _, e := range history {
		fromLabel := "null"
		if e.FromState != nil {
			stateFreq[*e.FromState]++
			fromLabel = *e.FromState
		}
		stateFreq[e.ToState]++
		transFreq[fmt.Sprintf("%s → %s", fromLabel, e.ToState)]++
	}

	return Statistics{
		TotalTransitions:    len(history),
		UniqueStates:        len(stateFreq),
		StateFrequency:      stateFreq,
		TransitionFrequency: transFreq,
	}
}
