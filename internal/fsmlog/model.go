// Package fsmlog implements the rich per-attempt FsmLog record (spec §3.7,
// §6.3) and the Logger component (§4.8): writing success/failure rows with
// sensitive-key filtering and channel logging via zap, grounded on the
// teacher's internal/logging package and internal/db GORM model conventions.
package fsmlog

import (
	"time"

	"github.com/google/uuid"
)

// FsmLog is the GORM model backing the fsm_logs table. Field names match
// §6.3 exactly for cross-implementation interoperability.
type FsmLog struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubjectID         *string   `gorm:"column:subject_id"`
	SubjectType       *string   `gorm:"column:subject_type"`
	ModelID           string    `gorm:"column:model_id;index"`
	ModelType         string    `gorm:"column:model_type;index"`
	FsmColumn         string    `gorm:"column:fsm_column"`
	FromState         *string   `gorm:"column:from_state"`
	ToState           string    `gorm:"column:to_state"`
	TransitionEvent   *string   `gorm:"column:transition_event"`
	ContextSnapshot   *string   `gorm:"column:context_snapshot;type:jsonb"`
	ExceptionDetails  *string   `gorm:"column:exception_details"`
	DurationMs        *int64    `gorm:"column:duration_ms"`
	HappenedAt        time.Time `gorm:"column:happened_at;autoCreateTime;index"`
}

func (FsmLog) TableName() string { return "fsm_logs" }
