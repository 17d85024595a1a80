// Package fsmeventlog implements the append-only, successful-transition-only
// FsmEventLog (§3.8, §6.3) and the replay/analysis service over it (§4.10,
// §4.11), grounded on the teacher's GORM model + query conventions in
// internal/db/database.go.
package fsmeventlog

import (
	"time"

	"github.com/google/uuid"
)

// FsmEventLog is the GORM model backing the fsm_event_logs table.
type FsmEventLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ModelID        string    `gorm:"column:model_id;index:idx_event_log_lookup,priority:1"`
	ModelType      string    `gorm:"column:model_type;index:idx_event_log_lookup,priority:2"`
	ColumnName     string    `gorm:"column:column_name;index:idx_event_log_lookup,priority:3;index"`
	FromState      *string   `gorm:"column:from_state;index:idx_event_log_states,priority:1"`
	ToState        string    `gorm:"column:to_state;index:idx_event_log_states,priority:2"`
	TransitionName *string   `gorm:"column:transition_name"`
	OccurredAt     time.Time `gorm:"column:occurred_at;index:idx_event_log_lookup,priority:4;index"`
	Context        *string   `gorm:"column:context;type:jsonb"`
	Metadata       *string   `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (FsmEventLog) TableName() string { return "fsm_event_logs" }
