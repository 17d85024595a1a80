package fsmeventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"apexfsm/internal/fsmlog"
)

// Writer appends successful-transition rows. Construction failures during
// JSON marshaling of context/metadata never block the append — they simply
// leave the corresponding column null, matching the "never mask the
// transition outcome" propagation policy of §7.
type Writer struct {
	db      *gorm.DB
	enabled bool
}

func NewWriter(db *gorm.DB, enabled bool) *Writer {
	return &Writer{db: db, enabled: enabled}
}

// Append bundles the fields needed for one FsmEventLog row.
type Append struct {
	ModelID        string
	ModelType      string
	ColumnName     string
	FromState      *string
	ToState        string
	TransitionName string
	Context        map[string]any
	Metadata       map[string]any
	ExcludedKeys   []string
}

func (w *Writer) Append(ctx context.Context, a Append) error {
	if !w.enabled || w.db == nil {
		return nil
	}

	row := FsmEventLog{
		ID:         uuid.New(),
		ModelID:    a.ModelID,
		ModelType:  a.ModelType,
		ColumnName: a.ColumnName,
		FromState:  a.FromState,
		ToState:    a.ToState,
		OccurredAt: time.Now(),
	}
	if a.TransitionName != "" {
		row.TransitionName = &a.TransitionName
	}
	if filtered := fsmlog.FilterSensitiveKeys(a.Context, a.ExcludedKeys); len(filtered) > 0 {
		if b, err := json.Marshal(filtered); err == nil {
			s := string(b)
			row.Context = &s
		}
	}
	if len(a.Metadata) > 0 {
		if b, err := json.Marshal(a.Metadata); err == nil {
			s := string(b)
			row.Metadata = &s
		}
	}

	return w.db.WithContext(ctx).Create(&row).Error
}
