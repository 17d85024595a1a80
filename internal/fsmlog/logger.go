package fsmlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config mirrors the logging.* keys of §6.5.
type Config struct {
	Enabled                    bool
	LogFailures                bool
	Structured                 bool
	Channel                    string
	ExcludedContextProperties  []string
	ExceptionCharacterLimit    int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		LogFailures:             true,
		Structured:              false,
		ExceptionCharacterLimit: 65535,
	}
}

// Logger writes FsmLog rows and emits channel output, per §4.8.
type Logger struct {
	db     *gorm.DB
	zap    *zap.Logger
	config Config
}

func New(db *gorm.DB, zl *zap.Logger, cfg Config) *Logger {
	return &Logger{db: db, zap: zl, config: cfg}
}

// Entry bundles the fields common to both success and failure records.
type Entry struct {
	SubjectID      string
	SubjectType    string
	ModelID        string
	ModelType      string
	FsmColumn      string
	FromState      *string
	ToState        string
	TransitionEvent string
	Context        map[string]any
	DurationMs     int64
}

func (l *Logger) LogSuccess(ctx context.Context, e Entry) error {
	if !l.config.Enabled {
		return nil
	}
	return l.write(ctx, e, nil)
}

func (l *Logger) LogFailure(ctx context.Context, e Entry, failure error) error {
	if !l.config.Enabled || !l.config.LogFailures {
		return nil
	}
	return l.write(ctx, e, failure)
}

func (l *Logger) write(ctx context.Context, e Entry, failure error) error {
	filtered := FilterSensitiveKeys(e.Context, l.config.ExcludedContextProperties)

	row := FsmLog{
		ID:        uuid.New(),
		ModelID:   e.ModelID,
		ModelType: e.ModelType,
		FsmColumn: e.FsmColumn,
		FromState: e.FromState,
		ToState:   e.ToState,
		HappenedAt: time.Now(),
	}
	if e.SubjectID != "" {
		row.SubjectID = &e.SubjectID
	}
	if e.SubjectType != "" {
		row.SubjectType = &e.SubjectType
	}
	if e.TransitionEvent != "" {
		row.TransitionEvent = &e.TransitionEvent
	}
	if len(filtered) > 0 {
		if snap, err := json.Marshal(filtered); err == nil {
			s := string(snap)
			row.ContextSnapshot = &s
		}
	}
	if e.DurationMs > 0 || failure == nil {
		d := e.DurationMs
		row.DurationMs = &d
	}
	if failure != nil {
		detail := failure.Error()
		if limit := l.config.ExceptionCharacterLimit; limit > 0 && len(detail) > limit {
			detail = detail[:limit]
		}
		row.ExceptionDetails = &detail
	}

	l.logChannel(row, failure)

	if l.db == nil {
		return nil
	}
	return l.db.WithContext(ctx).Create(&row).Error
}

func (l *Logger) logChannel(row FsmLog, failure error) {
	if l.zap == nil {
		return
	}
	logger := l.zap
	if l.config.Channel != "" {
		logger = logger.Named(l.config.Channel)
	}

	if l.config.Structured {
		fields := []zap.Field{
			zap.String("model_type", row.ModelType),
			zap.String("model_id", row.ModelID),
			zap.String("fsm_column", row.FsmColumn),
			zap.String("to_state", row.ToState),
		}
		if row.FromState != nil {
			fields = append(fields, zap.String("from_state", *row.FromState))
		}
		if failure != nil {
			logger.Error("fsm transition failed", append(fields, zap.Error(failure))...)
		} else {
			logger.Info("fsm transition succeeded", fields...)
		}
		return
	}

	from := "<none>"
	if row.FromState != nil {
		from = *row.FromState
	}
	msg := fmt.Sprintf("fsm %s#%s.%s %s->%s", row.ModelType, row.ModelID, row.FsmColumn, from, row.ToState)
	if failure != nil {
		logger.Error(msg + ": " + failure.Error())
	} else {
		logger.Info(msg)
	}
}
