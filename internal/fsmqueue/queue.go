package fsmqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"apexfsm/internal/fsmerrors"
)

const defaultListKey = "fsm:queued_callables"

// Job is one queued callable dispatch: a class-string or "Class@method"
// spec, its parameters, and the serialized TransitionInput snapshot it ran
// against. Per §4.5, only serializable callable references may be queued —
// closures and bound instances are rejected before this type is ever built.
type Job struct {
	CallableName string         `json:"callable_name"`
	Parameters   map[string]any `json:"parameters"`
	InputSnapshot map[string]any `json:"input_snapshot"`
	EnqueuedAt   time.Time      `json:"enqueued_at"`
}

// Adapter enqueues jobs onto a Redis list. It deliberately exposes only
// Enqueue/Dequeue — nothing in this domain needs the full key-value surface
// the teacher's generic Redis wrapper offered.
type Adapter struct {
	redis   *RedisClient
	listKey string
}

func NewAdapter(redis *RedisClient) *Adapter {
	return &Adapter{redis: redis, listKey: defaultListKey}
}

// Enqueue rejects non-serializable callables fast, per the boundary
// behavior in §8: "a callable with queued=true and a closure/instance
// target fails fast with LogicError at dispatch time, not at job execution
// time."
func Enqueue(ctx context.Context, a *Adapter, callableName string, hasFunc bool, params map[string]any, inputSnapshot map[string]any) error {
	if hasFunc || callableName == "" {
		return fsmerrors.New(fsmerrors.KindLogicError, "", "", "queued callable must be a class-string or Class@method spec, not a closure or bound instance")
	}
	job := Job{CallableName: callableName, Parameters: params, InputSnapshot: inputSnapshot, EnqueuedAt: time.Now()}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("fsmqueue: marshal job: %w", err)
	}
	return a.redis.Client().LPush(ctx, a.listKey, payload).Err()
}

// Dequeue blocks up to timeout for the next job.
func (a *Adapter) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := a.redis.Client().BRPop(ctx, timeout, a.listKey).Result()
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("fsmqueue: unmarshal job: %w", err)
	}
	return &job, nil
}

// Handler executes one dequeued job, resolving CallableName against the
// host container.
type Handler func(ctx context.Context, job Job) error

// Worker polls the queue at a rate-limited pace, matching the teacher's use
// of golang.org/x/time/rate for traffic shaping elsewhere in the codebase.
type Worker struct {
	adapter *Adapter
	handler Handler
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWorker(adapter *Adapter, handler Handler, pollsPerSecond float64, logger *zap.Logger) *Worker {
	return &Worker{
		adapter: adapter,
		handler: handler,
		limiter: rate.NewLimiter(rate.Limit(pollsPerSecond), 1),
		logger:  logger,
	}
}

// Run polls until ctx is canceled. Failed jobs are logged, not retried —
// at-least-once delivery is the host queue's responsibility, per spec.md's
// "exactly-once semantics for queued side effects" non-goal.
func (w *Worker) Run(ctx context.Context) {
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		job, err := w.adapter.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if w.logger != nil {
				w.logger.Warn("fsmqueue: dequeue failed", zap.Error(err))
			}
			continue
		}
		if job == nil {
			continue
		}
		if err := w.handler(ctx, *job); err != nil && w.logger != nil {
			w.logger.Error("fsmqueue: job handler failed", zap.String("callable", job.CallableName), zap.Error(err))
		}
	}
}
