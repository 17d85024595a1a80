// Package fsmengine implements the transition engine (§4.2-§4.7): state
// resolution, transition selection, guard evaluation, the phased execution
// order, optimistic-concurrency persistence, and dry-run/can-transition.
// Grounded on the teacher's internal/db transactional conventions
// (gorm.DB.Transaction) for the optional transactional scope of §4.6 step 4.
package fsmengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"apexfsm/internal/fsmbus"
	"apexfsm/internal/fsmdef"
	"apexfsm/internal/fsmerrors"
	"apexfsm/internal/fsmeventlog"
	"apexfsm/internal/fsmhost"
	"apexfsm/internal/fsmlog"
	"apexfsm/internal/fsmmetrics"
	"apexfsm/internal/fsmqueue"
	"apexfsm/internal/fsmregistry"
)

// Engine is the process-scoped transition engine. Construct with New and
// share across goroutines — every field is either immutable after
// construction or independently concurrency-safe.
type Engine struct {
	registry        *fsmregistry.Registry
	logger          *fsmlog.Logger
	eventWriter     *fsmeventlog.Writer
	metrics         *fsmmetrics.Metrics
	bus             *fsmbus.Bus
	actor           fsmhost.ActorResolver
	container       Container
	queue           *fsmqueue.Adapter
	db              *gorm.DB
	useTransactions bool
	logUserSubject  bool
	zapLogger       *zap.Logger
}

// Options configures a new Engine. A nil Logger, EventWriter, Metrics or Bus
// disables that concern, and a nil Actor defaults to NoopActorResolver.
// Without a Container, named callables fail to resolve (MissingParameter);
// without a Queue, queued callables fail with LogicError.
type Options struct {
	Registry        *fsmregistry.Registry
	Logger          *fsmlog.Logger
	EventWriter     *fsmeventlog.Writer
	Metrics         *fsmmetrics.Metrics
	Bus             *fsmbus.Bus
	Actor           fsmhost.ActorResolver
	Container       Container
	Queue           *fsmqueue.Adapter
	DB              *gorm.DB
	UseTransactions bool
	LogUserSubject  bool
	ZapLogger       *zap.Logger
}

func New(opts Options) *Engine {
	if opts.Actor == nil {
		opts.Actor = fsmhost.NoopActorResolver{}
	}
	return &Engine{
		registry:        opts.Registry,
		logger:          opts.Logger,
		eventWriter:     opts.EventWriter,
		metrics:         opts.Metrics,
		bus:             opts.Bus,
		actor:           opts.Actor,
		container:       opts.Container,
		queue:           opts.Queue,
		db:              opts.DB,
		useTransactions: opts.UseTransactions,
		logUserSubject:  opts.LogUserSubject,
		zapLogger:       opts.ZapLogger,
	}
}

// PerformRequest bundles everything Perform needs for one transition attempt.
type PerformRequest struct {
	Entity      fsmhost.Entity
	ModelClass  string // defaults to Entity.GetMorphClass() if empty
	ColumnName  string
	TargetState string
	Event       string
	Context     map[string]any
	Mode        fsmdef.InputMode
	Source      fsmdef.InputSource
	BearerToken string
	Metadata    map[string]any
}

func (r PerformRequest) modelClass() string {
	if r.ModelClass != "" {
		return r.ModelClass
	}
	return r.Entity.GetMorphClass()
}

func (r PerformRequest) modelID() string {
	return fmt.Sprintf("%v", r.Entity.GetKey())
}

// Perform runs the full phased transition of §4.6.
func (e *Engine) Perform(ctx context.Context, req PerformRequest) (fsmhost.Entity, error) {
	start := time.Now()
	modelClass := req.modelClass()

	def, err := e.registry.Get(modelClass, req.ColumnName)
	if err != nil {
		return nil, err
	}

	from := currentState(req.Entity, req.ColumnName, def)

	e.publish(fsmbus.TransitionAttempted, req, from, req.Context, nil)

	entity, err := e.perform(ctx, req, def, from, start)
	if err != nil {
		e.publish(fsmbus.TransitionFailed, req, from, req.Context, err)
		e.logFailure(ctx, req, from, start, err)
		e.recordMetrics(req, false, time.Since(start))
		return nil, err
	}
	return entity, nil
}

// CanTransition runs Perform in dry-run mode and reports pass/fail.
func (e *Engine) CanTransition(ctx context.Context, req PerformRequest) (bool, error) {
	req.Mode = fsmdef.ModeDryRun
	outcome, err := e.DryRun(ctx, req)
	if err != nil {
		return false, err
	}
	return outcome.CanTransition, nil
}

// DryRunOutcome is the structured result of a dry-run.
type DryRunOutcome struct {
	CanTransition bool
	FromState     *string
	ToState       string
	Reason        string
	Message       string
}

// DryRun evaluates phases 1-7 of §4.6 only: no persistence, no success or
// failure events beyond TransitionAttempted, no log records.
func (e *Engine) DryRun(ctx context.Context, req PerformRequest) (DryRunOutcome, error) {
	modelClass := req.modelClass()
	def, err := e.registry.Get(modelClass, req.ColumnName)
	if err != nil {
		return DryRunOutcome{}, err
	}

	from := currentState(req.Entity, req.ColumnName, def)
	e.publish(fsmbus.TransitionAttempted, req, from, req.Context, nil)

	tr, found := findTransition(def, from, req.TargetState, req.Event)
	if !found {
		if stateEqual(from, req.TargetState) {
			return DryRunOutcome{CanTransition: true, FromState: from, ToState: req.TargetState, Message: "idempotent self-transition"}, nil
		}
		return DryRunOutcome{CanTransition: false, FromState: from, ToState: req.TargetState, Reason: string(fsmerrors.KindInvalidTransition), Message: "no matching transition"}, nil
	}

	input := buildInput(req, from, true)
	if err := input.Validate(); err != nil {
		return DryRunOutcome{}, fsmerrors.New(fsmerrors.KindInvalidArgument, modelClass, req.ColumnName, err.Error())
	}

	if err := e.evaluateGuards(ctx, tr.Guards, &input, guardStrategy(tr), modelClass, req.ColumnName); err != nil {
		return DryRunOutcome{CanTransition: false, FromState: from, ToState: req.TargetState, Reason: string(fsmerrors.KindGuardFailed), Message: err.Error()}, nil
	}

	return DryRunOutcome{CanTransition: true, FromState: from, ToState: req.TargetState, Message: "guards passed"}, nil
}

// EligibleTransition is the wire-safe projection of a TransitionDefinition
// returned by EligibleTransitions: it drops the Guards/Actions/Callbacks,
// whose CallableRef.Func may hold an unexported function value that JSON
// cannot encode.
type EligibleTransition struct {
	FromState *string `json:"fromState"`
	ToState   string  `json:"toState"`
	Event     string  `json:"event"`
	Priority  int     `json:"priority"`
}

// EligibleTransitions lists every transition that matches the entity's
// current state and the given event, without a fixed target state — the
// broader form of §4.3 steps 1-2, used by the replay API's discovery
// endpoint rather than Perform's target-filtered selection.
func (e *Engine) EligibleTransitions(ctx context.Context, req PerformRequest) ([]EligibleTransition, error) {
	modelClass := req.modelClass()
	def, err := e.registry.Get(modelClass, req.ColumnName)
	if err != nil {
		return nil, err
	}

	from := currentState(req.Entity, req.ColumnName, def)
	matches := findAnyTransition(def, from, req.Event)

	out := make([]EligibleTransition, 0, len(matches))
	for _, tr := range matches {
		out = append(out, EligibleTransition{FromState: tr.FromState, ToState: tr.ToState, Event: tr.Event, Priority: tr.Priority})
	}
	return out, nil
}

func guardStrategy(tr fsmdef.TransitionDefinition) fsmdef.GuardEvaluation {
	if tr.GuardEvaluation == "" {
		return fsmdef.GuardEvaluationAll
	}
	return tr.GuardEvaluation
}

func stateEqual(from *string, target string) bool {
	return from != nil && *from == target
}

func buildInput(req PerformRequest, from *string, dryRun bool) fsmdef.TransitionInput {
	mode := req.Mode
	if mode == "" {
		mode = fsmdef.ModeNormal
	}
	source := req.Source
	if source == "" {
		source = fsmdef.SourceSystem
	}
	return fsmdef.TransitionInput{
		Model:     req.Entity,
		FromState: from,
		ToState:   req.TargetState,
		Context:   req.Context,
		Event:     req.Event,
		IsDryRun:  dryRun,
		Mode:      mode,
		Source:    source,
		Metadata:  req.Metadata,
		Timestamp: time.Now().UnixNano(),
	}
}

// perform runs phases 4-13 of §4.6; called from Perform after phases 1-3.
func (e *Engine) perform(ctx context.Context, req PerformRequest, def fsmdef.FsmRuntimeDefinition, from *string, start time.Time) (fsmhost.Entity, error) {
	modelClass, column := req.modelClass(), req.ColumnName

	run := func(ctx context.Context) (fsmhost.Entity, error) {
		tr, found := findTransition(def, from, req.TargetState, req.Event)
		if !found {
			if stateEqual(from, req.TargetState) {
				return req.Entity, nil // idempotent self-transition: no hooks, no log, no events
			}
			return nil, fsmerrors.New(fsmerrors.KindInvalidTransition, modelClass, column, "no matching transition").WithStates(from, req.TargetState).WithPhase("select")
		}

		input := buildInput(req, from, false)
		if err := input.Validate(); err != nil {
			return nil, fsmerrors.New(fsmerrors.KindInvalidArgument, modelClass, column, err.Error())
		}

		if err := e.evaluateGuards(ctx, tr.Guards, &input, guardStrategy(tr), modelClass, column); err != nil {
			return nil, err
		}

		fromState, _ := def.States[derefOr(from, "")]
		onExit := fromState.OnExitCallbacks
		if err := e.runCallbacks(ctx, onExit, &input, fsmdef.CallbackTimingOnExit, modelClass, column); err != nil {
			return nil, err
		}
		var onTransitionBefore, onTransitionAfter []fsmdef.TransitionCallback
		for _, cb := range tr.OnTransitionCallbacks {
			if cb.RunAfterTransition {
				onTransitionAfter = append(onTransitionAfter, cb)
			} else {
				onTransitionBefore = append(onTransitionBefore, cb)
			}
		}
		if err := e.runCallbacks(ctx, onTransitionBefore, &input, fsmdef.CallbackTimingOnTransition, modelClass, column); err != nil {
			return nil, err
		}
		if err := e.runActionsBefore(ctx, tr.Actions, &input, modelClass, column); err != nil {
			return nil, err
		}

		if err := e.persist(ctx, req.Entity, column, from, req.TargetState, modelClass); err != nil {
			return nil, err
		}

		if err := e.runCallbacks(ctx, onTransitionAfter, &input, fsmdef.CallbackTimingOnTransition, modelClass, column); err != nil {
			return nil, err
		}
		if err := e.runActionsAfter(ctx, tr.Actions, &input, modelClass, column); err != nil {
			return nil, err
		}
		toState := def.States[req.TargetState]
		if err := e.runCallbacks(ctx, toState.OnEntryCallbacks, &input, fsmdef.CallbackTimingOnEntry, modelClass, column); err != nil {
			return nil, err
		}

		durationMs := int64(math.Floor(time.Since(start).Seconds() * 1000))
		subjectID, subjectType, _ := e.actor.Resolve(req.BearerToken)
		if !e.logUserSubject {
			subjectID, subjectType = "", ""
		}

		if e.logger != nil {
			_ = e.logger.LogSuccess(ctx, fsmlog.Entry{
				SubjectID: subjectID, SubjectType: subjectType,
				ModelID: req.modelID(), ModelType: modelClass, FsmColumn: column,
				FromState: from, ToState: req.TargetState, TransitionEvent: req.Event,
				Context: req.Context, DurationMs: durationMs,
			})
		}
		if e.eventWriter != nil {
			_ = e.eventWriter.Append(ctx, fsmeventlog.Append{
				ModelID: req.modelID(), ModelType: modelClass, ColumnName: column,
				FromState: from, ToState: req.TargetState, TransitionName: tr.Description,
				Context: req.Context, Metadata: req.Metadata,
			})
		}

		e.publish(fsmbus.TransitionSucceeded, req, from, nil, nil)
		if e.bus != nil {
			e.bus.Publish(fsmbus.Event{
				Name: fsmbus.StateTransitioned, Model: req.Entity, ColumnName: column,
				FromState: from, ToState: req.TargetState, TransitionName: tr.Description,
				TimestampUnixNano: time.Now().UnixNano(), Context: req.Context, Metadata: req.Metadata,
			})
		}
		e.recordMetrics(req, true, time.Since(start))

		return req.Entity, nil
	}

	if e.useTransactions && e.db != nil {
		var result fsmhost.Entity
		err := e.db.Transaction(func(tx *gorm.DB) error {
			r, err := run(ctx)
			result = r
			return err
		})
		return result, err
	}
	return run(ctx)
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func (e *Engine) runActionsBefore(ctx context.Context, actions []fsmdef.TransitionAction, input *fsmdef.TransitionInput, modelClass, column string) error {
	return e.runActions(ctx, actions, input, false, modelClass, column)
}

func (e *Engine) runActionsAfter(ctx context.Context, actions []fsmdef.TransitionAction, input *fsmdef.TransitionInput, modelClass, column string) error {
	return e.runActions(ctx, actions, input, true, modelClass, column)
}

// persist implements §4.6 step 9: CAS update if the row exists, else a plain
// save for a not-yet-persisted entity.
func (e *Engine) persist(ctx context.Context, entity fsmhost.Entity, column string, from *string, target string, modelClass string) error {
	if !entity.Exists() {
		entity.SetAttribute(column, target)
		return entity.Save()
	}

	expected := derefOr(from, "")
	rows, err := entity.UpdateWhere(entity.GetKey(), column, expected, target)
	if err != nil {
		return fsmerrors.New(fsmerrors.KindCallbackException, modelClass, column, err.Error()).WithPhase("persist").WithCause(err)
	}
	if rows == 0 {
		return fsmerrors.New(fsmerrors.KindConcurrentModification, modelClass, column, "no rows affected by CAS update").WithStates(from, target).WithPhase("persist")
	}
	entity.SetAttribute(column, target)
	return nil
}

func (e *Engine) publish(name fsmbus.EventName, req PerformRequest, from *string, ctxData map[string]any, exception error) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(fsmbus.Event{
		Name: name, Model: req.Entity, ColumnName: req.ColumnName,
		FromState: from, ToState: req.TargetState, Context: ctxData, Exception: exception,
	})
}

func (e *Engine) logFailure(ctx context.Context, req PerformRequest, from *string, start time.Time, failure error) {
	if e.logger == nil {
		return
	}
	subjectID, subjectType, _ := e.actor.Resolve(req.BearerToken)
	if !e.logUserSubject {
		subjectID, subjectType = "", ""
	}
	durationMs := int64(math.Floor(time.Since(start).Seconds() * 1000))
	_ = e.logger.LogFailure(ctx, fsmlog.Entry{
		SubjectID: subjectID, SubjectType: subjectType,
		ModelID: req.modelID(), ModelType: req.modelClass(), FsmColumn: req.ColumnName,
		FromState: from, ToState: req.TargetState, TransitionEvent: req.Event,
		Context: req.Context, DurationMs: durationMs,
	}, failure)
}

func (e *Engine) recordMetrics(req PerformRequest, success bool, duration time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(req.modelClass(), req.ColumnName, success, duration.Seconds())
}
