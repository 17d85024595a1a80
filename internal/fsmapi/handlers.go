package fsmapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"apexfsm/internal/fsmengine"
	"apexfsm/internal/fsmerrors"
	"apexfsm/internal/fsmeventlog"
	"apexfsm/internal/fsmregistry"
)

var zeroTime time.Time

// Router wires the replay/control surface onto a gin engine. Construct with
// NewRouter and call Register on a *gin.RouterGroup.
type Router struct {
	DB       *gorm.DB
	Engine   *fsmengine.Engine
	Registry *fsmregistry.Registry
	Loaders  *LoaderRegistry
	Replay   *fsmeventlog.ReplayService
	Timeline *fsmeventlog.TimelineService
}

func NewRouter(db *gorm.DB, engine *fsmengine.Engine, registry *fsmregistry.Registry, loaders *LoaderRegistry) *Router {
	return &Router{
		DB:       db,
		Engine:   engine,
		Registry: registry,
		Loaders:  loaders,
		Replay:   fsmeventlog.NewReplayService(db),
		Timeline: fsmeventlog.NewTimelineService(db),
	}
}

// Register mounts every endpoint under group.
func (rt *Router) Register(group gin.IRouter) {
	group.POST("/transitions/perform", rt.performTransition)
	group.POST("/transitions/can", rt.canTransition)
	group.POST("/transitions/dry-run", rt.dryRun)
	group.POST("/transitions/eligible", rt.eligible)
	group.POST("/transitions/history", rt.history)
	group.POST("/transitions/replay", rt.replay)
	group.POST("/transitions/validate", rt.validate)
	group.POST("/transitions/statistics", rt.statistics)
	group.POST("/transitions/timeline", rt.timeline)
	group.POST("/transitions/time-analysis", rt.timeAnalysis)
}

type performBody struct {
	requestDTO
	TargetState string         `json:"targetState" binding:"required"`
	Event       string         `json:"event"`
	Context     map[string]any `json:"context"`
}

type eligibleBody struct {
	requestDTO
	Event string `json:"event"`
}

func statusFor(err error) int {
	var te *fsmerrors.TransitionError
	if !asTransitionError(err, &te) {
		return http.StatusInternalServerError
	}
	switch te.Kind {
	case fsmerrors.KindNotRegistered:
		return http.StatusNotFound
	case fsmerrors.KindInvalidArgument:
		return http.StatusBadRequest
	case fsmerrors.KindInvalidTransition, fsmerrors.KindGuardFailed:
		return http.StatusUnprocessableEntity
	case fsmerrors.KindConcurrentModification:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func asTransitionError(err error, target **fsmerrors.TransitionError) bool {
	te, ok := err.(*fsmerrors.TransitionError)
	if ok {
		*target = te
	}
	return ok
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

func (rt *Router) performTransition(c *gin.Context) {
	var body performBody
	if !bindRequest(c, &body) {
		return
	}
	entity, err := rt.Loaders.Load(rt.DB, body.ModelClass, body.ModelID)
	if err != nil {
		fail(c, http.StatusNotFound, "entity not found", err)
		return
	}
	_, err = rt.Engine.Perform(c.Request.Context(), fsmengine.PerformRequest{
		Entity: entity, ModelClass: body.ModelClass, ColumnName: body.ColumnName,
		TargetState: body.TargetState, Event: body.Event, Context: body.Context,
		BearerToken: bearerToken(c),
	})
	if err != nil {
		fail(c, statusFor(err), "transition failed", err)
		return
	}
	ok(c, http.StatusOK, gin.H{"toState": body.TargetState}, "transition succeeded")
}

func (rt *Router) canTransition(c *gin.Context) {
	var body performBody
	if !bindRequest(c, &body) {
		return
	}
	entity, err := rt.Loaders.Load(rt.DB, body.ModelClass, body.ModelID)
	if err != nil {
		fail(c, http.StatusNotFound, "entity not found", err)
		return
	}
	can, err := rt.Engine.CanTransition(c.Request.Context(), fsmengine.PerformRequest{
		Entity: entity, ModelClass: body.ModelClass, ColumnName: body.ColumnName,
		TargetState: body.TargetState, Event: body.Event, Context: body.Context,
	})
	if err != nil {
		fail(c, statusFor(err), "evaluation failed", err)
		return
	}
	ok(c, http.StatusOK, gin.H{"canTransition": can}, "evaluated")
}

func (rt *Router) dryRun(c *gin.Context) {
	var body performBody
	if !bindRequest(c, &body) {
		return
	}
	entity, err := rt.Loaders.Load(rt.DB, body.ModelClass, body.ModelID)
	if err != nil {
		fail(c, http.StatusNotFound, "entity not found", err)
		return
	}
	outcome, err := rt.Engine.DryRun(c.Request.Context(), fsmengine.PerformRequest{
		Entity: entity, ModelClass: body.ModelClass, ColumnName: body.ColumnName,
		TargetState: body.TargetState, Event: body.Event, Context: body.Context,
	})
	if err != nil {
		fail(c, statusFor(err), "dry run failed", err)
		return
	}
	ok(c, http.StatusOK, outcome, "dry run evaluated")
}

// eligible lists every transition the entity's current state and event can
// reach, without committing to a single target state.
func (rt *Router) eligible(c *gin.Context) {
	var body eligibleBody
	if !bindRequest(c, &body) {
		return
	}
	entity, err := rt.Loaders.Load(rt.DB, body.ModelClass, body.ModelID)
	if err != nil {
		fail(c, http.StatusNotFound, "entity not found", err)
		return
	}
	transitions, err := rt.Engine.EligibleTransitions(c.Request.Context(), fsmengine.PerformRequest{
		Entity: entity, ModelClass: body.ModelClass, ColumnName: body.ColumnName, Event: body.Event,
	})
	if err != nil {
		fail(c, statusFor(err), "failed to list eligible transitions", err)
		return
	}
	ok(c, http.StatusOK, transitions, "eligible transitions listed")
}

func (rt *Router) history(c *gin.Context) {
	var body requestDTO
	if !bindRequest(c, &body) {
		return
	}
	rows, err := rt.Replay.GetTransitionHistory(reqCtx(c), body.ModelClass, body.ModelID, body.ColumnName)
	if err != nil {
		fail(c, statusFor(err), "failed to load history", err)
		return
	}
	ok(c, http.StatusOK, rows, "history loaded")
}

func (rt *Router) replay(c *gin.Context) {
	var body requestDTO
	if !bindRequest(c, &body) {
		return
	}
	summary, err := rt.Replay.ReplayTransitions(reqCtx(c), body.ModelClass, body.ModelID, body.ColumnName)
	if err != nil {
		fail(c, statusFor(err), "failed to replay", err)
		return
	}
	ok(c, http.StatusOK, summary, "replayed")
}

func (rt *Router) validate(c *gin.Context) {
	var body requestDTO
	if !bindRequest(c, &body) {
		return
	}
	result, err := rt.Replay.ValidateTransitionHistory(reqCtx(c), body.ModelClass, body.ModelID, body.ColumnName)
	if err != nil {
		fail(c, statusFor(err), "failed to validate", err)
		return
	}
	ok(c, http.StatusOK, result, "validated")
}

func (rt *Router) statistics(c *gin.Context) {
	var body requestDTO
	if !bindRequest(c, &body) {
		return
	}
	stats, err := rt.Replay.GetTransitionStatistics(reqCtx(c), body.ModelClass, body.ModelID, body.ColumnName)
	if err != nil {
		fail(c, statusFor(err), "failed to compute statistics", err)
		return
	}
	ok(c, http.StatusOK, stats, "statistics computed")
}

func (rt *Router) timeline(c *gin.Context) {
	var body requestDTO
	if !bindRequest(c, &body) {
		return
	}
	entries, err := rt.Timeline.GetStateTimeline(reqCtx(c), body.ModelClass, body.ModelID, body.ColumnName, zeroTime, zeroTime)
	if err != nil {
		fail(c, statusFor(err), "failed to load timeline", err)
		return
	}
	ok(c, http.StatusOK, entries, "timeline loaded")
}

// timeAnalysis reports per-state duration aggregates for the entity's full
// history, complementing the raw entries returned by timeline.
func (rt *Router) timeAnalysis(c *gin.Context) {
	var body requestDTO
	if !bindRequest(c, &body) {
		return
	}
	analysis, err := rt.Timeline.GetStateTimeAnalysis(reqCtx(c), body.ModelClass, body.ModelID, body.ColumnName)
	if err != nil {
		fail(c, statusFor(err), "failed to compute time analysis", err)
		return
	}
	ok(c, http.StatusOK, analysis, "time analysis computed")
}

func reqCtx(c *gin.Context) context.Context { return c.Request.Context() }
