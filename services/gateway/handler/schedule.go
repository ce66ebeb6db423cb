/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       HTTP binding for the Schedule entity's four lifecycle
             actions (spec §3: schedule/<schedule-id>, fields
             {spec-id, cron, task-name, status}). Mirrors dev.go's
             single-endpoint dispatch shape rather than growing
             four REST routes, since this entity has no backing
             store of its own — it is exactly the event it emits,
             per the Two-Object-Store Law.
Root Cause:  Sprint task G059 — nothing in the tree ever emitted
             dashboard.schedule.created/updated/deleted/executed,
             leaving the Schedule entity and the cron dependency
             it was added for both unused.
Context:     A scheduled job (a dashboard panel on a timer, say)
             registers here before anything external ever tries
             to fire it, so a malformed cron string is rejected at
             registration instead of at the next missed run.
Suitability: L3 — request parsing, cron validation, event
             emission; no novel algorithm.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/events"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/schedule"
)

// scheduleEventLogger is the slice of eventlog.Logger ScheduleHandler
// needs: recording the Schedule entity's four lifecycle events.
type scheduleEventLogger interface {
	Log(ctx context.Context, ev events.Event) error
}

// ScheduleHandler serves POST /api/schedule: create/update/delete/execute
// over the Schedule entity. Current state is never read back through this
// handler — like every other logical entity under the Two-Object-Store
// Law, it is derived from the processed lane via /api/activity with
// kind=schedule.
type ScheduleHandler struct {
	identity identityResolver
	events   scheduleEventLogger
	logger   zerolog.Logger
}

func NewScheduleHandler(identitySvc identityResolver, eventLogger scheduleEventLogger, logger zerolog.Logger) *ScheduleHandler {
	return &ScheduleHandler{identity: identitySvc, events: eventLogger, logger: logger.With().Str("component", "schedule_handler").Logger()}
}

type scheduleRequest struct {
	Action     string `json:"action"`
	ScheduleID string `json:"schedule_id"`
	SpecID     string `json:"spec_id,omitempty"`
	Cron       string `json:"cron,omitempty"`
	TaskName   string `json:"task_name,omitempty"`
	Status     string `json:"status,omitempty"`
}

type scheduleResponse struct {
	OK      bool       `json:"ok"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

var scheduleActions = map[string]events.Action{
	"created": events.ActionDashboardScheduleCreate,
	"updated": events.ActionDashboardScheduleUpdate,
	"deleted": events.ActionDashboardScheduleDelete,
	"executed": events.ActionDashboardScheduleExec,
}

// Dispatch authenticates the caller, validates req.Cron on create/update
// (spec supplement: reject a malformed cron string here rather than at
// execution time), and emits the matching dashboard.schedule.* event.
func (h *ScheduleHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, gwerrors.New(gwerrors.ClassAuth, "unauth", "missing bearer token"))
		return
	}
	env, err := h.identity.Validate(r.Context(), token, syntheticNonce())
	if err != nil {
		writeError(w, err)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerrors.New(gwerrors.ClassValidation, "malformed_body", "request body is not valid JSON"))
		return
	}
	if req.ScheduleID == "" {
		writeError(w, gwerrors.New(gwerrors.ClassValidation, "missing_schedule_id", "schedule_id is required"))
		return
	}
	action, ok := scheduleActions[req.Action]
	if !ok {
		writeError(w, gwerrors.New(gwerrors.ClassValidation, "unknown_action", "unrecognized schedule action: "+req.Action))
		return
	}

	var nextRun *time.Time
	if action == events.ActionDashboardScheduleCreate || action == events.ActionDashboardScheduleUpdate {
		if err := schedule.Validate(req.Cron); err != nil {
			writeError(w, gwerrors.New(gwerrors.ClassValidation, "invalid_cron", "cron expression is invalid: "+err.Error()))
			return
		}
		run, err := schedule.NextRun(req.Cron, time.Now().UTC())
		if err != nil {
			writeError(w, gwerrors.New(gwerrors.ClassValidation, "invalid_cron", "cron expression is invalid: "+err.Error()))
			return
		}
		nextRun = &run
	}

	ev := events.Event{
		EventID:    syntheticNonce(),
		OccurredAt: time.Now().UTC(),
		Action:     action,
		ActorID:    env.Username,
		Source:     events.SourceLane,
		ObjectType: "dashboard_schedule",
		ObjectID:   "schedule/" + req.ScheduleID,
		Attributes: map[string]any{
			"spec_id":   req.SpecID,
			"cron":      req.Cron,
			"task_name": req.TaskName,
			"status":    req.Status,
		},
	}
	if nextRun != nil {
		ev.Attributes["next_run"] = nextRun.Format(time.RFC3339)
	}
	if err := h.events.Log(r.Context(), ev); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scheduleResponse{OK: true, NextRun: nextRun})
}
