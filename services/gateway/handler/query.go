package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/compiler"
	"github.com/latticegw/mcp-gateway/services/gateway/executor"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/identity"
	"github.com/latticegw/mcp-gateway/services/gateway/quota"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
	"github.com/latticegw/mcp-gateway/services/gateway/validator"
)

// planExecutor mirrors orchestrator's slice of executor.Executor.
type planExecutor interface {
	Execute(ctx context.Context, plan compiler.Plan, registry *schema.Registry, env identity.Envelope, username string) (*executor.Result, error)
	DryCompile(ctx context.Context, plan compiler.Plan) error
}

// quotaTracker mirrors orchestrator's slice of quota.Tracker.
type quotaTracker interface {
	Reserve(requestID, username string, dailyLimitSeconds int, estimatedSeconds float64) (*quota.Reservation, error)
	Settle(requestID string, actualSeconds float64) error
	Refund(requestID string) error
}

// planRequest is the POST /api/validate and POST /api/query body: a
// client-supplied plan, same shape as C10's execute_panel.
type planRequest struct {
	Source     string               `json:"source"`
	Dimensions []string             `json:"dimensions,omitempty"`
	Measures   []compiler.Measure   `json:"measures,omitempty"`
	Filters    []compiler.Filter    `json:"filters,omitempty"`
	TopN       int                  `json:"top_n,omitempty"`
	Grain      string               `json:"grain,omitempty"`
	OrderBy    []compiler.OrderTerm `json:"order_by,omitempty"`
}

func (p planRequest) toPlan() compiler.Plan {
	return compiler.Plan{
		Source: p.Source, Dimensions: p.Dimensions, Measures: p.Measures,
		Filters: p.Filters, Grain: p.Grain, TopN: p.TopN, OrderBy: p.OrderBy,
	}
}

// ValidateHandler serves POST /api/validate.
type ValidateHandler struct {
	registry *schema.Registry
	exec     planExecutor
	logger   zerolog.Logger
}

func NewValidateHandler(registry *schema.Registry, exec planExecutor, logger zerolog.Logger) *ValidateHandler {
	return &ValidateHandler{registry: registry, exec: exec, logger: logger.With().Str("component", "validate_handler").Logger()}
}

func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerrors.New(gwerrors.ClassValidation, "malformed_body", "request body is not valid JSON"))
		return
	}
	result := validator.Validate(r.Context(), req.toPlan(), h.registry, h.exec)
	writeJSON(w, http.StatusOK, result)
}

// QueryHandler serves POST /api/query: the same validate → reserve-quota
// → execute → settle/refund pipeline C10's runPlan drives for execute_panel,
// over a synchronous REST response instead of streamed WS progress frames.
type QueryHandler struct {
	identity identityResolver
	registry *schema.Registry
	exec     planExecutor
	quota    quotaTracker
	logger   zerolog.Logger
}

func NewQueryHandler(identitySvc identityResolver, registry *schema.Registry, exec planExecutor, quotaTracker quotaTracker, logger zerolog.Logger) *QueryHandler {
	return &QueryHandler{identity: identitySvc, registry: registry, exec: exec, quota: quotaTracker, logger: logger.With().Str("component", "query_handler").Logger()}
}

type queryResponse struct {
	OK       bool             `json:"ok"`
	Rows     []map[string]any `json:"rows"`
	Count    int              `json:"count"`
	QueryID  string           `json:"query_id"`
	ElapsedMs int64            `json:"execution_time_ms"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
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

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerrors.New(gwerrors.ClassValidation, "malformed_body", "request body is not valid JSON"))
		return
	}
	plan := req.toPlan()

	result := validator.Validate(r.Context(), plan, h.registry, h.exec)
	if !result.Valid {
		writeError(w, gwerrors.New(gwerrors.ClassValidation, "invalid_plan", joinErrors(result.Errors)))
		return
	}

	requestID := uuid.NewString()
	const estimatedSeconds = 5
	if _, err := h.quota.Reserve(requestID, env.Username, env.DailyRuntimeSeconds, estimatedSeconds); err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	res, err := h.exec.Execute(r.Context(), plan, h.registry, env, env.Username)
	elapsed := time.Since(start)
	if err != nil {
		_ = h.quota.Refund(requestID)
		writeError(w, err)
		return
	}
	_ = h.quota.Settle(requestID, elapsed.Seconds())

	writeJSON(w, http.StatusOK, queryResponse{
		OK: true, Rows: res.SampleRows, Count: res.RowCount, QueryID: res.QueryID, ElapsedMs: elapsed.Milliseconds(),
	})
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "plan is invalid"
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}
