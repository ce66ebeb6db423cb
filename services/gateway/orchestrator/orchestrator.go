/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Request orchestrator (C10) — the WebSocket edge.
             Owns per-session state, drives the connect/dispatch/
             disconnect lifecycle, applies envelope budgets ahead
             of execution, and streams progress back to the
             client. Delegates every decision to the narrower
             components it wires together (C3 identity, C7
             router, C5 validator, C6 executor, quota tracker,
             event logger) rather than owning any of that logic
             itself — the same thin-edge, fat-components split
             the teacher's proxy handler used in front of its
             provider registry.
Root Cause:  Sprint task G041 — request orchestrator.
Context:     The only component that holds per-client state;
             everything it calls into is stateless per spec §4.10.
Suitability: L3 — connection lifecycle + dispatch orchestration.
──────────────────────────────────────────────────────────────
*/

// Package orchestrator implements the WebSocket/HTTP edge (C10): per-
// connection session state, the connect/dispatch/disconnect lifecycle, and
// the tiered dispatch through the rest of the gateway's components.
package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/compiler"
	"github.com/latticegw/mcp-gateway/services/gateway/events"
	"github.com/latticegw/mcp-gateway/services/gateway/executor"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/identity"
	"github.com/latticegw/mcp-gateway/services/gateway/procedures"
	"github.com/latticegw/mcp-gateway/services/gateway/quota"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
	"github.com/latticegw/mcp-gateway/services/gateway/smartrouter"
	"github.com/latticegw/mcp-gateway/services/gateway/validator"
)

// identityValidator is the slice of identity.Service the orchestrator
// needs: resolving a token+nonce into an effective envelope.
type identityValidator interface {
	Validate(ctx context.Context, token, nonce string) (identity.Envelope, error)
}

// classifier is the slice of smartrouter.Router the orchestrator needs.
type classifier interface {
	Classify(ctx context.Context, username, request string) (smartrouter.Decision, error)
}

// planExecutor is the slice of executor.Executor the orchestrator needs,
// plus DryCompile so the same value satisfies validator.DryCompiler.
type planExecutor interface {
	Execute(ctx context.Context, plan compiler.Plan, registry *schema.Registry, env identity.Envelope, username string) (*executor.Result, error)
	DryCompile(ctx context.Context, plan compiler.Plan) error
}

// quotaTracker is the slice of quota.Tracker the orchestrator needs.
type quotaTracker interface {
	Reserve(requestID, username string, dailyLimitSeconds int, estimatedSeconds float64) (*quota.Reservation, error)
	Settle(requestID string, actualSeconds float64) error
	Refund(requestID string) error
}

// eventLogger is the slice of eventlog.Logger the orchestrator needs.
type eventLogger interface {
	Log(ctx context.Context, ev events.Event) error
}

// rateLimiter is the slice of ratelimit.Limiter the orchestrator needs. A
// nil rateLimiter disables the check entirely (matches RATE_LIMIT_ENABLED
// unset during local/dev runs).
type rateLimiter interface {
	Allow(username, tool string) bool
}

// Orchestrator wires the session lifecycle to the rest of the gateway.
type Orchestrator struct {
	identity identityValidator
	router   classifier
	registry *schema.Registry
	exec     planExecutor
	quota    quotaTracker
	events   eventLogger
	limiter  rateLimiter
	logger   zerolog.Logger

	upgrader    websocket.Upgrader
	tier2Budget time.Duration
	tier3Budget time.Duration
}

// New builds an Orchestrator. tier2Budget/tier3Budget are the per-request
// wall-clock ceilings spec §5 assigns to the Tier 2/3 dispatch path
// (validate + reserve + execute, after classification); zero picks the
// spec's defaults of 10s/45s. limiter may be nil to disable rate limiting.
func New(identitySvc identityValidator, router classifier, registry *schema.Registry, exec planExecutor, quotaTracker quotaTracker, events eventLogger, limiter rateLimiter, logger zerolog.Logger, tier2Budget, tier3Budget time.Duration) *Orchestrator {
	if tier2Budget <= 0 {
		tier2Budget = 10 * time.Second
	}
	if tier3Budget <= 0 {
		tier3Budget = 45 * time.Second
	}
	return &Orchestrator{
		identity:    identitySvc,
		router:      router,
		registry:    registry,
		exec:        exec,
		quota:       quotaTracker,
		events:      events,
		limiter:     limiter,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		upgrader:    websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }},
		tier2Budget: tier2Budget,
		tier3Budget: tier3Budget,
	}
}

// HandleWS upgrades the connection, runs the session's lifecycle, and
// blocks until the client disconnects.
func (o *Orchestrator) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sess := newSession(conn)
	ctx := r.Context()

	o.emit(ctx, sess, events.ActionSessionStarted, sess.ID, nil)
	o.logger.Info().Str("session_id", sess.ID).Msg("session started")

	defer func() {
		sess.cancelAll()
		o.emit(context.Background(), sess, events.ActionSessionEnded, sess.ID, nil)
		_ = conn.Close()
		o.logger.Info().Str("session_id", sess.ID).Msg("session ended")
	}()

	for {
		var in Inbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		o.handleInbound(ctx, sess, in)
	}
}

// handleInbound dispatches one client message. Within a connection,
// requests are handled sequentially (spec §5) — this is never called
// concurrently for the same session.
func (o *Orchestrator) handleInbound(ctx context.Context, sess *Session, in Inbound) {
	switch in.Type {
	case TypeRegister:
		if in.SessionID != "" {
			sess.ID = in.SessionID
		}
	case TypeToolsCall:
		o.handleToolsCall(ctx, sess, in)
	case TypeUserMessage:
		o.handleUserMessage(ctx, sess, in)
	case TypeExecutePanel:
		o.handleExecutePanel(ctx, sess, in)
	default:
		_ = sess.writeJSON(errorMessage{Type: typeError, Content: "unknown message type: " + in.Type, ErrorClass: string(gwerrors.ClassValidation)})
	}
}

func (o *Orchestrator) handleToolsCall(ctx context.Context, sess *Session, in Inbound) {
	env, err := o.identity.Validate(ctx, in.Token, in.Nonce)
	if err != nil {
		o.sendAuthError(sess, err)
		o.emitError(ctx, sess, sess.ID, gwerrors.ClassAuth, map[string]any{"tool": in.Name, "reason": gwerrors.ToStructured(err).Code})
		return
	}
	sess.SetEnvelope(env)

	if err := procedures.CheckTool(env, in.Name); err != nil {
		o.sendClassifiedError(sess, err)
		o.emitError(ctx, sess, sess.ID, gwerrors.ClassAuthz, map[string]any{"tool": in.Name, "reason": "tool_not_allowed"})
		return
	}

	if !o.checkRateLimit(ctx, sess, env.Username, in.Name) {
		return
	}

	content := in.Name
	if c, ok := in.Arguments["content"].(string); ok && c != "" {
		content = c
	} else if c, ok := in.Arguments["request"].(string); ok && c != "" {
		content = c
	}
	o.classifyAndRun(ctx, sess, env, content)
}

func (o *Orchestrator) handleUserMessage(ctx context.Context, sess *Session, in Inbound) {
	env, ok := sess.Envelope()
	if !ok {
		_ = sess.writeJSON(errorMessage{Type: typeError, Content: "session is not authenticated", ErrorClass: string(gwerrors.ClassAuth)})
		return
	}
	if !o.checkRateLimit(ctx, sess, env.Username, "user_message") {
		return
	}
	sess.appendHistory(in.Content)
	o.classifyAndRun(ctx, sess, env, in.Content)
}

// checkRateLimit reports whether the caller may proceed, emitting an
// mcp.request.processed event with reason rate_limited, the same shape
// runPlan's invalid_plan and classifyAndRun's no_plan rejections use, so
// activity history shows a consistent reason set.
func (o *Orchestrator) checkRateLimit(ctx context.Context, sess *Session, username, tool string) bool {
	if o.limiter == nil || o.limiter.Allow(username, tool) {
		return true
	}
	_ = sess.writeJSON(errorMessage{Type: typeError, Content: "rate limit exceeded, slow down", ErrorClass: string(gwerrors.ClassQuota)})
	o.emit(ctx, sess, events.ActionRequestProcessed, sess.ID, map[string]any{"tool": tool, "success": false, "reason": "rate_limited"})
	return false
}

func (o *Orchestrator) classifyAndRun(ctx context.Context, sess *Session, env identity.Envelope, content string) {
	decision, err := o.router.Classify(ctx, env.Username, content)
	if err != nil {
		o.sendClassifiedError(sess, err)
		return
	}

	switch {
	case decision.Tier == smartrouter.Tier1:
		plan := planFromTemplate(decision.Template, decision.Params)
		o.runPlan(ctx, sess, env, decision.Tier, decision.Template, &plan)
	case decision.Plan != nil:
		o.runPlan(ctx, sess, env, decision.Tier, decision.Template, decision.Plan)
	default:
		_ = sess.writeJSON(assistantMessage{Type: typeAssistantMessage, Content: decision.Reply})
		o.emit(ctx, sess, events.ActionRequestProcessed, sess.ID, map[string]any{
			"tier": decision.Tier.String(), "success": false, "reason": "no_plan",
		})
	}
}

func (o *Orchestrator) handleExecutePanel(ctx context.Context, sess *Session, in Inbound) {
	env, ok := sess.Envelope()
	if !ok {
		_ = sess.writeJSON(errorMessage{Type: typeError, Content: "session is not authenticated", ErrorClass: string(gwerrors.ClassAuth)})
		return
	}
	if in.Panel == nil {
		_ = sess.writeJSON(errorMessage{Type: typeError, Content: "execute_panel requires a panel", ErrorClass: string(gwerrors.ClassValidation)})
		return
	}
	plan := in.Panel.toPlan()
	o.runPlan(ctx, sess, env, 0, "execute_panel", &plan)
}

// estimateSeconds is a conservative pre-execution runtime estimate used
// only to reserve against the daily budget (spec §4.10 step d) — settled
// with the actual elapsed time once the procedure call returns.
func estimateSeconds(tier smartrouter.Tier) float64 {
	switch tier {
	case smartrouter.Tier1:
		return 1
	case smartrouter.Tier2:
		return 5
	case smartrouter.Tier3:
		return 15
	default:
		return 5
	}
}

func budgetFor(tier smartrouter.Tier, tier2, tier3 time.Duration) time.Duration {
	switch tier {
	case smartrouter.Tier2:
		return tier2
	case smartrouter.Tier3:
		return tier3
	default:
		return 0
	}
}

func (o *Orchestrator) runPlan(ctx context.Context, sess *Session, env identity.Envelope, tier smartrouter.Tier, template string, plan *compiler.Plan) {
	if budget := budgetFor(tier, o.tier2Budget, o.tier3Budget); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	requestID := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	sess.track(requestID, cancel)
	defer func() {
		sess.untrack(requestID)
		cancel()
	}()

	o.progress(sess, "validating", "checking plan against the schema contract", 10, 0, 1, 4)
	result := validator.Validate(ctx, *plan, o.registry, o.exec)
	if !result.Valid {
		_ = sess.writeJSON(errorMessage{Type: typeError, Content: joinErrors(result.Errors), ErrorClass: string(gwerrors.ClassValidation)})
		o.emit(ctx, sess, events.ActionRequestProcessed, requestID, map[string]any{"tier": tierLabel(tier, template), "template": template, "success": false, "reason": "invalid_plan"})
		return
	}

	o.progress(sess, "reserving_quota", "reserving daily runtime budget", 30, 0, 2, 4)
	if _, err := o.quota.Reserve(requestID, env.Username, env.DailyRuntimeSeconds, estimateSeconds(tier)); err != nil {
		o.sendClassifiedError(sess, err)
		o.emitError(ctx, sess, requestID, gwerrors.ClassQuota, map[string]any{"tier": tierLabel(tier, template), "template": template, "reason": "quota_exceeded"})
		return
	}

	o.progress(sess, "executing", "dispatching to the warehouse", 60, 0, 3, 4)
	start := time.Now()
	res, err := o.exec.Execute(ctx, *plan, o.registry, env, env.Username)
	elapsed := time.Since(start)
	if err != nil {
		_ = o.quota.Refund(requestID)
		o.sendClassifiedError(sess, err)
		o.emit(ctx, sess, events.ActionRequestProcessed, requestID, map[string]any{"tier": tierLabel(tier, template), "template": template, "success": false, "reason": "execution_failed"})
		return
	}
	_ = o.quota.Settle(requestID, elapsed.Seconds())

	_ = sess.writeJSON(sqlResultMessage{
		Type:     typeSQLResult,
		Template: template,
		Rows:     res.SampleRows,
		Count:    res.RowCount,
		Metadata: sqlResultMeta{QueryID: res.QueryID, ExecutionTimeMs: elapsed.Milliseconds(), BytesScanned: res.BytesScanned},
	})
	o.progress(sess, "complete", "done", 100, elapsed.Milliseconds(), 4, 4)
	o.emit(ctx, sess, events.ActionRequestProcessed, requestID, map[string]any{
		"tier": tierLabel(tier, template), "template": template, "success": true,
		"row_count": res.RowCount, "execution_time_ms": elapsed.Milliseconds(),
	})
}

func tierLabel(tier smartrouter.Tier, template string) string {
	if tier == 0 {
		return template
	}
	return tier.String()
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

func (o *Orchestrator) progress(sess *Session, step, message string, pct float64, elapsedMs int64, completed, total int) {
	_ = sess.writeJSON(dashboardProgressMessage{
		Type: typeDashboardProg, Step: step, Message: message, Pct: pct,
		ElapsedMs: elapsedMs, CompletedSteps: completed, TotalSteps: total,
	})
}

func (o *Orchestrator) sendAuthError(sess *Session, err error) {
	if ge, ok := err.(*gwerrors.Error); ok {
		_ = sess.writeJSON(errorMessage{Type: typeError, Content: ge.Message, ErrorClass: string(ge.Class)})
		return
	}
	_ = sess.writeJSON(errorMessage{Type: typeError, Content: err.Error(), ErrorClass: string(gwerrors.ClassAuth)})
}

func (o *Orchestrator) sendClassifiedError(sess *Session, err error) {
	if ge, ok := err.(*gwerrors.Error); ok {
		_ = sess.writeJSON(errorMessage{Type: typeError, Content: ge.Message, ErrorClass: string(ge.Class)})
		return
	}
	_ = sess.writeJSON(errorMessage{Type: typeError, Content: err.Error(), ErrorClass: string(gwerrors.ClassExecution)})
}

// emitError logs the mcp.error.<class> event the propagation policy (spec
// §7) requires for a pre-execution refusal — exactly one terminal event
// per accepted tools/call (spec §8), same invariant the executor's own
// mcp.error.* emission on an execution-path failure satisfies.
func (o *Orchestrator) emitError(ctx context.Context, sess *Session, objectID string, class gwerrors.Class, attrs map[string]any) {
	o.emit(ctx, sess, events.Action(string(events.ActionErrorPrefix)+string(class)), objectID, attrs)
}

func (o *Orchestrator) emit(ctx context.Context, sess *Session, action events.Action, objectID string, attrs map[string]any) {
	ev := events.Event{
		Action:     action,
		ActorID:    sess.ID,
		Source:     events.SourceLane,
		ObjectType: "request",
		ObjectID:   objectID,
		Attributes: attrs,
	}
	if err := o.events.Log(ctx, ev); err != nil {
		o.logger.Warn().Err(err).Str("action", string(action)).Msg("failed to log event")
		return
	}
	sess.RecordWrite()
}
