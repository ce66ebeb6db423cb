/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Plan executor (C6) — the only path through which a
             user plan reaches the warehouse. Binds the compiled
             plan, clamps the row cap to min(plan.top_n,
             envelope.max_rows), sets the query tag (the
             statement timeout is the session-wide one the
             adapter sets on open), and dispatches the single
             execute_query_plan procedure. Same validate-then-
             dispatch-then-shape-response shape as the gateway's
             non-streaming proxy hop, generalized from an HTTP
             round trip to a procedure call.
Root Cause:  Sprint task G025 — plan executor ahead of C10 wiring.
Context:     C5 calls DryCompile for its optional dry-compile
             seam; C10 calls Execute on the request path.
Suitability: L3 — execution plumbing with a closed error taxonomy.
──────────────────────────────────────────────────────────────
*/

package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/latticegw/mcp-gateway/services/gateway/compiler"
	"github.com/latticegw/mcp-gateway/services/gateway/eventstore"
	"github.com/latticegw/mcp-gateway/services/gateway/events"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/identity"
	"github.com/latticegw/mcp-gateway/services/gateway/quota"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
	"github.com/rs/zerolog"
)

// procedureCaller is the slice of eventstore.Adapter this package depends
// on, kept narrow so tests can substitute a fake warehouse.
type procedureCaller interface {
	CallProcedure(ctx context.Context, name string, args ...any) (json.RawMessage, error)
}

// tagger is the slice of eventstore.Adapter that sets the per-statement
// query tag ahead of a procedure call.
type tagger interface {
	SetTag(ctx context.Context, tag eventstore.QueryTag) error
}

// eventLogger is the slice of eventlog.Logger the executor needs: emitting
// mcp.error.* events on failure.
type eventLogger interface {
	Log(ctx context.Context, ev events.Event) error
}

// Result is the wire shape of a successful execution (spec §4.6).
type Result struct {
	OK          bool   `json:"ok"`
	QueryID     string `json:"query_id"`
	RowCount    int    `json:"row_count"`
	SampleRows  []map[string]any `json:"sample_rows"`
	BytesScanned int64  `json:"bytes_scanned"`
}

// Executor is the sole path through which a compiled plan reaches the
// warehouse (C6).
type Executor struct {
	adapter procedureCaller
	tags    tagger
	logger  zerolog.Logger
	events  eventLogger
}

// New builds an Executor bound to a warehouse session and the event logger
// it reports failures through.
func New(adapter procedureCaller, tags tagger, events eventLogger, logger zerolog.Logger) *Executor {
	return &Executor{
		adapter: adapter,
		tags:    tags,
		logger:  logger.With().Str("component", "executor").Logger(),
		events:  events,
	}
}

// procedureResponse is the raw shape execute_query_plan returns on either
// path (spec §4.6).
type procedureResponse struct {
	OK           bool             `json:"ok"`
	QueryID      string           `json:"query_id"`
	RowCount     int              `json:"row_count"`
	SampleRows   []map[string]any `json:"sample_rows"`
	BytesScanned int64            `json:"bytes_scanned"`
	ErrorClass   string           `json:"error_class"`
	Error        string           `json:"error"`
	SQLState     string           `json:"sql_state"`
}

// Execute binds plan against registry, clamps the row cap to the caller's
// envelope, tags the session, and dispatches execute_query_plan. On failure
// it classifies the error and emits an mcp.error.<class> event.
func (e *Executor) Execute(ctx context.Context, plan compiler.Plan, registry *schema.Registry, env identity.Envelope, username string) (*Result, error) {
	out, err := compiler.Compile(plan, registry)
	if err != nil {
		return nil, err
	}

	cappedRows, err := quota.CheckRowLimit(out.Plan.TopN, env.MaxRows)
	if err != nil {
		return nil, err
	}
	out.Plan.TopN = cappedRows

	if e.tags != nil {
		tag := eventstore.QueryTag{
			Agent:     "mcp-gateway",
			Op:        "execute_query_plan",
			User:      username,
			Timestamp: time.Now().UTC(),
		}
		if err := e.tags.SetTag(ctx, tag); err != nil {
			e.logger.Warn().Err(err).Msg("failed to set query tag")
		}
	}

	raw, err := e.adapter.CallProcedure(ctx, "execute_query_plan", out.Plan, out.SQLTemplate, out.Binds)
	if err != nil {
		return nil, e.fail(ctx, username, gwerrors.New(gwerrors.ClassExecution, "other", err.Error()))
	}

	var resp procedureResponse
	if uerr := json.Unmarshal(raw, &resp); uerr != nil {
		return nil, e.fail(ctx, username, gwerrors.New(gwerrors.ClassExecution, "other", "malformed executor response: "+uerr.Error()))
	}

	if !resp.OK {
		ge := gwerrors.New(gwerrors.ClassExecution, resp.ErrorClass, resp.Error).WithDetails(map[string]any{"sql_state": resp.SQLState})
		return nil, e.fail(ctx, username, ge)
	}

	return &Result{
		OK:           true,
		QueryID:      resp.QueryID,
		RowCount:     resp.RowCount,
		SampleRows:   resp.SampleRows,
		BytesScanned: resp.BytesScanned,
	}, nil
}

// DryCompile satisfies validator.DryCompiler: it asks the same procedure to
// compile (but not execute) the plan server-side, so the validator and
// executor never disagree on what "valid SQL" means.
func (e *Executor) DryCompile(ctx context.Context, plan compiler.Plan) error {
	raw, err := e.adapter.CallProcedure(ctx, "execute_query_plan", plan, "", []any{}, map[string]any{"dry_run": true})
	if err != nil {
		return gwerrors.New(gwerrors.ClassExecution, "other", err.Error())
	}

	var resp procedureResponse
	if uerr := json.Unmarshal(raw, &resp); uerr != nil {
		return gwerrors.New(gwerrors.ClassExecution, "other", "malformed dry-compile response: "+uerr.Error())
	}
	if !resp.OK {
		return gwerrors.New(gwerrors.ClassExecution, resp.ErrorClass, resp.Error)
	}
	return nil
}

func (e *Executor) fail(ctx context.Context, username string, ge *gwerrors.Error) error {
	if e.events != nil {
		_ = e.events.Log(ctx, events.Event{
			Action:     events.Action(fmt.Sprintf("%s%s", events.ActionErrorPrefix, ge.Code)),
			ActorID:    username,
			ObjectType: "query_plan",
			Attributes: map[string]any{"error_class": string(ge.Class), "error": ge.Message},
		})
	}
	return ge
}
