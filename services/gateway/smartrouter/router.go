/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Smart router (C7) — classifies an incoming request
             into Tier 1/2/3, resolves Tier-1 requests directly to
             a template + clamped parameters, and otherwise hands
             off to the NLInterpreter seam. Emits mcp.query.routed
             so routing decisions are auditable the same way the
             teacher logged every routing-rule match.
Root Cause:  Sprint task G029 — smart router orchestration.
Context:     C10 calls Classify immediately after C3 authenticates
             and before dispatching to C4/C5/C6.
Suitability: L3 — request classification + event emission.
──────────────────────────────────────────────────────────────
*/

package smartrouter

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/compiler"
	"github.com/latticegw/mcp-gateway/services/gateway/events"
)

// eventLogger is the slice of eventlog.Logger the router needs.
type eventLogger interface {
	Log(ctx context.Context, ev events.Event) error
}

// Decision is the outcome of classifying one request.
type Decision struct {
	Tier     Tier
	Template string         // set for a Tier-1 match (or a Tier-2/3 best-effort interpretation)
	Params   map[string]any // extracted, clamped parameters for Template
	Plan     *compiler.Plan // set when Tier 2/3 interpretation produced a plan
	Reply    string         // set when Tier 2/3 interpretation produced a direct reply instead
}

// Router classifies requests into tiers and resolves Tier-1 requests
// without a natural-language step.
type Router struct {
	interp NLInterpreter
	events eventLogger
	logger zerolog.Logger
}

// New builds a Router with the rule-based default NLInterpreter. Pass a
// different NLInterpreter via WithInterpreter to swap in an LLM-backed one.
func New(events eventLogger, logger zerolog.Logger) *Router {
	return &Router{
		interp: newKeywordInterpreter(),
		events: events,
		logger: logger.With().Str("component", "smartrouter").Logger(),
	}
}

// WithInterpreter swaps the NL interpretation seam (e.g. for a real
// LLM-backed implementation) and returns the same Router for chaining.
func (r *Router) WithInterpreter(interp NLInterpreter) *Router {
	r.interp = interp
	return r
}

// Classify resolves request to a tier and, for Tier 1, a template and
// clamped parameters directly — skipping any NL step. For Tier 2/3 it
// delegates to the configured NLInterpreter. Every decision emits
// mcp.query.routed.
func (r *Router) Classify(ctx context.Context, username, request string) (Decision, error) {
	var decision Decision

	if template, params, ok := matchTierOne(request); ok {
		decision = Decision{Tier: Tier1, Template: template, Params: params}
	} else {
		tier := classifyTier2Or3(request)
		result, err := r.interp.Interpret(ctx, request, tier)
		if err != nil {
			return Decision{}, err
		}
		decision = Decision{Tier: tier, Plan: result.Plan, Reply: result.Reply}
	}

	r.emit(ctx, username, decision)
	return decision, nil
}

func (r *Router) emit(ctx context.Context, username string, d Decision) {
	if r.events == nil {
		return
	}
	attrs := map[string]any{
		"tier": d.Tier.String(),
	}
	if d.Template != "" {
		attrs["template"] = d.Template
	}
	if err := r.events.Log(ctx, events.Event{
		Action:     events.ActionQueryRouted,
		ActorID:    username,
		ObjectType: "query_route",
		Attributes: attrs,
	}); err != nil {
		r.logger.Warn().Err(err).Msg("failed to log routing decision")
	}
}

// String renders a Decision for log lines / debugging.
func (d Decision) String() string {
	return fmt.Sprintf("tier=%s template=%s params=%v", d.Tier, d.Template, d.Params)
}
