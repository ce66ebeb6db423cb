/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Plan validator (C5) — runs the same allow-list
             checks as the compiler but before compilation, and
             attaches advisory warnings the compiler doesn't
             surface (measures without dimensions, missing
             limit). Structurally the same evaluate-then-merge
             shape as a policy engine client: run every check,
             collect deny reasons and warnings, decide a single
             allow/deny instead of enforcing per-check.
Root Cause:  Sprint task G024 — plan validator ahead of compile.
Context:     C10 calls Validate before Compile so the client
             gets a structured {valid, errors, warnings} instead
             of a raw compiler error on first failure.
Suitability: L3 — validation orchestration.
──────────────────────────────────────────────────────────────
*/

package validator

import (
	"context"

	"github.com/latticegw/mcp-gateway/services/gateway/compiler"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
)

// Result is the wire shape of a validation response (spec §4.5).
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// DryCompiler is the seam the executor implements: compile the plan
// server-side without executing it, to confirm the compiler and executor
// never diverge on what "valid SQL" means.
type DryCompiler interface {
	DryCompile(ctx context.Context, plan compiler.Plan) error
}

// Validate runs the compiler's allow-list checks (without keeping the SQL)
// and layers on advisory warnings. If dryCompile is non-nil, it also asks
// the executor to dry-compile, surfacing any server-side disagreement as
// an error rather than a silent pass.
func Validate(ctx context.Context, plan compiler.Plan, registry *schema.Registry, dryCompile DryCompiler) Result {
	result := Result{Valid: true}

	out, err := compiler.Compile(plan, registry)
	if err != nil {
		result.Valid = false
		if ge, ok := err.(*gwerrors.Error); ok {
			result.Errors = append(result.Errors, ge.Code+": "+ge.Message)
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
		return result
	}

	if len(plan.Measures) > 0 && len(plan.Dimensions) == 0 {
		result.Warnings = append(result.Warnings, "measures without dimensions will return a single row")
	}
	if plan.TopN <= 0 {
		result.Warnings = append(result.Warnings, "no limit specified — default will apply")
	}

	if dryCompile != nil {
		if err := dryCompile.DryCompile(ctx, out.Plan); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, "dry compile failed: "+err.Error())
		}
	}

	return result
}
