/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L2
Logic:       Per-envelope tool-allow enforcement. Before a
             tools/call request reaches the router, checks the
             requested tool name against the envelope's allow-
             list and returns a structured authz error otherwise.
Root Cause:  Sprint task G044 — tool_not_allowed authz check.
Context:     spec §7 names authz.tool_not_allowed as a distinct
             error_class from auth failures; C3's envelope
             already carries AllowedTools, this is the one place
             that enforces it ahead of classification.
Suitability: L2 — single allow-list check.
──────────────────────────────────────────────────────────────
*/

package procedures

import (
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/identity"
)

// CheckTool returns a classified authz error if tool is not present in
// env's allow-list. An empty tool name (e.g. a free-form user-message with
// no named tool) always passes — the allow-list only gates named tool
// invocations.
func CheckTool(env identity.Envelope, tool string) error {
	if tool == "" || env.AllowsTool(tool) {
		return nil
	}
	return gwerrors.New(gwerrors.ClassAuthz, "tool_not_allowed", "tool \""+tool+"\" is not permitted for this token").
		WithDetails(map[string]any{"tool": tool})
}
