/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       DDL allow/deny-list enforcement. Only CREATE OR
             REPLACE / CREATE IF NOT EXISTS for views, procedures,
             and functions may reach the warehouse; a fixed
             deny-list of destructive tokens is rejected even if
             it happens to appear inside an otherwise-allowed
             statement shape. Same evaluate-then-decide shape as
             the teacher's policy engine, narrowed to a closed,
             hand-written ruleset instead of a general evaluator.
Root Cause:  Sprint task G035 — deploy DDL allow-list.
Context:     Deploy step 3, before any version or lease check.
Suitability: L3 — fixed-pattern security gate.
──────────────────────────────────────────────────────────────
*/

package deploy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
)

var allowedShape = regexp.MustCompile(`(?is)^\s*CREATE\s+(OR\s+REPLACE\s+|IF\s+NOT\s+EXISTS\s+)?(VIEW|PROCEDURE|FUNCTION)\s+([A-Za-z0-9_."]+)`)

// denyTokens is the fixed deny-list (spec §4.8 step 3): matched as whole
// words/phrases, case-insensitive, regardless of where they appear in the
// statement.
var denyTokens = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bTRUNCATE\b`),
	regexp.MustCompile(`(?i)\bALTER\s+ACCOUNT\b`),
	regexp.MustCompile(`(?i)\bDROP\s+TABLE\b`),
	regexp.MustCompile(`(?i)\bDROP\s+DATABASE\b`),
	regexp.MustCompile(`(?i)\bDROP\s+SCHEMA\b`),
}

// objectRef is the parsed type/qualified-name pair a DDL statement targets.
type objectRef struct {
	ObjectType string // VIEW, PROCEDURE, FUNCTION
	Name       string // as written in the DDL, may be schema-qualified
}

// checkAllowed enforces the closed DDL shape and deny-list, returning the
// parsed object reference on success.
func checkAllowed(statement string) (objectRef, error) {
	for _, deny := range denyTokens {
		if deny.MatchString(statement) {
			return objectRef{}, gwerrors.New(gwerrors.ClassDeploy, "forbidden_operation", fmt.Sprintf("statement contains a forbidden token: %s", deny.String()))
		}
	}

	m := allowedShape.FindStringSubmatch(statement)
	if m == nil {
		return objectRef{}, gwerrors.New(gwerrors.ClassDeploy, "forbidden_operation", "only CREATE OR REPLACE / CREATE IF NOT EXISTS view/procedure/function DDL is allowed")
	}

	return objectRef{
		ObjectType: strings.ToUpper(m[2]),
		Name:       strings.Trim(m[3], `"`),
	}, nil
}
