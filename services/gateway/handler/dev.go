/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       HTTP binding for the single dispatch procedure
             `dev(action, params) -> variant` (spec §4.8, §7):
             claim/release/validate/deploy/discover over the
             deployment gateway (C8), all behind one endpoint
             and a bearer token, mirroring the warehouse-side
             procedure's own single-entry-point shape instead of
             growing five separate REST routes.
Root Cause:  Sprint task G046 — HTTP entrypoint for C8; nothing
             else in the tree called deploy.Gateway outside tests.
Context:     Used by deployment tooling (the SF_CLI path in
             config) rather than interactive dashboard clients.
Suitability: L3 — request parsing + action dispatch, no novel
             algorithm.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/deploy"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
)

// devGateway is the slice of deploy.Gateway this handler dispatches
// actions to.
type devGateway interface {
	Claim(ctx context.Context, appName, namespace, agentID, leaseID string, ttl time.Duration) error
	Release(ctx context.Context, leaseID, agentID string) error
	Validate(ctx context.Context, ddl string) error
	Deploy(ctx context.Context, req deploy.DeployRequest) (*deploy.DeployResult, error)
	Discover(ctx context.Context, filter string) ([]deploy.ObjectVersion, error)
}

// DevHandler serves the one-endpoint dispatch shape dev(action, params)
// describes, authenticated the same way tools/call is on the WS edge.
type DevHandler struct {
	identity identityResolver
	gateway  devGateway
	logger   zerolog.Logger
}

func NewDevHandler(identitySvc identityResolver, gateway devGateway, logger zerolog.Logger) *DevHandler {
	return &DevHandler{identity: identitySvc, gateway: gateway, logger: logger.With().Str("component", "dev_handler").Logger()}
}

type devRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

type devResponse struct {
	OK     bool `json:"ok"`
	Result any  `json:"result,omitempty"`
}

// Dispatch authenticates the caller, then routes action to the matching
// deploy.Gateway method. Unknown actions are a validation error, same as
// an unrecognized tools/call name.
func (h *DevHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
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
	if !env.AllowsTool("dev") {
		writeError(w, gwerrors.New(gwerrors.ClassAuthz, "tool_not_allowed", "dev actions are not permitted for this token"))
		return
	}

	var req devRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerrors.New(gwerrors.ClassValidation, "malformed_body", "request body is not valid JSON"))
		return
	}

	result, err := h.run(r.Context(), env.Username, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devResponse{OK: true, Result: result})
}

func (h *DevHandler) run(ctx context.Context, username string, req devRequest) (any, error) {
	p := req.Params
	switch req.Action {
	case "claim":
		ttl := time.Duration(intParam(p, "ttl_seconds", 900)) * time.Second
		err := h.gateway.Claim(ctx, stringParam(p, "app_name"), stringParam(p, "namespace"), stringParam(p, "agent_id"), stringParam(p, "lease_id"), ttl)
		return nil, err
	case "release":
		err := h.gateway.Release(ctx, stringParam(p, "lease_id"), username)
		return nil, err
	case "validate":
		err := h.gateway.Validate(ctx, stringParam(p, "ddl"))
		return nil, err
	case "deploy":
		return h.gateway.Deploy(ctx, deploy.DeployRequest{
			ObjectType:      stringParam(p, "object_type"),
			Name:            stringParam(p, "name"),
			DDL:             stringParam(p, "ddl"),
			StageURL:        stringParam(p, "stage_url"),
			ExpectedMD5:     stringParam(p, "expected_md5"),
			Provenance:      stringParam(p, "provenance"),
			Reason:          stringParam(p, "reason"),
			ExpectedVersion: stringParam(p, "expected_version"),
			LeaseID:         stringParam(p, "lease_id"),
			ActorID:         username,
		})
	case "discover":
		return h.gateway.Discover(ctx, stringParam(p, "filter"))
	default:
		return nil, gwerrors.New(gwerrors.ClassValidation, "unknown_action", "unrecognized dev action: "+req.Action)
	}
}

func stringParam(p map[string]any, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func intParam(p map[string]any, key string, fallback int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
