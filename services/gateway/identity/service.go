/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Token & identity service (C3) — issue/validate/
             revoke against the event-projected permission view,
             with a Redis-backed nonce replay ledger and an
             emergency all-revoke call. Redis holds only the
             replay ledger, and no other replay check stands
             behind it: an unreachable replay store degrades to
             "allow" rather than blocking every request.
Root Cause:  Sprint task G013 — identity service.
Context:     Every C10 request passes through Validate before
             reaching C7; EmergencyRevokeAll is the operator
             break-glass path.
Suitability: L3 — auth-adjacent orchestration, not the crypto
             primitives themselves (see token.go).
──────────────────────────────────────────────────────────────
*/

package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
)

// procedureCaller is the warehouse dependency this package needs.
type procedureCaller interface {
	CallProcedure(ctx context.Context, name string, args ...any) (json.RawMessage, error)
}

// nonceStore is the replay ledger. CheckAndSet returns seen=true if the
// key was already present (replay), or records it and returns false.
type nonceStore interface {
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (seen bool, err error)
}

// Service implements C3 over a warehouse session and a replay ledger.
type Service struct {
	adapter     procedureCaller
	nonces      nonceStore
	pepper      string
	nonceWindow time.Duration
	logger      zerolog.Logger
}

func New(adapter procedureCaller, nonces nonceStore, pepper string, nonceWindow time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		adapter:     adapter,
		nonces:      nonces,
		pepper:      pepper,
		nonceWindow: nonceWindow,
		logger:      logger.With().Str("component", "identity").Logger(),
	}
}

type issueResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Token string `json:"token"`
}

// Issue generates a token, hashes it with the server pepper, and asks the
// warehouse to emit system.user.created (if new) + system.permission.granted.
// The raw token is returned once and never persisted.
func (s *Service) Issue(ctx context.Context, user, roleTemplate string, ttl time.Duration) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	hash := HashToken(token, s.pepper)
	prefix, suffix := Fingerprint(token)

	args := map[string]any{
		"user":          user,
		"role_template": roleTemplate,
		"token_hash":    hash,
		"prefix":        prefix,
		"suffix":        suffix,
		"expires_at":    time.Now().Add(ttl).UTC(),
	}
	raw, err := s.adapter.CallProcedure(ctx, "handle_request", "issue_token", args, "")
	if err != nil {
		return "", err
	}
	var resp issueResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", gwerrors.New(gwerrors.ClassExecution, "other", "malformed issue_token response")
	}
	if !resp.OK {
		return "", gwerrors.New(gwerrors.ClassAuth, "issue_failed", resp.Error)
	}
	return token, nil
}

type validateResponse struct {
	OK                  bool     `json:"ok"`
	Error               string   `json:"error"`
	Revoked             bool     `json:"revoked"`
	Username            string   `json:"username"`
	AllowedTools        []string `json:"allowed_tools"`
	MaxRows             int      `json:"max_rows"`
	DailyRuntimeSeconds int      `json:"daily_runtime_seconds"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Validate checks token format, the nonce replay ledger, then asks the
// warehouse for the current effective envelope for this token hash.
func (s *Service) Validate(ctx context.Context, token, nonce string) (Envelope, error) {
	if !ValidFormat(token) {
		return Envelope{}, gwerrors.New(gwerrors.ClassAuth, "malformed_token", "token does not match expected format")
	}
	hash := HashToken(token, s.pepper)

	if err := s.checkReplay(ctx, hash, nonce); err != nil {
		return Envelope{}, err
	}

	raw, err := s.adapter.CallProcedure(ctx, "validate_token", hash)
	if err != nil {
		return Envelope{}, err
	}
	var resp validateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Envelope{}, gwerrors.New(gwerrors.ClassExecution, "other", "malformed validate_token response")
	}
	if resp.Revoked {
		return Envelope{}, gwerrors.New(gwerrors.ClassAuth, "revoked", "token has been revoked")
	}
	if !resp.OK {
		return Envelope{}, gwerrors.New(gwerrors.ClassAuth, "invalid_token", resp.Error)
	}

	env := Envelope{
		Username:            resp.Username,
		AllowedTools:         resp.AllowedTools,
		MaxRows:              resp.MaxRows,
		DailyRuntimeSeconds:  resp.DailyRuntimeSeconds,
		ExpiresAt:            resp.ExpiresAt,
	}
	if env.Expired(time.Now()) {
		return Envelope{}, gwerrors.New(gwerrors.ClassAuth, "expired", "token has expired")
	}
	return env, nil
}

// checkReplay records (token_hash, nonce) in the rolling-window ledger.
// A ledger outage is logged and treated as "not seen": no other replay
// check runs, so a repeated nonce is accepted while the ledger is
// unreachable.
func (s *Service) checkReplay(ctx context.Context, hash, nonce string) error {
	if nonce == "" {
		return gwerrors.New(gwerrors.ClassValidation, "missing_nonce", "nonce is required")
	}
	key := fmt.Sprintf("nonce:%s:%s", hash, nonce)
	seen, err := s.nonces.CheckAndSet(ctx, key, s.nonceWindow)
	if err != nil {
		s.logger.Warn().Err(err).Msg("replay ledger unavailable, proceeding without replay check")
		return nil
	}
	if seen {
		return gwerrors.New(gwerrors.ClassAuth, "replay_detected", "nonce has already been used")
	}
	return nil
}

// Revoke emits system.permission.revoked for a user or specific token.
func (s *Service) Revoke(ctx context.Context, userOrToken, reason string) error {
	args := map[string]any{"target": userOrToken, "reason": reason}
	raw, err := s.adapter.CallProcedure(ctx, "handle_request", "revoke_token", args, "")
	if err != nil {
		return err
	}
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if uerr := json.Unmarshal(raw, &resp); uerr == nil && !resp.OK {
		return gwerrors.New(gwerrors.ClassExecution, "other", resp.Error)
	}
	return nil
}

// EmergencyRevokeAll emits system.permissions.all_revoked, which every
// Validate call must treat as an unconditional deny until lifted.
func (s *Service) EmergencyRevokeAll(ctx context.Context, actor, reason string) error {
	args := map[string]any{"actor": actor, "reason": reason}
	_, err := s.adapter.CallProcedure(ctx, "handle_request", "revoke_all", args, "")
	return err
}

// Prefs is the small per-user UI preference projection served at
// GET /meta/user (spec §6: "{theme, timezone}").
type Prefs struct {
	Theme    string `json:"theme"`
	Timezone string `json:"timezone"`
}

// UserPrefs resolves the caller's display preferences from the
// system.user.* projection.
func (s *Service) UserPrefs(ctx context.Context, username string) (Prefs, error) {
	raw, err := s.adapter.CallProcedure(ctx, "handle_request", "user_prefs", map[string]any{"username": username}, "")
	if err != nil {
		return Prefs{}, err
	}
	var resp struct {
		OK       bool   `json:"ok"`
		Error    string `json:"error"`
		Theme    string `json:"theme"`
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Prefs{}, gwerrors.New(gwerrors.ClassExecution, "other", "malformed user_prefs response")
	}
	if !resp.OK {
		return Prefs{}, gwerrors.New(gwerrors.ClassAuth, "not_found", resp.Error)
	}
	if resp.Theme == "" {
		resp.Theme = "system"
	}
	if resp.Timezone == "" {
		resp.Timezone = "UTC"
	}
	return Prefs{Theme: resp.Theme, Timezone: resp.Timezone}, nil
}

// ActivationResult is what a successful code redemption returns: a fresh
// token plus the username it was issued for (spec §6 activation flow).
type ActivationResult struct {
	Token    string
	Username string
}

// RedeemActivation validates an activation code against the latest
// system.activation.created event for it (must exist, be unexpired, and
// unused), issues a token, and emits system.token.created +
// system.activation.used — all inside the one procedure call, the same
// atomic-dispatch shape as Issue.
func (s *Service) RedeemActivation(ctx context.Context, code string) (ActivationResult, error) {
	raw, err := s.adapter.CallProcedure(ctx, "handle_request", "activation_redeem", map[string]any{"code": code}, "")
	if err != nil {
		return ActivationResult{}, err
	}
	var resp struct {
		OK       bool   `json:"ok"`
		Error    string `json:"error"`
		Token    string `json:"token"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ActivationResult{}, gwerrors.New(gwerrors.ClassExecution, "other", "malformed activation_redeem response")
	}
	if !resp.OK {
		return ActivationResult{}, gwerrors.New(gwerrors.ClassAuth, "invalid_token", resp.Error)
	}
	return ActivationResult{Token: resp.Token, Username: resp.Username}, nil
}

// ActivationPending reports whether an activation code still exists,
// unexpired and unused — used to render the GET /activate/<code>
// confirmation page without consuming the code.
func (s *Service) ActivationPending(ctx context.Context, code string) (bool, error) {
	raw, err := s.adapter.CallProcedure(ctx, "handle_request", "activation_lookup", map[string]any{"code": code}, "")
	if err != nil {
		return false, err
	}
	var resp struct {
		OK      bool `json:"ok"`
		Pending bool `json:"pending"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, gwerrors.New(gwerrors.ClassExecution, "other", "malformed activation_lookup response")
	}
	return resp.OK && resp.Pending, nil
}

// PermissionEnvelope returns the current effective envelope for a
// username (derived view, not tied to a specific token).
func (s *Service) PermissionEnvelope(ctx context.Context, username string) (Envelope, error) {
	args := map[string]any{"username": username}
	raw, err := s.adapter.CallProcedure(ctx, "handle_request", "permission_envelope", args, "")
	if err != nil {
		return Envelope{}, err
	}
	var resp validateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Envelope{}, gwerrors.New(gwerrors.ClassExecution, "other", "malformed permission_envelope response")
	}
	if !resp.OK {
		return Envelope{}, gwerrors.New(gwerrors.ClassAuth, "not_found", resp.Error)
	}
	return Envelope{
		Username:            resp.Username,
		AllowedTools:         resp.AllowedTools,
		MaxRows:              resp.MaxRows,
		DailyRuntimeSeconds:  resp.DailyRuntimeSeconds,
		ExpiresAt:            resp.ExpiresAt,
	}, nil
}
