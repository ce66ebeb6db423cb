package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/identity"
)

// ipWindow is a per-IP sliding window, the same shape as the teacher's
// rate limiter scoped down to the one counter this endpoint needs (hits
// within the trailing interval, no burst/remaining headers).
type ipWindow struct {
	hits []time.Time
}

// activationLimiter caps activation attempts per IP to 10 per 15 minutes
// (spec §6), adapted from middleware.RateLimiter's sliding-window shape.
type activationLimiter struct {
	mu       sync.Mutex
	windows  map[string]*ipWindow
	max      int
	interval time.Duration
}

func newActivationLimiter() *activationLimiter {
	return &activationLimiter{windows: make(map[string]*ipWindow), max: 10, interval: 15 * time.Minute}
}

func (l *activationLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.interval)
	w, ok := l.windows[key]
	if !ok {
		w = &ipWindow{}
		l.windows[key] = w
	}

	kept := w.hits[:0]
	for _, t := range w.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.hits = kept

	if len(w.hits) >= l.max {
		return false
	}
	w.hits = append(w.hits, now)
	return true
}

// ActivationHandler serves GET/POST /activate/{code}: the one-time
// account-activation link a freshly issued token arrives in (spec §6).
type ActivationHandler struct {
	identity activationIdentity
	limiter  *activationLimiter
	logger   zerolog.Logger
}

// activationIdentity is the slice of identity.Service the activation flow
// needs.
type activationIdentity interface {
	ActivationPending(ctx context.Context, code string) (bool, error)
	RedeemActivation(ctx context.Context, code string) (identity.ActivationResult, error)
}

func NewActivationHandler(identitySvc activationIdentity, logger zerolog.Logger) *ActivationHandler {
	return &ActivationHandler{identity: identitySvc, limiter: newActivationLimiter(), logger: logger.With().Str("component", "activation_handler").Logger()}
}

type activationStatusResponse struct {
	Pending bool `json:"pending"`
}

// Status serves GET /activate/{code}: reports whether the code is still
// redeemable, without consuming it, so a client can render a confirmation
// screen before the user commits.
func (h *ActivationHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(clientIP(r)) {
		writeError(w, gwerrors.New(gwerrors.ClassQuota, "rate_limited", "too many activation attempts, try again later"))
		return
	}
	code := chi.URLParam(r, "code")
	pending, err := h.identity.ActivationPending(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activationStatusResponse{Pending: pending})
}

type activationRedeemResponse struct {
	RedirectURI string `json:"redirect_uri"`
	Token       string `json:"token"`
	Username    string `json:"username"`
}

// Redeem serves POST /activate/{code}: consumes the code and returns the
// claudecode://activate deep link the issuing event emits (spec §6). The
// warehouse-side activation_redeem procedure emits system.token.created
// and system.activation.used atomically with the redemption, so this
// handler does not separately log those events.
func (h *ActivationHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(clientIP(r)) {
		writeError(w, gwerrors.New(gwerrors.ClassQuota, "rate_limited", "too many activation attempts, try again later"))
		return
	}
	code := chi.URLParam(r, "code")
	result, err := h.identity.RedeemActivation(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activationRedeemResponse{
		RedirectURI: "claudecode://activate?token=" + result.Token + "&user=" + result.Username,
		Token:       result.Token,
		Username:    result.Username,
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
