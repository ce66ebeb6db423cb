/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       HTTP surface for C10 — the chi.Mux the WebSocket
             upgrade and the admin/health routes share. REST
             endpoints (meta/schema, meta/user, api/validate,
             api/query, api/activity, activation links) are
             mounted onto the same Mux by the handler package;
             this file only owns what the orchestrator itself
             serves.
Root Cause:  Sprint task G042 — orchestrator HTTP surface.
Context:     Mirrors the teacher's chi-based router shape
             (ordered middleware chain, health endpoints first)
             generalized from a REST proxy edge to a WS+REST edge.
Suitability: L3 — router wiring.
──────────────────────────────────────────────────────────────
*/

package orchestrator

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// HealthStatus is the /health response shape (spec §6: "{status,
// snowflake, templates, timestamp}").
type HealthStatus struct {
	Status    string    `json:"status"`
	Snowflake string    `json:"snowflake"`
	Templates int       `json:"templates"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker reports the warehouse connection's current health so
// /health can surface it without the orchestrator depending on eventstore
// directly.
type HealthChecker interface {
	Healthy() bool
}

// NewMux builds the chi.Mux the WebSocket upgrade and health routes live
// on. Callers (main) mount the handler package's REST routes onto the
// returned Mux before starting the server.
func NewMux(appLogger zerolog.Logger, orch *Orchestrator, health HealthChecker, templateCount int) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(securityHeadersMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(requestLoggerMiddleware(appLogger))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := "ok"
		sfStatus := "ok"
		if health != nil && !health.Healthy() {
			status, sfStatus = "degraded", "unreachable"
		}
		writeJSON(w, http.StatusOK, HealthStatus{Status: status, Snowflake: sfStatus, Templates: templateCount, Timestamp: time.Now()})
	})

	r.Get("/ws", orch.HandleWS)

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func requestLoggerMiddleware(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
