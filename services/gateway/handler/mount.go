/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Attaches this package's REST handlers onto the
             chi.Mux the orchestrator builds for /health and /ws,
             so the WebSocket edge and the REST edge are a single
             listener (spec §6's full endpoint list).
Root Cause:  Sprint task G045 — REST endpoints.
Context:     main() calls Mount once, after NewMux, with every
             handler this package exposes.
Suitability: L3 — route wiring.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"github.com/go-chi/chi/v5"
)

// Mount attaches the REST surface (spec §6, §4.8) onto an existing
// chi.Mux. Any handler argument may be nil if the caller hasn't wired that
// concern yet; Mount skips registering routes for a nil handler rather
// than panicking, so partial wiring during incremental startup doesn't
// crash the process.
func Mount(r chi.Router, meta *MetaHandler, validate *ValidateHandler, query *QueryHandler, activity *ActivityHandler, activation *ActivationHandler, dev *DevHandler, schedule *ScheduleHandler) {
	if meta != nil {
		r.Get("/meta/schema", meta.Schema)
		r.Get("/meta/schema.hash", meta.SchemaHash)
		r.Get("/meta/user", meta.User)
	}
	if validate != nil {
		r.Post("/api/validate", validate.Validate)
	}
	if query != nil {
		r.Post("/api/query", query.Query)
	}
	if activity != nil {
		r.Post("/api/activity", activity.Activity)
	}
	if activation != nil {
		r.Get("/activate/{code}", activation.Status)
		r.Post("/activate/{code}", activation.Redeem)
	}
	if dev != nil {
		r.Post("/dev", dev.Dispatch)
	}
	if schedule != nil {
		r.Post("/api/schedule", schedule.Dispatch)
	}
}
