package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/consistency"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
)

// consistencyReader is the slice of consistency.Reader this handler needs.
type consistencyReader interface {
	Read(ctx context.Context, kind string, params map[string]any, lastWriteAt time.Time, freshWindow time.Duration) (*consistency.Result, error)
}

type activityRequest struct {
	Kind               string         `json:"kind"`
	Params             map[string]any `json:"params"`
	LastWriteAt        *time.Time     `json:"last_write_at,omitempty"`
	FreshWindowSeconds int            `json:"fresh_window_seconds,omitempty"`
}

type activityResponse struct {
	Kind       string              `json:"kind"`
	Source     consistency.Source  `json:"source"`
	Data       any                 `json:"data"`
	ObservedAt time.Time           `json:"observed_at"`
}

// ActivityHandler serves POST /api/activity: a read-after-write-aware
// lookup over the ingestion/processed lane split (spec §6, §4.9).
type ActivityHandler struct {
	identity identityResolver
	reader   consistencyReader
	logger   zerolog.Logger
}

func NewActivityHandler(identitySvc identityResolver, reader consistencyReader, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{identity: identitySvc, reader: reader, logger: logger.With().Str("component", "activity_handler").Logger()}
}

func (h *ActivityHandler) Activity(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, gwerrors.New(gwerrors.ClassAuth, "unauth", "missing bearer token"))
		return
	}
	if _, err := h.identity.Validate(r.Context(), token, syntheticNonce()); err != nil {
		writeError(w, err)
		return
	}

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerrors.New(gwerrors.ClassValidation, "malformed_body", "request body is not valid JSON"))
		return
	}
	if req.Kind == "" {
		writeError(w, gwerrors.New(gwerrors.ClassValidation, "missing_kind", "kind is required"))
		return
	}

	var lastWrite time.Time
	if req.LastWriteAt != nil {
		lastWrite = *req.LastWriteAt
	}
	freshWindow := time.Duration(req.FreshWindowSeconds) * time.Second

	result, err := h.reader.Read(r.Context(), req.Kind, req.Params, lastWrite, freshWindow)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, activityResponse{
		Kind: result.Kind, Source: result.Source, Data: result.Data, ObservedAt: result.ObservedAt,
	})
}
