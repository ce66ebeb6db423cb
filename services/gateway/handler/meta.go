package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/identity"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
)

// identityResolver is the slice of identity.Service MetaHandler needs.
type identityResolver interface {
	Validate(ctx context.Context, token, nonce string) (identity.Envelope, error)
	UserPrefs(ctx context.Context, username string) (identity.Prefs, error)
}

// MetaHandler serves GET /meta/schema, /meta/schema.hash, and /meta/user.
type MetaHandler struct {
	registry *schema.Registry
	identity identityResolver
	logger   zerolog.Logger
}

func NewMetaHandler(registry *schema.Registry, identitySvc identityResolver, logger zerolog.Logger) *MetaHandler {
	return &MetaHandler{registry: registry, identity: identitySvc, logger: logger.With().Str("component", "meta_handler").Logger()}
}

type schemaResponse struct {
	Views  map[string]schema.Relation `json:"views"`
	Tables map[string]schema.Relation `json:"tables"`
	Hash   string                     `json:"hash"`
}

// Schema serves GET /meta/schema: the contract clients self-validate
// plans against, flattened to {views, tables, hash} per spec §6.
func (h *MetaHandler) Schema(w http.ResponseWriter, r *http.Request) {
	contract := h.registry.Contract()
	resp := schemaResponse{
		Views:  make(map[string]schema.Relation),
		Tables: make(map[string]schema.Relation),
		Hash:   h.registry.Hash(),
	}
	for schemaName, group := range contract.Schemas {
		for name, rel := range group.Tables {
			resp.Tables[schemaName+"."+name] = rel
		}
		for name, rel := range group.Views {
			rel.IsView = true
			resp.Views[schemaName+"."+name] = rel
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SchemaHash serves GET /meta/schema.hash: the contract's hash without the
// contract body. Query tags do not carry the hash.
func (h *MetaHandler) SchemaHash(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"hash": h.registry.Hash()})
}

// User serves GET /meta/user: the caller's display preferences, spec §6
// "{theme, timezone}".
func (h *MetaHandler) User(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error_class": "auth", "error": "missing bearer token"})
		return
	}
	env, err := h.identity.Validate(r.Context(), token, syntheticNonce())
	if err != nil {
		writeError(w, err)
		return
	}
	prefs, err := h.identity.UserPrefs(r.Context(), env.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
