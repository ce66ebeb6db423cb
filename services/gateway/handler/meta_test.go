package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticegw/mcp-gateway/services/gateway/identity"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
)

type fakeIdentityResolver struct {
	env   identity.Envelope
	err   error
	prefs identity.Prefs
}

func (f *fakeIdentityResolver) Validate(ctx context.Context, token, nonce string) (identity.Envelope, error) {
	return f.env, f.err
}

func (f *fakeIdentityResolver) UserPrefs(ctx context.Context, username string) (identity.Prefs, error) {
	return f.prefs, nil
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	raw := []byte(`{
      "database": "ANALYTICS",
      "schemas": {"PUBLIC": {"tables": {"REQUEST_LOG": {"columns": [
        {"name": "HOUR", "type": "TIMESTAMP"}
      ]}}, "views": {"DAILY_SUMMARY": {"columns": [
        {"name": "DAY", "type": "DATE"}
      ]}}}}
    }`)
	reg, err := schema.LoadBytes(raw)
	require.NoError(t, err)
	return reg
}

func TestMetaHandler_SchemaFlattensSchemasAndViews(t *testing.T) {
	h := NewMetaHandler(testRegistry(t), &fakeIdentityResolver{}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/meta/schema", nil)
	rec := httptest.NewRecorder()

	h.Schema(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp schemaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Tables, "PUBLIC.REQUEST_LOG")
	assert.Contains(t, resp.Views, "PUBLIC.DAILY_SUMMARY")
	assert.NotEmpty(t, resp.Hash)
}

func TestMetaHandler_UserRequiresBearerToken(t *testing.T) {
	h := NewMetaHandler(testRegistry(t), &fakeIdentityResolver{}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/meta/user", nil)
	rec := httptest.NewRecorder()

	h.User(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetaHandler_UserReturnsPrefsForValidToken(t *testing.T) {
	resolver := &fakeIdentityResolver{
		env:   identity.Envelope{Username: "alice"},
		prefs: identity.Prefs{Theme: "dark", Timezone: "America/New_York"},
	}
	h := NewMetaHandler(testRegistry(t), resolver, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/meta/user", nil)
	req.Header.Set("Authorization", "Bearer tk_abc")
	rec := httptest.NewRecorder()

	h.User(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var prefs identity.Prefs
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prefs))
	assert.Equal(t, "dark", prefs.Theme)
}
