package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/identity"
)

type fakeActivationIdentity struct {
	pending bool
	result  identity.ActivationResult
	err     error
}

func (f *fakeActivationIdentity) ActivationPending(ctx context.Context, code string) (bool, error) {
	return f.pending, f.err
}

func (f *fakeActivationIdentity) RedeemActivation(ctx context.Context, code string) (identity.ActivationResult, error) {
	return f.result, f.err
}

func routedActivationRequest(method string, handlerFn http.HandlerFunc, code string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/activate/{code}", handlerFn)
	r.Post("/activate/{code}", handlerFn)
	req := httptest.NewRequest(method, "/activate/"+code, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestActivationHandler_StatusReportsPending(t *testing.T) {
	idn := &fakeActivationIdentity{pending: true}
	h := NewActivationHandler(idn, zerolog.Nop())

	rec := routedActivationRequest(http.MethodGet, h.Status, "code123")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp activationStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Pending)
}

func TestActivationHandler_StatusPropagatesLookupError(t *testing.T) {
	idn := &fakeActivationIdentity{err: gwerrors.New(gwerrors.ClassExecution, "other", "lookup failed")}
	h := NewActivationHandler(idn, zerolog.Nop())

	rec := routedActivationRequest(http.MethodGet, h.Status, "code123")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestActivationHandler_RedeemReturnsDeepLink(t *testing.T) {
	idn := &fakeActivationIdentity{result: identity.ActivationResult{Token: "tk_new", Username: "bob"}}
	h := NewActivationHandler(idn, zerolog.Nop())

	rec := routedActivationRequest(http.MethodPost, h.Redeem, "code123")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp activationRedeemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "claudecode://activate?token=tk_new&user=bob", resp.RedirectURI)
}

func TestActivationLimiter_BlocksAfterMaxAttempts(t *testing.T) {
	l := newActivationLimiter()
	l.max = 3

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("1.2.3.4"))
	}
	assert.False(t, l.allow("1.2.3.4"))
	assert.True(t, l.allow("5.6.7.8"))
}
