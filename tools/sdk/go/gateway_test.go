package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_GetSchemaReturnsDoc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meta/schema" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(SchemaDoc{Hash: "abc123", Tables: map[string]Relation{}, Views: map[string]Relation{}})
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	doc, err := c.GetSchema(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Hash != "abc123" {
		t.Fatalf("expected hash abc123, got %s", doc.Hash)
	}
}

func TestClient_QueryReturnsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tk_abc" {
			t.Fatalf("expected bearer token forwarded, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(QueryResult{OK: true, Count: 1, Rows: []map[string]any{{"n": 1}}})
	}))
	defer srv.Close()

	c := NewClient("tk_abc", WithBaseURL(srv.URL))
	result, err := c.Query(context.Background(), &Plan{Source: "orders"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("expected count 1, got %d", result.Count)
	}
}

func TestClient_ErrorResponseParsesErrorClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_class": "quota", "error": "daily_budget_exceeded"})
	}))
	defer srv.Close()

	c := NewClient("tk_abc", WithBaseURL(srv.URL))
	_, err := c.Query(context.Background(), &Plan{Source: "orders"})
	if err == nil {
		t.Fatal("expected an error")
	}
	quotaErr, ok := err.(*QuotaExceededError)
	if !ok {
		t.Fatalf("expected *QuotaExceededError, got %T", err)
	}
	if quotaErr.Code != "daily_budget_exceeded" {
		t.Fatalf("expected code daily_budget_exceeded, got %s", quotaErr.Code)
	}
}

func TestClient_RedeemActivationUpdatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ActivationResult{
			RedirectURI: "claudecode://activate?token=tk_new&user=alice",
			Token:       "tk_new",
			Username:    "alice",
		})
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	result, err := c.RedeemActivation(context.Background(), "code123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token != "tk_new" {
		t.Fatalf("expected token tk_new, got %s", result.Token)
	}
	if c.token != "tk_new" {
		t.Fatalf("expected client token updated to tk_new, got %s", c.token)
	}
}

func TestMemoryCredentialStore_SetGetDelete(t *testing.T) {
	store := NewMemoryCredentialStore()

	if err := store.Set("gateway", "default", "tk_abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := store.Get("gateway", "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "tk_abc" {
		t.Fatalf("expected tk_abc, got %s", value)
	}

	if err := store.Delete("gateway", "default"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Get("gateway", "default"); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestMemoryCredentialStore_SatisfiesCredentialStore(t *testing.T) {
	var _ CredentialStore = NewMemoryCredentialStore()
}
