/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       CredentialStore is a {get, set, delete} capability
             scoped by (service, account) pairs, generalized from
             a remote Vault HTTP API down to a pluggable local
             interface. MemoryStore is the in-process
             implementation used by tests and by deployments that
             don't need an external secret manager; it applies the
             same TTL-cache discipline the Vault client used for
             provider keys.
Root Cause:  Sprint task G054 — credential storage for warehouse
             connection secrets, separate from Vault's original
             provider-key scope.
Context:     An OS-keychain-backed store is a client-side concern
             (see the Go SDK) and out of scope here.
Suitability: L3 — in-memory store; no external secret manager
             wired in this deployment.
──────────────────────────────────────────────────────────────
*/

// Package credstore holds warehouse and integration credentials, keyed by
// (service, account), independent of where they ultimately live.
package credstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is the CredentialStore capability: get, set, and delete secrets
// scoped by a (service, account) pair. A service is a logical integration
// name ("snowflake", "redis"); an account is the identity within it
// ("warehouse-prod", "cache-primary").
type Store interface {
	Get(ctx context.Context, service, account string) (string, error)
	Set(ctx context.Context, service, account, value string) error
	Delete(ctx context.Context, service, account string) error
}

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

func key(service, account string) string {
	return service + "/" + account
}

// MemoryStore is an in-process Store, guarded by a mutex like the teacher's
// VaultClient cache. It has no backing remote — Set writes are the only way
// a value gets in — so there is no network path to retry or fall back from.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]entry
	ttl     time.Duration // 0 disables expiry
}

// NewMemoryStore creates an empty store. ttl, if non-zero, expires any
// credential that hasn't been refreshed by Set within that window —
// mirroring the Vault client's RenewTTL cache discipline for provider keys.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		secrets: make(map[string]entry),
		ttl:     ttl,
	}
}

// Get returns the stored value for (service, account), or an error if it's
// absent or has expired.
func (m *MemoryStore) Get(ctx context.Context, service, account string) (string, error) {
	k := key(service, account)

	m.mu.RLock()
	e, ok := m.secrets[k]
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("credstore: no credential for %s", k)
	}
	if e.expired() {
		m.mu.Lock()
		delete(m.secrets, k)
		m.mu.Unlock()
		return "", fmt.Errorf("credstore: credential for %s expired", k)
	}
	return e.value, nil
}

// Set stores or overwrites the value for (service, account), resetting its
// expiry window.
func (m *MemoryStore) Set(ctx context.Context, service, account, value string) error {
	k := key(service, account)

	var expiresAt time.Time
	if m.ttl > 0 {
		expiresAt = time.Now().Add(m.ttl)
	}

	m.mu.Lock()
	m.secrets[k] = entry{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

// Delete removes the credential for (service, account). Deleting an absent
// key is not an error — same idempotent-delete contract as Vault's secret
// metadata deletion.
func (m *MemoryStore) Delete(ctx context.Context, service, account string) error {
	m.mu.Lock()
	delete(m.secrets, key(service, account))
	m.mu.Unlock()
	return nil
}

// List returns every (service, account) pair currently stored and
// unexpired, mirroring VaultClient.ListProviders' metadata-listing role.
func (m *MemoryStore) List(ctx context.Context) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.secrets))
	for k, e := range m.secrets {
		if !e.expired() {
			keys = append(keys, k)
		}
	}
	return keys
}
