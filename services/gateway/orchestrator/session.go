/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Per-connection session state (C10) — the only place
             in the gateway that holds state across requests.
             Tracks the validated envelope, a bounded rolling
             conversation history, in-flight request cancel funcs
             (so a disconnect cancels outstanding work), and the
             session's last observed write time (recorded here;
             the activity endpoint takes its last-write time from
             the request body instead).
Root Cause:  Sprint task G040 — orchestrator session state.
Context:     One Session exists per live WebSocket connection;
             Orchestrator never looks at another session's state.
Suitability: L3 — concurrency-safe connection state.
──────────────────────────────────────────────────────────────
*/

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/latticegw/mcp-gateway/services/gateway/identity"
)

const maxHistoryEntries = 20

// wsConn is the slice of *websocket.Conn the session needs — narrowed so
// tests can drive the dispatch logic without a live socket.
type wsConn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Session is the per-connection state spec §4.10 names:
// {session_id, ws, auth_envelope?, conversation_context, pending_requests}.
type Session struct {
	ID   string
	conn wsConn

	writeMu sync.Mutex // serializes conn.WriteJSON; gorilla conns aren't write-concurrent-safe

	mu        sync.Mutex
	envelope  *identity.Envelope
	history   []string
	pending   map[string]context.CancelFunc
	lastWrite time.Time
}

func newSession(conn wsConn) *Session {
	return &Session{
		ID:      uuid.NewString(),
		conn:    conn,
		pending: make(map[string]context.CancelFunc),
	}
}

// SetEnvelope records the envelope C3 resolved for this session's token.
func (s *Session) SetEnvelope(env identity.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelope = &env
}

// Envelope returns the session's validated envelope, if any.
func (s *Session) Envelope() (identity.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envelope == nil {
		return identity.Envelope{}, false
	}
	return *s.envelope, true
}

// RecordWrite marks that this session just wrote an event. No reader in
// the gateway consults it; C9's fresh-window decision uses the
// last_write_at the activity request carries.
func (s *Session) RecordWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWrite = time.Now()
}

// LastWriteAt returns the last time this session wrote an event (zero
// value if it never has).
func (s *Session) LastWriteAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWrite
}

func (s *Session) appendHistory(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, content)
	if len(s.history) > maxHistoryEntries {
		s.history = s.history[len(s.history)-maxHistoryEntries:]
	}
}

func (s *Session) track(requestID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[requestID] = cancel
}

func (s *Session) untrack(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, requestID)
}

// cancelAll cancels every in-flight request on this connection — called on
// disconnect so server-side work for a gone client can stop cooperatively.
func (s *Session) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.pending {
		cancel()
		delete(s.pending, id)
	}
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}
