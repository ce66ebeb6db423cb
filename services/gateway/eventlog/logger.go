/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Adaptive event logger (C2) — a per-action rolling
             rate counter that switches an action from per-event
             calls (sent synchronously from Log) to a windowed,
             mutex-guarded batch buffer once its rate crosses a
             threshold. A single ticker goroutine flushes buffers
             that have aged past the window; there is no channel
             or per-lane worker, and the batching decision is made
             per action.
Root Cause:  Sprint task G004 — adaptive event logger.
Context:     A hot action (e.g. mcp.request.processed) does not
             issue one procedure call per event once traffic
             climbs; a cold action's Log blocks on its single call.
Suitability: L3 — concurrency + backpressure engineering.
──────────────────────────────────────────────────────────────
*/

package eventlog

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/events"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
)

const (
	// HardCap is the maximum number of events a single log_batch call accepts.
	HardCap = 1000
	// rateWindow is the rolling window the per-action rate counter uses.
	rateWindow = time.Minute
)

// Config controls the adaptive batching thresholds (spec §4.2).
type Config struct {
	RateThreshold int           // events/minute per action before switching to batch mode
	BufferWindow  time.Duration // max time a buffered batch waits before flushing
	BufferMax     int           // max events a buffered batch holds before flushing
}

func DefaultConfig() Config {
	return Config{RateThreshold: 10, BufferWindow: 5 * time.Second, BufferMax: 100}
}

// procedureCaller is the slice of eventstore.Adapter this package depends
// on, kept narrow so tests can substitute a fake warehouse.
type procedureCaller interface {
	CallProcedure(ctx context.Context, name string, args ...any) (json.RawMessage, error)
}

// warehouseSession is the full dependency New needs: a procedure caller
// that also lets the logger register its close-time flush hook.
type warehouseSession interface {
	procedureCaller
	OnClose(func(ctx context.Context) error)
}

// actionState tracks the rolling rate and pending buffer for one action.
type actionState struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	buffer      []events.Event
	lastFlush   time.Time
}

// Logger is the event logger: it enqueues single events immediately for
// cold actions, and switches a hot action to windowed batching once its
// rate crosses Config.RateThreshold.
type Logger struct {
	adapter procedureCaller
	cfg     Config
	logger  zerolog.Logger

	mu     sync.Mutex
	states map[events.Action]*actionState

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	enqueued int64
	flushed  int64
	dropped  int64
}

// New builds a Logger bound to an eventstore.Adapter. It registers itself
// as the adapter's close-time flush hook.
func New(adapter warehouseSession, logger zerolog.Logger, cfg ...Config) *Logger {
	c := DefaultConfig()
	if len(cfg) > 0 {
		c = cfg[0]
	}
	l := &Logger{
		adapter: adapter,
		cfg:     c,
		logger:  logger.With().Str("component", "eventlog").Logger(),
		states:  make(map[events.Action]*actionState),
		stopCh:  make(chan struct{}),
	}
	adapter.OnClose(l.Flush)
	l.wg.Add(1)
	go l.tickLoop()
	return l
}

// Log enqueues a single event, applying default event_id/occurred_at, and
// decides (per action) whether to send it immediately or fold it into the
// action's pending batch.
func (l *Logger) Log(ctx context.Context, ev events.Event) error {
	l.fillDefaults(&ev)
	atomic.AddInt64(&l.enqueued, 1)

	st := l.stateFor(ev.Action)
	st.mu.Lock()
	hot := l.observeLocked(st)
	if !hot {
		st.mu.Unlock()
		return l.send(ctx, []events.Event{ev})
	}
	st.buffer = append(st.buffer, ev)
	full := len(st.buffer) >= l.cfg.BufferMax
	var batch []events.Event
	if full {
		batch = st.buffer
		st.buffer = nil
		st.lastFlush = time.Now()
	}
	st.mu.Unlock()

	if full {
		return l.send(ctx, batch)
	}
	return nil
}

// LogBatch submits up to HardCap events as a single procedure call,
// bypassing the adaptive buffer — used when a caller already has a batch
// in hand (e.g. a dashboard backfill).
func (l *Logger) LogBatch(ctx context.Context, evs []events.Event) error {
	if len(evs) > HardCap {
		return gwerrors.New(gwerrors.ClassValidation, "batch_too_large", "log_batch accepts at most 1000 events")
	}
	for i := range evs {
		l.fillDefaults(&evs[i])
	}
	atomic.AddInt64(&l.enqueued, int64(len(evs)))
	return l.send(ctx, evs)
}

// Flush drains every action's pending buffer. Called on session close and
// from the adapter's OnClose hook.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	states := make([]*actionState, 0, len(l.states))
	for _, st := range l.states {
		states = append(states, st)
	}
	l.mu.Unlock()

	var firstErr error
	for _, st := range states {
		st.mu.Lock()
		batch := st.buffer
		st.buffer = nil
		st.mu.Unlock()
		if len(batch) == 0 {
			continue
		}
		if err := l.send(ctx, batch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop ends the periodic flush ticker. Does not itself flush; call Flush
// first if a final drain is needed.
func (l *Logger) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *Logger) stateFor(action events.Action) *actionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[action]
	if !ok {
		st = &actionState{windowStart: time.Now()}
		l.states[action] = st
	}
	return st
}

// observeLocked records one occurrence against the rolling window and
// reports whether the action is currently "hot" (over threshold).
// Caller holds st.mu.
func (l *Logger) observeLocked(st *actionState) bool {
	now := time.Now()
	if now.Sub(st.windowStart) > rateWindow {
		st.windowStart = now
		st.count = 0
	}
	st.count++
	return st.count > l.cfg.RateThreshold
}

func (l *Logger) fillDefaults(ev *events.Event) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
}

// send issues the actual procedure call: log_event for a single entry,
// log_events_batch otherwise. The logging procedure performs server-side
// enrichment (_claude_meta, redaction, role guard) per spec §4.2 — the
// logger itself never mutates event content.
func (l *Logger) send(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	var raw json.RawMessage
	var err error
	if len(batch) == 1 {
		raw, err = l.adapter.CallProcedure(ctx, "log_event", batch[0])
	} else {
		raw, err = l.adapter.CallProcedure(ctx, "log_events_batch", batch)
	}
	if err != nil {
		atomic.AddInt64(&l.dropped, int64(len(batch)))
		l.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("log flush failed")
		return err
	}

	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if uerr := json.Unmarshal(raw, &resp); uerr == nil && !resp.OK {
		atomic.AddInt64(&l.dropped, int64(len(batch)))
		return gwerrors.New(gwerrors.ClassAuthz, "forbidden", resp.Error)
	}

	atomic.AddInt64(&l.flushed, int64(len(batch)))
	return nil
}

// tickLoop flushes any action buffer that has aged past BufferWindow.
func (l *Logger) tickLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.BufferWindow)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.flushAged()
		}
	}
}

func (l *Logger) flushAged() {
	l.mu.Lock()
	states := make([]*actionState, 0, len(l.states))
	for _, st := range l.states {
		states = append(states, st)
	}
	l.mu.Unlock()

	now := time.Now()
	for _, st := range states {
		st.mu.Lock()
		if len(st.buffer) == 0 || now.Sub(st.lastFlush) < l.cfg.BufferWindow {
			st.mu.Unlock()
			continue
		}
		batch := st.buffer
		st.buffer = nil
		st.lastFlush = now
		st.mu.Unlock()

		if err := l.send(context.Background(), batch); err != nil {
			l.logger.Warn().Err(err).Msg("aged flush failed")
		}
	}
}

// Stats exposes counters for the health endpoint.
type Stats struct {
	Enqueued int64 `json:"enqueued"`
	Flushed  int64 `json:"flushed"`
	Dropped  int64 `json:"dropped"`
}

func (l *Logger) Stats() Stats {
	return Stats{
		Enqueued: atomic.LoadInt64(&l.enqueued),
		Flushed:  atomic.LoadInt64(&l.flushed),
		Dropped:  atomic.LoadInt64(&l.dropped),
	}
}
