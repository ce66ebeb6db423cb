/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Consistency reader (C9) — read-after-write safety
             across the ingestion-lane/processed-lane refresh
             lag. Scans the raw lane when the caller wrote
             recently, otherwise reads the refreshed projection,
             retrying transient failures with C1's shared
             backoff helper.
Root Cause:  Sprint task G038 — read-your-writes for dashboard
             and deployment reads that follow a write in the
             same session.
Context:     C8 deploys and C10's session writes both need the
             caller to immediately observe their own write even
             though the processed lane lags by up to ~1 minute.
Suitability: L3 — small retry/branch logic, no novel algorithm.
──────────────────────────────────────────────────────────────
*/

// Package consistency implements the read-after-write reader (spec §4.9):
// a caller who wrote within the fresh window is served from the ingestion
// lane directly; everyone else reads the processed-lane projection, which
// lags the ingestion lane by up to roughly a minute.
package consistency

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/eventstore"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
)

// Source names which lane actually served a read so callers can reason
// about staleness (spec §4.9: "return shape always includes the
// projection source").
type Source string

const (
	SourceRaw  Source = "RAW"  // ingestion lane, scanned directly
	SourceView Source = "VIEW" // processed-lane projection
)

// Kinds the reader knows how to resolve (spec §4.9).
const (
	KindSchema    = "schema"    // latest deployment for a qualified object
	KindNamespace = "namespace" // active leases
	KindActivity  = "activity"  // recent events by actor
	KindStatus    = "status"    // per-app deployment rollup
	KindSchedule  = "schedule"  // Schedule entity (spec §3)
)

const defaultFreshWindow = 2 * time.Minute

// IngestionScanner scans the raw, append-only lane for rows matching kind
// and params. Used only inside the fresh window, where the processed
// projection cannot yet be trusted to reflect a just-made write.
type IngestionScanner interface {
	ScanIngestion(ctx context.Context, kind string, params map[string]any) (any, error)
}

// ProjectionReader reads the refreshed processed-lane projection for kind.
// This is the normal, cheaper path once the fresh window has elapsed.
type ProjectionReader interface {
	ReadProjection(ctx context.Context, kind string, params map[string]any) (any, error)
}

// Result is the shape every read returns: the resolved data plus enough
// metadata for the caller to judge freshness.
type Result struct {
	Kind       string
	Source     Source
	Data       any
	ObservedAt time.Time
}

// Reader resolves reads across the ingestion/processed lane split. It owns
// its own Health/RetryPolicy pair rather than sharing C1's adapter-level
// instance, because a consistency read and a procedure call are different
// operations worth scoring independently — but both retry through the same
// eventstore.Do helper and eventstore.IsTransient heuristic, so the two
// transient-error-tolerant read paths never drift apart.
type Reader struct {
	ingestion  IngestionScanner
	projection ProjectionReader
	health     *eventstore.Health
	policy     eventstore.RetryPolicy
	logger     zerolog.Logger
}

// New builds a Reader with the default retry policy (spec §4.9: "base
// ~400ms, <=3 attempts").
func New(ingestion IngestionScanner, projection ProjectionReader, logger zerolog.Logger) *Reader {
	return &Reader{
		ingestion:  ingestion,
		projection: projection,
		health:     eventstore.NewHealth(),
		policy:     eventstore.RetryPolicy{MaxAttempts: 3, BaseDelay: 400 * time.Millisecond, MaxDelay: 5 * time.Second},
		logger:     logger.With().Str("component", "consistency").Logger(),
	}
}

// Read resolves kind/params with read-after-write safety. lastWriteAt is
// the time the calling session last wrote an event of its own (zero value
// if it hasn't written this session); freshWindow overrides the default
// 2-minute window when positive.
func (r *Reader) Read(ctx context.Context, kind string, params map[string]any, lastWriteAt time.Time, freshWindow time.Duration) (*Result, error) {
	if freshWindow <= 0 {
		freshWindow = defaultFreshWindow
	}
	fresh := !lastWriteAt.IsZero() && time.Since(lastWriteAt) <= freshWindow

	var data any
	source := SourceView
	err := eventstore.Do(ctx, r.policy, r.health, eventstore.IsTransient, func(ctx context.Context) error {
		if fresh {
			d, err := r.ingestion.ScanIngestion(ctx, kind, params)
			if err != nil {
				return err
			}
			data, source = d, SourceRaw
			return nil
		}
		d, err := r.projection.ReadProjection(ctx, kind, params)
		if err != nil {
			return err
		}
		data, source = d, SourceView
		return nil
	})
	if err != nil {
		return nil, r.fail(kind, err)
	}

	return &Result{Kind: kind, Source: source, Data: data, ObservedAt: time.Now()}, nil
}

func (r *Reader) fail(kind string, err error) error {
	if ge, ok := err.(*gwerrors.Error); ok {
		return ge
	}
	ge := gwerrors.New(gwerrors.ClassExecution, "other", err.Error()).WithDetails(map[string]any{"kind": kind})
	r.logger.Warn().Err(err).Str("kind", kind).Msg("consistency read failed")
	return ge
}
