package consistency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeIngestion struct {
	calls int
	data  any
	err   error
}

func (f *fakeIngestion) ScanIngestion(ctx context.Context, kind string, params map[string]any) (any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeProjection struct {
	calls int
	data  any
	err   error
}

func (f *fakeProjection) ReadProjection(ctx context.Context, kind string, params map[string]any) (any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func TestRead_RecentWriteScansIngestionLane(t *testing.T) {
	ing := &fakeIngestion{data: "raw-row"}
	proj := &fakeProjection{data: "view-row"}
	r := New(ing, proj, zerolog.Nop())

	res, err := r.Read(context.Background(), KindActivity, nil, time.Now(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != SourceRaw {
		t.Fatalf("expected RAW source, got %s", res.Source)
	}
	if ing.calls != 1 || proj.calls != 0 {
		t.Fatalf("expected ingestion scan only, got ing=%d proj=%d", ing.calls, proj.calls)
	}
}

func TestRead_StaleWriteReadsProjection(t *testing.T) {
	ing := &fakeIngestion{data: "raw-row"}
	proj := &fakeProjection{data: "view-row"}
	r := New(ing, proj, zerolog.Nop())

	res, err := r.Read(context.Background(), KindSchema, nil, time.Now().Add(-10*time.Minute), 2*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != SourceView {
		t.Fatalf("expected VIEW source, got %s", res.Source)
	}
	if proj.calls != 1 || ing.calls != 0 {
		t.Fatalf("expected projection read only, got ing=%d proj=%d", ing.calls, proj.calls)
	}
}

func TestRead_NoPriorWriteReadsProjection(t *testing.T) {
	ing := &fakeIngestion{data: "raw-row"}
	proj := &fakeProjection{data: "view-row"}
	r := New(ing, proj, zerolog.Nop())

	res, err := r.Read(context.Background(), KindNamespace, nil, time.Time{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != SourceView {
		t.Fatalf("expected VIEW source for caller with no prior write, got %s", res.Source)
	}
}

func TestRead_RetriesTransientProjectionFailure(t *testing.T) {
	proj := &fakeProjection{err: errors.New("connection reset")}
	r := New(&fakeIngestion{}, proj, zerolog.Nop())
	r.policy.BaseDelay = time.Millisecond
	r.policy.MaxDelay = 5 * time.Millisecond

	_, err := r.Read(context.Background(), KindStatus, nil, time.Time{}, 0)
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if proj.calls != r.policy.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", r.policy.MaxAttempts, proj.calls)
	}
}

func TestRead_NonTransientFailureStopsImmediately(t *testing.T) {
	proj := &fakeProjection{err: errors.New("permission denied")}
	r := New(&fakeIngestion{}, proj, zerolog.Nop())

	_, err := r.Read(context.Background(), KindStatus, nil, time.Time{}, 0)
	if err == nil {
		t.Fatalf("expected error")
	}
	if proj.calls != 1 {
		t.Fatalf("expected a single attempt for a non-transient error, got %d", proj.calls)
	}
}
