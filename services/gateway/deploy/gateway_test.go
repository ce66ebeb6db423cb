package deploy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/events"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
)

type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	failOn   string
}

func (f *fakeExecutor) Execute(ctx context.Context, sql string, binds []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && sql == f.failOn {
		return gwerrors.New(gwerrors.ClassDeploy, "other", "simulated failure")
	}
	f.executed = append(f.executed, sql)
	return nil
}

type fakeStage struct {
	md5     string
	size    int64
	content []byte
	err     error
}

func (f *fakeStage) StatStage(ctx context.Context, url string) (string, int64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.md5, f.size, nil
}

func (f *fakeStage) ReadStage(ctx context.Context, url string) ([]byte, error) {
	return f.content, nil
}

type fakeVersionStore struct {
	mu       sync.Mutex
	versions map[string]ObjectVersion
}

func newFakeVersionStore() *fakeVersionStore {
	return &fakeVersionStore{versions: make(map[string]ObjectVersion)}
}

func (f *fakeVersionStore) CurrentVersion(ctx context.Context, objectName string) (*ObjectVersion, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[objectName]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (f *fakeVersionStore) RecordVersion(ctx context.Context, objectName string, v ObjectVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[objectName] = v
	return nil
}

func (f *fakeVersionStore) List(ctx context.Context, filter string) ([]ObjectVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ObjectVersion, 0, len(f.versions))
	for _, v := range f.versions {
		out = append(out, v)
	}
	return out, nil
}

type fakeEventLogger struct {
	mu     sync.Mutex
	logged []events.Event
}

func (f *fakeEventLogger) Log(ctx context.Context, ev events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, ev)
	return nil
}

func TestDeploy_SuccessEmitsObjectDeployed(t *testing.T) {
	exec := &fakeExecutor{}
	versions := newFakeVersionStore()
	evLog := &fakeEventLogger{}
	gw := New(exec, nil, versions, evLog, zerolog.Nop())

	res, err := gw.Deploy(context.Background(), DeployRequest{
		ObjectType: "VIEW",
		Name:       "FOO",
		DDL:        "CREATE OR REPLACE VIEW FOO AS SELECT 1",
		ActorID:    "alice",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK result")
	}
	if res.Idempotent {
		t.Fatalf("first deploy should not be idempotent")
	}

	found := false
	for _, ev := range evLog.logged {
		if ev.Action == events.ActionDDLObjectDeployed {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ddl.object.deployed event")
	}
}

func TestDeploy_IdenticalContentRedeploySuppressed(t *testing.T) {
	exec := &fakeExecutor{}
	versions := newFakeVersionStore()
	gw := New(exec, nil, versions, &fakeEventLogger{}, zerolog.Nop())

	req := DeployRequest{ObjectType: "VIEW", Name: "FOO", DDL: "CREATE OR REPLACE VIEW FOO AS SELECT 1", ActorID: "alice"}
	first, err := gw.Deploy(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := gw.Deploy(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error on redeploy: %v", err)
	}
	if !second.Idempotent {
		t.Fatalf("expected idempotent redeploy")
	}
	if second.Version != first.Version {
		t.Fatalf("expected unchanged version on idempotent redeploy")
	}
}

func TestDeploy_VersionConflict(t *testing.T) {
	exec := &fakeExecutor{}
	versions := newFakeVersionStore()
	versions.versions["FOO"] = ObjectVersion{Version: "v1", DDLHash: "somehash"}
	gw := New(exec, nil, versions, &fakeEventLogger{}, zerolog.Nop())

	_, err := gw.Deploy(context.Background(), DeployRequest{
		ObjectType:      "VIEW",
		Name:            "FOO",
		DDL:             "CREATE OR REPLACE VIEW FOO AS SELECT 2",
		ExpectedVersion: "v0",
		ActorID:         "alice",
	})
	if err == nil {
		t.Fatalf("expected version_conflict error")
	}
	ge, ok := err.(*gwerrors.Error)
	if !ok || ge.Code != "version_conflict" {
		t.Fatalf("expected version_conflict, got %v", err)
	}
}

func TestDeploy_RejectsForbiddenDDLBeforeTouchingWarehouse(t *testing.T) {
	exec := &fakeExecutor{}
	gw := New(exec, nil, newFakeVersionStore(), &fakeEventLogger{}, zerolog.Nop())

	_, err := gw.Deploy(context.Background(), DeployRequest{
		ObjectType: "TABLE",
		Name:       "FOO",
		DDL:        "DROP TABLE FOO",
		ActorID:    "alice",
	})
	if err == nil {
		t.Fatalf("expected rejection")
	}
	if len(exec.executed) != 0 {
		t.Fatalf("forbidden DDL must never reach the warehouse")
	}
}

func TestDeploy_RequiresActiveLease(t *testing.T) {
	exec := &fakeExecutor{}
	gw := New(exec, nil, newFakeVersionStore(), &fakeEventLogger{}, zerolog.Nop())

	_, err := gw.Deploy(context.Background(), DeployRequest{
		ObjectType: "VIEW",
		Name:       "FOO",
		DDL:        "CREATE OR REPLACE VIEW FOO AS SELECT 1",
		LeaseID:    "nonexistent",
		ActorID:    "alice",
	})
	if err == nil {
		t.Fatalf("expected invalid_lease error")
	}
}

func TestDeploy_ValidLeasePermitsDeploy(t *testing.T) {
	exec := &fakeExecutor{}
	gw := New(exec, nil, newFakeVersionStore(), &fakeEventLogger{}, zerolog.Nop())
	gw.leases.claim(Lease{LeaseID: "l1", ExpiresAt: time.Now().Add(time.Minute)})

	_, err := gw.Deploy(context.Background(), DeployRequest{
		ObjectType: "VIEW",
		Name:       "FOO",
		DDL:        "CREATE OR REPLACE VIEW FOO AS SELECT 1",
		LeaseID:    "l1",
		ActorID:    "alice",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeploy_StageMD5MismatchRejected(t *testing.T) {
	exec := &fakeExecutor{}
	stage := &fakeStage{md5: "actual-md5", size: 10, content: []byte("CREATE OR REPLACE VIEW FOO AS SELECT 1")}
	gw := New(exec, stage, newFakeVersionStore(), &fakeEventLogger{}, zerolog.Nop())

	_, err := gw.Deploy(context.Background(), DeployRequest{
		ObjectType:  "VIEW",
		Name:        "FOO",
		StageURL:    "@stage/foo.sql",
		ExpectedMD5: "expected-md5",
		ActorID:     "alice",
	})
	if err == nil {
		t.Fatalf("expected checksum_mismatch error")
	}
	ge, ok := err.(*gwerrors.Error)
	if !ok || ge.Code != "checksum_mismatch" {
		t.Fatalf("expected checksum_mismatch error code, got %v", err)
	}
	if ge.Details["expected_md5"] != "expected-md5" || ge.Details["actual_md5"] != "actual-md5" {
		t.Fatalf("expected expected_md5/actual_md5 details, got %v", ge.Details)
	}
}

func TestValidate_ShadowCompilesWithoutRecordingVersion(t *testing.T) {
	exec := &fakeExecutor{}
	versions := newFakeVersionStore()
	gw := New(exec, nil, versions, &fakeEventLogger{}, zerolog.Nop())

	err := gw.Validate(context.Background(), "CREATE OR REPLACE VIEW FOO AS SELECT 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := versions.CurrentVersion(context.Background(), "FOO"); ok {
		t.Fatalf("validate must not record a version")
	}
}

func TestClaimRelease_RoundTrip(t *testing.T) {
	gw := New(&fakeExecutor{}, nil, newFakeVersionStore(), &fakeEventLogger{}, zerolog.Nop())
	if err := gw.Claim(context.Background(), "app", "ns", "agent1", "lease1", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gw.leases.active("lease1", time.Now()) {
		t.Fatalf("expected lease active after claim")
	}
	if err := gw.Release(context.Background(), "lease1", "agent1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.leases.active("lease1", time.Now()) {
		t.Fatalf("expected lease inactive after release")
	}
}
