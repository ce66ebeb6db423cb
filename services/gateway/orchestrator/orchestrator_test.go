package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/compiler"
	"github.com/latticegw/mcp-gateway/services/gateway/events"
	"github.com/latticegw/mcp-gateway/services/gateway/executor"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/identity"
	"github.com/latticegw/mcp-gateway/services/gateway/quota"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
	"github.com/latticegw/mcp-gateway/services/gateway/smartrouter"
)

// fakeConn captures every message written to it so tests can assert on
// the wire shape without a live socket.
type fakeConn struct {
	mu      sync.Mutex
	written []map[string]any
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := json.Marshal(v)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	f.written = append(f.written, m)
	return nil
}

func (f *fakeConn) ReadJSON(v any) error { return nil }
func (f *fakeConn) Close() error         { return nil }

func (f *fakeConn) messagesOfType(t string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, m := range f.written {
		if m["type"] == t {
			out = append(out, m)
		}
	}
	return out
}

type fakeIdentity struct {
	env identity.Envelope
	err error
}

func (f *fakeIdentity) Validate(ctx context.Context, token, nonce string) (identity.Envelope, error) {
	return f.env, f.err
}

type fakeClassifier struct {
	decision smartrouter.Decision
	err      error
}

func (f *fakeClassifier) Classify(ctx context.Context, username, request string) (smartrouter.Decision, error) {
	return f.decision, f.err
}

type fakeExec struct {
	result *executor.Result
	err    error
}

func (f *fakeExec) Execute(ctx context.Context, plan compiler.Plan, registry *schema.Registry, env identity.Envelope, username string) (*executor.Result, error) {
	return f.result, f.err
}

func (f *fakeExec) DryCompile(ctx context.Context, plan compiler.Plan) error { return nil }

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

func testOrchestrator(idn identityValidator, cls classifier, exec planExecutor, q quotaTracker) (*Orchestrator, *fakeEventLogger) {
	evLog := &fakeEventLogger{}
	o := New(idn, cls, &schema.Registry{}, exec, q, evLog, nil, zerolog.Nop(), 0, 0)
	return o, evLog
}

func TestHandleToolsCall_InvalidTokenSendsAuthError(t *testing.T) {
	idn := &fakeIdentity{err: gwerrors.New(gwerrors.ClassAuth, "malformed_token", "bad token")}
	o, evLog := testOrchestrator(idn, &fakeClassifier{}, &fakeExec{}, quota.NewTracker())
	conn := &fakeConn{}
	sess := newSession(conn)

	o.handleInbound(context.Background(), sess, Inbound{Type: TypeToolsCall, Token: "bad", Nonce: "n1"})

	errs := conn.messagesOfType(typeError)
	if len(errs) != 1 {
		t.Fatalf("expected one error message, got %d", len(errs))
	}
	if errs[0]["error_class"] != string(gwerrors.ClassAuth) {
		t.Fatalf("expected auth error class, got %v", errs[0]["error_class"])
	}

	found := false
	for _, ev := range evLog.logged {
		if ev.Action == events.Action("mcp.error.auth") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected mcp.error.auth event, got %v", evLog.logged)
	}
}

func TestHandleToolsCall_Tier1RunsPlanAndEmitsSQLResult(t *testing.T) {
	idn := &fakeIdentity{env: identity.Envelope{Username: "alice", AllowedTools: []string{"ask_analytics"}, MaxRows: 100, DailyRuntimeSeconds: 3600}}
	cls := &fakeClassifier{decision: smartrouter.Decision{Tier: smartrouter.Tier1, Template: smartrouter.TemplateSampleTop, Params: map[string]any{"n": 5}}}
	exec := &fakeExec{result: &executor.Result{OK: true, QueryID: "q1", RowCount: 3, SampleRows: []map[string]any{{"a": 1}}, BytesScanned: 100}}
	o, evLog := testOrchestrator(idn, cls, exec, quota.NewTracker())
	conn := &fakeConn{}
	sess := newSession(conn)

	o.handleInbound(context.Background(), sess, Inbound{Type: TypeToolsCall, Token: "tk_abc", Nonce: "n1", Name: "ask_analytics", Arguments: map[string]any{"content": "top 5"}})

	results := conn.messagesOfType(typeSQLResult)
	if len(results) != 1 {
		t.Fatalf("expected one sql-result message, got %d", len(results))
	}
	if results[0]["count"].(float64) != 3 {
		t.Fatalf("unexpected count: %v", results[0]["count"])
	}

	found := false
	for _, ev := range evLog.logged {
		if ev.Action == events.ActionRequestProcessed {
			found = true
			if ev.Attributes["success"] != true {
				t.Fatalf("expected success=true, got %v", ev.Attributes["success"])
			}
		}
	}
	if !found {
		t.Fatalf("expected mcp.request.processed event")
	}
}

type fakeLimiter struct {
	allow bool
}

func (f *fakeLimiter) Allow(username, tool string) bool { return f.allow }

func TestHandleToolsCall_RateLimitedRefusesWithoutClassifying(t *testing.T) {
	idn := &fakeIdentity{env: identity.Envelope{Username: "alice", AllowedTools: []string{"ask_analytics"}}}
	cls := &fakeClassifier{err: gwerrors.New(gwerrors.ClassExecution, "other", "classify must not be called")}
	evLog := &fakeEventLogger{}
	o := New(idn, cls, &schema.Registry{}, &fakeExec{}, quota.NewTracker(), evLog, &fakeLimiter{allow: false}, zerolog.Nop(), 0, 0)
	conn := &fakeConn{}
	sess := newSession(conn)

	o.handleInbound(context.Background(), sess, Inbound{Type: TypeToolsCall, Token: "tk_abc", Nonce: "n1", Name: "ask_analytics"})

	errs := conn.messagesOfType(typeError)
	if len(errs) != 1 || errs[0]["error_class"] != string(gwerrors.ClassQuota) {
		t.Fatalf("expected one quota-class error, got %v", conn.written)
	}
	found := false
	for _, ev := range evLog.logged {
		if ev.Action == events.ActionRequestProcessed && ev.Attributes["reason"] == "rate_limited" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rate_limited request.processed event")
	}
}

func TestHandleUserMessage_UnauthenticatedSessionErrors(t *testing.T) {
	o, _ := testOrchestrator(&fakeIdentity{}, &fakeClassifier{}, &fakeExec{}, quota.NewTracker())
	conn := &fakeConn{}
	sess := newSession(conn)

	o.handleInbound(context.Background(), sess, Inbound{Type: TypeUserMessage, Content: "top 10"})

	errs := conn.messagesOfType(typeError)
	if len(errs) != 1 {
		t.Fatalf("expected auth error, got %d messages", len(errs))
	}
}

func TestHandleUserMessage_NoPlanSendsAssistantReply(t *testing.T) {
	idn := &fakeIdentity{}
	cls := &fakeClassifier{decision: smartrouter.Decision{Tier: smartrouter.Tier3, Reply: "try rephrasing"}}
	o, evLog := testOrchestrator(idn, cls, &fakeExec{}, quota.NewTracker())
	conn := &fakeConn{}
	sess := newSession(conn)
	sess.SetEnvelope(identity.Envelope{Username: "alice"})

	o.handleInbound(context.Background(), sess, Inbound{Type: TypeUserMessage, Content: "tell me a story"})

	msgs := conn.messagesOfType(typeAssistantMessage)
	if len(msgs) != 1 || msgs[0]["content"] != "try rephrasing" {
		t.Fatalf("expected assistant reply, got %v", conn.written)
	}
	found := false
	for _, ev := range evLog.logged {
		if ev.Action == events.ActionRequestProcessed && ev.Attributes["reason"] == "no_plan" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected no_plan request.processed event")
	}
}

func TestHandleExecutePanel_BypassesClassifierAndRunsPlan(t *testing.T) {
	idn := &fakeIdentity{}
	cls := &fakeClassifier{err: gwerrors.New(gwerrors.ClassExecution, "other", "classify must not be called")}
	exec := &fakeExec{result: &executor.Result{OK: true, QueryID: "q2", RowCount: 1, BytesScanned: 10}}
	o, _ := testOrchestrator(idn, cls, exec, quota.NewTracker())
	conn := &fakeConn{}
	sess := newSession(conn)
	sess.SetEnvelope(identity.Envelope{Username: "alice", DailyRuntimeSeconds: 3600})

	o.handleInbound(context.Background(), sess, Inbound{Type: TypeExecutePanel, Panel: &PanelRequest{Source: "REQUEST_LOG", TopN: 10}})

	results := conn.messagesOfType(typeSQLResult)
	if len(results) != 1 {
		t.Fatalf("expected sql-result, got %v", conn.written)
	}
}

func TestHandleToolsCall_QuotaExceededSendsError(t *testing.T) {
	idn := &fakeIdentity{env: identity.Envelope{Username: "alice", DailyRuntimeSeconds: 1}}
	cls := &fakeClassifier{decision: smartrouter.Decision{Tier: smartrouter.Tier3, Plan: &compiler.Plan{Source: "REQUEST_LOG", TopN: 10}}}
	o, evLog := testOrchestrator(idn, cls, &fakeExec{}, quota.NewTracker())
	conn := &fakeConn{}
	sess := newSession(conn)

	o.handleInbound(context.Background(), sess, Inbound{Type: TypeToolsCall, Token: "tk_abc", Nonce: "n1"})

	errs := conn.messagesOfType(typeError)
	if len(errs) != 1 || errs[0]["error_class"] != string(gwerrors.ClassQuota) {
		t.Fatalf("expected quota error, got %v", conn.written)
	}
	for _, ev := range evLog.logged {
		if ev.Action == events.Action("mcp.error.quota") && ev.Attributes["reason"] == "quota_exceeded" {
			return
		}
	}
	t.Fatalf("expected mcp.error.quota event with reason quota_exceeded")
}

func TestHandleToolsCall_DisallowedToolSendsAuthzError(t *testing.T) {
	idn := &fakeIdentity{env: identity.Envelope{Username: "alice", AllowedTools: []string{"ask_analytics"}}}
	cls := &fakeClassifier{err: gwerrors.New(gwerrors.ClassExecution, "other", "classify must not be called")}
	o, _ := testOrchestrator(idn, cls, &fakeExec{}, quota.NewTracker())
	conn := &fakeConn{}
	sess := newSession(conn)

	o.handleInbound(context.Background(), sess, Inbound{Type: TypeToolsCall, Token: "tk_abc", Nonce: "n1", Name: "delete_everything"})

	errs := conn.messagesOfType(typeError)
	if len(errs) != 1 || errs[0]["error_class"] != string(gwerrors.ClassAuthz) {
		t.Fatalf("expected authz error, got %v", conn.written)
	}
}

func TestSession_CancelAllCancelsTrackedRequests(t *testing.T) {
	sess := newSession(&fakeConn{})
	cancelled := false
	ctx, cancel := context.WithCancel(context.Background())
	sess.track("r1", func() { cancelled = true; cancel() })
	sess.cancelAll()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected context to be cancelled")
	}
	if !cancelled {
		t.Fatalf("expected cancel func to run")
	}
}
