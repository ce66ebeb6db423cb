package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticegw/mcp-gateway/services/gateway/compiler"
	"github.com/latticegw/mcp-gateway/services/gateway/eventstore"
	"github.com/latticegw/mcp-gateway/services/gateway/events"
	"github.com/latticegw/mcp-gateway/services/gateway/identity"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
	"github.com/rs/zerolog"
)

type call struct {
	name string
	args []any
}

type fakeAdapter struct {
	calls    []call
	response json.RawMessage
	err      error
}

func (f *fakeAdapter) CallProcedure(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeTagger struct {
	lastTag eventstore.QueryTag
	calls   int
}

func (f *fakeTagger) SetTag(ctx context.Context, tag eventstore.QueryTag) error {
	f.lastTag = tag
	f.calls++
	return nil
}

type fakeEventLogger struct {
	logged []events.Event
}

func (f *fakeEventLogger) Log(ctx context.Context, ev events.Event) error {
	f.logged = append(f.logged, ev)
	return nil
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	raw := []byte(`{
      "database": "ANALYTICS",
      "schemas": {"PUBLIC": {"tables": {"REQUEST_LOG": {"columns": [
        {"name": "HOUR", "type": "TIMESTAMP"},
        {"name": "LATENCY_MS", "type": "NUMBER"}
      ]}}, "views": {}}},
      "allowed_aggregations": ["COUNT", "AVG"],
      "allowed_operators": ["="],
      "allowed_grains": ["HOUR"],
      "security": {"max_rows_per_query": 10000},
      "activity_namespace": {"prefix": "mcp", "standard_activities": []}
    }`)
	r, err := schema.LoadBytes(raw)
	require.NoError(t, err)
	return r
}

func TestExecute_Success(t *testing.T) {
	adapter := &fakeAdapter{response: json.RawMessage(`{"ok":true,"query_id":"q1","row_count":3,"sample_rows":[{"HOUR":"2026-07-31T00:00:00Z"}],"bytes_scanned":1024}`)}
	tags := &fakeTagger{}
	evLog := &fakeEventLogger{}
	ex := New(adapter, tags, evLog, zerolog.Nop())

	plan := compiler.Plan{Source: "REQUEST_LOG", TopN: 10}
	env := identity.Envelope{Username: "alice", MaxRows: 1000}

	res, err := ex.Execute(context.Background(), plan, testRegistry(t), env, "alice")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "q1", res.QueryID)
	assert.Equal(t, 3, res.RowCount)
	assert.Equal(t, int64(1024), res.BytesScanned)
	assert.Equal(t, 1, tags.calls)
	assert.Equal(t, "execute_query_plan", tags.lastTag.Op)
	assert.Empty(t, evLog.logged)
}

func TestExecute_RowCapClampedToEnvelopeMax(t *testing.T) {
	adapter := &fakeAdapter{response: json.RawMessage(`{"ok":true,"query_id":"q1","row_count":0,"sample_rows":[],"bytes_scanned":0}`)}
	ex := New(adapter, &fakeTagger{}, &fakeEventLogger{}, zerolog.Nop())

	plan := compiler.Plan{Source: "REQUEST_LOG", TopN: 5000}
	env := identity.Envelope{Username: "bob", MaxRows: 100}

	_, err := ex.Execute(context.Background(), plan, testRegistry(t), env, "bob")
	require.NoError(t, err)

	require.Len(t, adapter.calls, 1)
	boundPlan, ok := adapter.calls[0].args[0].(compiler.Plan)
	require.True(t, ok)
	assert.Equal(t, 100, boundPlan.TopN)
}

func TestExecute_CompileFailureNeverCallsProcedure(t *testing.T) {
	adapter := &fakeAdapter{}
	ex := New(adapter, &fakeTagger{}, &fakeEventLogger{}, zerolog.Nop())

	plan := compiler.Plan{Source: "NOPE"}
	env := identity.Envelope{Username: "alice", MaxRows: 100}

	_, err := ex.Execute(context.Background(), plan, testRegistry(t), env, "alice")
	require.Error(t, err)
	assert.Empty(t, adapter.calls)
}

func TestExecute_ProcedureFailureEmitsErrorEvent(t *testing.T) {
	adapter := &fakeAdapter{response: json.RawMessage(`{"ok":false,"error_class":"timeout","error":"statement timed out","sql_state":"57014"}`)}
	evLog := &fakeEventLogger{}
	ex := New(adapter, &fakeTagger{}, evLog, zerolog.Nop())

	plan := compiler.Plan{Source: "REQUEST_LOG", TopN: 10}
	env := identity.Envelope{Username: "carol", MaxRows: 1000}

	_, err := ex.Execute(context.Background(), plan, testRegistry(t), env, "carol")
	require.Error(t, err)
	require.Len(t, evLog.logged, 1)
	assert.Equal(t, events.Action("mcp.error.timeout"), evLog.logged[0].Action)
	assert.Equal(t, "carol", evLog.logged[0].ActorID)
}

func TestDryCompile_PropagatesFailure(t *testing.T) {
	adapter := &fakeAdapter{response: json.RawMessage(`{"ok":false,"error_class":"syntax","error":"server disagrees"}`)}
	ex := New(adapter, &fakeTagger{}, &fakeEventLogger{}, zerolog.Nop())

	err := ex.DryCompile(context.Background(), compiler.Plan{Source: "REQUEST_LOG", TopN: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server disagrees")
}

func TestDryCompile_SucceedsOnOK(t *testing.T) {
	adapter := &fakeAdapter{response: json.RawMessage(`{"ok":true}`)}
	ex := New(adapter, &fakeTagger{}, &fakeEventLogger{}, zerolog.Nop())

	err := ex.DryCompile(context.Background(), compiler.Plan{Source: "REQUEST_LOG", TopN: 10})
	require.NoError(t, err)
}
