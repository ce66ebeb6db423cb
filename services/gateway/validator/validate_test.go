package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticegw/mcp-gateway/services/gateway/compiler"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
)

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

type fakeDryCompiler struct{ err error }

func (f fakeDryCompiler) DryCompile(ctx context.Context, plan compiler.Plan) error { return f.err }

func TestValidate_InvalidPlanReturnsErrors(t *testing.T) {
	res := Validate(context.Background(), compiler.Plan{Source: "NOPE"}, testRegistry(t), nil)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}

func TestValidate_WarnsOnMeasuresWithoutDimensions(t *testing.T) {
	res := Validate(context.Background(), compiler.Plan{
		Source:   "REQUEST_LOG",
		Measures: []compiler.Measure{{Fn: "AVG", Column: "LATENCY_MS"}},
		TopN:     10,
	}, testRegistry(t), nil)
	assert.True(t, res.Valid)
	assert.Contains(t, res.Warnings, "measures without dimensions will return a single row")
}

func TestValidate_WarnsOnMissingLimit(t *testing.T) {
	res := Validate(context.Background(), compiler.Plan{
		Source:     "REQUEST_LOG",
		Dimensions: []string{"HOUR"},
	}, testRegistry(t), nil)
	assert.True(t, res.Valid)
	assert.Contains(t, res.Warnings, "no limit specified — default will apply")
}

func TestValidate_DryCompileFailureMarksInvalid(t *testing.T) {
	res := Validate(context.Background(), compiler.Plan{
		Source:     "REQUEST_LOG",
		Dimensions: []string{"HOUR"},
		TopN:       10,
	}, testRegistry(t), fakeDryCompiler{err: errors.New("server disagrees")})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "dry compile failed")
}
