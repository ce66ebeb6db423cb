package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	raw := []byte(`{
      "database": "ANALYTICS",
      "schemas": {
        "PUBLIC": {
          "tables": {
            "REQUEST_LOG": {
              "columns": [
                {"name": "REQUEST_ID", "type": "STRING"},
                {"name": "HOUR", "type": "TIMESTAMP"},
                {"name": "LATENCY_MS", "type": "NUMBER"},
                {"name": "STATUS", "type": "STRING"}
              ]
            }
          },
          "views": {}
        }
      },
      "allowed_aggregations": ["COUNT", "COUNT_DISTINCT", "SUM", "AVG", "MIN", "MAX"],
      "allowed_operators": ["=", "!=", ">", ">=", "<", "<=", "IN", "NOT IN", "LIKE", "BETWEEN"],
      "allowed_grains": ["MINUTE", "HOUR", "DAY", "WEEK", "MONTH", "QUARTER", "YEAR"],
      "security": {"max_rows_per_query": 10000},
      "activity_namespace": {"prefix": "mcp", "standard_activities": []}
    }`)
	r, err := schema.LoadBytes(raw)
	require.NoError(t, err)
	return r
}

func TestCompile_UnknownSource(t *testing.T) {
	_, err := Compile(Plan{Source: "NOPE"}, testRegistry(t))
	requireClassCode(t, err, gwerrors.ClassValidation, "unknown_source")
}

func TestCompile_SimpleCountStar(t *testing.T) {
	out, err := Compile(Plan{Source: "REQUEST_LOG", Measures: []Measure{{Fn: "count"}}}, testRegistry(t))
	require.NoError(t, err)
	assert.Contains(t, out.SQLTemplate, "COUNT(*)")
	assert.Contains(t, out.SQLTemplate, "FROM REQUEST_LOG")
	assert.Contains(t, out.SQLTemplate, "LIMIT 10000")
}

func TestCompile_InvalidAggregation(t *testing.T) {
	_, err := Compile(Plan{Source: "REQUEST_LOG", Measures: []Measure{{Fn: "MEDIAN", Column: "LATENCY_MS"}}}, testRegistry(t))
	requireClassCode(t, err, gwerrors.ClassValidation, "invalid_aggregation")
}

func TestCompile_InvalidColumn(t *testing.T) {
	_, err := Compile(Plan{Source: "REQUEST_LOG", Dimensions: []string{"NOT_A_COLUMN"}}, testRegistry(t))
	requireClassCode(t, err, gwerrors.ClassValidation, "invalid_column")
}

func TestCompile_InvalidOperator(t *testing.T) {
	_, err := Compile(Plan{
		Source:  "REQUEST_LOG",
		Filters: []Filter{{Column: "STATUS", Operator: "~=", Value: "ok"}},
	}, testRegistry(t))
	requireClassCode(t, err, gwerrors.ClassValidation, "invalid_operator")
}

func TestCompile_FiltersBindValuesNotLiterals(t *testing.T) {
	out, err := Compile(Plan{
		Source:  "REQUEST_LOG",
		Filters: []Filter{{Column: "status", Operator: "=", Value: "ok"}},
	}, testRegistry(t))
	require.NoError(t, err)
	assert.Contains(t, out.SQLTemplate, "STATUS = ?")
	assert.Equal(t, []any{"ok"}, out.Binds)
	assert.NotContains(t, out.SQLTemplate, "'ok'")
}

func TestCompile_GrainRequiresConventionalTimeColumn(t *testing.T) {
	out, err := Compile(Plan{Source: "REQUEST_LOG", Grain: "hour"}, testRegistry(t))
	require.NoError(t, err)
	assert.Contains(t, out.SQLTemplate, "DATE_TRUNC('hour', HOUR)")
}

func TestCompile_RowLimitExceedsPolicy(t *testing.T) {
	_, err := Compile(Plan{Source: "REQUEST_LOG", TopN: 50000}, testRegistry(t))
	requireClassCode(t, err, gwerrors.ClassValidation, "row_limit_exceeds_policy")
}

func TestCompile_InClauseExpandsPlaceholders(t *testing.T) {
	out, err := Compile(Plan{
		Source: "REQUEST_LOG",
		Filters: []Filter{{Column: "STATUS", Operator: "IN", Value: []any{"ok", "error"}}},
	}, testRegistry(t))
	require.NoError(t, err)
	assert.Contains(t, out.SQLTemplate, "STATUS IN (?,?)")
	assert.Equal(t, []any{"ok", "error"}, out.Binds)
}

func requireClassCode(t *testing.T, err error, class gwerrors.Class, code string) {
	t.Helper()
	require.Error(t, err)
	ge, ok := err.(*gwerrors.Error)
	require.True(t, ok)
	assert.Equal(t, class, ge.Class)
	assert.Equal(t, code, ge.Code)
}
