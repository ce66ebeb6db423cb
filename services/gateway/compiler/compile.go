/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Plan-to-SQL compiler. Every identifier (source,
             column, aggregation fn, operator, grain) is checked
             against the schema contract's allow-list before it
             ever reaches the emitted SQL string; every value
             becomes a bind parameter, never a literal. Closed
             sets are enforced the same way a policy engine
             evaluates a request against a fixed allow/deny
             ruleset, but the decision here is structural
             (is this identifier in the registry?) rather than
             rule-evaluated.
Root Cause:  Sprint task G021 — safe-query compiler.
Context:     C5 (validator) and C6 (executor) both call Compile;
             C5 discards the SQL, C6 executes it.
Suitability: L3 — SQL generation with a closed grammar.
──────────────────────────────────────────────────────────────
*/

package compiler

import (
	"fmt"
	"strings"

	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
)

// aggregationSQL maps the symbolic allow-listed form to its SQL fragment
// (spec §9 Open Question: allow-list is symbolic, not a SQL string).
var aggregationSQL = map[string]string{
	"COUNT":          "COUNT",
	"COUNT_DISTINCT": "COUNT(DISTINCT %s)",
	"SUM":            "SUM",
	"AVG":            "AVG",
	"MIN":            "MIN",
	"MAX":            "MAX",
}

var operatorSQL = map[string]string{
	"=": "=", "!=": "!=", ">": ">", ">=": ">=", "<": "<", "<=": "<=",
	"IN": "IN", "NOT IN": "NOT IN", "LIKE": "LIKE", "BETWEEN": "BETWEEN",
}

var grainTrunc = map[string]string{
	"MINUTE": "minute", "HOUR": "hour", "DAY": "day",
	"WEEK": "week", "MONTH": "month", "QUARTER": "quarter", "YEAR": "year",
}

// timeColumnCandidates lists the conventional time-column names a grain
// applies to, tried in order (spec §4.4: "HOUR or TS by convention").
var timeColumnCandidates = []string{"HOUR", "TS"}

// Compile validates plan against registry's allow-lists and emits a
// canonical, bind-parameterized SQL template.
func Compile(plan Plan, registry *schema.Registry) (*Output, error) {
	rel, ok := registry.Source(plan.Source)
	if !ok {
		return nil, gwerrors.New(gwerrors.ClassValidation, "unknown_source", fmt.Sprintf("unknown source %q", plan.Source))
	}

	normalized := plan
	normalized.Source = strings.ToUpper(plan.Source)

	var binds []any
	var selectCols []string

	for _, dim := range plan.Dimensions {
		col := strings.ToUpper(dim)
		if !rel.HasColumn(col) {
			return nil, gwerrors.New(gwerrors.ClassValidation, "invalid_column", fmt.Sprintf("unknown column %q on source %q", dim, plan.Source))
		}
		selectCols = append(selectCols, col)
	}
	normalized.Dimensions = selectCols

	normMeasures := make([]Measure, 0, len(plan.Measures))
	for _, m := range plan.Measures {
		fn := strings.ToUpper(m.Fn)
		frag, ok := aggregationSQL[fn]
		if !ok || !registry.AllowsAggregation(fn) {
			return nil, gwerrors.New(gwerrors.ClassValidation, "invalid_aggregation", fmt.Sprintf("aggregation %q is not allowed", m.Fn))
		}
		col := strings.ToUpper(m.Column)
		if fn != "COUNT" && !rel.HasColumn(col) {
			return nil, gwerrors.New(gwerrors.ClassValidation, "invalid_column", fmt.Sprintf("unknown column %q on source %q", m.Column, plan.Source))
		}
		var expr string
		if fn == "COUNT" && col == "" {
			expr = "COUNT(*)"
		} else if strings.Contains(frag, "%s") {
			expr = fmt.Sprintf(frag, col)
		} else {
			expr = fmt.Sprintf("%s(%s)", frag, col)
		}
		selectCols = append(selectCols, expr)
		normMeasures = append(normMeasures, Measure{Fn: fn, Column: col})
	}
	normalized.Measures = normMeasures

	if len(selectCols) == 0 {
		selectCols = []string{"*"}
	}

	var whereClauses []string
	normFilters := make([]Filter, 0, len(plan.Filters))
	for _, f := range plan.Filters {
		op := strings.ToUpper(f.Operator)
		opSQL, ok := operatorSQL[op]
		if !ok || !registry.AllowsOperator(op) {
			return nil, gwerrors.New(gwerrors.ClassValidation, "invalid_operator", fmt.Sprintf("operator %q is not allowed", f.Operator))
		}
		col := strings.ToUpper(f.Column)
		if !rel.HasColumn(col) {
			return nil, gwerrors.New(gwerrors.ClassValidation, "invalid_column", fmt.Sprintf("unknown column %q on source %q", f.Column, plan.Source))
		}
		clause, vals := renderFilter(col, opSQL, f.Value)
		whereClauses = append(whereClauses, clause)
		binds = append(binds, vals...)
		normFilters = append(normFilters, Filter{Column: col, Operator: op, Value: f.Value})
	}
	normalized.Filters = normFilters

	var groupByClause string
	if plan.Grain != "" {
		grain := strings.ToUpper(plan.Grain)
		truncUnit, ok := grainTrunc[grain]
		if !ok || !registry.AllowsGrain(grain) {
			return nil, gwerrors.New(gwerrors.ClassValidation, "invalid_grain", fmt.Sprintf("grain %q is not allowed", plan.Grain))
		}
		timeCol := ""
		for _, c := range timeColumnCandidates {
			if rel.HasColumn(c) {
				timeCol = c
				break
			}
		}
		if timeCol == "" {
			return nil, gwerrors.New(gwerrors.ClassValidation, "invalid_grain", "source has no conventional time column for grain")
		}
		groupByClause = fmt.Sprintf("DATE_TRUNC('%s', %s)", truncUnit, timeCol)
		selectCols = append([]string{groupByClause + " AS " + grain}, selectCols...)
		normalized.Grain = grain
	}

	limit := plan.TopN
	if limit <= 0 {
		limit = registry.MaxRowsPerQuery()
	}
	systemMax := DefaultSystemMaxTopN
	if registry.MaxRowsPerQuery() > 0 {
		systemMax = registry.MaxRowsPerQuery()
	}
	if limit > systemMax {
		return nil, gwerrors.New(gwerrors.ClassValidation, "row_limit_exceeds_policy", fmt.Sprintf("top_n %d exceeds system maximum %d", limit, systemMax))
	}
	normalized.TopN = limit

	var orderByClause string
	normOrder := make([]OrderTerm, 0, len(plan.OrderBy))
	for _, o := range plan.OrderBy {
		col := strings.ToUpper(o.Column)
		if !rel.HasColumn(col) {
			return nil, gwerrors.New(gwerrors.ClassValidation, "invalid_column", fmt.Sprintf("unknown order_by column %q", o.Column))
		}
		dir := strings.ToUpper(o.Direction)
		if dir != "ASC" && dir != "DESC" {
			dir = "ASC"
		}
		normOrder = append(normOrder, OrderTerm{Column: col, Direction: dir})
	}
	normalized.OrderBy = normOrder
	if len(normOrder) > 0 {
		parts := make([]string, len(normOrder))
		for i, o := range normOrder {
			parts[i] = fmt.Sprintf("%s %s", o.Column, o.Direction)
		}
		orderByClause = "ORDER BY " + strings.Join(parts, ", ")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selectCols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(normalized.Source)
	if len(whereClauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(whereClauses, " AND "))
	}
	if groupByClause != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(groupByClause)
	}
	if orderByClause != "" {
		b.WriteString(" ")
		b.WriteString(orderByClause)
	}
	b.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	return &Output{SQLTemplate: b.String(), Binds: binds, Plan: normalized}, nil
}

func renderFilter(col, opSQL string, value any) (string, []any) {
	switch opSQL {
	case "IN", "NOT IN":
		values, ok := value.([]any)
		if !ok {
			values = []any{value}
		}
		placeholders := strings.TrimRight(strings.Repeat("?,", len(values)), ",")
		return fmt.Sprintf("%s %s (%s)", col, opSQL, placeholders), values
	case "BETWEEN":
		values, ok := value.([]any)
		if !ok || len(values) != 2 {
			values = []any{value, value}
		}
		return fmt.Sprintf("%s BETWEEN ? AND ?", col), values
	default:
		return fmt.Sprintf("%s %s ?", col, opSQL), []any{value}
	}
}
