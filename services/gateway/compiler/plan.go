// Package compiler implements the safe-query compiler (C4): it turns a
// client-submitted plan into bound, parameterized SQL against a fixed
// allow-list loaded from the schema contract. No caller-supplied text
// ever reaches the SQL string except through a bind parameter.
package compiler

// Plan is the structured request shape from spec §4.4 / the
// execute_panel wire message.
type Plan struct {
	Source     string      `json:"source"`
	Dimensions []string    `json:"dimensions,omitempty"`
	Measures   []Measure   `json:"measures,omitempty"`
	Filters    []Filter    `json:"filters,omitempty"`
	Grain      string      `json:"grain,omitempty"`
	TopN       int         `json:"top_n,omitempty"`
	OrderBy    []OrderTerm `json:"order_by,omitempty"`
}

type Measure struct {
	Fn     string `json:"fn"`
	Column string `json:"column"`
}

type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type OrderTerm struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// Output is the compiler's result: a canonical SQL template with
// positional bind markers, the corresponding bind values in order, and
// the normalized plan (defaults applied) it compiled from.
type Output struct {
	SQLTemplate string `json:"sql_template"`
	Binds       []any  `json:"binds"`
	Plan        Plan   `json:"plan"`
}

// DefaultSystemMaxTopN is the system-wide ceiling on top_n (spec §4.4).
const DefaultSystemMaxTopN = 10000
