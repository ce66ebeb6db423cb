package orchestrator

import (
	"time"

	"github.com/latticegw/mcp-gateway/services/gateway/compiler"
	"github.com/latticegw/mcp-gateway/services/gateway/smartrouter"
)

// defaultActivitySource is the processed-lane relation Tier-1 templates
// query against — the same REQUEST_LOG shape C4/C5/C6's own tests fix the
// schema contract to.
const defaultActivitySource = "REQUEST_LOG"

// planFromTemplate turns a Tier-1 match (template name + extracted,
// clamped params) into the compiler.Plan C5/C4/C6 take. The smartrouter
// package only resolves which closed template matched; binding that
// template to concrete columns is the orchestrator's job, same split as
// C7's NL interpreter producing a plan skeleton for the caller to execute.
func planFromTemplate(template string, params map[string]any) compiler.Plan {
	switch template {
	case smartrouter.TemplateSampleTop:
		n := 10
		if v, ok := params["n"].(int); ok && v > 0 {
			n = v
		}
		return compiler.Plan{
			Source:  defaultActivitySource,
			TopN:    n,
			OrderBy: []compiler.OrderTerm{{Column: "LATENCY_MS", Direction: "DESC"}},
		}
	case smartrouter.TemplateRecentN:
		hours := 24
		if v, ok := params["hours"].(int); ok && v > 0 {
			hours = v
		}
		since := time.Now().Add(-time.Duration(hours) * time.Hour)
		return compiler.Plan{
			Source:  defaultActivitySource,
			Filters: []compiler.Filter{{Column: "HOUR", Operator: ">=", Value: since}},
			TopN:    1000,
			OrderBy: []compiler.OrderTerm{{Column: "HOUR", Direction: "DESC"}},
		}
	case smartrouter.TemplateBreakdownByType:
		dimension := "STATUS"
		if v, ok := params["dimension"].(string); ok && v != "" {
			dimension = v
		}
		return compiler.Plan{
			Source:     defaultActivitySource,
			Dimensions: []string{dimension},
			Measures:   []compiler.Measure{{Fn: "COUNT", Column: "REQUEST_ID"}},
			TopN:       100,
		}
	case smartrouter.TemplateSummary:
		return compiler.Plan{
			Source:   defaultActivitySource,
			Measures: []compiler.Measure{{Fn: "COUNT", Column: "REQUEST_ID"}, {Fn: "AVG", Column: "LATENCY_MS"}},
			TopN:     1,
		}
	default:
		return compiler.Plan{Source: defaultActivitySource, TopN: 10}
	}
}
