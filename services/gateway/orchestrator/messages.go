package orchestrator

import "github.com/latticegw/mcp-gateway/services/gateway/compiler"

// Inbound message type tags (spec §6, client → server).
const (
	TypeRegister     = "register"
	TypeUserMessage  = "user-message"
	TypeExecutePanel = "execute_panel"
	TypeToolsCall    = "tools/call"
)

// Outbound message type tags (spec §6, server → client).
const (
	typeAssistantMessage = "assistant-message"
	typeSQLResult        = "sql-result"
	typeDashboardProg    = "dashboard.progress"
	typeDashboardDone    = "dashboard.complete"
	typeInfo             = "info"
	typeError            = "error"
)

// Inbound is the shape every client-to-server message decodes into; Type
// selects which of the remaining fields apply.
type Inbound struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Panel     *PanelRequest  `json:"panel,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Token     string         `json:"token,omitempty"`
	Nonce     string         `json:"nonce,omitempty"`
}

// PanelRequest is the structured execute_panel shape (spec §6): a plan the
// client already built, bypassing the Tier 3 natural-language step.
type PanelRequest struct {
	Source     string               `json:"source"`
	Dimensions []string             `json:"dimensions,omitempty"`
	Measures   []compiler.Measure   `json:"measures,omitempty"`
	Filters    []compiler.Filter    `json:"filters,omitempty"`
	TopN       int                  `json:"top_n,omitempty"`
	Grain      string               `json:"grain,omitempty"`
	OrderBy    []compiler.OrderTerm `json:"order_by,omitempty"`
}

func (p PanelRequest) toPlan() compiler.Plan {
	return compiler.Plan{
		Source:     p.Source,
		Dimensions: p.Dimensions,
		Measures:   p.Measures,
		Filters:    p.Filters,
		Grain:      p.Grain,
		TopN:       p.TopN,
		OrderBy:    p.OrderBy,
	}
}

type assistantMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type sqlResultMeta struct {
	QueryID         string `json:"query_id"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	BytesScanned    int64  `json:"bytes_scanned"`
}

type sqlResultMessage struct {
	Type     string           `json:"type"`
	Template string           `json:"template"`
	Rows     []map[string]any `json:"rows"`
	Count    int              `json:"count"`
	Metadata sqlResultMeta    `json:"metadata"`
}

type dashboardProgressMessage struct {
	Type           string  `json:"type"`
	Step           string  `json:"step"`
	Message        string  `json:"message"`
	Pct            float64 `json:"pct"`
	ElapsedMs      int64   `json:"elapsed_ms"`
	CompletedSteps int     `json:"completed_steps"`
	TotalSteps     int     `json:"total_steps"`
}

type infoMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type errorMessage struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	ErrorClass string `json:"error_class,omitempty"`
}
