/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Tier classification and the closed Tier-1 template
             set (C7). Templates are matched by a priority-ordered
             rule list evaluated top-down, first match wins —
             generalized from the teacher's routing-rule engine
             (condition list -> action) to (pattern -> template +
             extracted, clamped parameters).
Root Cause:  Sprint task G030 — smart router tier classification.
Context:     C10 calls Classify before deciding whether a request
             goes straight to C4 (Tier 1) or through the NL
             interpreter first (Tier 2/3).
Suitability: L3 — pattern matching with parameter extraction.
──────────────────────────────────────────────────────────────
*/

package smartrouter

import (
	"regexp"
	"strconv"
	"strings"
)

// Tier is the closed set of routing tiers (spec §4.7).
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	default:
		return "unknown"
	}
}

// Tier-1 template names — the closed set a pattern match may target.
const (
	TemplateSampleTop        = "sample_top"
	TemplateRecentN          = "recent_n"
	TemplateBreakdownByType  = "breakdown_by_type"
	TemplateSummary          = "summary"
)

const (
	minHours = 1
	maxHours = 168
)

// Tier-1 sample_top boundary (spec §8): a "top N" request above 1000 rows
// is clamped to 1000 here, same as clampHours clamps recent_n's window —
// TopN's own 10 000 system max (compiler) guards a different, higher
// ceiling and doesn't substitute for this one.
const (
	minN = 1
	maxN = 1000
)

// templateRule is one priority-ordered pattern. Match reports whether
// request matches, and if so the extracted (already-clamped) parameters.
type templateRule struct {
	priority int
	template string
	pattern  *regexp.Regexp
	extract  func(matches []string) map[string]any
}

var topNPattern = regexp.MustCompile(`(?i)\btop[\s-]?(\d+)\b`)
var recentNPattern = regexp.MustCompile(`(?i)\b(?:recent|last)[\s-]?(\d+)\s*(hour|hours|hr|hrs)\b`)
var breakdownPattern = regexp.MustCompile(`(?i)\bbreakdown\s+by\s+(\w+)\b`)
var summaryPattern = regexp.MustCompile(`(?i)\b(summary|summarize)\b`)

// tierOneRules is the closed, priority-ordered Tier-1 template list (spec
// §4.7): sample_top, recent_n, breakdown_by_type, summary, evaluated
// top-down. First match wins.
var tierOneRules = []templateRule{
	{
		priority: 1,
		template: TemplateSampleTop,
		pattern:  topNPattern,
		extract: func(m []string) map[string]any {
			n, _ := strconv.Atoi(m[1])
			return map[string]any{"n": clampN(n)}
		},
	},
	{
		priority: 2,
		template: TemplateRecentN,
		pattern:  recentNPattern,
		extract: func(m []string) map[string]any {
			hours, _ := strconv.Atoi(m[1])
			return map[string]any{"hours": clampHours(hours)}
		},
	},
	{
		priority: 3,
		template: TemplateBreakdownByType,
		pattern:  breakdownPattern,
		extract: func(m []string) map[string]any {
			return map[string]any{"dimension": strings.ToUpper(m[1])}
		},
	},
	{
		priority: 4,
		template: TemplateSummary,
		pattern:  summaryPattern,
		extract: func(m []string) map[string]any {
			return map[string]any{}
		},
	},
}

// TemplateCount reports the size of the closed Tier-1 template set, for
// /health's {templates} field (spec §6).
func TemplateCount() int {
	return len(tierOneRules)
}

// clampN enforces the sample_top boundary (spec §8): n <= 0 (the regex
// only matches digits, but a leading-zero match like "top 0" still needs a
// floor) defaults to 10, same as before; n > 1000 clamps down to 1000.
func clampN(n int) int {
	if n <= 0 {
		return 10
	}
	if n > maxN {
		return maxN
	}
	return n
}

func clampHours(hours int) int {
	if hours < minHours {
		return minHours
	}
	if hours > maxHours {
		return maxHours
	}
	return hours
}

// tier2Cues and tier3Cues are the keyword markers spec §4.7 describes —
// "analytic language" for Tier 2, "multi-source or narrative-generation"
// for Tier 3 — scored the same way the teacher's request classifier scores
// category keywords, but against a closed two-bucket outcome instead of an
// open category set.
var tier2Cues = []string{"compare", "comparison", "trend", "trending", "filter", "filtered by", "versus", "vs "}
var tier3Cues = []string{"report", "narrative", "across all", "multiple sources", "dashboard", "write up", "explain why", "story", "executive summary of"}

// matchTierOne evaluates the closed Tier-1 rule list top-down and returns
// the first matching template and its extracted parameters.
func matchTierOne(request string) (template string, params map[string]any, ok bool) {
	for _, rule := range tierOneRules {
		if m := rule.pattern.FindStringSubmatch(request); m != nil {
			return rule.template, rule.extract(m), true
		}
	}
	return "", nil, false
}

// classifyTier2Or3 scores keyword cues to decide between Tier 2 (constrained
// interpreter) and Tier 3 (full NL-to-plan interpreter). Tier 3 cues win
// ties — a request that both compares (tier2 cue) and asks for a narrative
// report (tier3 cue) needs the full interpreter, not the constrained one.
func classifyTier2Or3(request string) Tier {
	lower := strings.ToLower(request)
	for _, cue := range tier3Cues {
		if strings.Contains(lower, cue) {
			return Tier3
		}
	}
	for _, cue := range tier2Cues {
		if strings.Contains(lower, cue) {
			return Tier2
		}
	}
	return Tier3
}
