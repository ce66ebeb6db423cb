/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L2
Logic:       AlertSink is the one interface every alerting
             backend in this package satisfies — PagerDuty,
             Datadog, Splunk, and a zerolog-based default — so a
             caller (main wires HealthPoller transitions to it)
             fires one alert and lets whichever sink is
             configured decide how to surface it, instead of
             branching per vendor at the call site.
Root Cause:  Sprint task G053 — unify the three alert backends.
Context:     Exactly one vendor integration runs in any given
             deployment; most deployments run none and fall back
             to LogAlertSink.
Suitability: L2 — interface unification over existing clients.
──────────────────────────────────────────────────────────────
*/

package observability

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Severity is the alert urgency, independent of which backend renders it.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// AlertSink fires and resolves operator-facing alerts. code is a stable
// dedup key — the same code fired twice should coalesce into one incident,
// and Resolve(code) clears it.
type AlertSink interface {
	Alert(severity Severity, code, summary string, details map[string]interface{}) error
	Resolve(code string) error
}

// Alert implements AlertSink over the PagerDuty Events API v2 client.
func (pd *PagerDutyClient) Alert(severity Severity, code, summary string, details map[string]interface{}) error {
	return pd.TriggerAlert(pagerDutySeverity(severity), summary, code, details)
}

// Resolve implements AlertSink.
func (pd *PagerDutyClient) Resolve(code string) error {
	return pd.ResolveAlert(code)
}

func pagerDutySeverity(s Severity) PagerDutySeverity {
	switch s {
	case SeverityCritical:
		return PDSeverityCritical
	case SeverityWarning:
		return PDSeverityWarning
	default:
		return PDSeverityInfo
	}
}

// Alert implements AlertSink over the DogStatsD exporter: an alert becomes
// a Datadog event plus a failing service check, since DogStatsD has no
// native "incident" concept.
func (dd *DatadogExporter) Alert(severity Severity, code, summary string, details map[string]interface{}) error {
	dd.Event(code, summary, "severity:"+string(severity))
	dd.ServiceCheck(code, 2) // 2 = CRITICAL in the DogStatsD service check protocol
	return nil
}

// Resolve implements AlertSink.
func (dd *DatadogExporter) Resolve(code string) error {
	dd.ServiceCheck(code, 0) // 0 = OK
	return nil
}

// Alert implements AlertSink over the Splunk HEC forwarder: an alert is
// just another structured log event, tagged so a saved search can surface it.
func (sf *SplunkForwarder) Alert(severity Severity, code, summary string, details map[string]interface{}) error {
	event := map[string]interface{}{
		"event_type": "alert",
		"code":       code,
		"severity":   string(severity),
		"summary":    summary,
		"state":      "firing",
	}
	for k, v := range details {
		event[k] = v
	}
	sf.Log(event)
	return nil
}

// Resolve implements AlertSink.
func (sf *SplunkForwarder) Resolve(code string) error {
	sf.Log(map[string]interface{}{
		"event_type": "alert",
		"code":       code,
		"state":      "resolved",
	})
	return nil
}

// LogAlertSink is the default AlertSink when no vendor is configured: it
// just logs. Every deployment gets this even if PagerDuty/Datadog/Splunk
// are all disabled.
type LogAlertSink struct {
	logger zerolog.Logger
}

func NewLogAlertSink(logger zerolog.Logger) *LogAlertSink {
	return &LogAlertSink{logger: logger.With().Str("component", "alerts").Logger()}
}

func (l *LogAlertSink) Alert(severity Severity, code, summary string, details map[string]interface{}) error {
	l.logger.Warn().Str("code", code).Str("severity", string(severity)).Fields(details).Msg(summary)
	return nil
}

func (l *LogAlertSink) Resolve(code string) error {
	l.logger.Info().Str("code", code).Msg(fmt.Sprintf("alert %s resolved", code))
	return nil
}
