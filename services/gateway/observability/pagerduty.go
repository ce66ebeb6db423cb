/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L2
Logic:       PagerDuty Events API v2 integration. Fires alerts
             on critical warehouse outages, quota exhaustion,
             and repeated authz refusals, implementing the
             shared AlertSink interface other sinks also satisfy.
Root Cause:  Sprint task G051 — PagerDuty alert integration.
Context:     SRE needs pager escalation for P1 incidents.
Suitability: L2 — standard HTTP webhook integration.
──────────────────────────────────────────────────────────────
*/

package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PagerDutyConfig holds configuration for PagerDuty Events API v2.
type PagerDutyConfig struct {
	// RoutingKey is the PagerDuty Events API v2 integration key.
	RoutingKey string
	// Enabled controls whether alerts are sent.
	Enabled bool
	// SourceName identifies this gateway instance (e.g., "gw-prod-01").
	SourceName string
	// HTTPTimeout for the PagerDuty API call.
	HTTPTimeout time.Duration
}

// DefaultPagerDutyConfig returns defaults.
func DefaultPagerDutyConfig() PagerDutyConfig {
	return PagerDutyConfig{
		RoutingKey:  "",
		Enabled:     false,
		SourceName:  "analytics-gateway",
		HTTPTimeout: 10 * time.Second,
	}
}

// PagerDutySeverity maps to PagerDuty alert severity.
type PagerDutySeverity string

const (
	PDSeverityCritical PagerDutySeverity = "critical"
	PDSeverityError    PagerDutySeverity = "error"
	PDSeverityWarning  PagerDutySeverity = "warning"
	PDSeverityInfo     PagerDutySeverity = "info"
)

// PagerDutyClient sends incidents to PagerDuty Events API v2.
type PagerDutyClient struct {
	cfg    PagerDutyConfig
	client *http.Client
	logger zerolog.Logger
}

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// NewPagerDutyClient creates a PagerDuty alerting client.
func NewPagerDutyClient(cfg PagerDutyConfig, logger zerolog.Logger) *PagerDutyClient {
	return &PagerDutyClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		logger: logger.With().Str("component", "pagerduty").Logger(),
	}
}

// TriggerAlert fires a PagerDuty alert.
func (pd *PagerDutyClient) TriggerAlert(
	severity PagerDutySeverity,
	summary string,
	dedupKey string,
	details map[string]interface{},
) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		pd.logger.Debug().Str("summary", summary).Msg("PagerDuty disabled — alert suppressed")
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]interface{}{
			"summary":   summary,
			"severity":  string(severity),
			"source":    pd.cfg.SourceName,
			"component": "analytics-gateway",
			"group":     "ai-platform",
			"class":     "infrastructure",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"custom_details": details,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		pd.logger.Error().Err(err).Str("dedup_key", dedupKey).Msg("PagerDuty API call failed")
		return fmt.Errorf("pagerduty: API call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		pd.logger.Error().Int("status", resp.StatusCode).Str("dedup_key", dedupKey).Msg("PagerDuty API error")
		return fmt.Errorf("pagerduty: HTTP %d", resp.StatusCode)
	}

	pd.logger.Info().Str("dedup_key", dedupKey).Str("severity", string(severity)).Msg("PagerDuty alert triggered")
	return nil
}

// ResolveAlert resolves a previously triggered alert.
func (pd *PagerDutyClient) ResolveAlert(dedupKey string) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "resolve",
		"dedup_key":    dedupKey,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pagerduty: resolve call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	pd.logger.Info().Str("dedup_key", dedupKey).Msg("PagerDuty alert resolved")
	return nil
}

// ─── Convenience Wrappers for Common Alerts ─────────────────

// AlertWarehouseDown fires a critical alert when HealthPoller detects a
// sustained warehouse outage.
func (pd *PagerDutyClient) AlertWarehouseDown(errorMsg string) error {
	return pd.TriggerAlert(
		PDSeverityCritical,
		"Analytics gateway: warehouse connection is DOWN",
		"gateway-warehouse-down",
		map[string]interface{}{
			"error": errorMsg,
		},
	)
}

// AlertWarehouseRecovered resolves a warehouse-down alert.
func (pd *PagerDutyClient) AlertWarehouseRecovered() error {
	return pd.ResolveAlert("gateway-warehouse-down")
}

// AlertQuotaExhausted fires when a user's daily runtime budget is fully
// consumed, in case it signals a runaway automation rather than normal use.
func (pd *PagerDutyClient) AlertQuotaExhausted(username string, dailyLimitSeconds int) error {
	return pd.TriggerAlert(
		PDSeverityWarning,
		fmt.Sprintf("Analytics gateway: daily quota exhausted for %s", username),
		fmt.Sprintf("gateway-quota-exhausted-%s", username),
		map[string]interface{}{
			"username":            username,
			"daily_limit_seconds": dailyLimitSeconds,
		},
	)
}

// AlertHighErrorRate fires when the gateway error rate exceeds threshold.
func (pd *PagerDutyClient) AlertHighErrorRate(errorPct float64, window string) error {
	return pd.TriggerAlert(
		PDSeverityCritical,
		fmt.Sprintf("Analytics gateway: error rate %.1f%% over %s", errorPct, window),
		"gateway-high-error-rate",
		map[string]interface{}{
			"error_percentage": errorPct,
			"window":           window,
		},
	)
}

// AlertRepeatedAuthzDenial fires when one token accumulates enough
// tool-not-allowed or quota-exceeded refusals in a window to suggest a
// misconfigured or compromised client rather than routine denial traffic.
func (pd *PagerDutyClient) AlertRepeatedAuthzDenial(username string, denialCount int, codes []string) error {
	return pd.TriggerAlert(
		PDSeverityWarning,
		fmt.Sprintf("Analytics gateway: %s accumulated %d authz denials", username, denialCount),
		fmt.Sprintf("gateway-authz-denial-%s-%d", username, time.Now().Unix()/300), // dedup per 5-min window
		map[string]interface{}{
			"username":     username,
			"denial_count": denialCount,
			"codes":        codes,
		},
	)
}
