/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Daily runtime-seconds and row-count quota enforcement
             using a reserve-then-settle pattern: before a plan
             reaches the warehouse, a request reserves its
             estimated runtime against the user's daily budget;
             on completion the reservation settles with actual
             elapsed time, or refunds on failure so the user
             isn't charged for work that never ran. Same shape
             as a wallet-metering reserve/settle/refund cycle,
             with runtime-seconds and row-count standing in for
             dollar cost.
Root Cause:  Sprint task G017 — quota enforcement ahead of C6.
Context:     Orchestrator step 3d: refuse with quota_exceeded
             before the warehouse is invoked, never after.
Suitability: L3 — concurrency-safe budget bookkeeping.
──────────────────────────────────────────────────────────────
*/

package quota

import (
	"sync"
	"time"

	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
)

// Reservation is a pending hold against a user's daily runtime budget.
type Reservation struct {
	ID               string
	Username         string
	EstimatedSeconds float64
	ActualSeconds    float64
	Status           string // reserved, settled, refunded
	CreatedAt        time.Time
}

// dailyBudget tracks one user's consumption for the current UTC day.
type dailyBudget struct {
	day             string
	runtimeReserved float64
	runtimeSettled  float64
}

// Tracker enforces per-user daily_runtime_seconds budgets; the max_rows
// cap is the stateless per-query CheckRowLimit below. It holds no
// warehouse connection — daily_runtime_seconds comes from the token
// envelope (C3); Tracker only bookkeeps consumption within the current day.
type Tracker struct {
	mu           sync.Mutex
	budgets      map[string]*dailyBudget
	reservations map[string]*Reservation
}

func NewTracker() *Tracker {
	return &Tracker{
		budgets:      make(map[string]*dailyBudget),
		reservations: make(map[string]*Reservation),
	}
}

func today() string { return time.Now().UTC().Format("2006-01-02") }

func (t *Tracker) budgetFor(username string) *dailyBudget {
	b, ok := t.budgets[username]
	day := today()
	if !ok || b.day != day {
		b = &dailyBudget{day: day}
		t.budgets[username] = b
	}
	return b
}

// Reserve holds estimatedSeconds against the user's dailyLimit. Returns
// runtime_exceeded if the reservation would push consumption (already
// settled + already reserved + this estimate) over the limit.
func (t *Tracker) Reserve(requestID, username string, dailyLimitSeconds int, estimatedSeconds float64) (*Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.budgetFor(username)
	projected := b.runtimeSettled + b.runtimeReserved + estimatedSeconds
	if dailyLimitSeconds > 0 && projected > float64(dailyLimitSeconds) {
		return nil, gwerrors.New(gwerrors.ClassQuota, "runtime_exceeded", "daily runtime budget exceeded").
			WithDetails(map[string]any{
				"daily_limit_seconds": dailyLimitSeconds,
				"consumed_seconds":    b.runtimeSettled,
				"reserved_seconds":    b.runtimeReserved,
			})
	}

	b.runtimeReserved += estimatedSeconds
	r := &Reservation{
		ID:               requestID,
		Username:         username,
		EstimatedSeconds: estimatedSeconds,
		Status:           "reserved",
		CreatedAt:        time.Now(),
	}
	t.reservations[requestID] = r
	return r, nil
}

// Settle finalizes a reservation with actual elapsed runtime, moving the
// estimate out of "reserved" and the actual into "settled".
func (t *Tracker) Settle(requestID string, actualSeconds float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.reservations[requestID]
	if !ok {
		return gwerrors.New(gwerrors.ClassExecution, "not_found", "no reservation for request")
	}
	if r.Status != "reserved" {
		return gwerrors.New(gwerrors.ClassExecution, "already_settled", "reservation already finalized")
	}

	b := t.budgetFor(r.Username)
	b.runtimeReserved -= r.EstimatedSeconds
	if b.runtimeReserved < 0 {
		b.runtimeReserved = 0
	}
	b.runtimeSettled += actualSeconds

	r.ActualSeconds = actualSeconds
	r.Status = "settled"
	return nil
}

// Refund releases a reservation without charging actual runtime — used
// when the request fails before or during execution.
func (t *Tracker) Refund(requestID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.reservations[requestID]
	if !ok {
		return gwerrors.New(gwerrors.ClassExecution, "not_found", "no reservation for request")
	}
	if r.Status != "reserved" {
		return nil
	}

	b := t.budgetFor(r.Username)
	b.runtimeReserved -= r.EstimatedSeconds
	if b.runtimeReserved < 0 {
		b.runtimeReserved = 0
	}
	r.Status = "refunded"
	return nil
}

// CheckRowLimit enforces the row-count side of the budget: the effective
// limit is min(requested, envelope.max_rows), per C6's contract.
func CheckRowLimit(requested, envelopeMaxRows int) (int, error) {
	if envelopeMaxRows <= 0 {
		return requested, nil
	}
	if requested <= 0 || requested > envelopeMaxRows {
		return envelopeMaxRows, nil
	}
	return requested, nil
}

// Consumed returns the current day's settled + reserved runtime seconds
// for a user (used by /meta/user and diagnostics).
func (t *Tracker) Consumed(username string) (settled, reserved float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.budgetFor(username)
	return b.runtimeSettled, b.runtimeReserved
}
