/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Schedule entity support: validates a five-field cron
             expression at dashboard.schedule.created/updated time
             instead of letting a malformed string surface only
             when a scheduled job fails to fire, and computes the
             next run time so /api/activity rollups can show it
             without re-parsing the cron string on every read.
Root Cause:  Sprint task G059 — robfig/cron/v3 was added to go.mod
             for the Schedule entity (spec-id, cron, task-name,
             status) but nothing constructed a cron.Schedule from
             it anywhere in the tree.
Context:     The Schedule entity itself carries no other behavior:
             per the Two-Object-Store Law it is just an event
             (dashboard.schedule.created/updated/deleted/executed)
             with a cron field, projected the same way every other
             logical entity is. This package is the one piece of
             real logic that entity needs.
Suitability: L3 — thin wrapper around a well-tested parser.
──────────────────────────────────────────────────────────────
*/

// Package schedule validates cron expressions for the Schedule entity
// (spec §3's entity table: schedule/<schedule-id>, fields {spec-id, cron,
// task-name, status}) and computes next-run times from them.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Validate parses expr as a standard five-field cron expression, returning
// a descriptive error if it's malformed. Callers use this at
// dashboard.schedule.created/updated time so a bad cron string is rejected
// before it's ever recorded, rather than discovered the first time a
// scheduler tries to compute its next run.
func Validate(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRun parses expr and returns the next time it fires strictly after
// from. Callers must call Validate (or otherwise know expr parses) first;
// NextRun returns the zero time and the parse error if it doesn't.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
