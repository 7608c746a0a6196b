// Package sweep holds the periodic jobs that drive ritual-day lifecycle:
// marking expired PLANNED days as MISSED, flagging stale COMPLETED days as
// past due, and sending check-in reminders.
//
// Every job is a full-table scan over a keyset cursor, so a tick touches
// each candidate row exactly once regardless of batch size, and a failed
// tick leaves nothing half-applied that the next tick cannot finish: all
// three jobs are idempotent by construction.
package sweep
