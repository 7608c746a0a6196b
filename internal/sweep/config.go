package sweep

import "time"

// Defaults mirror the mobile client's expectations: a reminder fires within
// a minute of the configured check-in time, and a day flips to MISSED within
// a quarter hour of its deadline.
const (
	DefaultBatchSize     = 200
	DefaultMissedEvery   = 15 * time.Minute
	DefaultPastDueEvery  = 15 * time.Minute
	DefaultReminderEvery = time.Minute
	DefaultWindowLate    = 5 * time.Minute
	DefaultWindowEarly   = time.Minute
	DefaultDedupTTL      = 15 * time.Minute
	DefaultRetention     = 24 * time.Hour
)

// Config controls all three sweep jobs.
type Config struct {
	BatchSize int

	MissedEvery   time.Duration
	PastDueEvery  time.Duration
	ReminderEvery time.Duration

	// The reminder window around "now": an instant is due when it lies in
	// [now-WindowLate, now+WindowEarly]. Late must cover at least one
	// reminder interval or a tick landing just after the instant misses it.
	WindowLate  time.Duration
	WindowEarly time.Duration

	// DedupTTL suppresses repeat reminders for the same ritual day. It must
	// exceed WindowLate+WindowEarly, otherwise one window can notify twice.
	DedupTTL time.Duration

	// Retention is how long a COMPLETED day stays un-flagged before the
	// past-due sweep marks it, measured from the row's creation.
	Retention time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MissedEvery <= 0 {
		c.MissedEvery = DefaultMissedEvery
	}
	if c.PastDueEvery <= 0 {
		c.PastDueEvery = DefaultPastDueEvery
	}
	if c.ReminderEvery <= 0 {
		c.ReminderEvery = DefaultReminderEvery
	}
	if c.WindowLate <= 0 {
		c.WindowLate = DefaultWindowLate
	}
	if c.WindowEarly <= 0 {
		c.WindowEarly = DefaultWindowEarly
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = DefaultDedupTTL
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	return c
}
