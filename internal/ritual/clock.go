package ritual

import (
	"strings"
	"time"

	// Embed the zone database: deadline math must not depend on the host
	// having tzdata installed.
	_ "time/tzdata"
)

// LoadZone resolves an IANA timezone name, falling back to UTC when the
// name is empty or unknown. The fallback keeps a single bad user record
// from aborting a sweep batch.
func LoadZone(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns midnight of the ritual's calendar day in the user's
// zone, as a UTC instant. The zone offset is resolved for that specific
// date, so DST transitions are handled by the zone database.
func StartOfDay(d Date, tz string) time.Time {
	return d.In(LoadZone(tz)).UTC()
}

// DeadlineInstant is the "day is over" cutoff: start of the ritual day in
// the user's zone plus 24 hours. It is independent of the user's configured
// check-in time.
func DeadlineInstant(d Date, tz string) time.Time {
	return StartOfDay(d, tz).Add(24 * time.Hour)
}

// ReminderInstant is the wall-clock instant hour:minute:00 on the ritual's
// calendar day in the user's zone, as a UTC instant. Nonexistent wall times
// (spring-forward gaps) normalize forward per the zone database.
func ReminderInstant(d Date, tz string, hour, minute int) time.Time {
	loc := LoadZone(tz)
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, loc).UTC()
}
