// Package ritual holds the domain types of the daily-ritual journal: the
// date-only calendar value, the RitualDay lifecycle, user check-in
// preferences, push devices, and the timezone math that turns a ritual's
// calendar day into absolute deadline and reminder instants.
package ritual
