package ritual

import "fmt"

// ReminderMessage builds the user-facing reminder text for a ritual day.
// The date renders as dd/MM in the user's zone.
func ReminderMessage(displayName, title string, d Date, tz string) string {
	day := d.In(LoadZone(tz))
	dateStr := day.Format("02/01")
	prefix := ""
	if displayName != "" {
		prefix = displayName + ", "
	}
	return fmt.Sprintf("%shora de revisar seu ritual de %s: %q. Marque se concluiu ou não.", prefix, dateStr, title)
}

// DeepLink is the mobile deep link for a ritual day, carried in both the
// realtime event payload and the push data map.
func DeepLink(ritualID int64) string {
	return fmt.Sprintf("whisper://ritual/%d", ritualID)
}
