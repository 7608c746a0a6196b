package ritual

import "time"

// Status is the RitualDay lifecycle state.
//
// A day is created PLANNED by the morning-planning flow and leaves PLANNED
// exactly once: either an explicit check-in (COMPLETED/MISSED with achieved
// set) or the missed sweeper (MISSED, achieved=false).
type Status string

const (
	StatusPlanned   Status = "PLANNED"
	StatusCompleted Status = "COMPLETED"
	StatusMissed    Status = "MISSED"
)

// Subtask is one ordered entry of the day's plan.
type Subtask struct {
	Content string `json:"content"`
	Order   int    `json:"order"`
	Done    bool   `json:"done"`
}

// Day is one user's planning/check-in record for one calendar day.
// At most one Day exists per (UserID, LocalDate).
type Day struct {
	ID         int64      `db:"id"`
	UserID     int64      `db:"user_id"`
	LocalDate  Date       `db:"local_date"`
	Title      string     `db:"title"`
	Note       string     `db:"note"`
	Status     Status     `db:"status"`
	Achieved   *bool      `db:"achieved"`
	CheckInAt  *time.Time `db:"check_in_at"`
	PastDue    bool       `db:"past_due"`
	Reflection *string    `db:"reflection"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`

	Subtasks []Subtask `db:"-"`
}

// User carries the journal owner's identity and check-in preferences.
// The sweep jobs only ever read users.
type User struct {
	ID            int64     `db:"id"`
	DisplayName   string    `db:"display_name"`
	Locale        string    `db:"locale"`
	Timezone      string    `db:"timezone"`
	CheckInHour   int       `db:"check_in_hour"`
	CheckInMinute int       `db:"check_in_minute"`
	ReminderSound string    `db:"reminder_sound"`
	Notifications bool      `db:"notifications_enabled"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// PushDevice is a registered mobile push target. Devices reported invalid
// by the push provider are disabled, never deleted.
type PushDevice struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	Token      string    `db:"token"`
	Platform   string    `db:"platform"`
	Disabled   bool      `db:"disabled"`
	LastSeenAt time.Time `db:"last_seen_at"`
	CreatedAt  time.Time `db:"created_at"`
}
