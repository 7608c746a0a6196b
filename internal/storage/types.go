package storage

import (
	"context"
	"errors"
	"time"

	"whisperd/internal/ritual"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default (5s)
}

// PlannedRow is a PLANNED ritual day joined with the owner's reminder
// preferences. The deadline/reminder math is done in-process because it
// depends on the per-user timezone.
type PlannedRow struct {
	ID            int64       `db:"id"`
	UserID        int64       `db:"user_id"`
	LocalDate     ritual.Date `db:"local_date"`
	Title         string      `db:"title"`
	CreatedAtMS   int64       `db:"created_at"`
	DisplayName   string      `db:"display_name"`
	Timezone      string      `db:"timezone"`
	CheckInHour   int         `db:"check_in_hour"`
	CheckInMinute int         `db:"check_in_minute"`
	ReminderSound string      `db:"reminder_sound"`
	Notifications bool        `db:"notifications_enabled"`
}

// Plan is the morning-planning upsert payload, keyed on (UserID, LocalDate).
type Plan struct {
	UserID    int64
	LocalDate ritual.Date
	Title     string
	Note      string
	Subtasks  []ritual.Subtask
}

// Store is the persistence API consumed by the sweep jobs and the
// interactive flows.
//
// Contract notes:
//   - *Page methods return rows with id > afterID, ordered by id, plus a
//     hasMore flag; paging by the immutable primary key never revisits or
//     skips rows under concurrent inserts.
//   - Mark* methods apply only to rows still in the expected prior state
//     and return the number of rows actually updated. Empty id sets are
//     no-ops, not errors.
type Store interface {
	// Sweep gateway.
	PlannedPage(ctx context.Context, afterID int64, limit int) ([]PlannedRow, bool, error)
	CompletedUnflaggedPage(ctx context.Context, afterID int64, createdBefore time.Time, limit int) ([]int64, bool, error)
	MarkMissed(ctx context.Context, ids []int64) (int64, error)
	MarkPastDue(ctx context.Context, ids []int64) (int64, error)
	DevicesForUsers(ctx context.Context, userIDs []int64, onlyEnabled bool) ([]ritual.PushDevice, error)
	DisableDevicesByToken(ctx context.Context, tokens []string) (int64, error)

	// Interactive flows.
	CreateUser(ctx context.Context, u ritual.User) (int64, error)
	User(ctx context.Context, id int64) (ritual.User, error)
	UpsertPlan(ctx context.Context, p Plan) (ritual.Day, error)
	CheckIn(ctx context.Context, dayID int64, achieved bool, at time.Time) (bool, error)
	SetReflection(ctx context.Context, dayID int64, text string) error
	Day(ctx context.Context, id int64) (ritual.Day, error)
	DayByUserDate(ctx context.Context, userID int64, d ritual.Date) (ritual.Day, error)
	RegisterDevice(ctx context.Context, userID int64, token, platform string) (int64, error)
	TouchDevice(ctx context.Context, token string, at time.Time) error

	Close() error
}
