package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"whisperd/internal/ritual"
)

func ms(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

type dayRow struct {
	ID         int64       `db:"id"`
	UserID     int64       `db:"user_id"`
	LocalDate  ritual.Date `db:"local_date"`
	Title      string      `db:"title"`
	Note       string      `db:"note"`
	Subtasks   string      `db:"subtasks"`
	Status     string      `db:"status"`
	Achieved   *int64      `db:"achieved"`
	CheckInAt  *int64      `db:"check_in_at"`
	PastDue    int64       `db:"past_due"`
	Reflection *string     `db:"reflection"`
	CreatedAt  int64       `db:"created_at"`
	UpdatedAt  int64       `db:"updated_at"`
}

func (r dayRow) domain() ritual.Day {
	d := ritual.Day{
		ID:         r.ID,
		UserID:     r.UserID,
		LocalDate:  r.LocalDate,
		Title:      r.Title,
		Note:       r.Note,
		Status:     ritual.Status(r.Status),
		PastDue:    r.PastDue != 0,
		Reflection: r.Reflection,
		CreatedAt:  fromMS(r.CreatedAt),
		UpdatedAt:  fromMS(r.UpdatedAt),
	}
	if r.Achieved != nil {
		v := *r.Achieved != 0
		d.Achieved = &v
	}
	if r.CheckInAt != nil {
		t := fromMS(*r.CheckInAt)
		d.CheckInAt = &t
	}
	if r.Subtasks != "" {
		// Corrupt subtask JSON degrades to an empty list; the lifecycle
		// fields stay usable either way.
		_ = json.Unmarshal([]byte(r.Subtasks), &d.Subtasks)
	}
	return d
}

type deviceRow struct {
	ID         int64  `db:"id"`
	UserID     int64  `db:"user_id"`
	Token      string `db:"token"`
	Platform   string `db:"platform"`
	Disabled   int64  `db:"disabled"`
	LastSeenAt int64  `db:"last_seen_at"`
	CreatedAt  int64  `db:"created_at"`
}

func (r deviceRow) domain() ritual.PushDevice {
	return ritual.PushDevice{
		ID:         r.ID,
		UserID:     r.UserID,
		Token:      r.Token,
		Platform:   r.Platform,
		Disabled:   r.Disabled != 0,
		LastSeenAt: fromMS(r.LastSeenAt),
		CreatedAt:  fromMS(r.CreatedAt),
	}
}

type userRow struct {
	ID            int64  `db:"id"`
	DisplayName   string `db:"display_name"`
	Locale        string `db:"locale"`
	Timezone      string `db:"timezone"`
	CheckInHour   int    `db:"check_in_hour"`
	CheckInMinute int    `db:"check_in_minute"`
	ReminderSound string `db:"reminder_sound"`
	Notifications int64  `db:"notifications_enabled"`
	CreatedAt     int64  `db:"created_at"`
	UpdatedAt     int64  `db:"updated_at"`
}

func (r userRow) domain() ritual.User {
	return ritual.User{
		ID:            r.ID,
		DisplayName:   r.DisplayName,
		Locale:        r.Locale,
		Timezone:      r.Timezone,
		CheckInHour:   r.CheckInHour,
		CheckInMinute: r.CheckInMinute,
		ReminderSound: r.ReminderSound,
		Notifications: r.Notifications != 0,
		CreatedAt:     fromMS(r.CreatedAt),
		UpdatedAt:     fromMS(r.UpdatedAt),
	}
}

// ---- Sweep gateway ----

func (s *sqliteStore) PlannedPage(ctx context.Context, afterID int64, limit int) ([]PlannedRow, bool, error) {
	if limit <= 0 {
		return nil, false, nil
	}
	var rows []PlannedRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT r.id, r.user_id, r.local_date, r.title, r.created_at,
		       u.display_name, u.timezone, u.check_in_hour, u.check_in_minute,
		       u.reminder_sound, u.notifications_enabled
		FROM ritual_days r
		JOIN users u ON u.id = r.user_id
		WHERE r.status = 'PLANNED'
		  AND r.achieved IS NULL
		  AND r.check_in_at IS NULL
		  AND r.id > ?
		ORDER BY r.id
		LIMIT ?`, afterID, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("planned page: %w", err)
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	return rows, hasMore, nil
}

func (s *sqliteStore) CompletedUnflaggedPage(ctx context.Context, afterID int64, createdBefore time.Time, limit int) ([]int64, bool, error) {
	if limit <= 0 {
		return nil, false, nil
	}
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM ritual_days
		WHERE status = 'COMPLETED'
		  AND past_due = 0
		  AND created_at <= ?
		  AND id > ?
		ORDER BY id
		LIMIT ?`, ms(createdBefore), afterID, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("completed page: %w", err)
	}
	hasMore := len(ids) > limit
	if hasMore {
		ids = ids[:limit]
	}
	return ids, hasMore, nil
}

// MarkMissed transitions the given rows PLANNED -> MISSED, setting
// achieved=false and past_due=true. Rows that already left PLANNED (e.g. a
// check-in won the race) are skipped by the status predicate.
func (s *sqliteStore) MarkMissed(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`
		UPDATE ritual_days
		SET status = 'MISSED', achieved = 0, past_due = 1, updated_at = ?
		WHERE id IN (?) AND status = 'PLANNED'`, ms(time.Now()), ids)
	if err != nil {
		return 0, fmt.Errorf("mark missed: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("mark missed: %w", err)
	}
	return res.RowsAffected()
}

// MarkPastDue flags past_due on the given rows. The past_due predicate makes
// re-runs zero-row no-ops; the flag never flips back.
func (s *sqliteStore) MarkPastDue(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`
		UPDATE ritual_days
		SET past_due = 1, updated_at = ?
		WHERE id IN (?) AND past_due = 0`, ms(time.Now()), ids)
	if err != nil {
		return 0, fmt.Errorf("mark past due: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("mark past due: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqliteStore) DevicesForUsers(ctx context.Context, userIDs []int64, onlyEnabled bool) ([]ritual.PushDevice, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := `SELECT id, user_id, token, platform, disabled, last_seen_at, created_at
		FROM push_devices WHERE user_id IN (?)`
	if onlyEnabled {
		query += ` AND disabled = 0`
	}
	query += ` ORDER BY id`
	q, args, err := sqlx.In(query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("devices for users: %w", err)
	}
	var rows []deviceRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("devices for users: %w", err)
	}
	out := make([]ritual.PushDevice, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *sqliteStore) DisableDevicesByToken(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`UPDATE push_devices SET disabled = 1 WHERE token IN (?) AND disabled = 0`, tokens)
	if err != nil {
		return 0, fmt.Errorf("disable devices: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("disable devices: %w", err)
	}
	return res.RowsAffected()
}

// ---- Interactive flows ----

func (s *sqliteStore) CreateUser(ctx context.Context, u ritual.User) (int64, error) {
	if strings.TrimSpace(u.Timezone) == "" {
		u.Timezone = "UTC"
	}
	if u.Locale == "" {
		u.Locale = "pt-BR"
	}
	if u.ReminderSound == "" {
		u.ReminderSound = "default"
	}
	now := ms(time.Now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (display_name, locale, timezone, check_in_hour, check_in_minute,
		                   reminder_sound, notifications_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.DisplayName, u.Locale, u.Timezone, u.CheckInHour, u.CheckInMinute,
		u.ReminderSound, boolInt(u.Notifications), now, now)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

func (s *sqliteStore) User(ctx context.Context, id int64) (ritual.User, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ritual.User{}, ErrNotFound
	}
	if err != nil {
		return ritual.User{}, fmt.Errorf("get user: %w", err)
	}
	return r.domain(), nil
}

// UpsertPlan creates or replaces the PLANNED day for (user, localDate).
// The (user_id, local_date) uniqueness constraint is the upsert key; a
// replacement updates the plan content but never resets lifecycle fields.
func (s *sqliteStore) UpsertPlan(ctx context.Context, p Plan) (ritual.Day, error) {
	if p.UserID == 0 || p.LocalDate.IsZero() {
		return ritual.Day{}, errors.New("upsert plan: user and date required")
	}
	sub, err := json.Marshal(p.Subtasks)
	if err != nil {
		return ritual.Day{}, fmt.Errorf("upsert plan: %w", err)
	}
	now := ms(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ritual_days (user_id, local_date, title, note, subtasks, status, past_due, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'PLANNED', 0, ?, ?)
		ON CONFLICT (user_id, local_date) DO UPDATE SET
			title = excluded.title,
			note = excluded.note,
			subtasks = excluded.subtasks,
			updated_at = excluded.updated_at`,
		p.UserID, p.LocalDate, p.Title, p.Note, string(sub), now, now)
	if err != nil {
		return ritual.Day{}, fmt.Errorf("upsert plan: %w", err)
	}
	return s.DayByUserDate(ctx, p.UserID, p.LocalDate)
}

// CheckIn applies the explicit check-in transition while the day is still
// PLANNED. It returns false when a concurrent actor (another request or the
// missed sweeper) already moved the day out of PLANNED.
func (s *sqliteStore) CheckIn(ctx context.Context, dayID int64, achieved bool, at time.Time) (bool, error) {
	status := ritual.StatusMissed
	if achieved {
		status = ritual.StatusCompleted
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ritual_days
		SET status = ?, achieved = ?, check_in_at = ?, updated_at = ?
		WHERE id = ? AND status = 'PLANNED'`,
		string(status), boolInt(achieved), ms(at), ms(at), dayID)
	if err != nil {
		return false, fmt.Errorf("check in: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) SetReflection(ctx context.Context, dayID int64, text string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE ritual_days SET reflection = ?, updated_at = ? WHERE id = ?`,
		text, ms(time.Now()), dayID)
	if err != nil {
		return fmt.Errorf("set reflection: %w", err)
	}
	return nil
}

func (s *sqliteStore) Day(ctx context.Context, id int64) (ritual.Day, error) {
	var r dayRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM ritual_days WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ritual.Day{}, ErrNotFound
	}
	if err != nil {
		return ritual.Day{}, fmt.Errorf("get day: %w", err)
	}
	return r.domain(), nil
}

func (s *sqliteStore) DayByUserDate(ctx context.Context, userID int64, d ritual.Date) (ritual.Day, error) {
	var r dayRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM ritual_days WHERE user_id = ? AND local_date = ?`, userID, d)
	if errors.Is(err, sql.ErrNoRows) {
		return ritual.Day{}, ErrNotFound
	}
	if err != nil {
		return ritual.Day{}, fmt.Errorf("get day: %w", err)
	}
	return r.domain(), nil
}

// RegisterDevice upserts by token: a token moving to another user (app
// reinstall, account switch) re-binds and re-enables the device.
func (s *sqliteStore) RegisterDevice(ctx context.Context, userID int64, token, platform string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, errors.New("register device: token required")
	}
	now := ms(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_devices (user_id, token, platform, disabled, last_seen_at, created_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT (token) DO UPDATE SET
			user_id = excluded.user_id,
			platform = excluded.platform,
			disabled = 0,
			last_seen_at = excluded.last_seen_at`,
		userID, token, platform, now, now)
	if err != nil {
		return 0, fmt.Errorf("register device: %w", err)
	}
	var id int64
	if err := s.db.GetContext(ctx, &id, `SELECT id FROM push_devices WHERE token = ?`, token); err != nil {
		return 0, fmt.Errorf("register device: %w", err)
	}
	return id, nil
}

func (s *sqliteStore) TouchDevice(ctx context.Context, token string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE push_devices SET last_seen_at = ? WHERE token = ?`, ms(at), token)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return nil
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
