package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"whisperd/internal/notify"
	"whisperd/internal/push"
	"whisperd/internal/realtime"
	"whisperd/internal/ritual"
	"whisperd/internal/storage"
	"whisperd/pkg/logx"
)

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "sweep.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newUser(t *testing.T, st storage.Store, tz string, hour, minute int, notifications bool) int64 {
	t.Helper()
	id, err := st.CreateUser(context.Background(), ritual.User{
		DisplayName:   "Ana",
		Timezone:      tz,
		CheckInHour:   hour,
		CheckInMinute: minute,
		Notifications: notifications,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func newDay(t *testing.T, st storage.Store, uid int64, date, title string) ritual.Day {
	t.Helper()
	d, err := ritual.ParseDate(date)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", date, err)
	}
	day, err := st.UpsertPlan(context.Background(), storage.Plan{UserID: uid, LocalDate: d, Title: title})
	if err != nil {
		t.Fatalf("UpsertPlan: %v", err)
	}
	return day
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

type stubSender struct {
	calls   [][]push.Message
	tickets map[string]push.Ticket
	err     error
}

func (f *stubSender) Send(_ context.Context, msgs []push.Message) ([]push.Ticket, error) {
	f.calls = append(f.calls, msgs)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]push.Ticket, len(msgs))
	for i, m := range msgs {
		if tk, ok := f.tickets[m.To]; ok {
			out[i] = tk
		} else {
			out[i] = push.Ticket{OK: true}
		}
	}
	return out, nil
}

func newFanout(st storage.Store, sender push.Sender) (*notify.Service, realtime.Hub) {
	hub := realtime.NewHub()
	return notify.New(notify.Config{}, hub, sender, st, logx.Nop()), hub
}

// Deadline semantics for a UTC-3 zone: the 2024-03-10 ritual day expires at
// 2024-03-11T03:00:00Z.
func TestMissedJobDeadline(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	uid := newUser(t, st, "America/Fortaleza", 8, 0, true)
	day := newDay(t, st, uid, "2024-03-10", "Meditar")

	job := NewMissedJob(Config{}, st, logx.Nop())

	job.now = func() time.Time { return at("2024-03-11T02:59:59Z") }
	job.Run(ctx)
	got, err := st.Day(ctx, day.ID)
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if got.Status != ritual.StatusPlanned {
		t.Fatalf("status before deadline = %s, want PLANNED", got.Status)
	}

	job.now = func() time.Time { return at("2024-03-11T03:00:00Z") }
	job.Run(ctx)
	got, err = st.Day(ctx, day.ID)
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if got.Status != ritual.StatusMissed {
		t.Fatalf("status at deadline = %s, want MISSED", got.Status)
	}
	if got.Achieved == nil || *got.Achieved {
		t.Error("achieved should be false after miss")
	}
	if !got.PastDue {
		t.Error("past_due should be set after miss")
	}
}

func TestMissedJobIdempotent(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	uid := newUser(t, st, "UTC", 8, 0, true)
	newDay(t, st, uid, "2024-03-10", "Meditar")

	job := NewMissedJob(Config{}, st, logx.Nop())
	job.now = func() time.Time { return at("2024-03-12T00:00:00Z") }

	job.Run(ctx)
	job.Run(ctx)

	// No PLANNED rows remain and the second run had nothing to change.
	rows, _, err := st.PlannedPage(ctx, 0, 10)
	if err != nil {
		t.Fatalf("PlannedPage: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("planned rows after double run = %d, want 0", len(rows))
	}
}

func TestMissedJobDoesNotTouchCheckedIn(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	uid := newUser(t, st, "UTC", 8, 0, true)
	done := newDay(t, st, uid, "2024-03-10", "Meditar")
	if _, err := st.CheckIn(ctx, done.ID, true, at("2024-03-10T20:00:00Z")); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	job := NewMissedJob(Config{}, st, logx.Nop())
	job.now = func() time.Time { return at("2024-03-12T00:00:00Z") }
	job.Run(ctx)

	got, err := st.Day(ctx, done.ID)
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if got.Status != ritual.StatusCompleted || got.Achieved == nil || !*got.Achieved {
		t.Fatalf("completed day mutated by sweep: %+v", got)
	}
}

func TestMissedJobPagination(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	uid := newUser(t, st, "UTC", 8, 0, true)
	const n = 7
	for i := 0; i < n; i++ {
		newDay(t, st, uid, fmt.Sprintf("2024-03-%02d", i+1), "Meditar")
	}

	job := NewMissedJob(Config{BatchSize: 1}, st, logx.Nop())
	job.now = func() time.Time { return at("2024-04-01T00:00:00Z") }
	job.Run(ctx)

	rows, _, err := st.PlannedPage(ctx, 0, 100)
	if err != nil {
		t.Fatalf("PlannedPage: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("planned rows after batch-1 sweep = %d, want 0", len(rows))
	}
}

func TestPastDueJobRetention(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	uid := newUser(t, st, "UTC", 8, 0, true)
	day := newDay(t, st, uid, "2024-03-10", "Meditar")
	if _, err := st.CheckIn(ctx, day.ID, true, time.Now()); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	job := NewPastDueJob(Config{}, st, logx.Nop())

	// Row is fresh: cutoff = now - 24h lies before created_at.
	job.Run(ctx)
	got, err := st.Day(ctx, day.ID)
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if got.PastDue {
		t.Fatal("fresh completed day flagged past due")
	}

	// Advance the clock past retention.
	job.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	job.Run(ctx)
	got, err = st.Day(ctx, day.ID)
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if !got.PastDue {
		t.Fatal("stale completed day not flagged past due")
	}
	if got.Status != ritual.StatusCompleted {
		t.Fatalf("status changed to %s, want COMPLETED", got.Status)
	}

	job.Run(ctx) // second pass finds nothing unflagged
}

func registerToken(t *testing.T, st storage.Store, uid int64, i int) string {
	t.Helper()
	token := fmt.Sprintf("ExponentPushToken[u%d-%d]", uid, i)
	if _, err := st.RegisterDevice(context.Background(), uid, token, "ios"); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	return token
}

// End to end: a Fortaleza user with an 08:00 check-in gets notified by the
// tick at 2024-03-10 11:00Z (08:00 UTC-3), ticks inside the suppression TTL
// stay quiet, and the realtime event reaches the user's topic.
func TestReminderJobWindowAndDedup(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	uid := newUser(t, st, "America/Fortaleza", 8, 0, true)
	day := newDay(t, st, uid, "2024-03-10", "Meditar")
	token := registerToken(t, st, uid, 1)

	sender := &stubSender{}
	fan, hub := newFanout(st, sender)
	events, unsub := hub.Subscribe(realtime.UserTopic(uid), 4)
	defer unsub()

	job := NewReminderJob(Config{}, st, fan, nil, logx.Nop())

	// 10:53Z: reminder instant 11:00Z is beyond the early edge.
	job.now = func() time.Time { return at("2024-03-10T10:53:00Z") }
	job.Run(ctx)
	if len(sender.calls) != 0 {
		t.Fatal("notified before the window opened")
	}

	// 11:00Z: in window, fires once.
	job.now = func() time.Time { return at("2024-03-10T11:00:00Z") }
	job.Run(ctx)
	if len(sender.calls) != 1 {
		t.Fatalf("send calls = %d, want 1", len(sender.calls))
	}
	if got := sender.calls[0][0].To; got != token {
		t.Errorf("sent to %q, want %q", got, token)
	}
	wantBody := `Ana, hora de revisar seu ritual de 10/03: "Meditar". Marque se concluiu ou não.`
	if got := sender.calls[0][0].Body; got != wantBody {
		t.Errorf("body = %q, want %q", got, wantBody)
	}
	select {
	case e := <-events:
		if e.Name != notify.EventReminder {
			t.Errorf("event = %q", e.Name)
		}
	default:
		t.Error("no realtime event delivered")
	}

	// 11:01Z and 11:04Z: still in window, suppressed by the TTL.
	for _, ts := range []string{"2024-03-10T11:01:00Z", "2024-03-10T11:04:00Z"} {
		job.now = func() time.Time { return at(ts) }
		job.Run(ctx)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("send calls after suppressed ticks = %d, want 1", len(sender.calls))
	}

	// Checked-in days leave the scan entirely.
	if _, err := st.CheckIn(ctx, day.ID, true, at("2024-03-10T11:05:00Z")); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	job.dedup.Clear()
	job.now = func() time.Time { return at("2024-03-10T11:02:00Z") }
	job.Run(ctx)
	if len(sender.calls) != 1 {
		t.Fatal("checked-in day still notified")
	}
}

func TestReminderJobSkipsMutedUsers(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	uid := newUser(t, st, "UTC", 8, 0, false)
	newDay(t, st, uid, "2024-03-10", "Meditar")
	registerToken(t, st, uid, 1)

	sender := &stubSender{}
	fan, _ := newFanout(st, sender)
	job := NewReminderJob(Config{}, st, fan, nil, logx.Nop())
	job.now = func() time.Time { return at("2024-03-10T08:00:00Z") }
	job.Run(ctx)

	if len(sender.calls) != 0 {
		t.Fatal("muted user was notified")
	}
}

// A transport failure still records the attempt: the TTL decides the retry,
// not the delivery outcome.
func TestReminderJobRecordsDedupOnFailure(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	uid := newUser(t, st, "UTC", 8, 0, true)
	newDay(t, st, uid, "2024-03-10", "Meditar")
	registerToken(t, st, uid, 1)

	sender := &stubSender{err: errors.New("provider down")}
	fan, _ := newFanout(st, sender)
	job := NewReminderJob(Config{}, st, fan, nil, logx.Nop())

	job.now = func() time.Time { return at("2024-03-10T08:00:00Z") }
	job.Run(ctx)
	job.now = func() time.Time { return at("2024-03-10T08:02:00Z") }
	job.Run(ctx)

	if len(sender.calls) != 1 {
		t.Fatalf("send calls = %d, want 1 (failure must not bypass suppression)", len(sender.calls))
	}
}

func TestReminderJobDisablesInvalidTokens(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	uid := newUser(t, st, "UTC", 8, 0, true)
	newDay(t, st, uid, "2024-03-10", "Meditar")
	bad := registerToken(t, st, uid, 1)
	good := registerToken(t, st, uid, 2)

	sender := &stubSender{tickets: map[string]push.Ticket{
		bad: {Fault: push.FaultRegistrationInvalid},
	}}
	fan, _ := newFanout(st, sender)
	job := NewReminderJob(Config{}, st, fan, nil, logx.Nop())
	job.now = func() time.Time { return at("2024-03-10T08:00:00Z") }
	job.Run(ctx)

	devices, err := st.DevicesForUsers(ctx, []int64{uid}, true)
	if err != nil {
		t.Fatalf("DevicesForUsers: %v", err)
	}
	if len(devices) != 1 || devices[0].Token != good {
		t.Fatalf("enabled devices = %+v, want only %q", devices, good)
	}
}
