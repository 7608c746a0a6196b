package sweep

import (
	"context"
	"time"

	"whisperd/internal/notify"
	"whisperd/internal/ritual"
	"whisperd/internal/storage"
	"whisperd/pkg/logx"
)

// ReminderJob notifies users whose check-in time falls inside the current
// window. The window reaches a little into the past so a tick landing after
// the configured instant still fires, and a little into the future so a
// tick landing just before it does not wait a full interval.
//
// The suppression set records a ritual before the fan-out runs, so delivery
// failures and token-less users are not retried every tick inside the TTL;
// the next day's reminder is a different ritual id and unaffected.
type ReminderJob struct {
	cfg   Config
	st    storage.Store
	fan   *notify.Service
	dedup *notify.Dedup
	log   logx.Logger
	now   func() time.Time
}

func NewReminderJob(cfg Config, st storage.Store, fan *notify.Service, dedup *notify.Dedup, log logx.Logger) *ReminderJob {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	if dedup == nil {
		dedup = notify.NewDedup(cfg.DedupTTL, 0)
	}
	return &ReminderJob{cfg: cfg, st: st, fan: fan, dedup: dedup, log: log, now: time.Now}
}

func (j *ReminderJob) Name() string { return "sweep.reminder" }

func (j *ReminderJob) Run(ctx context.Context) {
	log := j.log.With(logx.String("run", shortRunID()))
	now := j.now()
	windowStart := now.Add(-j.cfg.WindowLate)
	windowEnd := now.Add(j.cfg.WindowEarly)
	started := time.Now()

	j.dedup.Prune(now)

	// Pass one: collect everything due this tick, then resolve devices for
	// all owners in a single query.
	var scanned, muted, suppressed int
	var due []storage.PlannedRow
	var cursor int64
	for {
		rows, hasMore, err := j.st.PlannedPage(ctx, cursor, j.cfg.BatchSize)
		if err != nil {
			log.Error("planned page failed", logx.Int64("cursor", cursor), logx.Err(err))
			return
		}
		if len(rows) == 0 {
			break
		}
		cursor = rows[len(rows)-1].ID
		scanned += len(rows)

		for _, r := range rows {
			if r.LocalDate.IsZero() {
				continue
			}
			at := ritual.ReminderInstant(r.LocalDate, r.Timezone, r.CheckInHour, r.CheckInMinute)
			if at.Before(windowStart) || at.After(windowEnd) {
				continue
			}
			if !r.Notifications {
				muted++
				continue
			}
			if !j.dedup.Allow(r.ID, now) {
				suppressed++
				continue
			}
			due = append(due, r)
		}
		if !hasMore {
			break
		}
	}

	if len(due) == 0 {
		log.Debug("reminder sweep idle",
			logx.Int("scanned", scanned),
			logx.Int("suppressed", suppressed),
			logx.Duration("took", time.Since(started)))
		return
	}

	tokens := j.resolveTokens(ctx, log, due)

	var sent, pushOK, pushFailed, disabled int
	for _, r := range due {
		res := j.fan.Dispatch(ctx, notify.ReminderDispatch(notify.DispatchSource{
			RitualID:    r.ID,
			UserID:      r.UserID,
			Title:       r.Title,
			DisplayName: r.DisplayName,
			LocalDate:   r.LocalDate,
			Timezone:    r.Timezone,
			Sound:       r.ReminderSound,
		}), tokens[r.UserID])
		sent++
		pushOK += res.Succeeded
		pushFailed += res.Failed
		disabled += res.Disabled
	}

	log.Info("reminder sweep done",
		logx.Int("scanned", scanned),
		logx.Int("due", len(due)),
		logx.Int("muted", muted),
		logx.Int("suppressed", suppressed),
		logx.Int("sent", sent),
		logx.Int("push_ok", pushOK),
		logx.Int("push_failed", pushFailed),
		logx.Int("disabled", disabled),
		logx.Duration("took", time.Since(started)))
}

func (j *ReminderJob) resolveTokens(ctx context.Context, log logx.Logger, due []storage.PlannedRow) map[int64][]string {
	ids := make([]int64, 0, len(due))
	seen := map[int64]struct{}{}
	for _, r := range due {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		ids = append(ids, r.UserID)
	}

	devices, err := j.st.DevicesForUsers(ctx, ids, true)
	if err != nil {
		// Dispatch proceeds with the realtime channel only.
		log.Error("device lookup failed", logx.Int("users", len(ids)), logx.Err(err))
		return nil
	}
	tokens := make(map[int64][]string, len(ids))
	for _, d := range devices {
		tokens[d.UserID] = append(tokens[d.UserID], d.Token)
	}
	return tokens
}
