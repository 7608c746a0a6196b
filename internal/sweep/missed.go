package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"

	"whisperd/internal/ritual"
	"whisperd/internal/storage"
	"whisperd/pkg/logx"
)

// MissedJob flips PLANNED days whose deadline has passed to MISSED. The
// deadline is start-of-day in the owner's zone plus 24h, so the cutoff
// follows each user's calendar, not the server's.
type MissedJob struct {
	cfg Config
	st  storage.Store
	log logx.Logger
	now func() time.Time
}

func NewMissedJob(cfg Config, st storage.Store, log logx.Logger) *MissedJob {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &MissedJob{cfg: cfg.withDefaults(), st: st, log: log, now: time.Now}
}

func (j *MissedJob) Name() string { return "sweep.missed" }

// Run performs one sweep tick. Errors are logged, never returned: the next
// tick retries whatever this one could not finish.
func (j *MissedJob) Run(ctx context.Context) {
	log := j.log.With(logx.String("run", shortRunID()))
	now := j.now()
	started := time.Now()

	var scanned, due int
	var updated int64
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

		ids := make([]int64, 0, len(rows))
		for _, r := range rows {
			if r.LocalDate.IsZero() {
				log.Warn("ritual day has no date, skipping", logx.Int64("ritual", r.ID))
				continue
			}
			if !now.Before(ritual.DeadlineInstant(r.LocalDate, r.Timezone)) {
				ids = append(ids, r.ID)
			}
		}
		due += len(ids)

		if len(ids) > 0 {
			n, err := j.st.MarkMissed(ctx, ids)
			if err != nil {
				log.Error("mark missed failed", logx.Int("ids", len(ids)), logx.Err(err))
			} else {
				updated += n
			}
		}
		if !hasMore {
			break
		}
	}

	log.Info("missed sweep done",
		logx.Int("scanned", scanned),
		logx.Int("due", due),
		logx.Int64("updated", updated),
		logx.Duration("took", time.Since(started)))
}

// shortRunID tags every log line of one tick so interleaved ticks from
// different jobs stay readable.
func shortRunID() string {
	return uuid.NewString()[:8]
}
