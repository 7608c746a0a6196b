package sweep

import (
	"context"
	"time"

	"whisperd/internal/storage"
	"whisperd/pkg/logx"
)

// PastDueJob flags COMPLETED days older than the retention cutoff with
// past_due=1. The flag is a one-way latch: the update only touches rows
// where it is still unset, so re-running over the same rows is free.
type PastDueJob struct {
	cfg Config
	st  storage.Store
	log logx.Logger
	now func() time.Time
}

func NewPastDueJob(cfg Config, st storage.Store, log logx.Logger) *PastDueJob {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &PastDueJob{cfg: cfg.withDefaults(), st: st, log: log, now: time.Now}
}

func (j *PastDueJob) Name() string { return "sweep.pastdue" }

func (j *PastDueJob) Run(ctx context.Context) {
	log := j.log.With(logx.String("run", shortRunID()))
	cutoff := j.now().Add(-j.cfg.Retention)
	started := time.Now()

	var scanned int
	var updated int64
	var cursor int64
	for {
		ids, hasMore, err := j.st.CompletedUnflaggedPage(ctx, cursor, cutoff, j.cfg.BatchSize)
		if err != nil {
			log.Error("completed page failed", logx.Int64("cursor", cursor), logx.Err(err))
			return
		}
		if len(ids) == 0 {
			break
		}
		cursor = ids[len(ids)-1]
		scanned += len(ids)

		n, err := j.st.MarkPastDue(ctx, ids)
		if err != nil {
			log.Error("mark past due failed", logx.Int("ids", len(ids)), logx.Err(err))
		} else {
			updated += n
		}
		if !hasMore {
			break
		}
	}

	log.Info("pastdue sweep done",
		logx.Int("scanned", scanned),
		logx.Int64("updated", updated),
		logx.Time("cutoff", cutoff),
		logx.Duration("took", time.Since(started)))
}
