// Package scheduler runs the sweep jobs on fixed intervals.
//
// It is a thin shell over robfig/cron: jobs are registered before Start and
// owned via the returned handles, ticks never overlap per job, and a
// panicking tick is contained to that tick.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"whisperd/pkg/logx"
)

// Job is one schedulable unit of work. Run must honor ctx cancellation and
// is never invoked concurrently with itself.
type Job interface {
	Name() string
	Run(ctx context.Context)
}

// Handle identifies one registered job and allows triggering it outside its
// schedule.
type Handle struct {
	name  string
	entry cron.EntryID
	svc   *Service
}

func (h *Handle) Name() string { return h.name }

// RunNow triggers one tick immediately on the caller's goroutine, with the
// same no-overlap guard a scheduled tick has. Used for the boot sweep.
func (h *Handle) RunNow(ctx context.Context) { h.svc.runGuarded(ctx, h.name) }

type registered struct {
	job     Job
	every   time.Duration
	running atomic.Bool
}

// Service owns the cron runtime. Register jobs with AddInterval before
// Start; Start and Stop are idempotent.
type Service struct {
	mu   sync.Mutex
	c    *cron.Cron
	jobs map[string]*registered
	log  logx.Logger

	// runCtx is the lifetime handed to scheduled ticks; Stop cancels it so
	// in-flight ticks observe shutdown.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{jobs: map[string]*registered{}, log: log}
}

// AddInterval registers job to run every interval. Duplicate names and
// non-positive intervals are rejected.
func (s *Service) AddInterval(every time.Duration, job Job) (*Handle, error) {
	if every <= 0 {
		return nil, errBadInterval(every)
	}
	name := job.Name()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return nil, errDuplicateJob(name)
	}
	if s.c == nil {
		s.c = cron.New()
	}
	s.jobs[name] = &registered{job: job, every: every}

	id, err := s.c.AddFunc("@every "+every.String(), func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		s.runGuarded(ctx, name)
	})
	if err != nil {
		delete(s.jobs, name)
		return nil, err
	}
	s.log.Debug("job registered", logx.String("job", name), logx.Duration("every", every))
	return &Handle{name: name, entry: id, svc: s}, nil
}

// Start begins scheduled ticking. Calling Start on a started service is a
// no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return
	}
	if s.c == nil {
		s.c = cron.New()
	}
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.jobs)))
}

// Stop halts scheduling and waits for in-flight ticks, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	cancel := s.cancelRun
	s.runCtx, s.cancelRun = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// runGuarded is the single entry point for every tick, scheduled or manual.
func (s *Service) runGuarded(ctx context.Context, name string) {
	s.mu.Lock()
	r := s.jobs[name]
	s.mu.Unlock()
	if r == nil || ctx.Err() != nil {
		return
	}
	if !r.running.CompareAndSwap(false, true) {
		s.log.Warn("tick skipped, previous still running", logx.String("job", name))
		return
	}
	defer r.running.Store(false)
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("tick panicked", logx.String("job", name), logx.Any("panic", rec))
		}
	}()
	r.job.Run(ctx)
}
