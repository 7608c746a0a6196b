// Package app wires the daemon together: config, logging, storage, the
// notification fan-out and the sweep schedule.
package app

import (
	"context"
	"time"

	"whisperd/internal/config"
	"whisperd/internal/notify"
	"whisperd/internal/push"
	"whisperd/internal/realtime"
	"whisperd/internal/scheduler"
	"whisperd/internal/storage"
	"whisperd/internal/sweep"
	"whisperd/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	hub   realtime.Hub
	fan   *notify.Service
	dedup *notify.Dedup
	sched *scheduler.Service

	missed   *scheduler.Handle
	pastdue  *scheduler.Handle
	reminder *scheduler.Handle

	sweepEnabled bool
	cancelWatch  context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	stCfg, err := cfg.StorageConfig()
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(stCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	hub := realtime.NewHub()

	var sender push.Sender
	if cfg.Push.Enabled {
		pushCfg, err := cfg.PushClientConfig()
		if err != nil {
			_ = store.Close()
			logSvc.Close()
			return nil, err
		}
		sender = push.NewClient(pushCfg, log.With(logx.String("comp", "push")))
	} else {
		log.Info("push disabled, reminders are realtime-only")
	}

	fan := notify.New(cfg.NotifyConfig(), hub, sender, store,
		log.With(logx.String("comp", "notify")))

	sweepCfg, err := cfg.SweepConfig()
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	dedup := notify.NewDedup(sweepCfg.DedupTTL, cfg.Sweep.DedupMaxEntries)

	sweepLog := log.With(logx.String("comp", "sweep"))
	sched := scheduler.New(log.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgm:         cfgm,
		log:          log,
		logs:         logSvc,
		store:        store,
		hub:          hub,
		fan:          fan,
		dedup:        dedup,
		sched:        sched,
		sweepEnabled: cfg.SweepEnabled(),
	}

	if a.missed, err = sched.AddInterval(sweepCfg.MissedEvery,
		sweep.NewMissedJob(sweepCfg, store, sweepLog)); err != nil {
		a.closeOnInitErr()
		return nil, err
	}
	if a.pastdue, err = sched.AddInterval(sweepCfg.PastDueEvery,
		sweep.NewPastDueJob(sweepCfg, store, sweepLog)); err != nil {
		a.closeOnInitErr()
		return nil, err
	}
	if a.reminder, err = sched.AddInterval(sweepCfg.ReminderEvery,
		sweep.NewReminderJob(sweepCfg, store, fan, dedup, sweepLog)); err != nil {
		a.closeOnInitErr()
		return nil, err
	}
	return a, nil
}

func (a *App) closeOnInitErr() {
	_ = a.store.Close()
	a.logs.Close()
}

// Hub exposes the realtime hub so a socket transport can subscribe user
// topics.
func (a *App) Hub() realtime.Hub { return a.hub }

// Store exposes persistence to the interactive API surface.
func (a *App) Store() storage.Store { return a.store }

// Start brings the schedule up and runs one boot sweep so work that became
// due while the process was down is applied immediately rather than on the
// first interval.
func (a *App) Start(ctx context.Context) {
	if !a.sweepEnabled {
		a.log.Warn("sweep disabled by config, lifecycle jobs will not run")
	} else {
		go func() {
			a.missed.RunNow(ctx)
			a.pastdue.RunNow(ctx)
			a.reminder.RunNow(ctx)
		}()
		a.sched.Start()
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.cancelWatch = cancel
	go a.cfgm.Watch(watchCtx)
	go a.reloadLoop(watchCtx)

	a.log.Info("started", logx.Bool("sweep", a.sweepEnabled))
}

// reloadLoop applies committed config reloads to the live services. Logging
// and fan-out settings apply in place; storage, push and schedule changes
// need a restart and are only reported.
func (a *App) reloadLoop(ctx context.Context) {
	ch := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logs.Apply(cfg.LogxConfig())
			a.fan.Apply(cfg.NotifyConfig())
			if cfg.SweepEnabled() != a.sweepEnabled {
				a.log.Warn("sweep.enabled changed, restart required to take effect")
			}
			a.log.Info("config applied")
		}
	}
}

func (a *App) Stop(ctx context.Context) {
	start := time.Now()
	if a.cancelWatch != nil {
		a.cancelWatch()
	}
	a.sched.Stop(ctx)
	a.dedup.Clear()
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	a.logs.Close()
}
