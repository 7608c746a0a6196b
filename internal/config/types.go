package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"whisperd/internal/notify"
	"whisperd/internal/push"
	"whisperd/internal/storage"
	"whisperd/internal/sweep"
	"whisperd/pkg/logx"
)

// Config is the on-disk configuration. YAML and JSON are both accepted;
// all durations are Go duration strings (e.g. "500ms", "15m", "1h").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Sweep   SweepConfig   `json:"sweep"`
	Push    PushConfig    `json:"push"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SweepConfig controls the three lifecycle jobs. Zero/omitted fields use
// built-in defaults; Enabled gates scheduling without gating the boot
// sweep's storage wiring.
type SweepConfig struct {
	Enabled   *bool `json:"enabled,omitempty"` // omitted means enabled
	BatchSize int   `json:"batch_size,omitempty"`

	MissedEvery   string `json:"missed_every,omitempty"`
	PastDueEvery  string `json:"pastdue_every,omitempty"`
	ReminderEvery string `json:"reminder_every,omitempty"`

	WindowLate  string `json:"window_late,omitempty"`
	WindowEarly string `json:"window_early,omitempty"`

	DedupTTL        string `json:"dedup_ttl,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`

	Retention string `json:"retention,omitempty"`
}

type PushConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"`
	AccessToken string `json:"access_token,omitempty"` // do not log
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
	ChunkSize   int    `json:"chunk_size,omitempty"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := c.PushTimeout(); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	sc, err := c.SweepConfig()
	if err != nil {
		return err
	}
	if sc.DedupTTL < sc.WindowLate+sc.WindowEarly {
		return fmt.Errorf("sweep.dedup_ttl (%s) must cover the reminder window (%s)",
			sc.DedupTTL, sc.WindowLate+sc.WindowEarly)
	}
	return nil
}

func (c *Config) SweepEnabled() bool {
	return c.Sweep.Enabled == nil || *c.Sweep.Enabled
}

func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

func (c *Config) StorageConfig() (storage.Config, error) {
	busy, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: c.Storage.Path, BusyTimeout: busy}, nil
}

func (c *Config) SweepConfig() (sweep.Config, error) {
	out := sweep.Config{BatchSize: c.Sweep.BatchSize}
	for _, f := range []struct {
		path string
		raw  string
		dst  *time.Duration
		def  time.Duration
	}{
		{"sweep.missed_every", c.Sweep.MissedEvery, &out.MissedEvery, sweep.DefaultMissedEvery},
		{"sweep.pastdue_every", c.Sweep.PastDueEvery, &out.PastDueEvery, sweep.DefaultPastDueEvery},
		{"sweep.reminder_every", c.Sweep.ReminderEvery, &out.ReminderEvery, sweep.DefaultReminderEvery},
		{"sweep.window_late", c.Sweep.WindowLate, &out.WindowLate, sweep.DefaultWindowLate},
		{"sweep.window_early", c.Sweep.WindowEarly, &out.WindowEarly, sweep.DefaultWindowEarly},
		{"sweep.dedup_ttl", c.Sweep.DedupTTL, &out.DedupTTL, sweep.DefaultDedupTTL},
		{"sweep.retention", c.Sweep.Retention, &out.Retention, sweep.DefaultRetention},
	} {
		d, err := ParseDurationOrDefault(f.path, f.raw, f.def)
		if err != nil {
			return sweep.Config{}, err
		}
		*f.dst = d
	}
	return out, nil
}

func (c *Config) PushTimeout() (time.Duration, error) {
	return ParseDurationField("push.timeout", c.Push.Timeout)
}

func (c *Config) PushClientConfig() (push.Config, error) {
	timeout, err := c.PushTimeout()
	if err != nil {
		return push.Config{}, err
	}
	return push.Config{
		Endpoint:    c.Push.Endpoint,
		AccessToken: c.Push.AccessToken,
		RatePerSec:  c.Push.RatePerSec,
		Timeout:     timeout,
	}, nil
}

func (c *Config) NotifyConfig() notify.Config {
	return notify.Config{ChunkSize: c.Push.ChunkSize}
}
