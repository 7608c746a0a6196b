package notify

import (
	"context"
	"strconv"
	"sync"

	"whisperd/internal/push"
	"whisperd/internal/realtime"
	"whisperd/internal/ritual"
	"whisperd/pkg/logx"
)

// EventReminder is the realtime event name shared with the socket layer.
const EventReminder = "ritual:reminder"

// Config controls the fan-out.
type Config struct {
	ChunkSize int // per provider call, <= provider limit; default push.DefaultChunkSize
}

// DeviceDisabler is the slice of the store the fan-out needs to report
// invalid tokens back.
type DeviceDisabler interface {
	DisableDevicesByToken(ctx context.Context, tokens []string) (int64, error)
}

// Dispatch is one logical reminder for one ritual day.
type Dispatch struct {
	UserID   int64
	RitualID int64
	Title    string
	Message  string
	Sound    string
}

// Result is the per-dispatch delivery accounting.
type Result struct {
	RealtimeSent bool
	Attempted    int // tokens that passed local validation and were sent to the provider
	Succeeded    int
	Failed       int
	Disabled     int // tokens disabled after invalid-token faults
}

// Service fans a reminder out across the realtime topic and the push
// provider, and feeds invalid-token faults back into the device store.
// It is safe for concurrent use.
type Service struct {
	mu  sync.Mutex
	cfg Config

	log     logx.Logger
	hub     realtime.Hub
	sender  push.Sender
	devices DeviceDisabler
}

func New(cfg Config, hub realtime.Hub, sender push.Sender, devices DeviceDisabler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = push.DefaultChunkSize
	}
	return &Service{cfg: cfg, log: log, hub: hub, sender: sender, devices: devices}
}

func (s *Service) Apply(cfg Config) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = push.DefaultChunkSize
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Dispatch delivers one reminder. tokens is the raw token list resolved for
// the user (the caller batches the lookup across the whole tick).
//
// Channel semantics:
//   - realtime: non-blocking publish, no confirmation, never retried;
//   - push: tokens are validated locally, chunked, and sent; a chunk-level
//     transport failure fails every token in the chunk without aborting
//     the remaining chunks; invalid-token faults are disabled in one
//     batched store update.
//
// Dispatch never returns an error: delivery failures are counters, and the
// caller's suppression window decides when to try again.
func (s *Service) Dispatch(ctx context.Context, d Dispatch, tokens []string) Result {
	s.mu.Lock()
	chunkSize := s.cfg.ChunkSize
	s.mu.Unlock()

	log := s.log.With(logx.Int64("ritual", d.RitualID), logx.Int64("user", d.UserID))

	var res Result

	res.RealtimeSent = s.hub.Publish(realtime.UserTopic(d.UserID), realtime.Event{
		Name: EventReminder,
		Payload: map[string]any{
			"ritualId": d.RitualID,
			"title":    d.Title,
			"message":  d.Message,
			"data":     pushData(d.RitualID),
		},
	})

	if s.sender == nil {
		// Push channel not configured; realtime-only deployment.
		return res
	}

	valid := dedupeValid(tokens)
	if len(valid) == 0 {
		if len(tokens) > 0 {
			log.Warn("no valid push tokens", logx.Int("raw_tokens", len(tokens)))
		}
		return res
	}

	sound := d.Sound
	if sound == "" {
		sound = "default"
	}
	msgs := make([]push.Message, len(valid))
	for i, tok := range valid {
		msgs[i] = push.Message{
			To:       tok,
			Title:    "Lembrete do seu ritual",
			Body:     d.Message,
			Data:     pushData(d.RitualID),
			Sound:    sound,
			Priority: "high",
		}
	}

	var disable []string
	for _, chunk := range push.Chunk(msgs, chunkSize) {
		res.Attempted += len(chunk)
		tickets, err := s.sender.Send(ctx, chunk)
		if err != nil {
			// Whole chunk failed in transport; every token counts as
			// failed and the next tick re-attempts naturally.
			res.Failed += len(chunk)
			log.Warn("push chunk failed", logx.Int("tokens", len(chunk)), logx.Err(err))
			continue
		}
		for i, t := range tickets {
			if t.OK {
				res.Succeeded++
				continue
			}
			res.Failed++
			if t.Fault.Invalid() {
				disable = append(disable, chunk[i].To)
			}
		}
	}

	if len(disable) > 0 {
		n, err := s.devices.DisableDevicesByToken(ctx, disable)
		if err != nil {
			log.Error("device disable failed", logx.Int("tokens", len(disable)), logx.Err(err))
		} else {
			res.Disabled = int(n)
			log.Info("devices disabled", logx.Int("tokens", len(disable)), logx.Int64("updated", n))
		}
	}

	return res
}

// ReminderDispatch builds the dispatch for a ritual day using the shared
// notification copy.
func ReminderDispatch(row DispatchSource) Dispatch {
	return Dispatch{
		UserID:   row.UserID,
		RitualID: row.RitualID,
		Title:    row.Title,
		Message:  ritual.ReminderMessage(row.DisplayName, row.Title, row.LocalDate, row.Timezone),
		Sound:    row.Sound,
	}
}

// DispatchSource is the row shape ReminderDispatch needs; it mirrors the
// store's planned-page row without importing the storage package.
type DispatchSource struct {
	RitualID    int64
	UserID      int64
	Title       string
	DisplayName string
	LocalDate   ritual.Date
	Timezone    string
	Sound       string
}

func pushData(ritualID int64) map[string]string {
	return map[string]string{
		"type":     "RITUAL_REMINDER",
		"ritualId": strconv.FormatInt(ritualID, 10),
		"deepLink": ritual.DeepLink(ritualID),
	}
}

func dedupeValid(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if push.ValidToken(t) {
			out = append(out, t)
		}
	}
	return out
}
