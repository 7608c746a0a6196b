// Package realtime is the in-process side of the realtime notification
// channel. The fan-out publishes per-user reminder events here; the socket
// transport (out of scope for this subsystem) subscribes one topic per
// connected user and forwards events to the client.
package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight signal delivered to one topic.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// Payload should be small and JSON-serializable; it crosses the socket
// boundary as-is.
type Event struct {
	Name    string
	Time    time.Time
	Payload any
}

// UserTopic is the per-user room convention shared with the socket layer.
func UserTopic(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

type Hub interface {
	// Publish delivers e to every subscriber of topic. It never blocks and
	// reports whether at least one subscriber received the event.
	Publish(topic string, e Event) bool
	Subscribe(topic string, buffer int) (ch <-chan Event, unsubscribe func())
}

// NewHub returns an in-memory topic-fanout hub.
//
// It intentionally owns no background goroutines.
func NewHub() Hub {
	return &memHub{topics: map[string]map[uint64]chan Event{}}
}

type memHub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]chan Event
	seq    atomic.Uint64
}

func (h *memHub) Publish(topic string, e Event) bool {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while sending.
	h.mu.RLock()
	chs := make([]chan Event, 0, len(h.topics[topic]))
	for _, ch := range h.topics[topic] {
		chs = append(chs, ch)
	}
	h.mu.RUnlock()

	delivered := false
	for _, ch := range chs {
		// Non-blocking delivery; slow subscribers drop. If a subscriber
		// unsubscribes concurrently and the channel closes, recover from
		// the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
				delivered = true
			default:
			}
		}()
	}
	return delivered
}

func (h *memHub) Subscribe(topic string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := h.seq.Add(1)

	h.mu.Lock()
	subs := h.topics[topic]
	if subs == nil {
		subs = map[uint64]chan Event{}
		h.topics[topic] = subs
	}
	subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs := h.topics[topic]; subs != nil {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.topics, topic)
				}
			}
			h.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
