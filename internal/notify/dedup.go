package notify

import (
	"sync"
	"time"
)

// Dedup is a process-local suppression set: ritual id -> last sent at.
//
// It exists so two reminder ticks inside the suppression TTL produce one
// notification, not two. It is intentionally not persisted; after a process
// restart the worst case is one duplicate notification. Construct one
// explicitly and hand it to the reminder job — there is no package-level
// instance, and multi-instance deployments each carry their own.
type Dedup struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[int64]time.Time
}

func NewDedup(ttl time.Duration, maxEntries int) *Dedup {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 2000
	}
	return &Dedup{ttl: ttl, max: maxEntries, seen: map[int64]time.Time{}}
}

// Allow reports whether id may be notified now and, if so, records the
// attempt. Check and record are one atomic step so two ticks racing on the
// same id cannot both pass.
func (d *Dedup) Allow(id int64, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.seen[id]; ok && now.Sub(at) < d.ttl {
		return false
	}
	d.seen[id] = now
	d.evictLocked(now)
	return true
}

// Prune drops entries older than the TTL. Call once per tick.
func (d *Dedup) Prune(now time.Time) {
	d.mu.Lock()
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
	d.mu.Unlock()
}

// Clear empties the set; called on job shutdown so a restart starts clean.
func (d *Dedup) Clear() {
	d.mu.Lock()
	d.seen = map[int64]time.Time{}
	d.mu.Unlock()
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evictLocked bounds the map: expired entries first, then oldest-first
// while still over the cap.
func (d *Dedup) evictLocked(now time.Time) {
	if len(d.seen) <= d.max {
		return
	}
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
	for len(d.seen) > d.max {
		var oldestID int64
		var oldestAt time.Time
		first := true
		for id, at := range d.seen {
			if first || at.Before(oldestAt) {
				oldestID, oldestAt = id, at
				first = false
			}
		}
		delete(d.seen, oldestID)
	}
}
