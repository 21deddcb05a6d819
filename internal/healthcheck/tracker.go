package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the engine's own health for the ops endpoints.
type Snapshot struct {
	LastEventTime    *time.Time `json:"last_event_time"`
	EventsDispatched int64      `json:"events_dispatched"`
	ActiveMonitors   int        `json:"active_monitors"`
}

// Tracker records event dispatch activity for the health endpoints. The
// engine is event-driven, so readiness means the registry has started; there
// is no staleness window like a poll-based loop would have.
type Tracker struct {
	mu             sync.RWMutex
	started        bool
	lastEvent      time.Time
	events         int64
	activeMonitors int
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// MarkStarted records that the registry has attached to its services.
func (t *Tracker) MarkStarted() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
}

// RecordEvent updates dispatch counters after one routed event.
func (t *Tracker) RecordEvent(activeMonitors int) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastEvent = now
	t.events++
	t.activeMonitors = activeMonitors
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastEvent.IsZero() {
		value := t.lastEvent
		last = &value
	}
	return Snapshot{
		LastEventTime:    last,
		EventsDispatched: t.events,
		ActiveMonitors:   t.activeMonitors,
	}
}

// Ready reports whether the registry has started.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}
