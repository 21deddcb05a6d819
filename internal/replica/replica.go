package replica

import (
	"sync"
	"sync/atomic"
)

// State is the externally visible lifecycle state of a replica, as published
// on its service's event bus. Added/Started/Stopped/Removed are authored by
// the replica's owner; Healthy/Sick are authored by the monitoring engine.
type State int32

const (
	StateAdded State = iota
	StateStarted
	StateHealthy
	StateSick
	StateStopped
	StateRemoved
)

// String returns the lifecycle state label used in logs and events.
func (s State) String() string {
	switch s {
	case StateAdded:
		return "added"
	case StateStarted:
		return "started"
	case StateHealthy:
		return "healthy"
	case StateSick:
		return "sick"
	case StateStopped:
		return "stopped"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state label so JSON payloads carry names, not
// ordinals.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Port is one listening endpoint of a replica. An empty Protocol means the
// http scheme.
type Port struct {
	Number   int
	Protocol string
}

// Handle identifies one running instance of a service. The handle carries the
// last published lifecycle state (shared atomically between publisher and
// observers) and a one-shot stop signal that the replica's owner observes to
// begin teardown. The engine never destroys a handle; it only triggers the
// stop signal.
type Handle struct {
	Name    string
	Service string
	Ports   []Port

	state atomic.Int32

	metricsMu sync.Mutex
	metrics   map[string]any

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewHandle constructs a handle for a freshly added replica.
func NewHandle(service, name string, ports []Port) *Handle {
	h := &Handle{
		Name:    name,
		Service: service,
		Ports:   ports,
		metrics: make(map[string]any),
		stopped: make(chan struct{}),
	}
	h.state.Store(int32(StateAdded))
	return h
}

// State returns the last published lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// SetState records a newly published lifecycle state. Called by the event
// bus dispatcher in delivery order.
func (h *Handle) SetState(s State) {
	h.state.Store(int32(s))
}

// Stop triggers the one-shot stop signal. The first caller wins, whether it
// is the owner (graceful stop) or the monitor (kill); later calls are no-ops.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopped)
	})
}

// Done is closed once the stop signal has fired.
func (h *Handle) Done() <-chan struct{} {
	return h.stopped
}

// Stopping reports whether the stop signal has fired.
func (h *Handle) Stopping() bool {
	select {
	case <-h.stopped:
		return true
	default:
		return false
	}
}

// SetMetric stores an opaque metric value on the handle. The monitoring
// engine never interprets these.
func (h *Handle) SetMetric(key string, value any) {
	h.metricsMu.Lock()
	h.metrics[key] = value
	h.metricsMu.Unlock()
}

// Metric returns a previously stored metric value.
func (h *Handle) Metric(key string) (any, bool) {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	value, ok := h.metrics[key]
	return value, ok
}
