// Package hospital hosts the monitor registry: it watches every service's
// replica event stream and keeps exactly one health monitor per live replica.
package hospital

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/nkovacs/hospital/internal/app"
	"github.com/nkovacs/hospital/internal/bus"
	"github.com/nkovacs/hospital/internal/healthcheck"
	"github.com/nkovacs/hospital/internal/metrics"
	"github.com/nkovacs/hospital/internal/monitor"
	"github.com/nkovacs/hospital/internal/probe"
	"github.com/nkovacs/hospital/internal/replica"
)

type subscription struct {
	bus   *bus.Bus
	token bus.Token
}

// Registry bridges service event buses to per-replica monitors. Monitors are
// created on Added, fed lifecycle events, and disposed on Removed. The event
// callback path never fails outward: malformed or racing events degrade to
// no-ops and later events correct the state.
type Registry struct {
	logger  zerolog.Logger
	prober  probe.Prober
	metrics *metrics.Metrics
	tracker *healthcheck.Tracker

	monitors cmap.ConcurrentMap[string, *monitor.Monitor]

	mu            sync.Mutex
	subscriptions map[string]subscription
}

// New constructs a registry. metrics and tracker may be nil.
func New(logger zerolog.Logger, prober probe.Prober, m *metrics.Metrics, tracker *healthcheck.Tracker) *Registry {
	return &Registry{
		logger:        logger,
		prober:        prober,
		metrics:       m,
		tracker:       tracker,
		monitors:      cmap.New[*monitor.Monitor](),
		subscriptions: make(map[string]subscription),
	}
}

// Attach subscribes to the service's event bus. Re-attaching the same
// service replaces the prior subscription instead of leaking it.
func (r *Registry) Attach(svc *app.Service) {
	r.mu.Lock()
	if prev, ok := r.subscriptions[svc.Name]; ok {
		prev.bus.Unsubscribe(prev.token)
	}
	b := svc.Bus()
	token := b.Subscribe(func(e bus.Event) {
		r.OnReplicaEvent(svc, e)
	})
	r.subscriptions[svc.Name] = subscription{bus: b, token: token}
	r.mu.Unlock()

	r.logger.Debug().Str("service", svc.Name).Msg("attached to service bus")
}

// Detach drops the subscription installed by Attach. Monitors already
// created are left to event-driven teardown, so a late in-flight event after
// Detach cannot crash anything.
func (r *Registry) Detach(svc *app.Service) {
	r.mu.Lock()
	if prev, ok := r.subscriptions[svc.Name]; ok {
		prev.bus.Unsubscribe(prev.token)
		delete(r.subscriptions, svc.Name)
	}
	r.mu.Unlock()

	r.logger.Debug().Str("service", svc.Name).Msg("detached from service bus")
}

// OnReplicaEvent routes one bus event to the replica's monitor. The bus
// serializes delivery per replica name, so a monitor's Update is never
// invoked concurrently with itself; events for distinct replicas arrive in
// parallel.
func (r *Registry) OnReplicaEvent(svc *app.Service, e bus.Event) {
	if e.Replica == nil {
		return
	}
	name := e.Replica.Name

	switch e.State {
	case replica.StateAdded:
		if prev, ok := r.monitors.Get(name); ok {
			// Duplicate Added for a live name is a publisher bug, but the
			// registry degrades to replacing the stale monitor.
			r.logger.Warn().Str("replica", name).Msg("duplicate added event; replacing monitor")
			prev.Dispose()
		}
		mon := monitor.New(r.logger, e.Replica, svc.Policy, svc.Bus(), r.prober, r.metrics)
		r.monitors.Set(name, mon)
		r.logger.Info().Str("service", svc.Name).Str("replica", name).Msg("monitor created")
	case replica.StateRemoved:
		if mon, ok := r.monitors.Get(name); ok {
			r.monitors.Remove(name)
			mon.Dispose()
			r.logger.Info().Str("service", svc.Name).Str("replica", name).Msg("monitor disposed")
		}
	default:
		if mon, ok := r.monitors.Get(name); ok {
			mon.Update(e.State)
		} else {
			// Tolerated race: Added may not have been processed yet, or the
			// registry was reset. The transition is dropped.
			r.metrics.IncEventsDropped(svc.Name)
			r.logger.Debug().
				Str("service", svc.Name).
				Str("replica", name).
				Str("state", e.State.String()).
				Msg("event for unknown replica dropped")
		}
	}

	r.metrics.SetMonitorsActive(r.monitors.Count())
	r.tracker.RecordEvent(r.monitors.Count())
}

// Start attaches to every service of the application, then disposes any
// monitor entries left over from a prior run. The reset guards re-entrant
// starts.
func (r *Registry) Start(application *app.Application) {
	for _, svc := range application.Services {
		r.Attach(svc)
	}
	for _, name := range r.monitors.Keys() {
		if mon, ok := r.monitors.Get(name); ok {
			mon.Dispose()
		}
		r.monitors.Remove(name)
	}
	r.metrics.SetMonitorsActive(0)
	r.tracker.MarkStarted()

	r.logger.Info().
		Str("application", application.Name).
		Int("services", len(application.Services)).
		Msg("registry started")
}

// Stop detaches from every service of the application. Running replicas are
// untouched; tearing them down is the owner's responsibility.
func (r *Registry) Stop(application *app.Application) {
	for _, svc := range application.Services {
		r.Detach(svc)
	}
	r.logger.Info().Str("application", application.Name).Msg("registry stopped")
}

// MonitorCount reports how many monitors are currently registered.
func (r *Registry) MonitorCount() int {
	return r.monitors.Count()
}
