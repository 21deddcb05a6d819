package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkovacs/hospital/internal/app"
	"github.com/nkovacs/hospital/internal/bus"
	"github.com/nkovacs/hospital/internal/metrics"
	"github.com/nkovacs/hospital/internal/probe"
	"github.com/nkovacs/hospital/internal/replica"
)

// probeState is the monitor's internal view of its replica, distinct from
// the lifecycle state published on the bus.
type probeState int

const (
	stateIdle probeState = iota
	stateRunning
	stateHealthy
	stateSick
	stateTerminated
)

func (s probeState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateHealthy:
		return "healthy"
	case stateSick:
		return "sick"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Publisher puts monitor-authored events on the owning service's bus.
type Publisher interface {
	Publish(bus.Event)
}

// Monitor owns the health-determination state machine for exactly one
// replica. All mutation goes through Update and the polling task; the two
// are reconciled with a generation counter so that a poll cycle whose task
// has been superseded or cancelled can neither publish nor kill.
type Monitor struct {
	logger    zerolog.Logger
	handle    *replica.Handle
	policy    *app.HealthCheckPolicy
	publisher Publisher
	prober    probe.Prober
	metrics   *metrics.Metrics

	mu         sync.Mutex
	state      probeState
	since      time.Time
	generation uint64
	cancel     context.CancelFunc
	disposed   bool

	// policy snapshot, taken when a polling task launches. bootGrace and
	// sicknessGrace are read by evaluate under mu; endpoint and interval are
	// handed to each task by value so a superseding start never races the
	// old task's reads.
	bootGrace     time.Duration
	sicknessGrace time.Duration
}

// New constructs a monitor in the idle state. A nil policy means the replica
// is considered always green.
func New(logger zerolog.Logger, handle *replica.Handle, policy *app.HealthCheckPolicy, publisher Publisher, prober probe.Prober, m *metrics.Metrics) *Monitor {
	return &Monitor{
		logger:    logger.With().Str("service", handle.Service).Str("replica", handle.Name).Logger(),
		handle:    handle,
		policy:    policy,
		publisher: publisher,
		prober:    prober,
		metrics:   m,
		state:     stateIdle,
	}
}

// Update applies one lifecycle event to the state machine. The registry
// serializes calls per replica, so Update never races itself.
func (m *Monitor) Update(state replica.State) {
	switch state {
	case replica.StateStarted:
		m.start()
	case replica.StateStopped:
		m.stop()
	default:
		// Healthy/Sick loop-backs and owner bookkeeping events carry no
		// work for the state machine itself.
	}
}

// start supersedes any previous polling task and either marks the replica
// immediately healthy (no policy) or launches a fresh polling task. A replica
// that was stopped and started again resumes monitoring from scratch; only a
// disposed monitor refuses to restart.
func (m *Monitor) start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return
	}

	m.cancelLocked()
	m.generation++

	if m.policy == nil {
		m.state = stateHealthy
		m.since = time.Now()
		m.publishLocked(replica.StateHealthy)
		return
	}

	m.bootGrace = m.policy.BootGrace
	m.sicknessGrace = m.policy.SicknessGrace

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = stateRunning
	m.since = time.Now()

	m.logger.Debug().Dur("interval", m.policy.Interval).Msg("polling task started")
	go m.poll(ctx, m.generation, m.policy.Interval, m.policy.Endpoint)
}

// stop cancels the active polling task without publishing anything further.
func (m *Monitor) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.cancelLocked()
	m.state = stateTerminated
}

// Dispose cancels any active polling task. Idempotent; safe to call at any
// point in the state machine's lifetime, including concurrently with an
// in-flight probe cycle. It does not wait for the cycle to observe the
// cancellation.
func (m *Monitor) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.cancelLocked()
	m.state = stateTerminated
	m.disposed = true
}

func (m *Monitor) cancelLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// poll sleeps for the probe interval, runs one probe cycle, and repeats until
// cancelled. Cancellation is checked at loop entry; a cycle already probing
// finishes its HTTP call (the call itself carries ctx and aborts promptly),
// and its result is discarded by the generation check in evaluate. interval
// and endpoint arrive by value so the task shares no mutable fields with a
// successor launched by a superseding start.
func (m *Monitor) poll(ctx context.Context, generation uint64, interval time.Duration, endpoint string) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		began := time.Now()
		green := m.prober.Probe(ctx, m.handle, endpoint)
		m.metrics.ObserveProbeDuration(time.Since(began))
		m.metrics.IncProbeCycles(m.handle.Service, green)

		m.evaluate(ctx, generation, green)
		timer.Reset(interval)
	}
}

// evaluate applies the transition table to one probe cycle result.
func (m *Monitor) evaluate(ctx context.Context, generation uint64, green bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A superseded or cancelled cycle must not publish or kill.
	if generation != m.generation || ctx.Err() != nil {
		return
	}

	now := time.Now()
	elapsed := now.Sub(m.since)
	pastBoot := elapsed > m.bootGrace
	pastGrace := elapsed > m.sicknessGrace

	switch {
	case m.state == stateRunning && !green && pastBoot:
		m.killLocked("boot grace exceeded")
	case m.state == stateRunning && green:
		m.transitionLocked(stateHealthy, replica.StateHealthy, now)
	case m.state == stateSick && !green && pastGrace:
		m.killLocked("sickness grace exceeded")
	case m.state == stateSick && green:
		m.transitionLocked(stateHealthy, replica.StateHealthy, now)
	case m.state == stateHealthy && !green:
		m.transitionLocked(stateSick, replica.StateSick, now)
	default:
		// No matching cell means no transition this cycle. Deliberate:
		// a red cycle inside a grace window changes nothing.
	}
}

func (m *Monitor) transitionLocked(next probeState, publish replica.State, now time.Time) {
	previous := m.state
	m.state = next
	m.since = now
	m.logger.Info().
		Str("from", previous.String()).
		Str("to", next.String()).
		Msg("replica transition")
	m.publishLocked(publish)
}

func (m *Monitor) killLocked(reason string) {
	m.generation++
	m.cancelLocked()
	m.state = stateTerminated
	m.logger.Warn().Str("reason", reason).Msg("killing replica")
	m.metrics.IncKills(m.handle.Service)
	m.handle.Stop()
}

func (m *Monitor) publishLocked(state replica.State) {
	m.metrics.IncTransitions(m.handle.Service, state.String())
	m.publisher.Publish(bus.Event{State: state, Replica: m.handle})
}

// stateSnapshot is exposed for tests in this package.
func (m *Monitor) stateSnapshot() probeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
