package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkovacs/hospital/internal/app"
	"github.com/nkovacs/hospital/internal/bus"
	"github.com/nkovacs/hospital/internal/replica"
)

const defaultNotifyTimeout = 30 * time.Second

// Bridge subscribes to service event buses and forwards monitor-authored
// Healthy/Sick transitions to a Notifier. Delivery happens off the dispatch
// goroutine so a slow webhook can never stall event ordering.
type Bridge struct {
	logger   zerolog.Logger
	notifier Notifier
	timeout  time.Duration

	mu     sync.Mutex
	tokens map[string]bridgeSubscription
	last   map[string]replica.State
}

type bridgeSubscription struct {
	bus   *bus.Bus
	token bus.Token
}

// NewBridge constructs a bridge around the given notifier.
func NewBridge(logger zerolog.Logger, notifier Notifier) *Bridge {
	return &Bridge{
		logger:   logger,
		notifier: notifier,
		timeout:  defaultNotifyTimeout,
		tokens:   make(map[string]bridgeSubscription),
		last:     make(map[string]replica.State),
	}
}

// Attach subscribes to the service's bus. Re-attaching replaces the prior
// subscription.
func (b *Bridge) Attach(svc *app.Service) {
	b.mu.Lock()
	if prev, ok := b.tokens[svc.Name]; ok {
		prev.bus.Unsubscribe(prev.token)
	}
	eventBus := svc.Bus()
	token := eventBus.Subscribe(func(e bus.Event) {
		b.onEvent(svc.Name, e)
	})
	b.tokens[svc.Name] = bridgeSubscription{bus: eventBus, token: token}
	b.mu.Unlock()
}

// Detach drops the service's subscription.
func (b *Bridge) Detach(svc *app.Service) {
	b.mu.Lock()
	if prev, ok := b.tokens[svc.Name]; ok {
		prev.bus.Unsubscribe(prev.token)
		delete(b.tokens, svc.Name)
	}
	b.mu.Unlock()
}

func (b *Bridge) onEvent(service string, e bus.Event) {
	if e.Replica == nil {
		return
	}
	name := e.Replica.Name

	b.mu.Lock()
	from, seen := b.last[name]
	if !seen {
		from = replica.StateAdded
	}
	if e.State == replica.StateRemoved {
		delete(b.last, name)
	} else {
		b.last[name] = e.State
	}
	b.mu.Unlock()

	if e.State != replica.StateHealthy && e.State != replica.StateSick {
		return
	}

	change := Transition{
		Replica: name,
		From:    from,
		To:      e.State,
		At:      time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.notifier.Notify(ctx, service, []Transition{change}); err != nil {
			b.logger.Warn().
				Err(err).
				Str("service", service).
				Str("replica", name).
				Msg("transition notification failed")
		}
	}()
}
