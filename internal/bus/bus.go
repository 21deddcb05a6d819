package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nkovacs/hospital/internal/replica"
)

// Event pairs a lifecycle state with the replica it concerns.
type Event struct {
	State   replica.State
	Replica *replica.Handle
}

// Token identifies one subscription on a bus.
type Token string

// Handler consumes published events.
type Handler func(Event)

type subscriber struct {
	token   Token
	handler Handler
}

// Bus is a per-service, multi-subscriber replica event stream. Events for
// the same replica name are delivered to all subscribers in publish order;
// events for different replicas dispatch in parallel. Delivery is
// asynchronous: Publish never invokes handlers on the caller's goroutine.
type Bus struct {
	mu          sync.Mutex
	subscribers []subscriber
	pending     map[string][]Event
	closed      bool
}

// New constructs an empty bus.
func New() *Bus {
	return &Bus{
		pending: make(map[string][]Event),
	}
}

// Subscribe registers a handler for every subsequently published event and
// returns the token needed to unsubscribe it.
func (b *Bus) Subscribe(h Handler) Token {
	token := Token(uuid.NewString())
	b.mu.Lock()
	b.subscribers = append(b.subscribers, subscriber{token: token, handler: h})
	b.mu.Unlock()
	return token
}

// Unsubscribe removes the subscription identified by token. Unknown tokens
// are ignored.
func (b *Bus) Unsubscribe(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub.token == token {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish enqueues an event for delivery. A drain goroutine exists per
// replica name while that replica has pending events, which is what keeps
// same-replica delivery sequential without serializing distinct replicas.
func (b *Bus) Publish(e Event) {
	if e.Replica == nil {
		return
	}
	key := e.Replica.Name

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	queue, draining := b.pending[key]
	b.pending[key] = append(queue, e)
	b.mu.Unlock()

	if !draining {
		go b.drain(key)
	}
}

// Close stops accepting publishes. Events already queued still deliver.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *Bus) drain(key string) {
	for {
		b.mu.Lock()
		queue := b.pending[key]
		if len(queue) == 0 {
			delete(b.pending, key)
			b.mu.Unlock()
			return
		}
		event := queue[0]
		b.pending[key] = queue[1:]
		subs := make([]subscriber, len(b.subscribers))
		copy(subs, b.subscribers)
		b.mu.Unlock()

		// The published state becomes visible on the handle before any
		// subscriber observes the event, in delivery order.
		event.Replica.SetState(event.State)
		for _, sub := range subs {
			sub.handler(event)
		}
	}
}
