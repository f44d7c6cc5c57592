// Package events pushes live events to connected subscribers, scoped per
// ticket and per user. Delivery is best effort: a subscriber whose buffer is
// full misses the event and is expected to catch up from the persisted feeds.
package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/observability"
)

// Publisher is what the rest of the engine needs from the broadcaster.
type Publisher interface {
	Publish(event Event) int
}

// Subscriber is one connected session.
type Subscriber struct {
	ID     string
	UserID string

	events chan Event
	scopes map[Scope]struct{}
	closed bool
}

// Events delivers pushed events. The channel is closed on Disconnect.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Broadcaster fans events out to subscribers. Safe for concurrent use.
type Broadcaster struct {
	mu      sync.RWMutex
	scopes  map[Scope]map[*Subscriber]struct{}
	buffer  int
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewBroadcaster(buffer int, logger *zap.Logger, metrics *observability.Metrics) *Broadcaster {
	if buffer <= 0 {
		buffer = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		scopes:  make(map[Scope]map[*Subscriber]struct{}),
		buffer:  buffer,
		logger:  logger,
		metrics: metrics,
	}
}

// Connect registers a session for userID and joins its personal scope.
func (b *Broadcaster) Connect(userID string) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		UserID: userID,
		events: make(chan Event, b.buffer),
		scopes: make(map[Scope]struct{}),
	}
	b.mu.Lock()
	b.joinLocked(sub, UserScope(userID))
	b.mu.Unlock()
	b.metrics.SubscriberConnected(1)
	return sub
}

// Join adds sub to scope. Joining twice is harmless.
func (b *Broadcaster) Join(sub *Subscriber, scope Scope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	b.joinLocked(sub, scope)
}

func (b *Broadcaster) joinLocked(sub *Subscriber, scope Scope) {
	members, ok := b.scopes[scope]
	if !ok {
		members = make(map[*Subscriber]struct{})
		b.scopes[scope] = members
	}
	members[sub] = struct{}{}
	sub.scopes[scope] = struct{}{}
}

// Leave removes sub from scope.
func (b *Broadcaster) Leave(sub *Subscriber, scope Scope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(sub, scope)
}

func (b *Broadcaster) leaveLocked(sub *Subscriber, scope Scope) {
	if members, ok := b.scopes[scope]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(b.scopes, scope)
		}
	}
	delete(sub.scopes, scope)
}

// Disconnect leaves every scope and closes the event channel.
func (b *Broadcaster) Disconnect(sub *Subscriber) {
	b.mu.Lock()
	if sub.closed {
		b.mu.Unlock()
		return
	}
	for scope := range sub.scopes {
		b.leaveLocked(sub, scope)
	}
	sub.closed = true
	close(sub.events)
	b.mu.Unlock()
	b.metrics.SubscriberConnected(-1)
}

// Publish delivers event to every subscriber of its scope without blocking and
// returns how many received it.
func (b *Broadcaster) Publish(event Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.scopes[event.Scope] {
		select {
		case sub.events <- event:
			delivered++
		default:
			b.metrics.RecordBroadcastDrop()
			b.logger.Debug("live event dropped",
				zap.String("event", event.Name),
				zap.String("scope", string(event.Scope)),
				zap.String("subscriber", sub.ID))
		}
	}
	return delivered
}

// Subscribers counts the sessions currently in scope.
func (b *Broadcaster) Subscribers(scope Scope) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.scopes[scope])
}
