// Package runtime provides the in-memory event fan-out bus. It is a
// best-effort broadcast registry keyed by group channel: no persistence,
// no replay buffer, no delivery guarantee. A subscriber that attaches
// after a publish never observes that event.
package runtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"group-chat/domain/event"
)

// Subscription is one live viewer's attachment to a group channel.
// Events arrive on a bounded queue; when the queue is full the publisher
// drops the event for this subscriber instead of blocking.
type Subscription struct {
	SubscriberID string
	Group        uuid.UUID
	ch           chan event.DomainEvent
}

// Events is the subscriber's receive side. It is closed on Unsubscribe.
func (s *Subscription) Events() <-chan event.DomainEvent {
	return s.ch
}

// Bus fans domain events out to the subscribers of a group channel.
// Safe for concurrent use by multiple goroutines.
type Bus struct {
	mu        sync.Mutex
	log       *slog.Logger
	queueSize int
	channels  map[uuid.UUID]map[string]*Subscription
}

func NewBus(log *slog.Logger, queueSize int) *Bus {
	return &Bus{
		log:       log,
		queueSize: queueSize,
		channels:  make(map[uuid.UUID]map[string]*Subscription),
	}
}

// Subscribe attaches a subscriber to a group channel. Re-subscribing
// with the same id replaces the previous attachment and closes its
// queue.
func (b *Bus) Subscribe(groupID uuid.UUID, subscriberID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.channels[groupID]
	if !ok {
		subs = make(map[string]*Subscription)
		b.channels[groupID] = subs
	}
	if prev, ok := subs[subscriberID]; ok {
		close(prev.ch)
	}
	sub := &Subscription{
		SubscriberID: subscriberID,
		Group:        groupID,
		ch:           make(chan event.DomainEvent, b.queueSize),
	}
	subs[subscriberID] = sub
	return sub
}

// Unsubscribe detaches a subscriber and closes its queue. Empty channel
// entries are removed so idle groups do not accumulate in the map.
func (b *Bus) Unsubscribe(groupID uuid.UUID, subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.channels[groupID]
	if !ok {
		return
	}
	if sub, ok := subs[subscriberID]; ok {
		close(sub.ch)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(b.channels, groupID)
	}
}

// Publish broadcasts the event to every subscriber currently attached to
// its group channel. The send never blocks: a subscriber whose queue is
// full misses the event. Publishes are serialized under the bus lock, so
// each subscriber of a channel observes events in publish order.
func (b *Bus) Publish(e event.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.channels[e.GroupID()]
	if !ok {
		return
	}
	for _, sub := range subs {
		select {
		case sub.ch <- e:
		default:
			b.log.Debug("subscriber queue full, dropping event",
				"group", e.GroupID(),
				"subscriber", sub.SubscriberID,
				"event", string(e.Type()))
		}
	}
}
