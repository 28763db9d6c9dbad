// Package events fans room activity out to views.
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/models"
)

// Kind classifies a published room event.
type Kind string

const (
	KindTimeline   Kind = "timeline"
	KindSendStatus Kind = "send_status"
	KindReceipt    Kind = "receipt"
	KindTyping     Kind = "typing"
	KindMembership Kind = "membership"
	KindSync       Kind = "sync"
)

// RoomEvent is one notification from the session layer. RoomID is empty
// for client-wide notifications such as sync state changes.
type RoomEvent struct {
	Kind   Kind
	RoomID id.RoomID
	Event  *models.Event
	// ToStart marks events inserted at the start of the timeline (history).
	ToStart   bool
	SyncState models.SyncState
}

// EventHandler is a callback function invoked when an event matches a subscription.
type EventHandler func(event *RoomEvent)

// Filter defines criteria for matching events.
type Filter struct {
	// Kinds filters by kind (nil = all kinds).
	Kinds []Kind

	// RoomID filters to a single room. Client-wide events always match.
	RoomID id.RoomID
}

// Matches returns true if the event matches the filter criteria.
func (f *Filter) Matches(event *RoomEvent) bool {
	if event == nil {
		return false
	}

	if len(f.Kinds) > 0 {
		matched := false
		for _, k := range f.Kinds {
			if event.Kind == k {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.RoomID != "" && event.RoomID != "" && event.RoomID != f.RoomID {
		return false
	}

	return true
}

type subscription struct {
	id      string
	filter  Filter
	handler EventHandler
}

// Publisher defines the interface for event publishing and subscription.
type Publisher interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event *RoomEvent)

	// Subscribe registers a handler to receive events matching the filter.
	Subscribe(id string, filter Filter, handler EventHandler) error

	// Unsubscribe removes a subscription by ID.
	Unsubscribe(id string) error

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// InMemoryPublisher implements Publisher using in-process pub/sub.
type InMemoryPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
}

// NewInMemoryPublisher creates a new in-memory event publisher.
func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{
		subscriptions: make(map[string]*subscription),
	}
}

// Publish sends an event to all matching subscribers.
func (p *InMemoryPublisher) Publish(_ context.Context, event *RoomEvent) {
	if event == nil {
		return
	}

	p.mu.RLock()
	var handlers []EventHandler
	for _, sub := range p.subscriptions {
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	p.mu.RUnlock()

	// Invoke handlers outside the lock to avoid deadlocks
	for _, handler := range handlers {
		handler(event)
	}
}

// Subscribe registers a handler to receive events matching the filter.
func (p *InMemoryPublisher) Subscribe(id string, filter Filter, handler EventHandler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}

	p.subscriptions[id] = &subscription{
		id:      id,
		filter:  filter,
		handler: handler,
	}
	return nil
}

// Unsubscribe removes a subscription by ID.
func (p *InMemoryPublisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}

	delete(p.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}

// Close removes all subscriptions.
func (p *InMemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = make(map[string]*subscription)
}

// Subscription delivers matching events on a channel, in publish order,
// until closed. Events queue without bound while the reader is busy, so a
// burst never loses events.
type Subscription struct {
	id     string
	pub    *InMemoryPublisher
	out    chan RoomEvent
	notify chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	queue  []RoomEvent
	closed bool
}

// SubscribeChan registers a channel subscription backed by an unbounded queue.
func (p *InMemoryPublisher) SubscribeChan(filter Filter) (*Subscription, error) {
	s := &Subscription{
		id:     uuid.NewString(),
		pub:    p,
		out:    make(chan RoomEvent),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	err := p.Subscribe(s.id, filter, s.enqueue)
	if err != nil {
		return nil, err
	}
	go s.pump()
	return s, nil
}

func (s *Subscription) enqueue(event *RoomEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, *event)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump moves queued events to the delivery channel one at a time.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = RoomEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription) C() <-chan RoomEvent { return s.out }

// ID returns the subscription ID.
func (s *Subscription) ID() string { return s.id }

// Pending is the number of events queued but not yet received.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close releases the subscription and discards undelivered events. It is
// safe to call more than once.
func (s *Subscription) Close() {
	_ = s.pub.Unsubscribe(s.id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
}

// Errors for publisher operations.
var (
	ErrInvalidSubscriptionID = &PublisherError{Message: "subscription ID is required"}
	ErrNilHandler            = &PublisherError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &PublisherError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &PublisherError{Message: "subscription not found"}
)

// PublisherError represents an error from publisher operations.
type PublisherError struct {
	Message string
}

func (e *PublisherError) Error() string {
	return e.Message
}
