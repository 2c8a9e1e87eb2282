// internal/browser/events.go
package browser

import (
	"sync"

	"github.com/google/uuid"
)

// Event is anything the page publishes to subscribers.
type Event interface {
	isEvent()
}

// ResponseEvent is published for every response header received.
type ResponseEvent struct {
	URL          string
	Status       int
	StatusText   string
	ResourceType string
	// MainDocument is set for the top-level document response.
	MainDocument bool
}

// RequestFailedEvent is published when a request never got a response.
type RequestFailedEvent struct {
	URL          string
	ErrorText    string
	ResourceType string
	Canceled     bool
	// CORS is set when the failure was a cross-origin policy block.
	CORS bool
}

// ConsoleEvent is one console API call or browser log entry.
type ConsoleEvent struct {
	Level  string
	Text   string
	Source string
}

// ExceptionEvent is an uncaught page exception.
type ExceptionEvent struct {
	Text string
}

func (ResponseEvent) isEvent()      {}
func (RequestFailedEvent) isEvent() {}
func (ConsoleEvent) isEvent()       {}
func (ExceptionEvent) isEvent()     {}

// Dispatcher fans published events out to the current subscribers.
// Delivery happens on the publisher's goroutine while holding a read lock,
// so once Subscription.Close returns no further event reaches its handler.
// Handlers must not subscribe or close from inside a delivery.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[string]func(Event)
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[string]func(Event))}
}

// Subscription is a handle on one registered handler.
type Subscription struct {
	id   string
	d    *Dispatcher
	once sync.Once
}

// Subscribe registers fn until the returned subscription is closed.
func (d *Dispatcher) Subscribe(fn func(Event)) *Subscription {
	sub := &Subscription{id: uuid.NewString(), d: d}
	d.mu.Lock()
	d.subs[sub.id] = fn
	d.mu.Unlock()
	return sub
}

// Publish delivers ev to every subscriber.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, fn := range d.subs {
		fn(ev)
	}
}

// Len reports the number of live subscriptions.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Close removes the handler. Safe to call more than once and on a nil
// subscription.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.d.mu.Lock()
		delete(s.d.subs, s.id)
		s.d.mu.Unlock()
	})
}
