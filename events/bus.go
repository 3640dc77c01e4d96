// Package events implements the typed publish/subscribe bus from spec §4.4:
// listeners register per event name, a failing listener is isolated and
// logged rather than propagated, and emit fans out to every currently
// registered listener in registration order.
//
// The per-listener isolation is a direct generalization of the teacher's
// internal/realtime.DefaultEventBus (panic recovery keeps one bad listener
// from breaking a broadcast), simplified from its buffered-channel/
// background-worker delivery down to synchronous direct calls, since
// listeners here are in-process callbacks rather than WebSocket subscribers
// that need a queue between them and a slow network write.
package events

import (
	"log/slog"
	"sync"
)

// Name is one of the literal event names from spec §6.
type Name string

const (
	DocumentCreated  Name = "document:created"
	DocumentUpdated  Name = "document:updated"
	DocumentDeleted  Name = "document:deleted"
	SyncStarted      Name = "sync:started"
	SyncCompleted    Name = "sync:completed"
	SyncFailed       Name = "sync:failed"
	ConflictDetected Name = "conflict:detected"
	ConflictResolved Name = "conflict:resolved"
	ConnectionOnline Name = "connection:online"
	ConnectionOffline Name = "connection:offline"
	StateChanged     Name = "state:changed"
)

// Listener receives an event payload. The payload's concrete type depends
// on Name (see the orchestrator package's event payload types).
type Listener func(payload any)

// Unsubscribe removes the listener it was returned for. Calling it more
// than once is a harmless no-op.
type Unsubscribe func()

// Bus is a typed pub/sub with isolated listener failures.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Name][]*subscription
	seq       uint64
	logger    *slog.Logger
}

type subscription struct {
	id       uint64
	listener Listener
}

// New creates an empty Bus. logger may be nil, in which case slog.Default()
// is used for the diagnostic channel listener panics/failures are logged to.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[Name][]*subscription),
		logger:    logger.With("component", "event_bus"),
	}
}

// On registers listener for event and returns an idempotent unsubscribe
// handle.
func (b *Bus) On(event Name, listener Listener) Unsubscribe {
	b.mu.Lock()
	b.seq++
	sub := &subscription{id: b.seq, listener: listener}
	b.listeners[event] = append(b.listeners[event], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.removeSub(event, sub.id) })
	}
}

// Off removes a specific listener for event. Unlike the handle returned by
// On, this requires the bus to find the listener by pointer equality and is
// provided for parity with spec §4.4's named operation; prefer the
// Unsubscribe handle returned by On where possible.
func (b *Bus) Off(event Name, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[event]
	kept := subs[:0:0]
	removed := false
	for _, sub := range subs {
		if !removed && samePointer(sub.listener, listener) {
			removed = true
			continue
		}
		kept = append(kept, sub)
	}
	b.setOrClear(event, kept)
}

// samePointer compares listener function values via reflection since Go
// disallows comparing func values directly; two listeners are considered
// the same only when they reference the identical underlying function.
func samePointer(a, b Listener) bool {
	return funcPtr(a) == funcPtr(b)
}

// RemoveAllListeners clears listeners for a single event, or for every
// event when event is "".
func (b *Bus) RemoveAllListeners(event Name) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if event == "" {
		b.listeners = make(map[Name][]*subscription)
		return
	}
	delete(b.listeners, event)
}

func (b *Bus) removeSub(event Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[event]
	kept := subs[:0:0]
	for _, sub := range subs {
		if sub.id != id {
			kept = append(kept, sub)
		}
	}
	b.setOrClear(event, kept)
}

func (b *Bus) setOrClear(event Name, subs []*subscription) {
	if len(subs) == 0 {
		delete(b.listeners, event)
		return
	}
	b.listeners[event] = subs
}

// Emit invokes every currently-registered listener for event, in
// registration order, with payload. A listener that panics is recovered,
// logged to the diagnostic channel, and does not prevent later listeners
// from running; Emit itself never panics or returns an error.
func (b *Bus) Emit(event Name, payload any) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.listeners[event]))
	copy(subs, b.listeners[event])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.invoke(event, sub.listener, payload)
	}
}

func (b *Bus) invoke(event Name, listener Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked, continuing broadcast",
				"event", event, "panic", r)
		}
	}()
	listener(payload)
}
