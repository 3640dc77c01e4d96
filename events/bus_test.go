package events_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-sync/docsync/events"
)

func TestEmit_DeliversToAllListeners(t *testing.T) {
	bus := events.New(nil)
	var got1, got2 any
	bus.On(events.DocumentCreated, func(p any) { got1 = p })
	bus.On(events.DocumentCreated, func(p any) { got2 = p })

	bus.Emit(events.DocumentCreated, "payload")

	assert.Equal(t, "payload", got1)
	assert.Equal(t, "payload", got2)
}

func TestEmit_OnlyReachesListenersForThatEvent(t *testing.T) {
	bus := events.New(nil)
	called := false
	bus.On(events.DocumentDeleted, func(p any) { called = true })

	bus.Emit(events.DocumentCreated, "payload")

	assert.False(t, called)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	bus := events.New(nil)
	calls := 0
	unsubscribe := bus.On(events.SyncStarted, func(p any) { calls++ })

	bus.Emit(events.SyncStarted, nil)
	unsubscribe()
	bus.Emit(events.SyncStarted, nil)

	assert.Equal(t, 1, calls)
}

func TestUnsubscribe_IsIdempotent(t *testing.T) {
	bus := events.New(nil)
	unsubscribe := bus.On(events.SyncStarted, func(p any) {})
	unsubscribe()
	assert.NotPanics(t, func() { unsubscribe() })
}

func TestEmit_IsolatesPanickingListener(t *testing.T) {
	bus := events.New(nil)
	secondCalled := false

	bus.On(events.SyncFailed, func(p any) { panic("boom") })
	bus.On(events.SyncFailed, func(p any) { secondCalled = true })

	assert.NotPanics(t, func() { bus.Emit(events.SyncFailed, nil) })
	assert.True(t, secondCalled)
}

func TestOff_RemovesOneMatchingListenerByIdentity(t *testing.T) {
	bus := events.New(nil)
	calls := 0
	listener := func(p any) { calls++ }

	bus.On(events.StateChanged, listener)
	bus.Off(events.StateChanged, listener)
	bus.Emit(events.StateChanged, nil)

	assert.Equal(t, 0, calls)
}

func TestRemoveAllListeners_ClearsSingleEvent(t *testing.T) {
	bus := events.New(nil)
	calls := 0
	bus.On(events.StateChanged, func(p any) { calls++ })
	bus.On(events.SyncStarted, func(p any) { calls++ })

	bus.RemoveAllListeners(events.StateChanged)
	bus.Emit(events.StateChanged, nil)
	bus.Emit(events.SyncStarted, nil)

	assert.Equal(t, 1, calls)
}

func TestRemoveAllListeners_EmptyNameClearsEverything(t *testing.T) {
	bus := events.New(nil)
	calls := 0
	bus.On(events.StateChanged, func(p any) { calls++ })
	bus.On(events.SyncStarted, func(p any) { calls++ })

	bus.RemoveAllListeners("")
	bus.Emit(events.StateChanged, nil)
	bus.Emit(events.SyncStarted, nil)

	assert.Equal(t, 0, calls)
}

func TestEmit_ConcurrentSubscribeAndEmitDoesNotRace(t *testing.T) {
	bus := events.New(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubscribe := bus.On(events.SyncStarted, func(p any) {})
			unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.Emit(events.SyncStarted, nil)
		}()
	}
	wg.Wait()
}
