package orchestrator

import (
	"context"
	"time"

	"github.com/kestrel-sync/docsync/events"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// onlineProbeTick is invoked every OnlineProbeInterval (spec §4.5.7). A
// probe failure is treated as offline without emission if already offline.
func (o *Orchestrator[T]) onlineProbeTick() {
	o.probeOnline(context.Background())
}

func (o *Orchestrator[T]) probeOnline(ctx context.Context) {
	online, err := o.transport.IsOnline(ctx)
	if err != nil {
		online = false
	}

	was := o.isOnline.Swap(online)
	if was == online {
		return
	}

	if online {
		o.bus.Emit(events.ConnectionOnline, nil)
	} else {
		o.bus.Emit(events.ConnectionOffline, nil)
	}
	o.emitStateChanged()

	if online && o.started.Load() {
		o.scheduleDelayed(o.cfg.PostOnlineSyncDelay, func() {
			o.Sync(context.Background())
		})
	}
}

// scheduleDelayed fires fn once after d, unless the orchestrator is
// stopped first.
func (o *Orchestrator[T]) scheduleDelayed(d time.Duration, fn func()) {
	stopCh := o.stopCh
	time.AfterFunc(d, func() {
		select {
		case <-stopCh:
			return
		default:
			fn()
		}
	})
}

// scheduleDebouncedPush coalesces push triggers within DebounceDelay of one
// another: each call cancels and reschedules the timer, so only the final
// invocation in a quiet window fires (spec §4.5.9). A push that fails from
// a debounced trigger never resurfaces as an exception — sync:failed is the
// only report, same as every other push() failure path.
func (o *Orchestrator[T]) scheduleDebouncedPush() {
	o.debounceMu.Lock()
	defer o.debounceMu.Unlock()

	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
	}
	o.debounceTimer = time.AfterFunc(o.cfg.DebounceDelay, func() {
		o.Push(context.Background())
	})
}

// handleRemoteChange is the real-time intake handler subscribed during
// Start (spec §4.5.8). While Started, it runs the incoming batch through
// applyRemoteChanges and emits state:changed. It never drives push.
func (o *Orchestrator[T]) handleRemoteChange(ctx context.Context, changes []syncmodel.ChangeRecord[T]) {
	if !o.started.Load() {
		return
	}
	o.applyRemoteChanges(ctx, changes)
	o.emitStateChanged()
}
