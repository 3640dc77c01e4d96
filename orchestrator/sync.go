package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/kestrel-sync/docsync/changetracker"
	"github.com/kestrel-sync/docsync/events"
	"github.com/kestrel-sync/docsync/resync"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// Sync runs pull() then push() in sequence. Any failure inside either half
// is already swallowed by that half (each emits its own sync:failed), so
// Sync itself never returns an error — it is called from timers and from
// Start, neither of which has anyone to hand an error to (spec §4.5.4).
func (o *Orchestrator[T]) Sync(ctx context.Context) {
	o.Pull(ctx)
	o.Push(ctx)
}

// Pull fetches remote changes since the last pull and applies them. It is a
// no-op while syncing or offline (spec §4.5.4).
func (o *Orchestrator[T]) Pull(ctx context.Context) {
	if !o.isOnline.Load() {
		return
	}
	if !o.isSyncing.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		o.isSyncing.Store(false)
		o.emitStateChanged()
	}()

	start := time.Now()
	o.bus.Emit(events.SyncStarted, SyncStartedPayload{Type: HalfPull})

	sinceTs := syncmodel.Timestamp(o.pullTs.Load())
	policy := resync.Policy{
		MaxRetries: o.cfg.RetryAttempts - 1,
		BaseDelay:  o.cfg.RetryDelay,
		Logger:     o.logger,
		Metrics:    o.retry,
		Operation:  "pull",
	}

	var result pullOutcome[T]
	err := resync.WithRetry(ctx, policy, func() error {
		res, err := o.transport.Pull(ctx, sinceTs)
		if err != nil {
			return err
		}
		if !res.Success {
			return errors.New(firstNonEmpty(res.Error, "pull reported failure"))
		}
		result = pullOutcome[T]{changes: res.Changes, timestamp: res.Timestamp}
		return nil
	})

	o.metrics.RecordSync("pull", outcomeLabel(err), time.Since(start).Seconds())

	if err != nil {
		o.bus.Emit(events.SyncFailed, SyncFailedPayload{Type: HalfPull, Error: err.Error()})
		return
	}

	o.applyRemoteChanges(ctx, result.changes)

	o.pullTs.Store(int64(result.timestamp))
	if setErr := o.store.SetLastSyncTimestamp(ctx, result.timestamp); setErr != nil {
		o.logger.Warn("failed to persist last pull timestamp", "error", setErr)
	}
	o.bus.Emit(events.SyncCompleted, SyncCompletedPayload{Type: HalfPull, ChangeCount: len(result.changes)})
}

type pullOutcome[T any] struct {
	changes   []syncmodel.ChangeRecord[T]
	timestamp syncmodel.Timestamp
}

// Push snapshots up to BatchSize pending changes and delivers them as one
// transport call. It is a no-op while syncing, offline, or with nothing
// pending (spec §4.5.4).
func (o *Orchestrator[T]) Push(ctx context.Context) {
	if !o.isOnline.Load() {
		return
	}
	if !o.tracker.HasPendingChanges() {
		return
	}
	if !o.isSyncing.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		o.isSyncing.Store(false)
		o.emitStateChanged()
	}()

	start := time.Now()
	o.bus.Emit(events.SyncStarted, SyncStartedPayload{Type: HalfPush})

	pending := o.tracker.GetPendingChanges()
	if batchSize := o.effectiveBatchSize(); len(pending) > batchSize {
		pending = pending[:batchSize]
	}
	batch := syncmodel.ChangeBatch[T]{
		Changes:       pending,
		LastSyncTs:    syncmodel.Timestamp(o.pushTs.Load()),
		HasLastSyncTs: true,
	}

	policy := resync.Policy{
		MaxRetries: o.cfg.RetryAttempts - 1,
		BaseDelay:  o.cfg.RetryDelay,
		Logger:     o.logger,
		Metrics:    o.retry,
		Operation:  "push",
	}

	var result pushOutcome[T]
	err := resync.WithRetry(ctx, policy, func() error {
		res, err := o.transport.Push(ctx, batch)
		if err != nil {
			return err
		}
		if !res.Success {
			return errors.New(firstNonEmpty(res.Error, "push reported failure"))
		}
		result = pushOutcome[T]{conflicts: res.Conflicts, timestamp: res.Timestamp, hasTimestamp: res.HasTimestamp}
		return nil
	})

	o.metrics.RecordSync("push", outcomeLabel(err), time.Since(start).Seconds())

	if err != nil {
		o.bus.Emit(events.SyncFailed, SyncFailedPayload{Type: HalfPush, Error: err.Error()})
		return
	}

	for _, conflict := range result.conflicts {
		if err := o.resolveConflict(ctx, conflict); err != nil {
			o.bus.Emit(events.SyncFailed, SyncFailedPayload{
				Type:       HalfPush,
				Error:      err.Error(),
				DocumentID: conflict.DocumentID,
				HasDocID:   true,
			})
		}
	}

	pushedKeys := make(map[changetracker.PushKey]struct{}, len(pending))
	for _, rec := range pending {
		pushedKeys[changetracker.KeyOf(rec)] = struct{}{}
	}
	o.tracker.ClearPushed(pushedKeys)

	if result.hasTimestamp {
		o.pushTs.Store(int64(result.timestamp))
		if setErr := o.store.SetLastSyncTimestamp(ctx, result.timestamp); setErr != nil {
			o.logger.Warn("failed to persist last push timestamp", "error", setErr)
		}
	}

	o.bus.Emit(events.SyncCompleted, SyncCompletedPayload{Type: HalfPush, ChangeCount: len(pending)})
}

type pushOutcome[T any] struct {
	conflicts    []syncmodel.ConflictInfo[T]
	timestamp    syncmodel.Timestamp
	hasTimestamp bool
}

func firstNonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func outcomeLabel(err error) string {
	if err == nil {
		return "completed"
	}
	return "failed"
}
