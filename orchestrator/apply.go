package orchestrator

import (
	"context"

	"github.com/kestrel-sync/docsync/events"
	"github.com/kestrel-sync/docsync/resolver"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// applyRemoteChanges applies each change independently (spec §4.5.5): one
// change failing to apply never stops the rest, it only annotates a
// sync:failed emission with the offending document id.
func (o *Orchestrator[T]) applyRemoteChanges(ctx context.Context, changes []syncmodel.ChangeRecord[T]) {
	for _, change := range changes {
		if err := o.applyOne(ctx, change); err != nil {
			o.bus.Emit(events.SyncFailed, SyncFailedPayload{
				Type:       HalfPull,
				Error:      err.Error(),
				DocumentID: change.ID,
				HasDocID:   true,
			})
		}
	}
}

func (o *Orchestrator[T]) applyOne(ctx context.Context, change syncmodel.ChangeRecord[T]) error {
	if change.Op == syncmodel.OpDelete {
		return o.applyRemoteDelete(ctx, change)
	}
	return o.applyRemoteUpsert(ctx, change)
}

func (o *Orchestrator[T]) applyRemoteDelete(ctx context.Context, change syncmodel.ChangeRecord[T]) error {
	if err := o.store.Delete(ctx, change.ID); err != nil {
		return err
	}
	o.bus.Emit(events.DocumentDeleted, DocumentEventPayload[T]{
		Document: syncmodel.Document[T]{ID: change.ID, Version: change.Version, Deleted: true},
	})
	return nil
}

// applyRemoteUpsert applies a remote Create/Update. A local revision whose
// timestamp is strictly greater than the incoming remote revision is a
// genuine conflict (spec §4.5.6); anything else is a plain fast-forward.
func (o *Orchestrator[T]) applyRemoteUpsert(ctx context.Context, change syncmodel.ChangeRecord[T]) error {
	local, err := o.store.Get(ctx, change.ID)
	if err != nil {
		return err
	}

	if local != nil && local.Version.Timestamp > change.Version.Timestamp {
		conflict := syncmodel.ConflictInfo[T]{
			DocumentID:    change.ID,
			LocalVersion:  local.Version,
			RemoteVersion: change.Version,
			LocalData:     local.Data,
			RemoteData:    change.Data,
		}
		return o.resolveConflict(ctx, conflict)
	}

	remote := syncmodel.Document[T]{ID: change.ID, Data: change.Data, Version: change.Version}
	if err := o.store.Put(ctx, remote); err != nil {
		return err
	}

	event := events.DocumentUpdated
	payload := DocumentEventPayload[T]{Document: remote}
	if local == nil {
		event = events.DocumentCreated
	} else {
		payload.PreviousVersion = local.Version
		payload.HasPrevious = true
	}
	o.bus.Emit(event, payload)
	return nil
}

// resolveConflict runs conflict through o.resolver, clamps the result to
// preserve monotonicity (spec §9 open question 5), persists it, and records
// the resolution as a local update so it gets pushed back up on the next
// cycle (spec §4.5.6).
func (o *Orchestrator[T]) resolveConflict(ctx context.Context, conflict syncmodel.ConflictInfo[T]) error {
	o.bus.Emit(events.ConflictDetected, ConflictDetectedPayload[T]{Conflict: conflict})

	resolution, err := o.resolver.Resolve(ctx, conflict)
	if err != nil {
		o.metrics.RecordConflict("failed")
		return err
	}
	resolution = resolver.Clamp(o.logger, conflict, resolution)

	resolved := syncmodel.Document[T]{
		ID:      conflict.DocumentID,
		Data:    resolution.ResolvedData,
		Version: resolution.ResolvedVersion,
	}
	if err := o.store.Put(ctx, resolved); err != nil {
		o.metrics.RecordConflict("failed")
		return err
	}
	o.tracker.RecordUpdate(resolved)
	o.metrics.RecordConflict("resolved")

	o.bus.Emit(events.ConflictResolved, ConflictResolvedPayload[T]{Conflict: conflict, Resolution: resolution})
	return nil
}
