package orchestrator

import (
	"context"

	"github.com/kestrel-sync/docsync/events"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// Get is a pure store read (spec §4.5.3).
func (o *Orchestrator[T]) Get(ctx context.Context, id syncmodel.DocumentID) (*syncmodel.Document[T], error) {
	return o.store.Get(ctx, id)
}

// Create synthesizes an id when none is supplied, stamps a fresh version,
// persists through the store, records the change, emits document:created,
// and schedules a debounced push. It returns as soon as the store write
// completes; the push is asynchronous.
func (o *Orchestrator[T]) Create(ctx context.Context, data T, id syncmodel.DocumentID) (syncmodel.Document[T], error) {
	if id == "" {
		id = o.newID()
	}
	version := syncmodel.NextVersion(id, syncmodel.Version{}, o.now())
	doc := syncmodel.Document[T]{ID: id, Data: data, Version: version}

	if err := o.store.Put(ctx, doc); err != nil {
		return syncmodel.Document[T]{}, err
	}
	o.tracker.RecordCreate(doc)
	o.bus.Emit(events.DocumentCreated, DocumentEventPayload[T]{Document: doc})
	o.scheduleDebouncedPush()
	return doc, nil
}

// Put is an idempotent raw write. Per spec §9 open question 1, the prior
// stored version is read and reported as PreviousVersion — this is a
// deliberate fix of the teacher-era imprecision (the previous revision,
// "report the just-written version as previous", is still available via
// doc.Version on the payload for callers who relied on the old behavior).
func (o *Orchestrator[T]) Put(ctx context.Context, doc syncmodel.Document[T]) error {
	prior, err := o.store.Get(ctx, doc.ID)
	if err != nil {
		return err
	}

	if err := o.store.Put(ctx, doc); err != nil {
		return err
	}
	o.tracker.RecordUpdate(doc)

	payload := DocumentEventPayload[T]{Document: doc}
	if prior != nil {
		payload.PreviousVersion = prior.Version
		payload.HasPrevious = true
	}
	o.bus.Emit(events.DocumentUpdated, payload)
	o.scheduleDebouncedPush()
	return nil
}

// Update returns (nil, nil) if id is absent; otherwise it clones the
// current document with a strictly-greater timestamp (spec §3 monotonicity
// defense), persists it, records the change, and emits document:updated
// with the prior version.
func (o *Orchestrator[T]) Update(ctx context.Context, id syncmodel.DocumentID, data T) (*syncmodel.Document[T], error) {
	prior, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, nil
	}

	version := syncmodel.NextVersion(id, prior.Version, o.now())
	doc := syncmodel.Document[T]{ID: id, Data: data, Version: version}

	if err := o.store.Put(ctx, doc); err != nil {
		return nil, err
	}
	o.tracker.RecordUpdate(doc)
	o.bus.Emit(events.DocumentUpdated, DocumentEventPayload[T]{
		Document:        doc,
		PreviousVersion: prior.Version,
		HasPrevious:     true,
	})
	o.scheduleDebouncedPush()
	return &doc, nil
}

// Delete returns false if id is absent; otherwise it removes the document
// from the store, records the delete at the prior version, and
// emits document:deleted.
func (o *Orchestrator[T]) Delete(ctx context.Context, id syncmodel.DocumentID) (bool, error) {
	prior, err := o.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if prior == nil {
		return false, nil
	}

	if err := o.store.Delete(ctx, id); err != nil {
		return false, err
	}
	change := o.tracker.RecordDelete(id, prior.Version)
	o.bus.Emit(events.DocumentDeleted, DocumentEventPayload[T]{
		Document: syncmodel.Document[T]{ID: id, Version: change.Version, Deleted: true},
	})
	o.scheduleDebouncedPush()
	return true, nil
}
