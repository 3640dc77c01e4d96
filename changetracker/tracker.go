// Package changetracker maintains the append-only queue of pending local
// changes and a latest-per-document index, the way internal/storage/memory
// in the teacher repo maintains its in-memory map: a single RWMutex guarding
// plain Go slices/maps, defensive copies on every read and write so callers
// can never mutate tracker-owned state through a returned value.
package changetracker

import (
	"sync"

	"github.com/kestrel-sync/docsync/syncmodel"
)

// Tracker is the in-memory, never-failing pending-change queue described in
// spec §4.2. It is safe for concurrent use, though the orchestrator itself
// only ever touches it from its single logical task queue.
type Tracker[T any] struct {
	mu    sync.RWMutex
	queue []syncmodel.ChangeRecord[T]
	index map[syncmodel.DocumentID]syncmodel.ChangeRecord[T]
	now   func() syncmodel.Timestamp
}

// New creates an empty Tracker. nowFn supplies the wall clock used to stamp
// LocalTs on every recorded change; pass a fixed function in tests to get
// deterministic timestamps.
func New[T any](nowFn func() syncmodel.Timestamp) *Tracker[T] {
	return &Tracker[T]{
		queue: make([]syncmodel.ChangeRecord[T], 0),
		index: make(map[syncmodel.DocumentID]syncmodel.ChangeRecord[T]),
		now:   nowFn,
	}
}

func (t *Tracker[T]) record(rec syncmodel.ChangeRecord[T]) syncmodel.ChangeRecord[T] {
	rec.LocalTs = t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, rec)
	t.index[rec.ID] = rec
	return rec
}

// RecordCreate stamps and appends a Create change for doc.
func (t *Tracker[T]) RecordCreate(doc syncmodel.Document[T]) syncmodel.ChangeRecord[T] {
	return t.record(syncmodel.ChangeRecord[T]{
		ID:          doc.ID,
		Op:          syncmodel.OpCreate,
		Data:        doc.Data,
		DataPresent: true,
		Version:     doc.Version,
	})
}

// RecordUpdate stamps and appends an Update change for doc.
func (t *Tracker[T]) RecordUpdate(doc syncmodel.Document[T]) syncmodel.ChangeRecord[T] {
	return t.record(syncmodel.ChangeRecord[T]{
		ID:          doc.ID,
		Op:          syncmodel.OpUpdate,
		Data:        doc.Data,
		DataPresent: true,
		Version:     doc.Version,
	})
}

// RecordDelete stamps and appends a Delete change for id at version.
func (t *Tracker[T]) RecordDelete(id syncmodel.DocumentID, version syncmodel.Version) syncmodel.ChangeRecord[T] {
	return t.record(syncmodel.ChangeRecord[T]{
		ID:      id,
		Op:      syncmodel.OpDelete,
		Version: version,
	})
}

// GetPendingChanges returns a snapshot of the queue in insertion order.
func (t *Tracker[T]) GetPendingChanges() []syncmodel.ChangeRecord[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]syncmodel.ChangeRecord[T], len(t.queue))
	copy(out, t.queue)
	return out
}

// GetPendingChangeCount is an O(1) queue-size query.
func (t *Tracker[T]) GetPendingChangeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.queue)
}

// HasPendingChanges reports whether the queue is non-empty.
func (t *Tracker[T]) HasPendingChanges() bool {
	return t.GetPendingChangeCount() > 0
}

// GetChangesSince returns the queue filtered to LocalTs > ts, in order.
func (t *Tracker[T]) GetChangesSince(ts syncmodel.Timestamp) []syncmodel.ChangeRecord[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]syncmodel.ChangeRecord[T], 0, len(t.queue))
	for _, rec := range t.queue {
		if rec.LocalTs > ts {
			out = append(out, rec)
		}
	}
	return out
}

// GetLatestChange looks up the current-intent record for id, if any.
func (t *Tracker[T]) GetLatestChange(id syncmodel.DocumentID) (syncmodel.ChangeRecord[T], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.index[id]
	return rec, ok
}

// ClearChangesBefore retains only records with LocalTs >= cutoff in both the
// queue and the index. After this call every remaining record was committed
// at or after cutoff.
func (t *Tracker[T]) ClearChangesBefore(cutoff syncmodel.Timestamp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearBeforeLocked(cutoff)
}

func (t *Tracker[T]) clearBeforeLocked(cutoff syncmodel.Timestamp) {
	kept := t.queue[:0:0]
	for _, rec := range t.queue {
		if rec.LocalTs >= cutoff {
			kept = append(kept, rec)
		}
	}
	t.queue = kept

	for id, rec := range t.index {
		if rec.LocalTs < cutoff {
			delete(t.index, id)
		}
	}
}

// PushKey identifies one pushed change record by id + local timestamp.
type PushKey struct {
	ID syncmodel.DocumentID
	Ts syncmodel.Timestamp
}

// KeyOf builds the PushKey for rec.
func KeyOf[T any](rec syncmodel.ChangeRecord[T]) PushKey {
	return PushKey{ID: rec.ID, Ts: rec.LocalTs}
}

// ClearPushed removes exactly the records whose PushKey appears in ids from
// the queue, and drops the matching index entries only when the index still
// points at one of the pushed records. This is the explicit pushed-id
// snapshot called for by spec.md §9 open question 2: clearing by timestamp
// cutoff alone would also evict changes appended concurrently at the same
// millisecond as the last pushed record.
func (t *Tracker[T]) ClearPushed(ids map[PushKey]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.queue[:0:0]
	for _, rec := range t.queue {
		if _, pushed := ids[KeyOf(rec)]; pushed {
			continue
		}
		kept = append(kept, rec)
	}
	t.queue = kept

	for id, rec := range t.index {
		if _, pushed := ids[PushKey{ID: id, Ts: rec.LocalTs}]; pushed {
			delete(t.index, id)
		}
	}
}

// MergeChanges accepts externally-sourced records (e.g. resolver output):
// for each, the index entry is replaced only if the record's version is
// newer than what's currently indexed for that id, but the record is always
// appended to the queue — the queue is the sync payload, the index is the
// "what is the current intent" view, and they may legitimately diverge.
func (t *Tracker[T]) MergeChanges(external []syncmodel.ChangeRecord[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rec := range external {
		t.queue = append(t.queue, rec)

		current, ok := t.index[rec.ID]
		if !ok || rec.Version.Timestamp > current.Version.Timestamp {
			t.index[rec.ID] = rec
		}
	}
}

// ClearAllChanges empties both the queue and the index.
func (t *Tracker[T]) ClearAllChanges() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = t.queue[:0]
	t.index = make(map[syncmodel.DocumentID]syncmodel.ChangeRecord[T])
}

// State is the serializable form of a Tracker, used for persistence handoff.
type State[T any] struct {
	Queue []syncmodel.ChangeRecord[T] `json:"queue" yaml:"queue"`
}

// ExportState snapshots the tracker's queue for persistence or CLI dump.
func (t *Tracker[T]) ExportState() State[T] {
	return State[T]{Queue: t.GetPendingChanges()}
}

// ImportState replaces the tracker's queue and rebuilds the index from it,
// keeping only the highest-version record per id (mirroring MergeChanges'
// precedence rule).
func (t *Tracker[T]) ImportState(s State[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.queue = make([]syncmodel.ChangeRecord[T], len(s.Queue))
	copy(t.queue, s.Queue)

	t.index = make(map[syncmodel.DocumentID]syncmodel.ChangeRecord[T])
	for _, rec := range t.queue {
		current, ok := t.index[rec.ID]
		if !ok || rec.Version.Timestamp > current.Version.Timestamp {
			t.index[rec.ID] = rec
		}
	}
}
