package orchestrator

import "github.com/kestrel-sync/docsync/syncmodel"

// SyncHalf identifies which half of a sync cycle an event describes.
type SyncHalf string

const (
	HalfPull SyncHalf = "pull"
	HalfPush SyncHalf = "push"
)

// DocumentEventPayload is emitted for document:created / document:updated /
// document:deleted.
type DocumentEventPayload[T any] struct {
	Document        syncmodel.Document[T]
	PreviousVersion syncmodel.Version
	HasPrevious     bool
}

// SyncStartedPayload is emitted for sync:started.
type SyncStartedPayload struct {
	Type SyncHalf
}

// SyncCompletedPayload is emitted for sync:completed.
type SyncCompletedPayload struct {
	Type        SyncHalf
	ChangeCount int
}

// SyncFailedPayload is emitted for sync:failed. DocumentID is set when the
// failure is attributable to a single document (per-change apply failure,
// per-conflict resolver failure); zero value otherwise.
type SyncFailedPayload struct {
	Type       SyncHalf
	Error      string
	DocumentID syncmodel.DocumentID
	HasDocID   bool
}

// ConflictDetectedPayload is emitted for conflict:detected.
type ConflictDetectedPayload[T any] struct {
	Conflict syncmodel.ConflictInfo[T]
}

// ConflictResolvedPayload is emitted for conflict:resolved.
type ConflictResolvedPayload[T any] struct {
	Conflict   syncmodel.ConflictInfo[T]
	Resolution syncmodel.ConflictResolution[T]
}

// StateChangedPayload is emitted for state:changed; it is always the full
// current snapshot.
type StateChangedPayload struct {
	State syncmodel.SyncState
}
