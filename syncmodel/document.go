package syncmodel

// Document is the externally visible unit of synchronization: a stable id,
// a generic payload, and the version that identifies this particular
// revision of the payload.
type Document[T any] struct {
	ID      DocumentID `json:"id" validate:"required"`
	Data    T          `json:"data"`
	Version Version    `json:"version"`
	Deleted bool       `json:"deleted,omitempty"`
}

// ChangeOp is the closed set of mutation kinds a ChangeRecord can describe.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeRecord describes a single local or remote mutation of a document.
// Data is present iff Op is not OpDelete; by convention a Delete record
// carries the zero value of T and DataPresent is false.
type ChangeRecord[T any] struct {
	ID          DocumentID `json:"id" validate:"required"`
	Op          ChangeOp   `json:"op" validate:"required,oneof=create update delete"`
	Data        T          `json:"data,omitempty"`
	DataPresent bool       `json:"-"`
	Version     Version    `json:"version"`
	LocalTs     Timestamp  `json:"localTs"`
}

// ChangeBatch is the payload of a single push: an ordered subsequence of the
// pending queue, plus the timestamp of the last successful sync known to the
// sender.
type ChangeBatch[T any] struct {
	Changes       []ChangeRecord[T] `json:"changes"`
	LastSyncTs    Timestamp         `json:"lastSyncTimestamp"`
	HasLastSyncTs bool              `json:"-"`
}

// ConflictInfo describes a side-by-side choice the resolver must make
// between a local and a remote revision of the same document.
type ConflictInfo[T any] struct {
	DocumentID   DocumentID
	LocalVersion Version
	RemoteVersion Version
	LocalData    T
	RemoteData   T
}

// ConflictResolution is the outcome of resolving a ConflictInfo: the data
// and version that should become the document's new head. ResolvedVersion
// must satisfy ResolvedVersion.Timestamp >= max(Local.Timestamp, Remote.Timestamp).
type ConflictResolution[T any] struct {
	ResolvedData    T
	ResolvedVersion Version
}

// SyncState is a point-in-time, recompute-on-demand snapshot of the
// orchestrator's sync posture.
type SyncState struct {
	LastPullTs     Timestamp
	LastPushTs     Timestamp
	PendingChanges int
	IsOnline       bool
	IsSyncing      bool
}
