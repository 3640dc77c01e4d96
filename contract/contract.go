// Package contract defines the Store and Transport capabilities the
// orchestrator consumes (spec §6). Only their contracts are part of the
// core; concrete implementations (in-memory, SQLite, Postgres, HTTP+WS)
// live under store/ and transporthttp/ as external collaborators.
package contract

import (
	"context"

	"github.com/kestrel-sync/docsync/syncmodel"
)

// Store is the durable-document-state capability injected into the
// orchestrator. The orchestrator and local CRUD surface are the only
// callers; Store owns durable document state and the durable
// lastSyncTimestamp, never the pending-change queue (that's the
// changetracker's job).
type Store[T any] interface {
	Get(ctx context.Context, id syncmodel.DocumentID) (*syncmodel.Document[T], error)
	Put(ctx context.Context, doc syncmodel.Document[T]) error
	Delete(ctx context.Context, id syncmodel.DocumentID) error

	GetBatch(ctx context.Context, ids []syncmodel.DocumentID) ([]syncmodel.Document[T], error)
	PutBatch(ctx context.Context, docs []syncmodel.Document[T]) error

	GetAll(ctx context.Context) ([]syncmodel.Document[T], error)
	GetAllIDs(ctx context.Context) ([]syncmodel.DocumentID, error)

	GetChangesSince(ctx context.Context, ts syncmodel.Timestamp) ([]syncmodel.ChangeRecord[T], error)
	PutChange(ctx context.Context, change syncmodel.ChangeRecord[T]) error
	ClearChangesBefore(ctx context.Context, ts syncmodel.Timestamp) error

	GetLastSyncTimestamp(ctx context.Context) (syncmodel.Timestamp, error)
	SetLastSyncTimestamp(ctx context.Context, ts syncmodel.Timestamp) error

	// Close releases any resources held by the store. Implementations for
	// which this is a no-op (e.g. the in-memory store) still satisfy the
	// interface; Closer is embedded rather than optional so callers never
	// need a type assertion.
	Close(ctx context.Context) error
}

// ErrNotFound is a sentinel for a missing document. The bundled stores do
// not return it: their Get reports a missing id as (nil, nil) and their
// Delete of a missing id returns nil.
var ErrNotFound = storeErr("document not found")

type storeErr string

func (e storeErr) Error() string { return string(e) }

// PullResult is the outcome of Transport.Pull.
type PullResult[T any] struct {
	Success   bool
	Changes   []syncmodel.ChangeRecord[T]
	Timestamp syncmodel.Timestamp
	Error     string
}

// PushResult is the outcome of Transport.Push.
type PushResult[T any] struct {
	Success   bool
	Conflicts []syncmodel.ConflictInfo[T]
	Error     string
	Timestamp syncmodel.Timestamp
	HasTimestamp bool
}

// RemoteChangeHandler is invoked by a Transport's real-time channel, if it
// has one, with the batch of changes the remote side pushed out-of-band.
type RemoteChangeHandler[T any] func(ctx context.Context, changes []syncmodel.ChangeRecord[T])

// Transport is the remote-connectivity capability injected into the
// orchestrator. Per-call timeouts are the transport's own responsibility,
// not the orchestrator's (spec §5).
type Transport[T any] interface {
	Push(ctx context.Context, batch syncmodel.ChangeBatch[T]) (PushResult[T], error)
	Pull(ctx context.Context, sinceTs syncmodel.Timestamp) (PullResult[T], error)
	IsOnline(ctx context.Context) (bool, error)

	// OnRemoteChange subscribes handler to the transport's real-time push
	// channel, if it has one. Transports without real-time support return
	// a nil unsubscribe func and ok=false.
	OnRemoteChange(handler RemoteChangeHandler[T]) (unsubscribe func(), ok bool)
}
