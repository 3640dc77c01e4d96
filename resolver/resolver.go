// Package resolver implements the pointwise conflict-resolution contract
// from spec §4.3: given a local and a remote revision of the same document,
// decide which one becomes the new head.
package resolver

import (
	"context"
	"log/slog"

	"github.com/kestrel-sync/docsync/syncmodel"
)

// Resolver resolves a single document conflict. Implementations may
// perform I/O or block, hence the context.
type Resolver[T any] interface {
	Resolve(ctx context.Context, conflict syncmodel.ConflictInfo[T]) (syncmodel.ConflictResolution[T], error)
}

// LWW is the default Last-Write-Wins resolver: the remote side wins when
// its timestamp is strictly greater, or on a timestamp tie when its id
// sorts lexicographically greater; otherwise the local side wins. The
// winning side's version is returned verbatim.
type LWW[T any] struct{}

// NewLWW constructs the default resolver.
func NewLWW[T any]() LWW[T] { return LWW[T]{} }

func (LWW[T]) Resolve(_ context.Context, c syncmodel.ConflictInfo[T]) (syncmodel.ConflictResolution[T], error) {
	remoteWins := c.RemoteVersion.Timestamp > c.LocalVersion.Timestamp ||
		(c.RemoteVersion.Timestamp == c.LocalVersion.Timestamp && c.RemoteVersion.ID > c.LocalVersion.ID)

	if remoteWins {
		return syncmodel.ConflictResolution[T]{
			ResolvedData:    c.RemoteData,
			ResolvedVersion: c.RemoteVersion,
		}, nil
	}
	return syncmodel.ConflictResolution[T]{
		ResolvedData:    c.LocalData,
		ResolvedVersion: c.LocalVersion,
	}, nil
}

// MergeFunc attempts to combine local and remote data. A nil return (with a
// nil error) signals "no sensible merge"; FallbackResolver then defers to
// its fallback resolver, mirroring spec §4.3's merge-with-fallback variant.
type MergeFunc[T any] func(ctx context.Context, local, remote T) (*T, error)

// FallbackResolver runs Merge; on success it synthesizes a version with
// Timestamp = max(local.Timestamp, remote.Timestamp) and defers to Fallback
// on merge failure or a nil result.
type FallbackResolver[T any] struct {
	Merge    MergeFunc[T]
	Fallback Resolver[T]
	Logger   *slog.Logger
}

// NewFallbackResolver constructs a merge-with-fallback resolver. logger may
// be nil, in which case slog.Default() is used.
func NewFallbackResolver[T any](merge MergeFunc[T], fallback Resolver[T], logger *slog.Logger) *FallbackResolver[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackResolver[T]{Merge: merge, Fallback: fallback, Logger: logger.With("component", "fallback_resolver")}
}

func (r *FallbackResolver[T]) Resolve(ctx context.Context, c syncmodel.ConflictInfo[T]) (syncmodel.ConflictResolution[T], error) {
	merged, err := r.Merge(ctx, c.LocalData, c.RemoteData)
	if err != nil {
		r.Logger.Warn("merge function failed, deferring to fallback resolver",
			"document_id", c.DocumentID, "error", err)
		return r.Fallback.Resolve(ctx, c)
	}
	if merged == nil {
		r.Logger.Debug("merge function declined, deferring to fallback resolver",
			"document_id", c.DocumentID)
		return r.Fallback.Resolve(ctx, c)
	}

	ts := c.LocalVersion.Timestamp
	if c.RemoteVersion.Timestamp > ts {
		ts = c.RemoteVersion.Timestamp
	}
	return syncmodel.ConflictResolution[T]{
		ResolvedData:    *merged,
		ResolvedVersion: syncmodel.Version{ID: c.DocumentID, Timestamp: ts},
	}, nil
}

// Clamp enforces the write-time monotonicity guard from spec §9 open
// question 5: a resolution whose version does not strictly exceed both
// sides it resolved is bumped to max(local,remote)+1 and the clamp is
// logged, since a resolver that returns ts <= max(local.ts, remote.ts)
// would otherwise break the engine's monotonicity invariant.
func Clamp[T any](logger *slog.Logger, c syncmodel.ConflictInfo[T], res syncmodel.ConflictResolution[T]) syncmodel.ConflictResolution[T] {
	floor := c.LocalVersion.Timestamp
	if c.RemoteVersion.Timestamp > floor {
		floor = c.RemoteVersion.Timestamp
	}
	if res.ResolvedVersion.Timestamp > floor {
		return res
	}

	if logger != nil {
		logger.Warn("resolver returned a non-monotonic version, clamping",
			"document_id", c.DocumentID,
			"returned_ts", res.ResolvedVersion.Timestamp,
			"floor_ts", floor,
		)
	}
	res.ResolvedVersion = syncmodel.Version{ID: c.DocumentID, Timestamp: floor + 1}
	return res
}
