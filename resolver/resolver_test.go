package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-sync/docsync/resolver"
	"github.com/kestrel-sync/docsync/syncmodel"
)

func TestLWW_RemoteWinsOnNewerTimestamp(t *testing.T) {
	r := resolver.NewLWW[string]()
	conflict := syncmodel.ConflictInfo[string]{
		LocalVersion:  syncmodel.Version{ID: "a", Timestamp: 10},
		RemoteVersion: syncmodel.Version{ID: "a", Timestamp: 20},
		LocalData:     "local",
		RemoteData:    "remote",
	}
	res, err := r.Resolve(context.Background(), conflict)
	require.NoError(t, err)
	assert.Equal(t, "remote", res.ResolvedData)
	assert.Equal(t, syncmodel.Timestamp(20), res.ResolvedVersion.Timestamp)
}

func TestLWW_LocalWinsOnNewerTimestamp(t *testing.T) {
	r := resolver.NewLWW[string]()
	conflict := syncmodel.ConflictInfo[string]{
		LocalVersion:  syncmodel.Version{ID: "a", Timestamp: 30},
		RemoteVersion: syncmodel.Version{ID: "a", Timestamp: 20},
		LocalData:     "local",
		RemoteData:    "remote",
	}
	res, err := r.Resolve(context.Background(), conflict)
	require.NoError(t, err)
	assert.Equal(t, "local", res.ResolvedData)
}

func TestLWW_TieBreaksOnLexicographicallyGreaterID(t *testing.T) {
	r := resolver.NewLWW[string]()
	conflict := syncmodel.ConflictInfo[string]{
		LocalVersion:  syncmodel.Version{ID: "client-a", Timestamp: 10},
		RemoteVersion: syncmodel.Version{ID: "client-b", Timestamp: 10},
		LocalData:     "local",
		RemoteData:    "remote",
	}
	res, err := r.Resolve(context.Background(), conflict)
	require.NoError(t, err)
	assert.Equal(t, "remote", res.ResolvedData)
}

func TestFallbackResolver_UsesMergeResultWhenAvailable(t *testing.T) {
	merge := func(_ context.Context, local, remote string) (*string, error) {
		merged := local + "+" + remote
		return &merged, nil
	}
	r := resolver.NewFallbackResolver[string](merge, resolver.NewLWW[string](), nil)

	conflict := syncmodel.ConflictInfo[string]{
		DocumentID:    "doc-1",
		LocalVersion:  syncmodel.Version{ID: "a", Timestamp: 10},
		RemoteVersion: syncmodel.Version{ID: "b", Timestamp: 20},
		LocalData:     "x",
		RemoteData:    "y",
	}
	res, err := r.Resolve(context.Background(), conflict)
	require.NoError(t, err)
	assert.Equal(t, "x+y", res.ResolvedData)
	assert.Equal(t, syncmodel.Timestamp(20), res.ResolvedVersion.Timestamp)
}

func TestFallbackResolver_DefersOnNilMergeResult(t *testing.T) {
	merge := func(_ context.Context, local, remote string) (*string, error) { return nil, nil }
	r := resolver.NewFallbackResolver[string](merge, resolver.NewLWW[string](), nil)

	conflict := syncmodel.ConflictInfo[string]{
		LocalVersion:  syncmodel.Version{ID: "a", Timestamp: 10},
		RemoteVersion: syncmodel.Version{ID: "b", Timestamp: 20},
		LocalData:     "x",
		RemoteData:    "y",
	}
	res, err := r.Resolve(context.Background(), conflict)
	require.NoError(t, err)
	assert.Equal(t, "y", res.ResolvedData) // LWW: remote has higher timestamp
}

func TestFallbackResolver_DefersOnMergeError(t *testing.T) {
	merge := func(_ context.Context, local, remote string) (*string, error) { return nil, errors.New("boom") }
	r := resolver.NewFallbackResolver[string](merge, resolver.NewLWW[string](), nil)

	conflict := syncmodel.ConflictInfo[string]{
		LocalVersion:  syncmodel.Version{ID: "a", Timestamp: 30},
		RemoteVersion: syncmodel.Version{ID: "b", Timestamp: 20},
		LocalData:     "x",
		RemoteData:    "y",
	}
	res, err := r.Resolve(context.Background(), conflict)
	require.NoError(t, err)
	assert.Equal(t, "x", res.ResolvedData) // LWW: local has higher timestamp
}

func TestClamp_PassesThroughValidResolution(t *testing.T) {
	conflict := syncmodel.ConflictInfo[string]{
		LocalVersion:  syncmodel.Version{Timestamp: 10},
		RemoteVersion: syncmodel.Version{Timestamp: 20},
	}
	res := syncmodel.ConflictResolution[string]{ResolvedVersion: syncmodel.Version{Timestamp: 21}}
	out := resolver.Clamp[string](nil, conflict, res)
	assert.Equal(t, syncmodel.Timestamp(21), out.ResolvedVersion.Timestamp)
}

func TestClamp_BumpsNonMonotonicResolution(t *testing.T) {
	conflict := syncmodel.ConflictInfo[string]{
		DocumentID:    "doc-1",
		LocalVersion:  syncmodel.Version{Timestamp: 10},
		RemoteVersion: syncmodel.Version{Timestamp: 20},
	}
	res := syncmodel.ConflictResolution[string]{ResolvedVersion: syncmodel.Version{Timestamp: 15}}
	out := resolver.Clamp[string](nil, conflict, res)
	assert.Equal(t, syncmodel.Timestamp(21), out.ResolvedVersion.Timestamp)
	assert.Equal(t, syncmodel.DocumentID("doc-1"), out.ResolvedVersion.ID)
}
