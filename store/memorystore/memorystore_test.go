package memorystore_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-sync/docsync/store/memorystore"
	"github.com/kestrel-sync/docsync/syncmodel"
)

func newTestStore(t *testing.T) *memorystore.Store[string] {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return memorystore.New[string](logger)
}

func TestPutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := syncmodel.Document[string]{
		ID:      "doc-1",
		Data:    "hello",
		Version: syncmodel.Version{ID: "doc-1", Timestamp: 100},
	}

	require.NoError(t, store.Put(ctx, doc))

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc, *got)
}

func TestGet_Missing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPut_OverwritesAndIsIsolatedFromCaller(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := syncmodel.Document[string]{ID: "doc-1", Data: "v1", Version: syncmodel.Version{ID: "doc-1", Timestamp: 1}}
	require.NoError(t, store.Put(ctx, doc))

	doc.Data = "mutated after put"
	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Data, "store must not be affected by caller mutating its copy of doc after Put")

	doc2 := syncmodel.Document[string]{ID: "doc-1", Data: "v2", Version: syncmodel.Version{ID: "doc-1", Timestamp: 2}}
	require.NoError(t, store.Put(ctx, doc2))
	got, err = store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Data)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := syncmodel.Document[string]{ID: "doc-1", Data: "v1"}
	require.NoError(t, store.Put(ctx, doc))
	require.NoError(t, store.Delete(ctx, "doc-1"))

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// deleting an absent id is not an error
	assert.NoError(t, store.Delete(ctx, "never-existed"))
}

func TestGetAll_SortedByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []syncmodel.DocumentID{"c", "a", "b"} {
		require.NoError(t, store.Put(ctx, syncmodel.Document[string]{ID: id, Data: string(id)}))
	}

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []syncmodel.DocumentID{"a", "b", "c"}, []syncmodel.DocumentID{all[0].ID, all[1].ID, all[2].ID})
}

func TestBatchOperations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []syncmodel.Document[string]{
		{ID: "a", Data: "1"},
		{ID: "b", Data: "2"},
	}
	require.NoError(t, store.PutBatch(ctx, docs))

	got, err := store.GetBatch(ctx, []syncmodel.DocumentID{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2, "GetBatch silently skips ids that don't exist")
}

func TestChangeLogAndCutoff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, ts := range []syncmodel.Timestamp{10, 20, 30} {
		require.NoError(t, store.PutChange(ctx, syncmodel.ChangeRecord[string]{
			ID:      syncmodel.DocumentID(string(rune('a' + i))),
			Op:      syncmodel.OpCreate,
			LocalTs: ts,
		}))
	}

	since, err := store.GetChangesSince(ctx, 15)
	require.NoError(t, err)
	assert.Len(t, since, 2)

	require.NoError(t, store.ClearChangesBefore(ctx, 20))
	remaining, err := store.GetChangesSince(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "cutoff keeps records with LocalTs >= cutoff")
}

func TestLastSyncTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts, err := store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncmodel.Timestamp(0), ts)

	require.NoError(t, store.SetLastSyncTimestamp(ctx, 42))
	ts, err = store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncmodel.Timestamp(42), ts)
}

func TestClose_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	assert.NoError(t, store.Close(ctx))
	assert.NoError(t, store.Close(ctx))
}
