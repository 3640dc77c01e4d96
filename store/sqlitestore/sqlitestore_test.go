package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-sync/docsync/store/sqlitestore"
	"github.com/kestrel-sync/docsync/syncmodel"
)

type note struct {
	Body string `json:"body"`
}

func newStore(t *testing.T) *sqlitestore.Store[note] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docsync.db")
	store, err := sqlitestore.New[note](context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestNew_RejectsEmptyAndTraversalPaths(t *testing.T) {
	ctx := context.Background()

	_, err := sqlitestore.New[note](ctx, "", nil)
	require.Error(t, err)

	_, err = sqlitestore.New[note](ctx, "../escape.db", nil)
	require.Error(t, err)

	_, err = sqlitestore.New[note](ctx, "/etc/docsync.db", nil)
	require.Error(t, err)
}

func TestStore_PutGetDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	doc := syncmodel.Document[note]{
		ID:      "n1",
		Data:    note{Body: "hello"},
		Version: syncmodel.Version{ID: "n1", Timestamp: 100},
	}
	require.NoError(t, store.Put(ctx, doc))

	got, err := store.Get(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, doc.Data, got.Data)
	require.Equal(t, doc.Version, got.Version)

	require.NoError(t, store.Delete(ctx, "n1"))
	got, err = store.Get(ctx, "n1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStore_GetMissingReturnsNilNoError(t *testing.T) {
	store := newStore(t)
	got, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStore_PutBatchAndGetAll(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	docs := []syncmodel.Document[note]{
		{ID: "a", Data: note{Body: "a"}, Version: syncmodel.Version{ID: "a", Timestamp: 1}},
		{ID: "b", Data: note{Body: "b"}, Version: syncmodel.Version{ID: "b", Timestamp: 2}},
	}
	require.NoError(t, store.PutBatch(ctx, docs))

	ids, err := store.GetAllIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []syncmodel.DocumentID{"a", "b"}, ids)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	batch, err := store.GetBatch(ctx, []syncmodel.DocumentID{"a", "missing"})
	require.NoError(t, err)
	require.Len(t, batch, 1)
}

func TestStore_ChangeLogRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	change := syncmodel.ChangeRecord[note]{
		ID:          "n2",
		Op:          syncmodel.OpCreate,
		Data:        note{Body: "tracked"},
		DataPresent: true,
		Version:     syncmodel.Version{ID: "n2", Timestamp: 200},
		LocalTs:     1000,
	}
	require.NoError(t, store.PutChange(ctx, change))

	changes, err := store.GetChangesSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, change.Data, changes[0].Data)

	require.NoError(t, store.ClearChangesBefore(ctx, 1001))
	changes, err = store.GetChangesSince(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestStore_LastSyncTimestamp(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	ts, err := store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, syncmodel.Timestamp(0), ts)

	require.NoError(t, store.SetLastSyncTimestamp(ctx, 5555))
	ts, err = store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, syncmodel.Timestamp(5555), ts)
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Delete(context.Background(), "absent"))
}
