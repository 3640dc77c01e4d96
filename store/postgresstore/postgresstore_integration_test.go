//go:build integration
// +build integration

package postgresstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kestrel-sync/docsync/store/postgresstore"
	"github.com/kestrel-sync/docsync/syncmodel"
)

type note struct {
	Body string `json:"body"`
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("docsync_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresStore_PutGetDelete(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := postgresstore.New[note](ctx, postgresstore.Config{DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

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

func TestPostgresStore_ChangeLogRoundTrip(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := postgresstore.New[note](ctx, postgresstore.Config{DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

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

func TestPostgresStore_LastSyncTimestamp(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := postgresstore.New[note](ctx, postgresstore.Config{DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	ts, err := store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, syncmodel.Timestamp(0), ts)

	require.NoError(t, store.SetLastSyncTimestamp(ctx, 5555))
	ts, err = store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	require.Equal(t, syncmodel.Timestamp(5555), ts)
}

func TestPostgresStore_GetAllAndGetAllIDs(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := postgresstore.New[note](ctx, postgresstore.Config{DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

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
}
