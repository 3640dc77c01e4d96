package transporthttp_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-sync/docsync/store/memorystore"
	"github.com/kestrel-sync/docsync/syncmodel"
	"github.com/kestrel-sync/docsync/transporthttp"
)

func newTestPair(t *testing.T) (*transporthttp.Client[string], func()) {
	t.Helper()
	store := memorystore.New[string](nil)
	server := transporthttp.NewServer[string](store, nil)
	httpSrv := httptest.NewServer(server)

	client := transporthttp.NewClient[string](transporthttp.ClientConfig{
		BaseURL:        httpSrv.URL,
		RequestTimeout: 2 * time.Second,
		HealthTimeout:  2 * time.Second,
	}, nil)

	return client, func() {
		client.Close()
		server.Shutdown()
		httpSrv.Close()
	}
}

func TestClient_IsOnline(t *testing.T) {
	client, cleanup := newTestPair(t)
	defer cleanup()

	online, err := client.IsOnline(context.Background())
	require.NoError(t, err)
	assert.True(t, online)
}

func TestClient_PushThenPull(t *testing.T) {
	client, cleanup := newTestPair(t)
	defer cleanup()
	ctx := context.Background()

	batch := syncmodel.ChangeBatch[string]{
		Changes: []syncmodel.ChangeRecord[string]{
			{
				ID:          "doc-1",
				Op:          syncmodel.OpCreate,
				Data:        "hello",
				DataPresent: true,
				Version:     syncmodel.Version{ID: "doc-1", Timestamp: 100},
				LocalTs:     100,
			},
		},
	}

	pushResult, err := client.Push(ctx, batch)
	require.NoError(t, err)
	assert.True(t, pushResult.Success)
	assert.Empty(t, pushResult.Conflicts)
	assert.True(t, pushResult.HasTimestamp)

	pullResult, err := client.Pull(ctx, 0)
	require.NoError(t, err)
	assert.True(t, pullResult.Success)
	require.Len(t, pullResult.Changes, 1)
	assert.Equal(t, syncmodel.DocumentID("doc-1"), pullResult.Changes[0].ID)
	assert.Equal(t, "hello", pullResult.Changes[0].Data)
}

func TestClient_PushConflict(t *testing.T) {
	client, cleanup := newTestPair(t)
	defer cleanup()
	ctx := context.Background()

	first := syncmodel.ChangeBatch[string]{
		Changes: []syncmodel.ChangeRecord[string]{
			{
				ID: "doc-1", Op: syncmodel.OpCreate, Data: "server-wins", DataPresent: true,
				Version: syncmodel.Version{ID: "doc-1", Timestamp: 200}, LocalTs: 200,
			},
		},
	}
	_, err := client.Push(ctx, first)
	require.NoError(t, err)

	stale := syncmodel.ChangeBatch[string]{
		Changes: []syncmodel.ChangeRecord[string]{
			{
				ID: "doc-1", Op: syncmodel.OpUpdate, Data: "too-old", DataPresent: true,
				Version: syncmodel.Version{ID: "doc-1", Timestamp: 100}, LocalTs: 300,
			},
		},
	}
	result, err := client.Push(ctx, stale)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, syncmodel.DocumentID("doc-1"), result.Conflicts[0].DocumentID)
	assert.Equal(t, "server-wins", result.Conflicts[0].RemoteData)
	assert.Equal(t, "too-old", result.Conflicts[0].LocalData)
}

func TestClient_PushDelete(t *testing.T) {
	client, cleanup := newTestPair(t)
	defer cleanup()
	ctx := context.Background()

	create := syncmodel.ChangeBatch[string]{
		Changes: []syncmodel.ChangeRecord[string]{
			{ID: "doc-1", Op: syncmodel.OpCreate, Data: "x", DataPresent: true,
				Version: syncmodel.Version{ID: "doc-1", Timestamp: 1}, LocalTs: 1},
		},
	}
	_, err := client.Push(ctx, create)
	require.NoError(t, err)

	del := syncmodel.ChangeBatch[string]{
		Changes: []syncmodel.ChangeRecord[string]{
			{ID: "doc-1", Op: syncmodel.OpDelete,
				Version: syncmodel.Version{ID: "doc-1", Timestamp: 2}, LocalTs: 2},
		},
	}
	result, err := client.Push(ctx, del)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Conflicts)
}

func TestClient_PullEmptyStore(t *testing.T) {
	client, cleanup := newTestPair(t)
	defer cleanup()

	result, err := client.Pull(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Changes)
}
