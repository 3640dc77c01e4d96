package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-sync/docsync/internal/config"
)

func TestNewRootCommand_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["run"])
	assert.True(t, names["status"])
	assert.True(t, names["export"])
	assert.True(t, names["import"])
}

func TestBuildStore_MemoryBackend(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: config.StoreMemory}}

	store, err := buildStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close(context.Background())

	ids, err := store.GetAllIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBuildStore_UnknownBackend(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: "unknown"}}

	_, err := buildStore(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestBuildOrchestrator_WiresStoreAndTransport(t *testing.T) {
	cfg := &config.Config{
		Store:     config.StoreConfig{Backend: config.StoreMemory},
		Transport: config.TransportConfig{BaseURL: "http://localhost:9"},
	}

	orch, store, err := buildOrchestrator(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, orch)
	assert.NotNil(t, store)
}
