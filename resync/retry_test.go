package resync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-sync/docsync/resync"
)

func TestWithRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := resync.WithRetry(context.Background(), resync.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Operation: "pull"}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := resync.WithRetry(context.Background(), resync.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Operation: "push"}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ReturnsErrorAfterExhaustingRetries(t *testing.T) {
	calls := 0
	err := resync.WithRetry(context.Background(), resync.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, Operation: "pull"}, func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // first attempt + 2 retries
}

func TestWithRetry_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := resync.WithRetry(ctx, resync.Policy{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, Operation: "pull"}, func() error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewPolicyFromAttempts_ConvertsTotalToRetries(t *testing.T) {
	p := resync.NewPolicyFromAttempts(3, time.Second)
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, time.Second, p.BaseDelay)
}

func TestNewPolicyFromAttempts_ClampsBelowOne(t *testing.T) {
	p := resync.NewPolicyFromAttempts(0, time.Second)
	assert.Equal(t, 0, p.MaxRetries)
}
