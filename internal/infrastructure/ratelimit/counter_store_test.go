package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounterStoreIncrement(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, err := store.Increment(ctx, "ip:10.0.0.1:0", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	// Other keys count independently
	count, err := store.Increment(ctx, "ip:10.0.0.2:0", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryCounterStoreExpiry(t *testing.T) {
	store := NewMemoryCounterStore()
	current := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	ctx := context.Background()
	_, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	count, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryCounterStoreDecrement(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	_, err := store.Increment(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Decrement(ctx, "k"))

	count, err := store.Increment(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Decrementing an unknown key is a no-op
	assert.NoError(t, store.Decrement(ctx, "missing"))
}
