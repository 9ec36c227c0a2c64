package duplicate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepAllDead(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	for i := 0; i < 5; i++ {
		_, err := cache.Insert(ctx, fmt.Sprintf("f%d.png", i), fmt.Sprintf("https://x/%d", i), "", nil)
		require.NoError(t, err)
	}
	before, err := cache.Stats(ctx)
	require.NoError(t, err)

	count, err := NewSweeper(cache, alwaysDead).Sweep(ctx, 100, nil)
	require.NoError(t, err)
	assert.EqualValues(t, before.ValidCount, count)

	after, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, after.ValidCount)
	assert.EqualValues(t, 5, after.InvalidCount)
}

func TestSweepOnlyInvalidatesDead(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	probes := newProbeRecorder("https://x/1", "https://x/3")
	for i := 0; i < 4; i++ {
		_, err := cache.Insert(ctx, fmt.Sprintf("f%d.png", i), fmt.Sprintf("https://x/%d", i), "", nil)
		require.NoError(t, err)
	}

	var calls, lastTotal int
	count, err := NewSweeper(cache, probes, WithConcurrency(3), WithRate(1000)).Sweep(ctx, 10, func(checked, total int) {
		calls++
		lastTotal = total
		assert.Equal(t, calls, checked)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, lastTotal)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.ValidCount)
}

func TestSweepRespectsBatchSize(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	for i := 0; i < 5; i++ {
		_, err := cache.Insert(ctx, fmt.Sprintf("f%d.png", i), fmt.Sprintf("https://x/%d", i), "", nil)
		require.NoError(t, err)
	}

	count, err := NewSweeper(cache, alwaysDead).Sweep(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// The oldest records go first
	oldest, err := cache.FindLatestByFilename(ctx, "f0.png")
	require.NoError(t, err)
	assert.Nil(t, oldest)
	newest, err := cache.FindLatestByFilename(ctx, "f4.png")
	require.NoError(t, err)
	assert.NotNil(t, newest)
}

func TestSweepCancelled(t *testing.T) {
	cache := newTestCache(t)
	_, err := cache.Insert(context.Background(), "a.png", "https://x/a", "", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSweeper(cache, alwaysDead).Sweep(ctx, 10, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
