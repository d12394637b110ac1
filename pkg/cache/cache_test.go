package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	PnL    float64 `json:"pnl"`
}

func TestMemoryCacheRoundTripsJSON(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "run:1", report{ID: "1", Status: "done", PnL: 1.5}, 0))
	var got report
	require.NoError(t, mc.Get(ctx, "run:1", &got))
	assert.Equal(t, report{ID: "1", Status: "done", PnL: 1.5}, got)

	require.NoError(t, mc.Set(ctx, "raw", "plain", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "raw", &s))
	assert.Equal(t, "plain", s)

	require.ErrorIs(t, mc.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	var s string
	require.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	require.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Get(ctx, "c", &s))
}

func TestMemoryCacheLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:run", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "lock:run", time.Minute)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "lock:run"))
	ok, _ = mc.TryLock(ctx, "lock:run", time.Minute)
	assert.True(t, ok)
}

func TestLayeredCacheFillsL1(t *testing.T) {
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "run:2", report{ID: "2"}, 0))
	var got report
	require.NoError(t, lc.Get(ctx, "run:2", &got))
	assert.Equal(t, "2", got.ID)

	require.NoError(t, remote.Delete(ctx, "run:2"))
	got = report{}
	require.NoError(t, lc.Get(ctx, "run:2", &got))
	assert.Equal(t, "2", got.ID)

	require.NoError(t, lc.Delete(ctx, "run:2"))
	require.ErrorIs(t, lc.Get(ctx, "run:2", &got), ErrCacheMiss)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "finreplay:run:1", GenerateKey("finreplay", "run:1"))
	assert.Equal(t, "run:1", GenerateKey("", "run:1"))
	assert.Equal(t, "report:abc:test", GenerateKeyWithParams("report", "abc", "test"))
}
