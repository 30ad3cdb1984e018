package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider wraps LocalProvider and counts Embed calls.
type countingProvider struct {
	inner Provider
	calls atomic.Int64
	fail  bool
}

func (p *countingProvider) Init(ctx context.Context) error { return nil }

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.fail {
		return nil, errors.New("provider down")
	}
	return p.inner.Embed(ctx, text)
}

func (p *countingProvider) Dimensions() int { return p.inner.Dimensions() }

func newTestCache(t *testing.T, capacity int, ttl time.Duration) (*Cache, *countingProvider) {
	t.Helper()
	provider := &countingProvider{inner: NewLocalProvider(8)}
	cache, err := NewCache(provider, capacity, ttl, nil)
	require.NoError(t, err)
	return cache, provider
}

func TestCache_HitAvoidsProvider(t *testing.T) {
	ctx := context.Background()
	cache, provider := newTestCache(t, 4, time.Hour)

	first, err := cache.Get(ctx, "check exit codes")
	require.NoError(t, err)

	second, err := cache.Get(ctx, "check exit codes")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestCache_TTLExpiryRefetches(t *testing.T) {
	ctx := context.Background()
	cache, provider := newTestCache(t, 4, time.Minute)

	now := time.Now()
	cache.clock = func() time.Time { return now }

	_, err := cache.Get(ctx, "stale entry")
	require.NoError(t, err)

	// Advance past the TTL; the next get must call the provider again.
	cache.clock = func() time.Time { return now.Add(2 * time.Minute) }

	_, err = cache.Get(ctx, "stale entry")
	require.NoError(t, err)
	assert.Equal(t, int64(2), provider.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCache_FIFOEviction(t *testing.T) {
	ctx := context.Background()
	cache, provider := newTestCache(t, 2, time.Hour)

	_, err := cache.Get(ctx, "oldest")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "middle")
	require.NoError(t, err)

	// Access "oldest" again: insertion order, not access order, decides
	// eviction, so it must still be evicted by the next insert.
	_, err = cache.Get(ctx, "oldest")
	require.NoError(t, err)
	require.Equal(t, int64(2), provider.calls.Load())

	_, err = cache.Get(ctx, "newest")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	_, err = cache.Get(ctx, "oldest")
	require.NoError(t, err)
	assert.Equal(t, int64(4), provider.calls.Load(), "evicted entry should refetch")
}

func TestCache_ProviderErrorPropagates(t *testing.T) {
	ctx := context.Background()
	cache, provider := newTestCache(t, 4, time.Hour)
	provider.fail = true

	_, err := cache.Get(ctx, "anything")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_EmptyInput(t *testing.T) {
	cache, _ := newTestCache(t, 4, time.Hour)

	_, err := cache.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
