package statement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateCacheServesFromCacheWithinTTL(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	cs := newCertServer(key)
	cache := cs.cache(t, time.Hour)

	got, err := cache.Get(context.Background(), "kid-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	for i := 0; i < 5; i++ {
		_, err := cache.Get(context.Background(), "kid-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), cs.hits.Load())
}

func TestCertificateCacheUnknownKidReturnsNil(t *testing.T) {
	cs := newCertServer(newVendorKey(t, "kid-1"))
	cache := cs.cache(t, time.Hour)

	got, err := cache.Get(context.Background(), "other")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCertificateCacheForceRefresh(t *testing.T) {
	old := newVendorKey(t, "kid-old")
	cs := newCertServer(old)
	cache := cs.cache(t, time.Hour)

	_, err := cache.Get(context.Background(), "kid-old")
	require.NoError(t, err)

	// Rotate: new set published, old cache still fresh.
	rotated := newVendorKey(t, "kid-new")
	cs.setKeys(rotated)

	got, err := cache.Get(context.Background(), "kid-new")
	require.NoError(t, err)
	require.Nil(t, got)

	cache.ForceRefresh()
	got, err = cache.Get(context.Background(), "kid-new")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, int64(2), cs.hits.Load())
}

func TestCertificateCacheServesStaleOnFetchFailure(t *testing.T) {
	key := newVendorKey(t, "kid-1")
	cs := newCertServer(key)
	cache := cs.cache(t, time.Hour)

	_, err := cache.Get(context.Background(), "kid-1")
	require.NoError(t, err)

	cs.fail.Store(true)
	cache.ForceRefresh()

	got, err := cache.Get(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.NotNil(t, got, "stale set should keep serving")
}

func TestCertificateCacheEmptyAndFailingRaises(t *testing.T) {
	cs := newCertServer(newVendorKey(t, "kid-1"))
	cs.fail.Store(true)
	cache := cs.cache(t, time.Hour)

	_, err := cache.Get(context.Background(), "kid-1")
	assert.Error(t, err)
}
