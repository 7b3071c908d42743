package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/isp-mcp-gateway/internal/clock"
)

func newTestCache(t *testing.T) (*Cache[string], *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return New[string](WithClock(fc)), fc
}

func TestGetReturnsValueUntilExpiry(t *testing.T) {
	for _, id := range []int{1, 42, 100500} {
		t.Run(fmt.Sprintf("service %d", id), func(t *testing.T) {
			c, fc := newTestCache(t)
			key := fmt.Sprintf("GET clientes/%d/", id)

			c.Set(key, "record", time.Minute)

			got, ok := c.Get(key)
			require.True(t, ok)
			assert.Equal(t, "record", got)

			fc.Advance(59 * time.Second)
			_, ok = c.Get(key)
			assert.True(t, ok)

			fc.Advance(time.Second)
			_, ok = c.Get(key)
			assert.False(t, ok, "entry must be absent at expiry")
			assert.Equal(t, 0, c.Stats().Size, "expired entry must be purged on read")
		})
	}
}

func TestSetOverwrites(t *testing.T) {
	c, _ := newTestCache(t)

	c.Set("k", "a", time.Minute)
	c.Set("k", "b", time.Minute)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "b", got)
	assert.Equal(t, int64(2), c.Stats().Sets)
}

func TestDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))

	c.Clear()
	s := c.Stats()
	assert.Equal(t, 0, s.Size)
	assert.Equal(t, int64(1), s.Deletes)
	assert.Equal(t, int64(1), s.Clears)
}

func TestDeletePrefix(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("GET clientes/1/", "1", time.Minute)
	c.Set("GET clientes/?search=x", "2", time.Minute)
	c.Set("GET tickets/", "3", time.Minute)

	assert.Equal(t, 2, c.DeletePrefix("GET clientes/"))
	assert.Equal(t, 1, c.Stats().Size)
}

func TestStatsHitRate(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Equal(t, 0.0, c.Stats().HitRate)

	c.Set("k", "v", time.Minute)
	c.Get("k")
	c.Get("k")
	c.Get("k")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, int64(3), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 0.75, s.HitRate, 1e-9)
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	c, fc := newTestCache(t)
	c.Set("short", "1", time.Second)
	c.Set("long", "2", time.Hour)

	fc.Advance(time.Minute)

	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, 1, c.Stats().Size)
	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestCacheIsIsolatedPerInstance(t *testing.T) {
	a, _ := newTestCache(t)
	b, _ := newTestCache(t)

	a.Set("k", "v", time.Minute)
	a.Get("k")

	assert.Equal(t, int64(1), a.Stats().Hits)
	assert.Equal(t, int64(0), b.Stats().Hits)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			c.Set(key, i, time.Minute)
			c.Get(key)
		}(i)
	}
	wg.Wait()

	s := c.Stats()
	assert.Equal(t, int64(50), s.Sets)
	assert.Equal(t, int64(50), s.Hits+s.Misses)
}
