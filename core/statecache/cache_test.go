package statecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGet(t *testing.T) {
	c := NewCache[int64]("location", time.Minute, 10, nil)
	c.Set(7, 42)
	v, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, int64(42), v)
}

func TestMissIsNotAnError(t *testing.T) {
	c := NewCache[bool]("busy", time.Minute, 10, nil)
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := NewCache[int64]("location", 30*time.Millisecond, 10, nil)
	c.Set(1, 5)

	_, ok := c.Get(1)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get(1)
	assert.False(t, ok, "entry must expire without further writes")
}

func TestGetDoesNotRefreshExpiration(t *testing.T) {
	c := NewCache[int64]("location", 60*time.Millisecond, 10, nil)
	c.Set(1, 5)
	// Repeated reads must not keep the entry alive.
	for i := 0; i < 4; i++ {
		time.Sleep(25 * time.Millisecond)
		c.Get(1)
	}
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestSetRefreshesExpiration(t *testing.T) {
	c := NewCache[int64]("location", 60*time.Millisecond, 10, nil)
	c.Set(1, 5)
	time.Sleep(40 * time.Millisecond)
	c.Set(1, 6)
	time.Sleep(40 * time.Millisecond)
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, int64(6), v)
}

func TestGetOrLoadCoalescesConcurrentMisses(t *testing.T) {
	c := NewCache[int64]("location", time.Minute, 10, nil)
	var loads atomic.Int32
	release := make(chan struct{})

	load := func(context.Context) (int64, error) {
		loads.Add(1)
		<-release
		return 99, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]int64, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrLoad(context.Background(), 3, load)
		}(i)
	}
	// Let every caller reach the in-flight load before it completes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load(), "loader must run exactly once")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(99), results[i])
	}
}

func TestGetOrLoadErrorDoesNotPopulate(t *testing.T) {
	c := NewCache[int64]("location", time.Minute, 10, nil)
	boom := errors.New("store down")

	_, err := c.GetOrLoad(context.Background(), 1, func(context.Context) (int64, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)

	_, ok := c.Get(1)
	assert.False(t, ok, "failed load must not populate the cache")

	v, err := c.GetOrLoad(context.Background(), 1, func(context.Context) (int64, error) {
		return 8, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)
}

func TestCapacityBound(t *testing.T) {
	c := NewCache[int64]("location", time.Minute, 4, nil)
	for id := int64(0); id < 20; id++ {
		c.Set(id, id)
	}
	assert.LessOrEqual(t, c.Len(), 4)
}

type countingSink struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (s *countingSink) RecordCacheLookup(_ string, hit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.hits++
	} else {
		s.misses++
	}
	return nil
}

func TestLookupReporting(t *testing.T) {
	sink := &countingSink{}
	s := NewVehicleState(Config{TTLSeconds: 60, Capacity: 10}, sink)
	s.Busy.Set(1, true)
	s.Busy.Get(1)
	s.Busy.Get(2)
	assert.Equal(t, 1, sink.hits)
	assert.Equal(t, 1, sink.misses)
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, 300, cfg.TTLSeconds)
	assert.Equal(t, uint64(2000), cfg.Capacity)
	assert.NoError(t, cfg.Validate())
}
