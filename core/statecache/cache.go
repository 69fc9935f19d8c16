// Package statecache shields the durable store from read pressure
// during dispatch search. It holds two independent bounded TTL caches
// per vehicle: the last known node and the busy flag. The cache is
// never a source of truth; a miss means "consult the durable store".
package statecache

import (
	"context"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/towgrid/dispatch/core/metrics"
)

// Cache is a bounded key-value cache for one kind of vehicle state.
// Entries expire a fixed duration after insertion regardless of access,
// and the least valuable entries are evicted under capacity pressure.
type Cache[V any] struct {
	name  string
	items *ttlcache.Cache[int64, V]
	group singleflight.Group
	sink  metrics.CacheLookupRecorder
}

// NewCache builds a cache named for metrics reporting. A nil sink
// disables reporting.
func NewCache[V any](name string, ttl time.Duration, capacity uint64, sink metrics.CacheLookupRecorder) *Cache[V] {
	items := ttlcache.New[int64, V](
		ttlcache.WithTTL[int64, V](ttl),
		ttlcache.WithCapacity[int64, V](capacity),
		ttlcache.WithDisableTouchOnHit[int64, V](),
	)
	return &Cache[V]{name: name, items: items, sink: sink}
}

// Start runs the expiration janitor until Stop is called.
func (c *Cache[V]) Start() { c.items.Start() }

// Stop terminates the expiration janitor.
func (c *Cache[V]) Stop() { c.items.Stop() }

// Get returns the cached value for id. A miss (absent or expired entry)
// is not an error; it signals the caller to fall back to the durable
// store.
func (c *Cache[V]) Get(id int64) (V, bool) {
	item := c.items.Get(id)
	c.record(item != nil)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

// Set unconditionally inserts or overwrites the value for id,
// refreshing the expiration clock. It is used after a successful
// durable write so the cache reflects the latest truth immediately.
func (c *Cache[V]) Set(id int64, v V) {
	c.items.Set(id, v, ttlcache.DefaultTTL)
}

// GetOrLoad returns the cached value for id, invoking load on a miss.
// Concurrent misses on the same key are coalesced: only one load
// executes and the others await its result. A load error propagates to
// every waiter and does not populate the cache.
func (c *Cache[V]) GetOrLoad(ctx context.Context, id int64, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(id); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		// A concurrent loader may have populated the entry while this
		// call was queued behind it.
		if item := c.items.Get(id); item != nil {
			return item.Value(), nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.items.Set(id, v, ttlcache.DefaultTTL)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int { return c.items.Len() }

func (c *Cache[V]) record(hit bool) {
	if c.sink != nil {
		_ = c.sink.RecordCacheLookup(c.name, hit)
	}
}
