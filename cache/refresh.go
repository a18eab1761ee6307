package cache

import (
	"context"

	"github.com/IvanBrykalov/concache/internal/util"
)

// maybeTriggerRefresh starts a reload on the configured Executor (inline
// when none is configured) when a read observes e older than
// RefreshAfterWrite. The stale value is still returned to this caller;
// refresh only affects what later readers see.
func (c *impl[K, V]) maybeTriggerRefresh(ctx context.Context, key K, e *entry[K, V], now int64) {
	if c.cfg.RefreshAfterWrite <= 0 || c.cfg.Loader == nil {
		return
	}
	if now-e.writeTimeNanos.Load() < int64(c.cfg.RefreshAfterWrite) {
		return
	}
	c.triggerRefresh(ctx, key, e)
}

// triggerRefresh runs the loader for key at most once per stale entry:
// entry.refreshInFlight is the single-writer gate ensuring at most one
// in-flight refresh per key. Concurrent triggers for the same entry while
// a refresh is already running are coalesced into a no-op; the in-flight
// load will publish for everyone.
func (c *impl[K, V]) triggerRefresh(ctx context.Context, key K, e *entry[K, V]) {
	if c.cfg.Loader == nil {
		return
	}
	if !e.refreshInFlight.CompareAndSwap(false, true) {
		return
	}
	c.cfg.executor().Execute(func() {
		defer e.refreshInFlight.Store(false)

		start := c.cfg.ticker().NowNanos()
		newVal, err := c.cfg.Loader(ctx, key)
		dur := c.cfg.ticker().NowNanos() - start
		if err != nil {
			c.stats.recordLoadFailure(dur)
			c.log.RefreshLoadFailed(err)
			return
		}
		c.stats.recordLoadSuccess(dur)

		// Discard a stale result: only publish if e is still the entry
		// resident for key (identity CAS). A refresh whose result arrives
		// after the entry was otherwise replaced or removed is discarded.
		now := c.cfg.ticker().NowNanos()
		weight := c.weightOf(key, newVal)
		ne := newEntry(key, newVal, now, weight)
		c.applyUpdateExpiry(ne, e, key, newVal)
		hash := util.HashKey(key)
		previous, ok := c.tbl.replace(hash, key, e, ne)
		if !ok {
			return
		}
		c.afterWrite(writeEvent[K, V]{kind: writeUpdate, current: ne, previous: previous, cause: REPLACED})
	})
}
