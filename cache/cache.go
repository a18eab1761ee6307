package cache

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/concache/internal/cachelog"
	"github.com/IvanBrykalov/concache/internal/singleflight"
	"github.com/IvanBrykalov/concache/internal/util"
)

// errNoLoader backs GetOrLoad/Refresh when no Loader was configured.
var errNoLoader = errors.New("cache: no Loader configured")

// drain status values for impl.drainStatus, the single-owner maintenance
// state machine: IDLE → REQUIRED → PROCESSING → IDLE, with the absorbing
// PROCESSING_TO_REQUIRED retry state covering a write that arrives while
// a drain is already running.
const (
	drainIdle int32 = iota
	drainRequired
	drainProcessing
	drainProcessingToRequired
)

// impl is the concrete Cache/LoadingCache implementation: the hash table
// substrate plus whichever of the expiration indices, eviction policy and
// timer wheel the Config enables, tied together by the maintenance drain.
// One impl value backs both the Cache and LoadingCache interfaces — New
// hands it back as a Cache and NewLoading as a LoadingCache, preferring a
// capability record over deep inheritance.
type impl[K comparable, V any] struct {
	cfg Config[K, V]
	log cachelog.Logger

	tbl   *table[K, V]
	rdbuf *readBuffer[K, V]
	wrbuf *writeBuffer[K, V]
	stats *statsCounter

	admission *admissionPolicy[K, V] // nil when unbounded
	writeIdx  *orderedIndex[K, V]    // nil unless ExpireAfterWrite is set
	accessIdx *orderedIndex[K, V]    // nil unless ExpireAfterAccess is set
	wheel     *timerWheel[K, V]      // nil unless Expiry is set

	drainStatus atomic.Int32

	schedMu     sync.Mutex
	schedCancel func()

	sf singleflight.Group[K, V]
}

// New constructs a Cache from cfg. The returned value also implements
// LoadingCache; callers that need Refresh should type-assert or use
// NewLoading instead.
func New[K comparable, V any](cfg Config[K, V]) (Cache[K, V], error) {
	c, err := newImpl(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewLoading constructs a LoadingCache. cfg.Loader must be non-nil.
func NewLoading[K comparable, V any](cfg Config[K, V]) (LoadingCache[K, V], error) {
	if cfg.Loader == nil {
		return nil, newInvalidArgument("NewLoading requires a non-nil Loader")
	}
	return newImpl(cfg)
}

func newImpl[K comparable, V any](cfg Config[K, V]) (*impl[K, V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &impl[K, V]{
		cfg:   cfg,
		tbl:   newTable[K, V](cfg.MaximumSize),
		rdbuf: newReadBuffer[K, V](),
		wrbuf: newWriteBuffer[K, V](),
		stats: newStatsCounter(cfg.RecordStats),
	}
	if cfg.Logger != nil {
		c.log = cachelog.New(*cfg.Logger)
	} else {
		c.log = cachelog.Disabled()
	}

	if cfg.bounded() {
		capUnits := cfg.MaximumSize
		weighted := false
		if cfg.MaximumWeight > 0 {
			capUnits = cfg.MaximumWeight
			weighted = true
		}
		c.admission = newAdmissionPolicy[K, V](capUnits, weighted, util.HashKey[K])
	}
	if cfg.ExpireAfterWrite > 0 {
		c.writeIdx = newWriteOrderIndex[K, V]()
	}
	if cfg.ExpireAfterAccess > 0 {
		c.accessIdx = newAccessOrderIndex[K, V]()
	}
	if !cfg.Expiry.isZero() {
		c.wheel = newTimerWheel[K, V]()
		c.wheel.init(cfg.ticker().NowNanos())
	}

	return c, nil
}

func (c *impl[K, V]) weightOf(key K, value V) int32 {
	if c.cfg.Weigher == nil {
		return 1
	}
	w := c.cfg.Weigher(key, value)
	if w < 0 {
		w = 0
	}
	return int32(w)
}

// currentUnits reports the quantity the eviction bound is measured in:
// live weight when MaximumWeight is configured, live entry count
// otherwise.
func (c *impl[K, V]) currentUnits() int64 {
	if c.cfg.MaximumWeight > 0 {
		return c.tbl.weight()
	}
	return c.tbl.size()
}

// isExpired reports whether e's deadline (under whichever expiry modes
// are active) has passed as of nowNanos. The effective deadline is the
// earliest of whichever modes are active.
func (c *impl[K, V]) isExpired(e *entry[K, V], nowNanos int64) bool {
	if c.cfg.ExpireAfterWrite > 0 && nowNanos-e.writeTimeNanos.Load() >= int64(c.cfg.ExpireAfterWrite) {
		return true
	}
	if c.cfg.ExpireAfterAccess > 0 && nowNanos-e.accessTimeNanos.Load() >= int64(c.cfg.ExpireAfterAccess) {
		return true
	}
	if deadline := e.varExpireNanos.Load(); deadline > 0 && nowNanos >= deadline {
		return true
	}
	return false
}

// ---- Cache[K,V] ----

func (c *impl[K, V]) Get(key K) (V, bool) {
	var zero V
	hash := util.HashKey(key)
	e, ok := c.tbl.get(hash, key)
	if !ok {
		c.stats.recordMiss()
		return zero, false
	}
	now := c.cfg.ticker().NowNanos()
	if c.isExpired(e, now) {
		c.stats.recordMiss()
		c.enqueueRemove(e, EXPIRED)
		return zero, false
	}
	c.stats.recordHit()
	e.accessTimeNanos.Store(now)
	c.rdbuf.recordAccess(e)
	c.maybeTriggerRefresh(context.Background(), key, e, now)
	return e.loadValue(), true
}

func (c *impl[K, V]) GetOrLoad(ctx context.Context, key K) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	if c.cfg.Loader == nil {
		return zero, newLoaderFailure(errNoLoader)
	}
	v, err := c.sf.Do(ctx, key, func() (V, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		start := c.cfg.ticker().NowNanos()
		lv, lerr := c.cfg.Loader(ctx, key)
		dur := c.cfg.ticker().NowNanos() - start
		if lerr != nil {
			c.stats.recordLoadFailure(dur)
			return lv, lerr
		}
		c.stats.recordLoadSuccess(dur)
		c.Put(key, lv)
		return lv, nil
	})
	if err != nil {
		return zero, newLoaderFailure(err)
	}
	return v, nil
}

func (c *impl[K, V]) Put(key K, value V) (V, bool) {
	var zero V
	now := c.cfg.ticker().NowNanos()
	weight := c.weightOf(key, value)
	e := newEntry(key, value, now, weight)
	hash := util.HashKey(key)
	res := c.tbl.put(hash, key, e)
	if res.hadPrevious {
		c.applyUpdateExpiry(e, res.previous, key, value)
		c.afterWrite(writeEvent[K, V]{kind: writeUpdate, current: e, previous: res.previous, cause: REPLACED})
		return res.previous.loadValue(), true
	}
	c.applyCreateExpiry(e, key, value)
	c.afterWrite(writeEvent[K, V]{kind: writeInsert, current: e})
	return zero, false
}

func (c *impl[K, V]) PutIfAbsent(key K, value V) (V, bool) {
	now := c.cfg.ticker().NowNanos()
	weight := c.weightOf(key, value)
	e := newEntry(key, value, now, weight)
	c.applyCreateExpiry(e, key, value)
	hash := util.HashKey(key)
	existing, installed := c.tbl.putIfAbsent(hash, key, e)
	if !installed {
		return existing.loadValue(), false
	}
	c.afterWrite(writeEvent[K, V]{kind: writeInsert, current: e})
	return value, true
}

func (c *impl[K, V]) Replace(key K, value V) (V, bool) {
	var zero V
	now := c.cfg.ticker().NowNanos()
	weight := c.weightOf(key, value)
	e := newEntry(key, value, now, weight)
	hash := util.HashKey(key)
	previous, ok := c.tbl.replace(hash, key, nil, e)
	if !ok {
		return zero, false
	}
	c.applyUpdateExpiry(e, previous, key, value)
	c.afterWrite(writeEvent[K, V]{kind: writeUpdate, current: e, previous: previous, cause: REPLACED})
	return previous.loadValue(), true
}

func (c *impl[K, V]) ReplaceExpected(key K, expected, value V) bool {
	hash := util.HashKey(key)
	for {
		cur, ok := c.tbl.get(hash, key)
		if !ok || !reflect.DeepEqual(cur.loadValue(), expected) {
			return false
		}
		now := c.cfg.ticker().NowNanos()
		weight := c.weightOf(key, value)
		ne := newEntry(key, value, now, weight)
		previous, ok := c.tbl.replace(hash, key, cur, ne)
		if !ok {
			continue // lost the race; re-check current value
		}
		c.applyUpdateExpiry(ne, previous, key, value)
		c.afterWrite(writeEvent[K, V]{kind: writeUpdate, current: ne, previous: previous, cause: REPLACED})
		return true
	}
}

func (c *impl[K, V]) Remove(key K) (V, bool) {
	var zero V
	hash := util.HashKey(key)
	e, ok := c.tbl.remove(hash, key, nil)
	if !ok {
		return zero, false
	}
	c.afterWrite(writeEvent[K, V]{kind: writeRemove, previous: e, cause: EXPLICIT})
	return e.loadValue(), true
}

func (c *impl[K, V]) RemoveExpected(key K, expected V) bool {
	hash := util.HashKey(key)
	for {
		cur, ok := c.tbl.get(hash, key)
		if !ok || !reflect.DeepEqual(cur.loadValue(), expected) {
			return false
		}
		removed, ok := c.tbl.remove(hash, key, cur)
		if !ok {
			continue
		}
		c.afterWrite(writeEvent[K, V]{kind: writeRemove, previous: removed, cause: EXPLICIT})
		return true
	}
}

func (c *impl[K, V]) Compute(key K, remap func(key K, oldValue V, found bool) (V, bool)) (V, bool, error) {
	var result V
	var present bool
	var ev writeEvent[K, V]
	haveEv := false
	now := c.cfg.ticker().NowNanos()
	hash := util.HashKey(key)

	reentrant, _ := c.tbl.withBinLocked(hash, func(bin map[K]*entry[K, V]) error {
		old, existed := bin[key]
		if existed && old.getState() != live {
			existed = false
		}
		var oldVal V
		if existed {
			oldVal = old.loadValue()
		}
		newVal, write := remap(key, oldVal, existed)
		if !write {
			present = false
			if existed {
				delete(bin, key)
				old.setState(retired)
				c.tbl.adjustAccounting(-1, -int64(old.weight))
				ev, haveEv = writeEvent[K, V]{kind: writeRemove, previous: old, cause: EXPLICIT}, true
			}
			return nil
		}
		weight := c.weightOf(key, newVal)
		ne := newEntry(key, newVal, now, weight)
		bin[key] = ne
		if existed {
			c.applyUpdateExpiry(ne, old, key, newVal)
			old.setState(retired)
			c.tbl.adjustAccounting(0, int64(weight)-int64(old.weight))
			ev = writeEvent[K, V]{kind: writeUpdate, current: ne, previous: old, cause: REPLACED}
		} else {
			c.applyCreateExpiry(ne, key, newVal)
			c.tbl.adjustAccounting(1, int64(weight))
			ev = writeEvent[K, V]{kind: writeInsert, current: ne}
		}
		haveEv = true
		result, present = newVal, true
		return nil
	})
	if reentrant {
		var zero V
		return zero, false, newIllegalState("Compute called reentrantly on an already-held bin")
	}
	if haveEv {
		c.afterWrite(ev)
	}
	return result, present, nil
}

func (c *impl[K, V]) ComputeIfAbsent(key K, mapFn func(key K) (V, bool)) (V, error) {
	var result V
	var ev writeEvent[K, V]
	haveEv := false
	now := c.cfg.ticker().NowNanos()
	hash := util.HashKey(key)

	reentrant, _ := c.tbl.withBinLocked(hash, func(bin map[K]*entry[K, V]) error {
		if old, ok := bin[key]; ok && old.getState() == live {
			result = old.loadValue()
			return nil
		}
		v, ok := mapFn(key)
		if !ok {
			return nil
		}
		weight := c.weightOf(key, v)
		ne := newEntry(key, v, now, weight)
		c.applyCreateExpiry(ne, key, v)
		bin[key] = ne
		c.tbl.adjustAccounting(1, int64(weight))
		ev, haveEv = writeEvent[K, V]{kind: writeInsert, current: ne}, true
		result = v
		return nil
	})
	if reentrant {
		var zero V
		return zero, newIllegalState("ComputeIfAbsent called reentrantly on an already-held bin")
	}
	if haveEv {
		c.afterWrite(ev)
	}
	return result, nil
}

func (c *impl[K, V]) ComputeIfPresent(key K, remap func(key K, oldValue V) (V, bool)) (V, bool, error) {
	return c.Compute(key, func(key K, oldValue V, found bool) (V, bool) {
		if !found {
			var zero V
			return zero, false
		}
		return remap(key, oldValue)
	})
}

func (c *impl[K, V]) Merge(key K, value V, remap func(oldValue, newValue V) V) (V, error) {
	result, _, err := c.Compute(key, func(_ K, oldValue V, found bool) (V, bool) {
		if !found {
			return value, true
		}
		return remap(oldValue, value), true
	})
	return result, err
}

func (c *impl[K, V]) Size() int64 { return c.tbl.size() }

func (c *impl[K, V]) Invalidate(key K) { c.Remove(key) }

func (c *impl[K, V]) InvalidateAll(keys ...K) {
	if len(keys) == 0 {
		for _, e := range c.tbl.snapshot() {
			c.Remove(e.key)
		}
		return
	}
	for _, k := range keys {
		c.Remove(k)
	}
}

func (c *impl[K, V]) CleanUp() {
	c.maintenancePass()
}

func (c *impl[K, V]) Stats() Stats { return c.stats.snapshot() }

func (c *impl[K, V]) Keys() KeySet[K]              { return keySetView[K, V]{c} }
func (c *impl[K, V]) Values() ValueCollection[K, V] { return valueCollectionView[K, V]{c} }
func (c *impl[K, V]) Entries() EntrySet[K, V]       { return entrySetView[K, V]{c} }

// ---- LoadingCache[K,V] ----

func (c *impl[K, V]) Refresh(ctx context.Context, key K) {
	hash := util.HashKey(key)
	e, ok := c.tbl.get(hash, key)
	if !ok {
		if c.cfg.Loader == nil {
			return
		}
		c.cfg.executor().Execute(func() {
			if _, ok2 := c.tbl.get(hash, key); ok2 {
				return
			}
			start := c.cfg.ticker().NowNanos()
			v, err := c.cfg.Loader(ctx, key)
			dur := c.cfg.ticker().NowNanos() - start
			if err != nil {
				c.stats.recordLoadFailure(dur)
				c.log.RefreshLoadFailed(err)
				return
			}
			c.stats.recordLoadSuccess(dur)
			c.Put(key, v)
		})
		return
	}
	c.triggerRefresh(ctx, key, e)
}

// applyCreateExpiry sets e's variable-expiry deadline from
// Config.Expiry.CreateExpiry, if configured, for a key with no prior
// mapping.
func (c *impl[K, V]) applyCreateExpiry(e *entry[K, V], key K, value V) {
	if c.cfg.Expiry.CreateExpiry == nil {
		return
	}
	d := c.cfg.Expiry.CreateExpiry(key, value)
	if d < 0 {
		return
	}
	if int64(d) == math.MaxInt64 {
		e.varExpireNanos.Store(math.MaxInt64)
		return
	}
	e.varExpireNanos.Store(e.writeTimeNanos.Load() + int64(d))
}

// applyUpdateExpiry sets e's variable-expiry deadline from
// Config.Expiry.UpdateExpiry when an existing mapping for key is being
// overwritten. currentDuration is how much time old had left on its
// deadline as of e's write time; a negative return from UpdateExpiry
// means "leave the deadline unchanged", which here means carrying old's
// deadline forward onto the replacement entry verbatim, since e is a
// distinct object from old.
func (c *impl[K, V]) applyUpdateExpiry(e *entry[K, V], old *entry[K, V], key K, value V) {
	if c.cfg.Expiry.UpdateExpiry == nil {
		return
	}
	now := e.writeTimeNanos.Load()
	var current time.Duration
	if deadline := old.varExpireNanos.Load(); deadline > 0 {
		current = time.Duration(deadline - now)
	}
	d := c.cfg.Expiry.UpdateExpiry(key, value, current)
	if d < 0 {
		e.varExpireNanos.Store(old.varExpireNanos.Load())
		return
	}
	if int64(d) == math.MaxInt64 {
		e.varExpireNanos.Store(math.MaxInt64)
		return
	}
	e.varExpireNanos.Store(now + int64(d))
}
