package cache

import (
	"time"

	"github.com/IvanBrykalov/concache/internal/util"
)

// afterWrite enqueues a structural-change event and schedules a
// maintenance drain. Write events are never dropped: this is the only
// producer side of the write buffer.
func (c *impl[K, V]) afterWrite(ev writeEvent[K, V]) {
	c.wrbuf.offer(ev)
	c.scheduleDrain()
}

// scheduleDrain implements the drain-status state machine: IDLE moves to
// REQUIRED and hands the pass to the configured Executor; REQUIRED means
// a pass is already queued; PROCESSING means a
// pass is running right now, so we just mark PROCESSING_TO_REQUIRED and
// let that running pass loop once more on our behalf instead of queuing a
// second, concurrent one.
func (c *impl[K, V]) scheduleDrain() {
	for {
		switch c.drainStatus.Load() {
		case drainIdle:
			if c.drainStatus.CompareAndSwap(drainIdle, drainRequired) {
				c.cfg.executor().Execute(c.maintenance)
				return
			}
		case drainRequired:
			return
		case drainProcessing:
			c.drainStatus.CompareAndSwap(drainProcessing, drainProcessingToRequired)
			return
		case drainProcessingToRequired:
			return
		default:
			return
		}
	}
}

// maintenance is the single-owner drain loop: at most one goroutine ever
// runs a pass at a time. A panic inside the pass is caught and logged
// rather than left to escape on an executor goroutine no caller is
// watching.
func (c *impl[K, V]) maintenance() {
	for {
		c.drainStatus.Store(drainProcessing)
		c.runMaintenancePassRecovered()
		if c.drainStatus.CompareAndSwap(drainProcessing, drainIdle) {
			return
		}
		// Another writer bumped us to PROCESSING_TO_REQUIRED while this
		// pass ran; loop and drain whatever arrived since.
	}
}

func (c *impl[K, V]) runMaintenancePassRecovered() {
	defer func() {
		if r := recover(); r != nil {
			c.log.DrainPanic(r)
		}
	}()
	c.runMaintenancePass()
}

// maintenancePass runs one pass synchronously on the calling goroutine,
// independent of the drain-status state machine — used by the public
// CleanUp(), which forces a pass, and by an armed Scheduler wakeup.
func (c *impl[K, V]) maintenancePass() {
	c.runMaintenancePassRecovered()
}

// runMaintenancePass drains pending accesses, drains pending writes,
// advances the expiration clock, enforces the eviction bound, grows the
// table if it has outgrown its load factor, and finally arms the next
// Scheduler wakeup.
func (c *impl[K, V]) runMaintenancePass() {
	now := c.cfg.ticker().NowNanos()

	c.rdbuf.drainAll(func(e *entry[K, V]) {
		if e.getState() != live {
			return
		}
		if c.admission != nil {
			c.admission.recordRead(e.key)
			c.admission.onAccess(e)
		}
		if c.accessIdx != nil {
			c.accessIdx.moveToBack(e)
		}
		if c.cfg.Expiry.ReadExpiry != nil {
			c.applyReadExpiry(e)
		}
	})

	for _, ev := range c.wrbuf.drainAll() {
		c.applyWriteEvent(ev, now)
	}

	c.advanceAndExpire(now)

	if c.admission != nil {
		c.admission.evict(c.currentUnits, func(victim *entry[K, V]) {
			c.finishEviction(victim, SIZE)
		})
	}

	c.tbl.maybeGrow()

	c.scheduleNextWakeup(now)
}

// scheduleNextWakeup arms cfg.Scheduler for the earliest moment some entry
// could newly qualify for expiration, canceling whatever wakeup it had
// armed from the previous pass. A nil Scheduler leaves expiration purely
// lazy, driven off Get observing a stale deadline.
func (c *impl[K, V]) scheduleNextWakeup(now int64) {
	if c.cfg.Scheduler == nil {
		return
	}
	deadline, ok := c.nextExpiryDeadline(now)

	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	if c.schedCancel != nil {
		c.schedCancel()
		c.schedCancel = nil
	}
	if !ok {
		return
	}
	c.schedCancel = c.cfg.Scheduler.ScheduleAt(deadline, c.maintenancePass)
}

// nextExpiryDeadline reports the earliest nanosecond timestamp at which an
// entry could newly become eligible for expiration, or false if nothing is
// currently tracked by any expiration mode. The fixed-expiration indices
// report their own earliest deadline exactly (their oldest entry expires
// first); the timer wheel, bucketed rather than sorted, only promises to
// report something as soon as its finest level next ticks over.
func (c *impl[K, V]) nextExpiryDeadline(now int64) (int64, bool) {
	have := false
	var earliest int64
	consider := func(d int64) {
		if !have || d < earliest {
			earliest, have = d, true
		}
	}
	if c.writeIdx != nil {
		if e := c.writeIdx.peekFront(); e != nil {
			consider(e.writeTimeNanos.Load() + int64(c.cfg.ExpireAfterWrite))
		}
	}
	if c.accessIdx != nil {
		if e := c.accessIdx.peekFront(); e != nil {
			consider(e.accessTimeNanos.Load() + int64(c.cfg.ExpireAfterAccess))
		}
	}
	if c.wheel != nil && c.wheel.hasScheduled() {
		consider(now + wheelSpans[0])
	}
	return earliest, have
}

// applyWriteEvent folds one write-buffer event into the drain-owned
// indices: detach whatever was displaced and dispatch its removal
// notification, then link in whatever is now resident.
//
// A given entry can reach here referenced by more than one event — two
// concurrent expired Gets on the same entry each enqueue their own
// removal, or a lazy expiry races an explicit Remove — so the detach/
// dispatch step is gated on a one-shot RETIRED→DEAD transition. Every
// path that produces a "previous" entry already retires it synchronously
// (table.put/replace/remove, or the tbl.remove call just below for the
// lazy-expiry producer), so whichever event gets here first wins the
// transition and every later one for the same entry is a no-op.
func (c *impl[K, V]) applyWriteEvent(ev writeEvent[K, V], now int64) {
	if ev.previous != nil {
		if ev.kind == writeRemove {
			// Explicit Remove/RemoveExpected/Compute-removal already took
			// the entry out of the table before enqueueing; this is the
			// lazy-expiry producer's deferred removal (enqueueRemove) and
			// is a harmless no-op if someone else already won the race.
			hash := util.HashKey(ev.previous.key)
			c.tbl.remove(hash, ev.previous.key, ev.previous)
		}
		if ev.previous.casState(retired, dead) {
			c.detachFromIndices(ev.previous)
			if ev.kind == writeRemove {
				if ev.cause.wasEvicted() {
					c.stats.recordEviction(ev.cause, ev.previous.weight)
				}
				c.dispatchRemoval(ev.previous, ev.cause)
			} else {
				c.dispatchRemoval(ev.previous, REPLACED)
			}
		}
	}
	if ev.current != nil {
		c.attachToIndices(ev.current, now)
	}
}

func (c *impl[K, V]) attachToIndices(e *entry[K, V], now int64) {
	if c.admission != nil {
		c.admission.onAdd(e)
	}
	if c.writeIdx != nil {
		c.writeIdx.pushBack(e)
	}
	if c.accessIdx != nil {
		c.accessIdx.pushBack(e)
	}
	if c.wheel != nil {
		c.wheel.schedule(now, e)
	}
}

func (c *impl[K, V]) detachFromIndices(e *entry[K, V]) {
	if c.admission != nil {
		c.admission.onRemove(e)
	}
	if c.writeIdx != nil {
		c.writeIdx.remove(e)
	}
	if c.accessIdx != nil {
		c.accessIdx.remove(e)
	}
	if c.wheel != nil {
		c.wheel.unschedule(e)
	}
}

// applyReadExpiry refreshes e's variable deadline from
// Config.Expiry.ReadExpiry after an access, rescheduling it on the timer
// wheel if the deadline moved.
func (c *impl[K, V]) applyReadExpiry(e *entry[K, V]) {
	current := e.varExpireNanos.Load() - e.accessTimeNanos.Load()
	d := c.cfg.Expiry.ReadExpiry(e.key, e.loadValue(), time.Duration(current))
	if d < 0 {
		return
	}
	e.varExpireNanos.Store(e.accessTimeNanos.Load() + int64(d))
	if c.wheel != nil {
		c.wheel.schedule(e.accessTimeNanos.Load(), e)
	}
}

// advanceAndExpire walks the fixed-expiration FIFO/LRU indices from their
// oldest end (they are kept in deadline order, so the first live entry
// that is not yet expired means every later entry isn't either) and
// cascades the timer wheel for variable expiry.
func (c *impl[K, V]) advanceAndExpire(now int64) {
	if c.writeIdx != nil {
		for e := c.writeIdx.peekFront(); e != nil; e = c.writeIdx.peekFront() {
			if now-e.writeTimeNanos.Load() < int64(c.cfg.ExpireAfterWrite) {
				break
			}
			c.writeIdx.remove(e)
			c.finishExpiry(e)
		}
	}
	if c.accessIdx != nil {
		for e := c.accessIdx.peekFront(); e != nil; e = c.accessIdx.peekFront() {
			if now-e.accessTimeNanos.Load() < int64(c.cfg.ExpireAfterAccess) {
				break
			}
			c.accessIdx.remove(e)
			c.finishExpiry(e)
		}
	}
	if c.wheel != nil {
		c.wheel.advance(now, func(e *entry[K, V]) {
			c.finishExpiry(e)
		})
	}
}

// finishExpiry removes an entry that a fixed or variable expiration index
// determined has passed its deadline: detach from whichever OTHER
// indices still reference it (the one that called us already removed
// it), drop it from the table, and dispatch EXPIRED.
func (c *impl[K, V]) finishExpiry(e *entry[K, V]) {
	hash := util.HashKey(e.key)
	removed, ok := c.tbl.remove(hash, e.key, e)
	if !ok {
		return // already replaced/removed by a concurrent writer
	}
	if c.admission != nil {
		c.admission.onRemove(removed)
	}
	if c.writeIdx != nil {
		c.writeIdx.remove(removed)
	}
	if c.accessIdx != nil {
		c.accessIdx.remove(removed)
	}
	if c.wheel != nil {
		c.wheel.unschedule(removed)
	}
	removed.setState(dead)
	c.stats.recordEviction(EXPIRED, removed.weight)
	c.dispatchRemoval(removed, EXPIRED)
}

// finishEviction removes a SIZE-bound victim the admission policy already
// unlinked from the eviction regions: drop it from the table and whatever
// fixed-expiration indices still reference it, then dispatch.
func (c *impl[K, V]) finishEviction(e *entry[K, V], cause RemovalCause) {
	hash := util.HashKey(e.key)
	removed, ok := c.tbl.remove(hash, e.key, e)
	if !ok {
		return
	}
	if c.writeIdx != nil {
		c.writeIdx.remove(removed)
	}
	if c.accessIdx != nil {
		c.accessIdx.remove(removed)
	}
	if c.wheel != nil {
		c.wheel.unschedule(removed)
	}
	removed.setState(dead)
	c.stats.recordEviction(cause, removed.weight)
	c.dispatchRemoval(removed, cause)
}

// enqueueRemove is the lazy-expiry producer side: Get() found e past its
// deadline and reported a miss immediately, but the actual table removal
// and notification happen on the drain so the read path stays wait-free.
func (c *impl[K, V]) enqueueRemove(e *entry[K, V], cause RemovalCause) {
	c.afterWrite(writeEvent[K, V]{kind: writeRemove, previous: e, cause: cause})
}

// dispatchRemoval runs the configured RemovalListener via the Executor
// (inline when none is configured), catching and logging a panicking
// listener instead of letting it take down the drain.
// Per-key ordering is real-time (the drain processes one key's write
// events in arrival order); no ordering is guaranteed across keys.
func (c *impl[K, V]) dispatchRemoval(e *entry[K, V], cause RemovalCause) {
	if c.cfg.RemovalListener == nil {
		return
	}
	key, value := e.key, e.loadValue()
	c.cfg.executor().Execute(func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.ListenerPanic(r)
			}
		}()
		c.cfg.RemovalListener(key, value, cause)
	})
}
