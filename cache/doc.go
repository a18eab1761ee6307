// Package cache provides a concurrent, policy-driven in-process cache: a
// thread-safe key/value map augmented with size- or weight-bounded
// eviction, multi-mode expiration, asynchronous refresh, and removal
// notification.
//
// Design
//
//   - Concurrency: the hash table substrate is a set of independently
//     lockable bins (table.go), grown cooperatively as load increases.
//     Reads never block on writes to other bins, but a read takes its
//     bin's mutex briefly and so waits for any operation holding that
//     bin, including a compute callback on another key; the compute family
//     (Compute/ComputeIfAbsent/ComputeIfPresent/Merge) holds a bin's lock
//     for the duration of the caller's function and rejects reentrant
//     calls into the same bin as IllegalState.
//
//   - Eviction: when MaximumSize or MaximumWeight is configured, a
//     window-TinyLFU admission policy (eviction.go, sketch.go) partitions
//     live entries into window/probation/protected regions and admits a
//     window overflow candidate over the probation victim when a
//     count-min frequency sketch estimates it as more valuable (and, with
//     a 1% chance, when the two estimates are equal).
//
//   - Expiration: ExpireAfterWrite and ExpireAfterAccess maintain simple
//     FIFO/LRU indices (expire_fixed.go); per-entry variable expiry (the
//     Expiry callbacks) is tracked in a hierarchical timer wheel
//     (timerwheel.go). All three modes may be active together.
//
//   - Maintenance: every read records an access into a striped ring
//     buffer, and every structural write enqueues an event onto an
//     unbounded MPSC write buffer (buffers.go); a single-owner drain
//     (drain.go) periodically folds both into the eviction/expiration
//     indices, runs eviction, and dispatches removal notifications. The
//     drain and the notifications run on the Executor when one is
//     configured; with a nil Executor they run inline on the writing
//     goroutine.
//
//   - Refresh: RefreshAfterWrite triggers a reload via Loader on the
//     Executor when a read observes a stale entry (refresh.go); concurrent
//     triggers for the same entry coalesce into a single in-flight load.
//     With an asynchronous Executor readers never block on it; with a nil
//     Executor the reload runs inline on the reading goroutine, which
//     still returns the stale value.
//
//   - Stats: RecordStats enables lock-free hit/miss/load/eviction
//     counters (stats.go), exportable as Prometheus metrics via
//     metrics/prom.
//
// Basic usage
//
//	c, err := cache.New[string, []byte](cache.Config[string, []byte]{MaximumSize: 10_000})
//	c.Put("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v // use value
//	}
//	c.Invalidate("a")
//
// With expiration
//
//	c, _ := cache.New[string, string](cache.Config[string, string]{
//	    ExpireAfterWrite: 200 * time.Millisecond,
//	})
//	c.Put("tmp", "v")
//	time.Sleep(300 * time.Millisecond)
//	_, ok := c.Get("tmp") // ok == false (expired)
//
// With read-through loading and refresh
//
//	lc, _ := cache.NewLoading[string, string](cache.Config[string, string]{
//	    MaximumSize:       1024,
//	    RefreshAfterWrite: time.Minute,
//	    Loader: func(ctx context.Context, k string) (string, error) {
//	        return "v:" + k, nil // e.g. fetch from a database
//	    },
//	})
//	v, err := lc.GetOrLoad(context.Background(), "key")
//
// Weight-bounded with a removal listener
//
//	c, _ := cache.New[string, []byte](cache.Config[string, []byte]{
//	    MaximumWeight: 1 << 20,
//	    Weigher:       func(_ string, v []byte) int { return len(v) },
//	    RemovalListener: func(k string, v []byte, cause cache.RemovalCause) {
//	        log.Printf("evicted %s: %s", k, cause)
//	    },
//	})
//
// Exporting metrics (Prometheus)
//
//	m := prom.New(nil, "concache", "demo", c) // c satisfies prom.StatsProvider
//
// Thread-safety & complexity
//
// All methods are safe for concurrent use by multiple goroutines. Get,
// Put, and the compute family are amortized O(1): a bin lookup plus
// constant-time list adjustments performed by the maintenance drain (on
// the Executor, or inline on the writing goroutine when none is
// configured). See cache/api.go for the full Cache and
// LoadingCache surface.
package cache
