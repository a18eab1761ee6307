package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/concache/internal/util"
	"golang.org/x/sync/errgroup"
)

// fakeTicker is a Ticker under the test's direct control, avoiding timing
// flakiness in expiry tests (mirrors the teacher's fakeClock in the
// original cache_test.go).
type fakeTicker struct{ t int64 }

func (f *fakeTicker) NowNanos() int64  { return f.t }
func (f *fakeTicker) add(d time.Duration) { f.t += int64(d) }

func TestCache_BasicPutGetRemove(t *testing.T) {
	t.Parallel()

	c, err := New[string, int](Config[string, int]{})
	if err != nil {
		t.Fatal(err)
	}

	if _, installed := c.PutIfAbsent("a", 1); !installed {
		t.Fatal("PutIfAbsent on fresh key must report installed=true")
	}
	if existing, installed := c.PutIfAbsent("a", 2); installed || existing != 1 {
		t.Fatalf("PutIfAbsent duplicate: want existing=1 installed=false, got %v/%v", existing, installed)
	}

	if prev, had := c.Put("a", 11); !had || prev != 1 {
		t.Fatalf("Put replace: want prev=1 had=true, got %v/%v", prev, had)
	}
	if v, ok := c.Get("a"); !ok || v != 11 {
		t.Fatalf("Get a: want 11, got %v ok=%v", v, ok)
	}

	if prev, removed := c.Remove("a"); !removed || prev != 11 {
		t.Fatalf("Remove a: want prev=11 removed=true, got %v/%v", prev, removed)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be absent after Remove")
	}
}

func TestCache_ReplaceAndExpectedVariants(t *testing.T) {
	t.Parallel()

	c, _ := New[string, int](Config[string, int]{})

	if _, replaced := c.Replace("missing", 1); replaced {
		t.Fatal("Replace on an absent key must fail")
	}
	c.Put("k", 1)
	if prev, replaced := c.Replace("k", 2); !replaced || prev != 1 {
		t.Fatalf("Replace: want prev=1 replaced=true, got %v/%v", prev, replaced)
	}

	if c.ReplaceExpected("k", 1, 3) {
		t.Fatal("ReplaceExpected with a stale expected value must fail")
	}
	if !c.ReplaceExpected("k", 2, 3) {
		t.Fatal("ReplaceExpected with the current value must succeed")
	}
	if v, _ := c.Get("k"); v != 3 {
		t.Fatalf("want 3 after ReplaceExpected, got %d", v)
	}

	if c.RemoveExpected("k", 999) {
		t.Fatal("RemoveExpected with a stale expected value must fail")
	}
	if !c.RemoveExpected("k", 3) {
		t.Fatal("RemoveExpected with the current value must succeed")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("k must be gone after RemoveExpected")
	}
}

func TestCache_ComputeFamily(t *testing.T) {
	t.Parallel()

	c, _ := New[string, int](Config[string, int]{})

	v, present, err := c.Compute("k", func(_ string, old int, found bool) (int, bool) {
		if found {
			t.Fatal("k should not be found yet")
		}
		return 10, true
	})
	if err != nil || !present || v != 10 {
		t.Fatalf("Compute insert: v=%d present=%v err=%v", v, present, err)
	}

	v, present, err = c.Compute("k", func(_ string, old int, found bool) (int, bool) {
		if !found || old != 10 {
			t.Fatalf("expected found=true old=10, got found=%v old=%d", found, old)
		}
		return old + 1, true
	})
	if err != nil || !present || v != 11 {
		t.Fatalf("Compute update: v=%d present=%v err=%v", v, present, err)
	}

	_, present, err = c.Compute("k", func(_ string, old int, found bool) (int, bool) {
		return 0, false // remove
	})
	if err != nil || present {
		t.Fatalf("Compute remove: present=%v err=%v", present, err)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("k must be gone after Compute removal")
	}

	cv, err := c.ComputeIfAbsent("a", func(string) (int, bool) { return 5, true })
	if err != nil || cv != 5 {
		t.Fatalf("ComputeIfAbsent insert: cv=%d err=%v", cv, err)
	}
	cv, err = c.ComputeIfAbsent("a", func(string) (int, bool) {
		t.Fatal("mapFn must not run when the key is already present")
		return -1, true
	})
	if err != nil || cv != 5 {
		t.Fatalf("ComputeIfAbsent no-op: cv=%d err=%v", cv, err)
	}

	pv, present, err := c.ComputeIfPresent("a", func(_ string, old int) (int, bool) { return old * 2, true })
	if err != nil || !present || pv != 10 {
		t.Fatalf("ComputeIfPresent: pv=%d present=%v err=%v", pv, present, err)
	}
	_, present, err = c.ComputeIfPresent("missing", func(_ string, old int) (int, bool) { return old, true })
	if err != nil || present {
		t.Fatalf("ComputeIfPresent on an absent key must report present=false, got %v/%v", present, err)
	}

	mv, err := c.Merge("a", 3, func(old, new int) int { return old + new })
	if err != nil || mv != 13 {
		t.Fatalf("Merge combine: mv=%d err=%v", mv, err)
	}
	mv, err = c.Merge("new-key", 7, func(old, new int) int { return old + new })
	if err != nil || mv != 7 {
		t.Fatalf("Merge insert: mv=%d err=%v", mv, err)
	}
}

func TestCache_ComputeIfAbsent_ReentrantIsIllegalState(t *testing.T) {
	t.Parallel()

	c, _ := New[string, int](Config[string, int]{})
	impl := c.(*impl[string, int])

	_, err := impl.ComputeIfAbsent("a", func(string) (int, bool) {
		_, innerErr := impl.ComputeIfAbsent("a", func(string) (int, bool) { return 2, true })
		if !IsIllegalState(innerErr) {
			t.Fatalf("reentrant ComputeIfAbsent must fail IsIllegalState, got %v", innerErr)
		}
		return 1, true
	})
	if err != nil {
		t.Fatalf("outer ComputeIfAbsent must succeed, got %v", err)
	}
}

// Reentering ComputeIfAbsent from within another key's ComputeIfAbsent
// callback, where both keys hash to the same table bin, must fail
// IllegalState — not just the same-key self-recursion case above. The
// map must be left exactly as it was before the outer call.
func TestCache_ComputeIfAbsent_CrossKeySameBinReentrantIsIllegalState(t *testing.T) {
	t.Parallel()

	c, _ := New[int, int](Config[int, int]{})
	impl := c.(*impl[int, int])

	k1 := 1
	var k2 int
	bin1, _ := impl.tbl.binFor(util.HashKey(k1))
	for candidate := 2; candidate < 100_000; candidate++ {
		bin2, _ := impl.tbl.binFor(util.HashKey(candidate))
		if bin2 == bin1 {
			k2 = candidate
			break
		}
	}
	if k2 == 0 {
		t.Fatal("could not find a second key colliding with k1's bin")
	}

	_, err := impl.ComputeIfAbsent(k1, func(int) (int, bool) {
		_, innerErr := impl.ComputeIfAbsent(k2, func(int) (int, bool) { return 20, true })
		if !IsIllegalState(innerErr) {
			t.Fatalf("cross-key reentrant ComputeIfAbsent on a colliding bin must fail IsIllegalState, got %v", innerErr)
		}
		return 10, true
	})
	if err != nil {
		t.Fatalf("outer ComputeIfAbsent must succeed, got %v", err)
	}
	if v, ok := c.Get(k1); !ok || v != 10 {
		t.Fatalf("outer key must be installed despite the inner failure, got %v/%v", v, ok)
	}
	if _, ok := c.Get(k2); ok {
		t.Fatal("the inner key must remain absent: the map is left as it was prior to the outer call")
	}
}

func TestCache_ExpireAfterWrite(t *testing.T) {
	t.Parallel()

	tk := &fakeTicker{}
	c, _ := New[string, string](Config[string, string]{
		ExpireAfterWrite: 100 * time.Millisecond,
		Ticker:           tk,
	})

	c.Put("x", "v")
	if _, ok := c.Get("x"); !ok {
		t.Fatal("fresh entry must be a hit")
	}
	tk.add(200 * time.Millisecond)
	if _, ok := c.Get("x"); ok {
		t.Fatal("entry past its ExpireAfterWrite deadline must be a miss")
	}
	c.CleanUp()
	if c.Size() != 0 {
		t.Fatalf("CleanUp must drop the expired entry, size=%d", c.Size())
	}
}

// expireAfterAccess=100ms, fake ticker. At t=0 Put(1,"A"); at t=50ms
// Get(1) returns "A"; at t=160ms Get(1) reports a miss and a listener
// observes (1, "A", EXPIRED) once CleanUp runs.
func TestCache_ExpireAfterAccess_NotifiesExactlyOnceOnMiss(t *testing.T) {
	t.Parallel()

	tk := &fakeTicker{}
	var lastKey int
	var lastValue string
	var lastCause RemovalCause
	var notified int64
	c, _ := New[int, string](Config[int, string]{
		ExpireAfterAccess: 100 * time.Millisecond,
		Ticker:            tk,
		RemovalListener: func(key int, value string, cause RemovalCause) {
			lastKey, lastValue, lastCause = key, value, cause
			atomic.AddInt64(&notified, 1)
		},
	})

	c.Put(1, "A")
	tk.add(50 * time.Millisecond)
	if v, ok := c.Get(1); !ok || v != "A" {
		t.Fatalf("at t=50ms Get(1) must hit with \"A\", got %q/%v", v, ok)
	}

	tk.add(110 * time.Millisecond) // now at t=160ms relative to the write
	if _, ok := c.Get(1); ok {
		t.Fatal("at t=160ms Get(1) must miss: it is past ExpireAfterAccess of its t=50ms access")
	}
	c.CleanUp()

	if atomic.LoadInt64(&notified) != 1 {
		t.Fatalf("want exactly one removal notification, got %d", notified)
	}
	if lastKey != 1 || lastValue != "A" || lastCause != EXPIRED {
		t.Fatalf("want (1, \"A\", EXPIRED), got (%d, %q, %v)", lastKey, lastValue, lastCause)
	}
	if c.Size() != 0 {
		t.Fatalf("the lazily-expired entry must actually leave the table, size=%d", c.Size())
	}
}

func TestCache_MaximumSizeEviction(t *testing.T) {
	t.Parallel()

	c, _ := New[int, int](Config[int, int]{MaximumSize: 4})
	for i := 0; i < 1000; i++ {
		c.Put(i, i)
		c.CleanUp()
	}
	if c.Size() > 4 {
		t.Fatalf("size must never exceed MaximumSize=4 after a CleanUp, got %d", c.Size())
	}
}

func TestCache_RemovalListenerReceivesEveryDeparture(t *testing.T) {
	t.Parallel()

	var removed int64
	c, _ := New[int, int](Config[int, int]{
		MaximumSize: 2,
		RemovalListener: func(key int, value int, cause RemovalCause) {
			atomic.AddInt64(&removed, 1)
		},
	})
	for i := 0; i < 50; i++ {
		c.Put(i, i)
		c.CleanUp()
	}
	// 50 distinct keys with MaximumSize=2: 48 of them are evicted.
	if got := atomic.LoadInt64(&removed); got != 48 {
		t.Fatalf("want one removal notification per evicted entry (48), got %d", got)
	}
}

func TestCache_GetOrLoad_Singleflight(t *testing.T) {
	t.Parallel()

	var calls int64
	c, _ := New[string, string](Config[string, string]{
		Loader: func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(5 * time.Millisecond)
			return "v:" + k, nil
		},
	})

	const n = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, err := c.GetOrLoad(ctx, "k")
			if err != nil {
				return err
			}
			if v != "v:k" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader must run exactly once, got %d", got)
	}

	if v, err := c.GetOrLoad(context.Background(), "k"); err != nil || v != "v:k" {
		t.Fatalf("second GetOrLoad failed: v=%q err=%v", v, err)
	}
}

func TestCache_GetOrLoad_NoLoaderIsLoaderFailure(t *testing.T) {
	t.Parallel()

	c, _ := New[string, string](Config[string, string]{})
	_, err := c.GetOrLoad(context.Background(), "k")
	if !IsLoaderFailure(err) {
		t.Fatalf("want IsLoaderFailure, got %v", err)
	}
}

func TestCache_StatsHitRate(t *testing.T) {
	t.Parallel()

	c, _ := New[string, int](Config[string, int]{RecordStats: true})
	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.HitCount != 2 || s.MissCount != 1 {
		t.Fatalf("want hits=2 misses=1, got hits=%d misses=%d", s.HitCount, s.MissCount)
	}
	if rate := s.HitRate(); rate < 0.66 || rate > 0.67 {
		t.Fatalf("want hit rate ~0.667, got %v", rate)
	}
}
