package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRefresh_StaleReadTriggersAsyncReload(t *testing.T) {
	t.Parallel()

	tk := &fakeTicker{}
	var loads int64
	done := make(chan struct{}, 1)

	c, err := NewLoading[string, int](Config[string, int]{
		RefreshAfterWrite: 100 * time.Millisecond,
		Ticker:            tk,
		Loader: func(_ context.Context, k string) (int, error) {
			n := atomic.AddInt64(&loads, 1)
			done <- struct{}{}
			return int(n) * 100, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	c.Put("k", 1)
	tk.add(200 * time.Millisecond)

	v, ok := c.Get("k")
	if !ok || v != 1 {
		t.Fatalf("a stale read must still return the old value immediately, got %d/%v", v, ok)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh loader never ran")
	}

	if atomic.LoadInt64(&loads) != 1 {
		t.Fatalf("refresh loader must run exactly once, got %d", atomic.LoadInt64(&loads))
	}
	if v, _ := c.Get("k"); v != 100 {
		t.Fatalf("subsequent reads must observe the refreshed value, got %d", v)
	}
}

func TestRefresh_ConcurrentTriggersCoalesce(t *testing.T) {
	t.Parallel()

	tk := &fakeTicker{}
	var loads int64

	c, _ := NewLoading[string, int](Config[string, int]{
		RefreshAfterWrite: 10 * time.Millisecond,
		Ticker:            tk,
		Loader: func(_ context.Context, k string) (int, error) {
			atomic.AddInt64(&loads, 1)
			time.Sleep(20 * time.Millisecond)
			return 2, nil
		},
		Executor: ExecutorFunc(func(task func()) { go task() }),
	})

	c.Put("k", 1)
	tk.add(50 * time.Millisecond)

	for i := 0; i < 10; i++ {
		c.Refresh(context.Background(), "k")
	}
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt64(&loads); got != 1 {
		t.Fatalf("concurrent refresh triggers on the same entry must coalesce to one load, got %d", got)
	}
}

func TestRefresh_LoaderFailureKeepsStaleValue(t *testing.T) {
	t.Parallel()

	tk := &fakeTicker{}
	done := make(chan struct{}, 1)

	c, _ := NewLoading[string, int](Config[string, int]{
		RefreshAfterWrite: 10 * time.Millisecond,
		Ticker:            tk,
		Loader: func(_ context.Context, k string) (int, error) {
			defer func() { done <- struct{}{} }()
			return 0, errBoom
		},
	})

	c.Put("k", 7)
	tk.add(50 * time.Millisecond)
	c.Get("k")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh loader never ran")
	}

	if v, ok := c.Get("k"); !ok || v != 7 {
		t.Fatalf("a failed refresh must retain the stale value, got %d/%v", v, ok)
	}
}

var errBoom = &Error{Kind: LoaderFailure, Msg: "boom"}
