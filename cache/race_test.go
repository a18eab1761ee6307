package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A mixed workload of concurrent Put/Get/Remove/Compute on random keys.
// Should pass under `-race` without detector reports.
func TestRace_Basic(t *testing.T) {
	c, _ := New[string, []byte](Config[string, []byte]{
		MaximumSize:       8_192,
		ExpireAfterWrite:  50 * time.Millisecond,
		RecordStats:       true,
	})

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 50_000
	deadline := time.Now().Add(1 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Remove
					c.Remove(k)
				case 5, 6, 7, 8, 9: // ~5% — Compute
					c.Compute(k, func(_ string, old []byte, found bool) ([]byte, bool) {
						return []byte("x"), true
					})
				case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19: // ~10% — Put
					c.Put(k, []byte("x"))
				default: // ~80% — Get
					c.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()
	c.CleanUp()
}

// One hundred goroutines call GetOrLoad on the same key concurrently. The
// Loader should run at most once (singleflight coalescing).
func TestRace_GetOrLoad(t *testing.T) {
	var calls int64

	c, _ := New[string, string](Config[string, string]{
		MaximumSize: 1024,
		Loader: func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(2 * time.Millisecond)
			return "v:" + k, nil
		},
	})

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrLoad(context.Background(), key)
			if err != nil {
				t.Errorf("GetOrLoad error: %v", err)
				return
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got > 1 {
		t.Fatalf("loader should run at most once, got %d", got)
	}

	if v, err := c.GetOrLoad(context.Background(), key); err != nil || v != "v:"+key {
		t.Fatalf("second GetOrLoad failed: v=%q err=%v", v, err)
	}
}

// Concurrent ComputeIfAbsent calls on colliding keys must never deadlock:
// a goroutine reentering its own bin lock fails fast with IllegalState
// instead of blocking forever.
func TestRace_ComputeIfAbsentNoDeadlock(t *testing.T) {
	c, _ := New[int, int](Config[int, int]{MaximumSize: 256})

	var wg sync.WaitGroup
	for w := 0; w < 32; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := (id*31 + i) % 64
				_, _ = c.ComputeIfAbsent(key, func(k int) (int, bool) { return k, true })
			}
		}(w)
	}
	wg.Wait()
}
