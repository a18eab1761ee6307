//go:build go1.18

package cache

import (
	"strings"
	"testing"
)

// Fuzz basic Put/Get/Remove semantics under arbitrary string inputs.
// Guards against panics and ensures core invariants hold.
func FuzzCache_PutGetRemove(f *testing.F) {
	f.Add("", "")
	f.Add("a", "1")
	f.Add("b", "2")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		c, _ := New[string, string](Config[string, string]{MaximumSize: 16})

		c.Put(k, v)
		got, ok := c.Get(k)
		if !ok || got != v {
			t.Fatalf("after Put/Get: want %q, got %q ok=%v", v, got, ok)
		}

		if _, installed := c.PutIfAbsent(k, "other"); installed {
			t.Fatalf("PutIfAbsent on an existing key returned installed=true")
		}
		if got2, ok := c.Get(k); !ok || got2 != v {
			t.Fatalf("after failed PutIfAbsent: want %q, got %q ok=%v", v, got2, ok)
		}

		if _, removed := c.Remove(k); !removed {
			t.Fatalf("Remove must return removed=true")
		}
		if _, ok := c.Get(k); ok {
			t.Fatalf("key must be absent after Remove")
		}

		if _, installed := c.PutIfAbsent(k, v); !installed {
			t.Fatalf("PutIfAbsent after Remove must return installed=true")
		}
	})
}
