package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RemovalCause explains why an entry left the map. Every eviction produces
// exactly one removal notification carrying one of these causes.
type RemovalCause int

const (
	// EXPLICIT — the caller removed the entry via Invalidate/InvalidateAll.
	EXPLICIT RemovalCause = iota
	// REPLACED — the caller overwrote the entry with a new value.
	REPLACED
	// COLLECTED — reserved for weak/soft-reference collection; the core
	// holds only strong references, so this cause is never emitted today,
	// but stays part of the enumeration for parity with the rest of the
	// causes a Caffeine-style removal listener expects to see.
	COLLECTED
	// EXPIRED — the entry's deadline passed (fixed or variable expiry).
	EXPIRED
	// SIZE — the entry was evicted to satisfy maximumSize/maximumWeight.
	SIZE
)

func (c RemovalCause) String() string {
	switch c {
	case EXPLICIT:
		return "EXPLICIT"
	case REPLACED:
		return "REPLACED"
	case COLLECTED:
		return "COLLECTED"
	case EXPIRED:
		return "EXPIRED"
	case SIZE:
		return "SIZE"
	default:
		return "UNKNOWN"
	}
}

// wasEvicted reports whether the cause corresponds to an eviction, as
// opposed to an explicit caller-driven removal or a replace, the
// distinction Stats.EvictionCount relies on.
func (c RemovalCause) wasEvicted() bool {
	return c == SIZE || c == EXPIRED || c == COLLECTED
}

// Ticker is a monotonic nanosecond clock abstraction. A nil Ticker in
// Config defaults to a real-time source, mirroring the teacher's
// nil-is-valid Clock in the original shardcache Options.
type Ticker interface {
	NowNanos() int64
}

type realTicker struct{}

// tickerEpoch anchors realTicker: readings are on the Unix-nanosecond
// scale but advance by the monotonic clock, so wall-clock jumps do not
// move them.
var tickerEpoch = time.Now()

func (realTicker) NowNanos() int64 { return tickerEpoch.UnixNano() + int64(time.Since(tickerEpoch)) }

// Executor runs a task asynchronously. A nil Executor makes the drain and
// refresh paths run their work inline on the calling goroutine instead of
// handing it off.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(task func())

func (f ExecutorFunc) Execute(task func()) { f(task) }

// Scheduler arms a single-shot wakeup at an absolute deadline, on the same
// nanosecond scale as Ticker.NowNanos. Used by the maintenance drain to
// avoid purely lazy expiry when a Scheduler is available: after each
// pass the cache arms a wakeup for the earliest deadline any tracked
// entry could next reach. A nil Scheduler makes expiration strictly
// lazy, driven off reads observing a stale entry.
type Scheduler interface {
	ScheduleAt(deadlineNanos int64, task func()) (cancel func())
}

// Loader fetches a value for a key on a read-through miss, or to refresh a
// stale entry.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Weigher computes a non-negative cost for a key/value pair. When unset,
// every entry has weight 1.
type Weigher[K comparable, V any] func(key K, value V) int

// Expiry computes per-entry variable expiration deadlines.
// Each callback returns a duration from "now" until expiry; a negative
// duration means "leave the current deadline unchanged". The durations
// math.MaxInt64 and 0 mean "eternal" and "immediate" respectively.
type Expiry[K comparable, V any] struct {
	CreateExpiry func(key K, value V) time.Duration
	UpdateExpiry func(key K, value V, currentDuration time.Duration) time.Duration
	ReadExpiry   func(key K, value V, currentDuration time.Duration) time.Duration
}

func (e Expiry[K, V]) isZero() bool {
	return e.CreateExpiry == nil && e.UpdateExpiry == nil && e.ReadExpiry == nil
}

// RemovalListener observes every entry leaving the map exactly once, with
// the cause it left for.
type RemovalListener[K comparable, V any] func(key K, value V, cause RemovalCause)

// Config configures a Cache. The zero value is usable (unbounded, no
// expiration, no stats), in the same "zero value is safe" spirit as the
// teacher's Options[K,V].
type Config[K comparable, V any] struct {
	// MaximumSize bounds the number of live entries. 0 disables the bound.
	// Mutually exclusive with MaximumWeight.
	MaximumSize int64
	// MaximumWeight bounds the sum of entry weights. Requires Weigher.
	MaximumWeight int64
	// Weigher computes entry weight; required when MaximumWeight > 0.
	Weigher Weigher[K, V]

	// ExpireAfterWrite expires an entry a fixed duration after its last
	// write. 0 disables this mode.
	ExpireAfterWrite time.Duration
	// ExpireAfterAccess expires an entry a fixed duration after its last
	// read or write. 0 disables this mode.
	ExpireAfterAccess time.Duration
	// Expiry enables per-entry variable expiration, mutually compatible
	// with the two fixed modes above: the effective deadline is the
	// earliest of whichever modes are active.
	Expiry Expiry[K, V]

	// RefreshAfterWrite triggers an async reload via Loader when a read
	// observes an entry older than this threshold. 0 disables refresh.
	RefreshAfterWrite time.Duration
	// Loader backs read-through GetOrLoad and refresh-after-write.
	Loader Loader[K, V]

	// Executor runs maintenance drains and refresh loads. Nil means they
	// run inline on the calling goroutine.
	Executor Executor
	// Scheduler arms expiry wakeups. Nil means strictly lazy expiration.
	Scheduler Scheduler
	// Ticker is the monotonic time source. Nil uses a time.Now-based
	// source that advances by the monotonic clock.
	Ticker Ticker

	// RecordStats enables the lock-free Stats() counters.
	RecordStats bool
	// RemovalListener observes every entry leaving the map.
	RemovalListener RemovalListener[K, V]

	// Logger receives diagnostics for swallowed failures: removal-listener
	// panics and refresh-path loader failures. Nil disables internal
	// logging entirely.
	Logger *zerolog.Logger
}

func (c *Config[K, V]) ticker() Ticker {
	if c.Ticker == nil {
		return realTicker{}
	}
	return c.Ticker
}

func (c *Config[K, V]) executor() Executor {
	if c.Executor == nil {
		return ExecutorFunc(func(task func()) { task() })
	}
	return c.Executor
}

func (c *Config[K, V]) validate() error {
	if c.MaximumSize < 0 {
		return newInvalidArgument("MaximumSize must be >= 0")
	}
	if c.MaximumWeight < 0 {
		return newInvalidArgument("MaximumWeight must be >= 0")
	}
	if c.MaximumSize > 0 && c.MaximumWeight > 0 {
		return newInvalidArgument("MaximumSize and MaximumWeight are mutually exclusive")
	}
	if c.MaximumWeight > 0 && c.Weigher == nil {
		return newIllegalState("MaximumWeight configured without a Weigher")
	}
	if c.ExpireAfterWrite < 0 || c.ExpireAfterAccess < 0 || c.RefreshAfterWrite < 0 {
		return newInvalidArgument("durations must be >= 0")
	}
	return nil
}

func (c *Config[K, V]) bounded() bool {
	return c.MaximumSize > 0 || c.MaximumWeight > 0
}
