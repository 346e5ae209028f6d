// Package ratelimit implements the per-source-address token-bucket limiter
// (spec §4.4). It must survive scanning/flood traffic without unbounded
// memory growth, so idle buckets are swept on a wallclock interval rather
// than pinned forever.
//
// The per-address refill/consume math itself is golang.org/x/time/rate's
// token bucket (see DESIGN.md); what this package adds on top is the
// concurrent address->bucket map and the idle-bucket eviction sweep,
// neither of which x/time/rate provides on its own.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRate is the default steady-state refill rate, tokens/second.
	DefaultRate = 10.0
	// DefaultBurst is the default bucket capacity.
	DefaultBurst = 20.0
	// CleanupInterval is both the sweep cadence and the idle threshold
	// past which a bucket is evicted (spec §4.4).
	CleanupInterval = 60 * time.Second
)

// bucket pairs an x/time/rate token bucket with the last-access timestamp
// the cleanup sweep needs; rate.Limiter is already safe for concurrent use,
// so only lastAccess needs its own synchronization.
type bucket struct {
	lim        *rate.Limiter
	lastAccess atomic.Int64 // unix nanoseconds
}

func newBucket(capacity, refillRate float64, now time.Time) *bucket {
	b := &bucket{lim: rate.NewLimiter(rate.Limit(refillRate), int(capacity))}
	b.lastAccess.Store(now.UnixNano())
	return b
}

// tryAcquire consumes one token if available, at the given instant. Backed
// entirely by rate.Limiter's own locking.
func (b *bucket) tryAcquire(now time.Time) bool {
	b.lastAccess.Store(now.UnixNano())
	return b.lim.AllowN(now, 1)
}

func (b *bucket) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, b.lastAccess.Load()))
}

// Limiter maps source address to an independent token bucket. The bucket
// map (sync.Map) tolerates concurrent insert/get without an external lock;
// each bucket's refill/consume is serialized by its own rate.Limiter's
// internal lock (§5).
type Limiter struct {
	buckets   sync.Map // string -> *bucket
	rate      float64
	burst     float64
	lastSweep atomic.Int64 // unix nanoseconds
}

// New creates a limiter with the given steady-state refill rate
// (tokens/sec) and burst capacity. A refillRate or burst ≤ 0 falls back to
// the package defaults.
func New(refillRate, burst float64) *Limiter {
	if refillRate <= 0 {
		refillRate = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	l := &Limiter{rate: refillRate, burst: burst}
	l.lastSweep.Store(time.Now().UnixNano())
	return l
}

// Allow reports whether a request from addr may proceed, consuming one
// token if so. addr should be a stable per-source key (e.g. the UDP
// source IP:port string).
func (l *Limiter) Allow(addr string) bool {
	now := time.Now()
	l.maybeSweep(now)

	v, _ := l.buckets.LoadOrStore(addr, newBucket(l.burst, l.rate, now))
	b := v.(*bucket)
	return b.tryAcquire(now)
}

// maybeSweep runs the idle-bucket GC at most once per CleanupInterval,
// regardless of how many goroutines call Allow concurrently.
func (l *Limiter) maybeSweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.Sub(time.Unix(0, last)) < CleanupInterval {
		return
	}
	if !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return // another goroutine is already sweeping
	}

	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		if b.idleSince(now) > CleanupInterval {
			l.buckets.Delete(key)
		}
		return true
	})
}

// Len reports the current number of tracked buckets, for tests/metrics.
func (l *Limiter) Len() int {
	n := 0
	l.buckets.Range(func(_, _ any) bool { n++; return true })
	return n
}
