// Package ratelimit implements the per-source token bucket described in
// spec.md §4.1. Buckets live in a single process-wide map guarded by a
// mutex, so tryAcquire's refill-then-debit is a critical section under
// concurrent callers: no over-debit, no lost refill.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// bucket is the in-process token bucket state for one source.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	maxTokens  float64
	refillRate float64 // tokens per second
}

// Limiter owns the process-wide map of per-source buckets and a
// background sweeper that removes idle buckets.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	idleGC     time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopped    bool
}

// New creates a Limiter whose sweeper removes buckets idle for longer than
// idleGC (spec.md default: 60s). Call Close to stop the sweeper.
func New(idleGC time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		idleGC:  idleGC,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.idleGC)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-l.idleGC)
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, b := range l.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
}

// Close stops the background sweeper. Safe to call more than once; later
// calls do nothing.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.stop)
}

// InitBucket installs a full-capacity bucket for sourceID with the given
// max requests per second. An existing bucket with the same rate is kept
// as it is, so calling InitBucket before every TryAcquire does not refill
// it; an existing bucket with a different rate is replaced.
func (l *Limiter) InitBucket(sourceID string, maxRPS float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[sourceID]; ok && b.refillRate == maxRPS {
		return
	}
	l.buckets[sourceID] = &bucket{
		tokens:     maxRPS,
		lastRefill: l.now(),
		maxTokens:  maxRPS,
		refillRate: maxRPS,
	}
}

// TryAcquire refills sourceID's bucket based on elapsed time, then debits
// one token if available. Unknown source IDs are treated as unlimited and
// always return true.
func (l *Limiter) TryAcquire(sourceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[sourceID]
	if !ok {
		return true
	}

	l.refill(b)

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// GetWaitTime returns how long the caller should wait, in milliseconds,
// before sourceID's bucket is expected to have a token again. Returns 0 if
// a token is already available or the source is unknown.
func (l *Limiter) GetWaitTime(sourceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[sourceID]
	if !ok {
		return 0
	}

	l.refill(b)
	if b.tokens >= 1 {
		return 0
	}
	return int(math.Ceil(1000 / b.refillRate))
}

// refill applies floor(elapsed_seconds * refillRate) tokens, capped at
// maxTokens, and advances lastRefill. Must be called with l.mu held.
func (l *Limiter) refill(b *bucket) {
	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	added := math.Floor(elapsed * b.refillRate)
	if added > 0 {
		b.tokens = math.Min(b.maxTokens, b.tokens+added)
		b.lastRefill = now
	}
}

// Wait blocks until a token is available for sourceID or ctx is done,
// polling at the bucket's wait interval. Not used by the core pipeline
// (which short-circuits on denial per spec.md §4.10 step 3) but kept for
// callers that prefer to block rather than defer.
func (l *Limiter) Wait(ctx context.Context, sourceID string) error {
	for {
		if l.TryAcquire(sourceID) {
			return nil
		}
		wait := time.Duration(l.GetWaitTime(sourceID)) * time.Millisecond
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
