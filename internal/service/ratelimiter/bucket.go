package ratelimiter

import (
	"math"
	"sync"
	"time"
)

// bucket is one token window. All fields are guarded by the owning
// scopeState mutex so that multi-bucket admission stays atomic.
type bucket struct {
	window        time.Duration
	capacity      float64
	refillPerSec  float64
	tokens        float64
	lastRefill    time.Time
	cooldownUntil time.Time
}

func newBucket(limit int, window time.Duration, margin float64, now time.Time) *bucket {
	capacity := marginCapacity(limit, margin)
	return &bucket{
		window:       window,
		capacity:     capacity,
		refillPerSec: capacity / window.Seconds(),
		tokens:       capacity,
		lastRefill:   now,
	}
}

// marginCapacity applies the safety margin to a published limit, never
// dropping below a single token.
func marginCapacity(limit int, margin float64) float64 {
	c := math.Floor(float64(limit) * margin)
	if c < 1 {
		c = 1
	}
	return c
}

func (b *bucket) refill(now time.Time) {
	if now.Before(b.cooldownUntil) {
		// Forced empty until the server-given absolute time; no
		// accumulation while throttled.
		b.tokens = 0
		b.lastRefill = now
		return
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillPerSec)
	b.bounds()
	b.lastRefill = now
}

func (b *bucket) bounds() {
	if b.tokens < 0 {
		b.tokens = 0
	}
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// waitFor returns 0 when the bucket holds a token, else the time until it
// would. Callers must have called refill for the same now.
func (b *bucket) waitFor(now time.Time) time.Duration {
	if now.Before(b.cooldownUntil) {
		return b.cooldownUntil.Sub(now)
	}
	if b.tokens >= 1 {
		return 0
	}
	if b.refillPerSec <= 0 {
		return b.window
	}
	need := 1 - b.tokens
	return time.Duration(need / b.refillPerSec * float64(time.Second))
}

// resize applies a server-published limit to the bucket, clamping local
// tokens to what the server reports as still available.
func (b *bucket) resize(limit int, count int, margin float64) {
	b.capacity = marginCapacity(limit, margin)
	b.refillPerSec = b.capacity / b.window.Seconds()
	remaining := b.capacity - float64(count)
	if remaining < b.tokens {
		b.tokens = remaining
	}
	b.bounds()
}

func (b *bucket) forceEmpty(now, until time.Time) {
	b.tokens = 0
	b.lastRefill = now
	if until.After(b.cooldownUntil) {
		b.cooldownUntil = until
	}
}

// scopeState holds every bucket for one host scope: the application
// windows shared by all families, plus one method bucket per family.
type scopeState struct {
	mu      sync.Mutex
	app     []*bucket
	methods map[MethodFamily]*bucket

	qmu    sync.Mutex
	queues map[MethodFamily]*waitQueue
}

func (s *scopeState) queue(family MethodFamily) *waitQueue {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	q, ok := s.queues[family]
	if !ok {
		q = &waitQueue{}
		s.queues[family] = q
	}
	return q
}

// take attempts to admit one call for the family. Admission requires a
// token in every applicable bucket; on success all of them decrement in
// the same critical section. On refusal it returns the shortest wait
// across the unsatisfied buckets.
func (s *scopeState) take(now time.Time, family MethodFamily) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applicable := make([]*bucket, 0, len(s.app)+1)
	applicable = append(applicable, s.app...)
	if mb, ok := s.methods[family]; ok {
		applicable = append(applicable, mb)
	}

	admitted := true
	shortest := time.Duration(-1)
	for _, b := range applicable {
		b.refill(now)
		if w := b.waitFor(now); w > 0 {
			admitted = false
			if shortest < 0 || w < shortest {
				shortest = w
			}
		}
	}
	if !admitted {
		return false, shortest
	}
	for _, b := range applicable {
		b.tokens--
	}
	return true, 0
}

func (s *scopeState) forceEmptyAll(now, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.app {
		b.forceEmpty(now, until)
	}
	for _, b := range s.methods {
		b.forceEmpty(now, until)
	}
}

// waitQueue orders contenders for one (scope, family) key. Waiters are
// admitted head-first so one chatty caller cannot starve the rest.
type waitQueue struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

// enqueue registers a waiter and returns its turn channel. The channel
// receives once when the waiter reaches the head of the queue.
func (q *waitQueue) enqueue() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan struct{}, 1)
	q.waiters = append(q.waiters, ch)
	if len(q.waiters) == 1 {
		ch <- struct{}{}
	}
	return ch
}

// leave removes a waiter, whether it finished or gave up, and hands the
// head position to the next in line.
func (q *waitQueue) leave(ch chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w != ch {
			continue
		}
		wasHead := i == 0
		q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
		if wasHead && len(q.waiters) > 0 {
			select {
			case q.waiters[0] <- struct{}{}:
			default:
			}
		}
		return
	}
}

func (q *waitQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
