package gateway

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds its rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// rateLimiter implements sliding window rate limiting per request kind.
// Each bucket tracks timestamps of recent events within its window.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// newRateLimiter creates a limiter with per-minute buckets for turn
// ingestion and archive search. A limit of 0 leaves that kind unlimited.
func newRateLimiter(turnsPerMin, searchesPerMin int) *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	if turnsPerMin > 0 {
		rl.buckets["turn"] = &bucket{window: time.Minute, limit: turnsPerMin}
	}
	if searchesPerMin > 0 {
		rl.buckets["search"] = &bucket{window: time.Minute, limit: searchesPerMin}
	}
	return rl
}

// allow checks whether an event of the given kind is allowed.
// Returns nil if allowed, ErrRateLimited if the limit is exceeded.
func (rl *rateLimiter) allow(kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		// Unknown kind = no limit configured.
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}

	b.events = append(b.events, now)
	return nil
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	// Events are chronologically ordered.
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
