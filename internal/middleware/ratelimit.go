package middleware

import (
	"context"
	"sync"
	"time"
)

// UserLimiter admits at most limit chat events per user in any sliding
// minute. resetAt is a Unix timestamp in seconds.
type UserLimiter interface {
	Check(ctx context.Context, userID string, limit int) (allowed bool, remaining int, resetAt int64)
}

// RateLimiter is the in-process UserLimiter used when Redis is not
// configured. Each user keeps the timestamps of admitted events inside the
// window; idle users are dropped once per window.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
	swept  time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		window: time.Minute,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
		swept:  time.Now(),
	}
}

var _ UserLimiter = (*RateLimiter)(nil)

func (rl *RateLimiter) Check(_ context.Context, userID string, limit int) (bool, int, int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	hits := prune(rl.hits[userID], now.Add(-rl.window))
	if len(hits) >= limit {
		rl.hits[userID] = hits
		return false, 0, hits[0].Add(rl.window).Unix()
	}

	hits = append(hits, now)
	rl.hits[userID] = hits
	return true, limit - len(hits), hits[0].Add(rl.window).Unix()
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.swept) < rl.window {
		return
	}
	rl.swept = now

	cutoff := now.Add(-rl.window)
	for user, hits := range rl.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(rl.hits, user)
		}
	}
}

// prune drops timestamps at or before cutoff. hits is in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
