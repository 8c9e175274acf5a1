package coordinator

import (
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between events per key. Entries
// for idle keys are pruned lazily on Allow.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval, last: map[string]time.Time{}}
}

// Allow reports whether the key may act now, and if so records the action.
func (r *RateLimiter) Allow(key string) bool {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if at, ok := r.last[key]; ok && now.Sub(at) < r.interval {
		return false
	}
	r.last[key] = now
	if len(r.last) > 4096 {
		r.prune(now)
	}
	return true
}

// Forget drops the key's record, lifting the cooldown immediately.
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	delete(r.last, key)
	r.mu.Unlock()
}

func (r *RateLimiter) prune(now time.Time) {
	for k, at := range r.last {
		if now.Sub(at) >= r.interval {
			delete(r.last, k)
		}
	}
}
