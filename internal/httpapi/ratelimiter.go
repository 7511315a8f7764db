package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter enforces a maximum number of events within a time window.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	events []time.Time
}

// NewSlidingWindowLimiter constructs a limiter allowing up to limit events per window.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindowLimiter{window: window, limit: limit, now: timeSource}
}

func (l *SlidingWindowLimiter) disabled() bool {
	return l == nil || l.limit <= 0 || l.window <= 0
}

// Allow reports whether the caller may proceed under the current rate limits.
func (l *SlidingWindowLimiter) Allow() bool {
	if l.disabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.events) >= l.limit {
		return false
	}
	l.events = append(l.events, now)
	return true
}

// idle reports whether the window holds no events at now.
func (l *SlidingWindowLimiter) idle(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)
	return len(l.events) == 0
}

// prune must be called with mu held.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.events[:0]
	for _, ts := range l.events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.events = kept
}

// KeyedLimiter keeps one sliding window per client key. Windows that emptied
// out are evicted at most once per window.
type KeyedLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu        sync.Mutex
	keys      map[string]*SlidingWindowLimiter
	lastSweep time.Time
}

// NewKeyedLimiter constructs a per-key limiter allowing limit events per window.
func NewKeyedLimiter(window time.Duration, limit int, timeSource func() time.Time) *KeyedLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &KeyedLimiter{
		window: window,
		limit:  limit,
		now:    timeSource,
		keys:   make(map[string]*SlidingWindowLimiter),
	}
}

// Allow reports whether key may proceed.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		for k, limiter := range l.keys {
			if limiter.idle(now) {
				delete(l.keys, k)
			}
		}
		l.lastSweep = now
	}
	limiter, ok := l.keys[key]
	if !ok {
		limiter = NewSlidingWindowLimiter(l.window, l.limit, l.now)
		l.keys[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Len reports how many keys are currently tracked.
func (l *KeyedLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
