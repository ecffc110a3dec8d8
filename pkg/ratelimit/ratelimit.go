package ratelimit

import (
	"sync"
	"time"
)

type Limiter struct {
	mu      sync.RWMutex
	limits  map[string][]time.Time
	window  time.Duration
	maxHits int
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		limits:  make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
	}
}

// Allow records a hit for key and reports whether it stays within the
// window's budget.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.window)

	// Clean old entries
	if hits, exists := l.limits[key]; exists {
		valid := hits[:0]
		for _, hit := range hits {
			if hit.After(windowStart) {
				valid = append(valid, hit)
			}
		}
		l.limits[key] = valid
	}

	// Check current count
	if len(l.limits[key]) >= l.maxHits {
		return false
	}

	// Add new hit
	l.limits[key] = append(l.limits[key], now)
	return true
}

// RetryAfter reports how long key must wait before Allow can succeed again.
// It returns zero while the key is under its budget.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := time.Now()
	windowStart := now.Add(-l.window)

	// Hits are appended in time order, so the first one inside the window
	// is the oldest that still counts.
	valid := 0
	var oldest time.Time
	for _, hit := range l.limits[key] {
		if hit.After(windowStart) {
			if valid == 0 {
				oldest = hit
			}
			valid++
		}
	}

	if valid < l.maxHits {
		return 0
	}
	return oldest.Add(l.window).Sub(now)
}
