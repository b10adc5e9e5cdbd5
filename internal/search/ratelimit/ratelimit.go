package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter applies a token bucket per key, e.g. per client IP.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	requests int           // bucket size
	window   time.Duration // time to refill a full bucket
	done     chan struct{}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter allowing requests per window for each key.
func New(requests int, window time.Duration) *Limiter {
	l := &Limiter{
		limiters: make(map[string]*entry),
		requests: requests,
		window:   window,
		done:     make(chan struct{}),
	}

	// Start background cleanup
	go l.cleanup()

	return l
}

// Close stops the background cleanup goroutine.
func (l *Limiter) Close() {
	close(l.done)
}

// Allow reports whether a request for key may proceed and consumes a token.
func (l *Limiter) Allow(key string) bool {
	if l.requests <= 0 {
		return false
	}

	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.requests)), l.requests)}
		l.limiters[key] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// cleanup periodically removes stale limiters.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, e := range l.limiters {
				// Idle for 2x window means the bucket is full again.
				if now.Sub(e.lastSeen) > 2*l.window {
					delete(l.limiters, key)
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}
