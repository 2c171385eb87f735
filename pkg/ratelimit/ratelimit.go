package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/medgrid/clinic-scheduling/pkg/logger"
)

// Limiter throttles requests per client using token buckets. Each client
// gets its own bucket that refills continuously over the configured window.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
}

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// New creates a limiter allowing limit requests per window for each client.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
	}
}

// Allow reports whether the client identified by key may proceed, consuming
// one token when it may.
func (l *Limiter) Allow(key string) bool {
	b := l.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill)

	if elapsed >= l.window {
		b.tokens = l.limit
		b.lastRefill = now
	} else if added := int(elapsed.Nanoseconds() * int64(l.limit) / l.window.Nanoseconds()); added > 0 {
		b.tokens = minInt(b.tokens+added, l.limit)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the current token count and the configured limit for a client.
func (l *Limiter) Remaining(key string) (int, int) {
	b := l.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens, l.limit
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}
	b = &bucket{tokens: l.limit, lastRefill: time.Now()}
	l.buckets[key] = b
	return b
}

// prune drops buckets idle for more than a day so the map does not grow
// without bound across client churn.
func (l *Limiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-24 * time.Hour)
	for key, b := range l.buckets {
		b.mu.Lock()
		if b.lastRefill.Before(cutoff) {
			delete(l.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartPruning prunes idle buckets on the given interval until stop is closed.
func (l *Limiter) StartPruning(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.prune()
			case <-stop:
				return
			}
		}
	}()
}

// Middleware rejects requests over the limit with 429. Clients are keyed by
// source address, trusting X-Forwarded-For when a proxy sets it.
func (l *Limiter) Middleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !l.Allow(key) {
				log.WithField("client", key).Warn("Rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": "Too many requests",
					"code":  "RATE_LIMITED",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
