package rate

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter limits operations per key, such as a client IP
type Limiter interface {
	Allow(key string) (bool, error)
}

type localRateLimiter struct {
	limit rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocalRateLimiter returns an in memory Limiter allowing limit operations
// per second per key, with a burst of the same size
func NewLocalRateLimiter(limit rate.Limit) Limiter {
	return &localRateLimiter{
		limit:    limit,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *localRateLimiter) Allow(key string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		burst := int(l.limit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(l.limit, burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow(), nil
}

// NoLimiter never limits operations
type NoLimiter struct{}

func (n *NoLimiter) Allow(_ string) (bool, error) {
	return true, nil
}
