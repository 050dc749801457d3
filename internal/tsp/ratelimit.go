package tsp

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter enforces a per-server call rate, so one misbehaving tool server
// cannot starve calls to the others.
type Limiter struct {
	ratePerSecond float64
	burst         int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiter creates a Limiter allowing ratePerSecond calls/sec per server
// with the given burst.
func NewLimiter(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{
		ratePerSecond: ratePerSecond,
		burst:         burst,
		limiters:      make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) forServer(serverID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[serverID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.ratePerSecond), l.burst)
		l.limiters[serverID] = lim
	}
	return lim
}

// Wait blocks until serverID's bucket admits one call, or ctx is done.
func (l *Limiter) Wait(ctx context.Context, serverID string) error {
	return l.forServer(serverID).Wait(ctx)
}
