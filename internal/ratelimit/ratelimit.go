// Package ratelimit provides the keyed inter-call delay used by the Stage-6
// scheduler to avoid bursting the Text/Illustrator/Analytics providers. The
// scheduler keys calls by service name only; no separate inter-slide delay
// is applied.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles calls keyed by an arbitrary key (typically a service
// name). Implementations must be safe for concurrent use.
type Limiter interface {
	// Wait blocks until a call keyed by key is permitted or ctx is done.
	Wait(ctx context.Context, key string) error
}

// Local is a process-local Limiter backed by one golang.org/x/time/rate
// token bucket per key, each allowing one event every interval.
type Local struct {
	mu       sync.Mutex
	interval rate.Limit
	burst    int
	buckets  map[string]*rate.Limiter
}

// NewLocal returns a Local limiter permitting one call every interval (as a
// rate.Limit, e.g. rate.Every(2*time.Second)) per key, with the given burst.
func NewLocal(interval rate.Limit, burst int) *Local {
	if burst < 1 {
		burst = 1
	}
	return &Local{interval: interval, burst: burst, buckets: make(map[string]*rate.Limiter)}
}

// Wait implements Limiter.
func (l *Local) Wait(ctx context.Context, key string) error {
	return l.bucketFor(key).Wait(ctx)
}

func (l *Local) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.interval, l.burst)
		l.buckets[key] = b
	}
	return b
}

var _ Limiter = (*Local)(nil)
