package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultIdle is how long an unused key keeps its bucket.
const defaultIdle = 10 * time.Minute

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter holds one token bucket per key: per symbol for ingest, per client
// address for the API.
type Limiter struct {
	mu        sync.Mutex
	m         map[string]*entry
	now       func() time.Time
	idle      time.Duration
	lastSweep time.Time
}

func New() *Limiter { return NewWithClock(time.Now) }

func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{m: make(map[string]*entry), now: now, idle: defaultIdle}
}

// Allow consumes one token for key. A new key starts with a full bucket of
// capacity tokens refilled at refillPerSec; later calls keep the first settings.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.m[key]
	if !ok {
		burst := int(capacity)
		if burst < 1 {
			burst = 1
		}
		e = &entry{lim: rate.NewLimiter(rate.Limit(refillPerSec), burst)}
		l.m[key] = e
	}
	e.seen = now
	allowed := e.lim.AllowN(now, 1)

	if now.Sub(l.lastSweep) >= l.idle {
		l.sweepLocked(now)
	}
	return allowed
}

func (l *Limiter) sweepLocked(now time.Time) {
	l.lastSweep = now
	for k, e := range l.m {
		if now.Sub(e.seen) > l.idle {
			delete(l.m, k)
		}
	}
}

// Forget drops the bucket of key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.m, key)
	l.mu.Unlock()
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
