package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per key. Buckets idle longer than the idle TTL
// are dropped on the next sweep; a dropped bucket comes back full.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*entry
	idleTTL time.Duration
	swept   time.Time
	now     func() time.Time
}

func New() *Limiter { return NewWithIdle(10 * time.Minute) }

func NewWithIdle(idle time.Duration) *Limiter {
	return &Limiter{m: make(map[string]*entry), idleTTL: idle, now: time.Now}
}

// Allow spends one token of key's bucket. burst and perSecond only apply when the
// bucket is created.
func (l *Limiter) Allow(key string, burst, perSecond float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Limit(perSecond), int(math.Ceil(burst)))}
		l.m[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// Len reports how many buckets are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) sweep(now time.Time) {
	if l.idleTTL <= 0 || now.Sub(l.swept) < l.idleTTL {
		return
	}
	l.swept = now
	for k, e := range l.m {
		if now.Sub(e.seen) >= l.idleTTL {
			delete(l.m, k)
		}
	}
}
