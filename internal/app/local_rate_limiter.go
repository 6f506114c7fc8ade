package app

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalRateLimiter is an in-process token bucket per scope and subject, used when
// Redis is not configured. Limits are per replica.
type LocalRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

func (l *LocalRateLimiter) ConsumeRateLimit(
	_ context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if l == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	now := l.now()
	limiter := l.limiter(scope+":"+subject, limit, window, now)

	if limiter.AllowN(now, 1) {
		used := limit - int(math.Floor(limiter.TokensAt(now)))
		if used < 1 {
			used = 1
		}
		return used, 0, nil
	}

	r := limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)

	retryAfter := int(math.Ceil(delay.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return limit + 1, retryAfter, nil
}

func (l *LocalRateLimiter) limiter(key string, limit int, window time.Duration, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}
