package devapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/auth"
)

// RateLimit configures the per-user token bucket. A zero Burst disables limiting.
type RateLimit struct {
	PerMinute int // sustained requests per minute
	Burst     int // bucket capacity
}

type bucket struct {
	tokens float64
	last   time.Time
}

// limiter refills each user's bucket continuously at PerMinute/60 tokens per second
type limiter struct {
	cfg  RateLimit
	rate float64
	now  func() time.Time

	mu      sync.Mutex
	buckets map[int64]*bucket
}

func newLimiter(cfg RateLimit) *limiter {
	return &limiter{
		cfg:     cfg,
		rate:    float64(cfg.PerMinute) / 60,
		now:     time.Now,
		buckets: make(map[int64]*bucket),
	}
}

// take consumes a token for user. When none is left it returns the wait until the next one.
func (l *limiter) take(user int64) (remaining int, wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, found := l.buckets[user]
	if !found {
		b = &bucket{tokens: float64(l.cfg.Burst), last: now}
		l.buckets[user] = b
	}

	b.tokens = math.Min(float64(l.cfg.Burst), b.tokens+now.Sub(b.last).Seconds()*l.rate)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return int(b.tokens), 0, true
	}
	if l.rate <= 0 {
		return 0, time.Minute, false
	}
	return 0, time.Duration((1 - b.tokens) / l.rate * float64(time.Second)), false
}

// sweep forgets buckets idle for longer than idle
func (l *limiter) sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	for user, b := range l.buckets {
		if b.last.Before(cutoff) {
			delete(l.buckets, user)
		}
	}
}

// RateLimitMiddleware answers 429 with Retry-After once a caller has used up
// their bucket. It must run after Middleware so the caller is known.
func RateLimitMiddleware(cfg RateLimit) func(http.Handler) http.Handler {
	if cfg.Burst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(cfg)
	go func() {
		for range time.Tick(10 * time.Minute) {
			l.sweep(time.Hour)
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			remaining, wait, allowed := l.take(id.ID)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.PerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				retryAfter := max(int(math.Ceil(wait.Seconds())), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				log.Ctx(r.Context()).Warn().
					Int64("userId", id.ID).
					Int("retryAfter", retryAfter).
					Msg("rate limit exceeded")
				writeError(w, http.StatusTooManyRequests,
					fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds.", retryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
