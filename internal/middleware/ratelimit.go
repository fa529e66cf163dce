package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cortexai/finops-insight/internal/models"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per authenticated caller or client
// address. A
// bucket holds limitPerMinute tokens and refills over one minute.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   int
	every   rate.Limit
}

func NewRateLimiter(limitPerMinute int) *RateLimiter {
	if limitPerMinute < 1 {
		limitPerMinute = 1
	}
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   limitPerMinute,
		every:   rate.Every(time.Minute / time.Duration(limitPerMinute)),
	}
}

// cleanup drops buckets idle longer than the refill period
func (rl *RateLimiter) cleanup(now time.Time) {
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) > time.Minute {
			delete(rl.clients, key)
		}
	}
}

// Allow takes one token for key. remaining is the whole tokens left.
func (rl *RateLimiter) Allow(key string) (remaining int, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	c, found := rl.clients[key]
	if !found {
		if len(rl.clients) > 10000 {
			rl.cleanup(now)
		}
		c = &client{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	ok = c.limiter.AllowN(now, 1)
	return int(math.Max(0, math.Floor(c.limiter.TokensAt(now)))), ok
}

// RateLimit must run after Auth so that only verified keys get their own
// bucket. Unauthenticated requests share the bucket of their address.
func RateLimit(limitPerMinute int) func(http.Handler) http.Handler {
	rl := NewRateLimiter(limitPerMinute)
	limit := strconv.Itoa(rl.limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := Caller(r.Context())
			if key == "" {
				key = r.RemoteAddr
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					key = host
				}
			}

			remaining, ok := rl.Allow(key)

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				w.Header().Set("Retry-After", "60")
				models.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
