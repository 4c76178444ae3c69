package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// idleAfter is how long an untouched bucket is kept before it is evicted.
const idleAfter = 10 * time.Minute

type bucket struct {
	tokens float64
	seen   time.Time
}

// RateLimiter keeps one token bucket per client. Buckets hold up to burst
// tokens and refill continuously at rate tokens per second.
type RateLimiter struct {
	burst float64
	rate  float64

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func NewRateLimiter(burst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		burst:     float64(burst),
		rate:      perSecond,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// PerMinute allows bursts of perMinute requests, refilled evenly over a minute.
func PerMinute(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return NewRateLimiter(perMinute, float64(perMinute)/60)
}

// Take spends one token of key. It returns the whole tokens left and, when
// the bucket was empty, how long until the next token.
func (rl *RateLimiter) Take(key string) (remaining int, wait time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[key] = b
	}
	b.tokens = math.Min(rl.burst, b.tokens+now.Sub(b.seen).Seconds()*rl.rate)
	b.seen = now

	if b.tokens < 1 {
		if rl.rate <= 0 {
			return 0, idleAfter
		}
		return 0, time.Duration((1 - b.tokens) / rl.rate * float64(time.Second))
	}
	b.tokens--
	return int(b.tokens), 0
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < idleAfter {
		return
	}
	rl.lastSweep = now
	for k, b := range rl.buckets {
		if now.Sub(b.seen) > idleAfter {
			delete(rl.buckets, k)
		}
	}
}

// RateLimitMiddleware limits each authenticated user, or each client IP
// before authentication.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	limit := strconv.Itoa(int(rl.burst))
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id, ok := GetUserID(c); ok && id != uuid.Nil {
			key = "user:" + id.String()
		}

		remaining, wait := rl.Take(key)
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if wait > 0 {
			RespondErrorWithRetry(c, http.StatusTooManyRequests, ErrCodeRateLimited,
				"Too many requests, please try again later", int(wait.Milliseconds())+1)
			return
		}
		c.Next()
	}
}
