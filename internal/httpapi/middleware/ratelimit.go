package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/codemate/internal/common"
	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per caller: the user id when the
// request is authenticated, the client IP otherwise.
type Limiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewLimiter(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *Limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		// sweep on insert so the map does not grow with one-off clients
		for k, old := range l.buckets {
			if now.Sub(old.seen) > l.idle {
				delete(l.buckets, k)
			}
		}
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if uid, ok := UserID(c); ok {
			key = "user:" + strconv.FormatUint(uid, 10)
		}
		if !l.allow(key) {
			c.Header("Retry-After", "1")
			common.Abort(c, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
