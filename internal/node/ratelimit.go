package node

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	clientIdleTTL    = 10 * time.Minute
	clientSweepEvery = 5 * time.Minute
)

// clientBuckets holds one token bucket per client address. Submitting a
// transaction and polling for it both draw from the same bucket, so a
// client that polls too eagerly slows its own submissions.
type clientBuckets struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newClientBuckets(rps, burst int, now time.Time) *clientBuckets {
	return &clientBuckets{
		rps:       rate.Limit(rps),
		burst:     burst,
		buckets:   make(map[string]*bucket),
		lastSweep: now,
	}
}

// take spends one token for addr. When the bucket is empty it returns the
// time until the next token is available.
func (cb *clientBuckets) take(addr string, now time.Time) (bool, time.Duration) {
	cb.mu.Lock()
	if now.Sub(cb.lastSweep) > clientSweepEvery {
		for k, b := range cb.buckets {
			if now.Sub(b.lastSeen) > clientIdleTTL {
				delete(cb.buckets, k)
			}
		}
		cb.lastSweep = now
	}
	b, ok := cb.buckets[addr]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(cb.rps, cb.burst)}
		cb.buckets[addr] = b
	}
	b.lastSeen = now
	cb.mu.Unlock()

	if b.lim.AllowN(now, 1) {
		return true, 0
	}
	r := b.lim.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// RateLimiter limits each client address to rps requests per second with
// bursts of up to burst. Rejected requests get 429 with a Retry-After
// header in whole seconds.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	cb := newClientBuckets(rps, burst, time.Now())
	return func(c *gin.Context) {
		ok, wait := cb.take(c.ClientIP(), time.Now())
		if !ok {
			rateLimitedTotal.Inc()
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests from this client, slow down polling or submissions",
			})
			return
		}
		c.Next()
	}
}
