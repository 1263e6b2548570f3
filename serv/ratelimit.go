package serv

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	rateLimiterSize = 10000
	rateLimiterTTL  = 15 * time.Minute
)

// ipRateLimiter keeps one token bucket per client ip. Idle clients expire
// out of the LRU.
type ipRateLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	bucket   int
	header   string
}

func newIPRateLimiter(c RateLimiter) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](rateLimiterSize, nil, rateLimiterTTL),
		rate:     rate.Limit(c.Rate),
		bucket:   c.Bucket,
		header:   c.IPHeader,
	}
}

func (rl *ipRateLimiter) get(ip string) *rate.Limiter {
	if l, ok := rl.limiters.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(rl.rate, rl.bucket)
	rl.limiters.Add(ip, l)
	return l
}

func (rl *ipRateLimiter) clientIP(r *http.Request) string {
	if rl.header != "" {
		if ip := r.Header.Get(rl.header); ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (rl *ipRateLimiter) Handler(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if !rl.get(rl.clientIP(r)).Allow() {
			renderErr(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
