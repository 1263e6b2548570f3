package serv

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerIP(t *testing.T) {
	rl := newIPRateLimiter(RateLimiter{Rate: 0.001, Bucket: 2, IPHeader: "X-Forwarded-For"})

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := rl.Handler(ok)

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if ip != "" {
			req.Header.Set("X-Forwarded-For", ip)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2"))
	assert.Equal(t, http.StatusNoContent, call(""))
}

func TestRateLimiterClientIP(t *testing.T) {
	rl := newIPRateLimiter(RateLimiter{Rate: 1, Bucket: 1})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.7:5123"
	req.Header.Set("X-Real-IP", "10.1.1.1")
	assert.Equal(t, "192.168.1.7", rl.clientIP(req))

	rl.header = "X-Real-IP"
	assert.Equal(t, "10.1.1.1", rl.clientIP(req))
}
