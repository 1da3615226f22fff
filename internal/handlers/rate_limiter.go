package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/httpx"
)

const limiterIdleTTL = 10 * time.Minute

// WriteRateLimiter throttles mutating requests per client IP with token buckets. Reads pass through.
type WriteRateLimiter struct {
	limit rate.Limit
	burst int
	clock func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	lastScan time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewWriteRateLimiter allows perMinute writes per client with the given burst. It returns nil when
// perMinute is not positive, which disables limiting.
func NewWriteRateLimiter(perMinute, burst int, clock func() time.Time) *WriteRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &WriteRateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		clock:    clock,
		visitors: make(map[string]*visitor),
	}
}

// Allow consumes a token for the client key.
func (l *WriteRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.pruneLocked(now)
	return v.limiter.AllowN(now, 1)
}

func (l *WriteRateLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastScan) < limiterIdleTTL {
		return
	}
	l.lastScan = now
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > limiterIdleTTL {
			delete(l.visitors, key)
		}
	}
}

// Middleware rejects writes beyond the client's allowance with 429.
func (l *WriteRateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if !l.Allow(clientIP(r)) {
			retry := time.Duration(float64(time.Second) / float64(l.limit))
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds()+0.5)))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many cart updates; slow down", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
