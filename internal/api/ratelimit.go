// Per-client throttling for endpoints that start work on the server. Each
// live-view dial spins up a private world, so /ws sits behind this.
package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands each client IP its own token bucket: maxRate dials up
// front, refilled evenly over the window.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	every     rate.Limit
	burst     int
	idle      time.Duration // Buckets untouched this long are dropped
	lastSweep time.Time
	now       func() time.Time
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter allows maxRate requests per window and per IP.
func NewRateLimiter(maxRate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		every:   rate.Every(window / time.Duration(maxRate)),
		burst:   maxRate,
		idle:    2 * window,
		now:     time.Now,
	}
}

// bucket returns ip's limiter, creating it on first sight. Callers hold mu.
func (rl *RateLimiter) bucket(ip string, now time.Time) *rate.Limiter {
	if now.Sub(rl.lastSweep) >= rl.idle {
		rl.sweep(now)
	}
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(rl.every, rl.burst)}
		rl.clients[ip] = c
	}
	c.seen = now
	return c.lim
}

func (rl *RateLimiter) sweep(now time.Time) {
	for ip, c := range rl.clients {
		if now.Sub(c.seen) > rl.idle {
			delete(rl.clients, ip)
		}
	}
	rl.lastSweep = now
}

// Allow spends one token from ip's bucket if one is available.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	return rl.bucket(ip, now).AllowN(now, 1)
}

// RetryAfter is how long ip must wait for its next token. Unknown clients
// can go at once.
func (rl *RateLimiter) RetryAfter(ip string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		return 0
	}
	tokens := c.lim.TokensAt(rl.now())
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(rl.every) * float64(time.Second))
}

// clientIP prefers the first X-Forwarded-For hop, then the remote address
// without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware answers 429 with a Retry-After in whole seconds once
// the caller's bucket is empty.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			wait := int(math.Ceil(rl.RetryAfter(ip).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(1, wait)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
