package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterMaxIdle       = 30 * time.Minute
)

// RateLimiter holds one token bucket per client IP
type RateLimiter struct {
	ips       map[string]*IPRateLimiter
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	mu        sync.Mutex
}

// IPRateLimiter holds the limiter for each IP
type IPRateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		ips:       make(map[string]*IPRateLimiter),
		rate:      r,
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// Allow reports whether ip may make a request now
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > limiterSweepInterval {
		rl.sweep(now)
	}

	limiter, exists := rl.ips[ip]
	if !exists {
		limiter = &IPRateLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.ips[ip] = limiter
	}
	limiter.lastSeen = now

	return limiter.limiter.AllowN(now, 1)
}

// sweep drops IPs that have been inactive for too long. Callers hold rl.mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for ip, limiter := range rl.ips {
		if now.Sub(limiter.lastSeen) > limiterMaxIdle {
			delete(rl.ips, ip)
		}
	}
	rl.lastSweep = now
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(ips *IPResolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(ips.ClientIP(r)) {
				SendErrorResponse(w, NewAPIError("Rate limit exceeded", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPResolver finds the client address of a request. Forwarding headers are
// only honoured when the direct peer is a trusted proxy.
type IPResolver struct {
	trusted map[string]bool
}

// NewIPResolver trusts the given proxy addresses
func NewIPResolver(trustedProxies ...string) *IPResolver {
	ir := &IPResolver{trusted: make(map[string]bool, len(trustedProxies))}
	for _, proxy := range trustedProxies {
		ir.trusted[normalizeIP(proxy)] = true
	}
	return ir
}

// ClientIP returns the address the rate limiter and access log key on
func (ir *IPResolver) ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	peer = normalizeIP(peer)
	if !ir.trusted[peer] {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// The first entry is the originating client
		ips := strings.Split(forwarded, ",")
		return normalizeIP(strings.TrimSpace(ips[0]))
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return normalizeIP(realIP)
	}
	return peer
}

func normalizeIP(s string) string {
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return s
}

// SecurityHeadersMiddleware sets defensive response headers and rejects
// traversal-looking paths.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "/.") {
			SendErrorResponse(w, NewAPIError("Invalid path", http.StatusBadRequest))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs every request at debug level
func LoggingMiddleware(log *zap.Logger, ips *IPResolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("Handled request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", ips.ClientIP(r)),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
