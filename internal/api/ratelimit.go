package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Buckets for IPs that have gone quiet are dropped opportunistically: every
// limiterPruneInterval the next allow call sweeps out entries idle longer
// than limiterStaleAfter, so no background goroutine is needed.
const (
	limiterPruneInterval = 5 * time.Minute
	limiterStaleAfter    = 10 * time.Minute
)

// ipLimiter hands every client IP its own token bucket.
type ipLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	rate      rate.Limit
	burst     int
	lastPrune time.Time
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter creates a limiter that refills ratePerSec tokens per second
// into a bucket of the given burst capacity, per client IP.
func newIPLimiter(ratePerSec float64, burst int) *ipLimiter {
	return &ipLimiter{
		buckets:   make(map[string]*ipBucket),
		rate:      rate.Limit(ratePerSec),
		burst:     burst,
		lastPrune: time.Now(),
	}
}

// allow reports whether the IP still has a token, consuming one if so.
// A first-seen IP gets a full bucket.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastPrune) > limiterPruneInterval {
		l.prune(now)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now

	return b.limiter.Allow()
}

// prune drops buckets idle longer than limiterStaleAfter. Caller holds l.mu.
func (l *ipLimiter) prune(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterStaleAfter {
			delete(l.buckets, ip)
		}
	}
	l.lastPrune = now
}

// rateLimitMiddleware rejects requests from IPs with an empty bucket.
func rateLimitMiddleware(l *ipLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !l.allow(ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the address a request is bucketed under.
//
// Proxy headers are only honored when trustProxy is set, and only when they
// parse as real IPs, so clients behind a direct exposure cannot pick their
// own bucket key. X-Real-IP wins over X-Forwarded-For; the first entry of a
// forwarded chain is the original client.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
				return ip.String()
			}
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			raw := xff
			if first, _, ok := strings.Cut(xff, ","); ok {
				raw = first
			}
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
