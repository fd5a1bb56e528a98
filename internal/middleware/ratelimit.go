package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dwrenner/clubdesk/internal/metrics"
	"github.com/dwrenner/clubdesk/internal/ratelimit"
)

// RealIP extracts the client's real IP address, preferring Cloudflare's
// CF-Connecting-IP header, then X-Forwarded-For, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit returns middleware that gates requests through the limiter by a
// key function. The limiter fails open: if it is unavailable the request is
// admitted and the outage logged, distinct from a rejection.
func RateLimit(limiter ratelimit.Limiter, keyFunc func(*http.Request) string, action string, rule ratelimit.Rule, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			res, err := limiter.Check(key, action, rule.Max, rule.Window)
			if err != nil {
				logger.Warn("rate limiter unavailable, failing open",
					"identifier", key, "action", action, "error", err)
				metrics.RateLimitFailOpen.Inc()
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				metrics.RateLimitRejections.WithLabelValues(action).Inc()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error":    "too many requests",
					"reset_at": res.ResetAt.UTC().Format(time.RFC3339),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
