package ratelimit

import (
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	pkgmyprom "example.com/multiping/pkg/myprom"
	pkgutils "example.com/multiping/pkg/utils"
)

type KeyFunc func(r *http.Request) string

func stripPort(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// ClientKey identifies the client of r by the IP of the TCP peer.
func ClientKey(r *http.Request) string {
	return stripPort(r.RemoteAddr)
}

// ForwardedClientKey trusts X-Forwarded-For and X-Real-Ip. Only use it behind a reverse
// proxy that overwrites those headers, anyone else can pick their own key.
func ForwardedClientKey(r *http.Request) string {
	remote := pkgutils.GetRemoteAddr(r)
	// X-Forwarded-For may carry a whole proxy chain, the client comes first
	remote, _, _ = strings.Cut(remote, ",")
	return stripPort(strings.TrimSpace(remote))
}

func markAsLimited(r *http.Request) {
	counterStore := pkgmyprom.FromContext(r.Context())
	if counterStore == nil {
		return
	}
	counterStore.NumRequestsLimited.WithLabelValues(r.URL.Path).Add(1.0)
}

// WithRateLimit answers 429 to clients that used up their quota in pool.
func WithRateLimit(originalHandler http.Handler, pool RateLimitPool, keyFunc KeyFunc, retryAfter time.Duration) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	retryAfterSecs := fmt.Sprintf("%d", int(math.Ceil(retryAfter.Seconds())))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := keyFunc(r)
		allowed, err := pool.Consume(r.Context(), key)
		if err != nil {
			log.Printf("failed to consume rate limit token for %s: %v", key, err)
			http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
			return
		}
		if !allowed {
			markAsLimited(r)
			w.Header().Set("Retry-After", retryAfterSecs)
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		originalHandler.ServeHTTP(w, r)
	})
}
