package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/RezaEskandarii/tickqueue/internal/constants"
)

// IdentifyFunc derives the caller identifier for a request.
type IdentifyFunc func(r *http.Request) string

type principalKey struct{}

// WithPrincipal records an identity that authentication has verified. Only
// values set this way are used as rate limit keys; request headers never are.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

func PrincipalFrom(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok && p != ""
}

// Identify keys on the verified principal, else the direct peer address.
// Forwarded headers are ignored; use NewIdentifier behind a proxy.
func Identify(r *http.Request) string {
	return NewIdentifier(nil)(r)
}

// NewIdentifier is Identify that also honours X-Forwarded-For and X-Real-IP
// when the direct peer is one of the trusted proxies.
func NewIdentifier(trusted []netip.Prefix) IdentifyFunc {
	return func(r *http.Request) string {
		if p, ok := PrincipalFrom(r.Context()); ok {
			return "principal:" + p
		}
		return "ip:" + ClientIP(r, trusted)
	}
}

// ClientIP returns the peer address of r. When that peer is a trusted proxy the
// X-Forwarded-For chain is walked from the right and the first untrusted hop
// wins, so a client cannot choose its own key by prepending entries.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := remoteHost(r.RemoteAddr)
	if !isTrusted(peer, trusted) {
		return peer
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !isTrusted(hop, trusted) {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware admits requests against b. Denied requests get 429 with
// Retry-After. If the counter fails the request is let through.
func Middleware(l *Limiter, b Bucket, identify IdentifyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if identify == nil {
		identify = Identify
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Check(r.Context(), identify(r), b)
			if err != nil {
				logger.Error("rate limit check failed", slog.String("bucket", b.Name), slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set(constants.HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
			h.Set(constants.HeaderRateLimitReset, strconv.FormatInt(res.ResetTime.Unix(), 10))

			if !res.Allowed {
				h.Set(constants.HeaderRetryAfter, strconv.Itoa(res.RetryAfterSeconds()))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":      "too many requests",
					"retryAfter": res.RetryAfterSeconds(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
