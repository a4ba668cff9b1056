package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/catalogsync-backend/api/responses"
	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

const (
	HeaderRateLimit          = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
)

type windowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy caps how many times one operator may hit one concrete
// path inside a fixed window. A zero window or limit turns it off.
type RateLimitPolicy struct {
	name   string
	window time.Duration
	limit  int64
}

func NewRateLimitPolicy(name string, window time.Duration, limit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "admin"
	}
	return RateLimitPolicy{name: name, window: window, limit: int64(limit)}
}

func (p RateLimitPolicy) off() bool {
	return p.window <= 0 || p.limit <= 0
}

// bucket names the counter for r. Two categories never share a bucket
// because the concrete path is part of it.
func (p RateLimitPolicy) bucket(r *http.Request) string {
	who := SubjectFromContext(r.Context())
	if who == "" {
		who = "ip:" + remoteHost(r)
	}
	return p.name + ":" + who + ":" + r.URL.Path
}

func (p RateLimitPolicy) retryAfter() string {
	secs := int(p.window.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// RateLimit throttles manual triggers, since every walk costs upstream
// storefront requests. Counter failures fail closed.
func RateLimit(policy RateLimitPolicy, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if policy.off() || counter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			bucket := policy.bucket(r)

			allowed, hits, err := counter.FixedWindowAllow(ctx, bucket, policy.limit, policy.window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count trigger"))
				return
			}

			remaining := policy.limit - hits
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set(HeaderRateLimit, strconv.FormatInt(policy.limit, 10))
			w.Header().Set(HeaderRateLimitRemaining, strconv.FormatInt(remaining, 10))

			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy": policy.name,
						"bucket": bucket,
						"hits":   hits,
						"limit":  policy.limit,
					}), "admin.trigger.throttled")
				}
				w.Header().Set("Retry-After", policy.retryAfter())
				responses.WriteError(ctx, nil, w, pkgerrors.Newf(pkgerrors.CodeRateLimit, "at most %d triggers per %s", policy.limit, policy.window))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// remoteHost reads RemoteAddr only; chi's RealIP runs ahead of this and
// has already applied the proxy headers.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return r.RemoteAddr
	}
	return host
}
