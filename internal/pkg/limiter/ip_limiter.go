/*
Package limiter rate-limits requests per client IP with token buckets.

Idle buckets are swept by Serve, which is meant to run under the process supervisor.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

// DefaultSweepInterval is how often Serve removes idle buckets.
const DefaultSweepInterval = 3 * time.Minute

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	name string

	mu     sync.RWMutex
	limits map[string]*rate.Limiter

	r rate.Limit
	b int

	sweepInterval time.Duration
}

// NewIPRateLimiter creates a limiter allowing r events per second with burst b per IP.
func NewIPRateLimiter(name string, r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		name:          name,
		limits:        make(map[string]*rate.Limiter),
		r:             r,
		b:             b,
		sweepInterval: DefaultSweepInterval,
	}
}

// GetLimiter returns the bucket for ip, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	l, ok := i.limits[ip]
	i.mu.RUnlock()
	if ok {
		return l
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if l, ok = i.limits[ip]; !ok {
		l = rate.NewLimiter(i.r, i.b)
		i.limits[ip] = l
	}
	return l
}

// Allow consumes one token from ip's bucket.
func (i *IPRateLimiter) Allow(ip string) bool {
	return i.GetLimiter(ip).Allow()
}

// Len returns the number of tracked IPs.
func (i *IPRateLimiter) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.limits)
}

// Sweep drops buckets that have refilled completely, i.e. IPs that went quiet.
func (i *IPRateLimiter) Sweep(now time.Time) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for ip, l := range i.limits {
		if l.TokensAt(now) >= float64(l.Burst()) {
			delete(i.limits, ip)
			removed++
		}
	}
	return removed
}

// Serve sweeps idle buckets until ctx is cancelled.
func (i *IPRateLimiter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(i.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			removed := i.Sweep(now)
			logx.Debug("Rate limiter sweep finished",
				"limiter", i.name, "removed", removed, "active", i.Len())
		}
	}
}

// String names the limiter for supervisor logs.
func (i *IPRateLimiter) String() string {
	return "limiter:" + i.name
}

// Middleware rejects requests over the limit with ErrRateLimitExceeded.
// Every onReject hook runs for each rejected request.
func (i *IPRateLimiter) Middleware(onReject ...func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !i.Allow(ip) {
				for _, fn := range onReject {
					fn(r)
				}
				logx.Warn("Request rejected: rate limit exceeded", "limiter", i.name, "ip", ip, "path", r.URL.Path)
				resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr. RealIP middleware should run first.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		return "unknown_ip"
	}
	return ip
}
