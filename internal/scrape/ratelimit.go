package scrape

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HostLimiter keeps one token bucket per host so that fetching a company's
// homepage and contact pages does not hammer a single site. A 429 halves
// that host's rate, down to a quarter of the initial rate.
type HostLimiter struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter allowing rps requests per second per
// host. rps <= 0 disables limiting.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{rps: rate.Limit(rps), burst: burst, limiters: map[string]*rate.Limiter{}}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until a request to rawURL's host is allowed or ctx ends.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h == nil || h.rps <= 0 {
		return nil
	}
	return h.limiter(hostOf(rawURL)).Wait(ctx)
}

// Backoff halves the host's rate after a rate-limit response.
func (h *HostLimiter) Backoff(rawURL string) {
	if h == nil || h.rps <= 0 {
		return
	}
	host := hostOf(rawURL)
	l := h.limiter(host)
	next := l.Limit() / 2
	if floor := h.rps / 4; next < floor {
		next = floor
	}
	l.SetLimit(next)
	zap.L().Warn("scrape: reducing host rate after 429",
		zap.String("host", host),
		zap.Float64("rps", float64(next)),
	)
}

// Limit returns the current rate for rawURL's host.
func (h *HostLimiter) Limit(rawURL string) rate.Limit {
	return h.limiter(hostOf(rawURL)).Limit()
}
