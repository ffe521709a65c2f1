package api

import (
	"os"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// TenantLimiter throttles calculation endpoints per tenant.
type TenantLimiter struct {
	rps   rate.Limit
	burst int

	mu sync.Mutex
	m  map[string]*rate.Limiter
}

// NewTenantLimiterFromEnv reads RATE_RPS / RATE_BURST.
// RATE_RPS=0 disables limiting.
func NewTenantLimiterFromEnv() *TenantLimiter {
	rps := 50.0
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			rps = f
		}
	}
	burst := 100
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return &TenantLimiter{rps: rate.Limit(rps), burst: burst, m: map[string]*rate.Limiter{}}
}

// Allow reports whether the tenant may run one more calculation now.
func (l *TenantLimiter) Allow(tenant string) bool {
	if l == nil || l.rps == 0 {
		return true
	}
	l.mu.Lock()
	lim := l.m[tenant]
	if lim == nil {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.m[tenant] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
