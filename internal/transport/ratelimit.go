package transport

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff tuning for rate-limited hosts.
const (
	InitialBackoff        = 1 * time.Second
	MaxBackoff            = 60 * time.Second
	BackoffMultiplier     = 2.0
	BackoffCooldownPeriod = 5 * time.Minute
	// MinRPSMultiplier is the minimum rate reduction (0.25 = 25% of original)
	MinRPSMultiplier = 0.25
)

// BackoffState tracks rate limit backoff for a host.
type BackoffState struct {
	CurrentBackoff    time.Duration
	LastError         time.Time
	ConsecutiveErrors int
	OriginalRPS       float64
	ReducedRPS        float64 // 0 means the original rate is in effect
}

// RateLimiterConfig defines rate limiting behavior.
type RateLimiterConfig struct {
	// DefaultRPS applies to every host without a custom rate. 0 = unlimited.
	DefaultRPS float64
	// CustomRates maps host names to RPS values. 0 = unlimited for that host.
	CustomRates map[string]float64
	// EnableDynamicBackoff lowers a host's rate after 429/403/503 responses.
	EnableDynamicBackoff bool
}

// DefaultRateLimiterConfig returns a conservative 2.5 requests per second per
// host, in line with what YouTube tolerates for page and player requests.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultRPS:           2.5,
		CustomRates:          make(map[string]float64),
		EnableDynamicBackoff: true,
	}
}

// RateLimiter manages per-host request rate limiting using token buckets.
type RateLimiter struct {
	limiters     map[string]*rate.Limiter
	backoffState map[string]*BackoffState
	mu           sync.Mutex
	config       RateLimiterConfig
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.CustomRates == nil {
		cfg.CustomRates = make(map[string]float64)
	}
	return &RateLimiter{
		limiters:     make(map[string]*rate.Limiter),
		backoffState: make(map[string]*BackoffState),
		config:       cfg,
	}
}

// Wait blocks until the limiter for host admits a request or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil {
		return nil
	}
	limiter := rl.getLimiter(host)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (rl *RateLimiter) getLimiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rps := rl.getRPS(host)
	if rps == 0 {
		return nil
	}
	if limiter, ok := rl.limiters[host]; ok {
		return limiter
	}
	// Burst of 1 keeps requests evenly spaced
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[host] = limiter
	return limiter
}

// getRPS must be called with mu held.
func (rl *RateLimiter) getRPS(host string) float64 {
	if rps, ok := rl.config.CustomRates[host]; ok {
		return rps
	}
	return rl.config.DefaultRPS
}

// RecordRateLimitError records a throttling response for host and returns the
// recommended wait before the next request.
func (rl *RateLimiter) RecordRateLimitError(host string, retryAfter time.Duration) time.Duration {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		if retryAfter > 0 {
			return retryAfter
		}
		return InitialBackoff
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, exists := rl.backoffState[host]
	if !exists {
		state = &BackoffState{
			CurrentBackoff: InitialBackoff,
			OriginalRPS:    rl.getRPS(host),
		}
		rl.backoffState[host] = state
	}

	state.LastError = time.Now()
	state.ConsecutiveErrors++

	// 1s → 2s → 4s → ... → max
	if state.ConsecutiveErrors > 1 {
		state.CurrentBackoff = time.Duration(float64(state.CurrentBackoff) * BackoffMultiplier)
		if state.CurrentBackoff > MaxBackoff {
			state.CurrentBackoff = MaxBackoff
		}
	}
	if retryAfter > state.CurrentBackoff {
		state.CurrentBackoff = retryAfter
	}

	rl.reduceRate(host, state)
	return state.CurrentBackoff
}

// reduceRate must be called with mu held.
func (rl *RateLimiter) reduceRate(host string, state *BackoffState) {
	if state.OriginalRPS == 0 {
		return
	}
	// 1 error: 75%, 2 errors: 50%, 3+ errors: 25%
	factor := 0.75
	switch {
	case state.ConsecutiveErrors >= 3:
		factor = MinRPSMultiplier
	case state.ConsecutiveErrors == 2:
		factor = 0.5
	}
	state.ReducedRPS = state.OriginalRPS * factor

	if limiter, ok := rl.limiters[host]; ok {
		limiter.SetLimit(rate.Limit(state.ReducedRPS))
	}
}

// RecordSuccess records a successful request, restoring the original rate
// once the cooldown period has passed.
func (rl *RateLimiter) RecordSuccess(host string) {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, exists := rl.backoffState[host]
	if !exists {
		return
	}

	if time.Since(state.LastError) > BackoffCooldownPeriod {
		if limiter, ok := rl.limiters[host]; ok && state.ReducedRPS > 0 {
			limiter.SetLimit(rate.Limit(state.OriginalRPS))
		}
		delete(rl.backoffState, host)
		return
	}

	if state.ConsecutiveErrors > 0 {
		state.ConsecutiveErrors--
	}
}

// GetBackoffState returns a copy of the backoff state for host, or nil.
func (rl *RateLimiter) GetBackoffState(host string) *BackoffState {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if state, ok := rl.backoffState[host]; ok {
		cp := *state
		return &cp
	}
	return nil
}

// WaitForBackoff waits for the current backoff period of host to expire.
func (rl *RateLimiter) WaitForBackoff(ctx context.Context, host string) error {
	state := rl.GetBackoffState(host)
	if state == nil {
		return nil
	}

	remaining := state.CurrentBackoff - time.Since(state.LastError)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hostOf extracts the host name without port from a URL.
func hostOf(u *url.URL) string {
	if u == nil || u.Host == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(u.Host); err == nil {
		return host
	}
	return u.Host
}
