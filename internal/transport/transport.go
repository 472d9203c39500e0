// Package transport provides the HTTP plumbing used by the native YouTube
// backend: per-host rate limiting with dynamic backoff and a circuit breaker,
// packaged as an http.RoundTripper.
package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests. 0 means no client timeout.
	Timeout time.Duration
	// UserAgent is set on requests that do not carry one.
	UserAgent string
	// RateLimiter configures per-host pacing.
	RateLimiter RateLimiterConfig
	// CircuitBreaker configures per-host failure isolation.
	CircuitBreaker CircuitBreakerConfig
	// Base is the underlying transport. Defaults to a tuned *http.Transport.
	Base http.RoundTripper
	// Logger receives throttling and circuit events.
	Logger *zerolog.Logger
}

// DefaultConfig returns sensible defaults for talking to YouTube.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		UserAgent:      "ytcatalog/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// RoundTripper paces requests per host, fails fast for hosts whose circuit
// is open, and feeds throttling responses back into both.
type RoundTripper struct {
	base           http.RoundTripper
	userAgent      string
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	logger         zerolog.Logger
}

// NewRoundTripper builds a RoundTripper from cfg.
func NewRoundTripper(cfg Config) *RoundTripper {
	base := cfg.Base
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &RoundTripper{
		base:           base,
		userAgent:      cfg.UserAgent,
		rateLimiter:    NewRateLimiter(cfg.RateLimiter),
		circuitBreaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:         logger,
	}
}

// NewClient returns an *http.Client using a RoundTripper built from cfg.
func NewClient(cfg Config) *http.Client {
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: NewRoundTripper(cfg),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := hostOf(req.URL)

	if err := t.circuitBreaker.Allow(host); err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}
	if err := t.rateLimiter.WaitForBackoff(ctx, host); err != nil {
		return nil, err
	}
	if err := t.rateLimiter.Wait(ctx, host); err != nil {
		return nil, err
	}

	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if ctx.Err() == nil {
			t.circuitBreaker.RecordFailure(host, err)
		}
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusServiceUnavailable ||
		resp.StatusCode == http.StatusForbidden:
		retryAfter := parseRetryAfter(resp.Header)
		backoff := t.rateLimiter.RecordRateLimitError(host, retryAfter)
		rlErr := &RateLimitError{
			StatusCode:     resp.StatusCode,
			RetryAfter:     backoff,
			IsBotDetection: resp.StatusCode == http.StatusForbidden,
		}
		t.circuitBreaker.RecordFailure(host, rlErr)
		t.logger.Warn().Str("host", host).Int("status", resp.StatusCode).
			Dur("backoff", backoff).Msg("request throttled")
	case resp.StatusCode >= 500:
		t.circuitBreaker.RecordFailure(host, &HTTPError{StatusCode: resp.StatusCode})
	default:
		t.circuitBreaker.RecordSuccess(host)
		t.rateLimiter.RecordSuccess(host)
	}

	// The response is handed back untouched; callers interpret status codes.
	return resp, nil
}

// CircuitState reports the circuit state for host.
func (t *RoundTripper) CircuitState(host string) CircuitState {
	return t.circuitBreaker.GetState(host)
}

// parseRetryAfter extracts the Retry-After header value, or 0 if absent.
func parseRetryAfter(header http.Header) time.Duration {
	retryAfter := header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
