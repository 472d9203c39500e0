package transport

import (
	"sync"
	"time"
)

// CircuitState is where a host's circuit currently stands.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen lets a limited number of trial requests through after
	// the recovery timeout.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker defaults. YouTube tends to throttle in bursts, so a handful of
// consecutive failures is enough to back off for a while.
const (
	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 30 * time.Second
	DefaultHalfOpenMaxRequests = 1
)

// CircuitBreakerConfig controls when a host is cut off and for how long.
type CircuitBreakerConfig struct {
	FailureThreshold    int           // consecutive failures that open the circuit
	RecoveryTimeout     time.Duration // time spent open before trial requests
	HalfOpenMaxRequests int           // trial requests while half-open
	// IsTransientError filters what counts as a failure. Nil counts every error.
	IsTransientError func(error) bool
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    DefaultFailureThreshold,
		RecoveryTimeout:     DefaultRecoveryTimeout,
		HalfOpenMaxRequests: DefaultHalfOpenMaxRequests,
		IsTransientError:    IsTransientHTTPError,
	}
}

// hostCircuit is the breaker state of a single host.
type hostCircuit struct {
	state    CircuitState
	failures int
	openedAt time.Time
	trials   int
}

// current folds an expired open period into half-open without mutating c.
func (c *hostCircuit) current(now time.Time, recovery time.Duration) CircuitState {
	if c.state == CircuitOpen && now.Sub(c.openedAt) >= recovery {
		return CircuitHalfOpen
	}
	return c.state
}

func (c *hostCircuit) trip(now time.Time) {
	c.state = CircuitOpen
	c.openedAt = now
	c.trials = 0
}

// CircuitBreaker keeps one circuit per host. A nil *CircuitBreaker lets
// everything through.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostCircuit
}

// NewCircuitBreaker fills zero fields of cfg with the defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
	}
	return &CircuitBreaker{
		cfg:   cfg,
		now:   time.Now,
		hosts: make(map[string]*hostCircuit),
	}
}

// Allow reports ErrCircuitOpen when host is cut off. Each nil return while
// half-open uses up one trial slot.
func (cb *CircuitBreaker) Allow(host string) error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.hosts[host]
	if !ok {
		return nil
	}
	switch c.current(cb.now(), cb.cfg.RecoveryTimeout) {
	case CircuitOpen:
		return ErrCircuitOpen
	case CircuitHalfOpen:
		c.state = CircuitHalfOpen
		if c.trials >= cb.cfg.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		c.trials++
	}
	return nil
}

// RecordSuccess clears the failure count and closes a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.hosts[host]
	if ok && c.current(cb.now(), cb.cfg.RecoveryTimeout) == CircuitOpen {
		c.failures = 0
		return
	}
	// A healthy host needs no entry.
	delete(cb.hosts, host)
}

// RecordFailure counts err against host unless the filter rejects it. A
// failed trial request reopens the circuit at once.
func (cb *CircuitBreaker) RecordFailure(host string, err error) {
	if cb == nil {
		return
	}
	if cb.cfg.IsTransientError != nil && !cb.cfg.IsTransientError(err) {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.hosts[host]
	if !ok {
		c = &hostCircuit{}
		cb.hosts[host] = c
	}
	c.failures++

	now := cb.now()
	switch c.current(now, cb.cfg.RecoveryTimeout) {
	case CircuitClosed:
		if c.failures >= cb.cfg.FailureThreshold {
			c.trip(now)
		}
	case CircuitHalfOpen:
		c.trip(now)
	}
}

// GetState returns host's state as Allow would see it.
func (cb *CircuitBreaker) GetState(host string) CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.hosts[host]
	if !ok {
		return CircuitClosed
	}
	return c.current(cb.now(), cb.cfg.RecoveryTimeout)
}
