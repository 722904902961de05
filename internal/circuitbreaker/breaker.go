// Package circuitbreaker stops hammering an archive host that keeps failing.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrOpenState       = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker configuration
type Config struct {
	// MaxRequests is the number of trial requests let through while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// Threshold is the number of requests seen before the failure ratio counts.
	Threshold    uint32
	FailureRatio float64
	// OnStateChange is called with the breaker's host on every transition.
	OnStateChange func(host string, from, to State)
}

// DefaultConfig suits a handful of large downloads per host: a few failures
// in a row are enough to back off for a while.
func DefaultConfig() Config {
	return Config{
		MaxRequests:  1,
		Interval:     5 * time.Minute,
		Timeout:      30 * time.Second,
		Threshold:    3,
		FailureRatio: 0.6,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.MaxRequests == 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Interval == 0 {
		c.Interval = d.Interval
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.Threshold == 0 {
		c.Threshold = d.Threshold
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = d.FailureRatio
	}
}

// CircuitBreaker guards a single host.
type CircuitBreaker struct {
	host   string
	config Config

	mu       sync.Mutex
	state    State
	expiry   time.Time
	requests uint32
	total    uint32
	failures uint32
}

func New(host string, config Config) *CircuitBreaker {
	config.normalize()
	cb := &CircuitBreaker{host: host, config: config}
	cb.reset(time.Now())
	return cb
}

// State returns the current state, moving an expired open breaker to
// half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.current(time.Now())
}

// Counts returns requests admitted and failures seen in the current
// generation.
func (cb *CircuitBreaker) Counts() (requests, failures uint32) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.requests, cb.failures
}

// Execute runs fn unless the breaker is open. fn's error counts as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err == nil)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.current(time.Now()) {
	case StateOpen:
		return ErrOpenState
	case StateHalfOpen:
		if cb.requests >= cb.config.MaxRequests {
			return ErrTooManyRequests
		}
	}
	cb.requests++
	return nil
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.current(now) {
	case StateClosed:
		cb.total++
		if !success {
			cb.failures++
		}
		if cb.total >= cb.config.Threshold &&
			float64(cb.failures)/float64(cb.total) >= cb.config.FailureRatio {
			cb.transition(StateOpen, now)
		}
	case StateHalfOpen:
		if !success {
			cb.transition(StateOpen, now)
			return
		}
		cb.total++
		if cb.total >= cb.config.MaxRequests {
			cb.transition(StateClosed, now)
		}
	}
}

func (cb *CircuitBreaker) current(now time.Time) State {
	switch cb.state {
	case StateClosed:
		if now.After(cb.expiry) {
			cb.reset(now)
		}
	case StateOpen:
		if now.After(cb.expiry) {
			cb.transition(StateHalfOpen, now)
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	cb.state = to
	cb.reset(now)
	if cb.config.OnStateChange != nil && from != to {
		cb.config.OnStateChange(cb.host, from, to)
	}
}

func (cb *CircuitBreaker) reset(now time.Time) {
	cb.requests, cb.total, cb.failures = 0, 0, 0
	switch cb.state {
	case StateClosed:
		cb.expiry = now.Add(cb.config.Interval)
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	default:
		cb.expiry = time.Time{}
	}
}

// HostBreaker manages circuit breakers per host
type HostBreaker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   Config
}

func NewHostBreaker(config Config) *HostBreaker {
	return &HostBreaker{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
	}
}

// Execute runs fn under host's breaker.
func (hb *HostBreaker) Execute(host string, fn func() error) error {
	return hb.get(host).Execute(fn)
}

// State returns host's breaker state.
func (hb *HostBreaker) State(host string) State {
	return hb.get(host).State()
}

// Open lists the hosts whose breaker is currently open.
func (hb *HostBreaker) Open() []string {
	hb.mu.RLock()
	defer hb.mu.RUnlock()
	var out []string
	for host, b := range hb.breakers {
		if b.State() == StateOpen {
			out = append(out, host)
		}
	}
	return out
}

// Reset forgets host's breaker.
func (hb *HostBreaker) Reset(host string) {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	delete(hb.breakers, host)
}

func (hb *HostBreaker) get(host string) *CircuitBreaker {
	hb.mu.RLock()
	b, ok := hb.breakers[host]
	hb.mu.RUnlock()
	if ok {
		return b
	}

	hb.mu.Lock()
	defer hb.mu.Unlock()
	if b, ok := hb.breakers[host]; ok {
		return b
	}
	b = New(host, hb.config)
	hb.breakers[host] = b
	return b
}
