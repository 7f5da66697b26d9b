package governance

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is in the open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the state of a circuit breaker.
type BreakerState string

const (
	// StateClosed indicates the circuit is closed and calls are allowed.
	StateClosed BreakerState = "closed"
	// StateOpen indicates the circuit is open and calls are rejected.
	StateOpen BreakerState = "open"
	// StateHalfOpen indicates the circuit is testing for recovery.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig defines thresholds for circuit breaking.
type BreakerConfig struct {
	// MaxFailures is the consecutive failure count that opens the circuit.
	MaxFailures int
	// Timeout is how long the circuit stays open before half-open probing.
	Timeout time.Duration
	// MaxHalfOpenRequests is the number of successful probes required to
	// close the circuit again.
	MaxHalfOpenRequests int
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 3,
	}
}

// Breaker implements the circuit breaker pattern for a single collaborator.
type Breaker struct {
	mu     sync.Mutex
	cfg    BreakerConfig
	state  BreakerState
	failed int
	passed int
	probes int
	until  time.Time

	now func() time.Time
}

// NewBreaker creates a breaker with the provided configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxHalfOpenRequests <= 0 {
		cfg.MaxHalfOpenRequests = 3
	}
	return &Breaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// Execute wraps a call with circuit breaker protection. It returns
// ErrCircuitOpen without invoking fn when the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().After(b.until) {
			b.transition(StateHalfOpen)
			b.probes++
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probes < b.cfg.MaxHalfOpenRequests {
			b.probes++
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failed++
		b.passed = 0
		switch b.state {
		case StateHalfOpen:
			b.transition(StateOpen)
		case StateClosed:
			if b.failed >= b.cfg.MaxFailures {
				b.transition(StateOpen)
			}
		}
		return
	}

	b.passed++
	b.failed = 0
	if b.state == StateHalfOpen && b.passed >= b.cfg.MaxHalfOpenRequests {
		b.transition(StateClosed)
	}
}

func (b *Breaker) transition(state BreakerState) {
	if b.state == state {
		return
	}
	b.state = state
	b.failed = 0
	b.passed = 0
	b.probes = 0
	if state == StateOpen {
		b.until = b.now().Add(b.cfg.Timeout)
	} else {
		b.until = time.Time{}
	}
}
