// Package circuitbreaker guards calls to the entitlement provider. After a
// run of consecutive failures the breaker opens and rejects calls outright;
// after a cooldown it admits a small number of probe calls and closes again
// once enough of them succeed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of the breaker.
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
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is returned by Execute while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes is returned when the half-open probe budget is spent.
	ErrTooManyProbes = errors.New("circuit breaker half-open probe limit reached")
)

// Settings tunes a breaker. Zero values take the documented defaults.
type Settings struct {
	Name             string
	FailureThreshold int           // consecutive failures that open the breaker (default 5)
	SuccessThreshold int           // consecutive half-open successes that close it (default 2)
	Cooldown         time.Duration // open duration before probing (default 30s)
	MaxProbes        int           // concurrent calls admitted while half-open (default 1)
	OnStateChange    func(name string, from, to State)
}

// CircuitBreaker tracks consecutive outcomes and gates calls accordingly.
type CircuitBreaker struct {
	settings Settings

	mu          sync.Mutex
	state       State
	consecFails int
	consecOKs   int
	openedAt    time.Time
	probes      int
}

// New builds a breaker from settings, applying defaults for zero fields.
func New(settings Settings) *CircuitBreaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 2
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.MaxProbes <= 0 {
		settings.MaxProbes = 1
	}
	return &CircuitBreaker{settings: settings}
}

// IdentityAPIBreaker is tuned for the entitlement provider: open fast, wait
// a full minute before probing. Callers fall back to the most restrictive
// tier while the breaker is open rather than failing the learner's request.
func IdentityAPIBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:             "identity-api",
		FailureThreshold: 3,
		Cooldown:         time.Minute,
		OnStateChange:    onStateChange,
	})
}

// Execute runs fn if the breaker admits the call and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset force-closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.consecFails = 0
	cb.consecOKs = 0
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) < cb.settings.Cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probes = 1
		return nil
	default: // half-open
		if cb.probes >= cb.settings.MaxProbes {
			return ErrTooManyProbes
		}
		cb.probes++
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Release the half-open probe slot so the next probe can run.
	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}

	if err != nil {
		cb.consecFails++
		cb.consecOKs = 0
		switch cb.state {
		case StateClosed:
			if cb.consecFails >= cb.settings.FailureThreshold {
				cb.openedAt = time.Now()
				cb.transition(StateOpen)
			}
		case StateHalfOpen:
			// A failed probe reopens the breaker for a fresh cooldown.
			cb.openedAt = time.Now()
			cb.transition(StateOpen)
		}
		return
	}

	cb.consecOKs++
	cb.consecFails = 0
	if cb.state == StateHalfOpen && cb.consecOKs >= cb.settings.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.probes = 0
	cb.consecOKs = 0
	cb.consecFails = 0
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}
