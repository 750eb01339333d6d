package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while the breaker is refusing calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Zero or less disables tripping.
	Threshold int
	// Cooldown is how long the breaker stays open before letting a single
	// trial call through.
	Cooldown time.Duration
	// OnStateChange is called whenever the state changes, with the lock
	// released.
	OnStateChange func(from, to State)
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Breaker guards an operation that fails persistently rather than
// transiently, such as starting a process whose binary is missing. After
// Threshold consecutive failures every call is refused until Cooldown has
// passed, then one trial call decides whether to close or reopen.
type Breaker struct {
	settings Settings

	mu        sync.Mutex
	state     State
	failures  int
	openUntil time.Time
	probing   bool
}

// New creates a new circuit breaker with the given settings
func New(settings Settings) *Breaker {
	if settings.Cooldown <= 0 {
		settings.Cooldown = 10 * time.Second
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Breaker{settings: settings}
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooledDown() {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by Success or Failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var change func()
	defer func() {
		b.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	prev := b.state
	switch b.currentState() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	change = b.notify(prev)
	return nil
}

// Success records a successful call and closes the breaker.
func (b *Breaker) Success() {
	b.record(true)
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.record(false)
}

// Execute runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	prev := b.state
	cur := b.currentState()
	b.probing = false

	if success {
		b.failures = 0
		b.state = StateClosed
	} else {
		b.failures++
		if cur == StateHalfOpen || (b.settings.Threshold > 0 && b.failures >= b.settings.Threshold) {
			b.state = StateOpen
			b.openUntil = b.settings.Now().Add(b.settings.Cooldown)
		}
	}
	change := b.notify(prev)
	b.mu.Unlock()

	if change != nil {
		change()
	}
}

// currentState moves an expired open breaker to half-open. Callers hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.cooledDown() {
		b.state = StateHalfOpen
		b.probing = false
	}
	return b.state
}

func (b *Breaker) cooledDown() bool {
	return !b.settings.Now().Before(b.openUntil)
}

func (b *Breaker) notify(prev State) func() {
	cb := b.settings.OnStateChange
	to := b.state
	if cb == nil || prev == to {
		return nil
	}
	return func() { cb(prev, to) }
}
