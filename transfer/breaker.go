package transfer

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is the fast-fail result while the gateway is considered
// down.
var ErrBreakerOpen = errors.New("transfer: circuit breaker open")

type BreakerState string

const (
	BreakerClosed   BreakerState = "Closed"
	BreakerOpen     BreakerState = "Open"
	BreakerHalfOpen BreakerState = "HalfOpen"
)

// Breaker guards the external gateway. After Threshold consecutive failures
// it opens and rejects fast for Cooldown; the first caller after the cooldown
// gets a single half-open probe whose outcome closes or re-opens it.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probing   bool
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	// onTransition is invoked outside the lock with each state change so
	// health widgets can track gateway availability.
	onTransition func(from, to BreakerState)
}

func NewBreaker(threshold int, cooldown time.Duration, onTransition func(from, to BreakerState)) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		state:        BreakerClosed,
		threshold:    threshold,
		cooldown:     cooldown,
		now:          time.Now,
		onTransition: onTransition,
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. In half-open state only one probe
// is admitted at a time.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case BreakerClosed:
		b.mu.Unlock()
		return nil

	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probing = true
		notify := b.transitionLocked(BreakerHalfOpen)
		b.mu.Unlock()
		notify()
		return nil

	default: // HalfOpen
		if b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probing = true
		b.mu.Unlock()
		return nil
	}
}

func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	notify := func() {}
	if b.state != BreakerClosed {
		notify = b.transitionLocked(BreakerClosed)
	}
	b.mu.Unlock()
	notify()
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	b.probing = false
	notify := func() {}
	switch b.state {
	case BreakerHalfOpen:
		b.openedAt = b.now()
		notify = b.transitionLocked(BreakerOpen)
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.openedAt = b.now()
			notify = b.transitionLocked(BreakerOpen)
		}
	}
	b.mu.Unlock()
	notify()
}

func (b *Breaker) transitionLocked(to BreakerState) func() {
	from := b.state
	b.state = to
	if b.onTransition == nil || from == to {
		return func() {}
	}
	cb := b.onTransition
	return func() { cb(from, to) }
}
