package fetch

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState is one of the three circuit states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// ErrBreakerOpen is returned by Breaker.Allow when the circuit is open.
var ErrBreakerOpen = fmt.Errorf("fetch: circuit breaker open")

// Breaker is a minimal circuit breaker guarding the scrape step of the
// fetch pipeline: outcomes are counted cumulatively since the breaker last
// closed (there is no sliding window), and once their failure rate reaches
// FailureThreshold it opens for ResetTimeout before allowing a single
// half-open probe. Generalizes the teacher's CircuitBreaker down to the
// three-state shape this pipeline needs (no per-name registry, no listener
// hooks: fetch.Processor owns exactly one breaker per scrape path).
type Breaker struct {
	failureThreshold float64
	minSamples       int
	resetTimeout      time.Duration

	mu          sync.Mutex
	state       BreakerState
	successes   int
	failures    int
	openedAt    time.Time
}

// NewBreaker creates a Breaker. failureThreshold is the [0,1] failure rate
// at or above which the breaker opens once at least minSamples outcomes
// have been recorded since it last closed.
func NewBreaker(failureThreshold float64, minSamples int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		minSamples:       minSamples,
		resetTimeout:     resetTimeout,
		state:            BreakerClosed,
	}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once resetTimeout has elapsed. Only the call making that transition is
// admitted as the half-open probe; later calls are refused until Record
// settles the probe's outcome.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.resetTimeout {
			b.state = BreakerHalfOpen
			return nil
		}
		return ErrBreakerOpen
	case BreakerHalfOpen:
		return ErrBreakerOpen
	default:
		return nil
	}
}

// Record reports the outcome of a call admitted by Allow. A failure while
// half-open reopens the circuit immediately; a success while half-open
// closes it and resets counters.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		if success {
			b.state = BreakerClosed
			b.successes, b.failures = 0, 0
		} else {
			b.state = BreakerOpen
			b.openedAt = time.Now()
			b.successes, b.failures = 0, 0
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}

	total := b.successes + b.failures
	if total < b.minSamples {
		return
	}
	if float64(b.failures)/float64(total) >= b.failureThreshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.successes, b.failures = 0, 0
	}
}

// State reports the breaker's current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
