// Package retry implements RetryExecutor (spec.md C3): exponential-backoff
// retries around a fallible operation, restricted to a classified set of
// retryable error tags and HTTP status codes. Generalizes the teacher's
// resilience/retry.go Retry() helper.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/deepresearch/corerun/events"
	"github.com/deepresearch/corerun/researcherrors"
)

// ErrorTag is one of the retryable error classifications from spec.md §4.3.
type ErrorTag string

const (
	TagTimeout     ErrorTag = "TIMEOUT"
	TagNetwork     ErrorTag = "NETWORK_ERROR"
	TagRateLimit   ErrorTag = "RATE_LIMIT"
	TagServerError ErrorTag = "SERVER_ERROR"
)

// DefaultRetryableStatusCodes mirrors spec.md §4.3's default set.
var DefaultRetryableStatusCodes = []int{429, 500, 502, 503, 504}

// Config configures the retry policy.
type Config struct {
	MaxRetries      int
	InitialDelay    time.Duration
	Multiplier      float64
	MaxDelay        time.Duration
	JitterEnabled   bool

	RetryableErrors      []ErrorTag
	RetryableStatusCodes []int
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:           3,
		InitialDelay:         200 * time.Millisecond,
		Multiplier:           2.0,
		MaxDelay:             10 * time.Second,
		JitterEnabled:        true,
		RetryableErrors:      []ErrorTag{TagTimeout, TagNetwork, TagRateLimit, TagServerError},
		RetryableStatusCodes: DefaultRetryableStatusCodes,
	}
}

// Classified is the error shape an operation under Executor must return so
// the executor can decide whether to retry. Operations that fail with a
// plain error (no classification) are treated as non-retryable.
type Classified struct {
	Tag        ErrorTag
	StatusCode int
	Err        error
}

func (c *Classified) Error() string { return c.Err.Error() }
func (c *Classified) Unwrap() error { return c.Err }

// Executor runs fallible operations under the configured retry policy,
// emitting a `retrying` event before each retry attempt (spec.md §4.3).
type Executor struct {
	config *Config
	sink   events.Sink
}

// New creates an Executor. A nil config uses DefaultConfig; a nil sink
// discards events.
func New(config *Config, sink events.Sink) *Executor {
	if config == nil {
		config = DefaultConfig()
	}
	if sink == nil {
		sink = events.NoopSink{}
	}
	return &Executor{config: config, sink: sink}
}

// Do runs fn, retrying on classified-retryable errors up to MaxRetries
// additional attempts with bounded exponential backoff + jitter. Attempts
// total at most config.MaxRetries+1 (spec.md §8 property 5).
func (e *Executor) Do(ctx context.Context, subject string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := e.config.InitialDelay

	for attempt := 1; attempt <= e.config.MaxRetries+1; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !e.retryable(err) {
			return err
		}
		if attempt == e.config.MaxRetries+1 {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * e.config.Multiplier)
			if delay > e.config.MaxDelay {
				delay = e.config.MaxDelay
			}
		}

		sleep := delay
		if e.config.JitterEnabled {
			jitter := (rand.Float64()*2 - 1) * 0.1 * float64(delay)
			sleep = time.Duration(math.Max(0, float64(delay)+jitter))
		}

		e.sink.Emit(events.Event{
			Kind:    events.KindRetrying,
			Subject: subject,
			Data: map[string]interface{}{
				"attempt": attempt,
				"delay_ms": sleep.Milliseconds(),
			},
		})

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w", e.config.MaxRetries, lastErr, researcherrors.ErrMaxRetriesExceeded)
}

func (e *Executor) retryable(err error) bool {
	var c *Classified
	if as, ok := err.(*Classified); ok {
		c = as
	} else {
		return false
	}
	for _, code := range e.config.RetryableStatusCodes {
		if c.StatusCode != 0 && c.StatusCode == code {
			return true
		}
	}
	for _, tag := range e.config.RetryableErrors {
		if c.Tag == tag {
			return true
		}
	}
	return false
}
