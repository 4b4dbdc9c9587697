// Package researcherrors defines the error taxonomy shared across the
// research core: sentinel errors for comparison with errors.Is, a
// structured wrapper carrying operation/kind context, and classifier
// helpers. Within this module only ErrMaxRetriesExceeded is used (by
// retry.Executor); retry decisions are made on retry.Classified tags, not
// on these sentinels.
package researcherrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is comparisons. Callers that wrap their
// failures around these can classify them without string matching; the
// bundled scraper and LLM client do not wrap them.
var (
	// Transient fetch errors - retried by retry.Executor, then fallback.Chain.
	ErrTimeout      = errors.New("operation timeout")
	ErrNetwork      = errors.New("network error")
	ErrRateLimited  = errors.New("rate limited")
	ErrServerError  = errors.New("server error")

	// Permanent fetch errors - logged, URL marked failed, run continues.
	ErrClientError  = errors.New("client error")
	ErrCorrupted    = errors.New("corrupted content")
	ErrParse        = errors.New("parse error")

	// LLM failures - downgrade to deterministic fallback, never abort the run.
	ErrLLMUnavailable = errors.New("llm unavailable")

	// Terminal run conditions.
	ErrBudgetExhausted = errors.New("token budget exhausted")
	ErrStepCapReached   = errors.New("step cap reached")
	ErrRunTimeout       = errors.New("run timeout")
	ErrUserCancelled    = errors.New("user cancelled")

	// Invariant violations - fatal, surfaced as an error event.
	ErrInvariantViolation = errors.New("invariant violation")

	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrCacheFull          = errors.New("cache capacity exceeded")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ResearchError provides structured error information with context. It
// implements the error interface and supports error wrapping via Unwrap.
type ResearchError struct {
	Op      string // operation that failed (e.g. "fetch.Process")
	Kind    string // error kind (e.g. "fetch", "llm", "budget")
	ID      string // optional id of the entity involved (e.g. a URL)
	Message string
	Err     error
}

func (e *ResearchError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *ResearchError) Unwrap() error {
	return e.Err
}

// New creates a new ResearchError wrapping err.
func New(op, kind string, err error) *ResearchError {
	return &ResearchError{Op: op, Kind: kind, Err: err}
}

// WithID attaches an entity id (e.g. the URL involved) to the error.
func (e *ResearchError) WithID(id string) *ResearchError {
	e.ID = id
	return e
}

// IsRetryable reports whether err is one of the transient fetch kinds that
// retry.Executor should retry before falling back.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServerError)
}

// IsPermanent reports whether err is a permanent fetch failure that should
// mark the URL failed without retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrClientError) ||
		errors.Is(err, ErrCorrupted) ||
		errors.Is(err, ErrParse)
}

// IsTerminal reports whether err should end the research run outright.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrBudgetExhausted) ||
		errors.Is(err, ErrStepCapReached) ||
		errors.Is(err, ErrRunTimeout) ||
		errors.Is(err, ErrUserCancelled)
}

// IsConfigError reports whether err stems from invalid configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
