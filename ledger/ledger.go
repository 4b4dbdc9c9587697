// Package ledger implements TokenLedger (spec.md C1): the authoritative,
// concurrency-safe counter of cumulative LLM token consumption for a run.
package ledger

import (
	"sync/atomic"
)

// Usage is a point-in-time snapshot of cumulative token counts.
type Usage struct {
	Prompt     int64
	Completion int64
	Total      int64
}

// TokenLedger tracks prompt/completion/total token counts against a budget
// using atomic counters, matching resilience.CircuitBreaker's lock-free
// hot-path idiom (spec.md §4.1 requires operations be atomic).
type TokenLedger struct {
	budget            int64
	reserveFinalRatio float64
	// fractionOfRemaining resolves spec.md §9 Open Question (a): when true,
	// ReserveExceeded compares against a fraction of the *remaining* budget
	// instead of the total budget.
	fractionOfRemaining bool

	prompt     atomic.Int64
	completion atomic.Int64
}

// New creates a TokenLedger for the given budget and reserve-final-ratio.
// fractionOfRemaining selects which of the two source semantics spec.md §9
// documents as ambiguous; the module default (researchconfig) is false.
func New(budget int, reserveFinalRatio float64, fractionOfRemaining bool) *TokenLedger {
	return &TokenLedger{
		budget:              int64(budget),
		reserveFinalRatio:   reserveFinalRatio,
		fractionOfRemaining: fractionOfRemaining,
	}
}

// Record adds prompt/completion token counts atomically. Concurrent callers
// never lose an update: each field is an independent atomic counter, so
// overcounting (spec.md §3 invariant 1 concern) cannot occur under
// concurrent use.
func (l *TokenLedger) Record(prompt, completion int) {
	if prompt > 0 {
		l.prompt.Add(int64(prompt))
	}
	if completion > 0 {
		l.completion.Add(int64(completion))
	}
}

// Total returns the cumulative token count.
func (l *TokenLedger) Total() int64 {
	return l.prompt.Load() + l.completion.Load()
}

// Usage returns a consistent-enough snapshot of the three counters. Because
// prompt/completion are independent atomics, Total here is computed from
// the same two loads used for Prompt/Completion rather than re-derived.
func (l *TokenLedger) Usage() Usage {
	p := l.prompt.Load()
	c := l.completion.Load()
	return Usage{Prompt: p, Completion: c, Total: p + c}
}

// Budget returns the configured total budget.
func (l *TokenLedger) Budget() int64 {
	return l.budget
}

// Remaining returns budget minus total consumed, floored at zero.
func (l *TokenLedger) Remaining() int64 {
	r := l.budget - l.Total()
	if r < 0 {
		return 0
	}
	return r
}

// CanAfford reports whether an estimated additional cost would still fit
// within budget.
func (l *TokenLedger) CanAfford(estimated int) bool {
	return l.Total()+int64(estimated) <= l.budget
}

// ReserveExceeded reports whether cumulative usage has crossed the
// reserve-for-final-answer threshold (spec.md §4.1): true when
// total >= budget * (1 - reserveFinalRatio), under the fraction-of-total
// semantics (default), or when remaining <= budget*reserveFinalRatio under
// the fraction-of-remaining semantics.
func (l *TokenLedger) ReserveExceeded() bool {
	if l.budget <= 0 {
		return true
	}
	if l.fractionOfRemaining {
		threshold := float64(l.budget) * l.reserveFinalRatio
		return float64(l.Remaining()) <= threshold
	}
	threshold := float64(l.budget) * (1 - l.reserveFinalRatio)
	return float64(l.Total()) >= threshold
}

// BeastModeThresholdExceeded reports whether remaining budget has fallen to
// or below the given fraction of the total budget, used by the
// orchestrator to force action.Router into beast mode (spec.md §4.12).
func (l *TokenLedger) BeastModeThresholdExceeded(threshold float64) bool {
	if l.budget <= 0 {
		return true
	}
	return float64(l.Remaining()) <= float64(l.budget)*threshold
}
