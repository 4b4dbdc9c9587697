// Package fallback implements FallbackChain (spec.md C4): an ordered list
// of alternative content sources tried when the primary fetch fails, each
// bounded by its own timeout, propagating the winning source's origin.
package fallback

import (
	"context"
	"errors"
	"time"

	"github.com/deepresearch/corerun/cache"
	"github.com/deepresearch/corerun/events"
)

// ErrChainExhausted is returned when the chain has no step that produced
// content -- either because every configured step failed, or because no
// steps were configured at all. Callers must treat this as a fetch
// failure, never as a successful empty result.
var ErrChainExhausted = errors.New("fallback: chain exhausted without producing content")

// Step is one alternative source in the chain: given a URL, it attempts to
// produce content within the given timeout.
type Step struct {
	Origin  cache.Origin
	Timeout time.Duration
	Fetch   func(ctx context.Context, url string) ([]byte, string, error)
}

// Result is the outcome of a successful fallback step.
type Result struct {
	Content     []byte
	ContentType string
	Origin      cache.Origin
}

// Chain tries each Step in order; the first success wins.
type Chain struct {
	steps []Step
	sink  events.Sink
}

// New builds a Chain from steps, tried in the given order (spec.md §4.4
// documents the canonical order: primary-cache, web-archive,
// alternative-mirror, soft-stale-cache -- callers assemble the concrete
// Step list since what counts as "primary cache" vs "soft-stale cache"
// depends on the caller's own cache lookup).
func New(sink events.Sink, steps ...Step) *Chain {
	if sink == nil {
		sink = events.NoopSink{}
	}
	return &Chain{steps: steps, sink: sink}
}

// Try runs the chain for url, returning the first success. If every step
// fails, the last error is returned (spec.md §4.4: "the last error kind
// bubbles up").
func (c *Chain) Try(ctx context.Context, url string) (Result, error) {
	var lastErr error
	for _, step := range c.steps {
		stepCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}

		c.sink.Emit(events.Event{
			Kind:    events.KindFallbackTriggered,
			Subject: url,
			Data:    map[string]interface{}{"origin": string(step.Origin)},
		})

		content, contentType, err := step.Fetch(stepCtx, url)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return Result{Content: content, ContentType: contentType, Origin: step.Origin}, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
	}
	if lastErr == nil {
		lastErr = ErrChainExhausted
	}
	return Result{}, lastErr
}
