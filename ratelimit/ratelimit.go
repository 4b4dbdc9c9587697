// Package ratelimit implements RateLimiter (spec.md C5): a global admission
// cap plus a per-domain inflight cap and minimum request spacing. Global
// caps use golang.org/x/time/rate token buckets, the library used for rate
// limiting across the example pack (rand-recurse, hortator-ai-Hortator,
// marcus-qen-legator, among others).
package ratelimit

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures the limiter's caps (spec.md §4.5 / §6 configuration
// table).
type Config struct {
	MaxPerMinute         int
	MaxPerHour           int
	MaxPerDomain         int
	MinIntervalPerDomain time.Duration
}

// DefaultConfig mirrors spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxPerMinute:         60,
		MaxPerHour:           1000,
		MaxPerDomain:         3,
		MinIntervalPerDomain: 250 * time.Millisecond,
	}
}

type domainState struct {
	inflight     int
	lastAdmitted time.Time
	cond         *sync.Cond
}

// Limiter enforces the global and per-domain admission rules documented in
// spec.md §4.5. A request exceeding a cap blocks (queues) until capacity
// frees, rather than failing outright.
type Limiter struct {
	cfg Config

	minuteBucket *rate.Limiter
	hourBucket   *rate.Limiter

	mu      sync.Mutex
	domains map[string]*domainState
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		domains: make(map[string]*domainState),
	}
	if cfg.MaxPerMinute > 0 {
		l.minuteBucket = rate.NewLimiter(rate.Limit(float64(cfg.MaxPerMinute)/60.0), maxBurst(cfg.MaxPerMinute))
	}
	if cfg.MaxPerHour > 0 {
		l.hourBucket = rate.NewLimiter(rate.Limit(float64(cfg.MaxPerHour)/3600.0), maxBurst(cfg.MaxPerHour))
	}
	return l
}

func maxBurst(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Admit blocks until a request to targetURL is permitted by every cap, then
// marks the domain as having one more inflight request. Callers must call
// the returned release func when the request completes.
func (l *Limiter) Admit(ctx context.Context, targetURL string) (release func(), err error) {
	if l.minuteBucket != nil {
		if err := l.minuteBucket.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if l.hourBucket != nil {
		if err := l.hourBucket.Wait(ctx); err != nil {
			return nil, err
		}
	}

	domain := hostOf(targetURL)
	state := l.domainStateFor(domain)

	// Wake the condition variable if the context is cancelled while a
	// caller is blocked waiting for a domain slot.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			state.cond.L.Lock()
			state.cond.Broadcast()
			state.cond.L.Unlock()
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	state.cond.L.Lock()
	for state.inflight >= l.cfg.MaxPerDomain {
		if ctx.Err() != nil {
			state.cond.L.Unlock()
			return nil, ctx.Err()
		}
		state.cond.Wait()
	}
	if ctx.Err() != nil {
		state.cond.L.Unlock()
		return nil, ctx.Err()
	}

	if since := time.Since(state.lastAdmitted); l.cfg.MinIntervalPerDomain > 0 && since < l.cfg.MinIntervalPerDomain {
		wait := l.cfg.MinIntervalPerDomain - since
		state.cond.L.Unlock()
		if waitErr := waitOrCtx(ctx, wait); waitErr != nil {
			return nil, waitErr
		}
		state.cond.L.Lock()
	}

	state.inflight++
	state.lastAdmitted = time.Now()
	state.cond.L.Unlock()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		state.cond.L.Lock()
		state.inflight--
		state.cond.Broadcast()
		state.cond.L.Unlock()
	}, nil
}

func (l *Limiter) domainStateFor(domain string) *domainState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.domains[domain]
	if !ok {
		s = &domainState{cond: sync.NewCond(&sync.Mutex{})}
		l.domains[domain] = s
	}
	return s
}

// InflightForDomain reports the current inflight count for a domain, used
// by tests verifying spec.md §8 property 6.
func (l *Limiter) InflightForDomain(targetURL string) int {
	l.mu.Lock()
	s, ok := l.domains[hostOf(targetURL)]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	return s.inflight
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

func waitOrCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
