// Package concurrency implements AdaptiveConcurrency (spec.md C6): a
// periodic adjuster that resizes the active-request ceiling from rolling
// success/error rates and resource signals. The admission ceiling is an
// in-package gate rather than golang.org/x/sync/semaphore.Weighted:
// Weighted has a fixed permit count fixed at construction, and growing it
// requires releasing permits nothing ever acquired, which panics
// ("released more than held"). gate below tracks capacity as a plain
// field so the periodic adjuster can resize it directly.
package concurrency

import (
	"container/list"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepresearch/corerun/events"
)

// ResourceSample reports point-in-time resource utilisation. CPU/Memory
// are fractions in [0,1]. A caller on a platform without cheap utilisation
// sampling can supply a ResourceMonitor that always returns zeros, which
// disables the resource-limit branch of the adjuster.
type ResourceSample struct {
	CPU    float64
	Memory float64
}

// ResourceMonitor samples current resource utilisation.
type ResourceMonitor interface {
	Sample() ResourceSample
}

// GoroutineResourceMonitor approximates memory pressure from the Go
// runtime's own heap statistics and reports CPU as unavailable (0), since
// this module has no platform-specific CPU sampler. CPULimit effectively
// becomes advisory unless the caller supplies a real monitor.
type GoroutineResourceMonitor struct {
	MemoryLimitBytes uint64
}

func (m *GoroutineResourceMonitor) Sample() ResourceSample {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	memFraction := 0.0
	if m.MemoryLimitBytes > 0 {
		memFraction = float64(stats.HeapAlloc) / float64(m.MemoryLimitBytes)
	}
	return ResourceSample{CPU: 0, Memory: memFraction}
}

// Config configures the adjuster (spec.md §4.6 / §6).
type Config struct {
	Initial int
	Min     int
	Max     int

	AdjustmentInterval time.Duration
	CPULimit           float64
	MemoryLimit        float64
	ScaleDownThreshold float64 // error rate above which we scale down
	ScaleUpThreshold   float64 // success rate at/above which we scale up

	// WindowSize bounds how many recent outcomes feed the rolling rates.
	WindowSize int
}

// DefaultConfig mirrors spec.md §4.6/§6 defaults.
func DefaultConfig() Config {
	return Config{
		Initial:            5,
		Min:                1,
		Max:                20,
		AdjustmentInterval: 5 * time.Second,
		CPULimit:           0.85,
		MemoryLimit:        0.85,
		ScaleDownThreshold: 0.3,
		ScaleUpThreshold:   0.9,
		WindowSize:         50,
	}
}

// Reason names why a concurrency change was made, carried on the emitted
// ConcurrencyChange event.
type Reason string

const (
	ReasonResourceLimit  Reason = "resource-limit"
	ReasonHighErrorRate  Reason = "high-error-rate"
	ReasonHighSuccessRate Reason = "high-success-rate"
)

// Controller owns the gate-backed admission ceiling and the background
// adjuster goroutine.
type Controller struct {
	cfg     Config
	monitor ResourceMonitor
	sink    events.Sink

	gate *gate

	mu      sync.Mutex
	current int

	outcomes   []bool // true = success, ring buffer of recent outcomes
	outcomeIdx int

	stop chan struct{}
	wg   sync.WaitGroup

	running atomic.Bool
}

// gate is a counting semaphore whose capacity can be resized in place.
// Unlike semaphore.Weighted, growing it never requires releasing a token
// nothing acquired: Resize just raises the capacity field and wakes
// waiters, and shrinking just lowers it so future Releases stop handing
// tokens back out once usage drains under the new ceiling.
type gate struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  list.List // of chan struct{}
}

func newGate(capacity int) *gate {
	return &gate{capacity: capacity}
}

// Acquire blocks until a slot is available or ctx is done.
func (g *gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.inUse < g.capacity && g.waiters.Len() == 0 {
		g.inUse++
		g.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	elem := g.waiters.PushBack(ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		select {
		case <-ready:
			// Won the race with a concurrent Release; honor the grant
			// instead of leaking a permit.
			g.mu.Unlock()
			g.Release()
			return ctx.Err()
		default:
			g.waiters.Remove(elem)
			g.mu.Unlock()
			return ctx.Err()
		}
	}
}

// Release returns a slot, handing it directly to the oldest waiter if any
// are queued so FIFO order holds across a resize.
func (g *gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if front := g.waiters.Front(); front != nil {
		g.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	if g.inUse > 0 {
		g.inUse--
	}
}

// Resize changes the capacity ceiling, waking queued waiters that fit
// under the new ceiling. Shrinking never pre-empts slots already in use;
// it only lowers the ceiling in-flight usage will drain back down to.
func (g *gate) Resize(capacity int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.capacity = capacity
	for g.inUse < g.capacity {
		front := g.waiters.Front()
		if front == nil {
			break
		}
		g.waiters.Remove(front)
		g.inUse++
		close(front.Value.(chan struct{}))
	}
}

// New creates a Controller. monitor may be nil, in which case resource
// pressure is treated as always within limits.
func New(cfg Config, monitor ResourceMonitor, sink events.Sink) *Controller {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	if sink == nil {
		sink = events.NoopSink{}
	}
	if monitor == nil {
		monitor = noopMonitor{}
	}
	c := &Controller{
		cfg:     cfg,
		monitor: monitor,
		sink:    sink,
		current: cfg.Initial,
		gate:    newGate(cfg.Initial),
		stop:    make(chan struct{}),
	}
	return c
}

type noopMonitor struct{}

func (noopMonitor) Sample() ResourceSample { return ResourceSample{} }

// Acquire blocks until a slot is available under the current ceiling.
func (c *Controller) Acquire(ctx context.Context) error {
	return c.gate.Acquire(ctx)
}

// Release returns a slot, and records whether the operation succeeded so
// the adjuster's rolling rates reflect it.
func (c *Controller) Release(success bool) {
	c.gate.Release()
	c.recordOutcome(success)
}

func (c *Controller) recordOutcome(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outcomes) < c.cfg.WindowSize {
		c.outcomes = append(c.outcomes, success)
	} else {
		c.outcomes[c.outcomeIdx] = success
	}
	c.outcomeIdx = (c.outcomeIdx + 1) % c.cfg.WindowSize
}

func (c *Controller) rates() (successRate, errorRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outcomes) == 0 {
		return 1, 0
	}
	successes := 0
	for _, ok := range c.outcomes {
		if ok {
			successes++
		}
	}
	successRate = float64(successes) / float64(len(c.outcomes))
	errorRate = 1 - successRate
	return
}

// Current returns the current concurrency ceiling.
func (c *Controller) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Start launches the periodic adjuster goroutine. Stop must be called to
// release it.
func (c *Controller) Start(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.AdjustmentInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				c.adjust()
			}
		}
	}()
}

// Stop halts the adjuster goroutine.
func (c *Controller) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	close(c.stop)
	c.wg.Wait()
}

func (c *Controller) adjust() {
	sample := c.monitor.Sample()
	successRate, errorRate := c.rates()

	c.mu.Lock()
	prev := c.current
	next := prev
	var reason Reason

	switch {
	case sample.CPU > c.cfg.CPULimit || sample.Memory > c.cfg.MemoryLimit:
		next = int(float64(prev) * 0.7)
		reason = ReasonResourceLimit
	case errorRate > c.cfg.ScaleDownThreshold:
		next = prev - 1
		reason = ReasonHighErrorRate
	case successRate >= c.cfg.ScaleUpThreshold:
		next = prev + 1
		reason = ReasonHighSuccessRate
	}

	if next < c.cfg.Min {
		next = c.cfg.Min
	}
	if next > c.cfg.Max {
		next = c.cfg.Max
	}

	if next == prev {
		c.mu.Unlock()
		return
	}

	c.resize(prev, next)
	c.current = next
	c.mu.Unlock()

	c.sink.Emit(events.Event{
		Kind: events.KindConcurrencyChange,
		Data: map[string]interface{}{
			"previous": prev,
			"current":  next,
			"reason":   string(reason),
		},
	})
}

// resize changes the gate's ceiling to next. Must be called with c.mu
// held (c.mu guards Controller.current; the gate has its own lock for
// inUse/capacity). Growing wakes queued waiters up to the new ceiling;
// shrinking lowers the ceiling for future Acquire/Release calls without
// pre-empting slots already in use.
func (c *Controller) resize(prev, next int) {
	c.gate.Resize(next)
}
