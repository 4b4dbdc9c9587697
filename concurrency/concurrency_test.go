package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseWithinCeiling(t *testing.T) {
	c := New(Config{Initial: 2, Min: 1, Max: 5, AdjustmentInterval: time.Hour, ScaleDownThreshold: 0.3, ScaleUpThreshold: 0.9}, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Acquire(ctx))
	require.NoError(t, c.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		_ = c.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should block at ceiling 2")
	case <-time.After(20 * time.Millisecond):
	}

	c.Release(true)
	<-acquired
}

func TestAdjustScalesUpOnHighSuccessRate(t *testing.T) {
	c := New(Config{Initial: 5, Min: 1, Max: 10, AdjustmentInterval: time.Hour, ScaleDownThreshold: 0.3, ScaleUpThreshold: 0.5}, nil, nil)
	for i := 0; i < 10; i++ {
		c.recordOutcome(true)
	}
	c.adjust()
	assert.Equal(t, 6, c.Current())
}

func TestAdjustScalesDownOnHighErrorRate(t *testing.T) {
	c := New(Config{Initial: 5, Min: 1, Max: 10, AdjustmentInterval: time.Hour, ScaleDownThreshold: 0.3, ScaleUpThreshold: 0.99}, nil, nil)
	for i := 0; i < 10; i++ {
		c.recordOutcome(i%2 == 0)
	}
	c.adjust()
	assert.Equal(t, 4, c.Current())
}

func TestAdjustNeverExceedsMaxOrMin(t *testing.T) {
	c := New(Config{Initial: 10, Min: 1, Max: 10, AdjustmentInterval: time.Hour, ScaleDownThreshold: 0.3, ScaleUpThreshold: 0.5}, nil, nil)
	for i := 0; i < 10; i++ {
		c.recordOutcome(true)
	}
	c.adjust()
	assert.Equal(t, 10, c.Current())
}

type fakeMonitor struct{ sample ResourceSample }

func (f fakeMonitor) Sample() ResourceSample { return f.sample }

func TestAdjustShrinksUnderResourcePressure(t *testing.T) {
	c := New(Config{Initial: 10, Min: 1, Max: 20, AdjustmentInterval: time.Hour, CPULimit: 0.5, MemoryLimit: 0.5, ScaleDownThreshold: 0.3, ScaleUpThreshold: 0.9}, fakeMonitor{ResourceSample{CPU: 0.9}}, nil)
	c.adjust()
	assert.Equal(t, 7, c.Current())
}
