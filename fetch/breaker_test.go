package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThresholdAndHalfOpensAfterTimeout(t *testing.T) {
	b := NewBreaker(0.5, 4, 10*time.Millisecond)

	assert.NoError(t, b.Allow())
	b.Record(false)
	b.Record(false)
	b.Record(false)
	b.Record(false)

	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	time.Sleep(15 * time.Millisecond)
	assert.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	b.Record(true)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(0.5, 2, 5*time.Millisecond)
	b.Record(false)
	b.Record(false)
	assert.Equal(t, BreakerOpen, b.State())

	time.Sleep(10 * time.Millisecond)
	require := assert.New(t)
	require.NoError(b.Allow())
	b.Record(false)
	require.Equal(BreakerOpen, b.State())
}
