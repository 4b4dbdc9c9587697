package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetriesUntilSuccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.MaxRetries = 5
	e := New(cfg, nil)

	attempts := 0
	err := e.Do(context.Background(), "https://example.com", func(ctx context.Context) error {
		attempts++
		if attempts < 4 {
			return &Classified{Tag: TagNetwork, Err: errors.New("boom")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
}

func TestDoStopsAtMaxRetriesPlusOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.MaxRetries = 2
	e := New(cfg, nil)

	attempts := 0
	err := e.Do(context.Background(), "u", func(ctx context.Context) error {
		attempts++
		return &Classified{Tag: TagTimeout, Err: errors.New("still failing")}
	})

	require.Error(t, err)
	assert.Equal(t, cfg.MaxRetries+1, attempts)
}

func TestDoDoesNotRetryNonRetryableError(t *testing.T) {
	e := New(DefaultConfig(), nil)

	attempts := 0
	err := e.Do(context.Background(), "u", func(ctx context.Context) error {
		attempts++
		return &Classified{Tag: "CLIENT_ERROR", StatusCode: 404, Err: errors.New("not found")}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = 50 * time.Millisecond
	cfg.MaxRetries = 5
	e := New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := e.Do(ctx, "u", func(ctx context.Context) error {
		return &Classified{Tag: TagNetwork, Err: errors.New("fail")}
	})

	require.Error(t, err)
}
