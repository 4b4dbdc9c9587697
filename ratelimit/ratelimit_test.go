package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitRespectsPerDomainCap(t *testing.T) {
	l := New(Config{MaxPerMinute: 1000, MaxPerHour: 10000, MaxPerDomain: 2})

	ctx := context.Background()
	release1, err := l.Admit(ctx, "https://example.com/a")
	require.NoError(t, err)
	release2, err := l.Admit(ctx, "https://example.com/b")
	require.NoError(t, err)

	assert.Equal(t, 2, l.InflightForDomain("https://example.com/c"))

	done := make(chan struct{})
	go func() {
		release3, err := l.Admit(ctx, "https://example.com/d")
		assert.NoError(t, err)
		release3()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("third admit should not complete before a slot frees")
	case <-time.After(20 * time.Millisecond):
	}

	release1()
	<-done
	release2()
}

func TestAdmitCancelledByContext(t *testing.T) {
	l := New(Config{MaxPerMinute: 1000, MaxPerHour: 10000, MaxPerDomain: 1})
	ctx := context.Background()
	release, err := l.Admit(ctx, "https://example.com")
	require.NoError(t, err)
	defer release()

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Admit(cctx, "https://example.com")
	assert.Error(t, err)
}

func TestAdmitIndependentDomainsDoNotBlockEachOther(t *testing.T) {
	l := New(Config{MaxPerMinute: 1000, MaxPerHour: 10000, MaxPerDomain: 1})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, host := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		wg.Add(1)
		go func(h string) {
			defer wg.Done()
			release, err := l.Admit(ctx, h)
			assert.NoError(t, err)
			release()
		}(host)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("independent domains should not serialize")
	}
}
