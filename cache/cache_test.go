package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGetReturnsSameBytes(t *testing.T) {
	c := New(1024, 10, time.Hour)
	c.Set("https://a.example/x", []byte("hello"), "text/html", Version{Origin: OriginPrimary, FetchedAt: time.Now()})

	entry, found, stale := c.Get("https://a.example/x")
	require.True(t, found)
	assert.False(t, stale)
	assert.Equal(t, "hello", string(entry.Content))
	assert.Equal(t, int64(1), entry.AccessCount)
}

func TestEvictionRespectsCountCap(t *testing.T) {
	c := New(1<<20, 2, time.Hour)
	c.Set("u1", []byte("a"), "text/plain", Version{FetchedAt: time.Now()})
	c.Set("u2", []byte("b"), "text/plain", Version{FetchedAt: time.Now()})
	c.Set("u3", []byte("c"), "text/plain", Version{FetchedAt: time.Now()})

	assert.LessOrEqual(t, c.Len(), 2)
	_, found, _ := c.Get("u1")
	assert.False(t, found, "u1 should have been evicted as least recently used")
}

func TestEvictionRespectsSizeCap(t *testing.T) {
	c := New(10, 100, time.Hour)
	c.Set("u1", make([]byte, 6), "text/plain", Version{FetchedAt: time.Now()})
	c.Set("u2", make([]byte, 6), "text/plain", Version{FetchedAt: time.Now()})

	assert.LessOrEqual(t, c.SizeBytes(), int64(10))
}

func TestStaleEntryFlaggedAfterTTL(t *testing.T) {
	c := New(1<<20, 10, time.Millisecond)
	c.Set("u1", []byte("x"), "text/plain", Version{FetchedAt: time.Now().Add(-time.Second)})

	_, found, stale := c.Get("u1")
	require.True(t, found)
	assert.True(t, stale)
}

func TestEvictThenReSetRestoresEntry(t *testing.T) {
	c := New(1<<20, 1, time.Hour)
	c.Set("u1", []byte("a"), "text/plain", Version{FetchedAt: time.Now()})
	c.Set("u2", []byte("b"), "text/plain", Version{FetchedAt: time.Now()})
	_, found, _ := c.Get("u1")
	require.False(t, found)

	c.Set("u1", []byte("a"), "text/plain", Version{FetchedAt: time.Now()})
	entry, found, _ := c.Get("u1")
	require.True(t, found)
	assert.Equal(t, "a", string(entry.Content))
}

func TestReinsertSameURLUpdatesNotDuplicates(t *testing.T) {
	c := New(1<<20, 10, time.Hour)
	v := Version{FetchedAt: time.Now(), Origin: OriginPrimary}
	c.Set("u1", []byte("a"), "text/plain", v)
	c.Set("u1", []byte("b"), "text/plain", v)

	assert.Equal(t, 1, c.Len())
	entry, found, _ := c.Get("u1")
	require.True(t, found)
	assert.Equal(t, "b", string(entry.Content))
}
