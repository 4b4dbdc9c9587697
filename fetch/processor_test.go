package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch/corerun/cache"
	"github.com/deepresearch/corerun/events"
	"github.com/deepresearch/corerun/fallback"
	"github.com/deepresearch/corerun/retry"
	"github.com/deepresearch/corerun/scrape"
)

type fakeScraper struct {
	calls   int
	content scrape.Content
	err     error
}

func (f *fakeScraper) Fetch(ctx context.Context, url string, timeout time.Duration) (scrape.Content, error) {
	f.calls++
	if f.err != nil {
		return scrape.Content{}, f.err
	}
	return f.content, nil
}

func TestProcessCacheHitSkipsScrape(t *testing.T) {
	c := cache.New(1<<20, 100, time.Hour)
	c.Set("http://example.com/a", []byte("cached body"), "text/plain", cache.Version{Origin: cache.OriginPrimary, FetchedAt: time.Now()})

	scraper := &fakeScraper{}
	p := New(Config{Cache: c, Scraper: scraper})

	res := p.Process(context.Background(), "http://example.com/a")
	require.NoError(t, res.Err)
	assert.True(t, res.FromCache)
	assert.Equal(t, "cached body", res.Content)
	assert.Equal(t, 0, scraper.calls)
}

func TestProcessScrapeSuccessPopulatesCache(t *testing.T) {
	c := cache.New(1<<20, 100, time.Hour)
	scraper := &fakeScraper{content: scrape.Content{Content: "fresh body", ContentType: "text/html"}}
	p := New(Config{Cache: c, Scraper: scraper, Retryer: retry.New(retry.DefaultConfig(), nil)})

	res := p.Process(context.Background(), "http://example.com/b")
	require.NoError(t, res.Err)
	assert.Equal(t, "fresh body", res.Content)
	assert.Equal(t, 1, scraper.calls)

	entry, found, _ := c.Get("http://example.com/b")
	require.True(t, found)
	assert.Equal(t, "fresh body", string(entry.Content))
}

func TestProcessFallsBackOnScrapeFailure(t *testing.T) {
	scraper := &fakeScraper{err: &retry.Classified{Tag: "CLIENT_ERROR", Err: errors.New("not found")}}
	fb := fallback.New(nil, fallback.Step{
		Origin: cache.OriginArchive,
		Fetch: func(ctx context.Context, url string) ([]byte, string, error) {
			return []byte("archived body"), "text/plain", nil
		},
	})
	p := New(Config{Scraper: scraper, Fallback: fb})

	res := p.Process(context.Background(), "http://example.com/c")
	require.NoError(t, res.Err)
	assert.Equal(t, "archived body", res.Content)
	assert.Equal(t, cache.OriginArchive, res.Origin)
}

func TestProcessFailsWhenFallbackExhausted(t *testing.T) {
	scraper := &fakeScraper{err: &retry.Classified{Tag: "CLIENT_ERROR", Err: errors.New("not found")}}
	p := New(Config{Scraper: scraper, Fallback: fallback.New(nil)})

	var failed []events.Event
	sink := sinkFunc(func(e events.Event) { failed = append(failed, e) })
	p.sink = sink

	res := p.Process(context.Background(), "http://example.com/d")
	require.Error(t, res.Err)

	found := false
	for _, e := range failed {
		if e.Kind == events.KindURLFailed {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProcessManyReturnsOneResultPerURL(t *testing.T) {
	scraper := &fakeScraper{content: scrape.Content{Content: "body"}}
	p := New(Config{Scraper: scraper})

	urls := []string{"http://a.com/1", "http://a.com/2", "http://a.com/3"}
	results := p.ProcessMany(context.Background(), urls, 2, 0)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

type sinkFunc func(events.Event)

func (f sinkFunc) Emit(e events.Event) { f(e) }
