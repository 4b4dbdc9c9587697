// Package fetch implements URLProcessor (spec.md C7): the single-URL fetch
// pipeline combining admission (ratelimit + concurrency), cache lookup,
// retried scraping, and fallback, with emitted progress events. Batch
// fetching uses golang.org/x/sync/errgroup for bounded parallel fan-out,
// mirroring the pack's convention for cancellation-aware worker groups.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deepresearch/corerun/cache"
	"github.com/deepresearch/corerun/concurrency"
	"github.com/deepresearch/corerun/events"
	"github.com/deepresearch/corerun/fallback"
	"github.com/deepresearch/corerun/ratelimit"
	"github.com/deepresearch/corerun/retry"
	"github.com/deepresearch/corerun/scrape"
)

// Result is the outcome of processing one URL.
type Result struct {
	URL         string
	Content     string
	ContentType string
	Title       string
	Origin      cache.Origin
	FromCache   bool
	Err         error
}

// Processor implements the URLProcessor pipeline.
type Processor struct {
	cache       *cache.Cache
	retryer     *retry.Executor
	fallback    *fallback.Chain
	rateLimiter *ratelimit.Limiter
	concurrency *concurrency.Controller
	scraper     scrape.Scraper
	breaker     *Breaker
	sink        events.Sink
	fetchTimeout time.Duration
}

// Config bundles the dependencies a Processor composes, per spec.md §4.7.
type Config struct {
	Cache        *cache.Cache
	Retryer      *retry.Executor
	Fallback     *fallback.Chain
	RateLimiter  *ratelimit.Limiter
	Concurrency  *concurrency.Controller
	Scraper      scrape.Scraper
	// Breaker, if set, guards the scrape step: once it trips open, scrapes
	// fail fast straight to the fallback chain instead of retrying a
	// source that is currently down for everyone.
	Breaker      *Breaker
	Sink         events.Sink
	FetchTimeout time.Duration
}

// New creates a Processor.
func New(cfg Config) *Processor {
	sink := cfg.Sink
	if sink == nil {
		sink = events.NoopSink{}
	}
	return &Processor{
		cache:        cfg.Cache,
		retryer:      cfg.Retryer,
		fallback:     cfg.Fallback,
		rateLimiter:  cfg.RateLimiter,
		concurrency:  cfg.Concurrency,
		scraper:      cfg.Scraper,
		breaker:      cfg.Breaker,
		sink:         sink,
		fetchTimeout: cfg.FetchTimeout,
	}
}

// Process runs the single-URL pipeline: cache lookup -> admission ->
// retried scrape -> fallback -> event emission. The cache lookup comes
// first, so a fresh cache hit returns without passing through the
// concurrency or rate-limit admission. Events for a given URL are emitted in order: urlStart ->
// (retrying|cacheHit|fallbackTriggered)* -> (urlComplete|urlFailed).
func (p *Processor) Process(ctx context.Context, url string) Result {
	p.sink.Emit(events.Event{Kind: events.KindURLStart, Subject: url})

	if p.cache != nil {
		if entry, found, stale := p.cache.Get(url); found && !stale {
			p.sink.Emit(events.Event{Kind: events.KindCacheHit, Subject: url})
			res := Result{URL: url, Content: string(entry.Content), ContentType: entry.ContentType, Origin: entry.CurrentVersion.Origin, FromCache: true}
			p.sink.Emit(events.Event{Kind: events.KindURLComplete, Subject: url})
			return res
		}
	}

	var release func()
	if p.concurrency != nil {
		if err := p.concurrency.Acquire(ctx); err != nil {
			return p.fail(url, err)
		}
	}
	if p.rateLimiter != nil {
		r, err := p.rateLimiter.Admit(ctx, url)
		if err != nil {
			if p.concurrency != nil {
				p.concurrency.Release(false)
			}
			return p.fail(url, err)
		}
		release = r
	}
	releaseAll := func(success bool) {
		if release != nil {
			release()
		}
		if p.concurrency != nil {
			p.concurrency.Release(success)
		}
	}

	content, err := p.scrapeRetried(ctx, url)
	if err == nil {
		releaseAll(true)
		p.cacheInsert(url, content.Content, content.ContentType, cache.OriginPrimary)
		p.sink.Emit(events.Event{Kind: events.KindURLComplete, Subject: url})
		return Result{URL: url, Content: content.Content, ContentType: content.ContentType, Title: content.Title, Origin: cache.OriginPrimary}
	}
	releaseAll(false)

	if p.fallback != nil {
		fbResult, fbErr := p.fallback.Try(ctx, url)
		if fbErr == nil {
			p.cacheInsert(url, string(fbResult.Content), fbResult.ContentType, fbResult.Origin)
			p.sink.Emit(events.Event{Kind: events.KindURLComplete, Subject: url})
			return Result{URL: url, Content: string(fbResult.Content), ContentType: fbResult.ContentType, Origin: fbResult.Origin}
		}
		err = fbErr
	}

	return p.fail(url, err)
}

func (p *Processor) fail(url string, err error) Result {
	p.sink.Emit(events.Event{
		Kind:    events.KindURLFailed,
		Subject: url,
		Data:    map[string]interface{}{"error": err.Error()},
	})
	return Result{URL: url, Err: err}
}

func (p *Processor) scrapeRetried(ctx context.Context, url string) (scrape.Content, error) {
	if p.scraper == nil {
		return scrape.Content{}, fmt.Errorf("fetch: no scraper configured")
	}
	if p.breaker != nil {
		if err := p.breaker.Allow(); err != nil {
			return scrape.Content{}, err
		}
	}

	var content scrape.Content
	runFetch := func(ctx context.Context) error {
		c, err := p.scraper.Fetch(ctx, url, p.fetchTimeout)
		if err != nil {
			return err
		}
		content = c
		return nil
	}

	var err error
	if p.retryer == nil {
		err = runFetch(ctx)
	} else {
		err = p.retryer.Do(ctx, url, runFetch)
	}

	if p.breaker != nil {
		p.breaker.Record(err == nil)
	}
	return content, err
}

func (p *Processor) cacheInsert(url, content, contentType string, origin cache.Origin) {
	if p.cache == nil {
		return
	}
	hash := sha256.Sum256([]byte(content))
	p.cache.Set(url, []byte(content), contentType, cache.Version{
		Hash:      hex.EncodeToString(hash[:]),
		FetchedAt: time.Now(),
		Size:      int64(len(content)),
		Origin:    origin,
	})
}

// ProcessMany runs Process over urls with up to maxConcurrent in parallel,
// using errgroup for cancellation-aware bounded fan-out, optionally
// spacing launches by requestInterval.
func (p *Processor) ProcessMany(ctx context.Context, urls []string, maxConcurrent int, requestInterval time.Duration) []Result {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	results := make([]Result, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			results[i] = p.Process(gctx, url)
			return nil
		})
		if requestInterval > 0 && i < len(urls)-1 {
			timer := time.NewTimer(requestInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}
	_ = g.Wait()
	return results
}
