// Package corerun is the top-level entry point for the research core,
// mirroring the teacher's framework.go: a single assembly point that wires
// every component's default implementation into an Orchestrator and
// exposes one function, Run, as the module's public surface (spec.md §6
// "Exposed").
package corerun

import (
	"context"
	"fmt"

	"github.com/deepresearch/corerun/action"
	"github.com/deepresearch/corerun/cache"
	"github.com/deepresearch/corerun/concurrency"
	"github.com/deepresearch/corerun/corelog"
	"github.com/deepresearch/corerun/evaluate"
	"github.com/deepresearch/corerun/events"
	"github.com/deepresearch/corerun/fallback"
	"github.com/deepresearch/corerun/fetch"
	"github.com/deepresearch/corerun/knowledge"
	"github.com/deepresearch/corerun/ledger"
	"github.com/deepresearch/corerun/llm"
	"github.com/deepresearch/corerun/orchestrator"
	"github.com/deepresearch/corerun/ratelimit"
	"github.com/deepresearch/corerun/researchconfig"
	"github.com/deepresearch/corerun/retry"
	"github.com/deepresearch/corerun/rewrite"
	"github.com/deepresearch/corerun/scrape"
	"github.com/deepresearch/corerun/search"
)

// Capabilities bundles the caller-supplied, domain-specific implementations
// a run needs: an LLM client and at least one search provider. Everything
// else (cache, retry, fallback, rate limiting, concurrency, scraping) has a
// default that Run assembles on its own, exactly as BaseAgent's framework
// wiring auto-configures telemetry/discovery/memory around a caller's
// Agent implementation.
type Capabilities struct {
	LLMClient       llm.Client
	SearchProviders []search.Provider
	Scraper         scrape.Scraper
	FallbackSteps   []fallback.Step
	Sink            events.Sink
	Logger          corelog.Logger
}

// Run assembles the full research core from cfg and caps and drives one
// research loop for question, returning the structured result (spec.md §6:
// "Exposed: Run(question, config) -> ResearchResult").
func Run(ctx context.Context, question string, cfg *researchconfig.Config, caps Capabilities) (*orchestrator.Result, error) {
	o, err := New(cfg, caps)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, question)
}

// New assembles an Orchestrator from cfg and caps without running it,
// for callers that want to drive multiple questions against one
// wired-up core (each call to Orchestrator.Run starts a fresh step loop,
// but the KnowledgeStore, TokenLedger, ConvergenceDetector and URL
// frontier it owns persist across calls).
func New(cfg *researchconfig.Config, caps Capabilities) (*orchestrator.Orchestrator, error) {
	if cfg == nil {
		var err error
		cfg, err = researchconfig.New()
		if err != nil {
			return nil, fmt.Errorf("corerun: default config: %w", err)
		}
	}
	if len(caps.SearchProviders) == 0 {
		return nil, fmt.Errorf("corerun: at least one search provider is required")
	}
	if caps.LLMClient == nil {
		return nil, fmt.Errorf("corerun: an LLM client is required")
	}

	logger := caps.Logger
	if logger == nil {
		logger = corelog.NewSimpleLogger()
	}
	sink := caps.Sink
	if sink == nil {
		sink = events.NoopSink{}
	}

	c := cache.New(cfg.Cache.MaxSizeBytes, cfg.Cache.MaxEntries, cfg.Cache.DefaultTTL)

	retryCfg := retry.DefaultConfig()
	retryer := retry.New(retryCfg, sink)

	// The soft-stale-cache step is the one default fallback step corerun
	// can assemble on its own: it re-serves whatever the cache
	// last held for url even past its TTL. The other steps spec.md §4.4
	// names (web-archive, alternative-mirror) reach external services
	// this module has no contract for, so callers that want them supply
	// their own fallback.Step values in Capabilities.FallbackSteps,
	// tried before this default in chain order.
	steps := append(append([]fallback.Step{}, caps.FallbackSteps...), softStaleCacheStep(c))
	fb := fallback.New(sink, steps...)

	rl := ratelimit.New(ratelimit.Config{
		MaxPerMinute:         cfg.RateLimit.MaxPerMinute,
		MaxPerHour:           cfg.RateLimit.MaxPerHour,
		MaxPerDomain:         cfg.RateLimit.MaxPerDomain,
		MinIntervalPerDomain: cfg.RateLimit.MinIntervalPerDomain,
	})

	concurrencyCfg := concurrency.DefaultConfig()
	concurrencyCfg.Initial = cfg.Concurrency.Initial
	concurrencyCfg.Min = cfg.Concurrency.Min
	concurrencyCfg.Max = cfg.Concurrency.Max
	concurrencyCfg.AdjustmentInterval = cfg.Concurrency.AdjustmentInterval
	concurrencyCfg.CPULimit = cfg.Concurrency.CPULimit
	concurrencyCfg.MemoryLimit = cfg.Concurrency.MemoryLimit
	concurrencyCfg.ScaleDownThreshold = cfg.Concurrency.ScaleDownThreshold
	concurrencyCfg.ScaleUpThreshold = cfg.Concurrency.ScaleUpThreshold
	monitor := &concurrency.GoroutineResourceMonitor{MemoryLimitBytes: uint64(cfg.Cache.MaxSizeBytes) * 4}
	cc := concurrency.New(concurrencyCfg, monitor, sink)
	cc.Start(context.Background())

	scraper := caps.Scraper
	if scraper == nil {
		scraper = scrape.NewHTTPScraper()
	}

	breaker := fetch.NewBreaker(0.5, 5, cfg.StepTimeout*4)

	processor := fetch.New(fetch.Config{
		Cache:        c,
		Retryer:      retryer,
		Fallback:     fb,
		RateLimiter:  rl,
		Concurrency:  cc,
		Scraper:      scraper,
		Breaker:      breaker,
		Sink:         sink,
		FetchTimeout: cfg.StepTimeout,
	})

	store := knowledge.New(uint(cfg.MaxSteps * cfg.MaxURLsPerStep))
	convergence := knowledge.NewConvergenceDetector()

	tl := ledger.New(cfg.TokenBudget, cfg.ReserveFinalRatio, cfg.ReserveFinalIsFractionOfRemaining)

	router := action.New()
	rewriter := rewrite.New(caps.LLMClient, tl, logger)
	evaluator := evaluate.New(caps.LLMClient, tl, logger)
	searcher := search.NewChain(caps.SearchProviders...)
	integrator := orchestrator.NewIntegrator(0.8)

	return orchestrator.New(orchestrator.Deps{
		Config:      cfg,
		Ledger:      tl,
		Knowledge:   store,
		Convergence: convergence,
		Router:      router,
		Rewriter:    rewriter,
		Evaluator:   evaluator,
		Processor:   processor,
		Searcher:    searcher,
		LLMClient:   caps.LLMClient,
		Integrator:  integrator,
		Sink:        sink,
		Logger:      logger,
	}), nil
}

// softStaleCacheStep builds the one fallback.Step corerun.New assembles by
// default: re-serving whatever c last cached for a URL, staleness ignored,
// as a last resort when the primary scrape and every caller-supplied step
// have failed (spec.md §4.4's "soft-stale-cache" step).
func softStaleCacheStep(c *cache.Cache) fallback.Step {
	return fallback.Step{
		Origin: cache.OriginSoftStale,
		Fetch: func(_ context.Context, url string) ([]byte, string, error) {
			entry, found, _ := c.Get(url)
			if !found {
				return nil, "", fmt.Errorf("corerun: no cached content for %s", url)
			}
			return entry.Content, entry.ContentType, nil
		},
	}
}
