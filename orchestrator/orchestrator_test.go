package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch/corerun/action"
	"github.com/deepresearch/corerun/cache"
	"github.com/deepresearch/corerun/evaluate"
	"github.com/deepresearch/corerun/fetch"
	"github.com/deepresearch/corerun/knowledge"
	"github.com/deepresearch/corerun/ledger"
	"github.com/deepresearch/corerun/llm"
	"github.com/deepresearch/corerun/researchconfig"
	"github.com/deepresearch/corerun/rewrite"
	"github.com/deepresearch/corerun/search"
)

type fakeSearchProvider struct{ hits []search.Hit }

func (f fakeSearchProvider) Name() string { return "fake" }
func (f fakeSearchProvider) Search(ctx context.Context, query string, topK int) ([]search.Hit, error) {
	return f.hits, nil
}

type passAllLLM struct{}

func (passAllLLM) Chat(ctx context.Context, messages []llm.Message, temperature float32, maxTokens int) (llm.Response, error) {
	return llm.Response{
		Content: `{"pass": true, "rationale": "sufficient", "improvement_plan": ""}`,
		Usage:   llm.Usage{PromptTokens: 5, CompletionTokens: 5},
	}, nil
}

func buildOrchestrator(t *testing.T, hits []search.Hit) *Orchestrator {
	t.Helper()

	cfg, err := researchconfig.New(
		researchconfig.WithTokenBudget(100000),
		researchconfig.WithMaxSteps(5),
		researchconfig.WithMaxBadAttempts(2),
		researchconfig.WithStepTimeout(5*time.Second),
		researchconfig.WithTotalTimeout(10*time.Second),
	)
	require.NoError(t, err)

	tl := ledger.New(cfg.TokenBudget, cfg.ReserveFinalRatio, false)
	store := knowledge.New(100)
	conv := knowledge.NewConvergenceDetector()
	router := action.New()
	rewriter := rewrite.New(nil, tl, nil)
	llmClient := passAllLLM{}
	evaluator := evaluate.New(llmClient, tl, nil)

	searcher := search.NewChain(fakeSearchProvider{hits: hits})

	c := cache.New(1<<20, 100, time.Hour)
	processor := fetch.New(fetch.Config{Cache: c})

	integrator := NewIntegrator(0.8)

	return New(Deps{
		Config:      cfg,
		Ledger:      tl,
		Knowledge:   store,
		Convergence: conv,
		Router:      router,
		Rewriter:    rewriter,
		Evaluator:   evaluator,
		Processor:   processor,
		Searcher:    searcher,
		LLMClient:   llmClient,
		Integrator:  integrator,
	})
}

func TestRunTerminatesWithAnswerWhenCoverageAdequate(t *testing.T) {
	o := buildOrchestrator(t, nil)

	// Pre-seed knowledge so coverage looks adequate immediately and the
	// router chooses answer on the very first step. Coverage is measured
	// against the rewriter's layer queries, which without an LLM client are
	// the question plus one fixed suffix per layer.
	o.knowledge.Add(knowledge.Item{ID: "seed", SourceID: "seed", Content: "seed content", Keywords: []string{
		"What is the seed topic? definition",
		"What is the seed topic? examples",
		"What is the seed topic? history",
		"What is the seed topic? applications",
		"What is the seed topic? impact",
	}})

	result, err := o.Run(context.Background(), "What is the seed topic?")
	require.NoError(t, err)
	assert.Equal(t, StateAnswered, result.CompletionReason)
	assert.NotEmpty(t, result.Steps)
}

func TestRunStopsAtMaxStepsWhenNeverAnswering(t *testing.T) {
	cfg, err := researchconfig.New(researchconfig.WithTokenBudget(100000), researchconfig.WithMaxSteps(2), researchconfig.WithTotalTimeout(5*time.Second))
	require.NoError(t, err)

	tl := ledger.New(cfg.TokenBudget, cfg.ReserveFinalRatio, false)
	store := knowledge.New(100)
	conv := knowledge.NewConvergenceDetector()
	router := action.New()
	rewriter := rewrite.New(nil, tl, nil)

	failLLM := failingLLM{}
	evaluator := evaluate.New(failLLM, tl, nil)
	searcher := search.NewChain(fakeSearchProvider{})
	c := cache.New(1<<20, 100, time.Hour)
	processor := fetch.New(fetch.Config{Cache: c})

	o := New(Deps{
		Config:      cfg,
		Ledger:      tl,
		Knowledge:   store,
		Convergence: conv,
		Router:      router,
		Rewriter:    rewriter,
		Evaluator:   evaluator,
		Processor:   processor,
		Searcher:    searcher,
		Integrator:  NewIntegrator(0.8),
	})

	result, err := o.Run(context.Background(), "An unanswerable question")
	require.NoError(t, err)
	assert.Contains(t, []State{StateMaxSteps, StateAnswered}, result.CompletionReason)
}

type failingLLM struct{}

func (failingLLM) Chat(ctx context.Context, messages []llm.Message, temperature float32, maxTokens int) (llm.Response, error) {
	return llm.Response{}, fmt.Errorf("llm unavailable")
}
