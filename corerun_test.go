package corerun

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch/corerun/llm"
	"github.com/deepresearch/corerun/orchestrator"
	"github.com/deepresearch/corerun/researchconfig"
	"github.com/deepresearch/corerun/search"
)

type fakeSearchProvider struct{ hits []search.Hit }

func (f fakeSearchProvider) Name() string { return "fake" }
func (f fakeSearchProvider) Search(ctx context.Context, query string, topK int) ([]search.Hit, error) {
	return f.hits, nil
}

type passAllLLM struct{}

func (passAllLLM) Chat(ctx context.Context, messages []llm.Message, temperature float32, maxTokens int) (llm.Response, error) {
	return llm.Response{Content: `{"pass": true, "rationale": "sufficient", "improvement_plan": ""}`}, nil
}

func TestNewRequiresAtLeastOneSearchProvider(t *testing.T) {
	_, err := New(nil, Capabilities{LLMClient: passAllLLM{}})
	assert.Error(t, err)
}

func TestRunAssemblesDefaultsAndProducesAResult(t *testing.T) {
	cfg, err := researchconfig.New(
		researchconfig.WithMaxSteps(3),
		researchconfig.WithTotalTimeout(5*time.Second),
		researchconfig.WithStepTimeout(2*time.Second),
	)
	require.NoError(t, err)

	result, err := Run(context.Background(), "What is the capital of Testland?", cfg, Capabilities{
		LLMClient:       passAllLLM{},
		SearchProviders: []search.Provider{fakeSearchProvider{}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Steps)
	assert.Contains(t, []orchestrator.State{orchestrator.StateAnswered, orchestrator.StateMaxSteps, orchestrator.StateBudgetExceeded}, result.CompletionReason)
}
