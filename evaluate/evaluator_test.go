package evaluate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch/corerun/ledger"
	"github.com/deepresearch/corerun/llm"
)

type fakeLLM struct {
	response llm.Response
	err      error
}

func (f fakeLLM) Chat(ctx context.Context, messages []llm.Message, temperature float32, maxTokens int) (llm.Response, error) {
	return f.response, f.err
}

func TestEvaluateParsesJSONVerdict(t *testing.T) {
	client := fakeLLM{response: llm.Response{
		Content: `Here is my assessment: {"pass": true, "rationale": "answer is conclusive", "improvement_plan": ""}`,
		Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 5},
	}}
	tl := ledger.New(1000, 0.1, false)
	e := New(client, tl, nil)

	verdicts := e.Evaluate(context.Background(), "What is Go?", "Go is a compiled language.", "summary", []Dimension{DimensionDefinitive})
	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Pass)
	assert.Equal(t, "answer is conclusive", verdicts[0].Rationale)
	assert.Equal(t, int64(15), tl.Total())
}

func TestEvaluateDegradesOnLLMFailure(t *testing.T) {
	client := fakeLLM{err: errors.New("connection refused")}
	e := New(client, nil, nil)

	verdicts := e.Evaluate(context.Background(), "q", "a", "s", []Dimension{DimensionCompleteness})
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Pass)
	assert.Equal(t, unavailableRationale, verdicts[0].Rationale)
}

func TestEvaluateDegradesOnUnparsableResponse(t *testing.T) {
	client := fakeLLM{response: llm.Response{Content: "I cannot comply with JSON format."}}
	e := New(client, nil, nil)

	verdicts := e.Evaluate(context.Background(), "q", "a", "s", []Dimension{DimensionAttribution})
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Pass)
}

func TestAllPass(t *testing.T) {
	assert.True(t, AllPass([]Verdict{{Pass: true}, {Pass: true}}))
	assert.False(t, AllPass([]Verdict{{Pass: true}, {Pass: false}}))
}
