package rewrite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandClassifiesComparative(t *testing.T) {
	r := New(nil, nil, nil)
	exp := r.Expand(context.Background(), "Go vs Rust for systems programming")
	assert.Equal(t, TypeComparative, exp.Type)
}

func TestExpandClassifiesProcedural(t *testing.T) {
	r := New(nil, nil, nil)
	exp := r.Expand(context.Background(), "How to set up a Go module")
	assert.Equal(t, TypeProcedural, exp.Type)
}

func TestExpandFallsBackWithoutClient(t *testing.T) {
	r := New(nil, nil, nil)
	exp := r.Expand(context.Background(), "What is a goroutine")
	require.Len(t, exp.LayerQueries, len(allLayers))
	for _, layer := range allLayers {
		queries, ok := exp.LayerQueries[layer]
		require.True(t, ok)
		require.Len(t, queries, 1)
		assert.Contains(t, queries[0], fallbackSuffix[layer])
	}
}

func TestComplexityScoreBounded(t *testing.T) {
	score := complexityScore("what", TypeFactual)
	assert.GreaterOrEqual(t, score, 1)
	assert.LessOrEqual(t, score, 10)

	longQuestion := "Why does Go's garbage collector behave differently under high allocation pressure compared to Java's, and what tuning knobs exist for both?"
	score = complexityScore(longQuestion, TypeCausal)
	assert.LessOrEqual(t, score, 10)
	assert.Greater(t, score, 1)
}

func TestFollowUpsDeterministicFallback(t *testing.T) {
	r := New(nil, nil, nil)
	out := r.FollowUps(context.Background(), []string{"gap one", "gap two"})
	require.Len(t, out, 2)
	assert.Equal(t, "gap one details", out[0])
}

func TestFollowUpsEmptyGaps(t *testing.T) {
	r := New(nil, nil, nil)
	out := r.FollowUps(context.Background(), nil)
	assert.Nil(t, out)
}
