// Package rewrite implements QueryRewriter (spec.md C11): expands a
// question into layered sub-queries, classifies its type, scores its
// complexity, and generates follow-up queries from a gap set for
// reflective steps. Grounded on ai/client.go's prompt-construction
// conventions, with a deterministic fallback path when the LLM call
// fails so the orchestrator never stalls on a rewrite failure.
package rewrite

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/deepresearch/corerun/corelog"
	"github.com/deepresearch/corerun/ledger"
	"github.com/deepresearch/corerun/llm"
)

// QuestionType classifies the shape of a question (spec.md §4.11).
type QuestionType string

const (
	TypeFactual      QuestionType = "factual"
	TypeExploratory  QuestionType = "exploratory"
	TypeComparative  QuestionType = "comparative"
	TypeCausal       QuestionType = "causal"
	TypeProcedural   QuestionType = "procedural"
	TypeEvaluative   QuestionType = "evaluative"
)

// Layer is one of the sub-query generation layers (spec.md §4.11).
type Layer string

const (
	LayerSurface Layer = "surface"
	LayerDeep    Layer = "deep"
	LayerContext Layer = "context"
	LayerDomain  Layer = "domain"
	LayerMeta    Layer = "meta"
)

var allLayers = []Layer{LayerSurface, LayerDeep, LayerContext, LayerDomain, LayerMeta}

// fallbackSuffix gives each layer a deterministic query expansion when
// the LLM is unavailable (spec.md §4.11: "<q> definition", "<q>
// examples", "<q> history", "<q> applications", "<q> impact").
var fallbackSuffix = map[Layer]string{
	LayerSurface: "definition",
	LayerDeep:    "examples",
	LayerContext: "history",
	LayerDomain:  "applications",
	LayerMeta:    "impact",
}

// Expansion is the output of Expand: a classified question with
// per-layer sub-queries and a complexity score.
type Expansion struct {
	Question     string
	Type         QuestionType
	Complexity   int
	LayerQueries map[Layer][]string
}

// Rewriter expands and classifies questions.
type Rewriter struct {
	client llm.Client
	ledger *ledger.TokenLedger
	logger corelog.Logger
}

// New creates a Rewriter. client may be nil, in which case Expand always
// uses the deterministic fallback path.
func New(client llm.Client, tokenLedger *ledger.TokenLedger, logger corelog.Logger) *Rewriter {
	return &Rewriter{client: client, ledger: tokenLedger, logger: corelog.ScopeComponent(logger, "rewrite")}
}

// Expand classifies question and produces its layered sub-queries.
func (r *Rewriter) Expand(ctx context.Context, question string) Expansion {
	qType := classify(question)
	complexity := complexityScore(question, qType)

	layers := r.layerQueries(ctx, question)

	return Expansion{
		Question:     question,
		Type:         qType,
		Complexity:   complexity,
		LayerQueries: layers,
	}
}

func (r *Rewriter) layerQueries(ctx context.Context, question string) map[Layer][]string {
	if r.client == nil {
		return fallbackLayerQueries(question)
	}

	resp, err := r.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Decompose the user's research question into 2-3 concrete search queries per layer: surface, deep, context, domain, meta. " +
			`Respond with a single JSON object mapping each layer name to an array of query strings.`},
		{Role: llm.RoleUser, Content: question},
	}, 0.3, 500)
	if err != nil {
		r.logger.Warn("rewrite call failed, using deterministic fallback", map[string]interface{}{"error": err.Error()})
		return fallbackLayerQueries(question)
	}
	if r.ledger != nil {
		r.ledger.Record(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	span, ok := firstJSONObject(resp.Content)
	if !ok {
		return fallbackLayerQueries(question)
	}
	var wire map[string][]string
	if err := json.Unmarshal([]byte(span), &wire); err != nil {
		return fallbackLayerQueries(question)
	}

	result := make(map[Layer][]string, len(allLayers))
	for _, layer := range allLayers {
		queries, ok := wire[string(layer)]
		if !ok || len(queries) == 0 {
			result[layer] = fallbackQueriesForLayer(question, layer)
			continue
		}
		result[layer] = queries
	}
	return result
}

func fallbackLayerQueries(question string) map[Layer][]string {
	result := make(map[Layer][]string, len(allLayers))
	for _, layer := range allLayers {
		result[layer] = fallbackQueriesForLayer(question, layer)
	}
	return result
}

func fallbackQueriesForLayer(question string, layer Layer) []string {
	suffix := fallbackSuffix[layer]
	return []string{question + " " + suffix}
}

var questionWordRE = regexp.MustCompile(`(?i)\b(who|what|when|where|why|how|which)\b`)

func classify(question string) QuestionType {
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "vs") || strings.Contains(lower, "versus") || strings.Contains(lower, "compare") || strings.Contains(lower, "difference between"):
		return TypeComparative
	case strings.HasPrefix(lower, "why") || strings.Contains(lower, "cause") || strings.Contains(lower, "reason"):
		return TypeCausal
	case strings.HasPrefix(lower, "how to") || strings.HasPrefix(lower, "how do") || strings.Contains(lower, "steps to"):
		return TypeProcedural
	case strings.Contains(lower, "best") || strings.Contains(lower, "should i") || strings.Contains(lower, "worth it") || strings.Contains(lower, "evaluate"):
		return TypeEvaluative
	case strings.HasPrefix(lower, "explore") || strings.Contains(lower, "overview") || strings.Contains(lower, "landscape"):
		return TypeExploratory
	default:
		return TypeFactual
	}
}

// complexityScore derives a [1,10] score from length, word count,
// question-word count, and the question type (comparative and evaluative
// questions add 2) (spec.md §4.11).
func complexityScore(question string, qType QuestionType) int {
	words := strings.Fields(question)
	wordCount := len(words)
	qWordCount := len(questionWordRE.FindAllString(question, -1))

	score := 1
	score += wordCount / 5
	score += qWordCount * 2
	if qType == TypeComparative || qType == TypeEvaluative {
		score += 2
	}
	if len(question) > 120 {
		score++
	}

	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

// FollowUps generates follow-up queries from a gap set, for reflective
// orchestrator steps (spec.md §4.13 "reflect").
func (r *Rewriter) FollowUps(ctx context.Context, gaps []string) []string {
	if len(gaps) == 0 {
		return nil
	}
	if r.client == nil {
		return deterministicFollowUps(gaps)
	}

	resp, err := r.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Given a list of knowledge gaps, produce one concrete follow-up search query per gap. Respond with a single JSON array of strings."},
		{Role: llm.RoleUser, Content: strings.Join(gaps, "\n")},
	}, 0.3, 300)
	if err != nil {
		return deterministicFollowUps(gaps)
	}
	if r.ledger != nil {
		r.ledger.Record(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	span, ok := firstJSONArray(resp.Content)
	if !ok {
		return deterministicFollowUps(gaps)
	}
	var queries []string
	if err := json.Unmarshal([]byte(span), &queries); err != nil || len(queries) == 0 {
		return deterministicFollowUps(gaps)
	}
	return queries
}

func deterministicFollowUps(gaps []string) []string {
	out := make([]string, len(gaps))
	for i, gap := range gaps {
		out[i] = gap + " details"
	}
	return out
}

func firstJSONObject(s string) (string, bool) {
	return firstBalancedSpan(s, '{', '}')
}

func firstJSONArray(s string) (string, bool) {
	return firstBalancedSpan(s, '[', ']')
}

func firstBalancedSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
