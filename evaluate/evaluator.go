// Package evaluate implements AnswerEvaluator (spec.md C10): per-dimension
// grading of a candidate answer via bounded LLM calls, degrading to a
// non-terminating failure verdict rather than propagating an error into
// the orchestrator. Grounded on ai/client.go's prompt-construction style
// and the teacher's JSON-repair helpers for lenient LLM output parsing.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepresearch/corerun/corelog"
	"github.com/deepresearch/corerun/ledger"
	"github.com/deepresearch/corerun/llm"
)

// Dimension is one axis an answer is graded along (spec.md §4.10).
type Dimension string

const (
	DimensionDefinitive  Dimension = "definitive"
	DimensionFreshness   Dimension = "freshness"
	DimensionPlurality   Dimension = "plurality"
	DimensionCompleteness Dimension = "completeness"
	DimensionAttribution Dimension = "attribution"
)

// DefaultDimensions is the full set evaluated when the caller doesn't
// restrict to a subset.
var DefaultDimensions = []Dimension{
	DimensionDefinitive,
	DimensionFreshness,
	DimensionPlurality,
	DimensionCompleteness,
	DimensionAttribution,
}

// Verdict is the EvaluationVerdict for one dimension.
type Verdict struct {
	Dimension       Dimension
	Pass            bool
	Rationale       string
	ImprovementPlan string
}

// unavailableRationale is emitted whenever an evaluation LLM call fails;
// the orchestrator treats this as a non-terminating, retryable signal
// rather than a crash (spec.md §4.10).
const unavailableRationale = "evaluator-unavailable"

// Evaluator grades candidate answers dimension by dimension.
type Evaluator struct {
	client llm.Client
	ledger *ledger.TokenLedger
	logger corelog.Logger
}

// New creates an Evaluator. logger may be nil.
func New(client llm.Client, tokenLedger *ledger.TokenLedger, logger corelog.Logger) *Evaluator {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	return &Evaluator{client: client, ledger: tokenLedger, logger: corelog.ScopeComponent(logger, "evaluate")}
}

// Evaluate grades candidateAnswer against question and knowledgeSummary
// across dimensions, returning one Verdict per dimension in the same
// order. A failed LLM call degrades to a pass=false verdict rather than
// returning an error (spec.md §4.10).
func (e *Evaluator) Evaluate(ctx context.Context, question, candidateAnswer, knowledgeSummary string, dimensions []Dimension) []Verdict {
	if len(dimensions) == 0 {
		dimensions = DefaultDimensions
	}

	verdicts := make([]Verdict, len(dimensions))
	for i, dim := range dimensions {
		verdicts[i] = e.evaluateDimension(ctx, dim, question, candidateAnswer, knowledgeSummary)
	}
	return verdicts
}

func (e *Evaluator) evaluateDimension(ctx context.Context, dim Dimension, question, candidateAnswer, knowledgeSummary string) Verdict {
	if e.client == nil {
		e.logger.Warn("evaluation call skipped: no LLM client configured", map[string]interface{}{"dimension": string(dim)})
		return Verdict{Dimension: dim, Pass: false, Rationale: unavailableRationale}
	}

	resp, err := e.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPromptFor(dim)},
		{Role: llm.RoleUser, Content: userPrompt(question, candidateAnswer, knowledgeSummary)},
	}, 0.0, 400)
	if err != nil {
		e.logger.Warn("evaluation call failed", map[string]interface{}{"dimension": string(dim), "error": err.Error()})
		return Verdict{Dimension: dim, Pass: false, Rationale: unavailableRationale}
	}

	if e.ledger != nil {
		e.ledger.Record(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	parsed, ok := extractVerdict(resp.Content)
	if !ok {
		e.logger.Warn("evaluation response unparsable", map[string]interface{}{"dimension": string(dim)})
		return Verdict{Dimension: dim, Pass: false, Rationale: unavailableRationale}
	}

	return Verdict{
		Dimension:       dim,
		Pass:            parsed.Pass,
		Rationale:       parsed.Rationale,
		ImprovementPlan: parsed.ImprovementPlan,
	}
}

type wireVerdict struct {
	Pass            bool   `json:"pass"`
	Rationale       string `json:"rationale"`
	ImprovementPlan string `json:"improvement_plan"`
}

// extractVerdict decodes the first balanced `{...}` span found in raw,
// rather than requiring the whole response to be valid JSON (spec.md §9
// Design Notes: "attempt JSON decode within a matched span; on failure,
// substitute the deterministic fallback -- never throw into the
// orchestrator").
func extractVerdict(raw string) (wireVerdict, bool) {
	span, ok := firstJSONObject(raw)
	if !ok {
		return wireVerdict{}, false
	}
	var v wireVerdict
	if err := json.Unmarshal([]byte(span), &v); err != nil {
		return wireVerdict{}, false
	}
	return v, true
}

// firstJSONObject returns the substring spanning the first balanced
// top-level `{...}` brace pair in s.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func systemPromptFor(dim Dimension) string {
	criteria := map[Dimension]string{
		DimensionDefinitive:   "whether the answer commits to a conclusion rather than hedging",
		DimensionFreshness:    "whether cited sources are recent enough for the question's time-sensitivity",
		DimensionPlurality:    "whether the answer enumerates as many distinct items as the question requires",
		DimensionCompleteness: "whether the answer covers every aspect implicit in the question",
		DimensionAttribution:  "whether each claim in the answer is tied to a source",
	}
	return fmt.Sprintf(
		"You are grading a research answer on exactly one dimension: %s. "+
			`Respond with a single JSON object: {"pass": bool, "rationale": string, "improvement_plan": string}. `+
			"improvement_plan should be empty when pass is true.",
		criteria[dim],
	)
}

func userPrompt(question, candidateAnswer, knowledgeSummary string) string {
	return fmt.Sprintf("Question: %s\n\nCandidate answer: %s\n\nKnowledge summary:\n%s", question, candidateAnswer, knowledgeSummary)
}

// AllPass reports whether every verdict in verdicts passed.
func AllPass(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if !v.Pass {
			return false
		}
	}
	return true
}
