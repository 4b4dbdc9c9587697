package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deepresearch/corerun/action"
	"github.com/deepresearch/corerun/corelog"
	"github.com/deepresearch/corerun/evaluate"
	"github.com/deepresearch/corerun/events"
	"github.com/deepresearch/corerun/fetch"
	"github.com/deepresearch/corerun/knowledge"
	"github.com/deepresearch/corerun/ledger"
	"github.com/deepresearch/corerun/llm"
	"github.com/deepresearch/corerun/researchconfig"
	"github.com/deepresearch/corerun/rewrite"
	"github.com/deepresearch/corerun/search"
)

// noveltyConvergenceThreshold is the ConvergenceDetector threshold the
// orchestrator applies. spec.md §6's configuration table does not name
// this as a caller-tunable option, so it is fixed here at a value that
// damps single-iteration spikes without stalling genuinely plateaued
// runs (spec.md §4.9).
const noveltyConvergenceThreshold = 0.2

// coverageAdequateThreshold is the average CoverageAgainst score above
// which the router treats coverage as "adequate" (spec.md §4.12).
const coverageAdequateThreshold = 0.7

// lowNoveltyRate is the novelty rate below which an iteration counts
// toward ConsecutiveLowNovelty (spec.md §4.12: "novelty has been low").
const lowNoveltyRate = 0.15

// Deps bundles every collaborator the Orchestrator composes.
type Deps struct {
	Config      *researchconfig.Config
	Ledger      *ledger.TokenLedger
	Knowledge   *knowledge.Store
	Convergence *knowledge.ConvergenceDetector
	Router      *action.Router
	Rewriter    *rewrite.Rewriter
	Evaluator   *evaluate.Evaluator
	Processor   *fetch.Processor
	Searcher    *search.Chain
	LLMClient   llm.Client
	Integrator  *Integrator
	Sink        events.Sink
	Logger      corelog.Logger
}

// Orchestrator drives the research loop (spec.md C13).
type Orchestrator struct {
	cfg         *researchconfig.Config
	ledger      *ledger.TokenLedger
	knowledge   *knowledge.Store
	convergence *knowledge.ConvergenceDetector
	router      *action.Router
	rewriter    *rewrite.Rewriter
	evaluator   *evaluate.Evaluator
	processor   *fetch.Processor
	searcher    *search.Chain
	llmClient   llm.Client
	integrator  *Integrator
	sink        events.Sink
	logger      corelog.Logger

	mu        sync.Mutex
	frontier  []*WeightedURL
	pendingQ  []string
}

// New creates an Orchestrator from deps.
func New(deps Deps) *Orchestrator {
	sink := deps.Sink
	if sink == nil {
		sink = events.NoopSink{}
	}
	integrator := deps.Integrator
	if integrator == nil {
		integrator = NewIntegrator(0.8)
	}
	return &Orchestrator{
		cfg:         deps.Config,
		ledger:      deps.Ledger,
		knowledge:   deps.Knowledge,
		convergence: deps.Convergence,
		router:      deps.Router,
		rewriter:    deps.Rewriter,
		evaluator:   deps.Evaluator,
		processor:   deps.Processor,
		searcher:    deps.Searcher,
		llmClient:   deps.LLMClient,
		integrator:  integrator,
		sink:        sink,
		logger:      corelog.ScopeComponent(deps.Logger, "orchestrator"),
	}
}

// Run drives the research loop for question until termination (spec.md
// §4.13), returning the structured result regardless of whether the run
// ended successfully.
func (o *Orchestrator) Run(ctx context.Context, question string) (*Result, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.TotalTimeout)
	defer cancel()

	expansion := o.rewriter.Expand(runCtx, question)
	o.seedPendingQuestions(question)

	var (
		steps                 []StepAction
		consecutiveLowNovelty int
		badAttempts           int
		beastModeUsed         bool
		candidateAnswer       string
		noveltyRates          []float64
		gaps                  []string
		reason                State
	)

	step := 0
stepLoop:
	for {
		select {
		case <-ctx.Done():
			reason = StateUserStopped
			break stepLoop
		case <-runCtx.Done():
			reason = StateTimeout
			break stepLoop
		default:
		}

		step++
		if step > o.cfg.MaxSteps {
			reason = StateMaxSteps
			break stepLoop
		}

		o.sink.Emit(events.Event{Kind: events.KindIterationStart, Subject: fmt.Sprintf("%d", step)})

		remainingSteps := o.cfg.MaxSteps - step + 1
		inputs := action.Inputs{
			Flags: action.Flags{
				AllowSearch:  true,
				AllowVisit:   true,
				AllowReflect: true,
				AllowAnswer:  true,
				AllowCoding:  o.cfg.AllowCoding,
			},
			FrontierThin:            o.unvisitedCount() < o.cfg.MaxURLsPerStep,
			CoverageGapExists:       o.coverageGapExists(expansion),
			UnvisitedAboveScore:     o.hasUnvisitedAboveScore(),
			ConsecutiveLowNovelty:   consecutiveLowNovelty,
			Converged:               o.convergence.HasConverged(noveltyConvergenceThreshold),
			CoverageAdequate:        o.coverageAdequate(expansion),
			ReserveExceeded:         o.ledger.ReserveExceeded(),
			RemainingSteps:          remainingSteps,
			CodingCapabilityEnabled: o.cfg.AllowCoding,
			QuestionIsProcedural:    expansion.Type == rewrite.TypeProcedural,
		}
		if badAttempts >= o.cfg.MaxBadAttempts || o.ledger.BeastModeThresholdExceeded(o.cfg.BeastModeThreshold) {
			inputs.RemainingSteps = 1 // coerce beast mode (spec.md §4.13)
		}

		act := o.router.Route(inputs)

		knowledgeBefore := o.knowledge.Len()
		sa := StepAction{StepNumber: step, Timestamp: time.Now(), Params: map[string]interface{}{}}

		stepCtx, stepCancel := context.WithTimeout(runCtx, o.cfg.StepTimeout)
		switch a := act.(type) {
		case action.Search:
			sa.Action = "search"
			sa.Think = a.Reason
			err := o.handleSearch(stepCtx, expansion)
			sa.Success = err == nil
			if err != nil {
				sa.Error = err.Error()
			}
		case action.Visit:
			sa.Action = "visit"
			sa.Think = a.Reason
			o.handleVisit(stepCtx)
			sa.Success = true
		case action.Reflect:
			sa.Action = "reflect"
			sa.Think = a.Reason
			gaps = o.handleReflect(stepCtx, expansion)
			sa.Success = true
		case action.Answer:
			sa.Action = "answer"
			sa.Think = a.Reason
			if a.BeastMode {
				beastModeUsed = true
			}
			answer, pass := o.handleAnswer(stepCtx, question, expansion)
			candidateAnswer = answer
			sa.Success = pass
			if pass {
				stepCancel()
				steps = append(steps, sa)
				reason = StateAnswered
				break stepLoop
			}
			badAttempts++
			if a.BeastMode {
				stepCancel()
				steps = append(steps, sa)
				reason = StateAnswered
				break stepLoop
			}
		case action.Coding:
			sa.Action = "coding"
			sa.Think = a.Reason
			o.handleCoding(stepCtx, question)
			sa.Success = true
		}
		stepCancel()

		knowledgeAfter := o.knowledge.Len()
		rate := o.convergence.Record(knowledgeAfter-knowledgeBefore, knowledgeBefore)
		noveltyRates = append(noveltyRates, rate)
		if rate < lowNoveltyRate {
			consecutiveLowNovelty++
		} else {
			consecutiveLowNovelty = 0
		}

		steps = append(steps, sa)
		o.sink.Emit(events.Event{Kind: events.KindIterationComplete, Subject: fmt.Sprintf("%d", step)})

		if o.ledger.ReserveExceeded() && candidateAnswer == "" {
			reason = StateBudgetExceeded
			break stepLoop
		}
	}

	if reason == "" {
		reason = StateBudgetExceeded
	}

	items := o.knowledge.Items()
	findings, contradictions, confidence := o.integrator.Integrate(items, noveltyRates, gaps)

	result := &Result{
		Answer:           candidateAnswer,
		References:       o.buildReferences(findings),
		Knowledge:        findings,
		Steps:            steps,
		TokenUsage:       o.ledger.Usage(),
		CompletionReason: reason,
		Gaps:             gaps,
		Contradictions:   contradictions,
		Confidence:       confidence,
		Metadata: Metadata{
			DurationMs:      time.Since(start).Milliseconds(),
			StepCount:       len(steps),
			BeastModeUsed:   beastModeUsed,
			QuestionType:    expansion.Type,
			ComplexityScore: expansion.Complexity,
		},
	}

	o.sink.Emit(events.Event{Kind: events.KindComplete, Data: map[string]interface{}{"reason": string(reason)}})
	return result, nil
}

func (o *Orchestrator) seedPendingQuestions(question string) {
	o.mu.Lock()
	o.pendingQ = append(o.pendingQ, question)
	o.mu.Unlock()
}

func (o *Orchestrator) unvisitedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, u := range o.frontier {
		if !u.Visited && !u.Failed {
			n++
		}
	}
	return n
}

func (o *Orchestrator) hasUnvisitedAboveScore() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, u := range o.frontier {
		if !u.Visited && !u.Failed && u.Weight >= o.cfg.MinRelevanceScore {
			return true
		}
	}
	return false
}

func (o *Orchestrator) coverageGapExists(expansion rewrite.Expansion) bool {
	axes := intentAxes(expansion)
	coverage := o.knowledge.CoverageAgainst(axes)
	for _, score := range coverage {
		if score < 1.0 {
			return true
		}
	}
	return false
}

func (o *Orchestrator) coverageAdequate(expansion rewrite.Expansion) bool {
	axes := intentAxes(expansion)
	if len(axes) == 0 {
		return o.knowledge.Len() > 0
	}
	coverage := o.knowledge.CoverageAgainst(axes)
	total := 0.0
	for _, score := range coverage {
		total += score
	}
	return total/float64(len(coverage)) >= coverageAdequateThreshold
}

func intentAxes(expansion rewrite.Expansion) map[string][]string {
	axes := make(map[string][]string, len(expansion.LayerQueries))
	for layer, queries := range expansion.LayerQueries {
		axes[string(layer)] = queries
	}
	return axes
}

// handleSearch rewrites the question (already expanded once per run) and
// dispatches its layered sub-queries to the search chain, enqueuing hits
// into the URL frontier with provider-weighted scores (spec.md §4.13).
func (o *Orchestrator) handleSearch(ctx context.Context, expansion rewrite.Expansion) error {
	queries := flattenQueries(expansion, o.cfg.MaxQueriesPerStep)

	o.mu.Lock()
	pending := o.pendingQ
	o.pendingQ = nil
	o.mu.Unlock()
	queries = append(queries, pending...)

	var lastErr error
	for _, q := range queries {
		hits, provider, err := o.searcher.Search(ctx, q, 10)
		if err != nil {
			lastErr = err
			continue
		}
		o.enqueueHits(hits, provider)
	}
	return lastErr
}

func flattenQueries(expansion rewrite.Expansion, limit int) []string {
	var out []string
	for _, layer := range []rewrite.Layer{rewrite.LayerSurface, rewrite.LayerDeep, rewrite.LayerContext, rewrite.LayerDomain, rewrite.LayerMeta} {
		out = append(out, expansion.LayerQueries[layer]...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (o *Orchestrator) enqueueHits(hits []search.Hit, provider string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	existing := make(map[string]struct{}, len(o.frontier))
	for _, u := range o.frontier {
		existing[u.URL] = struct{}{}
	}
	for _, h := range hits {
		if _, ok := existing[h.URL]; ok {
			continue
		}
		weight := h.Weight
		if weight == 0 {
			weight = 1.0
		}
		o.frontier = append(o.frontier, &WeightedURL{
			URL:            h.URL,
			Title:          h.Title,
			Snippet:        h.Snippet,
			Weight:         weight,
			SourceProvider: provider,
		})
		existing[h.URL] = struct{}{}
	}
}

// handleVisit selects the top-K unvisited URLs by weight and dispatches
// them to URLProcessor.ProcessMany, then serially ingests successes into
// KnowledgeStore (spec.md §5: "their insertion into KnowledgeStore must
// be serialised").
func (o *Orchestrator) handleVisit(ctx context.Context) {
	targets := o.selectTopUnvisited(o.cfg.MaxURLsPerStep)
	if len(targets) == 0 {
		return
	}

	urls := make([]string, len(targets))
	for i, t := range targets {
		urls[i] = t.URL
	}

	results := o.processor.ProcessMany(ctx, urls, o.cfg.Concurrency.Initial, 0)

	byURL := make(map[string]fetch.Result, len(results))
	for _, r := range results {
		byURL[r.URL] = r
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range targets {
		res, ok := byURL[t.URL]
		if !ok {
			continue
		}
		if res.Err != nil {
			t.Failed = true
			continue
		}
		t.Visited = true
		o.knowledge.Add(knowledge.Item{
			ID:         res.URL,
			SourceID:   res.URL,
			SourceKind: knowledge.SourceWeb,
			Summary:    summarize(res.Content, 280),
			Content:    res.Content,
			Keywords:   extractKeywords(res.Content, 10),
			Confidence: 0.7,
		})
	}
}

func (o *Orchestrator) selectTopUnvisited(k int) []*WeightedURL {
	o.mu.Lock()
	defer o.mu.Unlock()

	var candidates []*WeightedURL
	for _, u := range o.frontier {
		if !u.Visited && !u.Failed {
			candidates = append(candidates, u)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Weight > candidates[j].Weight })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// handleReflect generates follow-up sub-questions from the current
// coverage gaps and enqueues them for the next search action (spec.md
// §4.13).
func (o *Orchestrator) handleReflect(ctx context.Context, expansion rewrite.Expansion) []string {
	gaps := o.currentGaps(expansion)
	followUps := o.rewriter.FollowUps(ctx, gaps)

	o.mu.Lock()
	o.pendingQ = append(o.pendingQ, followUps...)
	o.mu.Unlock()

	return gaps
}

func (o *Orchestrator) currentGaps(expansion rewrite.Expansion) []string {
	axes := intentAxes(expansion)
	coverage := o.knowledge.CoverageAgainst(axes)
	var gaps []string
	for axis, score := range coverage {
		if score < 1.0 {
			gaps = append(gaps, axis)
		}
	}
	sort.Strings(gaps)
	return gaps
}

// handleAnswer drafts a candidate answer from the knowledge summary and
// grades it with AnswerEvaluator (spec.md §4.13).
func (o *Orchestrator) handleAnswer(ctx context.Context, question string, expansion rewrite.Expansion) (string, bool) {
	summary := o.knowledge.SummaryText(20, 4000)
	answer := o.draftAnswer(ctx, question, summary)

	verdicts := o.evaluator.Evaluate(ctx, question, answer, summary, nil)
	pass := evaluate.AllPass(verdicts)

	o.sink.Emit(events.Event{Kind: events.KindAnswerEvaluated, Data: map[string]interface{}{"pass": pass}})
	return answer, pass
}

func (o *Orchestrator) draftAnswer(ctx context.Context, question, summary string) string {
	if o.llmClient == nil {
		return summary
	}
	resp, err := o.llmClient.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Answer the user's question using only the provided knowledge summary. Be direct and cite sources by URL where relevant."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Question: %s\n\nKnowledge summary:\n%s", question, summary)},
	}, 0.2, 800)
	if err != nil {
		o.logger.Warn("answer drafting failed, using raw summary", map[string]interface{}{"error": err.Error()})
		return summary
	}
	o.ledger.Record(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.Content
}

// handleCoding runs the opaque coding subroutine (spec.md §4.13 treats
// this as out of scope beyond its KnowledgeItem shape) and records its
// result as a sourceKind=code item.
func (o *Orchestrator) handleCoding(ctx context.Context, question string) {
	if o.llmClient == nil {
		return
	}
	resp, err := o.llmClient.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Produce a concise code solution or computation result for the user's procedural question."},
		{Role: llm.RoleUser, Content: question},
	}, 0.2, 800)
	if err != nil {
		o.logger.Warn("coding subroutine failed", map[string]interface{}{"error": err.Error()})
		return
	}
	o.ledger.Record(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	o.knowledge.Add(knowledge.Item{
		ID:         fmt.Sprintf("code-%d", time.Now().UnixNano()),
		SourceID:   "coding-subroutine",
		SourceKind: knowledge.SourceCode,
		Summary:    summarize(resp.Content, 280),
		Content:    resp.Content,
		Confidence: 0.6,
	})
}

func (o *Orchestrator) buildReferences(items []knowledge.Item) []Reference {
	refs := make([]Reference, 0, len(items))
	for _, item := range items {
		if item.SourceKind != knowledge.SourceWeb {
			continue
		}
		refs = append(refs, Reference{
			URL:        item.SourceID,
			Title:      item.Summary,
			AccessedAt: item.Timestamp,
		})
		if len(refs) >= o.cfg.MaxReferences {
			break
		}
	}
	return refs
}

func summarize(content string, maxChars int) string {
	if len(content) <= maxChars {
		return content
	}
	return content[:maxChars] + "..."
}

var wordRE = regexp.MustCompile(`[A-Za-z]{4,}`)

// extractKeywords returns up to max distinct words (length >= 4) from
// content, ranked by frequency.
func extractKeywords(content string, max int) []string {
	counts := make(map[string]int)
	for _, word := range wordRE.FindAllString(content, -1) {
		counts[strings.ToLower(word)]++
	}
	type kv struct {
		word  string
		count int
	}
	ranked := make([]kv, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, kv{w, c})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })
	if len(ranked) > max {
		ranked = ranked[:max]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.word
	}
	return out
}
