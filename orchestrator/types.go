// Package orchestrator implements ResearchOrchestrator (spec.md C13), the
// central state machine driving the step loop, and StepResultIntegrator
// (spec.md C14), which merges step outputs into the final report input.
// Grounded on agent.go/framework.go's run-lifecycle shape: a single-
// threaded driver loop fanning out bounded concurrent work and emitting
// lifecycle events at each stage.
package orchestrator

import (
	"time"

	"github.com/deepresearch/corerun/knowledge"
	"github.com/deepresearch/corerun/ledger"
	"github.com/deepresearch/corerun/rewrite"
)

// State is one node of the orchestrator's state machine (spec.md §4.13).
type State string

const (
	StateIdle           State = "IDLE"
	StateRunning        State = "RUNNING"
	StateAnswered       State = "ANSWERED"
	StateBudgetExceeded State = "BUDGET_EXCEEDED"
	StateMaxSteps       State = "MAX_STEPS"
	StateTimeout        State = "TIMEOUT"
	StateUserStopped    State = "USER_STOPPED"
)

// WeightedURL is a candidate URL in the orchestrator's per-run frontier
// (spec.md §3).
type WeightedURL struct {
	URL            string
	Title          string
	Snippet        string
	Weight         float64
	SourceProvider string
	Visited        bool
	Failed         bool
}

// StepAction is one append-only entry in the run's step log (spec.md §3).
type StepAction struct {
	StepNumber int
	Action     string
	Think      string
	Params     map[string]interface{}
	Timestamp  time.Time
	Success    bool
	Error      string
	TokenUsage ledger.Usage
}

// Reference is one cited source in the final result.
type Reference struct {
	URL        string
	Title      string
	Quote      string
	AccessedAt time.Time
}

// Metadata is the auxiliary run summary attached to a ResearchResult.
type Metadata struct {
	DurationMs      int64
	StepCount       int
	BeastModeUsed   bool
	QuestionType    rewrite.QuestionType
	ComplexityScore int
}

// Result is the ResearchResult returned by Run (spec.md §6 "Exposed").
type Result struct {
	Answer           string
	References       []Reference
	Knowledge        []knowledge.Item
	Steps            []StepAction
	TokenUsage       ledger.Usage
	Metadata         Metadata
	CompletionReason State
	Gaps             []string
	Contradictions   []Contradiction
	Confidence       float64
}
