// Package action implements ActionRouter (spec.md C12) as a sum type:
// Action is a sealed interface implemented by exactly the five concrete
// step kinds, dispatched by the orchestrator via a type switch (spec.md
// §9 Design Notes: "re-architect as a sum type ... dispatched by pattern
// match" replaces the source's string-tagged action object).
package action

// Action is the sealed sum type of next-step decisions. Only the types
// in this file implement it.
type Action interface {
	isAction()
}

// Search asks the orchestrator to rewrite the current question and
// enqueue search hits into the URL frontier.
type Search struct {
	Reason string
}

// Visit asks the orchestrator to dispatch the top-K unvisited URLs.
type Visit struct {
	Reason string
}

// Reflect asks the orchestrator to generate follow-up sub-questions.
type Reflect struct {
	Reason string
}

// Answer asks the orchestrator to run the AnswerEvaluator against a
// candidate answer. BeastMode marks a forced terminal answer (spec.md
// §4.12) that must stop the run regardless of verdict.
type Answer struct {
	Reason    string
	BeastMode bool
}

// Coding asks the orchestrator to run the (opaque) coding subroutine.
type Coding struct {
	Reason string
}

func (Search) isAction()  {}
func (Visit) isAction()   {}
func (Reflect) isAction() {}
func (Answer) isAction()  {}
func (Coding) isAction()  {}
