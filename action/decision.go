package action

// Flags masks which actions the orchestrator currently permits (spec.md
// §4.12: "allowSearch/allowVisit/allowReflect/allowAnswer/allowCoding").
type Flags struct {
	AllowSearch  bool
	AllowVisit   bool
	AllowReflect bool
	AllowAnswer  bool
	AllowCoding  bool
}

// Inputs carries everything Route needs to decide the next action
// (spec.md §4.12). ConsecutiveLowNovelty counts iterations in a row with
// low novelty, reset by the orchestrator whenever novelty rises.
type Inputs struct {
	Flags Flags

	FrontierThin           bool
	CoverageGapExists      bool
	UnvisitedAboveScore    bool
	ConsecutiveLowNovelty  int
	Converged              bool
	CoverageAdequate       bool
	ReserveExceeded        bool
	RemainingSteps         int
	CodingCapabilityEnabled bool
	QuestionIsProcedural   bool
}

// Router implements the ActionRouter decision tree.
type Router struct{}

// New creates a Router.
func New() *Router { return &Router{} }

// Route picks the next Action from in, honoring Flags and the documented
// tie-break order answer > visit > search > reflect > coding (spec.md
// §4.12).
func (r *Router) Route(in Inputs) Action {
	beastMode := in.RemainingSteps <= 1

	wantsAnswer := beastMode || in.ReserveExceeded || in.CoverageAdequate
	wantsVisit := in.UnvisitedAboveScore
	wantsSearch := in.FrontierThin && in.CoverageGapExists
	wantsReflect := in.ConsecutiveLowNovelty >= 2 && !in.Converged
	wantsCoding := in.CodingCapabilityEnabled && in.QuestionIsProcedural

	switch {
	case wantsAnswer && in.Flags.AllowAnswer:
		reason := "coverage adequate"
		if beastMode {
			reason = "remaining step budget <= 1"
		} else if in.ReserveExceeded {
			reason = "token reserve exceeded"
		}
		return Answer{Reason: reason, BeastMode: beastMode}
	case wantsVisit && in.Flags.AllowVisit:
		return Visit{Reason: "unvisited URLs above score threshold"}
	case wantsSearch && in.Flags.AllowSearch:
		return Search{Reason: "frontier thin and coverage gap exists"}
	case wantsReflect && in.Flags.AllowReflect:
		return Reflect{Reason: "novelty low for two consecutive steps"}
	case wantsCoding && in.Flags.AllowCoding:
		return Coding{Reason: "procedural question with coding enabled"}
	}

	return r.fallback(in)
}

// fallback chooses among the flags still permitted when no condition's
// preferred action is currently allowed, preserving the documented
// tie-break order.
func (r *Router) fallback(in Inputs) Action {
	switch {
	case in.Flags.AllowAnswer:
		return Answer{Reason: "fallback: no other action permitted"}
	case in.Flags.AllowVisit:
		return Visit{Reason: "fallback: no other action permitted"}
	case in.Flags.AllowSearch:
		return Search{Reason: "fallback: no other action permitted"}
	case in.Flags.AllowReflect:
		return Reflect{Reason: "fallback: no other action permitted"}
	case in.Flags.AllowCoding:
		return Coding{Reason: "fallback: no other action permitted"}
	default:
		return Answer{Reason: "fallback: all actions masked", BeastMode: true}
	}
}
