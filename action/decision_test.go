package action

import "testing"

func allAllowed() Flags {
	return Flags{AllowSearch: true, AllowVisit: true, AllowReflect: true, AllowAnswer: true, AllowCoding: true}
}

func TestRouteAnswerOnBeastMode(t *testing.T) {
	r := New()
	act := r.Route(Inputs{Flags: allAllowed(), RemainingSteps: 1, UnvisitedAboveScore: true})
	ans, ok := act.(Answer)
	if !ok {
		t.Fatalf("expected Answer, got %T", act)
	}
	if !ans.BeastMode {
		t.Fatal("expected beast mode when remaining steps <= 1")
	}
}

func TestRouteAnswerOnReserveExceeded(t *testing.T) {
	r := New()
	act := r.Route(Inputs{Flags: allAllowed(), RemainingSteps: 5, ReserveExceeded: true, UnvisitedAboveScore: true})
	if _, ok := act.(Answer); !ok {
		t.Fatalf("expected Answer, got %T", act)
	}
}

func TestRouteVisitWhenNoAnswerCondition(t *testing.T) {
	r := New()
	act := r.Route(Inputs{Flags: allAllowed(), RemainingSteps: 5, UnvisitedAboveScore: true})
	if _, ok := act.(Visit); !ok {
		t.Fatalf("expected Visit, got %T", act)
	}
}

func TestRouteSearchWhenFrontierThin(t *testing.T) {
	r := New()
	act := r.Route(Inputs{Flags: allAllowed(), RemainingSteps: 5, FrontierThin: true, CoverageGapExists: true})
	if _, ok := act.(Search); !ok {
		t.Fatalf("expected Search, got %T", act)
	}
}

func TestRouteReflectOnLowNovelty(t *testing.T) {
	r := New()
	act := r.Route(Inputs{Flags: allAllowed(), RemainingSteps: 5, ConsecutiveLowNovelty: 2})
	if _, ok := act.(Reflect); !ok {
		t.Fatalf("expected Reflect, got %T", act)
	}
}

func TestRouteRespectsFlagMasking(t *testing.T) {
	r := New()
	flags := allAllowed()
	flags.AllowVisit = false
	act := r.Route(Inputs{Flags: flags, RemainingSteps: 5, UnvisitedAboveScore: true, FrontierThin: true, CoverageGapExists: true})
	if _, ok := act.(Search); !ok {
		t.Fatalf("expected Search when Visit masked, got %T", act)
	}
}

func TestRouteTieBreakPrefersAnswerOverVisit(t *testing.T) {
	r := New()
	act := r.Route(Inputs{Flags: allAllowed(), RemainingSteps: 1, UnvisitedAboveScore: true, FrontierThin: true, CoverageGapExists: true, ConsecutiveLowNovelty: 3})
	if _, ok := act.(Answer); !ok {
		t.Fatalf("expected Answer to win tie-break, got %T", act)
	}
}

func TestRouteCodingRequiresBothFlagAndQuestionType(t *testing.T) {
	r := New()
	act := r.Route(Inputs{Flags: allAllowed(), RemainingSteps: 5, CodingCapabilityEnabled: true, QuestionIsProcedural: false})
	if _, ok := act.(Coding); ok {
		t.Fatal("coding should not be chosen when question is not procedural")
	}
}
