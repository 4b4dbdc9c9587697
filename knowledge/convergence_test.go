package knowledge

import "testing"

func TestHasConvergedFalseBeforeThreeSamples(t *testing.T) {
	d := NewConvergenceDetector()
	d.Record(0, 10)
	d.Record(0, 10)
	if d.HasConverged(0.1) {
		t.Fatal("expected false with fewer than 3 samples")
	}
}

func TestHasConvergedTrueWhenDamped(t *testing.T) {
	d := NewConvergenceDetector()
	d.Record(5, 10) // 0.5
	d.Record(1, 10) // 0.1
	d.Record(0, 10) // 0.0
	// latest(0) + mean(0.5, 0.1) = 0.3
	if !d.HasConverged(0.3) {
		t.Fatal("expected converged at threshold 0.3")
	}
	if d.HasConverged(0.29) {
		t.Fatal("expected not converged at threshold 0.29")
	}
}

func TestHasConvergedIgnoresSingleSpike(t *testing.T) {
	d := NewConvergenceDetector()
	d.Record(0, 10)
	d.Record(0, 10)
	d.Record(9, 10) // single spike of 0.9
	if d.HasConverged(0.1) {
		t.Fatal("a single high novelty sample should not report converged")
	}
}

func TestRecordClampsRate(t *testing.T) {
	d := NewConvergenceDetector()
	rate := d.Record(20, 10)
	if rate != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", rate)
	}
}
