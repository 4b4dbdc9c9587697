package knowledge

import "sync"

// ConvergenceDetector implements spec.md C9: tracks the rolling
// per-iteration novelty rate and reports whether research has plateaued.
type ConvergenceDetector struct {
	mu      sync.Mutex
	samples []float64
}

// NewConvergenceDetector creates an empty detector.
func NewConvergenceDetector() *ConvergenceDetector {
	return &ConvergenceDetector{}
}

// Record adds one iteration's novelty rate, computed by the caller as
// newKnowledgeThisIteration / knowledgeBeforeIteration, clamped to [0,1].
func (d *ConvergenceDetector) Record(newKnowledgeThisIteration, knowledgeBeforeIteration int) float64 {
	rate := 0.0
	if knowledgeBeforeIteration > 0 {
		rate = float64(newKnowledgeThisIteration) / float64(knowledgeBeforeIteration)
	} else if newKnowledgeThisIteration > 0 {
		rate = 1.0
	}
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}

	d.mu.Lock()
	d.samples = append(d.samples, rate)
	d.mu.Unlock()
	return rate
}

// HasConverged reports true iff (spec.md §4.9) at least 2 prior samples
// exist beyond the current one and the most recent sample plus the mean
// of the 2 samples before it is at most threshold -- damping single-iteration
// novelty spikes from triggering an early stop.
func (d *ConvergenceDetector) HasConverged(threshold float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.samples) < 3 {
		return false
	}

	n := len(d.samples)
	latest := d.samples[n-1]
	lastTwoMean := (d.samples[n-2] + d.samples[n-3]) / 2

	return latest+lastTwoMean <= threshold
}

// Samples returns a copy of the recorded novelty rates, oldest first.
func (d *ConvergenceDetector) Samples() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]float64, len(d.samples))
	copy(out, d.samples)
	return out
}
