package orchestrator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/deepresearch/corerun/knowledge"
)

// Contradiction is a pair of knowledge items whose content appears to
// conflict, per spec.md §4.14's negation-pattern and opposing-numeric-
// claim detectors.
type Contradiction struct {
	ItemA  string
	ItemB  string
	Reason string
}

// Integrator implements StepResultIntegrator (spec.md C14): it merges the
// final KnowledgeStore snapshot and IterationRecord history into the
// fields a final report needs.
type Integrator struct {
	jaccardThreshold float64
}

// NewIntegrator creates an Integrator. jaccardThreshold is the similarity
// above which two items are treated as duplicate findings (spec.md
// §4.14: "configurable threshold").
func NewIntegrator(jaccardThreshold float64) *Integrator {
	if jaccardThreshold <= 0 {
		jaccardThreshold = 0.8
	}
	return &Integrator{jaccardThreshold: jaccardThreshold}
}

// Integrate merges items into a deduplicated findings list, detects
// contradictions, and computes an overall confidence from noveltyRates
// (recent iterations weighted more heavily), penalised by any detected
// contradictions (spec.md §4.14).
func (ig *Integrator) Integrate(items []knowledge.Item, noveltyRates []float64, gaps []string) ([]knowledge.Item, []Contradiction, float64) {
	findings := ig.dedupeFindings(items)
	contradictions := ig.detectContradictions(findings)
	confidence := ig.computeConfidence(noveltyRates, len(contradictions))
	return findings, contradictions, confidence
}

// dedupeFindings removes items whose tokenised content is more than
// jaccardThreshold similar to one already kept, keeping the earlier
// (lower-index, generally earlier-inserted) item.
func (ig *Integrator) dedupeFindings(items []knowledge.Item) []knowledge.Item {
	kept := make([]knowledge.Item, 0, len(items))
	keptTokens := make([][]string, 0, len(items))

	for _, item := range items {
		tokens := tokenize(item.Content)
		duplicate := false
		for _, existing := range keptTokens {
			if jaccard(tokens, existing) > ig.jaccardThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, item)
			keptTokens = append(keptTokens, tokens)
		}
	}
	return kept
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// negationPairs is the dictionary of opposing term pairs scanned for
// within items that otherwise discuss the same topic (share ≥1 keyword).
var negationPairs = [][2]string{
	{"is", "is not"},
	{"does", "does not"},
	{"can", "cannot"},
	{"increases", "decreases"},
	{"supports", "does not support"},
	{"true", "false"},
	{"always", "never"},
}

var numberRE = regexp.MustCompile(`\d+(\.\d+)?`)

// detectContradictions compares every pair of items sharing at least one
// keyword for negation-pattern conflicts or opposing numeric claims
// (spec.md §4.14).
func (ig *Integrator) detectContradictions(items []knowledge.Item) []Contradiction {
	var out []Contradiction
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if !shareKeyword(items[i], items[j]) {
				continue
			}
			if reason, conflicts := ig.conflicts(items[i], items[j]); conflicts {
				out = append(out, Contradiction{ItemA: items[i].ID, ItemB: items[j].ID, Reason: reason})
			}
		}
	}
	return out
}

func shareKeyword(a, b knowledge.Item) bool {
	set := make(map[string]struct{}, len(a.Keywords))
	for _, kw := range a.Keywords {
		set[strings.ToLower(kw)] = struct{}{}
	}
	for _, kw := range b.Keywords {
		if _, ok := set[strings.ToLower(kw)]; ok {
			return true
		}
	}
	return false
}

func (ig *Integrator) conflicts(a, b knowledge.Item) (string, bool) {
	lowerA := strings.ToLower(a.Content)
	lowerB := strings.ToLower(b.Content)

	for _, pair := range negationPairs {
		if strings.Contains(lowerA, pair[0]) && strings.Contains(lowerB, pair[1]) {
			return "negation pattern: \"" + pair[0] + "\" vs \"" + pair[1] + "\"", true
		}
		if strings.Contains(lowerA, pair[1]) && strings.Contains(lowerB, pair[0]) {
			return "negation pattern: \"" + pair[1] + "\" vs \"" + pair[0] + "\"", true
		}
	}

	numsA := numberRE.FindAllString(a.Content, -1)
	numsB := numberRE.FindAllString(b.Content, -1)
	if len(numsA) > 0 && len(numsB) > 0 {
		for _, na := range numsA {
			for _, nb := range numsB {
				fa, errA := strconv.ParseFloat(na, 64)
				fb, errB := strconv.ParseFloat(nb, 64)
				if errA == nil && errB == nil && fa != fb {
					return "opposing numeric claims: " + na + " vs " + nb, true
				}
			}
		}
	}

	return "", false
}

// computeConfidence weights later novelty-rate samples more heavily
// (recent iterations reflect the state the run actually terminated in),
// then penalises for each detected contradiction (spec.md §4.14).
func (ig *Integrator) computeConfidence(noveltyRates []float64, contradictionCount int) float64 {
	if len(noveltyRates) == 0 {
		return 0
	}

	// Later samples carry more weight: weight(i) = i+1 for i in [0,n).
	var weightedSum, weightTotal float64
	for i, rate := range noveltyRates {
		// High novelty late in a run suggests the store is still
		// growing; confidence tracks *settling* (1 - noveltyRate).
		settled := 1 - rate
		weight := float64(i + 1)
		weightedSum += settled * weight
		weightTotal += weight
	}
	confidence := weightedSum / weightTotal

	penalty := float64(contradictionCount) * 0.1
	confidence -= penalty
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
