// Package knowledge implements KnowledgeStore (spec.md C8): an append-only,
// deduplicated, keyword-indexed collection of research findings with
// provenance and coverage reporting. Dedup follows a Bloom-filter
// pre-check (github.com/willf/bloom, a direct dependency of the pack's
// grafana-tempo repo) before falling back to an exact hash compare, so the
// common case of a brand-new item never pays for a full scan.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/willf/bloom"
)

// SourceKind identifies where a KnowledgeItem originated (spec.md §3).
type SourceKind string

const (
	SourceWeb        SourceKind = "web"
	SourceCode       SourceKind = "code"
	SourceReflection SourceKind = "reflection"
	SourceUser       SourceKind = "user"
)

// Item is a KnowledgeItem (spec.md §3): immutable once inserted. A
// corrected fact is inserted as a new item that supersedes an old one by
// id reference via Supersedes, never updated in place.
type Item struct {
	ID         string
	SourceID   string
	SourceKind SourceKind
	Summary    string
	Content    string
	Keywords   []string
	Timestamp  time.Time
	Confidence float64
	Metadata   map[string]interface{}
	Supersedes string
}

// Store is a thread-safe, append-only KnowledgeStore.
type Store struct {
	mu sync.Mutex

	items      []Item
	byID       map[string]int
	seenHashes map[string]struct{}
	filter     *bloom.BloomFilter
}

// New creates an empty Store sized for an expected item count.
func New(expectedItems uint) *Store {
	if expectedItems == 0 {
		expectedItems = 1000
	}
	return &Store{
		byID:       make(map[string]int),
		seenHashes: make(map[string]struct{}),
		filter:     bloom.NewWithEstimates(expectedItems, 0.01),
	}
}

// Add inserts item if its (sourceId, content-hash) pair has not been seen
// before. Returns whether the item was actually added (false means it was
// a duplicate). Dedup (spec.md §4.8, invariant 4) normalises whitespace
// and Unicode case before hashing content, folds SourceID into the dedup
// key so identical content from two distinct sources is not discarded,
// pre-checks a Bloom filter, then falls back to an exact compare against
// the filter's possible false positives.
func (s *Store) Add(item Item) bool {
	hash := dedupKey(item.SourceID, item.Content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filter.TestString(hash) {
		if _, exact := s.seenHashes[hash]; exact {
			return false
		}
	}

	s.filter.AddString(hash)
	s.seenHashes[hash] = struct{}{}

	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	s.byID[item.ID] = len(s.items)
	s.items = append(s.items, item)
	return true
}

// dedupKey hashes the normalised (sourceID, content) pair so that two
// distinct sources reporting identical content are both kept, while the
// same source re-reporting identical content is still deduplicated.
func dedupKey(sourceID, content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	var b strings.Builder
	for _, r := range normalized {
		b.WriteRune(unicode.ToLower(r))
	}
	b.WriteByte(0)
	b.WriteString(sourceID)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Len reports the number of items currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Get returns the item with the given id, if present.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return Item{}, false
	}
	return s.items[idx], true
}

// FindByKeywords returns up to k items ranked by the number of matching
// keywords (ties broken by recency, most recent first).
func (s *Store) FindByKeywords(keywords []string, k int) []Item {
	wanted := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		wanted[strings.ToLower(kw)] = struct{}{}
	}

	s.mu.Lock()
	candidates := make([]Item, len(s.items))
	copy(candidates, s.items)
	s.mu.Unlock()

	type scored struct {
		item  Item
		score int
	}
	ranked := make([]scored, 0, len(candidates))
	for _, item := range candidates {
		matches := 0
		for _, kw := range item.Keywords {
			if _, ok := wanted[strings.ToLower(kw)]; ok {
				matches++
			}
		}
		if matches > 0 {
			ranked = append(ranked, scored{item: item, score: matches})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.Timestamp.After(ranked[j].item.Timestamp)
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]Item, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out
}

// CoverageAgainst scores how well the stored knowledge covers each named
// axis, as the fraction of that axis's keywords that appear in at least
// one stored item's keyword set.
func (s *Store) CoverageAgainst(axes map[string][]string) map[string]float64 {
	s.mu.Lock()
	allKeywords := make(map[string]struct{})
	for _, item := range s.items {
		for _, kw := range item.Keywords {
			allKeywords[strings.ToLower(kw)] = struct{}{}
		}
	}
	s.mu.Unlock()

	result := make(map[string]float64, len(axes))
	for axis, keywords := range axes {
		if len(keywords) == 0 {
			result[axis] = 0
			continue
		}
		covered := 0
		for _, kw := range keywords {
			if _, ok := allKeywords[strings.ToLower(kw)]; ok {
				covered++
			}
		}
		score := float64(covered) / float64(len(keywords))
		if score > 1 {
			score = 1
		}
		result[axis] = score
	}
	return result
}

// SummaryText concatenates the top-k most recent items' summaries,
// truncated to maxChars, for use as an LLM prompt fragment.
func (s *Store) SummaryText(k int, maxChars int) string {
	s.mu.Lock()
	items := make([]Item, len(s.items))
	copy(items, s.items)
	s.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	if k > 0 && len(items) > k {
		items = items[:k]
	}

	var b strings.Builder
	for _, item := range items {
		if maxChars > 0 && b.Len() >= maxChars {
			break
		}
		b.WriteString("- ")
		b.WriteString(item.Summary)
		b.WriteString("\n")
	}

	out := b.String()
	if maxChars > 0 && len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}

// Items returns a snapshot of every stored item, insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Sources returns the distinct source ids referenced by stored items, in
// first-seen order.
func (s *Store) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	out := make([]string, 0, len(s.items))
	for _, item := range s.items {
		if _, ok := seen[item.SourceID]; !ok {
			seen[item.SourceID] = struct{}{}
			out = append(out, item.SourceID)
		}
	}
	return out
}
