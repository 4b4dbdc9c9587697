package knowledge

import "testing"

func TestAddDeduplicatesByContentHash(t *testing.T) {
	s := New(100)
	item := Item{ID: "1", Content: "The sky is blue.", Keywords: []string{"sky"}}
	added := s.Add(item)
	if !added {
		t.Fatal("expected first insert to succeed")
	}

	dup := Item{ID: "2", Content: "the   SKY is BLUE.", Keywords: []string{"sky"}}
	added = s.Add(dup)
	if added {
		t.Fatal("expected whitespace/case-normalized duplicate to be rejected")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 item, got %d", s.Len())
	}
}

func TestFindByKeywordsRanksByMatchCount(t *testing.T) {
	s := New(100)
	s.Add(Item{ID: "1", Content: "a", Keywords: []string{"go", "concurrency"}})
	s.Add(Item{ID: "2", Content: "b", Keywords: []string{"go"}})
	s.Add(Item{ID: "3", Content: "c", Keywords: []string{"python"}})

	results := s.FindByKeywords([]string{"go", "concurrency"}, 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].ID != "1" {
		t.Fatalf("expected item 1 (2 matches) ranked first, got %s", results[0].ID)
	}
}

func TestCoverageAgainstComputesFractionCovered(t *testing.T) {
	s := New(100)
	s.Add(Item{ID: "1", Content: "a", Keywords: []string{"go", "concurrency"}})

	coverage := s.CoverageAgainst(map[string][]string{
		"language": {"go", "rust"},
	})
	if coverage["language"] != 0.5 {
		t.Fatalf("expected 0.5 coverage, got %v", coverage["language"])
	}
}

func TestSourcesReturnsDistinctSourceIDs(t *testing.T) {
	s := New(100)
	s.Add(Item{ID: "1", Content: "a", SourceID: "url-1"})
	s.Add(Item{ID: "2", Content: "b", SourceID: "url-1"})
	s.Add(Item{ID: "3", Content: "c", SourceID: "url-2"})

	sources := s.Sources()
	if len(sources) != 2 {
		t.Fatalf("expected 2 distinct sources, got %d", len(sources))
	}
}
