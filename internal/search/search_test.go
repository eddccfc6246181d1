package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mwaldstein/qipu/internal/index"
	"github.com/mwaldstein/qipu/internal/note"
	"github.com/mwaldstein/qipu/internal/ontology"
)

func buildIndex(t *testing.T, notes []*note.Note) *index.Index {
	t.Helper()
	ont, err := ontology.Build(ontology.ModeDefault, nil, nil)
	if err != nil {
		t.Fatalf("ontology.Build: %v", err)
	}
	return index.Build(notes, ont, false)
}

func intPtr(v int) *int { return &v }

func TestSearchRanksByTermPresence(t *testing.T) {
	notes := []*note.Note{
		{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Zettelkasten basics", NoteType: "permanent", Value: intPtr(50)}, Body: "an intro"},
		{Frontmatter: note.Frontmatter{ID: "qp-b", Title: "Unrelated", NoteType: "permanent", Value: intPtr(50)}, Body: "no match here"},
	}
	idx := buildIndex(t, notes)
	cfg := Config{Recency: DefaultRecencyBoosts}
	now := time.Now()
	results, err := Search(context.Background(), idx, "zettelkasten", cfg, now, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "qp-a" {
		t.Errorf("results = %v, want only qp-a", results)
	}
}

func TestSearchEmptyQueryReturnsNil(t *testing.T) {
	idx := buildIndex(t, nil)
	results, err := Search(context.Background(), idx, "   ", Config{}, time.Now(), nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for an empty/whitespace query, got %v", results)
	}
}

func TestSearchSortsByScoreThenID(t *testing.T) {
	notes := []*note.Note{
		{Frontmatter: note.Frontmatter{ID: "qp-b", Title: "alpha alpha", NoteType: "permanent", Value: intPtr(50)}},
		{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "alpha", NoteType: "permanent", Value: intPtr(50)}},
		{Frontmatter: note.Frontmatter{ID: "qp-c", Title: "alpha", NoteType: "permanent", Value: intPtr(50)}},
	}
	idx := buildIndex(t, notes)
	results, err := Search(context.Background(), idx, "alpha", Config{}, time.Now(), nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %v, want 3 hits", results)
	}
	if results[0].ID != "qp-b" {
		t.Errorf("highest-scoring (double occurrence) result = %q, want qp-b", results[0].ID)
	}
	if results[1].ID != "qp-a" || results[2].ID != "qp-c" {
		t.Errorf("tied results not broken by id ascending: %v", results)
	}
}

func TestSearchAppliesRecencyBoost(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	notes := []*note.Note{
		{Frontmatter: note.Frontmatter{ID: "qp-fresh", Title: "widget", NoteType: "permanent", Value: intPtr(50), Updated: now.Add(-24 * time.Hour)}},
		{Frontmatter: note.Frontmatter{ID: "qp-stale", Title: "widget", NoteType: "permanent", Value: intPtr(50), Updated: now.Add(-365 * 24 * time.Hour)}},
	}
	idx := buildIndex(t, notes)
	results, err := Search(context.Background(), idx, "widget", Config{Recency: DefaultRecencyBoosts}, now, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].ID != "qp-fresh" {
		t.Errorf("expected recently-updated note ranked first, got %v", results)
	}
}

func TestSearchReadsSnippetFromBody(t *testing.T) {
	notes := []*note.Note{
		{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "widget", NoteType: "permanent", Value: intPtr(50)}},
	}
	idx := buildIndex(t, notes)
	bodies := map[string]string{"qp-a": "this is a long passage about the widget that matters a great deal to us"}
	readBody := func(id string) (string, error) {
		b, ok := bodies[id]
		if !ok {
			return "", fmt.Errorf("not found")
		}
		return b, nil
	}
	results, err := Search(context.Background(), idx, "widget", Config{}, time.Now(), readBody)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Snippet == "" {
		t.Errorf("expected a non-empty snippet, got %+v", results)
	}
}

func TestRecencyBoostThresholds(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rb := DefaultRecencyBoosts
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{1 * 24 * time.Hour, rb.Within7Days},
		{20 * 24 * time.Hour, rb.Within30Days},
		{60 * 24 * time.Hour, rb.Within90Days},
		{200 * 24 * time.Hour, 0},
	}
	for _, c := range cases {
		got := recencyBoost(now.Add(-c.age), now, rb)
		if got != c.want {
			t.Errorf("recencyBoost(age=%v) = %v, want %v", c.age, got, c.want)
		}
	}
}

func TestContextSnippetFindsFirstMatch(t *testing.T) {
	body := "lorem ipsum dolor sit amet, the target word appears right about here, and more text follows after it to pad things out"
	got := contextSnippet(body, []string{"target"})
	if got == "" {
		t.Fatal("expected a non-empty snippet")
	}
	if !contains(got, "target") {
		t.Errorf("snippet = %q, expected it to contain the matched term", got)
	}
}

func TestContextSnippetNoMatchIsEmpty(t *testing.T) {
	if got := contextSnippet("nothing relevant here", []string{"zzz"}); got != "" {
		t.Errorf("contextSnippet = %q, want empty", got)
	}
}

func TestBM25ScoreHigherForMoreOccurrences(t *testing.T) {
	df := map[string]int{"term": 2}
	low := bm25Score([]string{"term"}, map[string]float64{"term": 1}, 10, 10, df, 10)
	high := bm25Score([]string{"term"}, map[string]float64{"term": 5}, 10, 10, df, 10)
	if !(high > low) {
		t.Errorf("bm25Score(freq=5) = %v, want greater than bm25Score(freq=1) = %v", high, low)
	}
}

func TestTruncateCapsAt200(t *testing.T) {
	results := make([]Result, 250)
	for i := range results {
		results[i] = Result{ID: fmt.Sprintf("qp-%03d", i)}
	}
	got := truncate(results)
	if len(got) != 200 {
		t.Errorf("truncate returned %d results, want 200", len(got))
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
