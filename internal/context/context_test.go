package qcontext

import (
	"strings"
	"testing"
	"time"

	"github.com/mwaldstein/qipu/internal/compact"
	"github.com/mwaldstein/qipu/internal/graph"
	"github.com/mwaldstein/qipu/internal/index"
	"github.com/mwaldstein/qipu/internal/note"
	"github.com/mwaldstein/qipu/internal/ontology"
	"github.com/mwaldstein/qipu/internal/search"
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

func TestAssembleDedupesByCanon(t *testing.T) {
	notes := []*note.Note{
		{Frontmatter: note.Frontmatter{ID: "qp-digest", Title: "Digest", Value: intPtr(80)}},
		{Frontmatter: note.Frontmatter{ID: "qp-old", Title: "Old", Value: intPtr(80)}},
	}
	idx := buildIndex(t, notes)
	ctx, err := compact.Build([]string{"qp-digest", "qp-old"}, map[string][]string{"qp-digest": {"qp-old"}})
	if err != nil {
		t.Fatalf("compact.Build: %v", err)
	}

	candidates := []Candidate{
		{ID: "qp-old", Title: "Old", Rank: 1},
		{ID: "qp-digest", Title: "Digest", Rank: 2},
	}
	bundle := Assemble(candidates, idx, ctx, Options{Budget: 0, Format: "human"})
	if len(bundle.Included) != 1 {
		t.Fatalf("Included = %v, want exactly one canonicalized id", bundle.Included)
	}
	if bundle.Included[0] != "qp-digest" {
		t.Errorf("Included[0] = %q, want qp-digest", bundle.Included[0])
	}
}

func TestAssembleRanksDescending(t *testing.T) {
	idx := buildIndex(t, nil)
	candidates := []Candidate{
		{ID: "qp-b", Title: "B", Rank: 1},
		{ID: "qp-a", Title: "A", Rank: 5},
	}
	bundle := Assemble(candidates, idx, nil, Options{Budget: 0, Format: "human"})
	if len(bundle.Included) != 2 || bundle.Included[0] != "qp-a" {
		t.Errorf("Included = %v, want [qp-a, qp-b]", bundle.Included)
	}
}

func TestAssembleTextBudgetDropsLowestRanked(t *testing.T) {
	idx := buildIndex(t, nil)
	candidates := []Candidate{
		{ID: "qp-a", Title: strings.Repeat("a", 50), Rank: 2},
		{ID: "qp-b", Title: strings.Repeat("b", 50), Rank: 1},
	}
	bundle := Assemble(candidates, idx, nil, Options{Budget: 80, Format: "human"})
	if !bundle.Truncated {
		t.Fatal("expected truncation under a tight budget")
	}
	if len(bundle.Excluded) == 0 {
		t.Fatal("expected at least one excluded candidate")
	}
	if bundle.Excluded[0] != "qp-b" {
		t.Errorf("expected the lower-ranked candidate to be dropped first, got %v", bundle.Excluded)
	}
	if len(bundle.Text) > 80 {
		t.Errorf("rendered text length %d exceeds budget 80", len(bundle.Text))
	}
}

func TestAssembleRecordsFormat(t *testing.T) {
	idx := buildIndex(t, nil)
	candidates := []Candidate{{ID: "qp-a", Title: "A", Rank: 1, Snippet: "snip"}}
	bundle := Assemble(candidates, idx, nil, Options{Budget: 0, Format: "records", StorePath: "/store", Mode: "context"})
	if !strings.HasPrefix(bundle.Text, "H qipu=1") {
		t.Errorf("records output missing header, got %q", bundle.Text)
	}
	if !strings.Contains(bundle.Text, "N id=qp-a") {
		t.Errorf("records output missing N line, got %q", bundle.Text)
	}
}

func TestPrimeSeedsFromMOCs(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	notes := []*note.Note{
		{Frontmatter: note.Frontmatter{ID: "qp-moc1", Title: "Area MOC", NoteType: "moc", Value: intPtr(90), Updated: now}},
		{Frontmatter: note.Frontmatter{ID: "qp-note1", Title: "Regular note", Value: intPtr(90)}},
	}
	idx := buildIndex(t, notes)
	bundle := Prime(idx, nil, Options{Budget: 0, Format: "human"})
	if len(bundle.Included) != 1 || bundle.Included[0] != "qp-moc1" {
		t.Errorf("Prime Included = %v, want only the MOC", bundle.Included)
	}
}

func TestFromSearchCarriesScoreAsRank(t *testing.T) {
	notes := []*note.Note{
		{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "A", Value: intPtr(80)}},
	}
	idx := buildIndex(t, notes)
	results := []search.Result{{ID: "qp-a", Score: 3.5, Snippet: "snip"}}
	cands := FromSearch(results, idx)
	if len(cands) != 1 || cands[0].Rank != 3.5 || cands[0].Title != "A" {
		t.Errorf("FromSearch = %+v, want rank 3.5 and title A", cands)
	}
}

func TestFromTreeRanksByNegativeCost(t *testing.T) {
	notes := []*note.Note{
		{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "A", Value: intPtr(80)}},
	}
	idx := buildIndex(t, notes)
	tree := &graph.Tree{Nodes: []graph.Node{{ID: "qp-a", Cost: 2.0}}}
	cands := FromTree(tree, idx)
	if len(cands) != 1 || cands[0].Rank != -2.0 {
		t.Errorf("FromTree = %+v, want rank -2.0", cands)
	}
}
