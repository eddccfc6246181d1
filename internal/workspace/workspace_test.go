package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwaldstein/qipu/internal/note"
	"github.com/mwaldstein/qipu/internal/store"
)

func initStore(t *testing.T) *store.Store {
	t.Helper()
	root := filepath.Join(t.TempDir(), ".qipu")
	s, err := store.Init(root, false)
	if err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	return s
}

func TestNewCreatesNestedStore(t *testing.T) {
	parent := initStore(t)
	ws, err := New(parent, "scratch")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if info, err := os.Stat(ws.Root); err != nil || !info.IsDir() {
		t.Fatalf("expected workspace root to exist: %v", err)
	}
	wantPrefix := filepath.Join(parent.Root, store.DirWorkspaces, "scratch")
	if ws.Root != wantPrefix {
		t.Errorf("Root = %q, want %q", ws.Root, wantPrefix)
	}
}

func TestNewRejectsExistingWorkspace(t *testing.T) {
	parent := initStore(t)
	if _, err := New(parent, "scratch"); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(parent, "scratch"); err == nil {
		t.Fatal("expected error creating a workspace that already exists")
	}
}

func TestDeleteRemovesTree(t *testing.T) {
	parent := initStore(t)
	ws, err := New(parent, "scratch")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := Delete(parent, "scratch"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(ws.Root); !os.IsNotExist(err) {
		t.Errorf("expected workspace directory to be gone, stat err = %v", err)
	}
}

func TestDeleteMissingWorkspaceIsNoop(t *testing.T) {
	parent := initStore(t)
	if err := Delete(parent, "nope"); err != nil {
		t.Errorf("Delete of a nonexistent workspace should be a no-op, got %v", err)
	}
}

func TestMergeSkipStrategyLeavesExistingNoteUntouched(t *testing.T) {
	now := time.Now().UTC()
	dst := initStore(t)
	dstNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Destination title", NoteType: note.TypePermanent}}
	if _, err := dst.Save(dstNote, now); err != nil {
		t.Fatalf("dst.Save: %v", err)
	}

	src, err := New(dst, "scratch")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srcNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Source title", NoteType: note.TypePermanent}}
	if _, err := src.Save(srcNote, now); err != nil {
		t.Fatalf("src.Save: %v", err)
	}

	plan, err := Merge(src, dst, StrategySkip, false, now)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Outcome != "skipped" {
		t.Fatalf("plan.Actions = %+v, want one skipped action", plan.Actions)
	}

	notes, errs := dst.List()
	if len(errs) != 0 {
		t.Fatalf("List errors: %v", errs)
	}
	for _, n := range notes {
		if n.Frontmatter.ID == "qp-a" && n.Frontmatter.Title != "Destination title" {
			t.Errorf("expected destination note untouched, got title %q", n.Frontmatter.Title)
		}
	}
}

func TestMergeOverwriteStrategyReplacesNote(t *testing.T) {
	now := time.Now().UTC()
	dst := initStore(t)
	dstNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Destination title", NoteType: note.TypePermanent}}
	if _, err := dst.Save(dstNote, now); err != nil {
		t.Fatalf("dst.Save: %v", err)
	}

	src, err := New(dst, "scratch")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srcNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Source title", NoteType: note.TypePermanent}}
	if _, err := src.Save(srcNote, now); err != nil {
		t.Fatalf("src.Save: %v", err)
	}

	plan, err := Merge(src, dst, StrategyOverwrite, false, now)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Outcome != "overwritten" {
		t.Fatalf("plan.Actions = %+v, want one overwritten action", plan.Actions)
	}

	notes, _ := dst.List()
	found := false
	for _, n := range notes {
		if n.Frontmatter.ID == "qp-a" {
			found = true
			if n.Frontmatter.Title != "Source title" {
				t.Errorf("expected overwritten title %q, got %q", "Source title", n.Frontmatter.Title)
			}
		}
	}
	if !found {
		t.Fatal("expected merged note qp-a to be present")
	}
}

func TestMergeRenameStrategyAllocatesNewID(t *testing.T) {
	now := time.Now().UTC()
	dst := initStore(t)
	dstNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Destination title", NoteType: note.TypePermanent}}
	if _, err := dst.Save(dstNote, now); err != nil {
		t.Fatalf("dst.Save: %v", err)
	}

	src, err := New(dst, "scratch")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srcNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Source title", NoteType: note.TypePermanent}}
	if _, err := src.Save(srcNote, now); err != nil {
		t.Fatalf("src.Save: %v", err)
	}

	plan, err := Merge(src, dst, StrategyRename, false, now)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Outcome != "renamed" {
		t.Fatalf("plan.Actions = %+v, want one renamed action", plan.Actions)
	}
	if plan.Actions[0].NewID != "qp-a-1" {
		t.Errorf("NewID = %q, want qp-a-1", plan.Actions[0].NewID)
	}

	notes, _ := dst.List()
	ids := map[string]bool{}
	for _, n := range notes {
		ids[n.Frontmatter.ID] = true
	}
	if !ids["qp-a"] || !ids[plan.Actions[0].NewID] {
		t.Errorf("expected both original and renamed ids present, got %v", ids)
	}
}

// TestMergeRenameRewritesReferences mirrors
// original_source/tests/workspace/rename/link_rewriting.rs: only the notes
// actually moved by this merge get their references rewritten to the new,
// renamed ids. A pre-existing destination note that wasn't part of the
// merge (qp-c, "Referrer") must keep its original references untouched,
// while a note moved in from src in the same merge (qp-d, "MovedReferrer")
// does get rewritten (§4.11).
func TestMergeRenameRewritesReferences(t *testing.T) {
	now := time.Now().UTC()
	dst := initStore(t)
	dstA := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Destination title", NoteType: note.TypePermanent}}
	dstC := &note.Note{
		Frontmatter: note.Frontmatter{
			ID: "qp-c", Title: "Referrer", NoteType: note.TypePermanent,
			Links: []note.Link{{ID: "qp-a", LinkType: "supports"}},
		},
		Body: "See [[qp-a]] for background.",
	}
	if _, err := dst.Save(dstA, now); err != nil {
		t.Fatalf("dst.Save(a): %v", err)
	}
	if _, err := dst.Save(dstC, now); err != nil {
		t.Fatalf("dst.Save(c): %v", err)
	}

	src, err := New(dst, "scratch")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srcNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Source title", NoteType: note.TypePermanent}}
	if _, err := src.Save(srcNote, now); err != nil {
		t.Fatalf("src.Save: %v", err)
	}
	srcD := &note.Note{
		Frontmatter: note.Frontmatter{
			ID: "qp-d", Title: "MovedReferrer", NoteType: note.TypePermanent,
			Links: []note.Link{{ID: "qp-a", LinkType: "supports"}},
		},
		Body: "See [[qp-a]] for background.",
	}
	if _, err := src.Save(srcD, now); err != nil {
		t.Fatalf("src.Save(d): %v", err)
	}

	if _, err := Merge(src, dst, StrategyRename, false, now); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	notes, _ := dst.List()
	var sawC, sawD bool
	for _, n := range notes {
		switch n.Frontmatter.ID {
		case "qp-c":
			sawC = true
			if len(n.Frontmatter.Links) != 1 || n.Frontmatter.Links[0].ID != "qp-a" {
				t.Errorf("pre-existing note qp-c: expected untouched link to qp-a, got %v", n.Frontmatter.Links)
			}
			if n.Body != "See [[qp-a]] for background." {
				t.Errorf("pre-existing note qp-c: expected untouched inline reference, got %q", n.Body)
			}
		case "qp-d":
			sawD = true
			if len(n.Frontmatter.Links) != 1 || n.Frontmatter.Links[0].ID != "qp-a-1" {
				t.Errorf("moved note qp-d: expected link rewritten to qp-a-1, got %v", n.Frontmatter.Links)
			}
			if n.Body != "See [[qp-a-1]] for background." {
				t.Errorf("moved note qp-d: expected inline reference rewritten, got %q", n.Body)
			}
		}
	}
	if !sawC || !sawD {
		t.Fatalf("expected both qp-c and qp-d in merged store, saw c=%v d=%v", sawC, sawD)
	}
}

func TestMergeDryRunMakesNoChanges(t *testing.T) {
	now := time.Now().UTC()
	dst := initStore(t)
	dstNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Destination title", NoteType: note.TypePermanent}}
	if _, err := dst.Save(dstNote, now); err != nil {
		t.Fatalf("dst.Save: %v", err)
	}

	src, err := New(dst, "scratch")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srcNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-a", Title: "Source title", NoteType: note.TypePermanent}}
	if _, err := src.Save(srcNote, now); err != nil {
		t.Fatalf("src.Save: %v", err)
	}

	plan, err := Merge(src, dst, StrategyOverwrite, true, now)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !plan.DryRun {
		t.Error("expected plan.DryRun = true")
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Outcome != "overwritten" {
		t.Fatalf("plan.Actions = %+v, want one overwritten action even under dry-run", plan.Actions)
	}

	notes, _ := dst.List()
	for _, n := range notes {
		if n.Frontmatter.ID == "qp-a" && n.Frontmatter.Title != "Destination title" {
			t.Error("dry run must not modify the destination store")
		}
	}
}

func TestMergeLinksUnionsLinksAcrossBothNotes(t *testing.T) {
	now := time.Now().UTC()
	dst := initStore(t)
	dstNote := &note.Note{Frontmatter: note.Frontmatter{
		ID: "qp-a", Title: "Destination title", NoteType: note.TypePermanent,
		Links: []note.Link{{ID: "qp-x", LinkType: "supports"}},
	}}
	if _, err := dst.Save(dstNote, now); err != nil {
		t.Fatalf("dst.Save: %v", err)
	}

	src, err := New(dst, "scratch")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srcNote := &note.Note{Frontmatter: note.Frontmatter{
		ID: "qp-a", Title: "Source title", NoteType: note.TypePermanent,
		Links: []note.Link{{ID: "qp-y", LinkType: "supports"}, {ID: "qp-x", LinkType: "supports"}},
	}}
	if _, err := src.Save(srcNote, now); err != nil {
		t.Fatalf("src.Save: %v", err)
	}

	plan, err := Merge(src, dst, StrategyMergeLinks, false, now)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Outcome != "merged-links" {
		t.Fatalf("plan.Actions = %+v, want one merged-links action", plan.Actions)
	}

	notes, _ := dst.List()
	for _, n := range notes {
		if n.Frontmatter.ID == "qp-a" {
			if len(n.Frontmatter.Links) != 2 {
				t.Errorf("expected union of 2 distinct links, got %v", n.Frontmatter.Links)
			}
			// destination title is preserved by unionLinks (only links change)
			if n.Frontmatter.Title != "Destination title" {
				t.Errorf("expected destination title preserved, got %q", n.Frontmatter.Title)
			}
		}
	}
}

func TestMergeNoConflictJustAddsNote(t *testing.T) {
	now := time.Now().UTC()
	dst := initStore(t)
	src, err := New(dst, "scratch")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srcNote := &note.Note{Frontmatter: note.Frontmatter{ID: "qp-new", Title: "New note", NoteType: note.TypePermanent}}
	if _, err := src.Save(srcNote, now); err != nil {
		t.Fatalf("src.Save: %v", err)
	}

	plan, err := Merge(src, dst, StrategySkip, false, now)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Outcome != "added" {
		t.Fatalf("plan.Actions = %+v, want one added action for a non-conflicting note", plan.Actions)
	}

	notes, _ := dst.List()
	found := false
	for _, n := range notes {
		if n.Frontmatter.ID == "qp-new" {
			found = true
		}
	}
	if !found {
		t.Error("expected qp-new to be copied into destination")
	}
}

func TestUnionLinksDedupesByIDAndType(t *testing.T) {
	target := &note.Note{Frontmatter: note.Frontmatter{
		Title: "Destination",
		Links: []note.Link{{ID: "qp-x", LinkType: "supports"}},
	}}
	source := &note.Note{Frontmatter: note.Frontmatter{
		Title: "Source",
		Links: []note.Link{{ID: "qp-x", LinkType: "supports"}, {ID: "qp-x", LinkType: "refutes"}},
	}}
	merged := unionLinks(target, source)
	if len(merged.Frontmatter.Links) != 2 {
		t.Errorf("unionLinks = %v, want 2 distinct (id,type) pairs", merged.Frontmatter.Links)
	}
	if merged.Frontmatter.Title != "Destination" {
		t.Errorf("unionLinks should preserve target's other fields, got title %q", merged.Frontmatter.Title)
	}
}

func TestNextFreeSuffixSkipsTaken(t *testing.T) {
	existing := map[string]bool{"qp-a-1": true, "qp-a-2": true}
	if got := nextFreeSuffix("qp-a", existing); got != "qp-a-3" {
		t.Errorf("nextFreeSuffix = %q, want qp-a-3", got)
	}
}
