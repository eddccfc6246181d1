// Package workspace implements nested stores and id-based merge
// strategies (§4.11). Written fresh rather than adapted from the
// teacher's internal/merge/merge.go: that file implements a vendored
// third-party JSONL three-way diff/merge algorithm under its own MIT
// license, and the spec's Non-goals explicitly exclude three-way merge
// beyond these four documented strategies (see DESIGN.md).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mwaldstein/qipu/internal/note"
	"github.com/mwaldstein/qipu/internal/store"
)

// Strategy is a per-id conflict resolution policy (§4.11).
type Strategy string

const (
	StrategySkip       Strategy = "skip"
	StrategyOverwrite  Strategy = "overwrite"
	StrategyMergeLinks Strategy = "merge-links"
	StrategyRename     Strategy = "rename"
)

// Action summarizes what Merge did (or, in dry-run, would do) with one
// source note.
type Action struct {
	SourceID string
	Outcome  string // "added", "skipped", "overwritten", "merged-links", "renamed"
	NewID    string // set only for "renamed"
}

// Plan is the result of a merge run.
type Plan struct {
	Actions []Action
	DryRun  bool
}

// New creates a new nested store at <parent root>/workspaces/<name>.
func New(parent *store.Store, name string) (*store.Store, error) {
	root := filepath.Join(parent.Root, store.DirWorkspaces, name)
	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("workspace: %s already exists", name)
	}
	return store.Init(root, false)
}

// Delete removes a nested store's directory tree entirely.
func Delete(parent *store.Store, name string) error {
	root := filepath.Join(parent.Root, store.DirWorkspaces, name)
	return os.RemoveAll(root)
}

// Merge copies notes from src into dst, resolving id conflicts per
// strategy. Non-conflicting notes are always added. In dry-run mode no
// writes occur; Plan reports what would happen (§4.11). A real (non-dry-run)
// merge holds dst's single-writer lock for its whole critical section (§5),
// the same discipline the index rebuild uses.
func Merge(src, dst *store.Store, strategy Strategy, dryRun bool, now time.Time) (*Plan, error) {
	if !dryRun {
		unlock, err := dst.Lock()
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	srcNotes, _ := src.List()
	dstNotes, _ := dst.List()

	dstByID := map[string]*note.Note{}
	for _, n := range dstNotes {
		dstByID[n.Frontmatter.ID] = n
	}
	existingIDs := map[string]bool{}
	for _, n := range dstNotes {
		existingIDs[n.Frontmatter.ID] = true
	}

	renameMap := map[string]string{} // old id -> new id, for rewriting references
	var movedIDs []string            // final (post-rename) ids of notes actually written to dst in this merge

	plan := &Plan{DryRun: dryRun}

	sort.Slice(srcNotes, func(i, j int) bool { return srcNotes[i].Frontmatter.ID < srcNotes[j].Frontmatter.ID })

	for _, sn := range srcNotes {
		id := sn.Frontmatter.ID
		existing, conflict := dstByID[id]
		if !conflict {
			plan.Actions = append(plan.Actions, Action{SourceID: id, Outcome: "added"})
			if !dryRun {
				if _, err := dst.Save(sn, now); err != nil {
					return nil, fmt.Errorf("workspace: merge: saving %s: %w", id, err)
				}
				movedIDs = append(movedIDs, id)
			}
			continue
		}

		switch strategy {
		case StrategySkip:
			plan.Actions = append(plan.Actions, Action{SourceID: id, Outcome: "skipped"})

		case StrategyOverwrite:
			plan.Actions = append(plan.Actions, Action{SourceID: id, Outcome: "overwritten"})
			if !dryRun {
				if _, err := dst.Save(sn, now); err != nil {
					return nil, fmt.Errorf("workspace: merge: overwriting %s: %w", id, err)
				}
				movedIDs = append(movedIDs, id)
			}

		case StrategyMergeLinks:
			plan.Actions = append(plan.Actions, Action{SourceID: id, Outcome: "merged-links"})
			if !dryRun {
				merged := unionLinks(existing, sn)
				if _, err := dst.Save(merged, now); err != nil {
					return nil, fmt.Errorf("workspace: merge: merging links for %s: %w", id, err)
				}
				movedIDs = append(movedIDs, id)
			}

		case StrategyRename:
			newID := nextFreeSuffix(id, existingIDs)
			existingIDs[newID] = true
			renameMap[id] = newID
			plan.Actions = append(plan.Actions, Action{SourceID: id, Outcome: "renamed", NewID: newID})
			if !dryRun {
				sn.Frontmatter.ID = newID
				if _, err := dst.Save(sn, now); err != nil {
					return nil, fmt.Errorf("workspace: merge: saving renamed %s: %w", newID, err)
				}
				movedIDs = append(movedIDs, newID)
			}

		default:
			return nil, fmt.Errorf("workspace: unknown merge strategy %q", strategy)
		}
	}

	if !dryRun && strategy == StrategyRename && len(renameMap) > 0 {
		if err := rewriteReferences(dst, renameMap, movedIDs, now); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

// unionLinks keeps target's other fields and unions links by (id, type)
// pair (§4.11 "merge-links").
func unionLinks(target, source *note.Note) *note.Note {
	merged := *target
	seen := map[string]bool{}
	var links []note.Link
	for _, l := range target.Frontmatter.Links {
		key := l.ID + "|" + l.LinkType
		if !seen[key] {
			seen[key] = true
			links = append(links, l)
		}
	}
	for _, l := range source.Frontmatter.Links {
		key := l.ID + "|" + l.LinkType
		if !seen[key] {
			seen[key] = true
			links = append(links, l)
		}
	}
	merged.Frontmatter.Links = links
	return &merged
}

// nextFreeSuffix allocates id-1, id-2, ... for the first suffix not
// already present in existingIDs (§4.11 "rename").
func nextFreeSuffix(id string, existingIDs map[string]bool) string {
	for i := 1; ; i++ {
		candidate := id + "-" + strconv.Itoa(i)
		if !existingIDs[candidate] {
			return candidate
		}
	}
}

// rewriteReferences rewrites any link or inline [[id]] reference to an id
// that was renamed during this merge, transparently -- but only inside the
// notes actually moved (added/overwritten/merged/renamed) by this merge
// run. Pre-existing target notes that weren't touched by the merge must
// keep their original references untouched (§4.11).
func rewriteReferences(dst *store.Store, renameMap map[string]string, movedIDs []string, now time.Time) error {
	moved := map[string]bool{}
	for _, id := range movedIDs {
		moved[id] = true
	}

	notes, _ := dst.List()
	for _, n := range notes {
		if !moved[n.Frontmatter.ID] {
			continue
		}
		changed := false
		for i, l := range n.Frontmatter.Links {
			if newID, ok := renameMap[l.ID]; ok {
				n.Frontmatter.Links[i].ID = newID
				changed = true
			}
		}
		for old, newID := range renameMap {
			if strings.Contains(n.Body, "[["+old+"]]") {
				n.Body = strings.ReplaceAll(n.Body, "[["+old+"]]", "[["+newID+"]]")
				changed = true
			}
		}
		if changed {
			if _, err := dst.Save(n, now); err != nil {
				return fmt.Errorf("workspace: rewriting references in %s: %w", n.Frontmatter.ID, err)
			}
		}
	}
	return nil
}
