// Package doctor implements consistency checks across the note set,
// organized as distinct check families (structural, referential,
// ontology, content) per SPEC_FULL.md's supplemented feature list.
// Grounded on the teacher's validator-chain idiom in
// internal/validation/issue.go (a func type plus a Chain combinator),
// adapted from "validate one issue before mutation" to "scan every note
// and collect findings".
package doctor

import (
	"fmt"
	"sort"

	"github.com/mwaldstein/qipu/internal/compact"
	"github.com/mwaldstein/qipu/internal/id"
	"github.com/mwaldstein/qipu/internal/index"
	"github.com/mwaldstein/qipu/internal/note"
	"github.com/mwaldstein/qipu/internal/ontology"
)

// Severity classifies a Finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Category groups findings by check family.
type Category string

const (
	CategoryStructural  Category = "structural"
	CategoryReferential Category = "referential"
	CategoryOntology    Category = "ontology"
	CategoryContent     Category = "content"
)

// Finding is one reported problem.
type Finding struct {
	Category Category
	Severity Severity
	NoteID   string
	Message  string
}

// Checker inspects the whole note set and appends any findings. Checkers
// compose the same way the teacher's IssueValidator does: each is
// independent and Run simply calls them all, rather than short-circuiting
// on the first (a full-store scan has no reason to stop early).
type Checker func(notes []*note.Note, idx *index.Index, ont *ontology.Ontology, compactCtx *compact.Context) []Finding

// Run executes every checker and returns findings sorted by
// (category, note id, message) for deterministic output.
func Run(notes []*note.Note, idx *index.Index, ont *ontology.Ontology, compactCtx *compact.Context, checkers ...Checker) []Finding {
	var all []Finding
	for _, c := range checkers {
		all = append(all, c(notes, idx, ont, compactCtx)...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Category != all[j].Category {
			return all[i].Category < all[j].Category
		}
		if all[i].NoteID != all[j].NoteID {
			return all[i].NoteID < all[j].NoteID
		}
		return all[i].Message < all[j].Message
	})
	return all
}

// DefaultCheckers is the standard check set run by `qipu doctor`.
func DefaultCheckers() []Checker {
	return []Checker{
		StructuralCheck,
		ReferentialCheck,
		OntologyCheck,
		ContentCheck,
	}
}

// StructuralCheck verifies every note's frontmatter is internally
// consistent: required fields present, filename matches the canonical
// id-slug form, id is well-formed.
func StructuralCheck(notes []*note.Note, idx *index.Index, ont *ontology.Ontology, compactCtx *compact.Context) []Finding {
	var findings []Finding
	for _, n := range notes {
		if err := n.Validate(); err != nil {
			findings = append(findings, Finding{Category: CategoryStructural, Severity: SeverityError, NoteID: n.Frontmatter.ID, Message: err.Error()})
		}
		if n.Frontmatter.ID != "" && !id.Valid(n.Frontmatter.ID) {
			findings = append(findings, Finding{Category: CategoryStructural, Severity: SeverityError, NoteID: n.Frontmatter.ID,
				Message: fmt.Sprintf("id %q is not well-formed", n.Frontmatter.ID)})
		}
		if want := n.Filename(); want != "" && !pathHasSuffix(n.Path, want) {
			findings = append(findings, Finding{Category: CategoryStructural, Severity: SeverityWarning, NoteID: n.Frontmatter.ID,
				Message: fmt.Sprintf("filename %q does not match canonical form %q", n.Path, want)})
		}
	}
	return findings
}

func pathHasSuffix(path, suffix string) bool {
	if len(path) < len(suffix) {
		return false
	}
	return path[len(path)-len(suffix):] == suffix
}

// ReferentialCheck flags links (typed and inline) whose target could not
// be resolved, surfacing index.Index.Unresolved as doctor findings.
func ReferentialCheck(notes []*note.Note, idx *index.Index, ont *ontology.Ontology, compactCtx *compact.Context) []Finding {
	var findings []Finding
	for _, u := range idx.Unresolved {
		findings = append(findings, Finding{Category: CategoryReferential, Severity: SeverityError, NoteID: u.SourceID,
			Message: fmt.Sprintf("unresolved link target %q", u.TargetRef)})
	}
	if compactCtx != nil {
		known := map[string]bool{}
		for id := range idx.Metadata {
			known[id] = true
		}
		for _, problem := range compact.Validate(compactCtx, known) {
			findings = append(findings, Finding{Category: CategoryReferential, Severity: SeverityError, Message: problem})
		}
	}
	return findings
}

// OntologyCheck flags notes using a note_type or link_type outside the
// configured ontology. It applies in every mode, including default mode,
// where only the standard types are declared.
func OntologyCheck(notes []*note.Note, idx *index.Index, ont *ontology.Ontology, compactCtx *compact.Context) []Finding {
	var findings []Finding
	for _, n := range notes {
		if !ont.ValidNoteType(n.Frontmatter.NoteType) {
			findings = append(findings, Finding{Category: CategoryOntology, Severity: SeverityError, NoteID: n.Frontmatter.ID,
				Message: fmt.Sprintf("note_type %q is not declared in the active ontology", n.Frontmatter.NoteType)})
		}
		for _, l := range n.Frontmatter.Links {
			if !ont.ValidLinkType(l.LinkType) {
				findings = append(findings, Finding{Category: CategoryOntology, Severity: SeverityError, NoteID: n.Frontmatter.ID,
					Message: fmt.Sprintf("link_type %q is not declared in the active ontology", l.LinkType)})
			}
		}
	}
	return findings
}

// ContentCheck flags low-signal notes that agents and humans both
// benefit from knowing about: empty bodies and MOCs with no outgoing
// links. Titles are not checked.
func ContentCheck(notes []*note.Note, idx *index.Index, ont *ontology.Ontology, compactCtx *compact.Context) []Finding {
	var findings []Finding
	for _, n := range notes {
		if len(n.Body) == 0 {
			findings = append(findings, Finding{Category: CategoryContent, Severity: SeverityWarning, NoteID: n.Frontmatter.ID, Message: "empty body"})
		}
		if n.IsMOC() && len(idx.Outbound[n.Frontmatter.ID]) == 0 {
			findings = append(findings, Finding{Category: CategoryContent, Severity: SeverityWarning, NoteID: n.Frontmatter.ID, Message: "MOC has no outgoing links"})
		}
	}
	return findings
}
