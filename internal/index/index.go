// Package index implements the derived, regenerable index described in
// spec §3/§4.6: metadata, forward/inverse edges, term frequencies for
// search, and the set of unresolved link targets. The filesystem is
// authoritative; everything here can be thrown away and rebuilt.
package index

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/mwaldstein/qipu/internal/note"
	"github.com/mwaldstein/qipu/internal/ontology"
)

// Field weights applied once, when term_freqs is accumulated (§3), so
// the BM25 scoring in package search (§4.7) sees title terms count more
// than tags, tags more than body, without having to re-boost by field.
const (
	WeightTitle = 3.0
	WeightTags  = 2.0
	WeightBody  = 1.0
)

// Metadata is the per-note projection kept for listing/filtering without
// re-reading the file (§3).
type Metadata struct {
	ID      string
	Title   string
	Type    string
	Path    string
	Tags    []string
	Created time.Time
	Updated time.Time
	Value   int
}

// Edge is a directed, typed reference between two note ids (§3).
type Edge struct {
	From     string
	To       string
	LinkType string
	Source   note.EdgeSource
}

// Unresolved records a link whose target could not be found (§3).
type Unresolved struct {
	SourceID  string
	TargetRef string
}

// Index is the full derived state built from a note set.
type Index struct {
	Metadata map[string]Metadata
	Edges    []Edge
	Outbound map[string][]Edge
	Inbound  map[string][]Edge

	TermFreqs  map[string]map[string]float64
	DocLengths map[string]int
	TotalDocs  int
	TotalLen   int
	TermDF     map[string]int

	Unresolved []Unresolved
	Tags       map[string][]string // tag -> sorted ids
	Files      map[string]string   // path -> id
}

var wikiLinkPattern = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]*)?\]\]`)

// Build indexes a fresh note set from scratch (§4.6 Build / "a single
// transaction that truncates and re-inserts").
func Build(notes []*note.Note, ont *ontology.Ontology, stemming bool) *Index {
	idx := &Index{
		Metadata:   map[string]Metadata{},
		Outbound:   map[string][]Edge{},
		Inbound:    map[string][]Edge{},
		TermFreqs:  map[string]map[string]float64{},
		DocLengths: map[string]int{},
		TermDF:     map[string]int{},
		Tags:       map[string][]string{},
		Files:      map[string]string{},
	}

	byID := map[string]*note.Note{}
	for _, n := range notes {
		byID[n.Frontmatter.ID] = n
	}

	for _, n := range notes {
		idx.indexNote(n, stemming)
	}

	// Typed edges (links: frontmatter) first, then inline edges discovered
	// by scanning bodies for [[id]] tokens.
	for _, n := range notes {
		idx.addTypedEdges(n, byID)
	}
	for _, n := range notes {
		idx.addInlineEdges(n, byID)
	}

	idx.sortEdges()
	idx.rebuildAdjacency()
	idx.sortTags()

	return idx
}

func (idx *Index) indexNote(n *note.Note, stemming bool) {
	fm := n.Frontmatter
	value := 50
	if fm.Value != nil {
		value = *fm.Value
	}
	idx.Metadata[fm.ID] = Metadata{
		ID: fm.ID, Title: fm.Title, Type: fm.NoteType, Path: n.Path,
		Tags: append([]string(nil), fm.Tags...), Created: fm.Created, Updated: fm.Updated,
		Value: value,
	}
	idx.Files[n.Path] = fm.ID

	for _, t := range fm.Tags {
		idx.Tags[t] = append(idx.Tags[t], fm.ID)
	}

	freqs := map[string]float64{}
	seen := map[string]bool{}
	add := func(text string, weight float64) {
		for _, term := range Tokenize(text, stemming) {
			freqs[term] += weight
			seen[term] = true
		}
	}
	add(fm.Title, WeightTitle)
	add(strings.Join(fm.Tags, " "), WeightTags)
	add(n.Body, WeightBody)

	idx.TermFreqs[fm.ID] = freqs
	length := 0
	for term, w := range freqs {
		length += int(w)
		idx.TermDF[term]++
		_ = term
	}
	idx.DocLengths[fm.ID] = length
	idx.TotalDocs++
	idx.TotalLen += length
	_ = seen
}

func (idx *Index) addTypedEdges(n *note.Note, byID map[string]*note.Note) {
	for _, l := range n.Frontmatter.Links {
		if _, ok := byID[l.ID]; !ok {
			idx.Unresolved = append(idx.Unresolved, Unresolved{SourceID: n.Frontmatter.ID, TargetRef: l.ID})
			continue
		}
		idx.Edges = append(idx.Edges, Edge{From: n.Frontmatter.ID, To: l.ID, LinkType: l.LinkType, Source: note.SourceTyped})
	}
}

func (idx *Index) addInlineEdges(n *note.Note, byID map[string]*note.Note) {
	matches := wikiLinkPattern.FindAllStringSubmatch(n.Body, -1)
	for _, m := range matches {
		target := strings.TrimSpace(m[1])
		resolved, ok := idx.resolveInlineTarget(target, byID)
		if !ok {
			idx.Unresolved = append(idx.Unresolved, Unresolved{SourceID: n.Frontmatter.ID, TargetRef: target})
			continue
		}
		if resolved == n.Frontmatter.ID {
			continue // drop trivial self-references
		}
		idx.Edges = append(idx.Edges, Edge{From: n.Frontmatter.ID, To: resolved, LinkType: "related", Source: note.SourceInline})
	}
}

// resolveInlineTarget resolves a [[token]] either directly as an id or as
// a relative path into an id, per §4.6.
func (idx *Index) resolveInlineTarget(target string, byID map[string]*note.Note) (string, bool) {
	if _, ok := byID[target]; ok {
		return target, true
	}
	clean := strings.TrimSuffix(target, ".md")
	for path, id := range idx.Files {
		base := strings.TrimSuffix(path, ".md")
		if strings.HasSuffix(base, clean) {
			return id, true
		}
	}
	return "", false
}

func (idx *Index) sortEdges() {
	sort.Slice(idx.Edges, func(i, j int) bool {
		a, b := idx.Edges[i], idx.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.LinkType != b.LinkType {
			return a.LinkType < b.LinkType
		}
		return a.To < b.To
	})
}

func (idx *Index) rebuildAdjacency() {
	idx.Outbound = map[string][]Edge{}
	idx.Inbound = map[string][]Edge{}
	for _, e := range idx.Edges {
		idx.Outbound[e.From] = append(idx.Outbound[e.From], e)
		idx.Inbound[e.To] = append(idx.Inbound[e.To], e)
	}
}

func (idx *Index) sortTags() {
	for t, ids := range idx.Tags {
		sort.Strings(ids)
		idx.Tags[t] = ids
	}
}

// Tokenize lowercases and splits into alphanumeric runs, optionally
// stemming with a minimal Porter-style suffix stripper (§4.7). Hashed
// container iteration never drives this: callers always sort the result
// set before emitting output.
func Tokenize(text string, stemming bool) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := cur.String()
		if stemming {
			tok = stem(tok)
		}
		tokens = append(tokens, tok)
		cur.Reset()
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// stem is a minimal suffix stripper covering the common English plural and
// verb-ending cases; it is not a full Porter stemmer, but it groups the
// forms that matter for note search ("linking"/"links"/"linked" -> "link").
func stem(tok string) string {
	suffixes := []string{"ingly", "edly", "ing", "ied", "ies", "ed", "es", "s"}
	for _, suf := range suffixes {
		if len(tok) > len(suf)+2 && strings.HasSuffix(tok, suf) {
			return tok[:len(tok)-len(suf)]
		}
	}
	return tok
}
