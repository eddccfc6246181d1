// Package note implements the qipu note model: frontmatter+body parsing,
// canonical serialization, filename discipline, and the struct invariants
// described in spec §3/§4.2.
package note

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Standard note types recognized by the default ontology (§4.4). Custom
// types are still representable in NoteType; the ontology package is what
// enforces whether a given value is allowed under the configured mode.
const (
	TypeFleeting  = "fleeting"
	TypeLiterature = "literature"
	TypePermanent = "permanent"
	TypeMOC       = "moc"
)

// EdgeSource distinguishes typed frontmatter links from inline [[wiki]]
// links discovered by the indexer (spec §3 Edge).
type EdgeSource string

const (
	SourceTyped  EdgeSource = "typed"
	SourceInline EdgeSource = "inline"
)

// ParseError is returned for malformed frontmatter or missing required
// fields (spec §7).
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("note: parse %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("note: parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Source is a provenance citation attached to a note (§3 sources).
type Source struct {
	URL      string `yaml:"url"`
	Title    string `yaml:"title,omitempty"`
	Accessed string `yaml:"accessed,omitempty"`
}

// Link is a typed, directed reference to another note id, declared in
// frontmatter (as opposed to an inline [[id]] token discovered in the body).
type Link struct {
	ID       string `yaml:"id"`
	LinkType string `yaml:"link_type"`
}

// Frontmatter holds every field described in spec §3.
type Frontmatter struct {
	ID        string
	Title     string
	NoteType  string
	Tags      []string
	Created   time.Time
	Updated   time.Time
	Summary   string
	Sources   []Source
	Links     []Link
	Compacts  []string

	SourceProv  string
	Author      string
	GeneratedBy string
	PromptHash  string
	Verified    *bool

	Value *int

	// Custom preserves unrecognized keys in their original order so that
	// round-tripping a note never silently drops extension data.
	Custom []CustomField
}

// CustomField is one entry of the free-form "custom" namespace (§3).
type CustomField struct {
	Key  string
	Node *yaml.Node
}

// Note is the in-memory representation of one markdown file.
type Note struct {
	Frontmatter Frontmatter
	Body        string
	Path        string // relative to the store root; empty until saved
}

const isoLayout = time.RFC3339

// Validate checks the invariants spec §3 attaches to a note in isolation.
// It checks only that the id is present: doctor's StructuralCheck checks
// the id's format, and uniqueness across the store is not checked here.
func (n *Note) Validate() error {
	if n.Frontmatter.ID == "" {
		return errors.New("note: id is required")
	}
	if n.Frontmatter.Title == "" {
		return errors.New("note: title is required")
	}
	if !n.Frontmatter.Created.IsZero() && !n.Frontmatter.Updated.IsZero() {
		if n.Frontmatter.Updated.Before(n.Frontmatter.Created) {
			return fmt.Errorf("note %s: updated (%s) precedes created (%s)", n.Frontmatter.ID, n.Frontmatter.Updated, n.Frontmatter.Created)
		}
	}
	if n.Frontmatter.Value != nil && (*n.Frontmatter.Value < 0 || *n.Frontmatter.Value > 100) {
		return fmt.Errorf("note %s: value %d out of range [0,100]", n.Frontmatter.ID, *n.Frontmatter.Value)
	}
	return nil
}

// IsMOC reports whether this note belongs under mocs/ rather than notes/.
func (n *Note) IsMOC() bool { return n.Frontmatter.NoteType == TypeMOC }

// IsDigest reports whether this note subsumes other notes via compacts (§3).
func (n *Note) IsDigest() bool { return len(n.Frontmatter.Compacts) > 0 }

// Filename returns the canonical "<id>-<slug>.md" name for this note (§3).
func (n *Note) Filename() string {
	return n.Frontmatter.ID + "-" + Slugify(n.Frontmatter.Title) + ".md"
}

// Slugify lowercases, replaces runs of non-alphanumerics with a single
// hyphen, and trims leading/trailing hyphens.
func Slugify(title string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			prevDash = false
		default:
			if !prevDash && b.Len() > 0 {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// Parse splits raw markdown into frontmatter and body and decodes the
// frontmatter into a Note. path is used only for error messages.
func Parse(raw []byte, path string) (*Note, error) {
	fmText, body, err := splitFrontmatter(string(raw))
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(fmText), &doc); err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("invalid YAML: %w", err)}
	}
	if len(doc.Content) == 0 {
		return nil, &ParseError{Path: path, Err: errors.New("empty frontmatter")}
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Err: errors.New("frontmatter is not a mapping")}
	}

	fm, err := decodeFrontmatter(mapping)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if fm.ID == "" {
		return nil, &ParseError{Path: path, Err: errors.New("missing required field: id")}
	}
	if fm.Title == "" {
		return nil, &ParseError{Path: path, Err: errors.New("missing required field: title")}
	}
	if fm.NoteType == "" {
		fm.NoteType = TypeFleeting
	}

	n := &Note{Frontmatter: *fm, Body: body, Path: path}
	return n, nil
}

// splitFrontmatter locates the leading "---" fence and the first "\n---"
// that closes it, per spec §4.2.
func splitFrontmatter(raw string) (frontmatter, body string, err error) {
	raw = strings.TrimPrefix(raw, "﻿") // tolerate a BOM
	if !strings.HasPrefix(raw, "---") {
		return "", "", errors.New("missing leading frontmatter fence")
	}
	rest := raw[3:]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	closeIdx := strings.Index(rest, "\n---")
	if closeIdx == -1 {
		return "", "", errors.New("missing closing frontmatter fence")
	}
	frontmatter = rest[:closeIdx]
	afterFence := rest[closeIdx+len("\n---"):]
	// Skip to end of the closing fence line.
	if nl := strings.IndexByte(afterFence, '\n'); nl != -1 {
		afterFence = afterFence[nl+1:]
	} else {
		afterFence = ""
	}
	// A single blank line separates the fence from the body (§4.2); drop
	// at most one.
	afterFence = strings.TrimPrefix(afterFence, "\n")
	return frontmatter, afterFence, nil
}

var knownKeys = map[string]bool{
	"id": true, "title": true, "note_type": true, "tags": true,
	"created": true, "updated": true, "summary": true, "sources": true,
	"links": true, "compacts": true, "source": true, "author": true,
	"generated_by": true, "prompt_hash": true, "verified": true, "value": true,
}

func decodeFrontmatter(mapping *yaml.Node) (*Frontmatter, error) {
	fm := &Frontmatter{}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		val := mapping.Content[i+1]
		switch key.Value {
		case "id":
			fm.ID = val.Value
		case "title":
			fm.Title = val.Value
		case "note_type":
			fm.NoteType = val.Value
		case "tags":
			if err := val.Decode(&fm.Tags); err != nil {
				return nil, fmt.Errorf("tags: %w", err)
			}
		case "created":
			t, err := parseTimestamp(val.Value)
			if err != nil {
				return nil, fmt.Errorf("created: %w", err)
			}
			fm.Created = t
		case "updated":
			t, err := parseTimestamp(val.Value)
			if err != nil {
				return nil, fmt.Errorf("updated: %w", err)
			}
			fm.Updated = t
		case "summary":
			fm.Summary = val.Value
		case "sources":
			if err := val.Decode(&fm.Sources); err != nil {
				return nil, fmt.Errorf("sources: %w", err)
			}
		case "links":
			if err := val.Decode(&fm.Links); err != nil {
				return nil, fmt.Errorf("links: %w", err)
			}
		case "compacts":
			if err := val.Decode(&fm.Compacts); err != nil {
				return nil, fmt.Errorf("compacts: %w", err)
			}
		case "source":
			fm.SourceProv = val.Value
		case "author":
			fm.Author = val.Value
		case "generated_by":
			fm.GeneratedBy = val.Value
		case "prompt_hash":
			fm.PromptHash = val.Value
		case "verified":
			var b bool
			if err := val.Decode(&b); err != nil {
				return nil, fmt.Errorf("verified: %w", err)
			}
			fm.Verified = &b
		case "value":
			var v int
			if err := val.Decode(&v); err != nil {
				return nil, fmt.Errorf("value: %w", err)
			}
			fm.Value = &v
		default:
			fm.Custom = append(fm.Custom, CustomField{Key: key.Value, Node: val})
		}
	}

	// generated_by set without an explicit verified initializes verified=false (§3).
	if fm.GeneratedBy != "" && fm.Verified == nil {
		f := false
		fm.Verified = &f
	}

	return fm, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

// Serialize renders the note as canonical markdown: a YAML frontmatter
// block in the fixed field order from §4.2, a blank line, then the body
// verbatim.
func Serialize(n *Note) ([]byte, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value *yaml.Node) {
		mapping.Content = append(mapping.Content, scalarNode(key), value)
	}

	add("id", scalarNode(n.Frontmatter.ID))
	add("title", scalarNode(n.Frontmatter.Title))
	noteType := n.Frontmatter.NoteType
	if noteType == "" {
		noteType = TypeFleeting
	}
	add("note_type", scalarNode(noteType))
	if len(n.Frontmatter.Tags) > 0 {
		add("tags", sequenceOfScalars(n.Frontmatter.Tags))
	}
	if !n.Frontmatter.Created.IsZero() {
		add("created", scalarNode(n.Frontmatter.Created.UTC().Format(isoLayout)))
	}
	if !n.Frontmatter.Updated.IsZero() {
		add("updated", scalarNode(n.Frontmatter.Updated.UTC().Format(isoLayout)))
	}
	if n.Frontmatter.Summary != "" {
		add("summary", scalarNode(n.Frontmatter.Summary))
	}
	if len(n.Frontmatter.Sources) > 0 {
		node, err := encodeNode(n.Frontmatter.Sources)
		if err != nil {
			return nil, err
		}
		add("sources", node)
	}
	if len(n.Frontmatter.Links) > 0 {
		node, err := encodeNode(n.Frontmatter.Links)
		if err != nil {
			return nil, err
		}
		add("links", node)
	}
	if len(n.Frontmatter.Compacts) > 0 {
		add("compacts", sequenceOfScalars(n.Frontmatter.Compacts))
	}
	if n.Frontmatter.SourceProv != "" {
		add("source", scalarNode(n.Frontmatter.SourceProv))
	}
	if n.Frontmatter.Author != "" {
		add("author", scalarNode(n.Frontmatter.Author))
	}
	if n.Frontmatter.GeneratedBy != "" {
		add("generated_by", scalarNode(n.Frontmatter.GeneratedBy))
	}
	if n.Frontmatter.PromptHash != "" {
		add("prompt_hash", scalarNode(n.Frontmatter.PromptHash))
	}
	if n.Frontmatter.Verified != nil {
		add("verified", scalarNode(strconv.FormatBool(*n.Frontmatter.Verified)))
		mapping.Content[len(mapping.Content)-1].Tag = "!!bool"
	}
	if n.Frontmatter.Value != nil {
		add("value", scalarNode(strconv.Itoa(*n.Frontmatter.Value)))
		mapping.Content[len(mapping.Content)-1].Tag = "!!int"
	}
	for _, c := range n.Frontmatter.Custom {
		add(c.Key, c.Node)
	}

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("note: serialize: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n\n")
	b.WriteString(n.Body)
	return []byte(b.String()), nil
}

func scalarNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: s}
}

func sequenceOfScalars(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode}
	for _, it := range items {
		n.Content = append(n.Content, scalarNode(it))
	}
	return n
}

func encodeNode(v interface{}) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, fmt.Errorf("note: encode: %w", err)
	}
	return &n, nil
}

// FirstParagraph returns the first non-empty paragraph of the body, used
// wherever a short rendering of a note is needed and Summary is unset
// (spec §4.5 size()).
func (n *Note) FirstParagraph() string {
	if n.Frontmatter.Summary != "" {
		return n.Frontmatter.Summary
	}
	paragraphs := strings.Split(strings.TrimSpace(n.Body), "\n\n")
	if len(paragraphs) == 0 {
		return ""
	}
	return strings.TrimSpace(paragraphs[0])
}

// Size is the character length used by compaction-percentage math (§4.5).
func (n *Note) Size() int {
	return len([]rune(n.FirstParagraph()))
}
