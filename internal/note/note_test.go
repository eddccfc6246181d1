package note

import (
	"strings"
	"testing"
	"time"
)

const sample = `---
id: qp-abcd
title: Test Note
note_type: permanent
tags:
  - alpha
  - beta
created: 2026-01-01T00:00:00Z
updated: 2026-01-02T00:00:00Z
summary: a short summary
links:
  - id: qp-ef01
    link_type: supports
compacts:
  - qp-0001
value: 80
custom_field: hello
---

First paragraph of the body.

Second paragraph.
`

func TestParseRoundTrip(t *testing.T) {
	n, err := Parse([]byte(sample), "notes/qp-abcd-test-note.md")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Frontmatter.ID != "qp-abcd" {
		t.Errorf("ID = %q, want qp-abcd", n.Frontmatter.ID)
	}
	if n.Frontmatter.Title != "Test Note" {
		t.Errorf("Title = %q", n.Frontmatter.Title)
	}
	if len(n.Frontmatter.Tags) != 2 || n.Frontmatter.Tags[0] != "alpha" {
		t.Errorf("Tags = %v", n.Frontmatter.Tags)
	}
	if len(n.Frontmatter.Links) != 1 || n.Frontmatter.Links[0].LinkType != "supports" {
		t.Errorf("Links = %v", n.Frontmatter.Links)
	}
	if n.Frontmatter.Value == nil || *n.Frontmatter.Value != 80 {
		t.Errorf("Value = %v", n.Frontmatter.Value)
	}
	if len(n.Frontmatter.Custom) != 1 || n.Frontmatter.Custom[0].Key != "custom_field" {
		t.Errorf("Custom = %v", n.Frontmatter.Custom)
	}
	if !strings.Contains(n.Body, "First paragraph") {
		t.Errorf("Body missing expected text: %q", n.Body)
	}

	out, err := Serialize(n)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	n2, err := Parse(out, "")
	if err != nil {
		t.Fatalf("re-Parse serialized note: %v\n%s", err, out)
	}
	if n2.Frontmatter.ID != n.Frontmatter.ID || n2.Frontmatter.Title != n.Frontmatter.Title {
		t.Errorf("round-trip mismatch: %+v vs %+v", n2.Frontmatter, n.Frontmatter)
	}
	if len(n2.Frontmatter.Custom) != 1 || n2.Frontmatter.Custom[0].Key != "custom_field" {
		t.Errorf("round-trip lost custom field: %v", n2.Frontmatter.Custom)
	}
}

func TestParseMissingRequiredFields(t *testing.T) {
	cases := []string{
		"---\ntitle: no id\n---\nbody\n",
		"---\nid: qp-abcd\n---\nbody\n",
		"not frontmatter at all",
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c), "x.md"); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", c)
		}
	}
}

func TestParseDefaultsNoteType(t *testing.T) {
	raw := "---\nid: qp-abcd\ntitle: T\n---\nbody\n"
	n, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Frontmatter.NoteType != TypeFleeting {
		t.Errorf("NoteType = %q, want %q", n.Frontmatter.NoteType, TypeFleeting)
	}
}

func TestGeneratedByInitializesVerifiedFalse(t *testing.T) {
	raw := "---\nid: qp-abcd\ntitle: T\ngenerated_by: agent-1\n---\nbody\n"
	n, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Frontmatter.Verified == nil || *n.Frontmatter.Verified != false {
		t.Errorf("Verified = %v, want pointer to false", n.Frontmatter.Verified)
	}
}

func TestGeneratedByRespectsExplicitVerified(t *testing.T) {
	raw := "---\nid: qp-abcd\ntitle: T\ngenerated_by: agent-1\nverified: true\n---\nbody\n"
	n, err := Parse([]byte(raw), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Frontmatter.Verified == nil || *n.Frontmatter.Verified != true {
		t.Errorf("Verified = %v, want pointer to true", n.Frontmatter.Verified)
	}
}

func TestValidate(t *testing.T) {
	v := 50
	base := Note{Frontmatter: Frontmatter{ID: "qp-a", Title: "T", Value: &v}}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid note, got %v", err)
	}

	noID := base
	noID.Frontmatter.ID = ""
	if err := noID.Validate(); err == nil {
		t.Error("expected error for missing id")
	}

	badValue := base
	bv := 150
	badValue.Frontmatter.Value = &bv
	if err := badValue.Validate(); err == nil {
		t.Error("expected error for out-of-range value")
	}

	badOrder := base
	badOrder.Frontmatter.Created = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	badOrder.Frontmatter.Updated = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := badOrder.Validate(); err == nil {
		t.Error("expected error when updated precedes created")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":  "hello-world",
		"  leading":      "leading",
		"trailing  ":     "trailing",
		"":                "untitled",
		"Already-Slugged": "already-slugged",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilename(t *testing.T) {
	n := &Note{Frontmatter: Frontmatter{ID: "qp-abcd", Title: "My Title"}}
	want := "qp-abcd-my-title.md"
	if got := n.Filename(); got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
}

func TestFirstParagraphPrefersSummary(t *testing.T) {
	n := &Note{
		Frontmatter: Frontmatter{Summary: "the summary"},
		Body:        "body paragraph one.\n\nbody paragraph two.",
	}
	if got := n.FirstParagraph(); got != "the summary" {
		t.Errorf("FirstParagraph() = %q, want summary", got)
	}

	n2 := &Note{Body: "body paragraph one.\n\nbody paragraph two."}
	if got := n2.FirstParagraph(); got != "body paragraph one." {
		t.Errorf("FirstParagraph() = %q", got)
	}
}

func TestIsMOCAndIsDigest(t *testing.T) {
	moc := &Note{Frontmatter: Frontmatter{NoteType: TypeMOC}}
	if !moc.IsMOC() {
		t.Error("expected IsMOC true")
	}
	digest := &Note{Frontmatter: Frontmatter{Compacts: []string{"qp-1"}}}
	if !digest.IsDigest() {
		t.Error("expected IsDigest true")
	}
	if moc.IsDigest() {
		t.Error("expected IsDigest false for non-digest note")
	}
}
