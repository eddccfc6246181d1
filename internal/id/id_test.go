package id

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateHashDeterministicLength(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := Generate(SchemeHash, "My Note", now, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(got, Prefix) {
		t.Fatalf("id %q missing prefix %q", got, Prefix)
	}
	if n := len(got) - len(Prefix); n < minHashLen {
		t.Fatalf("id suffix length %d shorter than minimum %d", n, minHashLen)
	}
}

func TestGenerateHashAvoidsCollisions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	taken := map[string]bool{}
	exists := func(candidate string) bool { return taken[candidate] }

	for i := 0; i < 20; i++ {
		got, err := Generate(SchemeHash, "same title", now, exists)
		if err != nil {
			t.Fatalf("Generate iteration %d: %v", i, err)
		}
		if taken[got] {
			t.Fatalf("generated id %q collides with a previous one", got)
		}
		taken[got] = true
	}
}

func TestGenerateHashExhausted(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err := Generate(SchemeHash, "x", now, func(string) bool { return true })
	if err == nil {
		t.Fatal("expected error when every candidate length is taken")
	}
}

func TestGenerateULID(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := Generate(SchemeULID, "title", now, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(got, Prefix) {
		t.Fatalf("id %q missing prefix", got)
	}
	if n := len(got) - len(Prefix); n != 26 {
		t.Fatalf("ULID suffix length = %d, want 26", n)
	}
	if got != strings.ToLower(got) {
		t.Fatalf("ULID suffix %q not lowercased", got)
	}
}

func TestGenerateTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := Generate(SchemeTimestamp, "title", now, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := Prefix + "20260102030405"
	if got != want {
		t.Fatalf("Generate(timestamp) = %q, want %q", got, want)
	}
}

func TestGenerateUnknownScheme(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if _, err := Generate(Scheme("bogus"), "title", now, nil); err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"qp-abcd", true},
		{"qp-ABCD12", true},
		{"qp-", false},
		{"abcd", false},
		{"qp-ab cd", false},
		{"qp-ab_cd", false},
		{"qp-a.b-c", true},
	}
	for _, c := range cases {
		if got := Valid(c.in); got != c.want {
			t.Errorf("Valid(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
