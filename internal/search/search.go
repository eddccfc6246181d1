// Package search implements BM25 retrieval over the derived index (§4.7):
// embedded scoring plus an optional ripgrep-assisted candidate path,
// grounded on the teacher's subprocess-invocation style in
// internal/git/worktree.go (exec.Command, CombinedOutput, explicit error
// wrapping) adapted from git plumbing to a read-only grep helper.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/mwaldstein/qipu/internal/index"
)

// BM25 constants (§4.7). k1/b are the textbook Okapi BM25 defaults; the
// spec calls them "standard" without mandating a different value. Field
// boosting (title > tags > body) is applied once, at index-build time,
// via index.WeightTitle/WeightTags/WeightBody — bm25Score below consumes
// the already-weighted term frequencies rather than re-boosting by field.
const (
	k1 = 1.2
	b  = 0.75
)

// RecencyBoosts are added after BM25 scoring based on how recently a note
// was updated (§4.7). Configurable via Config.
type RecencyBoosts struct {
	Within7Days  float64
	Within30Days float64
	Within90Days float64
}

// DefaultRecencyBoosts matches the spec's literal coefficients.
var DefaultRecencyBoosts = RecencyBoosts{Within7Days: 0.5, Within30Days: 0.25, Within90Days: 0.1}

// Config bundles the tunables a caller may override from config.toml's
// [search] table.
type Config struct {
	Recency    RecencyBoosts
	Stemming   bool
	UseRipgrep bool
	RgPath     string
	NotesDir   string
	MOCsDir    string
}

// Result is one scored hit.
type Result struct {
	ID      string
	Score   float64
	Snippet string
}

func recencyBoost(updated time.Time, now time.Time, rb RecencyBoosts) float64 {
	age := now.Sub(updated)
	switch {
	case age <= 7*24*time.Hour:
		return rb.Within7Days
	case age <= 30*24*time.Hour:
		return rb.Within30Days
	case age <= 90*24*time.Hour:
		return rb.Within90Days
	default:
		return 0
	}
}

// Search runs query against idx using cfg, returning hits ordered by
// score descending then id ascending, truncated to 200 (§4.7). now is
// passed explicitly so recency boosting is deterministic in tests.
func Search(ctx context.Context, idx *index.Index, query string, cfg Config, now time.Time, readBody func(id string) (string, error)) ([]Result, error) {
	terms := index.Tokenize(query, cfg.Stemming)
	if len(terms) == 0 {
		return nil, nil
	}

	if cfg.UseRipgrep {
		results, err := ripgrepSearch(ctx, idx, terms, cfg, now, readBody)
		if err == nil {
			return results, nil
		}
		// Fall back to embedded on any failure (§4.7).
	}
	return embeddedSearch(idx, terms, cfg, now, readBody)
}

// embeddedSearch iterates metadata in id order, prunes by term presence,
// and computes BM25 for survivors, reading bodies only for notes that
// pass the title/tag prefilter (§4.7 "Embedded" path).
func embeddedSearch(idx *index.Index, terms []string, cfg Config, now time.Time, readBody func(id string) (string, error)) ([]Result, error) {
	ids := make([]string, 0, len(idx.Metadata))
	for id := range idx.Metadata {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	avgDocLen := 0.0
	if idx.TotalDocs > 0 {
		avgDocLen = float64(idx.TotalLen) / float64(idx.TotalDocs)
	}

	var results []Result
	for _, id := range ids {
		meta := idx.Metadata[id]
		freqs := idx.TermFreqs[id]

		present := false
		for _, t := range terms {
			if freqs[t] > 0 {
				present = true
				break
			}
		}
		if !present {
			continue
		}

		score := bm25Score(terms, freqs, idx.DocLengths[id], avgDocLen, idx.TermDF, idx.TotalDocs)
		score += recencyBoost(meta.Updated, now, cfg.Recency)

		snippet := ""
		if readBody != nil {
			if body, err := readBody(id); err == nil {
				snippet = contextSnippet(body, terms)
			}
		}
		results = append(results, Result{ID: id, Score: score, Snippet: snippet})
	}

	sortResults(results)
	return truncate(results), nil
}

// bm25Score computes per-field BM25 using the pre-weighted term
// frequencies already accumulated in TermFreqs (title/tags/body weights
// were applied at index-build time, so this is a single weighted BM25
// rather than three independent sums).
func bm25Score(terms []string, freqs map[string]float64, docLen int, avgDocLen float64, df map[string]int, totalDocs int) float64 {
	var score float64
	for _, t := range terms {
		f := freqs[t]
		if f == 0 {
			continue
		}
		n := df[t]
		idf := math.Log(1 + (float64(totalDocs)-float64(n)+0.5)/(float64(n)+0.5))
		denom := f + k1*(1-b+b*float64(docLen)/maxFloat(avgDocLen, 1))
		score += idf * (f * (k1 + 1)) / denom
	}
	return score
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// contextSnippet extracts a +/-40-char window around the first matching
// term occurrence in body (§4.7).
func contextSnippet(body string, terms []string) string {
	lower := strings.ToLower(body)
	best := -1
	for _, t := range terms {
		if idx := strings.Index(lower, t); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best < 0 {
		return ""
	}
	start := best - 40
	if start < 0 {
		start = 0
	}
	end := best + 40
	if end > len(body) {
		end = len(body)
	}
	return strings.TrimSpace(body[start:end])
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

func truncate(results []Result) []Result {
	if len(results) > 200 {
		return results[:200]
	}
	return results
}

// rgMatch mirrors the subset of ripgrep's --json "match" message this
// package consumes.
type rgMatch struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
	} `json:"data"`
}

// ripgrepSearch spawns rg with --json, unions the files it finds with a
// metadata-only title/tag prefilter, and scores the union with the same
// BM25 formula (§4.7 "Ripgrep-assisted" path).
func ripgrepSearch(ctx context.Context, idx *index.Index, terms []string, cfg Config, now time.Time, readBody func(id string) (string, error)) ([]Result, error) {
	rg := cfg.RgPath
	if rg == "" {
		rg = "rg"
	}
	if _, err := exec.LookPath(rg); err != nil {
		return nil, fmt.Errorf("search: ripgrep not available: %w", err)
	}

	pattern := strings.Join(terms, "|")
	args := []string{
		"--json", "--case-insensitive", "--no-heading", "--with-filename",
		"--context-before=1", "--context-after=1", "--max-columns=200",
		pattern, cfg.NotesDir, cfg.MOCsDir,
	}
	cmd := exec.CommandContext(ctx, rg, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			// rg exits 1 for "no matches", which is not a failure here.
		} else {
			return nil, fmt.Errorf("search: running ripgrep: %w", err)
		}
	}

	matchedFiles := map[string]bool{}
	for _, line := range strings.Split(stdout.String(), "\n") {
		if line == "" {
			continue
		}
		var m rgMatch
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			continue
		}
		if m.Type != "match" {
			continue
		}
		if id, ok := idx.Files[m.Data.Path.Text]; ok {
			matchedFiles[id] = true
		}
	}

	candidates := map[string]bool{}
	for id := range matchedFiles {
		candidates[id] = true
	}
	for id, meta := range idx.Metadata {
		for _, t := range terms {
			if strings.Contains(strings.ToLower(meta.Title), t) {
				candidates[id] = true
				break
			}
			for _, tag := range meta.Tags {
				if strings.Contains(strings.ToLower(tag), t) {
					candidates[id] = true
					break
				}
			}
		}
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	avgDocLen := 0.0
	if idx.TotalDocs > 0 {
		avgDocLen = float64(idx.TotalLen) / float64(idx.TotalDocs)
	}

	var results []Result
	for _, id := range ids {
		score := bm25Score(terms, idx.TermFreqs[id], idx.DocLengths[id], avgDocLen, idx.TermDF, idx.TotalDocs)
		score += recencyBoost(idx.Metadata[id].Updated, now, cfg.Recency)
		snippet := ""
		if readBody != nil {
			if body, err := readBody(id); err == nil {
				snippet = contextSnippet(body, terms)
			}
		}
		results = append(results, Result{ID: id, Score: score, Snippet: snippet})
	}

	sortResults(results)
	return truncate(results), nil
}
