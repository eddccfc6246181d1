// Package qcontext assembles retrieval bundles under an exact character
// budget: candidate collection from search and/or graph expansion, dedup
// by canonical id, ranking, and format emission with a
// build-measure-drop-reemit loop. Named for the `qipu context` verb,
// distinct from the standard library package.
package qcontext

import (
	"sort"
	"strings"

	"github.com/mwaldstein/qipu/internal/compact"
	"github.com/mwaldstein/qipu/internal/graph"
	"github.com/mwaldstein/qipu/internal/index"
	"github.com/mwaldstein/qipu/internal/records"
	"github.com/mwaldstein/qipu/internal/search"
)

// ExpansionMode controls how compacted notes are represented in a bundle
// (§4.9).
type ExpansionMode string

const (
	ExpansionIDsOnly ExpansionMode = "ids-only"
	ExpansionFull    ExpansionMode = "expanded"
)

// Candidate is one note under consideration for a bundle, before
// dedup/ranking.
type Candidate struct {
	ID       string
	Title    string
	Rank     float64 // higher is better; search score or -distance
	Snippet  string
	CompactedIDs []string
}

// Bundle is the assembled, budget-fitted result.
type Bundle struct {
	Text      string
	Included  []string
	Excluded  []string
	Truncated bool
}

// Options configures one assembly (§4.9).
type Options struct {
	Budget          int
	Format          string // "human", "json", "records"
	SafetyBanner    string
	CompactionMode  ExpansionMode
	StorePath       string
	Mode            string // verb name for the records header
}

// Assemble dedups candidates by canonical id (via compactCtx, if non-nil),
// ranks by Rank descending then id ascending, and emits in the chosen
// format under Options.Budget using build-measure-drop-reemit (§4.9).
func Assemble(candidates []Candidate, idx *index.Index, compactCtx *compact.Context, opts Options) Bundle {
	deduped := dedupe(candidates, compactCtx)
	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Rank != deduped[j].Rank {
			return deduped[i].Rank > deduped[j].Rank
		}
		return deduped[i].ID < deduped[j].ID
	})

	switch opts.Format {
	case "records":
		return assembleRecords(deduped, opts)
	default:
		return assembleText(deduped, opts)
	}
}

func dedupe(candidates []Candidate, compactCtx *compact.Context) []Candidate {
	seen := map[string]bool{}
	var out []Candidate
	for _, c := range candidates {
		id := c.ID
		if compactCtx != nil {
			if canon, err := compactCtx.Canon(c.ID); err == nil {
				id = canon
			}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		c.ID = id
		out = append(out, c)
	}
	return out
}

// assembleText implements the build-measure-drop-reemit loop for the
// human/JSON textual formats: render all candidates, and if over budget,
// drop the lowest-ranked (last, since candidates are pre-sorted
// descending) and re-render (§4.9 "Exact-budget discipline").
func assembleText(candidates []Candidate, opts Options) Bundle {
	remaining := append([]Candidate(nil), candidates...)
	var excluded []string
	truncated := false

	for {
		text := renderText(remaining, opts)
		if opts.Budget <= 0 || len(text) <= opts.Budget {
			included := make([]string, 0, len(remaining))
			for _, c := range remaining {
				included = append(included, c.ID)
			}
			return Bundle{Text: text, Included: included, Excluded: excluded, Truncated: truncated}
		}
		if len(remaining) == 0 {
			// Only the banner is left and it does not fit: drop it too.
			opts.SafetyBanner = ""
			truncated = true
			continue
		}
		dropped := remaining[len(remaining)-1]
		excluded = append(excluded, dropped.ID)
		remaining = remaining[:len(remaining)-1]
		truncated = true
	}
}

func renderText(candidates []Candidate, opts Options) string {
	var sb strings.Builder
	if opts.SafetyBanner != "" {
		banner := opts.SafetyBanner + "\n\n"
		sb.WriteString(banner)
	}
	for _, c := range candidates {
		sb.WriteString("## ")
		sb.WriteString(c.Title)
		sb.WriteString(" (")
		sb.WriteString(c.ID)
		sb.WriteString(")\n")
		if c.Snippet != "" {
			sb.WriteString(c.Snippet)
			sb.WriteString("\n")
		}
		if opts.CompactionMode == ExpansionIDsOnly && len(c.CompactedIDs) > 0 {
			sb.WriteString("compacted: ")
			sb.WriteString(strings.Join(c.CompactedIDs, ", "))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	text := sb.String()
	if opts.SafetyBanner != "" && len(text) > 0 {
		// If even the banner alone doesn't fit, assembleText drops it after
		// every candidate; nothing further to do here.
	}
	return text
}

// assembleRecords builds one records.Block per candidate and lets
// records.Fit perform the greedy budget selection, reusing the same wire
// format the records package defines (§4.9, §4.10).
func assembleRecords(candidates []Candidate, opts Options) Bundle {
	blocks := make([]records.Block, 0, len(candidates))
	for i, c := range candidates {
		recs := []records.Record{
			{Tag: records.TagNote, Fields: []records.Field{
				{Key: "id", Value: c.ID}, {Key: "title", Value: c.Title},
			}},
		}
		if c.Snippet != "" {
			recs = append(recs, records.Record{Tag: records.TagSummary, Fields: []records.Field{
				{Key: "id", Value: c.ID}, {Key: "text", Value: c.Snippet},
			}})
		}
		if opts.CompactionMode == ExpansionIDsOnly && len(c.CompactedIDs) > 0 {
			recs = append(recs, records.Record{Tag: records.TagDetail, Fields: []records.Field{
				{Key: "id", Value: c.ID}, {Key: "compacted_ids", Value: records.CSV(c.CompactedIDs)},
			}})
		}
		blocks = append(blocks, records.Block{ID: c.ID, Title: c.Title, Records: recs, Rank: len(candidates) - i})
	}

	var headerExtra []records.Field
	if opts.SafetyBanner != "" {
		headerExtra = append(headerExtra, records.Field{Key: "banner", Value: opts.SafetyBanner})
	}

	text := records.Render(opts.StorePath, opts.Mode, headerExtra, blocks, opts.Budget)
	kept, dropped, truncated := records.Fit(blocks, opts.Budget)

	var included, excluded []string
	for _, b := range kept {
		included = append(included, b.ID)
	}
	for _, b := range dropped {
		excluded = append(excluded, b.ID)
	}
	return Bundle{Text: text, Included: included, Excluded: excluded, Truncated: truncated}
}

// FromSearch converts search results into ranked Candidates (§4.9 step 1).
func FromSearch(results []search.Result, idx *index.Index) []Candidate {
	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		meta := idx.Metadata[r.ID]
		out = append(out, Candidate{ID: r.ID, Title: meta.Title, Rank: r.Score, Snippet: r.Snippet})
	}
	return out
}

// FromTree converts a graph expansion into ranked Candidates, ranking by
// negative cost so nearer nodes sort first (§4.9 step 1, neighborhood
// expansion case).
func FromTree(tree *graph.Tree, idx *index.Index) []Candidate {
	out := make([]Candidate, 0, len(tree.Nodes))
	for _, n := range tree.Nodes {
		meta := idx.Metadata[n.ID]
		out = append(out, Candidate{ID: n.ID, Title: meta.Title, Rank: -n.Cost})
	}
	return out
}

// Prime assembles an orientation bundle seeded from the highest-value,
// most-recent MOCs in the index, reusing Assemble's budget discipline
// (spec's `prime` verb, supplemented from original_source/'s equivalent
// per SPEC_FULL.md §C).
func Prime(idx *index.Index, compactCtx *compact.Context, opts Options) Bundle {
	var mocCandidates []Candidate
	for id, meta := range idx.Metadata {
		if meta.Type != "moc" {
			continue
		}
		ageRank := float64(meta.Updated.Unix())
		rank := float64(meta.Value)*1e12 + ageRank
		mocCandidates = append(mocCandidates, Candidate{ID: id, Title: meta.Title, Rank: rank})
	}
	return Assemble(mocCandidates, idx, compactCtx, opts)
}
