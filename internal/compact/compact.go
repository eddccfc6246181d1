// Package compact implements the compaction relation (spec §3, §4.5): the
// relation derived from every note's "compacts:" array, its canonical-form
// closure, cycle detection, and depth-bounded expansion.
package compact

import (
	"fmt"
	"sort"
)

// Error is the taxonomy of compaction validation failures (§7
// CompactionError).
type Error struct {
	Kind    string // "multiple-compactors", "self-compaction", "cycle", "unresolved"
	Detail  string
}

func (e *Error) Error() string { return fmt.Sprintf("compaction: %s: %s", e.Kind, e.Detail) }

// Context is the relation over note ids derived from every compacts: array.
type Context struct {
	compactor   map[string]string   // source id -> its one digest
	compactedBy map[string][]string // digest id -> source ids, in declaration order
}

// Build scans notes' Compacts fields and derives the compaction relation.
// It fails fast if any source id appears in two digests' compacts lists,
// or if a note compacts itself (§4.5).
func Build(ids []string, compacts map[string][]string) (*Context, error) {
	ctx := &Context{
		compactor:   map[string]string{},
		compactedBy: map[string][]string{},
	}

	known := map[string]bool{}
	for _, id := range ids {
		known[id] = true
	}

	// Stable iteration order over the digest set, even though the caller
	// passes a map, so build errors are deterministic across runs.
	digests := make([]string, 0, len(compacts))
	for d := range compacts {
		digests = append(digests, d)
	}
	sort.Strings(digests)

	for _, digest := range digests {
		sources := compacts[digest]
		for _, src := range sources {
			if src == digest {
				return nil, &Error{Kind: "self-compaction", Detail: src}
			}
			if existing, ok := ctx.compactor[src]; ok {
				return nil, &Error{Kind: "multiple-compactors", Detail: fmt.Sprintf("%s claimed by both %s and %s", src, existing, digest)}
			}
			ctx.compactor[src] = digest
			ctx.compactedBy[digest] = append(ctx.compactedBy[digest], src)
		}
	}

	return ctx, nil
}

// Canon repeatedly follows the compactor link until it runs out, returning
// id unchanged if it is not compacted. A cycle in the relation is reported
// as a CompactionError rather than looping forever (§3, §7).
func (c *Context) Canon(id string) (string, error) {
	visited := map[string]bool{id: true}
	cur := id
	for {
		next, ok := c.compactor[cur]
		if !ok {
			return cur, nil
		}
		if visited[next] {
			return "", &Error{Kind: "cycle", Detail: fmt.Sprintf("%s -> ... -> %s", id, next)}
		}
		visited[next] = true
		cur = next
	}
}

// CompactedBy returns the direct sources of digest, in declaration order.
func (c *Context) CompactedBy(digest string) []string {
	return append([]string(nil), c.compactedBy[digest]...)
}

// Compactor returns the digest that directly subsumes id, and whether one
// exists.
func (c *Context) Compactor(id string) (string, bool) {
	d, ok := c.compactor[id]
	return d, ok
}

// EquivalenceMap returns every id (across allIDs) whose canonical form is d,
// including d itself.
func (c *Context) EquivalenceMap(allIDs []string, d string) []string {
	var out []string
	for _, id := range allIDs {
		canon, err := c.Canon(id)
		if err == nil && canon == d {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// CompactedIDs performs a depth-bounded traversal over the compactor
// inverse (compactedBy), collecting every id compacted into digest within
// depth levels, sorted for determinism and truncated to maxNodes (§4.5).
func (c *Context) CompactedIDs(digest string, depth, maxNodes int) (ids []string, truncated bool) {
	type frontierEntry struct {
		id    string
		level int
	}
	seen := map[string]bool{}
	var collected []string
	queue := []frontierEntry{{id: digest, level: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.level >= depth {
			continue
		}
		for _, src := range c.compactedBy[cur.id] {
			if seen[src] {
				continue
			}
			seen[src] = true
			collected = append(collected, src)
			queue = append(queue, frontierEntry{id: src, level: cur.level + 1})
		}
	}
	sort.Strings(collected)
	if maxNodes > 0 && len(collected) > maxNodes {
		return collected[:maxNodes], true
	}
	return collected, false
}

// Validate cross-checks the relation against the full id set, returning one
// error string per problem: unresolved references, self-compaction, cycles,
// multiple compactors (§4.5). Build() already rejects self-compaction and
// multiple compactors at construction time, so in practice this surfaces
// unresolved references and cycles found after the fact (e.g. a source
// note that was since deleted).
func Validate(ctx *Context, knownIDs map[string]bool) []string {
	var problems []string
	for src, digest := range ctx.compactor {
		if !knownIDs[src] {
			problems = append(problems, fmt.Sprintf("unresolved compaction source: %s", src))
		}
		if !knownIDs[digest] {
			problems = append(problems, fmt.Sprintf("unresolved compaction digest: %s", digest))
		}
	}
	for digest := range ctx.compactedBy {
		if _, err := ctx.Canon(digest); err != nil {
			problems = append(problems, err.Error())
		}
	}
	sort.Strings(problems)
	return problems
}

// Sizer returns the compaction-percentage size of a note, defined by spec
// §4.5 as len(summary) if set, else the first-paragraph length.
type Sizer func(id string) int

// Percentage computes 100 * (1 - size(digest) / sum(size(sources))), per
// §4.5. A zero expanded (source) size yields 0%, never a divide-by-zero.
func Percentage(digestID string, sourceIDs []string, size Sizer) float64 {
	var total int
	for _, s := range sourceIDs {
		total += size(s)
	}
	if total == 0 {
		return 0
	}
	digestSize := size(digestID)
	return 100 * (1 - float64(digestSize)/float64(total))
}

// Stats aggregates compaction-percentage statistics across every digest in
// the store (supplementing spec.md's compact status/apply/show/suggest/
// guide verbs with a report view, grounded on the original's
// compact/report.rs).
type Stats struct {
	DigestCount      int
	TotalSourceCount int
	AveragePercent   float64
	PerDigestPercent map[string]float64
}

// Report computes Stats over every digest known to ctx.
func Report(ctx *Context, size Sizer) Stats {
	stats := Stats{PerDigestPercent: map[string]float64{}}
	var sum float64
	digests := make([]string, 0, len(ctx.compactedBy))
	for d := range ctx.compactedBy {
		digests = append(digests, d)
	}
	sort.Strings(digests)
	for _, d := range digests {
		sources := ctx.compactedBy[d]
		pct := Percentage(d, sources, size)
		stats.PerDigestPercent[d] = pct
		stats.DigestCount++
		stats.TotalSourceCount += len(sources)
		sum += pct
	}
	if stats.DigestCount > 0 {
		stats.AveragePercent = sum / float64(stats.DigestCount)
	}
	return stats
}
