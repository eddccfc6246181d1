package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/compact"
	"github.com/mwaldstein/qipu/internal/note"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Manage compaction: digests that subsume source notes",
}

var compactApplyCmd = &cobra.Command{
	Use:   "apply <digest-id> <source-id...>",
	Short: "Record that digest-id compacts the given source notes",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		digestID, sourceIDs := args[0], args[1:]
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}

		var digest *note.Note
		for _, n := range st.Notes {
			if n.Frontmatter.ID == digestID {
				digest = n
				break
			}
		}
		if digest == nil {
			return newUsageError("digest note not found: %s", digestID)
		}

		known := map[string]bool{}
		for _, n := range st.Notes {
			known[n.Frontmatter.ID] = true
		}
		for _, src := range sourceIDs {
			if !known[src] {
				return newUsageError("source note not found: %s", src)
			}
			if src == digestID {
				return newUsageError("a note cannot compact itself: %s", src)
			}
		}

		digest.Frontmatter.Compacts = append(digest.Frontmatter.Compacts, sourceIDs...)
		if _, err := s.Save(digest, now()); err != nil {
			return err
		}
		if !flagQuiet {
			fmt.Printf("%s now compacts %d note(s)\n", digestID, len(sourceIDs))
		}
		return nil
	},
}

var compactShowCmd = &cobra.Command{
	Use:   "show <digest-id>",
	Short: "Show the sources a digest compacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		ids, truncated := st.Compact.CompactedIDs(args[0], flagCompactionDepth, flagCompactionMaxNodes)
		for _, id := range ids {
			fmt.Println(id)
		}
		if truncated {
			fmt.Println("# truncated")
		}
		return nil
	},
}

var compactStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show whether a note is a digest, a source, or neither",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		id := args[0]
		if digest, ok := st.Compact.Compactor(id); ok {
			fmt.Printf("%s is compacted into %s\n", id, digest)
			return nil
		}
		if sources := st.Compact.CompactedBy(id); len(sources) > 0 {
			fmt.Printf("%s compacts %d source note(s)\n", id, len(sources))
			return nil
		}
		fmt.Printf("%s is not part of any compaction relation\n", id)
		return nil
	},
}

var compactReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report compaction-percentage statistics across every digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		size := func(id string) int {
			for _, n := range st.Notes {
				if n.Frontmatter.ID == id {
					return n.Size()
				}
			}
			return 0
		}
		stats := compact.Report(st.Compact, size)
		fmt.Printf("digests=%d sources=%d average_percent=%.1f\n", stats.DigestCount, stats.TotalSourceCount, stats.AveragePercent)
		digests := make([]string, 0, len(stats.PerDigestPercent))
		for d := range stats.PerDigestPercent {
			digests = append(digests, d)
		}
		sort.Strings(digests)
		for _, d := range digests {
			fmt.Printf("%s\t%.1f%%\n", d, stats.PerDigestPercent[d])
		}
		return nil
	},
}

var compactSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest clusters of highly-linked notes that might warrant a digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		type candidate struct {
			id     string
			degree int
		}
		var cands []candidate
		for id := range st.Idx.Metadata {
			if _, compacted := st.Compact.Compactor(id); compacted {
				continue
			}
			degree := len(st.Idx.Outbound[id]) + len(st.Idx.Inbound[id])
			if degree >= 3 {
				cands = append(cands, candidate{id: id, degree: degree})
			}
		}
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].degree != cands[j].degree {
				return cands[i].degree > cands[j].degree
			}
			return cands[i].id < cands[j].id
		})
		for _, c := range cands {
			fmt.Printf("%s\tdegree=%d\n", c.id, c.degree)
		}
		return nil
	},
}

var compactGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Print a short human guide to the compaction workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(`Compaction workflow:
  1. qipu compact suggest          find clusters of densely-linked notes
  2. qipu create "<digest title>"  write the digest note
  3. qipu compact apply <digest> <source...>   record the relation
  4. qipu compact report           check compaction percentage`)
		return nil
	},
}

func init() {
	compactCmd.AddCommand(compactApplyCmd, compactShowCmd, compactStatusCmd, compactReportCmd, compactSuggestCmd, compactGuideCmd)
	rootCmd.AddCommand(compactCmd)
}
