package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/graph"
	qcontext "github.com/mwaldstein/qipu/internal/context"
	"github.com/mwaldstein/qipu/internal/search"
)

var (
	flagContextBudget int
	flagContextBanner string
	flagContextSeed   string
)

var contextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Assemble a context bundle from search and/or graph expansion under a character budget",
	Args:  cobra.MinimumNArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}

		var candidates []qcontext.Candidate
		if len(args) > 0 {
			query := strings.Join(args, " ")
			readBody := func(id string) (string, error) {
				for _, n := range st.Notes {
					if n.Frontmatter.ID == id {
						return n.Body, nil
					}
				}
				return "", fmt.Errorf("not found")
			}
			results, err := search.Search(context.Background(), st.Idx, query, search.Config{Recency: search.DefaultRecencyBoosts, Stemming: s.Config.Stemming}, now(), readBody)
			if err != nil {
				return err
			}
			candidates = append(candidates, qcontext.FromSearch(results, st.Idx)...)
		}
		if flagContextSeed != "" {
			eng := &graph.Engine{Idx: st.Idx, Ont: st.Ont, Compact: st.Compact}
			tree := eng.Tree(flagContextSeed, graph.TreeOptions{Direction: graph.DirBoth, SemanticInversion: !flagNoSemanticInversion, MinValue: 0})
			candidates = append(candidates, qcontext.FromTree(tree, st.Idx)...)
		}

		mode := qcontext.ExpansionIDsOnly
		if flagExpandCompaction {
			mode = qcontext.ExpansionFull
		}
		opts := qcontext.Options{
			Budget: flagContextBudget, Format: flagFormat, SafetyBanner: flagContextBanner,
			CompactionMode: mode, StorePath: s.Root, Mode: "context",
		}
		bundle := qcontext.Assemble(candidates, st.Idx, st.Compact, opts)
		fmt.Print(bundle.Text)
		return nil
	},
}

var primeCmd = &cobra.Command{
	Use:   "prime",
	Short: "Assemble an orientation bundle from the store's MOCs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		opts := qcontext.Options{
			Budget: flagContextBudget, Format: flagFormat, SafetyBanner: flagContextBanner,
			StorePath: s.Root, Mode: "prime",
		}
		bundle := qcontext.Prime(st.Idx, st.Compact, opts)
		fmt.Print(bundle.Text)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{contextCmd, primeCmd} {
		c.Flags().IntVar(&flagContextBudget, "budget", 8000, "character budget for the assembled bundle")
		c.Flags().StringVar(&flagContextBanner, "banner", "", "safety banner text, included iff it fits")
	}
	contextCmd.Flags().StringVar(&flagContextSeed, "seed", "", "seed note id for neighborhood expansion")
	rootCmd.AddCommand(contextCmd, primeCmd)
}
