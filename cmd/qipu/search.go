package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/search"
)

var flagSearchRipgrep bool

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "BM25 full-text search over titles, tags, and bodies",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}

		cfg := search.Config{
			Recency:    search.DefaultRecencyBoosts,
			Stemming:   s.Config.Stemming,
			UseRipgrep: flagSearchRipgrep,
			NotesDir:   s.Root + "/" + "notes",
			MOCsDir:    s.Root + "/" + "mocs",
		}
		readBody := func(id string) (string, error) {
			for _, n := range st.Notes {
				if n.Frontmatter.ID == id {
					return n.Body, nil
				}
			}
			return "", os.ErrNotExist
		}

		results, err := search.Search(context.Background(), st.Idx, query, cfg, now(), readBody)
		if err != nil {
			return err
		}
		for _, r := range results {
			meta := st.Idx.Metadata[r.ID]
			fmt.Printf("%s\t%.3f\t%s\t%s\n", r.ID, r.Score, meta.Title, r.Snippet)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&flagSearchRipgrep, "ripgrep", false, "use an external rg process to find candidates, falling back to embedded search on failure")
	rootCmd.AddCommand(searchCmd)
}
