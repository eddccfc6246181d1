package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/note"
	"github.com/mwaldstein/qipu/internal/records"
	"github.com/mwaldstein/qipu/internal/render"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one note",
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

		target := args[0]
		if !flagNoResolveCompaction {
			if canon, err := st.Compact.Canon(target); err == nil {
				target = canon
			}
		}

		var found *note.Note
		for _, n := range st.Notes {
			if n.Frontmatter.ID == target {
				found = n
				break
			}
		}
		if found == nil {
			return newUsageError("note not found: %s", target)
		}
		return printNote(found)
	},
}

func init() { rootCmd.AddCommand(showCmd) }

func printNote(n *note.Note) error {
	switch flagFormat {
	case "records":
		recs := []records.Record{
			{Tag: records.TagNote, Fields: []records.Field{
				{Key: "id", Value: n.Frontmatter.ID},
				{Key: "title", Value: n.Frontmatter.Title},
				{Key: "type", Value: n.Frontmatter.NoteType},
				{Key: "tags", Value: records.CSV(n.Frontmatter.Tags)},
			}},
			{Tag: records.TagBody, Raw: n.Body},
		}
		fmt.Println(records.Header("", "show", nil, false))
		for _, r := range recs {
			fmt.Println(records.RenderLine(r))
		}
	case "json":
		fmt.Printf("{\"id\":%q,\"title\":%q,\"type\":%q}\n", n.Frontmatter.ID, n.Frontmatter.Title, n.Frontmatter.NoteType)
	default:
		fmt.Printf("# %s (%s)\n\n", n.Frontmatter.Title, n.Frontmatter.ID)
		fmt.Println(render.Markdown(n.Body))
	}
	return nil
}
