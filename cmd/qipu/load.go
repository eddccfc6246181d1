package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/note"
	"github.com/mwaldstein/qipu/internal/records"
)

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load notes from a records-format dump, creating any that don't already exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		known := map[string]bool{}
		for id := range st.Idx.Metadata {
			known[id] = true
		}

		scanner := bufio.NewScanner(f)
		var buf []byte
		scanner.Buffer(buf, 1024*1024)
		count := 0
		for scanner.Scan() {
			recs, err := records.Parse(scanner.Text())
			if err != nil {
				return err
			}
			for _, r := range recs {
				if r.Tag != records.TagNote {
					continue
				}
				fields := fieldMap(r.Fields)
				id := fields["id"]
				if id == "" || known[id] {
					continue
				}
				n := &note.Note{Frontmatter: note.Frontmatter{
					ID: id, Title: fields["title"], NoteType: fields["type"], Created: now(),
				}}
				if _, err := s.Save(n, now()); err != nil {
					return fmt.Errorf("load: saving %s: %w", id, err)
				}
				known[id] = true
				count++
			}
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		if !flagQuiet {
			fmt.Printf("loaded %d note(s)\n", count)
		}
		return nil
	},
}

func fieldMap(fields []records.Field) map[string]string {
	out := map[string]string{}
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

func init() { rootCmd.AddCommand(loadCmd) }
