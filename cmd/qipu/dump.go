package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/records"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the whole store in records format",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(st.Idx.Metadata))
		for id := range st.Idx.Metadata {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Println(records.Header(s.Root, "dump", nil, false))
		for _, id := range ids {
			m := st.Idx.Metadata[id]
			r := records.Record{Tag: records.TagNote, Fields: []records.Field{
				{Key: "id", Value: m.ID}, {Key: "title", Value: m.Title},
				{Key: "type", Value: m.Type}, {Key: "tags", Value: records.CSV(m.Tags)},
			}}
			fmt.Println(records.RenderLine(r))
		}
		for _, e := range st.Idx.Edges {
			r := records.Record{Tag: records.TagEdge, Fields: []records.Field{
				{Key: "from", Value: e.From}, {Key: "to", Value: e.To}, {Key: "type", Value: e.LinkType},
			}}
			fmt.Println(records.RenderLine(r))
		}
		return nil
	},
}

func init() { rootCmd.AddCommand(dumpCmd) }
