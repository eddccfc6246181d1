package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/index"
)

var (
	flagListType string
	flagListTag  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, optionally filtered by type or tag",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}

		var metas []index.Metadata
		for _, m := range st.Idx.Metadata {
			if flagListType != "" && m.Type != flagListType {
				continue
			}
			if flagListTag != "" && !containsTag(m.Tags, flagListTag) {
				continue
			}
			metas = append(metas, m)
		}
		sort.Slice(metas, func(i, j int) bool { return metas[i].ID < metas[j].ID })

		for _, m := range metas {
			fmt.Printf("%s\t%s\t%s\n", m.ID, m.Type, m.Title)
		}
		return nil
	},
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func init() {
	listCmd.Flags().StringVar(&flagListType, "type", "", "filter by note_type")
	listCmd.Flags().StringVar(&flagListTag, "tag", "", "filter by tag")
	rootCmd.AddCommand(listCmd)
}
