package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var ontologyCmd = &cobra.Command{
	Use:   "ontology",
	Short: "Inspect the active note/link type vocabulary",
}

var ontologyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved ontology (mode, note types, link types with inverses and costs)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		fmt.Printf("mode: %s\n\n", st.Ont.Mode())
		fmt.Println("link types:")
		lts := st.Ont.LinkTypes()
		sort.Slice(lts, func(i, j int) bool { return lts[i].Name < lts[j].Name })
		for _, lt := range lts {
			fmt.Printf("  %-20s inverse=%-20s cost=%.1f\n", lt.Name, lt.Inverse, lt.Cost)
		}
		return nil
	},
}

func init() {
	ontologyCmd.AddCommand(ontologyShowCmd)
	rootCmd.AddCommand(ontologyCmd)
}
