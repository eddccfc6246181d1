package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run consistency checks across the store: structural, referential, ontology, content",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}

		findings := doctor.Run(st.Notes, st.Idx, st.Ont, st.Compact, doctor.DefaultCheckers()...)
		for _, f := range findings {
			if f.NoteID != "" {
				fmt.Printf("[%s] %s %s: %s\n", f.Severity, f.Category, f.NoteID, f.Message)
			} else {
				fmt.Printf("[%s] %s: %s\n", f.Severity, f.Category, f.Message)
			}
		}
		if len(findings) == 0 && !flagQuiet {
			fmt.Println("no issues found")
		}
		hasError := false
		for _, f := range findings {
			if f.Severity == doctor.SeverityError {
				hasError = true
			}
		}
		if hasError {
			return fmt.Errorf("doctor found %d finding(s)", len(findings))
		}
		return nil
	},
}

func init() { rootCmd.AddCommand(doctorCmd) }
