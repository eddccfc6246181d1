package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/store"
)

var flagInitStealth bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new store in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		root := flagRoot
		if root == "" {
			root = wd + "/.qipu"
		}
		if flagStore != "" {
			root = flagStore
		}
		if _, err := store.Init(root, flagInitStealth); err != nil {
			return err
		}
		if !flagQuiet {
			fmt.Printf("initialized store at %s\n", root)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&flagInitStealth, "stealth", false, "also add the store directory to the enclosing project's .gitignore")
	rootCmd.AddCommand(initCmd)
}
