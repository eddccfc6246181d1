package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/store"
	"github.com/mwaldstein/qipu/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage nested stores used for scoped or speculative editing",
}

var workspaceNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new nested workspace store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		if _, err := workspace.New(s, args[0]); err != nil {
			return err
		}
		if !flagQuiet {
			fmt.Printf("created workspace %s\n", args[0])
		}
		return nil
	},
}

var workspaceDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a nested workspace store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		return workspace.Delete(s, args[0])
	},
}

var (
	flagWorkspaceMergeStrategy string
	flagWorkspaceMergeDryRun   bool
)

var workspaceMergeCmd = &cobra.Command{
	Use:   "merge <name>",
	Short: "Merge a workspace's notes back into the parent store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := openStore()
		if err != nil {
			return err
		}
		src, err := store.Open(filepath.Join(parent.Root, store.DirWorkspaces, args[0]))
		if err != nil {
			return err
		}

		plan, err := workspace.Merge(src, parent, workspace.Strategy(flagWorkspaceMergeStrategy), flagWorkspaceMergeDryRun, now())
		if err != nil {
			return err
		}
		for _, a := range plan.Actions {
			if a.NewID != "" {
				fmt.Printf("%s -> renamed %s\n", a.SourceID, a.NewID)
				continue
			}
			fmt.Printf("%s: %s\n", a.SourceID, a.Outcome)
		}
		return nil
	},
}

func init() {
	workspaceMergeCmd.Flags().StringVar(&flagWorkspaceMergeStrategy, "strategy", "skip", "conflict resolution: skip, overwrite, merge-links, rename")
	workspaceMergeCmd.Flags().BoolVar(&flagWorkspaceMergeDryRun, "dry-run", false, "report additions and conflicts without mutating the target")
	workspaceCmd.AddCommand(workspaceNewCmd, workspaceDeleteCmd, workspaceMergeCmd)
	rootCmd.AddCommand(workspaceCmd)
}
