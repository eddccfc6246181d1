package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/graph"
	"github.com/mwaldstein/qipu/internal/note"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manage and traverse typed links between notes",
}

var linkAddCmd = &cobra.Command{
	Use:   "add <from-id> <link-type> <to-id>",
	Short: "Add a typed link from one note to another",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromID, linkType, toID := args[0], args[1], args[2]
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		if !st.Ont.ValidLinkType(linkType) {
			return newUsageError("link type %q is not declared in the active ontology", linkType)
		}

		var from *note.Note
		for _, n := range st.Notes {
			if n.Frontmatter.ID == fromID {
				from = n
				break
			}
		}
		if from == nil {
			return newUsageError("note not found: %s", fromID)
		}
		from.Frontmatter.Links = append(from.Frontmatter.Links, note.Link{ID: toID, LinkType: linkType})
		if _, err := s.Save(from, now()); err != nil {
			return err
		}
		if !flagQuiet {
			fmt.Printf("linked %s -%s-> %s\n", fromID, linkType, toID)
		}
		return nil
	},
}

var linkListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List outbound and inbound links for a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		for _, e := range st.Idx.Outbound[id] {
			fmt.Printf("out\t%s\t%s\n", e.LinkType, e.To)
		}
		for _, e := range st.Idx.Inbound[id] {
			lt := e.LinkType
			if !flagNoSemanticInversion {
				lt = st.Ont.Inverse(lt)
			}
			fmt.Printf("in\t%s\t%s\n", lt, e.From)
		}
		return nil
	},
}

var (
	flagTreeDirection string
	flagTreeMaxHops    float64
	flagTreeMaxNodes   int
	flagTreeMaxEdges   int
	flagTreeMaxFanout  int
	flagTreeMinValue   int
	flagTreeIgnoreValue bool
)

var linkTreeCmd = &cobra.Command{
	Use:   "tree <id>",
	Short: "Expand a budget-bounded traversal tree from a note",
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
		eng := &graph.Engine{Idx: st.Idx, Ont: st.Ont, Compact: st.Compact}
		opts := graph.TreeOptions{
			Direction:         graph.Direction(flagTreeDirection),
			MaxHops:           flagTreeMaxHops,
			MaxNodes:          flagTreeMaxNodes,
			MaxEdges:          flagTreeMaxEdges,
			MaxFanout:         flagTreeMaxFanout,
			MinValue:          flagTreeMinValue,
			IgnoreValue:       flagTreeIgnoreValue,
			SemanticInversion: !flagNoSemanticInversion,
		}
		tree := eng.Tree(args[0], opts)
		for _, n := range tree.Nodes {
			fmt.Printf("%d\t%.2f\t%s\n", n.Hop, n.Cost, n.ID)
		}
		if tree.Truncated {
			fmt.Printf("# truncated: %s\n", tree.Reason)
		}
		return nil
	},
}

var linkPathCmd = &cobra.Command{
	Use:   "path <from-id> <to-id>",
	Short: "Find the shortest path between two notes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}
		eng := &graph.Engine{Idx: st.Idx, Ont: st.Ont, Compact: st.Compact}
		opts := graph.TreeOptions{Direction: graph.DirOut, SemanticInversion: !flagNoSemanticInversion, IgnoreValue: flagTreeIgnoreValue}
		path := eng.ShortestPath(args[0], args[1], opts)
		if !path.Found {
			fmt.Println("no path found")
			return nil
		}
		fmt.Printf("length=%.2f\n", path.PathLength)
		for _, n := range path.Nodes {
			fmt.Println(n)
		}
		return nil
	},
}

func init() {
	linkTreeCmd.Flags().StringVar(&flagTreeDirection, "direction", "out", "out, in, or both")
	linkTreeCmd.Flags().Float64Var(&flagTreeMaxHops, "max-hops", 0, "max accumulated cost (0 = unbounded)")
	linkTreeCmd.Flags().IntVar(&flagTreeMaxNodes, "max-nodes", 0, "max nodes (0 = unbounded)")
	linkTreeCmd.Flags().IntVar(&flagTreeMaxEdges, "max-edges", 0, "max edges (0 = unbounded)")
	linkTreeCmd.Flags().IntVar(&flagTreeMaxFanout, "max-fanout", 0, "max neighbors expanded per node (0 = unbounded)")
	linkTreeCmd.Flags().IntVar(&flagTreeMinValue, "min-value", 50, "minimum note value to admit (default 50)")
	linkTreeCmd.Flags().BoolVar(&flagTreeIgnoreValue, "ignore-value", false, "use unweighted BFS instead of value-weighted Dijkstra")

	linkCmd.AddCommand(linkAddCmd, linkListCmd, linkTreeCmd, linkPathCmd)
	rootCmd.AddCommand(linkCmd)
}
