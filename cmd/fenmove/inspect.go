package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fenmove"
	"github.com/fenmove/game"
)

func newInspectCmd(a *app) *cobra.Command {
	var tree int
	cmd := &cobra.Command{
		Use:   "inspect [model]",
		Short: "Summarise a saved model or print one of its trees as Graphviz DOT",
		Example: `  fenmove inspect chess_model.fmv
  fenmove inspect chess_model.fmv --tree 3 | dot -Tsvg > tree3.svg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.conf.Training.ModelPath
			if len(args) == 1 {
				path = args[0]
			}
			model, err := fenmove.LoadModel(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if tree >= 0 {
				dot, err := model.Dot(tree, game.FeatureNames[:])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, dot)
				return nil
			}

			s := model.Stats()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "model\t%s\n", path)
			fmt.Fprintf(w, "trees\t%d\n", s.Trees)
			fmt.Fprintf(w, "nodes\t%d\n", s.Nodes)
			fmt.Fprintf(w, "leaves\t%d\n", s.Leaves)
			fmt.Fprintf(w, "max depth\t%d\n", s.MaxDepth)
			fmt.Fprintf(w, "classes\t%v\n", s.Classes)
			fmt.Fprintf(w, "features\t%v\n", game.FeatureNames)
			fmt.Fprintf(w, "config\t%+v\n", model.Conf)
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&tree, "tree", -1, "tree to print as DOT, negative prints the summary")
	return cmd
}
