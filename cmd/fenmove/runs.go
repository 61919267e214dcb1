package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fenmove/registry"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit   int
		regPath string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("registry") {
				a.conf.Training.Registry = regPath
			}
			if a.conf.Training.Registry == "" {
				return errors.New("no training registry configured")
			}
			reg, err := registry.Open(a.conf.Training.Registry, a.logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			runs, err := reg.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tCORPUS\tMODEL\tGAMES\tPOSITIONS\tWHITE WINS\tTOOK")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%.1f%%\t%s\n",
					shortID(r.ID), r.CreatedAt.Local().Format(time.DateTime), r.Corpus, r.ModelPath,
					r.Admitted-r.Excluded, r.Admitted, r.Positions, 100*r.WhiteWinRate, r.Took.Round(time.Millisecond))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "runs to show, 0 shows all")
	cmd.Flags().StringVar(&regPath, "registry", "", "sqlite file recording training runs")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
