package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAlgorithmsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List the available algorithms and their workloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := root.cfg.Registry()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPRECISION\tSCHEME\tBENCHMARK\tCALCULATION")
			for _, id := range reg.IDs() {
				spec, err := reg.Lookup(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\n",
					id, spec.Precision(), spec.Algorithm.Scheme(), spec.BenchmarkSummands, spec.CalculationSummands)
			}
			return tw.Flush()
		},
	}
}
