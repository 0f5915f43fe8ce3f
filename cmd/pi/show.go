package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"piscale/pkg/codec"
	"piscale/pkg/harness"
)

func newShowCommand(root *rootOptions) *cobra.Command {
	var valueOnly bool

	cmd := &cobra.Command{
		Use:   "show <archive>",
		Short: "Print a value saved with --archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := codec.LoadResult(args[0])
			if err != nil {
				return err
			}
			v, err := res.Float()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !valueOnly {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "algorithm:\t%s\n", res.Algorithm)
				fmt.Fprintf(tw, "summands:\t%d\n", res.SummandCount)
				fmt.Fprintf(tw, "workers:\t%d\n", res.Workers)
				fmt.Fprintf(tw, "precision:\t%d bits\n", v.Prec())
				fmt.Fprintf(tw, "created:\t%s\n", res.Created.UTC().Format(time.RFC3339))
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(out, harness.FormatDecimal(v))
			return err
		},
	}
	cmd.Flags().BoolVar(&valueOnly, "value-only", false, "print only the value")

	return cmd
}
