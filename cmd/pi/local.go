package main

import (
	"context"
	"runtime"

	"github.com/spf13/cobra"

	"piscale/pkg/comm"
	"piscale/pkg/harness"
	"piscale/pkg/series"
)

type localOptions struct {
	workloadFlags
	Workers int
}

func newLocalCommand(root *rootOptions) *cobra.Command {
	opts := &localOptions{}

	cmd := &cobra.Command{
		Use:   "local <algorithm>",
		Short: "Run every worker as a goroutine of this process",
		Example: `  pi local leibniz --workers 8 --summands 100000000
  pi local bellard --mode benchmark --iterations 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := root.cfg.Registry()
			if err != nil {
				return err
			}
			mode, hopts, err := opts.options(root, cmd.OutOrStdout(), root.log)
			if err != nil {
				return err
			}
			alg := series.ID(args[0])
			return harness.Local(cmd.Context(), opts.Workers, func(ctx context.Context, c comm.Comm) error {
				return harness.New(reg, c, hopts...).Run(ctx, alg, mode)
			})
		},
	}

	opts.register(cmd)
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", runtime.NumCPU(), "number of workers")

	return cmd
}
