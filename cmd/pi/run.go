package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"piscale/pkg/comm"
	"piscale/pkg/harness"
	"piscale/pkg/series"
)

// workloadFlags are shared by the commands that run a computation.
type workloadFlags struct {
	Mode       string
	Summands   uint64
	Iterations int
	Archive    string
}

func (f *workloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Mode, "mode", "m", string(harness.Calculate), "benchmark or calculate")
	cmd.Flags().Uint64VarP(&f.Summands, "summands", "n", 0, "number of series terms (default from the algorithm table)")
	cmd.Flags().IntVar(&f.Iterations, "iterations", 0, "benchmark iterations (default from config)")
	cmd.Flags().StringVar(&f.Archive, "archive", "", "save the calculated value to this file")
}

func (f *workloadFlags) options(root *rootOptions, out io.Writer, log *zap.Logger) (harness.Mode, []harness.Option, error) {
	mode, err := harness.ParseMode(f.Mode)
	if err != nil {
		return "", nil, err
	}
	iterations := root.cfg.Benchmark.Iterations
	if f.Iterations > 0 {
		iterations = f.Iterations
	}
	opts := []harness.Option{
		harness.WithLogger(log),
		harness.WithOutput(out),
		harness.WithIterations(iterations),
		harness.WithSummands(f.Summands),
	}
	if f.Archive != "" {
		opts = append(opts, harness.WithArchive(f.Archive))
	}
	return mode, opts, nil
}

type runOptions struct {
	workloadFlags
	URL   string
	RunID string
	Rank  int
	Size  int
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <algorithm>",
		Short: "Run one worker of a distributed computation over NATS",
		Long: `Run one worker of a distributed computation. Every worker of a run is a
separate process started with the same run id; they find each other through
the NATS server.

The worker's rank and the worker count come from --rank and --size, or from
the environment of an MPI launcher (OMPI_COMM_WORLD_RANK/SIZE, PMI_RANK/SIZE)
or PI_RANK/PI_SIZE.`,
		Example: `  pi run bellard --run-id nightly --rank 0 --size 4 --mode benchmark
  mpirun -n 8 pi run leibniz --run-id $(uuidgen) --summands 1000000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, root, opts, series.ID(args[0]))
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.URL, "url", "", "NATS server URL (default from config)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "identifier shared by all workers of a run")
	cmd.Flags().IntVar(&opts.Rank, "rank", -1, "rank of this worker")
	cmd.Flags().IntVar(&opts.Size, "size", 0, "number of workers")

	return cmd
}

func (o *runOptions) identity() (comm.Identity, error) {
	if o.Rank >= 0 || o.Size > 0 {
		id := comm.Identity{Rank: o.Rank, Size: o.Size}
		return id, id.Validate()
	}
	id, ok, err := comm.IdentityFromEnv()
	if err != nil {
		return comm.Identity{}, err
	}
	if !ok {
		return comm.Identity{}, errors.New("worker identity unknown: pass --rank and --size or start under an MPI launcher")
	}
	return id, nil
}

func runWorker(cmd *cobra.Command, root *rootOptions, opts *runOptions, alg series.ID) error {
	id, err := opts.identity()
	if err != nil {
		return err
	}
	reg, err := root.cfg.Registry()
	if err != nil {
		return err
	}
	url := root.cfg.NATS.URL
	if opts.URL != "" {
		url = opts.URL
	}
	runID := root.cfg.NATS.RunID
	if opts.RunID != "" {
		runID = opts.RunID
	}
	if runID == "" {
		return errors.New("a run id is required (--run-id, nats.run_id or PISCALE_RUN_ID)")
	}

	log := root.log.With(zap.String("run", runID))
	mode, hopts, err := opts.options(root, cmd.OutOrStdout(), log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := comm.DialNATS(ctx, url, runID, id, comm.NATSOptions{
		Prefix:    root.cfg.NATS.Prefix,
		JoinRetry: root.cfg.JoinRetryInterval(),
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("join run %s: %w", runID, err)
	}
	defer c.Close()

	return harness.New(reg, c, hopts...).Run(ctx, alg, mode)
}
