package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"piscale/pkg/bigfloat"
	"piscale/pkg/codec"
	"piscale/pkg/comm"
	"piscale/pkg/config"
	"piscale/pkg/harness"
	"piscale/pkg/series"
)

// leibniz4 is what root prints for Leibniz with 4 summands at 128 bits.
const leibniz4 = "2.8952380952380952380952380952380952381\n"

// pi runs the command line and returns stdout, stderr and the exit status.
func pi(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pi", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"run", "local", "show", "algorithms", "config"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "", cfg.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for flag, def := range map[string]string{
		"mode": "calculate", "summands": "0", "rank": "-1", "size": "0", "run-id": "", "archive": "",
	} {
		f := run.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, def, f.DefValue, flag)
	}
}

func TestAlgorithms(t *testing.T) {
	stdout, stderr, code := pi(t, "algorithms")
	require.Equal(t, exitOK, code, stderr)

	g := goldie.New(t)
	g.Assert(t, "algorithms", []byte(stdout))
}

func TestAlgorithmsWithConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("algorithms:\n  leibniz:\n    precision: 256\n"), 0644))

	stdout, stderr, code := pi(t, "algorithms", "--config", path)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "leibniz  256")
}

func TestConfigInit(t *testing.T) {
	t.Setenv("NATS_URL", "")
	t.Setenv("PISCALE_NATS_URL", "")
	t.Setenv("PISCALE_RUN_ID", "")
	path := filepath.Join(t.TempDir(), "pi.yaml")

	stdout, stderr, code := pi(t, "config", "init", path,
		"--config", writeConfig(t, "benchmark:\n  iterations: 9\n"))
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "wrote "+path+"\n", stdout)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	want := config.Default()
	want.Benchmark.Iterations = 9
	assert.Equal(t, want.Benchmark, cfg.Benchmark)
	assert.Equal(t, want.NATS, cfg.NATS)
	assert.Equal(t, want.Logging, cfg.Logging)

	_, stderr, code = pi(t, "config", "init", path)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "already exists")

	_, stderr, code = pi(t, "config", "init", "--force", path)
	assert.Equal(t, exitOK, code, stderr)
}

func TestLocalCalculate(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "pi.gz")
	stdout, stderr, code := pi(t, "local", "leibniz", "--workers", "2", "--summands", "4", "--archive", archive)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, leibniz4, stdout)

	shown, stderr, code := pi(t, "show", "--value-only", archive)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, stdout, shown)
}

func TestLocalBenchmark(t *testing.T) {
	stdout, stderr, code := pi(t, "local", "bellard", "-w", "3", "-m", "benchmark", "-n", "6", "--iterations", "2",
		"--config", writeConfig(t, "algorithms:\n  bellard:\n    precision: 256\n"))
	require.Equal(t, exitOK, code, stderr)
	assert.Regexp(t, `^Regular time: .{15}\n    MPI time: .{15}\n$`, stdout)
}

func TestShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi.gz")
	require.NoError(t, codec.SaveResult(path, &codec.Result{
		Algorithm:    "leibniz",
		SummandCount: 4,
		Workers:      2,
		Created:      time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC),
		Value:        bigfloat.NewInt64(3, 128).Encode(),
	}))

	stdout, stderr, code := pi(t, "show", path)
	require.Equal(t, exitOK, code, stderr)

	g := goldie.New(t)
	g.Assert(t, "show", []byte(stdout))
}

func TestFailuresExitWithStatus(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown algorithm", []string{"local", "chudnovsky", "-w", "1"}, exitUnknownAlg},
		{"workload", []string{"local", "leibniz", "-w", "4", "-n", "3"}, exitOverWorkers},
		{"bad mode", []string{"local", "leibniz", "-m", "verify"}, exitFailure},
		{"missing archive", []string{"show", "/nonexistent/pi.gz"}, exitFailure},
		{"no identity", []string{"run", "leibniz", "--run-id", "x", "--size=0", "--rank=-1"}, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range []string{"PI_RANK", "PI_SIZE", "OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE", "PMI_RANK", "PMI_SIZE"} {
				t.Setenv(v, "")
				os.Unsetenv(v)
			}
			stdout, stderr, code := pi(t, tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Empty(t, stdout)
			assert.Regexp(t, `error: .+\n$`, stderr)
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, exitOK},
		{errors.New("other"), exitFailure},
		{&comm.MessagingError{Op: "send", Peer: 0, Err: errors.New("reset")}, exitMessaging},
		{fmt.Errorf("rank 1: %w", bigfloat.ErrMalformedRecord), exitMalformed},
		{fmt.Errorf("x: %w", bigfloat.ErrPrecisionMismatch), exitPrecision},
		{bigfloat.ErrDivisionByZero, exitDivByZero},
		{series.ErrUnknownAlgorithm, exitUnknownAlg},
		{harness.ErrWorkerCountExceedsWorkload, exitOverWorkers},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, exitCode(tt.err), "%v", tt.err)
	}
}

func TestRunOverNATS(t *testing.T) {
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	s := natstest.RunServer(&opts)
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const size = 2
	outputs := make([]bytes.Buffer, size)
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < size; r++ {
		g.Go(func() error {
			var stderr bytes.Buffer
			code := execute(gctx, []string{
				"run", "leibniz", "--url", s.ClientURL(), "--run-id", "cli",
				"--rank", fmt.Sprint(r), "--size", fmt.Sprint(size), "--summands", "4",
			}, &outputs[r], &stderr)
			if code != exitOK {
				return fmt.Errorf("rank %d exited %d: %s", r, code, stderr.String())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, leibniz4, outputs[0].String())
	assert.Empty(t, outputs[1].String())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}
