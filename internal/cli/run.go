package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/verveworks/verve/internal/engine"
	"github.com/verveworks/verve/internal/journal"
	"github.com/verveworks/verve/internal/loader"
	"github.com/verveworks/verve/internal/trace"
	"github.com/verveworks/verve/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Operation string
	Payload   string
	Journal   string
	Trace     bool

	// IDGenerator overrides the execution-id source (for testing).
	IDGenerator engine.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <defs-dir>",
		Short: "Load definitions and fire one triggering operation",
		Long: `Load feature-set definitions, fire the named operation with the given
payload, and wait for the cascade to drain.

Example:
  verve run ./defs --operation CreateOrder --payload order.json
  verve run ./defs --operation CreateOrder --payload order.json --journal ./verve.db --trace`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Operation, "operation", "", "operation to trigger (required)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "path to JSON payload file")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal database")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print the execution trace")
	_ = cmd.MarkFlagRequired("operation")

	return cmd
}

func runRun(opts *RunOptions, defsDir string, cmd *cobra.Command) error {
	sets, err := loader.LoadDir(defsDir)
	if err != nil {
		return err
	}
	slog.Info("definitions loaded", "dir", defsDir, "feature_sets", len(sets))

	var rtOpts []engine.Option
	var recorder *trace.Recorder
	if opts.Trace {
		recorder = trace.NewRecorder()
		rtOpts = append(rtOpts, engine.WithTracer(recorder))
	}
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		rtOpts = append(rtOpts, engine.WithJournal(j))
		slog.Info("journal ready", "path", opts.Journal)
	}
	if opts.IDGenerator != nil {
		rtOpts = append(rtOpts, engine.WithIDGenerator(opts.IDGenerator))
	}

	rt, err := engine.NewRuntime(rtOpts...)
	if err != nil {
		return err
	}
	for _, fs := range sets {
		if err := rt.Load(fs); err != nil {
			return err
		}
	}

	payload, err := readPayload(opts.Payload)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	triggerErr := rt.Trigger(ctx, opts.Operation, payload)
	rt.Wait()

	if recorder != nil {
		fmt.Fprint(cmd.OutOrStdout(), string(recorder.Format()))
	}

	stats := rt.Metrics()
	fmt.Fprintf(cmd.OutOrStdout(), "executions: %d started, %d succeeded, %d failed\n",
		stats.Started, stats.Succeeded, stats.Failed)

	return triggerErr
}

// readPayload decodes the payload file, or yields null when none was given.
func readPayload(path string) (value.Value, error) {
	if path == "" {
		return value.Null{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	v, err := value.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return v, nil
}
