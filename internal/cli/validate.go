package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verveworks/verve/internal/engine"
	"github.com/verveworks/verve/internal/loader"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	FeatureSets []string `json:"feature_sets,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <defs-dir>",
		Short: "Validate feature-set definitions without running them",
		Long: `Validate feature-set definitions against the schema and compile their
execution plans. Reports the first schema violation, unknown verb, or
invalid preposition without executing anything.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, defsDir string, cmd *cobra.Command) error {
	result := ValidationResult{Valid: true}

	sets, err := loader.LoadDir(defsDir)
	if err == nil {
		// Loading a runtime compiles every plan and registers every
		// subscription, which is exactly the validation surface.
		var rt *engine.Runtime
		rt, err = engine.NewRuntime()
		if err == nil {
			for _, fs := range sets {
				if err = rt.Load(fs); err != nil {
					break
				}
				result.FeatureSets = append(result.FeatureSets, fs.Name)
			}
		}
	}
	if err != nil {
		result.Valid = false
		result.Error = err.Error()
		result.FeatureSets = nil
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	} else if result.Valid {
		fmt.Fprintf(out, "OK: %d feature sets\n", len(result.FeatureSets))
		for _, name := range result.FeatureSets {
			fmt.Fprintf(out, "  %s\n", name)
		}
	} else {
		fmt.Fprintf(out, "INVALID: %s\n", result.Error)
	}

	if !result.Valid {
		return fmt.Errorf("validation failed")
	}
	return nil
}
