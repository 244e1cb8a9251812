package clicmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"buildgraph/internal/errs"
)

func newConfigureCommand(root *RootOptions) *cobra.Command {
	var settingsPath string
	var fragments []string

	cmd := &cobra.Command{
		Use: "configure",
		Short: "resolve a configuration collection from settings and fragments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.Driver().EvaluateConfigurations(cmd.Context(), fragments, settingsPath, root.NumJobs, root.KeepGoing)
			if err != nil {
				return toExitErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration %s (mode=%s, fragments=%v)\n", cfg.Digest, cfg.Mode, cfg.Fragments)
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "settings", "", "YAML settings file (empty uses built-in defaults)")
	cmd.Flags().StringSliceVar(&fragments, "fragment", nil, "configuration fragment name (repeatable)")

	return cmd
}

// toExitErr classifies a facade error into the exit code taxonomy so main
// stays a thin dispatcher over exit codes instead of a switch per command.
func toExitErr(err error) error {
	var (
		invalidCfg *errs.InvalidConfiguration
		noPkg *errs.NoSuchPackage
		badBuild *errs.BuildFileContainsErrors
		cycles *errs.CyclesReported
	)
	switch {
	case errors.As(err, &invalidCfg):
		return fail(ExitConfigError, "%v", err)
	case errors.As(err, &noPkg), errors.As(err, &badBuild):
		return fail(ExitConfigError, "%v", err)
	case errors.As(err, &cycles):
		return fail(ExitEvaluationFailure, "%v", err)
	default:
		return fail(ExitEvaluationFailure, "%v", err)
	}
}
