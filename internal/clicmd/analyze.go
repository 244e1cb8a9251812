package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"buildgraph/internal/keys"
)

func newAnalyzeCommand(root *RootOptions) *cobra.Command {
	var configDigest string

	cmd := &cobra.Command{
		Use: "analyze <pattern>...",
		Short: "configure the targets denoted by the given patterns",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configDigest == "" {
				return fail(ExitInvalidInvocation, "--config is required")
			}

			driver := root.Driver()
			expanded, _, err := driver.EvaluateTargetPatterns(cmd.Context(), args, root.NumJobs, root.KeepGoing)
			if err != nil && !root.KeepGoing {
				return toExitErr(err)
			}

			var labels []keys.Label
			for _, pattern := range args {
				labels = append(labels, expanded[pattern]...)
			}

			resolved, _, err := driver.Analyze(cmd.Context(), labels, configDigest, root.NumJobs, root.KeepGoing)
			if err != nil && !root.KeepGoing {
				return toExitErr(err)
			}
			for _, l := range labels {
				target, ok := resolved[l]
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: not configured\n", l)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: kind=%s actions=%d\n", l, target.Kind, len(target.Actions))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDigest, "config", "", "configuration digest from 'buildctl configure' (required)")
	return cmd
}
