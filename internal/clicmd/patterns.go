package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPatternsCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use: "patterns <pattern>...",
		Short: "expand target patterns into the labels they denote",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expanded, _, err := root.Driver().EvaluateTargetPatterns(cmd.Context(), args, root.NumJobs, root.KeepGoing)
			if err != nil && !root.KeepGoing {
				return toExitErr(err)
			}
			for _, pattern := range args {
				labels := expanded[pattern]
				if len(labels) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: (no matches)\n", pattern)
					continue
				}
				for _, l := range labels {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", pattern, l.String())
				}
			}
			return nil
		},
	}
	return cmd
}
