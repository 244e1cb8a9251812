package clicmd

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"buildgraph/internal/buildtrace"
	"buildgraph/internal/graphstore"
	"buildgraph/internal/key"
	"buildgraph/internal/keys"
	"buildgraph/internal/progress"
)

func newBuildCommand(root *RootOptions) *cobra.Command {
	var configDigest string
	var quiet bool
	var tracePath string

	cmd := &cobra.Command{
		Use: "build <pattern>...",
		Short: "configure and execute the targets denoted by the given patterns",
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

			if _, _, err := driver.Analyze(cmd.Context(), labels, configDigest, root.NumJobs, root.KeepGoing); err != nil && !root.KeepGoing {
				return toExitErr(err)
			}

			targets := make([]keys.ConfiguredTargetPayload, len(labels))
			for i, l := range labels {
				targets[i] = keys.ConfiguredTargetPayload{Label: l, ConfigDigest: configDigest}
			}

			var receivers []progress.Receiver
			if !quiet {
				receivers = append(receivers, newTextReceiver(cmd.OutOrStdout()))
			}
			recorder := buildtrace.NewRecorder()
			if tracePath != "" {
				receivers = append(receivers, recorder)
			}
			recv := progress.Receiver(progress.NewFanOut(receivers ...))

			results, _, err := driver.Execute(cmd.Context(), targets, root.NumJobs, root.KeepGoing, recv)
			if err != nil && !root.KeepGoing {
				return toExitErr(err)
			}

			if tracePath != "" {
				if err := writeTrace(tracePath, recorder.Trace()); err != nil {
					return fail(ExitInternalError, "writing trace: %v", err)
				}
			}

			failed := 0
			for _, t := range targets {
				for _, r := range results[t] {
					if r.ExitCode != 0 {
						failed++
					}
				}
			}
			if failed > 0 {
				return fail(ExitEvaluationFailure, "%d action(s) exited non-zero", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDigest, "config", "", "configuration digest from 'buildctl configure' (required)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress per-node progress output")
	cmd.Flags().StringVar(&tracePath, "trace", "", "write a canonical, deterministic trace of node transitions to this path")
	return cmd
}

func writeTrace(path string, t buildtrace.Trace) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// textReceiver prints one line per evaluated node. Callbacks for distinct
// keys may arrive from different goroutines (progress.Receiver's contract),
// so writes are serialized with a mutex.
type textReceiver struct {
	mu sync.Mutex
	w io.Writer
}

func newTextReceiver(w io.Writer) *textReceiver { return &textReceiver{w: w} }

func (r *textReceiver) Invalidated(k key.Key, state graphstore.State) {}

func (r *textReceiver) Enqueueing(k key.Key) {}

func (r *textReceiver) Evaluated(k key.Key, v key.Value, outcome progress.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s %s\n", outcome, k)
}
