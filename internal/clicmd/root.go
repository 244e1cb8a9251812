// Package clicmd wires the facade.Driver's entry methods up as cobra
// subcommands, keeping main a thin dispatcher over a semantic exit-code
// taxonomy rather than letting each command decide its own exit behavior.
package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/facade"
)

const (
	ExitSuccess = 0
	ExitEvaluationFailure = 1
	ExitInvalidInvocation = 2
	ExitConfigError = 3
	ExitInternalError = 4
)

// RootOptions holds flags shared by every subcommand: where the build
// driver keeps its execrunner cache, which package-locator roots it
// searches, and the evaluation's job count and keep-going mode.
type RootOptions struct {
	CacheDir string
	Roots []string
	NumJobs int
	KeepGoing bool

	driver *facade.Driver
}

// Driver lazily constructs the shared facade.Driver the first time a
// subcommand needs it, so commands that never touch the graph (none,
// currently) don't pay for one.
func (o *RootOptions) Driver() *facade.Driver {
	if o.driver == nil {
		o.driver = facade.New(facade.Options{CacheDir: o.CacheDir})
		if len(o.Roots) > 0 {
			o.driver.SetExternalInput(buildvars.PackageLocator, o.Roots)
		}
	}
	return o.driver
}

// NewRootCommand builds the buildctl root command and its subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use: "buildctl",
		Short: "buildctl drives the incremental build graph",
		SilenceUsage: true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.CacheDir, "cache-dir", "", "execrunner cache directory (empty uses an in-memory cache)")
	cmd.PersistentFlags().StringSliceVar(&opts.Roots, "root", nil, "package search root (repeatable)")
	cmd.PersistentFlags().IntVar(&opts.NumJobs, "jobs", 1, "evaluator worker count for this command")
	cmd.PersistentFlags().BoolVar(&opts.KeepGoing, "keep_going", false, "continue past node failures instead of stopping at the first one")

	cmd.AddCommand(newConfigureCommand(opts))
	cmd.AddCommand(newPatternsCommand(opts))
	cmd.AddCommand(newAnalyzeCommand(opts))
	cmd.AddCommand(newBuildCommand(opts))

	return cmd
}

// exitErr pairs an error with the process exit code it should produce, so
// main can stay a thin dispatcher instead of re-deriving exit codes itself.
type exitErr struct {
	code int
	err error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func fail(code int, format string, args ...any) error {
	return &exitErr{code: code, err: fmt.Errorf(format, args ...)}
}

// ExitCode extracts the semantic exit code intended for err, falling back
// to ExitInternalError for anything not produced by this package.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if ee, ok := err.(*exitErr); ok {
		return ee.code
	}
	return ExitInternalError
}
