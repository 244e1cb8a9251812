// Package errs defines the engine's error taxonomy: node failures, cycle
// reports, transient failures, and internal invariant violations. Every
// type is an exported pointer type that errors.As can match; the types that
// wrap another error (those with a Cause field) also implement Unwrap, so
// errors.As finds them anywhere in a cause chain. CycleError, Interruption,
// and CyclesReported wrap nothing and have no Unwrap.
package errs

import (
	"fmt"

	"buildgraph/internal/key"
)

// NodeError is a user-visible failure attributable to a specific key: a
// parse error, a missing input, an action failure. RootCauses names the
// keys whose own NodeError/CycleError this one transitively bubbled from;
// it is empty for a primary failure.
type NodeError struct {
	Key key.Key
	Code string
	Message string
	Cause error
	RootCauses []key.Key
}

func (e *NodeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: node failure (%s): %s", e.Key, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: node failure: %s", e.Key, e.Message)
}

func (e *NodeError) Unwrap() error { return e.Cause }

// CycleError is attached to every node participating in a detected
// dependency cycle, all sharing the same canonicalized Participants list.
type CycleError struct {
	Participants []key.Key
}

func (e *CycleError) Error() string {
	s := "cycle detected:"
	for i, k := range e.Participants {
		if i > 0 {
			s += " ->"
		}
		s += " " + k.String()
	}
	return s
}

// TransientError has the same shape as NodeError but is flagged so that
// the next differencer.InvalidateErrors() call marks it Dirty for retry.
type TransientError struct {
	Key key.Key
	Code string
	Message string
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure (%s): %s", e.Key, e.Code, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// EngineError reports an internal invariant violation — e.g. a Func
// returned Done after previously declaring Missing for the same deps, or a
// node's state machine was asked for an impossible transition. The
// evaluator records it as the failing node's error like any other failure;
// nothing in this module converts it into an AbruptExit.
type EngineError struct {
	Message string
	Cause error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine invariant violated: %s", e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// Interruption reports that an evaluation was cancelled before a node could
// be dispatched. The evaluator records it as that node's error; it carries
// only a message, and the other keys' results are returned as usual.
type Interruption struct {
	Message string
}

func (e *Interruption) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("interrupted: %s", e.Message)
	}
	return "interrupted"
}

// InvalidConfiguration, NoSuchPackage, BuildFileContainsErrors, AbruptExit,
// and CyclesReported are the façade-level error values callers classify
// evaluate_* results against.

// InvalidConfiguration reports that evaluate_configurations could not
// produce a usable Configuration from the supplied build options.
type InvalidConfiguration struct {
	Message string
	Cause error
}

func (e *InvalidConfiguration) Error() string { return fmt.Sprintf("invalid configuration: %s", e.Message) }
func (e *InvalidConfiguration) Unwrap() error { return e.Cause }

// NoSuchPackage reports that a requested package path does not exist under
// the current package locator, or was declared deleted.
type NoSuchPackage struct {
	PackagePath string
	Cause error
}

func (e *NoSuchPackage) Error() string {
	return fmt.Sprintf("no such package: %q", e.PackagePath)
}
func (e *NoSuchPackage) Unwrap() error { return e.Cause }

// BuildFileContainsErrors reports that a package's manifest failed to
// parse or validate.
type BuildFileContainsErrors struct {
	PackagePath string
	Cause error
}

func (e *BuildFileContainsErrors) Error() string {
	return fmt.Sprintf("package %q: build file contains errors: %v", e.PackagePath, e.Cause)
}
func (e *BuildFileContainsErrors) Unwrap() error { return e.Cause }

// AbruptExit wraps an EngineError (or any infrastructure failure) that
// should terminate the calling process with ExitCode.
type AbruptExit struct {
	ExitCode int
	Cause error
}

func (e *AbruptExit) Error() string {
	return fmt.Sprintf("abrupt exit (%d): %v", e.ExitCode, e.Cause)
}
func (e *AbruptExit) Unwrap() error { return e.Cause }

// CyclesReported wraps one or more CycleError values surfaced by an
// evaluate_* call, after the cycle reporter has already emitted diagnostics
// for each.
type CyclesReported struct {
	Cycles []*CycleError
}

func (e *CyclesReported) Error() string {
	return fmt.Sprintf("%d dependency cycle(s) reported", len(e.Cycles))
}
