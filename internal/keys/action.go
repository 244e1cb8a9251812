package keys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/errs"
	"buildgraph/internal/execrunner"
	"buildgraph/internal/key"
)

// ActionExecutionPayload is the ActionExecution key's payload: the owning
// ConfiguredTarget key and the index of the action within its Actions
// slice. Using the ConfiguredTarget key itself (rather than a bare label)
// keeps the dependency unambiguous across configurations without needing
// a second copy of the configuration digest in this key's payload.
type ActionExecutionPayload struct {
	Target key.Key
	Index int
}

// ActionExecutionKey returns the ActionExecution key for payload.
func ActionExecutionKey(payload ActionExecutionPayload) key.Key {
	return key.New(key.ActionExecution, payload)
}

// NewActionExecutionFunc returns the Func for the ActionExecution family:
// resolves the owning target's declared action, fails deterministically
// without running anything if the action's label is present in the
// BadActionsSet build variable, and otherwise reads its declared sources
// and runs it through runner (content-addressed execution and caching live
// in execrunner, not here).
func NewActionExecutionFunc(runner *execrunner.Runner) key.Func {
	return func(k key.Key, env key.Environment) key.Outcome {
		payload, ok := k.Payload().(ActionExecutionPayload)
		if !ok {
			return key.Fail(fmt.Errorf("keys: ActionExecution key has unexpected payload %v", k.Payload()))
		}

		cmdIDKey := buildvars.Key(buildvars.CommandID)
		testEnvKey := buildvars.Key(buildvars.TestEnvironmentVars)
		badActionsKey := buildvars.Key(buildvars.BadActionsSet)

		targetVal, haveTarget := env.Get(payload.Target)
		_, haveCmdID := env.Get(cmdIDKey)
		testEnvVal, haveTestEnv := env.Get(testEnvKey)
		badActionsVal, haveBadActions := env.Get(badActionsKey)

		var missing []key.Key
		if !haveTarget {
			missing = append(missing, payload.Target)
		}
		if !haveCmdID {
			missing = append(missing, cmdIDKey)
		}
		if !haveTestEnv {
			missing = append(missing, testEnvKey)
		}
		if !haveBadActions {
			missing = append(missing, badActionsKey)
		}
		if len(missing) > 0 {
			return key.Missing(missing)
		}

		target := targetVal.Data().(ResolvedTarget)
		if payload.Index < 0 || payload.Index >= len(target.Actions) {
			return key.Fail(&errs.NodeError{
				Key: k,
				Code: "NoSuchAction",
				Message: fmt.Sprintf("target %s has no action at index %d", target.Label, payload.Index),
			})
		}
		decl := target.Actions[payload.Index]
		actionLabel := fmt.Sprintf("%s#%d", target.Label, payload.Index)

		if badActions, _ := badActionsVal.Data().(map[string]bool); badActions[actionLabel] {
			return key.Fail(&errs.NodeError{
				Key: k,
				Code: "ActionPreMarkedBad",
				Message: fmt.Sprintf("action %s is pre-marked as unrunnable this build", actionLabel),
			})
		}

		env2, _ := testEnvVal.Data().(map[string]string)
		actionEnv := make(map[string]string, len(env2)+1)
		for name, val := range env2 {
			actionEnv[name] = val
		}
		if len(decl.Outputs) > 0 {
			actionEnv["OUT"] = decl.Outputs[0]
		}

		inputs := make([]execrunner.Input, 0, len(decl.Srcs))
		for _, src := range decl.Srcs {
			content, err := os.ReadFile(filepath.Join(target.Dir, src))
			if err != nil {
				return key.Fail(fmt.Errorf("keys: reading source %s for %s: %w", src, target.Label, err))
			}
			inputs = append(inputs, execrunner.Input{Path: src, Content: content})
		}

		action := execrunner.Action{
			Label: actionLabel,
			Command: decl.Command,
			Env: actionEnv,
			Inputs: inputs,
			Outputs: decl.Outputs,
			WorkingDir: target.Dir,
		}

		// The evaluator's Environment exposes Cancelled() rather than a
		// context.Context; this
		// registry checks it before starting the process, since there is no
		// way to hand execrunner a context tied to mid-flight cancellation
		// without widening that interface.
		if env.Cancelled() {
			return key.Missing(nil)
		}

		result, err := runner.Run(context.Background(), action)
		if err != nil {
			return key.Fail(&errs.NodeError{Key: k, Code: "ActionExecutionFailed", Message: err.Error(), Cause: err})
		}

		return key.Done(key.NewValue(key.ActionExecution, *result))
	}
}
