package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/execrunner"
	"buildgraph/internal/key"
)

func TestActionExecutionFunc_MissingDeps(t *testing.T) {
	payload := ActionExecutionPayload{Target: ConfiguredTargetKey(ConfiguredTargetPayload{Label: Label{Package: "foo", Name: "core"}}), Index: 0}
	fn := NewActionExecutionFunc(execrunner.NewRunner(execrunner.NewMemoryCache()))
	outcome := fn(ActionExecutionKey(payload), newFakeEnv())
	if !outcome.IsMissing() {
		t.Fatalf("expected missing outcome, got %+v", outcome)
	}
	if len(outcome.MissingDeps()) != 4 {
		t.Fatalf("MissingDeps() = %v, want 4 entries", outcome.MissingDeps())
	}
}

func TestActionExecutionFunc_RunsAndCaches(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	targetKey := ConfiguredTargetKey(ConfiguredTargetPayload{Label: Label{Package: "foo", Name: "core"}})
	target := ResolvedTarget{
		Label: Label{Package: "foo", Name: "core"},
		Dir: dir,
		Actions: []ActionDecl{{Command: "cat a.txt > out.txt", Srcs: []string{"a.txt"}, Outputs: []string{"out.txt"}}},
	}

	env := newFakeEnv()
	env.set(targetKey, key.NewValue(key.ConfiguredTarget, target))
	env.set(buildvars.Key(buildvars.CommandID), buildvars.Value(uuid.New()))
	env.set(buildvars.Key(buildvars.TestEnvironmentVars), buildvars.Value(map[string]string{}))
	env.set(buildvars.Key(buildvars.BadActionsSet), buildvars.Value(map[string]bool{}))

	payload := ActionExecutionPayload{Target: targetKey, Index: 0}
	fn := NewActionExecutionFunc(execrunner.NewRunner(execrunner.NewMemoryCache()))
	outcome := fn(ActionExecutionKey(payload), env)
	if !outcome.IsValue() {
		t.Fatalf("expected value outcome, got %+v", outcome)
	}
	result := outcome.Value().Data().(execrunner.Result)
	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", result.ExitCode)
	}
	if len(result.Artifacts) != 1 || string(result.Artifacts[0].Content) != "hello" {
		t.Fatalf("Artifacts = %v", result.Artifacts)
	}
}

func TestActionExecutionFunc_NoSuchAction(t *testing.T) {
	targetKey := ConfiguredTargetKey(ConfiguredTargetPayload{Label: Label{Package: "foo", Name: "core"}})
	target := ResolvedTarget{Label: Label{Package: "foo", Name: "core"}, Dir: t.TempDir(), Actions: nil}

	env := newFakeEnv()
	env.set(targetKey, key.NewValue(key.ConfiguredTarget, target))
	env.set(buildvars.Key(buildvars.CommandID), buildvars.Value(uuid.New()))
	env.set(buildvars.Key(buildvars.TestEnvironmentVars), buildvars.Value(map[string]string{}))
	env.set(buildvars.Key(buildvars.BadActionsSet), buildvars.Value(map[string]bool{}))

	payload := ActionExecutionPayload{Target: targetKey, Index: 0}
	fn := NewActionExecutionFunc(execrunner.NewRunner(execrunner.NewMemoryCache()))
	outcome := fn(ActionExecutionKey(payload), env)
	if !outcome.IsFail() {
		t.Fatalf("expected fail outcome for an out-of-range action index, got %+v", outcome)
	}
}

func TestActionExecutionFunc_PreMarkedBad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	targetKey := ConfiguredTargetKey(ConfiguredTargetPayload{Label: Label{Package: "foo", Name: "core"}})
	target := ResolvedTarget{
		Label: Label{Package: "foo", Name: "core"},
		Dir: dir,
		Actions: []ActionDecl{{Command: "cat a.txt > out.txt", Srcs: []string{"a.txt"}, Outputs: []string{"out.txt"}}},
	}

	env := newFakeEnv()
	env.set(targetKey, key.NewValue(key.ConfiguredTarget, target))
	env.set(buildvars.Key(buildvars.CommandID), buildvars.Value(uuid.New()))
	env.set(buildvars.Key(buildvars.TestEnvironmentVars), buildvars.Value(map[string]string{}))
	env.set(buildvars.Key(buildvars.BadActionsSet), buildvars.Value(map[string]bool{"//foo:core#0": true}))

	payload := ActionExecutionPayload{Target: targetKey, Index: 0}
	fn := NewActionExecutionFunc(execrunner.NewRunner(execrunner.NewMemoryCache()))
	outcome := fn(ActionExecutionKey(payload), env)
	if !outcome.IsFail() {
		t.Fatalf("expected fail outcome for a pre-marked-bad action, got %+v", outcome)
	}
}
