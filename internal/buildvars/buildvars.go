// Package buildvars names the closed set of build-variable singleton keys:
// the façade's injection points for external
// mutable input. Each variable is a BuildVariable-family key whose payload
// is solely the variable's tag, so injecting one always targets exactly one
// node — there is no way to construct a second, distinct BuildVariable(Foo)
// key by accident.
package buildvars

import (
	"github.com/google/uuid"

	"buildgraph/internal/key"
)

// Var is one build variable's tag.
type Var string

const (
	DefaultVisibility Var = "DefaultVisibility"
	DefaultsPackageContents Var = "DefaultsPackageContents"
	PackageLocator Var = "PackageLocator"
	TestEnvironmentVars Var = "TestEnvironmentVariables"
	CommandID Var = "CommandID"
	WorkspaceStatusAction Var = "WorkspaceStatusAction"
	BuildInfoFactories Var = "BuildInfoFactories"
	TopLevelArtifactContext Var = "TopLevelArtifactContext"
	BadActionsSet Var = "BadActionsSet"
	BuildOptions Var = "BuildOptions"
	DeletedPackages Var = "DeletedPackages"
)

// Key returns the singleton graph key for v.
func Key(v Var) key.Key { return key.New(key.BuildVariable, v) }

// Value wraps data as a BuildVariable-family value.
func Value(data any) key.Value { return key.NewValue(key.BuildVariable, data) }

// ArtifactContext selects which output groups execute() should materialize
// for a top-level target — deliberately just a set of named groups; the
// output-group taxonomy itself is an execrunner concern.
type ArtifactContext struct {
	OutputGroups []string
}

// get is the shared typed-accessor shape: ask the environment for v, and
// type-assert its payload.
func get[T any](env key.Environment, v Var) (T, bool) {
	var zero T
	val, ok := env.Get(Key(v))
	if !ok {
		return zero, false
	}
	data, ok := val.Data().(T)
	if !ok {
		return zero, false
	}
	return data, true
}

// GetDefaultVisibility returns the default-visibility label patterns.
func GetDefaultVisibility(env key.Environment) ([]string, bool) { return get[[]string](env, DefaultVisibility) }

// GetDefaultsPackageContents returns the synthetic defaults-package manifest
// text, if one is configured.
func GetDefaultsPackageContents(env key.Environment) (string, bool) {
	return get[string](env, DefaultsPackageContents)
}

// GetPackageLocator returns the ordered list of package search roots.
func GetPackageLocator(env key.Environment) ([]string, bool) { return get[[]string](env, PackageLocator) }

// GetTestEnvironmentVars returns the environment variables passed through to
// ActionExecution for test actions.
func GetTestEnvironmentVars(env key.Environment) (map[string]string, bool) {
	return get[map[string]string](env, TestEnvironmentVars)
}

// GetCommandID returns the current façade call's run identity.
func GetCommandID(env key.Environment) (uuid.UUID, bool) { return get[uuid.UUID](env, CommandID) }

// GetBuildInfoFactories returns the names of registered build-info
// providers. Provider bodies are out of scope; only their names are tracked.
func GetBuildInfoFactories(env key.Environment) ([]string, bool) {
	return get[[]string](env, BuildInfoFactories)
}

// GetTopLevelArtifactContext returns the output-group selection for execute.
func GetTopLevelArtifactContext(env key.Environment) (ArtifactContext, bool) {
	return get[ArtifactContext](env, TopLevelArtifactContext)
}

// GetBadActionsSet returns the set of action identifiers the façade has
// flagged as known-bad this session; ActionExecution fails such an action
// with ActionPreMarkedBad without running it.
func GetBadActionsSet(env key.Environment) (map[string]bool, bool) {
	return get[map[string]bool](env, BadActionsSet)
}

// BuildOptionsValue is the payload of the BuildOptions build variable:
// compilation mode and the scalar knobs loaded from a YAML settings file.
type BuildOptionsValue struct {
	CompilationMode string
	DefaultVisibility []string
	TestEnvironmentVars map[string]string
}

// GetBuildOptions returns the current build options.
func GetBuildOptions(env key.Environment) (BuildOptionsValue, bool) {
	return get[BuildOptionsValue](env, BuildOptions)
}

// GetDeletedPackages returns the set of package paths the client has
// declared deleted this session, keyed by package path.
func GetDeletedPackages(env key.Environment) (map[string]bool, bool) {
	return get[map[string]bool](env, DeletedPackages)
}
