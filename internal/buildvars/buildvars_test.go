package buildvars

import (
	"testing"

	"buildgraph/internal/key"
)

type fakeEnv struct {
	values map[key.Key]key.Value
}

func (e *fakeEnv) Get(k key.Key) (key.Value, bool) {
	v, ok := e.values[k]
	return v, ok
}
func (e *fakeEnv) Cancelled() bool { return false }

func TestKey_IsStablePerVariable(t *testing.T) {
	if Key(DefaultVisibility) != Key(DefaultVisibility) {
		t.Fatalf("Key(v) is not stable across calls")
	}
	if Key(DefaultVisibility) == Key(PackageLocator) {
		t.Fatalf("distinct variables collided onto the same key")
	}
}

func TestGetters_RoundTripThroughEnvironment(t *testing.T) {
	env := &fakeEnv{values: map[key.Key]key.Value{
		Key(DefaultVisibility): Value([]string{"//visibility:public"}),
		Key(PackageLocator): Value([]string{"/repo"}),
		Key(TestEnvironmentVars): Value(map[string]string{"FOO": "bar"}),
		Key(BuildOptions): Value(BuildOptionsValue{CompilationMode: "opt"}),
		Key(DeletedPackages): Value(map[string]bool{"foo": true}),
	}}

	vis, ok := GetDefaultVisibility(env)
	if !ok || len(vis) != 1 || vis[0] != "//visibility:public" {
		t.Fatalf("GetDefaultVisibility = %v, %v", vis, ok)
	}

	roots, ok := GetPackageLocator(env)
	if !ok || len(roots) != 1 || roots[0] != "/repo" {
		t.Fatalf("GetPackageLocator = %v, %v", roots, ok)
	}

	vars, ok := GetTestEnvironmentVars(env)
	if !ok || vars["FOO"] != "bar" {
		t.Fatalf("GetTestEnvironmentVars = %v, %v", vars, ok)
	}

	opts, ok := GetBuildOptions(env)
	if !ok || opts.CompilationMode != "opt" {
		t.Fatalf("GetBuildOptions = %v, %v", opts, ok)
	}

	deleted, ok := GetDeletedPackages(env)
	if !ok || !deleted["foo"] {
		t.Fatalf("GetDeletedPackages = %v, %v", deleted, ok)
	}
}

func TestGetters_MissingReturnsZeroValue(t *testing.T) {
	env := &fakeEnv{values: map[key.Key]key.Value{}}
	if _, ok := GetDefaultVisibility(env); ok {
		t.Fatalf("expected ok=false when the variable was never injected")
	}
}

func TestGetters_WrongTypeReturnsZeroValue(t *testing.T) {
	env := &fakeEnv{values: map[key.Key]key.Value{
		Key(DefaultVisibility): Value("not a []string"),
	}}
	vis, ok := GetDefaultVisibility(env)
	if ok {
		t.Fatalf("expected ok=false for a type-mismatched payload, got %v", vis)
	}
}
