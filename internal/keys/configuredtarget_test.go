package keys

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/hclspec"
	"buildgraph/internal/key"
)

func parsedPackageFixture(t *testing.T) ParsedPackage {
	t.Helper()
	m, err := hclspec.DecodeString("BUILD.hcl", `
target "library" "core" {
  srcs = ["a.go"]
}
`)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	return ParsedPackage{Path: "foo", Dir: "/repo/foo", Manifest: m}
}

func TestConfiguredTargetFunc_MissingDeps(t *testing.T) {
	payload := ConfiguredTargetPayload{Label: Label{Package: "foo", Name: "core"}, ConfigDigest: "abc"}
	fn := NewConfiguredTargetFunc()
	outcome := fn(ConfiguredTargetKey(payload), newFakeEnv())
	if !outcome.IsMissing() {
		t.Fatalf("expected missing outcome, got %+v", outcome)
	}
	if len(outcome.MissingDeps()) != 3 {
		t.Fatalf("MissingDeps() = %v, want 3 entries", outcome.MissingDeps())
	}
}

func TestConfiguredTargetFunc_ResolvesAction(t *testing.T) {
	env := newFakeEnv()
	env.set(PackageKey("foo"), key.NewValue(key.Package, parsedPackageFixture(t)))
	env.set(buildvars.Key(buildvars.BuildOptions), buildvars.Value(buildvars.BuildOptionsValue{CompilationMode: "opt"}))
	env.set(buildvars.Key(buildvars.DefaultVisibility), buildvars.Value([]string{"//visibility:public"}))

	payload := ConfiguredTargetPayload{Label: Label{Package: "foo", Name: "core"}, ConfigDigest: "abc"}
	fn := NewConfiguredTargetFunc()
	outcome := fn(ConfiguredTargetKey(payload), env)
	if !outcome.IsValue() {
		t.Fatalf("expected value outcome, got %+v", outcome)
	}
	target := outcome.Value().Data().(ResolvedTarget)
	if target.Label != payload.Label {
		t.Errorf("Label = %+v, want %+v", target.Label, payload.Label)
	}
	wantActions := []ActionDecl{{
		Command: "# mode=opt\ncat a.go > $OUT",
		Srcs: []string{"a.go"},
		Outputs: []string{"core.out"},
	}}
	if diff := cmp.Diff(wantActions, target.Actions); diff != "" {
		t.Errorf("Actions mismatch (-want +got):\n%s", diff)
	}
}

func TestConfiguredTargetFunc_ResolvesDataTags(t *testing.T) {
	manifest, err := hclspec.DecodeString("BUILD.hcl", `
target "library" "core" {
  srcs = ["a.go"]
  data = { owner = "infra", team = "buildgraph" }
}
`)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}

	env := newFakeEnv()
	env.set(PackageKey("foo"), key.NewValue(key.Package, ParsedPackage{Path: "foo", Dir: "/repo/foo", Manifest: manifest}))
	env.set(buildvars.Key(buildvars.BuildOptions), buildvars.Value(buildvars.BuildOptionsValue{}))
	env.set(buildvars.Key(buildvars.DefaultVisibility), buildvars.Value([]string{}))

	payload := ConfiguredTargetPayload{Label: Label{Package: "foo", Name: "core"}, ConfigDigest: "abc"}
	fn := NewConfiguredTargetFunc()
	outcome := fn(ConfiguredTargetKey(payload), env)
	if !outcome.IsValue() {
		t.Fatalf("expected value outcome, got %+v", outcome)
	}
	target := outcome.Value().Data().(ResolvedTarget)
	want := map[string]string{"owner": "infra", "team": "buildgraph"}
	if diff := cmp.Diff(want, target.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
}

func TestConfiguredTargetFunc_NoSuchTarget(t *testing.T) {
	env := newFakeEnv()
	env.set(PackageKey("foo"), key.NewValue(key.Package, parsedPackageFixture(t)))
	env.set(buildvars.Key(buildvars.BuildOptions), buildvars.Value(buildvars.BuildOptionsValue{}))
	env.set(buildvars.Key(buildvars.DefaultVisibility), buildvars.Value([]string{}))

	payload := ConfiguredTargetPayload{Label: Label{Package: "foo", Name: "nonexistent"}, ConfigDigest: "abc"}
	fn := NewConfiguredTargetFunc()
	outcome := fn(ConfiguredTargetKey(payload), env)
	if !outcome.IsFail() {
		t.Fatalf("expected fail outcome for an undeclared target, got %+v", outcome)
	}
}
