package facade

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/errs"
	"buildgraph/internal/eventsink"
	"buildgraph/internal/evaluator"
	"buildgraph/internal/key"
	"buildgraph/internal/keys"
)

func writeFixturePackage(t *testing.T, root, pkgPath, manifest string) {
	t.Helper()
	dir := filepath.Join(root, pkgPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "BUILD.hcl"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
}

func TestDriver_EndToEnd_ConfigureAnalyzeExecute(t *testing.T) {
	root := t.TempDir()
	writeFixturePackage(t, root, "foo", `
target "library" "core" {
  srcs = ["a.txt"]
}
`)
	if err := os.WriteFile(filepath.Join(root, "foo", "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	d := New(Options{})
	d.SetExternalInput(buildvars.PackageLocator, []string{root})

	configuration, _, err := d.EvaluateConfigurations(context.Background(), nil, "", 1, false)
	if err != nil {
		t.Fatalf("EvaluateConfigurations: %v", err)
	}
	if configuration.Digest == "" {
		t.Fatalf("expected a non-empty configuration digest")
	}

	expanded, _, err := d.EvaluateTargetPatterns(context.Background(), []string{"//foo:core"}, 1, false)
	if err != nil {
		t.Fatalf("EvaluateTargetPatterns: %v", err)
	}
	labels := expanded["//foo:core"]
	if len(labels) != 1 || labels[0] != (keys.Label{Package: "foo", Name: "core"}) {
		t.Fatalf("expanded patterns = %v", expanded)
	}

	resolved, _, err := d.Analyze(context.Background(), labels, configuration.Digest, 1, false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	target, ok := resolved[labels[0]]
	if !ok {
		t.Fatalf("expected %s to resolve", labels[0])
	}
	if len(target.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(target.Actions))
	}

	payload := keys.ConfiguredTargetPayload{Label: labels[0], ConfigDigest: configuration.Digest}
	results, _, err := d.Execute(context.Background(), []keys.ConfiguredTargetPayload{payload}, 1, false, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	actionResults := results[payload]
	if len(actionResults) != 1 {
		t.Fatalf("len(actionResults) = %d, want 1", len(actionResults))
	}
	if actionResults[0].ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", actionResults[0].ExitCode)
	}
}

func TestDriver_NotifyModifiedPaths_ReanalysisKeepsTarget(t *testing.T) {
	root := t.TempDir()
	writeFixturePackage(t, root, "foo", `target "library" "core" { srcs = ["a.txt"] }`)
	path := filepath.Join(root, "foo", "a.txt")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	d := New(Options{})
	d.SetExternalInput(buildvars.PackageLocator, []string{root})

	configuration, _, err := d.EvaluateConfigurations(context.Background(), nil, "", 1, false)
	if err != nil {
		t.Fatalf("EvaluateConfigurations: %v", err)
	}
	label := keys.Label{Package: "foo", Name: "core"}

	if _, _, err := d.Analyze(context.Background(), []keys.Label{label}, configuration.Digest, 1, false); err != nil {
		t.Fatalf("Analyze (1): %v", err)
	}
	before, err := d.GetConfiguredTarget(label, configuration.Digest)
	if err != nil {
		t.Fatalf("GetConfiguredTarget (1): %v", err)
	}

	if err := os.WriteFile(path, []byte("v2, a longer source"), 0o644); err != nil {
		t.Fatalf("rewriting source: %v", err)
	}
	d.NotifyModifiedPaths([]string{"foo/a.txt"}, root)

	if _, _, err := d.Analyze(context.Background(), []keys.Label{label}, configuration.Digest, 1, false); err != nil {
		t.Fatalf("Analyze (2): %v", err)
	}
	after, err := d.GetConfiguredTarget(label, configuration.Digest)
	if err != nil {
		t.Fatalf("GetConfiguredTarget (2): %v", err)
	}
	if before.Dir != after.Dir {
		t.Fatalf("Dir changed unexpectedly")
	}
}

func TestDriver_InvalidConfiguration_OnBadSettings(t *testing.T) {
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(settingsPath, []byte("compilation_mode: turbo\n"), 0o644); err != nil {
		t.Fatalf("writing settings: %v", err)
	}

	d := New(Options{})
	_, _, err := d.EvaluateConfigurations(context.Background(), nil, settingsPath, 1, false)
	if err == nil {
		t.Fatalf("expected an error for an invalid compilation mode")
	}
	var invalid *errs.InvalidConfiguration
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *errs.InvalidConfiguration, got %T: %v", err, err)
	}
}

func TestDriver_SetDeletedPackages_InvalidatesPackageLookup(t *testing.T) {
	root := t.TempDir()
	writeFixturePackage(t, root, "foo", `target "library" "core" { srcs = ["a.txt"] }`)
	if err := os.WriteFile(filepath.Join(root, "foo", "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	d := New(Options{})
	d.SetExternalInput(buildvars.PackageLocator, []string{root})

	configuration, _, err := d.EvaluateConfigurations(context.Background(), nil, "", 1, false)
	if err != nil {
		t.Fatalf("EvaluateConfigurations: %v", err)
	}
	label := keys.Label{Package: "foo", Name: "core"}

	if _, _, err := d.Analyze(context.Background(), []keys.Label{label}, configuration.Digest, 1, false); err != nil {
		t.Fatalf("Analyze (1): %v", err)
	}

	d.SetDeletedPackages([]string{"foo"})

	_, res, err := d.Analyze(context.Background(), []keys.Label{label}, configuration.Digest, 1, true)
	if err != nil {
		t.Fatalf("unexpected top-level error with keepGoing, got %v", err)
	}
	ctKey := keys.ConfiguredTargetKey(keys.ConfiguredTargetPayload{Label: label, ConfigDigest: configuration.Digest})
	entry := res[ctKey]
	if entry.Kind != evaluator.ResultError {
		t.Fatalf("expected a ResultError entry for the declared-deleted package, got %+v", entry)
	}
	var nsp *errs.NoSuchPackage
	if !errors.As(entry.Err, &nsp) {
		t.Fatalf("expected *errs.NoSuchPackage, got %T: %v", entry.Err, entry.Err)
	}

	d.SetDeletedPackages(nil)
	_, _, err = d.Analyze(context.Background(), []keys.Label{label}, configuration.Digest, 1, false)
	if err != nil {
		t.Fatalf("Analyze (2): %v", err)
	}
	target, err := d.GetConfiguredTarget(label, configuration.Digest)
	if err != nil {
		t.Fatalf("GetConfiguredTarget: %v", err)
	}
	if len(target.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1 after reverting the deletion", len(target.Actions))
	}
}

func TestDriver_CycleReport_UsesConfiguredTargetFormatter(t *testing.T) {
	sink := &eventsink.Collector{}
	d := New(Options{Sink: sink})

	a := keys.ConfiguredTargetKey(keys.ConfiguredTargetPayload{Label: keys.Label{Package: "foo", Name: "a"}, ConfigDigest: "c1"})
	b := keys.ConfiguredTargetKey(keys.ConfiguredTargetPayload{Label: keys.Label{Package: "foo", Name: "b"}, ConfigDigest: "c1"})
	d.reporter.Report(a, []*errs.CycleError{{Participants: []key.Key{a, b}}})

	if len(sink.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(sink.Messages))
	}
	if !strings.Contains(sink.Messages[0], "depends on") || !strings.Contains(sink.Messages[0], "//foo:a") || !strings.Contains(sink.Messages[0], "//foo:b") {
		t.Fatalf("message = %q, want the ConfiguredTarget label-chain format", sink.Messages[0])
	}
}

func TestDriver_Analyze_UnknownPackageReportsError(t *testing.T) {
	root := t.TempDir()
	d := New(Options{})
	d.SetExternalInput(buildvars.PackageLocator, []string{root})

	configuration, _, err := d.EvaluateConfigurations(context.Background(), nil, "", 1, false)
	if err != nil {
		t.Fatalf("EvaluateConfigurations: %v", err)
	}

	label := keys.Label{Package: "nonexistent", Name: "target"}
	_, res, err := d.Analyze(context.Background(), []keys.Label{label}, configuration.Digest, 1, true)
	if err != nil {
		t.Fatalf("unexpected top-level error with keepGoing, got %v", err)
	}
	ctKey := keys.ConfiguredTargetKey(keys.ConfiguredTargetPayload{Label: label, ConfigDigest: configuration.Digest})
	entry := res[ctKey]
	if entry.Kind != evaluator.ResultError {
		t.Fatalf("expected a ResultError entry for the unresolvable target, got %+v", entry)
	}
}
