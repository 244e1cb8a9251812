// Package facade implements C7: the driver that owns the graph store, the
// differencer, the evaluator, and the scratch caches, and exposes the
// typed build phases external callers drive.
package facade

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/config"
	"buildgraph/internal/cyclereport"
	"buildgraph/internal/differencer"
	"buildgraph/internal/errs"
	"buildgraph/internal/eventsink"
	"buildgraph/internal/evaluator"
	"buildgraph/internal/execrunner"
	"buildgraph/internal/graphstore"
	"buildgraph/internal/key"
	"buildgraph/internal/keys"
	"buildgraph/internal/progress"
)

// allowlistedLocatorFamilies is the static set of key families the façade
// invalidates whenever the package locator changes. This is a deliberate
// allowlist rather than something inferred by walking the graph.
var allowlistedLocatorFamilies = []key.Family{
	key.FileState,
	key.DirectoryListing,
	key.Package,
	key.TargetPattern,
}

// Driver is the C7 façade: process-lifetime state threaded explicitly
// through construction, per the "global mutable state" design note
// rather than held in package-level globals.
type Driver struct {
	// mu serializes evaluate_* and the legacy-compatibility getters, since
	// the store does not support truly concurrent top-level evaluations.
	mu sync.Mutex

	store *graphstore.Store
	diff *differencer.Differencer
	registry *key.Registry
	reporter *cyclereport.Reporter
	eval *evaluator.Evaluator
	sink eventsink.Sink
	runner *execrunner.Runner

	defaults map[buildvars.Var]any
}

// Options configures New.
type Options struct {
	Sink eventsink.Sink
	CacheDir string // empty uses an in-memory execrunner cache
	KeepEdges graphstore.KeepEdges
	Defaults map[buildvars.Var]any
}

// New constructs a Driver with a fresh store, differencer, registry, and
// evaluator, and injects the initial build-variable defaults.
func New(opts Options) *Driver {
	if opts.Sink == nil {
		opts.Sink = eventsink.NewSlog(nil)
	}

	var cache execrunner.Cache
	if opts.CacheDir != "" {
		cache = execrunner.NewFileCache(opts.CacheDir)
	} else {
		cache = execrunner.NewMemoryCache()
	}

	d := &Driver{
		store: graphstore.New(opts.KeepEdges),
		diff: differencer.New(),
		registry: key.NewRegistry(),
		reporter: cyclereport.New(opts.Sink),
		sink: opts.Sink,
		runner: execrunner.NewRunner(cache),
		defaults: defaultBuildVariables(opts.Defaults),
	}
	keys.Register(d.registry, d.runner)
	d.reporter.Register(key.ConfiguredTarget, formatConfiguredTargetCycle)
	d.eval = evaluator.New(d.store, d.registry, d.reporter)
	d.injectDefaults()
	return d
}

// formatConfiguredTargetCycle renders a ConfiguredTarget cycle as the chain
// of labels involved, rather than the generic per-key arrow chain — this is
// the cycle shape a build author actually wants to read: "A depends on B
// depends on C depends on A", not raw key payloads.
func formatConfiguredTargetCycle(participants []key.Key) string {
	canon := cyclereport.Canonicalize(participants)
	labels := make([]string, 0, len(canon)+1)
	for _, k := range canon {
		payload, ok := k.Payload().(keys.ConfiguredTargetPayload)
		if !ok {
			return genericConfiguredTargetFallback(participants)
		}
		labels = append(labels, payload.Label.String())
	}
	if len(labels) > 0 {
		labels = append(labels, labels[0])
	}
	return strings.Join(labels, " depends on ") + "\n"
}

func genericConfiguredTargetFallback(participants []key.Key) string {
	var b strings.Builder
	for _, k := range cyclereport.Canonicalize(participants) {
		fmt.Fprintf(&b, " -> %s\n", k)
	}
	return b.String()
}

func defaultBuildVariables(overrides map[buildvars.Var]any) map[buildvars.Var]any {
	out := map[buildvars.Var]any{
		buildvars.DefaultVisibility: []string{"//visibility:public"},
		buildvars.DefaultsPackageContents: "",
		buildvars.PackageLocator: []string{},
		buildvars.TestEnvironmentVars: map[string]string{},
		buildvars.CommandID: uuid.Nil,
		buildvars.WorkspaceStatusAction: (*ActionSpec)(nil),
		buildvars.BuildInfoFactories: []string{},
		buildvars.TopLevelArtifactContext: buildvars.ArtifactContext{},
		buildvars.BadActionsSet: map[string]bool{},
		buildvars.BuildOptions: buildVarsOptionsFromSettings(config.Default()),
		buildvars.DeletedPackages: map[string]bool{},
	}
	for v, val := range overrides {
		out[v] = val
	}
	return out
}

func buildVarsOptionsFromSettings(s config.Settings) buildvars.BuildOptionsValue {
	return buildvars.BuildOptionsValue{
		CompilationMode: s.CompilationMode,
		DefaultVisibility: s.DefaultVisibility,
		TestEnvironmentVars: s.TestEnvironmentVars,
	}
}

// ActionSpec is the opaque shape of the WorkspaceStatusAction build
// variable: the sandboxing/execution internals of a workspace-status
// action are out of scope, so this just carries the command to run and
// where its artifacts land.
type ActionSpec struct {
	Command string
	OutputPath string
}

func (d *Driver) injectDefaults() {
	for v, val := range d.defaults {
		d.diff.Inject(buildvars.Key(v), buildvars.Value(val))
	}
	d.diff.Flush(d.store, progress.NoOp{})
}

// SetExternalInput injects a build variable's new value.
// A PackageLocator injection additionally invalidates every key in the
// package-locator allowlist, per the family allowlist documented on
// allowlistedLocatorFamilies.
func (d *Driver) SetExternalInput(v buildvars.Var, value any) {
	d.diff.Inject(buildvars.Key(v), buildvars.Value(value))
	if v == buildvars.PackageLocator {
		d.invalidateLocatorAllowlist()
	}
}

// SetDeletedPackages declares the set of package paths the client has
// removed from the workspace this session, independent of whatever their
// underlying files on disk currently say. The Package family reads this
// variable directly, so injecting a new set dirties exactly its dependent
// Package nodes through ordinary rdep propagation — unlike PackageLocator,
// this needs no separate allowlist invalidation.
func (d *Driver) SetDeletedPackages(paths []string) {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	d.SetExternalInput(buildvars.DeletedPackages, set)
}

func (d *Driver) invalidateLocatorAllowlist() {
	families := make(map[key.Family]bool, len(allowlistedLocatorFamilies))
	for _, f := range allowlistedLocatorFamilies {
		families[f] = true
	}
	var toInvalidate []key.Key
	for _, k := range d.store.AllKeys() {
		if families[k.Family()] {
			toInvalidate = append(toInvalidate, k)
		}
	}
	d.diff.Invalidate(toInvalidate)
}

// NotifyModifiedPaths translates each modified path into its FileState and
// owning-directory DirectoryListing keys and invalidates both.
func (d *Driver) NotifyModifiedPaths(paths []string, root string) {
	var toInvalidate []key.Key
	for _, p := range paths {
		full := filepath.Join(root, p)
		toInvalidate = append(toInvalidate, keys.FileStateKey(full))
		toInvalidate = append(toInvalidate, keys.DirectoryListingKey(filepath.Dir(full)))
	}
	d.diff.Invalidate(toInvalidate)
}

// newCommandID assigns and injects a fresh run identity for one façade
// call, giving every ActionExecution produced during that call a shared,
// in-memory-only correlation id.
func (d *Driver) newCommandID() uuid.UUID {
	id := uuid.New()
	d.diff.Inject(buildvars.Key(buildvars.CommandID), buildvars.Value(id))
	return id
}

// flushAndEvaluate is the shared "evaluate one phase" sequence: flush
// pending differencer mutations, run the evaluator, and route any
// reported cycles into a CyclesReported error alongside the raw result.
func (d *Driver) flushAndEvaluate(ctx context.Context, requested []key.Key, opts evaluator.Options) (evaluator.Result, error) {
	d.diff.Flush(d.store, opts.Progress)
	res := d.eval.Evaluate(ctx, requested, opts)

	var cycles []*errs.CycleError
	for _, k := range requested {
		entry, ok := res[k]
		if !ok || entry.Kind != evaluator.ResultError {
			continue
		}
		var cycleErr *errs.CycleError
		if errors.As(entry.Err, &cycleErr) {
			cycles = append(cycles, cycleErr)
		}
	}
	if len(cycles) > 0 {
		return res, &errs.CyclesReported{Cycles: cycles}
	}
	return res, nil
}

// Reset rebuilds the evaluator from scratch, clears the cycle reporter's
// dedup memory, and reinjects the constant build-variable defaults.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reporter.Reset()
	d.eval = evaluator.New(d.store, d.registry, d.reporter)
	d.injectDefaults()
}

// InvalidateErrors marks every Error node Dirty so the next evaluation
// retries it.
func (d *Driver) InvalidateErrors() {
	d.diff.InvalidateErrors()
}

// DropConfiguredTargets evicts every ConfiguredTarget node.
func (d *Driver) DropConfiguredTargets() int {
	return d.store.Delete(func(k key.Key, _ graphstore.Snapshot) bool {
		return k.Family() == key.ConfiguredTarget
	})
}

// InvalidateConfigurationCollection marks every ConfigurationCollection
// node Dirty.
func (d *Driver) InvalidateConfigurationCollection() {
	var toInvalidate []key.Key
	for _, k := range d.store.AllKeys() {
		if k.Family() == key.ConfigurationCollection {
			toInvalidate = append(toInvalidate, k)
		}
	}
	d.diff.Invalidate(toInvalidate)
}

// DeleteOldNodes deletes Dirty nodes whose value was last produced more
// than window versions ago. The store does not record when a node became
// Dirty, so the age is measured from its last completion, failure, or
// injection, not from the moment it was dirtied.
func (d *Driver) DeleteOldNodes(window uint64) int {
	current := d.store.Version()
	return d.store.Delete(func(_ key.Key, snap graphstore.Snapshot) bool {
		return snap.State == graphstore.Dirty && current-snap.Version > window
	})
}

// callUninterruptibly runs a legacy-compatibility getter against its own
// detached context rather than the caller's, so that cancelling the
// caller's context can never abort a single-node lookup partway through —
// the "legacy uninterruptible call" pattern, adapted from a
// signal-masking technique into context substitution, the idiomatic Go
// equivalent.
func (d *Driver) callUninterruptibly(fn func(ctx context.Context)) {
	fn(context.Background())
}
