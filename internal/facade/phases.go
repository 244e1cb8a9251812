package facade

import (
	"context"
	"fmt"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/config"
	"buildgraph/internal/errs"
	"buildgraph/internal/evaluator"
	"buildgraph/internal/execrunner"
	"buildgraph/internal/graphstore"
	"buildgraph/internal/key"
	"buildgraph/internal/keys"
	"buildgraph/internal/progress"
)

// EvaluateConfigurations drives the evaluator for the
// ConfigurationCollection key built from fragments, after loading
// settingsPath (if non-empty) into the BuildOptions build variable.
func (d *Driver) EvaluateConfigurations(ctx context.Context, fragments []string, settingsPath string, numThreads int, keepGoing bool) (keys.Configuration, evaluator.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	settings := config.Default()
	if settingsPath != "" {
		loaded, err := config.Load(settingsPath)
		if err != nil {
			return keys.Configuration{}, nil, &errs.InvalidConfiguration{Message: "loading settings", Cause: err}
		}
		settings = loaded
	}
	if err := settings.Validate(); err != nil {
		return keys.Configuration{}, nil, &errs.InvalidConfiguration{Message: "validating settings", Cause: err}
	}

	d.SetExternalInput(buildvars.BuildOptions, buildVarsOptionsFromSettings(settings))
	d.newCommandID()

	fset := keys.NewFragmentSet(fragments ...)
	k := keys.ConfigurationCollectionKey(fset)

	res, err := d.flushAndEvaluate(ctx, []key.Key{k}, evaluator.Options{NumThreads: numThreads, KeepGoing: keepGoing})
	if err != nil {
		return keys.Configuration{}, res, err
	}

	entry := res[k]
	switch entry.Kind {
	case evaluator.ResultValue:
		return entry.Value.Data().(keys.Configuration), res, nil
	case evaluator.ResultError:
		return keys.Configuration{}, res, &errs.InvalidConfiguration{Message: "configuration collection failed", Cause: entry.Err}
	default:
		return keys.Configuration{}, res, &errs.InvalidConfiguration{Message: "configuration collection did not complete"}
	}
}

// EvaluateTargetPatterns expands each pattern into its denoted labels.
func (d *Driver) EvaluateTargetPatterns(ctx context.Context, patterns []string, numThreads int, keepGoing bool) (map[string][]keys.Label, evaluator.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.newCommandID()

	requested := make([]key.Key, len(patterns))
	for i, p := range patterns {
		requested[i] = keys.TargetPatternKey(p)
	}

	res, err := d.flushAndEvaluate(ctx, requested, evaluator.Options{NumThreads: numThreads, KeepGoing: keepGoing})

	out := make(map[string][]keys.Label, len(patterns))
	for i, p := range patterns {
		entry := res[requested[i]]
		if entry.Kind == evaluator.ResultValue {
			out[p] = entry.Value.Data().([]keys.Label)
		}
	}
	return out, res, err
}

// Analyze builds the ConfiguredTarget value for each (label, configDigest)
// pair.
func (d *Driver) Analyze(ctx context.Context, labels []keys.Label, configDigest string, numThreads int, keepGoing bool) (map[keys.Label]keys.ResolvedTarget, evaluator.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.newCommandID()

	requested := make([]key.Key, len(labels))
	for i, l := range labels {
		requested[i] = keys.ConfiguredTargetKey(keys.ConfiguredTargetPayload{Label: l, ConfigDigest: configDigest})
	}

	res, err := d.flushAndEvaluate(ctx, requested, evaluator.Options{NumThreads: numThreads, KeepGoing: keepGoing})

	out := make(map[keys.Label]keys.ResolvedTarget, len(labels))
	for i, l := range labels {
		entry := res[requested[i]]
		if entry.Kind == evaluator.ResultValue {
			out[l] = entry.Value.Data().(keys.ResolvedTarget)
		}
	}
	return out, res, err
}

// Execute builds every declared action of each (label, configDigest)
// target's ConfiguredTarget value, mediating with the configured
// execrunner.Runner. The progress receiver and num_jobs
// behave as a dedicated execution-phase pool, typically much larger than
// analyze's, to absorb I/O waits.
func (d *Driver) Execute(ctx context.Context, targets []keys.ConfiguredTargetPayload, numJobs int, keepGoing bool, recv progress.Receiver) (map[keys.ConfiguredTargetPayload][]execrunner.Result, evaluator.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.newCommandID()

	var requested []key.Key
	targetFor := make(map[key.Key]keys.ConfiguredTargetPayload)

	for _, t := range targets {
		ctKey := keys.ConfiguredTargetKey(t)
		resolved, ok := d.store.Get(ctKey)
		if !ok || resolved.State != graphstore.Done {
			continue
		}
		target := resolved.Value.Data().(keys.ResolvedTarget)
		for i := range target.Actions {
			payload := keys.ActionExecutionPayload{Target: ctKey, Index: i}
			aKey := keys.ActionExecutionKey(payload)
			requested = append(requested, aKey)
			targetFor[aKey] = t
		}
	}

	res, err := d.flushAndEvaluate(ctx, requested, evaluator.Options{NumThreads: numJobs, KeepGoing: keepGoing, Progress: recv})

	out := make(map[keys.ConfiguredTargetPayload][]execrunner.Result)
	for _, aKey := range requested {
		entry := res[aKey]
		if entry.Kind != evaluator.ResultValue {
			continue
		}
		t := targetFor[aKey]
		out[t] = append(out[t], entry.Value.Data().(execrunner.Result))
	}
	return out, res, err
}

// GetConfiguredTarget is a legacy-compatibility getter: it reads a single
// ConfiguredTarget node's current value outside of any evaluate_* call,
// via callUninterruptibly.
func (d *Driver) GetConfiguredTarget(label keys.Label, configDigest string) (keys.ResolvedTarget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var target keys.ResolvedTarget
	var outErr error
	d.callUninterruptibly(func(ctx context.Context) {
		snap, ok := d.store.Get(keys.ConfiguredTargetKey(keys.ConfiguredTargetPayload{Label: label, ConfigDigest: configDigest}))
		if !ok || snap.State != graphstore.Done {
			outErr = fmt.Errorf("facade: configured target %s not available", label)
			return
		}
		target = snap.Value.Data().(keys.ResolvedTarget)
	})
	return target, outErr
}

// GetGeneratingAction returns the ActionExecution result that produced
// index idx of target's declared actions, if it has already completed.
func (d *Driver) GetGeneratingAction(target keys.ConfiguredTargetPayload, idx int) (execrunner.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result execrunner.Result
	var outErr error
	d.callUninterruptibly(func(ctx context.Context) {
		ctKey := keys.ConfiguredTargetKey(target)
		aKey := keys.ActionExecutionKey(keys.ActionExecutionPayload{Target: ctKey, Index: idx})
		snap, ok := d.store.Get(aKey)
		if !ok || snap.State != graphstore.Done {
			outErr = fmt.Errorf("facade: generating action %d for %s not available", idx, target.Label)
			return
		}
		result = snap.Value.Data().(execrunner.Result)
	})
	return result, outErr
}

// GetPackage is a legacy-compatibility getter for a package's parsed
// manifest.
func (d *Driver) GetPackage(pkgPath string) (keys.ParsedPackage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var pkg keys.ParsedPackage
	var outErr error
	d.callUninterruptibly(func(ctx context.Context) {
		snap, ok := d.store.Get(keys.PackageKey(pkgPath))
		if !ok || snap.State != graphstore.Done {
			outErr = &errs.NoSuchPackage{PackagePath: pkgPath}
			return
		}
		pkg = snap.Value.Data().(keys.ParsedPackage)
	})
	return pkg, outErr
}

// GetWorkspaceStatusArtifacts returns the currently configured
// WorkspaceStatusAction build variable. Actually running that action is
// out of scope — the caller only learns what was configured, not its
// output.
func (d *Driver) GetWorkspaceStatusArtifacts() *ActionSpec {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.store.Get(buildvars.Key(buildvars.WorkspaceStatusAction))
	if !ok || snap.State != graphstore.Done {
		return nil
	}
	spec, _ := snap.Value.Data().(*ActionSpec)
	return spec
}
