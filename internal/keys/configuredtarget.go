package keys

import (
	"fmt"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/errs"
	"buildgraph/internal/key"
)

// ConfiguredTargetPayload is the ConfiguredTarget key's payload: a label
// under one configuration.
type ConfiguredTargetPayload struct {
	Label Label
	ConfigDigest string
}

// ActionDecl is one action a configured target resolves to — deliberately
// one action per target in this simplified registry: a single command
// synthesized from the target's declared kind and sources.
type ActionDecl struct {
	Command string
	Srcs []string
	Outputs []string
}

// ResolvedTarget is the Value payload for a ConfiguredTarget key.
type ResolvedTarget struct {
	Label Label
	Kind string
	Dir string
	Actions []ActionDecl
	Tags map[string]string
}

// ConfiguredTargetKey returns the ConfiguredTarget key for payload.
func ConfiguredTargetKey(payload ConfiguredTargetPayload) key.Key {
	return key.New(key.ConfiguredTarget, payload)
}

// NewConfiguredTargetFunc returns the Func for the ConfiguredTarget family:
// loads the owning package, looks up the named target, and synthesizes its
// one action. It depends on the default-visibility build variable but does
// not check the target against it: no visibility rule is enforced.
func NewConfiguredTargetFunc() key.Func {
	return func(k key.Key, env key.Environment) key.Outcome {
		payload, ok := k.Payload().(ConfiguredTargetPayload)
		if !ok {
			return key.Fail(fmt.Errorf("keys: ConfiguredTarget key has unexpected payload %v", k.Payload()))
		}

		pkgKey := PackageKey(payload.Label.Package)
		optsKey := buildvars.Key(buildvars.BuildOptions)
		visKey := buildvars.Key(buildvars.DefaultVisibility)

		pkgVal, havePkg := env.Get(pkgKey)
		optsVal, haveOpts := env.Get(optsKey)
		_, haveVis := env.Get(visKey)

		var missing []key.Key
		if !havePkg {
			missing = append(missing, pkgKey)
		}
		if !haveOpts {
			missing = append(missing, optsKey)
		}
		if !haveVis {
			missing = append(missing, visKey)
		}
		if len(missing) > 0 {
			return key.Missing(missing)
		}

		pkg := pkgVal.Data().(ParsedPackage)
		target, ok := pkg.Manifest.TargetByName(payload.Label.Name)
		if !ok {
			return key.Fail(&errs.NodeError{
				Key: k,
				Code: "NoSuchTarget",
				Message: fmt.Sprintf("package %s has no target named %q", payload.Label.Package, payload.Label.Name),
			})
		}

		opts, _ := optsVal.Data().(buildvars.BuildOptionsValue)

		tags, err := target.DataFields()
		if err != nil {
			return key.Fail(&errs.BuildFileContainsErrors{PackagePath: payload.Label.Package, Cause: err})
		}

		action := ActionDecl{
			Command: synthesizeCommand(target.Kind, target.Srcs, opts.CompilationMode),
			Srcs: target.Srcs,
			Outputs: []string{target.Name + ".out"},
		}

		return key.Done(key.NewValue(key.ConfiguredTarget, ResolvedTarget{
			Label: payload.Label,
			Kind: target.Kind,
			Dir: pkg.Dir,
			Actions: []ActionDecl{action},
			Tags: tags,
		}))
	}
}

// synthesizeCommand builds a deterministic placeholder command for a
// target: this registry does not implement a real build-language
// frontend, so every target's action concatenates its sources into its
// declared output.
func synthesizeCommand(kind string, srcs []string, mode string) string {
	cmd := "cat"
	for _, s := range srcs {
		cmd += " " + s
	}
	cmd += " > $OUT"
	if mode != "" {
		cmd = fmt.Sprintf("# mode=%s\n%s", mode, cmd)
	}
	return cmd
}
