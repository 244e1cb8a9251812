package keys

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/hclspec"
	"buildgraph/internal/key"
)

// TargetPatternKey returns the TargetPattern key for a pattern such as
// "//foo/bar:baz", "//foo/bar:all", or "//foo/...".
func TargetPatternKey(pattern string) key.Key { return key.New(key.TargetPattern, pattern) }

// NewTargetPatternFunc returns the Func for the TargetPattern family: it
// expands a pattern into the concrete labels it denotes, memoizing that
// expansion the same way every other family memoizes its result.
//
// Three forms are recognized, matching evaluate_target_patterns' expected
// inputs: an exact label ("//pkg:name"), a package wildcard
// ("//pkg:all"), and a recursive wildcard ("//pkg/...").
func NewTargetPatternFunc() key.Func {
	return func(k key.Key, env key.Environment) key.Outcome {
		pattern, ok := k.Payload().(string)
		if !ok {
			return key.Fail(fmt.Errorf("keys: TargetPattern key has non-string payload %v", k.Payload()))
		}

		locatorKey := buildvars.Key(buildvars.PackageLocator)
		locatorVal, ok := env.Get(locatorKey)
		if !ok {
			return key.Missing([]key.Key{locatorKey})
		}
		roots, _ := locatorVal.Data().([]string)

		switch {
		case strings.HasSuffix(pattern, "/..."):
			pkgPrefix := strings.TrimSuffix(pattern, "/...")
			pkgPrefix = strings.TrimPrefix(pkgPrefix, "//")
			labels, err := expandRecursive(roots, pkgPrefix)
			if err != nil {
				return key.Fail(err)
			}
			return key.Done(key.NewValue(key.TargetPattern, labels))

		case strings.HasSuffix(pattern, ":all"):
			pkgPath := strings.TrimSuffix(pattern, ":all")
			pkgPath = strings.TrimPrefix(pkgPath, "//")
			pkgKey := PackageKey(pkgPath)
			pkgVal, ok := env.Get(pkgKey)
			if !ok {
				return key.Missing([]key.Key{pkgKey})
			}
			pkg := pkgVal.Data().(ParsedPackage)
			labels := make([]Label, 0, len(pkg.Manifest.Targets))
			for _, t := range pkg.Manifest.Targets {
				labels = append(labels, Label{Package: pkgPath, Name: t.Name})
			}
			sortLabels(labels)
			return key.Done(key.NewValue(key.TargetPattern, labels))

		default:
			label, err := ParseLabel(pattern)
			if err != nil {
				return key.Fail(fmt.Errorf("keys: invalid target pattern %q: %w", pattern, err))
			}
			return key.Done(key.NewValue(key.TargetPattern, []Label{label}))
		}
	}
}

func expandRecursive(roots []string, pkgPrefix string) ([]Label, error) {
	var labels []Label
	for _, root := range roots {
		start := filepath.Join(root, pkgPrefix)
		err := filepath.Walk(start, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() || info.Name() != manifestFilename {
				return nil
			}
			dir := filepath.Dir(path)
			rel, err := filepath.Rel(root, dir)
			if err != nil {
				return err
			}
			manifest, err := hclspec.Decode(path)
			if err != nil {
				return nil
			}
			for _, t := range manifest.Targets {
				labels = append(labels, Label{Package: filepath.ToSlash(rel), Name: t.Name})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("keys: expanding %s under %s: %w", pkgPrefix, root, err)
		}
	}
	sortLabels(labels)
	return labels, nil
}

func sortLabels(labels []Label) {
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Package != labels[j].Package {
			return labels[i].Package < labels[j].Package
		}
		return labels[i].Name < labels[j].Name
	})
}
