package keys

import (
	"fmt"
	"path/filepath"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/errs"
	"buildgraph/internal/hclspec"
	"buildgraph/internal/key"
)

// ParsedPackage is the Value payload for a Package key: the decoded
// manifest plus the filesystem directory it was loaded from.
type ParsedPackage struct {
	Path string
	Dir string
	Manifest *hclspec.Manifest
}

// PackageKey returns the Package key for pkgPath.
func PackageKey(pkgPath string) key.Key { return key.New(key.Package, pkgPath) }

const manifestFilename = "BUILD.hcl"

// NewPackageFunc returns the Func for the Package family: locates the
// package under the first of the PackageLocator build variable's roots
// (later roots are not searched), depends
// on the manifest's FileState, the package directory's DirectoryListing,
// and the DeletedPackages build variable, failing with NoSuchPackage if
// the package path has been declared deleted even when its files are
// still present on disk, and decodes the manifest via hclspec otherwise.
func NewPackageFunc() key.Func {
	return func(k key.Key, env key.Environment) key.Outcome {
		pkgPath, ok := k.Payload().(string)
		if !ok {
			return key.Fail(fmt.Errorf("keys: Package key has non-string payload %v", k.Payload()))
		}

		locatorKey := buildvars.Key(buildvars.PackageLocator)
		locatorVal, ok := env.Get(locatorKey)
		if !ok {
			return key.Missing([]key.Key{locatorKey})
		}
		roots, _ := locatorVal.Data().([]string)
		if len(roots) == 0 {
			return key.Fail(&errs.NoSuchPackage{PackagePath: pkgPath, Cause: fmt.Errorf("keys: PackageLocator is empty")})
		}

		dir := filepath.Join(roots[0], pkgPath)
		manifestPath := filepath.Join(dir, manifestFilename)

		stateKey := FileStateKey(manifestPath)
		listingKey := DirectoryListingKey(dir)
		deletedKey := buildvars.Key(buildvars.DeletedPackages)

		state, haveState := env.Get(stateKey)
		listing, haveListing := env.Get(listingKey)
		deletedVal, haveDeleted := env.Get(deletedKey)
		var missing []key.Key
		if !haveState {
			missing = append(missing, stateKey)
		}
		if !haveListing {
			missing = append(missing, listingKey)
		}
		if !haveDeleted {
			missing = append(missing, deletedKey)
		}
		if len(missing) > 0 {
			return key.Missing(missing)
		}
		_ = listing

		if deleted, _ := deletedVal.Data().(map[string]bool); deleted[pkgPath] {
			return key.Fail(&errs.NoSuchPackage{PackagePath: pkgPath, Cause: fmt.Errorf("keys: package %s is declared deleted", pkgPath)})
		}

		data := state.Data().(FileStateData)
		if !data.Exists {
			return key.Fail(&errs.NoSuchPackage{PackagePath: pkgPath, Cause: fmt.Errorf("keys: no %s under %s", manifestFilename, dir)})
		}

		manifest, err := hclspec.Decode(manifestPath)
		if err != nil {
			return key.Fail(&errs.BuildFileContainsErrors{PackagePath: pkgPath, Cause: err})
		}

		return key.Done(key.NewValue(key.Package, ParsedPackage{Path: pkgPath, Dir: dir, Manifest: manifest}))
	}
}
