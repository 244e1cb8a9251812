package keys

import (
	"buildgraph/internal/execrunner"
	"buildgraph/internal/key"
)

// Register installs every concrete family's Func into reg. runner backs
// the ActionExecution family's content-addressed execution.
func Register(reg *key.Registry, runner *execrunner.Runner) *key.Registry {
	reg.Register(key.FileState, NewFileStateFunc())
	reg.Register(key.DirectoryListing, NewDirectoryListingFunc())
	reg.Register(key.Package, NewPackageFunc())
	reg.Register(key.ConfiguredTarget, NewConfiguredTargetFunc())
	reg.Register(key.ConfigurationCollection, NewConfigurationCollectionFunc())
	reg.Register(key.TargetPattern, NewTargetPatternFunc())
	reg.Register(key.ActionExecution, NewActionExecutionFunc(runner))
	return reg
}
