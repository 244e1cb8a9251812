package keys

import (
	"fmt"
	"os"
	"sort"

	"buildgraph/internal/key"
)

// DirEntry is one child of a listed directory.
type DirEntry struct {
	Name string
	IsDir bool
}

// DirectoryListingKey returns the DirectoryListing key for path.
func DirectoryListingKey(path string) key.Key { return key.New(key.DirectoryListing, path) }

// NewDirectoryListingFunc returns the Func for the DirectoryListing
// family: depends on FileState(path) so that notify_modified_paths'
// invalidation of the directory itself also dirties its listing, then
// re-reads the directory's children directly.
func NewDirectoryListingFunc() key.Func {
	return func(k key.Key, env key.Environment) key.Outcome {
		path, ok := k.Payload().(string)
		if !ok {
			return key.Fail(fmt.Errorf("keys: DirectoryListing key has non-string payload %v", k.Payload()))
		}

		stateKey := FileStateKey(path)
		state, ok := env.Get(stateKey)
		if !ok {
			return key.Missing([]key.Key{stateKey})
		}
		data := state.Data().(FileStateData)
		if !data.Exists {
			return key.Fail(fmt.Errorf("keys: directory %s does not exist", path))
		}
		if !data.IsDir {
			return key.Fail(fmt.Errorf("keys: %s is not a directory", path))
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return key.Fail(fmt.Errorf("keys: reading directory %s: %w", path, err))
		}
		out := make([]DirEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

		return key.Done(key.NewValue(key.DirectoryListing, out))
	}
}
