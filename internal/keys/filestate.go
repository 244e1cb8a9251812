package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"buildgraph/internal/key"
)

// FileStateData is the Value payload for a FileState key: enough to detect
// that a path's content or presence has changed, without requiring the
// full content every time a dependent merely wants to know "did this
// change" (change pruning compares the digest, not raw bytes).
type FileStateData struct {
	Exists bool
	IsDir bool
	Size int64
	ModTime time.Time
	Digest string // sha256 hex of content; empty for directories or absent paths
}

// FileStateKey returns the FileState key for path.
func FileStateKey(path string) key.Key { return key.New(key.FileState, path) }

// NewFileStateFunc returns the Func for the FileState family: a leaf
// that stats (and, for regular files, digests) the path on every
// invocation. It has no dependencies — staleness is driven entirely by
// notify_modified_paths invalidating this key directly.
func NewFileStateFunc() key.Func {
	return func(k key.Key, env key.Environment) key.Outcome {
		path, ok := k.Payload().(string)
		if !ok {
			return key.Fail(fmt.Errorf("keys: FileState key has non-string payload %v", k.Payload()))
		}

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return key.Done(key.NewValue(key.FileState, FileStateData{Exists: false}))
		}
		if err != nil {
			return key.Fail(fmt.Errorf("keys: stat %s: %w", path, err))
		}

		data := FileStateData{Exists: true, IsDir: info.IsDir(), Size: info.Size(), ModTime: info.ModTime()}
		if !info.IsDir() {
			digest, err := digestFile(path)
			if err != nil {
				return key.Fail(fmt.Errorf("keys: digesting %s: %w", path, err))
			}
			data.Digest = digest
		}
		return key.Done(key.NewValue(key.FileState, data))
	}
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
