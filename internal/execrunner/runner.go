package execrunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Runner orchestrates one action's content-addressed execution: hash,
// cache lookup, execute-or-replay, harvest, cache-store. A failed action
// (non-zero exit) is cached exactly like a successful one — the exit code
// is a deterministic function of the same inputs, so replaying it on a
// later identical request is correct, and a failed action's outputs are
// never harvested, since they may be incomplete.
type Runner struct {
	Cache Cache
	Executor Executor
}

// NewRunner returns a Runner backed by cache.
func NewRunner(cache Cache) *Runner { return &Runner{Cache: cache} }

// Run executes (or replays) a, returning its Result.
func (r *Runner) Run(ctx context.Context, a Action) (*Result, error) {
	hash := ComputeHash(a)

	hit, err := r.Cache.Has(hash)
	if err != nil {
		return nil, fmt.Errorf("execrunner: checking cache: %w", err)
	}
	if hit {
		entry, err := r.Cache.Get(hash)
		if err != nil {
			return nil, fmt.Errorf("execrunner: reading cache: %w", err)
		}
		if entry != nil {
			return &Result{
				Hash: hash,
				Stdout: entry.Stdout,
				Stderr: entry.Stderr,
				ExitCode: entry.ExitCode,
				Artifacts: entry.Artifacts,
				FromCache: true,
			}, nil
		}
	}

	stdout, stderr, exitCode, err := r.Executor.Execute(ctx, a)
	if err != nil {
		return nil, err
	}

	var artifacts []Artifact
	if exitCode == 0 {
		artifacts, err = harvest(a.WorkingDir, a.Outputs)
		if err != nil {
			return nil, fmt.Errorf("execrunner: harvesting outputs for %s: %w", a.Label, err)
		}
	}

	if err := r.Cache.Put(&Entry{Hash: hash, Stdout: stdout, Stderr: stderr, ExitCode: exitCode, Artifacts: artifacts}); err != nil {
		return nil, fmt.Errorf("execrunner: caching result for %s: %w", a.Label, err)
	}

	return &Result{Hash: hash, Stdout: stdout, Stderr: stderr, ExitCode: exitCode, Artifacts: artifacts}, nil
}

// harvest reads every declared output path under dir into an Artifact,
// walking directories, and returns them sorted by path for determinism.
func harvest(dir string, outputs []string) ([]Artifact, error) {
	var artifacts []Artifact
	for _, rel := range outputs {
		full := filepath.Join(dir, rel)
		info, err := os.Stat(full)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", rel, err)
		}
		if !info.IsDir() {
			content, err := os.ReadFile(full)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", rel, err)
			}
			artifacts = append(artifacts, Artifact{Path: rel, Content: content})
			continue
		}
		err = filepath.Walk(full, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			relPath, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			artifacts = append(artifacts, Artifact{Path: relPath, Content: content})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	return artifacts, nil
}
