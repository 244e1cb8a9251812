package keys

import "buildgraph/internal/key"

// fakeEnv is a minimal key.Environment backed by a plain map, letting each
// family's Func be exercised in isolation without a real evaluator.
type fakeEnv struct {
	values map[key.Key]key.Value
}

func newFakeEnv() *fakeEnv { return &fakeEnv{values: make(map[key.Key]key.Value)} }

func (e *fakeEnv) set(k key.Key, v key.Value) { e.values[k] = v }

func (e *fakeEnv) Get(k key.Key) (key.Value, bool) {
	v, ok := e.values[k]
	return v, ok
}

func (e *fakeEnv) Cancelled() bool { return false }
