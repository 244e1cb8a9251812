// Package differencer implements C3: buffering of external "this key's
// value is now X" injections and "invalidate these keys" requests, applied
// atomically at the next evaluation's start.
package differencer

import (
	"sync"

	"buildgraph/internal/graphstore"
	"buildgraph/internal/key"
	"buildgraph/internal/progress"
)

type injection struct {
	key key.Key
	value key.Value
}

// Differencer buffers pending graph mutations between evaluations.
type Differencer struct {
	mu sync.Mutex

	injections []injection
	invalidations []key.Key
	invalidateErrors bool
}

// New returns an empty Differencer.
func New() *Differencer {
	return &Differencer{}
}

// Inject buffers forcing k to value v at the next version.
func (d *Differencer) Inject(k key.Key, v key.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.injections = append(d.injections, injection{key: k, value: v})
}

// Invalidate buffers marking the given keys Dirty at the next version.
func (d *Differencer) Invalidate(keys []key.Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidations = append(d.invalidations, keys ...)
}

// InvalidateErrors buffers a request to mark every Error node Dirty at the
// next version (transient-error retry).
func (d *Differencer) InvalidateErrors() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidateErrors = true
}

// Flush drains the buffer into store, bumping store's version exactly once.
// Injections are applied before invalidations, so a key injected in this
// build starts Done-at-new-version before any invalidation in the same
// flush can mark something depending on it Dirty.
// recv, if non-nil, is notified of every node actually transitioned to
// Dirty by this flush.
func (d *Differencer) Flush(store *graphstore.Store, recv progress.Receiver) {
	d.mu.Lock()
	injections := d.injections
	invalidations := d.invalidations
	invalidateErrors := d.invalidateErrors
	d.injections = nil
	d.invalidations = nil
	d.invalidateErrors = false
	d.mu.Unlock()

	if recv == nil {
		recv = progress.NoOp{}
	}
	onDirty := func(k key.Key, st graphstore.State) { recv.Invalidated(k, st) }

	store.BumpVersion()

	for _, inj := range injections {
		store.InjectDone(inj.key, inj.value, onDirty)
	}
	for _, k := range invalidations {
		store.MarkDirty(k, graphstore.Injected, onDirty)
	}
	if invalidateErrors {
		store.InvalidateErrors(onDirty)
	}
}

// Pending reports whether any buffered mutation is waiting for the next
// Flush.
func (d *Differencer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.injections) > 0 || len(d.invalidations) > 0 || d.invalidateErrors
}
