package graphstore

import (
	"fmt"
	"sync"

	"buildgraph/internal/key"
)

// KeepEdges selects whether completed nodes retain dep/rdep edges after
// evaluation.
type KeepEdges int

const (
	// KeepEdgesFull retains edges — required for incremental rebuilds.
	KeepEdgesFull KeepEdges = iota
	// KeepEdgesNone drops edges after completion — only suitable for
	// single-shot batch evaluations; saves memory at the cost of making a
	// later incremental rebuild impossible.
	KeepEdgesNone
)

// Store is the graph's exclusive owner of all nodes.
type Store struct {
	mapMu sync.RWMutex
	nodes map[key.Key]*node

	version uint64 // monotonically increasing; bumped once per evaluation by the differencer

	keepEdges KeepEdges
}

// New returns an empty Store.
func New(keepEdges KeepEdges) *Store {
	return &Store{nodes: make(map[key.Key]*node), keepEdges: keepEdges}
}

// Version returns the graph's current version counter.
func (s *Store) Version() uint64 {
	s.mapMu.RLock()
	defer s.mapMu.RUnlock()
	return s.version
}

// BumpVersion increments and returns the new version. Called exactly once
// per evaluation by the differencer at flush time.
func (s *Store) BumpVersion() uint64 {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	s.version++
	return s.version
}

func (s *Store) lookupOrCreate(k key.Key) *node {
	s.mapMu.RLock()
	n, ok := s.nodes[k]
	s.mapMu.RUnlock()
	if ok {
		return n
	}

	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	if n, ok := s.nodes[k]; ok {
		return n
	}
	n = newNode(k)
	s.nodes[k] = n
	return n
}

// Get returns a snapshot of the node at k, or (zero, false) if Absent and
// never created.
func (s *Store) Get(k key.Key) (Snapshot, bool) {
	s.mapMu.RLock()
	n, ok := s.nodes[k]
	s.mapMu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshot(), true
}

// CreateOrGet idempotently ensures a node exists for k and returns its
// current snapshot (Absent if newly created).
func (s *Store) CreateOrGet(k key.Key) Snapshot {
	n := s.lookupOrCreate(k)
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshot()
}

// ErrAlreadyBuilding is returned by BeginBuild when the node is already in
// the Building state — invariant 3 (at-most-one concurrent build per key).
var ErrAlreadyBuilding = fmt.Errorf("graphstore: node already building")

// BeginBuild atomically transitions Absent/Dirty -> Building.
func (s *Store) BeginBuild(k key.Key) error {
	n := s.lookupOrCreate(k)
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case Absent, Dirty:
		n.state = Building
		n.cycle = nil
		return nil
	case Building:
		return ErrAlreadyBuilding
	default:
		return fmt.Errorf("graphstore: cannot begin build for %s from state %s", k, n.state)
	}
}

// Complete transitions Building -> Done, recording value, the new
// dependency list, and per-dep fingerprints, and rewrites dep/rdep edges
// diff-based: edges no longer present are removed, new ones are added.
func (s *Store) Complete(k key.Key, value key.Value, deps []key.Key, sigs map[key.Key]key.Fingerprint) error {
	n := s.lookupOrCreate(k)

	n.mu.Lock()
	if n.state != Building {
		old := n.state
		n.mu.Unlock()
		return fmt.Errorf("graphstore: cannot complete %s from state %s", k, old)
	}
	oldDeps := n.deps
	n.mu.Unlock()

	removed, added := diffDeps(oldDeps, deps)
	if s.keepEdges == KeepEdgesNone {
		added = nil
	}

	for _, dep := range removed {
		dn := s.lookupOrCreate(dep)
		dn.mu.Lock()
		delete(dn.rdeps, k)
		dn.mu.Unlock()
	}
	for _, dep := range added {
		dn := s.lookupOrCreate(dep)
		dn.mu.Lock()
		dn.rdeps[k] = struct{}{}
		dn.mu.Unlock()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.value = value
	n.err = nil
	n.cycle = nil
	n.viaInject = false
	if s.keepEdges == KeepEdgesFull {
		n.deps = append([]key.Key(nil), deps ...)
		n.sigs = sigs
	} else {
		n.deps = nil
		n.sigs = nil
	}
	n.state = Done
	n.version = s.Version()
	return nil
}

// Fail transitions Building -> Error.
func (s *Store) Fail(k key.Key, err error) error {
	return s.failWithCycle(k, err, nil)
}

// FailCycle transitions Building -> Error with cycle participant info
// attached.
func (s *Store) FailCycle(k key.Key, err error, participants []key.Key) error {
	return s.failWithCycle(k, err, participants)
}

func (s *Store) failWithCycle(k key.Key, err error, participants []key.Key) error {
	n := s.lookupOrCreate(k)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != Building {
		return fmt.Errorf("graphstore: cannot fail %s from state %s", k, n.state)
	}
	n.value = key.Value{}
	n.sigs = nil
	n.err = err
	if participants != nil {
		n.cycle = append([]key.Key(nil), participants ...)
	}
	n.state = Error
	n.version = s.Version()
	return nil
}

// MarkDirty marks k Dirty (if Done or Error) and transitively marks every
// rdep of k Dirty as well, synchronously. It never
// re-evaluates anything — only the next evaluation does that. onDirty, if
// non-nil, is invoked once for every node actually transitioned, including
// transitively reached rdeps — the progress receiver's Invalidated hook is
// wired through it.
func (s *Store) MarkDirty(k key.Key, cause DirtyCause, onDirty func(key.Key, State)) {
	visited := make(map[key.Key]bool)
	queue := []key.Key{k}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		s.mapMu.RLock()
		n, ok := s.nodes[cur]
		s.mapMu.RUnlock()
		if !ok {
			continue
		}

		n.mu.Lock()
		var rdeps []key.Key
		transitioned := false
		switch n.state {
		case Done, Error:
			n.state = Dirty
			transitioned = true
			for r := range n.rdeps {
				rdeps = append(rdeps, r)
			}
		case Dirty, Absent:
			// Already stale or never built; nothing downstream to propagate
			// that hasn't already been propagated when this node last left
			// Done/Error.
		case Building:
			// A build in flight for a node outside the one evaluation window
			// this store's single-evaluator-at-a-time discipline expects;
			// the node is left Building and nothing is propagated to its
			// rdeps.
		}
		n.mu.Unlock()

		_ = cause
		if transitioned && onDirty != nil {
			onDirty(cur, Dirty)
		}
		queue = append(queue, rdeps ...)
	}
}

// InvalidateErrors marks every node currently in Error state Dirty, so the
// next evaluation retries them.
func (s *Store) InvalidateErrors(onDirty func(key.Key, State)) {
	s.mapMu.RLock()
	keys := make([]key.Key, 0, len(s.nodes))
	for k := range s.nodes {
		keys = append(keys, k)
	}
	s.mapMu.RUnlock()

	for _, k := range keys {
		s.mapMu.RLock()
		n := s.nodes[k]
		s.mapMu.RUnlock()

		n.mu.Lock()
		isError := n.state == Error
		n.mu.Unlock()

		if isError {
			s.MarkDirty(k, Injected, onDirty)
		}
	}
}

// InjectDone forces k directly to Done with the given value and no
// dependencies, bypassing any registered Func — used for build-variable
// injection and embedded-artifact injection.
//
// An injection is an unconditional declaration of a new generation of k's
// value, not a diffed update: every existing rdep of k is marked Dirty
// (cause DepChanged) regardless of whether the new value differs from the
// old one, and k itself is flagged ViaInject so that a revalidating direct
// consumer never prunes its own re-invocation against it (only consumers
// one hop further away — comparing a Func-produced value's fingerprint —
// are eligible for the change-pruning fast path. onDirty mirrors
// MarkDirty's progress hook.
func (s *Store) InjectDone(k key.Key, value key.Value, onDirty func(key.Key, State)) {
	n := s.lookupOrCreate(k)
	n.mu.Lock()
	rdeps := make([]key.Key, 0, len(n.rdeps))
	for r := range n.rdeps {
		rdeps = append(rdeps, r)
	}
	n.value = value
	n.err = nil
	n.cycle = nil
	n.deps = nil
	n.sigs = nil
	n.state = Done
	n.viaInject = true
	n.version = s.Version()
	n.mu.Unlock()

	for _, r := range rdeps {
		s.MarkDirty(r, DepChanged, onDirty)
	}
}

// Delete evicts every node for which predicate returns true, removing this
// node as an rdep of whatever it depended on. Dependents of a deleted node
// are left as-is: they will see a freshly Absent node the next time they
// request it, which is indistinguishable from never having built it.
func (s *Store) Delete(predicate func(key.Key, Snapshot) bool) int {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	var toDelete []key.Key
	for k, n := range s.nodes {
		n.mu.Lock()
		snap := n.snapshot()
		n.mu.Unlock()
		if predicate(k, snap) {
			toDelete = append(toDelete, k)
		}
	}

	for _, k := range toDelete {
		n := s.nodes[k]
		n.mu.Lock()
		deps := n.deps
		n.mu.Unlock()

		for _, dep := range deps {
			if dn, ok := s.nodes[dep]; ok {
				dn.mu.Lock()
				delete(dn.rdeps, k)
				dn.mu.Unlock()
			}
		}
		delete(s.nodes, k)
	}
	return len(toDelete)
}

// DepFingerprints returns the per-dep fingerprints recorded at k's last
// completion (possibly stale now that k is Dirty), used by the evaluator's
// change-pruning step.
func (s *Store) DepFingerprints(k key.Key) map[key.Key]key.Fingerprint {
	s.mapMu.RLock()
	n, ok := s.nodes[k]
	s.mapMu.RUnlock()
	if !ok {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[key.Key]key.Fingerprint, len(n.sigs))
	for k, v := range n.sigs {
		out[k] = v
	}
	return out
}

// ReviveClean marks a Dirty node Done at the current version without
// changing its value, deps, or sigs — the change-pruning fast path: every dep revalidated to the same fingerprint it had before.
func (s *Store) ReviveClean(k key.Key) error {
	n := s.lookupOrCreate(k)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != Dirty && n.state != Building {
		return fmt.Errorf("graphstore: cannot revive %s from state %s", k, n.state)
	}
	n.state = Done
	n.version = s.Version()
	return nil
}

// AllKeys returns every key currently tracked, in map iteration order
// (unsorted).
func (s *Store) AllKeys() []key.Key {
	s.mapMu.RLock()
	defer s.mapMu.RUnlock()
	out := make([]key.Key, 0, len(s.nodes))
	for k := range s.nodes {
		out = append(out, k)
	}
	return out
}

func diffDeps(old, new []key.Key) (removed, added []key.Key) {
	oldSet := make(map[key.Key]bool, len(old))
	for _, k := range old {
		oldSet[k] = true
	}
	newSet := make(map[key.Key]bool, len(new))
	for _, k := range new {
		newSet[k] = true
	}
	for _, k := range old {
		if !newSet[k] {
			removed = append(removed, k)
		}
	}
	for _, k := range new {
		if !oldSet[k] {
			added = append(added, k)
		}
	}
	return removed, added
}
