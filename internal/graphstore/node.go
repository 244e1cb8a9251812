package graphstore

import (
	"sort"
	"sync"

	"buildgraph/internal/key"
)

// node is the mutable graph record for one Key. Its fields are guarded by
// mu; Store never mutates a node's fields without holding mu, and never
// holds two node locks at once: Complete() releases this node's lock before
// it locks dep nodes one at a time to update their rdeps, a set mutation
// that does not itself call back into this node.
type node struct {
	mu sync.Mutex

	k key.Key
	state State
	value key.Value
	err error
	deps []key.Key
	rdeps map[key.Key]struct{}
	version uint64
	sigs map[key.Key]key.Fingerprint
	cycle []key.Key // non-nil iff err is a cycle error

	// viaInject is true iff the node's current Done value was set by
	// InjectDone rather than produced by a Func invocation. A revalidating
	// consumer treats such a dep as always-changed: an injection is an
	// external declaration of a new generation of the value, not a diffable
	// content update, so comparing its fingerprint against a prior build
	// would silently defeat the injection.
	viaInject bool
}

func newNode(k key.Key) *node {
	return &node{k: k, state: Absent, rdeps: make(map[key.Key]struct{})}
}

// Snapshot is an immutable, point-in-time copy of a node's externally
// visible fields. Callers never get a live *node — only Snapshot values —
// so that reading a node never races with its mutation.
type Snapshot struct {
	Key key.Key
	State State
	Value key.Value
	Err error
	Deps []key.Key
	RDeps []key.Key
	Version uint64
	Cycle []key.Key
	ViaInject bool
}

func (n *node) snapshot() Snapshot {
	rdeps := make([]key.Key, 0, len(n.rdeps))
	for k := range n.rdeps {
		rdeps = append(rdeps, k)
	}
	sort.Slice(rdeps, func(i, j int) bool { return key.Less(rdeps[i], rdeps[j]) })

	deps := make([]key.Key, len(n.deps))
	copy(deps, n.deps)

	var cycle []key.Key
	if n.cycle != nil {
		cycle = make([]key.Key, len(n.cycle))
		copy(cycle, n.cycle)
	}

	return Snapshot{
		Key: n.k,
		State: n.state,
		Value: n.value,
		Err: n.err,
		Deps: deps,
		RDeps: rdeps,
		Version: n.version,
		Cycle: cycle,
		ViaInject: n.viaInject,
	}
}

// fingerprintOf returns the recorded fingerprint for dep, if any.
func (n *node) fingerprintOf(dep key.Key) (key.Fingerprint, bool) {
	if n.sigs == nil {
		return "", false
	}
	fp, ok := n.sigs[dep]
	return fp, ok
}
