// Package key defines the tagged-union identity of memoized computations.
//
// A Key names one family (FileState, Package, ConfiguredTarget,...) plus a
// family-specific payload. Keys are immutable, structurally comparable, and
// totally orderable so that error paths and cycle reports can iterate them
// deterministically.
package key

import "fmt"

// Family is the closed set of key families this engine knows about.
//
// New families are added here, never by growing an interface hierarchy —
// see the "dynamic dispatch over key families" design note: the registry
// maps a Family to one evaluator function.
type Family string

const (
	BuildVariable Family = "BuildVariable"
	FileState Family = "FileState"
	DirectoryListing Family = "DirectoryListing"
	Package Family = "Package"
	ConfiguredTarget Family = "ConfiguredTarget"
	ActionExecution Family = "ActionExecution"
	ConfigurationCollection Family = "ConfigurationCollection"
	TargetPattern Family = "TargetPattern"
)

// Key is the identity of one memoized computation.
//
// Payload must be comparable (usable as a map key) so that Key itself is
// comparable and can be used directly as the graph store's map key.
type Key struct {
	family Family
	payload any
}

// New constructs a Key. payload must be a comparable value (string, a
// comparable struct, etc.) — this is a caller contract, not enforced by the
// type system: equality and hashing are purely structural.
func New(family Family, payload any) Key {
	return Key{family: family, payload: payload}
}

// Family returns the key's family tag.
func (k Key) Family() Family { return k.family }

// Payload returns the family-specific payload.
func (k Key) Payload() any { return k.payload }

// String renders a stable, human-readable identity, used in error messages,
// cycle reports, and deterministic test output.
func (k Key) String() string {
	return fmt.Sprintf("%s(%v)", k.family, k.payload)
}

// Less gives a total order over keys for deterministic iteration in error
// and cycle-reporting paths. Family sorts first, then the string rendering
// of the payload — sufficient because payloads here are small comparable
// values, not content that needs a custom comparator.
func Less(a, b Key) bool {
	if a.family != b.family {
		return a.family < b.family
	}
	return fmt.Sprintf("%v", a.payload) < fmt.Sprintf("%v", b.payload)
}
