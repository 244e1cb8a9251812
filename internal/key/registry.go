package key

import "fmt"

// Registry is a configuration-time mapping from Family to the one Func that
// knows how to evaluate keys of that family. It is built
// once via Register calls and treated as read-only by the evaluator.
type Registry struct {
	funcs map[Family]Func
	fingerprints map[Family]FingerprintFunc
}

// NewRegistry returns an empty Registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[Family]Func),
		fingerprints: make(map[Family]FingerprintFunc),
	}
}

// Register associates fn with family. Registering the same family twice is
// a construction-time programming error, not a runtime condition — it
// panics rather than returning an error, since invalid static wiring
// should never reach production code paths.
func (r *Registry) Register(family Family, fn Func) *Registry {
	if fn == nil {
		panic(fmt.Sprintf("key: nil Func registered for family %s", family))
	}
	if _, exists := r.funcs[family]; exists {
		panic(fmt.Sprintf("key: family %s registered twice", family))
	}
	r.funcs[family] = fn
	return r
}

// Lookup returns the Func registered for family, if any.
func (r *Registry) Lookup(family Family) (Func, bool) {
	fn, ok := r.funcs[family]
	return fn, ok
}

// RegisterFingerprint associates a FingerprintFunc with family. Optional —
// see GenericFingerprint for the fallback behavior.
func (r *Registry) RegisterFingerprint(family Family, fn FingerprintFunc) *Registry {
	r.fingerprints[family] = fn
	return r
}

// Fingerprint computes v's fingerprint using family's registered
// FingerprintFunc, falling back to GenericFingerprint.
func (r *Registry) Fingerprint(v Value) Fingerprint {
	if fn, ok := r.fingerprints[v.Family()]; ok {
		return fn(v)
	}
	return GenericFingerprint(v)
}
