package key

// Value is the result of a successful evaluation of a Key.
//
// It is a thin wrapper around `any` rather than a family-matched tagged
// union in the Go type system: the evaluator never needs to switch on value
// shape, only the family-specific functions that produced and consume it do.
// Immutable once produced; evaluator functions must not mutate a Value they
// received from the environment.
type Value struct {
	family Family
	data any
}

// NewValue wraps data produced for the given family.
func NewValue(family Family, data any) Value {
	return Value{family: family, data: data}
}

// Family reports which family produced this value.
func (v Value) Family() Family { return v.family }

// Data returns the family-specific payload. Callers that know the family
// (because they requested a specific Key) type-assert directly.
func (v Value) Data() any { return v.data }
