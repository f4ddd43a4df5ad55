package tmppostgres

// Optional is a configuration field that may or may not be set.
// The zero value is unset.
type Optional[T any] struct {
	value T
	set   bool
}

// Set returns an Optional holding v.
func Set[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Get returns the value and whether it was set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether the field holds a value.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// ValueOr returns the value if set, otherwise def.
func (o Optional[T]) ValueOr(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// Or returns o if it is set, otherwise other. This is the left-biased merge
// every layer field uses.
func (o Optional[T]) Or(other Optional[T]) Optional[T] {
	if o.set {
		return o
	}
	return other
}

// mergeMap unions two maps, keeping a's entry when both have the key.
// An empty side returns the other side unchanged so merging with an empty
// layer is a no-op.
func mergeMap[K comparable, V any](a, b map[K]V) map[K]V {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make(map[K]V, len(a)+len(b))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range a {
		out[k] = v
	}
	return out
}
