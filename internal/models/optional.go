package models

// Optional distinguishes "not provided" from a provided zero value
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some wraps a provided value
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// FromPtr treats nil as "not provided"
func FromPtr[T any](v *T) Optional[T] {
	if v == nil {
		return Optional[T]{}
	}
	return Some(*v)
}
