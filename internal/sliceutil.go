// internal/sliceutil.go
//
// Generic slice helpers. None of them modify their input.
// ----------------------------------------------------------------------------

package internal

import "golang.org/x/exp/constraints"

// Scalar is the set of element types a filter sequence may hold.
type Scalar interface {
	~string | constraints.Integer | constraints.Float
}

// ---------------------------------------------------------------------
// Basic predicates / membership
// ---------------------------------------------------------------------

// Contains reports whether v ∈ xs (O(n)).
func Contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------
// Transformations
// ---------------------------------------------------------------------

// Map applies f to each element and returns a new slice.
func Map[A any, B any](xs []A, f func(A) B) []B {
	out := make([]B, len(xs))
	for i, x := range xs {
		out[i] = f(x)
	}
	return out
}

// Filter keeps values where pred(x) == true.
func Filter[T any](xs []T, pred func(T) bool) []T {
	out := make([]T, 0, len(xs))
	for _, x := range xs {
		if pred(x) {
			out = append(out, x)
		}
	}
	return out
}

// Boxed converts a typed scalar slice into []any, preserving order.
func Boxed[T Scalar](xs []T) []any {
	return Map(xs, func(x T) any { return x })
}
