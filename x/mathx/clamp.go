package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. Callers pass lo <= hi.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	return Min(max(v, lo), hi)
}

// Min saturates a at b.
func Min[T constraints.Ordered](a, b T) T {
	if b < a {
		return b
	}
	return a
}
