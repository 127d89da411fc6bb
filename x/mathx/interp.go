package mathx

import "golang.org/x/exp/constraints"

// Interp maps x from [x0, x1] onto [y0, y1] with truncating integer
// division. x outside the input range extrapolates; x0 == x1 yields y0.
func Interp[T constraints.Signed](x, x0, x1, y0, y1 T) T {
	if x1 == x0 {
		return y0
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}
