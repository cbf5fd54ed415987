// Package circular provides index arithmetic for closed, periodic sequences
// such as contour borders and the profiles derived from them.
package circular

import "math"

// Wrap maps i onto [0, n). Negative indices count back from the end.
// n must be positive.
func Wrap(i, n int) int {
	if i < 0 {
		return Wrap(n+i%n, n)
	}
	if i < n {
		return i
	}
	return i % n
}

// WrapFloat maps a fractional index onto [0, n). Used when interpolating
// between border points.
func WrapFloat(f float64, n int) float64 {
	length := float64(n)
	if f < 0 {
		return WrapFloat(length+math.Mod(f, length), n)
	}
	if f < length {
		return f
	}
	return math.Mod(f, length)
}

// Distance returns the forward distance from a to b around a ring of length n.
func Distance(a, b, n int) int {
	return Wrap(b-a, n)
}
