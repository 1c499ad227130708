package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// DivCeil returns ceil(n / d). d must not be zero.
func DivCeil[T constraints.Unsigned](n, d T) T {
	return (n + d - 1) / d
}

// NextPowerOfTwo returns the smallest power of two >= v, and 1 for zero.
func NextPowerOfTwo[T constraints.Unsigned](v T) T {
	p := T(1)
	for p < v && p != 0 {
		p <<= 1
	}
	return p
}
