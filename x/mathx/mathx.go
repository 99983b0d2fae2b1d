package mathx

import "golang.org/x/exp/constraints"

// Clamp pins v into [lo, hi]. Reversed bounds are tolerated and swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if lo > hi {
		lo, hi = hi, lo
	}
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// SubFloor returns v-d, never going below floor. Underflow-safe for
// unsigned T: if v is already at or below floor, floor is returned.
func SubFloor[T constraints.Unsigned](v, d, floor T) T {
	if v <= floor {
		return floor
	}
	if v-floor <= d {
		return floor
	}
	return v - d
}

// AddCap returns v+d, never exceeding cap. Overflow-safe for unsigned T.
func AddCap[T constraints.Unsigned](v, d, cap T) T {
	if v >= cap {
		return cap
	}
	if cap-v <= d {
		return cap
	}
	return v + d
}

// RoundDiv divides a by b rounding half up. b == 0 returns 0 so callers
// on the tick path never divide-trap on a bad config value.
func RoundDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}
