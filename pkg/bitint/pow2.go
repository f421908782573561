/*
Package bitint provides the power-of-two helpers used to size FFT
workspaces. The analyzer only accepts power-of-two transform sizes, and
user supplied sizes (flags, config files) are rounded up with
NextPowerOfTwo before they reach it.

All functions are allocation free and constant time, so they are safe to
call from the consumer loop.

	size := bitint.NextPowerOfTwo(6000) // 8192
	ok := bitint.IsPowerOfTwo(size)     // true
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Values <= 0
// return 1. The subtraction keeps exact powers of two unchanged:
//
//	Input  Output
//	4      4
//	5      8
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// ClampPowerOfTwo rounds size up to a power of two and clamps it into
// [lo, hi]. lo and hi are expected to be powers of two themselves.
func ClampPowerOfTwo(size, lo, hi int) int {
	n := NextPowerOfTwo(size)
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Log2 returns the base-2 logarithm of a power of two, or -1 when n is
// not one.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
