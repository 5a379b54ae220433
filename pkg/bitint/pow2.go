/*
Package bitint provides the power-of-two helpers used to validate and
suggest analysis block sizes.

Usage:

	// Suggest a valid block size for a rejected value
	hint := bitint.NextPowerOfTwo(1000) // Returns 1024

	// Validate a configured block size
	ok := bitint.IsPowerOfTwo(blockSize)

NextPowerOfTwo relies on bits.Len of (size-1): subtracting one first keeps
exact powers of two unchanged (8-1 = 0111 has length 3, 1<<3 = 8) while every
other value is rounded up to the next power.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of 2 <= size, or 0 when size < 1.
func PrevPowerOfTwo(size int) int {
	if size < 1 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// Powers of two have a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
