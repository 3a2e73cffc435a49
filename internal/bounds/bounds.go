// Package bounds provides overflow-checked address arithmetic.
//
// Every helper reports ok = false instead of wrapping, so callers that
// compute region ends or aligned block starts can refuse a request rather
// than silently producing an address below the one they started from.
package bounds

import "math"

// MaxAddr is the highest representable address.
const MaxAddr = uintptr(math.MaxUint)

// AddOverflowSafe adds a and b, returning ok = false when the result would wrap.
func AddOverflowSafe(a, b uintptr) (uintptr, bool) {
	if a > MaxAddr-b {
		return 0, false
	}
	return a + b, true
}

// SubSaturating returns a-b, or 0 when b > a.
func SubSaturating(a, b uintptr) uintptr {
	if b > a {
		return 0
	}
	return a - b
}

// AddSaturating returns a+b, or MaxAddr when the sum would wrap.
func AddSaturating(a, b uintptr) uintptr {
	if sum, ok := AddOverflowSafe(a, b); ok {
		return sum
	}
	return MaxAddr
}

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUp rounds n up to the next multiple of align.
// align must be a power of two; ok is false when rounding would wrap.
//
//	AlignUp(1, 8)  = 8
//	AlignUp(8, 8)  = 8
//	AlignUp(9, 16) = 16
func AlignUp(n, align uintptr) (uintptr, bool) {
	if !IsPowerOfTwo(align) {
		return 0, false
	}
	mask := align - 1
	sum, ok := AddOverflowSafe(n, mask)
	if !ok {
		return 0, false
	}
	return sum &^ mask, true
}

// AlignDown rounds n down to a multiple of align. align must be a power of two.
func AlignDown(n, align uintptr) uintptr {
	return n &^ (align - 1)
}

// Slice returns data[off:off+n] when the range fits inside data.
func Slice(data []byte, off, n uintptr) ([]byte, bool) {
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > uintptr(len(data)) {
		return nil, false
	}
	return data[off:end], true
}
