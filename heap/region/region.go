// Package region describes contiguous claimed address ranges.
//
// A Region is a plain value: every operation returns a new Region and none
// mutates the receiver. Two Regions are equal (==) iff their base and size
// match, which the growth policy relies on to detect that a proposed
// enlargement produced nothing new.
package region

import (
	"errors"
	"fmt"

	"github.com/joshuapare/heapkit/internal/bounds"
)

// ErrOverflow indicates that base+size does not fit in the address space.
var ErrOverflow = errors.New("region: base+size overflows the address space")

// Region is the half-open address range [Base, Base+Size).
type Region struct {
	Base uintptr
	Size uintptr
}

// New returns the region [base, base+size).
func New(base, size uintptr) (Region, error) {
	if _, ok := bounds.AddOverflowSafe(base, size); !ok {
		return Region{}, fmt.Errorf("%w (base=%#x, size=%#x)", ErrOverflow, base, size)
	}
	return Region{Base: base, Size: size}, nil
}

// FromBounds returns the region [base, end). An end below base yields the
// empty region at base.
func FromBounds(base, end uintptr) Region {
	if end < base {
		return Region{Base: base}
	}
	return Region{Base: base, Size: end - base}
}

// End returns the exclusive upper bound.
func (r Region) End() uintptr {
	return r.Base + r.Size
}

// IsEmpty reports whether the region holds no bytes.
func (r Region) IsEmpty() bool {
	return r.Size == 0
}

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Base && addr-r.Base < r.Size
}

// ContainsRegion reports whether o lies entirely inside r.
// The empty region is contained in any region whose bounds include its base.
func (r Region) ContainsRegion(o Region) bool {
	return o.Base >= r.Base && o.End() <= r.End()
}

// Overlaps reports whether r and o share at least one byte.
func (r Region) Overlaps(o Region) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.Base < o.End() && o.Base < r.End()
}

// Extend returns r enlarged downward by low and upward by high bytes.
// Both ends saturate at the limits of the address space instead of wrapping.
func (r Region) Extend(low, high uintptr) Region {
	return FromBounds(
		bounds.SubSaturating(r.Base, low),
		bounds.AddSaturating(r.End(), high),
	)
}

// ClipTo returns r with its upper bound clamped to limit.
// A region lying entirely above limit collapses to the empty region at limit.
func (r Region) ClipTo(limit uintptr) Region {
	return FromBounds(min(r.Base, limit), min(r.End(), limit))
}

// ClipFrom returns r with its lower bound clamped to floor.
// A region lying entirely below floor collapses to the empty region at floor.
func (r Region) ClipFrom(floor uintptr) Region {
	return FromBounds(max(r.Base, floor), max(r.End(), floor))
}

// String renders the region as a half-open hex interval.
func (r Region) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Base, r.End())
}
