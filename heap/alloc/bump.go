package alloc

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap/region"
	"github.com/joshuapare/heapkit/internal/bounds"
)

// Bump is an append-only engine using a single bump pointer.
//
// Key characteristics:
//   - O(1) allocation: align the pointer, advance it, done
//   - Zero per-block metadata: no free lists, no indexes
//   - Free() never makes memory reusable; freed bytes are dead space forever
//   - A claim that starts exactly at the end of the active span extends it,
//     so doubling growth keeps bumping through one contiguous range
//   - Any other claim becomes the new active span and the unused tail of the
//     old span is written off as dead space
//
// Bump suits short-lived heaps that are discarded wholesale.
type Bump struct {
	// active is the span the bump pointer currently walks.
	active region.Region

	// next is the bump pointer: the address where the next block starts.
	next uintptr

	// claims holds every claimed range for overlap checks.
	claims []region.Region

	// dead counts bytes that can never be handed out again: freed blocks,
	// alignment padding and abandoned span tails.
	dead uintptr

	oom   OOMHandler
	stats Stats
}

// NewBump creates an empty bump engine.
func NewBump() *Bump {
	return &Bump{}
}

// SetOOMHandler installs the out-of-memory hook.
func (b *Bump) SetOOMHandler(h OOMHandler) {
	b.oom = h
}

// Claim registers r. A claim contiguous with the active span extends it.
func (b *Bump) Claim(r region.Region) error {
	if err := checkClaim(r); err != nil {
		return err
	}
	for _, c := range b.claims {
		if c.Overlaps(r) {
			return fmt.Errorf("%w: %s intersects %s", ErrOverlap, r, c)
		}
	}
	b.claims = append(b.claims, r)

	if !b.active.IsEmpty() && r.Base == b.active.End() {
		b.active = region.FromBounds(b.active.Base, r.End())
	} else {
		// Abandon the rest of the old span
		b.dead += b.active.End() - b.next
		b.active = r
		b.next = r.Base
	}

	b.stats.ClaimCalls++
	b.stats.ClaimBytes += int64(r.Size)
	return nil
}

// Alloc advances the bump pointer past an aligned block of l.Size bytes.
func (b *Bump) Alloc(l Layout) (Handle, error) {
	b.stats.AllocCalls++

	need, align, err := blockShape(l)
	if err != nil {
		b.stats.AllocFailed++
		return 0, err
	}

	grew := false
	for {
		if h, ok := b.bump(need, align); ok {
			if grew {
				b.stats.AllocSlowPath++
			} else {
				b.stats.AllocFastPath++
			}
			return h, nil
		}

		if b.oom == nil {
			b.stats.AllocFailed++
			return 0, ErrNoSpace
		}
		b.stats.OOMCalls++
		if oomErr := b.oom.HandleOOM(b, l); oomErr != nil {
			b.stats.AllocFailed++
			return 0, fmt.Errorf("%w: %w", ErrNoSpace, oomErr)
		}
		grew = true
	}
}

// Free records the block as dead space. The bytes are never reused.
func (b *Bump) Free(_ Handle, l Layout) {
	b.stats.FreeCalls++
	need, ok := bounds.AlignUp(max(l.Size, 1), Granule)
	if !ok {
		return
	}
	b.dead += need
	b.stats.BytesFreed += int64(need)
}

// Remaining returns the bytes left between the bump pointer and the end of
// the active span.
func (b *Bump) Remaining() uintptr {
	return b.active.End() - b.next
}

// DeadBytes returns the bytes that can no longer be allocated.
func (b *Bump) DeadBytes() uintptr {
	return b.dead
}

// Active returns the span the bump pointer walks.
func (b *Bump) Active() region.Region {
	return b.active
}

// Stats returns a snapshot of the engine counters.
func (b *Bump) Stats() Stats {
	return b.stats
}

func (b *Bump) bump(need, align uintptr) (Handle, bool) {
	if b.active.IsEmpty() {
		return 0, false
	}
	start, ok := bounds.AlignUp(b.next, align)
	if !ok {
		return 0, false
	}
	end, ok := bounds.AddOverflowSafe(start, need)
	if !ok || end > b.active.End() {
		return 0, false
	}

	b.dead += start - b.next // alignment padding
	b.next = end
	b.stats.BytesAllocated += int64(need)
	return Handle(start), true
}

// Compile-time interface check
var _ Engine = (*Bump)(nil)
