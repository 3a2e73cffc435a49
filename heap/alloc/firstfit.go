package alloc

import (
	"fmt"
	"os"

	"github.com/google/btree"

	"github.com/joshuapare/heapkit/heap/region"
	"github.com/joshuapare/heapkit/internal/bounds"
)

// Runtime debug flag for OOM logging - controlled by HEAPKIT_LOG_ALLOC env var.
var logAlloc = os.Getenv("HEAPKIT_LOG_ALLOC") != ""

const (
	// Granule is the engine-internal size and alignment quantum. Block sizes
	// are rounded up to a multiple of Granule, so a 100-byte request consumes
	// 104 bytes of claimed memory.
	Granule = 8

	// MinClaimSize is the smallest region an engine accepts.
	MinClaimSize = 2 * Granule

	// btreeDegree keeps nodes small; free lists rarely exceed a few hundred blocks.
	btreeDegree = 8
)

// FirstFit is an address-ordered first-fit engine.
//   - Free blocks live in a B-tree keyed on base address
//   - Alloc scans from the lowest address and carves the first block that fits
//   - Free and Claim coalesce with touching neighbours
//   - Claimed ranges are tracked separately to reject overlapping claims
//
// Block metadata is kept out of band, so claimed memory is never written.
type FirstFit struct {
	free      *btree.BTreeG[region.Region]
	claims    *btree.BTreeG[region.Region]
	freeBytes uintptr

	oom   OOMHandler
	stats Stats
}

func byBase(a, b region.Region) bool { return a.Base < b.Base }

// NewFirstFit creates an empty engine. It owns no memory until Claim is called.
func NewFirstFit() *FirstFit {
	return &FirstFit{
		free:   btree.NewG(btreeDegree, byBase),
		claims: btree.NewG(btreeDegree, byBase),
	}
}

// SetOOMHandler installs the out-of-memory hook.
func (ff *FirstFit) SetOOMHandler(h OOMHandler) {
	ff.oom = h
}

// Claim adds r to the free list, merging it with adjacent free blocks.
func (ff *FirstFit) Claim(r region.Region) error {
	if err := checkClaim(r); err != nil {
		return err
	}
	if c, ok := overlappingClaim(ff.claims, r); ok {
		return fmt.Errorf("%w: %s intersects %s", ErrOverlap, r, c)
	}

	coalesce(ff.claims, r)
	ff.release(r)

	ff.stats.ClaimCalls++
	ff.stats.ClaimBytes += int64(r.Size)
	return nil
}

// Alloc carves a block satisfying l from the lowest-addressed free block that
// fits. When none fits, the OOM handler is invoked and the search repeats.
func (ff *FirstFit) Alloc(l Layout) (Handle, error) {
	ff.stats.AllocCalls++

	need, align, err := blockShape(l)
	if err != nil {
		ff.stats.AllocFailed++
		return 0, err
	}

	grew := false
	for {
		if h, ok := ff.take(need, align); ok {
			if grew {
				ff.stats.AllocSlowPath++
			} else {
				ff.stats.AllocFastPath++
			}
			return h, nil
		}

		if ff.oom == nil {
			ff.stats.AllocFailed++
			return 0, ErrNoSpace
		}

		if logAlloc {
			fmt.Fprintf(
				os.Stderr,
				"[ALLOC] NEED GROW: need=%d align=%d | free: %d blocks, %d bytes\n",
				need,
				align,
				ff.free.Len(),
				ff.freeBytes,
			)
		}

		ff.stats.OOMCalls++
		if oomErr := ff.oom.HandleOOM(ff, l); oomErr != nil {
			ff.stats.AllocFailed++
			return 0, fmt.Errorf("%w: %w", ErrNoSpace, oomErr)
		}
		grew = true
	}
}

// Free returns the block at h to the free list and coalesces it.
func (ff *FirstFit) Free(h Handle, l Layout) {
	ff.stats.FreeCalls++

	need, ok := bounds.AlignUp(max(l.Size, 1), Granule)
	if !ok {
		return
	}
	blk := region.FromBounds(uintptr(h), bounds.AddSaturating(uintptr(h), need))
	ff.stats.BytesFreed += int64(blk.Size)
	ff.release(blk)
}

// FreeBytes returns the bytes currently on the free list. Unlike the heap
// facade's available count this includes granule rounding.
func (ff *FirstFit) FreeBytes() uintptr {
	return ff.freeBytes
}

// FreeBlocks returns the number of free blocks.
func (ff *FirstFit) FreeBlocks() int {
	return ff.free.Len()
}

// Claims returns the claimed ranges in address order, adjacent claims merged.
func (ff *FirstFit) Claims() []region.Region {
	out := make([]region.Region, 0, ff.claims.Len())
	ff.claims.Ascend(func(r region.Region) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Stats returns a snapshot of the engine counters.
func (ff *FirstFit) Stats() Stats {
	return ff.stats
}

// ============================================================================
// Internal helpers
// ============================================================================

// take removes [start, start+need) from the first free block that can hold
// it at the requested alignment. Leading and trailing slack stays free.
func (ff *FirstFit) take(need, align uintptr) (Handle, bool) {
	var (
		blk   region.Region
		start uintptr
		found bool
	)
	ff.free.Ascend(func(b region.Region) bool {
		s, ok := bounds.AlignUp(b.Base, align)
		if !ok {
			return false // every later block wraps as well
		}
		end, ok := bounds.AddOverflowSafe(s, need)
		if !ok {
			return false
		}
		if end <= b.End() {
			blk, start, found = b, s, true
			return false
		}
		return true
	})
	if !found {
		return 0, false
	}

	ff.remove(blk)
	head := region.FromBounds(blk.Base, start)
	tail := region.FromBounds(start+need, blk.End())
	if !head.IsEmpty() {
		ff.put(head)
	}
	if !tail.IsEmpty() {
		ff.put(tail)
	}
	if !head.IsEmpty() || !tail.IsEmpty() {
		ff.stats.SplitCount++
	}

	ff.stats.BytesAllocated += int64(need)
	return Handle(start), true
}

// release inserts r into the free list, absorbing touching neighbours.
func (ff *FirstFit) release(r region.Region) {
	merged, absorbed := coalesce(ff.free, r)
	for _, a := range absorbed {
		ff.freeBytes -= a.Size
		if a.Base < r.Base {
			ff.stats.CoalesceBackward++
		} else if a.Base > r.Base {
			ff.stats.CoalesceForward++
		}
	}
	ff.freeBytes += merged.Size
}

func (ff *FirstFit) put(r region.Region) {
	if old, replaced := ff.free.ReplaceOrInsert(r); replaced {
		ff.freeBytes -= old.Size
	}
	ff.freeBytes += r.Size
}

func (ff *FirstFit) remove(r region.Region) {
	if old, ok := ff.free.Delete(r); ok {
		ff.freeBytes -= old.Size
	}
}

// coalesce inserts r into t after merging it with the neighbours whose
// bounds touch it. It returns the inserted region and every item it removed.
func coalesce(t *btree.BTreeG[region.Region], r region.Region) (region.Region, []region.Region) {
	var (
		prev, next         region.Region
		havePrev, haveNext bool
		absorbed           []region.Region
	)
	t.DescendLessOrEqual(r, func(p region.Region) bool {
		prev, havePrev = p, true
		return false
	})
	t.AscendGreaterOrEqual(r, func(n region.Region) bool {
		next, haveNext = n, true
		return false
	})

	merged := r
	if havePrev && prev.Base < r.Base && prev.End() == r.Base {
		t.Delete(prev)
		absorbed = append(absorbed, prev)
		merged = region.FromBounds(prev.Base, merged.End())
	}
	if haveNext && next.Base > r.Base && next.Base == r.End() {
		t.Delete(next)
		absorbed = append(absorbed, next)
		merged = region.FromBounds(merged.Base, next.End())
	}

	if old, replaced := t.ReplaceOrInsert(merged); replaced {
		absorbed = append(absorbed, old)
	}
	return merged, absorbed
}

// overlappingClaim returns the claim in t intersecting r, if any. Claims in t
// never overlap each other, so only the two neighbours of r need checking.
func overlappingClaim(t *btree.BTreeG[region.Region], r region.Region) (region.Region, bool) {
	var hit region.Region
	found := false
	t.DescendLessOrEqual(r, func(p region.Region) bool {
		if p.Overlaps(r) {
			hit, found = p, true
		}
		return false
	})
	if found {
		return hit, true
	}
	t.AscendGreaterOrEqual(r, func(n region.Region) bool {
		if n.Overlaps(r) {
			hit, found = n, true
		}
		return false
	})
	return hit, found
}

// checkClaim validates the shape of a region handed to Claim.
func checkClaim(r region.Region) error {
	if _, ok := bounds.AddOverflowSafe(r.Base, r.Size); !ok {
		return fmt.Errorf("alloc: claim base=%#x size=%#x: %w", r.Base, r.Size, region.ErrOverflow)
	}
	if r.Size < MinClaimSize {
		return fmt.Errorf("%w: %s holds %d bytes, need at least %d",
			ErrClaimTooSmall, r, r.Size, MinClaimSize)
	}
	return nil
}

// blockShape returns the rounded block size and effective alignment for l.
// Zero-sized requests still consume one granule so every handle is unique.
func blockShape(l Layout) (need, align uintptr, err error) {
	if err = l.Validate(); err != nil {
		return 0, 0, err
	}
	need, ok := bounds.AlignUp(max(l.Size, 1), Granule)
	if !ok {
		return 0, 0, fmt.Errorf("%w: size %d overflows the address space", ErrNoSpace, l.Size)
	}
	return need, max(l.Align, Granule), nil
}

// Compile-time interface check
var _ Engine = (*FirstFit)(nil)
