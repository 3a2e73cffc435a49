// Package alloc provides the block engines underneath the heap facade.
//
// # Overview
//
// An engine manages claimed address ranges and carves blocks out of them.
// It never dereferences an address: blocks are plain uintptr handles and all
// bookkeeping lives outside the claimed memory, so the same engine can manage
// mapped pages, device windows or purely synthetic address spaces.
//
// # Engine Interface
//
// The core abstraction is the Engine interface, which supports:
//
//   - Claim(r): Register a range as available for future requests
//   - Alloc(layout): Carve a block of the given size and alignment
//   - Free(handle, layout): Return a block; the layout must match Alloc
//   - SetOOMHandler(h): Install the hook invoked when a request does not fit
//
// # Implementations
//
// FirstFit: General-purpose engine
//
//   - Address-ordered free list in a B-tree
//   - Lowest-address block that fits wins
//   - Coalescing of touching free blocks on Free and Claim
//   - Overlapping claims rejected with ErrOverlap
//
// Bump: Append-only engine
//
//   - Single bump pointer, O(1) allocation
//   - Free() only records dead bytes
//   - Contiguous claims extend the active span
//
// # Out-of-Memory Handling
//
// When no claimed memory can satisfy a request the engine calls
// OOMHandler.HandleOOM with itself as the Claimer and the failing layout.
// A nil return means "retry": the engine searches again and, if the request
// still does not fit, calls the handler again. Any error aborts the request
// and is wrapped in ErrNoSpace:
//
//	ff := alloc.NewFirstFit()
//	ff.SetOOMHandler(alloc.OOMHandlerFunc(func(c alloc.Claimer, l alloc.Layout) error {
//	    return c.Claim(nextRegion())
//	}))
//
// # Granule
//
// Block sizes are rounded up to Granule (8 bytes) and blocks are at least
// Granule-aligned. Zero-sized requests consume one granule.
//
// # Thread Safety
//
// Engine instances are not thread-safe. Callers must synchronize access
// externally, e.g. through heap.Locked.
package alloc
