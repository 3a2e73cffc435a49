package alloc

import (
	"fmt"

	"github.com/joshuapare/heapkit/heap/region"
	"github.com/joshuapare/heapkit/internal/bounds"
)

// Handle is the address of an allocated block.
type Handle uintptr

// Layout is the (size, alignment) shape of a request. The same Layout must be
// passed back when the block is freed.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// NewLayout returns a validated layout.
func NewLayout(size, align uintptr) (Layout, error) {
	l := Layout{Size: size, Align: align}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks that Align is a non-zero power of two.
func (l Layout) Validate() error {
	if !bounds.IsPowerOfTwo(l.Align) {
		return fmt.Errorf("%w (size=%d, align=%d)", ErrBadLayout, l.Size, l.Align)
	}
	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("{size=%d align=%d}", l.Size, l.Align)
}

// Claimer registers address ranges as available for future requests.
type Claimer interface {
	// Claim hands r to the engine. r must not overlap any earlier claim.
	Claim(r region.Region) error
}

// OOMHandler is invoked by an engine that cannot satisfy a request from the
// memory it has already claimed.
//
// Returning nil tells the engine to retry the request; any error aborts it.
// The engine calls the handler again for as long as it keeps returning nil
// and the request still does not fit, so a handler must eventually either
// claim enough memory or return an error.
type OOMHandler interface {
	HandleOOM(c Claimer, l Layout) error
}

// OOMHandlerFunc adapts a function to OOMHandler.
type OOMHandlerFunc func(c Claimer, l Layout) error

// HandleOOM calls f(c, l).
func (f OOMHandlerFunc) HandleOOM(c Claimer, l Layout) error {
	return f(c, l)
}

// Engine is the block manager underneath the heap facade.
//
// Implementations:
//   - FirstFit: address-ordered free list with coalescing
//   - Bump: append-only bump pointer, Free only records dead bytes
//
// Any conforming engine can back heap.Allocator.
type Engine interface {
	Claimer

	// Alloc returns a block satisfying l, invoking the OOM handler as needed.
	Alloc(l Layout) (Handle, error)

	// Free returns a block obtained from Alloc with the identical layout.
	// Mismatched layouts are not detected.
	Free(h Handle, l Layout)

	// SetOOMHandler installs the out-of-memory hook. nil disables growth.
	SetOOMHandler(h OOMHandler)
}

// Stats holds engine counters for testing and instrumentation.
type Stats struct {
	AllocCalls       int   // Total Alloc() calls
	AllocFastPath    int   // Allocations served without the OOM handler
	AllocSlowPath    int   // Allocations that needed at least one OOM round
	AllocFailed      int   // Allocations that returned an error
	OOMCalls         int   // OOM handler invocations
	FreeCalls        int   // Total Free() calls
	ClaimCalls       int   // Successful Claim() calls
	ClaimBytes       int64 // Bytes handed over via Claim()
	BytesAllocated   int64 // Bytes carved out, after granule rounding
	BytesFreed       int64 // Bytes returned, after granule rounding
	SplitCount       int   // Free blocks split by an allocation
	CoalesceForward  int   // Merges with the following free block
	CoalesceBackward int   // Merges with the preceding free block
}
