package alloc

import "errors"

var (
	// ErrNoSpace indicates that no free block large enough was found and the
	// OOM handler did not (or could not) provide more memory.
	ErrNoSpace = errors.New("alloc: no free block large enough")

	// ErrBadLayout indicates a layout whose alignment is not a power of two.
	ErrBadLayout = errors.New("alloc: alignment must be a non-zero power of two")

	// ErrClaimTooSmall indicates a region below MinClaimSize.
	ErrClaimTooSmall = errors.New("alloc: region too small to claim")

	// ErrOverlap indicates a claim that intersects an earlier claim.
	ErrOverlap = errors.New("alloc: region overlaps an existing claim")
)
