// Package arena maps anonymous memory so a heap can hand out real bytes.
//
// The heap itself only deals in addresses. An Arena supplies an address
// range backed by pages and turns handles back into byte slices.
package arena

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/region"
	"github.com/joshuapare/heapkit/internal/bounds"
)

var (
	// ErrClosed indicates use of an arena after Close.
	ErrClosed = errors.New("arena: closed")

	// ErrOutOfRange indicates a handle or length outside the mapping.
	ErrOutOfRange = errors.New("arena: range outside mapping")
)

// Arena is a contiguous block of read/write memory.
type Arena struct {
	data   []byte
	base   uintptr
	unmap  func([]byte) error
	closed bool
}

// Map reserves size bytes. size must be positive.
func Map(size int) (*Arena, error) {
	if size <= 0 {
		return nil, fmt.Errorf("arena: invalid size %d", size)
	}
	data, unmap, err := mapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("arena: map %d bytes: %w", size, err)
	}
	return &Arena{
		data:  data,
		base:  uintptr(unsafe.Pointer(unsafe.SliceData(data))),
		unmap: unmap,
	}, nil
}

// Region returns the mapped address range.
func (a *Arena) Region() region.Region {
	return region.Region{Base: a.base, Size: uintptr(len(a.data))}
}

// Len returns the mapping size in bytes.
func (a *Arena) Len() int {
	return len(a.data)
}

// Bytes returns the n bytes starting at h.
func (a *Arena) Bytes(h alloc.Handle, n uintptr) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if uintptr(h) < a.base {
		return nil, fmt.Errorf("%w: %#x below base %#x", ErrOutOfRange, uintptr(h), a.base)
	}
	b, ok := bounds.Slice(a.data, uintptr(h)-a.base, n)
	if !ok {
		return nil, fmt.Errorf("%w: [%#x +%d) in %s", ErrOutOfRange, uintptr(h), n, a.Region())
	}
	return b, nil
}

// Close releases the mapping. Calling it twice is a no-op.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	data := a.data
	a.data = nil
	return a.unmap(data)
}
