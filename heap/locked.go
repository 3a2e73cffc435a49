package heap

import (
	"sync"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/region"
)

// Locked serialises every operation on an Allocator behind a mutex.
// Growth runs inside Alloc while the lock is held, so it is serialised too.
type Locked struct {
	mu sync.Mutex
	a  *Allocator
}

// NewLocked wraps a. The caller must not use a directly afterwards.
func NewLocked(a *Allocator) *Locked {
	return &Locked{a: a}
}

// Init calls Allocator.Init under the lock.
func (l *Locked) Init(start, size uintptr) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Init(start, size)
}

// AddMemory calls Allocator.AddMemory under the lock.
func (l *Locked) AddMemory(start, size uintptr) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.AddMemory(start, size)
}

// Alloc calls Allocator.Alloc under the lock.
func (l *Locked) Alloc(layout alloc.Layout) (alloc.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Alloc(layout)
}

// Dealloc calls Allocator.Dealloc under the lock.
func (l *Locked) Dealloc(h alloc.Handle, layout alloc.Layout) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.a.Dealloc(h, layout)
}

// AvailableBytes reads the available counter under the lock.
func (l *Locked) AvailableBytes() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.AvailableBytes()
}

// TotalBytes reads the total counter under the lock.
func (l *Locked) TotalBytes() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.TotalBytes()
}

// UsedBytes reads the derived used count under the lock.
func (l *Locked) UsedBytes() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.UsedBytes()
}

// Region returns the growth region under the lock.
func (l *Locked) Region() region.Region {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Region()
}

// Stats returns a snapshot of the facade counters under the lock.
func (l *Locked) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Stats()
}

// Snapshot reads all counters in one critical section, so the values are
// mutually consistent.
func (l *Locked) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Snapshot()
}

// Do runs fn with exclusive access to the underlying allocator, for
// sequences of operations that must not interleave with other callers.
func (l *Locked) Do(fn func(a *Allocator)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.a)
}
