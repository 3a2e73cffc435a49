// Package heap provides a self-extending byte allocator.
//
// An Allocator sits on top of an alloc.Engine. It hands requests to the
// engine, keeps a pair of byte counters, and installs itself as the engine's
// out-of-memory handler. When the engine runs dry the allocator asks its
// grow.Policy for more memory. The default policy doubles the initial region
// upward until it reaches a configured address limit.
//
// Basic usage:
//
//	a := heap.New(alloc.NewFirstFit(), heap.WithLimit(0x10_0000))
//	if err := a.Init(0x1000, 0x1000); err != nil {
//	    return err
//	}
//	h, err := a.Alloc(alloc.Layout{Size: 100, Align: 8})
//	if err != nil {
//	    return err // wraps heap.ErrNoMemory
//	}
//	defer a.Dealloc(h, alloc.Layout{Size: 100, Align: 8})
//
// # Counters
//
// TotalBytes is the sum of every successfully claimed region, growth
// included. AvailableBytes is TotalBytes minus the requested sizes of live
// allocations. Because the engine rounds sizes to its granule and may leave
// alignment padding, AvailableBytes can exceed what the engine could really
// hand out.
//
// # Concurrency
//
// Allocator is single-threaded. Locked serialises every call behind a mutex
// and is the type to share between goroutines or to hand to a Collector.
package heap
