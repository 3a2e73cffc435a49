package heap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/grow"
	"github.com/joshuapare/heapkit/heap/region"
)

var (
	// ErrNoMemory indicates that a request could not be satisfied even after
	// growth was exhausted. Recoverable: only the failing request is affected.
	ErrNoMemory = errors.New("heap: out of memory")

	// ErrAddMemoryFailed indicates that a region could not be registered
	// with the engine.
	ErrAddMemoryFailed = errors.New("heap: add memory failed")

	// ErrAlreadyInitialized indicates a second Init on the same allocator.
	ErrAlreadyInitialized = errors.New("heap: already initialized")
)

// Allocator is the accounting facade over an engine.
//
// It delegates block management to the engine and tracks two counters on its
// own: total bytes ever claimed and bytes still available. The available
// count is decremented by the requested size, not by what the engine really
// consumed, so it can read optimistically high when the engine pads or rounds.
//
// NOT thread-safe. Wrap it in a Locked to share it between goroutines.
type Allocator struct {
	engine alloc.Engine
	policy grow.Policy
	logger *slog.Logger

	initialized bool
	total       uintptr
	avail       uintptr

	stats Stats
}

// Stats holds facade counters for testing and instrumentation.
type Stats struct {
	AllocCalls      int    // Total Alloc() calls
	AllocFailed     int    // Alloc() calls that returned ErrNoMemory
	DeallocCalls    int    // Total Dealloc() calls
	AddMemoryCalls  int    // Successful AddMemory() calls, Init included
	AddMemoryFailed int    // AddMemory() calls rejected by the engine
	GrowEvents      int    // Successful growth steps
	GrowFailed      int    // Growth attempts that gave up
	GrowBytes       uint64 // Bytes claimed by growth
}

type options struct {
	limit  uintptr
	policy grow.Policy
	logger *slog.Logger
}

// Option configures an Allocator.
type Option func(*options)

// WithLimit sets the upper address bound of the default doubling policy.
// Ignored when WithPolicy is given.
func WithLimit(limit uintptr) Option {
	return func(o *options) { o.limit = limit }
}

// WithPolicy replaces the default doubling growth policy.
func WithPolicy(p grow.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an allocator over engine and installs itself as the engine's
// out-of-memory handler. No memory is owned until Init is called.
func New(engine alloc.Engine, opts ...Option) *Allocator {
	o := options{
		limit:  grow.DefaultLimit,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy == nil {
		o.policy = grow.NewDoubling(o.limit, grow.WithLogger(o.logger))
	}

	a := &Allocator{
		engine: engine,
		policy: o.policy,
		logger: o.logger,
	}
	engine.SetOOMHandler(a)
	return a
}

// Init claims [start, start+size) and makes it the region growth extends.
func (a *Allocator) Init(start, size uintptr) error {
	if a.initialized {
		return fmt.Errorf("%w (region %s)", ErrAlreadyInitialized, a.policy.Region())
	}
	r, err := a.addMemory(start, size)
	if err != nil {
		return err
	}
	a.policy.Reset(r)
	a.initialized = true

	a.logger.Info("heap initialized", "region", r.String(), "bytes", size)
	return nil
}

// AddMemory claims an additional region. The region must not overlap any
// earlier claim; growth will stop short of it.
func (a *Allocator) AddMemory(start, size uintptr) error {
	r, err := a.addMemory(start, size)
	if err != nil {
		return err
	}
	a.logger.Debug("memory added", "region", r.String(), "total", a.total)
	return nil
}

func (a *Allocator) addMemory(start, size uintptr) (region.Region, error) {
	r, err := region.New(start, size)
	if err == nil {
		err = a.engine.Claim(r)
	}
	if err != nil {
		a.stats.AddMemoryFailed++
		a.logger.Warn("add memory failed",
			"start", fmt.Sprintf("%#x", start),
			"size", size,
			"error", err)
		return region.Region{}, fmt.Errorf("%w: [%#x +%#x): %w", ErrAddMemoryFailed, start, size, err)
	}

	a.total += size
	a.avail += size
	a.policy.Reserve(r)
	a.stats.AddMemoryCalls++
	return r, nil
}

// Alloc requests a block of l.Size bytes aligned to l.Align. The engine may
// grow the heap any number of times before it succeeds or gives up.
func (a *Allocator) Alloc(l alloc.Layout) (alloc.Handle, error) {
	a.stats.AllocCalls++

	h, err := a.engine.Alloc(l)
	if err != nil {
		a.stats.AllocFailed++
		a.logger.Debug("allocation failed", "layout", l.String(), "available", a.avail, "error", err)
		return 0, fmt.Errorf("%w: %s: %w", ErrNoMemory, l, err)
	}

	a.avail -= l.Size
	return h, nil
}

// Dealloc returns h to the engine. l must be the layout passed to Alloc;
// this is not checked.
func (a *Allocator) Dealloc(h alloc.Handle, l alloc.Layout) {
	a.stats.DeallocCalls++
	a.engine.Free(h, l)
	a.avail += l.Size
}

// HandleOOM is called by the engine when a request does not fit. It asks the
// growth policy for more memory and books the claimed delta.
func (a *Allocator) HandleOOM(c alloc.Claimer, l alloc.Layout) error {
	delta, err := a.policy.Grow(c, l)
	if err != nil {
		a.stats.GrowFailed++
		return err
	}

	a.total += delta.Size
	a.avail += delta.Size
	a.stats.GrowEvents++
	a.stats.GrowBytes += uint64(delta.Size)
	return nil
}

// AvailableBytes returns total bytes minus the requested sizes of live blocks.
func (a *Allocator) AvailableBytes() uintptr {
	return a.avail
}

// TotalBytes returns the sum of every successfully claimed region.
func (a *Allocator) TotalBytes() uintptr {
	return a.total
}

// UsedBytes returns TotalBytes() - AvailableBytes().
func (a *Allocator) UsedBytes() uintptr {
	return a.total - a.avail
}

// Region returns the region growth currently extends.
func (a *Allocator) Region() region.Region {
	return a.policy.Region()
}

// Stats returns a snapshot of the facade counters.
func (a *Allocator) Stats() Stats {
	return a.stats
}

// Snapshot is a consistent view of the counters, the growth region and Stats.
type Snapshot struct {
	Total     uintptr       `json:"total_bytes"`
	Available uintptr       `json:"available_bytes"`
	Used      uintptr       `json:"used_bytes"`
	Region    region.Region `json:"region"`
	Stats     Stats         `json:"stats"`
}

// Snapshot returns the current counters.
func (a *Allocator) Snapshot() Snapshot {
	return Snapshot{
		Total:     a.total,
		Available: a.avail,
		Used:      a.UsedBytes(),
		Region:    a.policy.Region(),
		Stats:     a.stats,
	}
}

// Compile-time interface check
var _ alloc.OOMHandler = (*Allocator)(nil)
