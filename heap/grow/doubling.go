// Package grow implements the out-of-memory policy that enlarges a heap's
// claimed region when its engine runs dry.
package grow

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/region"
)

// DefaultLimit is the upper address bound used when none is configured.
const DefaultLimit uintptr = 0x8000_0000

var (
	// ErrGrowthExhausted indicates that the region cannot be enlarged any
	// further without crossing the limit or a reserved region.
	ErrGrowthExhausted = errors.New("grow: region cannot grow any further")

	// ErrGrowFail indicates that the engine rejected the grown range.
	ErrGrowFail = errors.New("grow: engine rejected the grown range")
)

// Policy decides whether and how to enlarge the tracked region.
type Policy interface {
	// Grow enlarges the region, claims the new bytes through c and returns
	// the claimed delta. It must fail once no further growth is possible.
	Grow(c alloc.Claimer, l alloc.Layout) (region.Region, error)

	// Reset replaces the tracked region, e.g. when the heap is initialised.
	Reset(r region.Region)

	// Reserve records a range claimed by someone else so growth never
	// claims its bytes a second time.
	Reserve(r region.Region)

	// Region returns the currently tracked region.
	Region() region.Region
}

// Doubling grows the tracked region upward by its own size on every call,
// clipped to a fixed limit. From an initial size s and a limit L bytes above
// the base it gives up after at most ceil(log2(L/s)) successful steps.
type Doubling struct {
	heap     region.Region
	limit    uintptr
	reserved []region.Region
	logger   *slog.Logger
}

// Option configures a Doubling policy.
type Option func(*Doubling)

// WithLogger sets the logger for growth events.
func WithLogger(l *slog.Logger) Option {
	return func(d *Doubling) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDoubling returns a doubling policy that never grows past limit.
// The policy tracks the empty region until Reset is called.
func NewDoubling(limit uintptr, opts ...Option) *Doubling {
	d := &Doubling{
		limit:  limit,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reset replaces the tracked region.
func (d *Doubling) Reset(r region.Region) {
	d.heap = r
}

// Reserve records r as claimed outside this policy.
func (d *Doubling) Reserve(r region.Region) {
	if !r.IsEmpty() {
		d.reserved = append(d.reserved, r)
	}
}

// Region returns the tracked region.
func (d *Doubling) Region() region.Region {
	return d.heap
}

// Limit returns the configured upper address bound.
func (d *Doubling) Limit() uintptr {
	return d.limit
}

// Grow doubles the tracked region, claims the new upper part through c and
// returns it. The proposal is clipped before it is compared with the current
// region, so a region already at its ceiling reports ErrGrowthExhausted
// instead of overshooting.
func (d *Doubling) Grow(c alloc.Claimer, l alloc.Layout) (region.Region, error) {
	old := d.heap
	ceiling := d.ceiling()
	next := step(old, ceiling)

	if next == old {
		d.logger.Info("heap growth exhausted",
			"region", old.String(),
			"ceiling", fmt.Sprintf("%#x", ceiling),
			"request", l.String())
		return region.Region{}, fmt.Errorf("%w: %s at ceiling %#x (request %s)",
			ErrGrowthExhausted, old, ceiling, l)
	}

	delta := region.FromBounds(old.End(), next.End())
	if err := c.Claim(delta); err != nil {
		d.logger.Warn("heap growth claim rejected", "delta", delta.String(), "error", err)
		return region.Region{}, fmt.Errorf("%w: claim %s: %w", ErrGrowFail, delta, err)
	}

	d.heap = next
	d.logger.Debug("heap grown",
		"from", old.String(),
		"to", next.String(),
		"delta_bytes", delta.Size,
		"request", l.String())
	return delta, nil
}

// HandleOOM lets a Doubling policy drive an engine directly.
func (d *Doubling) HandleOOM(c alloc.Claimer, l alloc.Layout) error {
	_, err := d.Grow(c, l)
	return err
}

// Plan returns the regions successive doublings of r would produce under
// limit, without claiming anything. The last entry is the saturated region.
func Plan(r region.Region, limit uintptr) []region.Region {
	var out []region.Region
	ceiling := max(limit, r.End())
	for {
		next := step(r, ceiling)
		if next == r {
			return out
		}
		out = append(out, next)
		r = next
	}
}

// ceiling is the lowest of the limit and the base of any reserved region
// lying above the tracked region. It never falls below the region's end.
func (d *Doubling) ceiling() uintptr {
	c := d.limit
	end := d.heap.End()
	for _, r := range d.reserved {
		if r.Base >= end && r.Base < c {
			c = r.Base
		}
	}
	return max(c, end)
}

// step proposes the doubled region and clips it to ceiling.
func step(r region.Region, ceiling uintptr) region.Region {
	return r.Extend(0, r.Size).ClipTo(ceiling)
}

// Compile-time interface checks
var (
	_ Policy           = (*Doubling)(nil)
	_ alloc.OOMHandler = (*Doubling)(nil)
)
