package alloc

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/region"
)

// newClaimedFirstFit returns a FirstFit engine holding one claimed region.
func newClaimedFirstFit(t testing.TB, base, size uintptr) *FirstFit {
	t.Helper()
	ff := NewFirstFit()
	require.NoError(t, ff.Claim(region.Region{Base: base, Size: size}))
	return ff
}

func mustLayout(t testing.TB, size, align uintptr) Layout {
	t.Helper()
	l, err := NewLayout(size, align)
	require.NoError(t, err)
	return l
}

// Test_FirstFit_SimpleFit tests basic allocation that fits immediately.
func Test_FirstFit_SimpleFit(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1000, 0x1000)

	h, err := ff.Alloc(mustLayout(t, 100, 8))
	require.NoError(t, err)
	require.Equal(t, Handle(0x1000), h, "first fit starts at the lowest address")

	// 100 rounds to 104
	require.Equal(t, uintptr(0x1000-104), ff.FreeBytes())
	require.Equal(t, 1, ff.FreeBlocks())
}

// Test_FirstFit_Alignment verifies aligned requests leave the head slack free.
func Test_FirstFit_Alignment(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1008, 0x1000)

	h, err := ff.Alloc(mustLayout(t, 64, 0x100))
	require.NoError(t, err)
	require.Zero(t, uintptr(h)%0x100, "handle %#x must be 256-byte aligned", h)
	require.Equal(t, Handle(0x1100), h)

	// Head [0x1008,0x1100) and tail [0x1140,0x2008) stay free
	require.Equal(t, 2, ff.FreeBlocks())
	require.Equal(t, uintptr(0x1000-64), ff.FreeBytes())
	require.Equal(t, 1, ff.Stats().SplitCount)

	// A small request fits in the head slack
	small, err := ff.Alloc(mustLayout(t, 16, 8))
	require.NoError(t, err)
	require.Equal(t, Handle(0x1008), small)
}

// Test_FirstFit_FreeCoalesces verifies freed neighbours merge back into one block.
func Test_FirstFit_FreeCoalesces(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1000, 0x1000)
	l := mustLayout(t, 64, 8)

	a, err := ff.Alloc(l)
	require.NoError(t, err)
	b, err := ff.Alloc(l)
	require.NoError(t, err)
	c, err := ff.Alloc(l)
	require.NoError(t, err)

	ff.Free(a, l)
	ff.Free(c, l)
	require.Equal(t, 2, ff.FreeBlocks(), "a and c|tail are separated by b")

	ff.Free(b, l)
	require.Equal(t, 1, ff.FreeBlocks(), "freeing b bridges both sides")
	require.Equal(t, uintptr(0x1000), ff.FreeBytes())

	st := ff.Stats()
	require.Positive(t, st.CoalesceForward)
	require.Positive(t, st.CoalesceBackward)
}

// Test_FirstFit_ReusesFreedBlock verifies first fit picks the lowest hole.
func Test_FirstFit_ReusesFreedBlock(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1000, 0x1000)
	l := mustLayout(t, 128, 8)

	first, err := ff.Alloc(l)
	require.NoError(t, err)
	_, err = ff.Alloc(l)
	require.NoError(t, err)

	ff.Free(first, l)
	again, err := ff.Alloc(mustLayout(t, 64, 8))
	require.NoError(t, err)
	require.Equal(t, first, again)
}

// Test_FirstFit_ZeroSize verifies zero-size requests get distinct handles.
func Test_FirstFit_ZeroSize(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1000, 0x100)
	l := mustLayout(t, 0, 1)

	a, err := ff.Alloc(l)
	require.NoError(t, err)
	b, err := ff.Alloc(l)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Equal(t, uintptr(0x100-2*Granule), ff.FreeBytes())
}

// Test_FirstFit_NoHandler verifies exhaustion without a hook returns ErrNoSpace.
func Test_FirstFit_NoHandler(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1000, 0x100)

	_, err := ff.Alloc(mustLayout(t, 0x200, 8))
	require.ErrorIs(t, err, ErrNoSpace)
	require.Equal(t, uintptr(0x100), ff.FreeBytes(), "failed alloc must not consume memory")
	require.Equal(t, 1, ff.Stats().AllocFailed)
}

// Test_FirstFit_OOMHandlerRetries verifies the hook is called until the request fits.
func Test_FirstFit_OOMHandlerRetries(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1000, 0x100)

	next := region.Region{Base: 0x1100, Size: 0x100}
	calls := 0
	ff.SetOOMHandler(OOMHandlerFunc(func(c Claimer, l Layout) error {
		calls++
		require.Equal(t, uintptr(0x300), l.Size, "handler sees the failing layout")
		if err := c.Claim(next); err != nil {
			return err
		}
		next = region.Region{Base: next.End(), Size: 0x100}
		return nil
	}))

	h, err := ff.Alloc(mustLayout(t, 0x300, 8))
	require.NoError(t, err)
	require.Equal(t, Handle(0x1000), h, "contiguous claims coalesce into one block")
	require.Equal(t, 2, calls)
	require.Equal(t, 1, ff.Stats().AllocSlowPath)
	require.Equal(t, []region.Region{{Base: 0x1000, Size: 0x300}}, ff.Claims())
}

// Test_FirstFit_OOMHandlerAbort verifies an aborting hook fails only that request.
func Test_FirstFit_OOMHandlerAbort(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1000, 0x100)
	abort := errors.New("no more memory")
	ff.SetOOMHandler(OOMHandlerFunc(func(Claimer, Layout) error { return abort }))

	_, err := ff.Alloc(mustLayout(t, 0x200, 8))
	require.ErrorIs(t, err, ErrNoSpace)
	require.ErrorIs(t, err, abort)

	_, err = ff.Alloc(mustLayout(t, 0x40, 8))
	require.NoError(t, err, "smaller requests still fit")
}

// Test_FirstFit_ClaimValidation covers undersized, overlapping and wrapping claims.
func Test_FirstFit_ClaimValidation(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1000, 0x1000)

	err := ff.Claim(region.Region{Base: 0x8000, Size: MinClaimSize - 1})
	require.ErrorIs(t, err, ErrClaimTooSmall)

	err = ff.Claim(region.Region{Base: 0x1800, Size: 0x1000})
	require.ErrorIs(t, err, ErrOverlap)

	err = ff.Claim(region.Region{Base: 0x0800, Size: 0x1000})
	require.ErrorIs(t, err, ErrOverlap)

	err = ff.Claim(region.Region{Base: ^uintptr(0) - 8, Size: 0x100})
	require.ErrorIs(t, err, region.ErrOverflow)

	require.Equal(t, uintptr(0x1000), ff.FreeBytes(), "rejected claims add nothing")
	require.NoError(t, ff.Claim(region.Region{Base: 0x2000, Size: 0x1000}), "adjacent claim is fine")
	require.Equal(t, 1, ff.FreeBlocks())
}

// Test_FirstFit_BadLayout verifies non power-of-two alignment is rejected.
func Test_FirstFit_BadLayout(t *testing.T) {
	ff := newClaimedFirstFit(t, 0x1000, 0x1000)

	_, err := ff.Alloc(Layout{Size: 8, Align: 3})
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = NewLayout(8, 0)
	require.ErrorIs(t, err, ErrBadLayout)
}

// Test_FirstFit_RandomAllocFree_FreeBytesConserved performs random alloc/free
// and checks that free bytes plus live bytes always equal claimed bytes.
func Test_FirstFit_RandomAllocFree_FreeBytesConserved(t *testing.T) {
	const claimed = 0x10000
	ff := newClaimedFirstFit(t, 0x10000, claimed)

	type live struct {
		h Handle
		l Layout
	}
	rng := rand.New(rand.NewSource(42)) // Fixed seed for reproducibility
	var blocks []live
	var liveBytes uintptr

	for i := range 2000 {
		if rng.Intn(3) > 0 || len(blocks) == 0 {
			l := mustLayout(t, uintptr(1+rng.Intn(512)), uintptr(1)<<rng.Intn(7))
			h, err := ff.Alloc(l)
			if err != nil {
				require.ErrorIs(t, err, ErrNoSpace, "step %d", i)
				continue
			}
			require.Zero(t, uintptr(h)%l.Align, "step %d: misaligned handle", i)
			blocks = append(blocks, live{h, l})
			liveBytes += roundGranule(l.Size)
		} else {
			idx := rng.Intn(len(blocks))
			b := blocks[idx]
			blocks = append(blocks[:idx], blocks[idx+1:]...)
			ff.Free(b.h, b.l)
			liveBytes -= roundGranule(b.l.Size)
		}
		require.Equal(t, uintptr(claimed), ff.FreeBytes()+liveBytes, "step %d", i)
	}

	for _, b := range blocks {
		ff.Free(b.h, b.l)
	}
	require.Equal(t, 1, ff.FreeBlocks(), "everything coalesces back")
	require.Equal(t, uintptr(claimed), ff.FreeBytes())
}

func roundGranule(n uintptr) uintptr {
	n = max(n, 1)
	return (n + Granule - 1) &^ (Granule - 1)
}
