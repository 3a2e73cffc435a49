package arena

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/alloc"
)

func TestMap_RegionAndBytes(t *testing.T) {
	a, err := Map(0x4000)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	r := a.Region()
	require.NotZero(t, r.Base)
	require.Equal(t, uintptr(0x4000), r.Size)
	require.Equal(t, 0x4000, a.Len())

	b, err := a.Bytes(alloc.Handle(r.Base+16), 4)
	require.NoError(t, err)
	copy(b, []byte{0xde, 0xad, 0xbe, 0xef})

	again, err := a.Bytes(alloc.Handle(r.Base+16), 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, again)
}

func TestMap_InvalidSize(t *testing.T) {
	_, err := Map(0)
	require.Error(t, err)
}

func TestBytes_OutOfRange(t *testing.T) {
	a, err := Map(0x1000)
	require.NoError(t, err)
	defer a.Close()

	r := a.Region()
	_, err = a.Bytes(alloc.Handle(r.Base-1), 1)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = a.Bytes(alloc.Handle(r.End()-4), 8)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = a.Bytes(alloc.Handle(r.End()-4), 4)
	require.NoError(t, err)
}

func TestClose_Twice(t *testing.T) {
	a, err := Map(0x1000)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err = a.Bytes(alloc.Handle(0), 1)
	require.ErrorIs(t, err, ErrClosed)
}

// TestArena_BacksHeap runs a heap inside the first half of a mapping and lets
// it grow into the second half.
func TestArena_BacksHeap(t *testing.T) {
	a, err := Map(0x8000)
	require.NoError(t, err)
	defer a.Close()

	r := a.Region()
	h := heap.New(alloc.NewFirstFit(), heap.WithLimit(r.End()))
	require.NoError(t, h.Init(r.Base, r.Size/2))

	l := alloc.Layout{Size: 0x5000, Align: 8}
	p, err := h.Alloc(l)
	require.NoError(t, err)
	require.Equal(t, r.Size, h.TotalBytes())

	buf, err := a.Bytes(p, l.Size)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.Equal(t, byte(0xff), buf[0xff])

	h.Dealloc(p, l)
	require.Equal(t, h.TotalBytes(), h.AvailableBytes())
}
