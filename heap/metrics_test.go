package heap

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/alloc"
)

func Test_Collector_ReportsCounters(t *testing.T) {
	l := NewLocked(New(alloc.NewFirstFit()))
	require.NoError(t, l.Init(0x1000, 0x1000))
	_, err := l.Alloc(alloc.Layout{Size: 5000, Align: 8})
	require.NoError(t, err)

	c := NewCollector(l, "heapkit", prometheus.Labels{"heap": "test"})

	expected := `
# HELP heapkit_heap_total_bytes Bytes claimed by the heap, growth included.
# TYPE heapkit_heap_total_bytes gauge
heapkit_heap_total_bytes{heap="test"} 8192
# HELP heapkit_heap_available_bytes Claimed bytes minus the requested sizes of live allocations.
# TYPE heapkit_heap_available_bytes gauge
heapkit_heap_available_bytes{heap="test"} 3192
# HELP heapkit_heap_used_bytes Requested sizes of live allocations.
# TYPE heapkit_heap_used_bytes gauge
heapkit_heap_used_bytes{heap="test"} 5000
# HELP heapkit_heap_grow_events_total Successful growth steps.
# TYPE heapkit_heap_grow_events_total counter
heapkit_heap_grow_events_total{heap="test"} 1
`
	err = testutil.CollectAndCompare(c, strings.NewReader(expected),
		"heapkit_heap_total_bytes",
		"heapkit_heap_available_bytes",
		"heapkit_heap_used_bytes",
		"heapkit_heap_grow_events_total",
	)
	require.NoError(t, err)
}

func Test_Collector_Registers(t *testing.T) {
	l := NewLocked(New(alloc.NewBump()))
	require.NoError(t, l.Init(0x1000, 0x1000))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(l, "heapkit", nil)))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 10, n)
}
