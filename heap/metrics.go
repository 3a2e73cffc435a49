package heap

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Snapshotter is anything that can report a consistent Snapshot.
// Use a *Locked when the collector is registered with a live registry,
// since scrapes happen on other goroutines.
type Snapshotter interface {
	Snapshot() Snapshot
}

// Collector exports heap counters as Prometheus metrics.
type Collector struct {
	src Snapshotter

	totalBytes     *prometheus.Desc
	availableBytes *prometheus.Desc
	usedBytes      *prometheus.Desc
	regionBytes    *prometheus.Desc
	allocs         *prometheus.Desc
	allocFailures  *prometheus.Desc
	deallocs       *prometheus.Desc
	growEvents     *prometheus.Desc
	growFailures   *prometheus.Desc
	growBytes      *prometheus.Desc
}

// NewCollector returns a collector reading from src. constLabels are
// attached to every metric, e.g. to tell several heaps apart.
func NewCollector(src Snapshotter, namespace string, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "heap", name), help, nil, constLabels)
	}
	return &Collector{
		src:            src,
		totalBytes:     desc("total_bytes", "Bytes claimed by the heap, growth included."),
		availableBytes: desc("available_bytes", "Claimed bytes minus the requested sizes of live allocations."),
		usedBytes:      desc("used_bytes", "Requested sizes of live allocations."),
		regionBytes:    desc("region_bytes", "Size of the region growth extends."),
		allocs:         desc("allocations_total", "Allocation requests."),
		allocFailures:  desc("allocation_failures_total", "Allocation requests that ran out of memory."),
		deallocs:       desc("deallocations_total", "Deallocation requests."),
		growEvents:     desc("grow_events_total", "Successful growth steps."),
		growFailures:   desc("grow_failures_total", "Growth attempts that gave up."),
		growBytes:      desc("grow_bytes_total", "Bytes claimed by growth."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalBytes
	ch <- c.availableBytes
	ch <- c.usedBytes
	ch <- c.regionBytes
	ch <- c.allocs
	ch <- c.allocFailures
	ch <- c.deallocs
	ch <- c.growEvents
	ch <- c.growFailures
	ch <- c.growBytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Snapshot()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.totalBytes, float64(s.Total))
	gauge(c.availableBytes, float64(s.Available))
	gauge(c.usedBytes, float64(s.Used))
	gauge(c.regionBytes, float64(s.Region.Size))
	counter(c.allocs, float64(s.Stats.AllocCalls))
	counter(c.allocFailures, float64(s.Stats.AllocFailed))
	counter(c.deallocs, float64(s.Stats.DeallocCalls))
	counter(c.growEvents, float64(s.Stats.GrowEvents))
	counter(c.growFailures, float64(s.Stats.GrowFailed))
	counter(c.growBytes, float64(s.Stats.GrowBytes))
}

// Compile-time interface check
var _ prometheus.Collector = (*Collector)(nil)
