// Package metrics provides lightweight in-process counters, gauges, and
// histograms for the control loop to record against. Prometheus exposition
// (an HTTP endpoint serving these as text) is explicitly out of scope; this
// package only gives the loop, fieldbus, and broker packages something to
// increment. Grounded on fieldbus.Client's own errorCount field and
// retry.go's attempt counting - counters are tracked as plain integers
// close to the code that produces them, not through a
// metrics library. See DESIGN.md for why prometheus/client_golang (seen only
// in a standalone reference file, not a full example repo) isn't pulled in
// for this.
package metrics

import "sync/atomic"

// Counter is a monotonically increasing value.
type Counter struct {
	value int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { atomic.AddInt64(&c.value, 1) }

// Add increments the counter by delta.
func (c *Counter) Add(delta int64) { atomic.AddInt64(&c.value, delta) }

// Value returns the current count.
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.value) }

// Gauge is a value that can move up or down, e.g. the offline buffer depth.
type Gauge struct {
	value int64
}

// Set replaces the gauge's value.
func (g *Gauge) Set(v int64) { atomic.StoreInt64(&g.value, v) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return atomic.LoadInt64(&g.value) }

// Histogram buckets observed durations/magnitudes into a fixed set of
// upper bounds, matching the shape of a Prometheus histogram without the
// exposition machinery.
type Histogram struct {
	bounds  []float64
	buckets []int64
	sum     int64 // fixed-point: sum * 1000, to stay lock-free with atomic.AddInt64
	count   int64
}

// NewHistogram creates a Histogram with the given upper bucket bounds,
// which must be sorted ascending.
func NewHistogram(bounds []float64) *Histogram {
	return &Histogram{bounds: bounds, buckets: make([]int64, len(bounds)+1)}
}

// Observe records one sample.
func (h *Histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomic.AddInt64(&h.sum, int64(v*1000))

	for i, bound := range h.bounds {
		if v <= bound {
			atomic.AddInt64(&h.buckets[i], 1)
			return
		}
	}
	atomic.AddInt64(&h.buckets[len(h.buckets)-1], 1)
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

// Mean returns the mean of all observations, or 0 if none were recorded.
func (h *Histogram) Mean() float64 {
	count := atomic.LoadInt64(&h.count)
	if count == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&h.sum)) / 1000 / float64(count)
}

// Registry is the fixed set of metrics the control loop reports against,
// mirroring the existing small set of ad-hoc counters (fieldbus error
// count, retry attempts) gathered into one place for the loop to pass
// around.
type Registry struct {
	FieldbusErrors    Counter
	SafetyViolations  Counter
	DecisionsIssued   Counter
	SyncedRows        Counter
	OfflineBufferDepth Gauge
	CycleDuration     *Histogram
}

// NewRegistry creates a Registry with a cycle-duration histogram bucketed
// around the expected 5s control period.
func NewRegistry() *Registry {
	return &Registry{
		CycleDuration: NewHistogram([]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5}),
	}
}
