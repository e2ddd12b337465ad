// Package databin implements the per-object in-memory aggregation buffers
// (counters, gauges, timers, averages, latest values, events, meta, config)
// and their exact flush math.
//
// Flush math is grounded on the statsd/eventd/metad/configd clients of
// nginxinc/nginx-amplify-agent (original_source/amplify/agent/data/*.py).
package databin

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/clock"
)

// Point is a single (timestamp, value) observation.
type Point struct {
	Timestamp int64
	Value     float64
}

// Series is a flushed metric: zero or more points under one key.
type Series []Point

// FlushedMetrics maps a "C|name" or "G|name" key to its flushed series, the
// wire shape consumed by the Bridge.
type FlushedMetrics map[string]Series

type counterState struct {
	entries []Point
}

// MetricsBin accumulates counter/gauge/latest/timer/average writes for one
// object between flushes.
type MetricsBin struct {
	mu       sync.Mutex
	interval time.Duration

	counters map[string]*counterState
	gauges   map[string][]Point
	latest   map[string]Point
	timers   map[string][]float64
	averages map[string][]float64
}

// NewMetricsBin constructs an empty bin. interval is the poll interval used
// to resolve rate-based counter collapsing windows.
func NewMetricsBin(interval time.Duration) *MetricsBin {
	return &MetricsBin{
		interval: interval,
		counters: make(map[string]*counterState),
		gauges:   make(map[string][]Point),
		latest:   make(map[string]Point),
		timers:   make(map[string][]float64),
		averages: make(map[string][]float64),
	}
}

// Counter records a delta for a monotonically-increasing source metric.
// Negative deltas (counter resets/rollbacks) are discarded. When rate > 0
// and the bin has an interval configured, writes within interval*rate of
// the counter's current slot are collapsed into that slot instead of
// opening a new one.
func (b *MetricsBin) Counter(name string, delta float64, rate int) {
	if delta < 0 {
		return
	}
	ts := clock.Now().Unix()

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.counters[name]
	if !ok {
		b.counters[name] = &counterState{entries: []Point{{Timestamp: ts, Value: delta}}}
		return
	}

	last := &state.entries[len(state.entries)-1]
	if b.interval > 0 && rate > 0 {
		sampleDuration := int64(b.interval.Seconds()) * int64(rate)
		if ts < last.Timestamp+sampleDuration {
			last.Value += delta
		} else {
			// New slot carries the previous slot's timestamp forward so
			// the flushed record always reports the oldest timestamp in
			// the accumulation window (matches the upstream client).
			state.entries = append(state.entries, Point{Timestamp: last.Timestamp, Value: delta})
		}
	} else {
		last.Value += delta
	}
}

// Gauge records a point-in-time value. When delta is true, value is added
// to the most recently recorded value instead of replacing it.
func (b *MetricsBin) Gauge(name string, value float64, delta bool) {
	ts := clock.Now().Unix()

	b.mu.Lock()
	defer b.mu.Unlock()

	pts := b.gauges[name]
	if delta && len(pts) > 0 {
		value += pts[len(pts)-1].Value
	}
	b.gauges[name] = append(pts, Point{Timestamp: ts, Value: value})
}

// ObjectStatus writes an unconditional single-value gauge, used by
// AbstractMetricsCollector.status_update() before each sampling pass.
func (b *MetricsBin) ObjectStatus(name string, value float64) {
	ts := clock.Now().Unix()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gauges[name] = []Point{{Timestamp: ts, Value: value}}
}

// Latest stores the most recent value of a metric. A write is only applied
// if its timestamp is newer than what's already stored, guarding against
// out-of-order delivery.
func (b *MetricsBin) Latest(name string, value float64) {
	ts := clock.Now().Unix()
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.latest[name]; !ok || ts > cur.Timestamp {
		b.latest[name] = Point{Timestamp: ts, Value: value}
	}
}

// Timer records one raw sample of a histogram metric.
func (b *MetricsBin) Timer(name string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timers[name] = append(b.timers[name], value)
}

// Average records one raw sample of a mean-only metric.
func (b *MetricsBin) Average(name string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.averages[name] = append(b.averages[name], value)
}

// splitFilterSuffix splits a metric name on the first "||" filter-tag
// delimiter, returning the base name and the suffix (including "||"),
// preserved verbatim on every derived metric name.
func splitFilterSuffix(name string) (base, suffix string) {
	if idx := strings.Index(name, "||"); idx > 0 {
		return name[:idx], name[idx:]
	}
	return name, ""
}

// Flush drains all accumulated writes and returns the finalized series,
// implementing the exact math required by spec §4.3.1 / §8 S6.
func (b *MetricsBin) Flush() FlushedMetrics {
	b.mu.Lock()
	counters := b.counters
	gauges := b.gauges
	latest := b.latest
	timers := b.timers
	averages := b.averages
	b.counters = make(map[string]*counterState)
	b.gauges = make(map[string][]Point)
	b.latest = make(map[string]Point)
	b.timers = make(map[string][]float64)
	b.averages = make(map[string][]float64)
	b.mu.Unlock()

	out := make(FlushedMetrics)

	for name, state := range counters {
		if len(state.entries) == 0 {
			continue
		}
		var sum float64
		for _, p := range state.entries {
			sum += p.Value
		}
		out["C|"+name] = Series{{Timestamp: state.entries[0].Timestamp, Value: sum}}
	}

	for name, pts := range gauges {
		if len(pts) == 0 {
			continue
		}
		var sum float64
		for _, p := range pts {
			sum += p.Value
		}
		mean := sum / float64(len(pts))
		out["G|"+name] = Series{{Timestamp: pts[len(pts)-1].Timestamp, Value: mean}}
	}

	for name, p := range latest {
		out["G|"+name] = Series{p}
	}

	now := clock.Now().Unix()

	for name, values := range timers {
		if len(values) == 0 {
			continue
		}
		base, suffix := splitFilterSuffix(name)
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		n := len(sorted)

		var sum float64
		for _, v := range sorted {
			sum += v
		}
		mean := sum / float64(n)

		out["G|"+base+suffix] = Series{{Timestamp: now, Value: mean}}
		out["C|"+base+".count"+suffix] = Series{{Timestamp: now, Value: float64(n)}}
		out["G|"+base+".max"+suffix] = Series{{Timestamp: now, Value: sorted[n-1]}}
		out["G|"+base+".median"+suffix] = Series{{Timestamp: now, Value: median(sorted)}}
		out["G|"+base+".pctl95"+suffix] = Series{{Timestamp: now, Value: sorted[p95Index(n)]}}
	}

	for name, values := range averages {
		if len(values) == 0 {
			continue
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		out["G|"+name] = Series{{Timestamp: now, Value: sum / float64(len(values))}}
	}

	return out
}

// median returns the median of a slice already sorted ascending.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// p95Index returns the 0-indexed position of the 95th percentile in a
// slice of length n sorted ascending, clamped so that small samples
// (n < 20) collapse to the last (max) element.
func p95Index(n int) int {
	idx := n - int(math.Round(float64(n)*0.05))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}
