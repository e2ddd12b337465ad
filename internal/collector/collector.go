// Package collector implements the sampling loop shared by every concrete
// metrics/meta collector: a fixed-interval run loop with per-method error
// isolation, zero-counter priming, and the aggregation helpers multi-source
// collectors (Plus API, access log) use to merge values before they reach
// an object's MetricsBin.
//
// Grounded on original_source/amplify/agent/collectors/abstract.py.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/clock"
	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
)

// Method is one unit of work a collector performs each sampling pass. A
// returned error is logged and does not stop the remaining methods from
// running (spec §7: a collector-surface error is isolated per-sampler).
type Method func() error

// Base is the common run loop embedded by every concrete collector. It owns
// nothing about what is collected; Methods supplies that.
type Base struct {
	ShortName string
	Interval  time.Duration

	// ZeroCounters are primed to a zero delta before each pass so that a
	// counter with no traffic still reports a (timestamp, 0) point instead
	// of going silent (matches init_counters in the original implementation).
	ZeroCounters []string

	Metrics   *databin.MetricsBin
	IsRunning func() bool

	logger *logging.Logger

	mu      sync.Mutex
	methods []Method
}

// NewBase constructs a collector run loop. isRunning is consulted before
// every sampling pass; the loop exits once it returns false.
func NewBase(shortName string, interval time.Duration, metrics *databin.MetricsBin, isRunning func() bool, logger *logging.Logger) *Base {
	return &Base{
		ShortName: shortName,
		Interval:  interval,
		Metrics:   metrics,
		IsRunning: isRunning,
		logger:    logger,
	}
}

// Register adds sampling methods to run on every pass.
func (b *Base) Register(methods ...Method) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.methods = append(b.methods, methods...)
}

// Run executes the sample/sleep/check loop until ctx is cancelled or
// IsRunning reports false. Matches AbstractCollector.run.
func (b *Base) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if b.IsRunning != nil && !b.IsRunning() {
			return
		}
		b.collect()
		if !clock.SleepCancellable(ctx, b.Interval) {
			return
		}
	}
}

func (b *Base) collect() {
	b.mu.Lock()
	methods := make([]Method, len(b.methods))
	copy(methods, b.methods)
	b.mu.Unlock()

	b.initZeroCounters()

	for _, m := range methods {
		if err := b.runMethod(m); err != nil && b.logger != nil {
			b.logger.WithContext(context.Background()).WithField("collector", b.ShortName).
				WithError(err).Warn("collector method failed")
		}
	}
}

// runMethod recovers from a panicking method so one bad sampler can never
// take down the object's whole collector set.
func (b *Base) runMethod(m Method) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collector method panicked: %v", r)
		}
	}()
	return m()
}

func (b *Base) initZeroCounters() {
	if b.Metrics == nil {
		return
	}
	for _, name := range b.ZeroCounters {
		b.Metrics.Counter(name, 0, 0)
	}
}

// MetaCollector wraps Base for collectors whose job is to build and send a
// single meta document each pass. DefaultMeta is merged into the pass's
// working set before Gather runs, and the merged result replaces whatever
// is currently buffered in Meta (metad's whole-payload-replace semantics).
type MetaCollector struct {
	*Base
	DefaultMeta map[string]interface{}
	Meta        *databin.MetaBin
	Gather      func(meta map[string]interface{}) error
}

// NewMetaCollector constructs a Base already wired to call Gather once per
// pass and flush the merged document into meta.
func NewMetaCollector(shortName string, interval time.Duration, meta *databin.MetaBin, isRunning func() bool, logger *logging.Logger, defaultMeta map[string]interface{}, gather func(map[string]interface{}) error) *MetaCollector {
	mc := &MetaCollector{
		DefaultMeta: defaultMeta,
		Meta:        meta,
		Gather:      gather,
	}
	mc.Base = NewBase(shortName, interval, nil, isRunning, logger)
	mc.Base.Register(mc.collectMeta)
	return mc
}

func (m *MetaCollector) collectMeta() error {
	merged := make(map[string]interface{}, len(m.DefaultMeta))
	for k, v := range m.DefaultMeta {
		merged[k] = v
	}
	var err error
	if m.Gather != nil {
		err = m.Gather(merged)
	}
	m.Meta.Set(merged)
	return err
}

// MetricsCollector wraps Base for collectors that report a single
// object-status gauge before every sampling pass (status_update in the
// original implementation).
type MetricsCollector struct {
	*Base
	StatusMetricKey string
}

// NewMetricsCollector constructs a Base that writes the status gauge ahead
// of the registered methods each pass.
func NewMetricsCollector(shortName string, interval time.Duration, metrics *databin.MetricsBin, isRunning func() bool, logger *logging.Logger, statusMetricKey string) *MetricsCollector {
	mc := &MetricsCollector{StatusMetricKey: statusMetricKey}
	mc.Base = NewBase(shortName, interval, metrics, isRunning, logger)
	mc.Base.Register(mc.statusUpdate)
	return mc
}

func (m *MetricsCollector) statusUpdate() error {
	if m.StatusMetricKey != "" && m.Metrics != nil {
		m.Metrics.ObjectStatus(m.StatusMetricKey, 1)
	}
	return nil
}

// Aggregator merges counter/latest/gauge observations gathered from several
// sources (e.g. one stub_status block per upstream peer) within a single
// sampling pass, then converts the merged totals into the delta/sum form a
// MetricsBin expects. Mirrors aggregate_counters/increment_counters,
// aggregate_latest/finalize_latest, and aggregate_gauges/finalize_gauges.
type Aggregator struct {
	mu sync.Mutex

	counterTotals map[string]float64
	prevCounters  map[string]float64

	latestCounts map[string]int

	gaugeTotals map[string]map[string]float64
}

// NewAggregator constructs an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		counterTotals: make(map[string]float64),
		prevCounters:  make(map[string]float64),
		latestCounts:  make(map[string]int),
		gaugeTotals:   make(map[string]map[string]float64),
	}
}

// AggregateCounters sums raw (non-delta) counter values observed this pass
// into the running per-name total, accumulating across multiple sources
// before IncrementCounters converts the totals to deltas.
func (a *Aggregator) AggregateCounters(values map[string]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, v := range values {
		a.counterTotals[name] += v
	}
}

// IncrementCounters converts this pass's accumulated raw totals into deltas
// against the previous pass's totals and writes the non-negative deltas
// into bin. Matches increment_counters: a negative delta (counter reset) is
// silently dropped rather than reported.
func (a *Aggregator) IncrementCounters(bin *databin.MetricsBin) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, total := range a.counterTotals {
		prev, known := a.prevCounters[name]
		if known {
			delta := total - prev
			if delta >= 0 {
				bin.Counter(name, delta, 0)
			}
		}
		a.prevCounters[name] = total
	}
	a.counterTotals = make(map[string]float64)
}

// AggregateLatest records one occurrence of each named metric this pass;
// FinalizeLatest reports how many sources contributed a value.
func (a *Aggregator) AggregateLatest(names []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, name := range names {
		a.latestCounts[name]++
	}
}

// FinalizeLatest flushes the accumulated latest-value counts into bin.
func (a *Aggregator) FinalizeLatest(bin *databin.MetricsBin) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, count := range a.latestCounts {
		bin.Latest(name, float64(count))
	}
	a.latestCounts = make(map[string]int)
}

// AggregateGauges records one source's contribution to a multi-source gauge.
func (a *Aggregator) AggregateGauges(name, source string, value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gaugeTotals[name] == nil {
		a.gaugeTotals[name] = make(map[string]float64)
	}
	a.gaugeTotals[name][source] = value
}

// FinalizeGauges sums each gauge's per-source contributions and writes the
// total into bin.
func (a *Aggregator) FinalizeGauges(bin *databin.MetricsBin) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, sources := range a.gaugeTotals {
		var total float64
		for _, v := range sources {
			total += v
		}
		bin.Gauge(name, total, false)
	}
	a.gaugeTotals = make(map[string]map[string]float64)
}
