package collector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
)

func TestBase_RunStopsWhenIsRunningFalse(t *testing.T) {
	bin := databin.NewMetricsBin(0)
	running := int32(1)
	var calls int32

	b := NewBase("test", time.Millisecond, bin, func() bool { return atomic.LoadInt32(&running) == 1 }, nil)
	b.Register(func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	done := make(chan struct{})
	go func() {
		b.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	atomic.StoreInt32(&running, 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to exit once IsRunning() returns false")
	}

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("expected at least one sampling pass")
	}
}

func TestBase_OneMethodErrorDoesNotStopOthers(t *testing.T) {
	b := NewBase("test", 0, nil, func() bool { return true }, nil)
	var secondCalled bool
	b.Register(
		func() error { return errors.New("boom") },
		func() error { secondCalled = true; return nil },
	)

	b.collect()
	if !secondCalled {
		t.Fatal("expected second method to run despite first method's error")
	}
}

func TestBase_PanicIsRecovered(t *testing.T) {
	b := NewBase("test", 0, nil, func() bool { return true }, nil)
	var secondCalled bool
	b.Register(
		func() error { panic("boom") },
		func() error { secondCalled = true; return nil },
	)

	b.collect() // must not panic out of the test
	if !secondCalled {
		t.Fatal("expected second method to run despite first method's panic")
	}
}

func TestBase_ZeroCountersPrimedEachPass(t *testing.T) {
	bin := databin.NewMetricsBin(0)
	b := NewBase("test", 0, bin, func() bool { return true }, nil)
	b.ZeroCounters = []string{"nginx.http.request.count"}

	b.collect()
	flushed := bin.Flush()
	series, ok := flushed["C|nginx.http.request.count"]
	if !ok || len(series) != 1 || series[0].Value != 0 {
		t.Fatalf("expected primed zero counter, got %#v", flushed)
	}
}

func TestMetaCollector_MergesDefaultsAndGathered(t *testing.T) {
	meta := databin.NewMetaBin()
	mc := NewMetaCollector("test-meta", 0, meta, func() bool { return true }, nil,
		map[string]interface{}{"version": "1.2.3"},
		func(m map[string]interface{}) error {
			m["hostname"] = "box1"
			return nil
		},
	)

	mc.collect()

	got := meta.Flush()
	if got["version"] != "1.2.3" || got["hostname"] != "box1" {
		t.Fatalf("unexpected merged meta: %#v", got)
	}
}

func TestMetricsCollector_WritesStatusGaugeBeforeMethods(t *testing.T) {
	bin := databin.NewMetricsBin(0)
	mc := NewMetricsCollector("test-metrics", 0, bin, func() bool { return true }, nil, "nginx.status")
	mc.collect()

	flushed := bin.Flush()
	if _, ok := flushed["G|nginx.status"]; !ok {
		t.Fatalf("expected status gauge written, got %#v", flushed)
	}
}

func TestAggregator_IncrementCountersComputesDeltaAcrossPasses(t *testing.T) {
	bin := databin.NewMetricsBin(0)
	agg := NewAggregator()

	agg.AggregateCounters(map[string]float64{"requests": 100})
	agg.IncrementCounters(bin) // first pass: no previous value, no delta reported

	agg.AggregateCounters(map[string]float64{"requests": 130})
	agg.IncrementCounters(bin)

	flushed := bin.Flush()
	series, ok := flushed["C|requests"]
	if !ok || len(series) != 1 || series[0].Value != 30 {
		t.Fatalf("expected delta 30 on second pass, got %#v", flushed)
	}
}

func TestAggregator_IncrementCountersDropsNegativeDelta(t *testing.T) {
	bin := databin.NewMetricsBin(0)
	agg := NewAggregator()

	agg.AggregateCounters(map[string]float64{"requests": 100})
	agg.IncrementCounters(bin)

	agg.AggregateCounters(map[string]float64{"requests": 10}) // counter reset
	agg.IncrementCounters(bin)

	flushed := bin.Flush()
	if _, ok := flushed["C|requests"]; ok {
		t.Fatalf("expected reset delta dropped, got %#v", flushed)
	}
}

func TestAggregator_MultiSourceGaugeSummed(t *testing.T) {
	bin := databin.NewMetricsBin(0)
	agg := NewAggregator()

	agg.AggregateGauges("upstream.conn.active", "10.0.0.1:80", 5)
	agg.AggregateGauges("upstream.conn.active", "10.0.0.2:80", 7)
	agg.FinalizeGauges(bin)

	flushed := bin.Flush()
	if flushed["G|upstream.conn.active"][0].Value != 12 {
		t.Fatalf("expected summed gauge 12, got %#v", flushed["G|upstream.conn.active"])
	}
}

func TestAggregator_LatestCountsSources(t *testing.T) {
	bin := databin.NewMetricsBin(0)
	agg := NewAggregator()

	agg.AggregateLatest([]string{"nginx.workers.count"})
	agg.AggregateLatest([]string{"nginx.workers.count"})
	agg.FinalizeLatest(bin)

	flushed := bin.Flush()
	if flushed["G|nginx.workers.count"][0].Value != 2 {
		t.Fatalf("expected latest count 2, got %#v", flushed["G|nginx.workers.count"])
	}
}
