package databin

import (
	"testing"
	"time"
)

func TestMetricsBin_TimerFlushMath(t *testing.T) {
	bin := NewMetricsBin(10 * time.Second)
	for _, v := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		bin.Timer("nginx.http.request.time", v)
	}

	flushed := bin.Flush()

	checkSingle := func(key string, want float64) {
		t.Helper()
		series, ok := flushed[key]
		if !ok || len(series) != 1 {
			t.Fatalf("missing or malformed series %s: %#v", key, flushed[key])
		}
		if series[0].Value != want {
			t.Errorf("%s = %v, want %v", key, series[0].Value, want)
		}
	}

	checkSingle("G|nginx.http.request.time", 0.3)
	checkSingle("C|nginx.http.request.time.count", 5)
	checkSingle("G|nginx.http.request.time.max", 0.5)
	checkSingle("G|nginx.http.request.time.median", 0.3)
	checkSingle("G|nginx.http.request.time.pctl95", 0.5)
}

func TestMetricsBin_TimerFilterSuffixPreserved(t *testing.T) {
	bin := NewMetricsBin(0)
	bin.Timer("nginx.http.request.time||location=/api", 1.0)
	bin.Timer("nginx.http.request.time||location=/api", 2.0)

	flushed := bin.Flush()

	if _, ok := flushed["C|nginx.http.request.time.count||location=/api"]; !ok {
		t.Fatalf("expected suffix-preserved count key, got %#v", flushed)
	}
}

func TestMetricsBin_CounterDiscardsNegativeDelta(t *testing.T) {
	bin := NewMetricsBin(0)
	bin.Counter("nginx.http.request.count", 5, 0)
	bin.Counter("nginx.http.request.count", -3, 0)
	bin.Counter("nginx.http.request.count", 2, 0)

	flushed := bin.Flush()
	series := flushed["C|nginx.http.request.count"]
	if len(series) != 1 || series[0].Value != 7 {
		t.Fatalf("expected sum 7 ignoring negative delta, got %#v", series)
	}
}

func TestMetricsBin_CounterZeroDeltaAcrossSamples(t *testing.T) {
	// S1: stub_status sampled twice with an identical body yields delta=0.
	bin := NewMetricsBin(0)
	bin.Counter("nginx.http.request.count", 0, 0)

	flushed := bin.Flush()
	series := flushed["C|nginx.http.request.count"]
	if len(series) != 1 || series[0].Value != 0 {
		t.Fatalf("expected zero delta, got %#v", series)
	}
}

func TestMetricsBin_GaugeAveragesRepeatedWrites(t *testing.T) {
	bin := NewMetricsBin(0)
	bin.Gauge("nginx.http.conn.current", 10, false)
	bin.Gauge("nginx.http.conn.current", 20, false)

	flushed := bin.Flush()
	series := flushed["G|nginx.http.conn.current"]
	if len(series) != 1 || series[0].Value != 15 {
		t.Fatalf("expected mean 15, got %#v", series)
	}
}

func TestMetricsBin_LatestNewerWriteReplacesOlder(t *testing.T) {
	bin := NewMetricsBin(0)
	bin.mu.Lock()
	bin.latest["x"] = Point{Timestamp: 1000, Value: 1}
	bin.mu.Unlock()

	bin.Latest("x", 2) // "now" timestamp is far larger than 1000, should win
	flushed := bin.Flush()
	if flushed["G|x"][0].Value != 2 {
		t.Fatalf("expected newer write to win, got %#v", flushed["G|x"])
	}
}

func TestMetricsBin_AverageSingleValue(t *testing.T) {
	bin := NewMetricsBin(0)
	bin.Average("nginx.http.request.bytes_sent", 10)
	bin.Average("nginx.http.request.bytes_sent", 20)
	bin.Average("nginx.http.request.bytes_sent", 30)

	flushed := bin.Flush()
	if flushed["G|nginx.http.request.bytes_sent"][0].Value != 20 {
		t.Fatalf("expected mean 20, got %#v", flushed["G|nginx.http.request.bytes_sent"])
	}
}

func TestMetricsBin_FlushIsEmptyAfterDrain(t *testing.T) {
	bin := NewMetricsBin(0)
	bin.Gauge("x", 1, false)
	bin.Flush()

	flushed := bin.Flush()
	if len(flushed) != 0 {
		t.Fatalf("expected empty flush after drain, got %#v", flushed)
	}
}

func TestP95Index_CollapsesToLastForSmallSamples(t *testing.T) {
	if got := p95Index(5); got != 4 {
		t.Errorf("p95Index(5) = %d, want 4", got)
	}
}

func TestMedian_EvenAndOdd(t *testing.T) {
	if got := median([]float64{1, 2, 3}); got != 2 {
		t.Errorf("median(odd) = %v, want 2", got)
	}
	if got := median([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Errorf("median(even) = %v, want 2.5", got)
	}
}
