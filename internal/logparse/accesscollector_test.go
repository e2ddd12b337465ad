package logparse

import (
	"testing"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
)

func TestAccessCollector_MalformedOnlyIncrementsMalformedCounter(t *testing.T) {
	bin := databin.NewMetricsBin(time.Second)
	c := NewAccessCollector(bin)

	c.Collect(&Record{Malformed: true})

	flushed := bin.Flush()
	if _, ok := flushed["C|nginx.http.request.malformed"]; !ok {
		t.Fatal("expected malformed counter to be written")
	}
	if len(flushed) != 1 {
		t.Fatalf("expected only the malformed counter, got %v", flushed)
	}
}

func TestAccessCollector_WellFormedLine(t *testing.T) {
	bin := databin.NewMetricsBin(time.Second)
	c := NewAccessCollector(bin)

	rec := &Record{Fields: map[string]interface{}{
		"request_method":  "GET",
		"request_uri":     "/index.html",
		"server_protocol": "HTTP/1.1",
		"status":          "200",
		"body_bytes_sent": int64(612),
		"bytes_sent":      int64(700),
		"request_length":  int64(128),
		"gzip_ratio":      2.5,
		"request_time":    []float64{0.125, 0.25},
	}}
	c.Collect(rec)

	flushed := bin.Flush()

	for _, key := range []string{
		"C|nginx.http.method.get",
		"C|nginx.http.status.2xx",
		"C|nginx.http.v1_1",
		"C|nginx.http.request.body_bytes_sent",
		"C|nginx.http.request.bytes_sent",
		"G|nginx.http.request.length",
		"G|nginx.http.gzip.ratio",
		"G|nginx.http.request.time",
		"C|nginx.http.request.time.count",
	} {
		if _, ok := flushed[key]; !ok {
			t.Fatalf("expected key %q in flushed metrics, got %v", key, flushed)
		}
	}

	if v := flushed["G|nginx.http.request.length"][0].Value; v != 128 {
		t.Fatalf("expected request length average 128, got %v", v)
	}
	if v := flushed["G|nginx.http.request.time"][0].Value; v != 0.375 {
		t.Fatalf("expected request time sample (sum of the array) 0.375, got %v", v)
	}
}

func TestAccessCollector_NonSpecial4xxStatusSkipsDetailCounter(t *testing.T) {
	bin := databin.NewMetricsBin(time.Second)
	c := NewAccessCollector(bin)

	c.Collect(&Record{Fields: map[string]interface{}{"status": "418"}})

	flushed := bin.Flush()
	if _, ok := flushed["C|nginx.http.status.418"]; ok {
		t.Fatal("expected no per-status counter for an unlisted 4xx code")
	}
	if _, ok := flushed["C|nginx.http.status.4xx"]; !ok {
		t.Fatal("expected the general 4xx bucket counter")
	}
}

func TestAccessCollector_DiscardedStatusCounter(t *testing.T) {
	bin := databin.NewMetricsBin(time.Second)
	c := NewAccessCollector(bin)

	c.Collect(&Record{Fields: map[string]interface{}{"status": "499"}})

	flushed := bin.Flush()
	if _, ok := flushed["C|nginx.http.status.discarded"]; !ok {
		t.Fatal("expected status.discarded counter for a 499")
	}
}

func TestAccessCollector_UpstreamSwitchAndResponseLength(t *testing.T) {
	bin := databin.NewMetricsBin(time.Second)
	c := NewAccessCollector(bin)

	rec := &Record{Fields: map[string]interface{}{
		"upstream_cache_status":    "MISS",
		"upstream_status":          []string{"502", "200"},
		"upstream_response_length": int64(256),
		"upstream_response_time":   []float64{0.1, 0.05},
	}}
	c.Collect(rec)

	flushed := bin.Flush()

	if _, ok := flushed["C|nginx.cache.miss"]; !ok {
		t.Fatal("expected a cache.miss counter")
	}
	if _, ok := flushed["C|nginx.upstream.status.5xx"]; !ok {
		t.Fatal("expected an upstream.status.5xx counter for the first try")
	}
	if _, ok := flushed["C|nginx.upstream.status.2xx"]; !ok {
		t.Fatal("expected an upstream.status.2xx counter for the final try")
	}
	if _, ok := flushed["G|nginx.upstream.response.length"]; !ok {
		t.Fatal("expected response length to be recorded since the final try was a 2xx")
	}
	if _, ok := flushed["G|nginx.upstream.response.time"]; !ok {
		t.Fatal("expected an upstream response time gauge")
	}
	sw, ok := flushed["C|nginx.upstream.next.count"]
	if !ok {
		t.Fatal("expected an upstream.next.count counter")
	}
	if sw[0].Value != 1 {
		t.Fatalf("expected 1 upstream switch (2 timer samples), got %v", sw[0].Value)
	}
	if _, ok := flushed["C|nginx.upstream.request.count"]; !ok {
		t.Fatal("expected an upstream.request.count counter")
	}
}

func TestAccessCollector_NoUpstreamDataSkipsUpstreamMetrics(t *testing.T) {
	bin := databin.NewMetricsBin(time.Second)
	c := NewAccessCollector(bin)

	c.Collect(&Record{Fields: map[string]interface{}{
		"upstream_cache_status": "-",
		"request_method":        "GET",
		"server_protocol":       "HTTP/1.1",
		"status":                "200",
	}})

	flushed := bin.Flush()
	if _, ok := flushed["C|nginx.upstream.request.count"]; ok {
		t.Fatal("expected no upstream metrics when the only upstream field is a bare dash string")
	}
}
