package plusapi

import (
	"testing"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/collector"
	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
)

func TestStatusZoneSection_CounterDeltaOnSecondSample(t *testing.T) {
	cache := New()
	url := "http://127.0.0.1/status"
	t0 := time.Unix(5000, 0)

	cache.Put(url, []byte(`{"server_zones":{"zone1":{
		"requests": 10,
		"responses": {"total":10,"1xx":0,"2xx":9,"3xx":0,"4xx":1,"5xx":0},
		"discarded": 0,
		"sent": 1000,
		"received": 500
	}}}`), t0)

	section := NewStatusZoneSection()
	agg := collector.NewAggregator()
	bin := databin.NewMetricsBin(0)

	if err := section.Collect(agg, bin, cache, url, "server_zones", "zone1"); err != nil {
		t.Fatal(err)
	}
	bin.Flush() // discard baseline pass; no prior total to diff against

	cache.Put(url, []byte(`{"server_zones":{"zone1":{
		"requests": 16,
		"responses": {"total":16,"1xx":0,"2xx":14,"3xx":0,"4xx":2,"5xx":0},
		"discarded": 1,
		"sent": 1600,
		"received": 800
	}}}`), t0.Add(time.Second))

	if err := section.Collect(agg, bin, cache, url, "server_zones", "zone1"); err != nil {
		t.Fatal(err)
	}
	flushed := bin.Flush()

	if got := flushed["C|plus.http.request.count"][0].Value; got != 6 {
		t.Fatalf("expected request delta 16-10=6, got %v", got)
	}
	if got := flushed["C|plus.http.status.4xx"][0].Value; got != 1 {
		t.Fatalf("expected 4xx delta 2-1=1, got %v", got)
	}
	if got := flushed["C|plus.http.request.bytes_sent"][0].Value; got != 600 {
		t.Fatalf("expected bytes_sent delta 1600-1000=600, got %v", got)
	}
}

func TestStatusZoneSection_NoNewSamplesIsNoop(t *testing.T) {
	cache := New()
	url := "http://127.0.0.1/status"
	cache.Put(url, []byte(`{"server_zones":{"zone1":{"requests":1,"responses":{"total":1,"1xx":0,"2xx":1,"3xx":0,"4xx":0,"5xx":0},"sent":1,"received":1}}}`), time.Unix(1, 0))

	section := NewStatusZoneSection()
	agg := collector.NewAggregator()
	bin := databin.NewMetricsBin(0)

	if err := section.Collect(agg, bin, cache, url, "server_zones", "zone1"); err != nil {
		t.Fatal(err)
	}
	bin.Flush()

	if err := section.Collect(agg, bin, cache, url, "server_zones", "zone1"); err != nil {
		t.Fatal(err)
	}
	flushed := bin.Flush()
	if len(flushed) != 0 {
		t.Fatalf("expected no new flushed metrics when no newer sample exists, got %v", flushed)
	}
}

func TestUpstreamSection_PeerFanOutAndGroupAggregate(t *testing.T) {
	cache := New()
	url := "http://127.0.0.1/api/upstreams"

	payload := []byte(`{"upstreams":{"up1":{
		"peers": [
			{"server":"10.0.0.1:80","active":1,"requests":5,
			 "responses":{"total":5,"1xx":0,"2xx":5,"3xx":0,"4xx":0,"5xx":0},
			 "sent":100,"received":50,"fails":0,"unavail":0,
			 "health_checks":{"checks":1,"fails":0,"unhealthy":0},
			 "state":"up"},
			{"server":"10.0.0.2:80","active":2,"requests":3,
			 "responses":{"total":3,"1xx":0,"2xx":3,"3xx":0,"4xx":0,"5xx":0},
			 "sent":60,"received":30,"fails":0,"unavail":0,
			 "health_checks":{"checks":1,"fails":0,"unhealthy":0},
			 "state":"down"}
		],
		"keepalive": 4,
		"zombies": 1
	}}}`)
	cache.Put(url, payload, time.Unix(7000, 0))

	section := NewUpstreamSection()
	agg := collector.NewAggregator()
	bin := databin.NewMetricsBin(0)

	if err := section.Collect(agg, bin, cache, url, "upstreams", "up1"); err != nil {
		t.Fatal(err)
	}
	flushed := bin.Flush()

	if got := flushed["G|plus.upstream.conn.active"][0].Value; got != 3 {
		t.Fatalf("expected active connections summed across peers (1+2=3), got %v", got)
	}
	if got := flushed["G|plus.upstream.conn.keepalive"][0].Value; got != 4 {
		t.Fatalf("expected group keepalive gauge 4, got %v", got)
	}
	if got := flushed["G|plus.upstream.zombies"][0].Value; got != 1 {
		t.Fatalf("expected group zombies gauge 1, got %v", got)
	}
	if got := flushed["G|plus.upstream.peer.count"][0].Value; got != 1 {
		t.Fatalf("expected peer.count latest to count only the 'up' peer, got %v", got)
	}
}
