package plusapi

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nginxinc/nginx-telemetry-agent/internal/collector"
	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
)

// Extractor pulls one group of related fields out of a single Plus
// status/API JSON object (one server_zone, one upstream peer, one cache
// zone, ...) and records them against either the collector's running
// Aggregator (for values that must be summed/deduped across every object of
// the same kind before a flush) or directly against the MetricsBin (for
// values, such as timers, that the bin already aggregates on its own).
//
// source identifies the object the data came from (e.g. the peer's
// "server" address, or the zone name) and is the key AggregateGauges and
// FinalizeGauges use to avoid counting the same peer twice within one flush
// window; latest values are not keyed by source.
//
// Grounded on the *_COLLECT_INDEX extractor-function lists in
// original_source/amplify/agent/collectors/plus/util/{status,api}/*.py —
// each Python function becomes one Extractor, translated from dict
// indexing to gjson path lookups.
type Extractor func(agg *collector.Aggregator, bin *databin.MetricsBin, source string, data gjson.Result)

// Run applies every extractor in fns to data.
func Run(fns []Extractor, agg *collector.Aggregator, bin *databin.MetricsBin, source string, data gjson.Result) {
	for _, fn := range fns {
		fn(agg, bin, source, data)
	}
}

func counters(agg *collector.Aggregator, values map[string]float64) {
	agg.AggregateCounters(values)
}

// StatusZoneExtractors mirrors STATUS_ZONE_COLLECT_INDEX (server_zone /
// status_zone objects from the status API and legacy plus API alike).
var StatusZoneExtractors = []Extractor{
	collectHTTPRequest,
	collectHTTPResponses,
	collectHTTPDiscarded,
	collectHTTPBytes,
}

func collectHTTPRequest(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.http.request.count": data.Get("requests").Float(),
	})
}

func collectHTTPResponses(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	r := data.Get("responses")
	counters(agg, map[string]float64{
		"plus.http.response.count": r.Get("total").Float(),
		"plus.http.status.1xx":     r.Get("1xx").Float(),
		"plus.http.status.2xx":     r.Get("2xx").Float(),
		"plus.http.status.3xx":     r.Get("3xx").Float(),
		"plus.http.status.4xx":     r.Get("4xx").Float(),
		"plus.http.status.5xx":     r.Get("5xx").Float(),
	})
}

func collectHTTPDiscarded(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	if !data.Get("discarded").Exists() {
		return
	}
	counters(agg, map[string]float64{
		"plus.http.status.discarded": data.Get("discarded").Float(),
	})
}

func collectHTTPBytes(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.http.request.bytes_sent": data.Get("sent").Float(),
		"plus.http.request.bytes_rcvd": data.Get("received").Float(),
	})
}

// UpstreamPeerExtractors mirrors UPSTREAM_PEER_COLLECT_INDEX: fields
// present on every individual upstream server entry.
var UpstreamPeerExtractors = []Extractor{
	collectUpstreamActiveConnections,
	collectUpstreamRequest,
	collectUpstreamHeaderTime,
	collectUpstreamResponseTime,
	collectUpstreamResponses,
	collectUpstreamBytes,
	collectUpstreamFails,
	collectUpstreamHealthChecks,
	collectUpstreamQueue,
	collectUpstreamPeerCount,
}

// UpstreamAggregateExtractors mirrors UPSTREAM_COLLECT_INDEX: fields
// computed once per upstream group rather than per peer.
var UpstreamAggregateExtractors = []Extractor{
	collectUpstreamConnKeepaliveZombies,
}

func collectUpstreamActiveConnections(agg *collector.Aggregator, _ *databin.MetricsBin, source string, data gjson.Result) {
	agg.AggregateGauges("plus.upstream.conn.active", source, data.Get("active").Float())
}

func collectUpstreamRequest(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.upstream.request.count": data.Get("requests").Float(),
	})
}

func collectUpstreamHeaderTime(_ *collector.Aggregator, bin *databin.MetricsBin, _ string, data gjson.Result) {
	if v := data.Get("header_time"); v.Exists() {
		bin.Timer("plus.upstream.header.time", v.Float()/1000)
	}
}

func collectUpstreamResponseTime(_ *collector.Aggregator, bin *databin.MetricsBin, _ string, data gjson.Result) {
	if v := data.Get("response_time"); v.Exists() {
		bin.Timer("plus.upstream.response.time", v.Float()/1000)
	}
}

func collectUpstreamResponses(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	r := data.Get("responses")
	counters(agg, map[string]float64{
		"plus.upstream.response.count": r.Get("total").Float(),
		"plus.upstream.status.1xx":     r.Get("1xx").Float(),
		"plus.upstream.status.2xx":     r.Get("2xx").Float(),
		"plus.upstream.status.3xx":     r.Get("3xx").Float(),
		"plus.upstream.status.4xx":     r.Get("4xx").Float(),
		"plus.upstream.status.5xx":     r.Get("5xx").Float(),
	})
}

func collectUpstreamBytes(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.upstream.bytes_sent": data.Get("sent").Float(),
		"plus.upstream.bytes_rcvd": data.Get("received").Float(),
	})
}

func collectUpstreamFails(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.upstream.fails.count":   data.Get("fails").Float(),
		"plus.upstream.unavail.count": data.Get("unavail").Float(),
	})
}

func collectUpstreamHealthChecks(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	h := data.Get("health_checks")
	counters(agg, map[string]float64{
		"plus.upstream.health.checks":    h.Get("checks").Float(),
		"plus.upstream.health.fails":     h.Get("fails").Float(),
		"plus.upstream.health.unhealthy": h.Get("unhealthy").Float(),
	})
}

func collectUpstreamQueue(agg *collector.Aggregator, _ *databin.MetricsBin, source string, data gjson.Result) {
	q := data.Get("queue")
	if !q.Exists() {
		return
	}
	agg.AggregateGauges("plus.upstream.queue.size", source, q.Get("size").Float())
	counters(agg, map[string]float64{
		"plus.upstream.queue.overflows": q.Get("overflows").Float(),
	})
}

func collectUpstreamPeerCount(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	if strings.EqualFold(data.Get("state").String(), "up") {
		agg.AggregateLatest([]string{"plus.upstream.peer.count"})
	}
}

func collectUpstreamConnKeepaliveZombies(agg *collector.Aggregator, _ *databin.MetricsBin, source string, data gjson.Result) {
	if v := data.Get("keepalive"); v.Exists() {
		agg.AggregateGauges("plus.upstream.conn.keepalive", source, v.Float())
	}
	if v := data.Get("zombies"); v.Exists() {
		agg.AggregateGauges("plus.upstream.zombies", source, v.Float())
	}
}

// CacheExtractors mirrors CACHE_COLLECT_INDEX.
var CacheExtractors = []Extractor{
	collectCacheSize,
	collectCacheMetrics,
}

func collectCacheSize(agg *collector.Aggregator, _ *databin.MetricsBin, source string, data gjson.Result) {
	agg.AggregateGauges("plus.cache.size", source, data.Get("size").Float())
	if v := data.Get("max_size"); v.Exists() {
		agg.AggregateGauges("plus.cache.max_size", source, v.Float())
	}
}

var cacheMetricLabels = []string{"bypass", "expired", "hit", "miss", "revalidated", "stale", "updating"}

func collectCacheMetrics(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	values := make(map[string]float64, len(cacheMetricLabels)*2)
	for _, label := range cacheMetricLabels {
		bucket := data.Get(label)
		values["plus.cache."+label] = bucket.Get("responses").Float()
		values["plus.cache."+label+".bytes"] = bucket.Get("bytes").Float()
	}
	counters(agg, values)
}

// SlabExtractors mirrors SLAB_COLLECT_INDEX.
var SlabExtractors = []Extractor{
	collectSlabPages,
}

func collectSlabPages(agg *collector.Aggregator, _ *databin.MetricsBin, source string, data gjson.Result) {
	pages := data.Get("pages")
	used := pages.Get("used").Float()
	free := pages.Get("free").Float()
	total := used + free
	pctUsed := 0.0
	if total > 0 {
		pctUsed = roundHalfAwayFromZero(used / total * 100)
	}
	agg.AggregateGauges("plus.slab.pages.used", source, used)
	agg.AggregateGauges("plus.slab.pages.free", source, free)
	agg.AggregateGauges("plus.slab.pages.total", source, total)
	agg.AggregateGauges("plus.slab.pages.pct_used", source, pctUsed)
}

func roundHalfAwayFromZero(v float64) float64 {
	if v < 0 {
		return -roundHalfAwayFromZero(-v)
	}
	return float64(int64(v + 0.5))
}

// StreamExtractors mirrors STREAM_COLLECT_INDEX.
var StreamExtractors = []Extractor{
	collectStreamConn,
	collectStreamResponses,
	collectStreamDiscarded,
	collectStreamBytes,
}

func collectStreamConn(agg *collector.Aggregator, _ *databin.MetricsBin, source string, data gjson.Result) {
	agg.AggregateGauges("plus.stream.conn.active", source, data.Get("processing").Float())
	counters(agg, map[string]float64{
		"plus.stream.conn.accepted": data.Get("connections").Float(),
	})
}

func collectStreamResponses(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	s := data.Get("sessions")
	counters(agg, map[string]float64{
		"plus.stream.status.2xx": s.Get("2xx").Float(),
		"plus.stream.status.4xx": s.Get("4xx").Float(),
		"plus.stream.status.5xx": s.Get("5xx").Float(),
	})
}

func collectStreamDiscarded(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.stream.discarded": data.Get("discarded").Float(),
	})
}

func collectStreamBytes(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.stream.bytes_sent": data.Get("sent").Float(),
		"plus.stream.bytes_rcvd": data.Get("received").Float(),
	})
}

// StreamUpstreamPeerExtractors mirrors STREAM_UPSTREAM_PEER_COLLECT_INDEX.
var StreamUpstreamPeerExtractors = []Extractor{
	collectStreamUpstreamActiveConnections,
	collectStreamUpstreamTotalConnections,
	collectStreamUpstreamTimers,
	collectStreamUpstreamBytes,
	collectStreamUpstreamFailsUnavail,
	collectStreamUpstreamHealthChecks,
	collectStreamUpstreamPeerCount,
}

// StreamUpstreamAggregateExtractors mirrors STREAM_UPSTREAM_COLLECT_INDEX.
var StreamUpstreamAggregateExtractors = []Extractor{
	collectStreamUpstreamZombies,
}

func collectStreamUpstreamActiveConnections(agg *collector.Aggregator, _ *databin.MetricsBin, source string, data gjson.Result) {
	agg.AggregateGauges("plus.stream.upstream.conn.active", source, data.Get("active").Float())
}

func collectStreamUpstreamTotalConnections(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.stream.upstream.conn.count": data.Get("connections").Float(),
	})
}

func collectStreamUpstreamTimers(_ *collector.Aggregator, bin *databin.MetricsBin, _ string, data gjson.Result) {
	if v := data.Get("connect_time"); v.Exists() {
		bin.Timer("plus.stream.upstream.conn.time", v.Float()/1000)
	}
	if v := data.Get("first_byte_time"); v.Exists() {
		bin.Timer("plus.stream.upstream.conn.ttfb", v.Float()/1000)
	}
	if v := data.Get("response_time"); v.Exists() {
		bin.Timer("plus.stream.upstream.response.time", v.Float()/1000)
	}
}

func collectStreamUpstreamBytes(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.stream.upstream.bytes_sent": data.Get("sent").Float(),
		"plus.stream.upstream.bytes_rcvd": data.Get("received").Float(),
	})
}

func collectStreamUpstreamFailsUnavail(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	counters(agg, map[string]float64{
		"plus.stream.upstream.fails.count":   data.Get("fails").Float(),
		"plus.stream.upstream.unavail.count": data.Get("unavail").Float(),
	})
}

func collectStreamUpstreamHealthChecks(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	h := data.Get("health_checks")
	counters(agg, map[string]float64{
		"plus.stream.upstream.health.checks":    h.Get("checks").Float(),
		"plus.stream.upstream.health.fails":     h.Get("fails").Float(),
		"plus.stream.upstream.health.unhealthy": h.Get("unhealthy").Float(),
	})
}

func collectStreamUpstreamPeerCount(agg *collector.Aggregator, _ *databin.MetricsBin, _ string, data gjson.Result) {
	if strings.EqualFold(data.Get("state").String(), "up") {
		agg.AggregateLatest([]string{"plus.stream.upstream.peer.count"})
	}
}

func collectStreamUpstreamZombies(agg *collector.Aggregator, _ *databin.MetricsBin, source string, data gjson.Result) {
	if v := data.Get("zombies"); v.Exists() {
		agg.AggregateGauges("plus.stream.upstream.zombies", source, v.Float())
	}
}
