package logparse

import (
	"strings"

	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
)

var validHTTPMethods = map[string]bool{
	"head": true, "get": true, "post": true, "put": true, "delete": true, "options": true,
}

var special4xx = map[string]bool{"403": true, "404": true}
var special5xx = map[string]bool{"500": true, "502": true, "503": true, "504": true}

// AccessCollector converts parsed access log Records into metric writes,
// one per nginx log_format field family.
//
// Grounded on NginxAccessLogsCollector (collectors/nginx/accesslog.py).
// Custom per-filter metric tagging (the Python collector's `matched_filters`
// machinery) is out of scope here; the agent's own generic `||`-suffixed
// filter-tag convention (spec §4.3) still applies to any of these metric
// names a caller chooses to tag before it reaches the MetricsBin.
type AccessCollector struct {
	Metrics *databin.MetricsBin
}

// NewAccessCollector constructs an AccessCollector writing into bin.
func NewAccessCollector(bin *databin.MetricsBin) *AccessCollector {
	return &AccessCollector{Metrics: bin}
}

// Collect records one parsed line's metrics. Malformed lines only
// increment the malformed counter.
func (c *AccessCollector) Collect(rec *Record) {
	if rec.Malformed {
		c.Metrics.Counter("nginx.http.request.malformed", 1, 0)
		return
	}

	c.httpMethod(rec)
	c.httpStatus(rec)
	c.httpVersion(rec)
	c.requestLength(rec)
	c.bodyBytesSent(rec)
	c.bytesSent(rec)
	c.gzipRatio(rec)
	c.requestTime(rec)
	c.upstreams(rec)
}

func (c *AccessCollector) httpMethod(rec *Record) {
	method, ok := rec.String("request_method")
	if !ok {
		return
	}
	method = strings.ToLower(method)
	if !validHTTPMethods[method] {
		method = "other"
	}
	c.Metrics.Counter("nginx.http.method."+method, 1, 0)
}

func (c *AccessCollector) httpStatus(rec *Record) {
	status, ok := rec.String("status")
	if !ok || status == "" {
		return
	}

	switch status[0] {
	case '4':
		if special4xx[status] {
			c.Metrics.Counter("nginx.http.status."+status, 1, 0)
		}
	case '5':
		if special5xx[status] {
			c.Metrics.Counter("nginx.http.status."+status, 1, 0)
		}
	}
	c.Metrics.Counter("nginx.http.status."+string(status[0])+"xx", 1, 0)

	if status == "499" {
		c.Metrics.Counter("nginx.http.status.discarded", 1, 0)
	}
}

func (c *AccessCollector) httpVersion(rec *Record) {
	proto, ok := rec.String("server_protocol")
	if !ok || !strings.HasPrefix(proto, "HTTP") {
		return
	}
	parts := strings.SplitN(proto, "/", 2)
	if len(parts) != 2 {
		return
	}
	version := parts[1]

	var suffix string
	switch {
	case strings.HasPrefix(version, "1.1"):
		suffix = "1_1"
	case strings.HasPrefix(version, "2.0"):
		suffix = "2"
	case strings.HasPrefix(version, "1.0"):
		suffix = "1_0"
	case strings.HasPrefix(version, "0.9"):
		suffix = "0_9"
	default:
		suffix = strings.ReplaceAll(version, ".", "_")
	}
	c.Metrics.Counter("nginx.http.v"+suffix, 1, 0)
}

func (c *AccessCollector) requestLength(rec *Record) {
	if v, ok := rec.Int64("request_length"); ok {
		c.Metrics.Average("nginx.http.request.length", float64(v))
	}
}

func (c *AccessCollector) bodyBytesSent(rec *Record) {
	if v, ok := rec.Int64("body_bytes_sent"); ok {
		c.Metrics.Counter("nginx.http.request.body_bytes_sent", float64(v), 0)
	}
}

func (c *AccessCollector) bytesSent(rec *Record) {
	if v, ok := rec.Int64("bytes_sent"); ok {
		c.Metrics.Counter("nginx.http.request.bytes_sent", float64(v), 0)
	}
}

func (c *AccessCollector) gzipRatio(rec *Record) {
	if v, ok := rec.Float64("gzip_ratio"); ok {
		c.Metrics.Average("nginx.http.gzip.ratio", v)
	}
}

func (c *AccessCollector) requestTime(rec *Record) {
	if values, ok := rec.Times("request_time"); ok {
		c.Metrics.Timer("nginx.http.request.time", sumFloats(values))
	}
}

var upstreamTimerKeys = []struct {
	field  string
	metric string
}{
	{"upstream_connect_time", "nginx.upstream.connect.time"},
	{"upstream_response_time", "nginx.upstream.response.time"},
	{"upstream_header_time", "nginx.upstream.header.time"},
}

// upstreams reports cache status, upstream response status counters, the
// response length average (only on a successful 2xx/3xx final response),
// upstream timers, and the upstream-switch count implied by a
// multi-value timer field (nginx appends one value per upstream try).
func (c *AccessCollector) upstreams(rec *Record) {
	hasUpstreamData := false
	for key := range rec.Fields {
		if strings.HasPrefix(key, "upstream") {
			if s, ok := rec.Fields[key].(string); ok && (s == "-" || s == "") {
				continue
			}
			hasUpstreamData = true
			break
		}
	}
	if !hasUpstreamData {
		return
	}

	if cacheStatus, ok := rec.String("upstream_cache_status"); ok && cacheStatus != "" && cacheStatus != "-" {
		c.Metrics.Counter("nginx.cache."+strings.ToLower(cacheStatus), 1, 0)
	}

	upstreamResponse := false
	if statuses, ok := rec.List("upstream_status"); ok {
		for _, status := range statuses {
			if len(status) == 0 || status[0] < '0' || status[0] > '9' {
				continue
			}
			suffix := string(status[0]) + "xx"
			upstreamResponse = suffix == "2xx" || suffix == "3xx"
			c.Metrics.Counter("nginx.upstream.status."+suffix, 1, 0)
		}
	}

	if upstreamResponse {
		if v, ok := rec.Int64("upstream_response_length"); ok {
			c.Metrics.Average("nginx.upstream.response.length", float64(v))
		}
	}

	var upstreamSwitches int
	haveSwitches := false
	for _, tk := range upstreamTimerKeys {
		values, ok := rec.Times(tk.field)
		if !ok {
			continue
		}
		if len(values) > 1 && !haveSwitches {
			upstreamSwitches = len(values) - 1
			haveSwitches = true
		}
		c.Metrics.Timer(tk.metric, sumFloats(values))
	}

	c.Metrics.Counter("nginx.upstream.next.count", float64(upstreamSwitches), 0)
	c.Metrics.Counter("nginx.upstream.request.count", 1, 0)
}

func sumFloats(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
