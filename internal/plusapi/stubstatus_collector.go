package plusapi

import (
	"sync"

	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
)

// StubStatusCollector turns successive StubStatus samples into metric
// writes on a MetricsBin, converting the protocol's cumulative counters
// into per-sample deltas (spec §6, §8 S1).
type StubStatusCollector struct {
	mu sync.Mutex

	haveLast  bool
	lastAccepts, lastHandled, lastRequests int64
}

// NewStubStatusCollector constructs an empty collector; the first sample it
// sees reports zero-delta counters since there is no prior cumulative
// value to diff against.
func NewStubStatusCollector() *StubStatusCollector {
	return &StubStatusCollector{}
}

// Collect writes one sample's gauges and counter deltas into bin.
func (c *StubStatusCollector) Collect(bin *databin.MetricsBin, s StubStatus) {
	bin.Gauge("nginx.http.conn.current", float64(s.Current()), false)
	bin.Gauge("nginx.http.conn.active", float64(s.Active()), false)
	bin.Gauge("nginx.http.conn.idle", float64(s.Idle()), false)

	c.mu.Lock()
	defer c.mu.Unlock()

	var acceptsDelta, handledDelta, requestsDelta int64
	if c.haveLast {
		acceptsDelta = s.Accepts - c.lastAccepts
		handledDelta = s.Handled - c.lastHandled
		requestsDelta = s.Requests - c.lastRequests
	}
	c.haveLast = true
	c.lastAccepts, c.lastHandled, c.lastRequests = s.Accepts, s.Handled, s.Requests

	if acceptsDelta < 0 || handledDelta < 0 {
		acceptsDelta, handledDelta = 0, 0
	}
	if requestsDelta < 0 {
		requestsDelta = 0
	}

	bin.Counter("nginx.http.request.count", float64(requestsDelta), 0)
	bin.Counter("nginx.http.conn.dropped", float64(acceptsDelta-handledDelta), 0)
	bin.Counter("nginx.http.conn.accepted", float64(acceptsDelta), 0)
	bin.Counter("nginx.http.conn.handled", float64(handledDelta), 0)
}
