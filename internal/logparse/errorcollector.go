package logparse

import "github.com/nginxinc/nginx-telemetry-agent/internal/databin"

// ErrorCollector converts classified error log lines into counter writes.
//
// Grounded on NginxErrorLogsCollector (collectors/nginx/errorlog.py).
type ErrorCollector struct {
	Metrics *databin.MetricsBin
}

// NewErrorCollector constructs an ErrorCollector writing into bin.
func NewErrorCollector(bin *databin.MetricsBin) *ErrorCollector {
	return &ErrorCollector{Metrics: bin}
}

// Collect classifies line and, if it matches a known error shape,
// increments that metric's counter.
func (c *ErrorCollector) Collect(line string) {
	if metric, ok := ClassifyError(line); ok {
		c.Metrics.Counter(metric, 1, 0)
	}
}
