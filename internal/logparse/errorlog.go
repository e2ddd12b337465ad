package logparse

import "regexp"

type errorRule struct {
	metric   string
	patterns []*regexp.Regexp
}

// errorRules mirrors error_re (objects/nginx/log/error.py): the fixed set
// of regexes an nginx error log line is checked against, in declaration
// order, returning the first metric whose pattern matches.
var errorRules = []errorRule{
	{
		metric: "nginx.http.request.buffered",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`client request body is buffered`),
		},
	},
	{
		metric: "nginx.upstream.response.buffered",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`upstream response is buffered`),
		},
	},
	{
		metric: "nginx.upstream.request.failed",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`failed.*while connecting to upstream, client`),
			regexp.MustCompile(`upstream timed out.*while connecting to upstream, client`),
			regexp.MustCompile(`upstream queue is full while connecting to upstream`),
			regexp.MustCompile(`no live upstreams while connecting to upstream, client`),
			regexp.MustCompile(`upstream connection is closed too while sending request to upstream, client`),
		},
	},
	{
		metric: "nginx.upstream.response.failed",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`failed.*while reading upstream`),
			regexp.MustCompile(`failed.*while reading response header from upstream, client`),
			regexp.MustCompile(`upstream timed out.*while reading response header from upstream, client`),
			regexp.MustCompile(`upstream buffer is too small to read response`),
			regexp.MustCompile(`upstream prematurely closed connection while reading response header from upstream, client`),
			regexp.MustCompile(`upstream sent no valid.*header while reading response`),
			regexp.MustCompile(`upstream sent invalid header`),
			regexp.MustCompile(`upstream sent invalid chunked response`),
			regexp.MustCompile(`upstream sent too big header while reading response header from upstream`),
		},
	},
}

// ZeroCounterMetrics lists every metric ClassifyError can report, used to
// zero-init counters so a quiet interval still reports 0 instead of
// omitting the series entirely.
var ZeroCounterMetrics = []string{
	"nginx.http.request.buffered",
	"nginx.upstream.response.buffered",
	"nginx.upstream.request.failed",
	"nginx.upstream.response.failed",
}

// ClassifyError returns the metric name for the first error pattern that
// matches line, or ok=false if the line doesn't match any known error
// shape.
func ClassifyError(line string) (string, bool) {
	for _, rule := range errorRules {
		for _, re := range rule.patterns {
			if re.MatchString(line) {
				return rule.metric, true
			}
		}
	}
	return "", false
}
