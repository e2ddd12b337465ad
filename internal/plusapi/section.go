package plusapi

import (
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nginxinc/nginx-telemetry-agent/internal/collector"
	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
)

// Section drives one family of Plus status/API extractors (cache, slab,
// status_zone, upstream, stream, stream_upstream) against whatever new
// samples have landed in the shared PlusCache since it last collected.
//
// Grounded on PlusStatusCollector/PlusAPICollector (abstract.py) and the
// concrete collector classes in status.py: gather_data's "only data since
// last_collect" windowing, and UpstreamCollector's per-peer fan-out plus a
// once-per-sample aggregate pass.
type Section struct {
	mu sync.Mutex

	// grouped is true for upstream/stream_upstream sections, where the
	// cached object is a list of peers (or, for the pre-"peers"-wrapper N+
	// compatibility format, the list itself) rather than a single object.
	grouped bool

	peer      []Extractor // run once per object (ungrouped) or once per peer (grouped)
	aggregate []Extractor // grouped sections only: run once per sample against the whole group

	lastCollect time.Time
}

// NewObjectSection builds a Section for a family whose cached entry is a
// single JSON object per named zone (cache, slab, status_zone, stream).
func NewObjectSection(extractors []Extractor) *Section {
	return &Section{peer: extractors}
}

// NewGroupSection builds a Section for a family whose cached entry is a
// list of peers under a named upstream/stream_upstream group.
func NewGroupSection(peerExtractors, aggregateExtractors []Extractor) *Section {
	return &Section{grouped: true, peer: peerExtractors, aggregate: aggregateExtractors}
}

// Collect gathers every PlusCache sample for url newer than the section's
// last collect, navigates each to payload[area][name], and runs the
// section's extractors against it, aggregating into agg and writing
// self-aggregating fields (timers) straight into bin. name is the source
// key used to dedupe aggregated gauges/latest across repeated polls within
// one flush window for ungrouped sections; grouped sections use each
// peer's own address instead.
func (s *Section) Collect(agg *collector.Aggregator, bin *databin.MetricsBin, cache *Cache, url, area, name string) error {
	s.mu.Lock()
	since := s.lastCollect
	s.mu.Unlock()

	samples := cache.Since(url, since)
	if len(samples) == 0 {
		return nil
	}

	for _, sample := range samples {
		payload := gjson.ParseBytes(sample.Payload)
		data := payload.Get(gjsonEscape(area)).Get(gjsonEscape(name))
		if !data.Exists() {
			continue
		}
		if s.grouped {
			s.collectGroup(agg, bin, name, data)
		} else {
			Run(s.peer, agg, bin, name, data)
		}
		agg.IncrementCounters(bin)
		agg.FinalizeGauges(bin)
		agg.FinalizeLatest(bin)
	}

	s.mu.Lock()
	s.lastCollect = samples[len(samples)-1].Timestamp
	s.mu.Unlock()

	return nil
}

// collectGroup implements the "peers" N+ compatibility workaround: modern
// releases nest the peer list under a "peers" key, older ones return the
// array directly.
func (s *Section) collectGroup(agg *collector.Aggregator, bin *databin.MetricsBin, name string, data gjson.Result) {
	peers := data.Get("peers")
	if !peers.Exists() || !peers.IsArray() {
		peers = data
	}
	if peers.IsArray() {
		peers.ForEach(func(_, peer gjson.Result) bool {
			source := peer.Get("server").String()
			if source == "" {
				source = name
			}
			Run(s.peer, agg, bin, source, peer)
			return true
		})
	}
	Run(s.aggregate, agg, bin, name, data)
}

// gjsonEscape escapes path-meta characters (".", "*", "?") in a literal
// path segment so zone/area names containing them are not misread as gjson
// wildcards or nesting.
func gjsonEscape(segment string) string {
	out := make([]byte, 0, len(segment))
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if c == '.' || c == '*' || c == '?' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
