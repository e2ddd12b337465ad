package bridge

import (
	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
	"github.com/nginxinc/nginx-telemetry-agent/internal/objecttank"
)

// Flusher is implemented by every concrete object variant through its
// embedded object.Base. objecttank.Registered alone doesn't expose Flush,
// so the tree walk asserts to this narrower interface at each node.
type Flusher interface {
	objecttank.Registered
	Flush(kinds ...object.ClientKind) interface{}
}

// TreeFlush is one node's contribution to a single-client-kind flush pass:
// its own bin's drained content (nil if it had nothing to report) plus any
// children that had something to report. A subtree with nothing anywhere
// in it is pruned entirely rather than sent as an empty shell — the Go
// equivalent of Bridge._empty_flush's "any key besides identity" check,
// simplified because our bins already return nil/empty-rather-than-a-
// sentinel-dict when they have nothing pending.
type TreeFlush struct {
	Data     interface{} `json:"data,omitempty"`
	Children []TreeFlush `json:"children,omitempty"`
}

// flushTree walks node recursively, draining kind from every object that
// implements Flusher, and returns (result, true) if anything in the
// subtree had data to report, or (TreeFlush{}, false) if the whole branch
// was empty and should be pruned from the parent.
func flushTree(node *objecttank.Node, kind object.ClientKind) (TreeFlush, bool) {
	if node == nil {
		return TreeFlush{}, false
	}

	var data interface{}
	if flusher, ok := node.Object.(Flusher); ok {
		data = flusher.Flush(kind)
	}
	hasData := !isEmptyFlush(data)

	var children []TreeFlush
	for i := range node.Children {
		if child, ok := flushTree(&node.Children[i], kind); ok {
			children = append(children, child)
		}
	}

	if !hasData && len(children) == 0 {
		return TreeFlush{}, false
	}

	out := TreeFlush{Children: children}
	if hasData {
		out.Data = data
	}
	return out, true
}

// isEmptyFlush reports whether a raw DataBin.Flush() result carries no
// content, across every concrete bin return type a Flusher.Flush(kind)
// call can produce.
func isEmptyFlush(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case databin.FlushedMetrics:
		return len(t) == 0
	case []databin.EventRecord:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	case *databin.ConfigPayload:
		return t == nil
	case map[object.ClientKind]interface{}:
		for _, sub := range t {
			if !isEmptyFlush(sub) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
