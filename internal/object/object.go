// Package object implements AbstractObject: the owner of an entity's
// collectors and four DataBins, and its start/stop/flush lifecycle.
//
// Grounded on original_source/amplify/agent/objects/abstract.py.
package object

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/clock"
	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
)

// Type names the kind of entity an object represents (spec §3).
type Type string

const (
	TypeSystem         Type = "system"
	TypeContainer      Type = "container"
	TypeNginx          Type = "nginx"
	TypeContainerNginx Type = "container_nginx"
	TypeCache          Type = "cache"
	TypeServerZone     Type = "server_zone"
	TypeStatusZone     Type = "status_zone"
	TypeUpstream       Type = "upstream"
	TypeSlab           Type = "slab"
	TypeStream         Type = "stream"
	TypeStreamUpstream Type = "stream_upstream"
	TypeHTTPCache      Type = "http_cache"
	TypePHPFPM         Type = "phpfpm"
	TypePHPFPMPool     Type = "phpfpm_pool"
	TypeMySQL          Type = "mysql"
)

// ClientKind identifies one of the four DataBins owned by an object.
type ClientKind string

const (
	ClientMeta    ClientKind = "meta"
	ClientMetrics ClientKind = "metrics"
	ClientEvents  ClientKind = "events"
	ClientConfigs ClientKind = "configs"
)

var allClientKinds = []ClientKind{ClientMeta, ClientMetrics, ClientEvents, ClientConfigs}

// Definition is the small externally-visible identity of an object: type,
// local_id, and root_uuid at minimum. Its hash is used for equality across
// discovery passes (spec §3).
type Definition map[string]interface{}

// Hash computes the definition hash: SHA-256 over the sorted "key:value"
// pairs of the definition, matching AbstractObject.hash in the original
// implementation.
func (d Definition) Hash() string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", k, d[k]))
	}
	joined := "[" + strings.Join(parts, ", ") + "]"
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// Healthy reports whether every value in the definition is non-empty/non-zero.
func (d Definition) Healthy() bool {
	for _, v := range d {
		if isZero(v) {
			return false
		}
	}
	return true
}

func isZero(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case nil:
		return true
	case int:
		return t == 0
	case int64:
		return t == 0
	default:
		return false
	}
}

// Collector is the minimal run contract an object's lifecycle needs: run
// until ctx is cancelled. internal/collector's Base satisfies this.
type Collector interface {
	Run(ctx context.Context)
}

// Entity is implemented by every concrete object variant (NginxObject,
// SystemObject, PlusStatusObject, ...). It supplies the parts that vary per
// variant; Base supplies the parts that don't.
type Entity interface {
	Definition() Definition
	Type() Type
	DisplayName() string
	LocalIDArgs() []string
}

// Base is embedded by every concrete object variant. It owns the four
// DataBins, the collector set, and idempotent start/stop.
type Base struct {
	mu sync.Mutex

	ID   int
	name string

	Intervals map[string]time.Duration

	Metrics *databin.MetricsBin
	Events  *databin.EventsBin
	Meta    *databin.MetaBin
	Configs *databin.ConfigBin

	collectors []Collector

	running     bool
	needRestart bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	initTime int64
}

// NewBase constructs a Base with bins sized to the given metrics-bin
// interval (used for counter rate-window collapsing) and config
// resend-wait-time.
func NewBase(name string, metricsInterval, resendWaitTime time.Duration) *Base {
	return &Base{
		name:     name,
		Metrics:  databin.NewMetricsBin(metricsInterval),
		Events:   databin.NewEventsBin(),
		Meta:     databin.NewMetaBin(),
		Configs:  databin.NewConfigBin(resendWaitTime),
		initTime: clock.Now().Unix(),
	}
}

// Name returns the object's configured display name, if any.
func (b *Base) Name() string { return b.name }

// SetID assigns the tank-issued identifier. Called exactly once, by
// objecttank.Tank.Register.
func (b *Base) SetID(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ID = id
}

// GetID returns the tank-issued identifier, or zero if unregistered.
func (b *Base) GetID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ID
}

// AddCollector registers a collector to be started/stopped with the object.
func (b *Base) AddCollector(c Collector) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collectors = append(b.collectors, c)
}

// Collectors returns the registered collectors.
func (b *Base) Collectors() []Collector {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Collector, len(b.collectors))
	copy(out, b.collectors)
	return out
}

// Running reports whether the object's collectors are currently active.
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// NeedsRestart reports whether a collector marked this object for
// replacement (e.g. a zombie PID was observed, spec §7 discovery-surface).
func (b *Base) NeedsRestart() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.needRestart
}

// MarkNeedsRestart flags the object for replacement by its Manager.
func (b *Base) MarkNeedsRestart() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.needRestart = true
}

// Start spawns one goroutine per registered collector. Starting an
// already-running object is a no-op (idempotent per spec §4.2).
func (b *Base) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	collectors := make([]Collector, len(b.collectors))
	copy(collectors, b.collectors)
	b.mu.Unlock()

	for _, c := range collectors {
		b.wg.Add(1)
		go func(c Collector) {
			defer b.wg.Done()
			c.Run(runCtx)
		}(c)
	}
}

// Stop cancels every collector's context and waits for them to exit.
// Calling Stop on an already-stopped object is a no-op.
func (b *Base) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	cancel := b.cancel
	b.running = false
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
}

// Flush returns the flushed content of the named bins. With no kinds, all
// four bins are flushed and returned as a map. With exactly one kind, the
// raw flush result of that bin is returned directly (unwrapped) so callers
// can splice it into a parent document. With more than one, a filtered map
// is returned. Mirrors AbstractObject.flush in the original implementation.
func (b *Base) Flush(kinds ...ClientKind) interface{} {
	if len(kinds) == 0 {
		kinds = allClientKinds
	}

	flushOne := func(k ClientKind) interface{} {
		switch k {
		case ClientMeta:
			return b.Meta.Flush()
		case ClientMetrics:
			return b.Metrics.Flush()
		case ClientEvents:
			return b.Events.Flush()
		case ClientConfigs:
			return b.Configs.Flush()
		default:
			return nil
		}
	}

	if len(kinds) == 1 {
		return flushOne(kinds[0])
	}

	out := make(map[ClientKind]interface{}, len(kinds))
	for _, k := range kinds {
		out[k] = flushOne(k)
	}
	return out
}
