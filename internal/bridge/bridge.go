// Package bridge implements the Bridge manager: the component that
// drains every registered object's DataBins on a fixed interval, buffers
// the results in bounded deques, and pushes them to the control plane
// with exponential backoff on failure and explicit backpressure handling
// on HTTP 503.
//
// Grounded on original_source/amplify/agent/managers/bridge.py.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/agenterrors"
	"github.com/nginxinc/nginx-telemetry-agent/internal/clock"
	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
	"github.com/nginxinc/nginx-telemetry-agent/internal/objecttank"
)

// kindOrder is the fixed flush order, matching the insertion order of
// Bridge._reset_payload's dict (meta, metrics, events, configs).
var kindOrder = []object.ClientKind{
	object.ClientMeta,
	object.ClientMetrics,
	object.ClientEvents,
	object.ClientConfigs,
}

func bucketFor(p *payload, kind object.ClientKind) *boundedDeque {
	switch kind {
	case object.ClientMeta:
		return p.meta
	case object.ClientMetrics:
		return p.metrics
	case object.ClientEvents:
		return p.events
	case object.ClientConfigs:
		return p.configs
	default:
		return nil
	}
}

// Bridge owns the push loop: one FlushAll per interval, gathering every
// registered object's pending data and periodically pushing the
// accumulated payload to the control plane.
type Bridge struct {
	mu       sync.Mutex
	tank     *objecttank.Tank
	poster   Poster
	logger   *logging.Logger
	interval time.Duration

	payload  *payload
	firstRun bool

	lastHTTPAttempt   time.Time
	httpFailCount     int
	httpDelay         time.Duration
	backpressureUntil time.Time
}

// New constructs a Bridge. interval is both the flush cadence and the
// baseline spacing between HTTP attempts (cloud.push_interval).
func New(tank *objecttank.Tank, poster Poster, interval time.Duration, logger *logging.Logger) *Bridge {
	return &Bridge{
		tank:     tank,
		poster:   poster,
		interval: interval,
		logger:   logger,
		payload:  newPayload(),
		firstRun: true,
	}
}

// Run drives FlushAll once per interval until ctx is cancelled, satisfying
// object.Collector so a Bridge can be registered like any other object's
// collector.
func (b *Bridge) Run(ctx context.Context) {
	ticker := clock.NewTicker(b.interval)
	ticker.Run(ctx, func(ctx context.Context) {
		b.FlushAll(ctx, false)
	})
}

// FlushAll drains every registered object's bins into the payload deques
// and, if enough time has passed since the last attempt (or force is set),
// pushes the accumulated payload to the control plane.
//
// On the very first call, only meta is flushed: the control plane must
// learn about an object's existence before accepting metrics/events/
// configs for it (spec's first-send meta-only rule).
func (b *Bridge) FlushAll(ctx context.Context, force bool) {
	b.mu.Lock()
	firstRun := b.firstRun
	b.mu.Unlock()

	root := b.tank.Tree(0)

	if firstRun {
		b.flushKind(root, object.ClientMeta)
	} else {
		for _, kind := range kindOrder {
			b.flushKind(root, kind)
		}
	}

	now := clock.Now()

	b.mu.Lock()
	due := force || (now.After(b.lastHTTPAttempt.Add(b.interval+b.httpDelay)) && now.After(b.backpressureUntil))
	b.mu.Unlock()

	if due {
		b.sendPayload(ctx)
	}
}

// FlushMetrics drains only the metrics bins, matching
// Bridge.flush_metrics — used by the Supervisor before an agent-config
// change restarts managers, so in-flight counters aren't lost.
func (b *Bridge) FlushMetrics(ctx context.Context) {
	root := b.tank.Tree(0)
	b.flushKind(root, object.ClientMetrics)
}

func (b *Bridge) flushKind(root *objecttank.Node, kind object.ClientKind) {
	if root == nil {
		return
	}
	tree, ok := flushTree(root, kind)
	if !ok {
		return
	}

	b.mu.Lock()
	bucket := bucketFor(b.payload, kind)
	b.mu.Unlock()
	bucket.Append(tree)
}

func (b *Bridge) sendPayload(ctx context.Context) {
	b.mu.Lock()
	b.lastHTTPAttempt = clock.Now()
	wire := b.payload.toWire()
	b.mu.Unlock()

	err := b.poster.Post(ctx, wire)
	if err == nil {
		b.mu.Lock()
		b.payload.reset()
		b.firstRun = false
		if b.httpDelay > 0 {
			b.httpFailCount = 0
			b.httpDelay = 0
		}
		b.mu.Unlock()
		return
	}

	if ae := agenterrors.As(err); ae != nil && ae.Category == agenterrors.Backpressure {
		delaySeconds, _ := ae.Details["retry_after_seconds"].(int)
		b.mu.Lock()
		b.backpressureUntil = clock.Now().Add(time.Duration(delaySeconds) * time.Second)
		b.mu.Unlock()
		if b.logger != nil {
			b.logger.WithContext(ctx).WithField("retry_after_seconds", delaySeconds).
				Debug("back pressure delay added by control plane")
		}
		return
	}

	b.mu.Lock()
	b.httpFailCount++
	delay := exponentialDelay(b.httpFailCount)
	b.httpDelay = time.Duration(delay) * time.Second
	failCount := b.httpFailCount
	b.mu.Unlock()

	if b.logger != nil {
		b.logger.WithContext(ctx).WithError(err).
			WithField("fail_count", failCount).
			WithField("http_delay_seconds", delay).
			Error("failed to push payload to control plane")
	}
}
