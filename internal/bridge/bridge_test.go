package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/agenterrors"
	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
	"github.com/nginxinc/nginx-telemetry-agent/internal/objecttank"
)

type fakePoster struct {
	calls   int
	lastPay *Payload
	err     error
}

func (p *fakePoster) Post(_ context.Context, payload *Payload) error {
	p.calls++
	p.lastPay = payload
	return p.err
}

func newRootTank() (*objecttank.Tank, *fakeFlusher) {
	tank := objecttank.New()
	root := &fakeFlusher{
		typ: object.TypeSystem,
		data: map[object.ClientKind]interface{}{
			object.ClientMeta:    map[string]interface{}{"hostname": "box1"},
			object.ClientMetrics: nil,
		},
	}
	tank.Register(root, 0)
	return tank, root
}

func TestBridge_FirstRunOnlyFlushesMeta(t *testing.T) {
	tank, _ := newRootTank()
	poster := &fakePoster{}
	b := New(tank, poster, time.Hour, nil)

	b.FlushAll(context.Background(), false)

	if poster.lastPay == nil || len(poster.lastPay.Meta) != 1 {
		t.Fatalf("expected 1 meta entry in the sent payload, got %+v", poster.lastPay)
	}
	if len(poster.lastPay.Metrics) != 0 {
		t.Fatalf("expected metrics untouched on first run, got %d entries", len(poster.lastPay.Metrics))
	}
	if poster.calls != 1 {
		t.Fatalf("expected exactly 1 send attempt, got %d", poster.calls)
	}
}

func TestBridge_SuccessfulSendResetsPayloadAndClearsFirstRun(t *testing.T) {
	tank, _ := newRootTank()
	poster := &fakePoster{}
	b := New(tank, poster, time.Hour, nil)

	b.FlushAll(context.Background(), false)
	if b.firstRun {
		t.Fatal("expected firstRun cleared after a successful send")
	}
	if b.payload.meta.Len() != 0 {
		t.Fatal("expected payload reset after a successful send")
	}
}

func TestBridge_SubsequentRunsFlushAllKinds(t *testing.T) {
	tank := objecttank.New()
	root := &fakeFlusher{
		typ: object.TypeSystem,
		data: map[object.ClientKind]interface{}{
			object.ClientMeta:    map[string]interface{}{"hostname": "box1"},
			object.ClientMetrics: nil,
		},
	}
	tank.Register(root, 0)
	poster := &fakePoster{}
	b := New(tank, poster, time.Hour, nil)
	b.firstRun = false

	root.data[object.ClientMetrics] = databin.FlushedMetrics{"C|nginx.net.conn": nil}

	b.FlushAll(context.Background(), false)

	if poster.lastPay == nil || len(poster.lastPay.Metrics) != 1 {
		t.Fatalf("expected 1 metrics entry in the sent payload once past first run, got %+v", poster.lastPay)
	}
}

func TestBridge_FailedSendSchedulesExponentialBackoffAndDelaysNextAttempt(t *testing.T) {
	tank, _ := newRootTank()
	poster := &fakePoster{err: errors.New("connection reset")}
	b := New(tank, poster, time.Hour, nil)

	b.FlushAll(context.Background(), false)
	if b.httpFailCount != 1 {
		t.Fatalf("expected http fail count 1, got %d", b.httpFailCount)
	}
	if b.httpDelay < 0 || b.httpDelay >= 15*time.Second {
		t.Fatalf("expected an http delay in [0s, 15s) after one failed send, got %v", b.httpDelay)
	}

	callsBefore := poster.calls
	b.FlushAll(context.Background(), false)
	if poster.calls != callsBefore {
		t.Fatal("expected no new send attempt before the backoff window elapses")
	}
}

func TestBridge_BackpressureResponseSuppressesSendsUntilDelayElapses(t *testing.T) {
	tank, _ := newRootTank()
	poster := &fakePoster{err: agenterrors.BackpressureDelay(3600)}
	b := New(tank, poster, time.Hour, nil)

	b.FlushAll(context.Background(), false)
	if b.backpressureUntil.Before(time.Now()) {
		t.Fatal("expected backpressureUntil set in the future")
	}
	if b.httpFailCount != 0 {
		t.Fatal("expected backpressure to not count as a failure")
	}

	callsBefore := poster.calls
	b.FlushAll(context.Background(), false)
	if poster.calls != callsBefore {
		t.Fatal("expected no send attempt while backpressure is active")
	}
}

func TestBridge_ForceSendsRegardlessOfSchedule(t *testing.T) {
	tank, _ := newRootTank()
	poster := &fakePoster{}
	b := New(tank, poster, time.Hour, nil)
	b.FlushAll(context.Background(), false)

	callsBefore := poster.calls
	b.FlushAll(context.Background(), true)
	if poster.calls != callsBefore+1 {
		t.Fatal("expected force=true to send even inside the normal interval window")
	}
}
