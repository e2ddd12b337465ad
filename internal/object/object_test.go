package object

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefinition_HashStableUnderKeyOrder(t *testing.T) {
	a := Definition{"type": "nginx", "local_id": "abc", "root_uuid": "xyz"}
	b := Definition{"root_uuid": "xyz", "type": "nginx", "local_id": "abc"}

	if a.Hash() != b.Hash() {
		t.Fatal("expected key-order-independent hash")
	}
}

func TestDefinition_HashDiffersOnValueChange(t *testing.T) {
	a := Definition{"type": "nginx", "local_id": "abc"}
	b := Definition{"type": "nginx", "local_id": "def"}
	if a.Hash() == b.Hash() {
		t.Fatal("expected different hashes for different local_id")
	}
}

func TestDefinition_Healthy(t *testing.T) {
	healthy := Definition{"type": "system", "root_uuid": "xyz"}
	if !healthy.Healthy() {
		t.Error("expected healthy definition")
	}
	unhealthy := Definition{"type": "system", "root_uuid": ""}
	if unhealthy.Healthy() {
		t.Error("expected unhealthy definition with empty value")
	}
}

type fakeCollector struct {
	started int32
	stopped int32
}

func (f *fakeCollector) Run(ctx context.Context) {
	atomic.AddInt32(&f.started, 1)
	<-ctx.Done()
	atomic.AddInt32(&f.stopped, 1)
}

func TestBase_StartStopIdempotentAndWaitsForCollectors(t *testing.T) {
	base := NewBase("test", time.Second, 0)
	c := &fakeCollector{}
	base.AddCollector(c)

	base.Start(context.Background())
	base.Start(context.Background()) // idempotent, should not spawn twice

	time.Sleep(10 * time.Millisecond)
	if atomic.LoadInt32(&c.started) != 1 {
		t.Fatalf("expected collector started exactly once, got %d", c.started)
	}

	base.Stop()
	base.Stop() // idempotent

	if atomic.LoadInt32(&c.stopped) != 1 {
		t.Fatalf("expected collector stopped exactly once, got %d", c.stopped)
	}
	if base.Running() {
		t.Fatal("expected Running() false after Stop")
	}
}

func TestBase_FlushSingleKindUnwrapsResult(t *testing.T) {
	base := NewBase("test", 0, 0)
	base.Meta.Set(map[string]interface{}{"k": "v"})

	result := base.Flush(ClientMeta)
	meta, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected unwrapped map, got %T", result)
	}
	if meta["k"] != "v" {
		t.Errorf("unexpected meta payload: %#v", meta)
	}
}

func TestBase_FlushAllReturnsMapOfFour(t *testing.T) {
	base := NewBase("test", 0, 0)
	result := base.Flush()
	m, ok := result.(map[ClientKind]interface{})
	if !ok {
		t.Fatalf("expected map[ClientKind]interface{}, got %T", result)
	}
	if len(m) != 4 {
		t.Fatalf("expected 4 client kinds, got %d", len(m))
	}
}

func TestBase_MarkNeedsRestart(t *testing.T) {
	base := NewBase("test", 0, 0)
	if base.NeedsRestart() {
		t.Fatal("expected false before marking")
	}
	base.MarkNeedsRestart()
	if !base.NeedsRestart() {
		t.Fatal("expected true after marking")
	}
}
