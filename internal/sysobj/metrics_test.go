package sysobj

import (
	"testing"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/probe"
	"github.com/nginxinc/nginx-telemetry-agent/internal/subprocrunner"
)

func newTestMetricsCollector(t *testing.T, p *fakeProbe, runner subprocrunner.Runner, governor *CPUGovernor) (*Object, *MetricsCollector) {
	t.Helper()
	obj := NewObject("uuid-1", "root-1", "my-host", false, "", "", "1.0.0", 42, time.Now(), time.Second, 0)
	p.setProcessCPU(42, 1.0)
	mc := NewMetricsCollector(obj, time.Second, p, runner, governor, obj.Running, nil)
	return obj, mc
}

func TestMetricsCollector_DiskIOCountersEmitNothingOnFirstPassThenRealDeltas(t *testing.T) {
	p := newFakeProbe()
	_, mc := newTestMetricsCollector(t, p, nil, nil)

	p.setDiskIO("__all__", probe.DiskIOCounters{ReadCount: 100, WriteCount: 50, ReadBytes: 1024, WriteBytes: 512, ReadTime: 10, WriteTime: 5})
	if err := mc.diskIOCounters(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.setDiskIO("__all__", probe.DiskIOCounters{ReadCount: 150, WriteCount: 60, ReadBytes: 2048, WriteBytes: 612, ReadTime: 20, WriteTime: 8})
	if err := mc.diskIOCounters(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flushed := mc.Metrics.Flush()
	series, ok := flushed["C|system.io.iops_r"]
	if !ok || len(series) == 0 || series[0].Value != 50 {
		t.Fatalf("expected a read-count delta of 50 on the second pass, got %v", flushed["C|system.io.iops_r"])
	}
	waitSeries, ok := flushed["G|system.io.wait_r"]
	if !ok || len(waitSeries) == 0 {
		t.Fatalf("expected a read-wait gauge, got %v", flushed["G|system.io.wait_r"])
	}
	// deltaReadTime(10)/deltaReadCount(50) == 0.2
	if waitSeries[0].Value != 0.2 {
		t.Fatalf("expected read wait of 0.2ms/op, got %v", waitSeries[0].Value)
	}
}

func TestMetricsCollector_DiskIOCountersNeverGoesNegativeOnCounterReset(t *testing.T) {
	p := newFakeProbe()
	_, mc := newTestMetricsCollector(t, p, nil, nil)

	p.setDiskIO("__all__", probe.DiskIOCounters{ReadCount: 100})
	mc.diskIOCounters()

	// Simulates a counter reset (disk replaced, agent restarted mid-pass).
	p.setDiskIO("__all__", probe.DiskIOCounters{ReadCount: 10})
	if err := mc.diskIOCounters(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flushed := mc.Metrics.Flush()
	series, ok := flushed["C|system.io.iops_r"]
	if !ok {
		t.Fatal("expected a read-count series even across a counter reset")
	}
	if series[0].Value != 0 {
		t.Fatalf("expected a reset delta to clamp to zero, got %v", series[0].Value)
	}
}

func TestMetricsCollector_NetIOCountersExcludeLoopbackFromTotals(t *testing.T) {
	p := newFakeProbe()
	_, mc := newTestMetricsCollector(t, p, nil, nil)

	p.netCounters = []probe.NetworkCounters{
		{Interface: "eth0", BytesSent: 1000, BytesRecv: 2000},
		{Interface: "lo", BytesSent: 500, BytesRecv: 500},
	}
	mc.netIOCounters()

	p.netCounters = []probe.NetworkCounters{
		{Interface: "eth0", BytesSent: 1500, BytesRecv: 2600},
		{Interface: "lo", BytesSent: 900, BytesRecv: 900},
	}
	if err := mc.netIOCounters(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flushed := mc.Metrics.Flush()
	total, ok := flushed["C|system.net.bytes_sent"]
	if !ok {
		t.Fatal("expected a system-wide bytes_sent total")
	}
	if total[0].Value != 500 {
		t.Fatalf("expected loopback's 400-byte delta excluded from the 500-byte eth0-only total, got %v", total[0].Value)
	}
	perIface, ok := flushed["C|system.net.bytes_sent|eth0"]
	if !ok || perIface[0].Value != 500 {
		t.Fatalf("expected the per-interface series to still include eth0's own delta, got %v", flushed["C|system.net.bytes_sent|eth0"])
	}
}

func TestMetricsCollector_NetstatTracksListenOverflowDelta(t *testing.T) {
	runner := subprocrunner.NewFakeRunner()
	cmd := "sh -c netstat -s | grep -i 'times the listen queue of a socket overflowed'"
	runner.Script(cmd, subprocrunner.Result{StdoutLines: []string{"    12 times the listen queue of a socket overflowed"}})

	p := newFakeProbe()
	_, mc := newTestMetricsCollector(t, p, runner, nil)

	if err := mc.netstat(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flushed := mc.Metrics.Flush(); len(flushed) != 0 {
		t.Fatalf("expected no delta reported on the first observation, got %v", flushed)
	}

	runner.Script(cmd, subprocrunner.Result{StdoutLines: []string{"    20 times the listen queue of a socket overflowed"}})
	if err := mc.netstat(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flushed := mc.Metrics.Flush()
	series, ok := flushed["C|system.net.listen_overflows"]
	if !ok || series[0].Value != 8 {
		t.Fatalf("expected a delta of 8 overflow events, got %v", flushed["C|system.net.listen_overflows"])
	}
}

func TestMetricsCollector_ThrottleConsultsGovernorWhenPresent(t *testing.T) {
	p := newFakeProbe()
	p.setProcessCPU(99, 90.0)
	governor := NewCPUGovernor(p, 99, 50.0, time.Hour)

	_, mc := newTestMetricsCollector(t, p, nil, governor)

	if err := mc.throttle(); err != nil {
		t.Fatalf("unexpected error on first (burst) throttle call: %v", err)
	}
}

func TestMetricsCollector_ThrottleIsNoOpWithoutGovernor(t *testing.T) {
	p := newFakeProbe()
	_, mc := newTestMetricsCollector(t, p, nil, nil)
	if err := mc.throttle(); err != nil {
		t.Fatalf("expected a nil governor to be a no-op, got %v", err)
	}
}

func TestMetricsCollector_ContainerMarkerOnlyEmittedForContainerObjects(t *testing.T) {
	p := newFakeProbe()
	container := NewObject("uuid-2", "root-1", "my-image", true, "my-image", "docker", "1.0.0", 7, time.Now(), time.Second, 0)
	p.setProcessCPU(7, 1.0)
	mc := NewMetricsCollector(container, time.Second, p, nil, nil, container.Running, nil)

	if err := mc.container(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flushed := mc.Metrics.Flush()
	if _, ok := flushed["G|controller.agent.container.count"]; !ok {
		t.Fatal("expected a container marker gauge for a container object")
	}
}
