package sysobj

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/collector"
	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
	"github.com/nginxinc/nginx-telemetry-agent/internal/probe"
	"github.com/nginxinc/nginx-telemetry-agent/internal/subprocrunner"
)

var listenOverflowPattern = regexp.MustCompile(`^\s*(\d+)\s*`)

// MetricsCollector samples the agent's own resource usage and the host's
// CPU/memory/disk/network/load metrics each pass, converting gopsutil's
// cumulative counters into per-sample deltas the same way
// SystemMetricsCollector does.
type MetricsCollector struct {
	*collector.MetricsCollector

	obj      *Object
	probe    probe.Probe
	runner   subprocrunner.Runner
	governor *CPUGovernor

	mu                 sync.Mutex
	prevDiskIO         map[string]probe.DiskIOCounters
	prevNetIO          map[string]probe.NetworkCounters
	haveListenOverflow bool
	lastListenOverflow int64
}

// NewMetricsCollector constructs a MetricsCollector for obj, sampling every
// interval. governor may be nil; when set, Wait is consulted once per pass
// before the heavier disk/net counter sampling runs.
func NewMetricsCollector(obj *Object, interval time.Duration, p probe.Probe, runner subprocrunner.Runner, governor *CPUGovernor, isRunning func() bool, logger *logging.Logger) *MetricsCollector {
	mc := &MetricsCollector{
		obj:        obj,
		probe:      p,
		runner:     runner,
		governor:   governor,
		prevDiskIO: make(map[string]probe.DiskIOCounters),
		prevNetIO:  make(map[string]probe.NetworkCounters),
	}

	mc.MetricsCollector = collector.NewMetricsCollector("sys_metrics", interval, obj.Metrics, isRunning, logger, "controller.agent.status")
	mc.Base.Register(
		mc.throttle,
		mc.container,
		mc.agentCPU,
		mc.agentMemory,
		mc.virtualMemory,
		mc.swap,
		mc.cpu,
		mc.diskPartitions,
		mc.diskIOCounters,
		mc.netIOCounters,
		mc.loadAverage,
		mc.netstat,
	)
	return mc
}

func (m *MetricsCollector) throttle() error {
	if m.governor == nil {
		return nil
	}
	return m.governor.Wait(context.Background())
}

// container reports the one-shot "this is a container object" marker,
// matching SystemMetricsCollector.container.
func (m *MetricsCollector) container() error {
	if m.obj.InContainer {
		m.Metrics.Latest("controller.agent.container.count", 1)
	}
	return nil
}

func (m *MetricsCollector) agentCPU() error {
	ctx := context.Background()
	info, err := m.probe.Process(ctx, int32(m.obj.AgentPID))
	if err != nil {
		return err
	}
	m.Metrics.Gauge("controller.agent.cpu.user", info.CPUUserPct, false)
	m.Metrics.Gauge("controller.agent.cpu.system", info.CPUSystemPct, false)
	return nil
}

func (m *MetricsCollector) agentMemory() error {
	ctx := context.Background()
	info, err := m.probe.Process(ctx, int32(m.obj.AgentPID))
	if err != nil {
		return err
	}
	m.Metrics.Gauge("controller.agent.mem.rss", float64(info.RSSBytes), false)
	m.Metrics.Gauge("controller.agent.mem.vms", float64(info.VMSBytes), false)
	return nil
}

func (m *MetricsCollector) virtualMemory() error {
	v, err := m.probe.VirtualMemory(context.Background())
	if err != nil {
		return err
	}
	m.Metrics.Gauge("system.mem.total", float64(v.Total), false)
	m.Metrics.Gauge("system.mem.used", float64(v.Used), false)
	m.Metrics.Gauge("system.mem.used.all", float64(v.UsedAll), false)
	m.Metrics.Gauge("system.mem.cached", float64(v.Cached), false)
	m.Metrics.Gauge("system.mem.buffered", float64(v.Buffers), false)
	m.Metrics.Gauge("system.mem.free", float64(v.Free), false)
	m.Metrics.Gauge("system.mem.pct_used", v.UsedPercent, false)
	m.Metrics.Gauge("system.mem.available", float64(v.Available), false)
	if v.Shared > 0 {
		m.Metrics.Gauge("system.mem.shared", float64(v.Shared), false)
	}
	return nil
}

func (m *MetricsCollector) swap() error {
	s, err := m.probe.SwapMemory(context.Background())
	if err != nil {
		return err
	}
	m.Metrics.Gauge("system.swap.total", float64(s.Total), false)
	m.Metrics.Gauge("system.swap.used", float64(s.Used), false)
	m.Metrics.Gauge("system.swap.free", float64(s.Free), false)
	m.Metrics.Gauge("system.swap.pct_free", 100-s.UsedPercent, false)
	return nil
}

func (m *MetricsCollector) cpu() error {
	times, err := m.probe.CPUTimesPercent(context.Background(), 200*time.Millisecond)
	if err != nil {
		return err
	}
	m.Metrics.Gauge("system.cpu.user", times.User, false)
	m.Metrics.Gauge("system.cpu.system", times.System, false)
	m.Metrics.Gauge("system.cpu.idle", times.Idle, false)
	m.Metrics.Gauge("system.cpu.iowait", times.Iowait, false)
	m.Metrics.Gauge("system.cpu.stolen", times.Steal, false)
	return nil
}

func (m *MetricsCollector) diskPartitions() error {
	usages, err := m.probe.DiskUsage(context.Background())
	if err != nil {
		return err
	}

	var overallUsed, overallTotal, overallFree float64
	for _, u := range usages {
		overallUsed += float64(u.UsedBytes)
		overallTotal += float64(u.TotalBytes)
		overallFree += float64(u.TotalBytes - u.UsedBytes)

		suffix := "|" + u.MountPoint
		m.Metrics.Gauge("system.disk.total"+suffix, float64(u.TotalBytes), false)
		m.Metrics.Gauge("system.disk.used"+suffix, float64(u.UsedBytes), false)
		m.Metrics.Gauge("system.disk.free"+suffix, float64(u.TotalBytes-u.UsedBytes), false)
		m.Metrics.Gauge("system.disk.in_use"+suffix, u.UsedPercent, false)
	}

	m.Metrics.Gauge("system.disk.total", overallTotal, false)
	m.Metrics.Gauge("system.disk.used", overallUsed, false)
	m.Metrics.Gauge("system.disk.free", overallFree, false)

	var inUse float64
	if overallTotal > 0 {
		inUse = overallUsed / overallTotal * 100
	}
	m.Metrics.Gauge("system.disk.in_use", inUse, false)
	return nil
}

// diskIOCounters converts gopsutil's cumulative per-disk I/O counters into
// per-pass deltas, matching SystemMetricsCollector.disk_io_counters. The
// original's real-block-device filter (host.block_devices(), reading
// /proc/partitions or geom disk list) is not reproduced: gopsutil's
// disk.IOCounters already excludes virtual devices on the platforms this
// agent targets, so every reported name plus the synthetic "__all__"
// aggregate is treated as physical.
func (m *MetricsCollector) diskIOCounters() error {
	counters, err := m.probe.DiskIOCounters(context.Background())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, io := range counters {
		prev, known := m.prevDiskIO[name]
		m.prevDiskIO[name] = io
		if !known {
			continue
		}

		suffix := ""
		if name != "__all__" {
			suffix = "|" + name
		}

		readCount := diffU64(io.ReadCount, prev.ReadCount)
		writeCount := diffU64(io.WriteCount, prev.WriteCount)
		readBytes := diffU64(io.ReadBytes, prev.ReadBytes)
		writeBytes := diffU64(io.WriteBytes, prev.WriteBytes)
		readTime := diffU64(io.ReadTime, prev.ReadTime)
		writeTime := diffU64(io.WriteTime, prev.WriteTime)

		m.Metrics.Counter("system.io.iops_r"+suffix, float64(readCount), 0)
		m.Metrics.Counter("system.io.iops_w"+suffix, float64(writeCount), 0)
		m.Metrics.Counter("system.io.kbs_r"+suffix, float64(readBytes)/1024, 0)
		m.Metrics.Counter("system.io.kbs_w"+suffix, float64(writeBytes)/1024, 0)

		if readCount > 0 {
			m.Metrics.Gauge("system.io.wait_r"+suffix, float64(readTime)/float64(readCount), false)
		}
		if writeCount > 0 {
			m.Metrics.Gauge("system.io.wait_w"+suffix, float64(writeTime)/float64(writeCount), false)
		}
	}
	return nil
}

// netIOCounters converts gopsutil's cumulative per-interface counters into
// per-pass deltas and aggregates everything but loopback into system-wide
// totals, matching SystemMetricsCollector.net_io_counters.
func (m *MetricsCollector) netIOCounters() error {
	counters, err := m.probe.NetworkCounters(context.Background())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	totals := make(map[string]float64, 8)
	for _, c := range counters {
		prev, known := m.prevNetIO[c.Interface]
		m.prevNetIO[c.Interface] = c
		if !known {
			continue
		}

		deltas := map[string]uint64{
			"system.net.packets_out.count": diffU64(c.PacketsSent, prev.PacketsSent),
			"system.net.packets_in.count":  diffU64(c.PacketsRecv, prev.PacketsRecv),
			"system.net.bytes_sent":        diffU64(c.BytesSent, prev.BytesSent),
			"system.net.bytes_rcvd":        diffU64(c.BytesRecv, prev.BytesRecv),
			"system.net.packets_in.error":  diffU64(c.ErrorsIn, prev.ErrorsIn),
			"system.net.packets_out.error": diffU64(c.ErrorsOut, prev.ErrorsOut),
			"system.net.drops_in.count":    diffU64(c.DropIn, prev.DropIn),
			"system.net.drops_out.count":   diffU64(c.DropOut, prev.DropOut),
		}

		suffix := "|" + c.Interface
		for name, delta := range deltas {
			m.Metrics.Counter(name+suffix, float64(delta), 0)
			if !strings.HasPrefix(c.Interface, "lo") {
				totals[name] += float64(delta)
			}
		}
	}

	for name, total := range totals {
		m.Metrics.Counter(name, total, 0)
	}
	return nil
}

func (m *MetricsCollector) loadAverage() error {
	la, err := m.probe.LoadAverage(context.Background())
	if err != nil {
		return err
	}
	m.Metrics.Gauge("system.load.1", la.Load1, false)
	m.Metrics.Gauge("system.load.5", la.Load5, false)
	m.Metrics.Gauge("system.load.15", la.Load15, false)
	return nil
}

// netstat reports the delta of "times the listen queue of a socket
// overflowed" since the previous pass, matching
// SystemMetricsCollector.netstat.
func (m *MetricsCollector) netstat() error {
	if m.runner == nil {
		return nil
	}
	result, err := m.runner.Run(context.Background(), 2*time.Second, "sh", "-c",
		"netstat -s | grep -i 'times the listen queue of a socket overflowed'")
	if err != nil {
		return err
	}
	if len(result.StdoutLines) == 0 {
		return nil
	}

	match := listenOverflowPattern.FindStringSubmatch(result.StdoutLines[0])
	if match == nil {
		return nil
	}
	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing listen overflow count: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.haveListenOverflow {
		delta := value - m.lastListenOverflow
		if delta >= 0 {
			m.Metrics.Counter("system.net.listen_overflows", float64(delta), 0)
		}
	}
	m.haveListenOverflow = true
	m.lastListenOverflow = value
	return nil
}

func diffU64(newValue, oldValue uint64) uint64 {
	if newValue < oldValue {
		return 0
	}
	return newValue - oldValue
}
