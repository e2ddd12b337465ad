package sysobj

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/probe"
)

// fakeProbe is a scripted probe.Probe double shared by this package's
// tests, following the same pattern as internal/nginxobj's fakeProbe.
type fakeProbe struct {
	mu sync.Mutex

	processes  map[int32]probe.ProcessInfo
	processErr error

	diskUsage    []probe.DiskUsage
	diskUsageErr error

	netCounters    []probe.NetworkCounters
	netCountersErr error

	cpuTimes probe.CPUTimesPercent
	cpuErr   error

	virtualMem probe.VirtualMemory
	swapMem    probe.SwapMemory
	loadAvg    probe.LoadAverage

	diskIO    map[string]probe.DiskIOCounters
	diskIOErr error

	hostInfo    probe.HostInfo
	hostInfoErr error

	netIfaces    []probe.NetInterface
	netIfacesErr error

	err error
}

func newFakeProbe() *fakeProbe {
	return &fakeProbe{
		processes: make(map[int32]probe.ProcessInfo),
		diskIO:    make(map[string]probe.DiskIOCounters),
	}
}

func (f *fakeProbe) FindProcesses(ctx context.Context, pattern *regexp.Regexp) ([]probe.ProcessInfo, error) {
	return nil, nil
}

func (f *fakeProbe) Process(ctx context.Context, pid int32) (probe.ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processErr != nil {
		return probe.ProcessInfo{}, f.processErr
	}
	return f.processes[pid], nil
}

func (f *fakeProbe) DiskUsage(ctx context.Context) ([]probe.DiskUsage, error) {
	if f.diskUsageErr != nil {
		return nil, f.diskUsageErr
	}
	return f.diskUsage, f.err
}

func (f *fakeProbe) NetworkCounters(ctx context.Context) ([]probe.NetworkCounters, error) {
	if f.netCountersErr != nil {
		return nil, f.netCountersErr
	}
	return f.netCounters, f.err
}

func (f *fakeProbe) CPUTimesPercent(ctx context.Context, interval time.Duration) (probe.CPUTimesPercent, error) {
	if f.cpuErr != nil {
		return probe.CPUTimesPercent{}, f.cpuErr
	}
	return f.cpuTimes, f.err
}

func (f *fakeProbe) VirtualMemory(ctx context.Context) (probe.VirtualMemory, error) {
	return f.virtualMem, f.err
}

func (f *fakeProbe) SwapMemory(ctx context.Context) (probe.SwapMemory, error) {
	return f.swapMem, f.err
}

func (f *fakeProbe) LoadAverage(ctx context.Context) (probe.LoadAverage, error) {
	return f.loadAvg, f.err
}

func (f *fakeProbe) DiskIOCounters(ctx context.Context) (map[string]probe.DiskIOCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.diskIOErr != nil {
		return nil, f.diskIOErr
	}
	out := make(map[string]probe.DiskIOCounters, len(f.diskIO))
	for k, v := range f.diskIO {
		out[k] = v
	}
	return out, f.err
}

func (f *fakeProbe) HostInfo(ctx context.Context) (probe.HostInfo, error) {
	if f.hostInfoErr != nil {
		return probe.HostInfo{}, f.hostInfoErr
	}
	return f.hostInfo, f.err
}

func (f *fakeProbe) NetInterfaces(ctx context.Context) ([]probe.NetInterface, error) {
	if f.netIfacesErr != nil {
		return nil, f.netIfacesErr
	}
	return f.netIfaces, f.err
}

func (f *fakeProbe) setProcessCPU(pid int32, userPct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processes[pid] = probe.ProcessInfo{PID: pid, CPUUserPct: userPct}
}

func (f *fakeProbe) setDiskIO(name string, c probe.DiskIOCounters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diskIO[name] = c
}
