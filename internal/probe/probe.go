// Package probe defines the OS-metric collection seam (spec's Probe
// capability interface) and a concrete gopsutil-backed implementation.
//
// Shape grounded on the process/memory/disk inspection performed across
// original_source/amplify/agent/common/util/{host,ps,memusage}.py; no
// direct line-for-line translation exists since that code calls into
// psutil/platform tools this package replaces with gopsutil/v3.
package probe

import (
	"context"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo is the subset of a running process's state an object
// discoverer or collector needs.
type ProcessInfo struct {
	PID           int32
	PPID          int32
	Command       string
	Cmdline       []string
	RSSBytes      uint64
	VMSBytes      uint64
	CPUUserPct    float64
	CPUSystemPct  float64
	OpenFileCount int
	CreateTime    time.Time
}

// DiskUsage reports space usage for one mounted filesystem.
type DiskUsage struct {
	MountPoint  string
	Device      string
	FSType      string
	TotalBytes  uint64
	UsedBytes   uint64
	UsedPercent float64
}

// NetworkCounters reports cumulative traffic counters for one interface.
type NetworkCounters struct {
	Interface    string
	BytesSent    uint64
	BytesRecv    uint64
	PacketsSent  uint64
	PacketsRecv  uint64
	ErrorsIn     uint64
	ErrorsOut    uint64
	DropIn       uint64
	DropOut      uint64
}

// CPUTimesPercent reports the share of wall-clock time the host CPU spent
// in each state over the sampling window, matching psutil.cpu_times_percent.
type CPUTimesPercent struct {
	User   float64
	System float64
	Idle   float64
	Iowait float64
	Steal  float64
}

// VirtualMemory reports host RAM usage.
type VirtualMemory struct {
	Total       uint64
	Available   uint64
	Used        uint64
	UsedAll     uint64
	Free        uint64
	Cached      uint64
	Buffers     uint64
	Shared      uint64
	UsedPercent float64
}

// SwapMemory reports host swap usage.
type SwapMemory struct {
	Total       uint64
	Used        uint64
	Free        uint64
	UsedPercent float64
}

// LoadAverage reports the host's 1/5/15-minute load averages.
type LoadAverage struct {
	Load1  float64
	Load5  float64
	Load15 float64
}

// DiskIOCounters reports cumulative block-device I/O counters for one disk.
type DiskIOCounters struct {
	ReadCount  uint64
	WriteCount uint64
	ReadBytes  uint64
	WriteBytes uint64
	ReadTime   uint64 // milliseconds
	WriteTime  uint64 // milliseconds
}

// HostInfo reports static host identity, grounded on host.Info.
type HostInfo struct {
	Hostname        string
	BootTime        time.Time
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	KernelArch      string
}

// NetInterfaceAddress is one address family bound to an interface.
type NetInterfaceAddress struct {
	Address   string
	PrefixLen int
}

// NetInterface reports one network interface's identity and addresses.
type NetInterface struct {
	Name string
	MAC  string
	IPv4 *NetInterfaceAddress
	IPv6 *NetInterfaceAddress
}

// Probe is the capability interface every OS-metric-dependent collector
// depends on instead of calling gopsutil directly, so tests can substitute
// a fixture implementation.
type Probe interface {
	// FindProcesses returns every running process whose command line
	// matches pattern.
	FindProcesses(ctx context.Context, pattern *regexp.Regexp) ([]ProcessInfo, error)
	// Process returns the current state of one pid, or an error if it no
	// longer exists (the caller should treat this as psutil.NoSuchProcess
	// does: a discovery-surface signal, not a fatal one).
	Process(ctx context.Context, pid int32) (ProcessInfo, error)
	DiskUsage(ctx context.Context) ([]DiskUsage, error)
	NetworkCounters(ctx context.Context) ([]NetworkCounters, error)

	// CPUTimesPercent blocks for interval while sampling cpu.Times twice, the
	// same two-sample technique psutil.cpu_times_percent uses internally.
	CPUTimesPercent(ctx context.Context, interval time.Duration) (CPUTimesPercent, error)
	VirtualMemory(ctx context.Context) (VirtualMemory, error)
	SwapMemory(ctx context.Context) (SwapMemory, error)
	LoadAverage(ctx context.Context) (LoadAverage, error)
	DiskIOCounters(ctx context.Context) (map[string]DiskIOCounters, error)
	HostInfo(ctx context.Context) (HostInfo, error)
	NetInterfaces(ctx context.Context) ([]NetInterface, error)
}

// DefaultProbe is the gopsutil-backed concrete Probe used in production.
type DefaultProbe struct{}

// NewDefaultProbe constructs a DefaultProbe.
func NewDefaultProbe() *DefaultProbe { return &DefaultProbe{} }

// FindProcesses scans every running process and returns those whose
// joined command line matches pattern.
func (p *DefaultProbe) FindProcesses(ctx context.Context, pattern *regexp.Regexp) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var out []ProcessInfo
	for _, proc := range procs {
		cmdline, err := proc.CmdlineSliceWithContext(ctx)
		if err != nil || !matchesCmdline(cmdline, pattern) {
			continue
		}
		info, err := toProcessInfo(ctx, proc, cmdline)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// matchesCmdline reports whether the space-joined command line matches
// pattern. Isolated from FindProcesses so the matching rule itself is
// testable without a real process table.
func matchesCmdline(cmdline []string, pattern *regexp.Regexp) bool {
	if len(cmdline) == 0 {
		return false
	}
	joined := cmdline[0]
	for _, arg := range cmdline[1:] {
		joined += " " + arg
	}
	return pattern.MatchString(joined)
}

// Process returns one process's current state.
func (p *DefaultProbe) Process(ctx context.Context, pid int32) (ProcessInfo, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ProcessInfo{}, err
	}
	cmdline, err := proc.CmdlineSliceWithContext(ctx)
	if err != nil {
		return ProcessInfo{}, err
	}
	return toProcessInfo(ctx, proc, cmdline)
}

func toProcessInfo(ctx context.Context, proc *process.Process, cmdline []string) (ProcessInfo, error) {
	ppid, _ := proc.PpidWithContext(ctx)
	mem, _ := proc.MemoryInfoWithContext(ctx)
	cpuPct, _ := proc.CPUPercentWithContext(ctx)
	createMs, _ := proc.CreateTimeWithContext(ctx)

	var rss, vms uint64
	if mem != nil {
		rss = mem.RSS
		vms = mem.VMS
	}

	openFiles, _ := proc.OpenFilesWithContext(ctx)

	name := ""
	if len(cmdline) > 0 {
		name = cmdline[0]
	}

	return ProcessInfo{
		PID:           proc.Pid,
		PPID:          ppid,
		Command:       name,
		Cmdline:       cmdline,
		RSSBytes:      rss,
		VMSBytes:      vms,
		CPUUserPct:    cpuPct,
		OpenFileCount: len(openFiles),
		CreateTime:    time.UnixMilli(createMs),
	}, nil
}

// DiskUsage reports usage for every mounted partition gopsutil can see.
func (p *DefaultProbe) DiskUsage(ctx context.Context) ([]DiskUsage, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	out := make([]DiskUsage, 0, len(partitions))
	for _, part := range partitions {
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			continue
		}
		out = append(out, DiskUsage{
			MountPoint:  part.Mountpoint,
			Device:      part.Device,
			FSType:      part.Fstype,
			TotalBytes:  usage.Total,
			UsedBytes:   usage.Used,
			UsedPercent: usage.UsedPercent,
		})
	}
	return out, nil
}

// NetworkCounters reports per-interface cumulative traffic counters.
func (p *DefaultProbe) NetworkCounters(ctx context.Context) ([]NetworkCounters, error) {
	counters, err := gopsnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	out := make([]NetworkCounters, 0, len(counters))
	for _, c := range counters {
		out = append(out, NetworkCounters{
			Interface:   c.Name,
			BytesSent:   c.BytesSent,
			BytesRecv:   c.BytesRecv,
			PacketsSent: c.PacketsSent,
			PacketsRecv: c.PacketsRecv,
			ErrorsIn:    c.Errin,
			ErrorsOut:   c.Errout,
			DropIn:      c.Dropin,
			DropOut:     c.Dropout,
		})
	}
	return out, nil
}

// CPUTimesPercent samples the cumulative CPU time-in-state counters, waits
// interval, samples again, and reports each state's share of the elapsed
// delta. Matches SystemMetricsCollector.cpu (psutil.cpu_times_percent).
func (p *DefaultProbe) CPUTimesPercent(ctx context.Context, interval time.Duration) (CPUTimesPercent, error) {
	before, err := cpu.TimesWithContext(ctx, false)
	if err != nil || len(before) == 0 {
		return CPUTimesPercent{}, err
	}

	select {
	case <-ctx.Done():
		return CPUTimesPercent{}, ctx.Err()
	case <-time.After(interval):
	}

	after, err := cpu.TimesWithContext(ctx, false)
	if err != nil || len(after) == 0 {
		return CPUTimesPercent{}, err
	}

	b, a := before[0], after[0]
	dUser := (a.User + a.Nice) - (b.User + b.Nice)
	dSystem := (a.System + a.Irq + a.Softirq) - (b.System + b.Irq + b.Softirq)
	dIdle := a.Idle - b.Idle
	dIowait := a.Iowait - b.Iowait
	dSteal := a.Steal - b.Steal

	total := dUser + dSystem + dIdle + dIowait + dSteal
	if total <= 0 {
		return CPUTimesPercent{}, nil
	}

	return CPUTimesPercent{
		User:   dUser / total * 100,
		System: dSystem / total * 100,
		Idle:   dIdle / total * 100,
		Iowait: dIowait / total * 100,
		Steal:  dSteal / total * 100,
	}, nil
}

// VirtualMemory reports host RAM usage.
func (p *DefaultProbe) VirtualMemory(ctx context.Context) (VirtualMemory, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return VirtualMemory{}, err
	}
	return VirtualMemory{
		Total:       v.Total,
		Available:   v.Available,
		Used:        v.Total - v.Available,
		UsedAll:     v.Used,
		Free:        v.Free,
		Cached:      v.Cached,
		Buffers:     v.Buffers,
		Shared:      v.Shared,
		UsedPercent: v.UsedPercent,
	}, nil
}

// SwapMemory reports host swap usage.
func (p *DefaultProbe) SwapMemory(ctx context.Context) (SwapMemory, error) {
	s, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return SwapMemory{}, err
	}
	return SwapMemory{
		Total:       s.Total,
		Used:        s.Used,
		Free:        s.Free,
		UsedPercent: s.UsedPercent,
	}, nil
}

// LoadAverage reports the host's 1/5/15-minute load averages.
func (p *DefaultProbe) LoadAverage(ctx context.Context) (LoadAverage, error) {
	l, err := load.AvgWithContext(ctx)
	if err != nil {
		return LoadAverage{}, err
	}
	return LoadAverage{Load1: l.Load1, Load5: l.Load5, Load15: l.Load15}, nil
}

// DiskIOCounters reports cumulative per-disk and "__all__" aggregate I/O
// counters, matching SystemMetricsCollector.disk_io_counters' shape.
func (p *DefaultProbe) DiskIOCounters(ctx context.Context) (map[string]DiskIOCounters, error) {
	perDisk, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]DiskIOCounters, len(perDisk)+1)
	var all DiskIOCounters
	for name, io := range perDisk {
		c := DiskIOCounters{
			ReadCount:  io.ReadCount,
			WriteCount: io.WriteCount,
			ReadBytes:  io.ReadBytes,
			WriteBytes: io.WriteBytes,
			ReadTime:   io.ReadTime,
			WriteTime:  io.WriteTime,
		}
		out[name] = c
		all.ReadCount += c.ReadCount
		all.WriteCount += c.WriteCount
		all.ReadBytes += c.ReadBytes
		all.WriteBytes += c.WriteBytes
		all.ReadTime += c.ReadTime
		all.WriteTime += c.WriteTime
	}
	out["__all__"] = all
	return out, nil
}

// HostInfo reports static host identity.
func (p *DefaultProbe) HostInfo(ctx context.Context) (HostInfo, error) {
	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{}, err
	}
	return HostInfo{
		Hostname:        h.Hostname,
		BootTime:        time.Unix(int64(h.BootTime), 0),
		OS:              h.OS,
		Platform:        h.Platform,
		PlatformVersion: h.PlatformVersion,
		KernelVersion:   h.KernelVersion,
		KernelArch:      h.KernelArch,
	}, nil
}

// NetInterfaces reports every network interface's name, MAC, and bound
// IPv4/IPv6 addresses. Parsing the CIDR gopsutil returns into an
// address/prefix pair uses net.ParseCIDR from the standard library: none of
// the pack's third-party dependencies offer an IP-address parser, so this
// one narrow piece stays on the standard library (see DESIGN.md).
func (p *DefaultProbe) NetInterfaces(ctx context.Context) ([]NetInterface, error) {
	ifaces, err := gopsnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]NetInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		ni := NetInterface{Name: iface.Name, MAC: iface.HardwareAddr}
		for _, addr := range iface.Addrs {
			parsed := parseInterfaceAddress(addr.Addr)
			if parsed == nil {
				continue
			}
			if strings.Contains(addr.Addr, ":") {
				if ni.IPv6 == nil {
					ni.IPv6 = parsed
				}
			} else if ni.IPv4 == nil {
				ni.IPv4 = parsed
			}
		}
		out = append(out, ni)
	}
	return out, nil
}

func parseInterfaceAddress(cidr string) *NetInterfaceAddress {
	ip, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil
	}
	prefixLen, _ := network.Mask.Size()
	return &NetInterfaceAddress{Address: ip.String(), PrefixLen: prefixLen}
}
