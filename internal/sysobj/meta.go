package sysobj

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/nginxinc/nginx-telemetry-agent/internal/collector"
	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
	"github.com/nginxinc/nginx-telemetry-agent/internal/probe"
	"github.com/nginxinc/nginx-telemetry-agent/internal/subprocrunner"
)

var (
	procCPUInfoPattern = regexp.MustCompile(`([\w.\s]+):\s*(.+)`)
	lscpuPattern       = regexp.MustCompile(`([\w\d\s()\.]+):\s+(.+)`)
)

// MetaCollector gathers the host's (or container's) static metadata each
// pass: disk partitions, OS release, processor info, uname, and network
// interfaces. Grounded on collectors/system/meta.py's SystemMetaCollector.
type MetaCollector struct {
	*collector.MetaCollector

	probe       probe.Probe
	runner      subprocrunner.Runner
	inContainer bool
}

// NewMetaCollector constructs a MetaCollector for obj, sampling every
// interval. tags is spliced into the reported document verbatim
// (context.tags in the original).
func NewMetaCollector(obj *Object, interval time.Duration, p probe.Probe, runner subprocrunner.Runner, isRunning func() bool, logger *logging.Logger, tags map[string]string) *MetaCollector {
	mc := &MetaCollector{probe: p, runner: runner, inContainer: obj.InContainer}

	defaultMeta := map[string]interface{}{
		"type":            string(obj.Type()),
		"uuid":            obj.UUID,
		"display_name":    obj.DisplayName(),
		"tags":            tags,
		"network":         map[string]interface{}{"interfaces": []interface{}{}, "default": nil},
		"disk_partitions": []interface{}{},
		"release":         map[string]interface{}{"name": nil, "version_id": nil, "version": nil},
		"processor":       map[string]interface{}{"cache": map[string]interface{}{}},
	}
	if obj.InContainer {
		defaultMeta["imagename"] = obj.ImageName
		containerType := obj.ContainerType
		if containerType == "" {
			containerType = "None"
		}
		defaultMeta["container_type"] = containerType
	} else {
		defaultMeta["hostname"] = obj.HostValue
	}

	mc.MetaCollector = collector.NewMetaCollector("sys_meta", interval, obj.Meta, isRunning, logger, defaultMeta, mc.gather)
	return mc
}

// gather runs every sub-collection step, accumulating partial failures
// instead of letting one bad step (a missing binary, an unreadable
// /proc/cpuinfo) hide the others' results — the Go counterpart of each
// original sub-method logging its own failure independently.
func (m *MetaCollector) gather(meta map[string]interface{}) error {
	ctx := context.Background()
	var errs *multierror.Error

	if err := m.diskPartitions(ctx, meta); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := m.hostInfo(ctx, meta); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := m.procCPUInfo(ctx, meta); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := m.lscpu(ctx, meta); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := m.uname(ctx, meta); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := m.network(ctx, meta); err != nil {
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}

func (m *MetaCollector) diskPartitions(ctx context.Context, meta map[string]interface{}) error {
	usages, err := m.probe.DiskUsage(ctx)
	if err != nil {
		return err
	}
	partitions := make([]interface{}, 0, len(usages))
	for _, u := range usages {
		partitions = append(partitions, map[string]interface{}{
			"mountpoint": u.MountPoint,
			"device":     u.Device,
			"fstype":     u.FSType,
		})
	}
	meta["disk_partitions"] = partitions
	return nil
}

// hostInfo fills release, and outside a container also hostname and boot,
// matching etc_release + psutil.boot_time.
func (m *MetaCollector) hostInfo(ctx context.Context, meta map[string]interface{}) error {
	info, err := m.probe.HostInfo(ctx)
	if err != nil {
		return err
	}
	meta["release"] = map[string]interface{}{
		"name":       info.Platform,
		"version_id": info.PlatformVersion,
		"version":    info.KernelVersion,
	}
	if !m.inContainer {
		meta["hostname"] = info.Hostname
		meta["boot"] = info.BootTime.UnixMilli()
	}
	return nil
}

func (m *MetaCollector) procCPUInfo(ctx context.Context, meta map[string]interface{}) error {
	if m.runner == nil {
		return nil
	}
	result, err := m.runner.Run(ctx, 2*time.Second, "cat", "/proc/cpuinfo")
	if err != nil {
		return err
	}
	processor, _ := meta["processor"].(map[string]interface{})
	if processor == nil {
		processor = map[string]interface{}{"cache": map[string]interface{}{}}
		meta["processor"] = processor
	}
	for _, line := range result.StdoutLines {
		match := procCPUInfoPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		key, value := strings.TrimSpace(match[1]), strings.TrimSpace(match[2])
		switch {
		case strings.HasPrefix(key, "model name"):
			processor["model"] = value
		case strings.HasPrefix(key, "cpu cores"):
			processor["cores"] = value
		}
	}
	return nil
}

func (m *MetaCollector) lscpu(ctx context.Context, meta map[string]interface{}) error {
	if m.runner == nil {
		return nil
	}
	result, err := m.runner.Run(ctx, 2*time.Second, "lscpu")
	if err != nil {
		return err
	}
	processor, _ := meta["processor"].(map[string]interface{})
	if processor == nil {
		processor = map[string]interface{}{"cache": map[string]interface{}{}}
		meta["processor"] = processor
	}
	cache, _ := processor["cache"].(map[string]interface{})
	if cache == nil {
		cache = map[string]interface{}{}
		processor["cache"] = cache
	}
	for _, line := range result.StdoutLines {
		match := lscpuPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		key, value := strings.TrimSpace(match[1]), strings.TrimSpace(match[2])
		switch {
		case key == "Architecture":
			processor["architecture"] = value
		case key == "CPU MHz":
			processor["mhz"] = value
		case key == "Hypervisor vendor":
			processor["hypervisor"] = value
		case key == "Virtualization type":
			processor["virtualization"] = value
		case key == "CPU(s)":
			processor["cpus"] = value
		case strings.Contains(key, "cache"):
			cache[strings.TrimSpace(strings.Replace(key, " cache", "", 1))] = value
		}
	}
	return nil
}

func (m *MetaCollector) uname(ctx context.Context, meta map[string]interface{}) error {
	if m.runner == nil {
		return nil
	}
	args := []string{"-a"}
	if m.inContainer {
		args = []string{"-s", "-r", "-v", "-m", "-p"}
	}
	result, err := m.runner.Run(ctx, 2*time.Second, "uname", args...)
	if err != nil {
		return err
	}
	if len(result.StdoutLines) > 0 {
		meta["uname"] = result.StdoutLines[0]
	}
	return nil
}

// network fills interface identity/addresses and the best-guess default
// route interface. Grounded on SystemMetaCollector.network; netstat's
// default-route probe is skipped here since the pack carries no routing-
// table library, so the default interface is always the first one seen —
// a documented simplification (see DESIGN.md).
func (m *MetaCollector) network(ctx context.Context, meta map[string]interface{}) error {
	ifaces, err := m.probe.NetInterfaces(ctx)
	if err != nil {
		return err
	}

	list := make([]interface{}, 0, len(ifaces))
	var defaultName interface{}
	for _, iface := range ifaces {
		entry := map[string]interface{}{"name": iface.Name, "mac": iface.MAC}
		if !m.inContainer {
			if iface.IPv4 != nil {
				entry["ipv4"] = map[string]interface{}{
					"address":   iface.IPv4.Address,
					"prefixlen": iface.IPv4.PrefixLen,
				}
			}
			if iface.IPv6 != nil {
				entry["ipv6"] = map[string]interface{}{
					"address":   iface.IPv6.Address,
					"prefixlen": iface.IPv6.PrefixLen,
				}
			}
		}
		list = append(list, entry)
		if defaultName == nil {
			defaultName = iface.Name
		}
	}

	meta["network"] = map[string]interface{}{
		"interfaces": list,
		"default":    defaultName,
	}
	return nil
}
