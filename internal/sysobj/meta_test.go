package sysobj

import (
	"strings"
	"testing"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/probe"
	"github.com/nginxinc/nginx-telemetry-agent/internal/subprocrunner"
)

func TestMetaCollector_GatherMergesAllSubCollectorResults(t *testing.T) {
	p := newFakeProbe()
	p.diskUsage = []probe.DiskUsage{{MountPoint: "/", Device: "/dev/sda1", FSType: "ext4"}}
	p.hostInfo = probe.HostInfo{
		Hostname: "my-host", Platform: "ubuntu", PlatformVersion: "22.04", KernelVersion: "5.15.0",
		BootTime: time.Unix(1_700_000_000, 0),
	}
	p.netIfaces = []probe.NetInterface{
		{Name: "eth0", MAC: "aa:bb:cc:dd:ee:ff", IPv4: &probe.NetInterfaceAddress{Address: "10.0.0.1", PrefixLen: 24}},
	}

	runner := subprocrunner.NewFakeRunner()
	runner.Script("cat /proc/cpuinfo", subprocrunner.Result{StdoutLines: []string{
		"model name\t: Intel(R) Xeon(R)",
		"cpu cores\t: 4",
	}})
	runner.Script("lscpu", subprocrunner.Result{StdoutLines: []string{
		"Architecture:        x86_64",
		"CPU MHz:             2400.000",
	}})
	runner.Script("uname -a", subprocrunner.Result{StdoutLines: []string{"Linux my-host 5.15.0 x86_64 GNU/Linux"}})

	obj := NewObject("uuid-1", "root-1", "my-host", false, "", "", "1.0.0", 1, time.Now(), time.Second, 0)
	mc := NewMetaCollector(obj, time.Second, p, runner, obj.Running, nil, map[string]string{"env": "prod"})

	meta := map[string]interface{}{
		"processor": map[string]interface{}{"cache": map[string]interface{}{}},
	}
	if err := mc.gather(meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	partitions, ok := meta["disk_partitions"].([]interface{})
	if !ok || len(partitions) != 1 {
		t.Fatalf("expected one disk partition entry, got %v", meta["disk_partitions"])
	}

	release, ok := meta["release"].(map[string]interface{})
	if !ok || release["name"] != "ubuntu" || release["version_id"] != "22.04" {
		t.Fatalf("unexpected release info: %v", meta["release"])
	}
	if meta["hostname"] != "my-host" {
		t.Fatalf("expected hostname to be filled for a non-container object, got %v", meta["hostname"])
	}

	processor, ok := meta["processor"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected processor map, got %v", meta["processor"])
	}
	if processor["model"] != "Intel(R) Xeon(R)" || processor["cores"] != "4" {
		t.Fatalf("unexpected processor info from /proc/cpuinfo: %v", processor)
	}
	if processor["architecture"] != "x86_64" || processor["mhz"] != "2400.000" {
		t.Fatalf("unexpected processor info from lscpu: %v", processor)
	}

	uname, _ := meta["uname"].(string)
	if !strings.Contains(uname, "Linux my-host") {
		t.Fatalf("unexpected uname: %v", meta["uname"])
	}

	network, ok := meta["network"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected network map, got %v", meta["network"])
	}
	interfaces, ok := network["interfaces"].([]interface{})
	if !ok || len(interfaces) != 1 {
		t.Fatalf("expected one network interface, got %v", network["interfaces"])
	}
	if network["default"] != "eth0" {
		t.Fatalf("expected eth0 as the default interface guess, got %v", network["default"])
	}
}

func TestMetaCollector_GatherAggregatesPartialFailuresWithoutBlockingOthers(t *testing.T) {
	p := newFakeProbe()
	p.diskUsageErr = errTest("disk probe unavailable")
	p.hostInfo = probe.HostInfo{Hostname: "my-host", Platform: "ubuntu"}

	runner := subprocrunner.NewFakeRunner()
	runner.Script("uname -a", subprocrunner.Result{StdoutLines: []string{"Linux my-host"}})

	obj := NewObject("uuid-1", "root-1", "my-host", false, "", "", "1.0.0", 1, time.Now(), time.Second, 0)
	mc := NewMetaCollector(obj, time.Second, p, runner, obj.Running, nil, nil)

	meta := map[string]interface{}{}
	err := mc.gather(meta)
	if err == nil {
		t.Fatal("expected the disk-partitions failure to surface")
	}
	if !strings.Contains(err.Error(), "disk probe unavailable") {
		t.Fatalf("expected the underlying disk error to be present in the aggregated error, got %v", err)
	}

	// The failing sub-step must not have prevented the others from running.
	if meta["hostname"] != "my-host" {
		t.Fatalf("expected hostInfo to still populate despite the disk failure, got %v", meta["hostname"])
	}
	if meta["uname"] != "Linux my-host" {
		t.Fatalf("expected uname to still populate despite the disk failure, got %v", meta["uname"])
	}
}

func TestMetaCollector_NetworkOmitsAddressesInsideContainer(t *testing.T) {
	p := newFakeProbe()
	p.netIfaces = []probe.NetInterface{
		{Name: "eth0", MAC: "aa:bb:cc:dd:ee:ff", IPv4: &probe.NetInterfaceAddress{Address: "10.0.0.1", PrefixLen: 24}},
	}

	obj := NewObject("uuid-1", "root-1", "my-image", true, "my-image", "docker", "1.0.0", 1, time.Now(), time.Second, 0)
	mc := NewMetaCollector(obj, time.Second, p, nil, obj.Running, nil, nil)

	meta := map[string]interface{}{}
	if err := mc.gather(meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	network := meta["network"].(map[string]interface{})
	interfaces := network["interfaces"].([]interface{})
	entry := interfaces[0].(map[string]interface{})
	if _, present := entry["ipv4"]; present {
		t.Fatal("expected ipv4 address to be omitted for a container object")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
