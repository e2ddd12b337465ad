package nginxobj

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/manager"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
	"github.com/nginxinc/nginx-telemetry-agent/internal/probe"
	"github.com/nginxinc/nginx-telemetry-agent/internal/subprocrunner"
)

var masterProcessPattern = regexp.MustCompile(`nginx: master process`)

// defaultLaunchers mirrors get_launchers' built-in allow-list: process
// supervisors a short-lived nginx wrapper is expected to run under.
var defaultLaunchers = []string{"supervisord", "supervisorctl", "runsv", "supervise", "mysqld_safe"}

// LaunchSupported implements the launcher filter (spec §4.4 point 4): a
// master process whose parent isn't pid 0/1 must be owned by an allowed
// supervisor, and that supervisor must itself be a direct child of init —
// otherwise assume the whole tree runs inside a container boundary that
// isn't ours to manage and skip it.
func LaunchSupported(parentPID int32, parentCommand string, parentOfParentPID int32, extraLaunchers []string) bool {
	if parentPID == 0 || parentPID == 1 {
		return true
	}
	launchers := append(append([]string{}, defaultLaunchers...), extraLaunchers...)
	allowed := false
	for _, l := range launchers {
		if strings.Contains(parentCommand, l) {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	return parentOfParentPID == 0 || parentOfParentPID == 1
}

// Discoverer finds nginx master processes on the host and turns them into
// manager.Discovered entries. Grounded on NginxManager._find_all.
type Discoverer struct {
	Probe       probe.Probe
	Runner      subprocrunner.Runner
	RootUUID    string
	InContainer bool
	ExtraLaunchers []string
}

// NewDiscoverer constructs a Discoverer.
func NewDiscoverer(p probe.Probe, runner subprocrunner.Runner, rootUUID string, inContainer bool, extraLaunchers []string) *Discoverer {
	return &Discoverer{Probe: p, Runner: runner, RootUUID: rootUUID, InContainer: inContainer, ExtraLaunchers: extraLaunchers}
}

// Discover implements manager.Discoverer.
func (d *Discoverer) Discover() ([]manager.Discovered, error) {
	ctx := context.Background()

	masters, err := d.Probe.FindProcesses(ctx, masterProcessPattern)
	if err != nil {
		return nil, err
	}

	workerPattern := regexp.MustCompile(`nginx: worker process`)
	workers, err := d.Probe.FindProcesses(ctx, workerPattern)
	if err != nil {
		workers = nil
	}

	workerCounts := make(map[int32]int)
	for _, w := range workers {
		workerCounts[w.PPID]++
	}

	var out []manager.Discovered
	for _, m := range masters {
		parent, err := d.Probe.Process(ctx, m.PPID)
		parentCmd := ""
		var grandparentPID int32
		if err == nil {
			parentCmd = parent.Command
			grandparentPID = parent.PPID
		}
		if !LaunchSupported(m.PPID, parentCmd, grandparentPID, d.ExtraLaunchers) {
			continue
		}

		version, binPath, prefix, confPath := d.resolveIdentity(ctx, m.Cmdline)
		if binPath == "" {
			continue
		}

		localID := localIDHash(binPath, confPath, prefix)

		out = append(out, manager.Discovered{
			Definition: object.Definition{
				"type":      string(object.TypeNginx),
				"local_id":  localID,
				"root_uuid": d.RootUUID,
			},
			Data: map[string]interface{}{
				"local_id":  localID,
				"pid":       int(m.PID),
				"version":   version,
				"bin_path":  binPath,
				"conf_path": confPath,
				"prefix":    prefix,
				"workers":   workerCounts[m.PID],
			},
			PID:        int(m.PID),
			Generation: workerCounts[m.PID],
		})
	}
	return out, nil
}

func (d *Discoverer) resolveIdentity(ctx context.Context, cmdline []string) (version, binPath, prefix, confPath string) {
	binPath, prefix, confPath = PrefixAndConfPath(cmdline, nil)
	if binPath == "" || d.Runner == nil {
		return "", binPath, prefix, confPath
	}
	result, err := d.Runner.Run(ctx, 2*time.Second, binPath, "-V")
	if err != nil {
		return "", binPath, prefix, confPath
	}
	info := ParseVersion(result.StderrLines)
	if prefix == "" {
		prefix = info.Configure["prefix"]
	}
	if confPath == "" {
		confPath = info.Configure["conf-path"]
	}
	return info.Version, binPath, prefix, confPath
}

func localIDHash(binPath, confPath, prefix string) string {
	sum := sha256.Sum256([]byte(binPath + "_" + confPath + "_" + prefix))
	return hex.EncodeToString(sum[:])
}
