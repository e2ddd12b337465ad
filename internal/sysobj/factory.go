package sysobj

import (
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
	"github.com/nginxinc/nginx-telemetry-agent/internal/probe"
	"github.com/nginxinc/nginx-telemetry-agent/internal/subprocrunner"
)

// Config bundles everything New needs to build a root Object with its
// meta/metrics collectors already attached, mirroring how
// SystemObject.__init__ wires _setup_meta_collector/_setup_metrics_collector
// eagerly at construction time rather than through a deferred factory.
type Config struct {
	UUID          string
	RootUUID      string
	HostValue     string
	InContainer   bool
	ImageName     string
	ContainerType string
	AgentVersion  string
	AgentPID      int
	StartTime     time.Time
	Tags          map[string]string

	MetaInterval    time.Duration
	MetricsInterval time.Duration
	ResendWaitTime  time.Duration

	Probe    probe.Probe
	Runner   subprocrunner.Runner
	Governor *CPUGovernor

	Logger *logging.Logger
}

// New builds a root Object from cfg with its meta and metrics collectors
// registered, ready to be started by the system manager.
func New(cfg Config) *Object {
	obj := NewObject(
		cfg.UUID, cfg.RootUUID, cfg.HostValue, cfg.InContainer, cfg.ImageName, cfg.ContainerType,
		cfg.AgentVersion, cfg.AgentPID, cfg.StartTime, cfg.MetricsInterval, cfg.ResendWaitTime,
	)

	isRunning := obj.Running

	meta := NewMetaCollector(obj, cfg.MetaInterval, cfg.Probe, cfg.Runner, isRunning, cfg.Logger, cfg.Tags)
	metrics := NewMetricsCollector(obj, cfg.MetricsInterval, cfg.Probe, cfg.Runner, cfg.Governor, isRunning, cfg.Logger)

	obj.AddCollector(meta)
	obj.AddCollector(metrics)

	return obj
}
