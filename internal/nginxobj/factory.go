package nginxobj

import (
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/configparser"
	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
	"github.com/nginxinc/nginx-telemetry-agent/internal/manager"
	"github.com/nginxinc/nginx-telemetry-agent/internal/objecttank"
	"github.com/nginxinc/nginx-telemetry-agent/internal/subprocrunner"
)

// Config bundles everything NewFactory needs to build an Object with its
// config collector already attached, mirroring NginxObject.__init__'s
// eager _setup_config_collector wiring.
type Config struct {
	RootUUID        string
	InContainer     bool
	MetricsInterval time.Duration
	ResendWaitTime  time.Duration

	UploadConfig  bool
	RunConfigTest bool
	UploadSSL     bool

	Runner subprocrunner.Runner
	Logger *logging.Logger
}

// NewFactory returns a manager.Factory that builds an Object from the
// Discovered.Data payload Discoverer.Discover produces for that instance.
func NewFactory(cfg Config) manager.Factory {
	return func(data map[string]interface{}) objecttank.Registered {
		localID, _ := data["local_id"].(string)
		pid, _ := data["pid"].(int)
		version, _ := data["version"].(string)
		workers, _ := data["workers"].(int)
		prefix, _ := data["prefix"].(string)
		binPath, _ := data["bin_path"].(string)
		confPath, _ := data["conf_path"].(string)

		obj := NewObject(cfg.RootUUID, localID, int32(pid), version, workers, prefix, binPath, confPath,
			cfg.InContainer, cfg.MetricsInterval, cfg.ResendWaitTime, 0)

		parser := configparser.New(cfg.UploadSSL)
		obj.ConfigCollector = NewConfigCollector(confPath, parser, cfg.Runner, obj.Events, obj.Configs,
			cfg.UploadConfig, cfg.RunConfigTest, nil)

		return obj
	}
}
