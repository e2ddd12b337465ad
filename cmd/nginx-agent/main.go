// Command nginx-agent is the process entrypoint: it loads the on-disk
// config, boots the Supervisor with a "system" and a "nginx" object
// manager, and runs until SIGINT/SIGTERM.
//
// Grounded on original_source/amplify/agent/main.py (option parsing,
// configtest short-circuit) and runner.py (pidfile lifecycle), adapted to
// a single foreground process since Go has no daemon/python-daemon
// equivalent in the retrieval pack.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/agentconfig"
	"github.com/nginxinc/nginx-telemetry-agent/internal/bridge"
	"github.com/nginxinc/nginx-telemetry-agent/internal/httpclient"
	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
	"github.com/nginxinc/nginx-telemetry-agent/internal/manager"
	"github.com/nginxinc/nginx-telemetry-agent/internal/nginxobj"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
	"github.com/nginxinc/nginx-telemetry-agent/internal/objecttank"
	"github.com/nginxinc/nginx-telemetry-agent/internal/probe"
	"github.com/nginxinc/nginx-telemetry-agent/internal/runtimeutil"
	"github.com/nginxinc/nginx-telemetry-agent/internal/subprocrunner"
	"github.com/nginxinc/nginx-telemetry-agent/internal/supervisor"
	"github.com/nginxinc/nginx-telemetry-agent/internal/sysobj"
	"github.com/nginxinc/nginx-telemetry-agent/internal/version"
)

const discoverInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the agent's INI config file")
	pidPath := flag.String("pid", "", "path to the pid file (overrides daemon.pid from config)")
	testConfig := flag.Bool("test-config", false, "load and validate the config, then exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	showVersion := flag.Bool("version", false, "print the agent version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.FullVersion())
		return
	}

	env := runtimeutil.Env()
	cfg, err := agentconfig.Load(env, *configPath)
	if *testConfig {
		if err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("config OK")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "nginx-agent: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("nginx-agent", *logLevel, *logFormat)
	snap := cfg.Snapshot()
	creds := snap.Credentials()
	daemonCfg := snap.Daemon()
	cloudCfg := snap.Cloud()

	pidFilePath := *pidPath
	if pidFilePath == "" {
		pidFilePath = daemonCfg.PID
	}
	pf := newPIDFile(pidFilePath)
	if err := pf.acquire(); err != nil {
		fmt.Fprintf(os.Stderr, "nginx-agent: %v\n", err)
		os.Exit(1)
	}
	defer pf.release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := probe.NewDefaultProbe()
	runner := subprocrunner.NewDefaultRunner()
	tank := objecttank.New()

	inContainer := creds.ImageName != ""
	hostValue := creds.Hostname
	if inContainer {
		hostValue = creds.ImageName
	}

	sysPoll := snap.PollIntervalsFor("system", agentconfig.PollIntervals{
		Meta:    20 * time.Second,
		Metrics: 20 * time.Second,
	})

	governor := sysobj.NewCPUGovernor(p, int32(os.Getpid()), daemonCfg.CPULimit, daemonCfg.CPUSleep)

	sysCfg := sysobj.Config{
		UUID:            creds.UUID,
		RootUUID:        creds.UUID,
		HostValue:       hostValue,
		InContainer:     inContainer,
		ImageName:       creds.ImageName,
		AgentVersion:    version.Version,
		AgentPID:        os.Getpid(),
		StartTime:       time.Now(),
		Tags:            snap.Tags(),
		MetaInterval:    sysPoll.Meta,
		MetricsInterval: sysPoll.Metrics,
		ResendWaitTime:  60 * time.Second,
		Probe:           p,
		Runner:          runner,
		Governor:        governor,
		Logger:          logger,
	}

	systemManager := manager.New(
		"system",
		[]object.Type{object.TypeSystem, object.TypeContainer},
		tank,
		sysobj.NewFactory(sysCfg),
		sysobj.NewDiscoverer(sysCfg),
		sysPoll.Metrics,
		discoverInterval,
		logger,
	)

	nginxPoll := snap.PollIntervalsFor("nginx", agentconfig.PollIntervals{
		Meta:    20 * time.Second,
		Metrics: 20 * time.Second,
	})

	var launchers []string
	if raw, ok := snap.Section("agent")["launchers"].([]string); ok {
		launchers = raw
	}

	nginxCfg := nginxobj.Config{
		RootUUID:        creds.UUID,
		InContainer:     inContainer,
		MetricsInterval: nginxPoll.Metrics,
		ResendWaitTime:  60 * time.Second,
		UploadConfig:    snap.ContainerBool("nginx", "upload_config", true),
		RunConfigTest:   snap.ContainerBool("nginx", "run_config_test", true),
		UploadSSL:       snap.ContainerBool("nginx", "upload_ssl_certificates", false),
		Runner:          runner,
		Logger:          logger,
	}

	nginxManager := manager.New(
		"nginx",
		[]object.Type{object.TypeNginx, object.TypeContainerNginx},
		tank,
		nginxobj.NewFactory(nginxCfg),
		nginxobj.NewDiscoverer(p, runner, creds.UUID, inContainer, launchers),
		nginxPoll.Metrics,
		discoverInterval,
		logger,
	)

	apiURL, _, err := httpclient.NormalizeAPIURL(cloudCfg.APIURL)
	if err != nil {
		apiURL = cloudCfg.APIURL
	}

	cloudClient := bridge.NewCloudClient(apiURL, nil)
	bridgeInstance := bridge.New(tank, cloudClient, cloudCfg.PushInterval, logger)
	handshaker := supervisor.NewHTTPHandshaker(apiURL, creds.APIKey, nil)

	sup := supervisor.New(supervisor.Options{
		Tank: tank,
		Config: cfg,
		ObjectManagers: map[string]*manager.Manager{
			"system": systemManager,
			"nginx":  nginxManager,
		},
		Handshaker:   handshaker,
		Bridge:       bridgeInstance,
		CloudClient:  cloudClient,
		Logger:       logger,
		AgentVersion: version.Version,
	})

	if err := sup.Boot(ctx); err != nil {
		logger.WithContext(ctx).WithError(err).Error("boot failed")
		os.Exit(1)
	}

	sup.Run(ctx)
}
