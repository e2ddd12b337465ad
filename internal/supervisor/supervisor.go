// Package supervisor implements the Supervisor: the process-wide
// coordinator that boots the object managers and Bridge, talks to the
// control plane on a timer, and applies whatever config/capability/version
// changes that conversation produces.
//
// Grounded on original_source/amplify/agent/supervisor.py.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/agentconfig"
	"github.com/nginxinc/nginx-telemetry-agent/internal/agenterrors"
	"github.com/nginxinc/nginx-telemetry-agent/internal/bridge"
	"github.com/nginxinc/nginx-telemetry-agent/internal/clock"
	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
	"github.com/nginxinc/nginx-telemetry-agent/internal/manager"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
	"github.com/nginxinc/nginx-telemetry-agent/internal/objecttank"
)

// defaultObjectManagerOrder is the fixed core manager boot/shutdown order
// (object_manager_order in supervisor.py): system before nginx so nginx
// workers register as children of the host, status/api last since they
// depend on nginx being discovered first.
var defaultObjectManagerOrder = []string{"system", "nginx", "status", "api"}

// Options configures a Supervisor at construction time. ObjectManagers and
// ExternalManagers are supplied by the caller (cmd/nginx-agent) rather than
// discovered by this package, replacing load_ext_managers'
// pkgutil.iter_modules walk with static registration — Go has no runtime
// package introspection to port that against.
type Options struct {
	Tank               *objecttank.Tank
	Config             *agentconfig.Config
	ObjectManagers     map[string]*manager.Manager // keyed by object.Type string, e.g. "system", "nginx"
	ObjectManagerOrder []string                    // defaults to defaultObjectManagerOrder if nil
	ExternalManagers   []ExternalManager

	Handshaker  Handshaker
	Bridge      *bridge.Bridge
	CloudClient CloudURLUpdater

	Logger        *logging.Logger
	AgentVersion  string
	FreezeAPIURL  bool
	DebugMode     bool
	DebugModeTime time.Duration
}

// Supervisor is the agent's top-level coordinator.
type Supervisor struct {
	mu sync.Mutex

	tank *objecttank.Tank
	cfg  *agentconfig.Config

	objectManagers     map[string]*manager.Manager
	objectManagerOrder []string

	extManagers map[string]ExternalManager
	extRunners  map[string]*extRunner

	handshaker      Handshaker
	bridgeInstance  *bridge.Bridge
	cloudClient     CloudURLUpdater
	logger          *logging.Logger
	capabilities    *Capabilities
	objectConfigs   map[string]map[int]map[string]interface{}
	freezeAPIURL    bool
	agentVersion    semver
	debugMode       bool
	debugModeTime   time.Duration
	startTime       time.Time
	actionID        int64
	running         bool
	lastCloudTalk   time.Time
	cloudTalkFails  int
	cloudTalkDelay  time.Duration
	backpressureDue time.Time
}

// New constructs a Supervisor from opts.
func New(opts Options) *Supervisor {
	order := opts.ObjectManagerOrder
	if order == nil {
		order = defaultObjectManagerOrder
	}

	extManagers := make(map[string]ExternalManager, len(opts.ExternalManagers))
	for _, em := range opts.ExternalManagers {
		extManagers[em.Name()] = em
	}

	debugModeTime := opts.DebugModeTime
	if debugModeTime <= 0 {
		debugModeTime = 5 * time.Minute
	}

	return &Supervisor{
		tank:               opts.Tank,
		cfg:                opts.Config,
		objectManagers:     opts.ObjectManagers,
		objectManagerOrder: order,
		extManagers:        extManagers,
		extRunners:         make(map[string]*extRunner),
		handshaker:         opts.Handshaker,
		bridgeInstance:     opts.Bridge,
		cloudClient:        opts.CloudClient,
		logger:             opts.Logger,
		capabilities:       newCapabilities(),
		objectConfigs:      make(map[string]map[int]map[string]interface{}),
		freezeAPIURL:       opts.FreezeAPIURL,
		agentVersion:       parseSemver(opts.AgentVersion),
		debugMode:          opts.DebugMode,
		debugModeTime:      debugModeTime,
		running:            true,
	}
}

// Boot performs the initial handshake, starts every object manager and
// external manager, and starts the Bridge. Mirrors run()'s setup section
// in supervisor.py, before it enters the 5-second main loop.
func (s *Supervisor) Boot(ctx context.Context) error {
	s.startTime = clock.Now()

	if err := s.talkToCloud(ctx, true, true); err != nil {
		if s.logger != nil {
			s.logger.WithContext(ctx).WithError(err).Error("initial cloud handshake failed")
		}
	}

	for _, name := range s.objectManagerOrder {
		if om, ok := s.objectManagers[name]; ok {
			go om.Run(ctx)
		}
	}
	for name, om := range s.objectManagers {
		if !inOrder(s.objectManagerOrder, name) {
			go om.Run(ctx)
		}
	}

	s.startExtManagers(ctx)

	if s.bridgeInstance != nil {
		go s.bridgeInstance.Run(ctx)
	}

	return nil
}

// Run drives the 5-second main loop until ctx is cancelled or Stop is
// called: debug-mode timeout, periodic cloud handshake, bridge health
// check, and external manager respawn. Mirrors run()'s while loop.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if !clock.SleepCancellable(ctx, 5*time.Second) {
			return
		}

		if s.debugMode {
			elapsed := clock.Now().Sub(s.startTime)
			if elapsed > s.debugModeTime {
				s.Stop()
			}
		}

		if !s.isRunning() {
			s.stopEverything(ctx)
			return
		}

		s.mu.Lock()
		s.actionID++
		s.mu.Unlock()

		root := s.tank.RootObject()
		if root != nil {
			def := root.Definition()
			if len(def) > 0 && def.Healthy() {
				if err := s.talkToCloud(ctx, false, false); err != nil {
					if s.logger != nil {
						s.logger.WithContext(ctx).WithError(err).Error("could not connect to cloud")
					}
				}
			} else {
				if s.logger != nil {
					s.logger.WithContext(ctx).Error("root object definition unhealthy, agent stopping")
				}
				s.Stop()
			}
		}

		s.manageExternalManagers(ctx)
	}
}

func (s *Supervisor) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop requests the main loop exit on its next tick. Mirrors the Python
// daemon's stop() setting is_running False.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// stopEverything stops every object manager (reverse boot order) and every
// external manager, and logs the final shutdown event. Mirrors
// stop_everything, registered there via atexit.
func (s *Supervisor) stopEverything(ctx context.Context) {
	s.stopAllObjectManagers()
	s.stopExtManagers()

	if s.bridgeInstance != nil {
		s.bridgeInstance.FlushMetrics(ctx)
	}

	if s.logger != nil {
		creds := s.cfg.Snapshot().Credentials()
		s.logger.WithContext(ctx).
			WithField("version", s.agentVersion.String()).
			WithField("uuid", creds.UUID).
			Info("agent stopped")
	}
}

// talkToCloud exchanges the root object's definition with the control
// plane, applies version/capability/config updates from the response, and
// returns an error only for the genuinely unexpected case (transport
// failure); backpressure and due-gating are handled internally exactly
// like the original silently returning early.
func (s *Supervisor) talkToCloud(ctx context.Context, force, initial bool) error {
	now := clock.Now()

	s.mu.Lock()
	due := force || (now.After(s.lastCloudTalk.Add(s.cfg.Snapshot().Cloud().TalkInterval+s.cloudTalkDelay)) &&
		now.After(s.backpressureDue))
	s.mu.Unlock()
	if !due {
		return nil
	}

	var rootDef object.Definition
	if root := s.tank.RootObject(); root != nil {
		rootDef = root.Definition()
	}

	s.mu.Lock()
	s.lastCloudTalk = clock.Now()
	s.mu.Unlock()

	resp, err := s.handshaker.Handshake(ctx, rootDef)
	if err != nil {
		if ae := agenterrors.As(err); ae != nil && ae.Category == agenterrors.Backpressure {
			delaySeconds, _ := ae.Details["retry_after_seconds"].(int)
			s.mu.Lock()
			s.backpressureDue = clock.Now().Add(time.Duration(delaySeconds) * time.Second)
			s.mu.Unlock()
			if s.logger != nil {
				s.logger.WithContext(ctx).WithField("retry_after_seconds", delaySeconds).
					Debug("back pressure delay added by control plane")
			}
			return nil
		}

		s.mu.Lock()
		s.cloudTalkFails++
		delay := cloudTalkExponentialDelay(s.cloudTalkFails)
		s.cloudTalkDelay = time.Duration(delay) * time.Second
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.cloudTalkDelay > 0 {
		s.cloudTalkFails = 0
		s.cloudTalkDelay = 0
	}
	s.mu.Unlock()

	s.applyVersionGate(ctx, resp.Versions)
	s.capabilities.applyAll(resp.Capabilities)
	s.applyCloudConfig(ctx, resp, initial)

	return nil
}

func (s *Supervisor) applyVersionGate(ctx context.Context, versions VersionsInfo) {
	obsolete := parseSemver(versions.Obsolete)
	old := parseSemver(versions.Old)

	if s.agentVersion.lessOrEqual(obsolete) {
		if s.logger != nil {
			s.logger.WithContext(ctx).
				WithField("version", s.agentVersion.String()).
				WithField("current", versions.Current).
				Error("agent is obsolete, cloud will refuse updates until it is updated")
		}
		s.Stop()
		return
	}

	if s.agentVersion.lessOrEqual(old) {
		if s.logger != nil {
			s.logger.WithContext(ctx).
				WithField("version", s.agentVersion.String()).
				WithField("current", versions.Current).
				Warn("agent is old, update is recommended")
		}
	}
}

// Capabilities exposes the current capability flags for callers that need
// to gate behavior on them (e.g. deciding whether to enable an extension).
func (s *Supervisor) Capabilities() *Capabilities {
	return s.capabilities
}
