package sysobj

import (
	"github.com/nginxinc/nginx-telemetry-agent/internal/manager"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
	"github.com/nginxinc/nginx-telemetry-agent/internal/objecttank"
)

// Discoverer always reports exactly one instance: the host itself, or the
// container the agent runs in. Unlike internal/nginxobj's Discoverer (which scans the
// process table for master processes that may come and go), the system
// object has no discovery surface in the original agent either —
// SystemObject is constructed once at startup by context.py's bootstrap,
// never rediscovered. This Discoverer exists so the same
// discover/start/schedule Manager machinery that drives every other object
// type also drives the root object, rather than special-casing it in
// cmd/nginx-agent.
type Discoverer struct {
	cfg Config
}

// NewDiscoverer constructs a Discoverer that always reports cfg's identity.
func NewDiscoverer(cfg Config) *Discoverer {
	return &Discoverer{cfg: cfg}
}

// Discover implements manager.Discoverer.
func (d *Discoverer) Discover() ([]manager.Discovered, error) {
	hosttype := "hostname"
	if d.cfg.InContainer {
		hosttype = "imagename"
	}
	typ := object.TypeSystem
	if d.cfg.InContainer {
		typ = object.TypeContainer
	}

	def := object.Definition{
		"type":   string(typ),
		"uuid":   d.cfg.UUID,
		hosttype: d.cfg.HostValue,
	}

	return []manager.Discovered{{
		Definition: def,
		PID:        d.cfg.AgentPID,
		Generation: 0,
	}}, nil
}

// NewFactory returns a manager.Factory that always builds a fresh Object
// from cfg, ignoring the discovery data since there is only ever one
// instance to build.
func NewFactory(cfg Config) manager.Factory {
	return func(map[string]interface{}) objecttank.Registered {
		return New(cfg)
	}
}
