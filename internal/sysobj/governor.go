package sysobj

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/nginxinc/nginx-telemetry-agent/internal/probe"
)

// CPUGovernor throttles how often the system metrics collector's heavier
// passes may run once the agent's own CPU usage crosses daemon.cpu_limit,
// re-expressing check_and_limit_cpu_consumption's ad hoc time.sleep as a
// token bucket: under the limit every call passes immediately, at or over
// it calls are paced to one per CPUSleep.
//
// Grounded on original_source/amplify/agent/common/context.py
// (Context.check_and_limit_cpu_consumption).
type CPUGovernor struct {
	probe    probe.Probe
	pid      int32
	cpuLimit float64
	cpuSleep time.Duration
	limiter  *rate.Limiter
}

// NewCPUGovernor constructs a governor that watches pid's own CPU usage.
func NewCPUGovernor(p probe.Probe, pid int32, cpuLimit float64, cpuSleep time.Duration) *CPUGovernor {
	return &CPUGovernor{
		probe:    p,
		pid:      pid,
		cpuLimit: cpuLimit,
		cpuSleep: cpuSleep,
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
}

// Wait samples the agent's own CPU usage and blocks the caller until the
// governor allows it to proceed. A probe failure is never fatal here,
// matching the original's blanket try/except around the whole check.
func (g *CPUGovernor) Wait(ctx context.Context) error {
	info, err := g.probe.Process(ctx, g.pid)
	if err != nil {
		return nil
	}

	if info.CPUUserPct >= g.cpuLimit && g.cpuSleep > 0 {
		g.limiter.SetLimit(rate.Every(g.cpuSleep))
	} else {
		g.limiter.SetLimit(rate.Inf)
	}

	return g.limiter.Wait(ctx)
}
