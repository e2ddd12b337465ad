// Package sysobj implements the concrete SystemObject/ContainerSystemObject
// variant: the root object every agent instance registers first, wrapping
// the host's (or container's) own identity plus its meta and metrics
// collectors.
//
// Grounded on original_source/amplify/agent/objects/system/object.py.
package sysobj

import (
	"context"
	"fmt"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/clock"
	"github.com/nginxinc/nginx-telemetry-agent/internal/databin"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
)

// Object is the root object: the host itself, or the container the agent
// runs in when InContainer is set. hosttype/hostValue mirror the
// type/hosttype class-attribute split in the original SystemObject/
// ContainerSystemObject pair, collapsed into one Go type selected by a
// runtime flag since Go has no subclass dispatch to port that split onto.
type Object struct {
	*object.Base

	UUID      string
	RootUUID  string
	Hosttype  string // "hostname" or "imagename"
	HostValue string

	ImageName     string
	ContainerType string
	InContainer   bool

	AgentVersion string
	AgentPID     int
	StartTime    time.Time
}

// NewObject constructs a root Object. When inContainer is true the object
// reports as object.TypeContainer and hosttype is "imagename"; otherwise it
// reports as object.TypeSystem and hosttype is "hostname".
func NewObject(uuid, rootUUID, hostValue string, inContainer bool, imageName, containerType, agentVersion string, agentPID int, startTime time.Time, metricsInterval, resendWait time.Duration) *Object {
	hosttype := "hostname"
	if inContainer {
		hosttype = "imagename"
	}
	return &Object{
		Base:          object.NewBase(hostValue, metricsInterval, resendWait),
		UUID:          uuid,
		RootUUID:      rootUUID,
		Hosttype:      hosttype,
		HostValue:     hostValue,
		ImageName:     imageName,
		ContainerType: containerType,
		InContainer:   inContainer,
		AgentVersion:  agentVersion,
		AgentPID:      agentPID,
		StartTime:     startTime,
	}
}

// Type implements object.Entity.
func (o *Object) Type() object.Type {
	if o.InContainer {
		return object.TypeContainer
	}
	return object.TypeSystem
}

// DisplayName implements object.Entity.
func (o *Object) DisplayName() string { return o.HostValue }

// LocalIDArgs implements object.Entity: the host/container identity tuple.
func (o *Object) LocalIDArgs() []string { return []string{o.Hosttype, o.HostValue} }

// PID implements manager.TrackedEntity. The root object has no process of
// its own to track; it reports the agent's own pid, consistent with the
// agent-started/agent-stopped events it fires carrying the same value.
func (o *Object) PID() int { return o.AgentPID }

// Generation implements manager.TrackedEntity. The host/container identity
// this object represents never reloads in place the way an nginx worker
// count does, so generation is always zero.
func (o *Object) Generation() int { return 0 }

// Definition implements object.Entity, matching SystemObject.definition.
func (o *Object) Definition() object.Definition {
	return object.Definition{
		"type":     string(o.Type()),
		"uuid":     o.UUID,
		o.Hosttype: o.HostValue,
	}
}

// Start begins the object's collectors. A non-container root object fires
// a one-time "agent started" event backdated a second before StartTime so
// it always sorts first among the cycle's events, matching
// SystemObject.start (with no cloud_restart flag to suppress it on, since
// this build has no hot-restart concept).
func (o *Object) Start(ctx context.Context) {
	if !o.Running() && !o.InContainer {
		o.Events.Event(
			databin.Info,
			fmt.Sprintf("agent started, version: %s, pid: %d", o.AgentVersion, o.AgentPID),
			true,
			o.StartTime.Add(-time.Second).Unix(),
		)
	}
	o.Base.Start(ctx)
}

// Stop fires a non-container "agent stopped" event before tearing down the
// object's collectors. Matches SystemObject.stop.
func (o *Object) Stop() {
	if !o.InContainer {
		o.Events.Event(
			databin.Info,
			fmt.Sprintf("agent stopped, version: %s, pid: %d", o.AgentVersion, o.AgentPID),
			false,
			clock.Now().Unix(),
		)
	}
	o.Base.Stop()
}
