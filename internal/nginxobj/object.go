package nginxobj

import (
	"context"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
)

// Object is the concrete NginxObject variant: one running nginx master
// process, its config collector, and the identity fields the discovery
// state machine compares across passes.
//
// Grounded on original_source/amplify/agent/objects/nginx/object.py
// (NginxObject.__init__).
type Object struct {
	*object.Base

	RootUUID string
	LocalID  string

	Pid      int32
	Version  string
	Workers  int
	Prefix   string
	BinPath  string
	ConfPath string

	Reloads int

	ConfigCollector *ConfigCollector

	inContainer bool
}

// NewObject constructs an Object from discovery data; its arguments are the
// fields of the manager.Discovered.Data payload that NewFactory unpacks.
func NewObject(rootUUID, localID string, pid int32, version string, workers int, prefix, binPath, confPath string, inContainer bool, metricsInterval, resendWait time.Duration, reloads int) *Object {
	return &Object{
		Base:        object.NewBase(version, metricsInterval, resendWait),
		RootUUID:    rootUUID,
		LocalID:     localID,
		Pid:         pid,
		Version:     version,
		Workers:     workers,
		Prefix:      prefix,
		BinPath:     binPath,
		ConfPath:    confPath,
		Reloads:     reloads,
		inContainer: inContainer,
	}
}

// Type implements object.Entity.
func (o *Object) Type() object.Type {
	if o.inContainer {
		return object.TypeContainerNginx
	}
	return object.TypeNginx
}

// DisplayName implements object.Entity.
func (o *Object) DisplayName() string { return o.Version }

// LocalIDArgs implements object.Entity: the identity tuple whose hash
// distinguishes one nginx master from another across discovery passes.
func (o *Object) LocalIDArgs() []string {
	return []string{o.BinPath, o.ConfPath, o.Prefix}
}

// Definition implements object.Entity.
func (o *Object) Definition() object.Definition {
	return object.Definition{
		"type":      string(o.Type()),
		"local_id":  o.LocalID,
		"root_uuid": o.RootUUID,
	}
}

// PID implements manager.TrackedEntity.
func (o *Object) PID() int { return int(o.Pid) }

// Generation implements manager.TrackedEntity: nginx's generation is its
// worker-process count, which changes on every reload.
func (o *Object) Generation() int { return o.Workers }

// Start begins the object's collectors and performs the synchronous
// first-pass config parse the spec requires at construction time (spec
// §4.5: "On construction it either initializes the config collector ...
// and parses once synchronously").
func (o *Object) Start(ctx context.Context) {
	if !o.Running() && o.ConfigCollector != nil {
		o.ConfigCollector.Collect(ctx, true)
	}
	o.Base.Start(ctx)
}
