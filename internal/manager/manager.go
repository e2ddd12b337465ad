// Package manager implements the object discovery framework: the
// interval-driven discover/start/schedule loop, and the
// new/restarted/reloaded/gone state machine that reconciles what a
// Discoverer currently observes against what is registered in the
// ObjectTank.
//
// Grounded on original_source/amplify/agent/managers/abstract.py
// (AbstractManager, ObjectManager) and managers/nginx.py (the concrete
// discovery state machine this package generalizes).
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/nginxinc/nginx-telemetry-agent/internal/clock"
	"github.com/nginxinc/nginx-telemetry-agent/internal/logging"
	"github.com/nginxinc/nginx-telemetry-agent/internal/object"
	"github.com/nginxinc/nginx-telemetry-agent/internal/objecttank"
)

// Transition names one step of the discovery state machine (spec §4.4).
type Transition string

const (
	TransitionNew       Transition = "new"
	TransitionRestarted Transition = "restarted"
	TransitionReloaded  Transition = "reloaded"
	TransitionGone      Transition = "gone"
)

// Discovered is one instance a Discoverer currently observes on the host:
// enough to build a Definition and, if the instance is new or must be
// replaced, construct a fresh object.
type Discovered struct {
	Definition object.Definition
	Data       map[string]interface{}

	// PID and Generation drive the restarted/reloaded distinction: a PID
	// change is a restart, an unchanged PID with a different Generation
	// (such as nginx's worker count) is a reload.
	PID        int
	Generation int
}

// Discoverer enumerates the instances of one object type currently present
// on the host. Concrete implementations live alongside each object
// variant (e.g. internal/nginxobj).
type Discoverer interface {
	Discover() ([]Discovered, error)
}

// Factory builds a fresh Entity from discovery data. Built objects must
// also satisfy objecttank.Registered, matching how concrete variants
// embed object.Base.
type Factory func(data map[string]interface{}) objecttank.Registered

// TrackedEntity is the subset of objecttank.Registered a manager needs to
// run its reconciliation pass.
type TrackedEntity interface {
	objecttank.Registered
	PID() int
	Generation() int
	NeedsRestart() bool
	Running() bool
	Start(ctx context.Context)
}

// Manager runs the discover/start/schedule loop for one object type.
// Mirrors AbstractManager + ObjectManager, collapsed into one generic type
// since Go has no runtime inheritance to split them across.
type Manager struct {
	Name    string
	Types   []object.Type
	Tank    *objecttank.Tank
	Factory Factory

	Interval         time.Duration
	DiscoverInterval time.Duration

	Discoverer Discoverer

	// OnTransition is called after each reconciliation step so callers can
	// emit discovery events (spec §4.5's "nginx master process found" etc.)
	// without this package depending on databin/eventd directly.
	OnTransition func(transition Transition, obj objecttank.Registered)

	logger *logging.Logger

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	lastDiscover time.Time
}

// New constructs a Manager for one object type family.
func New(name string, types []object.Type, tank *objecttank.Tank, factory Factory, discoverer Discoverer, interval, discoverInterval time.Duration, logger *logging.Logger) *Manager {
	return &Manager{
		Name:             name,
		Types:            types,
		Tank:             tank,
		Factory:          factory,
		Discoverer:       discoverer,
		Interval:         interval,
		DiscoverInterval: discoverInterval,
		logger:           logger,
	}
}

// Run drives the manager's main loop: wait, then discover+start+schedule,
// until ctx is cancelled. Matches AbstractManager.start's wait-then-run
// ordering (spec §4.4: discovery runs on its own, usually longer, period).
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	for {
		if !clock.SleepCancellable(ctx, m.Interval) {
			return
		}
		m.runOnce(ctx)
	}
}

// Running reports whether the manager's loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) runOnce(ctx context.Context) {
	if time.Since(m.lastDiscover) >= m.DiscoverInterval {
		m.discover(ctx)
		m.lastDiscover = clock.Now()
	}
	m.startObjects(ctx)
}

// trackedEntities returns the manager's objects that implement
// TrackedEntity; non-conforming objects are skipped rather than causing a
// panic, since the discovery state machine only applies to variants that
// expose a pid/generation.
func (m *Manager) trackedEntities() []TrackedEntity {
	found := m.Tank.FindAll(objecttank.FindAllOptions{Types: m.Types})
	out := make([]TrackedEntity, 0, len(found))
	for _, r := range found {
		if te, ok := r.(TrackedEntity); ok {
			out = append(out, te)
		}
	}
	return out
}

// discover reconciles the Discoverer's current view of the host against
// the tank: new instances are registered, instances whose pid/generation
// changed are replaced, and instances no longer observed are unregistered.
// Mirrors NginxManager._discover_objects.
func (m *Manager) discover(ctx context.Context) {
	if m.Discoverer == nil {
		return
	}
	discovered, err := m.Discoverer.Discover()
	if err != nil {
		if m.logger != nil {
			m.logger.Warn(ctx, "discovery failed", map[string]interface{}{"manager": m.Name, "error": err.Error()})
		}
		return
	}

	existing := m.trackedEntities()
	byHash := make(map[string]TrackedEntity, len(existing))
	for _, e := range existing {
		byHash[e.Definition().Hash()] = e
	}

	seen := make(map[string]bool, len(discovered))

	for _, d := range discovered {
		hash := d.Definition.Hash()
		seen[hash] = true

		current, known := byHash[hash]
		switch {
		case !known:
			m.registerNew(d)
		case current.NeedsRestart():
			m.replace(ctx, current, d, TransitionRestarted)
		case current.PID() != d.PID:
			m.replace(ctx, current, d, TransitionRestarted)
		case current.Generation() != d.Generation:
			m.replace(ctx, current, d, TransitionReloaded)
		}
	}

	for hash, e := range byHash {
		if !seen[hash] {
			m.drop(e)
		}
	}
}

func (m *Manager) registerNew(d Discovered) {
	obj := m.Factory(d.Data)
	m.Tank.Register(obj, m.rootID())
	if m.OnTransition != nil {
		m.OnTransition(TransitionNew, obj)
	}
}

// replace unregisters (and so stops) the old object's children first, builds
// a fresh object carrying the new discovery data, and stops the old object only after
// the new one has taken its id. Mirrors _restart_nginx_object.
func (m *Manager) replace(ctx context.Context, current TrackedEntity, d Discovered, transition Transition) {
	for _, child := range m.Tank.FindAll(objecttank.FindAllOptions{SelfID: current.GetID(), Children: true}) {
		m.Tank.Unregister(child.GetID())
	}

	newObj := m.Factory(d.Data)
	m.Tank.Replace(current.GetID(), newObj)
	current.Stop()

	if m.OnTransition != nil {
		m.OnTransition(transition, newObj)
	}

	if newTracked, ok := newObj.(TrackedEntity); ok {
		newTracked.Start(ctx)
	}
}

func (m *Manager) drop(e TrackedEntity) {
	if m.OnTransition != nil {
		m.OnTransition(TransitionGone, e)
	}
	m.Tank.Unregister(e.GetID())
}

func (m *Manager) rootID() int {
	root := m.Tank.RootObject()
	if root == nil {
		return 0
	}
	return root.GetID()
}

// startObjects starts every not-yet-running object of this manager's
// types, and their children. Mirrors ObjectManager._start_objects.
func (m *Manager) startObjects(ctx context.Context) {
	for _, r := range m.Tank.FindAll(objecttank.FindAllOptions{Types: m.Types}) {
		if te, ok := r.(TrackedEntity); ok && !te.Running() {
			te.Start(ctx)
		}
		for _, child := range m.Tank.FindAll(objecttank.FindAllOptions{SelfID: r.GetID(), Children: true, IncludeSelf: false}) {
			if cte, ok := child.(interface {
				Running() bool
				Start(ctx context.Context)
			}); ok && !cte.Running() {
				cte.Start(ctx)
			}
		}
	}
}

// Stop marks the manager stopped and stops every object of its types along
// with their children. Mirrors ObjectManager.stop/_stop_objects.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	for _, r := range m.Tank.FindAll(objecttank.FindAllOptions{Types: m.Types}) {
		for _, child := range m.Tank.FindAll(objecttank.FindAllOptions{SelfID: r.GetID(), Children: true, IncludeSelf: false}) {
			child.Stop()
			m.Tank.Unregister(child.GetID())
		}
		r.Stop()
		m.Tank.Unregister(r.GetID())
	}
}
