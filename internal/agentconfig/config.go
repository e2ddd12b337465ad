package agentconfig

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nginxinc/nginx-telemetry-agent/internal/runtimeutil"
)

// Config is the process-wide "Config tank": it owns the current Tree and
// publishes immutable Snapshots. Apply always clones before merging, so a
// Snapshot handed to a collector or the Bridge is never mutated underneath
// it — a copy-on-write discipline applied to the layered section tree.
//
// Grounded on AbstractConfig (file/env loading, apply/save) and ConfigTank
// (section-to-source indexing, collapsed here to a single in-memory tree
// since the agent has exactly one writable config file plus an env
// overlay, not tanks/config.py's arbitrary multi-file index).
type Config struct {
	mu           sync.RWMutex
	filename     string
	writeNew     bool
	unchangeable map[string]bool
	snapshot     Snapshot
	defaultTree  Tree
}

// Load builds a Config for env, optionally reading filename on top of the
// profile defaults and applying the AMPLIFY_IMAGENAME env overlay. Passing
// an empty filename boots on profile defaults only (no on-disk config is
// required); an explicitly named but unreadable file is a
// configuration-surface error (spec §7), returned to the caller to report
// and exit 1 rather than silently falling back to defaults.
func Load(env runtimeutil.Environment, filename string) (*Config, error) {
	tree := DefaultTree(env)
	defaults := tree.clone()

	if filename != "" {
		patch, err := loadINI(filename)
		if err != nil {
			return nil, fmt.Errorf("agentconfig: loading %s: %w", filename, err)
		}
		tree.apply(patch, nil)
	}

	applyEnvOverlay(tree)
	ensureUUID(tree)

	return &Config{
		filename:     filename,
		writeNew:     writeNew(env),
		unchangeable: make(map[string]bool),
		snapshot:     Snapshot{tree: tree},
		defaultTree:  defaults,
	}, nil
}

// Default returns a clone of the profile-default tree this Config was
// booted with (before any file/env/cloud overlay). The Supervisor compares
// an incoming cloud config patch against this, not the live snapshot,
// matching talk_to_cloud's config_changed check against
// context.app_config.default rather than the currently-applied config.
func (c *Config) Default() Tree {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultTree.clone()
}

// ensureUUID generates a stable agent identifier if the config doesn't
// already carry one, a Go-native replacement for the original's
// provisioning-time UUID file (this spec has no separate provisioning
// step, so the Config tank mints one lazily on first boot).
func ensureUUID(tree Tree) {
	if tree.getString("credentials", "uuid", "") != "" {
		return
	}
	if _, ok := tree["credentials"]; !ok {
		tree["credentials"] = make(map[string]interface{})
	}
	tree["credentials"]["uuid"] = uuid.NewString()
}

// Snapshot returns the currently published Snapshot.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// MarkUnchangeable prevents future Apply calls from modifying section.key,
// used for api_url once the Supervisor has frozen it after the first
// successful cloud handshake (spec's "api_url frozen" rule).
func (c *Config) MarkUnchangeable(section, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unchangeable[section+"."+key] = true
}

// Apply merges patch into the tank's tree and publishes a new Snapshot,
// returning it alongside the number of keys that actually changed. Used
// both for local file reloads (a re-parsed INI file passed wholesale) and
// cloud-pushed per-object/global config diffs (spec §4.8).
func (c *Config) Apply(patch map[string]map[string]interface{}) (Snapshot, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snapshot.tree.clone()
	changes := next.apply(patch, c.unchangeable)
	c.snapshot = Snapshot{tree: next}
	return c.snapshot, changes
}

// Save writes a single key back to the on-disk file (if writeNew is set
// for this profile) and applies the same change to the in-memory tree, a
// port of AbstractConfig.save.
func (c *Config) Save(section, key string, value interface{}) (Snapshot, error) {
	snap, _ := c.Apply(map[string]map[string]interface{}{section: {key: value}})

	if !c.writeNew || c.filename == "" {
		return snap, nil
	}

	str := fmt.Sprintf("%v", value)
	if err := saveINI(c.filename, section, key, str); err != nil {
		return snap, fmt.Errorf("agentconfig: saving %s.%s to %s: %w", section, key, c.filename, err)
	}
	return snap, nil
}
