package supervisor

import "sync"

// Capabilities is the thread-safe set of feature flags the control plane
// hands back on every handshake (CloudResponse.Capabilities), gating
// extension managers and optional collector behavior.
//
// Grounded on context.capabilities (common/context.py), a plain dict
// guarded implicitly by gevent's cooperative scheduling; here it needs an
// explicit mutex since managers read it from their own goroutines.
type Capabilities struct {
	mu    sync.RWMutex
	flags map[string]bool
}

func newCapabilities() *Capabilities {
	return &Capabilities{flags: make(map[string]bool)}
}

func (c *Capabilities) set(name string, value bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[name] = value
}

// Enabled reports whether name is present and true. Unknown flags default
// to false (an extension the backend has never heard of stays disabled).
func (c *Capabilities) Enabled(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flags[name]
}

func (c *Capabilities) applyAll(flags map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range flags {
		c.flags[normalizeCapabilityName(k)] = v
	}
}

// normalizeCapabilityName strips everything but letters and lower-cases the
// result, a port of the "".join(c.lower() for c in name if c.isalpha())
// normalization talk_to_cloud applies to each capability name.
func normalizeCapabilityName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			if r >= 'A' && r <= 'Z' {
				r = r - 'A' + 'a'
			}
			out = append(out, r)
		}
	}
	return string(out)
}
