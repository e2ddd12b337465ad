package plusapi

import (
	"sync"
	"time"
)

// plusCacheSlots is the fixed depth of each URL's sample deque (spec §5,
// §9 GLOSSARY "PlusCache"). Mirrors PlusCache's deque(maxlen=3).
const plusCacheSlots = 3

// Sample is one (payload, timestamp) pair cached for a status/API URL.
type Sample struct {
	Payload   []byte
	Timestamp time.Time
}

// Cache is the process-wide, per-URL bounded cache of raw Plus status/API
// payloads, shared between every collector sampling the same nginx
// instance so only one HTTP fetch is needed per interval regardless of how
// many collectors (server_zone, upstream, cache, ...) need the payload.
//
// Grounded on original_source/amplify/agent/tanks/plus_cache.py.
type Cache struct {
	mu    sync.Mutex
	slots map[string][]Sample
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{slots: make(map[string][]Sample)}
}

// Put appends a sample for url, discarding the oldest sample once the
// per-url deque exceeds plusCacheSlots.
func (c *Cache) Put(url string, payload []byte, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := append(c.slots[url], Sample{Payload: payload, Timestamp: ts})
	if len(s) > plusCacheSlots {
		s = s[len(s)-plusCacheSlots:]
	}
	c.slots[url] = s
}

// GetLast returns the most recently cached sample for url, or ok=false if
// nothing has been cached yet.
func (c *Cache) GetLast(url string) (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slots[url]
	if len(s) == 0 {
		return Sample{}, false
	}
	return s[len(s)-1], true
}

// Since returns every cached sample for url strictly newer than lastCollect,
// oldest first, matching gather_data's "only gathers data since last
// collect" behavior.
func (c *Cache) Since(url string, lastCollect time.Time) []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.slots[url]
	out := make([]Sample, 0, len(all))
	for _, s := range all {
		if s.Timestamp.After(lastCollect) {
			out = append(out, s)
		}
	}
	return out
}

// Delete drops every cached sample for url (used when an NGINX object is
// torn down).
func (c *Cache) Delete(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, url)
}
