// Package pipeline implements the two raw-log ingestion sources collectors
// parse from: tailed files with rotation/copytruncate detection, and a UDP
// syslog listener. Both return unread lines since the last read, the
// common API original_source/amplify/agent/pipelines/abstract.py's
// Pipeline type exposes to collectors.
//
// Grounded on original_source/amplify/agent/pipelines/{file,syslog}.py.
package pipeline

import "sync"

// OffsetCache tracks each tailed file's last-read byte offset so that an
// NGINX object reload (which rebuilds its FileTail) resumes where the prior
// instance left off instead of re-reading from the start. Mirrors the
// Python module's process-wide OFFSET_CACHE dict; one OffsetCache is shared by
// every FileTail in the agent process.
type OffsetCache struct {
	mu      sync.Mutex
	offsets map[string]int64
}

// NewOffsetCache constructs an empty OffsetCache.
func NewOffsetCache() *OffsetCache {
	return &OffsetCache{offsets: make(map[string]int64)}
}

// Get returns the cached offset for path, or ok=false if none is recorded
// yet.
func (c *OffsetCache) Get(path string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	off, ok := c.offsets[path]
	return off, ok
}

// Set records path's current offset.
func (c *OffsetCache) Set(path string, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsets[path] = offset
}

// Delete drops path's cached offset (e.g. on definitive teardown).
func (c *OffsetCache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.offsets, path)
}
