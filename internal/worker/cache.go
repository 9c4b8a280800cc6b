package worker

import (
	"os"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/flowfile/dataflow-core/internal/domain"
)

// entry tracks one cached artifact's location and last-access time for LRU
// eviction.
type entry struct {
	path       string
	size       int64
	lastAccess time.Time
}

// ArtifactCache is the process-wide content-addressed store mapping a
// node's hash (file_ref) to its materialized artifact path. xsync.MapOf gives lock-free
// concurrent reads across flows sharing one Worker client.
type ArtifactCache struct {
	entries  *xsync.MapOf[domain.Hash, *entry]
	byteCap  int64
	mu       sync.Mutex // guards eviction scans only
	curBytes int64
}

// NewArtifactCache builds a cache bounded to byteCap total bytes (0 means
// unbounded).
func NewArtifactCache(byteCap int64) *ArtifactCache {
	return &ArtifactCache{entries: xsync.NewMapOf[domain.Hash, *entry](), byteCap: byteCap}
}

// Lookup returns the artifact path for ref if present and the file still
// exists on disk, refreshing its last-access time.
func (c *ArtifactCache) Lookup(ref domain.Hash) (string, bool) {
	e, ok := c.entries.Load(ref)
	if !ok {
		return "", false
	}
	if _, err := os.Stat(e.path); err != nil {
		c.entries.Delete(ref)
		return "", false
	}
	e.lastAccess = time.Now()
	return e.path, true
}

// Put registers a freshly-written artifact, evicting older entries if the
// cache is over its byte cap. Collisions under the chosen hash are
// impossible, so re-Put of an existing
// ref simply refreshes it.
func (c *ArtifactCache) Put(ref domain.Hash, path string) {
	size := int64(0)
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	prev, replaced := c.entries.Load(ref)
	c.entries.Store(ref, &entry{path: path, size: size, lastAccess: time.Now()})

	if c.byteCap <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if replaced {
		c.curBytes -= prev.size
	}
	c.curBytes += size
	for c.curBytes > c.byteCap {
		var oldestRef domain.Hash
		var oldest *entry
		c.entries.Range(func(k domain.Hash, v *entry) bool {
			if oldest == nil || v.lastAccess.Before(oldest.lastAccess) {
				oldest, oldestRef = v, k
			}
			return true
		})
		if oldest == nil {
			break
		}
		c.entries.Delete(oldestRef)
		c.curBytes -= oldest.size
		_ = os.Remove(oldest.path)
	}
}
