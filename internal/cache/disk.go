package cache

import (
	"container/list"
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pirelike/hlsvault/internal/models"
	"github.com/pirelike/hlsvault/internal/storage"
)

// diskMeta is the in-memory LRU bookkeeping for one on-disk entry; the
// bytes themselves live under the sandbox, not in this struct, so a
// DiskCache's process-memory footprint stays proportional to entry count
// rather than total cached bytes.
type diskMeta struct {
	key         models.SegmentKey
	contentType string
	size        int64
	storedAt    time.Time
}

// DiskCache is the on-disk cache backend, storing one file per cached
// segment under a sandboxed directory (internal/storage.Sandbox guards
// against path traversal) instead of holding bodies in process memory.
// LRU accounting and single-flight coalescing mirror MemoryCache exactly;
// only the storage medium for Entry.Data differs.
type DiskCache struct {
	sandbox  *storage.Sandbox
	maxBytes int64
	ttl      time.Duration

	mu        sync.Mutex
	ll        *list.List // front = most recently used
	index     map[models.SegmentKey]*list.Element
	sizeBytes int64

	group singleflight.Group

	hits, misses, evictions, bytesServed atomic.Int64
	prefetchSuccess, prefetchFailure     atomic.Int64
}

var _ Cache = (*DiskCache)(nil)

// NewDiskCache creates a DiskCache rooted at dir, bounded at maxBytes with
// the given entry TTL (0 disables TTL eviction). Any files already present
// under dir from a prior run are ignored; the LRU index starts empty and
// stale files are overwritten on first reuse of their ordinal slot, or
// simply waste disk until the directory is cleared manually — this backend
// does not resume from an unclean shutdown.
func NewDiskCache(dir string, maxBytes int64, ttl time.Duration) (*DiskCache, error) {
	sb, err := storage.NewSandbox(dir)
	if err != nil {
		return nil, fmt.Errorf("creating disk cache sandbox: %w", err)
	}
	return &DiskCache{
		sandbox:  sb,
		maxBytes: maxBytes,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[models.SegmentKey]*list.Element),
	}, nil
}

func diskFilename(key models.SegmentKey) string {
	return key.VideoID + "_" + strconv.Itoa(key.Ordinal) + ".seg"
}

// Get returns a cached entry, calling fetch on a miss. Concurrent Gets for
// the same key share one in-flight fetch, cleared on both success and
// failure.
func (c *DiskCache) Get(ctx context.Context, key models.SegmentKey, fetch FetchFunc) (*Entry, error) {
	if e, ok := c.lookup(key); ok {
		c.hits.Add(1)
		c.bytesServed.Add(int64(len(e.Data)))
		return e, nil
	}
	c.misses.Add(1)

	sfKey := key.VideoID + "/" + strconv.Itoa(key.Ordinal)
	v, err, _ := c.group.Do(sfKey, func() (any, error) {
		data, contentType, err := fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := c.store(key, data, contentType); err != nil {
			return nil, err
		}
		return &Entry{Key: key, Data: data, ContentType: contentType}, nil
	})
	if err != nil {
		return nil, err
	}
	entry := v.(*Entry)
	c.bytesServed.Add(int64(len(entry.Data)))
	return entry, nil
}

// Peek returns a cached entry without triggering a fetch on miss.
func (c *DiskCache) Peek(key models.SegmentKey) (*Entry, bool) {
	return c.lookup(key)
}

func (c *DiskCache) lookup(key models.SegmentKey) (*Entry, bool) {
	c.mu.Lock()
	el, ok := c.index[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	meta := el.Value.(*diskMeta)
	if c.ttl > 0 && time.Since(meta.storedAt) > c.ttl {
		c.removeElementLocked(el)
		c.mu.Unlock()
		_ = c.sandbox.Remove(diskFilename(key))
		return nil, false
	}
	c.ll.MoveToFront(el)
	contentType := meta.contentType
	c.mu.Unlock()

	data, err := c.sandbox.ReadFile(diskFilename(key))
	if err != nil {
		// File vanished out from under the index (e.g. manual cleanup);
		// treat as a miss and drop the stale entry.
		c.mu.Lock()
		if el, ok := c.index[key]; ok {
			c.removeElementLocked(el)
		}
		c.mu.Unlock()
		return nil, false
	}
	return &Entry{Key: key, Data: data, ContentType: contentType}, true
}

func (c *DiskCache) store(key models.SegmentKey, data []byte, contentType string) error {
	if err := c.sandbox.WriteFile(diskFilename(key), data); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.removeElementLocked(el)
	}

	meta := &diskMeta{key: key, contentType: contentType, size: int64(len(data)), storedAt: time.Now()}
	el := c.ll.PushFront(meta)
	c.index[key] = el
	c.sizeBytes += meta.size

	for c.sizeBytes > c.maxBytes && c.ll.Len() > 0 {
		back := c.ll.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*diskMeta)
		c.removeElementLocked(back)
		c.evictions.Add(1)
		_ = c.sandbox.Remove(diskFilename(evicted.key))
	}
	return nil
}

// removeElementLocked must be called with c.mu held; it updates the index
// and size accounting but leaves any on-disk file in place for the caller
// to remove outside the lock.
func (c *DiskCache) removeElementLocked(el *list.Element) {
	meta := el.Value.(*diskMeta)
	c.ll.Remove(el)
	delete(c.index, meta.key)
	c.sizeBytes -= meta.size
}

// Store inserts an already-fetched entry directly, bypassing Get's
// single-flight fetch path. Best-effort: a write failure is dropped, same
// as an eviction-time removal failure.
func (c *DiskCache) Store(key models.SegmentKey, data []byte, contentType string) {
	_ = c.store(key, data, contentType)
}

// Clear empties the index and removes every cached file from disk.
func (c *DiskCache) Clear() {
	c.mu.Lock()
	keys := make([]models.SegmentKey, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	c.ll.Init()
	c.index = make(map[models.SegmentKey]*list.Element)
	c.sizeBytes = 0
	c.mu.Unlock()

	for _, k := range keys {
		_ = c.sandbox.Remove(diskFilename(k))
	}
}

// Stats returns a snapshot of the observability counters.
func (c *DiskCache) Stats() Stats {
	c.mu.Lock()
	size := c.sizeBytes
	count := int64(c.ll.Len())
	c.mu.Unlock()

	return Stats{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		Evictions:        c.evictions.Load(),
		BytesServed:      c.bytesServed.Load(),
		CurrentSizeBytes: size,
		CurrentCount:     count,
		PrefetchSuccess:  c.prefetchSuccess.Load(),
		PrefetchFailure:  c.prefetchFailure.Load(),
	}
}

// RecordPrefetchSuccess increments the prefetch-success counter.
func (c *DiskCache) RecordPrefetchSuccess() { c.prefetchSuccess.Add(1) }

// RecordPrefetchFailure increments the prefetch-failure counter.
func (c *DiskCache) RecordPrefetchFailure() { c.prefetchFailure.Add(1) }
