// Package cache implements the bounded, byte-sized LRU segment cache with
// single-flight fetch coalescing and a background Prefetcher, using
// atomic counters alongside a mutex-protected index.
package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pirelike/hlsvault/internal/models"
)

// Entry is one cached segment or subtitle body.
type Entry struct {
	Key         models.SegmentKey
	Data        []byte
	ContentType string
	storedAt    time.Time
}

// FetchFunc retrieves the bytes for key on a cache miss.
type FetchFunc func(ctx context.Context, key models.SegmentKey) (data []byte, contentType string, err error)

// Stats are the read-only observability counters from spec §4.3.
type Stats struct {
	Hits             int64
	Misses           int64
	Evictions        int64
	BytesServed      int64
	CurrentSizeBytes int64
	CurrentCount     int64
	PrefetchSuccess  int64
	PrefetchFailure  int64
}

// Cache is the segment-cache contract shared by the in-memory and on-disk
// backends (spec §6's CACHE_TYPE ∈ {memory, disk}). The Prefetcher and HTTP
// handlers depend on this interface, not a concrete backend, so the backend
// choice is a pure config-time decision (see cmd/hlsvault/cmd/serve.go).
type Cache interface {
	Get(ctx context.Context, key models.SegmentKey, fetch FetchFunc) (*Entry, error)
	Peek(key models.SegmentKey) (*Entry, bool)
	Clear()
	Stats() Stats

	// Store inserts an already-fetched entry directly, bypassing Get's
	// fetch/single-flight path. Used by the HTTP handler's streaming
	// cache-miss path, which tees a remote download to the client and the
	// cache concurrently instead of buffering the whole body before either.
	Store(key models.SegmentKey, data []byte, contentType string)

	// RecordPrefetchSuccess/Failure let the Prefetcher attribute its
	// background results to the backend's own counters without reaching
	// into backend-private fields.
	RecordPrefetchSuccess()
	RecordPrefetchFailure()
}

// MemoryCache is a strict byte-bounded LRU with TTL-based opportunistic
// eviction and single-flight fetch coalescing, keyed on (video_id,
// ordinal), holding entry bodies in process memory.
type MemoryCache struct {
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

var _ Cache = (*MemoryCache)(nil)

// New creates a MemoryCache bounded at maxBytes with the given entry TTL (0
// disables TTL eviction).
func New(maxBytes int64, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		maxBytes: maxBytes,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[models.SegmentKey]*list.Element),
	}
}

// Get returns a cached entry, calling fetch on a miss. Concurrent Gets for
// the same key share one in-flight fetch (single-flight), and the
// coalescing key is cleared on both success and failure.
func (c *MemoryCache) Get(ctx context.Context, key models.SegmentKey, fetch FetchFunc) (*Entry, error) {
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
		entry := &Entry{Key: key, Data: data, ContentType: contentType, storedAt: time.Now()}
		c.insert(entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	entry := v.(*Entry)
	c.bytesServed.Add(int64(len(entry.Data)))
	return entry, nil
}

// Peek returns a cached entry without triggering a fetch on miss.
func (c *MemoryCache) Peek(key models.SegmentKey) (*Entry, bool) {
	return c.lookup(key)
}

func (c *MemoryCache) lookup(key models.SegmentKey) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*Entry)
	if c.ttl > 0 && time.Since(entry.storedAt) > c.ttl {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry, true
}

func (c *MemoryCache) insert(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[entry.Key]; ok {
		c.removeElement(el)
	}

	el := c.ll.PushFront(entry)
	c.index[entry.Key] = el
	c.sizeBytes += int64(len(entry.Data))

	for c.sizeBytes > c.maxBytes && c.ll.Len() > 0 {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
		c.evictions.Add(1)
	}
}

// removeElement must be called with c.mu held.
func (c *MemoryCache) removeElement(el *list.Element) {
	entry := el.Value.(*Entry)
	c.ll.Remove(el)
	delete(c.index, entry.Key)
	c.sizeBytes -= int64(len(entry.Data))
}

// Store inserts an already-fetched entry directly, bypassing Get's
// single-flight fetch path.
func (c *MemoryCache) Store(key models.SegmentKey, data []byte, contentType string) {
	c.insert(&Entry{Key: key, Data: data, ContentType: contentType, storedAt: time.Now()})
}

// Clear drops all cache entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.index = make(map[models.SegmentKey]*list.Element)
	c.sizeBytes = 0
}

// Stats returns a snapshot of the observability counters.
func (c *MemoryCache) Stats() Stats {
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
func (c *MemoryCache) RecordPrefetchSuccess() { c.prefetchSuccess.Add(1) }

// RecordPrefetchFailure increments the prefetch-failure counter.
func (c *MemoryCache) RecordPrefetchFailure() { c.prefetchFailure.Add(1) }

