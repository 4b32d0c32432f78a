// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

// Package cache provides the bounded in-memory caches used by Skywatch.
// The resolver's handle cache is the main consumer; correctness never
// depends on cache contents, only lookup volume does.
package cache

import (
	"sync"
)

type lruEntry struct {
	key   string
	value string
	found bool
	prev  *lruEntry
	next  *lruEntry
}

// HandleCache is a thread-safe bounded DID-to-handle cache.
//
// Eviction is by insertion order (approximate LRU): entries are not
// promoted on read, so the oldest inserted entry is always the one evicted
// at capacity. Negative results are cached too, to suppress repeated
// resolution attempts for DIDs that cannot be resolved.
//
// This uses a doubly-linked list plus a hashmap for O(1) Put, Get and
// eviction, following the structure of TheAlgorithms/Go LRU implementation.
type HandleCache struct {
	mu sync.RWMutex

	capacity int
	items    map[string]*lruEntry

	// head.next is the newest insertion, tail.prev the oldest.
	head *lruEntry
	tail *lruEntry

	hits   int64
	misses int64
}

// DefaultHandleCacheCapacity bounds the resolver cache.
const DefaultHandleCacheCapacity = 10000

// NewHandleCache creates a cache holding at most capacity entries.
func NewHandleCache(capacity int) *HandleCache {
	if capacity <= 0 {
		capacity = DefaultHandleCacheCapacity
	}

	c := &HandleCache{
		capacity: capacity,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Lookup returns (handle, resolved, cached). cached is false when the DID
// is absent; resolved is false for a cached negative result.
func (c *HandleCache) Lookup(did string) (handle string, resolved, cached bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[did]
	if !exists {
		c.misses++
		return "", false, false
	}
	c.hits++
	return entry.value, entry.found, true
}

// Put records a successful resolution.
func (c *HandleCache) Put(did, handle string) {
	c.put(did, handle, true)
}

// PutNegative records a failed resolution so it is not retried on every
// event.
func (c *HandleCache) PutNegative(did string) {
	c.put(did, "", false)
}

func (c *HandleCache) put(did, handle string, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[did]; exists {
		entry.value = handle
		entry.found = found
		return
	}

	entry := &lruEntry{key: did, value: handle, found: found}
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
	c.items[did] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Remove drops a cached entry. Returns true if it was present.
func (c *HandleCache) Remove(did string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[did]
	if !exists {
		return false
	}
	c.removeEntry(entry)
	return true
}

// Len returns the current number of entries.
func (c *HandleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries.
func (c *HandleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*lruEntry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// Stats returns hit/miss counters and current size.
func (c *HandleCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.items)
}

// removeEntry unlinks an entry from both the list and the map.
// Must be called with the lock held.
func (c *HandleCache) removeEntry(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}

// evictOldest removes the oldest inserted entry.
// Must be called with the lock held.
func (c *HandleCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
}
