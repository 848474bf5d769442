// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package telemetry

import (
	"sync"
	"time"
)

// TTLCache is a small bounded cache with per-entry expiry. The gate uses
// it for parsed robots rule sets (keyed by content hash) and fetched
// policy tables (keyed by site).
type TTLCache[V any] struct {
	mu      sync.Mutex
	name    string
	items   map[string]ttlEntry[V]
	maxSize int
	ttl     time.Duration
	hits    int64
	misses  int64
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// CacheStats is exposed on the health endpoint.
type CacheStats struct {
	Name    string `json:"name"`
	Size    int    `json:"size"`
	MaxSize int    `json:"max_size"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

func NewTTLCache[V any](name string, maxSize int, ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		name:    name,
		items:   make(map[string]ttlEntry[V]),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok || time.Now().After(entry.expiresAt) {
		if ok {
			delete(c.items, key)
		}
		c.misses++
		var zero V
		return zero, false
	}

	c.hits++
	return entry.value, true
}

func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxSize {
		c.evictExpiredOrOldest()
	}
	c.items[key] = ttlEntry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
}

func (c *TTLCache[V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Name:    c.name,
		Size:    len(c.items),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// evictExpiredOrOldest drops every expired entry; if none were expired
// it drops the entry closest to expiry. Called with the lock held.
func (c *TTLCache[V]) evictExpiredOrOldest() {
	now := time.Now()
	dropped := false
	for key, entry := range c.items {
		if now.After(entry.expiresAt) {
			delete(c.items, key)
			dropped = true
		}
	}
	if dropped {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, entry := range c.items {
		if oldest.IsZero() || entry.expiresAt.Before(oldest) {
			oldestKey = key
			oldest = entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
