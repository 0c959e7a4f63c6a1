package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cartlens/backend/internal/domain"
)

// recordKey scopes a product id to its workspace
type recordKey struct {
	workspaceID string
	id          string
}

// MemoryCache is a thread-safe in-memory product store with optional TTL
type MemoryCache struct {
	data  map[recordKey]domain.ProductRecord
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryCache creates a new in-memory cache. A zero ttl keeps records
// until they are deleted.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		data: make(map[recordKey]domain.ProductRecord),
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
	}

	if ttl > 0 {
		go cache.cleanupExpired(10 * time.Minute)
	}

	return cache
}

// Get retrieves a record by workspace and id
func (c *MemoryCache) Get(ctx context.Context, workspaceID, id string) (*domain.ProductRecord, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	record, exists := c.data[recordKey{workspaceID, id}]
	if !exists || c.expired(record) {
		return nil, domain.ErrCacheMiss
	}

	return &record, nil
}

// Put upserts a record. The favorite flag of an existing record is kept.
func (c *MemoryCache) Put(ctx context.Context, record *domain.ProductRecord) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := recordKey{record.WorkspaceID, record.ID}
	if existing, ok := c.data[key]; ok {
		record.IsFavorite = existing.IsFavorite
	}
	record.UpdatedAt = c.now().UTC()

	// Store a copy so later mutations by the caller don't leak in
	c.data[key] = *record
	return nil
}

// List returns the workspace's records, most recently updated first
func (c *MemoryCache) List(ctx context.Context, workspaceID string, filter domain.ProductFilter) ([]domain.ProductRecord, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	records := make([]domain.ProductRecord, 0)
	for key, record := range c.data {
		if key.workspaceID != workspaceID || c.expired(record) {
			continue
		}
		if filter.FavoritesOnly && !record.IsFavorite {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})

	return records, nil
}

// Delete removes a record from the cache. An expired record is already
// gone as far as callers can tell, so it reports not found.
func (c *MemoryCache) Delete(ctx context.Context, workspaceID, id string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := recordKey{workspaceID, id}
	record, ok := c.data[key]
	if !ok {
		return domain.ErrProductNotFound
	}
	delete(c.data, key)
	if c.expired(record) {
		return domain.ErrProductNotFound
	}
	return nil
}

// SetFavorite flips the favorite flag without touching UpdatedAt
func (c *MemoryCache) SetFavorite(ctx context.Context, workspaceID, id string, favorite bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := recordKey{workspaceID, id}
	record, ok := c.data[key]
	if !ok || c.expired(record) {
		return domain.ErrProductNotFound
	}
	record.IsFavorite = favorite
	c.data[key] = record
	return nil
}

func (c *MemoryCache) expired(record domain.ProductRecord) bool {
	return c.ttl > 0 && c.now().After(record.UpdatedAt.Add(c.ttl))
}

// cleanupExpired removes expired entries from the cache periodically
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mutex.Lock()
			for key, record := range c.data {
				if c.expired(record) {
					delete(c.data, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}

// Close stops the cleanup goroutine
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}
