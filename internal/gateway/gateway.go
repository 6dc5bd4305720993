// Package gateway fronts the canonical record store with a TTL cache.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/repository"
)

// PersistenceWriteError is a failed durable write of a canonical record.
type PersistenceWriteError struct {
	Key string
	Err error
}

func (e *PersistenceWriteError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistenceWriteError) Unwrap() error {
	return e.Err
}

type Stats struct {
	CacheEntries int    `json:"cache_entries"`
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
}

// Gateway is read-through and write-through. Cached entries expire after the
// TTL so a lost cache update heals on its own.
type Gateway struct {
	store repository.RecordRepository
	cache *expirable.LRU[string, *domain.CanonicalRecord]

	hits   atomic.Uint64
	misses atomic.Uint64
}

func New(store repository.RecordRepository, size int, ttl time.Duration) *Gateway {
	if size <= 0 {
		size = 10000
	}
	return &Gateway{
		store: store,
		cache: expirable.NewLRU[string, *domain.CanonicalRecord](size, nil, ttl),
	}
}

// Get returns nil, nil when the entity has no canonical record yet.
func (g *Gateway) Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.CanonicalRecord, error) {
	key := domain.RecordKey(entityType, entityID)
	if rec, ok := g.cache.Get(key); ok {
		g.hits.Add(1)
		return rec.Clone(), nil
	}
	g.misses.Add(1)

	rec, err := g.store.Get(ctx, entityType, entityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	g.cache.Add(key, rec.Clone())
	return rec, nil
}

// Put updates the cache, then the durable store. On a failed store write the
// cache entry is dropped so the next read goes to the store.
func (g *Gateway) Put(ctx context.Context, record *domain.CanonicalRecord) error {
	key := record.Key()
	g.cache.Add(key, record.Clone())

	rev, err := g.store.Put(ctx, record)
	if err != nil {
		g.cache.Remove(key)
		return &PersistenceWriteError{Key: key, Err: err}
	}

	record.Rev = rev
	g.cache.Add(key, record.Clone())
	return nil
}

// Delete writes record as a tombstone.
func (g *Gateway) Delete(ctx context.Context, record *domain.CanonicalRecord, at time.Time) error {
	record.Deleted = true
	if record.DeletedAt == nil {
		record.DeletedAt = &at
	}
	return g.Put(ctx, record)
}

// Purge removes a record permanently.
func (g *Gateway) Purge(ctx context.Context, record *domain.CanonicalRecord) error {
	g.cache.Remove(record.Key())
	return g.store.Purge(ctx, record)
}

func (g *Gateway) Ping(ctx context.Context) error {
	return g.store.Ping(ctx)
}

func (g *Gateway) ListByType(ctx context.Context, entityType domain.EntityType) ([]*domain.CanonicalRecord, error) {
	return g.store.ListByType(ctx, entityType)
}

func (g *Gateway) ListTombstones(ctx context.Context, olderThan time.Time) ([]*domain.CanonicalRecord, error) {
	return g.store.ListTombstones(ctx, olderThan)
}

func (g *Gateway) Stats() Stats {
	return Stats{
		CacheEntries: g.cache.Len(),
		Hits:         g.hits.Load(),
		Misses:       g.misses.Load(),
	}
}
