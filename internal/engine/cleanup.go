package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"commerce-sync-engine/internal/domain"
)

// Cleanup purges tombstones older than the retention window and returns how
// many were removed.
func (e *Engine) Cleanup(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.TombstoneRetention)
	tombstones, err := e.Store.ListTombstones(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list tombstones: %w", err)
	}

	purged := 0
	for _, tomb := range tombstones {
		if ctx.Err() != nil {
			return purged, ctx.Err()
		}
		ok, err := e.purgeIfExpired(ctx, tomb.Key(), tomb.EntityType, tomb.EntityID, cutoff)
		if err != nil {
			log.Printf("[Engine] purge %s: %v", tomb.Key(), err)
			continue
		}
		if ok {
			purged++
		}
	}

	log.Printf("[Engine] cleanup complete: purged %d of %d tombstones", purged, len(tombstones))
	return purged, nil
}

// purgeIfExpired re-reads the record under its key lock so a concurrent
// revive is never purged.
func (e *Engine) purgeIfExpired(ctx context.Context, key string, entityType domain.EntityType, entityID string, cutoff time.Time) (bool, error) {
	unlock := e.Locks.Lock(key)
	defer unlock()

	cur, err := e.Store.Get(ctx, entityType, entityID)
	if err != nil {
		return false, err
	}
	if cur == nil || !cur.Deleted || cur.DeletedAt == nil || !cur.DeletedAt.Before(cutoff) {
		return false, nil
	}
	if err := e.Store.Purge(ctx, cur); err != nil {
		return false, err
	}
	return true, nil
}
