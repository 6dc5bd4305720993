package engine

import (
	"context"
	"fmt"
	"log"

	"commerce-sync-engine/internal/conflict"
	"commerce-sync-engine/internal/domain"
)

const reconcileSubtype = "catalog_bulk_update"

type ReconcileResult struct {
	Connectors int `json:"connectors"`
	Checked    int `json:"checked"`
	Enqueued   int `json:"enqueued"`
	Failed     int `json:"failed"`
}

// Reconcile pulls every connector's catalog, diffs it against the canonical
// product records and enqueues low-priority create/update events for drift.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult

	records, err := e.Store.ListByType(ctx, domain.EntityProduct)
	if err != nil {
		return res, fmt.Errorf("list products: %w", err)
	}
	canonical := make(map[string]*domain.CanonicalRecord, len(records))
	for _, rec := range records {
		canonical[rec.EntityID] = rec
	}

	for _, c := range e.Registry.All() {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Connectors++

		entries, err := e.Registry.Products(ctx, c)
		if err != nil {
			res.Failed++
			log.Printf("[Engine] reconcile %s: %v", c.Platform(), err)
			continue
		}

		for _, entry := range entries {
			res.Checked++
			eventType, drift := catalogDrift(canonical[entry.ExternalID], entry)
			if !drift {
				continue
			}
			if e.enqueueCatalogEntry(c.Platform(), eventType, entry) {
				res.Enqueued++
			}
		}
	}

	log.Printf("[Engine] reconcile complete: connectors=%d checked=%d enqueued=%d failed=%d",
		res.Connectors, res.Checked, res.Enqueued, res.Failed)
	return res, nil
}

func (e *Engine) enqueueCatalogEntry(platform string, eventType domain.EventType, entry domain.CatalogEntry) bool {
	raw := domain.RawEvent{
		Platform:   platform,
		Type:       eventType,
		Subtype:    reconcileSubtype,
		EntityType: domain.EntityProduct,
		EntityID:   entry.ExternalID,
		Data:       entry.Fields(),
		StoreID:    e.cfg.ReconcileStoreID,
	}
	if !entry.UpdatedAt.IsZero() {
		raw.Timestamp = entry.UpdatedAt.UnixMilli()
	}

	ev, err := e.Classifier.Classify(raw)
	if err != nil {
		log.Printf("[Engine] reconcile %s: skipping %q: %v", platform, entry.ExternalID, err)
		return false
	}
	return e.Queue.Enqueue(ev).Accepted
}

// catalogDrift reports whether entry differs from the canonical record and
// which event type would bring the record in line.
func catalogDrift(rec *domain.CanonicalRecord, entry domain.CatalogEntry) (domain.EventType, bool) {
	if entry.ExternalID == "" {
		return "", false
	}
	if rec == nil || rec.Deleted {
		return domain.EventTypeCreate, true
	}
	for field, value := range entry.Fields() {
		if !conflict.ValuesEqual(rec.CurrentData[field], value) {
			return domain.EventTypeUpdate, true
		}
	}
	return "", false
}
