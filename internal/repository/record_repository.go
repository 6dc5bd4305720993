package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kivik/kivik/v4"

	"commerce-sync-engine/internal/domain"
)

// RecordRepository stores canonical records keyed by (entityType, entityId).
type RecordRepository interface {
	Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.CanonicalRecord, error)
	Put(ctx context.Context, record *domain.CanonicalRecord) (string, error)
	Purge(ctx context.Context, record *domain.CanonicalRecord) error
	ListByType(ctx context.Context, entityType domain.EntityType) ([]*domain.CanonicalRecord, error)
	ListTombstones(ctx context.Context, olderThan time.Time) ([]*domain.CanonicalRecord, error)
	Ping(ctx context.Context) error
}

type recordDoc struct {
	ID      string `json:"_id"`
	DocRev  string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	*domain.CanonicalRecord
}

type recordRepository struct {
	client *kivik.Client
	dbName string
}

func NewRecordRepository(client *kivik.Client, dbName string) RecordRepository {
	return &recordRepository{
		client: client,
		dbName: dbName,
	}
}

func RecordDocID(entityType domain.EntityType, entityID string) string {
	return fmt.Sprintf("record:%s:%s", entityType, entityID)
}

func (r *recordRepository) Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.CanonicalRecord, error) {
	db := r.client.DB(r.dbName)

	doc := recordDoc{CanonicalRecord: &domain.CanonicalRecord{}}
	if err := db.Get(ctx, RecordDocID(entityType, entityID)).ScanDoc(&doc); err != nil {
		if err = translate(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find record: %w", err)
	}

	doc.CanonicalRecord.Rev = doc.DocRev
	return doc.CanonicalRecord, nil
}

// Put writes record at its current Rev and returns the new revision.
func (r *recordRepository) Put(ctx context.Context, record *domain.CanonicalRecord) (string, error) {
	db := r.client.DB(r.dbName)

	doc := recordDoc{
		ID:              RecordDocID(record.EntityType, record.EntityID),
		DocRev:          record.Rev,
		DocType:         docTypeRecord,
		CanonicalRecord: record,
	}
	rev, err := db.Put(ctx, doc.ID, doc)
	if err != nil {
		return "", fmt.Errorf("failed to save record: %w", translate(err))
	}
	return rev, nil
}

func (r *recordRepository) Purge(ctx context.Context, record *domain.CanonicalRecord) error {
	db := r.client.DB(r.dbName)

	if _, err := db.Delete(ctx, RecordDocID(record.EntityType, record.EntityID), record.Rev); err != nil {
		if err = translate(err); errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to purge record: %w", err)
	}
	return nil
}

func (r *recordRepository) ListByType(ctx context.Context, entityType domain.EntityType) ([]*domain.CanonicalRecord, error) {
	return r.find(ctx, map[string]interface{}{
		"doc_type":    docTypeRecord,
		"entity_type": entityType,
	})
}

// ListTombstones returns deleted records whose tombstone predates olderThan.
func (r *recordRepository) ListTombstones(ctx context.Context, olderThan time.Time) ([]*domain.CanonicalRecord, error) {
	records, err := r.find(ctx, map[string]interface{}{
		"doc_type": docTypeRecord,
		"deleted":  true,
	})
	if err != nil {
		return nil, err
	}
	return ExpiredTombstones(records, olderThan), nil
}

func (r *recordRepository) find(ctx context.Context, selector map[string]interface{}) ([]*domain.CanonicalRecord, error) {
	db := r.client.DB(r.dbName)

	rows := db.Find(ctx, map[string]interface{}{"selector": selector})
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*domain.CanonicalRecord
	for rows.Next() {
		doc := recordDoc{CanonicalRecord: &domain.CanonicalRecord{}}
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		doc.CanonicalRecord.Rev = doc.DocRev
		records = append(records, doc.CanonicalRecord)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

func (r *recordRepository) Ping(ctx context.Context) error {
	ok, err := r.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("document store unreachable: %w", err)
	}
	if !ok {
		return errors.New("document store unreachable")
	}
	return nil
}

// ExpiredTombstones filters records down to tombstones older than cutoff.
func ExpiredTombstones(records []*domain.CanonicalRecord, cutoff time.Time) []*domain.CanonicalRecord {
	var out []*domain.CanonicalRecord
	for _, rec := range records {
		if rec.Deleted && rec.DeletedAt != nil && rec.DeletedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}
