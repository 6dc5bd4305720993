package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-kivik/kivik/v4"

	"commerce-sync-engine/internal/domain"
)

type DeadLetterRepository interface {
	Create(ctx context.Context, dl *domain.DeadLetter) error
	Get(ctx context.Context, id string) (*domain.DeadLetter, error)
	List(ctx context.Context, limit int) ([]*domain.DeadLetter, error)
	Delete(ctx context.Context, dl *domain.DeadLetter) error
}

type deadLetterDoc struct {
	ID      string `json:"_id"`
	DocRev  string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	*domain.DeadLetter
}

type deadLetterRepository struct {
	client *kivik.Client
	dbName string
}

func NewDeadLetterRepository(client *kivik.Client, dbName string) DeadLetterRepository {
	return &deadLetterRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *deadLetterRepository) Create(ctx context.Context, dl *domain.DeadLetter) error {
	db := r.client.DB(r.dbName)

	doc := deadLetterDoc{ID: fmt.Sprintf("deadletter:%s", dl.ID), DocType: docTypeDeadLetter, DeadLetter: dl}
	rev, err := db.Put(ctx, doc.ID, doc)
	if err != nil {
		return fmt.Errorf("failed to create dead letter: %w", translate(err))
	}
	dl.Rev = rev
	return nil
}

func (r *deadLetterRepository) Get(ctx context.Context, id string) (*domain.DeadLetter, error) {
	db := r.client.DB(r.dbName)

	doc := deadLetterDoc{DeadLetter: &domain.DeadLetter{}}
	if err := db.Get(ctx, fmt.Sprintf("deadletter:%s", id)).ScanDoc(&doc); err != nil {
		if err = translate(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find dead letter: %w", err)
	}
	doc.DeadLetter.Rev = doc.DocRev
	return doc.DeadLetter, nil
}

// List returns dead letters newest first. A non-positive limit returns all.
func (r *deadLetterRepository) List(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{"doc_type": docTypeDeadLetter},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*domain.DeadLetter
	for rows.Next() {
		doc := deadLetterDoc{DeadLetter: &domain.DeadLetter{}}
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		doc.DeadLetter.Rev = doc.DocRev
		out = append(out, doc.DeadLetter)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].FailedAt.After(out[j].FailedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *deadLetterRepository) Delete(ctx context.Context, dl *domain.DeadLetter) error {
	db := r.client.DB(r.dbName)

	if _, err := db.Delete(ctx, fmt.Sprintf("deadletter:%s", dl.ID), dl.Rev); err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", translate(err))
	}
	return nil
}
