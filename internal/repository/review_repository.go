package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-kivik/kivik/v4"

	"commerce-sync-engine/internal/domain"
)

// ReviewRepository is the durable queue of manual_review decisions.
type ReviewRepository interface {
	Create(ctx context.Context, item *domain.ReviewItem) error
	Get(ctx context.Context, id string) (*domain.ReviewItem, error)
	ListPending(ctx context.Context) ([]*domain.ReviewItem, error)
	Update(ctx context.Context, item *domain.ReviewItem) error
}

type reviewDoc struct {
	ID      string `json:"_id"`
	DocRev  string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	*domain.ReviewItem
}

type reviewRepository struct {
	client *kivik.Client
	dbName string
}

func NewReviewRepository(client *kivik.Client, dbName string) ReviewRepository {
	return &reviewRepository{
		client: client,
		dbName: dbName,
	}
}

// Create stores item under its ID. A second create for the same ID returns ErrExists.
func (r *reviewRepository) Create(ctx context.Context, item *domain.ReviewItem) error {
	db := r.client.DB(r.dbName)

	doc := reviewDoc{ID: fmt.Sprintf("review:%s", item.ID), DocType: docTypeReview, ReviewItem: item}
	rev, err := db.Put(ctx, doc.ID, doc)
	if err != nil {
		if err = translate(err); errors.Is(err, ErrConflict) {
			return ErrExists
		}
		return fmt.Errorf("failed to create review: %w", err)
	}
	item.Rev = rev
	return nil
}

func (r *reviewRepository) Get(ctx context.Context, id string) (*domain.ReviewItem, error) {
	db := r.client.DB(r.dbName)

	doc := reviewDoc{ReviewItem: &domain.ReviewItem{}}
	if err := db.Get(ctx, fmt.Sprintf("review:%s", id)).ScanDoc(&doc); err != nil {
		if err = translate(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find review: %w", err)
	}
	doc.ReviewItem.Rev = doc.DocRev
	return doc.ReviewItem, nil
}

func (r *reviewRepository) ListPending(ctx context.Context) ([]*domain.ReviewItem, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": docTypeReview,
			"status":   domain.ReviewPending,
		},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var items []*domain.ReviewItem
	for rows.Next() {
		doc := reviewDoc{ReviewItem: &domain.ReviewItem{}}
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		doc.ReviewItem.Rev = doc.DocRev
		items = append(items, doc.ReviewItem)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].DetectedAt.Before(items[j].DetectedAt)
	})
	return items, nil
}

func (r *reviewRepository) Update(ctx context.Context, item *domain.ReviewItem) error {
	db := r.client.DB(r.dbName)

	doc := reviewDoc{ID: fmt.Sprintf("review:%s", item.ID), DocRev: item.Rev, DocType: docTypeReview, ReviewItem: item}
	rev, err := db.Put(ctx, doc.ID, doc)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", translate(err))
	}
	item.Rev = rev
	return nil
}
