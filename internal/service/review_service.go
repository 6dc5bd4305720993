package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"commerce-sync-engine/internal/conflict"
	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/keylock"
	"commerce-sync-engine/internal/repository"
)

type RecordStore interface {
	Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.CanonicalRecord, error)
	Put(ctx context.Context, record *domain.CanonicalRecord) error
}

type Notifier interface {
	Notify(n domain.EntityUpdated)
}

type ReviewService struct {
	reviews  repository.ReviewRepository
	store    RecordStore
	locks    *keylock.Table
	notifier Notifier
	now      func() time.Time
}

func NewReviewService(reviews repository.ReviewRepository, store RecordStore, locks *keylock.Table, notifier Notifier) *ReviewService {
	return &ReviewService{
		reviews:  reviews,
		store:    store,
		locks:    locks,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *ReviewService) List(ctx context.Context) ([]*domain.ReviewItem, error) {
	items, err := s.reviews.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return items, nil
}

func (s *ReviewService) Get(ctx context.Context, id string) (*domain.ReviewItem, error) {
	return s.reviews.Get(ctx, id)
}

// Resolve writes the operator's choice to the canonical record under the
// entity lock and closes the review.
func (s *ReviewService) Resolve(ctx context.Context, id string, req *domain.ResolveReviewRequest, resolvedBy string) (*domain.CanonicalRecord, error) {
	item, err := s.reviews.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status == domain.ReviewResolved {
		return nil, ErrReviewClosed
	}
	if item.Event == nil {
		return nil, fmt.Errorf("review %s has no event", id)
	}

	unlock := s.locks.Lock(domain.RecordKey(item.EntityType, item.EntityID))
	defer unlock()

	existing, err := s.store.Get(ctx, item.EntityType, item.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	decision, err := resolution(existing, item, req)
	if err != nil {
		return nil, err
	}

	rec := conflict.Apply(existing, item.Event, decision)
	keepNewerVersion(existing, rec, item.Event)
	if err := s.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to write record: %w", err)
	}

	now := s.now().UTC()
	item.Status = domain.ReviewResolved
	item.ResolvedAt = &now
	item.Choice = req.Choice
	item.ResolvedBy = resolvedBy
	if err := s.reviews.Update(ctx, item); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrReviewClosed
		}
		return nil, fmt.Errorf("failed to close review: %w", err)
	}

	log.Printf("[Review] %s resolved as %s by %s", item.ID, req.Choice, resolvedBy)
	if s.notifier != nil {
		s.notifier.Notify(domain.EntityUpdated{
			Kind:           domain.NotificationEntityUpdated,
			EntityType:     rec.EntityType,
			EntityID:       rec.EntityID,
			UpdatedAt:      rec.UpdatedAt,
			SourcePlatform: item.Event.SourcePlatform,
			EventID:        item.Event.ID,
		})
	}
	return rec, nil
}

func resolution(existing *domain.CanonicalRecord, item *domain.ReviewItem, req *domain.ResolveReviewRequest) (domain.ConflictDecision, error) {
	current := item.ExistingData
	if existing != nil {
		current = existing.CurrentData
	}

	switch req.Choice {
	case domain.ReviewChoiceExisting:
		return domain.ConflictDecision{ResultingData: domain.CloneData(current)}, nil

	case domain.ReviewChoiceIncoming:
		merged := domain.CloneData(current)
		if merged == nil {
			merged = make(map[string]interface{}, len(item.Event.Payload))
		}
		applied := make([]string, 0, len(item.Event.Payload))
		for k, v := range item.Event.Payload {
			merged[k] = v
			applied = append(applied, k)
		}
		return domain.ConflictDecision{ResultingData: merged, AppliedFields: applied}, nil

	case domain.ReviewChoiceCustom:
		if req.Data == nil {
			return domain.ConflictDecision{}, fmt.Errorf("custom resolution requires data")
		}
		applied := make([]string, 0, len(req.Data))
		for k := range req.Data {
			applied = append(applied, k)
		}
		return domain.ConflictDecision{ResultingData: domain.CloneData(req.Data), AppliedFields: applied}, nil
	}
	return domain.ConflictDecision{}, fmt.Errorf("unknown review choice %q", req.Choice)
}

// keepNewerVersion restores a platform version that is newer than the
// reviewed event so later duplicates of it are still detected.
func keepNewerVersion(existing, rec *domain.CanonicalRecord, ev *domain.SyncEvent) {
	if existing == nil {
		return
	}
	if prev, ok := existing.SourceVersions[ev.SourcePlatform]; ok && prev.Timestamp.After(ev.Timestamp) {
		rec.SourceVersions[ev.SourcePlatform] = prev
	}
}
