package service

import (
	"context"
	"fmt"
	"log"

	"commerce-sync-engine/internal/connector"
	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/repository"
)

type DeadLetterService struct {
	repo     repository.DeadLetterRepository
	queue    EventQueue
	registry *connector.Registry
}

func NewDeadLetterService(repo repository.DeadLetterRepository, queue EventQueue, registry *connector.Registry) *DeadLetterService {
	return &DeadLetterService{
		repo:     repo,
		queue:    queue,
		registry: registry,
	}
}

func (s *DeadLetterService) RecordDeadLetter(ctx context.Context, dl *domain.DeadLetter) error {
	if err := s.repo.Create(ctx, dl); err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

func (s *DeadLetterService) List(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	return s.repo.List(ctx, limit)
}

// Replay retries a dead letter. Emit failures are re-sent to the failing
// platform; everything else goes back on the queue with attempts reset.
func (s *DeadLetterService) Replay(ctx context.Context, id string) (*domain.SyncEvent, error) {
	dl, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dl.Event == nil {
		return nil, fmt.Errorf("dead letter %s has no event", id)
	}

	event := *dl.Event
	event.Attempts = 0

	if dl.Stage == domain.StageEmit && dl.Platform != "" && s.registry != nil {
		c, ok := s.registry.Get(dl.Platform)
		if !ok {
			return nil, fmt.Errorf("connector %q is not registered", dl.Platform)
		}
		if err := s.registry.Emit(ctx, c, &event); err != nil {
			return nil, fmt.Errorf("replay emit: %w", err)
		}
	} else if !s.queue.Enqueue(&event).Accepted {
		return nil, ErrEventDropped
	}

	if err := s.repo.Delete(ctx, dl); err != nil {
		return nil, fmt.Errorf("failed to delete dead letter: %w", err)
	}
	log.Printf("[DeadLetter] replayed %s (%s, stage=%s)", dl.ID, event.Key(), dl.Stage)
	return &event, nil
}
