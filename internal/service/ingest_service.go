package service

import (
	"context"
	"log"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/logging"
	"commerce-sync-engine/internal/queue"
)

type EventClassifier interface {
	Classify(raw domain.RawEvent) (*domain.SyncEvent, error)
}

type EventQueue interface {
	Enqueue(event *domain.SyncEvent) queue.EnqueueResult
}

// IngestService is the single entry point for raw events, whether they come
// from a connector pump, the HTTP API or gRPC.
type IngestService struct {
	classifier EventClassifier
	queue      EventQueue
}

func NewIngestService(classifier EventClassifier, queue EventQueue) *IngestService {
	return &IngestService{
		classifier: classifier,
		queue:      queue,
	}
}

func (s *IngestService) Submit(ctx context.Context, raw domain.RawEvent) (*domain.SyncEvent, error) {
	event, err := s.classifier.Classify(raw)
	if err != nil {
		log.Printf("[Ingest] rejected event from %q: %v", raw.Platform, err)
		return nil, err
	}

	result := s.queue.Enqueue(event)
	if !result.Accepted {
		log.Printf("[Ingest] dropped %s %s from %s under backpressure", event.Metadata.Priority, event.Key(), event.SourcePlatform)
		return nil, ErrEventDropped
	}
	if result.Evicted != nil {
		log.Printf("[Ingest] evicted %s to admit %s", result.Evicted.Key(), event.Key())
	}

	logging.Debugf("[Ingest] queued %s %s as %s (seq=%d)", event.ID, event.Key(), event.Metadata.Priority, event.Seq)
	return event, nil
}

// SubmitAs enforces that raw belongs to the authenticated platform client.
// An empty platform is filled from the client ID.
func (s *IngestService) SubmitAs(ctx context.Context, clientID string, raw domain.RawEvent) (*domain.SyncEvent, error) {
	if raw.Platform == "" {
		raw.Platform = clientID
	}
	if raw.Platform != clientID {
		return nil, ErrPlatformMismatch
	}
	return s.Submit(ctx, raw)
}
