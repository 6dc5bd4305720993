package connector

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/retry"
)

// DeadLetterRecorder persists events that could not be delivered.
type DeadLetterRecorder interface {
	RecordDeadLetter(ctx context.Context, dl *domain.DeadLetter) error
}

type EmitterConfig struct {
	OutboxSize  int
	MaxAttempts int
	Backoff     retry.Backoff
}

// Emitter fans processed events out to subscribed connectors. Each subscriber
// has its own outbox so a slow platform does not hold up the others.
type Emitter struct {
	registry *Registry
	cfg      EmitterConfig
	dead     DeadLetterRecorder

	outboxes map[string]chan *domain.SyncEvent
	wg       sync.WaitGroup
	mu       sync.RWMutex
	started  bool
}

func NewEmitter(registry *Registry, cfg EmitterConfig, dead DeadLetterRecorder) *Emitter {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Emitter{
		registry: registry,
		cfg:      cfg,
		dead:     dead,
		outboxes: make(map[string]chan *domain.SyncEvent),
	}
}

// Start launches one delivery loop per subscriber. Loops exit when ctx is done
// or Stop closes the outboxes.
func (e *Emitter) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	for _, c := range e.registry.Subscribers() {
		outbox := make(chan *domain.SyncEvent, e.cfg.OutboxSize)
		e.outboxes[c.Platform()] = outbox
		e.wg.Add(1)
		go e.deliver(ctx, c, outbox)
	}
}

// Publish queues event for every subscriber except its source platform.
func (e *Emitter) Publish(ctx context.Context, event *domain.SyncEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for platform, outbox := range e.outboxes {
		if platform == event.SourcePlatform {
			continue
		}
		select {
		case outbox <- event:
		default:
			e.deadLetter(ctx, event, platform, fmt.Errorf("outbox full"), 0)
		}
	}
}

func (e *Emitter) Stop() {
	e.mu.Lock()
	for platform, outbox := range e.outboxes {
		close(outbox)
		delete(e.outboxes, platform)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Emitter) deliver(ctx context.Context, c Connector, outbox <-chan *domain.SyncEvent) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-outbox:
			if !ok {
				return
			}
			e.deliverOne(ctx, c, event)
		}
	}
}

func (e *Emitter) deliverOne(ctx context.Context, c Connector, event *domain.SyncEvent) {
	var err error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err = e.registry.Emit(ctx, c, event); err == nil {
			return
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}
		delay := e.cfg.Backoff.Delay(attempt)
		log.Printf("[Emitter] %s emit %s failed, retry %d/%d in %s: %v",
			c.Platform(), event.ID, attempt, e.cfg.MaxAttempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	e.deadLetter(ctx, event, c.Platform(), err, e.cfg.MaxAttempts)
}

func (e *Emitter) deadLetter(ctx context.Context, event *domain.SyncEvent, platform string, cause error, attempts int) {
	log.Printf("[Emitter] dead-lettering %s for %s: %v", event.ID, platform, cause)
	if e.dead == nil {
		return
	}
	dl := &domain.DeadLetter{
		ID:        uuid.NewString(),
		Event:     event,
		Stage:     domain.StageEmit,
		Platform:  platform,
		LastError: cause.Error(),
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	}
	if err := e.dead.RecordDeadLetter(context.WithoutCancel(ctx), dl); err != nil {
		log.Printf("[Emitter] failed to record dead letter for %s: %v", event.ID, err)
	}
}
