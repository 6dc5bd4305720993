// Package engine drains the sync queue, resolves conflicts and persists
// canonical state.
package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"

	"commerce-sync-engine/internal/audit"
	"commerce-sync-engine/internal/conflict"
	"commerce-sync-engine/internal/connector"
	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/keylock"
	"commerce-sync-engine/internal/queue"
	"commerce-sync-engine/internal/repository"
)

type Queue interface {
	Enqueue(event *domain.SyncEvent) queue.EnqueueResult
	DrainBatch(max int) []*domain.SyncEvent
	Ack(ctx context.Context, ids ...string) error
	Stats() queue.Stats
}

// Store is the persistence gateway as seen by the engine.
type Store interface {
	Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.CanonicalRecord, error)
	Put(ctx context.Context, record *domain.CanonicalRecord) error
	Delete(ctx context.Context, record *domain.CanonicalRecord, at time.Time) error
	Purge(ctx context.Context, record *domain.CanonicalRecord) error
	Ping(ctx context.Context) error
	ListByType(ctx context.Context, entityType domain.EntityType) ([]*domain.CanonicalRecord, error)
	ListTombstones(ctx context.Context, olderThan time.Time) ([]*domain.CanonicalRecord, error)
}

type ReviewQueue interface {
	Create(ctx context.Context, item *domain.ReviewItem) error
}

type Notifier interface {
	Notify(n domain.EntityUpdated)
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.SyncEvent)
}

type Classifier interface {
	Classify(raw domain.RawEvent) (*domain.SyncEvent, error)
}

// Deps are the collaborators the engine is constructed with. Notifier,
// Publisher, Audit and Registry are optional.
type Deps struct {
	Queue       Queue
	Store       Store
	Resolver    *conflict.Resolver
	Reviews     ReviewQueue
	DeadLetters connector.DeadLetterRecorder
	Locks       *keylock.Table
	Classifier  Classifier
	Registry    *connector.Registry
	Notifier    Notifier
	Publisher   Publisher
	Audit       audit.Sink
}

type handlerFunc func(ctx context.Context, ev *domain.SyncEvent)

type Engine struct {
	cfg Config
	Deps
	now      func() time.Time
	handlers map[domain.EventType]handlerFunc

	state         atomic.Int32
	paused        atomic.Bool
	storeFailures atomic.Int32

	processed    atomic.Uint64
	applied      atomic.Uint64
	stale        atomic.Uint64
	queuedReview atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
	failed       atomic.Uint64

	retryMu sync.Mutex
	timers  map[string]*time.Timer
	holds   map[string]*hold
	ready   []*domain.SyncEvent
	stopped bool
}

// hold parks the events of one key behind the event being retried, so a key
// keeps its enqueue order across failures.
type hold struct {
	head    string
	backlog []*domain.SyncEvent
}

func New(cfg Config, deps Deps) *Engine {
	if deps.Locks == nil {
		deps.Locks = keylock.New()
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop()
	}
	e := &Engine{
		cfg:    cfg.normalised(),
		Deps:   deps,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
		holds:  make(map[string]*hold),
	}
	e.handlers = map[domain.EventType]handlerFunc{
		domain.EventTypeCreate:            e.applyChange,
		domain.EventTypeUpdate:            e.applyChange,
		domain.EventTypeDelete:            e.applyDelete,
		domain.EventTypeDomainInteraction: e.forwardInteraction,
	}
	return e
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// Run drives the processing loop and the periodic tasks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[Engine] starting: tick=%s batch=%d workers=%d", e.cfg.TickInterval, e.cfg.BatchSize, e.cfg.Workers)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.loop(ctx)
		return nil
	})
	if e.Registry != nil && e.Classifier != nil && e.cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			e.every(ctx, e.cfg.ReconcileInterval, func(ctx context.Context) {
				if _, err := e.Reconcile(ctx); err != nil {
					log.Printf("[Engine] catalog reconciliation failed: %v", err)
				}
			})
			return nil
		})
	}
	if e.cfg.CleanupInterval > 0 {
		g.Go(func() error {
			e.every(ctx, e.cfg.CleanupInterval, func(ctx context.Context) {
				if _, err := e.Cleanup(ctx); err != nil {
					log.Printf("[Engine] tombstone cleanup failed: %v", err)
				}
			})
			return nil
		})
	}

	err := g.Wait()
	e.stopRetries()
	log.Printf("[Engine] stopped")
	return err
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for ctx.Err() == nil {
				if n := e.RunCycle(ctx); n < e.cfg.BatchSize {
					break
				}
			}
		}
	}
}

func (e *Engine) every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// RunCycle performs one Idle -> Draining -> Grouping -> Processing -> Idle pass
// and returns the number of events drained.
func (e *Engine) RunCycle(ctx context.Context) int {
	if e.paused.Load() && !e.storeReachable(ctx) {
		return 0
	}

	e.setState(StateDraining)
	batch := e.takeReady(e.cfg.BatchSize)
	if len(batch) < e.cfg.BatchSize {
		batch = append(batch, e.Queue.DrainBatch(e.cfg.BatchSize-len(batch))...)
	}
	if len(batch) == 0 {
		e.setState(StateIdle)
		return 0
	}

	e.setState(StateGrouping)
	tiers := groupBatch(batch)

	e.setState(StateProcessing)
	for _, tier := range tiers {
		e.processTier(ctx, tier)
	}

	e.setState(StateIdle)
	return len(batch)
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

type entityGroup struct {
	entityType domain.EntityType
	events     []*domain.SyncEvent
}

type tierGroup struct {
	priority domain.Priority
	groups   []entityGroup
}

// groupBatch partitions a batch by tier, then entity type. Order within a
// tier is kept.
func groupBatch(batch []*domain.SyncEvent) []tierGroup {
	sort.SliceStable(batch, func(a, b int) bool {
		return batch[a].Metadata.Priority.Normalize() < batch[b].Metadata.Priority.Normalize()
	})

	var tiers []tierGroup
	for _, ev := range batch {
		p := ev.Metadata.Priority.Normalize()
		if len(tiers) == 0 || tiers[len(tiers)-1].priority != p {
			tiers = append(tiers, tierGroup{priority: p})
		}
		t := &tiers[len(tiers)-1]

		found := false
		for i := range t.groups {
			if t.groups[i].entityType == ev.EntityType {
				t.groups[i].events = append(t.groups[i].events, ev)
				found = true
				break
			}
		}
		if !found {
			t.groups = append(t.groups, entityGroup{entityType: ev.EntityType, events: []*domain.SyncEvent{ev}})
		}
	}
	for i := range tiers {
		sort.SliceStable(tiers[i].groups, func(a, b int) bool {
			return tiers[i].groups[a].entityType < tiers[i].groups[b].entityType
		})
	}
	return tiers
}

// route assigns each event to a worker lane by key hash. Events for one key
// always share a lane and keep their batch order.
func route(events []*domain.SyncEvent, workers int) [][]*domain.SyncEvent {
	lanes := make([][]*domain.SyncEvent, workers)
	for _, ev := range events {
		lane := murmur3.Sum32([]byte(ev.Key())) % uint32(workers)
		lanes[lane] = append(lanes[lane], ev)
	}
	return lanes
}

func (e *Engine) processTier(ctx context.Context, tier tierGroup) {
	var events []*domain.SyncEvent
	for _, g := range tier.groups {
		events = append(events, g.events...)
	}

	var g errgroup.Group
	for _, lane := range route(events, e.cfg.Workers) {
		if len(lane) == 0 {
			continue
		}
		lane := lane
		g.Go(func() error {
			for _, ev := range lane {
				e.handle(ctx, ev)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) handle(ctx context.Context, ev *domain.SyncEvent) {
	if e.deferIfHeld(ev) {
		return
	}
	if e.paused.Load() {
		e.requeue(ev, 0)
		return
	}

	unlock := e.Locks.Lock(ev.Key())
	defer unlock()

	h, ok := e.handlers[ev.EventType]
	if !ok {
		e.deadLetter(ctx, ev, domain.StagePersist, errors.New("no handler for event type "+string(ev.EventType)))
		return
	}
	h(ctx, ev)
}

func (e *Engine) applyChange(ctx context.Context, ev *domain.SyncEvent) {
	existing, err := e.Store.Get(ctx, ev.EntityType, ev.EntityID)
	if err != nil {
		e.storeFailed(err)
		e.retry(ctx, ev, domain.StagePersist, err)
		return
	}

	decision := e.Resolver.Resolve(existing, ev)
	switch {
	case decision.Stale():
		e.stale.Add(1)
		e.finish(ctx, ev, audit.OutcomeStale, decision.Strategy)

	case decision.Strategy == domain.StrategyManualReview:
		e.queueReview(ctx, ev, existing, decision)

	default:
		rec := conflict.Apply(existing, ev, decision)
		if err := e.Store.Put(ctx, rec); err != nil {
			e.storeFailed(err)
			e.retry(ctx, ev, domain.StagePersist, err)
			return
		}
		e.storeRecovered()
		e.applied.Add(1)
		e.notify(domain.NotificationEntityUpdated, ev, rec.UpdatedAt)
		e.publish(ctx, ev)
		e.finish(ctx, ev, audit.OutcomeApplied, decision.Strategy)
	}
}

func (e *Engine) queueReview(ctx context.Context, ev *domain.SyncEvent, existing *domain.CanonicalRecord, decision domain.ConflictDecision) {
	item := &domain.ReviewItem{
		ID:           ev.ID,
		EntityType:   ev.EntityType,
		EntityID:     ev.EntityID,
		Event:        ev,
		ExistingData: domain.CloneData(existing.CurrentData),
		Conflicts:    decision.Conflicts,
		Status:       domain.ReviewPending,
		DetectedAt:   e.now().UTC(),
	}
	if err := e.Reviews.Create(ctx, item); err != nil && !errors.Is(err, repository.ErrExists) {
		e.retry(ctx, ev, domain.StageReview, err)
		return
	}

	e.queuedReview.Add(1)
	log.Printf("[Engine] %s needs manual review (%d conflicting fields)", ev.Key(), len(decision.Conflicts))
	e.notify(domain.NotificationReviewQueued, ev, item.DetectedAt)
	e.finish(ctx, ev, audit.OutcomeReview, decision.Strategy)
}

func (e *Engine) applyDelete(ctx context.Context, ev *domain.SyncEvent) {
	existing, err := e.Store.Get(ctx, ev.EntityType, ev.EntityID)
	if err != nil {
		e.storeFailed(err)
		e.retry(ctx, ev, domain.StagePersist, err)
		return
	}

	if e.Resolver.IsStale(existing, ev) {
		e.stale.Add(1)
		e.finish(ctx, ev, audit.OutcomeStale, domain.StrategyLastWriteWins)
		return
	}

	tomb := conflict.Tombstone(existing, ev)
	if err := e.Store.Delete(ctx, tomb, ev.Timestamp); err != nil {
		e.storeFailed(err)
		e.retry(ctx, ev, domain.StagePersist, err)
		return
	}
	e.storeRecovered()
	e.applied.Add(1)
	e.notify(domain.NotificationEntityDeleted, ev, ev.Timestamp)
	e.publish(ctx, ev)
	e.finish(ctx, ev, audit.OutcomeApplied, domain.StrategyNone)
}

// forwardInteraction relays domain interactions without touching canonical state.
func (e *Engine) forwardInteraction(ctx context.Context, ev *domain.SyncEvent) {
	e.publish(ctx, ev)
	e.notify(domain.NotificationInteraction, ev, ev.Timestamp)
	e.finish(ctx, ev, audit.OutcomeInteraction, domain.StrategyNone)
}

func (e *Engine) finish(ctx context.Context, ev *domain.SyncEvent, outcome audit.Outcome, strategy domain.Strategy) {
	e.processed.Add(1)
	e.ack(ctx, ev)

	entry := audit.NewEntry(ev, outcome, e.now())
	entry.Strategy = strategy
	e.Audit.Record(entry)
}

func (e *Engine) ack(ctx context.Context, ev *domain.SyncEvent) {
	if err := e.Queue.Ack(ctx, ev.ID); err != nil {
		log.Printf("[Engine] failed to ack %s: %v", ev.ID, err)
	}
	e.release(ev)
}

func (e *Engine) notify(kind domain.NotificationKind, ev *domain.SyncEvent, at time.Time) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Notify(domain.EntityUpdated{
		Kind:           kind,
		EntityType:     ev.EntityType,
		EntityID:       ev.EntityID,
		UpdatedAt:      at,
		SourcePlatform: ev.SourcePlatform,
		EventID:        ev.ID,
	})
}

func (e *Engine) publish(ctx context.Context, ev *domain.SyncEvent) {
	if e.Publisher != nil {
		e.Publisher.Publish(ctx, ev)
	}
}

// retry re-queues ev after a backoff, or dead-letters it once attempts run out.
func (e *Engine) retry(ctx context.Context, ev *domain.SyncEvent, stage domain.FailureStage, cause error) {
	e.failed.Add(1)
	ev.Attempts++
	if ev.Attempts >= e.cfg.MaxAttempts {
		e.deadLetter(ctx, ev, stage, cause)
		return
	}

	delay := e.cfg.Backoff.Delay(ev.Attempts)
	log.Printf("[Engine] %s %s failed, retry %d/%d in %s: %v",
		ev.Key(), stage, ev.Attempts, e.cfg.MaxAttempts, delay, cause)
	e.retried.Add(1)
	e.requeue(ev, delay)
}

func (e *Engine) deadLetter(ctx context.Context, ev *domain.SyncEvent, stage domain.FailureStage, cause error) {
	dl := &domain.DeadLetter{
		ID:        uuid.NewString(),
		Event:     ev,
		Stage:     stage,
		LastError: cause.Error(),
		Attempts:  ev.Attempts,
		FailedAt:  e.now().UTC(),
	}
	if err := e.DeadLetters.RecordDeadLetter(ctx, dl); err != nil {
		log.Printf("[Engine] failed to dead-letter %s, keeping it queued: %v", ev.ID, err)
		e.requeue(ev, e.cfg.Backoff.Delay(e.cfg.MaxAttempts))
		return
	}

	e.deadLettered.Add(1)
	log.Printf("[Engine] dead-lettered %s after %d attempts: %v", ev.Key(), ev.Attempts, cause)
	e.ack(ctx, ev)

	entry := audit.NewEntry(ev, audit.OutcomeDeadLetter, e.now())
	entry.Stage = string(stage)
	entry.Error = cause.Error()
	e.Audit.Record(entry)
}

// requeue holds ev's key and hands ev back to the next cycle after delay.
// Retried events never re-enter the bounded queue, so backpressure cannot
// drop them.
func (e *Engine) requeue(ev *domain.SyncEvent, delay time.Duration) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	if e.stopped {
		return
	}

	key := ev.Key()
	if h, ok := e.holds[key]; ok {
		h.head = ev.ID
	} else {
		e.holds[key] = &hold{head: ev.ID}
	}

	if delay <= 0 {
		e.ready = append(e.ready, ev)
		return
	}
	e.timers[ev.ID] = time.AfterFunc(delay, func() {
		e.retryMu.Lock()
		defer e.retryMu.Unlock()
		delete(e.timers, ev.ID)
		if !e.stopped {
			e.ready = append(e.ready, ev)
		}
	})
}

// deferIfHeld parks ev behind its key's held event. It reports whether ev
// was parked.
func (e *Engine) deferIfHeld(ev *domain.SyncEvent) bool {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	h, ok := e.holds[ev.Key()]
	if !ok || h.head == ev.ID {
		return false
	}
	h.backlog = append(h.backlog, ev)
	return true
}

// release is called once ev is settled. The next parked event for the key,
// if any, becomes the head and runs in the next cycle.
func (e *Engine) release(ev *domain.SyncEvent) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	key := ev.Key()
	h, ok := e.holds[key]
	if !ok || h.head != ev.ID {
		return
	}
	if len(h.backlog) == 0 {
		delete(e.holds, key)
		return
	}
	next := h.backlog[0]
	h.backlog[0] = nil
	h.backlog = h.backlog[1:]
	h.head = next.ID
	e.ready = append(e.ready, next)
}

func (e *Engine) takeReady(max int) []*domain.SyncEvent {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	n := len(e.ready)
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]*domain.SyncEvent, n)
	copy(out, e.ready)
	for i := 0; i < n; i++ {
		e.ready[i] = nil
	}
	e.ready = e.ready[n:]
	return out
}

// stopRetries cancels pending retry timers. Journaled events survive for the next start.
func (e *Engine) stopRetries() {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	e.stopped = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

// PendingRetries is the number of events waiting on a backoff timer.
func (e *Engine) PendingRetries() int {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	return len(e.timers)
}

// Held is the number of events the engine holds outside the queue: retries
// due for the next cycle and events parked behind a retrying key.
func (e *Engine) Held() int {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	n := len(e.ready)
	for _, h := range e.holds {
		n += len(h.backlog)
	}
	return n
}

func (e *Engine) storeFailed(err error) {
	n := e.storeFailures.Add(1)
	if int(n) >= e.cfg.PauseThreshold && e.paused.CompareAndSwap(false, true) {
		log.Printf("[Engine] pausing after %d consecutive store failures: %v", n, err)
	}
}

func (e *Engine) storeRecovered() {
	e.storeFailures.Store(0)
}

func (e *Engine) storeReachable(ctx context.Context) bool {
	if err := e.Store.Ping(ctx); err != nil {
		return false
	}
	e.storeFailures.Store(0)
	e.paused.Store(false)
	log.Printf("[Engine] store reachable again, resuming")
	return true
}
