package queue

import (
	"context"
	"log"
	"sync"

	"commerce-sync-engine/internal/domain"
)

// Journal persists queued events so a restart does not lose the backlog.
type Journal interface {
	Append(ctx context.Context, event *domain.SyncEvent) error
	Remove(ctx context.Context, ids ...string) error
	Load(ctx context.Context) ([]*domain.SyncEvent, error)
	Close() error
}

// EnqueueResult reports what happened to an enqueued event.
type EnqueueResult struct {
	Accepted bool
	// Evicted is the low-priority event pushed out to make room, if any.
	Evicted *domain.SyncEvent
}

type Stats struct {
	Depth    int                     `json:"depth"`
	Capacity int                     `json:"capacity"`
	Tiers    map[string]int          `json:"tiers"`
	Dropped  uint64                  `json:"dropped"`
	ByTier   map[domain.Priority]int `json:"-"`
}

// SyncQueue is a tiered FIFO buffer. High drains before medium, medium before low.
//
// When capacity is reached the oldest low-priority event is evicted. A low
// event arriving with no low events buffered is dropped. High and medium
// events are always accepted, even above capacity.
type SyncQueue struct {
	mu       sync.Mutex
	tiers    [len(tierOrder)][]*domain.SyncEvent
	size     int
	capacity int
	dropped  uint64

	journal Journal
}

var tierOrder = [...]domain.Priority{domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow}

type Option func(*SyncQueue)

func WithJournal(j Journal) Option {
	return func(q *SyncQueue) {
		q.journal = j
	}
}

// New creates a queue. A capacity of zero or less means unbounded.
func New(capacity int, opts ...Option) *SyncQueue {
	q := &SyncQueue{capacity: capacity}
	for i := range q.tiers {
		q.tiers[i] = make([]*domain.SyncEvent, 0, 64)
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func tierIndex(p domain.Priority) int {
	return int(p.Normalize() - domain.PriorityHigh)
}

// Enqueue never blocks on other producers or the consumer beyond the tier lock.
func (q *SyncQueue) Enqueue(event *domain.SyncEvent) EnqueueResult {
	if q.journal != nil {
		if err := q.journal.Append(context.Background(), event); err != nil {
			log.Printf("[Queue] journal append failed for %s: %v", event.ID, err)
		}
	}

	result := q.insert(event)

	if q.journal != nil {
		var gone []string
		if !result.Accepted {
			gone = append(gone, event.ID)
		}
		if result.Evicted != nil {
			gone = append(gone, result.Evicted.ID)
		}
		if len(gone) > 0 {
			if err := q.journal.Remove(context.Background(), gone...); err != nil {
				log.Printf("[Queue] journal remove failed: %v", err)
			}
		}
	}

	if !result.Accepted {
		log.Printf("[Queue] dropped low-priority event %s (%s) at capacity %d", event.ID, event.Key(), q.capacity)
	}
	if result.Evicted != nil {
		log.Printf("[Queue] evicted low-priority event %s (%s) for %s", result.Evicted.ID, result.Evicted.Key(), event.ID)
	}
	return result
}

func (q *SyncQueue) insert(event *domain.SyncEvent) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := tierIndex(event.Metadata.Priority)
	low := tierIndex(domain.PriorityLow)

	var result EnqueueResult
	if q.capacity > 0 && q.size >= q.capacity {
		if len(q.tiers[low]) > 0 {
			result.Evicted = q.popFront(low)
			q.dropped++
		} else if idx == low {
			q.dropped++
			return result
		}
	}

	q.tiers[idx] = append(q.tiers[idx], event)
	q.size++
	result.Accepted = true
	return result
}

func (q *SyncQueue) popFront(idx int) *domain.SyncEvent {
	tier := q.tiers[idx]
	ev := tier[0]
	tier[0] = nil
	q.tiers[idx] = tier[1:]
	q.size--
	if len(q.tiers[idx]) == 0 {
		q.tiers[idx] = tier[:0]
	}
	return ev
}

// DrainBatch removes up to max events in tier order. It returns nil when empty.
func (q *SyncQueue) DrainBatch(max int) []*domain.SyncEvent {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil
	}

	n := max
	if q.size < n {
		n = q.size
	}
	batch := make([]*domain.SyncEvent, 0, n)
	for i := range q.tiers {
		for len(batch) < n && len(q.tiers[i]) > 0 {
			batch = append(batch, q.popFront(i))
		}
	}
	return batch
}

// Ack drops events from the journal once they no longer need redelivery.
func (q *SyncQueue) Ack(ctx context.Context, ids ...string) error {
	if q.journal == nil || len(ids) == 0 {
		return nil
	}
	return q.journal.Remove(ctx, ids...)
}

// Restore reloads journaled events into their tiers without journaling them again.
func (q *SyncQueue) Restore(ctx context.Context) (int, error) {
	if q.journal == nil {
		return 0, nil
	}

	events, err := q.journal.Load(ctx)
	if err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ev := range events {
		idx := tierIndex(ev.Metadata.Priority)
		q.tiers[idx] = append(q.tiers[idx], ev)
		q.size++
	}
	return len(events), nil
}

func (q *SyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *SyncQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Depth:    q.size,
		Capacity: q.capacity,
		Dropped:  q.dropped,
		Tiers:    make(map[string]int, len(tierOrder)),
		ByTier:   make(map[domain.Priority]int, len(tierOrder)),
	}
	for i, p := range tierOrder {
		s.Tiers[p.String()] = len(q.tiers[i])
		s.ByTier[p] = len(q.tiers[i])
	}
	return s
}

func (q *SyncQueue) Close() error {
	if q.journal == nil {
		return nil
	}
	return q.journal.Close()
}
