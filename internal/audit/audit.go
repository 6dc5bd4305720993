// Package audit archives the outcome of every processed event.
package audit

import (
	"context"
	"time"

	"commerce-sync-engine/internal/domain"
)

type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeStale       Outcome = "stale"
	OutcomeReview      Outcome = "review"
	OutcomeDeadLetter  Outcome = "dead_letter"
	OutcomeInteraction Outcome = "interaction"
)

type Entry struct {
	EventID    string            `json:"event_id"`
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Platform   string            `json:"platform"`
	EventType  domain.EventType  `json:"event_type"`
	Priority   string            `json:"priority"`
	Outcome    Outcome           `json:"outcome"`
	Strategy   domain.Strategy   `json:"strategy,omitempty"`
	Stage      string            `json:"stage,omitempty"`
	Error      string            `json:"error,omitempty"`
	Attempts   int               `json:"attempts"`
	At         time.Time         `json:"at"`
}

// NewEntry fills the event-derived fields of an entry.
func NewEntry(ev *domain.SyncEvent, outcome Outcome, at time.Time) Entry {
	return Entry{
		EventID:    ev.ID,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Platform:   ev.SourcePlatform,
		EventType:  ev.EventType,
		Priority:   ev.Metadata.Priority.String(),
		Outcome:    outcome,
		Attempts:   ev.Attempts,
		At:         at.UTC(),
	}
}

type Sink interface {
	Record(entry Entry)
	Close(ctx context.Context) error
}

type nopSink struct{}

// Nop returns a sink that discards entries.
func Nop() Sink {
	return nopSink{}
}

func (nopSink) Record(Entry) {}

func (nopSink) Close(context.Context) error { return nil }
