package domain

import "time"

type NotificationKind string

const (
	NotificationEntityUpdated NotificationKind = "entity_updated"
	NotificationEntityDeleted NotificationKind = "entity_deleted"
	NotificationInteraction   NotificationKind = "interaction"
	NotificationReviewQueued  NotificationKind = "review_queued"
)

// EntityUpdated is published downstream after a canonical record changes.
type EntityUpdated struct {
	Kind           NotificationKind `json:"kind"`
	EntityType     EntityType       `json:"entity_type"`
	EntityID       string           `json:"entity_id"`
	UpdatedAt      time.Time        `json:"updated_at"`
	SourcePlatform string           `json:"source_platform"`
	EventID        string           `json:"event_id,omitempty"`
}
