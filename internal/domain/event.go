package domain

import "time"

type EventType string

const (
	EventTypeCreate            EventType = "create"
	EventTypeUpdate            EventType = "update"
	EventTypeDelete            EventType = "delete"
	EventTypeDomainInteraction EventType = "domain_interaction"
)

type EntityType string

const (
	EntityOrder    EntityType = "order"
	EntityCustomer EntityType = "customer"
	EntityProduct  EntityType = "product"
	EntitySession  EntityType = "session"
)

// Priority is a queue tier. Lower values drain first. The zero value is
// unset and is treated as medium.
type Priority int

const (
	PriorityHigh Priority = iota + 1
	PriorityMedium
	PriorityLow
)

// PriorityTiers lists every tier in drain order.
var PriorityTiers = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Normalize maps unset and out-of-range values to medium.
func (p Priority) Normalize() Priority {
	if p < PriorityHigh || p > PriorityLow {
		return PriorityMedium
	}
	return p
}

func (p Priority) String() string {
	switch p.Normalize() {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "medium"
	}
}

// RawEvent is the connector-supplied change descriptor accepted at ingestion.
type RawEvent struct {
	Platform      string                 `json:"platform" validate:"required"`
	Type          EventType              `json:"type" validate:"required,oneof=create update delete domain_interaction"`
	Subtype       string                 `json:"subtype,omitempty"`
	EntityType    EntityType             `json:"entityType" validate:"required"`
	EntityID      string                 `json:"entityId" validate:"required"`
	Data          map[string]interface{} `json:"data"`
	SchemaVersion string                 `json:"schemaVersion,omitempty"`
	StoreID       string                 `json:"storeId" validate:"required"`
	UserID        string                 `json:"userId,omitempty"`
	SessionID     string                 `json:"sessionId,omitempty"`
	Region        string                 `json:"region,omitempty"`
	Timestamp     int64                  `json:"timestamp"`
}

type EventMetadata struct {
	StoreID   string   `json:"store_id"`
	UserID    string   `json:"user_id,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Region    string   `json:"region"`
	Priority  Priority `json:"priority"`
}

// SyncEvent is the normalized unit of work flowing through the queue and engine.
type SyncEvent struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	Seq            uint64                 `json:"seq"`
	SourcePlatform string                 `json:"source_platform"`
	EventType      EventType              `json:"event_type"`
	Subtype        string                 `json:"subtype,omitempty"`
	EntityType     EntityType             `json:"entity_type"`
	EntityID       string                 `json:"entity_id"`
	SchemaVersion  string                 `json:"schema_version"`
	Payload        map[string]interface{} `json:"payload"`
	Metadata       EventMetadata          `json:"metadata"`
	Attempts       int                    `json:"attempts"`
}

// Key identifies the logical record the event applies to.
func (e *SyncEvent) Key() string {
	return RecordKey(e.EntityType, e.EntityID)
}

// Before reports whether e was produced before other, using seq as the tiebreak.
func (e *SyncEvent) Before(other *SyncEvent) bool {
	if e.Timestamp.Equal(other.Timestamp) {
		return e.Seq < other.Seq
	}
	return e.Timestamp.Before(other.Timestamp)
}
