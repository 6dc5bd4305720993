package classifier

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"commerce-sync-engine/internal/domain"
)

const (
	defaultSchemaVersion = "v1"
	defaultRegion        = "global"
)

var subtypePriorities = map[string]domain.Priority{
	"order_created":              domain.PriorityHigh,
	"payment_completed":          domain.PriorityHigh,
	"session_start":              domain.PriorityHigh,
	"product_view":               domain.PriorityMedium,
	"recommendation_interaction": domain.PriorityMedium,
	"analysis_complete":          domain.PriorityMedium,
	"catalog_bulk_update":        domain.PriorityLow,
	"inventory_sync":             domain.PriorityLow,
	"analytics_aggregation":      domain.PriorityLow,
}

type typeKey struct {
	eventType  domain.EventType
	entityType domain.EntityType
}

// Creating an order or opening a session without an explicit subtype is still urgent.
var typePriorities = map[typeKey]domain.Priority{
	{domain.EventTypeCreate, domain.EntityOrder}:   domain.PriorityHigh,
	{domain.EventTypeCreate, domain.EntitySession}: domain.PriorityHigh,
}

// Classifier turns raw connector descriptors into SyncEvents.
type Classifier struct {
	validate *validator.Validate
	now      func() time.Time
	seq      atomic.Uint64
}

type Option func(*Classifier)

// WithClock overrides the wall clock used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		c.now = now
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify validates raw and returns a fully populated SyncEvent.
func (c *Classifier) Classify(raw domain.RawEvent) (*domain.SyncEvent, error) {
	raw.Platform = strings.TrimSpace(raw.Platform)
	raw.EntityID = strings.TrimSpace(raw.EntityID)

	if err := c.validate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return nil, &MalformedEventError{Platform: raw.Platform, Fields: fields, Err: err}
		}
		return nil, &MalformedEventError{Platform: raw.Platform, Err: err}
	}

	ts := c.now()
	if raw.Timestamp > 0 {
		ts = time.UnixMilli(raw.Timestamp)
	}

	payload := domain.CloneData(raw.Data)
	if payload == nil {
		payload = map[string]interface{}{}
	}

	return &domain.SyncEvent{
		ID:             newEventID(),
		Timestamp:      ts.UTC(),
		Seq:            c.seq.Add(1),
		SourcePlatform: raw.Platform,
		EventType:      raw.Type,
		Subtype:        raw.Subtype,
		EntityType:     raw.EntityType,
		EntityID:       raw.EntityID,
		SchemaVersion:  schemaVersion(raw),
		Payload:        payload,
		Metadata: domain.EventMetadata{
			StoreID:   raw.StoreID,
			UserID:    raw.UserID,
			SessionID: raw.SessionID,
			Region:    region(raw.Region),
			Priority:  PriorityFor(raw),
		},
	}, nil
}

// PriorityFor maps a raw event to its queue tier. Unknown subtypes are medium.
func PriorityFor(raw domain.RawEvent) domain.Priority {
	if raw.Subtype != "" {
		if p, ok := subtypePriorities[raw.Subtype]; ok {
			return p
		}
		return domain.PriorityMedium
	}
	if p, ok := typePriorities[typeKey{raw.Type, raw.EntityType}]; ok {
		return p
	}
	return domain.PriorityMedium
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func schemaVersion(raw domain.RawEvent) string {
	if raw.SchemaVersion != "" {
		return raw.SchemaVersion
	}
	if v, ok := raw.Data["schema_version"].(string); ok && v != "" {
		return v
	}
	return defaultSchemaVersion
}

func region(r string) string {
	if r == "" {
		return defaultRegion
	}
	return r
}
