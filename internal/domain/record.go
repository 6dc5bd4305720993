package domain

import "time"

// SourceVersion is the last event applied from one platform.
type SourceVersion struct {
	EventID   string                 `json:"event_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// FieldSource records which platform last wrote a field of CurrentData.
type FieldSource struct {
	Platform  string    `json:"platform"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanonicalRecord is the merged stored-of-record version of an entity.
type CanonicalRecord struct {
	EntityType     EntityType               `json:"entity_type"`
	EntityID       string                   `json:"entity_id"`
	CurrentData    map[string]interface{}   `json:"current_data"`
	SourceVersions map[string]SourceVersion `json:"source_versions"`
	FieldSources   map[string]FieldSource   `json:"field_sources"`
	UpdatedAt      time.Time                `json:"updated_at"`
	Deleted        bool                     `json:"deleted"`
	DeletedAt      *time.Time               `json:"deleted_at,omitempty"`

	// Rev is the document store revision the record was read at.
	Rev string `json:"-"`
}

func RecordKey(entityType EntityType, entityID string) string {
	return string(entityType) + ":" + entityID
}

func (r *CanonicalRecord) Key() string {
	return RecordKey(r.EntityType, r.EntityID)
}

// Clone returns a copy whose maps can be mutated without touching r.
func (r *CanonicalRecord) Clone() *CanonicalRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.CurrentData = CloneData(r.CurrentData)
	c.SourceVersions = make(map[string]SourceVersion, len(r.SourceVersions))
	for k, v := range r.SourceVersions {
		v.Payload = CloneData(v.Payload)
		c.SourceVersions[k] = v
	}
	c.FieldSources = make(map[string]FieldSource, len(r.FieldSources))
	for k, v := range r.FieldSources {
		c.FieldSources[k] = v
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// CloneData copies a payload map one level deep.
func CloneData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
