// Package conflict decides how an incoming event merges into canonical state.
package conflict

import (
	"reflect"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"commerce-sync-engine/internal/domain"
)

// Resolver is a pure function of its inputs and policy. It performs no I/O.
type Resolver struct {
	policy   Policy
	validate *validator.Validate
}

func NewResolver(policy Policy) *Resolver {
	return &Resolver{
		policy:   policy,
		validate: validator.New(),
	}
}

func (r *Resolver) Policy() Policy {
	return r.policy
}

// IsStale reports whether incoming is not newer than the last version seen from
// its own platform, or predates the record's tombstone.
func (r *Resolver) IsStale(existing *domain.CanonicalRecord, incoming *domain.SyncEvent) bool {
	if existing == nil {
		return false
	}
	if sv, ok := existing.SourceVersions[incoming.SourcePlatform]; ok {
		if sv.EventID == incoming.ID || !incoming.Timestamp.After(sv.Timestamp) {
			return true
		}
	}
	if existing.Deleted && existing.DeletedAt != nil && !incoming.Timestamp.After(*existing.DeletedAt) {
		return true
	}
	return false
}

func (r *Resolver) Resolve(existing *domain.CanonicalRecord, incoming *domain.SyncEvent) domain.ConflictDecision {
	if existing == nil {
		return domain.ConflictDecision{
			ResultingData: domain.CloneData(incoming.Payload),
			AppliedFields: sortedKeys(incoming.Payload),
		}
	}

	if r.IsStale(existing, incoming) {
		return domain.ConflictDecision{
			HasConflict:   true,
			Strategy:      domain.StrategyLastWriteWins,
			ResultingData: domain.CloneData(existing.CurrentData),
		}
	}

	if existing.Deleted {
		return domain.ConflictDecision{
			ResultingData: domain.CloneData(incoming.Payload),
			AppliedFields: sortedKeys(incoming.Payload),
		}
	}

	conflicts := r.detect(existing, incoming)
	if len(conflicts) == 0 {
		merged := domain.CloneData(existing.CurrentData)
		if merged == nil {
			merged = make(map[string]interface{}, len(incoming.Payload))
		}
		for k, v := range incoming.Payload {
			merged[k] = v
		}
		return domain.ConflictDecision{
			ResultingData: merged,
			AppliedFields: sortedKeys(incoming.Payload),
		}
	}

	for _, c := range conflicts {
		if r.policy.isSensitive(incoming.EntityType, c.Field) {
			return domain.ConflictDecision{
				HasConflict: true,
				Strategy:    domain.StrategyManualReview,
				Conflicts:   conflicts,
			}
		}
	}

	return r.mergeWithValidation(existing, incoming, conflicts)
}

// detect lists incoming fields that disagree with a value another platform
// wrote within the recency window.
func (r *Resolver) detect(existing *domain.CanonicalRecord, incoming *domain.SyncEvent) []domain.FieldConflict {
	var conflicts []domain.FieldConflict
	for _, field := range sortedKeys(incoming.Payload) {
		current, ok := existing.CurrentData[field]
		if !ok {
			continue
		}
		src, ok := existing.FieldSources[field]
		if !ok || src.Platform == "" || src.Platform == incoming.SourcePlatform {
			continue
		}
		if absDuration(incoming.Timestamp.Sub(src.UpdatedAt)) > r.policy.RecencyWindow {
			continue
		}
		if ValuesEqual(current, incoming.Payload[field]) {
			continue
		}
		conflicts = append(conflicts, domain.FieldConflict{
			Field:            field,
			ExistingValue:    current,
			ExistingPlatform: src.Platform,
			IncomingValue:    incoming.Payload[field],
		})
	}
	return conflicts
}

func (r *Resolver) mergeWithValidation(existing *domain.CanonicalRecord, incoming *domain.SyncEvent, conflicts []domain.FieldConflict) domain.ConflictDecision {
	contested := make(map[string]int, len(conflicts))
	for i := range conflicts {
		contested[conflicts[i].Field] = i
	}

	merged := domain.CloneData(existing.CurrentData)
	var applied []string
	for _, field := range sortedKeys(incoming.Payload) {
		value := incoming.Payload[field]

		if i, ok := contested[field]; ok {
			src := existing.FieldSources[field]
			winner := r.winner(incoming.EntityType,
				src.Platform, src.UpdatedAt,
				incoming.SourcePlatform, incoming.Timestamp)
			conflicts[i].Winner = winner
			if winner != incoming.SourcePlatform {
				continue
			}
		}

		if !r.valid(incoming.EntityType, field, value) {
			if i, ok := contested[field]; ok {
				conflicts[i].Winner = conflicts[i].ExistingPlatform
			}
			continue
		}
		merged[field] = value
		applied = append(applied, field)
	}

	return domain.ConflictDecision{
		HasConflict:   true,
		Strategy:      domain.StrategyMergeWithValidation,
		ResultingData: merged,
		AppliedFields: applied,
		Conflicts:     conflicts,
	}
}

// winner applies the source priority table, then the later timestamp, then
// the lexically smaller platform name.
func (r *Resolver) winner(entity domain.EntityType, a string, aAt time.Time, b string, bAt time.Time) string {
	ra, rb := r.policy.rank(entity, a), r.policy.rank(entity, b)
	switch {
	case ra < rb:
		return a
	case rb < ra:
		return b
	case aAt.After(bAt):
		return a
	case bAt.After(aAt):
		return b
	case a <= b:
		return a
	default:
		return b
	}
}

func (r *Resolver) valid(entity domain.EntityType, field string, value interface{}) (ok bool) {
	tag, has := r.policy.Validation[entity][field]
	if !has || tag == "" {
		return true
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	return r.validate.Var(value, tag) == nil
}

// ValuesEqual compares payload values with all numeric kinds normalised to float64.
func ValuesEqual(a, b interface{}) bool {
	return reflect.DeepEqual(normalise(a), normalise(b))
}

func normalise(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalise(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalise(val)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Apply builds the record that results from decision. It returns existing
// unchanged for stale and manual_review decisions.
func Apply(existing *domain.CanonicalRecord, incoming *domain.SyncEvent, decision domain.ConflictDecision) *domain.CanonicalRecord {
	if decision.Stale() || decision.Strategy == domain.StrategyManualReview {
		return existing
	}

	rec := existing.Clone()
	if rec == nil {
		rec = &domain.CanonicalRecord{
			EntityType: incoming.EntityType,
			EntityID:   incoming.EntityID,
		}
	}
	if rec.SourceVersions == nil {
		rec.SourceVersions = make(map[string]domain.SourceVersion)
	}
	if rec.FieldSources == nil || rec.Deleted {
		rec.FieldSources = make(map[string]domain.FieldSource)
	}

	rec.CurrentData = domain.CloneData(decision.ResultingData)
	if rec.CurrentData == nil {
		rec.CurrentData = map[string]interface{}{}
	}
	for _, field := range decision.AppliedFields {
		rec.FieldSources[field] = domain.FieldSource{
			Platform:  incoming.SourcePlatform,
			UpdatedAt: incoming.Timestamp,
		}
	}
	recordVersion(rec, incoming)
	rec.Deleted = false
	rec.DeletedAt = nil
	return rec
}

// Tombstone marks the entity deleted as of incoming. A nil existing record
// yields a fresh tombstone so late creates are rejected as stale.
func Tombstone(existing *domain.CanonicalRecord, incoming *domain.SyncEvent) *domain.CanonicalRecord {
	rec := existing.Clone()
	if rec == nil {
		rec = &domain.CanonicalRecord{
			EntityType:   incoming.EntityType,
			EntityID:     incoming.EntityID,
			CurrentData:  map[string]interface{}{},
			FieldSources: map[string]domain.FieldSource{},
		}
	}
	if rec.SourceVersions == nil {
		rec.SourceVersions = make(map[string]domain.SourceVersion)
	}
	recordVersion(rec, incoming)
	deletedAt := incoming.Timestamp
	rec.Deleted = true
	rec.DeletedAt = &deletedAt
	return rec
}

func recordVersion(rec *domain.CanonicalRecord, incoming *domain.SyncEvent) {
	rec.SourceVersions[incoming.SourcePlatform] = domain.SourceVersion{
		EventID:   incoming.ID,
		Payload:   domain.CloneData(incoming.Payload),
		Timestamp: incoming.Timestamp,
	}
	if incoming.Timestamp.After(rec.UpdatedAt) {
		rec.UpdatedAt = incoming.Timestamp
	}
}

