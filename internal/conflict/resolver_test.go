package conflict

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-sync-engine/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func event(id, platform string, entity domain.EntityType, entityID string, at time.Time, payload map[string]interface{}) *domain.SyncEvent {
	return &domain.SyncEvent{
		ID:             id,
		Timestamp:      at,
		SourcePlatform: platform,
		EventType:      domain.EventTypeUpdate,
		EntityType:     entity,
		EntityID:       entityID,
		Payload:        payload,
	}
}

func applyEvent(r *Resolver, rec *domain.CanonicalRecord, ev *domain.SyncEvent) (*domain.CanonicalRecord, domain.ConflictDecision) {
	d := r.Resolve(rec, ev)
	return Apply(rec, ev, d), d
}

func TestResolve_FirstWrite(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	ev := event("e1", "shopify", domain.EntityCustomer, "C1", t0, map[string]interface{}{"email": "a@x.com"})

	rec, d := applyEvent(r, nil, ev)

	assert.False(t, d.HasConflict)
	assert.Equal(t, ev.Payload, d.ResultingData)
	assert.Equal(t, "a@x.com", rec.CurrentData["email"])
	require.Contains(t, rec.SourceVersions, "shopify")
	assert.Equal(t, t0, rec.SourceVersions["shopify"].Timestamp)
	assert.Equal(t, "shopify", rec.FieldSources["email"].Platform)
	assert.Equal(t, t0, rec.UpdatedAt)
}

func TestResolve_CrossPlatformNoDisagreementMerges(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityCustomer, "C1", t0,
		map[string]interface{}{"email": "a@x.com"}))

	rec, d := applyEvent(r, rec, event("e2", "woocommerce", domain.EntityCustomer, "C1", t0.Add(time.Minute),
		map[string]interface{}{"email": "a@x.com", "phone": "555-1111"}))

	assert.False(t, d.HasConflict)
	assert.Equal(t, "a@x.com", rec.CurrentData["email"])
	assert.Equal(t, "555-1111", rec.CurrentData["phone"])
	assert.Contains(t, rec.SourceVersions, "woocommerce")
}

func TestResolve_ProductPrimaryCatalogSourceWins(t *testing.T) {
	r := NewResolver(DefaultPolicy())

	t.Run("primary first", func(t *testing.T) {
		rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityProduct, "P1", t0,
			map[string]interface{}{"price": 100.0}))
		rec, d := applyEvent(r, rec, event("e2", "magento", domain.EntityProduct, "P1", t0.Add(time.Second),
			map[string]interface{}{"price": 120.0}))

		assert.Equal(t, domain.StrategyMergeWithValidation, d.Strategy)
		assert.Equal(t, 100.0, rec.CurrentData["price"])
		require.Len(t, d.Conflicts, 1)
		assert.Equal(t, "shopify", d.Conflicts[0].Winner)
	})

	t.Run("primary second", func(t *testing.T) {
		rec, _ := applyEvent(r, nil, event("e1", "magento", domain.EntityProduct, "P1", t0,
			map[string]interface{}{"price": 120.0}))
		rec, d := applyEvent(r, rec, event("e2", "shopify", domain.EntityProduct, "P1", t0.Add(time.Second),
			map[string]interface{}{"price": 100.0}))

		assert.Equal(t, domain.StrategyMergeWithValidation, d.Strategy)
		assert.Equal(t, 100.0, rec.CurrentData["price"])
		assert.Equal(t, "shopify", rec.FieldSources["price"].Platform)
	})
}

func TestResolve_StaleDuplicate(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityCustomer, "C1", t0,
		map[string]interface{}{"email": "a@x.com"}))

	older := event("e0", "shopify", domain.EntityCustomer, "C1", t0.Add(-time.Minute),
		map[string]interface{}{"email": "old@x.com"})
	after, d := applyEvent(r, rec, older)

	assert.True(t, d.HasConflict)
	assert.Equal(t, domain.StrategyLastWriteWins, d.Strategy)
	assert.True(t, d.Stale())
	assert.Equal(t, rec.CurrentData, d.ResultingData)
	assert.Same(t, rec, after)
	assert.Equal(t, "a@x.com", after.CurrentData["email"])
}

func TestResolve_SameTimestampIsStale(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityProduct, "P1", t0,
		map[string]interface{}{"title": "Hat"}))

	d := r.Resolve(rec, event("e2", "shopify", domain.EntityProduct, "P1", t0, map[string]interface{}{"title": "Cap"}))
	assert.True(t, d.Stale())
}

func TestResolve_SensitiveDisagreementNeedsReview(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityOrder, "O1", t0,
		map[string]interface{}{"total": 50.0, "note": "gift"}))

	after, d := applyEvent(r, rec, event("e2", "magento", domain.EntityOrder, "O1", t0.Add(time.Minute),
		map[string]interface{}{"total": 55.0}))

	assert.True(t, d.HasConflict)
	assert.Equal(t, domain.StrategyManualReview, d.Strategy)
	assert.Nil(t, d.ResultingData)
	require.Len(t, d.Conflicts, 1)
	assert.Equal(t, "total", d.Conflicts[0].Field)
	assert.Same(t, rec, after)
}

func TestResolve_NonSensitiveFieldOnSensitiveEntityMerges(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "magento", domain.EntityCustomer, "C1", t0,
		map[string]interface{}{"nickname": "al"}))

	_, d := applyEvent(r, rec, event("e2", "shopify", domain.EntityCustomer, "C1", t0.Add(time.Minute),
		map[string]interface{}{"nickname": "alice"}))

	assert.Equal(t, domain.StrategyMergeWithValidation, d.Strategy)
	assert.Equal(t, "alice", d.ResultingData["nickname"])
}

func TestResolve_OutsideRecencyWindowIncomingWins(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityOrder, "O1", t0,
		map[string]interface{}{"total": 50.0}))

	rec, d := applyEvent(r, rec, event("e2", "magento", domain.EntityOrder, "O1", t0.Add(10*time.Minute),
		map[string]interface{}{"total": 55.0}))

	assert.False(t, d.HasConflict)
	assert.Equal(t, 55.0, rec.CurrentData["total"])
}

func TestResolve_NumericNormalisation(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityOrder, "O1", t0,
		map[string]interface{}{"total": 50}))

	d := r.Resolve(rec, event("e2", "magento", domain.EntityOrder, "O1", t0.Add(time.Second),
		map[string]interface{}{"total": 50.0}))
	assert.False(t, d.HasConflict)
}

func TestResolve_ValidationRejectsIncoming(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "magento", domain.EntityProduct, "P1", t0,
		map[string]interface{}{"price": 10.0, "title": "Hat"}))

	rec, d := applyEvent(r, rec, event("e2", "shopify", domain.EntityProduct, "P1", t0.Add(time.Second),
		map[string]interface{}{"price": -1.0, "title": "Cap"}))

	assert.Equal(t, domain.StrategyMergeWithValidation, d.Strategy)
	assert.Equal(t, 10.0, rec.CurrentData["price"])
	assert.Equal(t, "Cap", rec.CurrentData["title"])
	assert.Equal(t, []string{"title"}, d.AppliedFields)
	assert.Equal(t, "magento", rec.FieldSources["price"].Platform)
}

func TestResolve_TombstoneAndRevive(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityProduct, "P1", t0,
		map[string]interface{}{"title": "Hat"}))

	del := event("e2", "magento", domain.EntityProduct, "P1", t0.Add(time.Minute), nil)
	del.EventType = domain.EventTypeDelete
	require.False(t, r.IsStale(rec, del))
	rec = Tombstone(rec, del)
	require.True(t, rec.Deleted)

	late := event("e3", "woocommerce", domain.EntityProduct, "P1", t0.Add(30*time.Second),
		map[string]interface{}{"title": "Late"})
	assert.True(t, r.Resolve(rec, late).Stale())

	revive := event("e4", "woocommerce", domain.EntityProduct, "P1", t0.Add(2*time.Minute),
		map[string]interface{}{"title": "Back"})
	rec, d := applyEvent(r, rec, revive)
	assert.False(t, d.HasConflict)
	assert.False(t, rec.Deleted)
	assert.Nil(t, rec.DeletedAt)
	assert.Equal(t, map[string]interface{}{"title": "Back"}, rec.CurrentData)
}

func TestTombstone_UnknownEntity(t *testing.T) {
	del := event("e1", "shopify", domain.EntityOrder, "O9", t0, nil)
	rec := Tombstone(nil, del)

	assert.True(t, rec.Deleted)
	assert.Equal(t, domain.EntityOrder, rec.EntityType)
	assert.Equal(t, "O9", rec.EntityID)
	assert.Equal(t, t0, *rec.DeletedAt)
}

func TestResolve_DoesNotMutateInputs(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityProduct, "P1", t0,
		map[string]interface{}{"title": "Hat"}))
	snapshot := rec.Clone()

	ev := event("e2", "magento", domain.EntityProduct, "P1", t0.Add(time.Second),
		map[string]interface{}{"title": "Cap", "color": "red"})
	_, _ = applyEvent(r, rec, ev)

	assert.Equal(t, snapshot, rec)
}

func TestResolve_Properties(t *testing.T) {
	r := NewResolver(DefaultPolicy())
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("later event from same platform wins", prop.ForAll(
		func(v1, v2 string, gapSec int) bool {
			e1 := event("e1", "shopify", domain.EntityCustomer, "C1", t0, map[string]interface{}{"email": v1})
			e2 := event("e2", "shopify", domain.EntityCustomer, "C1", t0.Add(time.Duration(gapSec)*time.Second),
				map[string]interface{}{"email": v2})
			rec, _ := applyEvent(r, nil, e1)
			rec, _ = applyEvent(r, rec, e2)
			return rec.CurrentData["email"] == v2
		},
		gen.AlphaString(), gen.AlphaString(), gen.IntRange(1, 3600),
	))

	properties.Property("not-newer event from same platform is a no-op", prop.ForAll(
		func(v1, v2 string, backSec int) bool {
			rec, _ := applyEvent(r, nil, event("e1", "magento", domain.EntityProduct, "P1", t0,
				map[string]interface{}{"title": v1}))
			old := event("e0", "magento", domain.EntityProduct, "P1", t0.Add(-time.Duration(backSec)*time.Second),
				map[string]interface{}{"title": v2})
			d := r.Resolve(rec, old)
			return d.HasConflict && d.Strategy == domain.StrategyLastWriteWins &&
				ValuesEqual(d.ResultingData, rec.CurrentData) && Apply(rec, old, d) == rec
		},
		gen.AlphaString(), gen.AlphaString(), gen.IntRange(0, 3600),
	))

	properties.Property("sensitive disagreement always needs review", prop.ForAll(
		func(a, b float64, gapSec int) bool {
			if a == b {
				return true
			}
			rec, _ := applyEvent(r, nil, event("e1", "shopify", domain.EntityOrder, "O1", t0,
				map[string]interface{}{"total": a}))
			d := r.Resolve(rec, event("e2", "woocommerce", domain.EntityOrder, "O1",
				t0.Add(time.Duration(gapSec)*time.Second), map[string]interface{}{"total": b}))
			return d.Strategy == domain.StrategyManualReview && d.ResultingData == nil
		},
		gen.Float64Range(0, 1e6), gen.Float64Range(0, 1e6), gen.IntRange(1, 300),
	))

	properties.TestingRun(t)
}
