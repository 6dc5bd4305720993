package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-sync-engine/internal/classifier"
	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/queue"
)

func rawEvent(platform string, subtype string) domain.RawEvent {
	return domain.RawEvent{
		Platform:   platform,
		Type:       domain.EventTypeUpdate,
		Subtype:    subtype,
		EntityType: domain.EntityProduct,
		EntityID:   "P1",
		StoreID:    "store-1",
		Data:       map[string]interface{}{"price": 10.0},
		Timestamp:  testTime.UnixMilli(),
	}
}

func TestIngestService_SubmitQueuesEvent(t *testing.T) {
	q := queue.New(10)
	svc := NewIngestService(classifier.New(), q)

	ev, err := svc.Submit(context.Background(), rawEvent("shopify", ""))
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 1, q.Len())
}

func TestIngestService_MalformedIsRejected(t *testing.T) {
	q := queue.New(10)
	svc := NewIngestService(classifier.New(), q)

	raw := rawEvent("shopify", "")
	raw.EntityID = ""
	_, err := svc.Submit(context.Background(), raw)

	var malformed *classifier.MalformedEventError
	require.True(t, errors.As(err, &malformed))
	assert.Contains(t, malformed.Fields, "EntityID")
	assert.Equal(t, 0, q.Len())
}

func TestIngestService_DroppedUnderBackpressure(t *testing.T) {
	q := queue.New(1)
	svc := NewIngestService(classifier.New(), q)

	_, err := svc.Submit(context.Background(), rawEvent("shopify", "product_view"))
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), rawEvent("shopify", "inventory_sync"))
	assert.ErrorIs(t, err, ErrEventDropped)
}

func TestIngestService_SubmitAs(t *testing.T) {
	q := queue.New(10)
	svc := NewIngestService(classifier.New(), q)

	ev, err := svc.SubmitAs(context.Background(), "magento", rawEvent("", ""))
	require.NoError(t, err)
	assert.Equal(t, "magento", ev.SourcePlatform)

	_, err = svc.SubmitAs(context.Background(), "magento", rawEvent("shopify", ""))
	assert.ErrorIs(t, err, ErrPlatformMismatch)
	assert.Equal(t, 1, q.Len())
}
