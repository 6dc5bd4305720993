package connector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/retry"
)

type fakeConnector struct {
	name string

	mu        sync.Mutex
	emitted   []string
	failEmits int
	products  []domain.CatalogEntry
	block     bool
	inbound   []domain.RawEvent
	receives  int
}

func (f *fakeConnector) Platform() string { return f.name }

func (f *fakeConnector) Emit(ctx context.Context, ev *domain.SyncEvent) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEmits > 0 {
		f.failEmits--
		return errors.New("platform unavailable")
	}
	f.emitted = append(f.emitted, ev.ID)
	return nil
}

func (f *fakeConnector) Receive(ctx context.Context, out chan<- domain.RawEvent) error {
	f.mu.Lock()
	f.receives++
	first := f.receives == 1
	f.mu.Unlock()
	if !first {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, raw := range f.inbound {
		out <- raw
	}
	return errors.New("stream reset")
}

func (f *fakeConnector) GetProducts(ctx context.Context) ([]domain.CatalogEntry, error) {
	return f.products, nil
}

func (f *fakeConnector) emittedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.emitted...)
}

type deadLetters struct {
	mu  sync.Mutex
	got []*domain.DeadLetter
}

func (d *deadLetters) RecordDeadLetter(_ context.Context, dl *domain.DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, dl)
	return nil
}

func (d *deadLetters) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.got)
}

type sinkFunc func(ctx context.Context, raw domain.RawEvent) (*domain.SyncEvent, error)

func (f sinkFunc) Submit(ctx context.Context, raw domain.RawEvent) (*domain.SyncEvent, error) {
	return f(ctx, raw)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(time.Second)
	require.NoError(t, r.Register(&fakeConnector{name: "shopify"}, true))
	require.NoError(t, r.Register(&fakeConnector{name: "magento"}, false))

	err := r.Register(&fakeConnector{name: "shopify"}, false)
	assert.ErrorIs(t, err, ErrDuplicateConnector)

	assert.Equal(t, []string{"magento", "shopify"}, r.Names())
	subs := r.Subscribers()
	require.Len(t, subs, 1)
	assert.Equal(t, "shopify", subs[0].Platform())

	_, ok := r.Get("woocommerce")
	assert.False(t, ok)
}

func TestCall_TimeoutIsTransient(t *testing.T) {
	err := Call(context.Background(), 20*time.Millisecond, "shopify", "emit", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	var transient *TransientConnectorError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, "shopify", transient.Platform)
	assert.True(t, transient.Timeout())
}

func TestCall_ErrorIsTransient(t *testing.T) {
	cause := errors.New("boom")
	err := Call(context.Background(), time.Second, "magento", "get_products", func(ctx context.Context) error {
		return cause
	})

	var transient *TransientConnectorError
	require.True(t, errors.As(err, &transient))
	assert.ErrorIs(t, err, cause)
	assert.False(t, transient.Timeout())
}

func TestRegistry_Products(t *testing.T) {
	r := NewRegistry(time.Second)
	c := &fakeConnector{name: "shopify", products: []domain.CatalogEntry{{ExternalID: "P1", Title: "Hat", Price: 10}}}
	require.NoError(t, r.Register(c, false))

	entries, err := r.Products(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "P1", entries[0].ExternalID)
}

func TestEmitter_SkipsSourcePlatform(t *testing.T) {
	r := NewRegistry(time.Second)
	shop := &fakeConnector{name: "shopify"}
	mag := &fakeConnector{name: "magento"}
	require.NoError(t, r.Register(shop, true))
	require.NoError(t, r.Register(mag, true))

	e := NewEmitter(r, EmitterConfig{MaxAttempts: 1}, nil)
	e.Start(context.Background())
	e.Publish(context.Background(), &domain.SyncEvent{ID: "e1", SourcePlatform: "shopify"})
	e.Stop()

	assert.Empty(t, shop.emittedIDs())
	assert.Equal(t, []string{"e1"}, mag.emittedIDs())
}

func TestEmitter_RetriesThenSucceeds(t *testing.T) {
	r := NewRegistry(time.Second)
	mag := &fakeConnector{name: "magento", failEmits: 2}
	require.NoError(t, r.Register(mag, true))
	dead := &deadLetters{}

	e := NewEmitter(r, EmitterConfig{MaxAttempts: 3, Backoff: retry.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond}}, dead)
	e.Start(context.Background())
	e.Publish(context.Background(), &domain.SyncEvent{ID: "e1", SourcePlatform: "shopify"})
	e.Stop()

	assert.Equal(t, []string{"e1"}, mag.emittedIDs())
	assert.Equal(t, 0, dead.count())
}

func TestEmitter_DeadLettersAfterMaxAttempts(t *testing.T) {
	r := NewRegistry(time.Second)
	mag := &fakeConnector{name: "magento", failEmits: 10}
	require.NoError(t, r.Register(mag, true))
	dead := &deadLetters{}

	e := NewEmitter(r, EmitterConfig{MaxAttempts: 2, Backoff: retry.Backoff{Initial: time.Millisecond}}, dead)
	e.Start(context.Background())
	e.Publish(context.Background(), &domain.SyncEvent{ID: "e1", SourcePlatform: "shopify"})
	e.Stop()

	require.Equal(t, 1, dead.count())
	dl := dead.got[0]
	assert.Equal(t, domain.StageEmit, dl.Stage)
	assert.Equal(t, "magento", dl.Platform)
	assert.Equal(t, 2, dl.Attempts)
	assert.Equal(t, "e1", dl.Event.ID)
}

func TestPump_SubmitsAndRestarts(t *testing.T) {
	r := NewRegistry(time.Second)
	c := &fakeConnector{name: "woocommerce", inbound: []domain.RawEvent{
		{Type: domain.EventTypeCreate, EntityType: domain.EntityProduct, EntityID: "P1"},
		{Type: domain.EventTypeUpdate, EntityType: domain.EntityProduct, EntityID: "P1"},
	}}
	require.NoError(t, r.Register(c, false))

	var mu sync.Mutex
	var got []domain.RawEvent
	sink := sinkFunc(func(_ context.Context, raw domain.RawEvent) (*domain.SyncEvent, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, raw)
		return &domain.SyncEvent{ID: raw.EntityID}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPump(r, sink, 10*time.Millisecond)
	p.Start(ctx)

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.receives >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "woocommerce", got[0].Platform)
}
