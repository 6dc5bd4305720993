package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"commerce-sync-engine/internal/domain"
)

var ErrDuplicateConnector = errors.New("connector already registered")

// Registry owns the constructed connector set for one engine instance.
type Registry struct {
	mu          sync.RWMutex
	connectors  map[string]Connector
	subscribers map[string]bool
	timeout     time.Duration
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		connectors:  make(map[string]Connector),
		subscribers: make(map[string]bool),
		timeout:     timeout,
	}
}

// Register adds c. Subscribed connectors receive outbound emits.
func (r *Registry) Register(c Connector, subscribe bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Platform()
	if _, ok := r.connectors[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateConnector, name)
	}
	r.connectors[name] = c
	if subscribe {
		r.subscribers[name] = true
	}
	log.Printf("[Connector] registered %s (subscriber=%t)", name, subscribe)
	return nil
}

func (r *Registry) Get(name string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	return c, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) All() []Connector {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connector, 0, len(names))
	for _, name := range names {
		out = append(out, r.connectors[name])
	}
	return out
}

func (r *Registry) Subscribers() []Connector {
	var out []Connector
	for _, c := range r.All() {
		r.mu.RLock()
		sub := r.subscribers[c.Platform()]
		r.mu.RUnlock()
		if sub {
			out = append(out, c)
		}
	}
	return out
}

// Emit calls c.Emit bounded by the connector timeout.
func (r *Registry) Emit(ctx context.Context, c Connector, event *domain.SyncEvent) error {
	return Call(ctx, r.timeout, c.Platform(), "emit", func(ctx context.Context) error {
		return c.Emit(ctx, event)
	})
}

// Products calls c.GetProducts bounded by the connector timeout.
func (r *Registry) Products(ctx context.Context, c Connector) ([]domain.CatalogEntry, error) {
	var entries []domain.CatalogEntry
	err := Call(ctx, r.timeout, c.Platform(), "get_products", func(ctx context.Context) error {
		var err error
		entries, err = c.GetProducts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Shutdown closes every connector that holds resources.
func (r *Registry) Shutdown() error {
	var errs []error
	for _, c := range r.All() {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", c.Platform(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Call runs fn with a deadline and reports any failure as transient.
func Call(ctx context.Context, timeout time.Duration, platform, op string, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
				err = fmt.Errorf("%w: %v", ctx.Err(), err)
			}
			return &TransientConnectorError{Platform: platform, Op: op, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &TransientConnectorError{Platform: platform, Op: op, Err: ctx.Err()}
	}
}
