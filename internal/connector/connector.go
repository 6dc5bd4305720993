// Package connector defines the contract platform adapters implement and the
// plumbing the engine uses to talk to them.
package connector

import (
	"context"
	"errors"
	"fmt"

	"commerce-sync-engine/internal/domain"
)

// Connector bridges one commerce platform to the engine.
type Connector interface {
	Platform() string
	// Emit pushes a processed event to the platform. It must be idempotent per event ID.
	Emit(ctx context.Context, event *domain.SyncEvent) error
	// Receive produces inbound changes until ctx is done or the stream fails.
	Receive(ctx context.Context, out chan<- domain.RawEvent) error
	GetProducts(ctx context.Context) ([]domain.CatalogEntry, error)
}

// Sink is the narrow ingestion capability handed to inbound pumps.
type Sink interface {
	Submit(ctx context.Context, raw domain.RawEvent) (*domain.SyncEvent, error)
}

// TransientConnectorError is a timeout or I/O failure from a connector call.
type TransientConnectorError struct {
	Platform string
	Op       string
	Err      error
}

func (e *TransientConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %s failed: %v", e.Platform, e.Op, e.Err)
}

func (e *TransientConnectorError) Unwrap() error {
	return e.Err
}

func (e *TransientConnectorError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
