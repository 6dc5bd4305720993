package connector

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"commerce-sync-engine/internal/domain"
)

// Pump runs every connector's Receive stream and submits what it produces.
// A failing stream is logged and restarted; other platforms keep flowing.
type Pump struct {
	registry     *Registry
	sink         Sink
	restartDelay time.Duration
	wg           sync.WaitGroup
}

func NewPump(registry *Registry, sink Sink, restartDelay time.Duration) *Pump {
	if restartDelay <= 0 {
		restartDelay = 5 * time.Second
	}
	return &Pump{registry: registry, sink: sink, restartDelay: restartDelay}
}

func (p *Pump) Start(ctx context.Context) {
	for _, c := range p.registry.All() {
		p.wg.Add(1)
		go p.run(ctx, c)
	}
}

func (p *Pump) Wait() {
	p.wg.Wait()
}

func (p *Pump) run(ctx context.Context, c Connector) {
	defer p.wg.Done()
	for {
		err := p.stream(ctx, c)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Pump] %s receive stream failed: %v", c.Platform(), err)
		}

		timer := time.NewTimer(p.restartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Pump) stream(ctx context.Context, c Connector) error {
	out := make(chan domain.RawEvent, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Receive(ctx, out)
		close(out)
	}()

	for raw := range out {
		if raw.Platform == "" {
			raw.Platform = c.Platform()
		}
		if _, err := p.sink.Submit(ctx, raw); err != nil {
			log.Printf("[Pump] rejected event from %s: %v", c.Platform(), err)
		}
	}
	return <-errCh
}
