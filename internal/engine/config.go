package engine

import (
	"time"

	"commerce-sync-engine/internal/retry"
)

type Config struct {
	TickInterval       time.Duration
	BatchSize          int
	Workers            int
	MaxAttempts        int
	Backoff            retry.Backoff
	ReconcileInterval  time.Duration
	CleanupInterval    time.Duration
	TombstoneRetention time.Duration
	// PauseThreshold is the number of consecutive store failures that pause processing.
	PauseThreshold int
	// ReconcileStoreID tags events synthesized by catalog reconciliation.
	ReconcileStoreID string
}

func DefaultConfig() Config {
	return Config{
		TickInterval:       time.Second,
		BatchSize:          100,
		Workers:            4,
		MaxAttempts:        5,
		Backoff:            retry.Backoff{Initial: time.Second, Max: 5 * time.Minute},
		ReconcileInterval:  15 * time.Minute,
		CleanupInterval:    6 * time.Hour,
		TombstoneRetention: 30 * 24 * time.Hour,
		PauseThreshold:     5,
		ReconcileStoreID:   "reconciliation",
	}
}

func (c Config) normalised() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = d.PauseThreshold
	}
	if c.ReconcileStoreID == "" {
		c.ReconcileStoreID = d.ReconcileStoreID
	}
	return c
}
