package engine

import "commerce-sync-engine/internal/queue"

type Stats struct {
	State          string      `json:"state"`
	Paused         bool        `json:"paused"`
	Processed      uint64      `json:"processed"`
	Applied        uint64      `json:"applied"`
	Stale          uint64      `json:"stale"`
	Reviews        uint64      `json:"reviews"`
	Retried        uint64      `json:"retried"`
	DeadLettered   uint64      `json:"dead_lettered"`
	Failed         uint64      `json:"failed"`
	PendingRetries int         `json:"pending_retries"`
	Held           int         `json:"held"`
	Queue          queue.Stats `json:"queue"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		State:          e.State().String(),
		Paused:         e.paused.Load(),
		Processed:      e.processed.Load(),
		Applied:        e.applied.Load(),
		Stale:          e.stale.Load(),
		Reviews:        e.queuedReview.Load(),
		Retried:        e.retried.Load(),
		DeadLettered:   e.deadLettered.Load(),
		Failed:         e.failed.Load(),
		PendingRetries: e.PendingRetries(),
		Held:           e.Held(),
		Queue:          e.Queue.Stats(),
	}
}
