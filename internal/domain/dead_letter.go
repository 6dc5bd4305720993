package domain

import "time"

type FailureStage string

const (
	StagePersist FailureStage = "persist"
	StageReview  FailureStage = "review"
	StageEmit    FailureStage = "emit"
)

// DeadLetter is an event that exhausted its retries, kept for manual replay.
type DeadLetter struct {
	ID        string       `json:"id"`
	Event     *SyncEvent   `json:"event"`
	Stage     FailureStage `json:"stage"`
	Platform  string       `json:"platform,omitempty"`
	LastError string       `json:"last_error"`
	Attempts  int          `json:"attempts"`
	FailedAt  time.Time    `json:"failed_at"`

	Rev string `json:"-"`
}
