package domain

import "time"

type Strategy string

const (
	StrategyNone                Strategy = ""
	StrategySourcePriority      Strategy = "source_priority"
	StrategyMergeWithValidation Strategy = "merge_with_validation"
	StrategyManualReview        Strategy = "manual_review"
	StrategyLastWriteWins       Strategy = "last_write_wins"
)

// FieldConflict describes one field two platforms disagree on.
type FieldConflict struct {
	Field            string      `json:"field"`
	ExistingValue    interface{} `json:"existing_value"`
	ExistingPlatform string      `json:"existing_platform"`
	IncomingValue    interface{} `json:"incoming_value"`
	Winner           string      `json:"winner,omitempty"`
}

// ConflictDecision is the output of the conflict resolver.
type ConflictDecision struct {
	HasConflict bool     `json:"has_conflict"`
	Strategy    Strategy `json:"strategy,omitempty"`

	// ResultingData is nil when Strategy is manual_review.
	ResultingData map[string]interface{} `json:"resulting_data,omitempty"`

	// AppliedFields lists the incoming fields that made it into ResultingData.
	AppliedFields []string        `json:"applied_fields,omitempty"`
	Conflicts     []FieldConflict `json:"conflicts,omitempty"`
}

// Stale reports a discarded duplicate or out-of-order delivery.
func (d ConflictDecision) Stale() bool {
	return d.HasConflict && d.Strategy == StrategyLastWriteWins
}

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewResolved ReviewStatus = "resolved"
)

type ReviewChoice string

const (
	ReviewChoiceExisting ReviewChoice = "existing"
	ReviewChoiceIncoming ReviewChoice = "incoming"
	ReviewChoiceCustom   ReviewChoice = "custom"
)

// ReviewItem is a manual_review decision queued for operator action.
type ReviewItem struct {
	ID           string                 `json:"id"`
	EntityType   EntityType             `json:"entity_type"`
	EntityID     string                 `json:"entity_id"`
	Event        *SyncEvent             `json:"event"`
	ExistingData map[string]interface{} `json:"existing_data"`
	Conflicts    []FieldConflict        `json:"conflicts"`
	Status       ReviewStatus           `json:"status"`
	DetectedAt   time.Time              `json:"detected_at"`
	ResolvedAt   *time.Time             `json:"resolved_at,omitempty"`
	Choice       ReviewChoice           `json:"choice,omitempty"`
	ResolvedBy   string                 `json:"resolved_by,omitempty"`

	Rev string `json:"-"`
}

type ResolveReviewRequest struct {
	Choice ReviewChoice           `json:"choice" validate:"required,oneof=existing incoming custom"`
	Data   map[string]interface{} `json:"data,omitempty" validate:"required_if=Choice custom"`
}
