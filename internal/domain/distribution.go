package domain

import "time"

// ─── Revenue Distribution ───────────────────────────────────────────────────

// DistributionStatus tracks a distribution through its lifecycle.
type DistributionStatus string

const (
	DistributionPending    DistributionStatus = "pending"
	DistributionProcessing DistributionStatus = "processing"
	DistributionCompleted  DistributionStatus = "completed"
	DistributionFailed     DistributionStatus = "failed"
)

// PercentageTolerance is the allowed |Σ percentages − 100|, inclusive.
const PercentageTolerance = 0.01

// Participant is one input row of a distribution.
type Participant struct {
	ID               string  `json:"participant_id" yaml:"id"`
	Percentage       float64 `json:"percentage" yaml:"percentage"`
	ReciprocityScore int     `json:"reciprocity_score" yaml:"score"`
}

// Calculation is the per-participant result of a distribution.
// FinalAmount = BaseAmount + ReciprocityBonus + AyniBonus + Adjustment.
type Calculation struct {
	ParticipantID       string  `json:"participant_id"`
	Percentage          float64 `json:"percentage"`
	ReciprocityScore    int     `json:"reciprocity_score"`
	BaseAmount          int64   `json:"base_amount"`
	ReciprocityBonus    int64   `json:"reciprocity_bonus"`
	AyniBonus           int64   `json:"ayni_bonus"`
	Adjustment          int64   `json:"adjustment"`
	FinalAmount         int64   `json:"final_amount"`
	EffectivePercentage float64 `json:"effective_percentage"`
}

// Distribution is the persisted record of one revenue split.
type Distribution struct {
	ID               string             `json:"id"`
	TotalAmount      int64              `json:"total_amount"`
	SourceID         string             `json:"source_id,omitempty"`
	SourceType       string             `json:"source_type,omitempty"`
	Status           DistributionStatus `json:"status"`
	ApplyBonus       bool               `json:"apply_bonus"`
	Calculations     []Calculation      `json:"calculations"`
	TransactionIDs   []string           `json:"transaction_ids"`
	TotalDistributed int64              `json:"total_distributed"`
	Remainder        int64              `json:"remainder"`
	FailureReason    string             `json:"failure_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`

	// Replayed is set when an idempotency key returned a stored distribution.
	// It is never persisted.
	Replayed bool `json:"replayed,omitempty"`
}
