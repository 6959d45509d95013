// Package domain contains pure business types with ZERO infrastructure imports.
// It is the innermost ring and depends on nothing.
package domain

import (
	"fmt"
	"time"
)

// ─── Reciprocity Events ─────────────────────────────────────────────────────

// EventType is the closed set of behavioral actions that feed the score.
type EventType string

const (
	EventGive        EventType = "give"
	EventReceive     EventType = "receive"
	EventShare       EventType = "share"
	EventHelp        EventType = "help"
	EventCollaborate EventType = "collaborate"
	EventMentor      EventType = "mentor"
	EventLearn       EventType = "learn"
	EventCreate      EventType = "create"
	EventReview      EventType = "review"
	EventAppreciate  EventType = "appreciate"
)

// EventTypes lists every event type in declaration order.
func EventTypes() []EventType {
	return []EventType{
		EventGive, EventReceive, EventShare, EventHelp, EventCollaborate,
		EventMentor, EventLearn, EventCreate, EventReview, EventAppreciate,
	}
}

// EventCategory groups event types for the balance term of the score.
type EventCategory int

const (
	CategoryGive EventCategory = iota
	CategoryReceive
	CategoryCollaborative
)

// Category classifies the event type. Unknown types count as collaborative,
// which only contributes to the action total.
func (t EventType) Category() EventCategory {
	switch t {
	case EventGive, EventShare, EventHelp, EventMentor, EventCreate, EventAppreciate:
		return CategoryGive
	case EventReceive, EventLearn:
		return CategoryReceive
	default:
		return CategoryCollaborative
	}
}

// BasePoints returns the fixed points for one action of magnitude 5.
func (t EventType) BasePoints() int64 {
	switch t {
	case EventGive:
		return 10
	case EventReceive:
		return 5
	case EventShare:
		return 8
	case EventHelp:
		return 12
	case EventCollaborate:
		return 15
	case EventMentor:
		return 20
	case EventLearn:
		return 8
	case EventCreate:
		return 15
	case EventReview:
		return 10
	case EventAppreciate:
		return 5
	default:
		return 0
	}
}

// Valid reports whether t is one of the declared event types.
func (t EventType) Valid() bool {
	for _, known := range EventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEventType converts user input into an EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", ErrValidation, s)
	}
	return t, nil
}

const (
	MinMagnitude = 1
	MaxMagnitude = 10
)

// ValidateMagnitude rejects magnitudes outside [1,10].
func ValidateMagnitude(m int) error {
	if m < MinMagnitude || m > MaxMagnitude {
		return fmt.Errorf("%w: magnitude %d outside [%d,%d]", ErrValidation, m, MinMagnitude, MaxMagnitude)
	}
	return nil
}

// PointsFor computes basePoints × (magnitude / 5), floored.
func PointsFor(t EventType, magnitude int) int64 {
	return t.BasePoints() * int64(magnitude) / 5
}

// ReciprocityEvent is an immutable behavioral fact. Append-only.
type ReciprocityEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"event_type"`
	ActorID       string    `json:"actor_id"`
	RecipientID   string    `json:"recipient_id,omitempty"`
	Magnitude     int       `json:"magnitude"`
	PointsAwarded int64     `json:"points_awarded"`
	Context       string    `json:"context,omitempty"`
	ResourceID    string    `json:"resource_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ─── Tiers ──────────────────────────────────────────────────────────────────

// Tier is an ordered band of reciprocity score.
type Tier int

const (
	TierBeginner Tier = iota
	TierGrowing
	TierBalanced
	TierGenerous
	TierSage
	TierCosmic
)

// Tiers lists every tier from lowest to highest.
func Tiers() []Tier {
	return []Tier{TierBeginner, TierGrowing, TierBalanced, TierGenerous, TierSage, TierCosmic}
}

// Threshold is the minimum score of the tier.
func (t Tier) Threshold() int {
	switch t {
	case TierBeginner:
		return 0
	case TierGrowing:
		return 21
	case TierBalanced:
		return 41
	case TierGenerous:
		return 61
	case TierSage:
		return 81
	case TierCosmic:
		return 96
	default:
		return 0
	}
}

// BonusPercent is the tier-indexed bonus, non-decreasing with tier.
func (t Tier) BonusPercent() int64 {
	switch t {
	case TierBeginner:
		return 0
	case TierGrowing:
		return 2
	case TierBalanced:
		return 5
	case TierGenerous:
		return 10
	case TierSage:
		return 15
	case TierCosmic:
		return 20
	default:
		return 0
	}
}

// Next returns the following tier and false when t is already the top.
func (t Tier) Next() (Tier, bool) {
	if t >= TierCosmic {
		return TierCosmic, false
	}
	return t + 1, true
}

func (t Tier) String() string {
	switch t {
	case TierBeginner:
		return "beginner"
	case TierGrowing:
		return "growing"
	case TierBalanced:
		return "balanced"
	case TierGenerous:
		return "generous"
	case TierSage:
		return "sage"
	case TierCosmic:
		return "cosmic"
	default:
		return "unknown"
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	for _, candidate := range Tiers() {
		if candidate.String() == string(b) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", string(b))
}

// TierForScore returns the highest tier whose threshold is ≤ score.
func TierForScore(score int) Tier {
	tier := TierBeginner
	for _, t := range Tiers() {
		if score >= t.Threshold() {
			tier = t
		}
	}
	return tier
}

// ─── Score ──────────────────────────────────────────────────────────────────

// ReciprocityScore is derived on demand from an actor's event window.
// It is never the source of truth.
type ReciprocityScore struct {
	ActorID              string    `json:"actor_id,omitempty"`
	CurrentScore         int       `json:"current_score"`
	Tier                 Tier      `json:"tier"`
	GiveActions          int       `json:"give_actions"`
	ReceiveActions       int       `json:"receive_actions"`
	CollaborativeActions int       `json:"collaborative_actions"`
	TotalActions         int       `json:"total_actions"`
	BalanceRatio         float64   `json:"balance_ratio"`
	PointsToNextLevel    int       `json:"points_to_next_level"`
	BonusPercent         int64     `json:"bonus_percent"`
	TimeWeight           float64   `json:"time_weight"`
	QualityWeight        float64   `json:"quality_weight"`
	ComputedAt           time.Time `json:"computed_at"`
}

// ThresholdReward signals that an actor reached a tier for the first time.
// It is a notification, not a ledger write.
type ThresholdReward struct {
	ActorID   string    `json:"actor_id"`
	Tier      Tier      `json:"tier"`
	Threshold int       `json:"threshold"`
	Amount    int64     `json:"amount"`
	ReachedAt time.Time `json:"reached_at"`
}
