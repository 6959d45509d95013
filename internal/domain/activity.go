package domain

import "time"

// ─── Leaderboard Types ──────────────────────────────────────────────────────

// LeaderboardEntry represents an actor's position ranked by reciprocity score.
type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	ActorID      string `json:"actor_id"`
	DisplayName  string `json:"display_name,omitempty"`
	Score        int    `json:"score"`
	Tier         Tier   `json:"tier"`
	TotalActions int    `json:"total_actions"`
}

// DefaultLeaderboardSize is used when callers pass a non-positive limit.
const DefaultLeaderboardSize = 100

// ─── Live Activity ──────────────────────────────────────────────────────────

// ActivityKind labels a live feed item.
type ActivityKind string

const (
	ActivityEvent        ActivityKind = "event"
	ActivityTransfer     ActivityKind = "transfer"
	ActivityGrant        ActivityKind = "grant"
	ActivityReversal     ActivityKind = "reversal"
	ActivityDistribution ActivityKind = "distribution"
	ActivityMilestone    ActivityKind = "milestone"
)

// Activity is a committed change broadcast to live subscribers.
type Activity struct {
	Kind      ActivityKind `json:"kind"`
	ActorID   string       `json:"actor_id,omitempty"`
	SubjectID string       `json:"subject_id,omitempty"` // event, tx or distribution id
	Amount    int64        `json:"amount,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
