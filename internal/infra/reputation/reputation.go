// Package reputation derives the bounded reciprocity score from an actor's
// event history.
//
// The score combines four terms:
//   - Volume: how much the actor does at all
//   - Balance: how close the give/receive ratio is to the 1.5 target
//   - Time: how recent the actions are
//   - Quality: how large the actions are on average
//
// score = round(clamp((volume + balance) × time × quality, 0, 100))
//
// Scores are never stored; callers recompute them from the event log.
package reputation

import (
	"math"
	"time"

	"github.com/coomunity/ayni/internal/domain"
)

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// PointsPerAction is the volume term contribution of each action.
	PointsPerAction = 2.0

	// VolumeCap bounds the volume term.
	VolumeCap = 50.0

	// BalanceCap is the balance term at a perfect ratio and full maturity.
	BalanceCap = 50.0

	// TargetRatio is the ideal give/receive ratio.
	TargetRatio = 1.5

	// BalanceFloor is the minimum balance factor.
	BalanceFloor = 0.5

	// MaturityActions is how many actions before the balance term counts fully.
	MaturityActions = 25.0

	// DecayHorizon is the age at which an event reaches its minimum weight.
	DecayHorizon = 365 * 24 * time.Hour

	// DecayDepth is the weight lost linearly across DecayHorizon.
	DecayDepth = 0.9

	// TimeWeightFloor is the minimum weight of an old event.
	TimeWeightFloor = 0.1

	// QualityBase and QualitySpan map average magnitude onto [0.84, 1.2].
	QualityBase = 0.8
	QualitySpan = 0.4

	// MaxScore is the upper bound of every score.
	MaxScore = 100
)

// DefaultWindow is the trailing window of events a score is computed over.
const DefaultWindow = 365 * 24 * time.Hour

// ─── Scoring ────────────────────────────────────────────────────────────────

// ComputeScore derives a score from events relative to now.
// Pure and deterministic: the order of events does not matter.
func ComputeScore(events []domain.ReciprocityEvent, now time.Time) domain.ReciprocityScore {
	score := domain.ReciprocityScore{
		Tier:       domain.TierBeginner,
		ComputedAt: now,
	}
	if len(events) == 0 {
		score.PointsToNextLevel = domain.TierGrowing.Threshold()
		return score
	}

	var magnitudeSum int
	var timeSum float64
	for _, ev := range events {
		switch ev.Type.Category() {
		case domain.CategoryGive:
			score.GiveActions++
		case domain.CategoryReceive:
			score.ReceiveActions++
		case domain.CategoryCollaborative:
			score.CollaborativeActions++
		}
		magnitudeSum += ev.Magnitude
		timeSum += TimeWeight(ev.CreatedAt, now)
	}
	score.TotalActions = len(events)

	ratio := float64(score.GiveActions) / math.Max(1, float64(score.ReceiveActions))
	score.BalanceRatio = round2(ratio)

	volume := math.Min(VolumeCap, float64(score.TotalActions)*PointsPerAction)
	maturity := math.Min(1, float64(score.TotalActions)/MaturityActions)
	balance := balanceFactor(ratio) * BalanceCap * maturity

	score.TimeWeight = timeSum / float64(len(events))
	avgMagnitude := float64(magnitudeSum) / float64(len(events))
	score.QualityWeight = QualityBase + (avgMagnitude/float64(domain.MaxMagnitude))*QualitySpan

	raw := (volume + balance) * score.TimeWeight * score.QualityWeight
	score.CurrentScore = int(math.Round(clamp(raw, 0, MaxScore)))

	score.Tier = domain.TierForScore(score.CurrentScore)
	score.BonusPercent = score.Tier.BonusPercent()
	if next, ok := score.Tier.Next(); ok {
		score.PointsToNextLevel = next.Threshold() - score.CurrentScore
	}
	return score
}

// TimeWeight is 1.0 for a fresh event, decaying linearly to 0.1 at one year.
// Future-dated events weigh 1.0.
func TimeWeight(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	w := 1 - DecayDepth*(float64(age)/float64(DecayHorizon))
	return clamp(w, TimeWeightFloor, 1)
}

// WindowStart returns the oldest instant included in a trailing window.
func WindowStart(now time.Time, window time.Duration) time.Time {
	if window <= 0 {
		window = DefaultWindow
	}
	return now.Add(-window)
}

// ─── Pure Helper Functions ──────────────────────────────────────────────────

// balanceFactor peaks at TargetRatio and falls off linearly on both sides.
func balanceFactor(ratio float64) float64 {
	return clamp(1-math.Abs(ratio-TargetRatio)/TargetRatio/2, BalanceFloor, 1)
}

// clamp restricts a value to [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
