// Package distribution splits a fixed total across participants by
// percentage share plus score-weighted bonuses.
//
// Bonuses are capped to the pool: when base plus bonuses would exceed the
// total, every claim is scaled down proportionally. Floor-rounding leftovers
// are then handed out one unit at a time so the finals always sum to the
// total exactly.
package distribution

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coomunity/ayni/internal/domain"
)

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.NewFromFloat(domain.PercentageTolerance)
)

// ─── Bonus Tables ───────────────────────────────────────────────────────────

// bonusStep is one row of a score-indexed rate table.
type bonusStep struct {
	minScore int
	rate     int64
}

var (
	reciprocityTable = []bonusStep{{95, 15}, {80, 12}, {60, 8}, {40, 5}, {20, 2}}
	ayniTable        = []bonusStep{{95, 10}, {80, 8}, {60, 5}, {40, 3}, {20, 1}}
)

func lookup(table []bonusStep, score int) int64 {
	for _, step := range table {
		if score >= step.minScore {
			return step.rate
		}
	}
	return 0
}

// ReciprocityBonusRate returns the reciprocity bonus percent for a score.
func ReciprocityBonusRate(score int) int64 { return lookup(reciprocityTable, score) }

// AyniBonusRate returns the ayni bonus percent for a score.
func AyniBonusRate(score int) int64 { return lookup(ayniTable, score) }

// ─── Validation ─────────────────────────────────────────────────────────────

// ValidatePercentages checks that percentages are non-negative and sum to
// 100 within PercentageTolerance, using exact decimal arithmetic.
func ValidatePercentages(participants []domain.Participant) error {
	sum := decimal.Zero
	for _, p := range participants {
		pct := decimal.NewFromFloat(p.Percentage)
		if pct.IsNegative() {
			return domain.Validationf("participant %s has negative percentage %v", p.ID, p.Percentage)
		}
		sum = sum.Add(pct)
	}
	if sum.Sub(hundred).Abs().GreaterThan(tolerance) {
		return domain.Validationf("percentages sum to %s, want 100 ± %s", sum.String(), tolerance.String())
	}
	return nil
}

// Validate checks every precondition of Distribute.
func Validate(total int64, participants []domain.Participant) error {
	if total <= 0 {
		return domain.Validationf("total amount must be positive, got %d", total)
	}
	if total > domain.MaxAmount {
		return domain.Validationf("total amount %d exceeds the maximum of %d", total, domain.MaxAmount)
	}
	if len(participants) == 0 {
		return domain.Validationf("at least one participant is required")
	}
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if strings.TrimSpace(p.ID) == "" {
			return domain.Validationf("participant id is empty")
		}
		if _, dup := seen[p.ID]; dup {
			return domain.Validationf("participant %s listed twice", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.ReciprocityScore < 0 || p.ReciprocityScore > 100 {
			return domain.Validationf("participant %s score %d outside [0,100]", p.ID, p.ReciprocityScore)
		}
	}
	return ValidatePercentages(participants)
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Distribute computes per-participant amounts. Calculations are returned in
// input order and their FinalAmount values always sum to total.
func Distribute(total int64, participants []domain.Participant, applyBonus bool) ([]domain.Calculation, error) {
	if err := Validate(total, participants); err != nil {
		return nil, err
	}

	totalDec := decimal.NewFromInt(total)
	calcs := make([]domain.Calculation, len(participants))
	claims := make([]decimal.Decimal, len(participants))
	claimSum := decimal.Zero

	for i, p := range participants {
		base, _ := totalDec.Mul(decimal.NewFromFloat(p.Percentage)).QuoRem(hundred, 0)
		claim := base
		c := domain.Calculation{
			ParticipantID:    p.ID,
			Percentage:       p.Percentage,
			ReciprocityScore: p.ReciprocityScore,
			BaseAmount:       base.IntPart(),
		}
		if applyBonus {
			rb := bonus(base, ReciprocityBonusRate(p.ReciprocityScore))
			ab := bonus(base, AyniBonusRate(p.ReciprocityScore))
			c.ReciprocityBonus, c.AyniBonus = rb.IntPart(), ab.IntPart()
			claim = claim.Add(rb).Add(ab)
		}
		claims[i] = claim
		claimSum = claimSum.Add(claim)
		calcs[i] = c
	}

	var distributed int64
	for i := range calcs {
		final := claims[i]
		if claimSum.GreaterThan(totalDec) {
			final, _ = claims[i].Mul(totalDec).QuoRem(claimSum, 0)
		}
		calcs[i].FinalAmount = final.IntPart()
		distributed += calcs[i].FinalAmount
	}

	reconcile(calcs, participants, total-distributed)

	for i := range calcs {
		calcs[i].Adjustment = decimal.NewFromInt(calcs[i].FinalAmount).Sub(claims[i]).IntPart()
		eff := decimal.NewFromInt(calcs[i].FinalAmount).Div(totalDec).Mul(hundred).Round(4)
		calcs[i].EffectivePercentage = eff.InexactFloat64()
	}

	if err := verify(total, calcs); err != nil {
		return nil, err
	}
	return calcs, nil
}

// bonus returns floor(base × rate / 100).
func bonus(base decimal.Decimal, rate int64) decimal.Decimal {
	q, _ := base.Mul(decimal.NewFromInt(rate)).QuoRem(hundred, 0)
	return q
}

// reconcile hands out the remainder one unit at a time in descending final
// order, ties broken by input order. Zero-share participants only take part
// when nobody else can.
func reconcile(calcs []domain.Calculation, participants []domain.Participant, remainder int64) {
	if remainder <= 0 {
		return
	}
	order := make([]int, 0, len(calcs))
	for i, p := range participants {
		if p.Percentage > 0 {
			order = append(order, i)
		}
	}
	if len(order) == 0 {
		for i := range calcs {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return calcs[order[a]].FinalAmount > calcs[order[b]].FinalAmount
	})

	n := int64(len(order))
	for k, idx := range order {
		share := remainder / n
		if int64(k) < remainder%n {
			share++
		}
		calcs[idx].FinalAmount += share
	}
}

// verify checks the post-conditions. A failure is a programming error.
func verify(total int64, calcs []domain.Calculation) error {
	var sum int64
	for _, c := range calcs {
		if c.FinalAmount < 0 {
			return fmt.Errorf("%w: participant %s final amount %d is negative",
				domain.ErrInvariantViolation, c.ParticipantID, c.FinalAmount)
		}
		sum += c.FinalAmount
	}
	if sum != total {
		return fmt.Errorf("%w: finals sum to %d, want %d", domain.ErrInvariantViolation, sum, total)
	}
	return nil
}
