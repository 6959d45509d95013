package domain

import (
	"errors"
	"testing"
)

// ─── Event Type Tests ───────────────────────────────────────────────────────

func TestEventType_Category(t *testing.T) {
	tests := []struct {
		typ  EventType
		want EventCategory
	}{
		{EventGive, CategoryGive},
		{EventShare, CategoryGive},
		{EventHelp, CategoryGive},
		{EventMentor, CategoryGive},
		{EventCreate, CategoryGive},
		{EventAppreciate, CategoryGive},
		{EventReceive, CategoryReceive},
		{EventLearn, CategoryReceive},
		{EventCollaborate, CategoryCollaborative},
		{EventReview, CategoryCollaborative},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.Category(); got != tt.want {
				t.Errorf("Category() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventTypes_AllClassified(t *testing.T) {
	for _, typ := range EventTypes() {
		if typ.BasePoints() <= 0 {
			t.Errorf("%s.BasePoints() = %d, want > 0", typ, typ.BasePoints())
		}
	}
}

func TestParseEventType(t *testing.T) {
	got, err := ParseEventType("mentor")
	if err != nil || got != EventMentor {
		t.Errorf("ParseEventType(mentor) = %q, %v", got, err)
	}
	if _, err := ParseEventType("bribe"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseEventType(bribe) err = %v, want ErrValidation", err)
	}
}

func TestPointsFor(t *testing.T) {
	tests := []struct {
		typ       EventType
		magnitude int
		want      int64
	}{
		{EventGive, 5, 10},
		{EventGive, 10, 20},
		{EventGive, 1, 2},
		{EventMentor, 3, 12},
		{EventReceive, 1, 1},
		{EventAppreciate, 2, 2},
		{EventHelp, 7, 16}, // 12 × 7 / 5 = 16.8 → 16
	}
	for _, tt := range tests {
		if got := PointsFor(tt.typ, tt.magnitude); got != tt.want {
			t.Errorf("PointsFor(%s, %d) = %d, want %d", tt.typ, tt.magnitude, got, tt.want)
		}
	}
}

func TestValidateMagnitude(t *testing.T) {
	for _, m := range []int{1, 5, 10} {
		if err := ValidateMagnitude(m); err != nil {
			t.Errorf("ValidateMagnitude(%d) = %v", m, err)
		}
	}
	for _, m := range []int{0, 11, -3} {
		if err := ValidateMagnitude(m); !errors.Is(err, ErrValidation) {
			t.Errorf("ValidateMagnitude(%d) = %v, want ErrValidation", m, err)
		}
	}
}

// ─── Tier Tests ─────────────────────────────────────────────────────────────

func TestTierForScore(t *testing.T) {
	tests := []struct {
		score int
		want  Tier
	}{
		{0, TierBeginner},
		{20, TierBeginner},
		{21, TierGrowing},
		{40, TierGrowing},
		{41, TierBalanced},
		{60, TierBalanced},
		{61, TierGenerous},
		{80, TierGenerous},
		{81, TierSage},
		{95, TierSage},
		{96, TierCosmic},
		{100, TierCosmic},
	}
	for _, tt := range tests {
		if got := TierForScore(tt.score); got != tt.want {
			t.Errorf("TierForScore(%d) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestTier_BonusMonotonic(t *testing.T) {
	prev := int64(-1)
	for _, tier := range Tiers() {
		if tier.BonusPercent() < prev {
			t.Errorf("%v bonus %d < previous %d", tier, tier.BonusPercent(), prev)
		}
		prev = tier.BonusPercent()
	}
}

func TestTier_TextRoundTrip(t *testing.T) {
	var tier Tier
	if err := tier.UnmarshalText([]byte("sage")); err != nil || tier != TierSage {
		t.Errorf("UnmarshalText(sage) = %v, %v", tier, err)
	}
	if err := tier.UnmarshalText([]byte("legend")); err == nil {
		t.Error("UnmarshalText(legend) should fail")
	}
}

func TestTier_Next(t *testing.T) {
	if next, ok := TierBalanced.Next(); !ok || next != TierGenerous {
		t.Errorf("TierBalanced.Next() = %v, %v", next, ok)
	}
	if _, ok := TierCosmic.Next(); ok {
		t.Error("TierCosmic.Next() should report top")
	}
}

// ─── Ledger Tests ───────────────────────────────────────────────────────────

func TestBalance_Apply(t *testing.T) {
	b := Balance{ActorID: "ana"}
	b.Apply(Transaction{SenderID: SystemAccountID, RecipientID: "ana", Amount: 100, Status: TxConfirmed})
	b.Apply(Transaction{SenderID: "ana", RecipientID: "luis", Amount: 30, Status: TxConfirmed})
	b.Apply(Transaction{SenderID: "luis", RecipientID: "ana", Amount: 7, Status: TxPending})
	b.Apply(Transaction{SenderID: "ana", RecipientID: "luis", Amount: 999, Status: TxFailed})

	if b.CurrentBalance != 70 {
		t.Errorf("CurrentBalance = %d, want 70", b.CurrentBalance)
	}
	if b.TotalEarned != 100 || b.TotalSpent != 30 {
		t.Errorf("earned/spent = %d/%d, want 100/30", b.TotalEarned, b.TotalSpent)
	}
	if b.PendingBalance != 7 {
		t.Errorf("PendingBalance = %d, want 7", b.PendingBalance)
	}
}

func TestParseTransactionType(t *testing.T) {
	if got, err := ParseTransactionType(""); err != nil || got != TxTransfer {
		t.Errorf("ParseTransactionType(\"\") = %q, %v", got, err)
	}
	if got, err := ParseTransactionType("ayni_exchange"); err != nil || got != TxAyniExchange {
		t.Errorf("ParseTransactionType(ayni_exchange) = %q, %v", got, err)
	}
	if _, err := ParseTransactionType("loan"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseTransactionType(loan) err = %v", err)
	}
}

// ─── Error Tests ────────────────────────────────────────────────────────────

func TestInsufficientBalanceError(t *testing.T) {
	var err error = &InsufficientBalanceError{ActorID: "ana", Balance: 5, Requested: 9}
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Error("errors.Is(ErrInsufficientBalance) = false")
	}
	var ibe *InsufficientBalanceError
	if !errors.As(err, &ibe) || ibe.Requested != 9 {
		t.Errorf("errors.As = %+v", ibe)
	}
}

func TestErrDuplicateReversal_IsValidation(t *testing.T) {
	if !errors.Is(ErrDuplicateReversal, ErrValidation) {
		t.Error("ErrDuplicateReversal should wrap ErrValidation")
	}
}
