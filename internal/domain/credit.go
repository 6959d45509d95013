package domain

import (
	"fmt"
	"time"
)

// ─── Ledger Types ───────────────────────────────────────────────────────────
// Balances are never stored. They are folds over confirmed transactions.

// SystemAccountID is the reserved issuer of bonuses, grants and payouts.
// It is seeded by migration and is the only account allowed below zero.
const SystemAccountID = "system"

// MaxAmount bounds any single amount: a transfer, a grant or a distribution
// pool. Ledger sums stay far inside int64 below it.
const MaxAmount int64 = 1_000_000_000_000_000

// ValidateAmount checks that an amount is positive and at most MaxAmount.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return Validationf("amount must be positive, got %d", amount)
	}
	if amount > MaxAmount {
		return Validationf("amount %d exceeds the maximum of %d", amount, MaxAmount)
	}
	return nil
}

// TransactionType represents the business reason for a ledger entry.
type TransactionType string

const (
	TxTransfer         TransactionType = "transfer"
	TxRevenueSharing   TransactionType = "revenue_sharing"
	TxReciprocityBonus TransactionType = "reciprocity_bonus"
	TxCommunityReward  TransactionType = "community_reward"
	TxTemplatePurchase TransactionType = "template_purchase"
	TxAyniExchange     TransactionType = "ayni_exchange"
)

// TransactionTypes lists every transaction type.
func TransactionTypes() []TransactionType {
	return []TransactionType{
		TxTransfer, TxRevenueSharing, TxReciprocityBonus,
		TxCommunityReward, TxTemplatePurchase, TxAyniExchange,
	}
}

// Valid reports whether t is a declared transaction type.
func (t TransactionType) Valid() bool {
	for _, known := range TransactionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTransactionType converts user input, defaulting empty input to transfer.
func ParseTransactionType(s string) (TransactionType, error) {
	if s == "" {
		return TxTransfer, nil
	}
	t := TransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrValidation, s)
	}
	return t, nil
}

// PeerTransfer reports whether actors may label their own transfers with t.
// Issuance types are reserved for the system account.
func (t TransactionType) PeerTransfer() bool {
	switch t {
	case TxTransfer, TxTemplatePurchase, TxAyniExchange:
		return true
	default:
		return false
	}
}

// TransactionStatus is the lifecycle state of a ledger entry.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxConfirmed TransactionStatus = "confirmed"
	TxFailed    TransactionStatus = "failed"
	TxReversed  TransactionStatus = "reversed"
)

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID             string            `json:"id"`
	SenderID       string            `json:"sender_id"`
	RecipientID    string            `json:"recipient_id"`
	Amount         int64             `json:"amount"`
	OriginalAmount int64             `json:"original_amount"`
	Type           TransactionType   `json:"type"`
	Status         TransactionStatus `json:"status"`
	Description    string            `json:"description,omitempty"`
	DistributionID string            `json:"distribution_id,omitempty"`
	ParentID       string            `json:"parent_id,omitempty"`   // bonus → transfer it belongs to
	ReversalOf     string            `json:"reversal_of,omitempty"` // compensation → original
	CreatedAt      time.Time         `json:"created_at"`
}

// Balance is the fold of an actor's transactions.
type Balance struct {
	ActorID        string `json:"actor_id"`
	CurrentBalance int64  `json:"current_balance"`
	PendingBalance int64  `json:"pending_balance"`
	TotalEarned    int64  `json:"total_earned"`
	TotalSpent     int64  `json:"total_spent"`
}

// Apply folds one transaction into the balance. Order does not matter.
func (b *Balance) Apply(tx Transaction) {
	switch tx.Status {
	case TxConfirmed:
		if tx.RecipientID == b.ActorID {
			b.CurrentBalance += tx.Amount
			b.TotalEarned += tx.Amount
		}
		if tx.SenderID == b.ActorID {
			b.CurrentBalance -= tx.Amount
			b.TotalSpent += tx.Amount
		}
	case TxPending:
		if tx.RecipientID == b.ActorID {
			b.PendingBalance += tx.Amount
		}
		if tx.SenderID == b.ActorID {
			b.PendingBalance -= tx.Amount
		}
	}
}

// ─── Actors ─────────────────────────────────────────────────────────────────

// Actor is a participant identity plus its durable threshold-reward state.
type Actor struct {
	ID                    string    `json:"id"`
	DisplayName           string    `json:"display_name"`
	LastScore             int       `json:"last_score"`
	LastRewardedThreshold int       `json:"last_rewarded_threshold"`
	StateVersion          int64     `json:"state_version"`
	CreatedAt             time.Time `json:"created_at"`
}

// IsSystem reports whether the actor is the reserved system account.
func (a Actor) IsSystem() bool { return a.ID == SystemAccountID }

// ─── Audit ──────────────────────────────────────────────────────────────────

// AuditReport summarises a full replay of the transaction log.
type AuditReport struct {
	Transactions  int      `json:"transactions"`
	Actors        int      `json:"actors"`
	NetSum        int64    `json:"net_sum"`        // Σ balances incl. system, must be 0
	SystemBalance int64    `json:"system_balance"` // −(net issued)
	TotalIssued   int64    `json:"total_issued"`   // Σ confirmed out of system
	BonusIssued   int64    `json:"bonus_issued"`   // reciprocity_bonus out of system
	Mismatches    []string `json:"mismatches,omitempty"`
	Consistent    bool     `json:"consistent"`
}
