package economy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/coomunity/ayni/internal/domain"
	"github.com/coomunity/ayni/internal/infra/observability"
)

const (
	opTransfer     = "transfer"
	opDistribution = "distribution"
)

// ─── Transfer ───────────────────────────────────────────────────────────────

// TransferRequest moves Ünits from one actor to another.
type TransferRequest struct {
	SenderID       string                 `json:"sender_id"`
	RecipientID    string                 `json:"recipient_id"`
	Amount         int64                  `json:"amount"`
	Type           domain.TransactionType `json:"type,omitempty"`
	Description    string                 `json:"description,omitempty"`
	IdempotencyKey string                 `json:"-"`
}

// TransferResult describes a confirmed transfer.
// The sender is debited Transaction.Amount; the recipient receives
// FinalAmount, the difference being minted by the Bonus transaction.
type TransferResult struct {
	Transaction    domain.Transaction       `json:"transaction"`
	Bonus          *domain.Transaction      `json:"bonus,omitempty"`
	FinalAmount    int64                    `json:"final_amount"`
	BonusPercent   int64                    `json:"bonus_percent"`
	SenderScore    int                      `json:"sender_score"`
	RecipientScore int                      `json:"recipient_score"`
	Rewards        []domain.ThresholdReward `json:"rewards,omitempty"`
	Replayed       bool                     `json:"replayed,omitempty"`
}

func (r TransferRequest) validate() (domain.TransactionType, error) {
	typ, err := domain.ParseTransactionType(string(r.Type))
	if err != nil {
		return "", err
	}
	if !typ.PeerTransfer() {
		return "", domain.Validationf("transaction type %s is reserved for the system account", typ)
	}
	if err := domain.ValidateAmount(r.Amount); err != nil {
		return "", err
	}
	switch {
	case r.SenderID == "" || r.RecipientID == "":
		return "", domain.Validationf("sender and recipient are required")
	case r.SenderID == r.RecipientID:
		return "", domain.Validationf("sender and recipient must differ")
	case r.SenderID == domain.SystemAccountID:
		return "", domain.Validationf("the system account cannot send transfers; use a grant")
	}
	return typ, nil
}

// TransferMagnitude maps an amount onto the 1..10 event magnitude scale.
func TransferMagnitude(amount int64) int {
	m := int(math.Ceil(math.Log10(float64(amount)+1) * 3))
	if m < domain.MinMagnitude {
		return domain.MinMagnitude
	}
	if m > domain.MaxMagnitude {
		return domain.MaxMagnitude
	}
	return m
}

// Transfer debits the sender, credits the recipient with a tier bonus and
// records the give/receive events, all in one unit of work. The balance
// check happens inside that unit, so concurrent transfers cannot overspend.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	typ, err := req.validate()
	if err != nil {
		observability.Transfers.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "transfer", map[string]string{
		"sender": req.SenderID, "recipient": req.RecipientID,
	})

	now := s.now()
	var res TransferResult
	var rewards []domain.ThresholdReward
	err = s.store.Update(ctx, func(uow domain.UnitOfWork) error {
		res, rewards = TransferResult{}, nil

		if req.IdempotencyKey != "" {
			replayed, found, err := s.replayTransfer(ctx, uow, req.IdempotencyKey)
			if err != nil || found {
				res = replayed
				return err
			}
		}

		if _, err := uow.Actor(ctx, req.SenderID); err != nil {
			return err
		}
		if _, err := uow.Actor(ctx, req.RecipientID); err != nil {
			return err
		}

		bal, err := uow.Balance(ctx, req.SenderID)
		if err != nil {
			return err
		}
		if bal.CurrentBalance < req.Amount {
			return &domain.InsufficientBalanceError{
				ActorID: req.SenderID, Balance: bal.CurrentBalance, Requested: req.Amount,
			}
		}

		senderScore, err := s.scoreIn(ctx, uow, req.SenderID, now)
		if err != nil {
			return err
		}
		recipientScore, err := s.scoreIn(ctx, uow, req.RecipientID, now)
		if err != nil {
			return err
		}

		bonusPct := senderScore.Tier.BonusPercent()
		final := req.Amount * (100 + bonusPct) / 100

		main := domain.Transaction{
			ID:             s.newID(),
			SenderID:       req.SenderID,
			RecipientID:    req.RecipientID,
			Amount:         req.Amount,
			OriginalAmount: req.Amount,
			Type:           typ,
			Status:         domain.TxConfirmed,
			Description:    req.Description,
			CreatedAt:      now,
		}
		if err := uow.AppendTransaction(ctx, main); err != nil {
			return err
		}
		res = TransferResult{
			Transaction:    main,
			FinalAmount:    final,
			BonusPercent:   bonusPct,
			SenderScore:    senderScore.CurrentScore,
			RecipientScore: recipientScore.CurrentScore,
		}

		if final > req.Amount {
			bonus := domain.Transaction{
				ID:             s.newID(),
				SenderID:       domain.SystemAccountID,
				RecipientID:    req.RecipientID,
				Amount:         final - req.Amount,
				OriginalAmount: req.Amount,
				Type:           domain.TxReciprocityBonus,
				Status:         domain.TxConfirmed,
				Description:    fmt.Sprintf("%d%% %s tier bonus", bonusPct, senderScore.Tier),
				ParentID:       main.ID,
				CreatedAt:      now,
			}
			if err := uow.AppendTransaction(ctx, bonus); err != nil {
				return err
			}
			res.Bonus = &bonus
		}

		magnitude := TransferMagnitude(req.Amount)
		give := domain.ReciprocityEvent{
			ID:            s.newID(),
			Type:          domain.EventGive,
			ActorID:       req.SenderID,
			RecipientID:   req.RecipientID,
			Magnitude:     magnitude,
			PointsAwarded: domain.PointsFor(domain.EventGive, magnitude),
			Context:       string(typ),
			ResourceID:    main.ID,
			CreatedAt:     now,
		}
		_, reward, err := s.appendEvent(ctx, uow, give)
		if err != nil {
			return err
		}
		if reward != nil {
			rewards = append(rewards, *reward)
		}

		if req.RecipientID != domain.SystemAccountID {
			receive := give
			receive.ID = s.newID()
			receive.Type = domain.EventReceive
			receive.ActorID = req.RecipientID
			receive.RecipientID = req.SenderID
			receive.PointsAwarded = domain.PointsFor(domain.EventReceive, magnitude)
			_, reward, err := s.appendEvent(ctx, uow, receive)
			if err != nil {
				return err
			}
			if reward != nil {
				rewards = append(rewards, *reward)
			}
		}

		if req.IdempotencyKey != "" {
			if err := uow.SaveIdempotency(ctx, req.IdempotencyKey, opTransfer, main.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	err = classify("transfer", err)
	s.tracer.EndSpan(span, err)

	if err != nil {
		observability.Transfers.WithLabelValues(resultLabel(err)).Inc()
		if !isInputError(err) {
			s.log.Error("transfer failed", "sender", req.SenderID, "recipient", req.RecipientID, "amount", req.Amount, "error", err)
		}
		return nil, err
	}
	if res.Replayed {
		observability.Transfers.WithLabelValues("replayed").Inc()
		return &res, nil
	}

	res.Rewards = rewards
	observability.Transfers.WithLabelValues("ok").Inc()
	observability.UnitsTransferred.Add(float64(req.Amount))
	if res.Bonus != nil {
		observability.UnitsIssued.WithLabelValues("transfer_bonus").Add(float64(res.Bonus.Amount))
	}
	s.log.Info("transfer confirmed",
		"tx", res.Transaction.ID, "sender", req.SenderID, "recipient", req.RecipientID,
		"amount", req.Amount, "final", res.FinalAmount, "bonus_pct", res.BonusPercent)

	activities := []domain.Activity{{
		Kind:      domain.ActivityTransfer,
		ActorID:   req.SenderID,
		SubjectID: res.Transaction.ID,
		Amount:    res.FinalAmount,
		Detail:    fmt.Sprintf("%s → %s", req.SenderID, req.RecipientID),
		Timestamp: now,
	}}
	s.publish(append(activities, s.logRewards(rewards)...))
	return &res, nil
}

// replayTransfer returns the stored result of an earlier call with key.
func (s *Service) replayTransfer(ctx context.Context, uow domain.UnitOfWork, key string) (TransferResult, bool, error) {
	op, id, found, err := uow.LookupIdempotency(ctx, key)
	if err != nil || !found {
		return TransferResult{}, false, err
	}
	if op != opTransfer {
		return TransferResult{}, true, domain.Validationf("idempotency key %q was used for a %s", key, op)
	}
	main, err := uow.Transaction(ctx, id)
	if err != nil {
		return TransferResult{}, true, err
	}
	res := TransferResult{Transaction: main, FinalAmount: main.Amount, Replayed: true}
	children, err := uow.ChildTransactions(ctx, id)
	if err != nil {
		return TransferResult{}, true, err
	}
	for _, c := range children {
		if c.ReversalOf == "" && c.SenderID == domain.SystemAccountID {
			bonus := c
			res.Bonus = &bonus
			res.FinalAmount += c.Amount
			res.BonusPercent = (res.FinalAmount*100)/main.Amount - 100
		}
	}
	return res, true, nil
}

// ─── Grant ──────────────────────────────────────────────────────────────────

// GrantRequest issues Ünits from the system account.
type GrantRequest struct {
	RecipientID string                 `json:"recipient_id"`
	Amount      int64                  `json:"amount"`
	Type        domain.TransactionType `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// Grant mints Ünits for an actor, e.g. a community reward. The system
// account's balance goes negative by the same amount.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*domain.Transaction, error) {
	if req.Type == "" {
		req.Type = domain.TxCommunityReward
	}
	if req.Type != domain.TxCommunityReward && req.Type != domain.TxReciprocityBonus {
		return nil, domain.Validationf("grant type must be %s or %s, got %q",
			domain.TxCommunityReward, domain.TxReciprocityBonus, req.Type)
	}
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.RecipientID == "" || req.RecipientID == domain.SystemAccountID {
		return nil, domain.Validationf("grant recipient must be a regular actor")
	}

	now := s.now()
	tx := domain.Transaction{
		ID:             s.newID(),
		SenderID:       domain.SystemAccountID,
		RecipientID:    req.RecipientID,
		Amount:         req.Amount,
		OriginalAmount: req.Amount,
		Type:           req.Type,
		Status:         domain.TxConfirmed,
		Description:    req.Description,
		CreatedAt:      now,
	}
	err := s.store.Update(ctx, func(uow domain.UnitOfWork) error {
		if _, err := uow.Actor(ctx, req.RecipientID); err != nil {
			return err
		}
		return uow.AppendTransaction(ctx, tx)
	})
	if err = classify("grant", err); err != nil {
		return nil, err
	}

	observability.UnitsIssued.WithLabelValues("grant").Add(float64(tx.Amount))
	s.log.Info("grant issued", "tx", tx.ID, "recipient", tx.RecipientID, "amount", tx.Amount, "type", string(tx.Type))
	s.publish([]domain.Activity{{
		Kind:      domain.ActivityGrant,
		ActorID:   tx.RecipientID,
		SubjectID: tx.ID,
		Amount:    tx.Amount,
		Detail:    string(tx.Type),
		Timestamp: now,
	}})
	return &tx, nil
}

// ─── Reverse ────────────────────────────────────────────────────────────────

// Reverse writes a compensating transaction for txID. The original entry is
// never modified and can be reversed once. The original recipient must be
// able to cover the amount unless it is the system account.
func (s *Service) Reverse(ctx context.Context, txID, reason string) (*domain.Transaction, error) {
	if strings.TrimSpace(txID) == "" {
		return nil, domain.Validationf("transaction id is empty")
	}

	ctx, span := s.tracer.StartSpan(ctx, "reverse", map[string]string{"tx": txID})
	now := s.now()
	var rev domain.Transaction
	err := s.store.Update(ctx, func(uow domain.UnitOfWork) error {
		orig, err := uow.Transaction(ctx, txID)
		if err != nil {
			return err
		}
		if orig.Status != domain.TxConfirmed {
			return domain.Validationf("only confirmed transactions can be reversed, %s is %s", txID, orig.Status)
		}
		if orig.ReversalOf != "" {
			return domain.Validationf("%s is itself a reversal", txID)
		}
		if _, found, err := uow.ReversalOf(ctx, txID); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateReversal, txID)
		}

		if orig.RecipientID != domain.SystemAccountID {
			bal, err := uow.Balance(ctx, orig.RecipientID)
			if err != nil {
				return err
			}
			if bal.CurrentBalance < orig.Amount {
				return &domain.InsufficientBalanceError{
					ActorID: orig.RecipientID, Balance: bal.CurrentBalance, Requested: orig.Amount,
				}
			}
		}

		desc := "reversal of " + orig.ID
		if reason = strings.TrimSpace(reason); reason != "" {
			desc += ": " + reason
		}
		rev = domain.Transaction{
			ID:             s.newID(),
			SenderID:       orig.RecipientID,
			RecipientID:    orig.SenderID,
			Amount:         orig.Amount,
			OriginalAmount: orig.Amount,
			Type:           orig.Type,
			Status:         domain.TxConfirmed,
			Description:    desc,
			DistributionID: orig.DistributionID,
			ParentID:       orig.ID,
			ReversalOf:     orig.ID,
			CreatedAt:      now,
		}
		return uow.AppendTransaction(ctx, rev)
	})
	err = classify("reverse", err)
	s.tracer.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	observability.Reversals.Inc()
	s.log.Info("transaction reversed", "tx", txID, "reversal", rev.ID, "amount", rev.Amount)
	s.publish([]domain.Activity{{
		Kind:      domain.ActivityReversal,
		ActorID:   rev.SenderID,
		SubjectID: rev.ID,
		Amount:    rev.Amount,
		Detail:    rev.Description,
		Timestamp: now,
	}})
	return &rev, nil
}

// ─── Audit ──────────────────────────────────────────────────────────────────

// Audit replays the whole ledger from an empty state and checks
// conservation: all balances including the system account sum to zero,
// the system account's deficit equals net issuance, every regular balance
// is non-negative and every stored fold matches the replay.
func (s *Service) Audit(ctx context.Context) (domain.AuditReport, error) {
	var report domain.AuditReport
	err := s.store.View(ctx, func(uow domain.UnitOfWork) error {
		actors, err := uow.ListActors(ctx)
		if err != nil {
			return err
		}
		txs, err := uow.AllTransactions(ctx)
		if err != nil {
			return err
		}

		replay := make(map[string]*domain.Balance, len(actors))
		for _, a := range actors {
			replay[a.ID] = &domain.Balance{ActorID: a.ID}
		}

		var mismatches []string
		for _, tx := range txs {
			for _, id := range []string{tx.SenderID, tx.RecipientID} {
				b, ok := replay[id]
				if !ok {
					mismatches = append(mismatches, fmt.Sprintf("transaction %s references unknown actor %s", tx.ID, id))
					b = &domain.Balance{ActorID: id}
					replay[id] = b
				}
				b.Apply(tx)
			}
			if tx.Status != domain.TxConfirmed {
				continue
			}
			if tx.SenderID == domain.SystemAccountID {
				report.TotalIssued += tx.Amount
				if tx.Type == domain.TxReciprocityBonus && tx.ReversalOf == "" {
					report.BonusIssued += tx.Amount
				}
			}
			if tx.RecipientID == domain.SystemAccountID {
				report.TotalIssued -= tx.Amount
			}
		}

		for _, a := range actors {
			b := replay[a.ID]
			report.NetSum += b.CurrentBalance
			stored, err := uow.Balance(ctx, a.ID)
			if err != nil {
				return err
			}
			if stored != *b {
				mismatches = append(mismatches, fmt.Sprintf("actor %s: stored fold %d, replay %d", a.ID, stored.CurrentBalance, b.CurrentBalance))
			}
			if !a.IsSystem() && b.CurrentBalance < 0 {
				mismatches = append(mismatches, fmt.Sprintf("actor %s has negative balance %d", a.ID, b.CurrentBalance))
			}
		}
		if sys, ok := replay[domain.SystemAccountID]; ok {
			report.SystemBalance = sys.CurrentBalance
		}
		if report.NetSum != 0 {
			mismatches = append(mismatches, fmt.Sprintf("balances sum to %d, want 0", report.NetSum))
		}
		if report.SystemBalance != -report.TotalIssued {
			mismatches = append(mismatches, fmt.Sprintf("system balance %d does not offset issuance %d", report.SystemBalance, report.TotalIssued))
		}

		report.Transactions = len(txs)
		report.Actors = len(actors)
		report.Mismatches = mismatches
		report.Consistent = len(mismatches) == 0
		return nil
	})
	if err != nil {
		return domain.AuditReport{}, classify("audit", err)
	}
	if !report.Consistent {
		s.log.Error("ledger audit failed", "mismatches", len(report.Mismatches), "fatal", true)
	}
	return report, nil
}

// resultLabel names an operation outcome for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
