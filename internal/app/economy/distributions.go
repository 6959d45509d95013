package economy

import (
	"context"
	"errors"
	"fmt"

	"github.com/coomunity/ayni/internal/domain"
	"github.com/coomunity/ayni/internal/infra/distribution"
	"github.com/coomunity/ayni/internal/infra/observability"
)

// ParticipantShare is one requested share of a distribution. Scores are
// looked up by the service, never supplied by the caller.
type ParticipantShare struct {
	ID         string  `json:"participant_id" yaml:"id"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// DistributionRequest splits TotalAmount Ünits across participants.
type DistributionRequest struct {
	TotalAmount    int64              `json:"total_amount"`
	SourceID       string             `json:"source_id,omitempty"`
	SourceType     string             `json:"source_type,omitempty"`
	Participants   []ParticipantShare `json:"participants"`
	ApplyBonus     bool               `json:"apply_bonus"`
	IdempotencyKey string             `json:"-"`
}

func (r DistributionRequest) participants() []domain.Participant {
	out := make([]domain.Participant, len(r.Participants))
	for i, p := range r.Participants {
		out[i] = domain.Participant{ID: p.ID, Percentage: p.Percentage}
	}
	return out
}

// CreateDistribution splits a revenue pool. The payouts are system-funded
// revenue_sharing transactions, each paired with a receive event for the
// participant. Everything commits in one unit of work.
//
// Unknown participants and reused idempotency keys are rejected before
// anything is written. When the unit fails after that, a failed distribution
// row carrying the reason is written on its own and returned with the error.
func (s *Service) CreateDistribution(ctx context.Context, req DistributionRequest) (*domain.Distribution, error) {
	parts := req.participants()
	if err := distribution.Validate(req.TotalAmount, parts); err != nil {
		return nil, err
	}
	for _, p := range parts {
		if p.ID == domain.SystemAccountID {
			return nil, domain.Validationf("the system account cannot take part in a distribution")
		}
	}

	ctx, span := s.tracer.StartSpan(ctx, "distribution", map[string]string{
		"source": req.SourceID, "participants": fmt.Sprint(len(parts)),
	})

	now := s.now()
	d := domain.Distribution{
		ID:             s.newID(),
		TotalAmount:    req.TotalAmount,
		SourceID:       req.SourceID,
		SourceType:     req.SourceType,
		Status:         domain.DistributionPending,
		ApplyBonus:     req.ApplyBonus,
		Calculations:   []domain.Calculation{},
		TransactionIDs: []string{},
		CreatedAt:      now,
	}

	var replayed bool
	var rewards []domain.ThresholdReward
	err := s.store.Update(ctx, func(uow domain.UnitOfWork) error {
		rewards = nil
		if req.IdempotencyKey != "" {
			op, id, found, err := uow.LookupIdempotency(ctx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				if op != opDistribution {
					return domain.Validationf("idempotency key %q was used for a %s", req.IdempotencyKey, op)
				}
				stored, err := uow.Distribution(ctx, id)
				if err != nil {
					return err
				}
				d, replayed = stored, true
				return nil
			}
		}

		for _, p := range parts {
			if _, err := uow.Actor(ctx, p.ID); err != nil {
				return err
			}
		}

		if err := uow.InsertDistribution(ctx, d); err != nil {
			return err
		}
		d.Status = domain.DistributionProcessing
		if err := uow.UpdateDistribution(ctx, d); err != nil {
			return err
		}

		for i := range parts {
			score, err := s.scoreIn(ctx, uow, parts[i].ID, now)
			if err != nil {
				return err
			}
			parts[i].ReciprocityScore = score.CurrentScore
		}

		calcs, err := distribution.Distribute(req.TotalAmount, parts, req.ApplyBonus)
		if err != nil {
			return err
		}

		var txIDs []string
		var distributed int64
		for _, c := range calcs {
			distributed += c.FinalAmount
			if c.FinalAmount <= 0 {
				continue
			}
			tx := domain.Transaction{
				ID:             s.newID(),
				SenderID:       domain.SystemAccountID,
				RecipientID:    c.ParticipantID,
				Amount:         c.FinalAmount,
				OriginalAmount: c.BaseAmount,
				Type:           domain.TxRevenueSharing,
				Status:         domain.TxConfirmed,
				Description:    fmt.Sprintf("revenue share %.2f%%", c.Percentage),
				DistributionID: d.ID,
				CreatedAt:      now,
			}
			if err := uow.AppendTransaction(ctx, tx); err != nil {
				return err
			}
			txIDs = append(txIDs, tx.ID)

			ev := domain.ReciprocityEvent{
				ID:            s.newID(),
				Type:          domain.EventReceive,
				ActorID:       c.ParticipantID,
				Magnitude:     5,
				PointsAwarded: domain.PointsFor(domain.EventReceive, 5),
				Context:       string(domain.TxRevenueSharing),
				ResourceID:    d.ID,
				CreatedAt:     now,
			}
			_, reward, err := s.appendEvent(ctx, uow, ev)
			if err != nil {
				return err
			}
			if reward != nil {
				rewards = append(rewards, *reward)
			}
		}

		if remainder := req.TotalAmount - distributed; remainder != 0 {
			return fmt.Errorf("%w: %d units left undistributed", domain.ErrInvariantViolation, remainder)
		}

		completed := now
		d.Status = domain.DistributionCompleted
		d.Calculations = calcs
		d.TransactionIDs = txIDs
		d.TotalDistributed = distributed
		d.Remainder = 0
		d.CompletedAt = &completed
		if err := uow.UpdateDistribution(ctx, d); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			return uow.SaveIdempotency(ctx, req.IdempotencyKey, opDistribution, d.ID, now)
		}
		return nil
	})
	err = classify("distribution", err)
	s.tracer.EndSpan(span, err)

	if err != nil {
		if isInputError(err) {
			observability.Distributions.WithLabelValues("rejected").Inc()
			return nil, err
		}
		return s.failDistribution(ctx, d, err)
	}
	if replayed {
		observability.Distributions.WithLabelValues("replayed").Inc()
		d.Replayed = true
		return &d, nil
	}

	observability.Distributions.WithLabelValues(string(domain.DistributionCompleted)).Inc()
	observability.DistributionParticipants.Observe(float64(len(parts)))
	observability.UnitsIssued.WithLabelValues("distribution").Add(float64(d.TotalDistributed))
	s.log.Info("distribution completed",
		"distribution", d.ID, "total", d.TotalAmount, "participants", len(parts), "payouts", len(d.TransactionIDs))

	activities := []domain.Activity{{
		Kind:      domain.ActivityDistribution,
		SubjectID: d.ID,
		Amount:    d.TotalDistributed,
		Detail:    fmt.Sprintf("%d participants", len(parts)),
		Timestamp: now,
	}}
	s.publish(append(activities, s.logRewards(rewards)...))
	return &d, nil
}

// failDistribution records d as failed outside the rolled-back unit of work.
func (s *Service) failDistribution(ctx context.Context, d domain.Distribution, cause error) (*domain.Distribution, error) {
	observability.Distributions.WithLabelValues(string(domain.DistributionFailed)).Inc()
	if errors.Is(cause, domain.ErrInvariantViolation) {
		observability.InvariantViolations.Inc()
		s.log.Error("distribution invariant violated", "distribution", d.ID, "error", cause, "fatal", true)
	} else {
		s.log.Error("distribution failed", "distribution", d.ID, "error", cause)
	}

	failed := d
	failed.Status = domain.DistributionFailed
	failed.FailureReason = cause.Error()
	failed.Calculations = []domain.Calculation{}
	failed.TransactionIDs = []string{}
	failed.TotalDistributed = 0
	failed.Remainder = d.TotalAmount
	failed.CompletedAt = nil

	err := s.store.Update(context.WithoutCancel(ctx), func(uow domain.UnitOfWork) error {
		return uow.InsertDistribution(context.WithoutCancel(ctx), failed)
	})
	if err != nil {
		s.log.Error("record failed distribution", "distribution", d.ID, "error", err)
		return nil, cause
	}
	return &failed, cause
}

// GetDistribution returns a stored distribution with its payout transaction ids.
func (s *Service) GetDistribution(ctx context.Context, id string) (domain.Distribution, error) {
	var d domain.Distribution
	err := s.store.View(ctx, func(uow domain.UnitOfWork) error {
		var err error
		d, err = uow.Distribution(ctx, id)
		return err
	})
	return d, classify("get distribution", err)
}
