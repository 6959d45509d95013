package economy

import (
	"context"

	"github.com/coomunity/ayni/internal/domain"
)

// RecordEventRequest describes one behavioral action.
type RecordEventRequest struct {
	Type        domain.EventType `json:"event_type"`
	ActorID     string           `json:"actor_id"`
	RecipientID string           `json:"recipient_id,omitempty"`
	Magnitude   int              `json:"magnitude"`
	Context     string           `json:"context,omitempty"`
	ResourceID  string           `json:"resource_id,omitempty"`
}

// RecordEventResult is the appended event plus the actor's new standing.
type RecordEventResult struct {
	Event  domain.ReciprocityEvent `json:"event"`
	Score  domain.ReciprocityScore `json:"score"`
	Reward *domain.ThresholdReward `json:"reward,omitempty"`
}

// RecordEvent appends an event and rescores the actor in one unit of work.
// A reward is returned the first time the actor's tier threshold is reached.
func (s *Service) RecordEvent(ctx context.Context, req RecordEventRequest) (*RecordEventResult, error) {
	if _, err := domain.ParseEventType(string(req.Type)); err != nil {
		return nil, err
	}
	if err := domain.ValidateMagnitude(req.Magnitude); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		return nil, domain.Validationf("actor id is empty")
	}
	if req.ActorID == domain.SystemAccountID {
		return nil, domain.Validationf("the system account does not record events")
	}
	if req.RecipientID == req.ActorID {
		return nil, domain.Validationf("actor cannot be its own recipient")
	}

	ctx, span := s.tracer.StartSpan(ctx, "record_event", map[string]string{
		"actor": req.ActorID, "type": string(req.Type),
	})

	now := s.now()
	ev := domain.ReciprocityEvent{
		ID:            s.newID(),
		Type:          req.Type,
		ActorID:       req.ActorID,
		RecipientID:   req.RecipientID,
		Magnitude:     req.Magnitude,
		PointsAwarded: domain.PointsFor(req.Type, req.Magnitude),
		Context:       req.Context,
		ResourceID:    req.ResourceID,
		CreatedAt:     now,
	}

	var result RecordEventResult
	err := s.store.Update(ctx, func(uow domain.UnitOfWork) error {
		if _, err := uow.Actor(ctx, req.ActorID); err != nil {
			return err
		}
		if req.RecipientID != "" {
			if _, err := uow.Actor(ctx, req.RecipientID); err != nil {
				return err
			}
		}
		score, reward, err := s.appendEvent(ctx, uow, ev)
		if err != nil {
			return err
		}
		result = RecordEventResult{Event: ev, Score: score, Reward: reward}
		return nil
	})
	err = classify("record event", err)
	s.tracer.EndSpan(span, err)
	if err != nil {
		if !isInputError(err) {
			s.log.Error("record event failed", "actor", req.ActorID, "error", err)
		}
		return nil, err
	}

	s.log.Debug("event recorded",
		"actor", ev.ActorID, "type", string(ev.Type), "points", ev.PointsAwarded, "score", result.Score.CurrentScore)

	activities := []domain.Activity{{
		Kind:      domain.ActivityEvent,
		ActorID:   ev.ActorID,
		SubjectID: ev.ID,
		Amount:    ev.PointsAwarded,
		Detail:    string(ev.Type),
		Timestamp: now,
	}}
	if result.Reward != nil {
		activities = append(activities, s.logRewards([]domain.ThresholdReward{*result.Reward})...)
	}
	s.publish(activities)
	return &result, nil
}
