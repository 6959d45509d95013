// Package economy orchestrates the reciprocity economy.
//
// Every composite operation (recording an event, a transfer, a revenue
// distribution, a reversal) runs as one unit of work against the store:
// the reads it depends on and all of its writes commit together or not at
// all. Live activity is published only after a successful commit.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coomunity/ayni/internal/domain"
	"github.com/coomunity/ayni/internal/infra/observability"
	"github.com/coomunity/ayni/internal/infra/reputation"
)

// Config controls economy behavior.
type Config struct {
	ScoreWindow    time.Duration // Trailing window scores are computed over (default: 365d)
	RewardPerPoint int64         // Threshold reward = threshold × RewardPerPoint (default: 10)
}

// DefaultConfig returns the standard economy settings.
func DefaultConfig() Config {
	return Config{
		ScoreWindow:    reputation.DefaultWindow,
		RewardPerPoint: 10,
	}
}

// Service is the entry point for every economy operation.
type Service struct {
	store  domain.Store
	config Config
	log    *slog.Logger
	tracer *observability.Tracer
	feed   domain.ActivityPublisher

	// Injectable for testing.
	now   func() time.Time
	newID func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// WithTracer records spans for composite operations.
func WithTracer(t *observability.Tracer) Option { return func(s *Service) { s.tracer = t } }

// WithPublisher receives committed activity.
func WithPublisher(p domain.ActivityPublisher) Option { return func(s *Service) { s.feed = p } }

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates an economy service over store.
func New(store domain.Store, cfg Config, opts ...Option) *Service {
	if cfg.ScoreWindow <= 0 {
		cfg.ScoreWindow = reputation.DefaultWindow
	}
	if cfg.RewardPerPoint < 0 {
		cfg.RewardPerPoint = 0
	}
	s := &Service{
		store:  store,
		config: cfg,
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  newID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the active configuration.
func (s *Service) Config() Config { return s.config }

// newID returns a time-ordered UUIDv7.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// classify keeps domain errors as they are and marks everything else
// coming out of the store as a persistence failure.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInvariantViolation),
		errors.Is(err, domain.ErrPersistence):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
	}
}

// isInputError reports whether err was caused by the caller's request.
func isInputError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInsufficientBalance)
}

func (s *Service) publish(activities []domain.Activity) {
	if s.feed == nil {
		return
	}
	for _, a := range activities {
		s.feed.Publish(a)
	}
}

// scoreIn computes the actor's score inside a unit of work.
func (s *Service) scoreIn(ctx context.Context, uow domain.UnitOfWork, actorID string, now time.Time) (domain.ReciprocityScore, error) {
	evs, err := uow.EventsByActor(ctx, actorID, reputation.WindowStart(now, s.config.ScoreWindow), now)
	if err != nil {
		return domain.ReciprocityScore{}, err
	}
	score := reputation.ComputeScore(evs, now)
	score.ActorID = actorID
	observability.ScoreComputations.Inc()
	observability.ScoreValues.Observe(float64(score.CurrentScore))
	return score, nil
}

// appendEvent writes ev, rescores the actor and advances its durable
// threshold state. Returns a reward when a tier is reached for the first time.
func (s *Service) appendEvent(ctx context.Context, uow domain.UnitOfWork, ev domain.ReciprocityEvent) (domain.ReciprocityScore, *domain.ThresholdReward, error) {
	if err := uow.AppendEvent(ctx, ev); err != nil {
		return domain.ReciprocityScore{}, nil, err
	}
	actor, err := uow.Actor(ctx, ev.ActorID)
	if err != nil {
		return domain.ReciprocityScore{}, nil, err
	}
	score, err := s.scoreIn(ctx, uow, ev.ActorID, ev.CreatedAt)
	if err != nil {
		return domain.ReciprocityScore{}, nil, err
	}

	rewarded := actor.LastRewardedThreshold
	var reward *domain.ThresholdReward
	if threshold := score.Tier.Threshold(); threshold > rewarded {
		reward = &domain.ThresholdReward{
			ActorID:   actor.ID,
			Tier:      score.Tier,
			Threshold: threshold,
			Amount:    int64(threshold) * s.config.RewardPerPoint,
			ReachedAt: ev.CreatedAt,
		}
		rewarded = threshold
	}
	if err := uow.UpdateActorState(ctx, actor.ID, score.CurrentScore, rewarded, actor.StateVersion); err != nil {
		return domain.ReciprocityScore{}, nil, err
	}
	observability.EventsRecorded.WithLabelValues(string(ev.Type)).Inc()
	return score, reward, nil
}

func rewardActivity(r domain.ThresholdReward) domain.Activity {
	return domain.Activity{
		Kind:      domain.ActivityMilestone,
		ActorID:   r.ActorID,
		Amount:    r.Amount,
		Detail:    fmt.Sprintf("reached %s (score ≥ %d)", r.Tier, r.Threshold),
		Timestamp: r.ReachedAt,
	}
}

func (s *Service) logRewards(rewards []domain.ThresholdReward) []domain.Activity {
	out := make([]domain.Activity, 0, len(rewards))
	for _, r := range rewards {
		observability.ThresholdRewards.WithLabelValues(r.Tier.String()).Inc()
		s.log.Info("threshold reached",
			"actor", r.ActorID, "tier", r.Tier.String(), "threshold", r.Threshold, "reward", r.Amount)
		out = append(out, rewardActivity(r))
	}
	return out
}
