package economy

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/coomunity/ayni/internal/domain"
	"github.com/coomunity/ayni/internal/infra/dsa"
	"github.com/coomunity/ayni/internal/infra/reputation"
)

// MaxActorIDLength bounds actor identifiers.
const MaxActorIDLength = 64

// ─── Actors ─────────────────────────────────────────────────────────────────

// RegisterActor creates a participant identity.
func (s *Service) RegisterActor(ctx context.Context, id, displayName string) (domain.Actor, error) {
	if err := validateActorID(id); err != nil {
		return domain.Actor{}, err
	}
	if id == domain.SystemAccountID {
		return domain.Actor{}, domain.Validationf("actor id %q is reserved", id)
	}

	actor := domain.Actor{
		ID:          id,
		DisplayName: norm.NFC.String(strings.TrimSpace(displayName)),
		CreatedAt:   s.now(),
	}
	err := s.store.Update(ctx, func(uow domain.UnitOfWork) error {
		if _, err := uow.Actor(ctx, id); err == nil {
			return domain.Validationf("actor %s already exists", id)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return uow.InsertActor(ctx, actor)
	})
	if err != nil {
		return domain.Actor{}, classify("register actor", err)
	}
	s.log.Info("actor registered", "actor", id)
	return actor, nil
}

func validateActorID(id string) error {
	if id == "" {
		return domain.Validationf("actor id is empty")
	}
	if len(id) > MaxActorIDLength {
		return domain.Validationf("actor id longer than %d bytes", MaxActorIDLength)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return domain.Validationf("actor id %q contains whitespace or control characters", id)
		}
	}
	return nil
}

// GetActor returns one actor.
func (s *Service) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	var actor domain.Actor
	err := s.store.View(ctx, func(uow domain.UnitOfWork) error {
		var err error
		actor, err = uow.Actor(ctx, id)
		return err
	})
	return actor, classify("get actor", err)
}

// ─── Scores ─────────────────────────────────────────────────────────────────

// GetScore derives the actor's current score from its trailing event window.
func (s *Service) GetScore(ctx context.Context, actorID string) (domain.ReciprocityScore, error) {
	var score domain.ReciprocityScore
	now := s.now()
	err := s.store.View(ctx, func(uow domain.UnitOfWork) error {
		if _, err := uow.Actor(ctx, actorID); err != nil {
			return err
		}
		var err error
		score, err = s.scoreIn(ctx, uow, actorID, now)
		return err
	})
	return score, classify("get score", err)
}

// Leaderboard ranks actors by current score, best first. Ties rank by id.
// The system account is never ranked.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = domain.DefaultLeaderboardSize
	}
	top := dsa.NewTopK(limit, func(a, b domain.LeaderboardEntry) bool {
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ActorID < b.ActorID
	})

	now := s.now()
	err := s.store.View(ctx, func(uow domain.UnitOfWork) error {
		actors, err := uow.ListActors(ctx)
		if err != nil {
			return err
		}
		for _, a := range actors {
			if a.IsSystem() {
				continue
			}
			score, err := s.scoreIn(ctx, uow, a.ID, now)
			if err != nil {
				return err
			}
			top.Offer(domain.LeaderboardEntry{
				ActorID:      a.ID,
				DisplayName:  a.DisplayName,
				Score:        score.CurrentScore,
				Tier:         score.Tier,
				TotalActions: score.TotalActions,
			})
		}
		return nil
	})
	if err != nil {
		return nil, classify("leaderboard", err)
	}

	entries := top.Sorted()
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// ─── History ────────────────────────────────────────────────────────────────

// Events returns the actor's events in [from, to]. Zero bounds default to
// the scoring window ending now.
func (s *Service) Events(ctx context.Context, actorID string, from, to time.Time) ([]domain.ReciprocityEvent, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = reputation.WindowStart(to, s.config.ScoreWindow)
	}
	if from.After(to) {
		return nil, domain.Validationf("from %s is after to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	var evs []domain.ReciprocityEvent
	err := s.store.View(ctx, func(uow domain.UnitOfWork) error {
		if _, err := uow.Actor(ctx, actorID); err != nil {
			return err
		}
		var err error
		evs, err = uow.EventsByActor(ctx, actorID, from, to)
		return err
	})
	return evs, classify("events", err)
}

// Transactions returns the actor's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, actorID string, limit int) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := s.store.View(ctx, func(uow domain.UnitOfWork) error {
		if _, err := uow.Actor(ctx, actorID); err != nil {
			return err
		}
		var err error
		txs, err = uow.TransactionsByActor(ctx, actorID, limit)
		return err
	})
	return txs, classify("transactions", err)
}

// GetBalance folds the actor's confirmed and pending transactions.
func (s *Service) GetBalance(ctx context.Context, actorID string) (domain.Balance, error) {
	var bal domain.Balance
	err := s.store.View(ctx, func(uow domain.UnitOfWork) error {
		if _, err := uow.Actor(ctx, actorID); err != nil {
			return err
		}
		var err error
		bal, err = uow.Balance(ctx, actorID)
		return err
	})
	return bal, classify("balance", err)
}
