package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Store runs units of work. Update commits only if fn returns nil;
// View never commits. Units of work are serialized against each other.
type Store interface {
	Update(ctx context.Context, fn func(UnitOfWork) error) error
	View(ctx context.Context, fn func(UnitOfWork) error) error
}

// UnitOfWork is the transactional view handed to Store callbacks.
type UnitOfWork interface {
	ActorStore
	EventLog
	Ledger
	DistributionStore
	IdempotencyStore
}

// ActorStore persists actors and their threshold-reward state.
type ActorStore interface {
	InsertActor(ctx context.Context, a Actor) error
	Actor(ctx context.Context, id string) (Actor, error) // ErrNotFound when absent
	ListActors(ctx context.Context) ([]Actor, error)
	// UpdateActorState is a compare-and-set on StateVersion.
	// Returns ErrStateConflict when the version moved.
	UpdateActorState(ctx context.Context, id string, lastScore, lastRewardedThreshold int, expectedVersion int64) error
}

// EventLog is the append-only reciprocity event history.
type EventLog interface {
	AppendEvent(ctx context.Context, ev ReciprocityEvent) error
	// EventsByActor returns events with from ≤ created_at ≤ to, oldest first.
	EventsByActor(ctx context.Context, actorID string, from, to time.Time) ([]ReciprocityEvent, error)
}

// Ledger is the append-only transaction log.
type Ledger interface {
	AppendTransaction(ctx context.Context, tx Transaction) error
	Transaction(ctx context.Context, id string) (Transaction, error) // ErrNotFound when absent
	// TransactionsByActor returns newest first. limit ≤ 0 means all.
	TransactionsByActor(ctx context.Context, actorID string, limit int) ([]Transaction, error)
	AllTransactions(ctx context.Context) ([]Transaction, error)
	ChildTransactions(ctx context.Context, parentID string) ([]Transaction, error)
	ReversalOf(ctx context.Context, id string) (Transaction, bool, error)
	Balance(ctx context.Context, actorID string) (Balance, error)
}

// DistributionStore persists distribution records.
type DistributionStore interface {
	InsertDistribution(ctx context.Context, d Distribution) error
	UpdateDistribution(ctx context.Context, d Distribution) error
	Distribution(ctx context.Context, id string) (Distribution, error) // ErrNotFound when absent
}

// IdempotencyStore maps client keys to the result of the first call.
type IdempotencyStore interface {
	LookupIdempotency(ctx context.Context, key string) (operation, resultID string, found bool, err error)
	SaveIdempotency(ctx context.Context, key, operation, resultID string, at time.Time) error
}

// ActivityPublisher receives committed economy activity for live fan-out.
type ActivityPublisher interface {
	Publish(a Activity)
}
