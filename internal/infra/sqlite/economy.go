package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coomunity/ayni/internal/domain"
)

// ─── Economy Schema ─────────────────────────────────────────────────────────

// EconomyMigrations returns the economy schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
// Timestamps are unix nanoseconds.
func EconomyMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS actors (
			id                      TEXT PRIMARY KEY,
			display_name            TEXT NOT NULL DEFAULT '',
			last_score              INTEGER NOT NULL DEFAULT 0,
			last_rewarded_threshold INTEGER NOT NULL DEFAULT 0,
			state_version           INTEGER NOT NULL DEFAULT 0,
			created_at              INTEGER NOT NULL
		)`,

		// The system account funds bonuses, grants and payouts.
		`INSERT OR IGNORE INTO actors (id, display_name, created_at)
			VALUES ('system', 'System Account', 0)`,

		// Reciprocity events: append-only.
		`CREATE TABLE IF NOT EXISTS reciprocity_events (
			seq            INTEGER PRIMARY KEY AUTOINCREMENT,
			id             TEXT NOT NULL UNIQUE,
			event_type     TEXT NOT NULL,
			actor_id       TEXT NOT NULL REFERENCES actors(id),
			recipient_id   TEXT NOT NULL DEFAULT '',
			magnitude      INTEGER NOT NULL CHECK (magnitude BETWEEN 1 AND 10),
			points_awarded INTEGER NOT NULL DEFAULT 0 CHECK (points_awarded >= 0),
			context        TEXT NOT NULL DEFAULT '',
			resource_id    TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_actor_time ON reciprocity_events(actor_id, created_at)`,
		`CREATE TRIGGER IF NOT EXISTS reciprocity_events_no_update
			BEFORE UPDATE ON reciprocity_events
			BEGIN SELECT RAISE(ABORT, 'reciprocity events are append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS reciprocity_events_no_delete
			BEFORE DELETE ON reciprocity_events
			BEGIN SELECT RAISE(ABORT, 'reciprocity events are append-only'); END`,

		// Ledger: confirmed rows are immutable, nothing is ever deleted.
		`CREATE TABLE IF NOT EXISTS transactions (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			sender_id       TEXT NOT NULL REFERENCES actors(id),
			recipient_id    TEXT NOT NULL REFERENCES actors(id),
			amount          INTEGER NOT NULL CHECK (amount >= 0),
			original_amount INTEGER NOT NULL CHECK (original_amount >= 0),
			tx_type         TEXT NOT NULL,
			status          TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			distribution_id TEXT NOT NULL DEFAULT '',
			parent_id       TEXT NOT NULL DEFAULT '',
			reversal_of     TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL,
			CHECK (sender_id <> recipient_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_sender ON transactions(sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_recipient ON transactions(recipient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_distribution ON transactions(distribution_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_parent ON transactions(parent_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_reversal_once
			ON transactions(reversal_of) WHERE reversal_of <> ''`,
		`CREATE TRIGGER IF NOT EXISTS transactions_confirmed_immutable
			BEFORE UPDATE ON transactions WHEN OLD.status = 'confirmed'
			BEGIN SELECT RAISE(ABORT, 'confirmed transactions are immutable'); END`,
		`CREATE TRIGGER IF NOT EXISTS transactions_no_delete
			BEFORE DELETE ON transactions
			BEGIN SELECT RAISE(ABORT, 'transactions are never deleted'); END`,

		`CREATE TABLE IF NOT EXISTS distributions (
			id                TEXT PRIMARY KEY,
			total_amount      INTEGER NOT NULL CHECK (total_amount > 0),
			source_id         TEXT NOT NULL DEFAULT '',
			source_type       TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL,
			apply_bonus       INTEGER NOT NULL DEFAULT 0,
			calculations_json TEXT NOT NULL DEFAULT '[]',
			total_distributed INTEGER NOT NULL DEFAULT 0,
			remainder         INTEGER NOT NULL DEFAULT 0,
			failure_reason    TEXT NOT NULL DEFAULT '',
			created_at        INTEGER NOT NULL,
			completed_at      INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key        TEXT PRIMARY KEY,
			operation  TEXT NOT NULL,
			result_id  TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ─── Actor Operations ───────────────────────────────────────────────────────

// InsertActor registers a new actor.
func (t *Tx) InsertActor(ctx context.Context, a domain.Actor) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO actors (id, display_name, last_score, last_rewarded_threshold, state_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.DisplayName, a.LastScore, a.LastRewardedThreshold, a.StateVersion, toNanos(a.CreatedAt))
	return err
}

const actorColumns = `id, display_name, last_score, last_rewarded_threshold, state_version, created_at`

func scanActor(row interface{ Scan(...any) error }) (domain.Actor, error) {
	var a domain.Actor
	var created int64
	err := row.Scan(&a.ID, &a.DisplayName, &a.LastScore, &a.LastRewardedThreshold, &a.StateVersion, &created)
	a.CreatedAt = fromNanos(created)
	return a, err
}

// Actor returns one actor or domain.ErrNotFound.
func (t *Tx) Actor(ctx context.Context, id string) (domain.Actor, error) {
	a, err := scanActor(t.tx.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Actor{}, domain.NotFoundf("actor %s", id)
	}
	return a, err
}

// ListActors returns every actor including the system account, by id.
func (t *Tx) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+actorColumns+` FROM actors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateActorState advances the threshold state if the version still matches.
func (t *Tx) UpdateActorState(ctx context.Context, id string, lastScore, lastRewardedThreshold int, expectedVersion int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE actors
		SET last_score = ?, last_rewarded_threshold = ?, state_version = state_version + 1
		WHERE id = ? AND state_version = ?
	`, lastScore, lastRewardedThreshold, id, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: actor %s at version %d", domain.ErrStateConflict, id, expectedVersion)
	}
	return nil
}

// ─── Event Operations ───────────────────────────────────────────────────────

// AppendEvent adds one event to the log.
func (t *Tx) AppendEvent(ctx context.Context, ev domain.ReciprocityEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO reciprocity_events
			(id, event_type, actor_id, recipient_id, magnitude, points_awarded, context, resource_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, string(ev.Type), ev.ActorID, ev.RecipientID, ev.Magnitude, ev.PointsAwarded,
		ev.Context, ev.ResourceID, toNanos(ev.CreatedAt))
	return err
}

// EventsByActor returns the actor's events in [from, to], oldest first.
func (t *Tx) EventsByActor(ctx context.Context, actorID string, from, to time.Time) ([]domain.ReciprocityEvent, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, event_type, actor_id, recipient_id, magnitude, points_awarded, context, resource_id, created_at
		FROM reciprocity_events
		WHERE actor_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at, seq
	`, actorID, toNanos(from), toNanos(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReciprocityEvent
	for rows.Next() {
		var ev domain.ReciprocityEvent
		var typ string
		var created int64
		if err := rows.Scan(&ev.ID, &typ, &ev.ActorID, &ev.RecipientID, &ev.Magnitude,
			&ev.PointsAwarded, &ev.Context, &ev.ResourceID, &created); err != nil {
			return nil, err
		}
		ev.Type = domain.EventType(typ)
		ev.CreatedAt = fromNanos(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ─── Ledger Operations ──────────────────────────────────────────────────────

const txColumns = `id, sender_id, recipient_id, amount, original_amount, tx_type, status,
	description, distribution_id, parent_id, reversal_of, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var tx domain.Transaction
	var typ, status string
	var created int64
	err := row.Scan(&tx.ID, &tx.SenderID, &tx.RecipientID, &tx.Amount, &tx.OriginalAmount, &typ, &status,
		&tx.Description, &tx.DistributionID, &tx.ParentID, &tx.ReversalOf, &created)
	tx.Type = domain.TransactionType(typ)
	tx.Status = domain.TransactionStatus(status)
	tx.CreatedAt = fromNanos(created)
	return tx, err
}

func (t *Tx) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// AppendTransaction writes one ledger entry.
func (t *Tx) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.SenderID, tx.RecipientID, tx.Amount, tx.OriginalAmount, string(tx.Type), string(tx.Status),
		tx.Description, tx.DistributionID, tx.ParentID, tx.ReversalOf, toNanos(tx.CreatedAt))
	return err
}

// Transaction returns one ledger entry or domain.ErrNotFound.
func (t *Tx) Transaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := scanTransaction(t.tx.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, domain.NotFoundf("transaction %s", id)
	}
	return tx, err
}

// TransactionsByActor returns entries where the actor is either side, newest first.
func (t *Tx) TransactionsByActor(ctx context.Context, actorID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	return t.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE sender_id = ? OR recipient_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, actorID, actorID, limit)
}

// AllTransactions returns the whole ledger in append order.
func (t *Tx) AllTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return t.queryTransactions(ctx, `SELECT `+txColumns+` FROM transactions ORDER BY seq`)
}

// ChildTransactions returns entries linked to parentID, in append order.
func (t *Tx) ChildTransactions(ctx context.Context, parentID string) ([]domain.Transaction, error) {
	return t.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE parent_id = ? ORDER BY seq
	`, parentID)
}

// ReversalOf returns the compensating entry for id, if any.
func (t *Tx) ReversalOf(ctx context.Context, id string) (domain.Transaction, bool, error) {
	tx, err := scanTransaction(t.tx.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE reversal_of = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, err
	}
	return tx, true, nil
}

// Balance folds the actor's ledger entries. Nothing is cached.
func (t *Tx) Balance(ctx context.Context, actorID string) (domain.Balance, error) {
	b := domain.Balance{ActorID: actorID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'confirmed' AND recipient_id = ? THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'confirmed' AND sender_id = ? THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'pending' AND recipient_id = ? THEN amount ELSE 0 END), 0) -
			COALESCE(SUM(CASE WHEN status = 'pending' AND sender_id = ? THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE sender_id = ? OR recipient_id = ?
	`, actorID, actorID, actorID, actorID, actorID, actorID).Scan(&b.TotalEarned, &b.TotalSpent, &b.PendingBalance)
	if err != nil {
		return domain.Balance{}, err
	}
	b.CurrentBalance = b.TotalEarned - b.TotalSpent
	return b, nil
}

// ─── Distribution Operations ────────────────────────────────────────────────

// InsertDistribution creates a distribution record.
func (t *Tx) InsertDistribution(ctx context.Context, d domain.Distribution) error {
	calcs, err := json.Marshal(d.Calculations)
	if err != nil {
		return fmt.Errorf("encode calculations: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO distributions
			(id, total_amount, source_id, source_type, status, apply_bonus, calculations_json,
			 total_distributed, remainder, failure_reason, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.TotalAmount, d.SourceID, d.SourceType, string(d.Status), boolInt(d.ApplyBonus), string(calcs),
		d.TotalDistributed, d.Remainder, d.FailureReason, toNanos(d.CreatedAt), completedNanos(d.CompletedAt))
	return err
}

// UpdateDistribution stores the mutable fields of a distribution.
func (t *Tx) UpdateDistribution(ctx context.Context, d domain.Distribution) error {
	calcs, err := json.Marshal(d.Calculations)
	if err != nil {
		return fmt.Errorf("encode calculations: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE distributions
		SET status = ?, calculations_json = ?, total_distributed = ?, remainder = ?,
			failure_reason = ?, completed_at = ?
		WHERE id = ?
	`, string(d.Status), string(calcs), d.TotalDistributed, d.Remainder, d.FailureReason,
		completedNanos(d.CompletedAt), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("distribution %s", d.ID)
	}
	return nil
}

// Distribution loads a distribution and the ids of its payout transactions.
func (t *Tx) Distribution(ctx context.Context, id string) (domain.Distribution, error) {
	var d domain.Distribution
	var status, calcs string
	var applyBonus int
	var created int64
	var completed sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, total_amount, source_id, source_type, status, apply_bonus, calculations_json,
			total_distributed, remainder, failure_reason, created_at, completed_at
		FROM distributions WHERE id = ?
	`, id).Scan(&d.ID, &d.TotalAmount, &d.SourceID, &d.SourceType, &status, &applyBonus, &calcs,
		&d.TotalDistributed, &d.Remainder, &d.FailureReason, &created, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Distribution{}, domain.NotFoundf("distribution %s", id)
	}
	if err != nil {
		return domain.Distribution{}, err
	}
	d.Status = domain.DistributionStatus(status)
	d.ApplyBonus = applyBonus == 1
	d.CreatedAt = fromNanos(created)
	if completed.Valid {
		at := fromNanos(completed.Int64)
		d.CompletedAt = &at
	}
	if err := json.Unmarshal([]byte(calcs), &d.Calculations); err != nil {
		return domain.Distribution{}, fmt.Errorf("decode calculations: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM transactions WHERE distribution_id = ? ORDER BY seq`, id)
	if err != nil {
		return domain.Distribution{}, err
	}
	defer rows.Close()
	d.TransactionIDs = []string{}
	for rows.Next() {
		var txID string
		if err := rows.Scan(&txID); err != nil {
			return domain.Distribution{}, err
		}
		d.TransactionIDs = append(d.TransactionIDs, txID)
	}
	return d, rows.Err()
}

func completedNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toNanos(*t)
}

// ─── Idempotency Operations ─────────────────────────────────────────────────

// LookupIdempotency returns the operation and result stored under key.
func (t *Tx) LookupIdempotency(ctx context.Context, key string) (string, string, bool, error) {
	var op, result string
	err := t.tx.QueryRowContext(ctx, `SELECT operation, result_id FROM idempotency_keys WHERE key = ?`, key).
		Scan(&op, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return op, result, true, nil
}

// SaveIdempotency records the result of the first call made with key.
func (t *Tx) SaveIdempotency(ctx context.Context, key, operation, resultID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, operation, result_id, created_at) VALUES (?, ?, ?, ?)
	`, key, operation, resultID, toNanos(at))
	return err
}
