package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coomunity/ayni/internal/domain"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustUpdate(t *testing.T, db *DB, fn func(domain.UnitOfWork) error) {
	t.Helper()
	if err := db.Update(context.Background(), fn); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
}

func seedActors(t *testing.T, db *DB, ids ...string) {
	t.Helper()
	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		for _, id := range ids {
			if err := uow.InsertActor(context.Background(), domain.Actor{ID: id, DisplayName: id, CreatedAt: t0}); err != nil {
				return err
			}
		}
		return nil
	})
}

func transfer(id, from, to string, amount int64, status domain.TransactionStatus) domain.Transaction {
	return domain.Transaction{
		ID:             id,
		SenderID:       from,
		RecipientID:    to,
		Amount:         amount,
		OriginalAmount: amount,
		Type:           domain.TxTransfer,
		Status:         status,
		CreatedAt:      t0,
	}
}

// ─── Schema Tests ───────────────────────────────────────────────────────────

func TestOpen_TablesExist(t *testing.T) {
	db := newTestDB(t)

	tables := []string{"actors", "reciprocity_events", "transactions", "distributions", "idempotency_keys"}
	for _, table := range tables {
		var count int
		err := db.db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found in database", table)
		}
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	seedActors(t, db, "ana")
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	err = db.View(context.Background(), func(uow domain.UnitOfWork) error {
		_, err := uow.Actor(context.Background(), "ana")
		return err
	})
	if err != nil {
		t.Errorf("actor lost across reopen: %v", err)
	}
}

func TestOpen_SeedsSystemAccount(t *testing.T) {
	db := newTestDB(t)
	err := db.View(context.Background(), func(uow domain.UnitOfWork) error {
		a, err := uow.Actor(context.Background(), domain.SystemAccountID)
		if err != nil {
			return err
		}
		if !a.IsSystem() {
			t.Errorf("IsSystem() = false for %q", a.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// ─── Actor Tests ────────────────────────────────────────────────────────────

func TestActor_NotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.View(context.Background(), func(uow domain.UnitOfWork) error {
		_, err := uow.Actor(context.Background(), "ghost")
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateActorState_CompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	seedActors(t, db, "ana")
	ctx := context.Background()

	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		return uow.UpdateActorState(ctx, "ana", 25, 21, 0)
	})

	err := db.Update(ctx, func(uow domain.UnitOfWork) error {
		return uow.UpdateActorState(ctx, "ana", 50, 41, 0) // stale
	})
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("stale CAS err = %v, want ErrStateConflict", err)
	}

	db.View(ctx, func(uow domain.UnitOfWork) error {
		a, _ := uow.Actor(ctx, "ana")
		if a.LastScore != 25 || a.LastRewardedThreshold != 21 || a.StateVersion != 1 {
			t.Errorf("actor state = %+v, want score 25 threshold 21 version 1", a)
		}
		return nil
	})
}

// ─── Event Tests ────────────────────────────────────────────────────────────

func TestEventsByActor_Window(t *testing.T) {
	db := newTestDB(t)
	seedActors(t, db, "ana", "luis")
	ctx := context.Background()

	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		for i, at := range []time.Time{t0.Add(-400 * 24 * time.Hour), t0.Add(-time.Hour), t0} {
			ev := domain.ReciprocityEvent{
				ID: "ev-" + string(rune('a'+i)), Type: domain.EventGive, ActorID: "ana",
				RecipientID: "luis", Magnitude: 5, PointsAwarded: 10, CreatedAt: at,
			}
			if err := uow.AppendEvent(ctx, ev); err != nil {
				return err
			}
		}
		return uow.AppendEvent(ctx, domain.ReciprocityEvent{
			ID: "ev-luis", Type: domain.EventReceive, ActorID: "luis", Magnitude: 5, CreatedAt: t0,
		})
	})

	db.View(ctx, func(uow domain.UnitOfWork) error {
		evs, err := uow.EventsByActor(ctx, "ana", t0.Add(-365*24*time.Hour), t0)
		if err != nil {
			t.Fatal(err)
		}
		if len(evs) != 2 {
			t.Fatalf("events = %d, want 2", len(evs))
		}
		if evs[0].ID != "ev-b" || evs[1].ID != "ev-c" {
			t.Errorf("order = %s,%s, want ev-b,ev-c", evs[0].ID, evs[1].ID)
		}
		if !evs[1].CreatedAt.Equal(t0) || evs[1].RecipientID != "luis" || evs[1].PointsAwarded != 10 {
			t.Errorf("round trip lost fields: %+v", evs[1])
		}
		return nil
	})
}

func TestEvents_AppendOnly(t *testing.T) {
	db := newTestDB(t)
	seedActors(t, db, "ana")
	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		return uow.AppendEvent(context.Background(), domain.ReciprocityEvent{
			ID: "ev-1", Type: domain.EventGive, ActorID: "ana", Magnitude: 5, CreatedAt: t0,
		})
	})

	if _, err := db.db.Exec(`UPDATE reciprocity_events SET magnitude = 9`); err == nil {
		t.Error("UPDATE on events should be rejected")
	}
	if _, err := db.db.Exec(`DELETE FROM reciprocity_events`); err == nil {
		t.Error("DELETE on events should be rejected")
	}
}

func TestAppendEvent_RejectsUnknownActor(t *testing.T) {
	db := newTestDB(t)
	err := db.Update(context.Background(), func(uow domain.UnitOfWork) error {
		return uow.AppendEvent(context.Background(), domain.ReciprocityEvent{
			ID: "ev-1", Type: domain.EventGive, ActorID: "ghost", Magnitude: 5, CreatedAt: t0,
		})
	})
	if err == nil {
		t.Error("foreign key on actor_id should reject unknown actor")
	}
}

// ─── Ledger Tests ───────────────────────────────────────────────────────────

func TestBalance_Fold(t *testing.T) {
	db := newTestDB(t)
	seedActors(t, db, "ana", "luis")
	ctx := context.Background()

	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		txs := []domain.Transaction{
			transfer("t1", domain.SystemAccountID, "ana", 100, domain.TxConfirmed),
			transfer("t2", "ana", "luis", 30, domain.TxConfirmed),
			transfer("t3", "luis", "ana", 5, domain.TxPending),
			transfer("t4", "ana", "luis", 999, domain.TxFailed),
		}
		for _, tx := range txs {
			if err := uow.AppendTransaction(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})

	db.View(ctx, func(uow domain.UnitOfWork) error {
		b, err := uow.Balance(ctx, "ana")
		if err != nil {
			t.Fatal(err)
		}
		want := domain.Balance{ActorID: "ana", CurrentBalance: 70, PendingBalance: 5, TotalEarned: 100, TotalSpent: 30}
		if b != want {
			t.Errorf("Balance = %+v, want %+v", b, want)
		}

		sys, _ := uow.Balance(ctx, domain.SystemAccountID)
		if sys.CurrentBalance != -100 {
			t.Errorf("system balance = %d, want -100", sys.CurrentBalance)
		}

		// SQL fold agrees with the in-memory fold over the same log.
		all, _ := uow.AllTransactions(ctx)
		replay := domain.Balance{ActorID: "ana"}
		for _, tx := range all {
			replay.Apply(tx)
		}
		if replay != b {
			t.Errorf("replay = %+v, SQL fold = %+v", replay, b)
		}
		return nil
	})
}

func TestTransactionsByActor_NewestFirstWithLimit(t *testing.T) {
	db := newTestDB(t)
	seedActors(t, db, "ana", "luis")
	ctx := context.Background()

	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		for _, id := range []string{"t1", "t2", "t3"} {
			if err := uow.AppendTransaction(ctx, transfer(id, domain.SystemAccountID, "ana", 10, domain.TxConfirmed)); err != nil {
				return err
			}
		}
		return nil
	})

	db.View(ctx, func(uow domain.UnitOfWork) error {
		txs, err := uow.TransactionsByActor(ctx, "ana", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(txs) != 2 || txs[0].ID != "t3" || txs[1].ID != "t2" {
			t.Errorf("got %v, want [t3 t2]", ids(txs))
		}
		all, _ := uow.TransactionsByActor(ctx, "ana", 0)
		if len(all) != 3 {
			t.Errorf("unlimited = %d, want 3", len(all))
		}
		none, _ := uow.TransactionsByActor(ctx, "luis", 0)
		if len(none) != 0 {
			t.Errorf("luis = %d, want 0", len(none))
		}
		return nil
	})
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func TestTransactions_ConfirmedImmutable(t *testing.T) {
	db := newTestDB(t)
	seedActors(t, db, "ana")
	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		return uow.AppendTransaction(context.Background(), transfer("t1", domain.SystemAccountID, "ana", 10, domain.TxConfirmed))
	})

	if _, err := db.db.Exec(`UPDATE transactions SET amount = 1000 WHERE id = 't1'`); err == nil {
		t.Error("UPDATE of a confirmed transaction should be rejected")
	}
	if _, err := db.db.Exec(`DELETE FROM transactions`); err == nil {
		t.Error("DELETE of transactions should be rejected")
	}
}

func TestReversalOf_OnlyOnce(t *testing.T) {
	db := newTestDB(t)
	seedActors(t, db, "ana", "luis")
	ctx := context.Background()

	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		if err := uow.AppendTransaction(ctx, transfer("t1", "ana", "luis", 10, domain.TxConfirmed)); err != nil {
			return err
		}
		rev := transfer("r1", "luis", "ana", 10, domain.TxConfirmed)
		rev.ReversalOf = "t1"
		return uow.AppendTransaction(ctx, rev)
	})

	db.View(ctx, func(uow domain.UnitOfWork) error {
		rev, found, err := uow.ReversalOf(ctx, "t1")
		if err != nil || !found || rev.ID != "r1" {
			t.Errorf("ReversalOf = %v, %v, %v", rev.ID, found, err)
		}
		_, found, _ = uow.ReversalOf(ctx, "r1")
		if found {
			t.Error("r1 has no reversal")
		}
		return nil
	})

	err := db.Update(ctx, func(uow domain.UnitOfWork) error {
		rev := transfer("r2", "luis", "ana", 10, domain.TxConfirmed)
		rev.ReversalOf = "t1"
		return uow.AppendTransaction(ctx, rev)
	})
	if err == nil {
		t.Error("second reversal of t1 should violate the unique index")
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	seedActors(t, db, "ana")
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.Update(ctx, func(uow domain.UnitOfWork) error {
		if err := uow.AppendTransaction(ctx, transfer("t1", domain.SystemAccountID, "ana", 10, domain.TxConfirmed)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	db.View(ctx, func(uow domain.UnitOfWork) error {
		if _, err := uow.Transaction(ctx, "t1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("t1 visible after rollback: %v", err)
		}
		return nil
	})
}

// ─── Distribution Tests ─────────────────────────────────────────────────────

func TestDistribution_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	seedActors(t, db, "ana")
	ctx := context.Background()

	d := domain.Distribution{
		ID: "d1", TotalAmount: 100, SourceID: "tpl-9", SourceType: "template",
		Status: domain.DistributionPending, ApplyBonus: true, CreatedAt: t0,
	}
	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		if err := uow.InsertDistribution(ctx, d); err != nil {
			return err
		}
		tx := transfer("t1", domain.SystemAccountID, "ana", 100, domain.TxConfirmed)
		tx.Type = domain.TxRevenueSharing
		tx.DistributionID = "d1"
		if err := uow.AppendTransaction(ctx, tx); err != nil {
			return err
		}
		done := t0.Add(time.Second)
		d.Status = domain.DistributionCompleted
		d.Calculations = []domain.Calculation{{ParticipantID: "ana", Percentage: 100, BaseAmount: 100, FinalAmount: 100}}
		d.TotalDistributed = 100
		d.CompletedAt = &done
		return uow.UpdateDistribution(ctx, d)
	})

	db.View(ctx, func(uow domain.UnitOfWork) error {
		got, err := uow.Distribution(ctx, "d1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != domain.DistributionCompleted || !got.ApplyBonus || got.SourceType != "template" {
			t.Errorf("distribution = %+v", got)
		}
		if len(got.Calculations) != 1 || got.Calculations[0].FinalAmount != 100 {
			t.Errorf("calculations = %+v", got.Calculations)
		}
		if len(got.TransactionIDs) != 1 || got.TransactionIDs[0] != "t1" {
			t.Errorf("transaction ids = %v, want [t1]", got.TransactionIDs)
		}
		if got.CompletedAt == nil || !got.CompletedAt.Equal(t0.Add(time.Second)) {
			t.Errorf("completed at = %v", got.CompletedAt)
		}
		return nil
	})
}

func TestIdempotency(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mustUpdate(t, db, func(uow domain.UnitOfWork) error {
		return uow.SaveIdempotency(ctx, "k1", "transfer", "t1", t0)
	})
	db.View(ctx, func(uow domain.UnitOfWork) error {
		op, result, found, err := uow.LookupIdempotency(ctx, "k1")
		if err != nil || !found || op != "transfer" || result != "t1" {
			t.Errorf("Lookup(k1) = %q %q %v %v", op, result, found, err)
		}
		_, _, found, _ = uow.LookupIdempotency(ctx, "k2")
		if found {
			t.Error("k2 should be absent")
		}
		return nil
	})

	err := db.Update(ctx, func(uow domain.UnitOfWork) error {
		return uow.SaveIdempotency(ctx, "k1", "transfer", "t2", t0)
	})
	if err == nil {
		t.Error("duplicate idempotency key should be rejected")
	}
}
