package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/ledger"
	"github.com/josh-kwaku/drug-budget-ledger/internal/testutil"
)

const fy = 2025

func setupLedger(t *testing.T, db *sql.DB, lockTimeout time.Duration) *ledger.Service {
	t.Helper()
	return ledger.NewService(
		repository.NewLedgerAccountRepository(db),
		repository.NewLedgerTransactionRepository(db),
		db,
		lockTimeout,
		nil,
	)
}

func reserveReq(line, ref string, amount, qty int64) ledger.ReserveRequest {
	return ledger.ReserveRequest{
		FiscalYear:    fy,
		LineItemID:    line,
		Amount:        amount,
		Qty:           qty,
		ReferenceType: "PO",
		ReferenceID:   ref,
		Actor:         "purchasing:test",
	}
}

func finalizeReq(ref string) ledger.FinalizeRequest {
	return ledger.FinalizeRequest{ReferenceType: "PO", ReferenceID: ref, Actor: "purchasing:test"}
}

func getAccount(t *testing.T, svc *ledger.Service, line string) *domain.LedgerAccount {
	t.Helper()
	acct, err := svc.GetAccount(context.Background(), fy, line)
	require.NoError(t, err)
	return acct
}

func countTransactions(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ledger_transactions`).Scan(&n))
	return n
}

func TestReserve_Boundary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)
	ctx := context.Background()

	testutil.SeedAccount(t, db, fy, "AMOX", 2_000_000, 1_000)

	_, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-1", 1_800_000, 0))
	require.NoError(t, err)
	_, err = svc.Commit(ctx, finalizeReq("PO-1"))
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reserveReq("AMOX", "PO-2", 150_000, 0))
	require.NoError(t, err)

	check, err := svc.Check(ctx, ledger.CheckRequest{FiscalYear: fy, LineItemID: "AMOX", Amount: 50_001})
	require.NoError(t, err)
	assert.False(t, check.CanProceed)
	assert.Equal(t, int64(50_000), check.RemainingBudget)

	_, err = svc.Reserve(ctx, reserveReq("AMOX", "PO-3", 50_001, 0))
	require.ErrorIs(t, err, domain.ErrInsufficientBudget)
	var insufficient *domain.InsufficientBudgetError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(50_001), insufficient.RequiredBudget)
	assert.Equal(t, int64(50_000), insufficient.AvailableBudget)
	assert.Equal(t, 3, countTransactions(t, db), "a refused reserve writes nothing")

	res, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-3", 50_000, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReserved, res.Outcome)

	acct := getAccount(t, svc, "AMOX")
	assert.Equal(t, int64(0), acct.RemainingBudget())
	assert.True(t, acct.Balanced())
}

func TestReserve_QtyLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)

	testutil.SeedAccount(t, db, fy, "PARA", 1_000_000, 10)

	_, err := svc.Reserve(context.Background(), reserveReq("PARA", "PO-1", 100, 11))
	var insufficient *domain.InsufficientBudgetError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(11), insufficient.RequiredQty)
	assert.Equal(t, int64(10), insufficient.AvailableQty)
}

func TestReserve_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)
	ctx := context.Background()

	testutil.SeedAccount(t, db, fy, "AMOX", 100_000, 100)

	first, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-1", 10_000, 5))
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-1", 10_000, 5))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transactions[0].ID, second.Transactions[0].ID)

	acct := getAccount(t, svc, "AMOX")
	assert.Equal(t, int64(10_000), acct.ReservedBudget)
	assert.Equal(t, int64(5), acct.ReservedQty)
	assert.Equal(t, 1, countTransactions(t, db))
}

func TestCommit_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)
	ctx := context.Background()

	testutil.SeedAccount(t, db, fy, "AMOX", 100_000, 100)

	_, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-1", 40_000, 4))
	require.NoError(t, err)

	res, err := svc.Commit(ctx, finalizeReq("PO-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCommitted, res.Outcome)
	require.Len(t, res.Transactions, 1)
	assert.NotNil(t, res.Transactions[0].ReserveID)

	again, err := svc.Commit(ctx, finalizeReq("PO-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyFinalized, again.Outcome)

	released, err := svc.Release(ctx, finalizeReq("PO-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyFinalized, released.Outcome)

	acct := getAccount(t, svc, "AMOX")
	assert.Equal(t, int64(40_000), acct.UsedBudget)
	assert.Equal(t, int64(4), acct.UsedQty)
	assert.Equal(t, int64(0), acct.ReservedBudget)
	assert.Equal(t, 2, countTransactions(t, db))
}

func TestReserveRelease_RoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)
	ctx := context.Background()

	testutil.SeedAccount(t, db, fy, "AMOX", 100_000, 100)
	before := getAccount(t, svc, "AMOX")

	_, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-1", 25_000, 3))
	require.NoError(t, err)
	res, err := svc.Release(ctx, finalizeReq("PO-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReleased, res.Outcome)

	after := getAccount(t, svc, "AMOX")
	assert.Equal(t, before.RemainingBudget(), after.RemainingBudget())
	assert.Equal(t, before.RemainingQty(), after.RemainingQty())
	assert.Equal(t, int64(0), after.UsedBudget)

	txns, err := svc.ListTransactions(ctx, "PO", "PO-1")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, domain.TransactionTypeReserve, txns[0].Type)
	assert.Equal(t, domain.TransactionTypeRelease, txns[1].Type)
}

func TestCommit_AcrossAccounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)
	ctx := context.Background()

	testutil.SeedAccount(t, db, fy, "AMOX", 100_000, 100)
	testutil.SeedAccount(t, db, fy, "PARA", 100_000, 100)

	_, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-9", 10_000, 1))
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reserveReq("PARA", "PO-9", 20_000, 2))
	require.NoError(t, err)

	res, err := svc.Commit(ctx, finalizeReq("PO-9"))
	require.NoError(t, err)
	assert.Len(t, res.Accounts, 2)
	assert.Len(t, res.Transactions, 2)

	assert.Equal(t, int64(10_000), getAccount(t, svc, "AMOX").UsedBudget)
	assert.Equal(t, int64(20_000), getAccount(t, svc, "PARA").UsedBudget)
}

func TestReserve_NoOversellUnderConcurrency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 10*time.Second)
	ctx := context.Background()

	testutil.SeedAccount(t, db, fy, "AMOX", 1_000, 1_000)

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := svc.Reserve(ctx, reserveReq("AMOX", fmt.Sprintf("PO-%d", idx), 150, 1))
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var insufficient *domain.InsufficientBudgetError
		if assert.ErrorAs(t, err, &insufficient) {
			assert.Equal(t, int64(150), insufficient.RequiredBudget)
			assert.Equal(t, int64(1), insufficient.RequiredQty)
			assert.Equal(t, int64(100), insufficient.AvailableBudget, "failures only start once six holds landed")
			assert.Equal(t, int64(994), insufficient.AvailableQty)
		}
		failures++
	}

	assert.Equal(t, 6, successes, "only six reservations of 150 fit in 1000")
	assert.Equal(t, workers-6, failures)

	acct := getAccount(t, svc, "AMOX")
	assert.Equal(t, int64(900), acct.ReservedBudget)
	assert.True(t, acct.Balanced())
	assert.Equal(t, 6, countTransactions(t, db))
}

func TestReserve_SameReferenceUnderConcurrency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 10*time.Second)
	ctx := context.Background()

	testutil.SeedAccount(t, db, fy, "AMOX", 1_000, 100)

	const workers = 10
	var wg sync.WaitGroup
	type outcome struct {
		res *domain.LedgerResult
		err error
	}
	results := make(chan outcome, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-SAME", 100, 1))
			results <- outcome{res, err}
		}()
	}

	wg.Wait()
	close(results)

	var fresh, replayed int
	for o := range results {
		require.NoError(t, o.err)
		if o.res.Replayed {
			replayed++
		} else {
			fresh++
		}
	}

	assert.Equal(t, 1, fresh)
	assert.Equal(t, workers-1, replayed)
	acct := getAccount(t, svc, "AMOX")
	assert.Equal(t, int64(100), acct.ReservedBudget)
	assert.Equal(t, int64(1), acct.ReservedQty)
	assert.Equal(t, 1, countTransactions(t, db))
}

func TestCancelWhileWaitingForLock_RollsBack(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, svc *ledger.Service) error
	}{
		{"reserve", func(ctx context.Context, svc *ledger.Service) error {
			_, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-NEW", 1_000, 1))
			return err
		}},
		{"commit", func(ctx context.Context, svc *ledger.Service) error {
			_, err := svc.Commit(ctx, finalizeReq("PO-OPEN"))
			return err
		}},
		{"release", func(ctx context.Context, svc *ledger.Service) error {
			_, err := svc.Release(ctx, finalizeReq("PO-OPEN"))
			return err
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			svc := setupLedger(t, db, 10*time.Second)
			bg := context.Background()

			acct := testutil.SeedAccount(t, db, fy, "AMOX", 100_000, 100)
			_, err := svc.Reserve(bg, reserveReq("AMOX", "PO-OPEN", 5_000, 5))
			require.NoError(t, err)

			holder, err := db.BeginTx(bg, nil)
			require.NoError(t, err)
			defer holder.Rollback()
			_, err = holder.ExecContext(bg, `SELECT id FROM ledger_accounts WHERE id = $1 FOR UPDATE`, acct.ID)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(bg)
			done := make(chan error, 1)
			go func() { done <- tc.run(ctx, svc) }()

			time.Sleep(200 * time.Millisecond)
			cancel()

			select {
			case err = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("operation did not return after cancel")
			}
			require.ErrorIs(t, err, context.Canceled)
			require.NoError(t, holder.Rollback())

			after := getAccount(t, svc, "AMOX")
			assert.Equal(t, int64(5_000), after.ReservedBudget)
			assert.Equal(t, int64(5), after.ReservedQty)
			assert.Zero(t, after.UsedBudget)
			assert.Equal(t, 1, countTransactions(t, db), "only the seeded reserve is logged")

			res, err := svc.Commit(bg, finalizeReq("PO-OPEN"))
			require.NoError(t, err)
			assert.Equal(t, domain.OutcomeCommitted, res.Outcome, "the open hold survived the cancelled call")
		})
	}
}

func TestReserve_LockTimeoutIsRetryLater(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 100*time.Millisecond)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, fy, "AMOX", 100_000, 100)

	holder, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer holder.Rollback()
	_, err = holder.ExecContext(ctx, `SELECT id FROM ledger_accounts WHERE id = $1 FOR UPDATE`, acct.ID)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, reserveReq("AMOX", "PO-1", 1_000, 1))
	require.ErrorIs(t, err, domain.ErrRetryLater)

	require.NoError(t, holder.Rollback())
	assert.Equal(t, int64(0), getAccount(t, svc, "AMOX").ReservedBudget)
	assert.Equal(t, 0, countTransactions(t, db))
}

func TestReserve_LockedAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)
	ctx := context.Background()

	testutil.SeedAccount(t, db, fy, "AMOX", 100_000, 100)

	_, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-1", 1_000, 1))
	require.NoError(t, err)

	locked, err := svc.LockAccount(ctx, fy, "AMOX", "admin:test")
	require.NoError(t, err)
	assert.True(t, locked.IsLocked)

	_, err = svc.Reserve(ctx, reserveReq("AMOX", "PO-2", 1_000, 1))
	require.ErrorIs(t, err, domain.ErrAccountLocked)

	check, err := svc.Check(ctx, ledger.CheckRequest{FiscalYear: fy, LineItemID: "AMOX", Amount: 1})
	require.NoError(t, err)
	assert.False(t, check.CanProceed)

	_, err = svc.Commit(ctx, finalizeReq("PO-1"))
	require.NoError(t, err, "open holds settle on a locked account")

	_, err = svc.UnlockAccount(ctx, fy, "AMOX", "admin:test")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reserveReq("AMOX", "PO-2", 1_000, 1))
	require.NoError(t, err)
}

func TestReserve_UnknownAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)

	_, err := svc.Reserve(context.Background(), reserveReq("NOPE", "PO-1", 1, 1))
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestTransactionLog_AppendOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)

	testutil.SeedAccount(t, db, fy, "AMOX", 100_000, 100)
	_, err := svc.Reserve(context.Background(), reserveReq("AMOX", "PO-1", 1_000, 1))
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE ledger_transactions SET amount = 1`)
	assert.Error(t, err)
	_, err = db.Exec(`DELETE FROM ledger_transactions`)
	assert.Error(t, err)
	assert.Equal(t, 1, countTransactions(t, db))
}

func TestReplayAndReconcile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db, 2*time.Second)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, fy, "AMOX", 100_000, 100)

	_, err := svc.Reserve(ctx, reserveReq("AMOX", "PO-1", 30_000, 3))
	require.NoError(t, err)
	_, err = svc.Commit(ctx, finalizeReq("PO-1"))
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reserveReq("AMOX", "PO-2", 20_000, 2))
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, reserveReq("AMOX", "PO-3", 5_000, 1))
	require.NoError(t, err)
	_, err = svc.Release(ctx, finalizeReq("PO-3"))
	require.NoError(t, err)

	replayed, err := svc.Replay(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReplayedBalance{UsedBudget: 30_000, UsedQty: 3, ReservedBudget: 20_000, ReservedQty: 2}, replayed)
	assert.True(t, replayed.Matches(getAccount(t, svc, "AMOX")))

	drifts, err := svc.Reconcile(ctx, fy)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	testutil.CorruptAccount(t, db, acct.ID, 10_000, 0)

	drifts, err = svc.Reconcile(ctx, fy)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, acct.ID, drifts[0].Account.ID)
	assert.Equal(t, int64(30_000), drifts[0].Replayed.UsedBudget)

	rebuilt, changed, err := svc.Rebuild(ctx, acct.ID, "admin:test")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(30_000), rebuilt.UsedBudget)
	assert.Equal(t, int64(20_000), rebuilt.ReservedBudget)

	_, changed, err = svc.Rebuild(ctx, acct.ID, "admin:test")
	require.NoError(t, err)
	assert.False(t, changed)
}
