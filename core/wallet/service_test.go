package wallet_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
	bankingsvc "github.com/trezcool/shule/services/banking"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	"github.com/trezcool/shule/testutil"
)

func newWallet(t *testing.T, app *testutil.App, uname string) wallet.Wallet {
	t.Helper()
	owner := testutil.CreateUser(t, app.UserRepo, "Mama "+uname, uname, uname+"@test.cd", "", []string{user.RoleParent}, true)
	w, err := app.Wallets.EnsureWallet(context.Background(), owner)
	require.NoError(t, err)
	return w
}

func balanceOf(t *testing.T, app *testutil.App, id string) int64 {
	t.Helper()
	w, err := app.Wallets.Get(context.Background(), id)
	require.NoError(t, err)
	return w.Balance
}

func TestService_EnsureWallet(t *testing.T) {
	app := testutil.NewApp()
	owner := testutil.CreateUser(t, app.UserRepo, "Mama Obi", "obi", "obi@test.cd", "", []string{user.RoleParent}, true)
	ctx := context.Background()

	w, err := app.Wallets.EnsureWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, w.OwnerID)
	assert.Equal(t, bankingsvc.AccountNumberFor(owner.ID), w.AccountNumber)
	assert.Equal(t, "Mama Obi", w.AccountName)
	assert.Zero(t, w.Balance)

	again, err := app.Wallets.EnsureWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)

	byAccount, err := app.Wallets.GetByAccountNumber(ctx, w.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, w.ID, byAccount.ID)
}

func TestService_Credit(t *testing.T) {
	app := testutil.NewApp()
	ctx := context.Background()
	w := newWallet(t, app, "obi")
	other := newWallet(t, app, "eze")

	t.Run("credits the balance", func(t *testing.T) {
		txn, err := app.Wallets.Credit(ctx, w.ID, wallet.Movement{Amount: 5000, Reference: "TRF-1"})
		require.NoError(t, err)
		assert.Equal(t, wallet.TypeCredit, txn.Type)
		assert.Equal(t, wallet.StatusSuccess, txn.Status)
		assert.Equal(t, int64(5000), balanceOf(t, app, w.ID))
	})

	t.Run("same reference is credited once", func(t *testing.T) {
		first, err := app.Wallets.Transactions(ctx, w.ID, wallet.TransactionFilter{})
		require.NoError(t, err)
		require.Len(t, first, 1)

		txn, err := app.Wallets.Credit(ctx, w.ID, wallet.Movement{Amount: 5000, Reference: "TRF-1"})
		require.NoError(t, err)
		assert.Equal(t, first[0].ID, txn.ID)
		assert.Equal(t, int64(5000), balanceOf(t, app, w.ID))

		txns, err := app.Wallets.Transactions(ctx, w.ID, wallet.TransactionFilter{})
		require.NoError(t, err)
		assert.Len(t, txns, 1)
	})

	t.Run("reference of another wallet", func(t *testing.T) {
		_, err := app.Wallets.Credit(ctx, other.ID, wallet.Movement{Amount: 5000, Reference: "TRF-1"})
		assert.Equal(t, wallet.ErrDuplicateReference, errors.Cause(err))
		assert.Zero(t, balanceOf(t, app, other.ID))
	})

	t.Run("generates missing references", func(t *testing.T) {
		a, err := app.Wallets.Credit(ctx, other.ID, wallet.Movement{Amount: 100})
		require.NoError(t, err)
		b, err := app.Wallets.Credit(ctx, other.ID, wallet.Movement{Amount: 100})
		require.NoError(t, err)
		assert.NotEmpty(t, a.Reference)
		assert.NotEqual(t, a.Reference, b.Reference)
		assert.Equal(t, int64(200), balanceOf(t, app, other.ID))
	})

	t.Run("settles a pending transaction", func(t *testing.T) {
		repo := inmemdb.NewWalletRepository(app.DB)
		now := time.Now().UTC()
		pending, err := repo.CreateTransaction(ctx, wallet.Transaction{
			WalletID:  w.ID,
			Type:      wallet.TypeCredit,
			Amount:    2500,
			Reference: "TRF-PENDING",
			Status:    wallet.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		require.NoError(t, err)

		txn, err := app.Wallets.Credit(ctx, w.ID, wallet.Movement{Amount: 2500, Reference: "TRF-PENDING"})
		require.NoError(t, err)
		assert.Equal(t, pending.ID, txn.ID)
		assert.Equal(t, wallet.StatusSuccess, txn.Status)
		assert.Equal(t, int64(7500), balanceOf(t, app, w.ID))

		// settled only once
		_, err = app.Wallets.Credit(ctx, w.ID, wallet.Movement{Amount: 2500, Reference: "TRF-PENDING"})
		require.NoError(t, err)
		assert.Equal(t, int64(7500), balanceOf(t, app, w.ID))
	})
}

func TestService_Debit(t *testing.T) {
	app := testutil.NewApp()
	ctx := context.Background()
	w := newWallet(t, app, "obi")
	_, err := app.Wallets.Credit(ctx, w.ID, wallet.Movement{Amount: 5000, Reference: "TRF-1"})
	require.NoError(t, err)

	_, err = app.Wallets.Debit(ctx, w.ID, wallet.Movement{Amount: 6000, Reference: "FEE-1"})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "amount", verr.Fields[0].Field)
	assert.Equal(t, int64(5000), balanceOf(t, app, w.ID))

	txn, err := app.Wallets.Debit(ctx, w.ID, wallet.Movement{Amount: 4000, Reference: "FEE-1"})
	require.NoError(t, err)
	assert.Equal(t, wallet.TypeDebit, txn.Type)
	assert.Equal(t, int64(1000), balanceOf(t, app, w.ID))

	_, err = app.Wallets.Debit(ctx, w.ID, wallet.Movement{Amount: 500, Reference: "FEE-1"})
	assert.Equal(t, wallet.ErrDuplicateReference, errors.Cause(err))
	_, err = app.Wallets.Credit(ctx, w.ID, wallet.Movement{Amount: 500, Reference: "FEE-1"})
	assert.Equal(t, wallet.ErrDuplicateReference, errors.Cause(err))
	assert.Equal(t, int64(1000), balanceOf(t, app, w.ID))
}

func TestService_Fund(t *testing.T) {
	app := testutil.NewApp()
	ctx := context.Background()
	w := newWallet(t, app, "obi")
	entry := wallet.StatementEntry{Reference: "TRF-9", AccountNumber: w.AccountNumber, Amount: 150000, Narration: "school fees"}

	txn, err := app.Wallets.Fund(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, "school fees", txn.Narration)
	assert.Equal(t, int64(150000), balanceOf(t, app, w.ID))

	sent := app.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "obi@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "TRF-9")
	assert.Contains(t, sent[0].TextContent, core.FormatMoney(150000, w.Currency))

	// repeated notification
	_, err = app.Wallets.Fund(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), balanceOf(t, app, w.ID))
	assert.Len(t, app.Mail.SentMessages(), 1)

	_, err = app.Wallets.Fund(ctx, wallet.StatementEntry{Reference: "TRF-10", AccountNumber: "0000000000", Amount: 100})
	assert.Equal(t, wallet.ErrNotFound, errors.Cause(err))
}

func TestService_Reconcile(t *testing.T) {
	app := testutil.NewApp()
	ctx := context.Background()
	w := newWallet(t, app, "obi")
	repo := inmemdb.NewWalletRepository(app.DB)
	now := time.Now().UTC()

	for _, mv := range []wallet.Movement{{Amount: 5000, Reference: "TRF-1"}, {Amount: 1000, Reference: "TRF-4"}} {
		_, err := app.Wallets.Credit(ctx, w.ID, mv)
		require.NoError(t, err)
	}
	_, err := repo.CreateTransaction(ctx, wallet.Transaction{
		WalletID: w.ID, Type: wallet.TypeCredit, Amount: 2000, Reference: "TRF-3",
		Status: wallet.StatusPending, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = repo.SetBalance(ctx, w.ID, 999)
	require.NoError(t, err)

	for _, e := range []wallet.StatementEntry{
		{Reference: "TRF-1", Amount: 5000},
		{Reference: "TRF-2", Amount: 3000},
		{Reference: "TRF-3", Amount: 2000},
		{Reference: "TRF-4", Amount: 1500},
	} {
		e.AccountNumber = w.AccountNumber
		e.PaidAt = now.Add(-time.Hour)
		app.Bank.AddPayment(e)
	}

	byKind := func(r wallet.Report) map[string]wallet.Discrepancy {
		m := make(map[string]wallet.Discrepancy, len(r.Discrepancies))
		for _, d := range r.Discrepancies {
			m[d.Kind] = d
		}
		return m
	}

	t.Run("reports", func(t *testing.T) {
		report, err := app.Wallets.Reconcile(ctx, w.ID, time.Time{}, time.Time{}, false)
		require.NoError(t, err)
		assert.Equal(t, int64(999), report.StoredBalance)
		assert.Equal(t, int64(6000), report.LedgerBalance)
		require.Len(t, report.Discrepancies, 4)

		kinds := byKind(report)
		assert.Equal(t, wallet.Discrepancy{Kind: wallet.KindBalanceMismatch, Expected: 6000, Actual: 999}, kinds[wallet.KindBalanceMismatch])
		assert.Equal(t, wallet.Discrepancy{Kind: wallet.KindMissingCredit, Reference: "TRF-2", Expected: 3000}, kinds[wallet.KindMissingCredit])
		assert.Equal(t, wallet.Discrepancy{Kind: wallet.KindPendingSettled, Reference: "TRF-3", Expected: 2000}, kinds[wallet.KindPendingSettled])
		assert.Equal(t, wallet.Discrepancy{Kind: wallet.KindAmountMismatch, Reference: "TRF-4", Expected: 1500, Actual: 1000}, kinds[wallet.KindAmountMismatch])

		assert.Equal(t, int64(999), balanceOf(t, app, w.ID))
	})

	t.Run("fixes", func(t *testing.T) {
		report, err := app.Wallets.Reconcile(ctx, w.ID, time.Time{}, time.Time{}, true)
		require.NoError(t, err)
		require.Len(t, report.Discrepancies, 4)
		for _, d := range report.Discrepancies {
			assert.Equal(t, d.Kind != wallet.KindAmountMismatch, d.Fixed, d.Kind)
		}

		// 5000 + 1000 + 3000 (missing) + 2000 (settled)
		assert.Equal(t, int64(11000), balanceOf(t, app, w.ID))
		txn, err := repo.GetTransaction(ctx, "TRF-3")
		require.NoError(t, err)
		assert.Equal(t, wallet.StatusSuccess, txn.Status)
	})

	t.Run("only amount mismatches remain", func(t *testing.T) {
		report, err := app.Wallets.Reconcile(ctx, w.ID, time.Time{}, time.Time{}, false)
		require.NoError(t, err)
		require.Len(t, report.Discrepancies, 1)
		assert.Equal(t, wallet.KindAmountMismatch, report.Discrepancies[0].Kind)
		assert.Equal(t, report.StoredBalance, report.LedgerBalance)
	})

	t.Run("statement window", func(t *testing.T) {
		report, err := app.Wallets.Reconcile(ctx, w.ID, now.Add(-72*time.Hour), now.Add(-48*time.Hour), false)
		require.NoError(t, err)
		assert.Empty(t, report.Discrepancies)
	})
}
