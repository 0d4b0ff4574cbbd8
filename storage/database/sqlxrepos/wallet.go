package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/wallet"
)

const (
	walletColumns      = `id, owner_id, balance, currency, account_number, account_name, bank_name, created_at, updated_at`
	transactionColumns = `id, wallet_id, type, amount, reference, status, narration, created_at, updated_at`
)

type walletRow struct {
	ID            string    `db:"id"`
	OwnerID       string    `db:"owner_id"`
	Balance       int64     `db:"balance"`
	Currency      string    `db:"currency"`
	AccountNumber string    `db:"account_number"`
	AccountName   string    `db:"account_name"`
	BankName      string    `db:"bank_name"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (row walletRow) wallet() wallet.Wallet {
	return wallet.Wallet{
		ID:            row.ID,
		OwnerID:       row.OwnerID,
		Balance:       row.Balance,
		Currency:      row.Currency,
		AccountNumber: row.AccountNumber,
		AccountName:   row.AccountName,
		BankName:      row.BankName,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

type transactionRow struct {
	ID        string    `db:"id"`
	WalletID  string    `db:"wallet_id"`
	Type      string    `db:"type"`
	Amount    int64     `db:"amount"`
	Reference string    `db:"reference"`
	Status    string    `db:"status"`
	Narration string    `db:"narration"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func toTransactionRow(t wallet.Transaction) transactionRow {
	return transactionRow{
		ID:        t.ID,
		WalletID:  t.WalletID,
		Type:      t.Type,
		Amount:    t.Amount,
		Reference: t.Reference,
		Status:    t.Status,
		Narration: t.Narration,
		CreatedAt: t.CreatedAt.UTC(),
		UpdatedAt: t.UpdatedAt.UTC(),
	}
}

func (row transactionRow) transaction() wallet.Transaction {
	return wallet.Transaction{
		ID:        row.ID,
		WalletID:  row.WalletID,
		Type:      row.Type,
		Amount:    row.Amount,
		Reference: row.Reference,
		Status:    row.Status,
		Narration: row.Narration,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type walletRepository struct {
	repo
}

var _ wallet.Repository = (*walletRepository)(nil) // interface compliance check

func NewWalletRepository(db *sqlx.DB) *walletRepository {
	return &walletRepository{repo{db: db}}
}

func (r walletRepository) CreateWallet(ctx context.Context, w wallet.Wallet, exec ...core.DBExecutor) (wallet.Wallet, error) {
	w.ID = newID()
	row := walletRow{
		ID:            w.ID,
		OwnerID:       w.OwnerID,
		Balance:       w.Balance,
		Currency:      w.Currency,
		AccountNumber: w.AccountNumber,
		AccountName:   w.AccountName,
		BankName:      w.BankName,
		CreatedAt:     w.CreatedAt.UTC(),
		UpdatedAt:     w.UpdatedAt.UTC(),
	}
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO wallets (`+walletColumns+`)
		VALUES (:id, :owner_id, :balance, :currency, :account_number, :account_name, :bank_name, :created_at, :updated_at)`,
		row)
	if err != nil {
		return wallet.Wallet{}, errors.Wrap(err, "inserting wallet")
	}
	return row.wallet(), nil
}

func (r walletRepository) GetWallet(ctx context.Context, filter wallet.GetFilter, exec ...core.DBExecutor) (wallet.Wallet, error) {
	var w where
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return wallet.Wallet{}, wallet.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.OwnerID != "":
		if _, err := uuid.Parse(filter.OwnerID); err != nil {
			return wallet.Wallet{}, wallet.ErrNotFound
		}
		w.add("owner_id = ?", filter.OwnerID)
	case filter.AccountNumber != "":
		w.add("account_number = ?", filter.AccountNumber)
	default:
		return wallet.Wallet{}, wallet.ErrNotFound
	}

	var row walletRow
	if err := r.get(ctx, exec, &row, "SELECT "+walletColumns+" FROM wallets"+w.String(), w.args...); err != nil {
		return wallet.Wallet{}, trapNoRows(err, wallet.ErrNotFound, "finding wallet")
	}
	return row.wallet(), nil
}

func (r walletRepository) QueryWallets(ctx context.Context, exec ...core.DBExecutor) ([]wallet.Wallet, error) {
	var rows []walletRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+walletColumns+" FROM wallets ORDER BY created_at"); err != nil {
		return nil, errors.Wrap(err, "querying wallets")
	}
	wallets := make([]wallet.Wallet, 0, len(rows))
	for _, row := range rows {
		wallets = append(wallets, row.wallet())
	}
	return wallets, nil
}

func (r walletRepository) AddToBalance(ctx context.Context, walletID string, delta int64, exec ...core.DBExecutor) (wallet.Wallet, error) {
	var row walletRow
	err := r.get(ctx, exec, &row, `
		UPDATE wallets SET balance = balance + ?, updated_at = ?
		WHERE id = ? AND balance + ? >= 0
		RETURNING `+walletColumns,
		delta, time.Now().UTC(), walletID, delta)
	if err == nil {
		return row.wallet(), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return wallet.Wallet{}, errors.Wrap(err, "updating balance")
	}

	// either the wallet does not exist or the balance is too low
	if _, err = r.GetWallet(ctx, wallet.GetFilter{ID: walletID}, exec...); err != nil {
		return wallet.Wallet{}, err
	}
	return wallet.Wallet{}, wallet.ErrInsufficientFunds
}

func (r walletRepository) SetBalance(ctx context.Context, walletID string, balance int64, exec ...core.DBExecutor) (wallet.Wallet, error) {
	var row walletRow
	err := r.get(ctx, exec, &row,
		"UPDATE wallets SET balance = ?, updated_at = ? WHERE id = ? RETURNING "+walletColumns,
		balance, time.Now().UTC(), walletID)
	if err != nil {
		return wallet.Wallet{}, trapNoRows(err, wallet.ErrNotFound, "setting balance")
	}
	return row.wallet(), nil
}

func (r walletRepository) CreateTransaction(ctx context.Context, txn wallet.Transaction, exec ...core.DBExecutor) (wallet.Transaction, error) {
	txn.ID = newID()
	row := toTransactionRow(txn)
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO wallet_transactions (`+transactionColumns+`)
		VALUES (:id, :wallet_id, :type, :amount, :reference, :status, :narration, :created_at, :updated_at)`,
		row)
	if err != nil {
		if isUniqueViolation(err, "wallet_transactions_reference_key") {
			return wallet.Transaction{}, wallet.ErrDuplicateReference
		}
		return wallet.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	return row.transaction(), nil
}

func (r walletRepository) GetTransaction(ctx context.Context, reference string, exec ...core.DBExecutor) (wallet.Transaction, error) {
	var row transactionRow
	if err := r.get(ctx, exec, &row, "SELECT "+transactionColumns+" FROM wallet_transactions WHERE reference = ?", reference); err != nil {
		return wallet.Transaction{}, trapNoRows(err, wallet.ErrTransactionNotFound, "finding transaction")
	}
	return row.transaction(), nil
}

func (r walletRepository) QueryTransactions(ctx context.Context, filter wallet.TransactionFilter, exec ...core.DBExecutor) ([]wallet.Transaction, error) {
	var w where
	if filter.WalletID != "" {
		w.add("wallet_id = ?", filter.WalletID)
	}
	if filter.Type != "" {
		w.add("type = ?", filter.Type)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if !filter.From.IsZero() {
		w.add("created_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		w.add("created_at <= ?", filter.To.UTC())
	}

	var rows []transactionRow
	q := "SELECT " + transactionColumns + " FROM wallet_transactions" + w.String() + " ORDER BY created_at DESC"
	if err := r.selekt(ctx, exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}
	txns := make([]wallet.Transaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, row.transaction())
	}
	return txns, nil
}

func (r walletRepository) UpdateTransaction(ctx context.Context, txn wallet.Transaction, exec ...core.DBExecutor) (wallet.Transaction, error) {
	row := toTransactionRow(txn)
	res, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		UPDATE wallet_transactions SET status = :status, narration = :narration, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return wallet.Transaction{}, errors.Wrap(err, "updating transaction")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wallet.Transaction{}, wallet.ErrTransactionNotFound
	}
	return row.transaction(), nil
}

func (r walletRepository) LedgerBalance(ctx context.Context, walletID string, exec ...core.DBExecutor) (int64, error) {
	var balance int64
	err := r.get(ctx, exec, &balance, `
		SELECT COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE -amount END), 0)
		FROM wallet_transactions
		WHERE wallet_id = ? AND status = ?`,
		wallet.TypeCredit, walletID, wallet.StatusSuccess)
	if err != nil {
		return 0, errors.Wrap(err, "computing ledger balance")
	}
	return balance, nil
}
