package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/wallet"
)

type walletRepository struct {
	db *DB
}

var _ wallet.Repository = (*walletRepository)(nil) // interface compliance check

func NewWalletRepository(db *DB) *walletRepository {
	return &walletRepository{db: db}
}

func (repo *walletRepository) CreateWallet(_ context.Context, w wallet.Wallet, _ ...core.DBExecutor) (wallet.Wallet, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.wallets {
		if existing.OwnerID == w.OwnerID || existing.AccountNumber == w.AccountNumber {
			return wallet.Wallet{}, core.NewConflictError("wallet already exists")
		}
	}
	w.ID = newID()
	repo.db.wallets[w.ID] = w
	return w, nil
}

func (repo *walletRepository) GetWallet(_ context.Context, filter wallet.GetFilter, _ ...core.DBExecutor) (wallet.Wallet, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if w, ok := repo.db.wallets[filter.ID]; ok {
			return w, nil
		}
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	for _, w := range repo.db.wallets {
		switch {
		case filter.OwnerID != "":
			if w.OwnerID == filter.OwnerID {
				return w, nil
			}
		case filter.AccountNumber != "":
			if w.AccountNumber == filter.AccountNumber {
				return w, nil
			}
		}
	}
	return wallet.Wallet{}, wallet.ErrNotFound
}

func (repo *walletRepository) QueryWallets(_ context.Context, _ ...core.DBExecutor) ([]wallet.Wallet, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wallets := make([]wallet.Wallet, 0, len(repo.db.wallets))
	for _, w := range repo.db.wallets {
		wallets = append(wallets, w)
	}
	order(wallets, nil, nil, func(a, b wallet.Wallet) int { return compareTimes(a.CreatedAt, b.CreatedAt) })
	return wallets, nil
}

func (repo *walletRepository) AddToBalance(_ context.Context, walletID string, delta int64, _ ...core.DBExecutor) (wallet.Wallet, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	w, ok := repo.db.wallets[walletID]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	if w.Balance+delta < 0 {
		return wallet.Wallet{}, wallet.ErrInsufficientFunds
	}
	w.Balance += delta
	w.UpdatedAt = time.Now().UTC()
	repo.db.wallets[walletID] = w
	return w, nil
}

func (repo *walletRepository) SetBalance(_ context.Context, walletID string, balance int64, _ ...core.DBExecutor) (wallet.Wallet, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	w, ok := repo.db.wallets[walletID]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	repo.db.wallets[walletID] = w
	return w, nil
}

func (repo *walletRepository) findTransaction(reference string) (wallet.Transaction, bool) {
	for _, txn := range repo.db.transactions {
		if txn.Reference == reference {
			return txn, true
		}
	}
	return wallet.Transaction{}, false
}

func (repo *walletRepository) CreateTransaction(_ context.Context, txn wallet.Transaction, _ ...core.DBExecutor) (wallet.Transaction, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.findTransaction(txn.Reference); ok {
		return wallet.Transaction{}, wallet.ErrDuplicateReference
	}
	txn.ID = newID()
	repo.db.transactions[txn.ID] = txn
	return txn, nil
}

func (repo *walletRepository) GetTransaction(_ context.Context, reference string, _ ...core.DBExecutor) (wallet.Transaction, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if txn, ok := repo.findTransaction(reference); ok {
		return txn, nil
	}
	return wallet.Transaction{}, wallet.ErrTransactionNotFound
}

func (repo *walletRepository) QueryTransactions(_ context.Context, filter wallet.TransactionFilter, _ ...core.DBExecutor) ([]wallet.Transaction, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	txns := make([]wallet.Transaction, 0)
	for _, txn := range repo.db.transactions {
		switch {
		case filter.WalletID != "" && txn.WalletID != filter.WalletID,
			filter.Type != "" && txn.Type != filter.Type,
			filter.Status != "" && txn.Status != filter.Status,
			!inRange(txn.CreatedAt, filter.From, filter.To):
			continue
		}
		txns = append(txns, txn)
	}
	order(txns, nil, nil, func(a, b wallet.Transaction) int { return -compareTimes(a.CreatedAt, b.CreatedAt) })
	return txns, nil
}

func (repo *walletRepository) UpdateTransaction(_ context.Context, txn wallet.Transaction, _ ...core.DBExecutor) (wallet.Transaction, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	current, ok := repo.db.transactions[txn.ID]
	if !ok {
		return wallet.Transaction{}, wallet.ErrTransactionNotFound
	}
	current.Status = txn.Status
	current.Narration = txn.Narration
	current.UpdatedAt = txn.UpdatedAt
	repo.db.transactions[txn.ID] = current
	return current, nil
}

func (repo *walletRepository) LedgerBalance(_ context.Context, walletID string, _ ...core.DBExecutor) (int64, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var balance int64
	for _, txn := range repo.db.transactions {
		if txn.WalletID != walletID || txn.Status != wallet.StatusSuccess {
			continue
		}
		if txn.Type == wallet.TypeCredit {
			balance += txn.Amount
		} else {
			balance -= txn.Amount
		}
	}
	return balance, nil
}
