package wallet

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("wallet not found")
	ErrTransactionNotFound = core.NewNotFoundError("transaction not found")
	ErrDuplicateReference  = core.NewConflictError("a transaction with this reference already exists")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidSignature    = errors.New("invalid signature")
)

// statement window used when reconciling without explicit bounds
const defaultReconcileWindow = 30 * 24 * time.Hour

type (
	Repository interface {
		CreateWallet(ctx context.Context, w Wallet, exec ...core.DBExecutor) (Wallet, error)
		GetWallet(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Wallet, error)
		QueryWallets(ctx context.Context, exec ...core.DBExecutor) ([]Wallet, error)
		// AddToBalance atomically adds delta to the wallet balance.
		// It fails with ErrInsufficientFunds when the resulting balance would be negative.
		AddToBalance(ctx context.Context, walletID string, delta int64, exec ...core.DBExecutor) (Wallet, error)
		SetBalance(ctx context.Context, walletID string, balance int64, exec ...core.DBExecutor) (Wallet, error)

		// CreateTransaction fails with ErrDuplicateReference when the reference is taken.
		CreateTransaction(ctx context.Context, txn Transaction, exec ...core.DBExecutor) (Transaction, error)
		GetTransaction(ctx context.Context, reference string, exec ...core.DBExecutor) (Transaction, error)
		QueryTransactions(ctx context.Context, filter TransactionFilter, exec ...core.DBExecutor) ([]Transaction, error)
		UpdateTransaction(ctx context.Context, txn Transaction, exec ...core.DBExecutor) (Transaction, error)
		// LedgerBalance sums successful credits minus successful debits of the wallet.
		LedgerBalance(ctx context.Context, walletID string, exec ...core.DBExecutor) (int64, error)
	}

	// AccountProvider is the bank issuing virtual accounts.
	AccountProvider interface {
		CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (VirtualAccount, error)
		// Statement lists payments received by `accountNumber` between `from` and `to`.
		Statement(ctx context.Context, accountNumber string, from, to time.Time) ([]StatementEntry, error)
		// ParseWebhook checks the signature of a funding notification and decodes it.
		// It fails with ErrInvalidSignature when the signature does not match.
		ParseWebhook(payload []byte, signature string) (StatementEntry, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo     Repository
		tx       core.TxRunner
		provider AccountProvider
		users    UserGetter
		mailSvc  core.EmailService
		logger   core.Logger
		currency string
	}
)

func NewService(
	repo Repository,
	tx core.TxRunner,
	provider AccountProvider,
	users UserGetter,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(provider, "provider"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		tx:       tx,
		provider: provider,
		users:    users,
		mailSvc:  mailSvc,
		logger:   logger,
		currency: conf.Currency,
	}
}

// EnsureWallet returns the wallet of `owner`, creating it (and its virtual account) when missing.
func (svc *Service) EnsureWallet(ctx context.Context, owner user.User, exec ...core.DBExecutor) (Wallet, error) {
	w, err := svc.repo.GetWallet(ctx, GetFilter{OwnerID: owner.ID}, exec...)
	if err == nil {
		return w, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Wallet{}, errors.Wrap(err, "finding wallet")
	}

	acct, err := svc.provider.CreateVirtualAccount(ctx, VirtualAccountRequest{
		Reference: owner.ID,
		Name:      owner.Name,
		Email:     owner.Email,
		Phone:     owner.Phone,
	})
	if err != nil {
		return Wallet{}, errors.Wrap(err, "creating virtual account")
	}

	now := time.Now().UTC()
	w, err = svc.repo.CreateWallet(ctx, Wallet{
		OwnerID:       owner.ID,
		Currency:      svc.currency,
		AccountNumber: acct.AccountNumber,
		AccountName:   acct.AccountName,
		BankName:      acct.BankName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, exec...)
	if err != nil {
		return Wallet{}, errors.Wrap(err, "creating wallet")
	}
	walletsCreated.Inc()
	return w, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return svc.repo.GetWallet(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return svc.repo.GetWallet(ctx, GetFilter{OwnerID: ownerID})
}

func (svc *Service) GetByAccountNumber(ctx context.Context, accountNumber string) (Wallet, error) {
	return svc.repo.GetWallet(ctx, GetFilter{AccountNumber: accountNumber})
}

func (svc *Service) Query(ctx context.Context) ([]Wallet, error) {
	return svc.repo.QueryWallets(ctx)
}

func (svc *Service) Transactions(ctx context.Context, walletID string, filter TransactionFilter) ([]Transaction, error) {
	filter.WalletID = walletID
	return svc.repo.QueryTransactions(ctx, filter)
}

func newReference() string {
	return uuid.New().String()
}

// Credit adds funds to the wallet. Crediting twice with the same reference is a no-op returning
// the existing transaction; a pending transaction with that reference gets settled.
// `mv` is expected to be validated.
func (svc *Service) Credit(ctx context.Context, walletID string, mv Movement, exec ...core.DBExecutor) (Transaction, error) {
	txn, _, err := svc.credit(ctx, walletID, mv, exec)
	return txn, err
}

func (svc *Service) credit(ctx context.Context, walletID string, mv Movement, exec []core.DBExecutor) (Transaction, bool, error) {
	if mv.Reference == "" {
		mv.Reference = newReference()
	}

	var (
		txn      Transaction
		credited bool
	)
	err := core.RunInTx(ctx, svc.tx, exec, func(exec core.DBExecutor) error {
		existing, err := svc.repo.GetTransaction(ctx, mv.Reference, exec)
		switch {
		case err == nil:
			if existing.WalletID != walletID || existing.Type != TypeCredit {
				return ErrDuplicateReference
			}
			if existing.Status == StatusSuccess {
				txn = existing
				return nil
			}
			existing.Status = StatusSuccess
			existing.UpdatedAt = time.Now().UTC()
			if txn, err = svc.repo.UpdateTransaction(ctx, existing, exec); err != nil {
				return errors.Wrap(err, "settling transaction")
			}
		case errors.Cause(err) == ErrTransactionNotFound:
			now := time.Now().UTC()
			txn, err = svc.repo.CreateTransaction(ctx, Transaction{
				WalletID:  walletID,
				Type:      TypeCredit,
				Amount:    mv.Amount,
				Reference: mv.Reference,
				Status:    StatusSuccess,
				Narration: mv.Narration,
				CreatedAt: now,
				UpdatedAt: now,
			}, exec)
			if err != nil {
				return err
			}
		default:
			return errors.Wrap(err, "finding transaction")
		}

		if _, err = svc.repo.AddToBalance(ctx, walletID, txn.Amount, exec); err != nil {
			return errors.Wrap(err, "crediting balance")
		}
		credited = true
		return nil
	})
	if err != nil {
		return Transaction{}, false, err
	}
	if credited {
		creditsTotal.Inc()
		creditedAmount.Add(float64(txn.Amount))
	}
	return txn, credited, nil
}

// Debit takes funds from the wallet. `mv` is expected to be validated.
func (svc *Service) Debit(ctx context.Context, walletID string, mv Movement, exec ...core.DBExecutor) (Transaction, error) {
	if mv.Reference == "" {
		mv.Reference = newReference()
	}

	var txn Transaction
	err := core.RunInTx(ctx, svc.tx, exec, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetTransaction(ctx, mv.Reference, exec); err == nil {
			return ErrDuplicateReference
		} else if errors.Cause(err) != ErrTransactionNotFound {
			return errors.Wrap(err, "finding transaction")
		}

		if _, err := svc.repo.AddToBalance(ctx, walletID, -mv.Amount, exec); err != nil {
			if errors.Cause(err) == ErrInsufficientFunds {
				return core.NewFieldValidationError("amount", ErrInsufficientFunds)
			}
			return errors.Wrap(err, "debiting balance")
		}

		now := time.Now().UTC()
		var err error
		txn, err = svc.repo.CreateTransaction(ctx, Transaction{
			WalletID:  walletID,
			Type:      TypeDebit,
			Amount:    mv.Amount,
			Reference: mv.Reference,
			Status:    StatusSuccess,
			Narration: mv.Narration,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	debitsTotal.Inc()
	return txn, nil
}

// HandleWebhook credits the wallet funded through its virtual account, as notified by the bank.
func (svc *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Transaction, error) {
	entry, err := svc.provider.ParseWebhook(payload, signature)
	if err != nil {
		webhooksRejected.Inc()
		return Transaction{}, err
	}
	return svc.Fund(ctx, entry)
}

// Fund credits the wallet owning the account of `entry`, then notifies its owner.
func (svc *Service) Fund(ctx context.Context, entry StatementEntry) (Transaction, error) {
	w, err := svc.GetByAccountNumber(ctx, entry.AccountNumber)
	if err != nil {
		return Transaction{}, err
	}
	txn, credited, err := svc.credit(ctx, w.ID, Movement{
		Amount:    entry.Amount,
		Reference: entry.Reference,
		Narration: entry.Narration,
	}, nil)
	if err != nil {
		return Transaction{}, err
	}
	if credited {
		svc.notifyFunding(ctx, w, txn)
	}
	return txn, nil
}

func (svc *Service) notifyFunding(ctx context.Context, w Wallet, txn Transaction) {
	owner, err := svc.users.GetByID(ctx, w.OwnerID)
	if err != nil {
		svc.logger.Error("finding wallet owner", err, w.OwnerID)
		return
	}
	if owner.Email == "" {
		return
	}
	w, err = svc.repo.GetWallet(ctx, GetFilter{ID: w.ID})
	if err != nil {
		svc.logger.Error("refreshing wallet", err, w.ID)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: owner.Name, Address: owner.Email}},
		Subject:      "Wallet Funded",
		TemplateName: "wallet_funded",
		TemplateData: map[string]interface{}{
			"Name":      owner.Name,
			"Amount":    core.FormatMoney(txn.Amount, w.Currency),
			"Reference": txn.Reference,
			"Balance":   core.FormatMoney(w.Balance, w.Currency),
		},
	})
}

// Reconcile compares the wallet against its ledger and against the bank statement of its virtual
// account between `from` and `to`. When `fix` is set, missing credits are recorded, pending ones are
// settled, and the stored balance is realigned on the ledger.
// Amount mismatches are only reported.
func (svc *Service) Reconcile(ctx context.Context, walletID string, from, to time.Time, fix bool) (Report, error) {
	from, to = reconcileWindow(from, to)

	w, err := svc.Get(ctx, walletID)
	if err != nil {
		return Report{}, err
	}
	entries, err := svc.provider.Statement(ctx, w.AccountNumber, from, to)
	if err != nil {
		return Report{}, errors.Wrap(err, "fetching statement")
	}

	report := Report{
		WalletID:      w.ID,
		AccountNumber: w.AccountNumber,
		Discrepancies: []Discrepancy{},
		From:          from,
		To:            to,
	}
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if w, err = svc.repo.GetWallet(ctx, GetFilter{ID: walletID}, exec); err != nil {
			return err
		}
		ledger, err := svc.repo.LedgerBalance(ctx, walletID, exec)
		if err != nil {
			return errors.Wrap(err, "computing ledger balance")
		}
		report.StoredBalance = w.Balance
		report.LedgerBalance = ledger
		balanceOff := w.Balance != ledger
		if balanceOff {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Kind:     KindBalanceMismatch,
				Expected: ledger,
				Actual:   w.Balance,
				Fixed:    fix,
			})
		}

		credits, err := svc.repo.QueryTransactions(ctx, TransactionFilter{WalletID: walletID, Type: TypeCredit}, exec)
		if err != nil {
			return errors.Wrap(err, "querying credits")
		}
		local := make(map[string]Transaction, len(credits))
		for _, txn := range credits {
			local[txn.Reference] = txn
		}

		for _, entry := range entries {
			txn, ok := local[entry.Reference]
			switch {
			case !ok:
				report.Discrepancies = append(report.Discrepancies, Discrepancy{
					Kind:      KindMissingCredit,
					Reference: entry.Reference,
					Expected:  entry.Amount,
					Fixed:     fix,
				})
			case txn.Amount != entry.Amount:
				report.Discrepancies = append(report.Discrepancies, Discrepancy{
					Kind:      KindAmountMismatch,
					Reference: entry.Reference,
					Expected:  entry.Amount,
					Actual:    txn.Amount,
				})
				continue
			case txn.Status != StatusSuccess:
				report.Discrepancies = append(report.Discrepancies, Discrepancy{
					Kind:      KindPendingSettled,
					Reference: entry.Reference,
					Expected:  entry.Amount,
					Actual:    0,
					Fixed:     fix,
				})
			default:
				continue
			}

			if fix {
				mv := Movement{Amount: entry.Amount, Reference: entry.Reference, Narration: entry.Narration}
				if _, _, err = svc.credit(ctx, walletID, mv, []core.DBExecutor{exec}); err != nil {
					return errors.Wrapf(err, "crediting %s", entry.Reference)
				}
			}
		}

		if fix && balanceOff {
			// credits above moved both sides by the same amount
			if ledger, err = svc.repo.LedgerBalance(ctx, walletID, exec); err != nil {
				return errors.Wrap(err, "computing ledger balance")
			}
			if _, err = svc.repo.SetBalance(ctx, walletID, ledger, exec); err != nil {
				return errors.Wrap(err, "realigning balance")
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	report.CheckedAt = time.Now().UTC()
	for _, d := range report.Discrepancies {
		discrepanciesFound.WithLabelValues(d.Kind).Inc()
	}
	return report, nil
}

// ReconcileAll reconciles every wallet. Failures are logged and reported once all wallets were checked.
func (svc *Service) ReconcileAll(ctx context.Context, from, to time.Time, fix bool) ([]Report, error) {
	wallets, err := svc.repo.QueryWallets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying wallets")
	}

	var (
		reports = make([]Report, 0, len(wallets))
		failed  int
	)
	for _, w := range wallets {
		if err = ctx.Err(); err != nil {
			return reports, err
		}
		report, err := svc.Reconcile(ctx, w.ID, from, to, fix)
		if err != nil {
			failed++
			svc.logger.Error("reconciling wallet", err, w.ID)
			continue
		}
		reports = append(reports, report)
	}
	if failed > 0 {
		return reports, errors.Errorf("%d of %d wallets could not be reconciled", failed, len(wallets))
	}
	return reports, nil
}

func reconcileWindow(from, to time.Time) (time.Time, time.Time) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultReconcileWindow)
	}
	return from, to
}
