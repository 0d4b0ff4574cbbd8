package finance

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
)

var (
	// errors
	ErrFeeItemNotFound = core.NewNotFoundError("fee item not found")
	ErrNotFound        = core.NewNotFoundError("invoice not found")
	ErrInvoiceExists   = core.NewConflictError("the student already has an invoice for this term")
	ErrAlreadyPaid     = core.NewConflictError("invoice already paid")
	ErrOverpayment     = errors.New("amount is greater than the outstanding amount")
	ErrNoFeeItems      = errors.New("no fee items for this class level and term")
	ErrNotWard         = core.NewForbiddenError("the student is not a ward of the payer")
)

type (
	Repository interface {
		CreateFeeItem(ctx context.Context, fi FeeItem, exec ...core.DBExecutor) (FeeItem, error)
		QueryFeeItems(ctx context.Context, filter FeeItemFilter, exec ...core.DBExecutor) ([]FeeItem, error)
		DeleteFeeItem(ctx context.Context, id string, exec ...core.DBExecutor) error

		// CreateInvoice fails with ErrInvoiceExists when the student already has an invoice for the term.
		CreateInvoice(ctx context.Context, inv Invoice, exec ...core.DBExecutor) (Invoice, error)
		InvoiceExists(ctx context.Context, studentID, term string, exec ...core.DBExecutor) (bool, error)
		GetInvoice(ctx context.Context, id string, exec ...core.DBExecutor) (Invoice, error)
		QueryInvoices(ctx context.Context, filter InvoiceFilter, exec ...core.DBExecutor) ([]Invoice, error)
		// AddPayment atomically adds `amount` to the paid amount of the invoice & updates its status.
		// It fails with ErrOverpayment when the invoice would be overpaid.
		AddPayment(ctx context.Context, invoiceID string, amount int64, at time.Time, exec ...core.DBExecutor) (Invoice, error)
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, invoiceID string, exec ...core.DBExecutor) ([]Payment, error)
	}

	ClassQuerier interface {
		QueryClasses(ctx context.Context, filter school.ClassFilter, ordering []core.DBOrdering) ([]school.Class, error)
	}

	StudentService interface {
		Query(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Profile, error)
		IsWardOfUser(ctx context.Context, userID, studentID string) (bool, error)
	}

	WalletService interface {
		GetByOwner(ctx context.Context, ownerID string) (wallet.Wallet, error)
		Debit(ctx context.Context, walletID string, mv wallet.Movement, exec ...core.DBExecutor) (wallet.Transaction, error)
	}

	Service struct {
		repo     Repository
		tx       core.TxRunner
		classes  ClassQuerier
		students StudentService
		wallets  WalletService
		nowFunc  func() time.Time
	}
)

func NewService(repo Repository, tx core.TxRunner, classes ClassQuerier, students StudentService, wallets WalletService) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(classes, "classes"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(wallets, "wallets"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		tx:       tx,
		classes:  classes,
		students: students,
		wallets:  wallets,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateFeeItem saves a new fee item. `nf` is expected to be validated.
func (svc *Service) CreateFeeItem(ctx context.Context, nf NewFeeItem) (FeeItem, error) {
	return svc.repo.CreateFeeItem(ctx, FeeItem{
		ClassLevel: nf.ClassLevel,
		Term:       nf.Term,
		Name:       nf.Name,
		Amount:     nf.Amount,
		CreatedAt:  svc.nowFunc(),
	})
}

func (svc *Service) QueryFeeItems(ctx context.Context, filter FeeItemFilter) ([]FeeItem, error) {
	return svc.repo.QueryFeeItems(ctx, filter)
}

func (svc *Service) DeleteFeeItem(ctx context.Context, id string) error {
	return svc.repo.DeleteFeeItem(ctx, id)
}

// GenerateInvoices bills every active student of the class level with the fee items of the term.
// Students already invoiced for the term are skipped. `gi` is expected to be validated.
func (svc *Service) GenerateInvoices(ctx context.Context, gi GenerateInvoices) ([]Invoice, error) {
	dueAt, err := time.Parse(core.DateLayout, gi.DueAt)
	if err != nil {
		return nil, core.NewFieldValidationError("due_at", err)
	}

	level := gi.ClassLevel
	items, err := svc.repo.QueryFeeItems(ctx, FeeItemFilter{ClassLevel: &level, Term: gi.Term})
	if err != nil {
		return nil, errors.Wrap(err, "querying fee items")
	}
	if len(items) == 0 {
		return nil, core.NewFieldValidationError("class_level", ErrNoFeeItems)
	}
	var amount int64
	for _, it := range items {
		amount += it.Amount
	}

	classes, err := svc.classes.QueryClasses(ctx, school.ClassFilter{Level: &level}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}

	var students []student.Profile
	for _, c := range classes {
		members, err := svc.students.Query(ctx, student.QueryFilter{ClassID: c.ID, Status: student.StatusActive}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "querying students")
		}
		students = append(students, members...)
	}

	invoices := make([]Invoice, 0, len(students))
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		now := svc.nowFunc()
		for _, st := range students {
			exists, err := svc.repo.InvoiceExists(ctx, st.ID, gi.Term, exec)
			if err != nil {
				return errors.Wrap(err, "checking invoice")
			}
			if exists {
				continue
			}
			inv, err := svc.repo.CreateInvoice(ctx, Invoice{
				StudentID: st.ID,
				Term:      gi.Term,
				Amount:    amount,
				Status:    StatusUnpaid,
				DueAt:     dueAt,
				CreatedAt: now,
				UpdatedAt: now,
			}, exec)
			if err != nil {
				return errors.Wrapf(err, "invoicing %s", st.ID)
			}
			invoices = append(invoices, inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (svc *Service) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	return svc.repo.GetInvoice(ctx, id)
}

func (svc *Service) QueryInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	return svc.repo.QueryInvoices(ctx, filter)
}

func (svc *Service) Payments(ctx context.Context, invoiceID string) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, invoiceID)
}

// PayInvoice settles (part of) the invoice of a ward from the wallet of the payer.
// The wallet debit and the invoice update happen in the same transaction.
func (svc *Service) PayInvoice(ctx context.Context, payer user.User, invoiceID string, pi PayInvoice) (Invoice, error) {
	inv, err := svc.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status == StatusPaid {
		return Invoice{}, ErrAlreadyPaid
	}
	if pi.Amount > inv.Outstanding() {
		return Invoice{}, core.NewFieldValidationError("amount", ErrOverpayment)
	}
	ok, err := svc.students.IsWardOfUser(ctx, payer.ID, inv.StudentID)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "checking ward")
	}
	if !ok {
		return Invoice{}, ErrNotWard
	}
	w, err := svc.wallets.GetByOwner(ctx, payer.ID)
	if err != nil {
		return Invoice{}, err
	}

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		now := svc.nowFunc()
		txn, err := svc.wallets.Debit(ctx, w.ID, wallet.Movement{
			Amount:    pi.Amount,
			Narration: "School fees " + inv.Term,
		}, exec)
		if err != nil {
			return err
		}

		if inv, err = svc.repo.AddPayment(ctx, inv.ID, pi.Amount, now, exec); err != nil {
			if errors.Cause(err) == ErrOverpayment {
				return core.NewFieldValidationError("amount", ErrOverpayment)
			}
			return errors.Wrap(err, "updating invoice")
		}

		_, err = svc.repo.CreatePayment(ctx, Payment{
			InvoiceID:     inv.ID,
			PayerID:       payer.ID,
			Amount:        pi.Amount,
			TransactionID: txn.ID,
			PaidAt:        now,
		}, exec)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Totals sums the invoices matching `filter`.
func (svc *Service) Totals(ctx context.Context, filter InvoiceFilter) (Totals, error) {
	invoices, err := svc.repo.QueryInvoices(ctx, filter)
	if err != nil {
		return Totals{}, err
	}
	var t Totals
	for _, inv := range invoices {
		t.Invoiced += inv.Amount
		t.Collected += inv.AmountPaid
	}
	t.Outstanding = t.Invoiced - t.Collected
	return t, nil
}
