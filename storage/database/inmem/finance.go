package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/finance"
)

type financeRepository struct {
	db *DB
}

var _ finance.Repository = (*financeRepository)(nil) // interface compliance check

func NewFinanceRepository(db *DB) *financeRepository {
	return &financeRepository{db: db}
}

func (repo *financeRepository) CreateFeeItem(_ context.Context, fi finance.FeeItem, _ ...core.DBExecutor) (finance.FeeItem, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	fi.ID = newID()
	repo.db.feeItems[fi.ID] = fi
	return fi, nil
}

func (repo *financeRepository) QueryFeeItems(_ context.Context, filter finance.FeeItemFilter, _ ...core.DBExecutor) ([]finance.FeeItem, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	items := make([]finance.FeeItem, 0)
	for _, fi := range repo.db.feeItems {
		if filter.ClassLevel != nil && fi.ClassLevel != *filter.ClassLevel {
			continue
		}
		if filter.Term != "" && fi.Term != filter.Term {
			continue
		}
		items = append(items, fi)
	}
	order(items, nil, nil, func(a, b finance.FeeItem) int {
		if c := compareInts(a.ClassLevel, b.ClassLevel); c != 0 {
			return c
		}
		if c := compareStrings(a.Term, b.Term); c != 0 {
			return c
		}
		return compareStrings(a.Name, b.Name)
	})
	return items, nil
}

func (repo *financeRepository) DeleteFeeItem(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.feeItems[id]; !ok {
		return finance.ErrFeeItemNotFound
	}
	delete(repo.db.feeItems, id)
	return nil
}

func (repo *financeRepository) invoiceExists(studentID, term string) bool {
	for _, inv := range repo.db.invoices {
		if inv.StudentID == studentID && inv.Term == term {
			return true
		}
	}
	return false
}

func (repo *financeRepository) CreateInvoice(_ context.Context, inv finance.Invoice, _ ...core.DBExecutor) (finance.Invoice, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.invoiceExists(inv.StudentID, inv.Term) {
		return finance.Invoice{}, finance.ErrInvoiceExists
	}
	inv.ID = newID()
	repo.db.invoices[inv.ID] = inv
	return inv, nil
}

func (repo *financeRepository) InvoiceExists(_ context.Context, studentID, term string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.invoiceExists(studentID, term), nil
}

func (repo *financeRepository) GetInvoice(_ context.Context, id string, _ ...core.DBExecutor) (finance.Invoice, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if inv, ok := repo.db.invoices[id]; ok {
		return inv, nil
	}
	return finance.Invoice{}, finance.ErrNotFound
}

func (repo *financeRepository) QueryInvoices(_ context.Context, filter finance.InvoiceFilter, _ ...core.DBExecutor) ([]finance.Invoice, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var students map[string]bool
	if filter.StudentIDs != nil {
		students = make(map[string]bool, len(filter.StudentIDs))
		for _, id := range filter.StudentIDs {
			students[id] = true
		}
	}

	invoices := make([]finance.Invoice, 0)
	for _, inv := range repo.db.invoices {
		switch {
		case filter.StudentID != "" && inv.StudentID != filter.StudentID,
			students != nil && !students[inv.StudentID],
			filter.Term != "" && inv.Term != filter.Term,
			filter.Status != "" && inv.Status != filter.Status:
			continue
		}
		invoices = append(invoices, inv)
	}
	order(invoices, nil, nil, func(a, b finance.Invoice) int { return -compareTimes(a.CreatedAt, b.CreatedAt) })
	return invoices, nil
}

func (repo *financeRepository) AddPayment(_ context.Context, invoiceID string, amount int64, at time.Time, _ ...core.DBExecutor) (finance.Invoice, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	inv, ok := repo.db.invoices[invoiceID]
	if !ok {
		return finance.Invoice{}, finance.ErrNotFound
	}
	if inv.AmountPaid+amount > inv.Amount {
		return finance.Invoice{}, finance.ErrOverpayment
	}
	inv.AmountPaid += amount
	inv.Status = finance.InvoiceStatus(inv.Amount, inv.AmountPaid)
	inv.UpdatedAt = at.UTC()
	repo.db.invoices[invoiceID] = inv
	return inv, nil
}

func (repo *financeRepository) CreatePayment(_ context.Context, p finance.Payment, _ ...core.DBExecutor) (finance.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = newID()
	repo.db.payments[p.ID] = p
	return p, nil
}

func (repo *financeRepository) QueryPayments(_ context.Context, invoiceID string, _ ...core.DBExecutor) ([]finance.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	payments := make([]finance.Payment, 0)
	for _, p := range repo.db.payments {
		if p.InvoiceID == invoiceID {
			payments = append(payments, p)
		}
	}
	order(payments, nil, nil, func(a, b finance.Payment) int { return compareTimes(a.PaidAt, b.PaidAt) })
	return payments, nil
}
