package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/finance"
)

const (
	feeItemColumns = `id, class_level, term, name, amount, created_at`
	invoiceColumns = `id, student_id, term, amount, amount_paid, status, due_at, created_at, updated_at`
	paymentColumns = `id, invoice_id, payer_id, amount, transaction_id, paid_at`
)

type feeItemRow struct {
	ID         string    `db:"id"`
	ClassLevel int       `db:"class_level"`
	Term       string    `db:"term"`
	Name       string    `db:"name"`
	Amount     int64     `db:"amount"`
	CreatedAt  time.Time `db:"created_at"`
}

func (row feeItemRow) feeItem() finance.FeeItem {
	return finance.FeeItem{
		ID:         row.ID,
		ClassLevel: row.ClassLevel,
		Term:       row.Term,
		Name:       row.Name,
		Amount:     row.Amount,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

type invoiceRow struct {
	ID         string    `db:"id"`
	StudentID  string    `db:"student_id"`
	Term       string    `db:"term"`
	Amount     int64     `db:"amount"`
	AmountPaid int64     `db:"amount_paid"`
	Status     string    `db:"status"`
	DueAt      time.Time `db:"due_at"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row invoiceRow) invoice() finance.Invoice {
	return finance.Invoice{
		ID:         row.ID,
		StudentID:  row.StudentID,
		Term:       row.Term,
		Amount:     row.Amount,
		AmountPaid: row.AmountPaid,
		Status:     row.Status,
		DueAt:      row.DueAt.UTC(),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

type paymentRow struct {
	ID            string    `db:"id"`
	InvoiceID     string    `db:"invoice_id"`
	PayerID       string    `db:"payer_id"`
	Amount        int64     `db:"amount"`
	TransactionID string    `db:"transaction_id"`
	PaidAt        time.Time `db:"paid_at"`
}

type financeRepository struct {
	repo
}

var _ finance.Repository = (*financeRepository)(nil) // interface compliance check

func NewFinanceRepository(db *sqlx.DB) *financeRepository {
	return &financeRepository{repo{db: db}}
}

func (r financeRepository) CreateFeeItem(ctx context.Context, fi finance.FeeItem, exec ...core.DBExecutor) (finance.FeeItem, error) {
	row := feeItemRow{
		ID:         newID(),
		ClassLevel: fi.ClassLevel,
		Term:       fi.Term,
		Name:       fi.Name,
		Amount:     fi.Amount,
		CreatedAt:  fi.CreatedAt.UTC(),
	}
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO fee_items (`+feeItemColumns+`) VALUES (:id, :class_level, :term, :name, :amount, :created_at)`,
		row)
	if err != nil {
		return finance.FeeItem{}, errors.Wrap(err, "inserting fee item")
	}
	return row.feeItem(), nil
}

func (r financeRepository) QueryFeeItems(ctx context.Context, filter finance.FeeItemFilter, exec ...core.DBExecutor) ([]finance.FeeItem, error) {
	var w where
	if filter.ClassLevel != nil {
		w.add("class_level = ?", *filter.ClassLevel)
	}
	if filter.Term != "" {
		w.add("term = ?", filter.Term)
	}

	var rows []feeItemRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+feeItemColumns+" FROM fee_items"+w.String()+" ORDER BY class_level, term, name", w.args...); err != nil {
		return nil, errors.Wrap(err, "querying fee items")
	}
	items := make([]finance.FeeItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.feeItem())
	}
	return items, nil
}

func (r financeRepository) DeleteFeeItem(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return finance.ErrFeeItemNotFound
	}
	n, err := r.exec(ctx, exec, "DELETE FROM fee_items WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting fee item")
	}
	if n == 0 {
		return finance.ErrFeeItemNotFound
	}
	return nil
}

func (r financeRepository) CreateInvoice(ctx context.Context, inv finance.Invoice, exec ...core.DBExecutor) (finance.Invoice, error) {
	row := invoiceRow{
		ID:         newID(),
		StudentID:  inv.StudentID,
		Term:       inv.Term,
		Amount:     inv.Amount,
		AmountPaid: inv.AmountPaid,
		Status:     inv.Status,
		DueAt:      inv.DueAt.UTC(),
		CreatedAt:  inv.CreatedAt.UTC(),
		UpdatedAt:  inv.UpdatedAt.UTC(),
	}
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (:id, :student_id, :term, :amount, :amount_paid, :status, :due_at, :created_at, :updated_at)`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return finance.Invoice{}, finance.ErrInvoiceExists
		}
		return finance.Invoice{}, errors.Wrap(err, "inserting invoice")
	}
	return row.invoice(), nil
}

func (r financeRepository) InvoiceExists(ctx context.Context, studentID, term string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := r.get(ctx, exec, &exists, "SELECT EXISTS (SELECT 1 FROM invoices WHERE student_id = ? AND term = ?)", studentID, term)
	if err != nil {
		return false, errors.Wrap(err, "checking invoice")
	}
	return exists, nil
}

func (r financeRepository) GetInvoice(ctx context.Context, id string, exec ...core.DBExecutor) (finance.Invoice, error) {
	if _, err := uuid.Parse(id); err != nil {
		return finance.Invoice{}, finance.ErrNotFound
	}
	var row invoiceRow
	if err := r.get(ctx, exec, &row, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id); err != nil {
		return finance.Invoice{}, trapNoRows(err, finance.ErrNotFound, "finding invoice")
	}
	return row.invoice(), nil
}

func (r financeRepository) QueryInvoices(ctx context.Context, filter finance.InvoiceFilter, exec ...core.DBExecutor) ([]finance.Invoice, error) {
	var w where
	if filter.StudentID != "" {
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.StudentIDs != nil {
		if len(filter.StudentIDs) == 0 {
			return []finance.Invoice{}, nil
		}
		q, args := in("student_id IN (?)", filter.StudentIDs)
		w.add(q, args...)
	}
	if filter.Term != "" {
		w.add("term = ?", filter.Term)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}

	var rows []invoiceRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+invoiceColumns+" FROM invoices"+w.String()+" ORDER BY created_at DESC", w.args...); err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	invoices := make([]finance.Invoice, 0, len(rows))
	for _, row := range rows {
		invoices = append(invoices, row.invoice())
	}
	return invoices, nil
}

func (r financeRepository) AddPayment(ctx context.Context, invoiceID string, amount int64, at time.Time, exec ...core.DBExecutor) (finance.Invoice, error) {
	var row invoiceRow
	err := r.get(ctx, exec, &row, `
		UPDATE invoices SET
			amount_paid = amount_paid + ?,
			status = CASE WHEN amount_paid + ? >= amount THEN ? ELSE ? END,
			updated_at = ?
		WHERE id = ? AND amount_paid + ? <= amount
		RETURNING `+invoiceColumns,
		amount, amount, finance.StatusPaid, finance.StatusPartial, at.UTC(), invoiceID, amount)
	if err == nil {
		return row.invoice(), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return finance.Invoice{}, errors.Wrap(err, "adding payment")
	}

	if _, err = r.GetInvoice(ctx, invoiceID, exec...); err != nil {
		return finance.Invoice{}, err
	}
	return finance.Invoice{}, finance.ErrOverpayment
}

func (r financeRepository) CreatePayment(ctx context.Context, p finance.Payment, exec ...core.DBExecutor) (finance.Payment, error) {
	p.ID = newID()
	p.PaidAt = p.PaidAt.UTC()
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO invoice_payments (`+paymentColumns+`)
		VALUES (:id, :invoice_id, :payer_id, :amount, :transaction_id, :paid_at)`,
		paymentRow(p))
	if err != nil {
		return finance.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (r financeRepository) QueryPayments(ctx context.Context, invoiceID string, exec ...core.DBExecutor) ([]finance.Payment, error) {
	var rows []paymentRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+paymentColumns+" FROM invoice_payments WHERE invoice_id = ? ORDER BY paid_at", invoiceID); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]finance.Payment, 0, len(rows))
	for _, row := range rows {
		p := finance.Payment(row)
		p.PaidAt = p.PaidAt.UTC()
		payments = append(payments, p)
	}
	return payments, nil
}
