package finance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Invoice statuses
const (
	StatusUnpaid  = "unpaid"
	StatusPartial = "partial"
	StatusPaid    = "paid"
)

// FeeItem is a fee charged to every student of a class level for a term.
type FeeItem struct {
	ID         string    `json:"id"`
	ClassLevel int       `json:"class_level"`
	Term       string    `json:"term"`
	Name       string    `json:"name"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

type Invoice struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	Term       string    `json:"term"`
	Amount     int64     `json:"amount"`
	AmountPaid int64     `json:"amount_paid"`
	Status     string    `json:"status"`
	DueAt      time.Time `json:"due_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (inv Invoice) Outstanding() int64 { return inv.Amount - inv.AmountPaid }

// InvoiceStatus derives the status of an invoice from its amounts.
func InvoiceStatus(amount, paid int64) string {
	switch {
	case paid >= amount:
		return StatusPaid
	case paid > 0:
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// Payment records the settlement of (part of) an invoice from a wallet.
type Payment struct {
	ID            string    `json:"id"`
	InvoiceID     string    `json:"invoice_id"`
	PayerID       string    `json:"payer_id"`
	Amount        int64     `json:"amount"`
	TransactionID string    `json:"transaction_id"`
	PaidAt        time.Time `json:"paid_at"`
}

type NewFeeItem struct {
	ClassLevel int    `json:"class_level" validate:"min=0,max=20"`
	Term       string `json:"term" validate:"required,max=20"`
	Name       string `json:"name" validate:"required,max=100"`
	Amount     int64  `json:"amount" validate:"gt=0"`
}

func (nf *NewFeeItem) Validate(validate *validator.Validate) error {
	nf.Term = core.CleanString(nf.Term)
	nf.Name = core.CleanString(nf.Name)
	return validate.Struct(nf)
}

type GenerateInvoices struct {
	ClassLevel int    `json:"class_level" validate:"min=0,max=20"`
	Term       string `json:"term" validate:"required,max=20"`
	DueAt      string `json:"due_at" validate:"required,date"`
}

func (gi *GenerateInvoices) Validate(validate *validator.Validate) error {
	gi.Term = core.CleanString(gi.Term)
	return validate.Struct(gi)
}

type PayInvoice struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

func (pi PayInvoice) Validate(validate *validator.Validate) error { return validate.Struct(pi) }

type FeeItemFilter struct {
	ClassLevel *int   `query:"class_level"`
	Term       string `query:"term"`
}

type InvoiceFilter struct {
	StudentID  string   `query:"student_id"`
	StudentIDs []string `query:"-"`
	Term       string   `query:"term"`
	Status     string   `query:"status"`
}

// Totals sums invoiced & collected amounts.
type Totals struct {
	Invoiced    int64 `json:"invoiced"`
	Collected   int64 `json:"collected"`
	Outstanding int64 `json:"outstanding"`
}
