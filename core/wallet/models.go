package wallet

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Transaction types
const (
	TypeCredit = "credit"
	TypeDebit  = "debit"
)

// Transaction statuses
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Discrepancy kinds
const (
	KindBalanceMismatch = "balance_mismatch" // stored balance != sum of successful transactions
	KindMissingCredit   = "missing_credit"   // provider paid, no local transaction
	KindAmountMismatch  = "amount_mismatch"  // provider and local amounts differ
	KindPendingSettled  = "pending_settled"  // provider paid, local transaction not successful
)

// Wallet holds the funds of a parent. Amounts are in minor units (kobo, cents...).
type Wallet struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Balance       int64     `json:"balance"`
	Currency      string    `json:"currency"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	BankName      string    `json:"bank_name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Transaction struct {
	ID        string    `json:"id"`
	WalletID  string    `json:"wallet_id"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Narration string    `json:"narration"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Signed returns the amount as it affects the balance.
func (t Transaction) Signed() int64 {
	if t.Type == TypeDebit {
		return -t.Amount
	}
	return t.Amount
}

type GetFilter struct {
	ID            string
	OwnerID       string
	AccountNumber string
}

type TransactionFilter struct {
	WalletID string    `query:"-"`
	Type     string    `query:"type"`
	Status   string    `query:"status"`
	From     time.Time `query:"from"`
	To       time.Time `query:"to"`
}

// VirtualAccount is a bank account number dedicated to a wallet.
type VirtualAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
}

type VirtualAccountRequest struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// StatementEntry is a payment into a virtual account, as reported by the bank.
type StatementEntry struct {
	Reference     string    `json:"reference"`
	AccountNumber string    `json:"account_number"`
	Amount        int64     `json:"amount"`
	Narration     string    `json:"narration"`
	PaidAt        time.Time `json:"paid_at"`
}

type Movement struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"omitempty,max=100"`
	Narration string `json:"narration" validate:"max=255"`
}

func (m *Movement) Validate(validate *validator.Validate) error {
	m.Reference = core.CleanString(m.Reference)
	m.Narration = core.CleanString(m.Narration)
	return validate.Struct(m)
}

type Discrepancy struct {
	Kind      string `json:"kind"`
	Reference string `json:"reference,omitempty"`
	Expected  int64  `json:"expected"`
	Actual    int64  `json:"actual"`
	Fixed     bool   `json:"fixed"`
}

// Report is the outcome of the reconciliation of a wallet.
type Report struct {
	WalletID      string        `json:"wallet_id"`
	AccountNumber string        `json:"account_number"`
	StoredBalance int64         `json:"stored_balance"`
	LedgerBalance int64         `json:"ledger_balance"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	From          time.Time     `json:"from"`
	To            time.Time     `json:"to"`
	CheckedAt     time.Time     `json:"checked_at"`
}

func (r Report) Balanced() bool { return len(r.Discrepancies) == 0 }
