package payroll

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Run statuses
const (
	StatusDraft    = "draft"
	StatusApproved = "approved"
	StatusPaid     = "paid"
)

// SalaryStructure is the monthly pay of a staff member, in minor units.
type SalaryStructure struct {
	ID            string    `json:"id"`
	StaffID       string    `json:"staff_id"`
	Basic         int64     `json:"basic"`
	Allowances    int64     `json:"allowances"`
	Deductions    int64     `json:"deductions"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Run struct {
	ID         string    `json:"id"`
	Period     string    `json:"period"` // YYYY-MM
	Status     string    `json:"status"`
	TotalGross int64     `json:"total_gross"`
	TotalNet   int64     `json:"total_net"`
	CreatedBy  string    `json:"created_by"`
	ApprovedBy string    `json:"approved_by,omitempty"`
	ApprovedAt time.Time `json:"approved_at"`
	PaidAt     time.Time `json:"paid_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Payslip struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	StaffID    string    `json:"staff_id"`
	Period     string    `json:"period"`
	Basic      int64     `json:"basic"`
	Allowances int64     `json:"allowances"`
	Gross      int64     `json:"gross"`
	Pension    int64     `json:"pension"`
	Tax        int64     `json:"tax"`
	Deductions int64     `json:"deductions"`
	Net        int64     `json:"net"`
	CreatedAt  time.Time `json:"created_at"`
}

// Rates are the statutory rates applied to salaries.
type Rates struct {
	Tax     float64
	Pension float64
}

// Compute derives the payslip of a salary structure:
//   gross = basic + allowances
//   pension = basic * pension rate
//   tax = (gross - pension) * tax rate
//   net = gross - pension - tax - deductions, never negative
func Compute(s SalaryStructure, rates Rates) Payslip {
	gross := s.Basic + s.Allowances
	pension := core.Percent(s.Basic, rates.Pension)
	tax := core.Percent(gross-pension, rates.Tax)
	net := gross - pension - tax - s.Deductions
	if net < 0 {
		net = 0
	}
	return Payslip{
		StaffID:    s.StaffID,
		Basic:      s.Basic,
		Allowances: s.Allowances,
		Gross:      gross,
		Pension:    pension,
		Tax:        tax,
		Deductions: s.Deductions,
		Net:        net,
	}
}

type SetSalary struct {
	Basic         int64  `json:"basic" validate:"gt=0"`
	Allowances    int64  `json:"allowances" validate:"gte=0"`
	Deductions    int64  `json:"deductions" validate:"gte=0"`
	BankName      string `json:"bank_name" validate:"max=100"`
	AccountNumber string `json:"account_number" validate:"omitempty,numeric,min=6,max=20"`
}

func (ss *SetSalary) Validate(validate *validator.Validate) error {
	ss.BankName = core.CleanString(ss.BankName)
	ss.AccountNumber = core.CleanString(ss.AccountNumber)
	return validate.Struct(ss)
}

type GenerateRun struct {
	Period string `json:"period" validate:"required,period"`
}

func (gr *GenerateRun) Validate(validate *validator.Validate) error {
	gr.Period = core.CleanString(gr.Period)
	return validate.Struct(gr)
}

type PayslipFilter struct {
	RunID   string
	StaffID string
}
