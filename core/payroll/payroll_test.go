package payroll

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	rates := Rates{Tax: 0.1, Pension: 0.08}
	tests := []struct {
		name string
		s    SalaryStructure
		want Payslip
	}{
		{
			name: "basic only",
			s:    SalaryStructure{StaffID: "x", Basic: 100000},
			want: Payslip{StaffID: "x", Basic: 100000, Gross: 100000, Pension: 8000, Tax: 9200, Net: 82800},
		},
		{
			name: "with allowances & deductions",
			s:    SalaryStructure{Basic: 100000, Allowances: 20000, Deductions: 1000},
			want: Payslip{Basic: 100000, Allowances: 20000, Gross: 120000, Pension: 8000, Tax: 11200, Deductions: 1000, Net: 99800},
		},
		{
			name: "net never negative",
			s:    SalaryStructure{Basic: 1000, Deductions: 5000},
			want: Payslip{Basic: 1000, Gross: 1000, Pension: 80, Tax: 92, Deductions: 5000, Net: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.s, rates))
		})
	}
}
