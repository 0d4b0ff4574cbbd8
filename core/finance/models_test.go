package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceStatus(t *testing.T) {
	assert.Equal(t, StatusUnpaid, InvoiceStatus(50000, 0))
	assert.Equal(t, StatusPartial, InvoiceStatus(50000, 1))
	assert.Equal(t, StatusPaid, InvoiceStatus(50000, 50000))
	assert.Equal(t, StatusPaid, InvoiceStatus(0, 0))

	inv := Invoice{Amount: 50000, AmountPaid: 10000}
	assert.Equal(t, int64(40000), inv.Outstanding())
}
