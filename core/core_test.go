package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{amount: 0, want: "NGN 0.00"},
		{amount: 5, want: "NGN 0.05"},
		{amount: 1250050, want: "NGN 12,500.50"},
		{amount: 123456789, want: "NGN 1,234,567.89"},
		{amount: -100000, want: "NGN -1,000.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMoney(tt.amount, "NGN"))
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, int64(750), Percent(10000, 0.075))
	assert.Equal(t, int64(1), Percent(14, 0.1))
	assert.Equal(t, int64(2), Percent(16, 0.1))
	assert.Equal(t, int64(0), Percent(0, 0.5))
}

func TestRandomString(t *testing.T) {
	s, err := RandomString(UnambiguousAlphabet, 12)
	require.NoError(t, err)
	assert.Len(t, s, 12)
	for _, r := range s {
		assert.Contains(t, UnambiguousAlphabet, string(r))
	}

	_, err = RandomString("", 4)
	assert.Error(t, err)
}

func TestRandomPassword(t *testing.T) {
	for i := 0; i < 20; i++ {
		pwd, err := RandomPassword(10)
		require.NoError(t, err)
		assert.Len(t, pwd, 10)
		assert.Regexp(t, "[a-z]", pwd)
		assert.Regexp(t, "[A-Z]", pwd)
		assert.Regexp(t, "[0-9]", pwd)
		assert.Regexp(t, "[^A-Za-z0-9]", pwd)
	}
}

func TestErrors(t *testing.T) {
	nf := NewNotFoundError("student not found")
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsNotFound(NewConflictError("lol")))
	assert.True(t, IsConflict(NewConflictError("lol")))
	assert.True(t, IsShutdown(NewShutdownError("bye")))

	verr := NewFieldValidationError("code", nf)
	assert.Equal(t, "student not found", verr.Error())
	assert.Equal(t, "code: required", ValidationError{Fields: []FieldError{{Field: "code", Error: "required"}}}.Error())
}

func TestDBOrdering(t *testing.T) {
	assert.Equal(t, "name ASC", DBOrdering{Field: "name", Ascending: true}.String())
	assert.Equal(t, "created_at DESC", DBOrdering{Field: "created_at"}.String())
}
