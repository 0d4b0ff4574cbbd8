package assessment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLetterGrade(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{pct: 100, want: "A"},
		{pct: 70, want: "A"},
		{pct: 69.99, want: "B"},
		{pct: 60, want: "B"},
		{pct: 50, want: "C"},
		{pct: 45, want: "D"},
		{pct: 40, want: "E"},
		{pct: 39.5, want: "F"},
		{pct: 0, want: "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LetterGrade(tt.pct), "LetterGrade(%v)", tt.pct)
	}
}
