package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	records := func(statuses ...string) []Record {
		rr := make([]Record, 0, len(statuses))
		for _, s := range statuses {
			rr = append(rr, Record{Status: s})
		}
		return rr
	}

	tests := []struct {
		name    string
		records []Record
		want    Summary
	}{
		{name: "nothing", want: Summary{}},
		{name: "all excused", records: records(StatusExcused, StatusExcused), want: Summary{Excused: 2, Total: 2}},
		{
			name:    "late counts as present",
			records: records(StatusPresent, StatusLate, StatusAbsent, StatusExcused),
			want:    Summary{Present: 1, Late: 1, Absent: 1, Excused: 1, Total: 4, Rate: 66.67},
		},
		{name: "always there", records: records(StatusPresent, StatusPresent), want: Summary{Present: 2, Total: 2, Rate: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.records))
		})
	}
}
