package attendance

import (
	"math"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Attendance statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

var Statuses = []string{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

// InitValidators registers the attendance validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, "attendance_status", Statuses)
}

type Record struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ClassID   string    `json:"class_id"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	Remark    string    `json:"remark"`
	MarkedBy  string    `json:"marked_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Entry struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Status    string `json:"status" validate:"required,attendance_status"`
	Remark    string `json:"remark" validate:"max=255"`
}

// MarkClass is the register of a class for a day.
type MarkClass struct {
	Date    string  `json:"date" validate:"required,date"`
	Entries []Entry `json:"entries" validate:"required,min=1,dive"`
}

func (mc *MarkClass) Validate(validate *validator.Validate) error {
	for i := range mc.Entries {
		mc.Entries[i].Status = core.CleanString(mc.Entries[i].Status, true /* lower */)
		mc.Entries[i].Remark = core.CleanString(mc.Entries[i].Remark)
	}
	return validate.Struct(mc)
}

type Filter struct {
	StudentID string
	ClassID   string
	From      time.Time
	To        time.Time
}

type Summary struct {
	StudentID string    `json:"student_id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Present   int       `json:"present"`
	Absent    int       `json:"absent"`
	Late      int       `json:"late"`
	Excused   int       `json:"excused"`
	Total     int       `json:"total"`
	Rate      float64   `json:"rate"` // percentage
}

// Summarize counts the records per status. The attendance rate is (present + late) / (total - excused).
func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		switch r.Status {
		case StatusPresent:
			s.Present++
		case StatusAbsent:
			s.Absent++
		case StatusLate:
			s.Late++
		case StatusExcused:
			s.Excused++
		}
		s.Total++
	}
	if counted := s.Total - s.Excused; counted > 0 {
		s.Rate = math.Round(float64(s.Present+s.Late)/float64(counted)*10000) / 100
	}
	return s
}
