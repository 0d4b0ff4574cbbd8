package school

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

type Class struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Level         int       `json:"level"`
	Section       string    `json:"section"`
	AcademicYear  string    `json:"academic_year"`
	FormTeacherID string    `json:"form_teacher_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayName returns eg. "JSS 1 A".
func (c Class) DisplayName() string {
	if c.Section == "" {
		return c.Name
	}
	return c.Name + " " + c.Section
}

type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	ClassID   string    `json:"class_id"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewClass struct {
	Name          string `json:"name" validate:"required,max=50"`
	Level         int    `json:"level" validate:"min=0,max=20"`
	Section       string `json:"section" validate:"max=10"`
	AcademicYear  string `json:"academic_year" validate:"required,max=9"`
	FormTeacherID string `json:"form_teacher_id" validate:"omitempty,uuid"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Section = core.CleanString(nc.Section)
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
	return validate.Struct(nc)
}

type UpdateClass struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=50"`
	Level         *int    `json:"level" validate:"omitempty,min=0,max=20"`
	Section       *string `json:"section" validate:"omitempty,max=10"`
	AcademicYear  *string `json:"academic_year" validate:"omitempty,min=1,max=9"`
	FormTeacherID *string `json:"form_teacher_id" validate:"omitempty,uuid"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	for _, s := range []*string{uc.Name, uc.Section, uc.AcademicYear} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(uc)
}

type NewSubject struct {
	Name      string `json:"name" validate:"required,max=100"`
	Code      string `json:"code" validate:"required,max=20,alphanum_"`
	ClassID   string `json:"class_id" validate:"required,uuid"`
	TeacherID string `json:"teacher_id" validate:"omitempty,uuid"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Code = strings.ToUpper(core.CleanString(ns.Code))
	return validate.Struct(ns)
}

type UpdateSubject struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	TeacherID *string `json:"teacher_id" validate:"omitempty,uuid"`
}

func (us *UpdateSubject) Validate(validate *validator.Validate) error {
	if us.Name != nil {
		*us.Name = core.CleanString(*us.Name)
	}
	return validate.Struct(us)
}

type ClassFilter struct {
	AcademicYear  string `query:"academic_year"`
	Level         *int   `query:"level"`
	FormTeacherID string `query:"form_teacher_id"`
}

type SubjectFilter struct {
	ClassID   string `query:"class_id"`
	TeacherID string `query:"teacher_id"`
}
