package student

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
)

// Student statuses
const (
	StatusActive    = "active"
	StatusWithdrawn = "withdrawn"
	StatusGraduated = "graduated"
)

var (
	Statuses      = []string{StatusActive, StatusWithdrawn, StatusGraduated}
	Genders       = []string{"male", "female"}
	Relationships = []string{"father", "mother", "guardian", "sponsor", "other"}
)

// InitValidators registers the student validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, "gender", Genders)
	core.RegisterOneOf(validate, translator, "relationship", Relationships)
	core.RegisterOneOf(validate, translator, "student_status", Statuses)
}

// Profile is the school record of a student user.
type Profile struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ClassID         string    `json:"class_id"`
	AdmissionNumber string    `json:"admission_number"`
	DateOfBirth     time.Time `json:"date_of_birth"`
	Gender          string    `json:"gender"`
	Status          string    `json:"status"`
	AdmittedAt      time.Time `json:"admitted_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// read-only, from the user record
	Name     string `json:"name"`
	Username string `json:"username"`
}

func (p Profile) Active() bool { return p.Status == StatusActive }

type ParentProfile struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	Occupation string    `json:"occupation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// read-only, from the user record
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Ward links a parent to a student.
type Ward struct {
	ParentID     string    `json:"parent_id"`
	StudentID    string    `json:"student_id"`
	Relationship string    `json:"relationship"`
	CreatedAt    time.Time `json:"created_at"`
}

type AdmissionParent struct {
	Name         string `json:"name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"omitempty,min=7,max=20"`
	Address      string `json:"address" validate:"max=255"`
	Occupation   string `json:"occupation" validate:"max=100"`
	Relationship string `json:"relationship" validate:"required,relationship"`
}

// AdmissionRequest contains the information needed to admit a new student.
type AdmissionRequest struct {
	FirstName   string          `json:"first_name" validate:"required,max=50"`
	LastName    string          `json:"last_name" validate:"required,max=50"`
	OtherNames  string          `json:"other_names" validate:"max=100"`
	Email       string          `json:"email" validate:"omitempty,email"`
	DateOfBirth string          `json:"date_of_birth" validate:"required,date"`
	Gender      string          `json:"gender" validate:"required,gender"`
	ClassID     string          `json:"class_id" validate:"required,uuid"`
	Parent      AdmissionParent `json:"parent"`
}

func (ar *AdmissionRequest) Clean() {
	ar.FirstName = core.CleanString(ar.FirstName)
	ar.LastName = core.CleanString(ar.LastName)
	ar.OtherNames = core.CleanString(ar.OtherNames)
	ar.Email = core.CleanString(ar.Email, true /* lower */)
	ar.Gender = core.CleanString(ar.Gender, true /* lower */)
	ar.Parent.Name = core.CleanString(ar.Parent.Name)
	ar.Parent.Email = core.CleanString(ar.Parent.Email, true /* lower */)
	ar.Parent.Phone = core.CleanString(ar.Parent.Phone)
	ar.Parent.Address = core.CleanString(ar.Parent.Address)
	ar.Parent.Occupation = core.CleanString(ar.Parent.Occupation)
	ar.Parent.Relationship = core.CleanString(ar.Parent.Relationship, true /* lower */)
}

func (ar *AdmissionRequest) Validate(validate *validator.Validate) error {
	ar.Clean()
	return validate.Struct(ar)
}

// FullName returns "First Other Last".
func (ar AdmissionRequest) FullName() string {
	parts := []string{ar.FirstName}
	if ar.OtherNames != "" {
		parts = append(parts, ar.OtherNames)
	}
	return strings.Join(append(parts, ar.LastName), " ")
}

type AdmissionResult struct {
	Student         Profile       `json:"student"`
	StudentUser     user.User     `json:"student_user"`
	StudentPassword string        `json:"student_password"`
	Parent          ParentProfile `json:"parent"`
	ParentUser      user.User     `json:"parent_user"`
	ParentPassword  string        `json:"parent_password,omitempty"` // empty for existing parents
	Wallet          wallet.Wallet `json:"wallet"`
}

type UpdateStudent struct {
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,date"`
	Gender      *string `json:"gender" validate:"omitempty,gender"`
	Status      *string `json:"status" validate:"omitempty,student_status"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	if us.Gender != nil {
		*us.Gender = core.CleanString(*us.Gender, true /* lower */)
	}
	if us.Status != nil {
		*us.Status = core.CleanString(*us.Status, true /* lower */)
	}
	return validate.Struct(us)
}

type UpdateParent struct {
	Phone      *string `json:"phone" validate:"omitempty,min=7,max=20"`
	Address    *string `json:"address" validate:"omitempty,max=255"`
	Occupation *string `json:"occupation" validate:"omitempty,max=100"`
}

func (up *UpdateParent) Validate(validate *validator.Validate) error {
	for _, s := range []*string{up.Phone, up.Address, up.Occupation} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(up)
}

type LinkWard struct {
	StudentID    string `json:"student_id" validate:"required,uuid"`
	Relationship string `json:"relationship" validate:"required,relationship"`
}

func (lw *LinkWard) Validate(validate *validator.Validate) error {
	lw.Relationship = core.CleanString(lw.Relationship, true /* lower */)
	return validate.Struct(lw)
}

type QueryFilter struct {
	ClassID string `query:"class_id"`
	Status  string `query:"status"`
	Search  string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// GetFilter selects a single student; the first non-empty field wins.
type GetFilter struct {
	ID              string
	UserID          string
	AdmissionNumber string
}

// ParentFilter selects a single parent; the first non-empty field wins.
type ParentFilter struct {
	ID     string
	UserID string
}
