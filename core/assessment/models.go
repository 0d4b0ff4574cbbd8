package assessment

import (
	"math"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Assessment kinds
const (
	KindAssignment = "assignment"
	KindTest       = "test"
	KindExam       = "exam"
)

var Kinds = []string{KindAssignment, KindTest, KindExam}

// InitValidators registers the assessment validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, "assessment_kind", Kinds)
}

type Assessment struct {
	ID            string    `json:"id"`
	ClassID       string    `json:"class_id"`
	SubjectID     string    `json:"subject_id"`
	TeacherID     string    `json:"teacher_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Kind          string    `json:"kind"`
	Term          string    `json:"term"`
	MaxScore      float64   `json:"max_score"`
	Weight        float64   `json:"weight"`
	RequiresToken bool      `json:"requires_token"`
	AllowLate     bool      `json:"allow_late"`
	OpensAt       time.Time `json:"opens_at"`
	DueAt         time.Time `json:"due_at"`
	Published     bool      `json:"published"`
	PublishedAt   time.Time `json:"published_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsOpen reports whether submissions are accepted at `t`.
func (a Assessment) IsOpen(t time.Time) bool {
	if t.Before(a.OpensAt) {
		return false
	}
	return a.AllowLate || !t.After(a.DueAt)
}

// Token grants access to an assessment. A token bound to a student can only be redeemed by that student.
type Token struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	Code         string    `json:"code"`
	StudentID    string    `json:"student_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"` // zero: never
	UsedAt       time.Time `json:"used_at"`
	UsedBy       string    `json:"used_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (t Token) Used() bool { return !t.UsedAt.IsZero() }

func (t Token) Expired(at time.Time) bool {
	return !t.ExpiresAt.IsZero() && at.After(t.ExpiresAt)
}

type Submission struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	StudentID    string    `json:"student_id"`
	Answer       string    `json:"answer"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Late         bool      `json:"late"`
	Score        *float64  `json:"score"`
	Feedback     string    `json:"feedback"`
	GradedAt     time.Time `json:"graded_at"`
	GradedBy     string    `json:"graded_by,omitempty"`
}

func (s Submission) Graded() bool { return s.Score != nil }

type NewAssessment struct {
	SubjectID     string    `json:"subject_id" validate:"required,uuid"`
	Title         string    `json:"title" validate:"required,max=200"`
	Description   string    `json:"description" validate:"max=5000"`
	Kind          string    `json:"kind" validate:"required,assessment_kind"`
	Term          string    `json:"term" validate:"required,max=20"`
	MaxScore      float64   `json:"max_score" validate:"gt=0,lte=1000"`
	Weight        float64   `json:"weight" validate:"gte=0,lte=100"`
	RequiresToken bool      `json:"requires_token"`
	AllowLate     bool      `json:"allow_late"`
	OpensAt       time.Time `json:"opens_at" validate:"required"`
	DueAt         time.Time `json:"due_at" validate:"required,gtfield=OpensAt"`
}

func (na *NewAssessment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.Kind = core.CleanString(na.Kind, true /* lower */)
	na.Term = core.CleanString(na.Term)
	return validate.Struct(na)
}

type UpdateAssessment struct {
	Title         *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description   *string    `json:"description" validate:"omitempty,max=5000"`
	MaxScore      *float64   `json:"max_score" validate:"omitempty,gt=0,lte=1000"`
	Weight        *float64   `json:"weight" validate:"omitempty,gte=0,lte=100"`
	RequiresToken *bool      `json:"requires_token"`
	AllowLate     *bool      `json:"allow_late"`
	OpensAt       *time.Time `json:"opens_at"`
	DueAt         *time.Time `json:"due_at"`
}

func (ua *UpdateAssessment) Validate(validate *validator.Validate) error {
	if ua.Title != nil {
		*ua.Title = core.CleanString(*ua.Title)
	}
	if ua.Description != nil {
		*ua.Description = core.CleanString(*ua.Description)
	}
	return validate.Struct(ua)
}

// IssueTokens requests either `Count` anonymous tokens or one token per student of `StudentIDs`.
type IssueTokens struct {
	Count      int        `json:"count" validate:"omitempty,min=1,max=1000"`
	StudentIDs []string   `json:"student_ids" validate:"omitempty,max=1000,dive,uuid"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (it IssueTokens) Validate(validate *validator.Validate) error {
	if err := validate.Struct(it); err != nil {
		return err
	}
	if it.Count == 0 && len(it.StudentIDs) == 0 {
		return core.NewFieldValidationError("count", errCountOrStudents)
	}
	return nil
}

type RedeemToken struct {
	Code string `json:"code" validate:"required,max=32"`
}

func (rt *RedeemToken) Validate(validate *validator.Validate) error {
	rt.Code = core.CleanString(rt.Code)
	return validate.Struct(rt)
}

type NewSubmission struct {
	Answer    string `json:"answer" validate:"required,max=20000"`
	TokenCode string `json:"token_code" validate:"omitempty,max=32"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Answer = core.CleanString(ns.Answer)
	ns.TokenCode = core.CleanString(ns.TokenCode)
	return validate.Struct(ns)
}

type GradeSubmission struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback" validate:"max=2000"`
}

func (gs *GradeSubmission) Validate(validate *validator.Validate) error {
	gs.Feedback = core.CleanString(gs.Feedback)
	return validate.Struct(gs)
}

type Filter struct {
	ClassID   string `query:"class_id"`
	SubjectID string `query:"subject_id"`
	TeacherID string `query:"teacher_id"`
	Term      string `query:"term"`
	Kind      string `query:"kind"`
	Published *bool  `query:"published"`
}

type SubmissionFilter struct {
	AssessmentID string
	StudentID    string
	Graded       *bool
}

// Result is the mark of a student for an assessment.
type Result struct {
	SubmissionID string   `json:"submission_id"`
	StudentID    string   `json:"student_id"`
	Score        *float64 `json:"score"`
	MaxScore     float64  `json:"max_score"`
	Percentage   float64  `json:"percentage"`
	Grade        string   `json:"grade"`
	Late         bool     `json:"late"`
}

type SubjectResult struct {
	SubjectID   string  `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Assessments int     `json:"assessments"`
	Percentage  float64 `json:"percentage"`
	Grade       string  `json:"grade"`
}

type ReportCard struct {
	StudentID string          `json:"student_id"`
	ClassID   string          `json:"class_id"`
	Term      string          `json:"term"`
	Subjects  []SubjectResult `json:"subjects"`
	Average   float64         `json:"average"`
	Grade     string          `json:"grade"`
}

// LetterGrade maps a percentage to its letter grade.
func LetterGrade(pct float64) string {
	switch {
	case pct >= 70:
		return "A"
	case pct >= 60:
		return "B"
	case pct >= 50:
		return "C"
	case pct >= 45:
		return "D"
	case pct >= 40:
		return "E"
	default:
		return "F"
	}
}

// round2 rounds to 2 decimal places.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
