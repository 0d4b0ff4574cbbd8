package clinic

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var ErrNotFound = core.NewNotFoundError("visit not found")

// Visit is a consultation of a student at the school clinic.
type Visit struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	Complaint      string    `json:"complaint"`
	Diagnosis      string    `json:"diagnosis"`
	Treatment      string    `json:"treatment"`
	AttendedBy     string    `json:"attended_by"`
	VisitedAt      time.Time `json:"visited_at"`
	ParentNotified bool      `json:"parent_notified"`
	CreatedAt      time.Time `json:"created_at"`
}

type NewVisit struct {
	StudentID      string     `json:"student_id" validate:"required,uuid"`
	Complaint      string     `json:"complaint" validate:"required,max=1000"`
	Diagnosis      string     `json:"diagnosis" validate:"max=1000"`
	Treatment      string     `json:"treatment" validate:"max=1000"`
	VisitedAt      *time.Time `json:"visited_at"`
	ParentNotified bool       `json:"parent_notified"`
}

func (nv *NewVisit) Validate(validate *validator.Validate) error {
	nv.Complaint = core.CleanString(nv.Complaint)
	nv.Diagnosis = core.CleanString(nv.Diagnosis)
	nv.Treatment = core.CleanString(nv.Treatment)
	return validate.Struct(nv)
}

type Filter struct {
	StudentID string    `query:"student_id"`
	From      time.Time `query:"from"`
	To        time.Time `query:"to"`
}

type (
	Repository interface {
		CreateVisit(ctx context.Context, v Visit, exec ...core.DBExecutor) (Visit, error)
		GetVisit(ctx context.Context, id string, exec ...core.DBExecutor) (Visit, error)
		// QueryVisits lists visits, latest first.
		QueryVisits(ctx context.Context, filter Filter, exec ...core.DBExecutor) ([]Visit, error)
	}

	StudentGetter interface {
		Get(ctx context.Context, id string) (student.Profile, error)
	}

	Service struct {
		repo     Repository
		students StudentGetter
		nowFunc  func() time.Time
	}
)

func NewService(repo Repository, students StudentGetter) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(students, "students"),
	).CheckAndPanic()

	return &Service{repo: repo, students: students, nowFunc: func() time.Time { return time.Now().UTC() }}
}

// RecordVisit saves a visit attended by `staff`. `nv` is expected to be validated.
func (svc *Service) RecordVisit(ctx context.Context, staff user.User, nv NewVisit) (Visit, error) {
	if _, err := svc.students.Get(ctx, nv.StudentID); err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return Visit{}, core.NewFieldValidationError("student_id", err)
		}
		return Visit{}, errors.Wrap(err, "finding student")
	}
	now := svc.nowFunc()
	visitedAt := now
	if nv.VisitedAt != nil {
		if nv.VisitedAt.After(now) {
			return Visit{}, core.NewFieldValidationError("visited_at", errors.New("visit date cannot be in the future"))
		}
		visitedAt = nv.VisitedAt.UTC()
	}
	return svc.repo.CreateVisit(ctx, Visit{
		StudentID:      nv.StudentID,
		Complaint:      nv.Complaint,
		Diagnosis:      nv.Diagnosis,
		Treatment:      nv.Treatment,
		AttendedBy:     staff.ID,
		VisitedAt:      visitedAt,
		ParentNotified: nv.ParentNotified,
		CreatedAt:      now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Visit, error) {
	return svc.repo.GetVisit(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter Filter) ([]Visit, error) {
	return svc.repo.QueryVisits(ctx, filter)
}
