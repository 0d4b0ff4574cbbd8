package attendance

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrFutureDate  = errors.New("date cannot be in the future")
	ErrNotInClass  = errors.New("student is not an active member of the class")
	ErrDuplicate   = errors.New("student is listed more than once")
	ErrForbidden   = core.NewForbiddenError("only teachers of the class or admins can mark attendance")
	ErrInvalidSpan = errors.New("from must be before to")
)

type (
	Repository interface {
		// UpsertRecord creates the record of the student for the day or updates the existing one.
		UpsertRecord(ctx context.Context, r Record, exec ...core.DBExecutor) (Record, error)
		QueryRecords(ctx context.Context, filter Filter, exec ...core.DBExecutor) ([]Record, error)
	}

	SchoolService interface {
		GetClass(ctx context.Context, id string) (school.Class, error)
		TeachesClass(ctx context.Context, teacherID, classID string) (bool, error)
	}

	StudentService interface {
		Get(ctx context.Context, id string) (student.Profile, error)
		Query(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Profile, error)
	}

	Service struct {
		repo     Repository
		tx       core.TxRunner
		school   SchoolService
		students StudentService
		nowFunc  func() time.Time
	}
)

func NewService(repo Repository, tx core.TxRunner, schoolSvc SchoolService, students StudentService) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(schoolSvc, "schoolSvc"),
		vala.IsNotNil(students, "students"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		tx:       tx,
		school:   schoolSvc,
		students: students,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// CanMark reports whether `usr` may mark the attendance of the class.
func (svc *Service) CanMark(ctx context.Context, usr user.User, classID string) (bool, error) {
	if usr.IsAdmin() {
		return true, nil
	}
	if !usr.IsTeacher() {
		return false, nil
	}
	return svc.school.TeachesClass(ctx, usr.ID, classID)
}

// MarkClass records the attendance of the listed students for the day; marking again overwrites.
// `mc` is expected to be validated.
func (svc *Service) MarkClass(ctx context.Context, marker user.User, classID string, mc MarkClass) ([]Record, error) {
	if _, err := svc.school.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	ok, err := svc.CanMark(ctx, marker, classID)
	if err != nil {
		return nil, errors.Wrap(err, "checking class teacher")
	}
	if !ok {
		return nil, ErrForbidden
	}

	date, err := time.Parse(core.DateLayout, mc.Date)
	if err != nil {
		return nil, core.NewFieldValidationError("date", err)
	}
	now := svc.nowFunc()
	if date.After(now) {
		return nil, core.NewFieldValidationError("date", ErrFutureDate)
	}

	members, err := svc.students.Query(ctx, student.QueryFilter{ClassID: classID, Status: student.StatusActive}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying class students")
	}
	inClass := make(map[string]bool, len(members))
	for _, m := range members {
		inClass[m.ID] = true
	}
	seen := make(map[string]bool, len(mc.Entries))
	for _, e := range mc.Entries {
		if !inClass[e.StudentID] {
			return nil, core.NewFieldValidationError("entries", errors.Wrap(ErrNotInClass, e.StudentID))
		}
		if seen[e.StudentID] {
			return nil, core.NewFieldValidationError("entries", errors.Wrap(ErrDuplicate, e.StudentID))
		}
		seen[e.StudentID] = true
	}

	records := make([]Record, 0, len(mc.Entries))
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		for _, e := range mc.Entries {
			rec, err := svc.repo.UpsertRecord(ctx, Record{
				StudentID: e.StudentID,
				ClassID:   classID,
				Date:      date,
				Status:    e.Status,
				Remark:    e.Remark,
				MarkedBy:  marker.ID,
				CreatedAt: now,
				UpdatedAt: now,
			}, exec)
			if err != nil {
				return errors.Wrapf(err, "recording attendance of %s", e.StudentID)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ClassRegister returns the attendance of the class for the day.
func (svc *Service) ClassRegister(ctx context.Context, classID string, date time.Time) ([]Record, error) {
	if _, err := svc.school.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	day := truncateDay(date)
	return svc.repo.QueryRecords(ctx, Filter{ClassID: classID, From: day, To: day})
}

// StudentSummary summarizes the attendance of the student between `from` and `to` (inclusive days).
// Zero bounds default to the last 30 days.
func (svc *Service) StudentSummary(ctx context.Context, studentID string, from, to time.Time) (Summary, error) {
	if _, err := svc.students.Get(ctx, studentID); err != nil {
		return Summary{}, err
	}
	if to.IsZero() {
		to = svc.nowFunc()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	from, to = truncateDay(from), truncateDay(to)
	if from.After(to) {
		return Summary{}, core.NewFieldValidationError("from", ErrInvalidSpan)
	}

	records, err := svc.repo.QueryRecords(ctx, Filter{StudentID: studentID, From: from, To: to})
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying attendance")
	}
	s := Summarize(records)
	s.StudentID = studentID
	s.From = from
	s.To = to
	return s, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
