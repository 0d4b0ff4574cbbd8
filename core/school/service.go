package school

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrClassNotFound     = core.NewNotFoundError("class not found")
	ErrSubjectNotFound   = core.NewNotFoundError("subject not found")
	ErrClassExists       = errors.New("a class with this name and section already exists for this academic year")
	ErrSubjectCodeExists = errors.New("a subject with this code already exists in this class")
	ErrNotTeacher        = errors.New("user is not an active teacher")
)

type (
	Repository interface {
		CreateClass(ctx context.Context, class Class, exec ...core.DBExecutor) (Class, error)
		QueryClasses(ctx context.Context, filter ClassFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Class, error)
		GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error)
		UpdateClass(ctx context.Context, class Class, exec ...core.DBExecutor) (Class, error)
		DeleteClass(ctx context.Context, id string, exec ...core.DBExecutor) error
		// ClassExists checks for another class (!= excludeID) with the same name, section & academic year.
		ClassExists(ctx context.Context, name, section, academicYear, excludeID string, exec ...core.DBExecutor) (bool, error)

		CreateSubject(ctx context.Context, subject Subject, exec ...core.DBExecutor) (Subject, error)
		QuerySubjects(ctx context.Context, filter SubjectFilter, exec ...core.DBExecutor) ([]Subject, error)
		GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (Subject, error)
		UpdateSubject(ctx context.Context, subject Subject, exec ...core.DBExecutor) (Subject, error)
		DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error
		SubjectCodeExists(ctx context.Context, classID, code string, exec ...core.DBExecutor) (bool, error)
	}

	// UserGetter finds users by ID.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo  Repository
		users UserGetter
	}
)

func NewService(repo Repository, users UserGetter) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
	).CheckAndPanic()

	return &Service{repo: repo, users: users}
}

func (svc *Service) checkTeacher(ctx context.Context, field, teacherID string) error {
	if teacherID == "" {
		return nil
	}
	usr, err := svc.users.GetByID(ctx, teacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewFieldValidationError(field, ErrNotTeacher)
		}
		return errors.Wrap(err, "finding teacher")
	}
	if !usr.IsTeacher() || !usr.Active() {
		return core.NewFieldValidationError(field, ErrNotTeacher)
	}
	return nil
}

func (svc *Service) checkClassUniqueness(ctx context.Context, c Class) error {
	exists, err := svc.repo.ClassExists(ctx, c.Name, c.Section, c.AcademicYear, c.ID)
	if err != nil {
		return errors.Wrap(err, "checking class uniqueness")
	}
	if exists {
		return core.NewFieldValidationError("name", ErrClassExists)
	}
	return nil
}

// CreateClass saves a new class. `nc` is expected to be validated.
func (svc *Service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	if err := svc.checkTeacher(ctx, "form_teacher_id", nc.FormTeacherID); err != nil {
		return Class{}, err
	}
	now := time.Now().UTC()
	class := Class{
		Name:          nc.Name,
		Level:         nc.Level,
		Section:       nc.Section,
		AcademicYear:  nc.AcademicYear,
		FormTeacherID: nc.FormTeacherID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := svc.checkClassUniqueness(ctx, class); err != nil {
		return Class{}, err
	}
	return svc.repo.CreateClass(ctx, class)
}

func (svc *Service) QueryClasses(ctx context.Context, filter ClassFilter, ordering []core.DBOrdering) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, filter, ordering)
}

func (svc *Service) GetClass(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) UpdateClass(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	class, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if uc.Name != nil {
		class.Name = *uc.Name
	}
	if uc.Level != nil {
		class.Level = *uc.Level
	}
	if uc.Section != nil {
		class.Section = *uc.Section
	}
	if uc.AcademicYear != nil {
		class.AcademicYear = *uc.AcademicYear
	}
	if uc.FormTeacherID != nil {
		if err = svc.checkTeacher(ctx, "form_teacher_id", *uc.FormTeacherID); err != nil {
			return Class{}, err
		}
		class.FormTeacherID = *uc.FormTeacherID
	}
	if err = svc.checkClassUniqueness(ctx, class); err != nil {
		return Class{}, err
	}
	class.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClass(ctx, class)
}

// AssignFormTeacher makes `teacherID` the form teacher of the class.
func (svc *Service) AssignFormTeacher(ctx context.Context, classID, teacherID string) (Class, error) {
	return svc.UpdateClass(ctx, classID, UpdateClass{FormTeacherID: &teacherID})
}

func (svc *Service) DeleteClass(ctx context.Context, id string) error {
	if _, err := svc.repo.GetClass(ctx, id); err != nil {
		return err
	}
	subjects, err := svc.repo.QuerySubjects(ctx, SubjectFilter{ClassID: id})
	if err != nil {
		return errors.Wrap(err, "querying class subjects")
	}
	if len(subjects) > 0 {
		return core.NewConflictError("class still has subjects")
	}
	return svc.repo.DeleteClass(ctx, id)
}

// CreateSubject saves a new subject. `ns` is expected to be validated.
func (svc *Service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	if _, err := svc.repo.GetClass(ctx, ns.ClassID); err != nil {
		if errors.Cause(err) == ErrClassNotFound {
			return Subject{}, core.NewFieldValidationError("class_id", err)
		}
		return Subject{}, errors.Wrap(err, "finding class")
	}
	if err := svc.checkTeacher(ctx, "teacher_id", ns.TeacherID); err != nil {
		return Subject{}, err
	}
	exists, err := svc.repo.SubjectCodeExists(ctx, ns.ClassID, ns.Code)
	if err != nil {
		return Subject{}, errors.Wrap(err, "checking subject code")
	}
	if exists {
		return Subject{}, core.NewFieldValidationError("code", ErrSubjectCodeExists)
	}

	now := time.Now().UTC()
	return svc.repo.CreateSubject(ctx, Subject{
		Name:      ns.Name,
		Code:      ns.Code,
		ClassID:   ns.ClassID,
		TeacherID: ns.TeacherID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) QuerySubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, filter)
}

func (svc *Service) GetSubject(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *Service) UpdateSubject(ctx context.Context, id string, us UpdateSubject) (Subject, error) {
	subject, err := svc.repo.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	if us.Name != nil {
		subject.Name = *us.Name
	}
	if us.TeacherID != nil {
		if err = svc.checkTeacher(ctx, "teacher_id", *us.TeacherID); err != nil {
			return Subject{}, err
		}
		subject.TeacherID = *us.TeacherID
	}
	subject.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, subject)
}

// AssignTeacher makes `teacherID` the teacher of the subject.
func (svc *Service) AssignTeacher(ctx context.Context, subjectID, teacherID string) (Subject, error) {
	return svc.UpdateSubject(ctx, subjectID, UpdateSubject{TeacherID: &teacherID})
}

func (svc *Service) DeleteSubject(ctx context.Context, id string) error {
	if _, err := svc.repo.GetSubject(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteSubject(ctx, id)
}

// TeachesClass reports whether `teacherID` is the form teacher of the class or teaches one of its subjects.
func (svc *Service) TeachesClass(ctx context.Context, teacherID, classID string) (bool, error) {
	class, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return false, err
	}
	if class.FormTeacherID == teacherID {
		return true, nil
	}
	subjects, err := svc.repo.QuerySubjects(ctx, SubjectFilter{ClassID: classID, TeacherID: teacherID})
	if err != nil {
		return false, errors.Wrap(err, "querying subjects")
	}
	return len(subjects) > 0, nil
}
