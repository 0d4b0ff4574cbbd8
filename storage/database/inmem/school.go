package inmemdb

import (
	"context"
	"strings"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

var classOrderings = map[string]comparator[school.Class]{
	"name":          func(a, b school.Class) int { return compareStrings(a.Name, b.Name) },
	"level":         func(a, b school.Class) int { return compareInts(a.Level, b.Level) },
	"academic_year": func(a, b school.Class) int { return compareStrings(a.AcademicYear, b.AcademicYear) },
	"created_at":    func(a, b school.Class) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

func defaultClassOrder(a, b school.Class) int {
	if c := compareInts(a.Level, b.Level); c != 0 {
		return c
	}
	if c := compareStrings(a.Name, b.Name); c != 0 {
		return c
	}
	return compareStrings(a.Section, b.Section)
}

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) classExists(name, section, academicYear, excludeID string) bool {
	for _, c := range repo.db.classes {
		if c.ID != excludeID && strings.EqualFold(c.Name, name) && strings.EqualFold(c.Section, section) &&
			c.AcademicYear == academicYear {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) CreateClass(_ context.Context, class school.Class, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.classExists(class.Name, class.Section, class.AcademicYear, "") {
		return school.Class{}, school.ErrClassExists
	}
	class.ID = newID()
	repo.db.classes[class.ID] = class
	return class, nil
}

func (repo *schoolRepository) QueryClasses(_ context.Context, filter school.ClassFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]school.Class, 0, len(repo.db.classes))
	for _, c := range repo.db.classes {
		if filter.AcademicYear != "" && c.AcademicYear != filter.AcademicYear {
			continue
		}
		if filter.Level != nil && c.Level != *filter.Level {
			continue
		}
		if filter.FormTeacherID != "" && c.FormTeacherID != filter.FormTeacherID {
			continue
		}
		classes = append(classes, c)
	}
	order(classes, ordering, classOrderings, defaultClassOrder)
	return classes, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, id string, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.classes[id]; ok {
		return c, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *schoolRepository) UpdateClass(_ context.Context, class school.Class, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[class.ID]; !ok {
		return school.Class{}, school.ErrClassNotFound
	}
	if repo.classExists(class.Name, class.Section, class.AcademicYear, class.ID) {
		return school.Class{}, school.ErrClassExists
	}
	repo.db.classes[class.ID] = class
	return class, nil
}

func (repo *schoolRepository) DeleteClass(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return school.ErrClassNotFound
	}
	delete(repo.db.classes, id)
	return nil
}

func (repo *schoolRepository) ClassExists(_ context.Context, name, section, academicYear, excludeID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.classExists(name, section, academicYear, excludeID), nil
}

func (repo *schoolRepository) subjectCodeExists(classID, code string) bool {
	for _, s := range repo.db.subjects {
		if s.ClassID == classID && s.Code == code {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) CreateSubject(_ context.Context, subject school.Subject, _ ...core.DBExecutor) (school.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.subjectCodeExists(subject.ClassID, subject.Code) {
		return school.Subject{}, school.ErrSubjectCodeExists
	}
	subject.ID = newID()
	repo.db.subjects[subject.ID] = subject
	return subject, nil
}

func (repo *schoolRepository) QuerySubjects(_ context.Context, filter school.SubjectFilter, _ ...core.DBExecutor) ([]school.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subjects := make([]school.Subject, 0)
	for _, s := range repo.db.subjects {
		if filter.ClassID != "" && s.ClassID != filter.ClassID {
			continue
		}
		if filter.TeacherID != "" && s.TeacherID != filter.TeacherID {
			continue
		}
		subjects = append(subjects, s)
	}
	order(subjects, nil, nil, func(a, b school.Subject) int { return compareStrings(a.Name, b.Name) })
	return subjects, nil
}

func (repo *schoolRepository) GetSubject(_ context.Context, id string, _ ...core.DBExecutor) (school.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.subjects[id]; ok {
		return s, nil
	}
	return school.Subject{}, school.ErrSubjectNotFound
}

func (repo *schoolRepository) UpdateSubject(_ context.Context, subject school.Subject, _ ...core.DBExecutor) (school.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	current, ok := repo.db.subjects[subject.ID]
	if !ok {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	// code & class are immutable
	subject.Code = current.Code
	subject.ClassID = current.ClassID
	repo.db.subjects[subject.ID] = subject
	return subject, nil
}

func (repo *schoolRepository) DeleteSubject(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[id]; !ok {
		return school.ErrSubjectNotFound
	}
	delete(repo.db.subjects, id)
	return nil
}

func (repo *schoolRepository) SubjectCodeExists(_ context.Context, classID, code string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.subjectCodeExists(classID, code), nil
}
