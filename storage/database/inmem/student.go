package inmemdb

import (
	"context"
	"strconv"
	"strings"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

var studentOrderings = map[string]comparator[student.Profile]{
	"name":             func(a, b student.Profile) int { return compareStrings(a.Name, b.Name) },
	"admission_number": func(a, b student.Profile) int { return compareStrings(a.AdmissionNumber, b.AdmissionNumber) },
	"admitted_at":      func(a, b student.Profile) int { return compareTimes(a.AdmittedAt, b.AdmittedAt) },
	"date_of_birth":    func(a, b student.Profile) int { return compareTimes(a.DateOfBirth, b.DateOfBirth) },
	"created_at":       func(a, b student.Profile) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

func byName(a, b student.Profile) int { return compareStrings(a.Name, b.Name) }

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

// withUser fills the read-only fields of p from its user.
func (repo *studentRepository) withUser(p student.Profile) student.Profile {
	if usr, ok := repo.db.users[p.UserID]; ok {
		p.Name = usr.Name
		p.Username = usr.Username
	}
	return p
}

func (repo *studentRepository) withParentUser(p student.ParentProfile) student.ParentProfile {
	if usr, ok := repo.db.users[p.UserID]; ok {
		p.Name = usr.Name
		p.Email = usr.Email
	}
	return p
}

func (repo *studentRepository) admissionNumberExists(number string) bool {
	for _, p := range repo.db.students {
		if p.AdmissionNumber == number {
			return true
		}
	}
	return false
}

func (repo *studentRepository) CreateStudent(_ context.Context, p student.Profile, _ ...core.DBExecutor) (student.Profile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.admissionNumberExists(p.AdmissionNumber) {
		return student.Profile{}, student.ErrAdmissionNumberExists
	}
	p.ID = newID()
	p.Name, p.Username = "", ""
	repo.db.students[p.ID] = p
	return repo.withUser(p), nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]student.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]student.Profile, 0, len(repo.db.students))
	for _, p := range repo.db.students {
		p = repo.withUser(p)
		if filter.ClassID != "" && p.ClassID != filter.ClassID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !containsFold(p.Name, filter.Search) &&
			!containsFold(p.Username, filter.Search) && !containsFold(p.AdmissionNumber, filter.Search) {
			continue
		}
		students = append(students, p)
	}
	order(students, ordering, studentOrderings, byName)
	return students, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, filter student.GetFilter, _ ...core.DBExecutor) (student.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.students[filter.ID]; ok {
			return repo.withUser(p), nil
		}
		return student.Profile{}, student.ErrNotFound
	}
	for _, p := range repo.db.students {
		switch {
		case filter.UserID != "":
			if p.UserID == filter.UserID {
				return repo.withUser(p), nil
			}
		case filter.AdmissionNumber != "":
			if p.AdmissionNumber == filter.AdmissionNumber {
				return repo.withUser(p), nil
			}
		}
	}
	return student.Profile{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, p student.Profile, _ ...core.DBExecutor) (student.Profile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	current, ok := repo.db.students[p.ID]
	if !ok {
		return student.Profile{}, student.ErrNotFound
	}
	p.UserID = current.UserID
	p.AdmissionNumber = current.AdmissionNumber
	p.Name, p.Username = "", ""
	repo.db.students[p.ID] = p
	return repo.withUser(p), nil
}

func (repo *studentRepository) AdmissionNumberExists(_ context.Context, number string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.admissionNumberExists(number), nil
}

func (repo *studentRepository) LastAdmissionSeq(_ context.Context, prefix string, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	last := 0
	for _, p := range repo.db.students {
		if !strings.HasPrefix(p.AdmissionNumber, prefix) {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimPrefix(p.AdmissionNumber, prefix))
		if err != nil || seq < 0 {
			continue
		}
		if seq > last {
			last = seq
		}
	}
	return last, nil
}

func (repo *studentRepository) CreateParent(_ context.Context, p student.ParentProfile, _ ...core.DBExecutor) (student.ParentProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = newID()
	p.Name, p.Email = "", ""
	repo.db.parents[p.ID] = p
	return repo.withParentUser(p), nil
}

func (repo *studentRepository) GetParent(_ context.Context, filter student.ParentFilter, _ ...core.DBExecutor) (student.ParentProfile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.parents[filter.ID]; ok {
			return repo.withParentUser(p), nil
		}
		return student.ParentProfile{}, student.ErrParentNotFound
	}
	if filter.UserID != "" {
		for _, p := range repo.db.parents {
			if p.UserID == filter.UserID {
				return repo.withParentUser(p), nil
			}
		}
	}
	return student.ParentProfile{}, student.ErrParentNotFound
}

func (repo *studentRepository) UpdateParent(_ context.Context, p student.ParentProfile, _ ...core.DBExecutor) (student.ParentProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	current, ok := repo.db.parents[p.ID]
	if !ok {
		return student.ParentProfile{}, student.ErrParentNotFound
	}
	p.UserID = current.UserID
	p.Name, p.Email = "", ""
	repo.db.parents[p.ID] = p
	return repo.withParentUser(p), nil
}

func (repo *studentRepository) LinkWard(_ context.Context, w student.Ward, _ ...core.DBExecutor) (student.Ward, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := [2]string{w.ParentID, w.StudentID}
	if _, ok := repo.db.wards[key]; ok {
		return student.Ward{}, student.ErrWardExists
	}
	repo.db.wards[key] = w
	return w, nil
}

func (repo *studentRepository) UnlinkWard(_ context.Context, parentID, studentID string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := [2]string{parentID, studentID}
	if _, ok := repo.db.wards[key]; !ok {
		return student.ErrWardNotFound
	}
	delete(repo.db.wards, key)
	return nil
}

func (repo *studentRepository) QueryWards(_ context.Context, parentID string, _ ...core.DBExecutor) ([]student.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wards := make([]student.Profile, 0)
	for key := range repo.db.wards {
		if key[0] != parentID {
			continue
		}
		if p, ok := repo.db.students[key[1]]; ok {
			wards = append(wards, repo.withUser(p))
		}
	}
	order(wards, nil, nil, byName)
	return wards, nil
}

func (repo *studentRepository) QueryParents(_ context.Context, studentID string, _ ...core.DBExecutor) ([]student.ParentProfile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	parents := make([]student.ParentProfile, 0)
	for key := range repo.db.wards {
		if key[1] != studentID {
			continue
		}
		if p, ok := repo.db.parents[key[0]]; ok {
			parents = append(parents, repo.withParentUser(p))
		}
	}
	order(parents, nil, nil, func(a, b student.ParentProfile) int { return compareStrings(a.Name, b.Name) })
	return parents, nil
}

func (repo *studentRepository) IsWard(_ context.Context, parentID, studentID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	_, ok := repo.db.wards[[2]string{parentID, studentID}]
	return ok, nil
}
