package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

const (
	studentSelect = `
		SELECT s.id, s.user_id, s.class_id, s.admission_number, s.date_of_birth, s.gender, s.status,
			s.admitted_at, s.created_at, s.updated_at, u.name, COALESCE(u.username, '') AS username
		FROM students s JOIN users u ON u.id = s.user_id`
	parentSelect = `
		SELECT p.id, p.user_id, p.phone, p.address, p.occupation, p.created_at, p.updated_at,
			u.name, COALESCE(u.email, '') AS email
		FROM parents p JOIN users u ON u.id = p.user_id`
)

var studentOrderings = map[string]string{
	"name":             "u.name",
	"admission_number": "s.admission_number",
	"admitted_at":      "s.admitted_at",
	"date_of_birth":    "s.date_of_birth",
	"created_at":       "s.created_at",
}

type studentRow struct {
	ID              string    `db:"id"`
	UserID          string    `db:"user_id"`
	ClassID         string    `db:"class_id"`
	AdmissionNumber string    `db:"admission_number"`
	DateOfBirth     time.Time `db:"date_of_birth"`
	Gender          string    `db:"gender"`
	Status          string    `db:"status"`
	AdmittedAt      time.Time `db:"admitted_at"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
	Name            string    `db:"name"`
	Username        string    `db:"username"`
}

func toStudentRow(p student.Profile) studentRow {
	return studentRow{
		ID:              p.ID,
		UserID:          p.UserID,
		ClassID:         p.ClassID,
		AdmissionNumber: p.AdmissionNumber,
		DateOfBirth:     p.DateOfBirth.UTC(),
		Gender:          p.Gender,
		Status:          p.Status,
		AdmittedAt:      p.AdmittedAt.UTC(),
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
}

func (row studentRow) profile() student.Profile {
	return student.Profile{
		ID:              row.ID,
		UserID:          row.UserID,
		ClassID:         row.ClassID,
		AdmissionNumber: row.AdmissionNumber,
		DateOfBirth:     row.DateOfBirth.UTC(),
		Gender:          row.Gender,
		Status:          row.Status,
		AdmittedAt:      row.AdmittedAt.UTC(),
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
		Name:            row.Name,
		Username:        row.Username,
	}
}

func studentProfiles(rows []studentRow) []student.Profile {
	profiles := make([]student.Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, row.profile())
	}
	return profiles
}

type parentRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Phone      string    `db:"phone"`
	Address    string    `db:"address"`
	Occupation string    `db:"occupation"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	Name       string    `db:"name"`
	Email      string    `db:"email"`
}

func toParentRow(p student.ParentProfile) parentRow {
	return parentRow{
		ID:         p.ID,
		UserID:     p.UserID,
		Phone:      p.Phone,
		Address:    p.Address,
		Occupation: p.Occupation,
		CreatedAt:  p.CreatedAt.UTC(),
		UpdatedAt:  p.UpdatedAt.UTC(),
	}
}

func (row parentRow) profile() student.ParentProfile {
	return student.ParentProfile{
		ID:         row.ID,
		UserID:     row.UserID,
		Phone:      row.Phone,
		Address:    row.Address,
		Occupation: row.Occupation,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
		Name:       row.Name,
		Email:      row.Email,
	}
}

type studentRepository struct {
	repo
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{repo{db: db}}
}

func (r studentRepository) CreateStudent(ctx context.Context, p student.Profile, exec ...core.DBExecutor) (student.Profile, error) {
	p.ID = newID()
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO students (id, user_id, class_id, admission_number, date_of_birth, gender, status, admitted_at, created_at, updated_at)
		VALUES (:id, :user_id, :class_id, :admission_number, :date_of_birth, :gender, :status, :admitted_at, :created_at, :updated_at)`,
		toStudentRow(p))
	if err != nil {
		if isUniqueViolation(err, "students_admission_number_key") {
			return student.Profile{}, student.ErrAdmissionNumberExists
		}
		return student.Profile{}, errors.Wrap(err, "inserting student")
	}
	return r.GetStudent(ctx, student.GetFilter{ID: p.ID}, exec...)
}

func (r studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Profile, error) {
	var w where
	if filter.ClassID != "" {
		w.add("s.class_id = ?", filter.ClassID)
	}
	if filter.Status != "" {
		w.add("s.status = ?", filter.Status)
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("(u.name ILIKE ? OR u.username ILIKE ? OR s.admission_number ILIKE ?)", val, val, val)
	}

	var rows []studentRow
	q := studentSelect + w.String() + orderBy(ordering, studentOrderings, "u.name")
	if err := r.selekt(ctx, exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return studentProfiles(rows), nil
}

func (r studentRepository) GetStudent(ctx context.Context, filter student.GetFilter, exec ...core.DBExecutor) (student.Profile, error) {
	var w where
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return student.Profile{}, student.ErrNotFound
		}
		w.add("s.id = ?", filter.ID)
	case filter.UserID != "":
		if _, err := uuid.Parse(filter.UserID); err != nil {
			return student.Profile{}, student.ErrNotFound
		}
		w.add("s.user_id = ?", filter.UserID)
	case filter.AdmissionNumber != "":
		w.add("s.admission_number = ?", filter.AdmissionNumber)
	default:
		return student.Profile{}, student.ErrNotFound
	}

	var row studentRow
	if err := r.get(ctx, exec, &row, studentSelect+w.String(), w.args...); err != nil {
		return student.Profile{}, trapNoRows(err, student.ErrNotFound, "finding student")
	}
	return row.profile(), nil
}

func (r studentRepository) UpdateStudent(ctx context.Context, p student.Profile, exec ...core.DBExecutor) (student.Profile, error) {
	res, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		UPDATE students SET
			class_id = :class_id, date_of_birth = :date_of_birth, gender = :gender, status = :status, updated_at = :updated_at
		WHERE id = :id`,
		toStudentRow(p))
	if err != nil {
		return student.Profile{}, errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Profile{}, student.ErrNotFound
	}
	return r.GetStudent(ctx, student.GetFilter{ID: p.ID}, exec...)
}

func (r studentRepository) AdmissionNumberExists(ctx context.Context, number string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	if err := r.get(ctx, exec, &exists, "SELECT EXISTS (SELECT 1 FROM students WHERE admission_number = ?)", number); err != nil {
		return false, errors.Wrap(err, "checking admission number")
	}
	return exists, nil
}

func (r studentRepository) LastAdmissionSeq(ctx context.Context, prefix string, exec ...core.DBExecutor) (int, error) {
	var seq int
	err := r.get(ctx, exec, &seq, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(admission_number FROM '[0-9]+$') AS INTEGER)), 0)
		FROM students
		WHERE LEFT(admission_number, CHAR_LENGTH(?::text)) = ? AND SUBSTRING(admission_number FROM CHAR_LENGTH(?::text) + 1) ~ '^[0-9]+$'`,
		prefix, prefix, prefix)
	if err != nil {
		return 0, errors.Wrap(err, "finding last admission sequence")
	}
	return seq, nil
}

func (r studentRepository) CreateParent(ctx context.Context, p student.ParentProfile, exec ...core.DBExecutor) (student.ParentProfile, error) {
	p.ID = newID()
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO parents (id, user_id, phone, address, occupation, created_at, updated_at)
		VALUES (:id, :user_id, :phone, :address, :occupation, :created_at, :updated_at)`,
		toParentRow(p))
	if err != nil {
		return student.ParentProfile{}, errors.Wrap(err, "inserting parent")
	}
	return r.GetParent(ctx, student.ParentFilter{ID: p.ID}, exec...)
}

func (r studentRepository) GetParent(ctx context.Context, filter student.ParentFilter, exec ...core.DBExecutor) (student.ParentProfile, error) {
	var w where
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return student.ParentProfile{}, student.ErrParentNotFound
		}
		w.add("p.id = ?", filter.ID)
	case filter.UserID != "":
		if _, err := uuid.Parse(filter.UserID); err != nil {
			return student.ParentProfile{}, student.ErrParentNotFound
		}
		w.add("p.user_id = ?", filter.UserID)
	default:
		return student.ParentProfile{}, student.ErrParentNotFound
	}

	var row parentRow
	if err := r.get(ctx, exec, &row, parentSelect+w.String(), w.args...); err != nil {
		return student.ParentProfile{}, trapNoRows(err, student.ErrParentNotFound, "finding parent")
	}
	return row.profile(), nil
}

func (r studentRepository) UpdateParent(ctx context.Context, p student.ParentProfile, exec ...core.DBExecutor) (student.ParentProfile, error) {
	res, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		UPDATE parents SET phone = :phone, address = :address, occupation = :occupation, updated_at = :updated_at
		WHERE id = :id`,
		toParentRow(p))
	if err != nil {
		return student.ParentProfile{}, errors.Wrap(err, "updating parent")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.ParentProfile{}, student.ErrParentNotFound
	}
	return r.GetParent(ctx, student.ParentFilter{ID: p.ID}, exec...)
}

func (r studentRepository) LinkWard(ctx context.Context, w student.Ward, exec ...core.DBExecutor) (student.Ward, error) {
	w.CreatedAt = w.CreatedAt.UTC()
	_, err := r.exec(ctx, exec,
		"INSERT INTO wards (parent_id, student_id, relationship, created_at) VALUES (?, ?, ?, ?)",
		w.ParentID, w.StudentID, w.Relationship, w.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return student.Ward{}, student.ErrWardExists
		}
		return student.Ward{}, errors.Wrap(err, "linking ward")
	}
	return w, nil
}

func (r studentRepository) UnlinkWard(ctx context.Context, parentID, studentID string, exec ...core.DBExecutor) error {
	n, err := r.exec(ctx, exec, "DELETE FROM wards WHERE parent_id = ? AND student_id = ?", parentID, studentID)
	if err != nil {
		return errors.Wrap(err, "unlinking ward")
	}
	if n == 0 {
		return student.ErrWardNotFound
	}
	return nil
}

func (r studentRepository) QueryWards(ctx context.Context, parentID string, exec ...core.DBExecutor) ([]student.Profile, error) {
	var rows []studentRow
	q := studentSelect + " JOIN wards w ON w.student_id = s.id WHERE w.parent_id = ? ORDER BY u.name"
	if err := r.selekt(ctx, exec, &rows, q, parentID); err != nil {
		return nil, errors.Wrap(err, "querying wards")
	}
	return studentProfiles(rows), nil
}

func (r studentRepository) QueryParents(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]student.ParentProfile, error) {
	var rows []parentRow
	q := parentSelect + " JOIN wards w ON w.parent_id = p.id WHERE w.student_id = ? ORDER BY u.name"
	if err := r.selekt(ctx, exec, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying parents")
	}
	parents := make([]student.ParentProfile, 0, len(rows))
	for _, row := range rows {
		parents = append(parents, row.profile())
	}
	return parents, nil
}

func (r studentRepository) IsWard(ctx context.Context, parentID, studentID string, exec ...core.DBExecutor) (bool, error) {
	var ok bool
	err := r.get(ctx, exec, &ok, "SELECT EXISTS (SELECT 1 FROM wards WHERE parent_id = ? AND student_id = ?)", parentID, studentID)
	if err != nil {
		return false, errors.Wrap(err, "checking ward")
	}
	return ok, nil
}
