package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

const (
	classColumns   = `id, name, level, section, academic_year, form_teacher_id, created_at, updated_at`
	subjectColumns = `id, name, code, class_id, teacher_id, created_at, updated_at`
)

var classOrderings = map[string]string{
	"name":          "name",
	"level":         "level",
	"academic_year": "academic_year",
	"created_at":    "created_at",
}

type classRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	Level         int         `db:"level"`
	Section       string      `db:"section"`
	AcademicYear  string      `db:"academic_year"`
	FormTeacherID null.String `db:"form_teacher_id"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func toClassRow(c school.Class) classRow {
	return classRow{
		ID:            c.ID,
		Name:          c.Name,
		Level:         c.Level,
		Section:       c.Section,
		AcademicYear:  c.AcademicYear,
		FormTeacherID: nullString(c.FormTeacherID),
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func (row classRow) class() school.Class {
	return school.Class{
		ID:            row.ID,
		Name:          row.Name,
		Level:         row.Level,
		Section:       row.Section,
		AcademicYear:  row.AcademicYear,
		FormTeacherID: row.FormTeacherID.String,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

type subjectRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Code      string      `db:"code"`
	ClassID   string      `db:"class_id"`
	TeacherID null.String `db:"teacher_id"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func toSubjectRow(s school.Subject) subjectRow {
	return subjectRow{
		ID:        s.ID,
		Name:      s.Name,
		Code:      s.Code,
		ClassID:   s.ClassID,
		TeacherID: nullString(s.TeacherID),
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func (row subjectRow) subject() school.Subject {
	return school.Subject{
		ID:        row.ID,
		Name:      row.Name,
		Code:      row.Code,
		ClassID:   row.ClassID,
		TeacherID: row.TeacherID.String,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type schoolRepository struct {
	repo
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{repo{db: db}}
}

func (r schoolRepository) CreateClass(ctx context.Context, class school.Class, exec ...core.DBExecutor) (school.Class, error) {
	class.ID = newID()
	row := toClassRow(class)
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO classes (`+classColumns+`)
		VALUES (:id, :name, :level, :section, :academic_year, :form_teacher_id, :created_at, :updated_at)`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return school.Class{}, school.ErrClassExists
		}
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return row.class(), nil
}

func (r schoolRepository) QueryClasses(ctx context.Context, filter school.ClassFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Class, error) {
	var w where
	if filter.AcademicYear != "" {
		w.add("academic_year = ?", filter.AcademicYear)
	}
	if filter.Level != nil {
		w.add("level = ?", *filter.Level)
	}
	if filter.FormTeacherID != "" {
		w.add("form_teacher_id = ?", filter.FormTeacherID)
	}

	var rows []classRow
	q := "SELECT " + classColumns + " FROM classes" + w.String() + orderBy(ordering, classOrderings, "level, name, section")
	if err := r.selekt(ctx, exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]school.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.class())
	}
	return classes, nil
}

func (r schoolRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (school.Class, error) {
	if _, err := uuid.Parse(id); err != nil {
		return school.Class{}, school.ErrClassNotFound
	}
	var row classRow
	if err := r.get(ctx, exec, &row, "SELECT "+classColumns+" FROM classes WHERE id = ?", id); err != nil {
		return school.Class{}, trapNoRows(err, school.ErrClassNotFound, "finding class")
	}
	return row.class(), nil
}

func (r schoolRepository) UpdateClass(ctx context.Context, class school.Class, exec ...core.DBExecutor) (school.Class, error) {
	row := toClassRow(class)
	res, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		UPDATE classes SET
			name = :name, level = :level, section = :section, academic_year = :academic_year,
			form_teacher_id = :form_teacher_id, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return school.Class{}, school.ErrClassExists
		}
		return school.Class{}, errors.Wrap(err, "updating class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.Class{}, school.ErrClassNotFound
	}
	return row.class(), nil
}

func (r schoolRepository) DeleteClass(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := r.exec(ctx, exec, "DELETE FROM classes WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if n == 0 {
		return school.ErrClassNotFound
	}
	return nil
}

func (r schoolRepository) ClassExists(ctx context.Context, name, section, academicYear, excludeID string, exec ...core.DBExecutor) (bool, error) {
	var w where
	w.add("LOWER(name) = LOWER(?)", name)
	w.add("LOWER(section) = LOWER(?)", section)
	w.add("academic_year = ?", academicYear)
	if excludeID != "" {
		w.add("id <> ?", excludeID)
	}
	var exists bool
	if err := r.get(ctx, exec, &exists, "SELECT EXISTS (SELECT 1 FROM classes"+w.String()+")", w.args...); err != nil {
		return false, errors.Wrap(err, "checking class")
	}
	return exists, nil
}

func (r schoolRepository) CreateSubject(ctx context.Context, subject school.Subject, exec ...core.DBExecutor) (school.Subject, error) {
	subject.ID = newID()
	row := toSubjectRow(subject)
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO subjects (`+subjectColumns+`)
		VALUES (:id, :name, :code, :class_id, :teacher_id, :created_at, :updated_at)`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return school.Subject{}, school.ErrSubjectCodeExists
		}
		return school.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return row.subject(), nil
}

func (r schoolRepository) QuerySubjects(ctx context.Context, filter school.SubjectFilter, exec ...core.DBExecutor) ([]school.Subject, error) {
	var w where
	if filter.ClassID != "" {
		w.add("class_id = ?", filter.ClassID)
	}
	if filter.TeacherID != "" {
		w.add("teacher_id = ?", filter.TeacherID)
	}

	var rows []subjectRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+subjectColumns+" FROM subjects"+w.String()+" ORDER BY name", w.args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]school.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.subject())
	}
	return subjects, nil
}

func (r schoolRepository) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (school.Subject, error) {
	if _, err := uuid.Parse(id); err != nil {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	var row subjectRow
	if err := r.get(ctx, exec, &row, "SELECT "+subjectColumns+" FROM subjects WHERE id = ?", id); err != nil {
		return school.Subject{}, trapNoRows(err, school.ErrSubjectNotFound, "finding subject")
	}
	return row.subject(), nil
}

func (r schoolRepository) UpdateSubject(ctx context.Context, subject school.Subject, exec ...core.DBExecutor) (school.Subject, error) {
	row := toSubjectRow(subject)
	res, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		UPDATE subjects SET name = :name, teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`,
		row)
	if err != nil {
		return school.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	return row.subject(), nil
}

func (r schoolRepository) DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := r.exec(ctx, exec, "DELETE FROM subjects WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	if n == 0 {
		return school.ErrSubjectNotFound
	}
	return nil
}

func (r schoolRepository) SubjectCodeExists(ctx context.Context, classID, code string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := r.get(ctx, exec, &exists, "SELECT EXISTS (SELECT 1 FROM subjects WHERE class_id = ? AND code = ?)", classID, code)
	if err != nil {
		return false, errors.Wrap(err, "checking subject code")
	}
	return exists, nil
}
