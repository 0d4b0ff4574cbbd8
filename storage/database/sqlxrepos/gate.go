package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/clinic"
	"github.com/trezcool/shule/core/security"
)

const (
	visitColumns      = `id, student_id, complaint, diagnosis, treatment, attended_by, visited_at, parent_notified, created_at`
	visitorLogColumns = `id, name, phone, purpose, host_id, checked_in_at, checked_out_at, recorded_by`
)

type visitRow struct {
	ID             string    `db:"id"`
	StudentID      string    `db:"student_id"`
	Complaint      string    `db:"complaint"`
	Diagnosis      string    `db:"diagnosis"`
	Treatment      string    `db:"treatment"`
	AttendedBy     string    `db:"attended_by"`
	VisitedAt      time.Time `db:"visited_at"`
	ParentNotified bool      `db:"parent_notified"`
	CreatedAt      time.Time `db:"created_at"`
}

func (row visitRow) visit() clinic.Visit {
	v := clinic.Visit(row)
	v.VisitedAt = row.VisitedAt.UTC()
	v.CreatedAt = row.CreatedAt.UTC()
	return v
}

type clinicRepository struct {
	repo
}

var _ clinic.Repository = (*clinicRepository)(nil) // interface compliance check

func NewClinicRepository(db *sqlx.DB) *clinicRepository {
	return &clinicRepository{repo{db: db}}
}

func (r clinicRepository) CreateVisit(ctx context.Context, v clinic.Visit, exec ...core.DBExecutor) (clinic.Visit, error) {
	v.ID = newID()
	row := visitRow(v)
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO clinic_visits (`+visitColumns+`)
		VALUES (:id, :student_id, :complaint, :diagnosis, :treatment, :attended_by, :visited_at, :parent_notified, :created_at)`,
		row)
	if err != nil {
		return clinic.Visit{}, errors.Wrap(err, "inserting clinic visit")
	}
	return row.visit(), nil
}

func (r clinicRepository) GetVisit(ctx context.Context, id string, exec ...core.DBExecutor) (clinic.Visit, error) {
	if _, err := uuid.Parse(id); err != nil {
		return clinic.Visit{}, clinic.ErrNotFound
	}
	var row visitRow
	if err := r.get(ctx, exec, &row, "SELECT "+visitColumns+" FROM clinic_visits WHERE id = ?", id); err != nil {
		return clinic.Visit{}, trapNoRows(err, clinic.ErrNotFound, "finding clinic visit")
	}
	return row.visit(), nil
}

func (r clinicRepository) QueryVisits(ctx context.Context, filter clinic.Filter, exec ...core.DBExecutor) ([]clinic.Visit, error) {
	var w where
	if filter.StudentID != "" {
		w.add("student_id = ?", filter.StudentID)
	}
	if !filter.From.IsZero() {
		w.add("visited_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		w.add("visited_at <= ?", filter.To.UTC())
	}

	var rows []visitRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+visitColumns+" FROM clinic_visits"+w.String()+" ORDER BY visited_at DESC", w.args...); err != nil {
		return nil, errors.Wrap(err, "querying clinic visits")
	}
	visits := make([]clinic.Visit, 0, len(rows))
	for _, row := range rows {
		visits = append(visits, row.visit())
	}
	return visits, nil
}

type visitorLogRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Phone        string      `db:"phone"`
	Purpose      string      `db:"purpose"`
	HostID       null.String `db:"host_id"`
	CheckedInAt  time.Time   `db:"checked_in_at"`
	CheckedOutAt null.Time   `db:"checked_out_at"`
	RecordedBy   string      `db:"recorded_by"`
}

func (row visitorLogRow) log() security.VisitorLog {
	return security.VisitorLog{
		ID:           row.ID,
		Name:         row.Name,
		Phone:        row.Phone,
		Purpose:      row.Purpose,
		HostID:       row.HostID.String,
		CheckedInAt:  row.CheckedInAt.UTC(),
		CheckedOutAt: utc(row.CheckedOutAt.Time),
		RecordedBy:   row.RecordedBy,
	}
}

type gateRepository struct {
	repo
}

var _ security.Repository = (*gateRepository)(nil) // interface compliance check

func NewGateRepository(db *sqlx.DB) *gateRepository {
	return &gateRepository{repo{db: db}}
}

func (r gateRepository) CreateLog(ctx context.Context, vl security.VisitorLog, exec ...core.DBExecutor) (security.VisitorLog, error) {
	row := visitorLogRow{
		ID:           newID(),
		Name:         vl.Name,
		Phone:        vl.Phone,
		Purpose:      vl.Purpose,
		HostID:       nullString(vl.HostID),
		CheckedInAt:  vl.CheckedInAt.UTC(),
		CheckedOutAt: nullTime(vl.CheckedOutAt),
		RecordedBy:   vl.RecordedBy,
	}
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO visitor_logs (`+visitorLogColumns+`)
		VALUES (:id, :name, :phone, :purpose, :host_id, :checked_in_at, :checked_out_at, :recorded_by)`,
		row)
	if err != nil {
		return security.VisitorLog{}, errors.Wrap(err, "inserting visitor log")
	}
	return row.log(), nil
}

func (r gateRepository) GetLog(ctx context.Context, id string, exec ...core.DBExecutor) (security.VisitorLog, error) {
	if _, err := uuid.Parse(id); err != nil {
		return security.VisitorLog{}, security.ErrNotFound
	}
	var row visitorLogRow
	if err := r.get(ctx, exec, &row, "SELECT "+visitorLogColumns+" FROM visitor_logs WHERE id = ?", id); err != nil {
		return security.VisitorLog{}, trapNoRows(err, security.ErrNotFound, "finding visitor log")
	}
	return row.log(), nil
}

func (r gateRepository) CheckOut(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (security.VisitorLog, error) {
	if _, err := uuid.Parse(id); err != nil {
		return security.VisitorLog{}, security.ErrNotFound
	}
	var row visitorLogRow
	err := r.get(ctx, exec, &row,
		"UPDATE visitor_logs SET checked_out_at = ? WHERE id = ? AND checked_out_at IS NULL RETURNING "+visitorLogColumns,
		at.UTC(), id)
	if err == nil {
		return row.log(), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return security.VisitorLog{}, errors.Wrap(err, "checking out visitor")
	}
	if _, err = r.GetLog(ctx, id, exec...); err != nil {
		return security.VisitorLog{}, err
	}
	return security.VisitorLog{}, security.ErrAlreadyCheckedOut
}

func (r gateRepository) QueryLogs(ctx context.Context, filter security.Filter, exec ...core.DBExecutor) ([]security.VisitorLog, error) {
	var w where
	if filter.ActiveOnly {
		w.add("checked_out_at IS NULL")
	}
	if !filter.From.IsZero() {
		w.add("checked_in_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		w.add("checked_in_at <= ?", filter.To.UTC())
	}

	var rows []visitorLogRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+visitorLogColumns+" FROM visitor_logs"+w.String()+" ORDER BY checked_in_at DESC", w.args...); err != nil {
		return nil, errors.Wrap(err, "querying visitor logs")
	}
	logs := make([]security.VisitorLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, row.log())
	}
	return logs, nil
}
