package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

const attendanceColumns = `id, student_id, class_id, date, status, remark, marked_by, created_at, updated_at`

type attendanceRow struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	ClassID   string    `db:"class_id"`
	Date      time.Time `db:"date"`
	Status    string    `db:"status"`
	Remark    string    `db:"remark"`
	MarkedBy  string    `db:"marked_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row attendanceRow) record() attendance.Record {
	return attendance.Record{
		ID:        row.ID,
		StudentID: row.StudentID,
		ClassID:   row.ClassID,
		Date:      row.Date.UTC(),
		Status:    row.Status,
		Remark:    row.Remark,
		MarkedBy:  row.MarkedBy,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	repo
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{repo{db: db}}
}

func (r attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	var row attendanceRow
	err := r.get(ctx, exec, &row, `
		INSERT INTO attendance (`+attendanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, date) DO UPDATE SET
			class_id = EXCLUDED.class_id, status = EXCLUDED.status, remark = EXCLUDED.remark,
			marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
		RETURNING `+attendanceColumns,
		newID(), rec.StudentID, rec.ClassID, rec.Date.UTC(), rec.Status, rec.Remark, rec.MarkedBy,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	return row.record(), nil
}

func (r attendanceRepository) QueryRecords(ctx context.Context, filter attendance.Filter, exec ...core.DBExecutor) ([]attendance.Record, error) {
	var w where
	if filter.StudentID != "" {
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.ClassID != "" {
		w.add("class_id = ?", filter.ClassID)
	}
	if !filter.From.IsZero() {
		w.add("date >= ?::date", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		w.add("date <= ?::date", filter.To.UTC())
	}

	var rows []attendanceRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+attendanceColumns+" FROM attendance"+w.String()+" ORDER BY date, student_id", w.args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}
