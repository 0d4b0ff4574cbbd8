package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, r attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r.Date = day(r.Date)
	for id, existing := range repo.db.attendance {
		if existing.StudentID == r.StudentID && existing.Date.Equal(r.Date) {
			r.ID = id
			r.CreatedAt = existing.CreatedAt
			repo.db.attendance[id] = r
			return r, nil
		}
	}
	r.ID = newID()
	repo.db.attendance[r.ID] = r
	return r, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter attendance.Filter, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var from, to time.Time
	if !filter.From.IsZero() {
		from = day(filter.From)
	}
	if !filter.To.IsZero() {
		to = day(filter.To)
	}

	records := make([]attendance.Record, 0)
	for _, r := range repo.db.attendance {
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		if filter.ClassID != "" && r.ClassID != filter.ClassID {
			continue
		}
		if !inRange(r.Date, from, to) {
			continue
		}
		records = append(records, r)
	}
	order(records, nil, nil, func(a, b attendance.Record) int {
		if c := compareTimes(a.Date, b.Date); c != 0 {
			return c
		}
		return compareStrings(a.StudentID, b.StudentID)
	})
	return records, nil
}
