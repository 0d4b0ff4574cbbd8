package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/clinic"
	"github.com/trezcool/shule/core/security"
)

type clinicRepository struct {
	db *DB
}

var _ clinic.Repository = (*clinicRepository)(nil) // interface compliance check

func NewClinicRepository(db *DB) *clinicRepository {
	return &clinicRepository{db: db}
}

func (repo *clinicRepository) CreateVisit(_ context.Context, v clinic.Visit, _ ...core.DBExecutor) (clinic.Visit, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	v.ID = newID()
	repo.db.visits[v.ID] = v
	return v, nil
}

func (repo *clinicRepository) GetVisit(_ context.Context, id string, _ ...core.DBExecutor) (clinic.Visit, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if v, ok := repo.db.visits[id]; ok {
		return v, nil
	}
	return clinic.Visit{}, clinic.ErrNotFound
}

func (repo *clinicRepository) QueryVisits(_ context.Context, filter clinic.Filter, _ ...core.DBExecutor) ([]clinic.Visit, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	visits := make([]clinic.Visit, 0)
	for _, v := range repo.db.visits {
		if filter.StudentID != "" && v.StudentID != filter.StudentID {
			continue
		}
		if !inRange(v.VisitedAt, filter.From, filter.To) {
			continue
		}
		visits = append(visits, v)
	}
	order(visits, nil, nil, func(a, b clinic.Visit) int { return -compareTimes(a.VisitedAt, b.VisitedAt) })
	return visits, nil
}

type gateRepository struct {
	db *DB
}

var _ security.Repository = (*gateRepository)(nil) // interface compliance check

func NewGateRepository(db *DB) *gateRepository {
	return &gateRepository{db: db}
}

func (repo *gateRepository) CreateLog(_ context.Context, vl security.VisitorLog, _ ...core.DBExecutor) (security.VisitorLog, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	vl.ID = newID()
	repo.db.visitorLogs[vl.ID] = vl
	return vl, nil
}

func (repo *gateRepository) GetLog(_ context.Context, id string, _ ...core.DBExecutor) (security.VisitorLog, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if vl, ok := repo.db.visitorLogs[id]; ok {
		return vl, nil
	}
	return security.VisitorLog{}, security.ErrNotFound
}

func (repo *gateRepository) CheckOut(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) (security.VisitorLog, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	vl, ok := repo.db.visitorLogs[id]
	if !ok {
		return security.VisitorLog{}, security.ErrNotFound
	}
	if !vl.Inside() {
		return security.VisitorLog{}, security.ErrAlreadyCheckedOut
	}
	vl.CheckedOutAt = at.UTC()
	repo.db.visitorLogs[id] = vl
	return vl, nil
}

func (repo *gateRepository) QueryLogs(_ context.Context, filter security.Filter, _ ...core.DBExecutor) ([]security.VisitorLog, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	logs := make([]security.VisitorLog, 0)
	for _, vl := range repo.db.visitorLogs {
		if filter.ActiveOnly && !vl.Inside() {
			continue
		}
		if !inRange(vl.CheckedInAt, filter.From, filter.To) {
			continue
		}
		logs = append(logs, vl)
	}
	order(logs, nil, nil, func(a, b security.VisitorLog) int { return -compareTimes(a.CheckedInAt, b.CheckedInAt) })
	return logs, nil
}
