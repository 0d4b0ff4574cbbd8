package inmemdb

import (
	"context"
	"math"
	"time"

	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/finance"
	"github.com/trezcool/shule/core/student"
)

type dashboardRepository struct {
	db *DB
}

var _ dashboard.Repository = (*dashboardRepository)(nil) // interface compliance check

func NewDashboardRepository(db *DB) *dashboardRepository {
	return &dashboardRepository{db: db}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func (repo *dashboardRepository) AdminStats(_ context.Context) (dashboard.AdminStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	stats := dashboard.AdminStats{
		UsersByRole: make(map[string]int),
		Classes:     len(repo.db.classes),
		Subjects:    len(repo.db.subjects),
	}
	for _, usr := range repo.db.users {
		if !usr.Active() {
			continue
		}
		for _, role := range usr.Roles {
			stats.UsersByRole[role]++
		}
	}
	for _, p := range repo.db.students {
		if p.Status == student.StatusActive {
			stats.Students++
		}
	}
	return stats, nil
}

func (repo *dashboardRepository) TeacherStats(_ context.Context, teacherID string) (dashboard.TeacherStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var stats dashboard.TeacherStats
	for _, s := range repo.db.subjects {
		if s.TeacherID == teacherID {
			stats.Subjects++
		}
	}
	for _, c := range repo.db.classes {
		if c.FormTeacherID == teacherID {
			stats.FormClasses++
		}
	}
	for _, a := range repo.db.assessments {
		if a.TeacherID == teacherID {
			stats.Assessments++
		}
	}
	for _, sub := range repo.db.submissions {
		if a, ok := repo.db.assessments[sub.AssessmentID]; ok && a.TeacherID == teacherID && !sub.Graded() {
			stats.UngradedSubmissions++
		}
	}
	return stats, nil
}

func (repo *dashboardRepository) StudentStats(_ context.Context, userID string, now time.Time) (dashboard.StudentStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var stats dashboard.StudentStats
	var profile student.Profile
	found := false
	for _, p := range repo.db.students {
		if p.UserID == userID {
			profile, found = p, true
			break
		}
	}
	if !found {
		return stats, nil
	}

	submitted := make(map[string]bool)
	var total float64
	var graded int
	for _, sub := range repo.db.submissions {
		if sub.StudentID != profile.ID {
			continue
		}
		submitted[sub.AssessmentID] = true
		if a, ok := repo.db.assessments[sub.AssessmentID]; ok && sub.Graded() && a.Published {
			total += 100 * *sub.Score / a.MaxScore
			graded++
		}
	}
	if graded > 0 {
		stats.AverageScore = round2(total / float64(graded))
	}
	for _, a := range repo.db.assessments {
		if a.ClassID == profile.ClassID && !now.Before(a.OpensAt) && now.Before(a.DueAt) && !submitted[a.ID] {
			stats.PendingAssessments++
		}
	}

	var attended, counted int
	for _, r := range repo.db.attendance {
		if r.StudentID != profile.ID {
			continue
		}
		switch r.Status {
		case attendance.StatusPresent, attendance.StatusLate:
			attended++
			counted++
		case attendance.StatusAbsent:
			counted++
		}
	}
	if counted > 0 {
		stats.AttendanceRate = round2(100 * float64(attended) / float64(counted))
	}
	return stats, nil
}

func (repo *dashboardRepository) ParentStats(_ context.Context, userID string) (dashboard.ParentStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var stats dashboard.ParentStats
	for _, w := range repo.db.wallets {
		if w.OwnerID == userID {
			stats.WalletBalance = w.Balance
			break
		}
	}

	wards := make(map[string]bool)
	for key := range repo.db.wards {
		if p, ok := repo.db.parents[key[0]]; ok && p.UserID == userID {
			wards[key[1]] = true
		}
	}
	stats.Wards = len(wards)
	for _, inv := range repo.db.invoices {
		if !wards[inv.StudentID] {
			continue
		}
		if inv.Status != finance.StatusPaid {
			stats.OutstandingInvoices++
		}
		stats.OutstandingAmount += inv.Outstanding()
	}
	return stats, nil
}

func (repo *dashboardRepository) HRStats(_ context.Context) (dashboard.HRStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var stats dashboard.HRStats
	for _, usr := range repo.db.users {
		if usr.Active() && usr.IsStaff() {
			stats.Staff++
		}
	}
	for _, r := range repo.db.runs {
		if r.Period > stats.LastRunPeriod {
			stats.LastRunPeriod = r.Period
			stats.LastRunStatus = r.Status
			stats.LastRunNet = r.TotalNet
		}
	}
	return stats, nil
}

func (repo *dashboardRepository) MedicalStats(_ context.Context, dayStart, weekStart time.Time) (dashboard.MedicalStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var stats dashboard.MedicalStats
	for _, v := range repo.db.visits {
		if !v.VisitedAt.Before(weekStart) {
			stats.VisitsThisWeek++
		}
		if !v.VisitedAt.Before(dayStart) {
			stats.VisitsToday++
		}
	}
	return stats, nil
}

func (repo *dashboardRepository) SecurityStats(_ context.Context, dayStart time.Time) (dashboard.SecurityStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var stats dashboard.SecurityStats
	for _, vl := range repo.db.visitorLogs {
		if vl.Inside() {
			stats.VisitorsInside++
		}
		if !vl.CheckedInAt.Before(dayStart) {
			stats.VisitorsToday++
		}
	}
	return stats, nil
}

func (repo *dashboardRepository) FinanceStats(_ context.Context) (dashboard.FinanceStats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	stats := dashboard.FinanceStats{Wallets: len(repo.db.wallets)}
	for _, w := range repo.db.wallets {
		stats.WalletBalance += w.Balance
	}
	for _, inv := range repo.db.invoices {
		stats.Invoiced += inv.Amount
		stats.Collected += inv.AmountPaid
		stats.Outstanding += inv.Outstanding()
	}
	return stats, nil
}
