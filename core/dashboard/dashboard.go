package dashboard

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/user"
)

type (
	AdminStats struct {
		UsersByRole map[string]int `json:"users_by_role" boil:"-"`
		Students    int            `json:"students" boil:"students"`
		Classes     int            `json:"classes" boil:"classes"`
		Subjects    int            `json:"subjects" boil:"subjects"`
	}

	TeacherStats struct {
		Subjects            int `json:"subjects" boil:"subjects"`
		FormClasses         int `json:"form_classes" boil:"form_classes"`
		Assessments         int `json:"assessments" boil:"assessments"`
		UngradedSubmissions int `json:"ungraded_submissions" boil:"ungraded_submissions"`
	}

	StudentStats struct {
		PendingAssessments int     `json:"pending_assessments" boil:"pending_assessments"`
		AttendanceRate     float64 `json:"attendance_rate" boil:"attendance_rate"`
		AverageScore       float64 `json:"average_score" boil:"average_score"`
	}

	ParentStats struct {
		Wards               int   `json:"wards" boil:"wards"`
		WalletBalance       int64 `json:"wallet_balance" boil:"wallet_balance"`
		OutstandingInvoices int   `json:"outstanding_invoices" boil:"outstanding_invoices"`
		OutstandingAmount   int64 `json:"outstanding_amount" boil:"outstanding_amount"`
	}

	HRStats struct {
		Staff         int    `json:"staff" boil:"staff"`
		LastRunPeriod string `json:"last_run_period" boil:"last_run_period"`
		LastRunStatus string `json:"last_run_status" boil:"last_run_status"`
		LastRunNet    int64  `json:"last_run_net" boil:"last_run_net"`
	}

	MedicalStats struct {
		VisitsToday    int `json:"visits_today" boil:"visits_today"`
		VisitsThisWeek int `json:"visits_this_week" boil:"visits_this_week"`
	}

	SecurityStats struct {
		VisitorsInside int `json:"visitors_inside" boil:"visitors_inside"`
		VisitorsToday  int `json:"visitors_today" boil:"visitors_today"`
	}

	FinanceStats struct {
		Wallets       int   `json:"wallets" boil:"wallets"`
		WalletBalance int64 `json:"wallet_balance" boil:"wallet_balance"`
		Invoiced      int64 `json:"invoiced" boil:"invoiced"`
		Collected     int64 `json:"collected" boil:"collected"`
		Outstanding   int64 `json:"outstanding" boil:"outstanding"`
	}

	// Dashboard holds a section per role of the user.
	Dashboard struct {
		Admin    *AdminStats    `json:"admin,omitempty"`
		Teacher  *TeacherStats  `json:"teacher,omitempty"`
		Student  *StudentStats  `json:"student,omitempty"`
		Parent   *ParentStats   `json:"parent,omitempty"`
		HR       *HRStats       `json:"hr,omitempty"`
		Medical  *MedicalStats  `json:"medical,omitempty"`
		Security *SecurityStats `json:"security,omitempty"`
		Finance  *FinanceStats  `json:"finance,omitempty"`
	}
)

type (
	Repository interface {
		AdminStats(ctx context.Context) (AdminStats, error)
		TeacherStats(ctx context.Context, teacherID string) (TeacherStats, error)
		// StudentStats computes the stats of the student owning `userID`; `now` decides which assessments are open.
		StudentStats(ctx context.Context, userID string, now time.Time) (StudentStats, error)
		// ParentStats computes the stats of the parent owning `userID`.
		ParentStats(ctx context.Context, userID string) (ParentStats, error)
		HRStats(ctx context.Context) (HRStats, error)
		MedicalStats(ctx context.Context, dayStart, weekStart time.Time) (MedicalStats, error)
		SecurityStats(ctx context.Context, dayStart time.Time) (SecurityStats, error)
		FinanceStats(ctx context.Context) (FinanceStats, error)
	}

	Service struct {
		repo    Repository
		nowFunc func() time.Time
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &Service{repo: repo, nowFunc: func() time.Time { return time.Now().UTC() }}
}

// SetNowFunc overrides the clock of the service.
func (svc *Service) SetNowFunc(f func() time.Time) {
	svc.nowFunc = f
}

// For builds the dashboard of `usr`, with a section per role they hold.
func (svc *Service) For(ctx context.Context, usr user.User) (Dashboard, error) {
	var dash Dashboard
	now := svc.nowFunc()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -((int(dayStart.Weekday()) + 6) % 7)) // Monday

	if usr.IsAdmin() {
		stats, err := svc.repo.AdminStats(ctx)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "admin stats")
		}
		dash.Admin = &stats
	}
	if usr.IsTeacher() {
		stats, err := svc.repo.TeacherStats(ctx, usr.ID)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "teacher stats")
		}
		dash.Teacher = &stats
	}
	if usr.IsStudent() {
		stats, err := svc.repo.StudentStats(ctx, usr.ID, now)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "student stats")
		}
		dash.Student = &stats
	}
	if usr.IsParent() {
		stats, err := svc.repo.ParentStats(ctx, usr.ID)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "parent stats")
		}
		dash.Parent = &stats
	}
	if usr.IsHR() || usr.IsAdmin() {
		stats, err := svc.repo.HRStats(ctx)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "hr stats")
		}
		dash.HR = &stats
	}
	if usr.IsMedical() {
		stats, err := svc.repo.MedicalStats(ctx, dayStart, weekStart)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "medical stats")
		}
		dash.Medical = &stats
	}
	if usr.IsSecurity() {
		stats, err := svc.repo.SecurityStats(ctx, dayStart)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "security stats")
		}
		dash.Security = &stats
	}
	if usr.IsFinance() || usr.IsAdmin() {
		stats, err := svc.repo.FinanceStats(ctx)
		if err != nil {
			return Dashboard{}, errors.Wrap(err, "finance stats")
		}
		dash.Finance = &stats
	}
	return dash, nil
}
