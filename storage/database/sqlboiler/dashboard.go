// Package boiledrepos computes the dashboard aggregates with sqlboiler raw queries.
package boiledrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/user"
)

type dashboardRepository struct {
	exec boil.ContextExecutor
}

var _ dashboard.Repository = (*dashboardRepository)(nil) // interface compliance check

func NewDashboardRepository(exec boil.ContextExecutor) *dashboardRepository {
	return &dashboardRepository{exec: exec}
}

type roleCount struct {
	Role  string `boil:"role"`
	Count int    `boil:"count"`
}

func (repo dashboardRepository) AdminStats(ctx context.Context) (dashboard.AdminStats, error) {
	var stats dashboard.AdminStats
	err := queries.Raw(`
		SELECT
			(SELECT COUNT(*) FROM students WHERE status = 'active') AS students,
			(SELECT COUNT(*) FROM classes) AS classes,
			(SELECT COUNT(*) FROM subjects) AS subjects`,
	).Bind(ctx, repo.exec, &stats)
	if err != nil {
		return dashboard.AdminStats{}, errors.Wrap(err, "counting school records")
	}

	var counts []*roleCount
	err = queries.Raw(`
		SELECT r AS role, COUNT(*) AS count
		FROM users, UNNEST(roles) AS r
		WHERE is_active
		GROUP BY r`,
	).Bind(ctx, repo.exec, &counts)
	if err != nil {
		return dashboard.AdminStats{}, errors.Wrap(err, "counting users per role")
	}
	stats.UsersByRole = make(map[string]int, len(counts))
	for _, c := range counts {
		stats.UsersByRole[c.Role] = c.Count
	}
	return stats, nil
}

func (repo dashboardRepository) TeacherStats(ctx context.Context, teacherID string) (dashboard.TeacherStats, error) {
	var stats dashboard.TeacherStats
	err := queries.Raw(`
		SELECT
			(SELECT COUNT(*) FROM subjects WHERE teacher_id = $1) AS subjects,
			(SELECT COUNT(*) FROM classes WHERE form_teacher_id = $1) AS form_classes,
			(SELECT COUNT(*) FROM assessments WHERE teacher_id = $1) AS assessments,
			(SELECT COUNT(*)
				FROM submissions sb JOIN assessments a ON a.id = sb.assessment_id
				WHERE a.teacher_id = $1 AND sb.graded_at IS NULL) AS ungraded_submissions`,
		teacherID,
	).Bind(ctx, repo.exec, &stats)
	return stats, errors.Wrap(err, "computing teacher stats")
}

func (repo dashboardRepository) StudentStats(ctx context.Context, userID string, now time.Time) (dashboard.StudentStats, error) {
	var stats dashboard.StudentStats
	err := queries.Raw(`
		WITH s AS (SELECT id, class_id FROM students WHERE user_id = $1)
		SELECT
			(SELECT COUNT(*)
				FROM assessments a JOIN s ON s.class_id = a.class_id
				WHERE a.opens_at <= $2 AND a.due_at > $2
				AND NOT EXISTS (SELECT 1 FROM submissions sb WHERE sb.assessment_id = a.id AND sb.student_id = s.id)
			) AS pending_assessments,
			COALESCE((SELECT ROUND(
					100.0 * COUNT(*) FILTER (WHERE at.status IN ('present', 'late'))
					/ NULLIF(COUNT(*) FILTER (WHERE at.status <> 'excused'), 0), 2)
				FROM attendance at JOIN s ON s.id = at.student_id
			), 0) AS attendance_rate,
			COALESCE((SELECT ROUND(AVG(100.0 * sb.score / a.max_score)::numeric, 2)
				FROM submissions sb
				JOIN assessments a ON a.id = sb.assessment_id
				JOIN s ON s.id = sb.student_id
				WHERE sb.score IS NOT NULL AND a.published
			), 0) AS average_score`,
		userID, now.UTC(),
	).Bind(ctx, repo.exec, &stats)
	return stats, errors.Wrap(err, "computing student stats")
}

func (repo dashboardRepository) ParentStats(ctx context.Context, userID string) (dashboard.ParentStats, error) {
	var stats dashboard.ParentStats
	err := queries.Raw(`
		WITH wi AS (
			SELECT i.amount, i.amount_paid, i.status
			FROM invoices i
			JOIN wards w ON w.student_id = i.student_id
			JOIN parents p ON p.id = w.parent_id
			WHERE p.user_id = $1
		)
		SELECT
			(SELECT COUNT(*) FROM wards w JOIN parents p ON p.id = w.parent_id WHERE p.user_id = $1) AS wards,
			COALESCE((SELECT balance FROM wallets WHERE owner_id = $1), 0) AS wallet_balance,
			(SELECT COUNT(*) FROM wi WHERE status <> 'paid') AS outstanding_invoices,
			COALESCE((SELECT SUM(amount - amount_paid) FROM wi), 0) AS outstanding_amount`,
		userID,
	).Bind(ctx, repo.exec, &stats)
	return stats, errors.Wrap(err, "computing parent stats")
}

func (repo dashboardRepository) HRStats(ctx context.Context) (dashboard.HRStats, error) {
	staffRoles := []string{user.RoleAdmin, user.RoleTeacher, user.RoleHR, user.RoleFinance, user.RoleMedical, user.RoleSecurity}
	patterns := make([]string, 0, len(staffRoles))
	for _, role := range staffRoles {
		patterns = append(patterns, role+"%")
	}

	var stats dashboard.HRStats
	err := queries.Raw(`
		SELECT
			(SELECT COUNT(*) FROM users
				WHERE is_active AND EXISTS (SELECT 1 FROM UNNEST(roles) AS r WHERE r LIKE ANY ($1::text[]))
			) AS staff,
			COALESCE(lr.period, '') AS last_run_period,
			COALESCE(lr.status, '') AS last_run_status,
			COALESCE(lr.total_net, 0) AS last_run_net
		FROM (SELECT 1) AS one
		LEFT JOIN LATERAL (SELECT period, status, total_net FROM payroll_runs ORDER BY period DESC LIMIT 1) AS lr ON TRUE`,
		pq.Array(patterns),
	).Bind(ctx, repo.exec, &stats)
	return stats, errors.Wrap(err, "computing hr stats")
}

func (repo dashboardRepository) MedicalStats(ctx context.Context, dayStart, weekStart time.Time) (dashboard.MedicalStats, error) {
	var stats dashboard.MedicalStats
	err := queries.Raw(`
		SELECT
			COUNT(*) FILTER (WHERE visited_at >= $1) AS visits_today,
			COUNT(*) AS visits_this_week
		FROM clinic_visits
		WHERE visited_at >= $2`,
		dayStart.UTC(), weekStart.UTC(),
	).Bind(ctx, repo.exec, &stats)
	return stats, errors.Wrap(err, "computing medical stats")
}

func (repo dashboardRepository) SecurityStats(ctx context.Context, dayStart time.Time) (dashboard.SecurityStats, error) {
	var stats dashboard.SecurityStats
	err := queries.Raw(`
		SELECT
			COUNT(*) FILTER (WHERE checked_out_at IS NULL) AS visitors_inside,
			COUNT(*) FILTER (WHERE checked_in_at >= $1) AS visitors_today
		FROM visitor_logs`,
		dayStart.UTC(),
	).Bind(ctx, repo.exec, &stats)
	return stats, errors.Wrap(err, "computing security stats")
}

func (repo dashboardRepository) FinanceStats(ctx context.Context) (dashboard.FinanceStats, error) {
	var stats dashboard.FinanceStats
	err := queries.Raw(`
		SELECT
			(SELECT COUNT(*) FROM wallets) AS wallets,
			COALESCE((SELECT SUM(balance) FROM wallets), 0) AS wallet_balance,
			COALESCE(SUM(amount), 0) AS invoiced,
			COALESCE(SUM(amount_paid), 0) AS collected,
			COALESCE(SUM(amount - amount_paid), 0) AS outstanding
		FROM invoices`,
	).Bind(ctx, repo.exec, &stats)
	return stats, errors.Wrap(err, "computing finance stats")
}
