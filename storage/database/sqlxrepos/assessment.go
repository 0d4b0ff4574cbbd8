package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assessment"
)

const (
	assessmentColumns = `id, class_id, subject_id, teacher_id, title, description, kind, term, max_score, weight,
		requires_token, allow_late, opens_at, due_at, published, published_at, created_at, updated_at`
	tokenColumns      = `id, assessment_id, code, student_id, expires_at, used_at, used_by, created_at`
	submissionColumns = `id, assessment_id, student_id, answer, submitted_at, late, score, feedback, graded_at, graded_by`
)

var assessmentOrderings = map[string]string{
	"title":      "title",
	"opens_at":   "opens_at",
	"due_at":     "due_at",
	"created_at": "created_at",
}

type assessmentRow struct {
	ID            string    `db:"id"`
	ClassID       string    `db:"class_id"`
	SubjectID     string    `db:"subject_id"`
	TeacherID     string    `db:"teacher_id"`
	Title         string    `db:"title"`
	Description   string    `db:"description"`
	Kind          string    `db:"kind"`
	Term          string    `db:"term"`
	MaxScore      float64   `db:"max_score"`
	Weight        float64   `db:"weight"`
	RequiresToken bool      `db:"requires_token"`
	AllowLate     bool      `db:"allow_late"`
	OpensAt       time.Time `db:"opens_at"`
	DueAt         time.Time `db:"due_at"`
	Published     bool      `db:"published"`
	PublishedAt   null.Time `db:"published_at"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func toAssessmentRow(a assessment.Assessment) assessmentRow {
	return assessmentRow{
		ID:            a.ID,
		ClassID:       a.ClassID,
		SubjectID:     a.SubjectID,
		TeacherID:     a.TeacherID,
		Title:         a.Title,
		Description:   a.Description,
		Kind:          a.Kind,
		Term:          a.Term,
		MaxScore:      a.MaxScore,
		Weight:        a.Weight,
		RequiresToken: a.RequiresToken,
		AllowLate:     a.AllowLate,
		OpensAt:       a.OpensAt.UTC(),
		DueAt:         a.DueAt.UTC(),
		Published:     a.Published,
		PublishedAt:   nullTime(a.PublishedAt),
		CreatedAt:     a.CreatedAt.UTC(),
		UpdatedAt:     a.UpdatedAt.UTC(),
	}
}

func (row assessmentRow) assessment() assessment.Assessment {
	return assessment.Assessment{
		ID:            row.ID,
		ClassID:       row.ClassID,
		SubjectID:     row.SubjectID,
		TeacherID:     row.TeacherID,
		Title:         row.Title,
		Description:   row.Description,
		Kind:          row.Kind,
		Term:          row.Term,
		MaxScore:      row.MaxScore,
		Weight:        row.Weight,
		RequiresToken: row.RequiresToken,
		AllowLate:     row.AllowLate,
		OpensAt:       row.OpensAt.UTC(),
		DueAt:         row.DueAt.UTC(),
		Published:     row.Published,
		PublishedAt:   utc(row.PublishedAt.Time),
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

type tokenRow struct {
	ID           string      `db:"id"`
	AssessmentID string      `db:"assessment_id"`
	Code         string      `db:"code"`
	StudentID    null.String `db:"student_id"`
	ExpiresAt    null.Time   `db:"expires_at"`
	UsedAt       null.Time   `db:"used_at"`
	UsedBy       null.String `db:"used_by"`
	CreatedAt    time.Time   `db:"created_at"`
}

func toTokenRow(t assessment.Token) tokenRow {
	return tokenRow{
		ID:           t.ID,
		AssessmentID: t.AssessmentID,
		Code:         t.Code,
		StudentID:    nullString(t.StudentID),
		ExpiresAt:    nullTime(t.ExpiresAt),
		UsedAt:       nullTime(t.UsedAt),
		UsedBy:       nullString(t.UsedBy),
		CreatedAt:    t.CreatedAt.UTC(),
	}
}

func (row tokenRow) token() assessment.Token {
	return assessment.Token{
		ID:           row.ID,
		AssessmentID: row.AssessmentID,
		Code:         row.Code,
		StudentID:    row.StudentID.String,
		ExpiresAt:    utc(row.ExpiresAt.Time),
		UsedAt:       utc(row.UsedAt.Time),
		UsedBy:       row.UsedBy.String,
		CreatedAt:    row.CreatedAt.UTC(),
	}
}

type submissionRow struct {
	ID           string       `db:"id"`
	AssessmentID string       `db:"assessment_id"`
	StudentID    string       `db:"student_id"`
	Answer       string       `db:"answer"`
	SubmittedAt  time.Time    `db:"submitted_at"`
	Late         bool         `db:"late"`
	Score        null.Float64 `db:"score"`
	Feedback     string       `db:"feedback"`
	GradedAt     null.Time    `db:"graded_at"`
	GradedBy     null.String  `db:"graded_by"`
}

func toSubmissionRow(s assessment.Submission) submissionRow {
	return submissionRow{
		ID:           s.ID,
		AssessmentID: s.AssessmentID,
		StudentID:    s.StudentID,
		Answer:       s.Answer,
		SubmittedAt:  s.SubmittedAt.UTC(),
		Late:         s.Late,
		Score:        null.Float64FromPtr(s.Score),
		Feedback:     s.Feedback,
		GradedAt:     nullTime(s.GradedAt),
		GradedBy:     nullString(s.GradedBy),
	}
}

func (row submissionRow) submission() assessment.Submission {
	return assessment.Submission{
		ID:           row.ID,
		AssessmentID: row.AssessmentID,
		StudentID:    row.StudentID,
		Answer:       row.Answer,
		SubmittedAt:  row.SubmittedAt.UTC(),
		Late:         row.Late,
		Score:        row.Score.Ptr(),
		Feedback:     row.Feedback,
		GradedAt:     utc(row.GradedAt.Time),
		GradedBy:     row.GradedBy.String,
	}
}

type assessmentRepository struct {
	repo
}

var _ assessment.Repository = (*assessmentRepository)(nil) // interface compliance check

func NewAssessmentRepository(db *sqlx.DB) *assessmentRepository {
	return &assessmentRepository{repo{db: db}}
}

func (r assessmentRepository) CreateAssessment(ctx context.Context, a assessment.Assessment, exec ...core.DBExecutor) (assessment.Assessment, error) {
	a.ID = newID()
	row := toAssessmentRow(a)
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO assessments (`+assessmentColumns+`)
		VALUES (:id, :class_id, :subject_id, :teacher_id, :title, :description, :kind, :term, :max_score, :weight,
			:requires_token, :allow_late, :opens_at, :due_at, :published, :published_at, :created_at, :updated_at)`,
		row)
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "inserting assessment")
	}
	return row.assessment(), nil
}

func (r assessmentRepository) QueryAssessments(ctx context.Context, filter assessment.Filter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]assessment.Assessment, error) {
	var w where
	if filter.ClassID != "" {
		w.add("class_id = ?", filter.ClassID)
	}
	if filter.SubjectID != "" {
		w.add("subject_id = ?", filter.SubjectID)
	}
	if filter.TeacherID != "" {
		w.add("teacher_id = ?", filter.TeacherID)
	}
	if filter.Term != "" {
		w.add("term = ?", filter.Term)
	}
	if filter.Kind != "" {
		w.add("kind = ?", filter.Kind)
	}
	if filter.Published != nil {
		w.add("published = ?", *filter.Published)
	}

	var rows []assessmentRow
	q := "SELECT " + assessmentColumns + " FROM assessments" + w.String() + orderBy(ordering, assessmentOrderings, "due_at DESC")
	if err := r.selekt(ctx, exec, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying assessments")
	}
	list := make([]assessment.Assessment, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.assessment())
	}
	return list, nil
}

func (r assessmentRepository) GetAssessment(ctx context.Context, id string, exec ...core.DBExecutor) (assessment.Assessment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	var row assessmentRow
	if err := r.get(ctx, exec, &row, "SELECT "+assessmentColumns+" FROM assessments WHERE id = ?", id); err != nil {
		return assessment.Assessment{}, trapNoRows(err, assessment.ErrNotFound, "finding assessment")
	}
	return row.assessment(), nil
}

func (r assessmentRepository) UpdateAssessment(ctx context.Context, a assessment.Assessment, exec ...core.DBExecutor) (assessment.Assessment, error) {
	row := toAssessmentRow(a)
	res, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		UPDATE assessments SET
			title = :title, description = :description, max_score = :max_score, weight = :weight,
			requires_token = :requires_token, allow_late = :allow_late, opens_at = :opens_at, due_at = :due_at,
			published = :published, published_at = :published_at, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "updating assessment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	return row.assessment(), nil
}

func (r assessmentRepository) DeleteAssessment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := r.exec(ctx, exec, "DELETE FROM assessments WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting assessment")
	}
	if n == 0 {
		return assessment.ErrNotFound
	}
	return nil
}

// CreateToken relies on ON CONFLICT DO NOTHING: a failed statement would abort the running transaction.
func (r assessmentRepository) CreateToken(ctx context.Context, t assessment.Token, exec ...core.DBExecutor) (assessment.Token, error) {
	t.ID = newID()
	row := toTokenRow(t)
	res, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO assessment_tokens (`+tokenColumns+`)
		VALUES (:id, :assessment_id, :code, :student_id, :expires_at, :used_at, :used_by, :created_at)
		ON CONFLICT (code) DO NOTHING`,
		row)
	if err != nil {
		return assessment.Token{}, errors.Wrap(err, "inserting token")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.Token{}, assessment.ErrTokenExists
	}
	return row.token(), nil
}

func (r assessmentRepository) TokenCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	if err := r.get(ctx, exec, &exists, "SELECT EXISTS (SELECT 1 FROM assessment_tokens WHERE code = ?)", code); err != nil {
		return false, errors.Wrap(err, "checking token code")
	}
	return exists, nil
}

func (r assessmentRepository) GetToken(ctx context.Context, code string, exec ...core.DBExecutor) (assessment.Token, error) {
	var row tokenRow
	if err := r.get(ctx, exec, &row, "SELECT "+tokenColumns+" FROM assessment_tokens WHERE code = ?", code); err != nil {
		return assessment.Token{}, trapNoRows(err, assessment.ErrTokenNotFound, "finding token")
	}
	return row.token(), nil
}

func (r assessmentRepository) GetRedeemedToken(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (assessment.Token, error) {
	var row tokenRow
	err := r.get(ctx, exec, &row,
		"SELECT "+tokenColumns+" FROM assessment_tokens WHERE assessment_id = ? AND used_by = ? LIMIT 1",
		assessmentID, studentID)
	if err != nil {
		return assessment.Token{}, trapNoRows(err, assessment.ErrTokenNotFound, "finding redeemed token")
	}
	return row.token(), nil
}

func (r assessmentRepository) QueryTokens(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.Token, error) {
	var rows []tokenRow
	err := r.selekt(ctx, exec, &rows,
		"SELECT "+tokenColumns+" FROM assessment_tokens WHERE assessment_id = ? ORDER BY created_at, code", assessmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying tokens")
	}
	tokens := make([]assessment.Token, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, row.token())
	}
	return tokens, nil
}

func (r assessmentRepository) MarkTokenUsed(ctx context.Context, id, studentID string, at time.Time, exec ...core.DBExecutor) (assessment.Token, error) {
	var row tokenRow
	err := r.get(ctx, exec, &row, `
		UPDATE assessment_tokens SET used_at = ?, used_by = ?
		WHERE id = ? AND used_at IS NULL
		RETURNING `+tokenColumns,
		at.UTC(), studentID, id)
	if err != nil {
		return assessment.Token{}, trapNoRows(err, assessment.ErrTokenUsed, "marking token used")
	}
	return row.token(), nil
}

func (r assessmentRepository) CreateSubmission(ctx context.Context, s assessment.Submission, exec ...core.DBExecutor) (assessment.Submission, error) {
	s.ID = newID()
	row := toSubmissionRow(s)
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES (:id, :assessment_id, :student_id, :answer, :submitted_at, :late, :score, :feedback, :graded_at, :graded_by)`,
		row)
	if err != nil {
		return assessment.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return row.submission(), nil
}

func (r assessmentRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (assessment.Submission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return assessment.Submission{}, assessment.ErrSubmissionNotFound
	}
	var row submissionRow
	if err := r.get(ctx, exec, &row, "SELECT "+submissionColumns+" FROM submissions WHERE id = ?", id); err != nil {
		return assessment.Submission{}, trapNoRows(err, assessment.ErrSubmissionNotFound, "finding submission")
	}
	return row.submission(), nil
}

func (r assessmentRepository) GetStudentSubmission(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (assessment.Submission, error) {
	var row submissionRow
	err := r.get(ctx, exec, &row,
		"SELECT "+submissionColumns+" FROM submissions WHERE assessment_id = ? AND student_id = ?",
		assessmentID, studentID)
	if err != nil {
		return assessment.Submission{}, trapNoRows(err, assessment.ErrSubmissionNotFound, "finding submission")
	}
	return row.submission(), nil
}

func (r assessmentRepository) QuerySubmissions(ctx context.Context, filter assessment.SubmissionFilter, exec ...core.DBExecutor) ([]assessment.Submission, error) {
	var w where
	if filter.AssessmentID != "" {
		w.add("assessment_id = ?", filter.AssessmentID)
	}
	if filter.StudentID != "" {
		w.add("student_id = ?", filter.StudentID)
	}
	if filter.Graded != nil {
		if *filter.Graded {
			w.add("graded_at IS NOT NULL")
		} else {
			w.add("graded_at IS NULL")
		}
	}

	var rows []submissionRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+submissionColumns+" FROM submissions"+w.String()+" ORDER BY submitted_at", w.args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]assessment.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.submission())
	}
	return subs, nil
}

func (r assessmentRepository) UpdateSubmission(ctx context.Context, s assessment.Submission, exec ...core.DBExecutor) (assessment.Submission, error) {
	row := toSubmissionRow(s)
	res, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		UPDATE submissions SET
			answer = :answer, submitted_at = :submitted_at, late = :late, score = :score, feedback = :feedback,
			graded_at = :graded_at, graded_by = :graded_by
		WHERE id = :id`,
		row)
	if err != nil {
		return assessment.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assessment.Submission{}, assessment.ErrSubmissionNotFound
	}
	return row.submission(), nil
}
