package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assessment"
)

var assessmentOrderings = map[string]comparator[assessment.Assessment]{
	"title":      func(a, b assessment.Assessment) int { return compareStrings(a.Title, b.Title) },
	"opens_at":   func(a, b assessment.Assessment) int { return compareTimes(a.OpensAt, b.OpensAt) },
	"due_at":     func(a, b assessment.Assessment) int { return compareTimes(a.DueAt, b.DueAt) },
	"created_at": func(a, b assessment.Assessment) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

type assessmentRepository struct {
	db *DB
}

var _ assessment.Repository = (*assessmentRepository)(nil) // interface compliance check

func NewAssessmentRepository(db *DB) *assessmentRepository {
	return &assessmentRepository{db: db}
}

func (repo *assessmentRepository) CreateAssessment(_ context.Context, a assessment.Assessment, _ ...core.DBExecutor) (assessment.Assessment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	a.ID = newID()
	repo.db.assessments[a.ID] = a
	return a, nil
}

func (repo *assessmentRepository) QueryAssessments(_ context.Context, filter assessment.Filter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]assessment.Assessment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	list := make([]assessment.Assessment, 0)
	for _, a := range repo.db.assessments {
		switch {
		case filter.ClassID != "" && a.ClassID != filter.ClassID,
			filter.SubjectID != "" && a.SubjectID != filter.SubjectID,
			filter.TeacherID != "" && a.TeacherID != filter.TeacherID,
			filter.Term != "" && a.Term != filter.Term,
			filter.Kind != "" && a.Kind != filter.Kind,
			filter.Published != nil && a.Published != *filter.Published:
			continue
		}
		list = append(list, a)
	}
	order(list, ordering, assessmentOrderings, func(a, b assessment.Assessment) int { return -compareTimes(a.DueAt, b.DueAt) })
	return list, nil
}

func (repo *assessmentRepository) GetAssessment(_ context.Context, id string, _ ...core.DBExecutor) (assessment.Assessment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.assessments[id]; ok {
		return a, nil
	}
	return assessment.Assessment{}, assessment.ErrNotFound
}

func (repo *assessmentRepository) UpdateAssessment(_ context.Context, a assessment.Assessment, _ ...core.DBExecutor) (assessment.Assessment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.assessments[a.ID]; !ok {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	repo.db.assessments[a.ID] = a
	return a, nil
}

func (repo *assessmentRepository) DeleteAssessment(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.assessments[id]; !ok {
		return assessment.ErrNotFound
	}
	delete(repo.db.assessments, id)
	for tid, t := range repo.db.tokens {
		if t.AssessmentID == id {
			delete(repo.db.tokens, tid)
		}
	}
	for sid, s := range repo.db.submissions {
		if s.AssessmentID == id {
			delete(repo.db.submissions, sid)
		}
	}
	return nil
}

func (repo *assessmentRepository) findToken(code string) (assessment.Token, bool) {
	for _, t := range repo.db.tokens {
		if t.Code == code {
			return t, true
		}
	}
	return assessment.Token{}, false
}

func (repo *assessmentRepository) CreateToken(_ context.Context, t assessment.Token, _ ...core.DBExecutor) (assessment.Token, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.findToken(t.Code); ok {
		return assessment.Token{}, assessment.ErrTokenExists
	}
	t.ID = newID()
	repo.db.tokens[t.ID] = t
	return t, nil
}

func (repo *assessmentRepository) TokenCodeExists(_ context.Context, code string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	_, ok := repo.findToken(code)
	return ok, nil
}

func (repo *assessmentRepository) GetToken(_ context.Context, code string, _ ...core.DBExecutor) (assessment.Token, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.findToken(code); ok {
		return t, nil
	}
	return assessment.Token{}, assessment.ErrTokenNotFound
}

func (repo *assessmentRepository) GetRedeemedToken(_ context.Context, assessmentID, studentID string, _ ...core.DBExecutor) (assessment.Token, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.tokens {
		if t.AssessmentID == assessmentID && t.UsedBy == studentID && t.Used() {
			return t, nil
		}
	}
	return assessment.Token{}, assessment.ErrTokenNotFound
}

func (repo *assessmentRepository) QueryTokens(_ context.Context, assessmentID string, _ ...core.DBExecutor) ([]assessment.Token, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tokens := make([]assessment.Token, 0)
	for _, t := range repo.db.tokens {
		if t.AssessmentID == assessmentID {
			tokens = append(tokens, t)
		}
	}
	order(tokens, nil, nil, func(a, b assessment.Token) int {
		if c := compareTimes(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.Code, b.Code)
	})
	return tokens, nil
}

func (repo *assessmentRepository) MarkTokenUsed(_ context.Context, id, studentID string, at time.Time, _ ...core.DBExecutor) (assessment.Token, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t, ok := repo.db.tokens[id]
	if !ok || t.Used() {
		return assessment.Token{}, assessment.ErrTokenUsed
	}
	t.UsedAt = at.UTC()
	t.UsedBy = studentID
	repo.db.tokens[id] = t
	return t, nil
}

func (repo *assessmentRepository) CreateSubmission(_ context.Context, s assessment.Submission, _ ...core.DBExecutor) (assessment.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = newID()
	repo.db.submissions[s.ID] = s
	return s, nil
}

func (repo *assessmentRepository) GetSubmission(_ context.Context, id string, _ ...core.DBExecutor) (assessment.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.submissions[id]; ok {
		return s, nil
	}
	return assessment.Submission{}, assessment.ErrSubmissionNotFound
}

func (repo *assessmentRepository) GetStudentSubmission(_ context.Context, assessmentID, studentID string, _ ...core.DBExecutor) (assessment.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.submissions {
		if s.AssessmentID == assessmentID && s.StudentID == studentID {
			return s, nil
		}
	}
	return assessment.Submission{}, assessment.ErrSubmissionNotFound
}

func (repo *assessmentRepository) QuerySubmissions(_ context.Context, filter assessment.SubmissionFilter, _ ...core.DBExecutor) ([]assessment.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]assessment.Submission, 0)
	for _, s := range repo.db.submissions {
		switch {
		case filter.AssessmentID != "" && s.AssessmentID != filter.AssessmentID,
			filter.StudentID != "" && s.StudentID != filter.StudentID,
			filter.Graded != nil && s.Graded() != *filter.Graded:
			continue
		}
		subs = append(subs, s)
	}
	order(subs, nil, nil, func(a, b assessment.Submission) int { return compareTimes(a.SubmittedAt, b.SubmittedAt) })
	return subs, nil
}

func (repo *assessmentRepository) UpdateSubmission(_ context.Context, s assessment.Submission, _ ...core.DBExecutor) (assessment.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.submissions[s.ID]; !ok {
		return assessment.Submission{}, assessment.ErrSubmissionNotFound
	}
	repo.db.submissions[s.ID] = s
	return s, nil
}
