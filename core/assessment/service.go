package assessment

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("assessment not found")
	ErrSubmissionNotFound  = core.NewNotFoundError("submission not found")
	ErrTokenNotFound       = core.NewNotFoundError("token not found")
	ErrTokenExists         = errors.New("token code already exists")
	ErrTokenSpace          = errors.New("could not generate a unique token code")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenUsed           = errors.New("token already used")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenRequired       = errors.New("a token is required for this assessment")
	ErrNotInClass          = errors.New("student is not an active member of the class")
	ErrNotOpen             = errors.New("assessment is not open")
	ErrPastDue             = errors.New("assessment is past due")
	ErrScoreTooHigh        = errors.New("score is higher than the maximum score")
	ErrAlreadyGraded       = core.NewConflictError("submission already graded")
	ErrUngradedSubmissions = core.NewConflictError("some submissions are not graded yet")
	ErrHasSubmissions      = core.NewConflictError("assessment has submissions")
	ErrForbidden           = core.NewForbiddenError("only the subject teacher or an admin can manage this assessment")
	errCountOrStudents     = errors.New("one of count or student_ids is required")
)

const maxTokenAttempts = 10

type (
	Repository interface {
		CreateAssessment(ctx context.Context, a Assessment, exec ...core.DBExecutor) (Assessment, error)
		QueryAssessments(ctx context.Context, filter Filter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Assessment, error)
		GetAssessment(ctx context.Context, id string, exec ...core.DBExecutor) (Assessment, error)
		UpdateAssessment(ctx context.Context, a Assessment, exec ...core.DBExecutor) (Assessment, error)
		DeleteAssessment(ctx context.Context, id string, exec ...core.DBExecutor) error

		// CreateToken fails with ErrTokenExists when the code is taken, leaving any transaction usable.
		CreateToken(ctx context.Context, t Token, exec ...core.DBExecutor) (Token, error)
		TokenCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)
		GetToken(ctx context.Context, code string, exec ...core.DBExecutor) (Token, error)
		// GetRedeemedToken returns the token of the assessment redeemed by the student.
		GetRedeemedToken(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (Token, error)
		QueryTokens(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]Token, error)
		// MarkTokenUsed fails with ErrTokenUsed when the token was used in the meantime.
		MarkTokenUsed(ctx context.Context, id, studentID string, at time.Time, exec ...core.DBExecutor) (Token, error)

		CreateSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (Submission, error)
		GetStudentSubmission(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (Submission, error)
		QuerySubmissions(ctx context.Context, filter SubmissionFilter, exec ...core.DBExecutor) ([]Submission, error)
		UpdateSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
	}

	SchoolService interface {
		GetSubject(ctx context.Context, id string) (school.Subject, error)
		QuerySubjects(ctx context.Context, filter school.SubjectFilter) ([]school.Subject, error)
	}

	StudentGetter interface {
		Get(ctx context.Context, id string) (student.Profile, error)
	}

	Service struct {
		repo        Repository
		tx          core.TxRunner
		school      SchoolService
		students    StudentGetter
		tokenLength int
		tokenTTL    time.Duration
		nowFunc     func() time.Time
	}
)

func NewService(repo Repository, tx core.TxRunner, schoolSvc SchoolService, students StudentGetter, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(schoolSvc, "schoolSvc"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	tokenLength := conf.Assessment.TokenLength
	if tokenLength < 4 {
		tokenLength = 8
	}
	return &Service{
		repo:        repo,
		tx:          tx,
		school:      schoolSvc,
		students:    students,
		tokenLength: tokenLength,
		tokenTTL:    conf.Assessment.TokenTTL,
		nowFunc:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock of the service.
func (svc *Service) SetNowFunc(f func() time.Time) {
	svc.nowFunc = f
}

// CanManage reports whether `usr` may edit, grade and issue tokens for the assessment.
func (svc *Service) CanManage(usr user.User, a Assessment) bool {
	return usr.IsAdmin() || (usr.IsTeacher() && a.TeacherID == usr.ID)
}

// Create saves a new assessment for the subject. `na` is expected to be validated.
func (svc *Service) Create(ctx context.Context, creator user.User, na NewAssessment) (Assessment, error) {
	subject, err := svc.school.GetSubject(ctx, na.SubjectID)
	if err != nil {
		if errors.Cause(err) == school.ErrSubjectNotFound {
			return Assessment{}, core.NewFieldValidationError("subject_id", err)
		}
		return Assessment{}, errors.Wrap(err, "finding subject")
	}
	if !creator.IsAdmin() && subject.TeacherID != creator.ID {
		return Assessment{}, ErrForbidden
	}
	teacherID := subject.TeacherID
	if teacherID == "" {
		teacherID = creator.ID
	}

	now := svc.nowFunc()
	return svc.repo.CreateAssessment(ctx, Assessment{
		ClassID:       subject.ClassID,
		SubjectID:     subject.ID,
		TeacherID:     teacherID,
		Title:         na.Title,
		Description:   na.Description,
		Kind:          na.Kind,
		Term:          na.Term,
		MaxScore:      na.MaxScore,
		Weight:        na.Weight,
		RequiresToken: na.RequiresToken,
		AllowLate:     na.AllowLate,
		OpensAt:       na.OpensAt.UTC(),
		DueAt:         na.DueAt.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *Service) Query(ctx context.Context, filter Filter, ordering []core.DBOrdering) ([]Assessment, error) {
	return svc.repo.QueryAssessments(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, id string) (Assessment, error) {
	return svc.repo.GetAssessment(ctx, id)
}

// getManaged returns the assessment when `usr` can manage it.
func (svc *Service) getManaged(ctx context.Context, usr user.User, id string) (Assessment, error) {
	a, err := svc.Get(ctx, id)
	if err != nil {
		return Assessment{}, err
	}
	if !svc.CanManage(usr, a) {
		return Assessment{}, ErrForbidden
	}
	return a, nil
}

func (svc *Service) Update(ctx context.Context, usr user.User, id string, ua UpdateAssessment) (Assessment, error) {
	a, err := svc.getManaged(ctx, usr, id)
	if err != nil {
		return Assessment{}, err
	}
	if ua.Title != nil {
		a.Title = *ua.Title
	}
	if ua.Description != nil {
		a.Description = *ua.Description
	}
	if ua.MaxScore != nil {
		a.MaxScore = *ua.MaxScore
	}
	if ua.Weight != nil {
		a.Weight = *ua.Weight
	}
	if ua.RequiresToken != nil {
		a.RequiresToken = *ua.RequiresToken
	}
	if ua.AllowLate != nil {
		a.AllowLate = *ua.AllowLate
	}
	if ua.OpensAt != nil {
		a.OpensAt = ua.OpensAt.UTC()
	}
	if ua.DueAt != nil {
		a.DueAt = ua.DueAt.UTC()
	}
	if !a.DueAt.After(a.OpensAt) {
		return Assessment{}, core.NewFieldValidationError("due_at", errors.New("due_at must be after opens_at"))
	}
	a.UpdatedAt = svc.nowFunc()
	return svc.repo.UpdateAssessment(ctx, a)
}

// Delete removes an assessment without submissions, along with its tokens.
func (svc *Service) Delete(ctx context.Context, usr user.User, id string) error {
	if _, err := svc.getManaged(ctx, usr, id); err != nil {
		return err
	}
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{AssessmentID: id})
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if len(subs) > 0 {
		return ErrHasSubmissions
	}
	return svc.repo.DeleteAssessment(ctx, id)
}

// IssueTokens generates access tokens for the assessment. Codes are unique system-wide: each code is
// checked before insertion and regenerated when the insertion hits the unique constraint.
func (svc *Service) IssueTokens(ctx context.Context, usr user.User, assessmentID string, it IssueTokens) ([]Token, error) {
	a, err := svc.getManaged(ctx, usr, assessmentID)
	if err != nil {
		return nil, err
	}

	for _, id := range it.StudentIDs {
		if err = svc.checkMember(ctx, a, id); err != nil {
			return nil, core.NewFieldValidationError("student_ids", err)
		}
	}

	now := svc.nowFunc()
	var expiresAt time.Time
	switch {
	case it.ExpiresAt != nil:
		expiresAt = it.ExpiresAt.UTC()
		if !expiresAt.After(now) {
			return nil, core.NewFieldValidationError("expires_at", ErrTokenExpired)
		}
	case svc.tokenTTL > 0:
		expiresAt = now.Add(svc.tokenTTL)
	}

	owners := it.StudentIDs
	if len(owners) == 0 {
		owners = make([]string, it.Count) // anonymous tokens
	}

	tokens := make([]Token, 0, len(owners))
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		for _, studentID := range owners {
			tok, err := svc.issueToken(ctx, exec, Token{
				AssessmentID: a.ID,
				StudentID:    studentID,
				ExpiresAt:    expiresAt,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			tokens = append(tokens, tok)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	tokensIssued.Add(float64(len(tokens)))
	return tokens, nil
}

func (svc *Service) issueToken(ctx context.Context, exec core.DBExecutor, tok Token) (Token, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		code, err := core.RandomString(core.UnambiguousAlphabet, svc.tokenLength)
		if err != nil {
			return Token{}, errors.Wrap(err, "generating token code")
		}

		exists, err := svc.repo.TokenCodeExists(ctx, code, exec)
		if err != nil {
			return Token{}, errors.Wrap(err, "checking token code")
		}
		if exists {
			tokenCollisions.Inc()
			continue
		}

		tok.Code = code
		created, err := svc.repo.CreateToken(ctx, tok, exec)
		if err == nil {
			return created, nil
		}
		if errors.Cause(err) != ErrTokenExists {
			return Token{}, errors.Wrap(err, "creating token")
		}
		tokenCollisions.Inc()
	}
	return Token{}, ErrTokenSpace
}

func (svc *Service) Tokens(ctx context.Context, usr user.User, assessmentID string) ([]Token, error) {
	if _, err := svc.getManaged(ctx, usr, assessmentID); err != nil {
		return nil, err
	}
	return svc.repo.QueryTokens(ctx, assessmentID)
}

// checkMember checks that the student is active and belongs to the class of the assessment.
func (svc *Service) checkMember(ctx context.Context, a Assessment, studentID string) error {
	st, err := svc.students.Get(ctx, studentID)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return core.NewValidationError(ErrNotInClass)
		}
		return errors.Wrap(err, "finding student")
	}
	if !st.Active() || st.ClassID != a.ClassID {
		return core.NewValidationError(ErrNotInClass)
	}
	return nil
}

// RedeemToken marks the token as used by the student, granting them access to the assessment.
// Redeeming again a token already redeemed by the same student is a no-op.
func (svc *Service) RedeemToken(ctx context.Context, assessmentID, studentID, code string) (Token, error) {
	a, err := svc.Get(ctx, assessmentID)
	if err != nil {
		return Token{}, err
	}
	return svc.redeem(ctx, a, studentID, code)
}

func (svc *Service) redeem(ctx context.Context, a Assessment, studentID, code string, exec ...core.DBExecutor) (Token, error) {
	fieldErr := func(err error) error { return core.NewFieldValidationError("code", err) }

	tok, err := svc.repo.GetToken(ctx, code, exec...)
	if err != nil {
		if errors.Cause(err) == ErrTokenNotFound {
			return Token{}, fieldErr(ErrInvalidToken)
		}
		return Token{}, errors.Wrap(err, "finding token")
	}
	if tok.AssessmentID != a.ID {
		return Token{}, fieldErr(ErrInvalidToken)
	}
	if tok.Used() {
		if tok.UsedBy == studentID {
			return tok, nil
		}
		return Token{}, fieldErr(ErrTokenUsed)
	}
	now := svc.nowFunc()
	if tok.Expired(now) {
		return Token{}, fieldErr(ErrTokenExpired)
	}
	if tok.StudentID != "" && tok.StudentID != studentID {
		return Token{}, fieldErr(ErrInvalidToken)
	}
	if err = svc.checkMember(ctx, a, studentID); err != nil {
		return Token{}, err
	}
	if !a.IsOpen(now) {
		return Token{}, core.NewValidationError(ErrNotOpen)
	}

	tok, err = svc.repo.MarkTokenUsed(ctx, tok.ID, studentID, now, exec...)
	if err != nil {
		if errors.Cause(err) == ErrTokenUsed {
			return Token{}, fieldErr(ErrTokenUsed)
		}
		return Token{}, errors.Wrap(err, "marking token used")
	}
	tokensRedeemed.Inc()
	return tok, nil
}

// Submit saves the answer of the student. Answers can be resubmitted until graded.
// `ns` is expected to be validated.
func (svc *Service) Submit(ctx context.Context, assessmentID, studentID string, ns NewSubmission) (Submission, error) {
	a, err := svc.Get(ctx, assessmentID)
	if err != nil {
		return Submission{}, err
	}
	if err = svc.checkMember(ctx, a, studentID); err != nil {
		return Submission{}, err
	}

	now := svc.nowFunc()
	if now.Before(a.OpensAt) {
		return Submission{}, core.NewValidationError(ErrNotOpen)
	}
	late := now.After(a.DueAt)
	if late && !a.AllowLate {
		return Submission{}, core.NewValidationError(ErrPastDue)
	}

	var sub Submission
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if a.RequiresToken {
			if _, err := svc.repo.GetRedeemedToken(ctx, a.ID, studentID, exec); err != nil {
				if errors.Cause(err) != ErrTokenNotFound {
					return errors.Wrap(err, "finding redeemed token")
				}
				if ns.TokenCode == "" {
					return core.NewFieldValidationError("token_code", ErrTokenRequired)
				}
				if _, err = svc.redeem(ctx, a, studentID, ns.TokenCode, exec); err != nil {
					return err
				}
			}
		}

		existing, err := svc.repo.GetStudentSubmission(ctx, a.ID, studentID, exec)
		switch {
		case err == nil:
			if existing.Graded() {
				return ErrAlreadyGraded
			}
			existing.Answer = ns.Answer
			existing.SubmittedAt = now
			existing.Late = late
			sub, err = svc.repo.UpdateSubmission(ctx, existing, exec)
			return err
		case errors.Cause(err) == ErrSubmissionNotFound:
			sub, err = svc.repo.CreateSubmission(ctx, Submission{
				AssessmentID: a.ID,
				StudentID:    studentID,
				Answer:       ns.Answer,
				SubmittedAt:  now,
				Late:         late,
			}, exec)
			return err
		default:
			return errors.Wrap(err, "finding submission")
		}
	})
	return sub, err
}

func (svc *Service) Submissions(ctx context.Context, usr user.User, assessmentID string) ([]Submission, error) {
	if _, err := svc.getManaged(ctx, usr, assessmentID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmissions(ctx, SubmissionFilter{AssessmentID: assessmentID})
}

func (svc *Service) StudentSubmission(ctx context.Context, assessmentID, studentID string) (Submission, error) {
	return svc.repo.GetStudentSubmission(ctx, assessmentID, studentID)
}

// Grade scores a submission. `gs` is expected to be validated.
func (svc *Service) Grade(ctx context.Context, grader user.User, submissionID string, gs GradeSubmission) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	a, err := svc.getManaged(ctx, grader, sub.AssessmentID)
	if err != nil {
		return Submission{}, err
	}
	if gs.Score > a.MaxScore {
		return Submission{}, core.NewFieldValidationError("score", ErrScoreTooHigh)
	}

	score := gs.Score
	sub.Score = &score
	sub.Feedback = gs.Feedback
	sub.GradedAt = svc.nowFunc()
	sub.GradedBy = grader.ID
	return svc.repo.UpdateSubmission(ctx, sub)
}

// Publish makes the results of the assessment visible to students & parents.
func (svc *Service) Publish(ctx context.Context, usr user.User, id string) (Assessment, error) {
	a, err := svc.getManaged(ctx, usr, id)
	if err != nil {
		return Assessment{}, err
	}
	if a.Published {
		return a, nil
	}
	notGraded := false
	ungraded, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{AssessmentID: id, Graded: &notGraded})
	if err != nil {
		return Assessment{}, errors.Wrap(err, "querying ungraded submissions")
	}
	if len(ungraded) > 0 {
		return Assessment{}, ErrUngradedSubmissions
	}

	now := svc.nowFunc()
	a.Published = true
	a.PublishedAt = now
	a.UpdatedAt = now
	return svc.repo.UpdateAssessment(ctx, a)
}

// Results lists the graded submissions of the assessment.
func (svc *Service) Results(ctx context.Context, assessmentID string) ([]Result, error) {
	a, err := svc.Get(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	graded := true
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{AssessmentID: assessmentID, Graded: &graded})
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}

	results := make([]Result, 0, len(subs))
	for _, sub := range subs {
		pct := round2(*sub.Score / a.MaxScore * 100)
		results = append(results, Result{
			SubmissionID: sub.ID,
			StudentID:    sub.StudentID,
			Score:        sub.Score,
			MaxScore:     a.MaxScore,
			Percentage:   pct,
			Grade:        LetterGrade(pct),
			Late:         sub.Late,
		})
	}
	return results, nil
}

// ReportCard computes the weighted percentage of the student per subject over the published
// assessments of their class for the term. Missing or ungraded submissions score 0.
// Subjects whose assessments all weigh 0 use the plain average.
func (svc *Service) ReportCard(ctx context.Context, studentID, term string) (ReportCard, error) {
	st, err := svc.students.Get(ctx, studentID)
	if err != nil {
		return ReportCard{}, err
	}

	published := true
	assessments, err := svc.repo.QueryAssessments(ctx, Filter{ClassID: st.ClassID, Term: term, Published: &published}, nil)
	if err != nil {
		return ReportCard{}, errors.Wrap(err, "querying assessments")
	}
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{StudentID: studentID})
	if err != nil {
		return ReportCard{}, errors.Wrap(err, "querying submissions")
	}
	subjects, err := svc.school.QuerySubjects(ctx, school.SubjectFilter{ClassID: st.ClassID})
	if err != nil {
		return ReportCard{}, errors.Wrap(err, "querying subjects")
	}

	scores := make(map[string]float64, len(subs)) // {assessmentID: score}
	for _, sub := range subs {
		if sub.Graded() {
			scores[sub.AssessmentID] = *sub.Score
		}
	}

	type acc struct {
		weighted, weights, plain float64
		count                    int
	}
	bySubject := make(map[string]*acc)
	for _, a := range assessments {
		ac, ok := bySubject[a.SubjectID]
		if !ok {
			ac = &acc{}
			bySubject[a.SubjectID] = ac
		}
		ratio := scores[a.ID] / a.MaxScore
		ac.weighted += ratio * a.Weight
		ac.weights += a.Weight
		ac.plain += ratio
		ac.count++
	}

	card := ReportCard{StudentID: studentID, ClassID: st.ClassID, Term: term, Subjects: []SubjectResult{}}
	var total float64
	for _, subj := range subjects {
		ac, ok := bySubject[subj.ID]
		if !ok {
			continue
		}
		var pct float64
		if ac.weights > 0 {
			pct = ac.weighted / ac.weights * 100
		} else {
			pct = ac.plain / float64(ac.count) * 100
		}
		pct = round2(pct)
		total += pct
		card.Subjects = append(card.Subjects, SubjectResult{
			SubjectID:   subj.ID,
			SubjectName: subj.Name,
			Assessments: ac.count,
			Percentage:  pct,
			Grade:       LetterGrade(pct),
		})
	}
	if len(card.Subjects) > 0 {
		card.Average = round2(total / float64(len(card.Subjects)))
	}
	card.Grade = LetterGrade(card.Average)
	return card, nil
}
