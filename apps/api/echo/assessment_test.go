package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/assessment"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_assessmentApi_flow(t *testing.T) {
	srv, app := setup(t)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, app.UserRepo, "Other", "other", "other@test.cd", "", []string{user.RoleTeacher}, true)
	class := testutil.CreateClass(t, app, "JSS 1", 7, teacher.ID)
	subject := testutil.CreateSubject(t, app, class.ID, "Mathematics", "MTH", teacher.ID)
	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")
	bola := testutil.Admit(t, app, "Bola", "Ade", class.ID, "papa.ade@test.cd")
	a := testutil.CreateAssessment(t, app, teacher, subject.ID, true /* requiresToken */, time.Now().Add(time.Hour))

	teacherToken := getToken(t, app, teacher)
	adaToken := getToken(t, app, ada.StudentUser)
	bolaToken := getToken(t, app, bola.StudentUser)
	path := "/v1/assessments/" + a.ID
	issue := marchallObj(t, assessment.IssueTokens{StudentIDs: []string{ada.Student.ID}})

	runTests(t, srv, []httpTest{
		{name: "other teacher cannot issue tokens", method: http.MethodPost, path: path + "/tokens", token: getToken(t, app, other), body: issue, wantCode: http.StatusForbidden},
		{name: "count or students required", method: http.MethodPost, path: path + "/tokens", token: teacherToken, body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "students cannot issue tokens", method: http.MethodPost, path: path + "/tokens", token: adaToken, body: issue, wantCode: http.StatusForbidden},
		{name: "student sees the assessment", path: path, token: adaToken, wantCode: http.StatusOK},
	})

	rec := do(srv, http.MethodPost, path+"/tokens", teacherToken, issue)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tokens []assessment.Token
	unmarshal(t, rec, &tokens)
	require.Len(t, tokens, 1)
	code := tokens[0].Code
	assert.Len(t, code, app.Conf.Assessment.TokenLength)
	assert.Equal(t, ada.Student.ID, tokens[0].StudentID)

	answer := marchallObj(t, assessment.NewSubmission{Answer: "3/4"})
	redeem := marchallObj(t, assessment.RedeemToken{Code: code})

	runTests(t, srv, []httpTest{
		{name: "token required", method: http.MethodPost, path: path + "/submit", token: adaToken, body: answer, wantCode: http.StatusBadRequest},
		{name: "token of another student", method: http.MethodPost, path: path + "/redeem", token: bolaToken, body: redeem, wantCode: http.StatusBadRequest},
		{name: "unknown token", method: http.MethodPost, path: path + "/redeem", token: adaToken, body: []byte(`{"code": "NOPE2345"}`), wantCode: http.StatusBadRequest},
		{name: "redeem", method: http.MethodPost, path: path + "/redeem", token: adaToken, body: redeem, wantCode: http.StatusOK},
		{name: "redeem again", method: http.MethodPost, path: path + "/redeem", token: adaToken, body: redeem, wantCode: http.StatusOK},
		{name: "submit", method: http.MethodPost, path: path + "/submit", token: adaToken, body: answer, wantCode: http.StatusCreated},
		{name: "resubmit", method: http.MethodPost, path: path + "/submit", token: adaToken, body: answer, wantCode: http.StatusCreated},
		{name: "publish with ungraded submissions", method: http.MethodPost, path: path + "/publish", token: teacherToken, wantCode: http.StatusConflict},
	})

	rec = do(srv, http.MethodGet, path+"/submissions", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var subs []assessment.Submission
	unmarshal(t, rec, &subs)
	require.Len(t, subs, 1)
	gradePath := "/v1/submissions/" + subs[0].ID + "/grade"

	runTests(t, srv, []httpTest{
		{name: "score too high", method: http.MethodPost, path: gradePath, token: teacherToken, body: []byte(`{"score": 60}`), wantCode: http.StatusBadRequest},
		{name: "other teacher cannot grade", method: http.MethodPost, path: gradePath, token: getToken(t, app, other), body: []byte(`{"score": 40}`), wantCode: http.StatusForbidden},
		{name: "grade", method: http.MethodPost, path: gradePath, token: teacherToken, body: []byte(`{"score": 40, "feedback": "good"}`), wantCode: http.StatusOK},
		{name: "graded submissions are final", method: http.MethodPost, path: path + "/submit", token: adaToken, body: answer, wantCode: http.StatusConflict},
	})

	// marks stay hidden until published
	rec = do(srv, http.MethodGet, path+"/submission", adaToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sub assessment.Submission
	unmarshal(t, rec, &sub)
	assert.Nil(t, sub.Score)
	assert.Empty(t, sub.Feedback)
	assert.True(t, sub.GradedAt.IsZero())
	assert.Empty(t, sub.GradedBy)
	assert.NotContains(t, rec.Body.String(), teacher.ID)

	rec = do(srv, http.MethodPost, path+"/publish", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(srv, http.MethodGet, path+"/submission", adaToken)
	require.Equal(t, http.StatusOK, rec.Code)
	sub = assessment.Submission{}
	unmarshal(t, rec, &sub)
	require.NotNil(t, sub.Score)
	assert.Equal(t, 40.0, *sub.Score)
	assert.Equal(t, "good", sub.Feedback)
	assert.Equal(t, teacher.ID, sub.GradedBy)
	assert.False(t, sub.GradedAt.IsZero())

	rec = do(srv, http.MethodGet, path+"/results", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var results []assessment.Result
	unmarshal(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, 80.0, results[0].Percentage)
	assert.Equal(t, "A", results[0].Grade)

	cardPath := "/v1/students/" + ada.Student.ID + "/report-card"
	runTests(t, srv, []httpTest{
		{name: "term required", path: cardPath, token: adaToken, wantCode: http.StatusBadRequest},
		{name: "other parent", path: cardPath + "?term=2024-T1", token: getToken(t, app, bola.ParentUser), wantCode: http.StatusNotFound},
	})

	rec = do(srv, http.MethodGet, cardPath+"?term=2024-T1", getToken(t, app, ada.ParentUser))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var card assessment.ReportCard
	unmarshal(t, rec, &card)
	require.Len(t, card.Subjects, 1)
	assert.Equal(t, "Mathematics", card.Subjects[0].SubjectName)
	assert.Equal(t, 80.0, card.Average)
	assert.Equal(t, "A", card.Grade)

	// bola never submitted
	rec = do(srv, http.MethodGet, "/v1/students/"+bola.Student.ID+"/report-card?term=2024-T1", bolaToken)
	require.Equal(t, http.StatusOK, rec.Code)
	card = assessment.ReportCard{}
	unmarshal(t, rec, &card)
	assert.Equal(t, 0.0, card.Average)
	assert.Equal(t, "F", card.Grade)
}

func Test_assessmentApi_classScope(t *testing.T) {
	srv, app := setup(t)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	jss1 := testutil.CreateClass(t, app, "JSS 1", 7, "")
	jss2 := testutil.CreateClass(t, app, "JSS 2", 8, "")
	subject := testutil.CreateSubject(t, app, jss1.ID, "Mathematics", "MTH", teacher.ID)
	ada := testutil.Admit(t, app, "Ada", "Obi", jss2.ID, "mama.obi@test.cd")
	a := testutil.CreateAssessment(t, app, teacher, subject.ID, false, time.Now().Add(time.Hour))

	adaToken := getToken(t, app, ada.StudentUser)

	runTests(t, srv, []httpTest{
		{name: "other class (hidden)", path: "/v1/assessments/" + a.ID, token: adaToken, wantCode: http.StatusNotFound},
		{name: "list of own class", path: "/v1/assessments?class_id=" + jss1.ID, token: adaToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{
			name: "cannot submit", method: http.MethodPost, path: "/v1/assessments/" + a.ID + "/submit", token: adaToken,
			body: []byte(`{"answer": "42"}`), wantCode: http.StatusBadRequest,
		},
		{name: "teacher lists", path: "/v1/assessments?class_id=" + jss1.ID, token: getToken(t, app, teacher), wantCode: http.StatusOK},
	})
}

func Test_assessmentApi_due(t *testing.T) {
	srv, app := setup(t)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	subject := testutil.CreateSubject(t, app, class.ID, "Mathematics", "MTH", teacher.ID)
	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")
	a := testutil.CreateAssessment(t, app, teacher, subject.ID, false, time.Now().Add(-time.Minute))

	path := "/v1/assessments/" + a.ID
	answer := []byte(`{"answer": "42"}`)

	runTests(t, srv, []httpTest{
		{name: "past due", method: http.MethodPost, path: path + "/submit", token: getToken(t, app, ada.StudentUser), body: answer, wantCode: http.StatusBadRequest},
		{name: "allow late", method: http.MethodPut, path: path, token: getToken(t, app, teacher), body: []byte(`{"allow_late": true}`), wantCode: http.StatusOK},
	})

	rec := do(srv, http.MethodPost, path+"/submit", getToken(t, app, ada.StudentUser), answer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub assessment.Submission
	unmarshal(t, rec, &sub)
	assert.True(t, sub.Late)
}
