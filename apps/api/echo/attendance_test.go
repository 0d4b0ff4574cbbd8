package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_attendanceApi(t *testing.T) {
	srv, app := setup(t)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, app.UserRepo, "Other", "other", "other@test.cd", "", []string{user.RoleTeacher}, true)
	jss1 := testutil.CreateClass(t, app, "JSS 1", 7, teacher.ID)
	jss2 := testutil.CreateClass(t, app, "JSS 2", 8, "")
	ada := testutil.Admit(t, app, "Ada", "Obi", jss1.ID, "mama.obi@test.cd")
	bola := testutil.Admit(t, app, "Bola", "Ade", jss1.ID, "papa.ade@test.cd")
	chidi := testutil.Admit(t, app, "Chidi", "Eze", jss2.ID, "mama.eze@test.cd")

	today := time.Now().UTC().Format(core.DateLayout)
	tomorrow := time.Now().UTC().AddDate(0, 0, 2).Format(core.DateLayout)
	teacherToken := getToken(t, app, teacher)
	path := "/v1/classes/" + jss1.ID + "/attendance"

	mark := func(date string, entries ...attendance.Entry) []byte {
		return marchallObj(t, attendance.MarkClass{Date: date, Entries: entries})
	}

	runTests(t, srv, []httpTest{
		{name: "teachers only", method: http.MethodPost, path: path, token: getToken(t, app, ada.StudentUser), body: mark(today), wantCode: http.StatusForbidden},
		{
			name: "teacher of another class", method: http.MethodPost, path: path, token: getToken(t, app, other),
			body: mark(today, attendance.Entry{StudentID: ada.Student.ID, Status: attendance.StatusPresent}), wantCode: http.StatusForbidden,
		},
		{name: "no entries", method: http.MethodPost, path: path, token: teacherToken, body: mark(today), wantCode: http.StatusBadRequest},
		{
			name: "invalid status", method: http.MethodPost, path: path, token: teacherToken,
			body: mark(today, attendance.Entry{StudentID: ada.Student.ID, Status: "sleeping"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "future date", method: http.MethodPost, path: path, token: teacherToken,
			body: mark(tomorrow, attendance.Entry{StudentID: ada.Student.ID, Status: attendance.StatusPresent}), wantCode: http.StatusBadRequest,
		},
		{
			name: "not in class", method: http.MethodPost, path: path, token: teacherToken,
			body: mark(today, attendance.Entry{StudentID: chidi.Student.ID, Status: attendance.StatusPresent}), wantCode: http.StatusBadRequest,
		},
		{
			name: "listed twice", method: http.MethodPost, path: path, token: teacherToken,
			body: mark(today,
				attendance.Entry{StudentID: ada.Student.ID, Status: attendance.StatusPresent},
				attendance.Entry{StudentID: ada.Student.ID, Status: attendance.StatusAbsent},
			),
			wantCode: http.StatusBadRequest,
		},
	})

	rec := do(srv, http.MethodPost, path, teacherToken, mark(today,
		attendance.Entry{StudentID: ada.Student.ID, Status: attendance.StatusPresent},
		attendance.Entry{StudentID: bola.Student.ID, Status: "LATE", Remark: "bus"},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var records []attendance.Record
	unmarshal(t, rec, &records)
	require.Len(t, records, 2)
	assert.Equal(t, attendance.StatusLate, records[1].Status)
	assert.Equal(t, teacher.ID, records[0].MarkedBy)

	// marking again overwrites
	rec = do(srv, http.MethodPost, path, teacherToken, mark(today, attendance.Entry{StudentID: ada.Student.ID, Status: attendance.StatusAbsent}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(srv, http.MethodGet, path+"?date="+today, teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	records = nil
	unmarshal(t, rec, &records)
	require.Len(t, records, 2)

	summaryPath := "/v1/students/" + ada.Student.ID + "/attendance"
	runTests(t, srv, []httpTest{
		{name: "register of another teacher", path: path, token: getToken(t, app, other), wantCode: http.StatusForbidden},
		{name: "other parent", path: summaryPath, token: getToken(t, app, bola.ParentUser), wantCode: http.StatusNotFound},
		{name: "invalid span", path: summaryPath + "?from=" + tomorrow + "&to=" + today, token: teacherToken, wantCode: http.StatusBadRequest},
	})

	rec = do(srv, http.MethodGet, summaryPath, getToken(t, app, ada.ParentUser))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary attendance.Summary
	unmarshal(t, rec, &summary)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Absent)
	assert.Equal(t, 0.0, summary.Rate)
}
