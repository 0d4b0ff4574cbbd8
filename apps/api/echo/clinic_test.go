package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/clinic"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_clinicApi(t *testing.T) {
	srv, app := setup(t)
	nurse := testutil.CreateUser(t, app.UserRepo, "Nurse", "nurse", "nurse@test.cd", "", []string{user.RoleMedical}, true)
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")
	bola := testutil.Admit(t, app, "Bola", "Ade", class.ID, "papa.ade@test.cd")
	nurseToken := getToken(t, app, nurse)

	visit := marchallObj(t, clinic.NewVisit{StudentID: ada.Student.ID, Complaint: "headache", Treatment: "rest", ParentNotified: true})

	runTests(t, srv, []httpTest{
		{name: "medical only", method: http.MethodPost, path: "/v1/clinic/visits", token: getToken(t, app, ada.ParentUser), body: visit, wantCode: http.StatusForbidden},
		{
			name: "unknown student", method: http.MethodPost, path: "/v1/clinic/visits", token: nurseToken,
			body: []byte(`{"student_id": "0b0f0c4e-8d3c-4c8e-9d1f-3a8e1c2b4d5f", "complaint": "cough"}`), wantCode: http.StatusBadRequest,
		},
		{name: "record", method: http.MethodPost, path: "/v1/clinic/visits", token: nurseToken, body: visit, wantCode: http.StatusCreated},
	})

	path := "/v1/students/" + ada.Student.ID + "/visits"
	rec := do(srv, http.MethodGet, path, getToken(t, app, ada.ParentUser))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var visits []clinic.Visit
	unmarshal(t, rec, &visits)
	require.Len(t, visits, 1)
	assert.Equal(t, nurse.ID, visits[0].AttendedBy)
	assert.True(t, visits[0].ParentNotified)

	rec = do(srv, http.MethodGet, path, getToken(t, app, bola.ParentUser))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
