package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_studentApi_admit(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	adminToken := getToken(t, app, admin)

	req := testutil.AdmissionRequest("Ada", "Obi", class.ID, "mama.obi@test.cd")

	badReq := req
	badReq.Gender = "lol"
	noClass := req
	noClass.ClassID = "0b0f0c4e-8d3c-4c8e-9d1f-3a8e1c2b4d5f"

	runTests(t, srv, []httpTest{
		{
			name: "admin required", method: http.MethodPost, path: "/v1/students/admit", token: getToken(t, app, teacher),
			body: marchallObj(t, req), wantCode: http.StatusForbidden,
		},
		{name: "invalid gender", method: http.MethodPost, path: "/v1/students/admit", token: adminToken, body: marchallObj(t, badReq), wantCode: http.StatusBadRequest},
		{name: "unknown class", method: http.MethodPost, path: "/v1/students/admit", token: adminToken, body: marchallObj(t, noClass), wantCode: http.StatusBadRequest},
	})

	rec := do(srv, http.MethodPost, "/v1/students/admit", adminToken, marchallObj(t, req))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res student.AdmissionResult
	unmarshal(t, rec, &res)
	assert.Equal(t, class.ID, res.Student.ClassID)
	assert.Equal(t, "ada.obi", res.StudentUser.Username)
	assert.NotEmpty(t, res.StudentPassword)
	assert.NotEmpty(t, res.ParentPassword)
	assert.NotEmpty(t, res.Wallet.AccountNumber)
	assert.Equal(t, res.ParentUser.ID, res.Wallet.OwnerID)

	// credentials are emailed to the parent
	sent := app.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "mama.obi@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, res.Student.AdmissionNumber)
	assert.Contains(t, sent[0].TextContent, res.StudentPassword)
	assert.Contains(t, sent[0].TextContent, res.ParentPassword)
	assert.Contains(t, sent[0].HTMLContent, res.StudentUser.Username)

	// a sibling reuses the parent account
	rec = do(srv, http.MethodPost, "/v1/students/admit", adminToken, marchallObj(t, testutil.AdmissionRequest("Chidi", "Obi", class.ID, "mama.obi@test.cd")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sibling student.AdmissionResult
	unmarshal(t, rec, &sibling)
	assert.Equal(t, res.Parent.ID, sibling.Parent.ID)
	assert.Empty(t, sibling.ParentPassword)
	assert.Equal(t, res.Wallet.ID, sibling.Wallet.ID)

	// the parent sees both wards
	rec = do(srv, http.MethodGet, "/v1/parents/me/wards", getToken(t, app, res.ParentUser))
	require.Equal(t, http.StatusOK, rec.Code)

	var wards []student.Profile
	unmarshal(t, rec, &wards)
	assert.Len(t, wards, 2)
}

func Test_studentApi_visibility(t *testing.T) {
	srv, app := setup(t)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	nurse := testutil.CreateUser(t, app.UserRepo, "Nurse", "nurse", "nurse@test.cd", "", []string{user.RoleMedical}, true)
	guard := testutil.CreateUser(t, app.UserRepo, "Guard", "guard", "guard@test.cd", "", []string{user.RoleSecurity}, true)
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")

	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")
	bola := testutil.Admit(t, app, "Bola", "Ade", class.ID, "papa.ade@test.cd")

	adaPath := "/v1/students/" + ada.Student.ID

	runTests(t, srv, []httpTest{
		{name: "auth required", path: adaPath, wantCode: http.StatusUnauthorized},
		{name: "teacher", path: adaPath, token: getToken(t, app, teacher), wantCode: http.StatusOK},
		{name: "medical", path: adaPath, token: getToken(t, app, nurse), wantCode: http.StatusOK},
		{name: "security (hidden)", path: adaPath, token: getToken(t, app, guard), wantCode: http.StatusNotFound},
		{name: "the student", path: adaPath, token: getToken(t, app, ada.StudentUser), wantCode: http.StatusOK},
		{name: "another student", path: adaPath, token: getToken(t, app, bola.StudentUser), wantCode: http.StatusNotFound},
		{name: "the parent", path: adaPath, token: getToken(t, app, ada.ParentUser), wantCode: http.StatusOK},
		{name: "another parent", path: adaPath, token: getToken(t, app, bola.ParentUser), wantCode: http.StatusNotFound},
		{name: "parents of the student", path: adaPath + "/parents", token: getToken(t, app, ada.ParentUser), wantCode: http.StatusOK},
		{name: "list (viewers only)", path: "/v1/students", token: getToken(t, app, ada.ParentUser), wantCode: http.StatusForbidden},
		{name: "list", path: "/v1/students?class_id=" + class.ID, token: getToken(t, app, teacher), wantCode: http.StatusOK},
		{name: "me", path: "/v1/students/me", token: getToken(t, app, ada.StudentUser), wantCode: http.StatusOK},
		{name: "me (not a student)", path: "/v1/students/me", token: getToken(t, app, teacher), wantCode: http.StatusForbidden},
	})
}

func Test_studentApi_withdraw(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")
	adminToken := getToken(t, app, admin)

	rec := do(srv, http.MethodPost, "/v1/students/"+ada.Student.ID+"/withdraw", adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p student.Profile
	unmarshal(t, rec, &p)
	assert.Equal(t, student.StatusWithdrawn, p.Status)

	// withdrawn students cannot log in anymore
	rec = do(srv, http.MethodGet, "/v1/students/me", getToken(t, app, ada.StudentUser))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// nor be withdrawn twice
	rec = do(srv, http.MethodPost, "/v1/students/"+ada.Student.ID+"/withdraw", adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
