package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_schoolApi_classes(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	nurse := testutil.CreateUser(t, app.UserRepo, "Nurse", "nurse", "nurse@test.cd", "", []string{user.RoleMedical}, true)

	adminToken := getToken(t, app, admin)
	newClass := []byte(`{"name": " JSS 1 ", "level": 7, "section": "A", "academic_year": "2024/2025"}`)

	runTests(t, srv, []httpTest{
		{name: "auth required", path: "/v1/classes", wantCode: http.StatusUnauthorized},
		{name: "admin required", method: http.MethodPost, path: "/v1/classes", token: getToken(t, app, teacher), body: newClass, wantCode: http.StatusForbidden},
		{name: "name required", method: http.MethodPost, path: "/v1/classes", token: adminToken, body: []byte(`{"academic_year": "2024/2025"}`), wantCode: http.StatusBadRequest},
	})

	rec := do(srv, http.MethodPost, "/v1/classes", adminToken, newClass)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var class school.Class
	unmarshal(t, rec, &class)
	assert.Equal(t, "JSS 1", class.Name)
	assert.Equal(t, "JSS 1 A", class.DisplayName())

	classPath := "/v1/classes/" + class.ID
	runTests(t, srv, []httpTest{
		{name: "duplicate", method: http.MethodPost, path: "/v1/classes", token: adminToken, body: newClass, wantCode: http.StatusBadRequest},
		{name: "list", path: "/v1/classes?level=7", token: getToken(t, app, teacher), wantCode: http.StatusOK},
		{name: "invalid level", path: "/v1/classes?level=seven", token: adminToken, wantCode: http.StatusBadRequest},
		{name: "not found", path: "/v1/classes/lol", token: adminToken, wantCode: http.StatusNotFound},
		{
			name: "form teacher must teach", method: http.MethodPut, path: classPath + "/form-teacher", token: adminToken,
			body: marchallObj(t, map[string]string{"teacher_id": nurse.ID}), wantCode: http.StatusBadRequest,
		},
		{
			name: "form teacher", method: http.MethodPut, path: classPath + "/form-teacher", token: adminToken,
			body: marchallObj(t, map[string]string{"teacher_id": teacher.ID}), wantCode: http.StatusOK,
		},
		{name: "rename", method: http.MethodPut, path: classPath, token: adminToken, body: []byte(`{"name": "JSS One"}`), wantCode: http.StatusOK},
	})

	got, err := app.School.GetClass(context.Background(), class.ID)
	require.NoError(t, err)
	assert.Equal(t, "JSS One", got.Name)
	assert.Equal(t, teacher.ID, got.FormTeacherID)

	// subjects
	newSubject := marchallObj(t, school.NewSubject{Name: "Mathematics", Code: "mth", ClassID: class.ID, TeacherID: teacher.ID})
	rec = do(srv, http.MethodPost, "/v1/subjects", adminToken, newSubject)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var subject school.Subject
	unmarshal(t, rec, &subject)
	assert.Equal(t, "MTH", subject.Code)

	runTests(t, srv, []httpTest{
		{name: "code unique per class", method: http.MethodPost, path: "/v1/subjects", token: adminToken, body: newSubject, wantCode: http.StatusBadRequest},
		{name: "class with subjects", method: http.MethodDelete, path: classPath, token: adminToken, wantCode: http.StatusConflict},
		{name: "subjects of the class", path: "/v1/subjects?class_id=" + class.ID, token: adminToken, wantCode: http.StatusOK},
		{name: "delete subject", method: http.MethodDelete, path: "/v1/subjects/" + subject.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "delete class", method: http.MethodDelete, path: classPath, token: adminToken, wantCode: http.StatusNoContent},
		{name: "deleted", path: classPath, token: adminToken, wantCode: http.StatusNotFound},
	})
}
