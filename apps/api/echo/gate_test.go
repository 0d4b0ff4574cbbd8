package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/security"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_gateApi(t *testing.T) {
	srv, app := setup(t)
	guard := testutil.CreateUser(t, app.UserRepo, "Guard", "guard", "guard@test.cd", "", []string{user.RoleSecurity}, true)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	gone := testutil.CreateUser(t, app.UserRepo, "Gone", "gone", "gone@test.cd", "", []string{user.RoleTeacher}, false)
	guardToken := getToken(t, app, guard)

	checkIn := func(hostID string) []byte {
		return marchallObj(t, security.CheckIn{Name: "Mr Okafor", Phone: "08031234567", Purpose: "meeting", HostID: hostID})
	}

	runTests(t, srv, []httpTest{
		{name: "security only", path: "/v1/gate/visitors", token: getToken(t, app, teacher), wantCode: http.StatusForbidden},
		{name: "purpose required", method: http.MethodPost, path: "/v1/gate/visitors", token: guardToken, body: []byte(`{"name": "Mr Okafor"}`), wantCode: http.StatusBadRequest},
		{name: "inactive host", method: http.MethodPost, path: "/v1/gate/visitors", token: guardToken, body: checkIn(gone.ID), wantCode: http.StatusBadRequest},
		{name: "invalid active", path: "/v1/gate/visitors?active=sure", token: guardToken, wantCode: http.StatusBadRequest},
	})

	rec := do(srv, http.MethodPost, "/v1/gate/visitors", guardToken, checkIn(teacher.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var vl security.VisitorLog
	unmarshal(t, rec, &vl)
	assert.Equal(t, guard.ID, vl.RecordedBy)
	assert.True(t, vl.Inside())

	rec = do(srv, http.MethodGet, "/v1/gate/visitors?active=true", guardToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []security.VisitorLog
	unmarshal(t, rec, &logs)
	assert.Len(t, logs, 1)

	path := "/v1/gate/visitors/" + vl.ID + "/check-out"
	runTests(t, srv, []httpTest{
		{name: "check out", method: http.MethodPost, path: path, token: guardToken, wantCode: http.StatusOK},
		{name: "check out twice", method: http.MethodPost, path: path, token: guardToken, wantCode: http.StatusConflict},
		{name: "nobody inside", path: "/v1/gate/visitors?active=true", token: guardToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	})
}
