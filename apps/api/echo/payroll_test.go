package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/payroll"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_payrollApi_run(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	hr := testutil.CreateUser(t, app.UserRepo, "HR", "hr", "hr@test.cd", "", []string{user.RoleHR}, true)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	pupil := testutil.CreateUser(t, app.UserRepo, "Pupil", "pupil", "pupil@test.cd", "", []string{user.RoleStudent}, true)

	hrToken := getToken(t, app, hr)
	salary := []byte(`{"basic": 100000, "allowances": 20000, "deductions": 1000, "account_number": "0123456789"}`)
	generate := []byte(`{"period": "2024-09"}`)

	runTests(t, srv, []httpTest{
		{name: "hr only", method: http.MethodPut, path: "/v1/payroll/salaries/" + teacher.ID, token: getToken(t, app, teacher), body: salary, wantCode: http.StatusForbidden},
		{name: "no salaries", method: http.MethodPost, path: "/v1/payroll/runs", token: hrToken, body: generate, wantCode: http.StatusBadRequest},
		{name: "not staff", method: http.MethodPut, path: "/v1/payroll/salaries/" + pupil.ID, token: hrToken, body: salary, wantCode: http.StatusBadRequest},
		{name: "invalid salary", method: http.MethodPut, path: "/v1/payroll/salaries/" + teacher.ID, token: hrToken, body: []byte(`{"basic": 0}`), wantCode: http.StatusBadRequest},
		{name: "set salary", method: http.MethodPut, path: "/v1/payroll/salaries/" + teacher.ID, token: hrToken, body: salary, wantCode: http.StatusOK},
		{name: "invalid period", method: http.MethodPost, path: "/v1/payroll/runs", token: hrToken, body: []byte(`{"period": "09/2024"}`), wantCode: http.StatusBadRequest},
	})

	rec := do(srv, http.MethodPost, "/v1/payroll/runs", hrToken, generate)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res GenerateRunResponse
	unmarshal(t, rec, &res)
	require.Len(t, res.Payslips, 1)
	slip := res.Payslips[0]
	assert.Equal(t, int64(120000), slip.Gross)
	assert.Equal(t, int64(8000), slip.Pension)
	assert.Equal(t, int64(11200), slip.Tax)
	assert.Equal(t, int64(99800), slip.Net)
	assert.Equal(t, payroll.StatusDraft, res.Run.Status)
	assert.Equal(t, int64(99800), res.Run.TotalNet)

	runPath := "/v1/payroll/runs/" + res.Run.ID
	runTests(t, srv, []httpTest{
		{name: "one run per period", method: http.MethodPost, path: "/v1/payroll/runs", token: hrToken, body: generate, wantCode: http.StatusConflict},
		{name: "cannot pay a draft", method: http.MethodPost, path: runPath + "/paid", token: hrToken, wantCode: http.StatusConflict},
		{name: "hr cannot approve", method: http.MethodPost, path: runPath + "/approve", token: hrToken, wantCode: http.StatusForbidden},
		{name: "approve", method: http.MethodPost, path: runPath + "/approve", token: getToken(t, app, admin), wantCode: http.StatusOK},
		{name: "paid", method: http.MethodPost, path: runPath + "/paid", token: hrToken, wantCode: http.StatusOK},
		{name: "paid twice", method: http.MethodPost, path: runPath + "/paid", token: hrToken, wantCode: http.StatusConflict},
		{name: "students have no payslips", path: "/v1/payroll/payslips/me", token: getToken(t, app, pupil), wantCode: http.StatusForbidden},
	})

	rec = do(srv, http.MethodGet, "/v1/payroll/payslips/me", getToken(t, app, teacher))
	require.Equal(t, http.StatusOK, rec.Code)
	var slips []payroll.Payslip
	unmarshal(t, rec, &slips)
	require.Len(t, slips, 1)
	assert.Equal(t, "2024-09", slips[0].Period)

	sent := 0
	for _, msg := range app.Mail.SentMessages() {
		for _, to := range msg.To {
			if to.Address == teacher.Email {
				sent++
			}
		}
	}
	assert.Equal(t, 1, sent)
}
