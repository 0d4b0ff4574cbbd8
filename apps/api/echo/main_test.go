package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/ratelimit"
	"github.com/trezcool/shule/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func setup(t *testing.T, limiter ...ratelimit.Limiter) (Server, *testutil.App) {
	t.Helper()
	app := testutil.NewApp()

	lim := ratelimit.Limiter(ratelimit.NewMemoryLimiter(app.Conf.RateLimit.Requests, app.Conf.RateLimit.Window))
	if len(limiter) > 0 {
		lim = limiter[0]
	}

	srv := NewServer(
		"",  /* addr */
		nil, /* shutdown */
		&Deps{
			Conf:          app.Conf,
			Logger:        app.Logger,
			Validate:      app.Validate,
			Translator:    app.Translator,
			Limiter:       lim,
			UserSvc:       app.Users,
			SchoolSvc:     app.School,
			StudentSvc:    app.Students,
			AssessmentSvc: app.Assessments,
			AttendanceSvc: app.Attendance,
			WalletSvc:     app.Wallets,
			FinanceSvc:    app.Finance,
			PayrollSvc:    app.Payroll,
			ClinicSvc:     app.Clinic,
			GateSvc:       app.Gate,
			DashboardSvc:  app.Dashboard,
		},
	)
	return srv, app
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves the request and returns the recorded response.
func do(srv Server, method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	srv.ServeHTTP(rec, req)
	return rec
}

func httptestServe(srv Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func runTests(t *testing.T, srv Server, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := do(srv, method, tt.path, tt.token, tt.body)
			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func getToken(t *testing.T, app *testutil.App, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(app.Conf, GetUserClaims(app.Conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
