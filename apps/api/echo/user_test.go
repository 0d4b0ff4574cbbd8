package echoapi_test

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/services/ratelimit"
	"github.com/trezcool/shule/testutil"
)

const pwd = "Sup3r-Secr3t!"

func TestServer_home(t *testing.T) {
	srv, _ := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Shule API!", rec.Body.String())
}

func Test_userApi_login(t *testing.T) {
	srv, app := setup(t)
	testutil.CreateUser(t, app.UserRepo, "Awe", "awe", "awe@test.cd", pwd, nil, true)
	testutil.CreateUser(t, app.UserRepo, "N Dog", "ndog", "ndog@test.cd", pwd, []string{user.RoleStudent}, false)

	body := func(uname, pass string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: pass})
	}

	tests := []httpTest{
		{name: "missing fields", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: body("lol", pwd),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: body("awe", "wrong"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: body("ndog", pwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	runTests(t, srv, tests)

	t.Run("success (email, any case)", func(t *testing.T) {
		rec := do(srv, http.MethodPost, "/v1/users/login", "", body("AWE@test.cd", pwd))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp LoginResponse
		unmarshal(t, rec, &resp)
		require.NotEmpty(t, resp.Token)

		me := do(srv, http.MethodGet, "/v1/users/me", resp.Token)
		assert.Equal(t, http.StatusOK, me.Code)

		var usr user.User
		unmarshal(t, me, &usr)
		assert.Equal(t, "awe", usr.Username)
		assert.False(t, usr.LastLogin.IsZero())
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	srv, app := setup(t)
	usr := testutil.CreateUser(t, app.UserRepo, "Awe", "awe", "awe@test.cd", pwd, nil, true)

	runTests(t, srv, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/users/token-refresh", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid token", method: http.MethodPost, path: "/v1/users/token-refresh", token: "not.a.jwt",
			wantCode: http.StatusUnauthorized,
		},
	})

	rec := do(srv, http.MethodPost, "/v1/users/token-refresh", getToken(t, app, usr))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
}

func Test_userApi_query(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.UserRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	naughty := testutil.CreateUser(t, app.UserRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false)

	adminToken := getToken(t, app, admin)

	runTests(t, srv, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: getToken(t, app, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "all", path: "/v1/users", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, []user.User{admin, student, teacher, naughty}),
		},
		{
			name: "role=student:", path: "/v1/users?role=" + user.RoleStudent, token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, []user.User{student, naughty}),
		},
		{
			name: "is_active=false", path: "/v1/users?is_active=false", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, []user.User{naughty}),
		},
		{name: "search (unknown)", path: "/v1/users?search=lol", token: adminToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{
			name: "invalid is_active", path: "/v1/users?is_active=maybe", token: adminToken,
			wantCode: http.StatusBadRequest,
		},
		{name: "roles", path: "/v1/users/roles", token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
	})
}

func Test_userApi_create(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, app, admin)

	newUser := func(uname string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "Jane Doe",
			Username:        uname,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		})
	}

	runTests(t, srv, []httpTest{
		{
			name: "higher role", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: newUser("janedoe", user.RoleAdminOwner), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles": "not enough rights to set these roles"}`),
		},
		{
			name: "unknown role", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: newUser("janedoe", "lol:"), wantCode: http.StatusBadRequest,
		},
		{
			name: "ok", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: newUser("janedoe", user.RoleTeacher), wantCode: http.StatusCreated,
		},
		{
			name: "username taken", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: newUser("janedoe"), wantCode: http.StatusBadRequest,
		},
	})
}

func Test_userApi_detail(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	owner := testutil.CreateUser(t, app.UserRepo, "Owner", "owner", "owner@test.cd", "", []string{user.RoleAdminOwner}, true)
	usr1 := testutil.CreateUser(t, app.UserRepo, "User 1", "user1", "user1@test.cd", "", nil, true)
	usr2 := testutil.CreateUser(t, app.UserRepo, "User 2", "user2", "user2@test.cd", "", []string{user.RoleTeacher}, true)

	adminToken := getToken(t, app, admin)
	usr1Token := getToken(t, app, usr1)

	runTests(t, srv, []httpTest{
		{name: "self", path: "/v1/users/" + usr1.ID, token: usr1Token, wantCode: http.StatusOK, wantData: marchallObj(t, usr1)},
		{
			name: "other user (hidden)", path: "/v1/users/" + usr2.ID, token: usr1Token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "admin", path: "/v1/users/" + usr2.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, usr2)},
		{
			name: "non admin cannot change roles", method: http.MethodPut, path: "/v1/users/" + usr1.ID, token: usr1Token,
			body: []byte(`{"name": "User 1", "roles": ["admin:"]}`), wantCode: http.StatusForbidden,
		},
		{name: "cannot delete self", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "cannot delete higher role", method: http.MethodDelete, path: "/v1/users/" + owner.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: "/v1/users/" + usr2.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "deleted", path: "/v1/users/" + usr2.ID, token: adminToken, wantCode: http.StatusNotFound},
		{name: "cannot bulk delete self", method: http.MethodDelete, path: "/v1/users?id=" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
	})
}

func Test_rateLimit(t *testing.T) {
	srv, _ := setup(t, ratelimit.NewMemoryLimiter(2, time.Hour))

	body := marchallObj(t, LoginRequest{Username: "lol", Password: "lol"})
	for i := 0; i < 2; i++ {
		rec := do(srv, http.MethodPost, "/v1/users/login", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := do(srv, http.MethodPost, "/v1/users/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other routes have their own window
	rec = do(srv, http.MethodPost, "/v1/users/password-reset", "", []byte(`{"email": "lol@test.cd"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_passwordReset(t *testing.T) {
	srv, app := setup(t)
	hero := testutil.CreateUser(t, app.UserRepo, "Hero", "hero", "hero@test.cd", pwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, app.UserRepo, "Ghost", "ghost", "ghost@test.cd", pwd, []string{user.RoleStudent}, false)
	linkRegex := regexp.MustCompile(`/password-reset/([A-Za-z0-9_-]+)/(\S+)`)

	tests := []struct {
		name      string
		body      []byte
		wantCode  int
		emailSent bool
	}{
		{name: "required fields", body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "invalid email", body: marchallObj(t, PasswordResetRequest{Email: "lol"}), wantCode: http.StatusBadRequest},
		{name: "unknown email", body: marchallObj(t, PasswordResetRequest{Email: "lol@test.cd"}), wantCode: http.StatusOK},
		{name: "inactive user", body: marchallObj(t, PasswordResetRequest{Email: "ghost@test.cd"}), wantCode: http.StatusOK},
		{name: "known email", body: marchallObj(t, PasswordResetRequest{Email: "HERO@test.cd"}), wantCode: http.StatusOK, emailSent: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app.Mail.Reset()
			rec := do(srv, http.MethodPost, "/v1/users/password-reset", "", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			sent := app.Mail.SentMessages()
			if !tt.emailSent {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			msg := sent[0]
			assert.Equal(t, hero.Email, msg.To[0].Address)
			assert.Equal(t, hero.Name, msg.To[0].Name)
			assert.Contains(t, msg.TextContent, "Hello Hero,")
			assert.Contains(t, msg.HTMLContent, "Hello Hero,")
			assert.Regexp(t, linkRegex, msg.TextContent)
			assert.Contains(t, msg.HTMLContent, "/password-reset/")
		})
	}

	t.Run("the emailed link resets the password", func(t *testing.T) {
		sent := app.Mail.SentMessages()
		require.Len(t, sent, 1)
		match := linkRegex.FindStringSubmatch(sent[0].TextContent)
		require.Len(t, match, 3)

		newPwd := "N3w-Secr3t!pwd"
		body := marchallObj(t, user.ResetUserPassword{UID: match[1], Token: match[2], Password: newPwd, PasswordConfirm: newPwd})
		rec := do(srv, http.MethodPost, "/v1/users/password-reset-confirm", "", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(srv, http.MethodPost, "/v1/users/login", "", marchallObj(t, LoginRequest{Username: "hero", Password: newPwd}))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}
