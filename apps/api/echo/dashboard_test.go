package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_dashboardApi(t *testing.T) {
	srv, app := setup(t)
	admin := testutil.CreateUser(t, app.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")

	runTests(t, srv, []httpTest{
		{name: "auth required", path: "/v1/dashboard", wantCode: http.StatusUnauthorized},
	})

	t.Run("admin", func(t *testing.T) {
		rec := do(srv, http.MethodGet, "/v1/dashboard", getToken(t, app, admin))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var dash dashboard.Dashboard
		unmarshal(t, rec, &dash)
		require.NotNil(t, dash.Admin)
		assert.Equal(t, 1, dash.Admin.Students)
		assert.Equal(t, 1, dash.Admin.Classes)
		assert.Nil(t, dash.Parent)
	})

	t.Run("parent", func(t *testing.T) {
		rec := do(srv, http.MethodGet, "/v1/dashboard", getToken(t, app, ada.ParentUser))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var dash dashboard.Dashboard
		unmarshal(t, rec, &dash)
		require.NotNil(t, dash.Parent)
		assert.Equal(t, 1, dash.Parent.Wards)
		assert.Nil(t, dash.Admin)
		assert.Nil(t, dash.Finance)
	})
}
