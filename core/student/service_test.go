package student_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "not a validation error: %v", err)
	require.NotEmpty(t, verr.Fields)
	return verr.Fields[0].Field
}

func TestService_Admit(t *testing.T) {
	app := testutil.NewApp()
	ctx := context.Background()
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	year := time.Now().UTC().Year()

	first := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")

	t.Run("creates the student, the parent & the wallet", func(t *testing.T) {
		assert.Equal(t, fmt.Sprintf("ADM/%d/0001", year), first.Student.AdmissionNumber)
		assert.Equal(t, student.StatusActive, first.Student.Status)
		assert.Equal(t, class.ID, first.Student.ClassID)
		assert.Equal(t, "ada.obi", first.StudentUser.Username)
		assert.True(t, first.StudentUser.IsStudent())
		assert.NoError(t, first.StudentUser.CheckPassword(first.StudentPassword))

		assert.Equal(t, "mama.obi@test.cd", first.ParentUser.Email)
		assert.True(t, first.ParentUser.IsParent())
		assert.NotEmpty(t, first.ParentPassword)
		assert.NoError(t, first.ParentUser.CheckPassword(first.ParentPassword))
		assert.Equal(t, first.ParentUser.ID, first.Wallet.OwnerID)
		assert.NotEmpty(t, first.Wallet.AccountNumber)

		ok, err := app.Students.IsWard(ctx, first.Parent.ID, first.Student.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("emails the credentials to the parent", func(t *testing.T) {
		sent := app.Mail.SentMessages()
		require.Len(t, sent, 1)
		msg := sent[0]
		require.Len(t, msg.To, 1)
		assert.Equal(t, "mama.obi@test.cd", msg.To[0].Address)
		assert.Equal(t, "Admission of Ada Obi", msg.Subject)
		assert.Contains(t, msg.TextContent, first.Student.AdmissionNumber)
		assert.Contains(t, msg.TextContent, first.StudentPassword)
		assert.Contains(t, msg.TextContent, first.ParentPassword)
		assert.Contains(t, msg.TextContent, first.Wallet.AccountNumber)
		assert.NotEmpty(t, msg.HTMLContent)
	})

	t.Run("reuses the parent of a sibling", func(t *testing.T) {
		app.Mail.Reset()
		req := testutil.AdmissionRequest("Ada", "Obi", class.ID, "MAMA.OBI@test.cd")
		req.Email = "ada2@test.cd"
		req.Clean()
		second, err := app.Students.Admit(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, fmt.Sprintf("ADM/%d/0002", year), second.Student.AdmissionNumber)
		assert.Equal(t, "ada.obi2", second.StudentUser.Username)
		assert.Equal(t, first.Parent.ID, second.Parent.ID)
		assert.Equal(t, first.Wallet.ID, second.Wallet.ID)
		assert.Empty(t, second.ParentPassword)

		wards, err := app.Students.Wards(ctx, first.Parent.ID)
		require.NoError(t, err)
		assert.Len(t, wards, 2)

		// parent & student both get their credentials; only new parents get a password
		sent := app.Mail.SentMessages()
		require.Len(t, sent, 2)
		assert.NotContains(t, sent[0].TextContent, "Parent portal login")
		assert.Equal(t, "ada2@test.cd", sent[1].To[0].Address)
		assert.Contains(t, sent[1].TextContent, second.StudentPassword)
	})

	t.Run("grants the parent role to existing staff", func(t *testing.T) {
		teacher := testutil.CreateUser(t, app.UserRepo, "Mr Eze", "eze", "eze@test.cd", "", []string{user.RoleTeacher}, true)
		res := testutil.Admit(t, app, "Chidi", "Eze", class.ID, "eze@test.cd")

		assert.Equal(t, teacher.ID, res.ParentUser.ID)
		assert.True(t, res.ParentUser.IsParent())
		assert.True(t, res.ParentUser.IsTeacher())
		assert.Empty(t, res.ParentPassword)
	})

	t.Run("invalid requests", func(t *testing.T) {
		req := testutil.AdmissionRequest("Kemi", "Ade", "b4a7d1c2-0000-4000-8000-000000000000", "ade@test.cd")
		_, err := app.Students.Admit(ctx, req)
		assert.Equal(t, "class_id", fieldOf(t, err))

		req = testutil.AdmissionRequest("Kemi", "Ade", class.ID, "ade@test.cd")
		req.DateOfBirth = time.Now().AddDate(0, 0, 2).Format(core.DateLayout)
		_, err = app.Students.Admit(ctx, req)
		assert.Equal(t, "date_of_birth", fieldOf(t, err))

		req = testutil.AdmissionRequest("Kemi", "Ade", class.ID, "ade@test.cd")
		req.Email = "ada2@test.cd"
		_, err = app.Students.Admit(ctx, req)
		assert.Equal(t, "email", fieldOf(t, err))
	})

	t.Run("rolls back when the parent cannot be used", func(t *testing.T) {
		app.Mail.Reset()
		req := testutil.AdmissionRequest("Tunde", "Bello", class.ID, "ada2@test.cd") // a student's email
		_, err := app.Students.Admit(ctx, req)
		assert.Equal(t, "parent.email", fieldOf(t, err))

		_, err = app.UserRepo.GetUser(ctx, user.GetFilter{Username: "tunde.bello"})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
		students, err := app.Students.Query(ctx, student.QueryFilter{ClassID: class.ID}, nil)
		require.NoError(t, err)
		assert.Len(t, students, 3)
		assert.Empty(t, app.Mail.SentMessages())
	})
}

func TestService_Withdraw(t *testing.T) {
	app := testutil.NewApp()
	ctx := context.Background()
	jss1 := testutil.CreateClass(t, app, "JSS 1", 7, "")
	jss2 := testutil.CreateClass(t, app, "JSS 2", 8, "")
	res := testutil.Admit(t, app, "Ada", "Obi", jss1.ID, "mama.obi@test.cd")

	p, err := app.Students.Transfer(ctx, res.Student.ID, jss2.ID)
	require.NoError(t, err)
	assert.Equal(t, jss2.ID, p.ClassID)

	p, err = app.Students.Withdraw(ctx, res.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, student.StatusWithdrawn, p.Status)

	usr, err := app.UserRepo.GetUser(ctx, user.GetFilter{ID: res.StudentUser.ID})
	require.NoError(t, err)
	assert.False(t, usr.Active())

	_, err = app.Students.Withdraw(ctx, res.Student.ID)
	assert.Equal(t, "status", fieldOf(t, err))
	_, err = app.Students.Transfer(ctx, res.Student.ID, jss1.ID)
	assert.Equal(t, "status", fieldOf(t, err))

	// reactivating the student reactivates the account
	active := student.StatusActive
	_, err = app.Students.Update(ctx, res.Student.ID, student.UpdateStudent{Status: &active})
	require.NoError(t, err)
	usr, err = app.UserRepo.GetUser(ctx, user.GetFilter{ID: res.StudentUser.ID})
	require.NoError(t, err)
	assert.True(t, usr.Active())
}
