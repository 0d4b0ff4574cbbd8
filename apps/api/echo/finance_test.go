package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/finance"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
	"github.com/trezcool/shule/testutil"
)

func Test_financeApi_invoices(t *testing.T) {
	srv, app := setup(t)
	accountant := testutil.CreateUser(t, app.UserRepo, "Accountant", "accountant", "accountant@test.cd", "", []string{user.RoleFinance}, true)
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")
	bola := testutil.Admit(t, app, "Bola", "Ade", class.ID, "papa.ade@test.cd")

	financeToken := getToken(t, app, accountant)
	adaParentToken := getToken(t, app, ada.ParentUser)
	generate := marchallObj(t, finance.GenerateInvoices{ClassLevel: 7, Term: "2024-T1", DueAt: "2024-10-01"})

	runTests(t, srv, []httpTest{
		{name: "finance only", method: http.MethodPost, path: "/v1/fees", token: adaParentToken, body: []byte(`{}`), wantCode: http.StatusForbidden},
		{name: "no fee items", method: http.MethodPost, path: "/v1/invoices/generate", token: financeToken, body: generate, wantCode: http.StatusBadRequest},
		{
			name: "tuition", method: http.MethodPost, path: "/v1/fees", token: financeToken,
			body: []byte(`{"class_level": 7, "term": "2024-T1", "name": "Tuition", "amount": 30000}`), wantCode: http.StatusCreated,
		},
		{
			name: "books", method: http.MethodPost, path: "/v1/fees", token: financeToken,
			body: []byte(`{"class_level": 7, "term": "2024-T1", "name": "Books", "amount": 20000}`), wantCode: http.StatusCreated,
		},
	})

	rec := do(srv, http.MethodPost, "/v1/invoices/generate", financeToken, generate)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var invoices []finance.Invoice
	unmarshal(t, rec, &invoices)
	require.Len(t, invoices, 2)
	for _, inv := range invoices {
		assert.Equal(t, int64(50000), inv.Amount)
		assert.Equal(t, finance.StatusUnpaid, inv.Status)
	}

	// students already invoiced are skipped
	rec = do(srv, http.MethodPost, "/v1/invoices/generate", financeToken, generate)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(srv, http.MethodGet, "/v1/invoices", adaParentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	invoices = nil
	unmarshal(t, rec, &invoices)
	require.Len(t, invoices, 1)
	inv := invoices[0]
	assert.Equal(t, ada.Student.ID, inv.StudentID)

	invPath := "/v1/invoices/" + inv.ID
	runTests(t, srv, []httpTest{
		{name: "other parent (hidden)", path: invPath, token: getToken(t, app, bola.ParentUser), wantCode: http.StatusNotFound},
		{name: "the student", path: invPath, token: getToken(t, app, ada.StudentUser), wantCode: http.StatusOK},
		{name: "overpayment", method: http.MethodPost, path: invPath + "/pay", token: adaParentToken, body: []byte(`{"amount": 60000}`), wantCode: http.StatusBadRequest},
		{name: "insufficient funds", method: http.MethodPost, path: invPath + "/pay", token: adaParentToken, body: []byte(`{"amount": 10000}`), wantCode: http.StatusBadRequest},
		{name: "not a ward", method: http.MethodPost, path: invPath + "/pay", token: getToken(t, app, bola.ParentUser), body: []byte(`{"amount": 10000}`), wantCode: http.StatusForbidden},
	})

	_, err := app.Wallets.Credit(context.Background(), ada.Wallet.ID, wallet.Movement{Amount: 40000})
	require.NoError(t, err)

	rec = do(srv, http.MethodPost, invPath+"/pay", adaParentToken, []byte(`{"amount": 10000}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inv = finance.Invoice{}
	unmarshal(t, rec, &inv)
	assert.Equal(t, int64(10000), inv.AmountPaid)
	assert.Equal(t, finance.StatusPartial, inv.Status)

	w, err := app.Wallets.Get(context.Background(), ada.Wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), w.Balance)

	rec = do(srv, http.MethodGet, invPath+"/payments", adaParentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var payments []finance.Payment
	unmarshal(t, rec, &payments)
	require.Len(t, payments, 1)
	assert.Equal(t, ada.ParentUser.ID, payments[0].PayerID)

	runTests(t, srv, []httpTest{
		{
			name: "totals", path: "/v1/invoices/totals?term=2024-T1", token: financeToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, finance.Totals{Invoiced: 100000, Collected: 10000, Outstanding: 90000}),
		},
	})
}
