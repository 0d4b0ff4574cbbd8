package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
	bankingsvc "github.com/trezcool/shule/services/banking"
	"github.com/trezcool/shule/testutil"
)

func webhookRequest(t *testing.T, payload []byte, signature string) *http.Request {
	t.Helper()
	req, _ := newRequest(http.MethodPost, "/v1/banking/webhook", payload)
	req.Header.Set(bankingsvc.SignatureHeader, signature)
	return req
}

func Test_walletApi_webhook(t *testing.T) {
	srv, app := setup(t)
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")
	parentToken := getToken(t, app, ada.ParentUser)

	payload, err := bankingsvc.NewWebhookPayload(wallet.StatementEntry{
		Reference:     "TRF-0001",
		AccountNumber: ada.Wallet.AccountNumber,
		Amount:        150000,
		Narration:     "school fees",
		PaidAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
	signature := bankingsvc.Sign("bank-secret", payload)

	t.Run("invalid signature", func(t *testing.T) {
		rec := httptestServe(srv, webhookRequest(t, payload, bankingsvc.Sign("lol", payload)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown event", func(t *testing.T) {
		body := []byte(`{"event": "transfer.failed", "data": {}}`)
		rec := httptestServe(srv, webhookRequest(t, body, bankingsvc.Sign("bank-secret", body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("funds the wallet once", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec := httptestServe(srv, webhookRequest(t, payload, signature))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var txn wallet.Transaction
			unmarshal(t, rec, &txn)
			assert.Equal(t, "TRF-0001", txn.Reference)
			assert.Equal(t, wallet.StatusSuccess, txn.Status)
		}

		rec := do(srv, http.MethodGet, "/v1/wallets/me", parentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var w wallet.Wallet
		unmarshal(t, rec, &w)
		assert.Equal(t, int64(150000), w.Balance)

		rec = do(srv, http.MethodGet, "/v1/wallets/me/transactions?type="+wallet.TypeCredit, parentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var txns []wallet.Transaction
		unmarshal(t, rec, &txns)
		assert.Len(t, txns, 1)

		funded := 0
		for _, msg := range app.Mail.SentMessages() {
			if msg.Subject == "Wallet Funded" {
				funded++
			}
		}
		assert.Equal(t, 1, funded)
	})
}

func Test_walletApi_finance(t *testing.T) {
	srv, app := setup(t)
	accountant := testutil.CreateUser(t, app.UserRepo, "Accountant", "accountant", "accountant@test.cd", "", []string{user.RoleFinance}, true)
	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")

	financeToken := getToken(t, app, accountant)
	path := "/v1/wallets/" + ada.Wallet.ID

	runTests(t, srv, []httpTest{
		{name: "parents cannot list wallets", path: "/v1/wallets", token: getToken(t, app, ada.ParentUser), wantCode: http.StatusForbidden},
		{name: "students have no wallet", path: "/v1/wallets/me", token: getToken(t, app, ada.StudentUser), wantCode: http.StatusForbidden},
		{name: "list", path: "/v1/wallets", token: financeToken, wantCode: http.StatusOK},
		{name: "detail", path: path, token: financeToken, wantCode: http.StatusOK},
		{name: "invalid amount", method: http.MethodPost, path: path + "/credit", token: financeToken, body: []byte(`{"amount": -5}`), wantCode: http.StatusBadRequest},
		{name: "credit", method: http.MethodPost, path: path + "/credit", token: financeToken, body: []byte(`{"amount": 5000, "reference": "CASH-1"}`), wantCode: http.StatusOK},
		{name: "invalid window", method: http.MethodPost, path: path + "/reconcile?from=yesterday", token: financeToken, wantCode: http.StatusBadRequest},
	})

	// a payment the webhook never notified
	app.Bank.AddPayment(wallet.StatementEntry{
		Reference:     "TRF-MISSED",
		AccountNumber: ada.Wallet.AccountNumber,
		Amount:        20000,
	})

	rec := do(srv, http.MethodPost, path+"/reconcile", financeToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report wallet.Report
	unmarshal(t, rec, &report)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, wallet.KindMissingCredit, report.Discrepancies[0].Kind)
	assert.False(t, report.Discrepancies[0].Fixed)

	rec = do(srv, http.MethodPost, path+"/reconcile?fix=true", financeToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report = wallet.Report{}
	unmarshal(t, rec, &report)
	require.Len(t, report.Discrepancies, 1)
	assert.True(t, report.Discrepancies[0].Fixed)

	rec = do(srv, http.MethodGet, path, financeToken)
	var w wallet.Wallet
	unmarshal(t, rec, &w)
	assert.Equal(t, int64(25000), w.Balance)

	// nothing left to fix
	rec = do(srv, http.MethodPost, path+"/reconcile", financeToken)
	report = wallet.Report{}
	unmarshal(t, rec, &report)
	assert.Empty(t, report.Discrepancies)
}
