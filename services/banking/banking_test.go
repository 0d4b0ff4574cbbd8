package bankingsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/wallet"
	bankingsvc "github.com/trezcool/shule/services/banking"
	logsvc "github.com/trezcool/shule/services/logger"
)

func TestParseWebhook(t *testing.T) {
	conf := core.NewTestConfig()
	bank := bankingsvc.NewDummyProvider(conf)
	paidAt := time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)

	payload, err := bankingsvc.NewWebhookPayload(wallet.StatementEntry{
		Reference:     "TRF-1",
		AccountNumber: "0123456789",
		Amount:        5000,
		PaidAt:        paidAt,
	})
	require.NoError(t, err)
	incomplete := []byte(`{"event": "charge.success", "data": {"reference": "TRF-2"}}`)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		wantErr   bool
		wantSig   bool // wallet.ErrInvalidSignature
	}{
		{name: "no signature", payload: payload, wantErr: true, wantSig: true},
		{name: "not hex", payload: payload, signature: "lol", wantErr: true, wantSig: true},
		{name: "wrong secret", payload: payload, signature: bankingsvc.Sign("lol", payload), wantErr: true, wantSig: true},
		{name: "tampered", payload: append(payload[:len(payload):len(payload)], ' '), signature: bankingsvc.Sign(conf.Banking.SecretKey, payload), wantErr: true, wantSig: true},
		{name: "not json", payload: []byte("lol"), signature: bankingsvc.Sign(conf.Banking.SecretKey, []byte("lol")), wantErr: true},
		{name: "incomplete", payload: incomplete, signature: bankingsvc.Sign(conf.Banking.SecretKey, incomplete), wantErr: true},
		{name: "valid", payload: payload, signature: bankingsvc.Sign(conf.Banking.SecretKey, payload)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := bank.ParseWebhook(tt.payload, tt.signature)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantSig, err == wallet.ErrInvalidSignature)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "TRF-1", entry.Reference)
			assert.Equal(t, int64(5000), entry.Amount)
			assert.True(t, paidAt.Equal(entry.PaidAt))
		})
	}
}

func TestAccountNumberFor(t *testing.T) {
	a := bankingsvc.AccountNumberFor("wallet-1")
	assert.Len(t, a, 10)
	assert.Regexp(t, "^[0-9]{10}$", a)
	assert.Equal(t, a, bankingsvc.AccountNumberFor("wallet-1"))
	assert.NotEqual(t, a, bankingsvc.AccountNumberFor("wallet-2"))
}

func TestDummyProvider_Statement(t *testing.T) {
	bank := bankingsvc.NewDummyProvider(core.NewTestConfig())
	ctx := context.Background()
	now := time.Now().UTC()

	acct, err := bank.CreateVirtualAccount(ctx, wallet.VirtualAccountRequest{Reference: "wallet-1", Name: "Obi"})
	require.NoError(t, err)
	assert.Equal(t, "Obi", acct.AccountName)

	bank.AddPayment(wallet.StatementEntry{Reference: "B", AccountNumber: acct.AccountNumber, Amount: 2, PaidAt: now.Add(-time.Hour)})
	bank.AddPayment(wallet.StatementEntry{Reference: "A", AccountNumber: acct.AccountNumber, Amount: 1, PaidAt: now.Add(-2 * time.Hour)})
	bank.AddPayment(wallet.StatementEntry{Reference: "old", AccountNumber: acct.AccountNumber, Amount: 3, PaidAt: now.AddDate(0, -2, 0)})
	bank.AddPayment(wallet.StatementEntry{Reference: "other", AccountNumber: "9999999999", Amount: 4, PaidAt: now})

	entries, err := bank.Statement(ctx, acct.AccountNumber, now.AddDate(0, 0, -1), now)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Reference)
	assert.Equal(t, "B", entries[1].Reference)
}

func TestRESTProvider(t *testing.T) {
	var gotAuth, gotFrom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/virtual-accounts":
			var req wallet.VirtualAccountRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(map[string]string{"account_number": "0123456789", "account_name": req.Name})
		case r.Method == http.MethodGet && r.URL.Path == "/virtual-accounts/0123456789/transactions":
			gotFrom = r.URL.Query().Get("from")
			_, _ = w.Write([]byte(`{"data": [{"reference": "TRF-1", "amount": 5000, "paid_at": "2024-09-02T10:00:00Z"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "not found"}`))
		}
	}))
	defer srv.Close()

	conf := core.NewTestConfig()
	conf.Banking.BaseURL = srv.URL + "/"
	conf.Banking.BankName = "Test Bank"
	bank := bankingsvc.New(logsvc.NewDiscardLogger(), conf)
	require.IsType(t, &bankingsvc.RESTProvider{}, bank)
	ctx := context.Background()

	acct, err := bank.CreateVirtualAccount(ctx, wallet.VirtualAccountRequest{Reference: "wallet-1", Name: "Obi"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+conf.Banking.SecretKey, gotAuth)
	assert.Equal(t, wallet.VirtualAccount{AccountNumber: "0123456789", AccountName: "Obi", BankName: "Test Bank"}, acct)

	from := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	entries, err := bank.Statement(ctx, acct.AccountNumber, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, "2024-09-01T00:00:00Z", gotFrom)
	require.Len(t, entries, 1)
	assert.Equal(t, acct.AccountNumber, entries[0].AccountNumber)
	assert.Equal(t, int64(5000), entries[0].Amount)

	_, err = bank.Statement(ctx, "lol", from, from)
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = bank.CreateVirtualAccount(cancelled, wallet.VirtualAccountRequest{Reference: "wallet-2", Name: "Ada"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), err)
}
