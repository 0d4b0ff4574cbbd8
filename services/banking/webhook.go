package bankingsvc

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/wallet"
)

const (
	// EventChargeSuccess is the event notified when a virtual account receives a payment.
	EventChargeSuccess = "charge.success"

	// SignatureHeader carries the signature of a notification.
	SignatureHeader = "X-Bank-Signature"
)

var (
	errUnhandledEvent         = errors.New("unhandled event")
	errIncompleteNotification = errors.New("incomplete notification")
)

type (
	webhookData struct {
		Reference     string    `json:"reference"`
		AccountNumber string    `json:"account_number"`
		Amount        int64     `json:"amount"`
		Narration     string    `json:"narration"`
		PaidAt        time.Time `json:"paid_at"`
	}

	webhookPayload struct {
		Event string      `json:"event"`
		Data  webhookData `json:"data"`
	}
)

// Sign returns the hex encoded HMAC-SHA512 of `payload`, as sent in the signature header of notifications.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret string, payload []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil || secret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}

// NewWebhookPayload encodes a payment notification, as the bank does.
func NewWebhookPayload(entry wallet.StatementEntry) ([]byte, error) {
	return json.Marshal(webhookPayload{
		Event: EventChargeSuccess,
		Data: webhookData{
			Reference:     entry.Reference,
			AccountNumber: entry.AccountNumber,
			Amount:        entry.Amount,
			Narration:     entry.Narration,
			PaidAt:        entry.PaidAt,
		},
	})
}

func parseWebhook(secret string, payload []byte, signature string) (wallet.StatementEntry, error) {
	if !verify(secret, payload, signature) {
		return wallet.StatementEntry{}, wallet.ErrInvalidSignature
	}

	var p webhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return wallet.StatementEntry{}, core.NewValidationError(errors.Wrap(err, "decoding notification"))
	}
	if p.Event != EventChargeSuccess {
		return wallet.StatementEntry{}, core.NewValidationError(errors.Wrap(errUnhandledEvent, p.Event))
	}
	if p.Data.Reference == "" || p.Data.AccountNumber == "" || p.Data.Amount <= 0 {
		return wallet.StatementEntry{}, core.NewValidationError(errIncompleteNotification)
	}
	paidAt := p.Data.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	return wallet.StatementEntry{
		Reference:     p.Data.Reference,
		AccountNumber: p.Data.AccountNumber,
		Amount:        p.Data.Amount,
		Narration:     p.Data.Narration,
		PaidAt:        paidAt.UTC(),
	}, nil
}
