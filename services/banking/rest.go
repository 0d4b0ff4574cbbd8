package bankingsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/wallet"
)

// RESTProvider talks to the virtual accounts API of the bank.
type RESTProvider struct {
	baseURL  string
	secret   string
	bankName string
	logger   core.Logger
}

var _ wallet.AccountProvider = (*RESTProvider)(nil)

type (
	accountResponse struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
		BankName      string `json:"bank_name"`
	}

	statementResponse struct {
		Data []webhookData `json:"data"`
	}
)

func NewRESTProvider(logger core.Logger, conf *core.Config) *RESTProvider {
	return &RESTProvider{
		baseURL:  strings.TrimRight(conf.Banking.BaseURL, "/"),
		secret:   conf.Banking.SecretKey,
		bankName: conf.Banking.BankName,
		logger:   logger,
	}
}

// New returns the account provider fitting the configuration: the dummy bank without a base URL,
// the REST API of the bank otherwise.
func New(logger core.Logger, conf *core.Config) wallet.AccountProvider {
	if conf.Banking.BaseURL == "" {
		return NewDummyProvider(conf)
	}
	return NewRESTProvider(logger, conf)
}

func (p *RESTProvider) request(method rest.Method, path string, query map[string]string, body interface{}) (rest.Request, error) {
	req := rest.Request{
		Method:  method,
		BaseURL: p.baseURL + path,
		Headers: map[string]string{
			"Authorization": "Bearer " + p.secret,
			"Accept":        "application/json",
		},
		QueryParams: query,
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return rest.Request{}, errors.Wrap(err, "encoding request")
		}
		req.Body = b
		req.Headers["Content-Type"] = "application/json"
	}
	return req, nil
}

func (p *RESTProvider) send(ctx context.Context, req rest.Request, dst interface{}) error {
	hreq, err := rest.BuildRequestObject(req)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	hres, err := rest.MakeRequest(hreq.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "calling bank")
	}
	res, err := rest.BuildResponse(hres)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if res.StatusCode >= http.StatusBadRequest {
		p.logger.Error(fmt.Sprintf("bank API - status: %d - body: %s", res.StatusCode, res.Body))
		return errors.Errorf("bank API responded with status %d", res.StatusCode)
	}
	if err = json.Unmarshal([]byte(res.Body), dst); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}

func (p *RESTProvider) CreateVirtualAccount(ctx context.Context, vr wallet.VirtualAccountRequest) (wallet.VirtualAccount, error) {
	req, err := p.request(rest.Post, "/virtual-accounts", nil, vr)
	if err != nil {
		return wallet.VirtualAccount{}, err
	}
	var res accountResponse
	if err = p.send(ctx, req, &res); err != nil {
		return wallet.VirtualAccount{}, errors.Wrap(err, "creating virtual account")
	}

	bankName := res.BankName
	if bankName == "" {
		bankName = p.bankName
	}
	return wallet.VirtualAccount{
		AccountNumber: res.AccountNumber,
		AccountName:   res.AccountName,
		BankName:      bankName,
	}, nil
}

func (p *RESTProvider) Statement(ctx context.Context, accountNumber string, from, to time.Time) ([]wallet.StatementEntry, error) {
	req, err := p.request(rest.Get, "/virtual-accounts/"+url.PathEscape(accountNumber)+"/transactions", map[string]string{
		"from": from.UTC().Format(time.RFC3339),
		"to":   to.UTC().Format(time.RFC3339),
	}, nil)
	if err != nil {
		return nil, err
	}
	var res statementResponse
	if err = p.send(ctx, req, &res); err != nil {
		return nil, errors.Wrap(err, "fetching statement")
	}

	entries := make([]wallet.StatementEntry, 0, len(res.Data))
	for _, d := range res.Data {
		entries = append(entries, wallet.StatementEntry{
			Reference:     d.Reference,
			AccountNumber: accountNumber,
			Amount:        d.Amount,
			Narration:     d.Narration,
			PaidAt:        d.PaidAt.UTC(),
		})
	}
	return entries, nil
}

func (p *RESTProvider) ParseWebhook(payload []byte, signature string) (wallet.StatementEntry, error) {
	return parseWebhook(p.secret, payload, signature)
}
