package echoapi

import (
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
	bankingsvc "github.com/trezcool/shule/services/banking"
)

// max size of a bank notification
const webhookBodyLimit = 64 << 10

type walletApi struct {
	svc      *wallet.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerWalletAPI(g *echo.Group, jwt, limit echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := walletApi{svc: deps.WalletSvc, auth: auth, validate: deps.Validate}

	g.POST("/banking/webhook", api.webhook, limit)

	wg := g.Group("/wallets", jwt)
	wg.GET("/me", api.me, roleMiddleware(user.RoleParent))
	wg.GET("/me/transactions", api.myTransactions, roleMiddleware(user.RoleParent))

	fg := wg.Group("", roleMiddleware(user.RoleFinance))
	fg.GET("", api.query)
	fg.GET("/:id", api.retrieve)
	fg.GET("/:id/transactions", api.transactions)
	fg.POST("/:id/credit", api.credit)
	fg.POST("/:id/reconcile", api.reconcile)
}

func (api *walletApi) webhook(ctx echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request().Body, webhookBodyLimit))
	if err != nil {
		return errors.Wrap(err, "reading notification")
	}
	txn, err := api.svc.HandleWebhook(ctx.Request().Context(), payload, ctx.Request().Header.Get(bankingsvc.SignatureHeader))
	if err != nil {
		if errors.Cause(err) == wallet.ErrInvalidSignature {
			return errInvalidSignature
		}
		return err
	}
	return ctx.JSON(http.StatusOK, txn)
}

func (api *walletApi) contextWallet(ctx echo.Context) (wallet.Wallet, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return wallet.Wallet{}, err
	}
	return api.svc.GetByOwner(ctx.Request().Context(), usr.ID)
}

func (api *walletApi) me(ctx echo.Context) error {
	w, err := api.contextWallet(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, w)
}

func (api *walletApi) myTransactions(ctx echo.Context) error {
	w, err := api.contextWallet(ctx)
	if err != nil {
		return err
	}
	return api.listTransactions(ctx, w.ID)
}

func (api *walletApi) query(ctx echo.Context) error {
	wallets, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying wallets")
	}
	return ctx.JSON(http.StatusOK, wallets)
}

func (api *walletApi) retrieve(ctx echo.Context) error {
	w, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, w)
}

func (api *walletApi) transactions(ctx echo.Context) error {
	w, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return api.listTransactions(ctx, w.ID)
}

func (api *walletApi) listTransactions(ctx echo.Context, walletID string) error {
	q := newQuery(ctx)
	filter := wallet.TransactionFilter{
		Type:   q.String("type"),
		Status: q.String("status"),
		From:   q.Time("from"),
		To:     q.Time("to"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	txns, err := api.svc.Transactions(ctx.Request().Context(), walletID, filter)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	return ctx.JSON(http.StatusOK, txns)
}

// credit records funds received out of band (cash, cheque...).
func (api *walletApi) credit(ctx echo.Context) error {
	var data wallet.Movement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Movement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	txn, err := api.svc.Credit(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, txn)
}

func (api *walletApi) reconcile(ctx echo.Context) error {
	q := newQuery(ctx)
	from, to := q.Time("from"), q.Time("to")
	fix := q.Bool("fix")
	if err := q.Err(); err != nil {
		return err
	}
	report, err := api.svc.Reconcile(ctx.Request().Context(), ctx.Param("id"), from, to, fix != nil && *fix)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}
