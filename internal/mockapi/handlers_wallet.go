package mockapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/models"
)

type WalletHandler struct {
	ledger *Ledger
	limits models.CurrencyLimits
}

func NewWalletHandler(ledger *Ledger, limits models.CurrencyLimits) *WalletHandler {
	return &WalletHandler{ledger: ledger, limits: limits}
}

func (h *WalletHandler) GetBalance(c *gin.Context) {
	balance, err := h.ledger.Balance(c.GetString(ctxUserID))
	if err != nil {
		ledgerFailure(c, err)
		return
	}
	respond(c, http.StatusOK, balance)
}

// currency resolves the requested currency; only the configured one is served.
func (h *WalletHandler) currency(c *gin.Context, requested string) (string, bool) {
	currency := models.NormalizeCurrency(requested)
	if strings.TrimSpace(requested) == "" {
		currency = h.limits.Currency
	}
	if currency != h.limits.Currency {
		fail(c, http.StatusUnprocessableEntity, "UNSUPPORTED_CURRENCY", "Unsupported currency "+currency)
		return "", false
	}
	return currency, true
}

func (h *WalletHandler) CreateDeposit(c *gin.Context) {
	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	currency, ok := h.currency(c, req.Currency)
	if !ok {
		return
	}
	if err := h.limits.CheckDeposit(req.Amount); err != nil {
		validationFailure(c, err)
		return
	}

	order, err := h.ledger.CreateDeposit(c.GetString(ctxUserID), req.Amount, currency)
	if err != nil {
		ledgerFailure(c, err)
		return
	}
	if req.ReturnURL != "" {
		order.PaymentURL += "?return_url=" + url.QueryEscape(req.ReturnURL)
	}
	respond(c, http.StatusCreated, order)
}

func (h *WalletHandler) CreateWithdrawal(c *gin.Context) {
	var req models.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" {
		fail(c, http.StatusBadRequest, "BAD_REQUEST", "wallet_address is required")
		return
	}
	currency, ok := h.currency(c, req.Currency)
	if !ok {
		return
	}
	if err := h.limits.CheckWithdrawal(req.Amount); err != nil {
		validationFailure(c, err)
		return
	}

	result, err := h.ledger.Withdraw(c.GetString(ctxUserID), req.Amount, currency)
	if err != nil {
		ledgerFailure(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

func (h *WalletHandler) ListTransactions(c *gin.Context) {
	var q models.TransactionQuery
	var err error
	if s := c.Query("page"); s != "" {
		if q.Page, err = strconv.Atoi(s); err != nil {
			fail(c, http.StatusBadRequest, "BAD_REQUEST", "page must be an integer")
			return
		}
	}
	if s := c.Query("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil {
			fail(c, http.StatusBadRequest, "BAD_REQUEST", "limit must be an integer")
			return
		}
	}
	q.Type = models.TransactionType(c.Query("type"))

	q, err = q.Normalize()
	if err != nil {
		fail(c, http.StatusBadRequest, "BAD_REQUEST", errMessage(err))
		return
	}

	page, err := h.ledger.Transactions(c.GetString(ctxUserID), q)
	if err != nil {
		ledgerFailure(c, err)
		return
	}
	respond(c, http.StatusOK, page)
}

func (h *WalletHandler) GetTransaction(c *gin.Context) {
	tx, err := h.ledger.Transaction(c.GetString(ctxUserID), c.Param("id"))
	if err != nil {
		ledgerFailure(c, err)
		return
	}
	respond(c, http.StatusOK, tx)
}

// SettleDeposit stands in for the payment processor confirming a deposit.
func (h *WalletHandler) SettleDeposit(c *gin.Context) {
	balance, err := h.ledger.SettleDeposit(c.GetString(ctxUserID), c.Param("id"))
	if err != nil {
		ledgerFailure(c, err)
		return
	}
	respond(c, http.StatusOK, models.Balance{Balance: balance, Currency: h.limits.Currency})
}

func validationFailure(c *gin.Context, err error) {
	fail(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", errMessage(err))
}

func errMessage(err error) string {
	var e *apierror.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func ledgerFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unknown account")
	case errors.Is(err, ErrTransactionNotFound):
		fail(c, http.StatusNotFound, "NOT_FOUND", "Transaction not found")
	case errors.Is(err, ErrInsufficientBalance):
		fail(c, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", "Insufficient balance")
	case errors.Is(err, ErrDepositSettled):
		fail(c, http.StatusConflict, "ALREADY_SETTLED", "Deposit already settled")
	default:
		fail(c, http.StatusInternalServerError, "INTERNAL", "Internal error")
	}
}
