package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/config"
	"miniapp-wallet-client/internal/logger"
	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/transport"
)

const (
	PathBalance      = "/api/wallet/balance"
	PathDeposit      = "/api/wallet/deposit"
	PathWithdraw     = "/api/wallet/withdraw"
	PathTransactions = "/api/wallet/transactions"
	PathTransaction  = "/api/wallet/transaction/"
)

type WalletService struct {
	client          *transport.Client
	cache           *BalanceCache
	limits          map[string]models.CurrencyLimits
	defaultCurrency string
}

// NewWalletService accepts the currencies the wallet may use. The first entry is
// the default; with none, the built-in USDT.TRC20 limits apply.
func NewWalletService(client *transport.Client, cache *BalanceCache, limits ...models.CurrencyLimits) *WalletService {
	if cache == nil {
		cache = NewBalanceCache()
	}
	if len(limits) == 0 {
		limits = []models.CurrencyLimits{models.DefaultLimits(models.DefaultCurrency)}
	}

	s := &WalletService{
		client: client,
		cache:  cache,
		limits: make(map[string]models.CurrencyLimits, len(limits)),
	}
	for i, l := range limits {
		l.Currency = models.NormalizeCurrency(l.Currency)
		s.limits[l.Currency] = l
		if i == 0 {
			s.defaultCurrency = l.Currency
		}
	}
	return s
}

// LimitsFromConfig builds the configured limits for DEFAULT_CURRENCY.
func LimitsFromConfig(cfg *config.Config) (models.CurrencyLimits, error) {
	depMin, depMax, err := cfg.DepositRange()
	if err != nil {
		return models.CurrencyLimits{}, err
	}
	wdMin, wdMax, err := cfg.WithdrawRange()
	if err != nil {
		return models.CurrencyLimits{}, err
	}
	return models.CurrencyLimits{
		Currency:    models.NormalizeCurrency(cfg.DefaultCurrency),
		DepositMin:  depMin,
		DepositMax:  depMax,
		WithdrawMin: wdMin,
		WithdrawMax: wdMax,
	}, nil
}

func (s *WalletService) Cache() *BalanceCache {
	return s.cache
}

func (s *WalletService) DefaultCurrency() string {
	return s.defaultCurrency
}

func (s *WalletService) limitsFor(currency string) (models.CurrencyLimits, string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		c = s.defaultCurrency
	}
	l, ok := s.limits[c]
	if !ok {
		return models.CurrencyLimits{}, c, apierror.Validation("currency", fmt.Sprintf("unsupported currency %s", c))
	}
	return l, c, nil
}

// GetBalance reads the authoritative balance and refreshes the cache.
func (s *WalletService) GetBalance(ctx context.Context) (*models.Balance, error) {
	var balance models.Balance
	if err := s.client.Do(ctx, transport.Request{Path: PathBalance}, &balance); err != nil {
		return nil, err
	}
	if balance.Currency == "" {
		balance.Currency = s.defaultCurrency
	}
	s.cache.Set(balance.Balance, balance.Currency)
	return &balance, nil
}

// Balance returns the cached balance while valid and refetches otherwise.
func (s *WalletService) Balance(ctx context.Context) (decimal.Decimal, error) {
	if b, ok := s.cache.Authoritative(); ok {
		return b, nil
	}
	balance, err := s.GetBalance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Balance, nil
}

type DepositOption func(*models.DepositRequest)

// WithReturnURL asks the payment page to redirect back to returnURL.
func WithReturnURL(returnURL string) DepositOption {
	return func(r *models.DepositRequest) {
		r.ReturnURL = returnURL
	}
}

// CreateDeposit opens a deposit order. It does not wait for settlement.
func (s *WalletService) CreateDeposit(ctx context.Context, amount decimal.Decimal, currency string, opts ...DepositOption) (*models.DepositOrder, error) {
	limits, currency, err := s.limitsFor(currency)
	if err != nil {
		return nil, err
	}
	if err := limits.CheckDeposit(amount); err != nil {
		return nil, err
	}

	req := models.DepositRequest{Amount: amount, Currency: currency}
	for _, opt := range opts {
		opt(&req)
	}

	var order models.DepositOrder
	err = s.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   PathDeposit,
		Body:   req,
	}, &order)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate()

	if order.Amount.IsZero() {
		order.Amount = amount
	}
	if order.Currency == "" {
		order.Currency = currency
	}

	logger.Info(ctx, "deposit order created",
		"transaction_id", order.TransactionID,
		"amount", models.FormatAmount(order.Amount, order.Currency),
	)
	return &order, nil
}

// CreateWithdrawal requests a payout to address. The address is passed through
// as given; the balance pre-check only runs against an authoritative cached value.
func (s *WalletService) CreateWithdrawal(ctx context.Context, amount decimal.Decimal, address, currency string) (*models.WithdrawalResult, error) {
	limits, currency, err := s.limitsFor(currency)
	if err != nil {
		return nil, err
	}
	if err := limits.CheckWithdrawal(amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(address) == "" {
		return nil, apierror.Validation("wallet_address", "destination address is required")
	}
	if balance, ok := s.cache.Authoritative(); ok && amount.GreaterThan(balance) {
		return nil, apierror.Validation("amount", fmt.Sprintf("insufficient balance: have %s, need %s",
			models.FormatAmount(balance, currency), models.FormatAmount(amount, currency)))
	}

	var result models.WithdrawalResult
	err = s.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   PathWithdraw,
		Body: models.WithdrawalRequest{
			Amount:        amount,
			WalletAddress: address,
			Currency:      currency,
		},
	}, &result)
	if err != nil {
		return nil, err
	}

	if result.NewBalance != nil {
		s.cache.Set(*result.NewBalance, currency)
	} else {
		s.cache.Invalidate()
	}

	logger.Info(ctx, "withdrawal requested",
		"transaction_id", result.TransactionID,
		"status", result.Status,
		"amount", models.FormatAmount(amount, currency),
	)
	return &result, nil
}

// ListTransactions fetches exactly the requested page.
func (s *WalletService) ListTransactions(ctx context.Context, query models.TransactionQuery) (*models.TransactionPage, error) {
	q, err := query.Normalize()
	if err != nil {
		return nil, err
	}

	var page models.TransactionPage
	err = s.client.Do(ctx, transport.Request{
		Path:  PathTransactions,
		Query: q.Values(),
	}, &page)
	if err != nil {
		return nil, err
	}

	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.Page != q.Page {
		return nil, apierror.API(0, "PAGE_MISMATCH", fmt.Sprintf("requested page %d but server returned page %d", q.Page, page.Page))
	}
	if page.Limit == 0 {
		page.Limit = q.Limit
	}
	if page.Transactions == nil {
		page.Transactions = []models.Transaction{}
	}
	return &page, nil
}

func (s *WalletService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apierror.Validation("id", "transaction id is required")
	}

	var tx models.Transaction
	err := s.client.Do(ctx, transport.Request{
		Path:  PathTransaction + url.PathEscape(id),
		Route: PathTransaction + ":id",
	}, &tx)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
