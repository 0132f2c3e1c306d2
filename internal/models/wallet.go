package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"miniapp-wallet-client/internal/apierror"
)

const DefaultCurrency = "USDT.TRC20"

func init() {
	// The backend expects JSON numbers for amounts.
	decimal.MarshalJSONWithoutQuotes = true
}

type Balance struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency,omitempty"`
}

type DepositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	ReturnURL string          `json:"return_url,omitempty"`
}

// DepositOrder is immutable once returned; settlement happens off-client.
type DepositOrder struct {
	TransactionID  string          `json:"transaction_id"`
	PaymentAddress string          `json:"payment_address"`
	PaymentURL     string          `json:"payment_url,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// WithdrawalRequest carries the destination address through unvalidated.
type WithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"wallet_address"`
	Currency      string          `json:"currency"`
}

type WithdrawalResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	// NewBalance is set when the server reports the post-withdrawal balance.
	NewBalance *decimal.Decimal `json:"new_balance,omitempty"`
}

// CurrencyLimits bounds deposit and withdrawal amounts for one currency.
type CurrencyLimits struct {
	Currency    string
	DepositMin  decimal.Decimal
	DepositMax  decimal.Decimal
	WithdrawMin decimal.Decimal
	WithdrawMax decimal.Decimal
}

// DefaultLimits returns the observed production bounds: 10..100000 for
// deposits and 10..50000 for withdrawals.
func DefaultLimits(currency string) CurrencyLimits {
	return CurrencyLimits{
		Currency:    currency,
		DepositMin:  decimal.NewFromInt(10),
		DepositMax:  decimal.NewFromInt(100000),
		WithdrawMin: decimal.NewFromInt(10),
		WithdrawMax: decimal.NewFromInt(50000),
	}
}

func (l CurrencyLimits) CheckDeposit(amount decimal.Decimal) error {
	return checkRange("deposit", amount, l.DepositMin, l.DepositMax, l.Currency)
}

func (l CurrencyLimits) CheckWithdrawal(amount decimal.Decimal) error {
	return checkRange("withdrawal", amount, l.WithdrawMin, l.WithdrawMax, l.Currency)
}

func checkRange(op string, amount, lo, hi decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return apierror.Validation("amount", fmt.Sprintf("%s amount must be positive", op))
	}
	if amount.LessThan(lo) {
		return apierror.Validation("amount", fmt.Sprintf("minimum %s is %s %s", op, lo, currency))
	}
	if amount.GreaterThan(hi) {
		return apierror.Validation("amount", fmt.Sprintf("maximum %s is %s %s", op, hi, currency))
	}
	return nil
}

// NormalizeCurrency upper-cases and trims a currency code; empty means default.
func NormalizeCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}
