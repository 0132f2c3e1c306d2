package models

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"miniapp-wallet-client/internal/apierror"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeBet        TransactionType = "bet"
	TransactionTypeWin        TransactionType = "win"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeBet, TransactionTypeWin:
		return true
	}
	return false
}

// Transaction is read-only on the client. Amount is signed: debits are negative.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// TransactionQuery selects one page of history. Zero Page and Limit take defaults.
type TransactionQuery struct {
	Page  int
	Limit int
	Type  TransactionType
}

func (q TransactionQuery) Normalize() (TransactionQuery, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Page < 1 {
		return q, apierror.Validation("page", "page must be at least 1")
	}
	if q.Limit < 1 || q.Limit > MaxPageLimit {
		return q, apierror.Validation("limit", fmt.Sprintf("limit must be between 1 and %d", MaxPageLimit))
	}
	if q.Type != "" && !q.Type.Valid() {
		return q, apierror.Validation("type", fmt.Sprintf("unknown transaction type %q", q.Type))
	}
	return q, nil
}

func (q TransactionQuery) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Type != "" {
		v.Set("type", string(q.Type))
	}
	return v
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
}

// HasMore reports whether pages after this one exist.
func (p *TransactionPage) HasMore() bool {
	return p.Page*p.Limit < p.Total
}
