package mockapi

import "github.com/shopspring/decimal"

// Broadcaster pushes ledger changes to connected clients.
type Broadcaster interface {
	BroadcastBalance(userID string, balance decimal.Decimal, currency string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastBalance(string, decimal.Decimal, string) {}
