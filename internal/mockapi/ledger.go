package mockapi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"miniapp-wallet-client/internal/models"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDepositSettled      = errors.New("deposit already settled")
	ErrRefreshInvalid      = errors.New("invalid or expired refresh token")
)

type account struct {
	user     models.User
	balance  decimal.Decimal
	txs      []*models.Transaction
	deposits map[string]*models.Transaction
}

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

// Ledger is the mock backend's in-memory state.
type Ledger struct {
	mu           sync.RWMutex
	accounts     map[string]*account
	refresh      map[string]refreshEntry
	currency     string
	startBalance decimal.Decimal
	broadcaster  Broadcaster
	now          func() time.Time
}

func NewLedger(currency string, startBalance decimal.Decimal) *Ledger {
	return &Ledger{
		accounts:     make(map[string]*account),
		refresh:      make(map[string]refreshEntry),
		currency:     currency,
		startBalance: startBalance,
		broadcaster:  nopBroadcaster{},
		now:          time.Now,
	}
}

func (l *Ledger) SetBroadcaster(b Broadcaster) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcaster = b
}

// UpsertUser creates the account on first sight and refreshes profile fields after.
func (l *Ledger) UpsertUser(user models.User) models.User {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[user.ID.String()]
	if !ok {
		acc = &account{
			balance:  l.startBalance,
			deposits: make(map[string]*models.Transaction),
		}
		l.accounts[user.ID.String()] = acc
	}
	acc.user = user
	acc.user.Balance = acc.balance
	return acc.user
}

func (l *Ledger) User(userID string) (models.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[userID]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	u := acc.user
	u.Balance = acc.balance
	return u, nil
}

func (l *Ledger) Balance(userID string) (models.Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[userID]
	if !ok {
		return models.Balance{}, ErrUserNotFound
	}
	return models.Balance{Balance: acc.balance, Currency: l.currency}, nil
}

func (l *Ledger) CreateDeposit(userID string, amount decimal.Decimal, currency string) (*models.DepositOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	tx := l.newTransaction(models.TransactionTypeDeposit, amount, currency, "pending")
	acc.txs = append(acc.txs, tx)
	acc.deposits[tx.ID] = tx

	return &models.DepositOrder{
		TransactionID:  tx.ID,
		PaymentAddress: paymentAddress(tx.ID),
		PaymentURL:     fmt.Sprintf("https://pay.example.com/invoice/%s", tx.ID),
		Amount:         amount,
		Currency:       currency,
	}, nil
}

// SettleDeposit credits a pending deposit, as the payment processor webhook would.
func (l *Ledger) SettleDeposit(userID, txID string) (decimal.Decimal, error) {
	l.mu.Lock()
	acc, ok := l.accounts[userID]
	if !ok {
		l.mu.Unlock()
		return decimal.Zero, ErrUserNotFound
	}
	tx, ok := acc.deposits[txID]
	if !ok {
		l.mu.Unlock()
		return decimal.Zero, ErrTransactionNotFound
	}
	if tx.Status != "pending" {
		l.mu.Unlock()
		return decimal.Zero, ErrDepositSettled
	}
	tx.Status = "completed"
	acc.balance = acc.balance.Add(tx.Amount)
	balance := acc.balance
	b := l.broadcaster
	l.mu.Unlock()

	b.BroadcastBalance(userID, balance, l.currency)
	return balance, nil
}

func (l *Ledger) Withdraw(userID string, amount decimal.Decimal, currency string) (*models.WithdrawalResult, error) {
	l.mu.Lock()
	acc, ok := l.accounts[userID]
	if !ok {
		l.mu.Unlock()
		return nil, ErrUserNotFound
	}
	if amount.GreaterThan(acc.balance) {
		l.mu.Unlock()
		return nil, ErrInsufficientBalance
	}

	acc.balance = acc.balance.Sub(amount)
	tx := l.newTransaction(models.TransactionTypeWithdrawal, amount.Neg(), currency, "pending")
	acc.txs = append(acc.txs, tx)
	balance := acc.balance
	b := l.broadcaster
	l.mu.Unlock()

	b.BroadcastBalance(userID, balance, l.currency)
	return &models.WithdrawalResult{
		TransactionID: tx.ID,
		Status:        tx.Status,
		NewBalance:    &balance,
	}, nil
}

// Transactions returns one page, newest first.
func (l *Ledger) Transactions(userID string, q models.TransactionQuery) (*models.TransactionPage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	filtered := make([]models.Transaction, 0, len(acc.txs))
	for i := len(acc.txs) - 1; i >= 0; i-- {
		tx := acc.txs[i]
		if q.Type != "" && tx.Type != q.Type {
			continue
		}
		filtered = append(filtered, *tx)
	}

	page := &models.TransactionPage{
		Transactions: []models.Transaction{},
		Total:        len(filtered),
		Page:         q.Page,
		Limit:        q.Limit,
	}
	start := (q.Page - 1) * q.Limit
	if start < len(filtered) {
		end := start + q.Limit
		if end > len(filtered) {
			end = len(filtered)
		}
		page.Transactions = filtered[start:end]
	}
	return page, nil
}

func (l *Ledger) Transaction(userID, txID string) (*models.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	for _, tx := range acc.txs {
		if tx.ID == txID {
			out := *tx
			return &out, nil
		}
	}
	return nil, ErrTransactionNotFound
}

// IssueRefreshToken returns a new opaque refresh token for userID.
func (l *Ledger) IssueRefreshToken(userID string, ttl time.Duration) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	token := uuid.NewString()
	l.refresh[token] = refreshEntry{userID: userID, expiresAt: l.now().Add(ttl)}
	return token
}

// RotateRefreshToken consumes token and issues its replacement.
func (l *Ledger) RotateRefreshToken(token string, ttl time.Duration) (userID, next string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.refresh[token]
	delete(l.refresh, token)
	if !ok || l.now().After(entry.expiresAt) {
		return "", "", ErrRefreshInvalid
	}

	next = uuid.NewString()
	l.refresh[next] = refreshEntry{userID: entry.userID, expiresAt: l.now().Add(ttl)}
	return entry.userID, next, nil
}

func (l *Ledger) newTransaction(kind models.TransactionType, amount decimal.Decimal, currency, status string) *models.Transaction {
	return &models.Transaction{
		ID:        models.GenerateTransactionID(),
		Type:      kind,
		Amount:    amount,
		Currency:  currency,
		Status:    status,
		CreatedAt: l.now().UTC(),
	}
}

// paymentAddress derives a stable TRON-style address for a deposit.
func paymentAddress(txID string) string {
	a := uuid.NewSHA1(uuid.NameSpaceOID, []byte(txID))
	b := uuid.NewSHA1(a, []byte(txID))
	hex := strings.ReplaceAll(a.String()+b.String(), "-", "")
	return "T" + hex[:33]
}
