package services

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot is a point-in-time view of the cached balance. Valid is true
// only while the value is the last authoritative server reading with no local
// changes applied since.
type BalanceSnapshot struct {
	Balance   decimal.Decimal
	Currency  string
	Valid     bool
	UpdatedAt time.Time
	// Pending is the sum of optimistic changes applied since the last reading.
	Pending decimal.Decimal
}

// BalanceCache holds the client's copy of the server balance. Any local
// mutation marks it stale so the next read goes back to the server.
type BalanceCache struct {
	mu        sync.RWMutex
	balance   decimal.Decimal
	currency  string
	known     bool
	valid     bool
	pending   decimal.Decimal
	updatedAt time.Time
	listeners []func(BalanceSnapshot)
}

func NewBalanceCache() *BalanceCache {
	return &BalanceCache{}
}

// Set records an authoritative value from the server.
func (c *BalanceCache) Set(balance decimal.Decimal, currency string) {
	c.mu.Lock()
	c.balance = balance
	if currency != "" {
		c.currency = currency
	}
	c.known = true
	c.valid = true
	c.pending = decimal.Zero
	c.updatedAt = time.Now()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// Apply adds delta locally (negative for a stake, positive for a payout) and
// marks the cache stale. It returns the resulting snapshot.
func (c *BalanceCache) Apply(delta decimal.Decimal) BalanceSnapshot {
	c.mu.Lock()
	c.balance = c.balance.Add(delta)
	c.pending = c.pending.Add(delta)
	c.valid = false
	c.updatedAt = time.Now()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return snap
}

// Invalidate keeps the last value for display but forces a refetch.
func (c *BalanceCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// Reset forgets everything, e.g. after logout.
func (c *BalanceCache) Reset() {
	c.mu.Lock()
	c.balance = decimal.Zero
	c.currency = ""
	c.known = false
	c.valid = false
	c.pending = decimal.Zero
	c.updatedAt = time.Time{}
	c.mu.Unlock()
}

// Snapshot returns the cached view and whether any value is known at all.
func (c *BalanceCache) Snapshot() (BalanceSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked(), c.known
}

// Authoritative returns the balance only while it is valid.
func (c *BalanceCache) Authoritative() (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balance, c.valid
}

// OnChange registers fn for every Set and Apply.
func (c *BalanceCache) OnChange(fn func(BalanceSnapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *BalanceCache) snapshotLocked() BalanceSnapshot {
	return BalanceSnapshot{
		Balance:   c.balance,
		Currency:  c.currency,
		Valid:     c.valid,
		UpdatedAt: c.updatedAt,
		Pending:   c.pending,
	}
}

func (c *BalanceCache) notify(snap BalanceSnapshot) {
	c.mu.RLock()
	listeners := make([]func(BalanceSnapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
