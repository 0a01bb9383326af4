package memory

import (
	"auction-engine/internal/domain"
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

type WalletEntry struct {
	Ref    string
	UserID string
	Amount decimal.Decimal
}

// Wallet is an in-process ledger with reference based idempotency.
type Wallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	applied  map[string]WalletEntry
	entries  []WalletEntry
}

func NewWallet() *Wallet {
	return &Wallet{
		balances: make(map[string]decimal.Decimal),
		applied:  make(map[string]WalletEntry),
	}
}

// Deposit funds a user outside of any auction.
func (w *Wallet) Deposit(userID string, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = w.balances[userID].Add(amount)
}

func (w *Wallet) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID], nil
}

func (w *Wallet) Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative debit", domain.ErrInvalidAmount)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, done := w.applied[ref]; done {
		return nil
	}
	balance := w.balances[userID]
	if balance.LessThan(amount) {
		return &domain.InsufficientFundsError{Required: amount, Balance: balance}
	}
	w.apply(WalletEntry{Ref: ref, UserID: userID, Amount: amount.Neg()})
	return nil
}

func (w *Wallet) Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative credit", domain.ErrInvalidAmount)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, done := w.applied[ref]; done {
		return nil
	}
	w.apply(WalletEntry{Ref: ref, UserID: userID, Amount: amount})
	return nil
}

func (w *Wallet) apply(e WalletEntry) {
	w.balances[e.UserID] = w.balances[e.UserID].Add(e.Amount)
	w.applied[e.Ref] = e
	w.entries = append(w.entries, e)
}

// Entries returns every applied movement in order.
func (w *Wallet) Entries() []WalletEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WalletEntry, len(w.entries))
	copy(out, w.entries)
	return out
}
