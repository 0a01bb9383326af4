package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the external ledger holding bidder funds. Every movement carries
// a reference; replaying a reference that was already applied is a no-op.
type Wallet interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	// Debit fails with ErrInsufficientFunds when the balance is too small.
	Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error
}

// EscrowReversal is a bid debit that may be held with no bid behind it,
// either because the debit's outcome is unknown or because crediting it
// back failed. Replaying it debits Ref again, which is a no-op when the
// first debit landed, and then credits ReversalRef, so the bidder ends up
// whole in both cases.
type EscrowReversal struct {
	Ref       string
	UserID    string
	Amount    decimal.Decimal
	Reason    string
	CreatedAt time.Time
}

func (r *EscrowReversal) ReversalRef() string {
	return r.Ref + "_reversal"
}

type EscrowReversalStore interface {
	// SaveReversal is idempotent on Ref.
	SaveReversal(ctx context.Context, reversal *EscrowReversal) error
	ListReversals(ctx context.Context, limit int) ([]*EscrowReversal, error)
	DeleteReversal(ctx context.Context, ref string) error
}
