package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrAuctionNotFound      = errors.New("auction not found")
	ErrInvalidState         = errors.New("invalid auction state")
	ErrBidTooLow            = errors.New("bid too low")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrConcurrencyConflict  = errors.New("concurrent modification")
	ErrSettlementIncomplete = errors.New("settlement incomplete")
	ErrInvalidAuction       = errors.New("invalid auction")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrForbidden            = errors.New("forbidden")
)

// BidTooLowError carries the minimum acceptable amount back to the bidder.
type BidTooLowError struct {
	Amount  decimal.Decimal
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: %s is below the minimum of %s", e.Amount, e.Minimum)
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

type InsufficientFundsError struct {
	Required decimal.Decimal
	Balance  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, required %s", e.Balance, e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Balance)
}

func invalidState(a *Auction, op string) error {
	return fmt.Errorf("%w: cannot %s auction %s in status %s", ErrInvalidState, op, a.ID, a.Status)
}
