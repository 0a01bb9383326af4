package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MoneyScale is the number of decimal places the ledger keeps.
const MoneyScale = 4

type NewAuctionParams struct {
	ID               string
	ProductRef       string
	Title            string
	Description      string
	StartPrice       decimal.Decimal
	ReservePrice     decimal.NullDecimal
	BidIncrement     decimal.Decimal
	StartTime        time.Time
	EndTime          time.Time
	FeePercentage    decimal.Decimal
	AutoExtend       bool
	ExtensionMinutes int
}

func NewAuction(p NewAuctionParams, now time.Time) (*Auction, error) {
	switch {
	case p.ID == "":
		return nil, fmt.Errorf("%w: id is required", ErrInvalidAuction)
	case !p.EndTime.After(p.StartTime):
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidAuction)
	case !p.StartPrice.IsPositive():
		return nil, fmt.Errorf("%w: start price must be positive", ErrInvalidAuction)
	case p.BidIncrement.LessThan(decimal.NewFromInt(1)):
		return nil, fmt.Errorf("%w: bid increment must be at least 1", ErrInvalidAuction)
	case p.FeePercentage.IsNegative() || p.FeePercentage.GreaterThan(hundred):
		return nil, fmt.Errorf("%w: fee percentage must be within 0..100", ErrInvalidAuction)
	case p.ExtensionMinutes < 1:
		return nil, fmt.Errorf("%w: extension minutes must be at least 1", ErrInvalidAuction)
	case p.ReservePrice.Valid && p.ReservePrice.Decimal.IsNegative():
		return nil, fmt.Errorf("%w: reserve price must not be negative", ErrInvalidAuction)
	}

	a := &Auction{
		ID:               p.ID,
		ProductRef:       p.ProductRef,
		Title:            p.Title,
		Description:      p.Description,
		StartPrice:       p.StartPrice,
		ReservePrice:     p.ReservePrice,
		BidIncrement:     p.BidIncrement,
		CurrentTopBid:    decimal.Zero,
		StartTime:        p.StartTime,
		EndTime:          p.EndTime,
		Status:           AuctionUpcoming,
		FeePercentage:    p.FeePercentage,
		AutoExtend:       p.AutoExtend,
		ExtensionMinutes: p.ExtensionMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	a.Reconcile(now)
	return a, nil
}

// Reconcile derives Upcoming/Active/Ended from the clock. Statuses set by
// settlement or cancellation are never touched. It reports whether the
// status changed.
func (a *Auction) Reconcile(now time.Time) bool {
	if a.Status != AuctionUpcoming && a.Status != AuctionActive {
		return false
	}

	next := AuctionUpcoming
	switch {
	case !now.Before(a.EndTime):
		next = AuctionEnded
	case !now.Before(a.StartTime):
		next = AuctionActive
	}
	if next == a.Status {
		return false
	}
	a.Status = next
	a.UpdatedAt = now
	return true
}

func (a *Auction) MinimumBid() decimal.Decimal {
	if a.CurrentTopBidderID == "" {
		return a.StartPrice
	}
	return a.CurrentTopBid.Add(a.BidIncrement)
}

// ValidateBid runs the checks PlaceBid would run without mutating anything.
func (a *Auction) ValidateBid(amount decimal.Decimal) error {
	if a.Status != AuctionActive {
		return invalidState(a, "bid on")
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: bid amount must be positive", ErrInvalidAmount)
	}
	if min := a.MinimumBid(); amount.LessThan(min) {
		return &BidTooLowError{Amount: amount, Minimum: min}
	}
	return nil
}

type BidPlacement struct {
	Bid      Bid
	Seq      int
	Extended bool
	// PreviousTopBidderID is the bidder who just got outbid, if any.
	PreviousTopBidderID string
}

// PlaceBid records a bid on an active auction. The caller is expected to have
// called Reconcile with the same clock reading.
func (a *Auction) PlaceBid(bidderID string, amount decimal.Decimal, now time.Time) (*BidPlacement, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("%w: bidder is required", ErrInvalidAmount)
	}
	if err := a.ValidateBid(amount); err != nil {
		return nil, err
	}

	bid := Bid{
		BidderID: bidderID,
		Amount:   amount,
		PlacedAt: now,
		Status:   BidActive,
	}
	placement := &BidPlacement{
		Bid:                 bid,
		Seq:                 len(a.Bids),
		PreviousTopBidderID: a.CurrentTopBidderID,
	}

	a.Bids = append(a.Bids, bid)
	a.BidCount++
	a.CurrentTopBid = amount
	a.CurrentTopBidderID = bidderID
	a.UpdatedAt = now

	if a.AutoExtend {
		window := time.Duration(a.ExtensionMinutes) * time.Minute
		if a.EndTime.Sub(now) <= window {
			a.EndTime = a.EndTime.Add(window)
			extendedAt := now
			a.LastExtensionTime = &extendedAt
			placement.Extended = true
		}
	}

	return placement, nil
}

func (a *Auction) reserveMet() bool {
	return !a.ReservePrice.Valid || a.CurrentTopBid.GreaterThanOrEqual(a.ReservePrice.Decimal)
}

// DecideOutcome moves an Ended auction to Completed or Expired. It returns
// true when a winner was declared by this call.
func (a *Auction) DecideOutcome(now time.Time) (bool, error) {
	if a.IsProcessed {
		return false, invalidState(a, "settle")
	}
	switch a.Status {
	case AuctionCompleted, AuctionExpired, AuctionCancelled:
		// already decided, only refunds may be outstanding
		return false, nil
	case AuctionEnded:
	default:
		return false, invalidState(a, "settle")
	}

	a.UpdatedAt = now
	if a.BidCount == 0 || !a.CurrentTopBid.IsPositive() || !a.reserveMet() {
		a.Status = AuctionExpired
		return false, nil
	}

	for i := range a.Bids {
		b := &a.Bids[i]
		if b.Status == BidActive && b.BidderID == a.CurrentTopBidderID && b.Amount.Equal(a.CurrentTopBid) {
			b.Status = BidWinning
			a.WinnerID = b.BidderID
			a.WinningBid = decimal.NewNullDecimal(b.Amount)
			a.Status = AuctionCompleted
			return true, nil
		}
	}

	return false, fmt.Errorf("%w: top bid of auction %s has no matching active bid", ErrInvalidState, a.ID)
}

// Cancel marks the auction cancelled. Refunding the held bids is left to the
// caller.
func (a *Auction) Cancel(now time.Time) error {
	if a.IsProcessed {
		return invalidState(a, "cancel")
	}
	switch a.Status {
	case AuctionUpcoming, AuctionActive, AuctionEnded:
	default:
		return invalidState(a, "cancel")
	}
	a.Status = AuctionCancelled
	a.UpdatedAt = now
	return nil
}

// RefundCandidates lists the positions of bids still holding escrowed funds
// that are not the winning bid.
func (a *Auction) RefundCandidates() []int {
	var idx []int
	for i, b := range a.Bids {
		if b.Status == BidActive {
			idx = append(idx, i)
		}
	}
	return idx
}

// RefundFor splits a bid into the platform fee and the amount returned.
// The fee is amount * feePercentage / 100, rounded only beyond MoneyScale;
// the refund is the exact remainder.
func (a *Auction) RefundFor(b Bid) (fee, refund decimal.Decimal) {
	fee = b.Amount.Mul(a.FeePercentage).Div(hundred).Round(MoneyScale)
	return fee, b.Amount.Sub(fee)
}

func (a *Auction) MarkRefunded(i int, ref string, now time.Time) error {
	if i < 0 || i >= len(a.Bids) {
		return fmt.Errorf("%w: bid %d out of range", ErrInvalidState, i)
	}
	b := &a.Bids[i]
	if b.Status != BidActive {
		return fmt.Errorf("%w: bid %d of auction %s is %s", ErrInvalidState, i, a.ID, b.Status)
	}
	refundedAt := now
	b.Status = BidRefunded
	b.RefundRef = ref
	b.RefundedAt = &refundedAt
	a.UpdatedAt = now
	a.recomputeTop()
	return nil
}

// recomputeTop keeps the top bid in line with the bids that still hold funds.
func (a *Auction) recomputeTop() {
	top := decimal.Zero
	bidder := ""
	for _, b := range a.Bids {
		if b.Status == BidRefunded {
			continue
		}
		if b.Amount.GreaterThan(top) {
			top = b.Amount
			bidder = b.BidderID
		}
	}
	a.CurrentTopBid = top
	a.CurrentTopBidderID = bidder
}

// MarkProcessed closes the auction for good once nothing is left to refund.
func (a *Auction) MarkProcessed(now time.Time) bool {
	if len(a.RefundCandidates()) > 0 {
		return false
	}
	a.IsProcessed = true
	a.UpdatedAt = now
	return true
}

func (a *Auction) WinningBidIndex() int {
	for i, b := range a.Bids {
		if b.Status == BidWinning {
			return i
		}
	}
	return -1
}

func (a *Auction) CheckInvariants() error {
	top := decimal.Zero
	bidder := ""
	prev := decimal.Zero
	winners := 0
	for i, b := range a.Bids {
		if !b.Amount.IsPositive() {
			return fmt.Errorf("bid %d has non-positive amount %s", i, b.Amount)
		}
		if i == 0 && b.Amount.LessThan(a.StartPrice) {
			return fmt.Errorf("first bid %s is below start price %s", b.Amount, a.StartPrice)
		}
		if i > 0 && b.Amount.LessThan(prev.Add(a.BidIncrement)) {
			return fmt.Errorf("bid %d amount %s is below %s plus increment", i, b.Amount, prev)
		}
		prev = b.Amount
		if b.Status == BidWinning {
			winners++
		}
		if b.Status != BidRefunded && b.Amount.GreaterThan(top) {
			top = b.Amount
			bidder = b.BidderID
		}
	}

	switch {
	case !a.CurrentTopBid.Equal(top):
		return fmt.Errorf("top bid %s does not match highest held bid %s", a.CurrentTopBid, top)
	case a.CurrentTopBidderID != bidder:
		return fmt.Errorf("top bidder %q does not match %q", a.CurrentTopBidderID, bidder)
	case winners > 1:
		return fmt.Errorf("%d winning bids", winners)
	case winners == 1 && a.Status != AuctionCompleted:
		return fmt.Errorf("winning bid on auction in status %s", a.Status)
	case a.BidCount != len(a.Bids):
		return fmt.Errorf("bid count %d does not match %d bids", a.BidCount, len(a.Bids))
	case a.IsProcessed && len(a.RefundCandidates()) > 0:
		return fmt.Errorf("processed auction still holds %d active bids", len(a.RefundCandidates()))
	}
	return nil
}

func (a *Auction) Clone() *Auction {
	c := *a
	if a.Bids != nil {
		c.Bids = make([]Bid, len(a.Bids))
		for i, b := range a.Bids {
			if b.RefundedAt != nil {
				t := *b.RefundedAt
				b.RefundedAt = &t
			}
			c.Bids[i] = b
		}
	}
	if a.LastExtensionTime != nil {
		t := *a.LastExtensionTime
		c.LastExtensionTime = &t
	}
	return &c
}

// HasBidFrom reports whether the bidder ever bid on the auction.
func (a *Auction) HasBidFrom(bidderID string) bool {
	for _, b := range a.Bids {
		if b.BidderID == bidderID {
			return true
		}
	}
	return false
}
