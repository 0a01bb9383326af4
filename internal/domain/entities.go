package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Auction is the aggregate root: the listing, its bid history and the
// settlement state. Every change goes through its methods and is persisted
// as a whole under Version.
type Auction struct {
	ID                 string
	ProductRef         string
	Title              string
	Description        string
	StartPrice         decimal.Decimal
	ReservePrice       decimal.NullDecimal
	BidIncrement       decimal.Decimal
	CurrentTopBid      decimal.Decimal
	CurrentTopBidderID string
	StartTime          time.Time
	EndTime            time.Time
	Status             AuctionStatus
	Bids               []Bid
	BidCount           int
	FeePercentage      decimal.Decimal
	AutoExtend         bool
	ExtensionMinutes   int
	LastExtensionTime  *time.Time
	WinnerID           string
	WinningBid         decimal.NullDecimal
	IsProcessed        bool
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AuctionStatus is the stored lifecycle state. Upcoming, Active and Ended
// follow from the clock; the rest are outcomes written by settlement or
// cancellation.
type AuctionStatus int

const (
	AuctionUpcoming AuctionStatus = iota
	AuctionActive
	AuctionEnded
	AuctionCompleted
	AuctionExpired
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionUpcoming:
		return "upcoming"
	case AuctionActive:
		return "active"
	case AuctionEnded:
		return "ended"
	case AuctionCompleted:
		return "completed"
	case AuctionExpired:
		return "expired"
	case AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the auction no longer accepts bids.
func (s AuctionStatus) IsTerminal() bool {
	return s != AuctionUpcoming && s != AuctionActive
}

// IsDecided reports whether the outcome of the auction has been written.
func (s AuctionStatus) IsDecided() bool {
	return s == AuctionCompleted || s == AuctionExpired || s == AuctionCancelled
}

// ParseAuctionStatus accepts the lower-case names used by the API.
func ParseAuctionStatus(s string) (AuctionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upcoming":
		return AuctionUpcoming, nil
	case "active":
		return AuctionActive, nil
	case "ended":
		return AuctionEnded, nil
	case "completed":
		return AuctionCompleted, nil
	case "expired":
		return AuctionExpired, nil
	case "cancelled":
		return AuctionCancelled, nil
	default:
		return 0, fmt.Errorf("unknown auction status %q", s)
	}
}

func (s AuctionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AuctionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseAuctionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Bid is one accepted bid. Its amount stays debited from the bidder until
// the bid is refunded or captured as the winning bid.
type Bid struct {
	BidderID   string
	Amount     decimal.Decimal
	PlacedAt   time.Time
	Status     BidStatus
	RefundRef  string
	RefundedAt *time.Time
}

// BidStatus tracks what happened to a bid's escrowed funds.
type BidStatus int

const (
	BidActive BidStatus = iota
	BidRefunded
	BidWinning
)

func (s BidStatus) String() string {
	switch s {
	case BidActive:
		return "active"
	case BidRefunded:
		return "refunded"
	case BidWinning:
		return "winning"
	default:
		return "unknown"
	}
}

func (s BidStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AuctionFilter narrows FindAuctions. Zero values mean "no constraint".
// Status is matched against the status derived at Now, not the stored one.
type AuctionFilter struct {
	Status    *AuctionStatus
	BidderID  string
	MinTopBid decimal.NullDecimal
	MaxTopBid decimal.NullDecimal
	Now       time.Time
	Limit     int
	Offset    int
}
