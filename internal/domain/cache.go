package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AuctionSnapshot is the hot read model kept next to the auction rows.
type AuctionSnapshot struct {
	AuctionID     string          `json:"auction_id"`
	Status        AuctionStatus   `json:"status"`
	CurrentTopBid decimal.Decimal `json:"current_top_bid"`
	TopBidderID   string          `json:"top_bidder_id,omitempty"`
	MinimumBid    decimal.Decimal `json:"minimum_bid"`
	BidCount      int             `json:"bid_count"`
	EndTime       time.Time       `json:"end_time"`
	Version       int64           `json:"version"`
}

func SnapshotOf(a *Auction) *AuctionSnapshot {
	return &AuctionSnapshot{
		AuctionID:     a.ID,
		Status:        a.Status,
		CurrentTopBid: a.CurrentTopBid,
		TopBidderID:   a.CurrentTopBidderID,
		MinimumBid:    a.MinimumBid(),
		BidCount:      a.BidCount,
		EndTime:       a.EndTime,
		Version:       a.Version,
	}
}

type AuctionStateCache interface {
	// SetSnapshot ignores snapshots older than the one already cached.
	SetSnapshot(ctx context.Context, snapshot *AuctionSnapshot) error
	// GetSnapshot returns (nil, nil) on a cache miss.
	GetSnapshot(ctx context.Context, auctionID string) (*AuctionSnapshot, error)
}
