package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type WinNotification struct {
	Type       string          `json:"type"`
	AuctionID  string          `json:"auction_id"`
	Title      string          `json:"title"`
	WinningBid decimal.Decimal `json:"winning_bid"`
}

type RefundNotification struct {
	Type         string          `json:"type"`
	AuctionID    string          `json:"auction_id"`
	Title        string          `json:"title"`
	BidAmount    decimal.Decimal `json:"bid_amount"`
	Fee          decimal.Decimal `json:"fee"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	RefundRef    string          `json:"refund_ref"`
}

// Notifier delivers settlement outcomes to users. Delivery is best effort.
type Notifier interface {
	NotifyWin(ctx context.Context, userID string, n WinNotification) error
	NotifyRefund(ctx context.Context, userID string, n RefundNotification) error
}

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error
	CloseAuction(ctx context.Context, auctionID string) error
}
