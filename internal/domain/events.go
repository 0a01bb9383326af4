package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type AuctionEventType string

const (
	EventBidPlaced        AuctionEventType = "bid_placed"
	EventAuctionExtended  AuctionEventType = "auction_extended"
	EventAuctionCompleted AuctionEventType = "auction_completed"
	EventAuctionExpired   AuctionEventType = "auction_expired"
	EventAuctionCancelled AuctionEventType = "auction_cancelled"
	EventBidRefunded      AuctionEventType = "bid_refunded"
)

// IsTerminal reports whether no more events will follow for the auction.
func (t AuctionEventType) IsTerminal() bool {
	switch t {
	case EventAuctionCompleted, EventAuctionExpired, EventAuctionCancelled:
		return true
	}
	return false
}

type AuctionEvent struct {
	Type      AuctionEventType `json:"type"`
	AuctionID string           `json:"auction_id"`
	UserID    string           `json:"user_id,omitempty"`
	Amount    decimal.Decimal  `json:"amount"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type EventPublisher interface {
	PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error
}

// EventSubscriber blocks, feeding events to handler until ctx is done.
type EventSubscriber interface {
	SubscribeToAuctionEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *AuctionEvent) error

type EventLogRepository interface {
	SaveAuctionEvent(ctx context.Context, event *AuctionEvent) error
	GetAuctionEvents(ctx context.Context, auctionID string) ([]*AuctionEvent, error)
}
