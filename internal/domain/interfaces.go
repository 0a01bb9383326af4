package domain

import (
	"context"
	"time"
)

// Clock is injected everywhere time matters so tests can drive it.
type Clock interface {
	Now() time.Time
}

type AdminDirectory interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	// UpdateAuction persists the aggregate if its stored version still equals
	// auction.Version, then bumps auction.Version. A stale version yields
	// ErrConcurrencyConflict.
	UpdateAuction(ctx context.Context, auction *Auction) error
	FindAuctions(ctx context.Context, filter AuctionFilter) ([]*Auction, error)
	ActivateDueAuctions(ctx context.Context, now time.Time) (int64, error)
	EndDueAuctions(ctx context.Context, now time.Time) (int64, error)
	GetUnsettledAuctionIDs(ctx context.Context) ([]string, error)
}
